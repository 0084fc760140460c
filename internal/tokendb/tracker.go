package tokendb

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/logging"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// Tracker tunables.
const (
	// backupInterval is how often the snapshot map checkpoints to disk.
	backupInterval = 600 * time.Second
	// sweepItemPause paces priority-0 (full sweep) refreshes.
	sweepItemPause = 30 * time.Millisecond
	// maxConsecutiveFailures triggers an RPC client reinit.
	maxConsecutiveFailures = 10
)

// ChainReader is the chain surface the per-contract refresh needs. Tests
// substitute fakes; chain.Client is the production implementation.
type ChainReader interface {
	ContractInfoOf(addr chain.AccountID) (*chain.ContractInfo, error)
	ChildStorageRoot(trieID []byte, at *chain.Hash) ([]byte, error)
	ContractStorageFromTrieID(trieID []byte, omitHash bool, at *chain.Hash) (chain.ContractStorage, error)
	PSP22TotalSupply(addr chain.AccountID, at *chain.Hash) (u128.Amount, error)
	PSP22Name(addr chain.AccountID, at *chain.Hash) (*string, error)
	PSP22Symbol(addr chain.AccountID, at *chain.Hash) (*string, error)
	PSP22Decimals(addr chain.AccountID, at *chain.Hash) (uint8, error)
}

// Tracker keeps the token DB current: a finalized-event subscriber boosts
// touched contracts, and a full sweep re-enqueues everything whenever the
// queue drains.
type Tracker struct {
	db         *DB
	client     *chain.Client
	network    string
	backupPath string
	prefixes   [][]byte
	log        *logging.Logger
}

// NewTracker creates a tracker writing checkpoints to backupPath.
func NewTracker(db *DB, client *chain.Client, network, backupPath string, prefixes [][]byte) *Tracker {
	return &Tracker{
		db:         db,
		client:     client,
		network:    network,
		backupPath: backupPath,
		prefixes:   prefixes,
		log:        logging.GetDefault().Component("tracker"),
	}
}

// Run drives the refresh loop until the context is canceled.
func (t *Tracker) Run(ctx context.Context) {
	queue := newAccountQueue()
	go t.signalContractEvents(ctx, queue)

	lastBackup := time.Now()
	failures := 0
	var iterNo uint64

	for ctx.Err() == nil {
		if failures >= maxConsecutiveFailures {
			failures = 0
			t.log.Warn("Reinitializing client after repeated failures", "network", t.network)
			if err := t.client.Reinit(ctx); err != nil {
				return
			}
		}

		if account, priority, ok := queue.Pop(); ok {
			iterNo++
			if iterNo%100 == 0 {
				t.log.Info("Queue progress", "network", t.network, "remaining", queue.Len())
			}
			old, _ := t.db.Get(account)
			rec, err := RefreshContract(t.client, account, old, t.prefixes)
			if err != nil {
				t.log.Debug("Failed to refresh contract", "network", t.network, "contract", account, "error", err)
				failures++
			} else {
				t.db.Put(rec)
				failures = 0
			}
			if priority == 0 {
				sleepCtx(ctx, sweepItemPause)
			}
		} else {
			t.log.Info("Starting a new cycle over all contracts", "network", t.network)
			contracts, err := t.client.AllContractAccounts()
			if err != nil {
				t.log.Error("Failed to enumerate contracts", "network", t.network, "error", err)
				failures++
			} else {
				for _, c := range contracts {
					queue.InsertOrRaise(c, 0)
				}
			}
		}

		if time.Since(lastBackup) > backupInterval {
			if err := t.db.WriteToDisk(t.backupPath); err != nil {
				t.log.Error("Failed to save checkpoint", "network", t.network, "path", t.backupPath, "error", err)
			}
			lastBackup = time.Now()
		}
	}
}

// signalContractEvents boosts contracts touched by finalized blocks.
func (t *Tracker) signalContractEvents(ctx context.Context, queue *accountQueue) {
	t.client.SubscribeFinalized(ctx, func(block chain.FinalizedBlock) {
		for _, ev := range block.Events {
			switch ev.Kind {
			case chain.EventInstantiated, chain.EventCalled, chain.EventDelegateCalled:
				t.log.Debug("Boosting contract", "network", t.network, "contract", ev.Contract, "reason", ev.Kind)
				queue.InsertOrRaise(ev.Contract, 1)
			}
		}
	})
}

// RefreshContract re-derives one contract's snapshot. A snapshot whose
// recorded root hash matches the current on-chain root keeps its metadata
// and holders; only the total supply is re-read.
func RefreshContract(r ChainReader, addr chain.AccountID, old *ContractRecord, prefixes [][]byte) (*ContractRecord, error) {
	info, err := r.ContractInfoOf(addr)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("%s is not a contract", addr)
	}
	rootHash, err := r.ChildStorageRoot(info.TrieID, nil)
	if err != nil {
		return nil, err
	}

	rec := &ContractRecord{
		Address:  addr,
		RootHash: rootHash,
		CodeHash: info.CodeHash[:],
		Kind:     KindOther,
	}
	totalSupply, err := r.PSP22TotalSupply(addr, nil)
	if err != nil {
		// Not a PSP-22 contract.
		return rec, nil
	}
	rec.Kind = KindPSP22

	if old != nil && old.Kind == KindPSP22 && old.PSP22 != nil && bytes.Equal(old.RootHash, rootHash) {
		rec.PSP22 = &PSP22State{
			TotalSupply: totalSupply,
			Metadata:    old.PSP22.Metadata,
			Holders:     old.PSP22.Holders,
		}
		return rec, nil
	}

	metadata := &TokenMetadata{}
	if name, err := r.PSP22Name(addr, nil); err == nil {
		metadata.Name = name
	}
	if symbol, err := r.PSP22Symbol(addr, nil); err == nil {
		metadata.Symbol = symbol
	}
	if decimals, err := r.PSP22Decimals(addr, nil); err == nil {
		metadata.Decimals = decimals
	}
	storage, err := r.ContractStorageFromTrieID(info.TrieID, true, nil)
	if err != nil {
		return nil, err
	}
	rec.PSP22 = &PSP22State{
		TotalSupply: totalSupply,
		Metadata:    metadata,
		Holders:     HoldersFromStorage(storage, prefixes),
	}
	return rec, nil
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
