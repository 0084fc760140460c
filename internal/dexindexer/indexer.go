package dexindexer

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/eventdb"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
	"github.com/azero-tools/azero-indexer/pkg/logging"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// Batch tunables.
const (
	// maxBatchBlocks caps one batch of the derived indexer.
	maxBatchBlocks = 50000
	// tipLag keeps the target behind the finalized head.
	tipLag = 20
	// iterPause separates batch iterations and retries.
	iterPause = 15 * time.Second
)

var errNoNewBlocks = errors.New("no new blocks to process")

// FinalizedSource reports the finalized chain head.
type FinalizedSource interface {
	FinalizedNumber() (uint32, error)
}

// Indexer is the watermark-driven consumer of the event service.
type Indexer struct {
	store  *tradedb.Store
	events EventService
	pools  PoolSource
	tip    FinalizedSource
	log    *logging.Logger

	// Pool snapshot hint: reused unchanged while taken at or past the
	// batch target.
	hintAt    uint32
	hintPools []tradedb.Pool

	knownPools  map[chain.AccountID]tradedb.Pool
	knownTokens map[chain.AccountID]bool
}

// New creates the derived indexer over its collaborators.
func New(store *tradedb.Store, events EventService, pools PoolSource, tip FinalizedSource) *Indexer {
	return &Indexer{
		store:       store,
		events:      events,
		pools:       pools,
		tip:         tip,
		log:         logging.GetDefault().Component("dexindexer"),
		knownPools:  make(map[chain.AccountID]tradedb.Pool),
		knownTokens: make(map[chain.AccountID]bool),
	}
}

// Run drives batch iterations until the context is canceled.
func (ix *Indexer) Run(ctx context.Context) {
	if err := ix.loadKnown(); err != nil {
		ix.log.Error("Failed to load known pools and tokens", "error", err)
	}
	for ctx.Err() == nil {
		err := ix.runIter()
		switch {
		case err == nil:
		case errors.Is(err, errNoNewBlocks):
			ix.log.Info("No new blocks to process")
		default:
			ix.log.Error("Batch iteration failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(iterPause):
		}
	}
}

func (ix *Indexer) loadKnown() error {
	pools, err := ix.store.Pools()
	if err != nil {
		return err
	}
	for _, p := range pools {
		ix.knownPools[p.Address] = p
	}
	tokens, err := ix.store.Tokens()
	if err != nil {
		return err
	}
	for _, t := range tokens {
		ix.knownTokens[t.Address] = true
	}
	return nil
}

// runIter processes one batch: pick the target, refresh pools, fetch the
// events, derive trades, commit.
func (ix *Indexer) runIter() error {
	till, err := ix.store.IndexedTill()
	if err != nil {
		return err
	}
	target, err := ix.batchTarget(till)
	if err != nil {
		return err
	}

	pools, err := ix.poolsForTarget(target)
	if err != nil {
		return err
	}
	if err := ix.registerPools(pools); err != nil {
		return err
	}

	events, err := ix.events.EventsRange(till+1, target)
	if err != nil {
		return err
	}
	trades := ix.deriveTrades(events)
	if err := ix.store.InsertTrades(trades, till+1, target); err != nil {
		return err
	}
	ix.log.Info("Committed batch", "block_start", till+1, "block_stop", target, "trades", len(trades))
	return nil
}

// batchTarget is bounded by the batch cap, the lagged chain tip and the
// event store's right edge.
func (ix *Indexer) batchTarget(till uint32) (uint32, error) {
	finalized, err := ix.tip.FinalizedNumber()
	if err != nil {
		return 0, err
	}
	_, eventsTo, err := ix.events.Status()
	if err != nil {
		return 0, err
	}

	target := till + maxBatchBlocks
	if finalized < tipLag {
		return 0, errNoNewBlocks
	}
	if lagged := finalized - tipLag; target > lagged {
		target = lagged
	}
	if target > eventsTo {
		target = eventsTo
	}
	if target <= till {
		return 0, errNoNewBlocks
	}
	return target, nil
}

func (ix *Indexer) poolsForTarget(target uint32) ([]tradedb.Pool, error) {
	if ix.hintPools != nil && ix.hintAt >= target {
		return ix.hintPools, nil
	}
	pools, err := ix.pools.PoolsAt(target)
	if err != nil {
		return nil, err
	}
	ix.hintAt = target
	ix.hintPools = pools
	return pools, nil
}

// registerPools persists newly seen pools and the metadata of their
// newly seen tokens.
func (ix *Indexer) registerPools(pools []tradedb.Pool) error {
	for _, p := range pools {
		if _, ok := ix.knownPools[p.Address]; ok {
			continue
		}
		if err := ix.store.InsertPool(p); err != nil {
			return err
		}
		ix.knownPools[p.Address] = p
		for _, tokenAddr := range []chain.AccountID{p.Token0, p.Token1} {
			if ix.knownTokens[tokenAddr] {
				continue
			}
			token, err := ix.pools.TokenInfo(tokenAddr)
			if err != nil {
				return err
			}
			if err := ix.store.InsertToken(token); err != nil {
				return err
			}
			ix.knownTokens[tokenAddr] = true
		}
	}
	return nil
}

// deriveTrades groups events per extrinsic and decodes pool emits into
// trades. The extrinsic's origin is the caller of its last Called event;
// groups without one are ignored.
func (ix *Indexer) deriveTrades(events []eventdb.Event) []tradedb.Trade {
	groups := make(map[extrinsicKey][]eventdb.Event)
	for _, e := range events {
		key := extrinsicKey{blockNum: e.BlockNum, extrinsicIndex: e.ExtrinsicIndex}
		groups[key] = append(groups[key], e)
	}
	keys := make([]extrinsicKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].blockNum != keys[j].blockNum {
			return keys[i].blockNum < keys[j].blockNum
		}
		return keys[i].extrinsicIndex < keys[j].extrinsicIndex
	})

	var trades []tradedb.Trade
	for _, key := range keys {
		trades = append(trades, ix.extrinsicTrades(groups[key])...)
	}
	return trades
}

func (ix *Indexer) extrinsicTrades(events []eventdb.Event) []tradedb.Trade {
	sort.Slice(events, func(i, j int) bool { return events[i].EventIndex < events[j].EventIndex })

	var origin *chain.AccountID
	for _, e := range events {
		if e.Type == eventdb.TypeCalled && e.Caller != nil {
			origin = e.Caller
		}
	}
	if origin == nil {
		return nil
	}

	var trades []tradedb.Trade
	for _, e := range events {
		if e.Type != eventdb.TypeEmitted {
			continue
		}
		pool, ok := ix.knownPools[e.Contract]
		if !ok {
			continue
		}
		swap, isSwap, err := DecodePairSwap(e.Data)
		if err != nil {
			ix.log.Debug("Undecodable pair event", "pool", e.Contract, "block", e.BlockNum, "error", err)
			continue
		}
		if !isSwap {
			continue
		}
		tokenIn, tokenOut, ok := swap.Direction(pool.Token0, pool.Token1)
		if !ok {
			ix.log.Error("Invalid swap event", "pool", e.Contract, "block", e.BlockNum, "event_index", e.EventIndex)
			continue
		}
		trades = append(trades, tradedb.Trade{
			Pool:           e.Contract,
			TokenIn:        tokenIn,
			TokenOut:       tokenOut,
			AmountIn:       u128.Max(swap.Amount0In, swap.Amount1In),
			AmountOut:      u128.Max(swap.Amount0Out, swap.Amount1Out),
			BlockNum:       e.BlockNum,
			EventIndex:     e.EventIndex,
			ExtrinsicIndex: e.ExtrinsicIndex,
			Origin:         *origin,
		})
	}
	return trades
}
