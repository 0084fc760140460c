package chain

import (
	"context"
	"fmt"
	"sync"
	"time"

	gsrpc "github.com/centrifuge/go-substrate-rpc-client/v4"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/retriever"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/state"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/azero-tools/azero-indexer/pkg/logging"
)

const connectRetryInterval = 2 * time.Second

// Client is a read-only facade over a single node's WebSocket RPC.
// All methods are safe for concurrent use; Reinit swaps the underlying
// connection under a write lock.
type Client struct {
	url string
	log *logging.Logger

	mu        sync.RWMutex
	api       *gsrpc.SubstrateAPI
	retriever retriever.EventRetriever
	meta      *types.Metadata
}

// Connect dials the endpoint, retrying every 2 s until a connection and
// metadata are available or the context is canceled.
func Connect(ctx context.Context, url string) (*Client, error) {
	c := &Client{url: url, log: logging.GetDefault().Component("chain")}
	if err := c.Reinit(ctx); err != nil {
		return nil, err
	}
	return c, nil
}

// Reinit discards the current connection and dials again, retrying until
// ready. Used after repeated call failures.
func (c *Client) Reinit(ctx context.Context) error {
	for {
		api, err := gsrpc.NewSubstrateAPI(c.url)
		if err == nil {
			var ret retriever.EventRetriever
			ret, err = retriever.NewDefaultEventRetriever(
				state.NewEventProvider(api.RPC.State),
				api.RPC.State,
			)
			if err == nil {
				var meta *types.Metadata
				meta, err = api.RPC.State.GetMetadataLatest()
				if err == nil {
					c.mu.Lock()
					c.api = api
					c.retriever = ret
					c.meta = meta
					c.mu.Unlock()
					return nil
				}
			}
		}
		c.log.Error("Failed to initialize client", "url", c.url, "error", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(connectRetryInterval):
		}
	}
}

func (c *Client) snapshot() (*gsrpc.SubstrateAPI, retriever.EventRetriever) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.api, c.retriever
}

func (c *Client) metadata() *types.Metadata {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.meta
}

// call performs a raw JSON-RPC request.
func (c *Client) call(result interface{}, method string, args ...interface{}) error {
	api, _ := c.snapshot()
	return api.Client.Call(result, method, args...)
}

// BlockHash resolves a block number to its hash. The second return value is
// false when the chain does not know the block (null response).
func (c *Client) BlockHash(num BlockNumber) (Hash, bool, error) {
	var res *string
	if err := c.call(&res, "chain_getBlockHash", num); err != nil {
		return Hash{}, false, fmt.Errorf("chain_getBlockHash(%d): %w", num, err)
	}
	if res == nil {
		return Hash{}, false, nil
	}
	h, err := types.NewHashFromHexString(*res)
	if err != nil {
		return Hash{}, false, fmt.Errorf("chain_getBlockHash(%d): %w", num, err)
	}
	return Hash(h), true, nil
}

// FinalizedNumber returns the number of the latest finalized block.
func (c *Client) FinalizedNumber() (BlockNumber, error) {
	api, _ := c.snapshot()
	head, err := api.RPC.Chain.GetFinalizedHead()
	if err != nil {
		return 0, fmt.Errorf("get finalized head: %w", err)
	}
	header, err := api.RPC.Chain.GetHeader(head)
	if err != nil {
		return 0, fmt.Errorf("get finalized header: %w", err)
	}
	return BlockNumber(header.Number), nil
}

// rawEvents fetches and decodes the event records of one block via the
// metadata-driven registry.
func (c *Client) rawEvents(hash Hash) ([]*parser.Event, error) {
	_, ret := c.snapshot()
	events, err := ret.GetEvents(types.Hash(hash))
	if err != nil {
		return nil, fmt.Errorf("get events at %x: %w", hash, err)
	}
	return events, nil
}

// FinalizedBlock bundles a finalized block's number with its decoded
// contract events.
type FinalizedBlock struct {
	Number BlockNumber
	Hash   Hash
	Events []GenericContractEvent
}

// SubscribeFinalized streams finalized blocks with their contract events to
// handler until the context is canceled. Stream failures reconnect after a
// 10 s pause; per-block failures are logged and skipped.
func (c *Client) SubscribeFinalized(ctx context.Context, handler func(FinalizedBlock)) {
	for ctx.Err() == nil {
		api, _ := c.snapshot()
		sub, err := api.RPC.Chain.SubscribeFinalizedHeads()
		if err != nil {
			c.log.Error("Failed to subscribe to finalized heads", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Second):
			}
			continue
		}
		c.consumeHeads(ctx, sub.Chan(), handler)
		sub.Unsubscribe()
		select {
		case <-ctx.Done():
			return
		case <-time.After(10 * time.Second):
		}
	}
}

func (c *Client) consumeHeads(ctx context.Context, heads <-chan types.Header, handler func(FinalizedBlock)) {
	for {
		select {
		case <-ctx.Done():
			return
		case header, ok := <-heads:
			if !ok {
				c.log.Error("Finalized head stream ended")
				return
			}
			num := BlockNumber(header.Number)
			hash, found, err := c.BlockHash(num)
			if err != nil || !found {
				c.log.Error("Failed to resolve finalized block hash", "block", num, "error", err)
				continue
			}
			events, err := c.BlockContractEvents(hash)
			if err != nil {
				c.log.Error("Failed to fetch finalized block events", "block", num, "error", err)
				continue
			}
			handler(FinalizedBlock{Number: num, Hash: hash, Events: events})
		}
	}
}
