package scraper

import (
	"fmt"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/eventdb"
)

// ChainSource adapts chain.Client to the Source interface, keeping the
// events the store persists: contract emits and signed top-level calls.
type ChainSource struct {
	client *chain.Client
}

// NewChainSource wraps a chain client.
func NewChainSource(client *chain.Client) *ChainSource {
	return &ChainSource{client: client}
}

// FinalizedNumber returns the finalized head's number.
func (cs *ChainSource) FinalizedNumber() (uint32, error) {
	return cs.client.FinalizedNumber()
}

// FetchRange resolves every block in the range and decodes its contract
// events. Hashes resolve first so a pruned or unknown block fails the
// whole range before any event work.
func (cs *ChainSource) FetchRange(from, to uint32) ([]BlockEvents, error) {
	hashes := make([]chain.Hash, 0, to-from+1)
	for num := from; num <= to; num++ {
		hash, found, err := cs.client.BlockHash(num)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, fmt.Errorf("block %d not found", num)
		}
		hashes = append(hashes, hash)
	}

	out := make([]BlockEvents, 0, len(hashes))
	for i, hash := range hashes {
		num := from + uint32(i)
		events, err := cs.client.BlockContractEvents(hash)
		if err != nil {
			return nil, fmt.Errorf("events of block %d: %w", num, err)
		}
		out = append(out, BlockEvents{Num: num, Events: storeEvents(num, events)})
	}
	return out, nil
}

// storeEvents converts decoded chain events into store records, retaining
// emitted payloads and signed calls.
func storeEvents(num uint32, events []chain.GenericContractEvent) []eventdb.Event {
	var out []eventdb.Event
	for _, ev := range events {
		switch ev.Kind {
		case chain.EventContractEmitted:
			out = append(out, eventdb.Event{
				Contract:       ev.Contract,
				BlockNum:       num,
				EventIndex:     ev.EventIndex,
				ExtrinsicIndex: ev.ExtrinsicIndex,
				Type:           eventdb.TypeEmitted,
				Data:           ev.Data,
			})
		case chain.EventCalled:
			if !ev.Caller.IsSigned {
				continue
			}
			caller := ev.Caller.Account
			out = append(out, eventdb.Event{
				Contract:       ev.Contract,
				BlockNum:       num,
				EventIndex:     ev.EventIndex,
				ExtrinsicIndex: ev.ExtrinsicIndex,
				Type:           eventdb.TypeCalled,
				Caller:         &caller,
			})
		}
	}
	return out
}
