package dexindexer

import (
	"sort"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
	"github.com/azero-tools/azero-indexer/pkg/logging"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// MultiSwap is a path-forming fusion of consecutive trades executed in one
// extrinsic.
type MultiSwap struct {
	Origin         chain.AccountID   `json:"origin"`
	TokenIn        chain.AccountID   `json:"token_in"`
	TokenOut       chain.AccountID   `json:"token_out"`
	Path           []chain.AccountID `json:"path"`
	AmountIn       u128.Amount       `json:"amount_in"`
	AmountOut      u128.Amount       `json:"amount_out"`
	BlockNum       uint32            `json:"block_num"`
	ExtrinsicIndex uint32            `json:"extrinsic_index"`
}

type extrinsicKey struct {
	blockNum       uint32
	extrinsicIndex uint32
}

// AggregateTrades groups trades by extrinsic and fuses chains where each
// trade's output token and amount match the next trade's input.
func AggregateTrades(trades []tradedb.Trade) []MultiSwap {
	groups := make(map[extrinsicKey][]tradedb.Trade)
	for _, t := range trades {
		key := extrinsicKey{blockNum: t.BlockNum, extrinsicIndex: t.ExtrinsicIndex}
		groups[key] = append(groups[key], t)
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

	var multiswaps []MultiSwap
	for _, key := range keys {
		multiswaps = append(multiswaps, aggregatePerExtrinsic(groups[key])...)
	}
	return multiswaps
}

func aggregatePerExtrinsic(trades []tradedb.Trade) []MultiSwap {
	sort.Slice(trades, func(i, j int) bool { return trades[i].EventIndex < trades[j].EventIndex })

	origin := trades[0].Origin
	for _, t := range trades {
		if t.Origin != origin {
			logging.GetDefault().Component("multiswap").
				Error("Trades with different origins in one extrinsic", "block", t.BlockNum, "extrinsic", t.ExtrinsicIndex)
			return nil
		}
	}

	var multiswaps []MultiSwap
	start := 0
	for start < len(trades) {
		end := start + 1
		for end < len(trades) &&
			trades[end].TokenIn == trades[end-1].TokenOut &&
			trades[end].AmountIn.Equal(trades[end-1].AmountOut) {
			end++
		}
		path := []chain.AccountID{trades[start].TokenIn}
		for i := start; i < end; i++ {
			path = append(path, trades[i].TokenOut)
		}
		multiswaps = append(multiswaps, MultiSwap{
			Origin:         origin,
			TokenIn:        path[0],
			TokenOut:       path[len(path)-1],
			Path:           path,
			AmountIn:       trades[start].AmountIn,
			AmountOut:      trades[end-1].AmountOut,
			BlockNum:       trades[start].BlockNum,
			ExtrinsicIndex: trades[start].ExtrinsicIndex,
		})
		start = end
	}
	return multiswaps
}

// TradesToMultiSwaps aggregates a trade query result. A truncated result
// drops the last, possibly partial, block first so a multiswap never
// splits across the truncation point.
func TradesToMultiSwaps(result tradedb.QueryResult[tradedb.Trade]) tradedb.QueryResult[MultiSwap] {
	trades := result.Data
	if !result.IsComplete && len(trades) > 0 {
		lastBlock := trades[len(trades)-1].BlockNum
		for len(trades) > 0 && trades[len(trades)-1].BlockNum == lastBlock {
			trades = trades[:len(trades)-1]
		}
	}
	return tradedb.QueryResult[MultiSwap]{
		Data:       AggregateTrades(trades),
		IsComplete: result.IsComplete,
	}
}
