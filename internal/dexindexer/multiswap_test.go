package dexindexer

import (
	"testing"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

func acct(b byte) chain.AccountID {
	var a chain.AccountID
	for i := range a {
		a[i] = b
	}
	return a
}

func trade(tokenIn, tokenOut chain.AccountID, amountIn, amountOut uint64, block, eventIndex, extrinsic uint32) tradedb.Trade {
	return tradedb.Trade{
		Pool:           acct(0xf0),
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       u128.FromUint64(amountIn),
		AmountOut:      u128.FromUint64(amountOut),
		BlockNum:       block,
		EventIndex:     eventIndex,
		ExtrinsicIndex: extrinsic,
		Origin:         acct(0x01),
	}
}

func TestAggregateFusesChain(t *testing.T) {
	a, b, c := acct(0xaa), acct(0xbb), acct(0xcc)
	trades := []tradedb.Trade{
		trade(a, b, 100, 50, 7, 0, 3),
		trade(b, c, 50, 5, 7, 1, 3),
	}

	swaps := AggregateTrades(trades)
	if len(swaps) != 1 {
		t.Fatalf("got %d multiswaps, want 1", len(swaps))
	}
	ms := swaps[0]
	if len(ms.Path) != 3 || ms.Path[0] != a || ms.Path[1] != b || ms.Path[2] != c {
		t.Errorf("path = %v, want [a, b, c]", ms.Path)
	}
	if ms.TokenIn != a || ms.TokenOut != c {
		t.Errorf("endpoints = (%s, %s)", ms.TokenIn, ms.TokenOut)
	}
	if ms.AmountIn.String() != "100" || ms.AmountOut.String() != "5" {
		t.Errorf("amounts = (%s, %s), want (100, 5)", ms.AmountIn, ms.AmountOut)
	}
	if ms.BlockNum != 7 || ms.ExtrinsicIndex != 3 {
		t.Errorf("position = (%d, %d), want (7, 3)", ms.BlockNum, ms.ExtrinsicIndex)
	}
}

func TestAggregateBreaksOnAmountMismatch(t *testing.T) {
	a, b, c := acct(0xaa), acct(0xbb), acct(0xcc)
	trades := []tradedb.Trade{
		trade(a, b, 100, 50, 7, 0, 3),
		trade(b, c, 49, 5, 7, 1, 3),
	}
	swaps := AggregateTrades(trades)
	if len(swaps) != 2 {
		t.Fatalf("got %d multiswaps, want 2", len(swaps))
	}
	if len(swaps[0].Path) != 2 || len(swaps[1].Path) != 2 {
		t.Errorf("paths = %v, %v; want single-hop each", swaps[0].Path, swaps[1].Path)
	}
}

func TestAggregateBreaksOnTokenMismatch(t *testing.T) {
	a, b, c, d := acct(0xaa), acct(0xbb), acct(0xcc), acct(0xdd)
	trades := []tradedb.Trade{
		trade(a, b, 100, 50, 7, 0, 3),
		trade(c, d, 50, 5, 7, 1, 3),
	}
	if got := AggregateTrades(trades); len(got) != 2 {
		t.Fatalf("got %d multiswaps, want 2", len(got))
	}
}

func TestAggregateSeparatesExtrinsics(t *testing.T) {
	a, b := acct(0xaa), acct(0xbb)
	trades := []tradedb.Trade{
		trade(a, b, 100, 50, 7, 0, 3),
		trade(b, a, 50, 90, 7, 0, 4),
		trade(a, b, 10, 5, 8, 0, 0),
	}
	swaps := AggregateTrades(trades)
	if len(swaps) != 3 {
		t.Fatalf("got %d multiswaps, want 3", len(swaps))
	}
	// Ordered by (block, extrinsic).
	if swaps[0].ExtrinsicIndex != 3 || swaps[1].ExtrinsicIndex != 4 || swaps[2].BlockNum != 8 {
		t.Errorf("order = %+v", swaps)
	}
}

func TestAggregatePathLength(t *testing.T) {
	tokens := []chain.AccountID{acct(1), acct(2), acct(3), acct(4), acct(5)}
	var trades []tradedb.Trade
	amount := uint64(1000)
	for i := 0; i+1 < len(tokens); i++ {
		trades = append(trades, trade(tokens[i], tokens[i+1], amount, amount/2, 9, uint32(i), 0))
		amount /= 2
	}
	swaps := AggregateTrades(trades)
	if len(swaps) != 1 {
		t.Fatalf("got %d multiswaps, want 1", len(swaps))
	}
	if len(swaps[0].Path) != len(trades)+1 {
		t.Errorf("path length = %d, want %d", len(swaps[0].Path), len(trades)+1)
	}
}

// A truncated result discards the last partial block before aggregation.
func TestTruncatedResultDropsLastBlock(t *testing.T) {
	a, b := acct(0xaa), acct(0xbb)
	result := tradedb.QueryResult[tradedb.Trade]{
		Data: []tradedb.Trade{
			trade(a, b, 100, 50, 499, 0, 0),
			trade(a, b, 100, 50, 500, 0, 0),
			trade(a, b, 100, 50, 500, 1, 1),
		},
		IsComplete: false,
	}
	swaps := TradesToMultiSwaps(result)
	if swaps.IsComplete {
		t.Error("is_complete must propagate")
	}
	if len(swaps.Data) != 1 {
		t.Fatalf("got %d multiswaps, want 1 (block 500 dropped)", len(swaps.Data))
	}
	if swaps.Data[0].BlockNum != 499 {
		t.Errorf("block = %d, want 499", swaps.Data[0].BlockNum)
	}
}

func TestCompleteResultKeepsAll(t *testing.T) {
	a, b := acct(0xaa), acct(0xbb)
	result := tradedb.QueryResult[tradedb.Trade]{
		Data: []tradedb.Trade{
			trade(a, b, 100, 50, 499, 0, 0),
			trade(a, b, 100, 50, 500, 0, 0),
		},
		IsComplete: true,
	}
	swaps := TradesToMultiSwaps(result)
	if len(swaps.Data) != 2 {
		t.Fatalf("got %d multiswaps, want 2", len(swaps.Data))
	}
}
