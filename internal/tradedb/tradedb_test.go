package tradedb

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

func acct(b byte) chain.AccountID {
	var a chain.AccountID
	for i := range a {
		a[i] = b
	}
	return a
}

func testStore(t *testing.T) *Store {
	t.Helper()
	dir, err := os.MkdirTemp("", "tradedb-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	store := Open(filepath.Join(dir, "trades.db"))
	t.Cleanup(func() { store.Close() })
	if err := store.Init(100); err != nil {
		t.Fatalf("Init() error = %v", err)
	}
	return store
}

func testTrade(block, eventIndex uint32, origin chain.AccountID) Trade {
	return Trade{
		Pool:           acct(0xf0),
		TokenIn:        acct(0x01),
		TokenOut:       acct(0x02),
		AmountIn:       u128.FromUint64(100),
		AmountOut:      u128.FromUint64(50),
		BlockNum:       block,
		EventIndex:     eventIndex,
		ExtrinsicIndex: eventIndex,
		Origin:         origin,
	}
}

func TestWatermark(t *testing.T) {
	store := testStore(t)
	till, err := store.IndexedTill()
	if err != nil {
		t.Fatalf("IndexedTill() error = %v", err)
	}
	if till != 100 {
		t.Fatalf("indexed_till = %d, want 100", till)
	}

	if err := store.InsertTrades([]Trade{testTrade(105, 0, acct(9))}, 101, 110); err != nil {
		t.Fatalf("InsertTrades() error = %v", err)
	}
	till, err = store.IndexedTill()
	if err != nil {
		t.Fatalf("IndexedTill() error = %v", err)
	}
	if till != 110 {
		t.Errorf("indexed_till = %d, want 110", till)
	}

	// A batch not starting right after the watermark is rejected.
	err = store.InsertTrades(nil, 115, 120)
	if !errors.Is(err, ErrInconsistentBlockNumber) {
		t.Fatalf("error = %v, want ErrInconsistentBlockNumber", err)
	}
	if till, _ := store.IndexedTill(); till != 110 {
		t.Errorf("indexed_till moved to %d after a rejected batch", till)
	}
}

func TestTradeRoundtripAndOrder(t *testing.T) {
	store := testStore(t)
	trades := []Trade{
		testTrade(103, 1, acct(9)),
		testTrade(103, 0, acct(9)),
		testTrade(101, 0, acct(8)),
	}
	if err := store.InsertTrades(trades, 101, 110); err != nil {
		t.Fatalf("InsertTrades() error = %v", err)
	}

	result, err := store.TradesByRange(101, 110)
	if err != nil {
		t.Fatalf("TradesByRange() error = %v", err)
	}
	if !result.IsComplete || len(result.Data) != 3 {
		t.Fatalf("result = %+v", result)
	}
	got := result.Data
	if got[0].BlockNum != 101 || got[1].EventIndex != 0 || got[2].EventIndex != 1 {
		t.Errorf("order = %+v", got)
	}
	if got[0].AmountIn.String() != "100" || got[0].Origin != acct(8) {
		t.Errorf("trade fields not preserved: %+v", got[0])
	}

	byOrigin, err := store.TradesByOrigin(101, 110, acct(9))
	if err != nil {
		t.Fatalf("TradesByOrigin() error = %v", err)
	}
	if len(byOrigin.Data) != 2 {
		t.Errorf("by-origin trades = %d, want 2", len(byOrigin.Data))
	}
}

func TestRecentTradesByOrigin(t *testing.T) {
	store := testStore(t)
	var trades []Trade
	for block := uint32(101); block <= 110; block++ {
		trades = append(trades, testTrade(block, 0, acct(9)))
	}
	if err := store.InsertTrades(trades, 101, 110); err != nil {
		t.Fatalf("InsertTrades() error = %v", err)
	}

	recent, err := store.RecentTradesByOrigin(acct(9), 105, 3)
	if err != nil {
		t.Fatalf("RecentTradesByOrigin() error = %v", err)
	}
	if len(recent) != 3 {
		t.Fatalf("got %d trades, want 3", len(recent))
	}
	if recent[0].BlockNum != 110 || recent[2].BlockNum != 108 {
		t.Errorf("order = %+v", recent)
	}
}

func TestPoolAndTokenUpserts(t *testing.T) {
	store := testStore(t)
	pool := Pool{
		Address:  acct(0xf0),
		Token0:   acct(0x01),
		Token1:   acct(0x02),
		Reserve0: u128.FromUint64(1000),
		Reserve1: u128.FromUint64(2000),
		Fee:      3,
	}
	if err := store.InsertPool(pool); err != nil {
		t.Fatalf("InsertPool() error = %v", err)
	}
	if err := store.InsertPool(pool); err != nil {
		t.Fatalf("duplicate InsertPool() error = %v", err)
	}
	pools, err := store.Pools()
	if err != nil {
		t.Fatalf("Pools() error = %v", err)
	}
	if len(pools) != 1 {
		t.Fatalf("got %d pools, want 1", len(pools))
	}
	if pools[0].Fee != 3 || pools[0].Reserve1.String() != "2000" {
		t.Errorf("pool = %+v", pools[0])
	}

	symbol := "TKN"
	token := Token{Address: acct(0x01), Symbol: &symbol, Decimals: 12}
	if err := store.InsertToken(token); err != nil {
		t.Fatalf("InsertToken() error = %v", err)
	}
	if err := store.InsertToken(token); err != nil {
		t.Fatalf("duplicate InsertToken() error = %v", err)
	}
	tokens, err := store.Tokens()
	if err != nil {
		t.Fatalf("Tokens() error = %v", err)
	}
	if len(tokens) != 1 || tokens[0].Symbol == nil || *tokens[0].Symbol != "TKN" {
		t.Errorf("tokens = %+v", tokens)
	}
	if tokens[0].Name != nil {
		t.Errorf("absent name should stay nil, got %v", *tokens[0].Name)
	}
}
