package dexindexer

import (
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/eventdb"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
	"github.com/azero-tools/azero-indexer/pkg/logging"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

func swapPayload(a0in, a1in, a0out, a1out uint64) []byte {
	payload := []byte{pairEventSwap}
	payload = append(payload, make([]byte, 32)...) // sender
	for _, v := range []uint64{a0in, a1in, a0out, a1out} {
		payload = append(payload, u128.FromUint64(v).LE()...)
	}
	payload = append(payload, make([]byte, 32)...) // to
	return payload
}

func TestDecodePairSwap(t *testing.T) {
	swap, isSwap, err := DecodePairSwap(swapPayload(100, 0, 0, 42))
	if err != nil {
		t.Fatalf("DecodePairSwap() error = %v", err)
	}
	if !isSwap {
		t.Fatal("expected a swap")
	}
	if swap.Amount0In.String() != "100" || swap.Amount1Out.String() != "42" {
		t.Errorf("amounts = %s in, %s out", swap.Amount0In, swap.Amount1Out)
	}
}

func TestDecodePairNonSwap(t *testing.T) {
	_, isSwap, err := DecodePairSwap([]byte{pairEventSync, 0, 0})
	if err != nil {
		t.Fatalf("DecodePairSwap() error = %v", err)
	}
	if isSwap {
		t.Error("sync event decoded as swap")
	}
	if _, _, err := DecodePairSwap([]byte{9}); err == nil {
		t.Error("unknown tag should error")
	}
	if _, _, err := DecodePairSwap(nil); err == nil {
		t.Error("empty payload should error")
	}
}

func TestSwapDirection(t *testing.T) {
	token0, token1 := acct(0x10), acct(0x20)

	cases := []struct {
		name                     string
		a0in, a1in, a0out, a1out uint64
		wantIn, wantOut          chain.AccountID
		wantOK                   bool
	}{
		{"token0 in", 100, 0, 0, 42, token0, token1, true},
		{"token1 in", 0, 100, 42, 0, token1, token0, true},
		{"both inputs zero", 0, 0, 0, 42, chain.AccountID{}, chain.AccountID{}, false},
		{"both inputs set", 100, 100, 0, 42, chain.AccountID{}, chain.AccountID{}, false},
		{"output on wrong side", 100, 0, 42, 0, chain.AccountID{}, chain.AccountID{}, false},
		{"no output", 100, 0, 0, 0, chain.AccountID{}, chain.AccountID{}, false},
	}
	for _, tc := range cases {
		swap, isSwap, err := DecodePairSwap(swapPayload(tc.a0in, tc.a1in, tc.a0out, tc.a1out))
		if err != nil || !isSwap {
			t.Fatalf("%s: decode failed: %v", tc.name, err)
		}
		in, out, ok := swap.Direction(token0, token1)
		if ok != tc.wantOK {
			t.Errorf("%s: ok = %v, want %v", tc.name, ok, tc.wantOK)
			continue
		}
		if ok && (in != tc.wantIn || out != tc.wantOut) {
			t.Errorf("%s: direction = (%s, %s)", tc.name, in, out)
		}
	}
}

func testIndexer(pools []tradedb.Pool) *Indexer {
	ix := &Indexer{
		log:         logging.GetDefault().Component("dexindexer"),
		knownPools:  make(map[chain.AccountID]tradedb.Pool),
		knownTokens: make(map[chain.AccountID]bool),
	}
	for _, p := range pools {
		ix.knownPools[p.Address] = p
	}
	return ix
}

func emittedEvent(contract chain.AccountID, block, eventIndex, extrinsic uint32, data []byte) eventdb.Event {
	return eventdb.Event{
		Contract:       contract,
		BlockNum:       block,
		EventIndex:     eventIndex,
		ExtrinsicIndex: extrinsic,
		Type:           eventdb.TypeEmitted,
		Data:           data,
	}
}

func calledEvent(contract, caller chain.AccountID, block, eventIndex, extrinsic uint32) eventdb.Event {
	return eventdb.Event{
		Contract:       contract,
		BlockNum:       block,
		EventIndex:     eventIndex,
		ExtrinsicIndex: extrinsic,
		Type:           eventdb.TypeCalled,
		Caller:         &caller,
	}
}

func TestDeriveTrades(t *testing.T) {
	pool := tradedb.Pool{Address: acct(0xf0), Token0: acct(0x10), Token1: acct(0x20)}
	ix := testIndexer([]tradedb.Pool{pool})
	caller := acct(0x01)

	events := []eventdb.Event{
		emittedEvent(pool.Address, 7, 0, 3, swapPayload(100, 0, 0, 42)),
		calledEvent(pool.Address, caller, 7, 1, 3),
	}
	trades := ix.deriveTrades(events)
	if len(trades) != 1 {
		t.Fatalf("got %d trades, want 1", len(trades))
	}
	tr := trades[0]
	if tr.Origin != caller {
		t.Errorf("origin = %s, want the extrinsic's caller", tr.Origin)
	}
	if tr.TokenIn != pool.Token0 || tr.TokenOut != pool.Token1 {
		t.Errorf("direction = (%s, %s)", tr.TokenIn, tr.TokenOut)
	}
	if tr.AmountIn.String() != "100" || tr.AmountOut.String() != "42" {
		t.Errorf("amounts = (%s, %s)", tr.AmountIn, tr.AmountOut)
	}
	if tr.EventIndex != 0 || tr.ExtrinsicIndex != 3 {
		t.Errorf("position = (%d, %d)", tr.EventIndex, tr.ExtrinsicIndex)
	}
}

func TestDeriveTradesIgnoresGroupsWithoutCaller(t *testing.T) {
	pool := tradedb.Pool{Address: acct(0xf0), Token0: acct(0x10), Token1: acct(0x20)}
	ix := testIndexer([]tradedb.Pool{pool})

	events := []eventdb.Event{
		emittedEvent(pool.Address, 7, 0, 3, swapPayload(100, 0, 0, 42)),
	}
	if trades := ix.deriveTrades(events); len(trades) != 0 {
		t.Fatalf("got %d trades, want 0 (no terminal called event)", len(trades))
	}
}

func TestDeriveTradesIgnoresUnknownContracts(t *testing.T) {
	pool := tradedb.Pool{Address: acct(0xf0), Token0: acct(0x10), Token1: acct(0x20)}
	ix := testIndexer([]tradedb.Pool{pool})
	caller := acct(0x01)

	events := []eventdb.Event{
		emittedEvent(acct(0xee), 7, 0, 3, swapPayload(100, 0, 0, 42)),
		calledEvent(acct(0xee), caller, 7, 1, 3),
	}
	if trades := ix.deriveTrades(events); len(trades) != 0 {
		t.Fatalf("got %d trades, want 0 (emitter is not a pool)", len(trades))
	}
}

func TestDeriveTradesSkipsInvalidSwap(t *testing.T) {
	pool := tradedb.Pool{Address: acct(0xf0), Token0: acct(0x10), Token1: acct(0x20)}
	ix := testIndexer([]tradedb.Pool{pool})
	caller := acct(0x01)

	events := []eventdb.Event{
		emittedEvent(pool.Address, 7, 0, 3, swapPayload(0, 0, 0, 42)),
		calledEvent(pool.Address, caller, 7, 1, 3),
	}
	if trades := ix.deriveTrades(events); len(trades) != 0 {
		t.Fatalf("got %d trades, want 0 (invalid swap)", len(trades))
	}
}

// The event-service client pages on truncation: the partial last block is
// re-requested until the response is complete.
func TestEventServicePaging(t *testing.T) {
	contract := acct(0x42)
	requests := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/events" {
			http.NotFound(w, r)
			return
		}
		requests++
		start, _ := strconv.Atoi(r.URL.Query().Get("block_start"))
		w.Header().Set("Content-Type", "application/json")
		switch start {
		case 490:
			// Truncated mid-block-500.
			w.Write([]byte(`{"data":[
				{"contract_account_id":"` + contract.String() + `","block_num":499,"event_index":0,"extrinsic_index":0,"event_type":"emitted","data":"01"},
				{"contract_account_id":"` + contract.String() + `","block_num":500,"event_index":0,"extrinsic_index":0,"event_type":"emitted","data":"02"}
			],"is_complete":false}`))
		case 500:
			w.Write([]byte(`{"data":[
				{"contract_account_id":"` + contract.String() + `","block_num":500,"event_index":0,"extrinsic_index":0,"event_type":"emitted","data":"02"},
				{"contract_account_id":"` + contract.String() + `","block_num":500,"event_index":1,"extrinsic_index":1,"event_type":"emitted","data":"03"}
			],"is_complete":true}`))
		default:
			t.Errorf("unexpected block_start %d", start)
			w.Write([]byte(`{"data":[],"is_complete":true}`))
		}
	}))
	defer server.Close()

	client := NewHTTPEventService(server.URL)
	events, err := client.EventsRange(490, 510)
	if err != nil {
		t.Fatalf("EventsRange() error = %v", err)
	}
	if requests != 2 {
		t.Errorf("requests = %d, want 2", requests)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[0].BlockNum != 499 || events[1].BlockNum != 500 || events[2].EventIndex != 1 {
		t.Errorf("unexpected event sequence: %+v", events)
	}
}

func TestEventServiceStatusFieldNames(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"min_block": 10, "max_block": 20}`))
	}))
	defer server.Close()

	client := NewHTTPEventService(server.URL)
	from, to, err := client.Status()
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	if from != 10 || to != 20 {
		t.Errorf("status = (%d, %d), want (10, 20)", from, to)
	}
}
