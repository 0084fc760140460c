package api

import (
	"net/http"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/dexindexer"
	"github.com/azero-tools/azero-indexer/internal/pricefeed"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
)

// oneWeekBlocks approximates a week of one-second blocks.
const oneWeekBlocks = 7 * 24 * 3600

// checkerTradeLimit caps the checker's trade listing.
const checkerTradeLimit = 500

// DexServer serves the derived trade database and token prices.
type DexServer struct {
	*Server
	store      *tradedb.Store
	feed       *pricefeed.Feed
	startBlock uint32
}

// NewDexServer registers the dex service routes on addr.
func NewDexServer(addr string, store *tradedb.Store, feed *pricefeed.Feed, startBlock uint32) *DexServer {
	s := &DexServer{Server: NewServer(addr), store: store, feed: feed, startBlock: startBlock}
	s.Handle("GET /trades", s.handleTrades)
	s.Handle("GET /pools", s.handlePools)
	s.Handle("GET /tokens", s.handleTokens)
	s.Handle("GET /status", s.handleStatus)
	s.Handle("GET /checker/one_week_volume", s.handleOneWeekVolume)
	s.Handle("GET /checker/one_week_trades", s.handleOneWeekTrades)
	return s
}

func (s *DexServer) handleTrades(w http.ResponseWriter, r *http.Request) {
	start, err := queryUint32(r, "block_start")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	stop, err := queryUint32(r, "block_stop")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var result tradedb.QueryResult[tradedb.Trade]
	if raw := r.URL.Query().Get("contract_address"); raw != "" {
		origin, err := chain.AccountIDFromSS58(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "bad contract_address: "+err.Error())
			return
		}
		result, err = s.store.TradesByOrigin(start, stop, origin)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
			return
		}
	} else {
		result, err = s.store.TradesByRange(start, stop)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
			return
		}
	}

	multiswaps := dexindexer.TradesToMultiSwaps(result)
	if multiswaps.Data == nil {
		multiswaps.Data = []dexindexer.MultiSwap{}
	}
	writeJSON(w, http.StatusOK, multiswaps)
}

func (s *DexServer) handlePools(w http.ResponseWriter, r *http.Request) {
	pools, err := s.store.Pools()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}
	if pools == nil {
		pools = []tradedb.Pool{}
	}
	writeJSON(w, http.StatusOK, pools)
}

type tokenWithPriceJSON struct {
	tradedb.Token
	Price *float64 `json:"price"`
}

func (s *DexServer) handleTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := s.store.Tokens()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}
	out := make([]tokenWithPriceJSON, 0, len(tokens))
	for _, t := range tokens {
		entry := tokenWithPriceJSON{Token: t}
		if price, ok := s.feed.PriceForToken(t.Address); ok {
			entry.Price = &price
		}
		out = append(out, entry)
	}
	writeJSON(w, http.StatusOK, out)
}

type dexStatusJSON struct {
	IndexedFrom uint32 `json:"indexed_from"`
	IndexedTill uint32 `json:"indexed_till"`
}

func (s *DexServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	till, err := s.store.IndexedTill()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, dexStatusJSON{IndexedFrom: s.startBlock, IndexedTill: till})
}

// weekWindow is the checker's block range: the last week of indexed
// blocks, clipped to the watermark's start.
func (s *DexServer) weekWindow() (uint32, error) {
	till, err := s.store.IndexedTill()
	if err != nil {
		return 0, err
	}
	from := s.startBlock
	if till > oneWeekBlocks && till-oneWeekBlocks > from {
		from = till - oneWeekBlocks
	}
	return from, nil
}

func (s *DexServer) checkerAccount(w http.ResponseWriter, r *http.Request) (chain.AccountID, bool) {
	account, err := chain.AccountIDFromSS58(r.URL.Query().Get("account"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "bad account: "+err.Error())
		return chain.AccountID{}, false
	}
	return account, true
}

// handleOneWeekVolume sums the account's inbound trade amounts over the
// last week, in USD where a canonical price is known.
func (s *DexServer) handleOneWeekVolume(w http.ResponseWriter, r *http.Request) {
	account, ok := s.checkerAccount(w, r)
	if !ok {
		return
	}
	from, err := s.weekWindow()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}
	trades, err := s.store.RecentTradesByOrigin(account, from, 0x7fffffff)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}

	decimals := s.tokenDecimals()
	volume := 0.0
	for _, t := range trades {
		price, ok := s.feed.PriceForToken(t.TokenIn)
		if !ok {
			continue
		}
		volume += t.AmountIn.Human(decimals[t.TokenIn]) * price
	}
	writeJSON(w, http.StatusOK, volume)
}

// tradeDisplayJSON is the checker's human-readable trade row.
type tradeDisplayJSON struct {
	Pool           chain.AccountID `json:"pool"`
	TokenIn        chain.AccountID `json:"token_in"`
	TokenOut       chain.AccountID `json:"token_out"`
	TokenInSymbol  string          `json:"token_in_symbol"`
	TokenOutSymbol string          `json:"token_out_symbol"`
	AmountIn       string          `json:"amount_in"`
	AmountOut      string          `json:"amount_out"`
	BlockNum       uint32          `json:"block_num"`
	ExtrinsicIndex uint32          `json:"extrinsic_index"`
}

func (s *DexServer) handleOneWeekTrades(w http.ResponseWriter, r *http.Request) {
	account, ok := s.checkerAccount(w, r)
	if !ok {
		return
	}
	from, err := s.weekWindow()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}
	trades, err := s.store.RecentTradesByOrigin(account, from, checkerTradeLimit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal server error: "+err.Error())
		return
	}

	symbols := s.tokenSymbols()
	out := make([]tradeDisplayJSON, 0, len(trades))
	for _, t := range trades {
		out = append(out, tradeDisplayJSON{
			Pool:           t.Pool,
			TokenIn:        t.TokenIn,
			TokenOut:       t.TokenOut,
			TokenInSymbol:  symbols[t.TokenIn],
			TokenOutSymbol: symbols[t.TokenOut],
			AmountIn:       t.AmountIn.String(),
			AmountOut:      t.AmountOut.String(),
			BlockNum:       t.BlockNum,
			ExtrinsicIndex: t.ExtrinsicIndex,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *DexServer) tokenDecimals() map[chain.AccountID]uint8 {
	out := make(map[chain.AccountID]uint8)
	tokens, err := s.store.Tokens()
	if err != nil {
		return out
	}
	for _, t := range tokens {
		out[t.Address] = t.Decimals
	}
	return out
}

func (s *DexServer) tokenSymbols() map[chain.AccountID]string {
	out := make(map[chain.AccountID]string)
	tokens, err := s.store.Tokens()
	if err != nil {
		return out
	}
	for _, t := range tokens {
		if t.Symbol != nil {
			out[t.Address] = *t.Symbol
		}
	}
	return out
}
