// Package pricefeed polls external oracle endpoints for spot prices of the
// canonical tokens.
package pricefeed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/logging"
)

// Poll pacing.
const (
	symbolPause = time.Second
	roundPause  = 60 * time.Second
	errorPause  = 5 * time.Second
)

// DefaultOracles maps price symbols to their DIA quotation endpoints.
func DefaultOracles() map[string]string {
	return map[string]string{
		"AZERO": "https://api.diadata.org/v1/assetQuotation/AlephZero/0x0000000000000000000000000000000000000000",
		"BTC":   "https://api.diadata.org/v1/assetQuotation/Bitcoin/0x0000000000000000000000000000000000000000",
		"ETH":   "https://api.diadata.org/v1/assetQuotation/Ethereum/0x0000000000000000000000000000000000000000",
		"USDT":  "https://api.diadata.org/v1/assetQuotation/Ethereum/0xdAC17F958D2ee523a2206206994597C13D831ec7",
		"USDC":  "https://api.diadata.org/v1/assetQuotation/Ethereum/0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
	}
}

// Canonical wrapped-token contracts on mainnet, mapped to price symbols.
var canonicalTokens = map[string]string{
	"5CtuFVgEUz13SFPVY6s2cZrnLDEkxQXc19aXrNARwEBeCXgg": "AZERO",
	"5Et3dDcXUiThrBCot7g65k3oDSicGy4qC82cq9f911izKNtE": "USDT",
	"5FYFojNCJVFR2bBNKfAePZCa72ZcVX5yeTv8K9bzeUo8D83Z": "USDC",
	"5EoFQd36196Duo6fPTz2MWHXRzwTJcyETHyCyaB3rb61Xo2u": "ETH",
	"5EEtCdKLyyhQnNQWWWPM1fMDx1WdVuiaoR9cA6CWttgyxtuJ": "BTC",
}

// Feed caches the latest observed prices.
type Feed struct {
	urls map[string]string
	http *http.Client
	log  *logging.Logger

	mu     sync.Mutex
	prices map[string]float64
}

// New creates a feed over the given symbol-to-URL map.
func New(urls map[string]string) *Feed {
	return &Feed{
		urls:   urls,
		http:   &http.Client{Timeout: 10 * time.Second},
		log:    logging.GetDefault().Component("pricefeed"),
		prices: make(map[string]float64),
	}
}

// Run fills the cache once, then keeps polling: one second between
// symbols, a minute between rounds, a five-second pause after a failure.
func (f *Feed) Run(ctx context.Context) {
	for ctx.Err() == nil {
		for symbol, url := range f.urls {
			price, err := f.fetch(url)
			if err != nil {
				f.log.Info("Failed to update price", "symbol", symbol, "error", err)
				sleepCtx(ctx, errorPause)
				continue
			}
			f.mu.Lock()
			f.prices[symbol] = price
			f.mu.Unlock()
			sleepCtx(ctx, symbolPause)
		}
		sleepCtx(ctx, roundPause)
	}
}

func (f *Feed) fetch(url string) (float64, error) {
	resp, err := f.http.Get(url)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("oracle returned %d", resp.StatusCode)
	}
	var quote struct {
		Price *float64 `json:"Price"`
	}
	if err := json.Unmarshal(body, &quote); err != nil {
		return 0, err
	}
	if quote.Price == nil {
		return 0, fmt.Errorf("oracle response has no price")
	}
	return *quote.Price, nil
}

// Price returns the cached price for a symbol.
func (f *Feed) Price(symbol string) (float64, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	price, ok := f.prices[symbol]
	return price, ok
}

// PriceForToken returns the cached price of a canonical token contract.
func (f *Feed) PriceForToken(addr chain.AccountID) (float64, bool) {
	symbol, ok := canonicalTokens[addr.String()]
	if !ok {
		return 0, false
	}
	return f.Price(symbol)
}

func sleepCtx(ctx context.Context, d time.Duration) {
	select {
	case <-ctx.Done():
	case <-time.After(d):
	}
}
