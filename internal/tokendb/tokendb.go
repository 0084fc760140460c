// Package tokendb maintains per-contract PSP-22 snapshots: total supply,
// metadata and holder balances, fingerprinted by the contract's child-trie
// storage root.
package tokendb

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// ContractKind classifies tracked contracts.
type ContractKind string

const (
	// KindPSP22 marks contracts answering the PSP-22 interface.
	KindPSP22 ContractKind = "psp22"
	// KindOther marks every other contract.
	KindOther ContractKind = "other"
)

// TokenMetadata is the PSP-22 metadata triple. Missing fields read as nil.
type TokenMetadata struct {
	Name     *string `json:"name"`
	Symbol   *string `json:"symbol"`
	Decimals uint8   `json:"decimals"`
}

// PSP22State is the token-specific part of a snapshot.
type PSP22State struct {
	TotalSupply u128.Amount                     `json:"total_supply"`
	Metadata    *TokenMetadata                  `json:"metadata"`
	Holders     map[chain.AccountID]u128.Amount `json:"holders"`
}

// HexBytes is a byte blob serialized as a hex string.
type HexBytes []byte

// MarshalJSON encodes as hex.
func (h HexBytes) MarshalJSON() ([]byte, error) {
	return []byte(`"` + hex.EncodeToString(h) + `"`), nil
}

// UnmarshalJSON decodes hex.
func (h *HexBytes) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	decoded, err := hex.DecodeString(s)
	if err != nil {
		return err
	}
	*h = decoded
	return nil
}

// ContractRecord is one contract's snapshot. RootHash is the child-trie
// state root observed when the snapshot was taken; an unchanged root means
// holders and metadata are still valid.
type ContractRecord struct {
	Address  chain.AccountID `json:"address"`
	RootHash HexBytes        `json:"root_hash"`
	CodeHash HexBytes        `json:"code_hash"`
	Kind     ContractKind    `json:"kind"`
	PSP22    *PSP22State     `json:"psp22,omitempty"`
}

// DB is the in-memory snapshot map. The tracker is the sole writer;
// HTTP queries and the periodic checkpoint read concurrently.
type DB struct {
	mu        sync.RWMutex
	contracts map[chain.AccountID]*ContractRecord
}

// NewDB returns an empty database.
func NewDB() *DB {
	return &DB{contracts: make(map[chain.AccountID]*ContractRecord)}
}

// FromDisk loads a checkpoint, falling back to an empty database when the
// file is absent or unreadable.
func FromDisk(path string) (*DB, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return NewDB(), err
	}
	var contracts map[chain.AccountID]*ContractRecord
	if err := json.Unmarshal(data, &contracts); err != nil {
		return NewDB(), err
	}
	if contracts == nil {
		contracts = make(map[chain.AccountID]*ContractRecord)
	}
	return &DB{contracts: contracts}, nil
}

// WriteToDisk checkpoints the snapshot map: write to a temp file in the
// same directory, then rename over the target.
func (db *DB) WriteToDisk(path string) error {
	db.mu.RLock()
	data, err := json.Marshal(db.contracts)
	db.mu.RUnlock()
	if err != nil {
		return fmt.Errorf("serialize token db: %w", err)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return fmt.Errorf("create checkpoint temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write checkpoint: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close checkpoint: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("install checkpoint: %w", err)
	}
	return nil
}

// Get returns the contract's snapshot, if any.
func (db *DB) Get(addr chain.AccountID) (*ContractRecord, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	rec, ok := db.contracts[addr]
	return rec, ok
}

// Put installs a snapshot.
func (db *DB) Put(rec *ContractRecord) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.contracts[rec.Address] = rec
}

// Len returns the number of tracked contracts.
func (db *DB) Len() int {
	db.mu.RLock()
	defer db.mu.RUnlock()
	return len(db.contracts)
}

const (
	maxSymbolLen           = 16
	maxNameLen             = 32
	maxTokensInSummary     = 100
	maxHoldersInDetails    = 100
	unknownMetadataDisplay = "UNKNOWN"
)

// TokenSummary is one token's display row.
type TokenSummary struct {
	Address          chain.AccountID `json:"address"`
	TotalSupplyHuman string          `json:"total_supply_human"`
	TotalHolders     uint32          `json:"total_holders"`
	Decimals         uint8           `json:"decimals"`
	Name             string          `json:"name"`
	Symbol           string          `json:"symbol"`
}

// Summary is the database-wide overview: contract counts and the largest
// tokens by holder count.
type Summary struct {
	TotalContracts uint32         `json:"total_contracts"`
	TotalPSP22     uint32         `json:"total_psp22"`
	Tokens         []TokenSummary `json:"tokens"`
	Network        string         `json:"network"`
}

// Holder is one balance row of a token's holder list.
type Holder struct {
	Address     chain.AccountID `json:"holder_address"`
	Amount      u128.Amount     `json:"amount"`
	AmountHuman string          `json:"amount_human"`
	Percentage  string          `json:"percentage"`
}

// TokenHolding is one row of an account's cross-token holdings.
type TokenHolding struct {
	TokenAddress chain.AccountID `json:"token_address"`
	TokenSymbol  string          `json:"token_symbol"`
	AmountHuman  string          `json:"amount_human"`
}

// AccountDetails describes one account: its contract snapshot (when it is
// a tracked contract) and its holdings across tracked tokens.
type AccountDetails struct {
	Address  chain.AccountID `json:"address"`
	Kind     ContractKind    `json:"kind,omitempty"`
	Token    *TokenSummary   `json:"token,omitempty"`
	Holders  []Holder        `json:"holders,omitempty"`
	Holdings []TokenHolding  `json:"holdings"`
}

func (p *PSP22State) displaySymbol() string {
	symbol := unknownMetadataDisplay
	if p.Metadata != nil && p.Metadata.Symbol != nil {
		symbol = *p.Metadata.Symbol
	}
	if len(symbol) > maxSymbolLen {
		symbol = symbol[:maxSymbolLen]
	}
	return symbol
}

func (p *PSP22State) displayName() string {
	name := unknownMetadataDisplay
	if p.Metadata != nil && p.Metadata.Name != nil {
		name = *p.Metadata.Name
	}
	if len(name) > maxNameLen {
		name = name[:maxNameLen]
	}
	return name
}

func (p *PSP22State) decimals() uint8 {
	if p.Metadata == nil {
		return 0
	}
	return p.Metadata.Decimals
}

func (p *PSP22State) humanAmount(a u128.Amount) string {
	return fmt.Sprintf("%.3f", a.Human(p.decimals()))
}

func (p *PSP22State) summary(addr chain.AccountID) TokenSummary {
	return TokenSummary{
		Address:          addr,
		TotalSupplyHuman: p.humanAmount(p.TotalSupply),
		TotalHolders:     uint32(len(p.Holders)),
		Decimals:         p.decimals(),
		Name:             p.displayName(),
		Symbol:           p.displaySymbol(),
	}
}

// Summary builds the database overview.
func (db *DB) Summary(network string) Summary {
	db.mu.RLock()
	defer db.mu.RUnlock()

	summary := Summary{
		TotalContracts: uint32(len(db.contracts)),
		Network:        network,
	}
	for addr, rec := range db.contracts {
		if rec.Kind != KindPSP22 || rec.PSP22 == nil {
			continue
		}
		summary.TotalPSP22++
		summary.Tokens = append(summary.Tokens, rec.PSP22.summary(addr))
	}
	sort.Slice(summary.Tokens, func(i, j int) bool {
		return summary.Tokens[i].TotalHolders > summary.Tokens[j].TotalHolders
	})
	if len(summary.Tokens) > maxTokensInSummary {
		summary.Tokens = summary.Tokens[:maxTokensInSummary]
	}
	return summary
}

// AccountDetails describes the account's contract snapshot and holdings.
func (db *DB) AccountDetails(addr chain.AccountID) AccountDetails {
	db.mu.RLock()
	defer db.mu.RUnlock()

	details := AccountDetails{Address: addr, Holdings: db.holdings(addr)}
	rec, ok := db.contracts[addr]
	if !ok {
		return details
	}
	details.Kind = rec.Kind
	if rec.Kind != KindPSP22 || rec.PSP22 == nil {
		return details
	}

	psp22 := rec.PSP22
	tokenSummary := psp22.summary(addr)
	details.Token = &tokenSummary
	supply := psp22.TotalSupply.Human(0) + 1e-9
	for holder, amount := range psp22.Holders {
		details.Holders = append(details.Holders, Holder{
			Address:     holder,
			Amount:      amount,
			AmountHuman: psp22.humanAmount(amount),
			Percentage:  fmt.Sprintf("%.3f%%", amount.Human(0)/supply*100),
		})
	}
	sort.Slice(details.Holders, func(i, j int) bool {
		return details.Holders[i].Amount.Cmp(details.Holders[j].Amount) > 0
	})
	if len(details.Holders) > maxHoldersInDetails {
		details.Holders = details.Holders[:maxHoldersInDetails]
	}
	return details
}

func (db *DB) holdings(user chain.AccountID) []TokenHolding {
	holdings := []TokenHolding{}
	for contract, rec := range db.contracts {
		if rec.Kind != KindPSP22 || rec.PSP22 == nil {
			continue
		}
		balance, ok := rec.PSP22.Holders[user]
		if !ok || balance.IsZero() {
			continue
		}
		holdings = append(holdings, TokenHolding{
			TokenAddress: contract,
			TokenSymbol:  rec.PSP22.displaySymbol(),
			AmountHuman:  rec.PSP22.humanAmount(balance),
		})
	}
	sort.Slice(holdings, func(i, j int) bool {
		return holdings[i].TokenAddress.Less(holdings[j].TokenAddress)
	})
	return holdings
}
