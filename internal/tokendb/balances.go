package tokendb

import (
	"strings"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// DefaultBalancePrefixes are the known 4-byte storage prefixes of PSP-22
// balances mappings across circulating contract code. Deployments may add
// prefixes through configuration.
var DefaultBalancePrefixes = []string{"3b8d451d", "e4aae541", "264866c2", "d446c745"}

const (
	balanceKeyLen   = 36
	balanceValueLen = 16
	prefixLen       = 4
)

// HoldersFromStorage decodes holder balances from a contract's child-trie
// entries (storage-hash prefix already stripped). Only entries with
// 36-byte keys and 16-byte values are considered; the first configured
// prefix observed among them selects the balances mapping. The key's tail
// is the holder account and the value is a little-endian u128 balance;
// zero balances are dropped.
func HoldersFromStorage(storage chain.ContractStorage, prefixes [][]byte) map[chain.AccountID]u128.Amount {
	candidates := make(map[string][]byte)
	observed := make(map[string]bool)
	for key, value := range storage {
		if len(key) != balanceKeyLen || len(value) != balanceValueLen {
			continue
		}
		candidates[key] = value
		observed[key[:prefixLen]] = true
	}
	if len(candidates) == 0 {
		return map[chain.AccountID]u128.Amount{}
	}

	for _, prefix := range prefixes {
		if !observed[string(prefix)] {
			continue
		}
		holders := make(map[chain.AccountID]u128.Amount)
		for key, value := range candidates {
			if !strings.HasPrefix(key, string(prefix)) {
				continue
			}
			account, err := chain.AccountIDFromBytes([]byte(key[prefixLen:]))
			if err != nil {
				continue
			}
			balance, err := u128.FromLE(value)
			if err != nil || balance.IsZero() {
				continue
			}
			holders[account] = balance
		}
		return holders
	}
	return map[chain.AccountID]u128.Amount{}
}
