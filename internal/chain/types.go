// Package chain provides read access to an Aleph Zero node over its
// WebSocket RPC: block lookups, contract events, contract info, child-trie
// storage and dry-run contract calls.
package chain

import (
	"bytes"
	"fmt"

	"github.com/azero-tools/azero-indexer/pkg/ss58"
)

// WSAzeroMainnet is the default mainnet endpoint.
const WSAzeroMainnet = "wss://ws.azero.dev:443"

// WSAzeroTestnet is the default testnet endpoint.
const WSAzeroTestnet = "wss://ws.test.azero.dev:443"

// Alice is the well-known development account, used as the origin for
// dry-run reads.
const Alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

// BlockNumber identifies a finalized block.
type BlockNumber = uint32

// Hash is a 32-byte block or code hash.
type Hash = [32]byte

// AccountID is a 32-byte account identifier. Its string form is SS58.
type AccountID [32]byte

// MustAccountIDFromSS58 parses an SS58 address and panics on failure.
// For addresses fixed at compile time.
func MustAccountIDFromSS58(addr string) AccountID {
	a, err := AccountIDFromSS58(addr)
	if err != nil {
		panic(err)
	}
	return a
}

// AccountIDFromSS58 parses an SS58 address.
func AccountIDFromSS58(addr string) (AccountID, error) {
	pubkey, _, err := ss58.Decode(addr)
	if err != nil {
		return AccountID{}, err
	}
	return AccountID(pubkey), nil
}

// AccountIDFromBytes converts a 32-byte slice.
func AccountIDFromBytes(b []byte) (AccountID, error) {
	var a AccountID
	if len(b) != len(a) {
		return a, fmt.Errorf("account id must be %d bytes, got %d", len(a), len(b))
	}
	copy(a[:], b)
	return a, nil
}

// String renders the account as an SS58 address.
func (a AccountID) String() string {
	return ss58.Encode(a, ss58.Prefix)
}

// Less orders accounts lexicographically by raw bytes.
func (a AccountID) Less(b AccountID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

// MarshalJSON encodes the account as its SS58 address.
func (a AccountID) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes an SS58 address.
func (a *AccountID) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("account id must be a JSON string, got %s", b)
	}
	parsed, err := AccountIDFromSS58(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// MarshalText encodes the account as its SS58 address, so it can key JSON
// maps.
func (a AccountID) MarshalText() ([]byte, error) {
	return []byte(a.String()), nil
}

// UnmarshalText decodes an SS58 address.
func (a *AccountID) UnmarshalText(b []byte) error {
	parsed, err := AccountIDFromSS58(string(b))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}

// AliceAccount returns the dry-run origin account.
func AliceAccount() AccountID {
	return MustAccountIDFromSS58(Alice)
}
