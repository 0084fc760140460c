package chain

import (
	"encoding/hex"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// childStoragePrefix is the literal prefix under which a contract's child
// trie root lives in the main trie.
const childStoragePrefix = ":child_storage:default:"

// childStorageBatch is the page size used for child-trie key enumeration.
const childStorageBatch = 96

// contractKeysBatch is the page size used when sweeping ContractInfoOf keys.
const contractKeysBatch = 256

// childTrieHashLen is the length of the storage-hash prefix on child-trie
// keys, stripped when callers ask for bare keys.
const childTrieHashLen = 16

// ContractStorage holds a contract's child-trie entries. Map keys are the
// raw storage keys as byte strings.
type ContractStorage map[string][]byte

// ContractInfo is the pallet-contracts bookkeeping record for one contract.
type ContractInfo struct {
	TrieID   []byte
	CodeHash Hash
}

func hexEncode(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

func hexDecode(s string) ([]byte, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	return hex.DecodeString(s)
}

func childTrieKey(trieID []byte) string {
	key := append([]byte(childStoragePrefix), trieID...)
	return hexEncode(key)
}

// ChildStorageRoot reads the contract's child-trie state root at the given
// block (nil for latest). Returns nil when the trie does not exist.
func (c *Client) ChildStorageRoot(trieID []byte, at *Hash) ([]byte, error) {
	key := types.NewStorageKey(append([]byte(childStoragePrefix), trieID...))
	api, _ := c.snapshot()
	var (
		raw *types.StorageDataRaw
		err error
	)
	if at != nil {
		raw, err = api.RPC.State.GetStorageRaw(key, types.Hash(*at))
	} else {
		raw, err = api.RPC.State.GetStorageRawLatest(key)
	}
	if err != nil {
		return nil, fmt.Errorf("get child storage root: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	return *raw, nil
}

// ContractStorageFromTrieID enumerates the contract's child trie in pages
// of 96 keys. With omitHash, the 16-byte storage-hash prefix is stripped
// from every key.
func (c *Client) ContractStorageFromTrieID(trieID []byte, omitHash bool, at *Hash) (ContractStorage, error) {
	childKey := childTrieKey(trieID)
	blockHash, err := c.storageAnchor(at)
	if err != nil {
		return nil, err
	}

	res := make(ContractStorage)
	var lastKey *string
	for {
		var keys []string
		if err := c.call(&keys, "childstate_getKeysPaged", childKey, "0x", childStorageBatch, lastKey, blockHash); err != nil {
			return nil, fmt.Errorf("childstate_getKeysPaged: %w", err)
		}
		if len(keys) == 0 {
			break
		}
		var values []string
		if err := c.call(&values, "childstate_getStorageEntries", childKey, keys, blockHash); err != nil {
			return nil, fmt.Errorf("childstate_getStorageEntries: %w", err)
		}
		if len(values) != len(keys) {
			return nil, fmt.Errorf("childstate_getStorageEntries returned %d values for %d keys", len(values), len(keys))
		}
		for i, k := range keys {
			keyBytes, err := hexDecode(k)
			if err != nil {
				return nil, fmt.Errorf("bad storage key %q: %w", k, err)
			}
			valBytes, err := hexDecode(values[i])
			if err != nil {
				return nil, fmt.Errorf("bad storage value for key %q: %w", k, err)
			}
			if omitHash {
				if len(keyBytes) < childTrieHashLen {
					continue
				}
				keyBytes = keyBytes[childTrieHashLen:]
			}
			res[string(keyBytes)] = valBytes
		}
		last := keys[len(keys)-1]
		lastKey = &last
		if len(keys) < childStorageBatch {
			break
		}
	}
	return res, nil
}

func (c *Client) storageAnchor(at *Hash) (string, error) {
	if at != nil {
		return hexEncode((*at)[:]), nil
	}
	var res *string
	if err := c.call(&res, "chain_getBlockHash"); err != nil {
		return "", fmt.Errorf("chain_getBlockHash: %w", err)
	}
	if res == nil {
		return "", fmt.Errorf("chain has no head block")
	}
	return *res, nil
}

// contractInfoDecoders are the known layouts of the ContractInfo storage
// value, newest first. The middle revision carried a deposit account
// between the trie id and the code hash.
var contractInfoDecoders = []func([]byte) (*ContractInfo, error){
	decodeContractInfoCurrent,
	decodeContractInfoDepositAccount,
}

// ContractInfoOf reads the pallet-contracts info record for one contract.
// Returns nil when the account is not a contract.
func (c *Client) ContractInfoOf(addr AccountID) (*ContractInfo, error) {
	meta := c.metadata()
	key, err := types.CreateStorageKey(meta, "Contracts", "ContractInfoOf", addr[:])
	if err != nil {
		return nil, fmt.Errorf("contract info key for %s: %w", addr, err)
	}
	api, _ := c.snapshot()
	raw, err := api.RPC.State.GetStorageRawLatest(key)
	if err != nil {
		return nil, fmt.Errorf("contract info for %s: %w", addr, err)
	}
	if raw == nil || len(*raw) == 0 {
		return nil, nil
	}
	var firstErr error
	for _, decode := range contractInfoDecoders {
		info, err := decode(*raw)
		if err == nil {
			return info, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return nil, fmt.Errorf("contract info for %s: %w", addr, firstErr)
}

// AllContractAccounts sweeps every ContractInfoOf key. The account id is
// the tail of the storage key after the two pallet/item hashes and the
// 8-byte key hash.
func (c *Client) AllContractAccounts() ([]AccountID, error) {
	meta := c.metadata()
	prefix, err := types.CreateStorageKey(meta, "Contracts", "ContractInfoOf")
	if err != nil {
		return nil, fmt.Errorf("contract info prefix: %w", err)
	}
	prefixHex := hexEncode(prefix)

	var out []AccountID
	var lastKey *string
	for {
		var keys []string
		if err := c.call(&keys, "state_getKeysPaged", prefixHex, contractKeysBatch, lastKey, nil); err != nil {
			return nil, fmt.Errorf("state_getKeysPaged: %w", err)
		}
		if len(keys) == 0 {
			break
		}
		for _, k := range keys {
			keyBytes, err := hexDecode(k)
			if err != nil {
				return nil, fmt.Errorf("bad contract key %q: %w", k, err)
			}
			if len(keyBytes) != 40+32 {
				continue
			}
			account, err := AccountIDFromBytes(keyBytes[40:])
			if err != nil {
				return nil, err
			}
			out = append(out, account)
		}
		last := keys[len(keys)-1]
		lastKey = &last
		if len(keys) < contractKeysBatch {
			break
		}
	}
	return out, nil
}
