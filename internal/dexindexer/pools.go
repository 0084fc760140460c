package dexindexer

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/internal/tradedb"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// RouterAddress is the AMM router contract on mainnet.
const RouterAddress = "5DRnWewtFkLtuKT6pD7QVto4fXSEjoGvX6pccjVpdCpaz2EV"

// pairsPrefixHex is the 4-byte storage prefix of the router's pairs
// mapping.
const pairsPrefixHex = "e3d42e90"

// PoolSource fetches the current pool set and token metadata from chain
// state.
type PoolSource interface {
	PoolsAt(num uint32) ([]tradedb.Pool, error)
	TokenInfo(addr chain.AccountID) (tradedb.Token, error)
}

// ChainPoolSource derives pools from the router contract's storage.
type ChainPoolSource struct {
	client *chain.Client
	router chain.AccountID
}

// NewChainPoolSource wraps a chain client for the given router contract.
func NewChainPoolSource(client *chain.Client, router chain.AccountID) *ChainPoolSource {
	return &ChainPoolSource{client: client, router: router}
}

// PoolsAt reads the router's pairs mapping at the given block and derives
// one Pool per pair from the pair contract's root storage cell.
func (ps *ChainPoolSource) PoolsAt(num uint32) ([]tradedb.Pool, error) {
	hash, found, err := ps.client.BlockHash(num)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("block %d not found", num)
	}

	info, err := ps.client.ContractInfoOf(ps.router)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("router %s is not a contract", ps.router)
	}
	storage, err := ps.client.ContractStorageFromTrieID(info.TrieID, true, &hash)
	if err != nil {
		return nil, err
	}
	addresses, err := poolAddresses(storage)
	if err != nil {
		return nil, err
	}

	pools := make([]tradedb.Pool, 0, len(addresses))
	for _, addr := range addresses {
		pool, err := ps.poolAt(addr, &hash)
		if err != nil {
			return nil, fmt.Errorf("pool %s: %w", addr, err)
		}
		pools = append(pools, *pool)
	}
	return pools, nil
}

// poolAddresses extracts the distinct pair contract addresses from the
// router's pairs mapping.
func poolAddresses(storage chain.ContractStorage) ([]chain.AccountID, error) {
	prefix, _ := hex.DecodeString(pairsPrefixHex)
	seen := make(map[chain.AccountID]bool)
	for key, value := range storage {
		if !bytes.HasPrefix([]byte(key), prefix) {
			continue
		}
		// Value is (pair address, fee).
		if len(value) < 32 {
			return nil, fmt.Errorf("pairs entry value too short: %d bytes", len(value))
		}
		addr, err := chain.AccountIDFromBytes(value[:32])
		if err != nil {
			return nil, err
		}
		seen[addr] = true
	}
	addresses := make([]chain.AccountID, 0, len(seen))
	for addr := range seen {
		addresses = append(addresses, addr)
	}
	sort.Slice(addresses, func(i, j int) bool { return addresses[i].Less(addresses[j]) })
	return addresses, nil
}

// poolAt decodes the pair contract's root cell: the PSP-22 supply block
// followed by the pair data (factory, tokens, reserves, cumulative prices,
// fee).
func (ps *ChainPoolSource) poolAt(addr chain.AccountID, at *chain.Hash) (*tradedb.Pool, error) {
	info, err := ps.client.ContractInfoOf(addr)
	if err != nil {
		return nil, err
	}
	if info == nil {
		return nil, fmt.Errorf("not a contract")
	}
	raw, err := ps.client.ContractRootCell(info.TrieID, at)
	if err != nil {
		return nil, err
	}
	if raw == nil {
		return nil, fmt.Errorf("no root storage cell")
	}
	return decodePairRootCell(addr, raw)
}

func decodePairRootCell(addr chain.AccountID, raw []byte) (*tradedb.Pool, error) {
	dec := scale.NewDecoder(bytes.NewReader(raw))

	readU128 := func(what string) (u128.Amount, error) {
		var b [16]byte
		if err := dec.Decode(&b); err != nil {
			return u128.Amount{}, fmt.Errorf("%s: %w", what, err)
		}
		return u128.FromLE(b[:])
	}
	readAccount := func(what string) (chain.AccountID, error) {
		var b [32]byte
		if err := dec.Decode(&b); err != nil {
			return chain.AccountID{}, fmt.Errorf("%s: %w", what, err)
		}
		return chain.AccountID(b), nil
	}

	// psp22 data: total_supply.
	if _, err := readU128("total supply"); err != nil {
		return nil, err
	}
	// pair data.
	if _, err := readAccount("factory"); err != nil {
		return nil, err
	}
	token0, err := readAccount("token_0")
	if err != nil {
		return nil, err
	}
	token1, err := readAccount("token_1")
	if err != nil {
		return nil, err
	}
	reserve0, err := readU128("reserve_0")
	if err != nil {
		return nil, err
	}
	reserve1, err := readU128("reserve_1")
	if err != nil {
		return nil, err
	}
	var blockTimestampLast uint32
	if err := dec.Decode(&blockTimestampLast); err != nil {
		return nil, fmt.Errorf("block timestamp: %w", err)
	}
	// Cumulative prices are U256 values.
	var cumulative [32]byte
	if err := dec.Decode(&cumulative); err != nil {
		return nil, fmt.Errorf("price_0_cumulative: %w", err)
	}
	if err := dec.Decode(&cumulative); err != nil {
		return nil, fmt.Errorf("price_1_cumulative: %w", err)
	}
	// k_last: Option<U256>.
	kTag, err := dec.ReadOneByte()
	if err != nil {
		return nil, fmt.Errorf("k_last tag: %w", err)
	}
	if kTag != 0 {
		if err := dec.Decode(&cumulative); err != nil {
			return nil, fmt.Errorf("k_last: %w", err)
		}
	}
	var fee uint8
	if err := dec.Decode(&fee); err != nil {
		return nil, fmt.Errorf("fee: %w", err)
	}

	return &tradedb.Pool{
		Address:  addr,
		Token0:   token0,
		Token1:   token1,
		Reserve0: reserve0,
		Reserve1: reserve1,
		Fee:      fee,
	}, nil
}

// TokenInfo reads PSP-22 metadata with dry calls, tolerating individual
// field failures.
func (ps *ChainPoolSource) TokenInfo(addr chain.AccountID) (tradedb.Token, error) {
	token := tradedb.Token{Address: addr}
	if name, err := ps.client.PSP22Name(addr, nil); err == nil {
		token.Name = name
	}
	if symbol, err := ps.client.PSP22Symbol(addr, nil); err == nil {
		token.Symbol = symbol
	}
	if decimals, err := ps.client.PSP22Decimals(addr, nil); err == nil {
		token.Decimals = decimals
	}
	return token, nil
}
