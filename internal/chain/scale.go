package chain

import (
	"bytes"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"

	"github.com/azero-tools/azero-indexer/pkg/u128"
)

func decodeU128(dec *scale.Decoder) (u128.Amount, error) {
	var v types.U128
	if err := dec.Decode(&v); err != nil {
		return u128.Amount{}, err
	}
	return u128.FromBig(v.Int)
}

// decodeContractInfoCurrent reads the present layout: trie id, code hash,
// storage counters.
func decodeContractInfoCurrent(raw []byte) (*ContractInfo, error) {
	dec := scale.NewDecoder(bytes.NewReader(raw))
	var trieID []byte
	if err := dec.Decode(&trieID); err != nil {
		return nil, fmt.Errorf("trie id: %w", err)
	}
	var codeHash types.H256
	if err := dec.Decode(&codeHash); err != nil {
		return nil, fmt.Errorf("code hash: %w", err)
	}
	var storageBytes, storageItems uint32
	if err := dec.Decode(&storageBytes); err != nil {
		return nil, fmt.Errorf("storage bytes: %w", err)
	}
	if err := dec.Decode(&storageItems); err != nil {
		return nil, fmt.Errorf("storage items: %w", err)
	}
	return &ContractInfo{TrieID: trieID, CodeHash: Hash(codeHash)}, nil
}

// decodeContractInfoDepositAccount reads the earlier layout that carried a
// deposit account between the trie id and the code hash.
func decodeContractInfoDepositAccount(raw []byte) (*ContractInfo, error) {
	dec := scale.NewDecoder(bytes.NewReader(raw))
	var trieID []byte
	if err := dec.Decode(&trieID); err != nil {
		return nil, fmt.Errorf("trie id: %w", err)
	}
	var depositAccount [32]byte
	if err := dec.Decode(&depositAccount); err != nil {
		return nil, fmt.Errorf("deposit account: %w", err)
	}
	var codeHash types.H256
	if err := dec.Decode(&codeHash); err != nil {
		return nil, fmt.Errorf("code hash: %w", err)
	}
	return &ContractInfo{TrieID: trieID, CodeHash: Hash(codeHash)}, nil
}
