package chain

import (
	"fmt"

	"golang.org/x/crypto/blake2b"
)

// rootCellKey is the ink! root storage cell's raw key.
var rootCellKey = []byte{0, 0, 0, 0}

// hashedChildKey prefixes a raw child-trie key with its 16-byte blake2
// hash, matching how the runtime stores contract keys.
func hashedChildKey(raw []byte) []byte {
	h, _ := blake2b.New(childTrieHashLen, nil)
	h.Write(raw)
	return append(h.Sum(nil), raw...)
}

// ContractRootCell reads the contract's root storage cell (key 0x00000000)
// without enumerating the trie. Returns nil when the cell is absent.
func (c *Client) ContractRootCell(trieID []byte, at *Hash) ([]byte, error) {
	childKey := childTrieKey(trieID)
	blockHash, err := c.storageAnchor(at)
	if err != nil {
		return nil, err
	}
	var res *string
	if err := c.call(&res, "childstate_getStorage", childKey, hexEncode(hashedChildKey(rootCellKey)), blockHash); err != nil {
		return nil, fmt.Errorf("childstate_getStorage: %w", err)
	}
	if res == nil {
		return nil, nil
	}
	return hexDecode(*res)
}
