package chain

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"

	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// PSP-22 message selectors.
var (
	selTotalSupply   = []byte{0x16, 0x2d, 0xf8, 0xc2}
	selBalanceOf     = []byte{0x65, 0x68, 0x38, 0x2f}
	selTokenName     = []byte{0x3d, 0x26, 0x1b, 0xd4}
	selTokenSymbol   = []byte{0x34, 0x20, 0x5b, 0xe5}
	selTokenDecimals = []byte{0x72, 0x71, 0xb7, 0x82}
)

var errBadReturnData = errors.New("malformed contract return data")

// unwrapLangResult strips the ink! Result<_, LangError> wrapper when
// present. Older contracts return the bare value; the caller's decoder
// decides by length, so both encodings are passed through.
func unwrapLangResult(data []byte, bareLen int) ([]byte, error) {
	if len(data) == bareLen {
		return data, nil
	}
	if len(data) == bareLen+1 && data[0] == 0 {
		return data[1:], nil
	}
	if len(data) > 0 && data[0] == 0 {
		return data[1:], nil
	}
	return nil, errBadReturnData
}

// PSP22TotalSupply dry-calls total_supply. ErrContractDispatch means the
// account does not answer PSP-22.
func (c *Client) PSP22TotalSupply(addr AccountID, at *Hash) (u128.Amount, error) {
	data, err := c.ContractCall(addr, selTotalSupply, at)
	if err != nil {
		return u128.Amount{}, err
	}
	payload, err := unwrapLangResult(data, 16)
	if err != nil {
		return u128.Amount{}, fmt.Errorf("total_supply: %w", err)
	}
	if len(payload) != 16 {
		return u128.Amount{}, fmt.Errorf("total_supply: %w", errBadReturnData)
	}
	return u128.FromLE(payload)
}

// PSP22BalanceOf dry-calls balance_of for one owner.
func (c *Client) PSP22BalanceOf(addr, owner AccountID, at *Hash) (u128.Amount, error) {
	input := append(append([]byte{}, selBalanceOf...), owner[:]...)
	data, err := c.ContractCall(addr, input, at)
	if err != nil {
		return u128.Amount{}, err
	}
	payload, err := unwrapLangResult(data, 16)
	if err != nil {
		return u128.Amount{}, fmt.Errorf("balance_of: %w", err)
	}
	if len(payload) != 16 {
		return u128.Amount{}, fmt.Errorf("balance_of: %w", errBadReturnData)
	}
	return u128.FromLE(payload)
}

// PSP22Name dry-calls token_name. nil means the contract reports no name.
func (c *Client) PSP22Name(addr AccountID, at *Hash) (*string, error) {
	return c.readOptionalString(addr, selTokenName, at)
}

// PSP22Symbol dry-calls token_symbol.
func (c *Client) PSP22Symbol(addr AccountID, at *Hash) (*string, error) {
	return c.readOptionalString(addr, selTokenSymbol, at)
}

// PSP22Decimals dry-calls token_decimals.
func (c *Client) PSP22Decimals(addr AccountID, at *Hash) (uint8, error) {
	data, err := c.ContractCall(addr, selTokenDecimals, at)
	if err != nil {
		return 0, err
	}
	payload, err := unwrapLangResult(data, 1)
	if err != nil {
		return 0, fmt.Errorf("token_decimals: %w", err)
	}
	if len(payload) != 1 {
		return 0, fmt.Errorf("token_decimals: %w", errBadReturnData)
	}
	return payload[0], nil
}

func (c *Client) readOptionalString(addr AccountID, selector []byte, at *Hash) (*string, error) {
	data, err := c.ContractCall(addr, selector, at)
	if err != nil {
		return nil, err
	}
	payload := data
	if len(payload) > 1 && payload[0] == 0 {
		// Result<Option<String>, LangError> wrapper.
		payload = payload[1:]
	}
	if len(payload) == 0 {
		return nil, errBadReturnData
	}
	if payload[0] == 0 {
		return nil, nil
	}
	dec := scale.NewDecoder(bytes.NewReader(payload[1:]))
	var s string
	if err := dec.Decode(&s); err != nil {
		return nil, fmt.Errorf("optional string: %w", err)
	}
	return &s, nil
}
