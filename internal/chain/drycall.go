package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// ErrContractDispatch marks a dry call the runtime rejected (the account is
// not a contract, the selector is unknown, or execution trapped). Callers
// treat this as "not this contract kind", not as a transport failure.
var ErrContractDispatch = errors.New("contract call dispatched with error")

// ErrContractReverted marks a call that executed but reverted.
var ErrContractReverted = errors.New("contract call reverted")

const revertFlag = 0x01

// ContractCall dry-runs a contract message from the well-known Alice
// account with zero value and no gas or deposit limit, returning the raw
// return data.
func (c *Client) ContractCall(dest AccountID, input []byte, at *Hash) ([]byte, error) {
	args, err := encodeContractCallArgs(AliceAccount(), dest, input)
	if err != nil {
		return nil, fmt.Errorf("encode contract call: %w", err)
	}

	var res string
	if at != nil {
		err = c.call(&res, "state_call", "ContractsApi_call", hexEncode(args), hexEncode((*at)[:]))
	} else {
		err = c.call(&res, "state_call", "ContractsApi_call", hexEncode(args))
	}
	if err != nil {
		return nil, fmt.Errorf("state_call ContractsApi_call: %w", err)
	}
	raw, err := hexDecode(res)
	if err != nil {
		return nil, fmt.Errorf("state_call result: %w", err)
	}
	return decodeContractExecResult(raw)
}

// encodeContractCallArgs builds the SCALE ContractsApi_call argument tuple:
// origin, dest, value, gas_limit: None, storage_deposit_limit: None, input.
func encodeContractCallArgs(origin, dest AccountID, input []byte) ([]byte, error) {
	buf := new(bytes.Buffer)
	enc := scale.NewEncoder(buf)
	if err := enc.Encode(origin); err != nil {
		return nil, err
	}
	if err := enc.Encode(dest); err != nil {
		return nil, err
	}
	if err := enc.Encode(types.NewU128(*big.NewInt(0))); err != nil {
		return nil, err
	}
	if err := enc.PushByte(0); err != nil {
		return nil, err
	}
	if err := enc.PushByte(0); err != nil {
		return nil, err
	}
	if err := enc.Encode(input); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// decodeContractExecResult unwraps a ContractExecResult down to the return
// data of a successful execution.
func decodeContractExecResult(raw []byte) ([]byte, error) {
	dec := scale.NewDecoder(bytes.NewReader(raw))

	// gas_consumed and gas_required are Weight pairs of compacts.
	for i := 0; i < 4; i++ {
		if _, err := dec.DecodeUintCompact(); err != nil {
			return nil, fmt.Errorf("gas weight: %w", err)
		}
	}
	// storage_deposit: variant tag + amount.
	if _, err := dec.ReadOneByte(); err != nil {
		return nil, fmt.Errorf("storage deposit tag: %w", err)
	}
	if _, err := decodeU128(dec); err != nil {
		return nil, fmt.Errorf("storage deposit: %w", err)
	}
	var debugMessage []byte
	if err := dec.Decode(&debugMessage); err != nil {
		return nil, fmt.Errorf("debug message: %w", err)
	}

	resultTag, err := dec.ReadOneByte()
	if err != nil {
		return nil, fmt.Errorf("result tag: %w", err)
	}
	if resultTag != 0 {
		return nil, ErrContractDispatch
	}
	var flags uint32
	if err := dec.Decode(&flags); err != nil {
		return nil, fmt.Errorf("return flags: %w", err)
	}
	var data []byte
	if err := dec.Decode(&data); err != nil {
		return nil, fmt.Errorf("return data: %w", err)
	}
	if flags&revertFlag != 0 {
		return nil, ErrContractReverted
	}
	return data, nil
}
