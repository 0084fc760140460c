package chain

import (
	"fmt"
	"math/big"
	"strings"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/registry/parser"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

// EventKind discriminates GenericContractEvent variants.
type EventKind string

const (
	EventInstantiated        EventKind = "instantiated"
	EventTerminated          EventKind = "terminated"
	EventCodeStored          EventKind = "code_stored"
	EventContractEmitted     EventKind = "contract_emitted"
	EventCodeRemoved         EventKind = "code_removed"
	EventContractCodeUpdated EventKind = "contract_code_updated"
	EventCalled              EventKind = "called"
	EventDelegateCalled      EventKind = "delegate_called"
)

// Origin is the caller of a contract invocation: either Root or a signed
// account.
type Origin struct {
	IsSigned bool
	Account  AccountID
}

// SignedOrigin wraps an account as a signed origin.
func SignedOrigin(a AccountID) Origin {
	return Origin{IsSigned: true, Account: a}
}

// RootOrigin is the unsigned root origin.
func RootOrigin() Origin {
	return Origin{}
}

// GenericContractEvent is a pallet-contracts event in a shape independent of
// the runtime metadata revision that produced it. Only the fields of the
// active Kind are meaningful.
type GenericContractEvent struct {
	Kind EventKind

	Contract    AccountID
	Deployer    AccountID
	Beneficiary AccountID
	Caller      Origin
	CodeHash    Hash
	NewCodeHash Hash
	OldCodeHash Hash
	Data        []byte

	// Position of the event within its block, and of the enclosing
	// extrinsic within the block's extrinsics.
	EventIndex     uint32
	ExtrinsicIndex uint32
}

// BlockContractEvents fetches the block's events and keeps those of the
// contracts pallet. Events that decode under no known shape are dropped
// with a debug log.
func (c *Client) BlockContractEvents(hash Hash) ([]GenericContractEvent, error) {
	raw, err := c.rawEvents(hash)
	if err != nil {
		return nil, err
	}
	out := make([]GenericContractEvent, 0, len(raw))
	for i, ev := range raw {
		if !strings.HasPrefix(ev.Name, "Contracts.") {
			continue
		}
		decoded, err := decodeContractEvent(ev)
		if err != nil {
			c.log.Debug("Dropping undecodable contracts event", "name", ev.Name, "error", err)
			continue
		}
		if decoded == nil {
			continue
		}
		decoded.EventIndex = uint32(i)
		if ev.Phase != nil && ev.Phase.IsApplyExtrinsic {
			decoded.ExtrinsicIndex = ev.Phase.AsApplyExtrinsic
		}
		out = append(out, *decoded)
	}
	return out, nil
}

// decodeContractEvent maps one decoded runtime event onto the generic
// union. Returns nil for pallet events outside the union (storage deposit
// bookkeeping).
func decodeContractEvent(ev *parser.Event) (*GenericContractEvent, error) {
	switch strings.TrimPrefix(ev.Name, "Contracts.") {
	case "Instantiated":
		deployer, err := fieldAccount(ev.Fields, "deployer")
		if err != nil {
			return nil, err
		}
		contract, err := fieldAccount(ev.Fields, "contract")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventInstantiated, Deployer: deployer, Contract: contract}, nil
	case "Terminated":
		contract, err := fieldAccount(ev.Fields, "contract")
		if err != nil {
			return nil, err
		}
		beneficiary, err := fieldAccount(ev.Fields, "beneficiary")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventTerminated, Contract: contract, Beneficiary: beneficiary}, nil
	case "CodeStored":
		codeHash, err := fieldHash(ev.Fields, "code_hash")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventCodeStored, CodeHash: codeHash}, nil
	case "ContractEmitted":
		contract, err := fieldAccount(ev.Fields, "contract")
		if err != nil {
			return nil, err
		}
		data, err := fieldData(ev.Fields, "data")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventContractEmitted, Contract: contract, Data: data}, nil
	case "CodeRemoved":
		codeHash, err := fieldHash(ev.Fields, "code_hash")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventCodeRemoved, CodeHash: codeHash}, nil
	case "ContractCodeUpdated":
		contract, err := fieldAccount(ev.Fields, "contract")
		if err != nil {
			return nil, err
		}
		newHash, err := fieldHash(ev.Fields, "new_code_hash")
		if err != nil {
			return nil, err
		}
		oldHash, err := fieldHash(ev.Fields, "old_code_hash")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventContractCodeUpdated, Contract: contract, NewCodeHash: newHash, OldCodeHash: oldHash}, nil
	case "Called":
		contract, err := fieldAccount(ev.Fields, "contract")
		if err != nil {
			return nil, err
		}
		caller, err := decodeCaller(ev.Fields)
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventCalled, Contract: contract, Caller: caller}, nil
	case "DelegateCalled":
		contract, err := fieldAccount(ev.Fields, "contract")
		if err != nil {
			return nil, err
		}
		codeHash, err := fieldHash(ev.Fields, "code_hash")
		if err != nil {
			return nil, err
		}
		return &GenericContractEvent{Kind: EventDelegateCalled, Contract: contract, CodeHash: codeHash}, nil
	default:
		return nil, nil
	}
}

// callerDecoders are the per-revision shapes of the Called event's caller
// field, newest first. Newer runtimes wrap the caller in an Origin enum
// (Root | Signed); older ones carry a bare account id.
var callerDecoders = []func(any) (Origin, error){
	decodeCallerOriginEnum,
	decodeCallerBareAccount,
}

func decodeCaller(fields registry.DecodedFields) (Origin, error) {
	raw, ok := fieldValue(fields, "caller")
	if !ok {
		return Origin{}, fmt.Errorf("event has no caller field")
	}
	var firstErr error
	for _, decode := range callerDecoders {
		origin, err := decode(raw)
		if err == nil {
			return origin, nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return Origin{}, firstErr
}

func decodeCallerOriginEnum(raw any) (Origin, error) {
	variants, ok := raw.(registry.DecodedFields)
	if !ok {
		return Origin{}, fmt.Errorf("caller is not a variant")
	}
	for _, f := range variants {
		switch f.Name {
		case "Root":
			return RootOrigin(), nil
		case "Signed":
			b, ok := valueBytes(f.Value)
			if !ok {
				return Origin{}, fmt.Errorf("signed caller has no account bytes")
			}
			account, err := AccountIDFromBytes(b)
			if err != nil {
				return Origin{}, err
			}
			return SignedOrigin(account), nil
		}
	}
	return Origin{}, fmt.Errorf("caller variant is neither Root nor Signed")
}

func decodeCallerBareAccount(raw any) (Origin, error) {
	b, ok := valueBytes(raw)
	if !ok {
		return Origin{}, fmt.Errorf("caller is not an account id")
	}
	account, err := AccountIDFromBytes(b)
	if err != nil {
		return Origin{}, err
	}
	return SignedOrigin(account), nil
}

func fieldValue(fields registry.DecodedFields, name string) (any, bool) {
	for _, f := range fields {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

func fieldAccount(fields registry.DecodedFields, name string) (AccountID, error) {
	raw, ok := fieldValue(fields, name)
	if !ok {
		return AccountID{}, fmt.Errorf("event has no %s field", name)
	}
	b, ok := valueBytes(raw)
	if !ok {
		return AccountID{}, fmt.Errorf("field %s holds no byte payload", name)
	}
	return AccountIDFromBytes(b)
}

func fieldHash(fields registry.DecodedFields, name string) (Hash, error) {
	raw, ok := fieldValue(fields, name)
	if !ok {
		return Hash{}, fmt.Errorf("event has no %s field", name)
	}
	b, ok := valueBytes(raw)
	if !ok || len(b) != 32 {
		return Hash{}, fmt.Errorf("field %s is not a 32-byte hash", name)
	}
	var h Hash
	copy(h[:], b)
	return h, nil
}

func fieldData(fields registry.DecodedFields, name string) ([]byte, error) {
	raw, ok := fieldValue(fields, name)
	if !ok {
		return nil, fmt.Errorf("event has no %s field", name)
	}
	b, ok := valueBytes(raw)
	if !ok {
		return nil, fmt.Errorf("field %s holds no byte payload", name)
	}
	return b, nil
}

// valueBytes flattens a registry-decoded value into its raw bytes. The
// registry renders byte blobs as nested composites and sequences of
// unsigned primitives depending on the type's metadata shape.
func valueBytes(v any) ([]byte, bool) {
	switch val := v.(type) {
	case []byte:
		return val, true
	case types.H256:
		return val[:], true
	case types.AccountID:
		return val[:], true
	case types.U8:
		return []byte{byte(val)}, true
	case uint8:
		return []byte{val}, true
	case *big.Int:
		return nil, false
	case *registry.DecodedField:
		return valueBytes(val.Value)
	case registry.DecodedFields:
		var out []byte
		for _, f := range val {
			b, ok := valueBytes(f.Value)
			if !ok {
				return nil, false
			}
			out = append(out, b...)
		}
		return out, len(out) > 0
	case []any:
		var out []byte
		for _, item := range val {
			b, ok := valueBytes(item)
			if !ok {
				return nil, false
			}
			out = append(out, b...)
		}
		return out, len(out) > 0
	default:
		return nil, false
	}
}
