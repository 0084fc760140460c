// Package dexindexer derives trade records from raw contract events: it
// consumes the event service, decodes pool-emitted payloads against known
// pool definitions, and maintains the trade store's watermark.
package dexindexer

import (
	"bytes"
	"fmt"

	"github.com/centrifuge/go-substrate-rpc-client/v4/scale"

	"github.com/azero-tools/azero-indexer/internal/chain"
	"github.com/azero-tools/azero-indexer/pkg/u128"
)

// Pair event variant tags as emitted by the AMM pair contract.
const (
	pairEventMint uint8 = iota
	pairEventBurn
	pairEventSwap
	pairEventSync
)

// SwapEvent is the decoded Swap variant of a pair contract's emitted
// payload.
type SwapEvent struct {
	Sender     chain.AccountID
	Amount0In  u128.Amount
	Amount1In  u128.Amount
	Amount0Out u128.Amount
	Amount1Out u128.Amount
	To         chain.AccountID
}

// DecodePairSwap decodes an emitted pair payload. The second return value
// is false when the payload is a valid pair event other than Swap.
func DecodePairSwap(data []byte) (*SwapEvent, bool, error) {
	if len(data) == 0 {
		return nil, false, fmt.Errorf("empty pair event payload")
	}
	if data[0] != pairEventSwap {
		if data[0] > pairEventSync {
			return nil, false, fmt.Errorf("unknown pair event tag %d", data[0])
		}
		return nil, false, nil
	}

	dec := scale.NewDecoder(bytes.NewReader(data[1:]))
	var sender [32]byte
	if err := dec.Decode(&sender); err != nil {
		return nil, false, fmt.Errorf("swap sender: %w", err)
	}
	amounts := make([]u128.Amount, 4)
	for i := range amounts {
		var raw [16]byte
		if err := dec.Decode(&raw); err != nil {
			return nil, false, fmt.Errorf("swap amount %d: %w", i, err)
		}
		amount, err := u128.FromLE(raw[:])
		if err != nil {
			return nil, false, err
		}
		amounts[i] = amount
	}
	var to [32]byte
	if err := dec.Decode(&to); err != nil {
		return nil, false, fmt.Errorf("swap recipient: %w", err)
	}

	return &SwapEvent{
		Sender:     chain.AccountID(sender),
		Amount0In:  amounts[0],
		Amount1In:  amounts[1],
		Amount0Out: amounts[2],
		Amount1Out: amounts[3],
		To:         chain.AccountID(to),
	}, true, nil
}

// Direction resolves the swap's (in, out) token order against its pool.
// Exactly one input side must be non-zero and the non-zero output must sit
// on the opposite side; anything else is an invalid swap.
func (s *SwapEvent) Direction(token0, token1 chain.AccountID) (tokenIn, tokenOut chain.AccountID, ok bool) {
	zeroIn0, zeroIn1 := s.Amount0In.IsZero(), s.Amount1In.IsZero()
	if zeroIn0 == zeroIn1 {
		return chain.AccountID{}, chain.AccountID{}, false
	}
	if !zeroIn0 {
		// token0 in, so token1 must come out.
		if s.Amount1Out.IsZero() || !s.Amount0Out.IsZero() {
			return chain.AccountID{}, chain.AccountID{}, false
		}
		return token0, token1, true
	}
	if s.Amount0Out.IsZero() || !s.Amount1Out.IsZero() {
		return chain.AccountID{}, chain.AccountID{}, false
	}
	return token1, token0, true
}
