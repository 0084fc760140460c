// Package u128 provides unsigned 128-bit token amounts.
// Amounts travel as little-endian 16-byte values on chain and as decimal
// strings in databases and JSON.
package u128

import (
	"fmt"
	"math"
	"math/big"
)

const byteLen = 16

var maxU128 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))

// Amount is an unsigned 128-bit integer. The zero value is zero.
type Amount struct {
	v *big.Int
}

func (a Amount) bi() *big.Int {
	if a.v == nil {
		return new(big.Int)
	}
	return a.v
}

// FromUint64 returns the amount equal to u.
func FromUint64(u uint64) Amount {
	return Amount{v: new(big.Int).SetUint64(u)}
}

// FromBig returns the amount equal to v, which must fit in 128 bits.
func FromBig(v *big.Int) (Amount, error) {
	if v.Sign() < 0 || v.Cmp(maxU128) > 0 {
		return Amount{}, fmt.Errorf("value %s out of u128 range", v)
	}
	return Amount{v: new(big.Int).Set(v)}, nil
}

// FromLE decodes a little-endian 16-byte value.
func FromLE(b []byte) (Amount, error) {
	if len(b) != byteLen {
		return Amount{}, fmt.Errorf("u128 value must be %d bytes, got %d", byteLen, len(b))
	}
	be := make([]byte, byteLen)
	for i := range b {
		be[byteLen-1-i] = b[i]
	}
	return Amount{v: new(big.Int).SetBytes(be)}, nil
}

// Parse parses a decimal string.
func Parse(s string) (Amount, error) {
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return Amount{}, fmt.Errorf("invalid decimal amount %q", s)
	}
	return FromBig(v)
}

// LE returns the little-endian 16-byte encoding.
func (a Amount) LE() []byte {
	be := a.bi().Bytes()
	out := make([]byte, byteLen)
	for i := range be {
		out[i] = be[len(be)-1-i]
	}
	return out
}

// String returns the decimal representation.
func (a Amount) String() string {
	return a.bi().String()
}

// IsZero reports whether the amount is zero.
func (a Amount) IsZero() bool {
	return a.bi().Sign() == 0
}

// Cmp compares a and b, returning -1, 0 or 1.
func (a Amount) Cmp(b Amount) int {
	return a.bi().Cmp(b.bi())
}

// Equal reports whether a == b.
func (a Amount) Equal(b Amount) bool {
	return a.Cmp(b) == 0
}

// Max returns the larger of a and b.
func Max(a, b Amount) Amount {
	if a.Cmp(b) >= 0 {
		return a
	}
	return b
}

// Human converts the amount to a float given the token's decimals.
// Precision loss is acceptable; this is for display and pricing only.
func (a Amount) Human(decimals uint8) float64 {
	f, _ := new(big.Float).SetInt(a.bi()).Float64()
	return f / math.Pow10(int(decimals))
}

// MarshalJSON encodes the amount as a decimal string.
func (a Amount) MarshalJSON() ([]byte, error) {
	return []byte(`"` + a.String() + `"`), nil
}

// UnmarshalJSON decodes a decimal string.
func (a *Amount) UnmarshalJSON(b []byte) error {
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("u128 amount must be a JSON string, got %s", b)
	}
	parsed, err := Parse(string(b[1 : len(b)-1]))
	if err != nil {
		return err
	}
	*a = parsed
	return nil
}
