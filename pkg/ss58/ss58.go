// Package ss58 implements the SS58 address format used to render 32-byte
// account identifiers as strings.
package ss58

import (
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"golang.org/x/crypto/blake2b"
)

// Prefix is the generic Substrate network prefix, used by Aleph Zero.
const Prefix byte = 42

const checksumLen = 2

var ss58Pre = []byte("SS58PRE")

// ErrChecksum is returned when an address fails checksum verification.
var ErrChecksum = errors.New("ss58: checksum mismatch")

func checksum(payload []byte) []byte {
	h, _ := blake2b.New512(nil)
	h.Write(ss58Pre)
	h.Write(payload)
	return h.Sum(nil)[:checksumLen]
}

// Encode renders a 32-byte public key under the given network prefix.
func Encode(pubkey [32]byte, prefix byte) string {
	payload := make([]byte, 0, 1+32+checksumLen)
	payload = append(payload, prefix)
	payload = append(payload, pubkey[:]...)
	payload = append(payload, checksum(payload)...)
	return base58.Encode(payload)
}

// Decode parses an SS58 address and verifies its checksum. The network
// prefix is returned alongside the key so callers may reject foreign
// networks.
func Decode(addr string) ([32]byte, byte, error) {
	var pubkey [32]byte
	raw, err := base58.Decode(addr)
	if err != nil {
		return pubkey, 0, fmt.Errorf("ss58: %w", err)
	}
	if len(raw) != 1+32+checksumLen {
		return pubkey, 0, fmt.Errorf("ss58: unexpected payload length %d", len(raw))
	}
	body := raw[:len(raw)-checksumLen]
	want := raw[len(raw)-checksumLen:]
	got := checksum(body)
	if got[0] != want[0] || got[1] != want[1] {
		return pubkey, 0, ErrChecksum
	}
	copy(pubkey[:], body[1:])
	return pubkey, body[0], nil
}
