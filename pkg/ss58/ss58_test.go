package ss58

import (
	"encoding/hex"
	"testing"
)

// Alice's well-known sr25519 public key and generic-network address.
const (
	alicePubkeyHex = "d43593c715fdd31c61141abd04a99fd6822c8558854ccde39a5684e7a56da27d"
	aliceAddress   = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"
)

func alicePubkey(t *testing.T) [32]byte {
	t.Helper()
	raw, err := hex.DecodeString(alicePubkeyHex)
	if err != nil {
		t.Fatalf("bad test vector: %v", err)
	}
	var pubkey [32]byte
	copy(pubkey[:], raw)
	return pubkey
}

func TestEncodeAlice(t *testing.T) {
	if got := Encode(alicePubkey(t), Prefix); got != aliceAddress {
		t.Errorf("Encode() = %s, want %s", got, aliceAddress)
	}
}

func TestDecodeAlice(t *testing.T) {
	pubkey, prefix, err := Decode(aliceAddress)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if prefix != Prefix {
		t.Errorf("prefix = %d, want %d", prefix, Prefix)
	}
	if pubkey != alicePubkey(t) {
		t.Errorf("pubkey = %x", pubkey)
	}
}

func TestRoundtrip(t *testing.T) {
	var pubkey [32]byte
	for i := range pubkey {
		pubkey[i] = byte(i * 7)
	}
	addr := Encode(pubkey, Prefix)
	back, _, err := Decode(addr)
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if back != pubkey {
		t.Errorf("roundtrip mismatch: %x != %x", back, pubkey)
	}
}

func TestDecodeBadChecksum(t *testing.T) {
	// Flip a middle character; base58 still decodes but the checksum
	// must not match.
	corrupted := []byte(aliceAddress)
	if corrupted[10] == 'A' {
		corrupted[10] = 'B'
	} else {
		corrupted[10] = 'A'
	}
	if _, _, err := Decode(string(corrupted)); err == nil {
		t.Error("Decode() should reject a corrupted address")
	}
}

func TestDecodeBadLength(t *testing.T) {
	if _, _, err := Decode("abc"); err == nil {
		t.Error("Decode() should reject short input")
	}
}
