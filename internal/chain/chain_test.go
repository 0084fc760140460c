package chain

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/centrifuge/go-substrate-rpc-client/v4/registry"
	"github.com/centrifuge/go-substrate-rpc-client/v4/types"
)

func testAccount(b byte) AccountID {
	var a AccountID
	for i := range a {
		a[i] = b
	}
	return a
}

func TestAccountIDJSONRoundtrip(t *testing.T) {
	a := AliceAccount()
	data, err := json.Marshal(a)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"`+Alice+`"` {
		t.Errorf("Marshal() = %s", data)
	}
	var back AccountID
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back != a {
		t.Error("roundtrip mismatch")
	}
}

func TestAccountIDMapKey(t *testing.T) {
	m := map[AccountID]int{AliceAccount(): 7}
	data, err := json.Marshal(m)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	var back map[AccountID]int
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if back[AliceAccount()] != 7 {
		t.Errorf("roundtrip = %v", back)
	}
}

func TestAccountIDOrdering(t *testing.T) {
	if !testAccount(1).Less(testAccount(2)) {
		t.Error("ordering should be lexicographic on raw bytes")
	}
	if testAccount(2).Less(testAccount(2)) {
		t.Error("Less must be strict")
	}
}

func TestEncodeContractCallArgs(t *testing.T) {
	input := []byte{0x16, 0x2d, 0xf8, 0xc2}
	origin, dest := testAccount(1), testAccount(2)
	args, err := encodeContractCallArgs(origin, dest, input)
	if err != nil {
		t.Fatalf("encode error = %v", err)
	}
	// origin + dest + value + two None tags + compact(4) + input.
	want := 32 + 32 + 16 + 1 + 1 + 1 + len(input)
	if len(args) != want {
		t.Fatalf("len = %d, want %d", len(args), want)
	}
	if !bytes.Equal(args[:32], origin[:]) || !bytes.Equal(args[32:64], dest[:]) {
		t.Error("origin/dest misplaced")
	}
	if args[80] != 0 || args[81] != 0 {
		t.Error("gas and deposit limits must encode as None")
	}
	if !bytes.Equal(args[len(args)-4:], input) {
		t.Error("input data misplaced")
	}
}

// compactByte encodes a small value in SCALE single-byte compact form.
func compactByte(v byte) byte { return v << 2 }

func execResultPrefix() []byte {
	out := []byte{
		compactByte(1), compactByte(1), // gas_consumed weight
		compactByte(1), compactByte(1), // gas_required weight
		0, // storage_deposit: Refund
	}
	out = append(out, make([]byte, 16)...) // deposit amount
	out = append(out, 0)                   // debug message: empty vec
	return out
}

func TestDecodeContractExecResultSuccess(t *testing.T) {
	raw := execResultPrefix()
	raw = append(raw, 0)          // result: Ok
	raw = append(raw, 0, 0, 0, 0) // flags
	raw = append(raw, compactByte(3), 0xaa, 0xbb, 0xcc)

	data, err := decodeContractExecResult(raw)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !bytes.Equal(data, []byte{0xaa, 0xbb, 0xcc}) {
		t.Errorf("data = %x", data)
	}
}

func TestDecodeContractExecResultDispatchError(t *testing.T) {
	raw := execResultPrefix()
	raw = append(raw, 1) // result: Err
	if _, err := decodeContractExecResult(raw); !errors.Is(err, ErrContractDispatch) {
		t.Fatalf("error = %v, want ErrContractDispatch", err)
	}
}

func TestDecodeContractExecResultRevert(t *testing.T) {
	raw := execResultPrefix()
	raw = append(raw, 0)          // result: Ok
	raw = append(raw, 1, 0, 0, 0) // revert flag
	raw = append(raw, 0)          // empty data
	if _, err := decodeContractExecResult(raw); !errors.Is(err, ErrContractReverted) {
		t.Fatalf("error = %v, want ErrContractReverted", err)
	}
}

func TestUnwrapLangResult(t *testing.T) {
	// Bare 16-byte value.
	bare := make([]byte, 16)
	if out, err := unwrapLangResult(bare, 16); err != nil || len(out) != 16 {
		t.Errorf("bare: out = %x, err = %v", out, err)
	}
	// Wrapped in Result::Ok.
	wrapped := append([]byte{0}, bare...)
	if out, err := unwrapLangResult(wrapped, 16); err != nil || len(out) != 16 {
		t.Errorf("wrapped: out = %x, err = %v", out, err)
	}
	if _, err := unwrapLangResult([]byte{1, 2, 3}, 16); err == nil {
		t.Error("malformed data should error")
	}
}

func TestDecodeContractInfoCurrent(t *testing.T) {
	raw := []byte{compactByte(32)}
	trieID := bytes.Repeat([]byte{0x11}, 32)
	raw = append(raw, trieID...)
	codeHash := bytes.Repeat([]byte{0x22}, 32)
	raw = append(raw, codeHash...)
	raw = append(raw, 0, 0, 0, 0, 0, 0, 0, 0) // storage counters

	info, err := decodeContractInfoCurrent(raw)
	if err != nil {
		t.Fatalf("decode error = %v", err)
	}
	if !bytes.Equal(info.TrieID, trieID) {
		t.Errorf("trie id = %x", info.TrieID)
	}
	if !bytes.Equal(info.CodeHash[:], codeHash) {
		t.Errorf("code hash = %x", info.CodeHash)
	}
}

func TestValueBytes(t *testing.T) {
	// Byte blobs arrive as nested composites and sequences of U8.
	nested := registry.DecodedFields{
		{Name: "inner", Value: []any{types.NewU8(0xab), types.NewU8(0xcd)}},
	}
	b, ok := valueBytes(nested)
	if !ok || !bytes.Equal(b, []byte{0xab, 0xcd}) {
		t.Errorf("valueBytes = %x, ok = %v", b, ok)
	}

	if _, ok := valueBytes(42); ok {
		t.Error("plain ints are not byte payloads")
	}
}

func TestDecodeCallerRevisions(t *testing.T) {
	account := testAccount(0x33)
	accountValue := make([]any, 32)
	for i, v := range account {
		accountValue[i] = types.NewU8(v)
	}

	// Newer runtimes: Origin enum with a Signed variant.
	enum := registry.DecodedFields{
		{Name: "Signed", Value: accountValue},
	}
	origin, err := decodeCaller(registry.DecodedFields{{Name: "caller", Value: enum}})
	if err != nil {
		t.Fatalf("enum caller: %v", err)
	}
	if !origin.IsSigned || origin.Account != account {
		t.Errorf("origin = %+v", origin)
	}

	// Root origin.
	root := registry.DecodedFields{{Name: "Root", Value: nil}}
	origin, err = decodeCaller(registry.DecodedFields{{Name: "caller", Value: root}})
	if err != nil {
		t.Fatalf("root caller: %v", err)
	}
	if origin.IsSigned {
		t.Error("root origin decoded as signed")
	}

	// Older runtimes: a bare account id.
	origin, err = decodeCaller(registry.DecodedFields{{Name: "caller", Value: accountValue}})
	if err != nil {
		t.Fatalf("bare caller: %v", err)
	}
	if !origin.IsSigned || origin.Account != account {
		t.Errorf("origin = %+v", origin)
	}
}
