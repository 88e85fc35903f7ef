// Package bytesorder enforces the native/EVM byte-order boundary with distinct types.
//
// The native chain displays 32-byte hashes (txids, hashlocks) in reversed byte order,
// Bitcoin-style. EVM chains, RPCs, and ABI encoding use natural byte order. Mixing the
// two is the single most dangerous bug class at this boundary, so conversion is made
// impossible to skip by accident: NativeHash32 and EVMHash32 are distinct types and the
// only way from one to the other is ToEVM/ToNative.
package bytesorder

import (
	"encoding/hex"
	"fmt"
)

// NativeHash32 is a 32-byte hash in the native chain's reversed display order.
type NativeHash32 [32]byte

// EVMHash32 is a 32-byte hash in natural big-endian order, as used by EVM chains.
type EVMHash32 [32]byte

func reversed(b [32]byte) [32]byte {
	var out [32]byte
	for i := range b {
		out[i] = b[31-i]
	}
	return out
}

// ToEVM converts a native-display hash to EVM natural order.
func (n NativeHash32) ToEVM() EVMHash32 {
	return EVMHash32(reversed([32]byte(n)))
}

// ToNative converts an EVM natural-order hash to native display order.
func (e EVMHash32) ToNative() NativeHash32 {
	return NativeHash32(reversed([32]byte(e)))
}

// Bytes returns the raw bytes as stored (no reordering).
func (n NativeHash32) Bytes() []byte { b := [32]byte(n); return b[:] }

// Bytes returns the raw bytes as stored (no reordering).
func (e EVMHash32) Bytes() []byte { b := [32]byte(e); return b[:] }

// String renders the native-display hex form.
func (n NativeHash32) String() string { return hex.EncodeToString(n.Bytes()) }

// String renders the EVM natural-order hex form, 0x-prefixed.
func (e EVMHash32) String() string { return "0x" + hex.EncodeToString(e.Bytes()) }

// ParseNativeHash32 parses a native-display hex string (no 0x prefix expected).
func ParseNativeHash32(s string) (NativeHash32, error) {
	var h NativeHash32
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse native hash: %w", err)
	}
	if len(b) != 32 {
		return h, fmt.Errorf("parse native hash: expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// ParseEVMHash32 parses an EVM hex string, with or without 0x prefix.
func ParseEVMHash32(s string) (EVMHash32, error) {
	var h EVMHash32
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return h, fmt.Errorf("parse evm hash: %w", err)
	}
	if len(b) != 32 {
		return h, fmt.Errorf("parse evm hash: expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}

// FromNaturalBytes builds an EVMHash32 from already-natural-order bytes (e.g. SHA256 output).
func FromNaturalBytes(b []byte) (EVMHash32, error) {
	var h EVMHash32
	if len(b) != 32 {
		return h, fmt.Errorf("from natural bytes: expected 32 bytes, got %d", len(b))
	}
	copy(h[:], b)
	return h, nil
}
