// Package htlc implements the HTLC primitives of spec §4.2: secret generation,
// constant-time hashlock verification, native-chain redeem-script construction,
// and script-sig preimage extraction. It is grounded in the teacher's
// internal/swap/htlc.go and internal/swap/htlc_script.go, adapted from the
// teacher's relative (CSV) native timelock to the absolute block-height (CLTV)
// timelock spec §4.1/§6 calls for.
package htlc

import (
	"crypto/sha256"

	"github.com/klingon-exchange/ntvswap/pkg/helpers"
)

// SecretSize is the fixed preimage length, per spec §3/§4.2.
const SecretSize = 32

// GenerateSecret produces a cryptographically secure 32-byte secret S and its
// hashlock H = SHA256(S).
func GenerateSecret() (secret [32]byte, hashlock [32]byte, err error) {
	raw, err := helpers.GenerateSecureRandom(SecretSize)
	if err != nil {
		return secret, hashlock, err
	}
	copy(secret[:], raw)
	hashlock = sha256.Sum256(secret[:])
	return secret, hashlock, nil
}

// ComputeHashlock returns H = SHA256(S) for a given preimage.
func ComputeHashlock(secret [32]byte) [32]byte {
	return sha256.Sum256(secret[:])
}

// VerifyPreimage reports whether SHA256(secret) == hashlock, in constant time
// (spec §4.2, §8 "verify_preimage(H, S) ⟺ SHA256(S) == H").
func VerifyPreimage(hashlock, secret [32]byte) bool {
	computed := sha256.Sum256(secret[:])
	return helpers.ConstantTimeCompare(computed[:], hashlock[:])
}

// IsZeroSecret reports whether a candidate preimage is the all-zero value,
// which spec §8's boundary behaviors require rejecting outright regardless of
// whether it happens to hash-match (it never will for a real SHA-256 hashlock,
// but callers should reject it before attempting verification to avoid
// treating absence-of-witness-data as a valid zero preimage).
func IsZeroSecret(secret [32]byte) bool {
	return helpers.IsZeroBytes(secret[:])
}
