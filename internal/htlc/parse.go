package htlc

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/txscript"
)

// OpenHashlocks is the set of hashlocks the caller still considers open
// (awaiting a claim). Per spec §9's robustness note, a candidate 32-byte push
// is accepted as a genuine preimage only if its SHA-256 is a member of this
// set — never merely because it "looks like" a preimage.
type OpenHashlocks map[[32]byte]bool

// ExtractFromWitness scans a SegWit witness stack (as produced by
// BuildClaimWitness, or as observed on-chain from a spending transaction) for
// the 32-byte preimage element, verifying it against the caller's open
// hashlock set. This is the primary extraction path for the P2WSH native
// chain HTLCs this module creates (spec §4.1 extract_preimage).
func ExtractFromWitness(items [][]byte, open OpenHashlocks) (preimage [32]byte, hashlock [32]byte, ok bool) {
	for _, item := range items {
		if len(item) != 32 {
			continue
		}
		var candidate [32]byte
		copy(candidate[:], item)
		h := sha256.Sum256(candidate[:])
		if open[h] {
			return candidate, h, true
		}
	}
	return preimage, hashlock, false
}

// ParseScriptSig walks a legacy (non-SegWit) scriptSig byte string push by
// push using btcd's script tokenizer, mirroring the teacher's
// internal/swap/htlc_script.go ParseHTLCScript approach and the original
// Python prototype's extract_preimage_from_scriptsig heuristic (lp_bot.py):
// a 32-byte direct push that is not all-zero and does not begin with 0x02 or
// 0x03 (a compressed pubkey prefix) is a preimage candidate. Per spec §9, the
// heuristic is tightened to require the candidate's hash to be a member of
// the caller-supplied open hashlock set, rather than accepting any
// heuristically-plausible push.
func ParseScriptSig(scriptSig []byte, open OpenHashlocks) (preimage [32]byte, hashlock [32]byte, ok bool) {
	tokenizer := txscript.MakeScriptTokenizer(0, scriptSig)
	for tokenizer.Next() {
		data := tokenizer.Data()
		if len(data) != 32 {
			continue
		}
		if isZero32(data) {
			continue
		}
		if data[0] == 0x02 || data[0] == 0x03 {
			// Looks like a compressed pubkey prefix, not a preimage.
			continue
		}
		var candidate [32]byte
		copy(candidate[:], data)
		h := sha256.Sum256(candidate[:])
		if open[h] {
			return candidate, h, true
		}
	}
	return preimage, hashlock, false
}

func isZero32(b []byte) bool {
	for _, v := range b {
		if v != 0 {
			return false
		}
	}
	return true
}
