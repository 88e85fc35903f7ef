package htlc

import "crypto/sha256"

// witnessScriptHash returns the SHA-256 hash of a witness/redeem script, as
// used by P2WSH scriptPubKey and address construction (BIP141).
func witnessScriptHash(script []byte) [32]byte {
	return sha256.Sum256(script)
}
