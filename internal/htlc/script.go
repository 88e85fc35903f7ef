package htlc

import (
	"fmt"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/btcsuite/btcd/txscript"
)

// ScriptParams are the inputs needed to build a native HTLC redeem script.
type ScriptParams struct {
	Hashlock      [32]byte // H = SHA256(S)
	ClaimPubKey   []byte   // compressed pubkey of the claim-signing authority
	RefundPubKey  []byte   // compressed pubkey of the refund-signing authority
	ExpiryHeight  int64    // absolute block height, CLTV argument
}

// BuildScript assembles the classical two-branch IF/ELSE HTLC redeem script
// using an absolute block-height expiry, per spec §4.1/§6:
//
//	OP_IF
//	  OP_SHA256 <H> OP_EQUALVERIFY <claimPubKey> OP_CHECKSIG
//	OP_ELSE
//	  <expiryHeight> OP_CHECKLOCKTIMEVERIFY OP_DROP <refundPubKey> OP_CHECKSIG
//	OP_ENDIF
//
// This keeps the teacher's txscript.ScriptBuilder call sequence
// (internal/swap/htlc_script.go's BuildHTLCScript) but swaps the teacher's
// relative OP_CHECKSEQUENCEVERIFY timelock for an absolute
// OP_CHECKLOCKTIMEVERIFY one, since the teacher's swap design uses relative
// per-leg expiry while this spec requires an absolute height shared by both
// the claim-path and the refund-path's script-level deadline.
func BuildScript(p ScriptParams) ([]byte, error) {
	if len(p.ClaimPubKey) == 0 || len(p.RefundPubKey) == 0 {
		return nil, fmt.Errorf("htlc: claim and refund pubkeys are required")
	}

	builder := txscript.NewScriptBuilder()
	builder.AddOp(txscript.OP_IF)
	builder.AddOp(txscript.OP_SHA256)
	builder.AddData(p.Hashlock[:])
	builder.AddOp(txscript.OP_EQUALVERIFY)
	builder.AddData(p.ClaimPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ELSE)
	builder.AddInt64(p.ExpiryHeight)
	builder.AddOp(txscript.OP_CHECKLOCKTIMEVERIFY)
	builder.AddOp(txscript.OP_DROP)
	builder.AddData(p.RefundPubKey)
	builder.AddOp(txscript.OP_CHECKSIG)
	builder.AddOp(txscript.OP_ENDIF)

	return builder.Script()
}

// P2WSHScriptPubKey wraps a redeem script into a P2WSH scriptPubKey.
func P2WSHScriptPubKey(redeemScript []byte) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	hash := witnessScriptHash(redeemScript)
	builder.AddOp(txscript.OP_0)
	builder.AddData(hash[:])
	return builder.Script()
}

// Address derives the P2WSH address for a redeem script on the given network.
func Address(redeemScript []byte, params *chaincfg.Params) (btcutil.Address, error) {
	hash := witnessScriptHash(redeemScript)
	return btcutil.NewAddressWitnessScriptHash(hash[:], params)
}

// ChainParams returns the chaincfg.Params for the native chain's network name.
// Mirrors the teacher's getHTLCChainParams dispatch, trimmed to the single
// native chain this module settles (spec §1 scopes out multi-coin wallet
// support; the chain-family dispatch table lives in internal/chain).
func ChainParams(testnet bool) *chaincfg.Params {
	if testnet {
		return &chaincfg.TestNet3Params
	}
	return &chaincfg.MainNetParams
}
