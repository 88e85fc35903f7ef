package nativechain

import (
	"bytes"
	"context"
	"fmt"

	"github.com/btcsuite/btcd/wire"

	"github.com/klingon-exchange/ntvswap/internal/htlc"
)

// ExtractPreimage fetches the spending transaction for txid and scans its
// first input's witness (falling back to the legacy scriptSig for
// non-segwit spends) for a push matching one of the caller's open hashlocks
// (spec §4.1 extract_preimage, refined per spec §9's "robust form": accept a
// push p only if SHA256(p) is in the known-open set, rather than the weaker
// heuristic of rejecting obvious signatures/pubkey prefixes).
func (c *Client) ExtractPreimage(ctx context.Context, txid string, open htlc.OpenHashlocks) (preimage, hashlock [32]byte, verified bool, err error) {
	raw, err := c.RawTransaction(ctx, txid)
	if err != nil {
		return preimage, hashlock, false, fmt.Errorf("nativechain: extract_preimage: %w", err)
	}

	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(raw)); err != nil {
		return preimage, hashlock, false, fmt.Errorf("nativechain: extract_preimage: decode tx: %w", err)
	}
	if len(tx.TxIn) == 0 {
		return preimage, hashlock, false, fmt.Errorf("nativechain: extract_preimage: tx %s has no inputs", txid)
	}

	in := tx.TxIn[0]
	if len(in.Witness) > 0 {
		preimage, hashlock, ok := htlc.ExtractFromWitness(in.Witness, open)
		return preimage, hashlock, ok, nil
	}

	preimage, hashlock, ok := htlc.ParseScriptSig(in.SignatureScript, open)
	return preimage, hashlock, ok, nil
}
