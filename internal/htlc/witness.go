package htlc

// BuildClaimWitness assembles the claim-path witness stack, per spec §6:
// <sig_claim> <preimage> 0x01 <redeemscript>. The core must produce exactly
// this witness shape; deviation breaks compatibility with existing on-chain
// HTLCs.
func BuildClaimWitness(sig []byte, preimage [32]byte, redeemScript []byte) [][]byte {
	return [][]byte{
		sig,
		preimage[:],
		{0x01},
		redeemScript,
	}
}

// BuildRefundWitness assembles the refund-path witness stack, per spec §6:
// <sig_refund> 0x00 <redeemscript>.
func BuildRefundWitness(sig []byte, redeemScript []byte) [][]byte {
	return [][]byte{
		sig,
		{0x00},
		redeemScript,
	}
}
