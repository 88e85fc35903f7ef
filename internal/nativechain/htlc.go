package nativechain

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// HTLCFilter narrows ListHTLCs results by status; an empty Status returns all.
type HTLCFilter struct {
	Status string
}

// HTLCRecord is the wire shape returned by the daemon's htlc_* RPCs,
// grounded in the original prototype's sdk/dex_types.py HTLC dataclass.
type HTLCRecord struct {
	Outpoint          string `json:"outpoint"`
	Hashlock          string `json:"hashlock"`
	Amount            uint64 `json:"amount"`
	ClaimDestination  string `json:"claim_destination"`
	RefundDestination string `json:"refund_destination"`
	ExpiryHeight      uint64 `json:"expiry_height"`
	Status            string `json:"status"`
	CreationTxID      string `json:"creation_txid,omitempty"`
	ClaimTxID         string `json:"claim_txid,omitempty"`
	RefundTxID        string `json:"refund_txid,omitempty"`
}

// CreateResult is the return shape of CreateHTLC.
type CreateResult struct {
	TxID         string
	Outpoint     string
	ExpiryHeight uint64
}

// CreateHTLC creates a native-side HTLC with hot/cold separated signing and
// destination addresses (spec §4.1, §9 "Hot/cold wallet separation"). The
// daemon performs UTXO selection and signing server-side (the wallet is
// consumed as an opaque signing interface, per spec §1 scope exclusions).
func (c *Client) CreateHTLC(ctx context.Context, hashlock [32]byte, amount uint64, claimAddr string, expiryBlocks uint64, claimSigningAddr, refundDest, refundSigningAddr string) (*CreateResult, error) {
	params := []interface{}{
		hex.EncodeToString(hashlock[:]),
		amount,
		claimAddr,
		expiryBlocks,
		claimSigningAddr,
		refundDest,
		refundSigningAddr,
	}
	raw, err := c.call(ctx, "htlc_create_kpiv", params)
	if err != nil {
		return nil, fmt.Errorf("nativechain: create_htlc: %w", err)
	}
	var result struct {
		TxID         string `json:"txid"`
		Outpoint     string `json:"outpoint"`
		ExpiryHeight uint64 `json:"expiry_height"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("nativechain: create_htlc: malformed response: %w", err)
	}
	return &CreateResult{TxID: result.TxID, Outpoint: result.Outpoint, ExpiryHeight: result.ExpiryHeight}, nil
}

// ClaimHTLC reveals the preimage and claims the native HTLC at outpoint.
func (c *Client) ClaimHTLC(ctx context.Context, outpoint string, preimage [32]byte) (txid string, err error) {
	raw, err := c.call(ctx, "htlc_claim_kpiv", []interface{}{outpoint, hex.EncodeToString(preimage[:])})
	if err != nil {
		return "", fmt.Errorf("nativechain: claim_htlc: %w", err)
	}
	var result struct {
		TxID string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("nativechain: claim_htlc: malformed response: %w", err)
	}
	return result.TxID, nil
}

// RefundHTLC reclaims a native HTLC past its expiry height.
func (c *Client) RefundHTLC(ctx context.Context, outpoint string) (txid string, err error) {
	raw, err := c.call(ctx, "htlc_refund_kpiv", []interface{}{outpoint})
	if err != nil {
		return "", fmt.Errorf("nativechain: refund_htlc: %w", err)
	}
	var result struct {
		TxID string `json:"txid"`
	}
	if err := json.Unmarshal(raw, &result); err != nil {
		return "", fmt.Errorf("nativechain: refund_htlc: malformed response: %w", err)
	}
	return result.TxID, nil
}

// ListHTLCs returns all HTLCs known to the daemon, optionally filtered by
// status.
func (c *Client) ListHTLCs(ctx context.Context, filter HTLCFilter) ([]HTLCRecord, error) {
	raw, err := c.call(ctx, "htlc_list", []interface{}{filter.Status})
	if err != nil {
		return nil, fmt.Errorf("nativechain: list_htlcs: %w", err)
	}
	var records []HTLCRecord
	if err := json.Unmarshal(raw, &records); err != nil {
		return nil, fmt.Errorf("nativechain: list_htlcs: malformed response: %w", err)
	}
	return records, nil
}

// GetHTLC looks up a single HTLC by outpoint or hashlock. A nil result with a
// nil error means "not found" (mirrors the prototype's get()/get_by_hashlock()
// returning None rather than raising).
func (c *Client) GetHTLC(ctx context.Context, idOrHashlock string) (*HTLCRecord, error) {
	raw, err := c.call(ctx, "htlc_get", []interface{}{idOrHashlock})
	if err != nil {
		if _, ok := err.(*RPCError); ok {
			return nil, nil
		}
		return nil, fmt.Errorf("nativechain: get_htlc: %w", err)
	}
	if string(raw) == "null" {
		return nil, nil
	}
	var record HTLCRecord
	if err := json.Unmarshal(raw, &record); err != nil {
		return nil, fmt.Errorf("nativechain: get_htlc: malformed response: %w", err)
	}
	return &record, nil
}

// CurrentHeight returns the native chain's current block height.
func (c *Client) CurrentHeight(ctx context.Context) (uint64, error) {
	raw, err := c.call(ctx, "getblockcount", nil)
	if err != nil {
		return 0, fmt.Errorf("nativechain: current_height: %w", err)
	}
	var height uint64
	if err := json.Unmarshal(raw, &height); err != nil {
		return 0, fmt.Errorf("nativechain: current_height: malformed response: %w", err)
	}
	return height, nil
}

// BlockHash returns the block hash at a given height.
func (c *Client) BlockHash(ctx context.Context, height uint64) (string, error) {
	raw, err := c.call(ctx, "getblockhash", []interface{}{height})
	if err != nil {
		return "", fmt.Errorf("nativechain: getblockhash: %w", err)
	}
	var hash string
	if err := json.Unmarshal(raw, &hash); err != nil {
		return "", fmt.Errorf("nativechain: getblockhash: malformed response: %w", err)
	}
	return hash, nil
}

// RawTransaction fetches the hex-encoded raw transaction for txid.
func (c *Client) RawTransaction(ctx context.Context, txid string) ([]byte, error) {
	raw, err := c.call(ctx, "getrawtransaction", []interface{}{txid, false})
	if err != nil {
		return nil, fmt.Errorf("nativechain: getrawtransaction: %w", err)
	}
	var hexStr string
	if err := json.Unmarshal(raw, &hexStr); err != nil {
		return nil, fmt.Errorf("nativechain: getrawtransaction: malformed response: %w", err)
	}
	return hex.DecodeString(hexStr)
}
