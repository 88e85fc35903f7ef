// Package swap implements the swap data model and the state machine that folds
// native-side and quote-side chain observations into a unified swap state
// (spec §3, §4.5 — "the heart of the core"). It is grounded in the shape of the
// teacher's internal/swap/swap.go (mutex-guarded swap struct, JSON
// (de)serialization for persistence) generalized from the teacher's MuSig2/
// cross-chain swap protocol to this spec's HTLC-only, two-chain-family model.
package swap

import (
	"time"

	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
)

// Direction indicates which side of the pair the taker is acquiring.
type Direction string

const (
	// DirectionTakerBuysNative: taker pays quote asset, receives native asset.
	DirectionTakerBuysNative Direction = "taker_buys_native"
	// DirectionTakerSellsNative: taker pays native asset, receives quote asset.
	DirectionTakerSellsNative Direction = "taker_sells_native"
)

// HTLCStatus is the per-side HTLC lifecycle status (spec §3).
//
// EXPIRED is kept as a distinct status from REFUNDED: an HTLC becomes EXPIRED
// once its timelock has passed while still unclaimed, and only becomes
// REFUNDED once a refund transaction actually confirms. This distinction is
// confirmed by the original Python prototype's HTLCStatus enum
// (sdk/dex_types.py), which the distilled spec's invariant table left
// implicit.
type HTLCStatus string

const (
	HTLCPending  HTLCStatus = "pending"
	HTLCLocked   HTLCStatus = "locked"
	HTLCClaimed  HTLCStatus = "claimed"
	HTLCRefunded HTLCStatus = "refunded"
	HTLCExpired  HTLCStatus = "expired"
)

// allowedEdges enumerates the legal per-side status transitions (spec §3 I6,
// spec §8 "s₀ → s₁ ∈ allowed_edges"). Regressions not in this set are rejected
// as reorg artifacts requiring reconciliation rather than applied directly.
var allowedEdges = map[HTLCStatus]map[HTLCStatus]bool{
	HTLCPending: {HTLCLocked: true},
	HTLCLocked:  {HTLCClaimed: true, HTLCRefunded: true, HTLCExpired: true},
	HTLCExpired: {HTLCRefunded: true},
}

// IsAllowedTransition reports whether s0 -> s1 is a legal per-side status edge.
// The identity transition (s0 == s1) is always allowed: re-applying an
// observed event is a no-op (spec §8 idempotence property).
func IsAllowedTransition(s0, s1 HTLCStatus) bool {
	if s0 == s1 {
		return true
	}
	return allowedEdges[s0][s1]
}

// HTLCRecord is the per-side HTLC record (spec §3 "HTLC record (per side)").
type HTLCRecord struct {
	ChainID int64 `json:"chain_id"` // native chain: 0; EVM: the chain's chain ID

	Amount uint64 `json:"amount"`

	Hashlock bytesorder.EVMHash32 `json:"hashlock"`

	ClaimDestination    string `json:"claim_destination"`
	RefundDestination   string `json:"refund_destination"`
	ClaimSigningAuthority  string `json:"claim_signing_authority"`
	RefundSigningAuthority string `json:"refund_signing_authority"`

	// ExpiryNativeHeight is set for the native-chain HTLC (block height, CLTV).
	ExpiryNativeHeight uint64 `json:"expiry_native_height,omitempty"`
	// ExpiryUnix is set for the EVM HTLC (unix seconds).
	ExpiryUnix int64 `json:"expiry_unix,omitempty"`

	// ObservedHeight is the chain height at which this record's locking
	// event was observed (native: block height at HTLC creation; EVM: the
	// Locked event's block number). A confirmed reorg that invalidates
	// blocks at or above this height must roll the record back to PENDING
	// (spec §5 "invalidates any swap-state transitions observed in orphaned
	// blocks").
	ObservedHeight uint64 `json:"observed_height,omitempty"`

	Status HTLCStatus `json:"status"`

	// Outpoint identifies the native UTXO (txid:vout); empty for EVM HTLCs.
	Outpoint string `json:"outpoint,omitempty"`
	// SwapID is the EVM contract's bytes32 swap identifier; empty for native.
	SwapID string `json:"swap_id,omitempty"`

	CreationTxID string `json:"creation_tx_id,omitempty"`
	ClaimTxID    string `json:"claim_tx_id,omitempty"`
	RefundTxID   string `json:"refund_tx_id,omitempty"`

	// Confirmations is the last-observed confirmation depth. A status
	// transition derived from an observation below the chain's configured
	// N_reorg is advisory only (spec §4.5 "Before N_reorg, the state is
	// advisory").
	Confirmations uint64 `json:"confirmations"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TakerState is the taker-perspective derived state (spec §4.5).
type TakerState string

const (
	TakerBrowse     TakerState = "browse"
	TakerLocking    TakerState = "locking"
	TakerLocked     TakerState = "locked"
	TakerClaimable  TakerState = "claimable"
	TakerCompleted  TakerState = "completed"
	TakerRefundable TakerState = "refundable"
	TakerRefunded   TakerState = "refunded"
)

// LPState is the LP-perspective derived state (spec §4.5).
type LPState string

const (
	LPInventory LPState = "inventory"
	LPTaken     LPState = "taken"
	LPClaiming  LPState = "claiming"
	LPClaimed   LPState = "claimed"
	LPReleased  LPState = "released"
	LPExpired   LPState = "expired"
)

// LifecycleStatus is the overall swap lifecycle terminal/non-terminal marker
// (spec §3 "Lifecycle").
type LifecycleStatus string

const (
	LifecycleActive    LifecycleStatus = "active"
	LifecycleCompleted LifecycleStatus = "completed" // both sides CLAIMED
	LifecycleRefunded  LifecycleStatus = "refunded"  // both sides REFUNDED
	LifecycleHung      LifecycleStatus = "hung"      // one side claimed, other unreachable
)

// Swap is the unit of atomic exchange (spec §3).
type Swap struct {
	Hashlock bytesorder.EVMHash32 `json:"hashlock"`

	Direction Direction `json:"direction"`

	NativeAmount uint64 `json:"native_amount"`
	QuoteAmount  uint64 `json:"quote_amount"`

	QuoteChain        string `json:"quote_chain"`
	QuoteTokenAddress string `json:"quote_token_address"`

	LPNativeAddr    string `json:"lp_native_addr"`
	LPQuoteAddr     string `json:"lp_quote_addr"`
	TakerNativeAddr string `json:"taker_native_addr"`
	TakerQuoteAddr  string `json:"taker_quote_addr"`

	Native *HTLCRecord `json:"native,omitempty"`
	Quote  *HTLCRecord `json:"quote,omitempty"`

	// Preimage is set only after it has been observed/revealed on-chain.
	Preimage    *[32]byte `json:"preimage,omitempty"`
	PreimageSet bool      `json:"preimage_set"`

	DerivedTakerState TakerState      `json:"derived_taker_state"`
	DerivedLPState    LPState         `json:"derived_lp_state"`
	Lifecycle         LifecycleStatus `json:"lifecycle"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ShortHashlock returns a short prefix of the hashlock for log records (spec
// §7: "structured log record with the swap's H as a short prefix to avoid
// log bloat").
func (s *Swap) ShortHashlock() string {
	str := s.Hashlock.String()
	if len(str) > 14 {
		return str[:14]
	}
	return str
}
