package swap

import "time"

// DeriveStates folds the current native/quote HTLC observations (plus
// knowledge of a revealed preimage) into taker and LP states, applying the
// derivation rules of spec §4.5 in order — first match wins. Tie-breaks:
// preimage presence dominates; status-CLAIMED dominates status-LOCKED; newer
// reorg-stable observations dominate older ones (the caller is responsible for
// only invoking DeriveStates with reorg-stable observations, or for treating
// its result as advisory below N_reorg, per spec §4.5).
func DeriveStates(s *Swap, now time.Time) (TakerState, LPState) {
	native := s.Native
	quote := s.Quote
	hasPreimage := s.PreimageSet

	// Rule 1: native HTLC CLAIMED -> taker COMPLETED; if preimage extracted
	// and quote not withdrawn, LP should be CLAIMING.
	if native != nil && native.Status == HTLCClaimed {
		taker := TakerCompleted
		lp := LPReleased
		if hasPreimage && quote != nil && quote.Status == HTLCLocked {
			lp = LPClaiming
		} else if quote != nil && quote.Status == HTLCClaimed {
			lp = LPClaimed
		}
		return taker, lp
	}

	// Rule 2: preimage known (extracted from native claim tx) and quote HTLC
	// LOCKED -> LP CLAIMING, taker COMPLETED.
	if hasPreimage && quote != nil && quote.Status == HTLCLocked {
		return TakerCompleted, LPClaiming
	}

	// Rule 3: native HTLC exists and LOCKED and quote HTLC LOCKED -> taker
	// CLAIMABLE, LP TAKEN.
	if native != nil && native.Status == HTLCLocked && quote != nil && quote.Status == HTLCLocked {
		return TakerClaimable, LPTaken
	}

	// Rule 4: quote HTLC LOCKED, native HTLC absent, quote timelock not
	// expired -> taker LOCKED, LP TAKEN.
	if quote != nil && quote.Status == HTLCLocked && native == nil {
		if !quoteExpired(quote, now) {
			return TakerLocked, LPTaken
		}
		// Rule 5: quote HTLC LOCKED and now > quote_timelock -> taker
		// REFUNDABLE.
		return TakerRefundable, LPTaken
	}

	// Rule 5 (general case): quote HTLC LOCKED and now > quote_timelock ->
	// taker REFUNDABLE, regardless of native HTLC presence, unless rule 3
	// already matched (native LOCKED) above.
	if quote != nil && quote.Status == HTLCLocked && quoteExpired(quote, now) {
		lp := LPInventory
		if native != nil {
			lp = LPTaken
		}
		return TakerRefundable, lp
	}

	// Rule 6: native HTLC past expiry and not CLAIMED -> LP EXPIRED.
	if native != nil && nativeExpired(native, now) && native.Status != HTLCClaimed {
		taker := TakerLocked
		if quote != nil {
			switch quote.Status {
			case HTLCClaimed:
				taker = TakerCompleted
			case HTLCRefunded:
				taker = TakerRefunded
			}
		}
		return taker, LPExpired
	}

	if quote != nil && quote.Status == HTLCRefunded {
		return TakerRefunded, LPInventory
	}

	// Rule 7: otherwise, BROWSE / INVENTORY.
	taker := TakerBrowse
	if quote != nil && quote.Status == HTLCPending {
		taker = TakerLocking
	}
	lp := LPInventory
	return taker, lp
}

func quoteExpired(quote *HTLCRecord, now time.Time) bool {
	if quote.ExpiryUnix == 0 {
		return false
	}
	// Strict inequality: at now == expiry exactly, not yet expired (spec §8
	// boundary behavior).
	return now.Unix() > quote.ExpiryUnix
}

func nativeExpired(native *HTLCRecord, now time.Time) bool {
	// Height-based expiry is evaluated by the caller against the current
	// chain tip via NativeExpiredAtHeight; this helper covers the case where
	// the caller has already translated height to wall time on the record
	// (ExpiryUnix populated for a native record by the adapter boundary).
	if native.ExpiryUnix != 0 {
		return now.Unix() > native.ExpiryUnix
	}
	return false
}

// NativeExpiredAtHeight reports whether a native HTLC's expiry has passed at
// the given current chain height, with strict inequality at the boundary
// (spec §8: "at native expiry height exactly, refund must not yet be
// accepted; at height+1, it must be").
func NativeExpiredAtHeight(native *HTLCRecord, currentHeight uint64) bool {
	if native.ExpiryNativeHeight == 0 {
		return false
	}
	return currentHeight > native.ExpiryNativeHeight
}

// Refresh recomputes and stores the swap's derived states and overall
// lifecycle status. Callers invoke this after applying any chain observation.
func (s *Swap) Refresh(now time.Time) {
	taker, lp := DeriveStates(s, now)
	s.DerivedTakerState = taker
	s.DerivedLPState = lp
	s.Lifecycle = deriveLifecycle(s, taker, lp)
	s.UpdatedAt = now
}

func deriveLifecycle(s *Swap, taker TakerState, lp LPState) LifecycleStatus {
	nativeClaimed := s.Native != nil && s.Native.Status == HTLCClaimed
	quoteClaimed := s.Quote != nil && s.Quote.Status == HTLCClaimed
	nativeRefunded := s.Native != nil && s.Native.Status == HTLCRefunded
	quoteRefunded := s.Quote != nil && s.Quote.Status == HTLCRefunded

	switch {
	case nativeClaimed && quoteClaimed:
		return LifecycleCompleted
	case nativeRefunded && quoteRefunded:
		return LifecycleRefunded
	case (nativeClaimed && s.Quote != nil && !quoteClaimed && !quoteRefunded) && taker == TakerCompleted && lp != LPClaiming:
		// one side claimed, the other unreachable for longer than policy allows
		return LifecycleHung
	default:
		return LifecycleActive
	}
}
