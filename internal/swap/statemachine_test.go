package swap

import (
	"testing"
	"time"
)

func TestIsAllowedTransition(t *testing.T) {
	cases := []struct {
		from, to HTLCStatus
		want     bool
	}{
		{HTLCPending, HTLCLocked, true},
		{HTLCLocked, HTLCClaimed, true},
		{HTLCLocked, HTLCRefunded, true},
		{HTLCLocked, HTLCExpired, true},
		{HTLCExpired, HTLCRefunded, true},
		{HTLCClaimed, HTLCPending, false},
		{HTLCLocked, HTLCPending, false},
		{HTLCRefunded, HTLCLocked, false},
		{HTLCClaimed, HTLCClaimed, true}, // identity is always allowed
	}
	for _, c := range cases {
		if got := IsAllowedTransition(c.from, c.to); got != c.want {
			t.Errorf("IsAllowedTransition(%s, %s) = %v, want %v", c.from, c.to, got, c.want)
		}
	}
}

func TestDeriveStatesBrowseWhenNothingLocked(t *testing.T) {
	s := &Swap{Hashlock: testHashlock(0x10)}
	taker, lp := DeriveStates(s, time.Now())
	if taker != TakerBrowse || lp != LPInventory {
		t.Fatalf("expected browse/inventory, got %s/%s", taker, lp)
	}
}

func TestDeriveStatesQuoteLockedNativeAbsent(t *testing.T) {
	now := time.Now()
	s := &Swap{
		Hashlock: testHashlock(0x11),
		Quote:    &HTLCRecord{Status: HTLCLocked, ExpiryUnix: now.Add(time.Hour).Unix()},
	}
	taker, lp := DeriveStates(s, now)
	if taker != TakerLocked || lp != LPTaken {
		t.Fatalf("expected locked/taken, got %s/%s", taker, lp)
	}
}

func TestDeriveStatesBothLockedIsClaimable(t *testing.T) {
	now := time.Now()
	s := &Swap{
		Hashlock: testHashlock(0x12),
		Native:   &HTLCRecord{Status: HTLCLocked},
		Quote:    &HTLCRecord{Status: HTLCLocked, ExpiryUnix: now.Add(time.Hour).Unix()},
	}
	taker, lp := DeriveStates(s, now)
	if taker != TakerClaimable || lp != LPTaken {
		t.Fatalf("expected claimable/taken, got %s/%s", taker, lp)
	}
}

func TestDeriveStatesNativeClaimedCompletesTaker(t *testing.T) {
	now := time.Now()
	s := &Swap{
		Hashlock: testHashlock(0x13),
		Native:   &HTLCRecord{Status: HTLCClaimed},
		Quote:    &HTLCRecord{Status: HTLCLocked},
	}
	taker, lp := DeriveStates(s, now)
	if taker != TakerCompleted {
		t.Fatalf("expected taker completed once native is claimed, got %s", taker)
	}
	if lp != LPReleased {
		t.Fatalf("expected LP released when preimage not yet known, got %s", lp)
	}

	s.PreimageSet = true
	_, lp = DeriveStates(s, now)
	if lp != LPClaiming {
		t.Fatalf("expected LP claiming once preimage is known and quote still locked, got %s", lp)
	}
}

func TestDeriveStatesQuoteExpiredIsRefundable(t *testing.T) {
	now := time.Now()
	s := &Swap{
		Hashlock: testHashlock(0x14),
		Quote:    &HTLCRecord{Status: HTLCLocked, ExpiryUnix: now.Add(-time.Hour).Unix()},
	}
	taker, lp := DeriveStates(s, now)
	if taker != TakerRefundable {
		t.Fatalf("expected refundable taker state past quote expiry, got %s", taker)
	}
	if lp != LPInventory {
		t.Fatalf("expected LP inventory when native was never created, got %s", lp)
	}
}

func TestDeriveStatesExpiryBoundaryIsStrict(t *testing.T) {
	expiry := time.Now()
	s := &Swap{
		Hashlock: testHashlock(0x15),
		Quote:    &HTLCRecord{Status: HTLCLocked, ExpiryUnix: expiry.Unix()},
	}
	// At exactly the expiry instant, the quote HTLC is not yet expired.
	taker, _ := DeriveStates(s, expiry)
	if taker != TakerLocked {
		t.Fatalf("expected still-locked at the expiry boundary, got %s", taker)
	}
	// One second past, it is.
	taker, _ = DeriveStates(s, expiry.Add(time.Second))
	if taker != TakerRefundable {
		t.Fatalf("expected refundable just past the expiry boundary, got %s", taker)
	}
}

func TestDeriveStatesNativeExpiredMarksLPExpired(t *testing.T) {
	now := time.Now()
	s := &Swap{
		Hashlock: testHashlock(0x16),
		Native:   &HTLCRecord{Status: HTLCLocked, ExpiryUnix: now.Add(-time.Hour).Unix()},
	}
	_, lp := DeriveStates(s, now)
	if lp != LPExpired {
		t.Fatalf("expected LP expired once native HTLC's timelock has passed, got %s", lp)
	}
}

func TestNativeExpiredAtHeightIsStrictAtBoundary(t *testing.T) {
	rec := &HTLCRecord{ExpiryNativeHeight: 800000}
	if NativeExpiredAtHeight(rec, 800000) {
		t.Fatalf("expected not expired exactly at the expiry height")
	}
	if !NativeExpiredAtHeight(rec, 800001) {
		t.Fatalf("expected expired one block past the expiry height")
	}
}

func TestRefreshSetsLifecycleCompleted(t *testing.T) {
	s := &Swap{
		Hashlock: testHashlock(0x17),
		Native:   &HTLCRecord{Status: HTLCClaimed},
		Quote:    &HTLCRecord{Status: HTLCClaimed},
	}
	s.Refresh(time.Now())
	if s.Lifecycle != LifecycleCompleted {
		t.Fatalf("expected lifecycle completed when both sides claimed, got %s", s.Lifecycle)
	}
}

func TestRefreshSetsLifecycleRefunded(t *testing.T) {
	s := &Swap{
		Hashlock: testHashlock(0x18),
		Native:   &HTLCRecord{Status: HTLCRefunded},
		Quote:    &HTLCRecord{Status: HTLCRefunded},
	}
	s.Refresh(time.Now())
	if s.Lifecycle != LifecycleRefunded {
		t.Fatalf("expected lifecycle refunded when both sides refunded, got %s", s.Lifecycle)
	}
}
