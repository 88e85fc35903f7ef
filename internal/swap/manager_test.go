package swap

import (
	"testing"
	"time"

	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
)

func testHashlock(b byte) bytesorder.EVMHash32 {
	var h bytesorder.EVMHash32
	h[0] = b
	return h
}

func TestRegisterRejectsDuplicateHashlock(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x01)

	if err := m.Register(&Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(&Swap{Hashlock: h}); err == nil {
		t.Fatalf("expected error registering a duplicate hashlock")
	}
}

func TestGetReturnsNilForUntrackedHashlock(t *testing.T) {
	m := NewManager()
	if got := m.Get(testHashlock(0xff)); got != nil {
		t.Fatalf("expected nil for untracked hashlock, got %+v", got)
	}
}

func TestApplyNativeObservationRejectsStatusRegression(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x02)
	if err := m.Register(&Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	locked := &HTLCRecord{Hashlock: h, Status: HTLCLocked}
	if err := m.ApplyNativeObservation(h, locked, time.Now()); err != nil {
		t.Fatalf("ApplyNativeObservation (pending->locked): %v", err)
	}

	pending := &HTLCRecord{Hashlock: h, Status: HTLCPending}
	if err := m.ApplyNativeObservation(h, pending, time.Now()); err == nil {
		t.Fatalf("expected regression locked->pending to be rejected")
	}

	// Re-applying the same status is always a no-op, never a rejection.
	if err := m.ApplyNativeObservation(h, locked, time.Now()); err != nil {
		t.Fatalf("expected identity transition to be allowed: %v", err)
	}
}

func TestInvalidateNativeObservationBypassesRegressionGuard(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x03)
	if err := m.Register(&Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	claimed := &HTLCRecord{Hashlock: h, Status: HTLCClaimed}
	if err := m.ApplyNativeObservation(h, claimed, time.Now()); err != nil {
		t.Fatalf("ApplyNativeObservation: %v", err)
	}

	// A plain observation rejecting a claimed->pending regression...
	pending := &HTLCRecord{Hashlock: h, Status: HTLCPending}
	if err := m.ApplyNativeObservation(h, pending, time.Now()); err == nil {
		t.Fatalf("expected regression to be rejected by the normal path")
	}

	// ...but a confirmed-fork invalidation is allowed to roll it back anyway.
	if err := m.InvalidateNativeObservation(h, pending, time.Now()); err != nil {
		t.Fatalf("InvalidateNativeObservation: %v", err)
	}
	if m.Get(h).Native.Status != HTLCPending {
		t.Fatalf("expected native status rolled back to pending after invalidation")
	}
}

func TestApplyPreimageMarksSwap(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x04)
	if err := m.Register(&Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	var preimage [32]byte
	preimage[0] = 0xaa
	if err := m.ApplyPreimage(h, preimage, time.Now()); err != nil {
		t.Fatalf("ApplyPreimage: %v", err)
	}
	s := m.Get(h)
	if !s.PreimageSet || *s.Preimage != preimage {
		t.Fatalf("expected preimage to be recorded, got %+v", s)
	}
}

func TestOpenHashlocksExcludesTerminalSwaps(t *testing.T) {
	m := NewManager()
	active := testHashlock(0x05)
	completed := testHashlock(0x06)

	if err := m.Register(&Swap{Hashlock: active}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.Register(&Swap{Hashlock: completed}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	now := time.Now()
	if err := m.ApplyNativeObservation(completed, &HTLCRecord{Hashlock: completed, Status: HTLCClaimed}, now); err != nil {
		t.Fatalf("ApplyNativeObservation: %v", err)
	}
	if err := m.ApplyQuoteObservation(completed, &HTLCRecord{Hashlock: completed, Status: HTLCClaimed}, now); err != nil {
		t.Fatalf("ApplyQuoteObservation: %v", err)
	}

	open := m.OpenHashlocks()
	if !open[[32]byte(active)] {
		t.Fatalf("expected active swap to be in OpenHashlocks")
	}
	if open[[32]byte(completed)] {
		t.Fatalf("expected completed swap to be excluded from OpenHashlocks")
	}
}

func TestRemovePurgesSwap(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x07)
	if err := m.Register(&Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	m.Remove(h)
	if got := m.Get(h); got != nil {
		t.Fatalf("expected swap to be purged, got %+v", got)
	}
}

func TestAllReturnsEverySwap(t *testing.T) {
	m := NewManager()
	for i := byte(1); i <= 3; i++ {
		if err := m.Register(&Swap{Hashlock: testHashlock(i)}); err != nil {
			t.Fatalf("Register: %v", err)
		}
	}
	if got := len(m.All()); got != 3 {
		t.Fatalf("expected 3 swaps, got %d", got)
	}
}

func TestMarkHungForcesLifecycle(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x09)
	if err := m.Register(&Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := m.MarkHung(h, time.Now()); err != nil {
		t.Fatalf("MarkHung: %v", err)
	}
	if got := m.Get(h).Lifecycle; got != LifecycleHung {
		t.Fatalf("expected lifecycle hung, got %s", got)
	}
}

func TestMarkHungOnUnknownHashlockFails(t *testing.T) {
	m := NewManager()
	if err := m.MarkHung(testHashlock(0x0b), time.Now()); err == nil {
		t.Fatalf("expected error marking an untracked swap hung")
	}
}

func TestApplyObservationOnUnknownHashlockFails(t *testing.T) {
	m := NewManager()
	h := testHashlock(0x08)
	if err := m.ApplyNativeObservation(h, &HTLCRecord{Status: HTLCLocked}, time.Now()); err == nil {
		t.Fatalf("expected error applying an observation for an untracked swap")
	}
}
