package swap

import (
	"fmt"
	"sync"
	"time"

	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
)

// Manager owns the canonical map from hashlock to swap record (spec §3
// "Ownership": "The swap watcher owns the canonical map from H to swap
// record"). It is an explicitly instantiated, non-global structure per spec
// §9's "Global-ish state" design note — the teacher's module-level pending
// swap dictionaries become this owned struct, constructed once per
// orchestrator process and passed explicitly to callers; tests construct
// their own instance.
type Manager struct {
	mu    sync.RWMutex
	swaps map[bytesorder.EVMHash32]*Swap
}

// NewManager creates an empty swap manager.
func NewManager() *Manager {
	return &Manager{swaps: make(map[bytesorder.EVMHash32]*Swap)}
}

// Register adds a new swap, rejecting a duplicate hashlock (spec invariant
// I1: "No two open swaps share an H (the registry rejects duplicates)").
func (m *Manager) Register(s *Swap) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.swaps[s.Hashlock]; exists {
		return fmt.Errorf("swap: duplicate hashlock %s", s.Hashlock.String())
	}
	now := time.Now()
	if s.CreatedAt.IsZero() {
		s.CreatedAt = now
	}
	s.Refresh(now)
	m.swaps[s.Hashlock] = s
	return nil
}

// Get returns the swap for a hashlock, or nil if it is not (or no longer)
// tracked. Per spec §3 "Ownership", callers hold only a handle by hashlock;
// if the swap has been purged, subsequent Get calls simply return nil rather
// than panicking or returning a stale pointer.
func (m *Manager) Get(h bytesorder.EVMHash32) *Swap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.swaps[h]
}

// All returns a snapshot slice of all tracked swaps.
func (m *Manager) All() []*Swap {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Swap, 0, len(m.swaps))
	for _, s := range m.swaps {
		out = append(out, s)
	}
	return out
}

// Remove purges a swap from the canonical map (used once a swap reaches a
// terminal lifecycle status and has been durably recorded by persistence).
func (m *Manager) Remove(h bytesorder.EVMHash32) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.swaps, h)
}

// OpenHashlocks returns the set of hashlocks for swaps that have not yet
// reached a terminal lifecycle, for use by htlc.ExtractFromWitness /
// htlc.ParseScriptSig (spec §9 preimage-extraction robustness note).
func (m *Manager) OpenHashlocks() map[[32]byte]bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[[32]byte]bool, len(m.swaps))
	for h, s := range m.swaps {
		if s.Lifecycle == LifecycleActive || s.Lifecycle == LifecycleHung {
			out[[32]byte(h)] = true
		}
	}
	return out
}

// ApplyNativeObservation merges a fresh native-side HTLC observation into the
// tracked swap and re-derives state. Reorg-safety: a status regression not in
// allowedEdges is rejected (spec I6) and the caller is expected to treat it
// as a reorg artifact requiring reconciliation rather than an update.
func (m *Manager) ApplyNativeObservation(h bytesorder.EVMHash32, rec *HTLCRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swaps[h]
	if !ok {
		return fmt.Errorf("swap: no tracked swap for hashlock %s", h.String())
	}
	if s.Native != nil && !IsAllowedTransition(s.Native.Status, rec.Status) {
		return fmt.Errorf("swap: rejected native status regression %s -> %s for %s (reorg?)",
			s.Native.Status, rec.Status, h.String())
	}
	s.Native = rec
	s.Refresh(now)
	return nil
}

// ApplyQuoteObservation merges a fresh quote-side (EVM) HTLC observation.
func (m *Manager) ApplyQuoteObservation(h bytesorder.EVMHash32, rec *HTLCRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swaps[h]
	if !ok {
		return fmt.Errorf("swap: no tracked swap for hashlock %s", h.String())
	}
	if s.Quote != nil && !IsAllowedTransition(s.Quote.Status, rec.Status) {
		return fmt.Errorf("swap: rejected quote status regression %s -> %s for %s (reorg?)",
			s.Quote.Status, rec.Status, h.String())
	}
	s.Quote = rec
	s.Refresh(now)
	return nil
}

// InvalidateNativeObservation forcibly rolls back the native-side status to
// rec, bypassing the allowedEdges regression guard. Unlike
// ApplyNativeObservation, this is used exclusively by the reorg detector
// once it has confirmed the previously-observed block is no longer on the
// canonical chain (spec §5: "invalidates any swap-state transitions observed
// in orphaned blocks") — the regression here is not a bug, it is the correct
// response to a fork.
func (m *Manager) InvalidateNativeObservation(h bytesorder.EVMHash32, rec *HTLCRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swaps[h]
	if !ok {
		return fmt.Errorf("swap: no tracked swap for hashlock %s", h.String())
	}
	s.Native = rec
	s.Refresh(now)
	return nil
}

// InvalidateQuoteObservation is InvalidateNativeObservation's quote-side
// counterpart.
func (m *Manager) InvalidateQuoteObservation(h bytesorder.EVMHash32, rec *HTLCRecord, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swaps[h]
	if !ok {
		return fmt.Errorf("swap: no tracked swap for hashlock %s", h.String())
	}
	s.Quote = rec
	s.Refresh(now)
	return nil
}

// MarkHung forces a swap's lifecycle to LifecycleHung, bypassing Refresh's
// derivation (deriveLifecycle has no rule for a policy-driven violation such
// as a timelock invariant breach - spec §7 "TimelockViolated: fatal for the
// swap - move to HUNG, alert"). Once hung, a swap is excluded from further
// automatic handling and waits for operator intervention.
func (m *Manager) MarkHung(h bytesorder.EVMHash32, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swaps[h]
	if !ok {
		return fmt.Errorf("swap: no tracked swap for hashlock %s", h.String())
	}
	s.Lifecycle = LifecycleHung
	s.UpdatedAt = now
	return nil
}

// ApplyPreimage records a revealed preimage against the tracked swap, after
// the caller has already verified SHA256(preimage) == hashlock (spec I2).
func (m *Manager) ApplyPreimage(h bytesorder.EVMHash32, preimage [32]byte, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.swaps[h]
	if !ok {
		return fmt.Errorf("swap: no tracked swap for hashlock %s", h.String())
	}
	s.Preimage = &preimage
	s.PreimageSet = true
	s.Refresh(now)
	return nil
}
