package persistence

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
	"github.com/klingon-exchange/ntvswap/internal/swap"
)

func TestAppendAndTailEvents(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "wal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	now := time.Unix(1_700_000_000, 0)
	if err := store.AppendEvent("deadbeef", "native_observation", `{"status":"locked"}`, now); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.AppendEvent("deadbeef", "quote_observation", `{"status":"locked"}`, now); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	events, err := store.TailSince(0)
	if err != nil {
		t.Fatalf("TailSince: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("expected 2 events, got %d", len(events))
	}
	if events[0].EventType != "native_observation" || events[1].EventType != "quote_observation" {
		t.Fatalf("unexpected event order: %+v", events)
	}

	latest, err := store.LatestSeq()
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}
	if latest != events[1].Seq {
		t.Fatalf("expected latest seq %d, got %d", events[1].Seq, latest)
	}

	if err := store.CompactBefore(events[0].Seq); err != nil {
		t.Fatalf("CompactBefore: %v", err)
	}
	remaining, err := store.TailSince(0)
	if err != nil {
		t.Fatalf("TailSince after compact: %v", err)
	}
	if len(remaining) != 1 || remaining[0].EventType != "quote_observation" {
		t.Fatalf("expected only the quote_observation event to remain, got %+v", remaining)
	}
}

func TestScannedBlockUpsert(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "wal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	if err := store.SetScannedBlock("polygon", 100); err != nil {
		t.Fatalf("SetScannedBlock: %v", err)
	}
	if err := store.SetScannedBlock("polygon", 150); err != nil {
		t.Fatalf("SetScannedBlock (update): %v", err)
	}
	if err := store.SetScannedBlock("native", 50); err != nil {
		t.Fatalf("SetScannedBlock: %v", err)
	}

	heights, err := store.ScannedBlocks()
	if err != nil {
		t.Fatalf("ScannedBlocks: %v", err)
	}
	if heights["polygon"] != 150 || heights["native"] != 50 {
		t.Fatalf("unexpected heights: %+v", heights)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "snapshot.json")

	mgr := swap.NewManager()
	var h bytesorder.EVMHash32
	h[0] = 0x01
	if err := mgr.Register(&swap.Swap{Hashlock: h, NativeAmount: 100}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	known := map[string]KnownHTLC{
		h.String(): {Outpoint: "abc:0", Amount: 100, ClaimAddr: "taker1", RefundAddr: "lp1", ExpiryHeight: 800120, Status: "locked"},
	}
	lastScanned := map[string]uint64{"polygon": 1000}

	if err := ExportSnapshot(path, mgr, lastScanned, known, 42); err != nil {
		t.Fatalf("ExportSnapshot: %v", err)
	}

	snap, err := ImportSnapshot(path)
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if snap.SchemaVersion != SnapshotSchemaVersion {
		t.Fatalf("unexpected schema version %d", snap.SchemaVersion)
	}
	if snap.LastSeq != 42 {
		t.Fatalf("expected last_seq to round-trip, got %d", snap.LastSeq)
	}
	if len(snap.Swaps) != 1 {
		t.Fatalf("expected 1 swap in snapshot, got %d", len(snap.Swaps))
	}
	restored, ok := snap.Swaps[h.String()]
	if !ok || restored.NativeAmount != 100 {
		t.Fatalf("swap not restored correctly: %+v", snap.Swaps)
	}
	if snap.LastScannedBlock["polygon"] != 1000 {
		t.Fatalf("last_scanned_block not restored: %+v", snap.LastScannedBlock)
	}
	if snap.KnownHTLCs[h.String()].Outpoint != "abc:0" {
		t.Fatalf("known_htlcs not restored: %+v", snap.KnownHTLCs)
	}

	mgr2 := swap.NewManager()
	if err := Restore(mgr2, snap); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if mgr2.Get(h) == nil {
		t.Fatalf("expected restored swap to be present in manager")
	}
}

func TestReplayTailAppliesEventsAfterSnapshot(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "wal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	var h bytesorder.EVMHash32
	h[0] = 0x09
	mgr := swap.NewManager()
	if err := mgr.Register(&swap.Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	baseSeq, err := store.LatestSeq()
	if err != nil {
		t.Fatalf("LatestSeq: %v", err)
	}

	now := time.Unix(1_700_000_100, 0)
	if err := store.AppendEvent(h.String(), "quote_locked", `{"status":"locked","amount":500}`, now); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}
	if err := store.AppendEvent(h.String(), "native_htlc_created", `{"status":"locked","amount":5}`, now); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	lastSeq, err := ReplayTail(store, mgr, baseSeq)
	if err != nil {
		t.Fatalf("ReplayTail: %v", err)
	}
	if lastSeq <= baseSeq {
		t.Fatalf("expected lastSeq to advance past baseSeq %d, got %d", baseSeq, lastSeq)
	}

	s := mgr.Get(h)
	if s.Quote == nil || s.Quote.Status != swap.HTLCLocked || s.Quote.Amount != 500 {
		t.Fatalf("expected quote observation replayed, got %+v", s.Quote)
	}
	if s.Native == nil || s.Native.Status != swap.HTLCLocked || s.Native.Amount != 5 {
		t.Fatalf("expected native observation replayed, got %+v", s.Native)
	}
}

func TestReplayTailSkipsUntrackedHashlock(t *testing.T) {
	dir := t.TempDir()
	store, err := Open(filepath.Join(dir, "wal.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer store.Close()

	mgr := swap.NewManager()
	var h bytesorder.EVMHash32
	h[0] = 0x0a
	now := time.Unix(1_700_000_200, 0)
	if err := store.AppendEvent(h.String(), "native_htlc_created", `{"status":"locked"}`, now); err != nil {
		t.Fatalf("AppendEvent: %v", err)
	}

	if _, err := ReplayTail(store, mgr, 0); err != nil {
		t.Fatalf("ReplayTail: %v", err)
	}
	if mgr.Get(h) != nil {
		t.Fatalf("expected untracked hashlock to remain untracked after replay")
	}
}

func TestImportSnapshotMissingFileReturnsEmpty(t *testing.T) {
	snap, err := ImportSnapshot(filepath.Join(t.TempDir(), "does-not-exist.json"))
	if err != nil {
		t.Fatalf("ImportSnapshot: %v", err)
	}
	if len(snap.Swaps) != 0 {
		t.Fatalf("expected empty snapshot for missing file")
	}
}
