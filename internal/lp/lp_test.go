package lp

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/klingon-exchange/ntvswap/internal/alerts"
	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
	"github.com/klingon-exchange/ntvswap/internal/config"
	"github.com/klingon-exchange/ntvswap/internal/persistence"
	"github.com/klingon-exchange/ntvswap/internal/registry"
	"github.com/klingon-exchange/ntvswap/internal/swap"
)

func newTestOrchestrator(t *testing.T, registryURL string) *Orchestrator {
	t.Helper()
	reg, err := registry.NewClient(registryURL, 0, true)
	if err != nil {
		t.Fatalf("registry.NewClient: %v", err)
	}
	cfg := config.DefaultConfig()
	return New(cfg, nil, map[string]*QuoteChain{}, reg, nil, nil, alerts.NewHub())
}

func TestNativeAmountForQuoteUsesOfferPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(registry.Offer{
			Hashlock:          "deadbeef",
			PriceQuotePerUnit: 25,
			MinQuoteAmount:    100,
		})
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL)
	var h bytesorder.EVMHash32
	h[0] = 0xde

	amount, err := o.nativeAmountForQuote(context.Background(), h, 500)
	if err != nil {
		t.Fatalf("nativeAmountForQuote: %v", err)
	}
	if amount != 20 {
		t.Fatalf("expected 500/25 = 20, got %d", amount)
	}
}

func TestNativeAmountForQuoteRejectsBelowOfferMinimum(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(registry.Offer{
			Hashlock:          "deadbeef",
			PriceQuotePerUnit: 25,
			MinQuoteAmount:    1000,
		})
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL)
	var h bytesorder.EVMHash32

	if _, err := o.nativeAmountForQuote(context.Background(), h, 500); err == nil {
		t.Fatalf("expected error for quote amount below offer minimum")
	}
}

func newTestOrchestratorWithStore(t *testing.T) (*Orchestrator, *swap.Manager, *persistence.Store) {
	t.Helper()
	reg, err := registry.NewClient("http://127.0.0.1:0", 0, true)
	if err != nil {
		t.Fatalf("registry.NewClient: %v", err)
	}
	store, err := persistence.Open(filepath.Join(t.TempDir(), "wal.db"))
	if err != nil {
		t.Fatalf("persistence.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	mgr := swap.NewManager()
	cfg := config.DefaultConfig()
	o := New(cfg, nil, map[string]*QuoteChain{}, reg, store, mgr, alerts.NewHub())
	return o, mgr, store
}

func TestRespondSkipsHungSwaps(t *testing.T) {
	o, mgr, _ := newTestOrchestratorWithStore(t)
	var h bytesorder.EVMHash32
	h[0] = 0x21
	now := time.Now()
	if err := mgr.Register(&swap.Swap{Hashlock: h, Quote: &swap.HTLCRecord{Status: swap.HTLCLocked, ExpiryUnix: now.Add(time.Hour).Unix()}}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mgr.MarkHung(h, now); err != nil {
		t.Fatalf("MarkHung: %v", err)
	}

	// respond would otherwise call createNativeHTLC, which would fail loudly
	// against a nil registry client; since the swap is HUNG it must be
	// skipped entirely.
	if err := o.respond(context.Background()); err != nil {
		t.Fatalf("respond: %v", err)
	}
	if got := mgr.Get(h).Native; got != nil {
		t.Fatalf("expected HUNG swap to be left untouched, got native record %+v", got)
	}
}

func TestInvalidateReorgRollsBackNativeObservation(t *testing.T) {
	o, mgr, _ := newTestOrchestratorWithStore(t)
	var h bytesorder.EVMHash32
	h[0] = 0x22
	now := time.Now()
	if err := mgr.Register(&swap.Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mgr.ApplyNativeObservation(h, &swap.HTLCRecord{Status: swap.HTLCLocked, ObservedHeight: 1000}, now); err != nil {
		t.Fatalf("ApplyNativeObservation: %v", err)
	}

	o.InvalidateReorg("native", 900)

	if got := mgr.Get(h).Native.Status; got != swap.HTLCPending {
		t.Fatalf("expected native status rolled back to pending, got %s", got)
	}
}

func TestInvalidateReorgLeavesObservationsBelowForkPointUntouched(t *testing.T) {
	o, mgr, _ := newTestOrchestratorWithStore(t)
	var h bytesorder.EVMHash32
	h[0] = 0x23
	now := time.Now()
	if err := mgr.Register(&swap.Swap{Hashlock: h}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mgr.ApplyNativeObservation(h, &swap.HTLCRecord{Status: swap.HTLCLocked, ObservedHeight: 500}, now); err != nil {
		t.Fatalf("ApplyNativeObservation: %v", err)
	}

	o.InvalidateReorg("native", 900)

	if got := mgr.Get(h).Native.Status; got != swap.HTLCLocked {
		t.Fatalf("expected observation below the fork point to remain locked, got %s", got)
	}
}

func TestInvalidateReorgRewindsQuoteScanCursor(t *testing.T) {
	o, mgr, store := newTestOrchestratorWithStore(t)
	o.lastScanned["polygon"] = 2000
	if err := store.SetScannedBlock("polygon", 2000); err != nil {
		t.Fatalf("SetScannedBlock: %v", err)
	}

	var h bytesorder.EVMHash32
	h[0] = 0x24
	now := time.Now()
	if err := mgr.Register(&swap.Swap{Hashlock: h, QuoteChain: "polygon"}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if err := mgr.ApplyQuoteObservation(h, &swap.HTLCRecord{Status: swap.HTLCLocked, ObservedHeight: 1900}, now); err != nil {
		t.Fatalf("ApplyQuoteObservation: %v", err)
	}

	o.InvalidateReorg("polygon", 1800)

	if got := mgr.Get(h).Quote.Status; got != swap.HTLCPending {
		t.Fatalf("expected quote status rolled back to pending, got %s", got)
	}
	if o.lastScanned["polygon"] != 1799 {
		t.Fatalf("expected scan cursor rewound to 1799, got %d", o.lastScanned["polygon"])
	}
	heights, err := store.ScannedBlocks()
	if err != nil {
		t.Fatalf("ScannedBlocks: %v", err)
	}
	if heights["polygon"] != 1799 {
		t.Fatalf("expected persisted scan cursor rewound to 1799, got %d", heights["polygon"])
	}
}

func TestNativeAmountForQuoteFallsBackTo1to1WhenNoOfferPublished(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	o := newTestOrchestrator(t, srv.URL)
	var h bytesorder.EVMHash32

	amount, err := o.nativeAmountForQuote(context.Background(), h, 500)
	if err != nil {
		t.Fatalf("nativeAmountForQuote: %v", err)
	}
	if amount != 500 {
		t.Fatalf("expected fallback 1:1 amount of 500, got %d", amount)
	}
}
