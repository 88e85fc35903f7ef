// Package lp implements the LP orchestrator (spec §4.6): a single cooperative
// task that runs Detection, Response, and Expiry-sweep phases once per poll
// interval. It is grounded directly in the original Python prototype's
// lp_bot.py LPBot class (run_once/run split, scan-then-claim structure,
// hashlock-keyed state), generalized from "only claim on Polygon after seeing
// a BATHRON preimage" to the full two-phase create-then-claim flow this
// spec's symmetric HTLC design requires, and fanned out across every
// configured EVM chain rather than lp_bot.py's single hard-coded Polygon
// claimer.
package lp

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"

	"github.com/klingon-exchange/ntvswap/internal/alerts"
	"github.com/klingon-exchange/ntvswap/internal/bytesorder"
	"github.com/klingon-exchange/ntvswap/internal/config"
	"github.com/klingon-exchange/ntvswap/internal/errkind"
	"github.com/klingon-exchange/ntvswap/internal/evmchain"
	"github.com/klingon-exchange/ntvswap/internal/htlc"
	"github.com/klingon-exchange/ntvswap/internal/nativechain"
	"github.com/klingon-exchange/ntvswap/internal/persistence"
	"github.com/klingon-exchange/ntvswap/internal/registry"
	"github.com/klingon-exchange/ntvswap/internal/swap"
	"github.com/klingon-exchange/ntvswap/internal/timelock"
	"github.com/klingon-exchange/ntvswap/pkg/helpers"
	"github.com/klingon-exchange/ntvswap/pkg/logging"
)

// QuoteChain pairs an evmchain.Client with the chain-specific transactor and
// ERC-20 handle the LP needs to respond to locks on it.
type QuoteChain struct {
	Client *evmchain.Client
	ERC20  *evmchain.ERC20
	Auth   *bind.TransactOpts
}

// Orchestrator is the LP's single cooperative background task.
type Orchestrator struct {
	cfg      *config.Config
	native   *nativechain.Client
	quotes   map[string]*QuoteChain // keyed by config.EVMNetwork.Name
	registry *registry.Client
	store    *persistence.Store
	manager  *swap.Manager
	hub      *alerts.Hub
	log      *logging.Logger

	lastScanned map[string]uint64
}

// New builds an LP orchestrator from already-dialed chain adapters.
func New(cfg *config.Config, native *nativechain.Client, quotes map[string]*QuoteChain, reg *registry.Client, store *persistence.Store, mgr *swap.Manager, hub *alerts.Hub) *Orchestrator {
	return &Orchestrator{
		cfg:         cfg,
		native:      native,
		quotes:      quotes,
		registry:    reg,
		store:       store,
		manager:     mgr,
		hub:         hub,
		log:         logging.GetDefault().Component("lp"),
		lastScanned: map[string]uint64{},
	}
}

// Run drives the orchestrator's poll loop until ctx is cancelled. A second,
// slower ticker periodically exports a snapshot and compacts the
// write-ahead log behind it (spec §4.8), so a restart has bounded recovery
// cost instead of replaying the log from its very first event.
func (o *Orchestrator) Run(ctx context.Context) {
	o.log.Info("LP orchestrator starting", "poll_interval", o.cfg.PollInterval())

	o.lastScanned, _ = o.store.ScannedBlocks()

	ticker := time.NewTicker(o.cfg.PollInterval())
	defer ticker.Stop()

	snapshotTicker := time.NewTicker(o.cfg.SnapshotInterval())
	defer snapshotTicker.Stop()

	for {
		if err := o.RunOnce(ctx); err != nil {
			o.log.Error("LP orchestrator iteration failed", "error", err)
		}
		select {
		case <-ctx.Done():
			o.exportSnapshot()
			o.log.Info("LP orchestrator shutting down")
			return
		case <-snapshotTicker.C:
			o.exportSnapshot()
		case <-ticker.C:
		}
	}
}

// exportSnapshot writes the current swap state to disk and compacts the
// write-ahead log up to the point it captures (spec §4.8). Failures are
// logged and alerted on, not fatal: the log itself remains the durable
// record until the next successful export.
func (o *Orchestrator) exportSnapshot() {
	if o.cfg.SnapshotPath == "" {
		return
	}
	seq, err := o.store.LatestSeq()
	if err != nil {
		o.log.Error("failed to read latest log sequence before snapshot export", "error", err)
		return
	}
	known := buildKnownHTLCs(o.manager)
	if err := persistence.ExportSnapshot(o.cfg.SnapshotPath, o.manager, o.lastScanned, known, seq); err != nil {
		o.log.Error("failed to export snapshot", "path", o.cfg.SnapshotPath, "error", err)
		o.hub.Emit(alerts.EventPersistenceFailure, map[string]string{"reason": "snapshot_export_failed"})
		return
	}
	if err := o.store.CompactBefore(seq); err != nil {
		o.log.Error("failed to compact write-ahead log after snapshot export", "error", err)
		return
	}
	o.log.Debug("snapshot exported", "path", o.cfg.SnapshotPath, "compacted_through_seq", seq)
}

// buildKnownHTLCs derives the secondary re-registration map (spec §4.8) from
// every swap's currently-known native-side record, so a restored process can
// re-register outstanding HTLCs with the native chain daemon even if the
// daemon itself doesn't persist unconfirmed HTLC tracking.
func buildKnownHTLCs(mgr *swap.Manager) map[string]persistence.KnownHTLC {
	out := make(map[string]persistence.KnownHTLC)
	for _, s := range mgr.All() {
		if s.Native == nil {
			continue
		}
		out[s.Hashlock.String()] = persistence.KnownHTLC{
			Outpoint:     s.Native.Outpoint,
			Amount:       s.Native.Amount,
			ClaimAddr:    s.Native.ClaimDestination,
			RefundAddr:   s.Native.RefundDestination,
			ExpiryHeight: s.Native.ExpiryNativeHeight,
			Status:       string(s.Native.Status),
		}
	}
	return out
}

// RunOnce performs a single Detection -> Response -> Expiry-sweep pass (spec
// §4.6), mirroring lp_bot.py's run_once.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	if err := o.detect(ctx); err != nil {
		o.log.Error("detection phase error", "error", err)
	}
	if err := o.respond(ctx); err != nil {
		o.log.Error("response phase error", "error", err)
	}
	if err := o.sweepExpired(ctx); err != nil {
		o.log.Error("expiry sweep error", "error", err)
	}
	return nil
}

// detect polls every configured EVM chain for new Locked events targeting
// the LP's quote address since last_scanned_block (spec §4.6 step 1).
func (o *Orchestrator) detect(ctx context.Context) error {
	for name, qc := range o.quotes {
		from := o.lastScanned[name] + 1
		to, err := qc.Client.CurrentHeight(ctx)
		if err != nil {
			o.hub.Emit(alerts.EventChainUnreachable, map[string]string{"chain": name})
			return errkind.New(errkind.ChainUnreachable, "lp.detect", err)
		}
		if from > to {
			continue
		}

		lpQuoteAddr := common.HexToAddress(o.cfg.LPQuoteAddrPerChain[name])
		events, err := qc.Client.ScanLocksTo(ctx, lpQuoteAddr, from, to)
		if err != nil {
			return fmt.Errorf("lp: scan locks on %s: %w", name, err)
		}

		for _, ev := range events {
			if err := o.registerPendingSwap(name, ev); err != nil {
				o.log.Warn("failed to register pending swap from Locked event", "chain", name, "swap_id", ev.SwapID, "error", err)
			}
		}

		o.lastScanned[name] = to
		if err := o.store.SetScannedBlock(name, to); err != nil {
			o.log.Error("failed to persist scanned block", "chain", name, "error", err)
		}
	}
	return nil
}

func (o *Orchestrator) registerPendingSwap(chainName string, ev evmchain.LockedEvent) error {
	h := ev.Hashlock
	if o.manager.Get(h) != nil {
		return nil // already tracked, not a new event
	}

	s := &swap.Swap{
		Hashlock:          h,
		Direction:         swap.DirectionTakerBuysNative,
		QuoteAmount:       ev.Amount.Uint64(),
		QuoteChain:        chainName,
		QuoteTokenAddress: ev.Token.Hex(),
		LPQuoteAddr:       ev.Recipient.Hex(),
		TakerQuoteAddr:    ev.Sender.Hex(),
	}
	now := time.Now()
	if err := o.manager.Register(s); err != nil {
		return err
	}

	chainID := int64(0)
	if qc, ok := o.quotes[chainName]; ok {
		chainID = qc.Client.ChainID().Int64()
	}
	rec := &swap.HTLCRecord{
		ChainID:        chainID,
		Hashlock:       h,
		Amount:         ev.Amount.Uint64(),
		Status:         swap.HTLCLocked,
		SwapID:         common.Hash(ev.SwapID).Hex(),
		CreationTxID:   ev.TxHash.Hex(),
		CreatedAt:      now,
		UpdatedAt:      now,
		ExpiryUnix:     ev.Timelock.Int64(),
		ObservedHeight: ev.BlockNum,
	}
	return o.manager.ApplyQuoteObservation(h, rec, now)
}

// respond handles every pending swap according to spec §4.6 step 2. Swaps
// already marked HUNG are skipped: they require operator intervention, not
// another identical retry-and-re-alert on every poll tick.
func (o *Orchestrator) respond(ctx context.Context) error {
	for _, s := range o.manager.All() {
		if s.Quote == nil || s.Lifecycle == swap.LifecycleHung {
			continue
		}
		switch {
		case s.Native == nil && s.Quote.Status == swap.HTLCLocked:
			o.createNativeHTLC(ctx, s)
		case s.Native != nil && s.Native.Status == swap.HTLCClaimed && s.Quote.Status == swap.HTLCLocked:
			o.claimQuoteSide(ctx, s)
		}
	}
	return nil
}

func (o *Orchestrator) createNativeHTLC(ctx context.Context, s *swap.Swap) {
	h := s.Hashlock
	takerNativeAddr, ok, err := o.registry.Lookup(ctx, h.String())
	if err != nil {
		o.log.Warn("registry lookup failed", "hashlock", s.ShortHashlock(), "error", err)
		return
	}
	if !ok {
		o.log.Debug("taker native address not yet registered, retrying later", "hashlock", s.ShortHashlock())
		return
	}

	currentHeight, err := o.native.CurrentHeight(ctx)
	if err != nil {
		o.hub.Emit(alerts.EventChainUnreachable, map[string]string{"chain": "native"})
		o.log.Error("failed to read native chain height", "error", err)
		return
	}

	expiryHeight := timelock.NativeExpiryHeight(currentHeight, o.cfg.Timelock)
	expiryNativeWall := timelock.ExpiryNativeWall(time.Now(), currentHeight, expiryHeight, o.cfg.Timelock.SecondsPerBlock)
	expiryQuoteWall := time.Unix(s.Quote.ExpiryUnix, 0)
	if err := timelock.ValidateRuntime(expiryNativeWall, expiryQuoteWall, o.cfg.Timelock.BufferSeconds); err != nil {
		kerr := errkind.New(errkind.TimelockViolated, "lp.createNativeHTLC", err)
		o.log.Error("timelock invariant violated, marking swap HUNG", "hashlock", s.ShortHashlock(), "error", err)
		o.hub.Emit(alerts.EventTimelockViolated, map[string]string{"hashlock": h.String()})
		if errkind.PerSwapFatal(kerr.Kind) {
			if err := o.manager.MarkHung(h, time.Now()); err != nil {
				o.log.Error("failed to mark swap HUNG", "hashlock", s.ShortHashlock(), "error", err)
			}
		}
		return
	}

	nativeAmount, err := o.nativeAmountForQuote(ctx, h, s.QuoteAmount)
	if err != nil {
		o.log.Error("failed to resolve offer price, cannot size native HTLC", "hashlock", s.ShortHashlock(), "error", err)
		return
	}

	// The registry only carries a single native_addr per taker (spec §4.4,
	// a hint-only lookup), so the claim-signing authority here is the same
	// value the taker registered; hot/cold separation (I5) is enforced on
	// the side this orchestrator actually controls keys for, the LP's own
	// refund path, where RefundSigningKey is configured distinct from
	// LPNativeAddr.
	result, err := o.native.CreateHTLC(ctx, [32]byte(h.ToNative()), nativeAmount, takerNativeAddr, uint64(o.cfg.Timelock.TNativeBlocks), takerNativeAddr, o.cfg.LPNativeAddr, o.cfg.LPRefundSigningKey)
	if err != nil {
		o.log.Error("failed to create native HTLC", "hashlock", s.ShortHashlock(), "error", err)
		return
	}

	now := time.Now()
	rec := &swap.HTLCRecord{
		Hashlock:           h,
		Amount:             nativeAmount,
		ClaimDestination:   takerNativeAddr,
		RefundDestination:  o.cfg.LPNativeAddr,
		ExpiryNativeHeight: result.ExpiryHeight,
		Status:             swap.HTLCLocked,
		Outpoint:           result.Outpoint,
		CreationTxID:       result.TxID,
		CreatedAt:          now,
		UpdatedAt:          now,
		ObservedHeight:     currentHeight,
	}
	if err := o.manager.ApplyNativeObservation(h, rec, now); err != nil {
		o.log.Error("failed to record native HTLC creation", "hashlock", s.ShortHashlock(), "error", err)
		return
	}
	o.appendEvent(h, "native_htlc_created", rec)
	s.TakerNativeAddr = takerNativeAddr
	s.NativeAmount = nativeAmount
}

// nativeAmountForQuote converts a locked quote amount into the native amount
// the LP must put up, using the published offer's price (spec §4.5 INVENTORY
// -> TAKEN: "amount >= offer x price"; PriceQuotePerUnit is quote-asset units
// per one native-asset unit). Falls back to a 1:1 amount with a loud warning
// if no offer is registered for this hashlock, rather than silently mis-sizing
// the HTLC.
func (o *Orchestrator) nativeAmountForQuote(ctx context.Context, h bytesorder.EVMHash32, quoteAmount uint64) (uint64, error) {
	offer, ok, err := o.registry.OfferByHashlock(ctx, h.String())
	if err != nil {
		return 0, fmt.Errorf("lp: offer lookup: %w", err)
	}
	if !ok || offer.PriceQuotePerUnit == 0 {
		o.log.Warn("no priced offer found for hashlock, sizing native HTLC 1:1 with quote amount", "hashlock", h.String())
		return quoteAmount, nil
	}
	if quoteAmount < offer.MinQuoteAmount {
		return 0, fmt.Errorf("lp: quote amount %d below offer minimum %d", quoteAmount, offer.MinQuoteAmount)
	}
	return quoteAmount / offer.PriceQuotePerUnit, nil
}

func (o *Orchestrator) claimQuoteSide(ctx context.Context, s *swap.Swap) {
	h := s.Hashlock
	open := o.manager.OpenHashlocks()
	preimage, _, ok, err := o.extractNativeClaimPreimage(ctx, s, open)
	if err != nil {
		o.log.Error("failed to extract preimage from native claim tx", "hashlock", s.ShortHashlock(), "error", err)
		return
	}
	if !ok {
		return
	}
	if !htlc.VerifyPreimage([32]byte(h), preimage) {
		o.log.Error("preimage failed verification against hashlock, dropping observation", "hashlock", s.ShortHashlock())
		return
	}
	o.log.Debug("preimage extracted from native claim, masked per policy", "hashlock", s.ShortHashlock(), "preimage", helpers.Mask(hex.EncodeToString(preimage[:])))

	qc, ok := o.quotes[s.QuoteChain]
	if !ok {
		o.log.Error("no quote chain adapter configured", "chain", s.QuoteChain)
		return
	}
	swapID, err := bytesorder.ParseEVMHash32(s.Quote.SwapID)
	if err != nil {
		o.log.Error("invalid swap id on record", "hashlock", s.ShortHashlock(), "error", err)
		return
	}

	tx, err := qc.Client.Claim(ctx, qc.Auth, [32]byte(swapID), preimage)
	if err != nil {
		o.log.Error("failed to submit quote claim", "hashlock", s.ShortHashlock(), "error", err)
		return
	}

	now := time.Now()
	rec := *s.Quote
	rec.Status = swap.HTLCClaimed
	rec.ClaimTxID = tx.Hash().Hex()
	rec.UpdatedAt = now
	if err := o.manager.ApplyQuoteObservation(h, &rec, now); err != nil {
		o.log.Error("failed to record quote claim", "hashlock", s.ShortHashlock(), "error", err)
		return
	}
	if err := o.manager.ApplyPreimage(h, preimage, now); err != nil {
		o.log.Error("failed to record preimage", "hashlock", s.ShortHashlock(), "error", err)
	}
	o.appendEvent(h, "quote_claimed", &rec)
}

// extractNativeClaimPreimage fetches the native claim tx and extracts the
// preimage, using the generic RPC proxy's raw-transaction scan.
func (o *Orchestrator) extractNativeClaimPreimage(ctx context.Context, s *swap.Swap, open htlc.OpenHashlocks) (preimage, hashlock [32]byte, ok bool, err error) {
	if s.Native.ClaimTxID == "" {
		return preimage, hashlock, false, nil
	}
	return o.native.ExtractPreimage(ctx, s.Native.ClaimTxID, open)
}

// sweepExpired submits a refund for every native HTLC past expiry still
// LOCKED (spec §4.6 step 3).
func (o *Orchestrator) sweepExpired(ctx context.Context) error {
	currentHeight, err := o.native.CurrentHeight(ctx)
	if err != nil {
		return errkind.New(errkind.ChainUnreachable, "lp.sweepExpired", err)
	}

	for _, s := range o.manager.All() {
		if s.Native == nil || s.Native.Status != swap.HTLCLocked {
			continue
		}
		if !swap.NativeExpiredAtHeight(s.Native, currentHeight) {
			continue
		}
		txid, err := o.native.RefundHTLC(ctx, s.Native.Outpoint)
		if err != nil {
			o.log.Error("failed to submit native refund", "hashlock", s.ShortHashlock(), "error", err)
			continue
		}
		now := time.Now()
		rec := *s.Native
		rec.Status = swap.HTLCRefunded
		rec.RefundTxID = txid
		rec.UpdatedAt = now
		if err := o.manager.ApplyNativeObservation(s.Hashlock, &rec, now); err != nil {
			o.log.Error("failed to record native refund", "hashlock", s.ShortHashlock(), "error", err)
			continue
		}
		o.appendEvent(s.Hashlock, "native_refunded", &rec)
	}
	return nil
}

// InvalidateReorg rolls back every tracked swap whose native or quote
// observation on chainTag was made at or above fromHeight, undoing the
// in-memory effect of a confirmed reorg (spec §5: "invalidates any
// swap-state transitions observed in orphaned blocks"). chainTag is "native"
// for the native chain or an EVM chain's configured name. For the quote
// side, it also rewinds the detection cursor so the next poll re-scans the
// orphaned range instead of treating it as already covered.
func (o *Orchestrator) InvalidateReorg(chainTag string, fromHeight uint64) {
	now := time.Now()
	for _, s := range o.manager.All() {
		if chainTag == "native" {
			if s.Native != nil && s.Native.ObservedHeight >= fromHeight {
				rec := *s.Native
				rec.Status = swap.HTLCPending
				rec.ObservedHeight = 0
				rec.UpdatedAt = now
				if err := o.manager.InvalidateNativeObservation(s.Hashlock, &rec, now); err != nil {
					o.log.Error("failed to invalidate native observation after reorg", "hashlock", s.ShortHashlock(), "error", err)
				} else {
					o.log.Warn("native observation invalidated by reorg", "hashlock", s.ShortHashlock(), "from_height", fromHeight)
				}
			}
			continue
		}
		if s.QuoteChain != chainTag {
			continue
		}
		if s.Quote != nil && s.Quote.ObservedHeight >= fromHeight {
			rec := *s.Quote
			rec.Status = swap.HTLCPending
			rec.ObservedHeight = 0
			rec.UpdatedAt = now
			if err := o.manager.InvalidateQuoteObservation(s.Hashlock, &rec, now); err != nil {
				o.log.Error("failed to invalidate quote observation after reorg", "hashlock", s.ShortHashlock(), "error", err)
			} else {
				o.log.Warn("quote observation invalidated by reorg", "hashlock", s.ShortHashlock(), "from_height", fromHeight)
			}
		}
	}

	if chainTag != "native" {
		if last, ok := o.lastScanned[chainTag]; ok && fromHeight > 0 && fromHeight-1 < last {
			o.lastScanned[chainTag] = fromHeight - 1
			if err := o.store.SetScannedBlock(chainTag, fromHeight-1); err != nil {
				o.log.Error("failed to rewind scanned block cursor after reorg", "chain", chainTag, "error", err)
			}
		}
	}
}

func (o *Orchestrator) appendEvent(h bytesorder.EVMHash32, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		o.log.Error("failed to marshal event payload", "error", err)
		return
	}
	if err := o.store.AppendEvent(h.String(), eventType, string(data), time.Now()); err != nil {
		o.log.Error("failed to append event to write-ahead log", "error", err)
		o.hub.Emit(alerts.EventPersistenceFailure, map[string]string{"hashlock": h.String()})
	}
}

// TakerQuoteAmountWei returns a *big.Int view of a swap's quote amount, used
// when building ERC-20 approval/allowance calls (spec §4.1 approve-then-lock
// flow lives on the taker side; this helper is shared by both orchestrators'
// logging paths).
func TakerQuoteAmountWei(amount uint64) *big.Int {
	return new(big.Int).SetUint64(amount)
}
