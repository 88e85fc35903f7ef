// Package taker implements the taker orchestrator (spec §4.7): generate a
// secret, register with the off-chain registry, lock the quote asset,
// poll the native chain for the LP's matching HTLC, claim it, and fall back
// to a quote-side refund if the native HTLC never appears before the quote
// timelock elapses. It is grounded in the same RPC-proxy/ethclient adapter
// shapes used by internal/lp, generalized from the LP's continuous
// multi-swap poll loop to a single swap's linear happy-path/timeout state
// machine — this orchestrator runs one swap to completion per invocation,
// matching the original prototype's one-shot sdk/htlc_wrapper.py usage
// pattern from the taker's side of the exchange (as opposed to lp_bot.py's
// perpetual scan loop).
package taker

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
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

// Request describes one swap the taker wants to execute: buy NativeAmount of
// the native asset by locking QuoteAmount of the quote asset with the LP.
type Request struct {
	QuoteChain        string
	QuoteTokenAddress common.Address
	LPQuoteAddr       common.Address
	QuoteAmount       *big.Int
	// NativeAmount is the amount of the native asset this request expects to
	// receive in return, derived by the caller from the offer's price (spec
	// §4.5 "amount >= offer x price"). The quote and native assets have
	// different denominations, so this must never be compared to QuoteAmount.
	NativeAmount    uint64
	TakerNativeAddr string
}

// Orchestrator runs a single taker swap to completion (spec §4.7).
type Orchestrator struct {
	cfg      *config.Config
	native   *nativechain.Client
	quote    *evmchain.Client
	erc20    *evmchain.ERC20
	auth     *bind.TransactOpts
	registry *registry.Client
	store    *persistence.Store
	manager  *swap.Manager
	hub      *alerts.Hub
	log      *logging.Logger
}

// New builds a taker orchestrator bound to one quote chain for the duration
// of a single swap.
func New(cfg *config.Config, native *nativechain.Client, quote *evmchain.Client, erc20 *evmchain.ERC20, auth *bind.TransactOpts, reg *registry.Client, store *persistence.Store, mgr *swap.Manager, hub *alerts.Hub) *Orchestrator {
	return &Orchestrator{
		cfg:      cfg,
		native:   native,
		quote:    quote,
		erc20:    erc20,
		auth:     auth,
		registry: reg,
		store:    store,
		manager:  mgr,
		hub:      hub,
		log:      logging.GetDefault().Component("taker"),
	}
}

// Execute runs steps 1-5 of spec §4.7 for a single request. It returns once
// the swap reaches a terminal lifecycle (claimed, refunded) or ctx is
// cancelled.
func (o *Orchestrator) Execute(ctx context.Context, req Request) (*swap.Swap, error) {
	secret, hashlockRaw, err := htlc.GenerateSecret()
	if err != nil {
		return nil, fmt.Errorf("taker: generate secret: %w", err)
	}
	hashlock := bytesorder.EVMHash32(hashlockRaw)
	o.log.Debug("secret generated", "hashlock", hashlock.String(), "secret", helpers.Mask(hex.EncodeToString(secret[:])))

	if err := o.registry.RegisterTaker(ctx, hashlock.String(), req.TakerNativeAddr); err != nil {
		return nil, errkind.New(errkind.RegistryMiss, "taker.register", err)
	}

	s := &swap.Swap{
		Hashlock:          hashlock,
		Direction:         swap.DirectionTakerBuysNative,
		NativeAmount:      req.NativeAmount,
		QuoteAmount:       req.QuoteAmount.Uint64(),
		QuoteChain:        req.QuoteChain,
		QuoteTokenAddress: req.QuoteTokenAddress.Hex(),
		LPQuoteAddr:       req.LPQuoteAddr.Hex(),
		TakerNativeAddr:   req.TakerNativeAddr,
	}
	if err := o.manager.Register(s); err != nil {
		return nil, fmt.Errorf("taker: register swap: %w", err)
	}

	quoteTimelock := timelock.QuoteExpiryUnix(time.Now(), o.cfg.Timelock)
	if err := o.lockQuoteSide(ctx, s, req, quoteTimelock); err != nil {
		return s, err
	}

	o.appendEvent(s, "quote_locked", s.Quote)

	nativeRec, err := o.pollForNativeHTLC(ctx, s, time.Unix(quoteTimelock, 0))
	if err != nil {
		return s, err
	}
	if nativeRec == nil {
		return s, o.refundQuoteSide(ctx, s)
	}

	now := time.Now()
	if err := o.manager.ApplyNativeObservation(s.Hashlock, nativeRec, now); err != nil {
		return s, fmt.Errorf("taker: record native observation: %w", err)
	}
	o.appendEvent(s, "native_htlc_observed", nativeRec)

	o.log.Debug("claiming native HTLC", "hashlock", s.ShortHashlock(), "secret", helpers.Mask(hex.EncodeToString(secret[:])))
	txid, err := o.native.ClaimHTLC(ctx, nativeRec.Outpoint, secret)
	if err != nil {
		return s, fmt.Errorf("taker: claim native HTLC: %w", err)
	}

	now = time.Now()
	claimedRec := *nativeRec
	claimedRec.Status = swap.HTLCClaimed
	claimedRec.ClaimTxID = txid
	claimedRec.UpdatedAt = now
	if err := o.manager.ApplyNativeObservation(s.Hashlock, &claimedRec, now); err != nil {
		return s, fmt.Errorf("taker: record native claim: %w", err)
	}
	if err := o.manager.ApplyPreimage(s.Hashlock, secret, now); err != nil {
		return s, fmt.Errorf("taker: record preimage: %w", err)
	}
	o.appendEvent(s, "native_claimed", &claimedRec)

	return s, nil
}

// lockQuoteSide submits an ERC-20 approval (if needed) followed by the
// quote-side lock transaction (spec §4.7 step 2, spec §4.1 "following an
// ERC-20 approval").
func (o *Orchestrator) lockQuoteSide(ctx context.Context, s *swap.Swap, req Request, quoteTimelock int64) error {
	allowance, err := o.erc20.Allowance(ctx, o.auth.From, o.quote.ContractAddress())
	if err != nil {
		return errkind.New(errkind.ChainUnreachable, "taker.lockQuoteSide.allowance", err)
	}
	if allowance.Cmp(req.QuoteAmount) < 0 {
		tx, err := o.erc20.Approve(ctx, o.auth, o.quote.ContractAddress(), req.QuoteAmount)
		if err != nil {
			return fmt.Errorf("taker: approve erc20: %w", err)
		}
		if _, err := o.quote.TransactionReceipt(ctx, tx); err != nil {
			return fmt.Errorf("taker: wait for approval: %w", err)
		}
	}

	swapID := [32]byte(s.Hashlock)
	tx, err := o.quote.Lock(ctx, o.auth, swapID, req.LPQuoteAddr, req.QuoteTokenAddress, req.QuoteAmount, [32]byte(s.Hashlock), big.NewInt(quoteTimelock))
	if err != nil {
		if isInsufficientFunds(err) {
			o.hub.Emit(alerts.EventInsufficientFunds, map[string]string{"hashlock": s.Hashlock.String()})
			return errkind.New(errkind.InsufficientFunds, "taker.lockQuoteSide", err)
		}
		return fmt.Errorf("taker: submit quote lock: %w", err)
	}
	if _, err := o.quote.TransactionReceipt(ctx, tx); err != nil {
		return fmt.Errorf("taker: wait for quote lock: %w", err)
	}

	now := time.Now()
	rec := &swap.HTLCRecord{
		ChainID:    o.quote.ChainID().Int64(),
		Hashlock:   s.Hashlock,
		Amount:     req.QuoteAmount.Uint64(),
		Status:     swap.HTLCLocked,
		SwapID:     common.Hash(swapID).Hex(),
		ExpiryUnix: quoteTimelock,
		CreationTxID: tx.Hash().Hex(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return o.manager.ApplyQuoteObservation(s.Hashlock, rec, now)
}

// pollForNativeHTLC polls the native chain until an HTLC matching the
// hashlock and the taker's native address appears, or until the quote-side
// timelock deadline passes (spec §4.7 step 3).
func (o *Orchestrator) pollForNativeHTLC(ctx context.Context, s *swap.Swap, deadline time.Time) (*swap.HTLCRecord, error) {
	ticker := time.NewTicker(o.cfg.PollInterval())
	defer ticker.Stop()

	for {
		rec, err := o.native.GetHTLC(ctx, s.Hashlock.ToNative().String())
		if err != nil {
			o.log.Warn("native HTLC lookup failed, retrying", "hashlock", s.ShortHashlock(), "error", err)
		} else if rec != nil && rec.ClaimDestination == s.TakerNativeAddr && rec.Amount >= s.NativeAmount {
			return toHTLCRecord(s.Hashlock, rec), nil
		}

		if time.Now().After(deadline) {
			return nil, nil
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}
}

// refundQuoteSide submits the quote-side refund once the quote timelock has
// elapsed without a matching native HTLC appearing (spec §4.7 step 5).
func (o *Orchestrator) refundQuoteSide(ctx context.Context, s *swap.Swap) error {
	swapID := [32]byte(s.Hashlock)
	tx, err := o.quote.Refund(ctx, o.auth, swapID)
	if err != nil {
		return fmt.Errorf("taker: submit quote refund: %w", err)
	}
	if _, err := o.quote.TransactionReceipt(ctx, tx); err != nil {
		return fmt.Errorf("taker: wait for quote refund: %w", err)
	}

	now := time.Now()
	rec := *s.Quote
	rec.Status = swap.HTLCRefunded
	rec.RefundTxID = tx.Hash().Hex()
	rec.UpdatedAt = now
	if err := o.manager.ApplyQuoteObservation(s.Hashlock, &rec, now); err != nil {
		return fmt.Errorf("taker: record quote refund: %w", err)
	}
	o.appendEvent(s, "quote_refunded", &rec)
	return nil
}

func toHTLCRecord(h bytesorder.EVMHash32, rec *nativechain.HTLCRecord) *swap.HTLCRecord {
	now := time.Now()
	return &swap.HTLCRecord{
		Hashlock:           h,
		Amount:             rec.Amount,
		ClaimDestination:   rec.ClaimDestination,
		RefundDestination:  rec.RefundDestination,
		ExpiryNativeHeight: rec.ExpiryHeight,
		Status:             swap.HTLCLocked,
		Outpoint:           rec.Outpoint,
		CreationTxID:       rec.CreationTxID,
		CreatedAt:          now,
		UpdatedAt:          now,
	}
}

func (o *Orchestrator) appendEvent(s *swap.Swap, eventType string, payload interface{}) {
	data, err := json.Marshal(payload)
	if err != nil {
		o.log.Error("failed to marshal event payload", "error", err)
		return
	}
	if err := o.store.AppendEvent(s.Hashlock.String(), eventType, string(data), time.Now()); err != nil {
		o.log.Error("failed to append event to write-ahead log", "error", err)
		o.hub.Emit(alerts.EventPersistenceFailure, map[string]string{"hashlock": s.Hashlock.String()})
	}
}

func isInsufficientFunds(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "insufficient funds") || strings.Contains(msg, "exceeds balance")
}
