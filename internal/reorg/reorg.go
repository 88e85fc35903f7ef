// Package reorg implements the per-chain tip tracker described in spec §5:
// "A background task per chain tracks the tip hash and, on detecting a hash
// mismatch at the previously-confirmed height, walks back up to a
// configurable depth to identify the fork point and invalidates any
// swap-state transitions observed in orphaned blocks." It is grounded in the
// same reconciliation shape the teacher uses for its own MuSig2 swap
// coordinator's chain-observation loop (internal/swap/coordinator.go's
// poll-and-reconcile cycle), generalized from per-swap reconciliation to a
// chain-wide tip walk shared by every tracked swap.
package reorg

import (
	"context"
	"fmt"

	"github.com/klingon-exchange/ntvswap/pkg/logging"
)

// ChainTip is the minimal read surface a chain adapter must provide for tip
// tracking. Both internal/nativechain.Client and internal/evmchain.Client
// satisfy it.
type ChainTip interface {
	CurrentHeight(ctx context.Context) (uint64, error)
	BlockHash(ctx context.Context, height uint64) (string, error)
}

// observedBlock is one entry in the tracker's rolling window of recently
// seen (height, hash) pairs.
type observedBlock struct {
	height uint64
	hash   string
}

// Tracker watches a single chain's tip and detects reorgs by comparing the
// hash it previously observed at a height against the chain's current view
// of that height.
type Tracker struct {
	chainName string
	chain     ChainTip
	maxDepth  uint64
	log       *logging.Logger

	history []observedBlock // ascending by height, capped at maxDepth entries
}

// NewTracker creates a tip tracker for one chain. maxDepth bounds how far
// back the tracker will walk to find a fork point (spec §5 "a configurable
// depth") — typically a small multiple of the chain's N_reorg.
func NewTracker(chainName string, chain ChainTip, maxDepth uint64) *Tracker {
	return &Tracker{
		chainName: chainName,
		chain:     chain,
		maxDepth:  maxDepth,
		log:       logging.GetDefault().Component("reorg").With("chain", chainName),
	}
}

// Result describes the outcome of a single Poll call.
type Result struct {
	// NewHeight is the chain's height as of this poll.
	NewHeight uint64
	// ForkDetected is true if a previously-recorded block's hash no longer
	// matches the chain's current view.
	ForkDetected bool
	// ForkPoint is the highest height at which the tracker's recorded hash
	// still matches the chain (the last common ancestor), only meaningful
	// when ForkDetected is true.
	ForkPoint uint64
	// InvalidatedFrom is ForkPoint+1: every height at or above this was
	// observed on a now-orphaned branch and must be re-derived by the
	// caller (spec §5 "invalidates any swap-state transitions observed in
	// orphaned blocks").
	InvalidatedFrom uint64
}

// ChainName returns the tag this tracker was constructed with ("native" or
// an EVM chain's configured name), so a caller fanning out over several
// trackers knows which chain a Result belongs to.
func (t *Tracker) ChainName() string {
	return t.chainName
}

// Poll fetches the chain's current height and hash, compares it against the
// tracker's history, and walks back to find the fork point if a mismatch is
// found. On a clean (non-fork) poll it records the new tip and returns
// ForkDetected=false.
func (t *Tracker) Poll(ctx context.Context) (*Result, error) {
	height, err := t.chain.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("reorg[%s]: current height: %w", t.chainName, err)
	}
	hash, err := t.chain.BlockHash(ctx, height)
	if err != nil {
		return nil, fmt.Errorf("reorg[%s]: block hash at %d: %w", t.chainName, height, err)
	}

	if len(t.history) == 0 {
		t.record(height, hash)
		return &Result{NewHeight: height}, nil
	}

	// Check whether the tracker's most recent recorded height still matches
	// the chain's current view of that same height; a mismatch means
	// everything since is potentially orphaned.
	last := t.history[len(t.history)-1]
	if last.height <= height {
		currentHashAtLast, err := t.chain.BlockHash(ctx, last.height)
		if err != nil {
			return nil, fmt.Errorf("reorg[%s]: block hash at %d: %w", t.chainName, last.height, err)
		}
		if currentHashAtLast == last.hash {
			t.record(height, hash)
			return &Result{NewHeight: height}, nil
		}
	}

	forkPoint, err := t.walkBackToForkPoint(ctx)
	if err != nil {
		return nil, err
	}

	t.log.Warn("reorg detected", "fork_point", forkPoint, "new_height", height)
	t.history = nil
	t.record(height, hash)

	return &Result{
		NewHeight:       height,
		ForkDetected:    true,
		ForkPoint:       forkPoint,
		InvalidatedFrom: forkPoint + 1,
	}, nil
}

// walkBackToForkPoint scans the tracker's history from newest to oldest,
// returning the highest height whose recorded hash still matches the
// chain's current view — the last common ancestor. If maxDepth is exceeded
// without finding one, it returns the oldest height still tracked (the best
// available bound) so callers at least invalidate everything newer.
func (t *Tracker) walkBackToForkPoint(ctx context.Context) (uint64, error) {
	for i := len(t.history) - 1; i >= 0; i-- {
		entry := t.history[i]
		currentHash, err := t.chain.BlockHash(ctx, entry.height)
		if err != nil {
			return 0, fmt.Errorf("reorg[%s]: block hash at %d: %w", t.chainName, entry.height, err)
		}
		if currentHash == entry.hash {
			return entry.height, nil
		}
	}
	// Every recorded height diverged; the fork point lies deeper than our
	// window. Report the oldest tracked height minus one as a conservative
	// bound — the caller should treat this chain's recent state as fully
	// advisory until it re-confirms.
	if len(t.history) == 0 {
		return 0, nil
	}
	oldest := t.history[0].height
	if oldest == 0 {
		return 0, nil
	}
	return oldest - 1, nil
}

func (t *Tracker) record(height uint64, hash string) {
	t.history = append(t.history, observedBlock{height: height, hash: hash})
	if uint64(len(t.history)) > t.maxDepth {
		t.history = t.history[uint64(len(t.history))-t.maxDepth:]
	}
}
