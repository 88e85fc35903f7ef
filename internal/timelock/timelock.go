// Package timelock implements the asymmetric timelock safety invariant (spec §4.3):
// the quote-chain HTLC must expire no earlier than the native-chain HTLC plus a
// safety buffer, measured in absolute wall time. This is the invariant that
// prevents the "free option" attack where the LP could create the native HTLC so
// close to the taker's quote-chain deadline that the taker is forced to choose
// between claiming the native leg at a disadvantageous moment or losing the quote
// leg to timeout.
package timelock

import (
	"fmt"
	"time"

	"github.com/klingon-exchange/ntvswap/internal/config"
)

// ErrViolation is returned when the asymmetric timelock invariant does not hold.
type ErrViolation struct {
	ExpiryNativeWall time.Time
	ExpiryQuoteWall  time.Time
	BufferSeconds    int64
}

func (e *ErrViolation) Error() string {
	return fmt.Sprintf("timelock invariant violated: expiry_quote_wall (%s) < expiry_native_wall (%s) + buffer (%ds)",
		e.ExpiryQuoteWall.Format(time.RFC3339), e.ExpiryNativeWall.Format(time.RFC3339), e.BufferSeconds)
}

// ValidateAtInit asserts T_quote_seconds >= T_native_blocks * seconds_per_block +
// buffer_seconds, per spec §4.3. This is the static check performed once at
// swap-creation/startup time, using the configured policy only (no chain
// observation needed yet).
func ValidateAtInit(p config.TimelockPolicy) error {
	required := int64(p.TNativeBlocks)*p.SecondsPerBlock + p.BufferSeconds
	if p.TQuoteSeconds < required {
		return fmt.Errorf("timelock policy invalid: t_quote_seconds (%d) < t_native_blocks*seconds_per_block + buffer_seconds (%d*%d+%d=%d)",
			p.TQuoteSeconds, p.TNativeBlocks, p.SecondsPerBlock, p.BufferSeconds, required)
	}
	return nil
}

// ExpiryNativeWall converts a native-chain expiry block height into an expected
// wall-clock time, given the chain's current height and average block time.
// This is the adapter-boundary translation spec §3's invariant I3 requires
// ("the adapter translates native block height to expected wall time").
func ExpiryNativeWall(now time.Time, currentHeight, expiryHeight uint64, secondsPerBlock int64) time.Time {
	if expiryHeight <= currentHeight {
		return now
	}
	remainingBlocks := expiryHeight - currentHeight
	return now.Add(time.Duration(remainingBlocks) * time.Duration(secondsPerBlock) * time.Second)
}

// ValidateRuntime checks the observed asymmetric-timelock invariant against
// actual wall-clock expiries computed from the two chains' HTLCs. A violation
// here (for example following a reorg that rolled back the native chain's tip,
// changing the expected wall time of the native expiry height) is per-swap
// fatal: the orchestrator must mark the swap HUNG and alert an operator,
// per spec §4.3 and §7 (TimelockViolated).
func ValidateRuntime(expiryNativeWall, expiryQuoteWall time.Time, bufferSeconds int64) error {
	deadline := expiryNativeWall.Add(time.Duration(bufferSeconds) * time.Second)
	if expiryQuoteWall.Before(deadline) {
		return &ErrViolation{
			ExpiryNativeWall: expiryNativeWall,
			ExpiryQuoteWall:  expiryQuoteWall,
			BufferSeconds:    bufferSeconds,
		}
	}
	return nil
}

// NativeExpiryHeight computes the native HTLC's expiry block height for a new
// swap, given the current tip height and the configured policy.
func NativeExpiryHeight(currentHeight uint64, p config.TimelockPolicy) uint64 {
	return currentHeight + uint64(p.TNativeBlocks)
}

// QuoteExpiryUnix computes the quote-chain HTLC's expiry unix timestamp for a
// new swap, given the lock time and the configured policy.
func QuoteExpiryUnix(lockTime time.Time, p config.TimelockPolicy) int64 {
	return lockTime.Add(time.Duration(p.TQuoteSeconds) * time.Second).Unix()
}
