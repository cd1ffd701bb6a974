// Package window decides whether a report submitted now would earn a feed's
// reward.
package window

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// MaxChangeBps is the price change reported when there is no previous value.
const MaxChangeBps = 10000

// WindowStart returns the start of the reward window containing t.
// It requires interval > 0 and t >= start.
func WindowStart(t, start, interval uint64) uint64 {
	elapsed := (t - start) / interval
	return start + interval*elapsed
}

// IsFirstInWindow reports whether a submission at check, whose latest prior
// report is at before, is the first one inside the open part of its window.
// It also returns how far into the window check falls.
//
// Timestamps before start and a zero interval are never eligible.
func IsFirstInWindow(before, check, start, window, interval uint64) (bool, uint64) {
	if interval == 0 || check < start {
		return false, 0
	}
	windowStart := WindowStart(check, start, interval)
	timeInto := check - windowStart
	return timeInto < window && before < windowStart, timeInto
}

// Accrued returns the reward including the linear increase accrued after
// timeInto seconds of the window.
func Accrued(reward, increasePerSecond *big.Int, timeInto uint64) *big.Int {
	out := new(big.Int)
	if reward != nil {
		out.Set(reward)
	}
	if increasePerSecond != nil && increasePerSecond.Sign() != 0 && timeInto > 0 {
		slope := new(big.Int).Mul(increasePerSecond, new(big.Int).SetUint64(timeInto))
		out.Add(out, slope)
	}
	return out
}

// PriceChangeBps returns |current-previous|/previous in basis points,
// rounded down. A zero previous value is a full change.
func PriceChangeBps(previous, current decimal.Decimal) uint64 {
	if previous.IsZero() {
		return MaxChangeBps
	}
	change := current.Sub(previous).Abs().Mul(decimal.NewFromInt(MaxChangeBps))
	ratio := new(big.Rat).Quo(change.Rat(), previous.Abs().Rat())

	// Floor of the exact ratio
	bps := new(big.Int).Quo(ratio.Num(), ratio.Denom())
	if !bps.IsUint64() {
		return ^uint64(0)
	}
	return bps.Uint64()
}
