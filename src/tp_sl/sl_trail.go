package tp_sl

import (
	"github.com/shopspring/decimal"
)

// Trail is the result of one trailing-stop update.
type Trail struct {
	HighWater decimal.Decimal
	Stop      decimal.Decimal
	Moved     bool
}

// UpdateHighWater returns the larger of the current mark and the last price.
// A zero mark is seeded from entry.
func UpdateHighWater(highWater, entry, last decimal.Decimal) decimal.Decimal {
	if highWater.IsZero() {
		highWater = entry
	}
	if last.GreaterThan(highWater) {
		return last
	}
	return highWater
}

// ComputeNextStopLoss applies the ATR trailing stop for a long position.
//
// - high water: max(high water, last)
// - candidate: high water − mult × ATR
// - update: SL = max(SL, candidate), the stop only ratchets up
func ComputeNextStopLoss(
	currentSL decimal.Decimal,
	highWater decimal.Decimal,
	entry decimal.Decimal,
	last decimal.Decimal,
	atr decimal.Decimal,
	mult decimal.Decimal,
) Trail {
	hw := UpdateHighWater(highWater, entry, last)
	if !atr.IsPositive() || !mult.IsPositive() {
		return Trail{HighWater: hw, Stop: currentSL}
	}

	candidate := hw.Sub(atr.Mul(mult))
	if candidate.GreaterThan(currentSL) {
		return Trail{HighWater: hw, Stop: candidate, Moved: true}
	}
	return Trail{HighWater: hw, Stop: currentSL}
}
