package planner

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"spotexecutor/src/model"
)

var (
	ErrInvalidATR  = errors.New("atr must be positive")
	ErrInvalidStep = errors.New("grid step must be positive")
	ErrNoLegs      = errors.New("grid needs at least one leg")
)

// Plan is a raw entry, stop and target. Prices are not normalized.
type Plan struct {
	Origin model.Origin
	Entry  decimal.Decimal
	Stop   decimal.Decimal
	Target decimal.Decimal
	Reason string
}

type Config struct {
	GridStepATR     decimal.Decimal
	GridTPMult      decimal.Decimal
	GridStopATR     decimal.Decimal
	DipStopATR      decimal.Decimal
	DipTargetATR    decimal.Decimal
	BreakoutStopATR decimal.Decimal
	BreakoutTgtATR  decimal.Decimal
	TrendStopATR    decimal.Decimal
	TrendTargetATR  decimal.Decimal
	SwingLookback   int
}

func DefaultConfig() Config {
	return Config{
		GridStepATR:     decimal.RequireFromString("0.5"),
		GridTPMult:      decimal.NewFromInt(2),
		GridStopATR:     decimal.RequireFromString("0.8"),
		DipStopATR:      decimal.RequireFromString("1.5"),
		DipTargetATR:    decimal.NewFromInt(2),
		BreakoutStopATR: decimal.NewFromInt(2),
		BreakoutTgtATR:  decimal.NewFromInt(4),
		TrendStopATR:    decimal.NewFromInt(2),
		TrendTargetATR:  decimal.NewFromInt(6),
		SwingLookback:   20,
	}
}

type Planner struct {
	cfg Config
}

func New(cfg Config) *Planner {
	return &Planner{cfg: cfg}
}

// Grid returns legs buy levels strictly below price, each spaced by
// step = ATR × GridStepATR. Leg i buys at price − i×step, targets
// buy + GridTPMult×step and stops at buy − max(GridStopATR×ATR, step).
func (p *Planner) Grid(price, atr decimal.Decimal, legs int) ([]Plan, error) {
	if legs <= 0 {
		return nil, ErrNoLegs
	}
	if !atr.IsPositive() {
		return nil, ErrInvalidATR
	}
	step := atr.Mul(p.cfg.GridStepATR)
	if !step.IsPositive() {
		return nil, ErrInvalidStep
	}
	stopDist := decimal.Max(atr.Mul(p.cfg.GridStopATR), step)

	out := make([]Plan, 0, legs)
	for i := 1; i <= legs; i++ {
		buy := price.Sub(step.Mul(decimal.NewFromInt(int64(i))))
		if !buy.IsPositive() {
			break
		}
		out = append(out, Plan{
			Origin: model.OriginGridLeg,
			Entry:  buy,
			Stop:   buy.Sub(stopDist),
			Target: buy.Add(step.Mul(p.cfg.GridTPMult)),
			Reason: fmt.Sprintf("grid level %d step=%s", i, step.StringFixed(8)),
		})
	}
	if len(out) == 0 {
		return nil, ErrInvalidStep
	}
	return out, nil
}

// Dip enters at the alert trigger.
func (p *Planner) Dip(trigger, atr decimal.Decimal) (Plan, error) {
	if !atr.IsPositive() {
		return Plan{}, ErrInvalidATR
	}
	return Plan{
		Origin: model.OriginDip,
		Entry:  trigger,
		Stop:   trigger.Sub(atr.Mul(p.cfg.DipStopATR)),
		Target: trigger.Add(atr.Mul(p.cfg.DipTargetATR)),
		Reason: "dip alert " + trigger.String(),
	}, nil
}

// Breakout enters at the current price once the trigger is crossed.
func (p *Planner) Breakout(price, atr decimal.Decimal) (Plan, error) {
	if !atr.IsPositive() {
		return Plan{}, ErrInvalidATR
	}
	return Plan{
		Origin: model.OriginBreakout,
		Entry:  price,
		Stop:   price.Sub(atr.Mul(p.cfg.BreakoutStopATR)),
		Target: price.Add(atr.Mul(p.cfg.BreakoutTgtATR)),
		Reason: "breakout",
	}, nil
}

// Trend places the initial stop at the lower of entry − TrendStopATR×ATR and
// the recent swing low. The target is far away; the trailing stop exits.
func (p *Planner) Trend(entry, atr decimal.Decimal, candles model.CandleSeries) (Plan, error) {
	if !atr.IsPositive() {
		return Plan{}, ErrInvalidATR
	}
	stop := entry.Sub(atr.Mul(p.cfg.TrendStopATR))
	if swing, ok := candles.LowestLow(p.cfg.SwingLookback); ok && swing.LessThan(stop) {
		stop = swing
	}
	return Plan{
		Origin: model.OriginTrend,
		Entry:  entry,
		Stop:   stop,
		Target: entry.Add(atr.Mul(p.cfg.TrendTargetATR)),
		Reason: "trend",
	}, nil
}
