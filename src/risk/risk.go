package risk

import (
	"errors"
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"
)

var (
	ErrRiskOutOfRange      = errors.New("risk fraction out of range")
	ErrInvalidStopDistance = errors.New("entry and stop must differ")
	ErrInvalidBalance      = errors.New("balance must be positive")
	ErrBelowMinimum        = errors.New("position value below minimum")
)

type Config struct {
	RiskMin        float64 `envconfig:"RISK_MIN" default:"0.0025"`
	RiskMax        float64 `envconfig:"RISK_MAX" default:"0.02"`
	MinPositionUSD float64 `envconfig:"MIN_POSITION_USD" default:"20"`
	TrailATRMult   float64 `envconfig:"TRAIL_ATR_MULT" default:"2.5"`
}

func GetConfig() Config {
	var cfg Config
	envconfig.MustProcess("", &cfg)
	return cfg
}

func DefaultConfig() Config {
	return Config{RiskMin: 0.0025, RiskMax: 0.02, MinPositionUSD: 20, TrailATRMult: 2.5}
}

// Calculator converts a risk fraction and a stop distance into a raw size.
type Calculator struct {
	min, max decimal.Decimal
	minValue decimal.Decimal
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{
		min:      decimal.NewFromFloat(cfg.RiskMin),
		max:      decimal.NewFromFloat(cfg.RiskMax),
		minValue: decimal.NewFromFloat(cfg.MinPositionUSD),
	}
}

// ValidateRisk rejects fractions outside the configured range. Values are never clamped.
func (c *Calculator) ValidateRisk(fraction decimal.Decimal) error {
	if fraction.LessThan(c.min) || fraction.GreaterThan(c.max) {
		return fmt.Errorf("%w: %s not in [%s, %s]", ErrRiskOutOfRange, fraction, c.min, c.max)
	}
	return nil
}

// Size returns (balance × fraction) / |entry − stop|.
func (c *Calculator) Size(balance, fraction, entry, stop decimal.Decimal) (decimal.Decimal, error) {
	if err := c.ValidateRisk(fraction); err != nil {
		return decimal.Zero, err
	}
	if !balance.IsPositive() {
		return decimal.Zero, ErrInvalidBalance
	}
	dist := entry.Sub(stop).Abs()
	if dist.IsZero() {
		return decimal.Zero, ErrInvalidStopDistance
	}
	return balance.Mul(fraction).Div(dist), nil
}

// SplitRisk divides the account fraction across n grid legs. The result is
// not range-checked; it is the total that was validated.
func SplitRisk(fraction decimal.Decimal, n int) decimal.Decimal {
	if n <= 1 {
		return fraction
	}
	return fraction.Div(decimal.NewFromInt(int64(n)))
}

// LegSize sizes one of n grid legs from the account fraction.
func (c *Calculator) LegSize(balance, fraction, entry, stop decimal.Decimal, n int) (decimal.Decimal, error) {
	if err := c.ValidateRisk(fraction); err != nil {
		return decimal.Zero, err
	}
	if !balance.IsPositive() {
		return decimal.Zero, ErrInvalidBalance
	}
	dist := entry.Sub(stop).Abs()
	if dist.IsZero() {
		return decimal.Zero, ErrInvalidStopDistance
	}
	return balance.Mul(SplitRisk(fraction, n)).Div(dist), nil
}

// CheckMinimum rejects plans whose notional is below the configured minimum.
func (c *Calculator) CheckMinimum(size, price decimal.Decimal) error {
	if size.Mul(price).LessThan(c.minValue) {
		return fmt.Errorf("%w: %s < %s", ErrBelowMinimum, size.Mul(price).StringFixed(2), c.minValue)
	}
	return nil
}
