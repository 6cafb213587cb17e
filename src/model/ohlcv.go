package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Candle is one OHLCV bar. Candles are fetched from the exchange every cycle and never persisted.
type Candle struct {
	Datetime time.Time       `json:"datetime"`
	Open     decimal.Decimal `json:"open"`
	High     decimal.Decimal `json:"high"`
	Low      decimal.Decimal `json:"low"`
	Close    decimal.Decimal `json:"close"`
	Volume   decimal.Decimal `json:"volume"`
	Symbol   string          `json:"symbol"`
}

// CandleSeries is ordered oldest first.
type CandleSeries []Candle

func (s CandleSeries) Closes() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Close.InexactFloat64()
	}
	return out
}

func (s CandleSeries) Highs() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.High.InexactFloat64()
	}
	return out
}

func (s CandleSeries) Lows() []float64 {
	out := make([]float64, len(s))
	for i, c := range s {
		out[i] = c.Low.InexactFloat64()
	}
	return out
}

// Last returns the most recent candle, or false when the series is empty.
func (s CandleSeries) Last() (Candle, bool) {
	if len(s) == 0 {
		return Candle{}, false
	}
	return s[len(s)-1], true
}

// LowestLow returns the minimum low over the last lookback candles, excluding the current one.
func (s CandleSeries) LowestLow(lookback int) (decimal.Decimal, bool) {
	if lookback <= 0 || len(s) < lookback+1 {
		return decimal.Zero, false
	}
	window := s[len(s)-1-lookback : len(s)-1]
	low := window[0].Low
	for _, c := range window[1:] {
		if c.Low.LessThan(low) {
			low = c.Low
		}
	}
	return low, true
}

// HighestHigh returns the maximum high over the last lookback candles, excluding the current one.
func (s CandleSeries) HighestHigh(lookback int) (decimal.Decimal, bool) {
	if lookback <= 0 || len(s) < lookback+1 {
		return decimal.Zero, false
	}
	window := s[len(s)-1-lookback : len(s)-1]
	high := window[0].High
	for _, c := range window[1:] {
		if c.High.GreaterThan(high) {
			high = c.High
		}
	}
	return high, true
}
