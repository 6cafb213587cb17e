package signal

import (
	"errors"
	"fmt"
	"math"

	"github.com/markcheno/go-talib"
	"github.com/shopspring/decimal"

	"spotexecutor/src/model"
)

type Regime string

const (
	RegimeTrendLong        Regime = "trend-long"
	RegimeRange            Regime = "range"
	RegimeNone             Regime = "none"
	RegimeInsufficientData Regime = "insufficient-data"
)

var ErrInsufficientData = errors.New("insufficient candle data")

// Indicators is the last and previous value of every indicator over a series.
type Indicators struct {
	Close     float64
	PrevClose float64
	EMAFast   float64
	PrevEMA   float64
	EMASlow   float64
	MACD      float64
	MACDSig   float64
	RSI       float64
	ATR       float64
	ADX       float64
	BBUpper   float64
	BBMid     float64
	BBLower   float64
	BBWidth   float64
}

// Evaluation is the output of one pass of the engine over a series.
type Evaluation struct {
	Regime     Regime
	Indicators Indicators
	Candles    int
}

func (e Evaluation) ATR() decimal.Decimal {
	return decimal.NewFromFloat(e.Indicators.ATR)
}

type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

func (e *Engine) Config() Config { return e.cfg }

// Compute runs the indicators over the series. It fails with
// ErrInsufficientData when the series is shorter than the longest warm-up.
func (e *Engine) Compute(series model.CandleSeries) (Indicators, error) {
	if len(series) < e.cfg.MinCandles() {
		return Indicators{}, fmt.Errorf("%w: have %d need %d", ErrInsufficientData, len(series), e.cfg.MinCandles())
	}
	closes := series.Closes()
	highs := series.Highs()
	lows := series.Lows()
	last := len(closes) - 1

	emaFast := talib.Ema(closes, e.cfg.EMAFast)
	emaSlow := talib.Ema(closes, e.cfg.EMASlow)
	macd, macdSig, _ := talib.Macd(closes, e.cfg.MACDFast, e.cfg.MACDSlow, e.cfg.MACDSignal)
	rsi := talib.Rsi(closes, e.cfg.RSIPeriod)
	atr := talib.Atr(highs, lows, closes, e.cfg.ATRPeriod)
	adx := talib.Adx(highs, lows, closes, e.cfg.ADXPeriod)
	upper, mid, lower := talib.BBands(closes, e.cfg.BBPeriod, e.cfg.BBDev, e.cfg.BBDev, talib.SMA)

	ind := Indicators{
		Close:     closes[last],
		PrevClose: closes[last-1],
		EMAFast:   emaFast[last],
		PrevEMA:   emaFast[last-1],
		EMASlow:   emaSlow[last],
		MACD:      macd[last],
		MACDSig:   macdSig[last],
		RSI:       rsi[last],
		ATR:       atr[last],
		ADX:       adx[last],
		BBUpper:   upper[last],
		BBMid:     mid[last],
		BBLower:   lower[last],
	}
	if ind.Close > 0 {
		ind.BBWidth = (ind.BBUpper - ind.BBLower) / ind.Close
	}
	for _, v := range []float64{ind.EMAFast, ind.EMASlow, ind.ATR, ind.ADX, ind.RSI, ind.BBMid} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return Indicators{}, fmt.Errorf("%w: indicator not finite", ErrInsufficientData)
		}
	}
	return ind, nil
}

// Classify applies the regime rules to computed indicators.
func (e *Engine) Classify(ind Indicators) Regime {
	if ind.EMAFast > ind.EMASlow && ind.ADX >= e.cfg.ADXTrend {
		return RegimeTrendLong
	}
	if ind.BBWidth <= e.cfg.BBWidthMax && ind.ADX < e.cfg.ADXTrend {
		return RegimeRange
	}
	return RegimeNone
}

// Evaluate computes indicators and classifies the regime. Mode trend or grid
// forces the regime once there is enough data.
func (e *Engine) Evaluate(series model.CandleSeries, mode model.Mode) Evaluation {
	ind, err := e.Compute(series)
	if err != nil {
		return Evaluation{Regime: RegimeInsufficientData, Candles: len(series)}
	}
	ev := Evaluation{Indicators: ind, Candles: len(series)}
	switch mode {
	case model.ModeTrend:
		ev.Regime = RegimeTrendLong
	case model.ModeGrid:
		ev.Regime = RegimeRange
	default:
		ev.Regime = e.Classify(ind)
	}
	return ev
}

// TrendEntry reports whether the last bar is a long trend entry: EMAs, MACD
// and RSI aligned and either a breakout of the prior high or a rejected pullback.
func (e *Engine) TrendEntry(series model.CandleSeries, ind Indicators) (bool, string) {
	aligned := ind.EMAFast > ind.EMASlow && ind.MACD > ind.MACDSig && ind.RSI >= 50
	if !aligned {
		return false, ""
	}
	if high, ok := series.HighestHigh(e.cfg.BreakoutBars); ok && ind.Close > high.InexactFloat64() {
		return true, "breakout"
	}
	if ind.PrevClose < ind.PrevEMA && ind.Close > ind.EMAFast {
		return true, "pullback"
	}
	return false, ""
}

// BreakoutConfirmed gates breakout alerts on trend strength.
func (e *Engine) BreakoutConfirmed(ind Indicators) bool {
	return ind.ADX >= e.cfg.ADXTrend && ind.EMAFast > ind.EMASlow
}
