package signal

import (
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	EMAFast      int     `envconfig:"EMA_FAST" default:"20"`
	EMASlow      int     `envconfig:"EMA_SLOW" default:"50"`
	MACDFast     int     `envconfig:"MACD_FAST" default:"12"`
	MACDSlow     int     `envconfig:"MACD_SLOW" default:"26"`
	MACDSignal   int     `envconfig:"MACD_SIGNAL" default:"9"`
	RSIPeriod    int     `envconfig:"RSI_PERIOD" default:"14"`
	ATRPeriod    int     `envconfig:"ATR_PERIOD" default:"14"`
	ADXPeriod    int     `envconfig:"ADX_PERIOD" default:"14"`
	ADXTrend     float64 `envconfig:"ADX_TREND" default:"22"`
	BBPeriod     int     `envconfig:"BB_PERIOD" default:"20"`
	BBDev        float64 `envconfig:"BB_DEV" default:"2"`
	BBWidthMax   float64 `envconfig:"BB_WIDTH_MAX" default:"0.06"`
	BreakoutBars int     `envconfig:"BREAKOUT_BARS" default:"20"`
}

func GetConfig() Config {
	var cfg Config
	envconfig.MustProcess("", &cfg)
	return cfg
}

// DefaultConfig returns the built-in periods without reading the environment.
func DefaultConfig() Config {
	return Config{
		EMAFast:      20,
		EMASlow:      50,
		MACDFast:     12,
		MACDSlow:     26,
		MACDSignal:   9,
		RSIPeriod:    14,
		ATRPeriod:    14,
		ADXPeriod:    14,
		ADXTrend:     22,
		BBPeriod:     20,
		BBDev:        2,
		BBWidthMax:   0.06,
		BreakoutBars: 20,
	}
}

// MinCandles is the shortest series for which every indicator has a valid
// current and previous value.
func (c Config) MinCandles() int {
	need := []int{
		c.EMASlow,
		c.EMAFast,
		c.MACDSlow + c.MACDSignal - 1,
		c.RSIPeriod + 1,
		c.ATRPeriod + 1,
		2 * c.ADXPeriod,
		c.BBPeriod,
		c.BreakoutBars + 1,
	}
	max := 0
	for _, n := range need {
		if n > max {
			max = n
		}
	}
	return max + 1
}
