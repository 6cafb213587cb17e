package controller

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Timeframe         string  `envconfig:"TIMEFRAME" default:"1H"`
	CandleLimit       int     `envconfig:"CANDLE_LIMIT" default:"300"`
	QuoteCcy          string  `envconfig:"QUOTE_CCY" default:"USDT"`
	GridLegs          int     `envconfig:"GRID_LEGS" default:"3"`
	MaxSubmitAttempts int     `envconfig:"MAX_SUBMIT_ATTEMPTS" default:"5"`
	TrailATRMult      float64 `envconfig:"TRAIL_ATR_MULT" default:"2.5"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

func DefaultConfig() Config {
	return Config{
		Timeframe:         "1H",
		CandleLimit:       300,
		QuoteCcy:          "USDT",
		GridLegs:          3,
		MaxSubmitAttempts: 5,
		TrailATRMult:      2.5,
	}
}
