package executors

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	LoopPeriod         time.Duration `envconfig:"LOOP_PERIOD" default:"60s"`
	MaxParallelSymbols int           `envconfig:"MAX_PARALLEL_SYMBOLS" default:"4"`
	// standard five field cron spec, evaluated in DailyPnLTZ
	DailyPnLCron string `envconfig:"DAILY_PNL_CRON" default:"0 21 * * *"`
	DailyPnLTZ   string `envconfig:"DAILY_PNL_TZ" default:"Europe/London"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
