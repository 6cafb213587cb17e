package commands

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
	"github.com/shopspring/decimal"

	"spotexecutor/src/controller"
	"spotexecutor/src/model"
)

// Config holds the account settings used on first start. Afterwards the
// stored row wins and only operator commands change it.
type Config struct {
	Watchlist    []string `envconfig:"WATCHLIST" default:"BTC-USDT,ETH-USDT"`
	RiskPerTrade float64  `envconfig:"RISK_PER_TRADE" default:"0.01"`
	Mode         string   `envconfig:"MODE" default:"auto"`
	AutoDip      bool     `envconfig:"AUTO_DIP" default:"false"`
	AutoBreakout bool     `envconfig:"AUTO_BREAKOUT" default:"false"`
	QuoteCcy     string   `envconfig:"QUOTE_CCY" default:"USDT"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}

// DefaultSettings converts the config into the initial settings row.
func (c Config) DefaultSettings() model.AccountSettings {
	mode := model.Mode(c.Mode)
	if !mode.Valid() {
		mode = model.ModeAuto
	}
	s := model.AccountSettings{
		RiskFraction: decimal.NewFromFloat(c.RiskPerTrade),
		Mode:         mode,
		AutoDip:      c.AutoDip,
		AutoBreakout: c.AutoBreakout,
	}
	for _, w := range c.Watchlist {
		if sym := controller.NormalizeSymbol(w); sym != "" && !s.Watching(sym) {
			s.Watchlist = append(s.Watchlist, sym)
		}
	}
	return s
}
