package connectors

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	OKXAPIKey     string  `envconfig:"OKX_API_KEY"`
	OKXAPISecret  string  `envconfig:"OKX_API_SECRET"`
	OKXPassphrase string  `envconfig:"OKX_PASSPHRASE"`
	OKXSimulated  bool    `envconfig:"OKX_SIMULATED" default:"true"`
	OKXBaseURL    string  `envconfig:"OKX_BASE_URL" default:"https://www.okx.com"`
	OKXRateLimit  float64 `envconfig:"OKX_RATE_LIMIT" default:"10"`
	OKXAmendAlgos bool    `envconfig:"OKX_AMEND_ALGOS" default:"true"`
	QuoteCcy      string  `envconfig:"QUOTE_CCY" default:"USDT"`

	TelegramBotToken string `envconfig:"TELEGRAM_BOT_TOKEN"`
	TelegramChatID   string `envconfig:"TELEGRAM_CHAT_ID"`
	TelegramBaseURL  string `envconfig:"TELEGRAM_BASE_URL" default:"https://api.telegram.org"`
}

func GetConfig() Config {
	var config Config
	if err := envconfig.Process("", &config); err != nil {
		panic(fmt.Errorf("error processing env config: %w", err))
	}
	return config
}
