package model

import "github.com/shopspring/decimal"

// Instrument holds the exchange granularity for a spot pair.
type Instrument struct {
	Symbol  string          `json:"symbol"`
	TickSz  decimal.Decimal `json:"tick_sz"`
	LotSz   decimal.Decimal `json:"lot_sz"`
	MinSz   decimal.Decimal `json:"min_sz"`
	BaseCcy string          `json:"base_ccy"`
}
