package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type Mode string

const (
	ModeAuto  Mode = "auto"
	ModeTrend Mode = "trend"
	ModeGrid  Mode = "grid"
)

func (m Mode) Valid() bool {
	return m == ModeAuto || m == ModeTrend || m == ModeGrid
}

// AccountSettings is the account risk context. A single row is kept; operator
// commands mutate it and each evaluation pass reads a copy.
type AccountSettings struct {
	ID           uint            `gorm:"primaryKey" json:"id"`
	RiskFraction decimal.Decimal `gorm:"type:numeric;not null" json:"risk_fraction"`
	Mode         Mode            `gorm:"size:10;not null;default:auto" json:"mode"`
	Paused       bool            `gorm:"not null;default:false" json:"paused"`
	AutoDip      bool            `gorm:"not null;default:false" json:"auto_dip"`
	AutoBreakout bool            `gorm:"not null;default:false" json:"auto_breakout"`
	Watchlist    []string        `gorm:"serializer:json" json:"watchlist"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

func (AccountSettings) TableName() string {
	return "account_settings"
}

// Clone returns a copy that does not share the watchlist backing array.
func (s AccountSettings) Clone() AccountSettings {
	out := s
	out.Watchlist = append([]string(nil), s.Watchlist...)
	return out
}

func (s AccountSettings) Watching(symbol string) bool {
	for _, w := range s.Watchlist {
		if w == symbol {
			return true
		}
	}
	return false
}
