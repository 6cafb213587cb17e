package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type AlertKind string

const (
	AlertKindDip      AlertKind = "dip"
	AlertKindBreakout AlertKind = "breakout"
)

// Alert is an operator-defined price trigger for a dip or breakout entry.
type Alert struct {
	ID        uint            `gorm:"primaryKey" json:"id"`
	Symbol    string          `gorm:"size:50;not null;index" json:"symbol"`
	Kind      AlertKind       `gorm:"size:20;not null" json:"kind"`
	Trigger   decimal.Decimal `gorm:"type:numeric;not null" json:"trigger"`
	Active    bool            `gorm:"not null;default:true;index" json:"active"`
	FiredAt   *time.Time      `json:"fired_at,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

func (Alert) TableName() string {
	return "alerts"
}

// Fires reports whether the last price crosses the trigger for this alert kind.
func (a Alert) Fires(last decimal.Decimal) bool {
	if !a.Active {
		return false
	}
	switch a.Kind {
	case AlertKindDip:
		return last.LessThanOrEqual(a.Trigger)
	case AlertKindBreakout:
		return last.GreaterThanOrEqual(a.Trigger)
	default:
		return false
	}
}
