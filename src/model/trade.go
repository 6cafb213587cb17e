package model

import (
	"time"

	"github.com/shopspring/decimal"
)

type ExitReason string

const (
	ExitReasonTakeProfit ExitReason = "take_profit"
	ExitReasonStopLoss   ExitReason = "stop_loss"
	ExitReasonManual     ExitReason = "manual"
)

// Trade is an immutable audit record written once a position closes.
type Trade struct {
	ID          uint            `gorm:"primaryKey" json:"id"`
	PositionID  string          `gorm:"size:64;uniqueIndex" json:"position_id"`
	Symbol      string          `gorm:"size:50;not null;index" json:"symbol"`
	Origin      Origin          `gorm:"size:20;not null" json:"origin"`
	GridCycleID string          `gorm:"size:64;index" json:"grid_cycle_id,omitempty"`
	EntryPrice  decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	StopPrice   decimal.Decimal `gorm:"type:numeric" json:"stop_price"`
	TargetPrice decimal.Decimal `gorm:"type:numeric" json:"target_price"`
	Size        decimal.Decimal `gorm:"type:numeric" json:"size"`
	ExitPrice   decimal.Decimal `gorm:"type:numeric" json:"exit_price"`
	ExitReason  ExitReason      `gorm:"size:20" json:"exit_reason"`
	RealizedPnL decimal.Decimal `gorm:"type:numeric" json:"realized_pnl"`
	RMultiple   decimal.Decimal `gorm:"type:numeric" json:"r_multiple"`
	OpenedAt    time.Time       `json:"opened_at"`
	ClosedAt    time.Time       `gorm:"index" json:"closed_at"`
}

func (Trade) TableName() string {
	return "trades"
}
