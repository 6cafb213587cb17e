package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// PositionState is the lifecycle state of a tracked position.
type PositionState string

const (
	PositionStatePlanned      PositionState = "planned"
	PositionStatePendingEntry PositionState = "pending_entry"
	PositionStateProtected    PositionState = "protected"
	PositionStateClosed       PositionState = "closed"
	PositionStateCancelled    PositionState = "cancelled"
)

// Terminal reports whether no further transition is possible.
func (s PositionState) Terminal() bool {
	return s == PositionStateClosed || s == PositionStateCancelled
}

// Origin is the strategy that produced a position.
type Origin string

const (
	OriginTrend    Origin = "trend"
	OriginGridLeg  Origin = "grid-leg"
	OriginDip      Origin = "dip"
	OriginBreakout Origin = "breakout"
)

// Position is a long spot position tracked from plan to close.
type Position struct {
	ID     string        `gorm:"primaryKey;size:64" json:"id"`
	Symbol string        `gorm:"size:50;not null;index" json:"symbol"`
	Origin Origin        `gorm:"size:20;not null;index" json:"origin"`
	State  PositionState `gorm:"size:20;not null;index" json:"state"`

	// Entry
	EntryClientID  string          `gorm:"size:64;not null" json:"entry_client_id"`
	EntryOrderID   string          `gorm:"size:64" json:"entry_order_id,omitempty"`
	PlannedPrice   decimal.Decimal `gorm:"type:numeric" json:"planned_price"`
	SubmittedPrice decimal.Decimal `gorm:"type:numeric" json:"submitted_price"`
	Size           decimal.Decimal `gorm:"type:numeric" json:"size"`
	EntryPrice     decimal.Decimal `gorm:"type:numeric" json:"entry_price"`
	FilledSize     decimal.Decimal `gorm:"type:numeric" json:"filled_size"`
	SubmitAttempts int             `json:"submit_attempts"`

	// Protection
	InitialStop        decimal.Decimal `gorm:"type:numeric" json:"initial_stop"`
	Stop               decimal.Decimal `gorm:"type:numeric" json:"stop"`
	Target             decimal.Decimal `gorm:"type:numeric" json:"target"`
	ProtectClientID    string          `gorm:"size:64" json:"protect_client_id,omitempty"`
	ProtectOrderID     string          `gorm:"size:64" json:"protect_order_id,omitempty"`
	Protected          bool            `json:"protected"`
	UnprotectedFill    bool            `json:"unprotected_fill"`
	ProtectionAttempts int             `json:"protection_attempts"`

	// Trailing (trend only)
	HighWater decimal.Decimal `gorm:"type:numeric" json:"high_water"`
	TrailMult decimal.Decimal `gorm:"type:numeric" json:"trail_mult"`
	// A replacement OCO sent under ReplaceClientID that has not yet taken
	// over from ProtectOrderID.
	ReplaceClientID string          `gorm:"size:64" json:"replace_client_id,omitempty"`
	ReplaceStop     decimal.Decimal `gorm:"type:numeric" json:"replace_stop"`

	// Grid
	GridCycleID string   `gorm:"size:64;index" json:"grid_cycle_id,omitempty"`
	SiblingIDs  []string `gorm:"serializer:json" json:"sibling_ids,omitempty"`

	LastError string     `gorm:"type:text" json:"last_error,omitempty"`
	Reason    string     `gorm:"size:255" json:"reason,omitempty"`
	FilledAt  *time.Time `json:"filled_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (Position) TableName() string {
	return "positions"
}

// RiskPerUnit is the distance between the entry and the stop set at entry.
func (p *Position) RiskPerUnit() decimal.Decimal {
	entry := p.EntryPrice
	if entry.IsZero() {
		entry = p.PlannedPrice
	}
	return entry.Sub(p.InitialStop).Abs()
}

// HasFill reports whether any quantity of the entry order has been filled.
func (p *Position) HasFill() bool {
	return p.FilledSize.GreaterThan(decimal.Zero)
}
