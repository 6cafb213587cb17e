package model

import "time"

// PositionLog stores each lifecycle transition of a position, together with
// the exchange identifier that justified it.
type PositionLog struct {
	ID         uint          `gorm:"primaryKey" json:"id"`
	PositionID string        `gorm:"size:64;index" json:"position_id"`
	Symbol     string        `gorm:"size:50" json:"symbol"`
	FromState  PositionState `gorm:"size:20" json:"from_state"`
	ToState    PositionState `gorm:"size:20;not null" json:"to_state"`
	OrderID    string        `gorm:"size:64" json:"order_id,omitempty"`
	Reason     string        `gorm:"size:255" json:"reason"`
	CreatedAt  time.Time     `json:"created_at"`
}

func (PositionLog) TableName() string {
	return "position_logs"
}
