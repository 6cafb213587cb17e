package model

import "time"

// Exception represents a system-level error that must be persisted
// for auditing, debugging, and monitoring purposes.
type Exception struct {
	ID uint `gorm:"primaryKey" json:"id"`

	// Where the error happened
	Service string `gorm:"size:100;index" json:"service"` // e.g. "spot_executor"
	Module  string `gorm:"size:100;index" json:"module"`  // e.g. "lifecycle"
	Method  string `gorm:"size:100" json:"method"`        // e.g. "protect"

	Symbol     string `gorm:"size:50;index" json:"symbol,omitempty"`
	PositionID string `gorm:"size:64;index" json:"position_id,omitempty"`

	Message string `gorm:"type:text" json:"message"`
	Stack   string `gorm:"type:text" json:"stack"`

	// debug | info | warn | error | fatal
	Level string `gorm:"size:20;index" json:"level"`

	// Extra context stored as JSON
	Context string `gorm:"type:text" json:"context,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

func (Exception) TableName() string {
	return "exceptions"
}
