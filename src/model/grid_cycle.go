package model

import "time"

// GridCycle groups the sibling legs planned together from one ladder.
type GridCycle struct {
	ID          string     `gorm:"primaryKey;size:64" json:"id"`
	Symbol      string     `gorm:"size:50;not null;index" json:"symbol"`
	LegIDs      []string   `gorm:"serializer:json" json:"leg_ids"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
}

func (GridCycle) TableName() string {
	return "grid_cycles"
}
