package repository

import (
	"context"
	"time"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"spotexecutor/src/database"
	"spotexecutor/src/model"
)

// TradeRepository reads the append-only trade audit trail. Trades are
// written only through StateRepository.Finalize.
type TradeRepository struct {
	db *gorm.DB
}

func NewTradeRepository() *TradeRepository {
	return &TradeRepository{db: database.MainDB}
}

func (r *TradeRepository) WithDB(db *gorm.DB) *TradeRepository {
	return &TradeRepository{db: db}
}

// FindClosedBetween returns trades with from <= closed_at < to. A zero
// bound is open.
func (r *TradeRepository) FindClosedBetween(ctx context.Context, from, to time.Time) ([]model.Trade, error) {
	q := r.db.WithContext(ctx)
	if !from.IsZero() {
		q = q.Where("closed_at >= ?", from)
	}
	if !to.IsZero() {
		q = q.Where("closed_at < ?", to)
	}
	var out []model.Trade
	if err := q.Order("closed_at ASC, id ASC").Find(&out).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo": "TradeRepository",
			"op":   "FindClosedBetween",
		}).WithError(err).Error("Failed to fetch trades")
		return nil, err
	}
	return out, nil
}

// FindByCycle returns the trades of one grid cycle.
func (r *TradeRepository) FindByCycle(ctx context.Context, cycleID string) ([]model.Trade, error) {
	var out []model.Trade
	err := r.db.WithContext(ctx).
		Where("grid_cycle_id = ?", cycleID).
		Order("closed_at ASC, id ASC").
		Find(&out).Error
	return out, err
}
