package repository

import (
	"context"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"spotexecutor/src/database"
	"spotexecutor/src/model"
)

// AlertRepository persists operator price alerts.
type AlertRepository struct {
	db *gorm.DB
}

func NewAlertRepository() *AlertRepository {
	return &AlertRepository{db: database.MainDB}
}

func (r *AlertRepository) WithDB(db *gorm.DB) *AlertRepository {
	return &AlertRepository{db: db}
}

func (r *AlertRepository) Create(ctx context.Context, a *model.Alert) error {
	logger.WithFields(map[string]interface{}{
		"repo":    "AlertRepository",
		"op":      "Create",
		"symbol":  a.Symbol,
		"kind":    a.Kind,
		"trigger": a.Trigger.String(),
	}).Debug("Creating alert")

	return r.db.WithContext(ctx).Create(a).Error
}

// FindActive returns active alerts, optionally limited to one symbol.
func (r *AlertRepository) FindActive(ctx context.Context, symbol string) ([]model.Alert, error) {
	q := r.db.WithContext(ctx).Where("active = ?", true)
	if symbol != "" {
		q = q.Where("symbol = ?", symbol)
	}
	var out []model.Alert
	if err := q.Order("id ASC").Find(&out).Error; err != nil {
		logger.WithFields(map[string]interface{}{
			"repo":   "AlertRepository",
			"op":     "FindActive",
			"symbol": symbol,
		}).WithError(err).Error("Failed to fetch alerts")
		return nil, err
	}
	return out, nil
}

// Delete removes one alert. It reports whether a row was removed.
func (r *AlertRepository) Delete(ctx context.Context, id uint) (bool, error) {
	res := r.db.WithContext(ctx).Delete(&model.Alert{}, id)
	return res.RowsAffected > 0, res.Error
}

// DeleteBySymbol removes every alert of a symbol, active or not.
func (r *AlertRepository) DeleteBySymbol(ctx context.Context, symbol string) (int64, error) {
	res := r.db.WithContext(ctx).Where("symbol = ?", symbol).Delete(&model.Alert{})
	return res.RowsAffected, res.Error
}
