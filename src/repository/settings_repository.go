package repository

import (
	"context"
	"errors"

	logger "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"spotexecutor/src/database"
	"spotexecutor/src/model"
)

const settingsRowID = 1

// SettingsRepository keeps the single account settings row.
type SettingsRepository struct {
	db *gorm.DB
}

func NewSettingsRepository() *SettingsRepository {
	return &SettingsRepository{db: database.MainDB}
}

func (r *SettingsRepository) WithDB(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Load returns the stored settings, inserting defaults on first start.
func (r *SettingsRepository) Load(ctx context.Context, defaults model.AccountSettings) (model.AccountSettings, error) {
	var s model.AccountSettings
	err := r.db.WithContext(ctx).First(&s, settingsRowID).Error
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return model.AccountSettings{}, err
	}

	s = defaults.Clone()
	s.ID = settingsRowID
	if err := r.db.WithContext(ctx).Create(&s).Error; err != nil {
		return model.AccountSettings{}, err
	}

	logger.WithFields(map[string]interface{}{
		"repo":      "SettingsRepository",
		"op":        "Load",
		"mode":      s.Mode,
		"risk":      s.RiskFraction.String(),
		"watchlist": s.Watchlist,
	}).Info("Account settings initialized from defaults")
	return s, nil
}

func (r *SettingsRepository) Save(ctx context.Context, s *model.AccountSettings) error {
	s.ID = settingsRowID
	return r.db.WithContext(ctx).Save(s).Error
}
