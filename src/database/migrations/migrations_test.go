package migrations

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"spotexecutor/src/model"
)

func openTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	return db
}

func TestRunOnce_ExecutesOnlyOnce(t *testing.T) {
	db := openTestDB(t)

	calls := 0
	fn := func(tx *gorm.DB) error {
		calls++
		return nil
	}

	require.NoError(t, RunOnce(db, "00001_test", fn))
	require.NoError(t, RunOnce(db, "00001_test", fn))

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestRunOnce_FailureIsNotRecorded(t *testing.T) {
	db := openTestDB(t)

	err := RunOnce(db, "00002_test", func(tx *gorm.DB) error { return errors.New("boom") })
	require.Error(t, err)

	var count int64
	require.NoError(t, db.Model(&DataMigration{}).Where("id = ?", "00002_test").Count(&count).Error)
	require.Equal(t, int64(0), count)

	calls := 0
	require.NoError(t, RunOnce(db, "00002_test", func(tx *gorm.DB) error { calls++; return nil }))
	require.Equal(t, 1, calls)
}

func TestRunOnce_Validation(t *testing.T) {
	db := openTestDB(t)
	require.Error(t, RunOnce(db, "", func(tx *gorm.DB) error { return nil }))
	require.Error(t, RunOnce(db, "x", nil))
	require.NoError(t, RunOnce(nil, "x", nil))
}

func TestRun_OneOpenPositionPerOrigin(t *testing.T) {
	db := openTestDB(t)
	require.NoError(t, db.AutoMigrate(&model.Position{}))
	require.NoError(t, Run(db))
	require.NoError(t, Run(db))

	insert := func(id string, origin model.Origin, state model.PositionState) error {
		return db.Create(&model.Position{
			ID:            id,
			Symbol:        "ETH-USDT",
			Origin:        origin,
			State:         state,
			EntryClientID: "e" + id,
		}).Error
	}

	require.NoError(t, insert("t1", model.OriginTrend, model.PositionStateProtected))
	require.Error(t, insert("t2", model.OriginTrend, model.PositionStatePlanned))
	require.NoError(t, insert("t3", model.OriginTrend, model.PositionStateClosed))
	require.NoError(t, insert("d1", model.OriginDip, model.PositionStatePlanned))

	// grid legs of one cycle are open side by side
	require.NoError(t, insert("g1", model.OriginGridLeg, model.PositionStatePendingEntry))
	require.NoError(t, insert("g2", model.OriginGridLeg, model.PositionStatePendingEntry))
}
