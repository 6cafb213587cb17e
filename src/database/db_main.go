package database

import (
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"spotexecutor/src/database/migrations"
	"spotexecutor/src/model"
)

// MainDB is the primary read/write database connection used by the application.
var MainDB *gorm.DB

func isPostgres(url string) bool {
	return strings.HasPrefix(url, "postgres://") || strings.HasPrefix(url, "postgresql://")
}

// Open connects to sqlite or postgres depending on the URL scheme.
func Open(url string, gormLogLevel int, maxOpen int) (*gorm.DB, error) {
	var dialector gorm.Dialector
	if isPostgres(url) {
		dialector = postgres.Open(url)
	} else {
		dialector = sqlite.Open(url)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(gormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("get sql db: %w", err)
	}
	if isPostgres(url) {
		sqlDB.SetMaxOpenConns(maxOpen)
		sqlDB.SetMaxIdleConns(maxOpen / 2)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	} else {
		// sqlite allows a single writer
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Migrate creates the schema and applies data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.Position{},
		&model.Alert{},
		&model.Trade{},
		&model.GridCycle{},
		&model.PositionLog{},
		&model.AccountSettings{},
		&model.Exception{},
		&migrations.DataMigration{},
	); err != nil {
		return fmt.Errorf("failed to run migrations on MainDB: %w", err)
	}

	if err := migrations.Run(db); err != nil {
		return fmt.Errorf("failed to run data migrations on MainDB: %w", err)
	}
	return nil
}

// InitMainDB initializes the main database connection and runs migrations.
// This should be called once at application startup.
func InitMainDB() error {
	config := GetConfig()

	db, err := Open(config.DatabaseURLMain, config.GormLogLevel, config.MaxOpenConns)
	if err != nil {
		return err
	}

	// Assign to the global variable only after a successful connection.
	MainDB = db

	logrus.WithFields(map[string]interface{}{
		"postgres": isPostgres(config.DatabaseURLMain),
	}).Info("[database] MainDB connection established")

	if err := Migrate(MainDB); err != nil {
		return err
	}

	logrus.Info("[database] MainDB migrations completed")
	return nil
}
