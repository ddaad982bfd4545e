package database

import (
	"fmt"
	"strings"
	"time"

	"riskengine/src/database/migrations"
	"riskengine/src/model"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MainDB is the journal database used by the repositories.
var MainDB *gorm.DB

// InitMainDB opens the configured database, migrates the journal schema and
// assigns MainDB. Call once at startup.
func InitMainDB() error {
	db, err := Open(GetConfig())
	if err != nil {
		return err
	}
	if err := Migrate(db); err != nil {
		return err
	}

	// Assign to the global variable only after a successful migration.
	MainDB = db
	logrus.Info("[database] MainDB migrations completed")
	return nil
}

// Open connects with the configured driver and tunes the pool.
func Open(config Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(config.DatabaseDriver) {
	case "", "postgres":
		dialector = postgres.Open(config.DatabaseURLMain)
	case "sqlite":
		dialector = sqlite.Open(config.DatabaseURLMain)
	default:
		return nil, fmt.Errorf("unsupported database driver %q", config.DatabaseDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB from GORM: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	sqlDB.SetConnMaxLifetime(1 * time.Hour)

	logrus.WithField("driver", config.DatabaseDriver).Info("[database] MainDB connection established")
	return db, nil
}

// Migrate creates the journal schema and runs the data migrations.
func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(
		&model.RiskEventRecord{},
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
