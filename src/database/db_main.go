package database

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// MainDB is the backing store for the Candle Repository. Unlike the
// teacher's fixed Postgres connection, this is dialector-pluggable: sqlite
// for the default local on-disk columnar store, postgres for deployments
// that want a centralised backend.
var MainDB *gorm.DB

// InitMainDB opens MainDB per Config.Driver. It does not AutoMigrate any
// model: the Candle Repository materialises each (symbol, timeframe) table
// lazily on first write, since the table name is only known at request
// time.
func InitMainDB() error {
	config := GetConfig()

	var dialector gorm.Dialector
	switch config.Driver {
	case "postgres":
		dialector = postgres.Open(config.PostgresDSN)
	case "sqlite", "":
		dialector = sqlite.Open(config.SQLitePath)
	default:
		return fmt.Errorf("unsupported CANDLE_DB_DRIVER %q", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.LogLevel(config.GormLogLevel)),
	})
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to candle database")
	}

	sqlDB, err := db.DB()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to get DB from GORM")
	}
	if config.Driver == "postgres" {
		sqlDB.SetMaxOpenConns(20)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(1 * time.Hour)
	} else {
		// sqlite has no real connection concurrency; keep a single
		// connection so the repository's per-table mutex is the only
		// serialisation point.
		sqlDB.SetMaxOpenConns(1)
	}

	MainDB = db

	logrus.WithField("driver", config.Driver).Info("[database] MainDB connection established")

	return nil
}

// NewDBWithDialector is a seam that bypasses Config for callers that supply
// their own dialector.
func NewDBWithDialector(dialector gorm.Dialector) (*gorm.DB, error) {
	return gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
}
