package db

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/provenance-updater/internal/config"
	"github.com/yungbote/provenance-updater/internal/platform/logger"
)

// Open connects the ledger database for cfg.Driver and migrates its schema.
func Open(ctx context.Context, cfg config.LedgerConfig, logg *logger.Logger) (*gorm.DB, error) {
	serviceLog := logg.With("service", "LedgerDB", "driver", cfg.Driver)

	gormLog := gormLogger.New(
		log.New(os.Stdout, "\r\n", log.LstdFlags),
		gormLogger.Config{
			SlowThreshold:             1 * time.Second,
			LogLevel:                  gormLogger.Warn,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gcfg := &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLog,
	}

	var (
		db  *gorm.DB
		err error
	)
	switch cfg.Driver {
	case "postgres":
		db, err = gorm.Open(postgres.Open(cfg.DSN), gcfg)
	case "sqlite":
		db, err = gorm.Open(gormsqlite.Open(cfg.DSN), gcfg)
	default:
		return nil, fmt.Errorf("unsupported ledger driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s ledger: %w", cfg.Driver, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("ledger pool: %w", err)
	}
	// Every connection to ":memory:" is a separate database.
	if cfg.Driver == "sqlite" && strings.Contains(cfg.DSN, ":memory:") {
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ledger ping: %w", err)
	}

	if err := AutoMigrateAll(db.WithContext(ctx)); err != nil {
		return nil, fmt.Errorf("ledger migrate: %w", err)
	}
	serviceLog.Info("ledger database ready")
	return db, nil
}
