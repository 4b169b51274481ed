// Package db provides database connection and migration functionality.
package db

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"artvote/internal/config"
	"artvote/internal/logger"
	"artvote/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/plugin/opentelemetry/tracing"
)

const pingTimeout = 5 * time.Second

// SqliteConnOpts keeps writes durable once acknowledged: WAL journal with a
// full fsync on commit, and a busy timeout instead of immediate SQLITE_BUSY.
const SqliteConnOpts = "_pragma=journal_mode(WAL)&_pragma=synchronous(FULL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)"

// Open opens a database connection using the provided configuration.
// It returns (nil, nil) for dialects that are not served by GORM.
func Open(cfg config.Config, log *logger.Logger) (*gorm.DB, error) {
	if log == nil {
		log = logger.Discard()
	}
	// Only errors are logged, and only when debugging; the vote service logs its own failures
	level := gormlogger.Silent
	if log.Debug() {
		level = gormlogger.Warn
	}
	newLogger := gormlogger.New(
		log.Logger,
		gormlogger.Config{
			SlowThreshold:             200 * time.Millisecond,
			LogLevel:                  level,
			IgnoreRecordNotFoundError: true,
			Colorful:                  false,
		},
	)
	gormCfg := &gorm.Config{
		Logger:         newLogger,
		TranslateError: true,
	}

	if cfg.DBDialect == "" || cfg.DBDsn == "" {
		return nil, errors.New("database is not configured")
	}

	var gdb *gorm.DB
	var err error
	switch cfg.DBDialect {
	case config.DatabaseSchemePostgres:
		gdb, err = gorm.Open(postgres.Open(cfg.DBDsn), gormCfg)
	case config.DatabaseSchemeSqlite:
		gdb, err = OpenSqlite(cfg.DBDsn, gormCfg)
	case config.DatabaseSchemeBadger:
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported DB_DIALECT: %s", cfg.DBDialect)
	}
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", cfg.DBDialect, err)
	}

	if err := gdb.Use(tracing.NewPlugin(tracing.WithoutMetrics())); err != nil {
		_ = Close(gdb)
		return nil, fmt.Errorf("configure tracing: %w", err)
	}

	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, fmt.Errorf("resolve sql db handle: %w", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err := sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping %s: %w", cfg.DBDialect, err)
	}
	return gdb, nil
}

// OpenSqlite opens a file-backed SQLite database, creating the parent
// directory when needed. A single connection serializes writers.
func OpenSqlite(path string, gormCfg *gorm.Config) (*gorm.DB, error) {
	if gormCfg == nil {
		gormCfg = &gorm.Config{
			Logger:         gormlogger.Discard,
			TranslateError: true,
		}
	}
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data dir: %w", err)
		}
	}
	gdb, err := gorm.Open(
		sqlite.Open(fmt.Sprintf("file:%s?%s", path, SqliteConnOpts)),
		gormCfg,
	)
	if err != nil {
		return nil, err
	}
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)
	return gdb, nil
}

// AutoMigrate runs database migrations for all models.
func AutoMigrate(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	return db.AutoMigrate(models.MigrateModels...)
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
