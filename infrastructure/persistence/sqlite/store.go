// Package sqlite is the relational fact store: the normalised countries,
// commodities, observations and reports the rebuild pipeline reads from and
// writes derived values back to.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"
)

const driverName = "sqlite3"

var errNilStore = errors.New("sqlite store not initialised")

// Config holds connection pool settings
type Config struct {
	Path            string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	BusyTimeout     time.Duration
}

// DefaultConfig returns pool settings suited to a single batch writer
func DefaultConfig(path string) Config {
	return Config{
		Path:            path,
		MaxOpenConns:    4,
		MaxIdleConns:    2,
		ConnMaxLifetime: 30 * time.Minute,
		BusyTimeout:     5 * time.Second,
	}
}

// Store wraps a pooled sqlx.DB connection to the fact database
type Store struct {
	db     *sqlx.DB
	logger *zap.Logger
}

// Open constructs a Store at path with default pool settings
func Open(path string, logger *zap.Logger) (*Store, error) {
	return OpenWithConfig(DefaultConfig(path), logger)
}

// OpenWithConfig constructs a Store and migrates the schema
func OpenWithConfig(cfg Config, logger *zap.Logger) (*Store, error) {
	if strings.TrimSpace(cfg.Path) == "" {
		return nil, errors.New("sqlite path required")
	}
	abs, err := filepath.Abs(cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("resolve sqlite path: %w", err)
	}
	busy := int(cfg.BusyTimeout / time.Millisecond)
	if busy <= 0 {
		busy = 5000
	}
	dsn := fmt.Sprintf("file:%s?_busy_timeout=%d&_foreign_keys=on&_journal_mode=WAL", abs, busy)
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), cfg.BusyTimeout+time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}

	store := &Store{db: db, logger: logger}
	if err := store.migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	logger.Info("Fact store opened", zap.String("path", abs))
	return store, nil
}

// Close releases the underlying database resources
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection, used by readiness probes
func (s *Store) Ping(ctx context.Context) error {
	if err := s.ensureReady(); err != nil {
		return err
	}
	return s.db.PingContext(ctx)
}

func (s *Store) ensureReady() error {
	if s == nil || s.db == nil {
		return errNilStore
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	tx, err := s.db.BeginTxx(ctx, &sql.TxOptions{})
	if err != nil {
		return fmt.Errorf("begin migration: %w", err)
	}
	for i, stmt := range schemaStatements {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			tx.Rollback()
			return fmt.Errorf("execute schema statement %d: %w", i+1, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit migration: %w", err)
	}
	return nil
}

func withTx(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

// Decimal columns are TEXT so values round-trip exactly.
var schemaStatements = []string{
	`CREATE TABLE IF NOT EXISTS countries (
		name TEXT PRIMARY KEY,
		income_group TEXT,
		ease_of_biz TEXT,
		gdp TEXT
	);`,
	`CREATE TABLE IF NOT EXISTS commodities (
		name TEXT PRIMARY KEY,
		info TEXT,
		companies TEXT NOT NULL DEFAULT '[]'
	);`,
	rankedTableDDL("production"),
	rankedTableDDL("reserves"),
	tradeTableDDL("imports"),
	tradeTableDDL("exports"),
	`CREATE TABLE IF NOT EXISTS balances (
		country TEXT NOT NULL REFERENCES countries(name),
		year INTEGER NOT NULL,
		total_imports TEXT NOT NULL,
		total_exports TEXT NOT NULL,
		commodity_imports TEXT NOT NULL DEFAULT '{}',
		commodity_exports TEXT NOT NULL DEFAULT '{}',
		PRIMARY KEY (country, year)
	);`,
	`CREATE TABLE IF NOT EXISTS gov_info (
		year INTEGER NOT NULL,
		commodity TEXT NOT NULL REFERENCES commodities(name),
		prod_and_use TEXT NOT NULL DEFAULT '',
		recycling TEXT NOT NULL DEFAULT '',
		events TEXT NOT NULL DEFAULT '',
		world_resources TEXT NOT NULL DEFAULT '',
		substitutes TEXT NOT NULL DEFAULT '',
		PRIMARY KEY (year, commodity)
	);`,
	`CREATE TABLE IF NOT EXISTS prices (
		commodity TEXT NOT NULL REFERENCES commodities(name),
		date TEXT NOT NULL,
		price TEXT NOT NULL,
		description TEXT,
		PRIMARY KEY (commodity, date)
	);`,
}

func rankedTableDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
		year INTEGER NOT NULL,
		country TEXT NOT NULL REFERENCES countries(name),
		commodity TEXT NOT NULL REFERENCES commodities(name),
		metric TEXT NOT NULL,
		amount TEXT NOT NULL,
		note TEXT,
		rank INTEGER,
		share TEXT,
		PRIMARY KEY (year, country, commodity)
	);
	CREATE INDEX IF NOT EXISTS idx_%[1]s_group ON %[1]s(year, commodity);`, name)
}

func tradeTableDDL(name string) string {
	return fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %[1]s (
		year INTEGER NOT NULL,
		country TEXT NOT NULL REFERENCES countries(name),
		commodity TEXT NOT NULL REFERENCES commodities(name),
		amount TEXT NOT NULL CHECK (CAST(amount AS REAL) >= 0),
		share TEXT NOT NULL CHECK (CAST(share AS REAL) >= 0),
		PRIMARY KEY (year, country, commodity)
	);`, name)
}
