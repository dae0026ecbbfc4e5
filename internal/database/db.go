package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql" // read-only mail archive
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq" // pipeline store
	"github.com/rs/zerolog/log"
)

const (
	driverMySQL    = "mysql"
	driverPostgres = "postgres"
)

// detectDriver picks the driver from the URL scheme. postgres:// and
// postgresql:// URLs use lib/pq, anything else is treated as a MySQL DSN.
func detectDriver(databaseURL string) string {
	if strings.HasPrefix(databaseURL, "postgres") {
		return driverPostgres
	}
	return driverMySQL
}

// New creates a new database connection (supports both MySQL and PostgreSQL)
func New(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL environment variable not set")
	}

	driver := detectDriver(databaseURL)
	db, err := sqlx.Open(driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool settings
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(time.Hour)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return db, nil
}

// NewArchive opens the legacy mail archive. MySQL sessions are switched to
// read-only; the archive is never written by this service.
func NewArchive(databaseURL string) (*sqlx.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("ARCHIVE_DATABASE_URL environment variable not set")
	}
	db, err := New(databaseURL)
	if err != nil {
		return nil, err
	}

	if detectDriver(databaseURL) == driverMySQL {
		if _, err := db.Exec("SET SESSION TRANSACTION READ ONLY"); err != nil {
			// some archive users lack the privilege, SELECT-only grants still protect the data
			log.Warn().Err(err).Msg("Could not set MySQL session to read-only")
		} else if ro, err := IsReadOnly(db); err != nil || !ro {
			log.Warn().Err(err).Bool("read_only", ro).Msg("MySQL archive session is not read-only")
		} else {
			log.Info().Msg("MySQL archive session set to READ ONLY")
		}
	}
	return db, nil
}

// IsReadOnly verifies if the current MySQL session is in read-only mode
func IsReadOnly(db *sqlx.DB) (bool, error) {
	var readOnly int
	err := db.Get(&readOnly, "SELECT @@session.tx_read_only")
	if err != nil {
		return false, err
	}
	return readOnly == 1, nil
}

// ExecuteReadOnlyQuery executes a query within a transaction that is always rolled back
func ExecuteReadOnlyQuery(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer rollback(tx)

	if err := tx.SelectContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}
	return nil
}

// ExecuteReadOnlyQuerySingle executes a single-row query within a rolled back transaction
func ExecuteReadOnlyQuerySingle(ctx context.Context, db *sqlx.DB, dest interface{}, query string, args ...interface{}) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer rollback(tx)

	if err := tx.GetContext(ctx, dest, query, args...); err != nil {
		return fmt.Errorf("failed to execute read-only query: %w", err)
	}
	return nil
}

// ExecuteReadOnlyPing runs SELECT 1 within a rolled back transaction
func ExecuteReadOnlyPing(ctx context.Context, db *sqlx.DB) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer rollback(tx)

	var result int
	if err := tx.GetContext(ctx, &result, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to execute read-only ping query: %w", err)
	}
	return nil
}

func rollback(tx *sqlx.Tx) {
	// read-only transactions are never committed
	if err := tx.Rollback(); err != nil {
		log.Debug().Err(err).Msg("Rollback of read-only transaction failed")
	}
}
