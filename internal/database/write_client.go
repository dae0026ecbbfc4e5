package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

// writeTimeout bounds every statement issued through WriteClient
const writeTimeout = 30 * time.Second

// WriteClient provides write access to the database for bookkeeping writes
// (analytics, schema bootstrap) that run outside a request context. The
// connection is owned by the caller.
type WriteClient struct {
	db *sqlx.DB
}

// NewWriteClientFromDB wraps an existing connection
func NewWriteClientFromDB(db *sqlx.DB) *WriteClient {
	return &WriteClient{db: db}
}

// GetDB returns the underlying database connection
func (wc *WriteClient) GetDB() *sqlx.DB {
	return wc.db
}

// ExecuteWriteQuery executes a write query and returns the result
func (wc *WriteClient) ExecuteWriteQuery(query string, args ...interface{}) (sql.Result, error) {
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	return wc.db.ExecContext(ctx, query, args...)
}
