package db

import (
	"context"
	"database/sql"
	"errors"
)

// Database is the relational access surface this service needs: plain
// statements over a pooled connection, plus lifecycle. Implementations
// own their connection pool; business logic depends only on this
// interface so the driver can be swapped without code changes.
type Database interface {
	Querier

	// Ping verifies the connection is alive
	Ping(ctx context.Context) error

	// Close closes the connection pool
	Close() error
}

// Querier executes SQL statements.
type Querier interface {
	Query(ctx context.Context, query string, args ...interface{}) (Rows, error)
	QueryRow(ctx context.Context, query string, args ...interface{}) Row
	Exec(ctx context.Context, query string, args ...interface{}) (Result, error)
}

// Rows is the result of a query returning multiple rows.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the result of a query returning at most one row.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result reports the outcome of a statement execution.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// IsNoRows checks if the error is sql.ErrNoRows.
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
