package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres error codes that signal transient contention on a row lock or
// transaction ordering. Callers may retry these; everything else is terminal.
const (
	pgLockNotAvailable     = "55P03"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
	pgUniqueViolation      = "23505"
)

// lockTimeout bounds how long a statement waits on a row lock inside our
// transactions, so contended requests fail fast instead of hanging.
const lockTimeout = "3s"

// beginTx starts a transaction with the statement lock timeout applied.
func beginTx(ctx context.Context, pool *pgxpool.Pool) (pgx.Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf("SET LOCAL lock_timeout = '%s'", lockTimeout)); err != nil {
		_ = tx.Rollback(ctx)
		return nil, fmt.Errorf("failed to set lock timeout: %w", err)
	}
	return tx, nil
}

// IsContended reports whether err is a transient lock/serialization conflict.
func IsContended(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	switch pgErr.Code {
	case pgLockNotAvailable, pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}

// isUniqueViolation reports whether err is a unique-constraint violation,
// optionally on a specific constraint.
func isUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	if pgErr.Code != pgUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}
