/**
 * @description
 * This file provides the PostgreSQL implementation of the `Repository` interface:
 * the connection handle, the transaction runner, and the Postgres error helpers.
 * The per-table queries live in the sibling postgres_*.go files.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: the PostgreSQL driver (pool, transactions, error codes).
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	pgUniqueViolation        = "23505"
	pgCheckViolation         = "23514"
	pgSerializationFailure   = "40001"
	maxSerializationAttempts = 3
)

// DBTX is satisfied by both *pgxpool.Pool and pgx.Tx, so every query method works
// the same inside and outside a transaction.
type DBTX interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresRepository is a concrete implementation of the Repository interface for PostgreSQL.
type PostgresRepository struct {
	pool *pgxpool.Pool
	db   DBTX
}

// NewPostgresRepository creates a new instance of PostgresRepository.
func NewPostgresRepository(pool *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{pool: pool, db: pool}
}

// WithTx runs fn in a serializable transaction and retries on serialization failures.
// Calls nested inside an open transaction reuse it.
func (r *PostgresRepository) WithTx(ctx context.Context, fn func(Repository) error) error {
	if r.pool == nil {
		return fn(r)
	}

	var err error
	for attempt := 1; attempt <= maxSerializationAttempts; attempt++ {
		err = r.runTx(ctx, fn)
		if err == nil || !isSerializationFailure(err) {
			return err
		}
		log.Printf("level=warn component=store msg=\"serialization failure, retrying transaction\" attempt=%d", attempt)
	}
	return fmt.Errorf("transaction aborted after %d attempts: %w", maxSerializationAttempts, err)
}

func (r *PostgresRepository) runTx(ctx context.Context, fn func(Repository) error) error {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.Serializable})
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	if err := fn(&PostgresRepository{db: tx}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func pgErrorCode(err error) (string, string) {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.ConstraintName
	}
	return "", ""
}

func isSerializationFailure(err error) bool {
	code, _ := pgErrorCode(err)
	return code == pgSerializationFailure
}

func isUniqueViolation(err error) (string, bool) {
	code, constraint := pgErrorCode(err)
	return constraint, code == pgUniqueViolation
}

func isCheckViolation(err error) (string, bool) {
	code, constraint := pgErrorCode(err)
	return constraint, code == pgCheckViolation
}
