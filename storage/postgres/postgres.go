// Package postgres implements storage.Repository backed by PostgreSQL.
//
// Events are ordered by a BIGSERIAL column so Recent returns insertion order
// reversed, matching the BBolt and in-memory backends.
package postgres

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/aibiliti/kbdash/storage"
)

//go:embed schema.sql
var schemaSQL string

// Store implements storage.Repository backed by PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var _ storage.Repository = (*Store)(nil)

// NewRepository returns a Repository backed by the given pgx connection pool.
func NewRepository(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// NewRepositoryFromDSN creates a connection pool from a DSN string, ensures
// the schema exists, and returns a new Repository.
func NewRepositoryFromDSN(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connecting to postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return NewRepository(pool), nil
}

// EnsureSchema creates the audit table if it does not exist. It is safe to
// call on every startup.
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, schemaSQL)
	return err
}

// Close closes the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

func (s *Store) Append(event storage.Event) error {
	_, err := s.pool.Exec(context.Background(),
		`INSERT INTO audit_events (id, type, subject, remote_addr, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		event.ID, event.Type, event.Subject, event.RemoteAddr, event.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}
	return nil
}

func (s *Store) Recent(limit int) ([]storage.Event, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(context.Background(),
		`SELECT id, type, subject, remote_addr, created_at
		 FROM audit_events ORDER BY seq DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []storage.Event
	for rows.Next() {
		var e storage.Event
		if err := rows.Scan(&e.ID, &e.Type, &e.Subject, &e.RemoteAddr, &e.CreatedAt); err != nil {
			return nil, err
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
