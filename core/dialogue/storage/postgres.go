package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jmoiron/sqlx"
	"github.com/m3rciful/godialogue/core/logger"
)

// Migrations holds the schema required by Postgres, in golang-migrate layout.
//
//go:embed migrations/*.sql
var Migrations embed.FS

// MigrationsDir is the directory inside Migrations that holds the files.
const MigrationsDir = "migrations"

const (
	sqlGetState = `SELECT state FROM dialogue_states WHERE chat_id = $1`
	sqlUpsert   = `INSERT INTO dialogue_states (chat_id, state, updated_at)
VALUES ($1, $2, now())
ON CONFLICT (chat_id) DO UPDATE SET state = EXCLUDED.state, updated_at = now()`
	sqlDelete = `DELETE FROM dialogue_states WHERE chat_id = $1`
	sqlLock   = `SELECT pg_advisory_lock($1)`
	sqlUnlock = `SELECT pg_advisory_unlock($1)`
)

// Postgres keeps one row per conversation in the dialogue_states table.
// Cycles are serialized across processes with session-level advisory locks
// keyed by chat id.
type Postgres struct {
	db *sqlx.DB
}

// NewPostgres wraps an open connection pool. The schema must already be migrated.
func NewPostgres(db *sqlx.DB) *Postgres {
	return &Postgres{db: db}
}

// GetState loads the record for id.
func (s *Postgres) GetState(ctx context.Context, id ChatID) ([]byte, bool, error) {
	var data []byte
	err := s.db.GetContext(ctx, &data, sqlGetState, int64(id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, failure(ctx, "postgres", "get", id, err)
	}
	return data, true, nil
}

// UpdateState upserts the record for id in a single statement.
func (s *Postgres) UpdateState(ctx context.Context, id ChatID, data []byte) error {
	if data == nil {
		data = []byte{}
	}
	if _, err := s.db.ExecContext(ctx, sqlUpsert, int64(id), data); err != nil {
		return failure(ctx, "postgres", "update", id, err)
	}
	return nil
}

// RemoveState deletes the row for id.
func (s *Postgres) RemoveState(ctx context.Context, id ChatID) error {
	if _, err := s.db.ExecContext(ctx, sqlDelete, int64(id)); err != nil {
		return failure(ctx, "postgres", "remove", id, err)
	}
	return nil
}

// Lock takes a session advisory lock on a dedicated connection. The lock is
// released and the connection returned to the pool by the unlock function.
func (s *Postgres) Lock(ctx context.Context, id ChatID) (func(), error) {
	conn, err := s.db.Connx(ctx)
	if err != nil {
		return nil, failure(ctx, "postgres", "lock", id, err)
	}
	if _, err := conn.ExecContext(ctx, sqlLock, int64(id)); err != nil {
		_ = conn.Close()
		return nil, failure(ctx, "postgres", "lock", id, err)
	}
	return func() {
		bg := context.Background()
		if _, err := conn.ExecContext(bg, sqlUnlock, int64(id)); err != nil {
			logger.Warn(bg, logger.ComponentStorage, "lock.release",
				slog.String("status", "fail"),
				slog.String("storage", "postgres"),
				slog.Int64("chat_id", int64(id)),
				slog.String("err", err.Error()),
			)
		}
		_ = conn.Close()
	}, nil
}

// Ping verifies connectivity.
func (s *Postgres) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres ping: %w: %w", ErrUnavailable, err)
	}
	return nil
}

// Close closes the pool.
func (s *Postgres) Close() error {
	return s.db.Close()
}
