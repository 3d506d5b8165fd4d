package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/susu3304/warikan/internal/warikan"
)

type DB struct {
	pool *pgxpool.Pool
}

var _ warikan.Store = (*DB)(nil)

func New(ctx context.Context, databaseURL string) (*DB, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() {
	db.pool.Close()
}

// RunMigrations creates the schema if it does not exist yet.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS groups (
			id TEXT PRIMARY KEY,
			name TEXT NOT NULL,
			owner_id TEXT NOT NULL DEFAULT '',
			channel_id TEXT UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			id TEXT NOT NULL,
			name TEXT NOT NULL,
			uid TEXT NOT NULL DEFAULT '',
			joined_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP,
			PRIMARY KEY (group_id, id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_members_uid ON group_members(uid);

		CREATE TABLE IF NOT EXISTS expenses (
			id TEXT PRIMARY KEY,
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			title TEXT NOT NULL,
			amount NUMERIC(20, 4) NOT NULL CHECK (amount > 0),
			currency TEXT NOT NULL,
			paid_by TEXT NOT NULL,
			created_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT CURRENT_TIMESTAMP
		);
		CREATE INDEX IF NOT EXISTS idx_expenses_group_id ON expenses(group_id, created_at DESC);

		CREATE TABLE IF NOT EXISTS expense_participants (
			expense_id TEXT NOT NULL REFERENCES expenses(id) ON DELETE CASCADE,
			position INT NOT NULL,
			member_id TEXT NOT NULL,
			PRIMARY KEY (expense_id, member_id)
		);

		CREATE TABLE IF NOT EXISTS settlement_tasks (
			id BIGSERIAL PRIMARY KEY,
			group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			payer_id TEXT NOT NULL,
			payee_id TEXT NOT NULL,
			currency TEXT NOT NULL,
			amount BIGINT NOT NULL,
			completed BOOLEAN NOT NULL DEFAULT FALSE,
			completed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_settlement_tasks_group_id ON settlement_tasks(group_id);

		CREATE TABLE IF NOT EXISTS group_reminders (
			group_id TEXT PRIMARY KEY REFERENCES groups(id) ON DELETE CASCADE,
			enabled BOOLEAN NOT NULL DEFAULT FALSE,
			interval_minutes INT NOT NULL DEFAULT 60,
			next_due_at TIMESTAMPTZ,
			last_sent_at TIMESTAMPTZ
		);
	`)
	return err
}

// notFound maps pgx.ErrNoRows to the given sentinel.
func notFound(err, sentinel error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return sentinel
	}
	return err
}
