// Package postgres implements the repository interfaces on PostgreSQL via
// pgx's connection pool. Semantics match the sqlite package: the same
// conditional updates, the same uniqueness constraints, the same errors.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sakif/guildgate/internal/apperror"
	"github.com/sakif/guildgate/internal/repository"
)

// Ensure Store satisfies repository.Store at compile time.
var _ repository.Store = (*Store)(nil)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store provides Postgres-backed persistence.
type Store struct {
	pool *pgxpool.Pool
}

// New connects to databaseURL and runs migrations.
func New(ctx context.Context, databaseURL string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse database url: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect to database: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	s := &Store{pool: pool}
	if err := s.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return s, nil
}

// Close releases database resources.
func (s *Store) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS profiles (
			id                      TEXT PRIMARY KEY,
			external_messaging_id   TEXT NOT NULL UNIQUE,
			username                TEXT NOT NULL DEFAULT '',
			avatar_url              TEXT NOT NULL DEFAULT '',
			display_name            TEXT NOT NULL DEFAULT '',
			in_game_name            TEXT NOT NULL DEFAULT '',
			bio                     TEXT NOT NULL DEFAULT '',
			role                    TEXT NOT NULL DEFAULT 'user',
			activated               BOOLEAN NOT NULL DEFAULT FALSE,
			activated_at            TIMESTAMPTZ,
			rejected_at             TIMESTAMPTZ,
			rejection_reason        TEXT NOT NULL DEFAULT '',
			activation_request      JSONB,
			activation_submitted_at TIMESTAMPTZ,
			version                 BIGINT NOT NULL DEFAULT 0,
			created_at              TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at              TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`ALTER TABLE profiles ADD COLUMN IF NOT EXISTS review_message_id TEXT NOT NULL DEFAULT '';`,
		`CREATE INDEX IF NOT EXISTS profiles_pending_idx ON profiles (activated, activation_submitted_at);`,
		`CREATE TABLE IF NOT EXISTS store_items (
			id         TEXT PRIMARY KEY,
			name       TEXT NOT NULL,
			price_usd  NUMERIC(18,2) NOT NULL,
			active     BOOLEAN NOT NULL DEFAULT TRUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE TABLE IF NOT EXISTS payment_requests (
			id               TEXT PRIMARY KEY,
			subject_id       TEXT NOT NULL REFERENCES profiles(id),
			item_id          TEXT NOT NULL,
			item_name        TEXT NOT NULL DEFAULT '',
			amount_local     NUMERIC(18,2) NOT NULL,
			amount_usd       NUMERIC(18,2) NOT NULL,
			payment_method   TEXT NOT NULL,
			sender_reference TEXT NOT NULL,
			proof_url        TEXT NOT NULL,
			notes            TEXT NOT NULL DEFAULT '',
			status           TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
			reviewed_by      TEXT NOT NULL DEFAULT '',
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at      TIMESTAMPTZ
		);`,
		`CREATE INDEX IF NOT EXISTS payment_requests_status_idx ON payment_requests (status, created_at);`,
		`CREATE TABLE IF NOT EXISTS payment_transactions (
			id           TEXT PRIMARY KEY,
			subject_id   TEXT NOT NULL,
			item_id      TEXT NOT NULL,
			provider     TEXT NOT NULL,
			amount       NUMERIC(18,2) NOT NULL,
			currency     TEXT NOT NULL,
			status       TEXT NOT NULL,
			raw_metadata JSONB NOT NULL DEFAULT '{}'::jsonb,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);`,
		`CREATE INDEX IF NOT EXISTS payment_transactions_created_idx ON payment_transactions (created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: apply migrations: %w", err)
		}
	}
	return nil
}

// translate maps constraint violations onto the shared error taxonomy.
func translate(err error, resource, id string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return apperror.Conflict(resource, id)
		case codeForeignKeyViolation:
			return apperror.ValidationFailed("subjectId", "referenced profile does not exist")
		}
	}
	return err
}

func limitOrDefault(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
