// Package postgres implements the revision history, snapshot and submission
// stores on PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/freeze"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
)

// Store persists revisions, frozen snapshots and submissions
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ freeze.RevisionHistory = (*Store)(nil)
	_ freeze.SnapshotStore   = (*Store)(nil)
	_ player.SubmissionSink  = (*Store)(nil)
)

// NewStore creates a store on an open pool
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Connect opens a pool, verifies connectivity and ensures the schema exists
func Connect(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := EnsureSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return pool, nil
}

// EnsureSchema creates the tables if they do not exist
func EnsureSchema(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	return pgx.BeginFunc(ctx, s.pool, fn)
}

const schema = `
CREATE TABLE IF NOT EXISTS exercise_revisions (
    exercise_id UUID        NOT NULL,
    revision    INTEGER     NOT NULL,
    name        TEXT        NOT NULL,
    record      JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (exercise_id, revision)
);

CREATE TABLE IF NOT EXISTS course_revisions (
    course_id  UUID        NOT NULL,
    revision   INTEGER     NOT NULL,
    name       TEXT        NOT NULL,
    record     JSONB       NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
    PRIMARY KEY (course_id, revision)
);

CREATE TABLE IF NOT EXISTS frozen_exercises (
    id          UUID        PRIMARY KEY,
    original_id UUID        NOT NULL,
    revision    INTEGER     NOT NULL,
    record      JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_frozen_exercises_original ON frozen_exercises(original_id, revision);

CREATE TABLE IF NOT EXISTS frozen_courses (
    id          UUID        PRIMARY KEY,
    original_id UUID        NOT NULL,
    revision    INTEGER     NOT NULL,
    record      JSONB       NOT NULL,
    created_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS submissions (
    session_id   UUID        PRIMARY KEY,
    exercise_id  UUID        NOT NULL,
    points       INTEGER     NOT NULL CHECK (points BETWEEN 0 AND 100),
    submitted_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_submissions_exercise ON submissions(exercise_id, submitted_at);

ALTER TABLE submissions ADD COLUMN IF NOT EXISTS snapshot_id UUID;
ALTER TABLE submissions ADD COLUMN IF NOT EXISTS revision INTEGER NOT NULL DEFAULT 0;

CREATE INDEX IF NOT EXISTS idx_submissions_snapshot ON submissions(snapshot_id, submitted_at);
`
