package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage"
)

// SaveExercise appends the current state of ex and returns its revision
func (s *Store) SaveExercise(ctx context.Context, ex *domain.Exercise) (int, error) {
	data, err := storage.EncodeExercise(ex)
	if err != nil {
		return 0, err
	}
	return s.appendRevision(ctx, "exercise_revisions", "exercise_id", ex.ID().UUID(), ex.Meta.Name, data)
}

// ExerciseRevision loads the exercise as it was saved at revision
func (s *Store) ExerciseRevision(ctx context.Context, id domain.ExerciseID, revision int) (*domain.Exercise, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM exercise_revisions WHERE exercise_id = $1 AND revision = $2`,
		id.UUID(), revision,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("exercise %s@%d: %w", id, revision, domain.ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get exercise revision: %w", err)
	}
	return storage.DecodeExercise(data)
}

// LatestExerciseRevision returns the highest saved revision of the exercise
func (s *Store) LatestExerciseRevision(ctx context.Context, id domain.ExerciseID) (int, error) {
	return s.latest(ctx, `SELECT COALESCE(MAX(revision), 0) FROM exercise_revisions WHERE exercise_id = $1`, id.UUID(), domain.ErrExerciseNotFound)
}

// SaveCourse appends the current state of c and returns its revision
func (s *Store) SaveCourse(ctx context.Context, c *domain.Course) (int, error) {
	data, err := storage.EncodeCourse(c.Record())
	if err != nil {
		return 0, err
	}
	return s.appendRevision(ctx, "course_revisions", "course_id", c.ID().UUID(), c.Meta.Name, data)
}

// CourseRevision loads the course as it was saved at revision
func (s *Store) CourseRevision(ctx context.Context, id domain.CourseID, revision int) (*domain.Course, error) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT record FROM course_revisions WHERE course_id = $1 AND revision = $2`,
		id.UUID(), revision,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("course %s@%d: %w", id, revision, domain.ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get course revision: %w", err)
	}
	return storage.DecodeCourse(data)
}

// LatestCourseRevision returns the highest saved revision of the course
func (s *Store) LatestCourseRevision(ctx context.Context, id domain.CourseID) (int, error) {
	return s.latest(ctx, `SELECT COALESCE(MAX(revision), 0) FROM course_revisions WHERE course_id = $1`, id.UUID(), domain.ErrCourseNotFound)
}

// ListExercises returns the latest revision of every stored exercise,
// ordered by name
func (s *Store) ListExercises(ctx context.Context) ([]storage.Revision, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT exercise_id, revision, name, created_at FROM (
			SELECT DISTINCT ON (exercise_id) exercise_id, revision, name, created_at
			FROM exercise_revisions
			ORDER BY exercise_id, revision DESC
		) latest
		ORDER BY name, exercise_id`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var out []storage.Revision
	for rows.Next() {
		var id uuid.UUID
		var r storage.Revision
		if err := rows.Scan(&id, &r.Revision, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exercise revision: %w", err)
		}
		r.ID = id.String()
		out = append(out, r)
	}
	return out, rows.Err()
}

// appendRevision inserts the next revision under a transaction-scoped
// advisory lock on the aggregate id, so concurrent saves are serialized
func (s *Store) appendRevision(ctx context.Context, table, column string, id uuid.UUID, name string, data []byte) (int, error) {
	var revision int
	err := s.withTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, id.String()); err != nil {
			return fmt.Errorf("lock %s: %w", id, err)
		}
		// table and column are constants of this file
		query := fmt.Sprintf(`
			INSERT INTO %[1]s (%[2]s, revision, name, record)
			SELECT $1, COALESCE(MAX(revision), 0) + 1, $2, $3 FROM %[1]s WHERE %[2]s = $1
			RETURNING revision`, table, column)
		if err := tx.QueryRow(ctx, query, id, name, data).Scan(&revision); err != nil {
			return fmt.Errorf("insert revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revision, nil
}

func (s *Store) latest(ctx context.Context, query string, id uuid.UUID, notFound error) (int, error) {
	var revision int
	if err := s.pool.QueryRow(ctx, query, id).Scan(&revision); err != nil {
		return 0, fmt.Errorf("latest revision: %w", err)
	}
	if revision == 0 {
		return 0, fmt.Errorf("%s: %w", id, notFound)
	}
	return revision, nil
}
