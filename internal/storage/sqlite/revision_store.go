package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage"
)

// RevisionStore keeps every saved state of live exercises and courses as a
// numbered JSON record. Revisions start at 1 and are never rewritten.
type RevisionStore struct {
	db *DB
}

// NewRevisionStore creates a new SQLite-backed revision history.
func NewRevisionStore(db *DB) *RevisionStore {
	return &RevisionStore{db: db}
}

// SaveExercise appends the current state of ex and returns its revision.
func (s *RevisionStore) SaveExercise(ctx context.Context, ex *domain.Exercise) (int, error) {
	data, err := storage.EncodeExercise(ex)
	if err != nil {
		return 0, err
	}

	var revision int
	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(revision), 0) + 1 FROM exercise_revisions WHERE exercise_id = ?",
			ex.ID().String(),
		).Scan(&revision); err != nil {
			return fmt.Errorf("next exercise revision: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO exercise_revisions (exercise_id, revision, name, record)
			VALUES (?, ?, ?, ?)`,
			ex.ID().String(), revision, ex.Meta.Name, string(data),
		)
		if err != nil {
			return fmt.Errorf("insert exercise revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revision, nil
}

// ExerciseRevision loads the exercise as it was saved at revision.
func (s *RevisionStore) ExerciseRevision(ctx context.Context, id domain.ExerciseID, revision int) (*domain.Exercise, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM exercise_revisions WHERE exercise_id = ? AND revision = ?",
		id.String(), revision,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("exercise %s@%d: %w", id, revision, domain.ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get exercise revision: %w", err)
	}
	return storage.DecodeExercise([]byte(data))
}

// LatestExerciseRevision returns the highest saved revision of the exercise.
func (s *RevisionStore) LatestExerciseRevision(ctx context.Context, id domain.ExerciseID) (int, error) {
	return s.latest(ctx, "exercise_revisions", "exercise_id", id.String(), domain.ErrExerciseNotFound)
}

// SaveCourse appends the current state of c and returns its revision.
func (s *RevisionStore) SaveCourse(ctx context.Context, c *domain.Course) (int, error) {
	data, err := storage.EncodeCourse(c.Record())
	if err != nil {
		return 0, err
	}

	var revision int
	err = s.db.withTx(ctx, func(tx *sql.Tx) error {
		if err := tx.QueryRowContext(ctx,
			"SELECT COALESCE(MAX(revision), 0) + 1 FROM course_revisions WHERE course_id = ?",
			c.ID().String(),
		).Scan(&revision); err != nil {
			return fmt.Errorf("next course revision: %w", err)
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO course_revisions (course_id, revision, name, record)
			VALUES (?, ?, ?, ?)`,
			c.ID().String(), revision, c.Meta.Name, string(data),
		)
		if err != nil {
			return fmt.Errorf("insert course revision: %w", err)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return revision, nil
}

// CourseRevision loads the course as it was saved at revision.
func (s *RevisionStore) CourseRevision(ctx context.Context, id domain.CourseID, revision int) (*domain.Course, error) {
	var data string
	err := s.db.QueryRowContext(ctx,
		"SELECT record FROM course_revisions WHERE course_id = ? AND revision = ?",
		id.String(), revision,
	).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("course %s@%d: %w", id, revision, domain.ErrRevisionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get course revision: %w", err)
	}
	return storage.DecodeCourse([]byte(data))
}

// LatestCourseRevision returns the highest saved revision of the course.
func (s *RevisionStore) LatestCourseRevision(ctx context.Context, id domain.CourseID) (int, error) {
	return s.latest(ctx, "course_revisions", "course_id", id.String(), domain.ErrCourseNotFound)
}

// ListExercises returns the latest revision of every stored exercise,
// ordered by name.
func (s *RevisionStore) ListExercises(ctx context.Context) ([]storage.Revision, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT r.exercise_id, r.revision, r.name, r.created_at
		FROM exercise_revisions r
		JOIN (
			SELECT exercise_id, MAX(revision) AS revision
			FROM exercise_revisions GROUP BY exercise_id
		) latest ON latest.exercise_id = r.exercise_id AND latest.revision = r.revision
		ORDER BY r.name, r.exercise_id`)
	if err != nil {
		return nil, fmt.Errorf("list exercises: %w", err)
	}
	defer rows.Close()

	var out []storage.Revision
	for rows.Next() {
		var r storage.Revision
		if err := rows.Scan(&r.ID, &r.Revision, &r.Name, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan exercise revision: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *RevisionStore) latest(ctx context.Context, table, column, id string, notFound error) (int, error) {
	var revision int
	// table and column are constants of this file
	query := fmt.Sprintf("SELECT COALESCE(MAX(revision), 0) FROM %s WHERE %s = ?", table, column)
	if err := s.db.QueryRowContext(ctx, query, id).Scan(&revision); err != nil {
		return 0, fmt.Errorf("latest revision: %w", err)
	}
	if revision == 0 {
		return 0, fmt.Errorf("%s: %w", id, notFound)
	}
	return revision, nil
}
