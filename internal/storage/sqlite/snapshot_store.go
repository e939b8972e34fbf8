package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage"
)

// SnapshotStore persists frozen exercises and courses. A snapshot id is
// written once; a second write fails with domain.ErrImmutableSnapshot.
type SnapshotStore struct {
	db *DB
}

// NewSnapshotStore creates a new SQLite-backed snapshot store.
func NewSnapshotStore(db *DB) *SnapshotStore {
	return &SnapshotStore{db: db}
}

// SaveFrozenExercise stores a new exercise snapshot.
func (s *SnapshotStore) SaveFrozenExercise(ctx context.Context, f *domain.FrozenExercise) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		return insertFrozenExercise(ctx, tx, f)
	})
}

// FrozenExercise loads an exercise snapshot by its own id.
func (s *SnapshotStore) FrozenExercise(ctx context.Context, id domain.ExerciseID) (*domain.FrozenExercise, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM frozen_exercises WHERE id = ?", id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrFrozenExerciseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get frozen exercise: %w", err)
	}
	return storage.DecodeFrozenExercise([]byte(data))
}

// FrozenExercisesOf returns the snapshots of a live exercise, oldest
// revision first.
func (s *SnapshotStore) FrozenExercisesOf(ctx context.Context, original domain.ExerciseID) ([]domain.FrozenRef, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, revision FROM frozen_exercises WHERE original_id = ? ORDER BY revision, created_at",
		original.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("list frozen exercises: %w", err)
	}
	defer rows.Close()

	var refs []domain.FrozenRef
	for rows.Next() {
		var id string
		var ref domain.FrozenRef
		if err := rows.Scan(&id, &ref.Revision); err != nil {
			return nil, fmt.Errorf("scan frozen exercise: %w", err)
		}
		if ref.ID, err = domain.NewExerciseIDFromString(id); err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SaveFrozenCourse stores a course snapshot and the exercise snapshots
// recreated for it in one transaction.
func (s *SnapshotStore) SaveFrozenCourse(ctx context.Context, f *domain.FrozenCourse, recreated []*domain.FrozenExercise) error {
	data, err := json.Marshal(f.Record())
	if err != nil {
		return fmt.Errorf("marshal frozen course: %w", err)
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		for _, ex := range recreated {
			if err := insertFrozenExercise(ctx, tx, ex); err != nil {
				return err
			}
		}
		res, err := tx.ExecContext(ctx, `
			INSERT INTO frozen_courses (id, original_id, revision, record)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO NOTHING`,
			f.ID().String(), f.Proxy().Original.String(), f.Proxy().Revision, string(data),
		)
		if err != nil {
			return fmt.Errorf("insert frozen course: %w", err)
		}
		return requireInserted(res, f.ID().String())
	})
}

// FrozenCourse loads a course snapshot by its own id.
func (s *SnapshotStore) FrozenCourse(ctx context.Context, id domain.CourseID) (*domain.FrozenCourse, error) {
	var data string
	err := s.db.QueryRowContext(ctx, "SELECT record FROM frozen_courses WHERE id = ?", id.String()).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrFrozenCourseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get frozen course: %w", err)
	}
	return storage.DecodeFrozenCourse([]byte(data))
}

func insertFrozenExercise(ctx context.Context, tx *sql.Tx, f *domain.FrozenExercise) error {
	data, err := json.Marshal(f.Record())
	if err != nil {
		return fmt.Errorf("marshal frozen exercise: %w", err)
	}
	res, err := tx.ExecContext(ctx, `
		INSERT INTO frozen_exercises (id, original_id, revision, record)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO NOTHING`,
		f.ID().String(), f.Proxy().Original.String(), f.Proxy().Revision, string(data),
	)
	if err != nil {
		return fmt.Errorf("insert frozen exercise: %w", err)
	}
	return requireInserted(res, f.ID().String())
}

func requireInserted(res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("snapshot %s: %w", id, domain.ErrImmutableSnapshot)
	}
	return nil
}
