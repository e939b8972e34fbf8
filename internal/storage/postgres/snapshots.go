package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage"
)

// SaveFrozenExercise stores a new exercise snapshot. Writing an id twice
// fails with domain.ErrImmutableSnapshot.
func (s *Store) SaveFrozenExercise(ctx context.Context, f *domain.FrozenExercise) error {
	return s.withTx(ctx, func(tx pgx.Tx) error {
		return insertFrozenExercise(ctx, tx, f)
	})
}

// FrozenExercise loads an exercise snapshot by its own id
func (s *Store) FrozenExercise(ctx context.Context, id domain.ExerciseID) (*domain.FrozenExercise, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM frozen_exercises WHERE id = $1`, id.UUID()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrFrozenExerciseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get frozen exercise: %w", err)
	}
	return storage.DecodeFrozenExercise(data)
}

// FrozenExercisesOf returns the snapshots of a live exercise, oldest
// revision first
func (s *Store) FrozenExercisesOf(ctx context.Context, original domain.ExerciseID) ([]domain.FrozenRef, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, revision FROM frozen_exercises WHERE original_id = $1 ORDER BY revision, created_at`,
		original.UUID(),
	)
	if err != nil {
		return nil, fmt.Errorf("list frozen exercises: %w", err)
	}
	defer rows.Close()

	var refs []domain.FrozenRef
	for rows.Next() {
		var id uuid.UUID
		var ref domain.FrozenRef
		if err := rows.Scan(&id, &ref.Revision); err != nil {
			return nil, fmt.Errorf("scan frozen exercise: %w", err)
		}
		ref.ID = domain.NewExerciseID(id)
		refs = append(refs, ref)
	}
	return refs, rows.Err()
}

// SaveFrozenCourse stores a course snapshot and the exercise snapshots
// recreated for it in one transaction
func (s *Store) SaveFrozenCourse(ctx context.Context, f *domain.FrozenCourse, recreated []*domain.FrozenExercise) error {
	data, err := json.Marshal(f.Record())
	if err != nil {
		return fmt.Errorf("marshal frozen course: %w", err)
	}
	return s.withTx(ctx, func(tx pgx.Tx) error {
		for _, ex := range recreated {
			if err := insertFrozenExercise(ctx, tx, ex); err != nil {
				return err
			}
		}
		tag, err := tx.Exec(ctx, `
			INSERT INTO frozen_courses (id, original_id, revision, record)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (id) DO NOTHING`,
			f.ID().UUID(), f.Proxy().Original.UUID(), f.Proxy().Revision, data,
		)
		if err != nil {
			return fmt.Errorf("insert frozen course: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("snapshot %s: %w", f.ID(), domain.ErrImmutableSnapshot)
		}
		return nil
	})
}

// FrozenCourse loads a course snapshot by its own id
func (s *Store) FrozenCourse(ctx context.Context, id domain.CourseID) (*domain.FrozenCourse, error) {
	var data []byte
	err := s.pool.QueryRow(ctx, `SELECT record FROM frozen_courses WHERE id = $1`, id.UUID()).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrFrozenCourseNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("get frozen course: %w", err)
	}
	return storage.DecodeFrozenCourse(data)
}

func insertFrozenExercise(ctx context.Context, tx pgx.Tx, f *domain.FrozenExercise) error {
	data, err := json.Marshal(f.Record())
	if err != nil {
		return fmt.Errorf("marshal frozen exercise: %w", err)
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO frozen_exercises (id, original_id, revision, record)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING`,
		f.ID().UUID(), f.Proxy().Original.UUID(), f.Proxy().Revision, data,
	)
	if err != nil {
		return fmt.Errorf("insert frozen exercise: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("snapshot %s: %w", f.ID(), domain.ErrImmutableSnapshot)
	}
	return nil
}
