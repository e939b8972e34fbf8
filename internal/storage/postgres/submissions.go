package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
)

// SaveSubmission records the score of a finished session once
func (s *Store) SaveSubmission(ctx context.Context, session uuid.UUID, sub scoring.Submission) error {
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	var snapshot *uuid.UUID
	if !sub.Snapshot.IsZero() {
		id := sub.Snapshot.UUID()
		snapshot = &id
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO submissions (session_id, exercise_id, snapshot_id, revision, points, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (session_id) DO NOTHING`,
		session, sub.Exercise.UUID(), snapshot, sub.Revision, sub.Points, sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Submissions returns the submissions of the given exercises, oldest first.
// An id matches the live exercise as well as a played snapshot.
func (s *Store) Submissions(ctx context.Context, exercises []domain.ExerciseID) (map[domain.ExerciseID][]scoring.Submission, error) {
	ids := make([]uuid.UUID, len(exercises))
	out := make(map[domain.ExerciseID][]scoring.Submission, len(exercises))
	for i, id := range exercises {
		ids[i] = id.UUID()
		out[id] = []scoring.Submission{}
	}

	rows, err := s.pool.Query(ctx, `
		SELECT exercise_id, snapshot_id, revision, points, submitted_at FROM submissions
		WHERE exercise_id = ANY($1) OR snapshot_id = ANY($1)
		ORDER BY submitted_at`, ids)
	if err != nil {
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			id       uuid.UUID
			snapshot *uuid.UUID
			sub      scoring.Submission
		)
		if err := rows.Scan(&id, &snapshot, &sub.Revision, &sub.Points, &sub.SubmittedAt); err != nil {
			return nil, fmt.Errorf("scan submission: %w", err)
		}
		sub.Exercise = domain.NewExerciseID(id)
		if snapshot != nil {
			sub.Snapshot = domain.NewExerciseID(*snapshot)
		}
		if _, ok := out[sub.Exercise]; ok {
			out[sub.Exercise] = append(out[sub.Exercise], sub)
		}
		if _, ok := out[sub.Snapshot]; ok && sub.Snapshot != sub.Exercise {
			out[sub.Snapshot] = append(out[sub.Snapshot], sub)
		}
	}
	return out, rows.Err()
}
