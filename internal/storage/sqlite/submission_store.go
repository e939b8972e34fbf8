package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
)

// SubmissionStore keeps the final score of every finished session.
type SubmissionStore struct {
	db *DB
}

// NewSubmissionStore creates a new SQLite-backed submission store.
func NewSubmissionStore(db *DB) *SubmissionStore {
	return &SubmissionStore{db: db}
}

// SaveSubmission records the score of a finished session. Saving the same
// session twice keeps the first score.
func (s *SubmissionStore) SaveSubmission(ctx context.Context, session uuid.UUID, sub scoring.Submission) error {
	if sub.SubmittedAt.IsZero() {
		sub.SubmittedAt = time.Now().UTC()
	}
	var snapshot string
	if !sub.Snapshot.IsZero() {
		snapshot = sub.Snapshot.String()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO submissions (session_id, exercise_id, snapshot_id, revision, points, submitted_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO NOTHING`,
		session.String(), sub.Exercise.String(), snapshot, sub.Revision, sub.Points, sub.SubmittedAt,
	)
	if err != nil {
		return fmt.Errorf("insert submission: %w", err)
	}
	return nil
}

// Submissions returns the submissions of the given exercises, oldest first.
// An id matches submissions on the live exercise as well as submissions on
// a snapshot with that id.
func (s *SubmissionStore) Submissions(ctx context.Context, exercises []domain.ExerciseID) (map[domain.ExerciseID][]scoring.Submission, error) {
	out := make(map[domain.ExerciseID][]scoring.Submission, len(exercises))
	for _, id := range exercises {
		if _, done := out[id]; done {
			continue
		}
		rows, err := s.db.QueryContext(ctx, `
			SELECT exercise_id, snapshot_id, revision, points, submitted_at FROM submissions
			WHERE exercise_id = ? OR snapshot_id = ?
			ORDER BY submitted_at`,
			id.String(), id.String(),
		)
		if err != nil {
			return nil, fmt.Errorf("list submissions: %w", err)
		}
		subs := []scoring.Submission{}
		for rows.Next() {
			sub, err := scanSubmission(rows)
			if err != nil {
				rows.Close()
				return nil, err
			}
			subs = append(subs, sub)
		}
		err = rows.Err()
		rows.Close()
		if err != nil {
			return nil, err
		}
		out[id] = subs
	}
	return out, nil
}

func scanSubmission(rows *sql.Rows) (scoring.Submission, error) {
	var (
		sub                scoring.Submission
		exercise, snapshot string
	)
	if err := rows.Scan(&exercise, &snapshot, &sub.Revision, &sub.Points, &sub.SubmittedAt); err != nil {
		return sub, fmt.Errorf("scan submission: %w", err)
	}
	id, err := domain.NewExerciseIDFromString(exercise)
	if err != nil {
		return sub, fmt.Errorf("scan submission: %w", err)
	}
	sub.Exercise = id
	if snapshot != "" {
		if sub.Snapshot, err = domain.NewExerciseIDFromString(snapshot); err != nil {
			return sub, fmt.Errorf("scan submission: %w", err)
		}
	}
	return sub, nil
}
