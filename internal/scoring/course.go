package scoring

import (
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// Submission is a finished attempt at an exercise within a course.
// Exercise is the live exercise; Snapshot and Revision name the frozen copy
// that was played and the revision it was made of. Both are zero when a
// live exercise was played directly.
type Submission struct {
	Exercise    domain.ExerciseID
	Snapshot    domain.ExerciseID
	Revision    int
	Points      int
	SubmittedAt time.Time
}

// PlayedAs returns the snapshot a submission was graded against, or the
// exercise itself when it was not pinned
func (s Submission) PlayedAs() domain.ExerciseID {
	if s.Snapshot.IsZero() {
		return s.Exercise
	}
	return s.Snapshot
}

// SelectSubmission picks the submission that counts under mode: the latest
// for LAST, the highest scoring for BEST. Ties under BEST go to the latest.
func SelectSubmission(subs []Submission, mode domain.ScoringMode) (Submission, bool) {
	if len(subs) == 0 {
		return Submission{}, false
	}
	best := subs[0]
	for _, s := range subs[1:] {
		switch mode {
		case domain.ScoringBest:
			if s.Points > best.Points || (s.Points == best.Points && s.SubmittedAt.After(best.SubmittedAt)) {
				best = s
			}
		default:
			if !s.SubmittedAt.Before(best.SubmittedAt) {
				best = s
			}
		}
	}
	return best, true
}

// PlayedExercise returns the exercise students actually work on for an
// entry: its frozen snapshot when there is one.
func PlayedExercise(e domain.CourseEntry) domain.ExerciseID {
	if e.Frozen != nil {
		return e.Frozen.ID
	}
	return e.Exercise
}

// CourseScore weights the selected submission of every entry by the entry's
// points. Entries without a submission count as zero. The second return
// value is false when the entries carry no points at all.
func CourseScore(entries []domain.CourseEntry, mode domain.ScoringMode, subs map[domain.ExerciseID][]Submission) (int, bool) {
	var sum, weights float64
	for _, e := range entries {
		weights += float64(e.Points)
		if s, ok := SelectSubmission(subs[PlayedExercise(e)], mode); ok {
			sum += float64(s.Points * e.Points)
		}
	}
	if weights == 0 {
		return 0, false
	}
	return roundHalfUp(sum / weights), true
}
