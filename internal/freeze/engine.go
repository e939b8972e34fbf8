// Package freeze produces immutable snapshots of stored exercise and course
// revisions.
package freeze

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// RevisionHistory gives access to the stored revisions of live aggregates
type RevisionHistory interface {
	ExerciseRevision(ctx context.Context, id domain.ExerciseID, revision int) (*domain.Exercise, error)
	LatestExerciseRevision(ctx context.Context, id domain.ExerciseID) (int, error)
	CourseRevision(ctx context.Context, id domain.CourseID, revision int) (*domain.Course, error)
	LatestCourseRevision(ctx context.Context, id domain.CourseID) (int, error)
}

// SnapshotStore persists frozen snapshots. Snapshots are written once and
// never overwritten.
type SnapshotStore interface {
	SaveFrozenExercise(ctx context.Context, f *domain.FrozenExercise) error
	FrozenExercise(ctx context.Context, id domain.ExerciseID) (*domain.FrozenExercise, error)

	// SaveFrozenCourse stores a course snapshot together with the exercise
	// snapshots that had to be recreated for it, atomically.
	SaveFrozenCourse(ctx context.Context, f *domain.FrozenCourse, recreated []*domain.FrozenExercise) error
	FrozenCourse(ctx context.Context, id domain.CourseID) (*domain.FrozenCourse, error)
}

// Engine freezes revisions read from a RevisionHistory into a SnapshotStore
type Engine struct {
	history    RevisionHistory
	store      SnapshotStore
	dispatcher *domain.EventDispatcher
	logger     *slog.Logger
}

// NewEngine creates a freeze engine. A nil logger uses slog.Default().
func NewEngine(history RevisionHistory, store SnapshotStore, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		history: history,
		store:   store,
		logger:  logger,
	}
}

// SetDispatcher sets the dispatcher freeze events are published to
func (e *Engine) SetDispatcher(d *domain.EventDispatcher) {
	e.dispatcher = d
}

// FreezeExercise snapshots revision of exercise id and stores the snapshot
func (e *Engine) FreezeExercise(ctx context.Context, id domain.ExerciseID, revision int) (*domain.FrozenExercise, error) {
	f, err := e.freezeExercise(ctx, id, revision)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveFrozenExercise(ctx, f); err != nil {
		return nil, fmt.Errorf("save frozen exercise %s@%d: %w", id, revision, err)
	}

	e.logger.Info("exercise frozen",
		"exercise_id", id.String(),
		"revision", revision,
		"frozen_id", f.ID().String())
	e.publish(domain.NewExerciseFrozenEvent(f))
	return f, nil
}

// FreezeLatestExercise snapshots the newest stored revision of exercise id
func (e *Engine) FreezeLatestExercise(ctx context.Context, id domain.ExerciseID) (*domain.FrozenExercise, error) {
	rev, err := e.latestExerciseRevision(ctx, id)
	if err != nil {
		return nil, err
	}
	return e.FreezeExercise(ctx, id, rev)
}

// FreezeCourse snapshots revision of course id. Only fixed-list courses can
// be frozen. Every entry must point at a frozen exercise; entries whose
// snapshot is missing get one recreated and are logged. The course snapshot
// and all recreated exercise snapshots are stored together or not at all.
func (e *Engine) FreezeCourse(ctx context.Context, id domain.CourseID, revision int) (*domain.FrozenCourse, error) {
	if revision <= 0 {
		return nil, fmt.Errorf("freeze course %s@%d: %w", id, revision, domain.ErrNotPersisted)
	}
	course, err := e.history.CourseRevision(ctx, id, revision)
	if err != nil {
		return nil, fmt.Errorf("freeze course %s@%d: %w", id, revision, notPersisted(err))
	}
	entries, ok := course.Entries()
	if !ok {
		return nil, fmt.Errorf("freeze course %s: dynamic content provider: %w", id, domain.ErrFreezePrecondition)
	}

	refs := make(map[domain.ExerciseID]domain.FrozenRef, len(entries))
	var recreated []*domain.FrozenExercise
	for _, entry := range entries {
		if _, done := refs[entry.Exercise]; done {
			continue
		}
		ref, fresh, err := e.resolveEntry(ctx, id, entry)
		if err != nil {
			return nil, err
		}
		refs[entry.Exercise] = ref
		if fresh != nil {
			recreated = append(recreated, fresh)
		}
	}

	fc, err := domain.FreezeCourse(course, revision, refs)
	if err != nil {
		return nil, err
	}
	if err := e.store.SaveFrozenCourse(ctx, fc, recreated); err != nil {
		return nil, fmt.Errorf("save frozen course %s@%d: %w", id, revision, err)
	}

	e.logger.Info("course frozen",
		"course_id", id.String(),
		"revision", revision,
		"frozen_id", fc.ID().String(),
		"recreated", len(recreated))
	for _, f := range recreated {
		e.publish(domain.NewFrozenExerciseRecreatedEvent(id, f))
	}
	e.publish(domain.NewCourseFrozenEvent(fc))
	return fc, nil
}

// FreezeLatestCourse snapshots the newest stored revision of course id
func (e *Engine) FreezeLatestCourse(ctx context.Context, id domain.CourseID) (*domain.FrozenCourse, error) {
	rev, err := e.history.LatestCourseRevision(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("freeze course %s: %w", id, notPersisted(err))
	}
	return e.FreezeCourse(ctx, id, rev)
}

// resolveEntry returns the frozen exercise an entry should reference. An
// existing snapshot is reused; a missing one is recreated from the entry's
// recorded revision, or from the latest revision when the entry was never
// frozen. The recreated snapshot is returned unsaved.
func (e *Engine) resolveEntry(ctx context.Context, course domain.CourseID, entry domain.CourseEntry) (domain.FrozenRef, *domain.FrozenExercise, error) {
	revision := 0
	if entry.Frozen != nil {
		_, err := e.store.FrozenExercise(ctx, entry.Frozen.ID)
		if err == nil {
			return *entry.Frozen, nil, nil
		}
		if !errors.Is(err, domain.ErrFrozenExerciseNotFound) {
			return domain.FrozenRef{}, nil, fmt.Errorf("load frozen exercise %s: %w", entry.Frozen.ID, err)
		}
		revision = entry.Frozen.Revision
	}

	e.logger.Warn("frozen exercise missing, recreating",
		"course_id", course.String(),
		"exercise_id", entry.Exercise.String(),
		"revision", revision)

	if revision <= 0 {
		latest, err := e.latestExerciseRevision(ctx, entry.Exercise)
		if err != nil {
			return domain.FrozenRef{}, nil, fmt.Errorf("%w: %w", domain.ErrMissingFrozenDependency, err)
		}
		revision = latest
	}
	f, err := e.freezeExercise(ctx, entry.Exercise, revision)
	if err != nil {
		return domain.FrozenRef{}, nil, fmt.Errorf("%w: %w", domain.ErrMissingFrozenDependency, err)
	}
	return domain.FrozenRef{ID: f.ID(), Revision: revision}, f, nil
}

func (e *Engine) freezeExercise(ctx context.Context, id domain.ExerciseID, revision int) (*domain.FrozenExercise, error) {
	if revision <= 0 {
		return nil, fmt.Errorf("freeze exercise %s@%d: %w", id, revision, domain.ErrNotPersisted)
	}
	ex, err := e.history.ExerciseRevision(ctx, id, revision)
	if err != nil {
		return nil, fmt.Errorf("freeze exercise %s@%d: %w", id, revision, notPersisted(err))
	}
	return domain.FreezeExercise(ex, revision)
}

func (e *Engine) latestExerciseRevision(ctx context.Context, id domain.ExerciseID) (int, error) {
	rev, err := e.history.LatestExerciseRevision(ctx, id)
	if err != nil {
		return 0, fmt.Errorf("freeze exercise %s: %w", id, notPersisted(err))
	}
	return rev, nil
}

func (e *Engine) publish(ev domain.Event) {
	if e.dispatcher != nil {
		e.dispatcher.Publish(ev)
	}
}

// notPersisted marks a missing revision as an unpersisted source
func notPersisted(err error) error {
	if domain.IsNotFound(err) {
		return fmt.Errorf("%w: %w", domain.ErrNotPersisted, err)
	}
	return err
}
