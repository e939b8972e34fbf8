package sqlite

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/freeze"
)

func TestSnapshotStore_FrozenExercise(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(openTestDB(t))

	ex := newStoredExercise(t, "Fractions")
	frozen, err := domain.FreezeExercise(ex, 3)
	if err != nil {
		t.Fatalf("FreezeExercise() error = %v", err)
	}

	if err := store.SaveFrozenExercise(ctx, frozen); err != nil {
		t.Fatalf("SaveFrozenExercise() error = %v", err)
	}

	loaded, err := store.FrozenExercise(ctx, frozen.ID())
	if err != nil {
		t.Fatalf("FrozenExercise() error = %v", err)
	}
	if loaded.Proxy() != frozen.Proxy() {
		t.Errorf("Proxy() = %+v; want %+v", loaded.Proxy(), frozen.Proxy())
	}
	if loaded.StageCount() != 2 {
		t.Errorf("StageCount() = %d; want 2", loaded.StageCount())
	}
	start, _ := loaded.StartStage()
	if w := loaded.SuffixWeights()[start.ID()]; w != 3 {
		t.Errorf("start suffix weight = %d; want 3", w)
	}

	refs, err := store.FrozenExercisesOf(ctx, ex.ID())
	if err != nil {
		t.Fatalf("FrozenExercisesOf() error = %v", err)
	}
	if len(refs) != 1 || refs[0].ID != frozen.ID() || refs[0].Revision != 3 {
		t.Errorf("FrozenExercisesOf() = %+v; want one ref at revision 3", refs)
	}
}

func TestSnapshotStore_Immutable(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(openTestDB(t))

	frozen, err := domain.FreezeExercise(newStoredExercise(t, "Fractions"), 1)
	if err != nil {
		t.Fatalf("FreezeExercise() error = %v", err)
	}
	if err := store.SaveFrozenExercise(ctx, frozen); err != nil {
		t.Fatalf("SaveFrozenExercise() error = %v", err)
	}
	if err := store.SaveFrozenExercise(ctx, frozen); !errors.Is(err, domain.ErrImmutableSnapshot) {
		t.Errorf("second SaveFrozenExercise() error = %v; want ErrImmutableSnapshot", err)
	}
}

func TestSnapshotStore_NotFound(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(openTestDB(t))

	if _, err := store.FrozenExercise(ctx, domain.GenerateExerciseID()); !errors.Is(err, domain.ErrFrozenExerciseNotFound) {
		t.Errorf("FrozenExercise() error = %v; want ErrFrozenExerciseNotFound", err)
	}
	if _, err := store.FrozenCourse(ctx, domain.GenerateCourseID()); !errors.Is(err, domain.ErrFrozenCourseNotFound) {
		t.Errorf("FrozenCourse() error = %v; want ErrFrozenCourseNotFound", err)
	}
}

func TestSnapshotStore_FrozenCourseIsAtomic(t *testing.T) {
	ctx := context.Background()
	store := NewSnapshotStore(openTestDB(t))

	ex := newStoredExercise(t, "Fractions")
	frozenEx, err := domain.FreezeExercise(ex, 1)
	if err != nil {
		t.Fatalf("FreezeExercise() error = %v", err)
	}
	course := domain.NewCourse("Basics")
	if err := course.AddEntry(domain.CourseEntry{Exercise: ex.ID(), Points: 5}); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	frozenCourse, err := domain.FreezeCourse(course, 1, map[domain.ExerciseID]domain.FrozenRef{
		ex.ID(): {ID: frozenEx.ID(), Revision: 1},
	})
	if err != nil {
		t.Fatalf("FreezeCourse() error = %v", err)
	}

	// A snapshot that already exists makes the whole write fail
	if err := store.SaveFrozenExercise(ctx, frozenEx); err != nil {
		t.Fatalf("SaveFrozenExercise() error = %v", err)
	}
	err = store.SaveFrozenCourse(ctx, frozenCourse, []*domain.FrozenExercise{frozenEx})
	if !errors.Is(err, domain.ErrImmutableSnapshot) {
		t.Fatalf("SaveFrozenCourse() error = %v; want ErrImmutableSnapshot", err)
	}
	if _, err := store.FrozenCourse(ctx, frozenCourse.ID()); !errors.Is(err, domain.ErrFrozenCourseNotFound) {
		t.Errorf("course should not be written after a failed save, got %v", err)
	}

	if err := store.SaveFrozenCourse(ctx, frozenCourse, nil); err != nil {
		t.Fatalf("SaveFrozenCourse() error = %v", err)
	}
	loaded, err := store.FrozenCourse(ctx, frozenCourse.ID())
	if err != nil {
		t.Fatalf("FrozenCourse() error = %v", err)
	}
	entries := loaded.Entries()
	if len(entries) != 1 || entries[0].Frozen == nil || entries[0].Frozen.ID != frozenEx.ID() {
		t.Errorf("Entries() = %+v; want the frozen exercise reference", entries)
	}
}

// TestFreezeEngine_SQLite runs the freeze engine against both SQLite stores.
func TestFreezeEngine_SQLite(t *testing.T) {
	ctx := context.Background()
	db := openTestDB(t)
	history := NewRevisionStore(db)
	snapshots := NewSnapshotStore(db)
	engine := freeze.NewEngine(history, snapshots, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ex := newStoredExercise(t, "Fractions")
	if _, err := history.SaveExercise(ctx, ex); err != nil {
		t.Fatalf("SaveExercise() error = %v", err)
	}

	course := domain.NewCourse("Basics")
	if err := course.AddEntry(domain.CourseEntry{Exercise: ex.ID(), Points: 10}); err != nil {
		t.Fatalf("AddEntry() error = %v", err)
	}
	if _, err := history.SaveCourse(ctx, course); err != nil {
		t.Fatalf("SaveCourse() error = %v", err)
	}

	frozen, err := engine.FreezeLatestCourse(ctx, course.ID())
	if err != nil {
		t.Fatalf("FreezeLatestCourse() error = %v", err)
	}
	entries := frozen.Entries()
	if len(entries) != 1 || entries[0].Frozen == nil {
		t.Fatalf("Entries() = %+v; want one frozen entry", entries)
	}

	snap, err := snapshots.FrozenExercise(ctx, entries[0].Frozen.ID)
	if err != nil {
		t.Fatalf("recreated exercise snapshot should be stored: %v", err)
	}
	if snap.Proxy().Original != ex.ID() || snap.Proxy().Revision != 1 {
		t.Errorf("Proxy() = %+v; want revision 1 of the live exercise", snap.Proxy())
	}

	// Live edits after freezing do not reach the snapshot
	if _, err := ex.AddStage(domain.KindMC); err != nil {
		t.Fatalf("AddStage() error = %v", err)
	}
	if _, err := history.SaveExercise(ctx, ex); err != nil {
		t.Fatalf("SaveExercise() error = %v", err)
	}
	again, err := snapshots.FrozenExercise(ctx, snap.ID())
	if err != nil {
		t.Fatalf("FrozenExercise() error = %v", err)
	}
	if again.StageCount() != 2 {
		t.Errorf("snapshot StageCount() = %d; want 2", again.StageCount())
	}
}
