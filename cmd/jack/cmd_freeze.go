package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
)

// cmdImport saves exercise files, or the whole content directory with
// --all, as new revisions
func cmdImport(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("exercise file or --all required (e.g., jack import fractions.yaml)")
	}

	e, err := loadEnv("jack")
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := e.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	if args[0] == "--all" {
		return importAll(ctx, e, st)
	}

	for _, path := range args {
		ex, err := exercise.LoadExerciseFile(path)
		if err != nil {
			return err
		}
		rev, err := st.revisions.SaveExercise(ctx, ex)
		if err != nil {
			return fmt.Errorf("save %s: %w", path, err)
		}
		fmt.Printf("%s  %s  revision %d\n", ex.ID(), ex.Meta.Name, rev)
	}
	return nil
}

func importAll(ctx context.Context, e *env, st *stores) error {
	registry, err := e.registry()
	if err != nil {
		return err
	}

	for _, slug := range registry.ListExercises() {
		ex, err := registry.GetExercise(slug)
		if err != nil {
			return err
		}
		rev, err := st.revisions.SaveExercise(ctx, ex)
		if err != nil {
			return fmt.Errorf("save exercise %s: %w", slug, err)
		}
		fmt.Printf("exercise  %-20s %s  revision %d\n", slug, ex.ID(), rev)
	}

	// Courses reference exercises by id, so they go in after the exercises
	for _, slug := range registry.ListCourses() {
		c, err := registry.GetCourse(slug)
		if err != nil {
			return err
		}
		rev, err := st.revisions.SaveCourse(ctx, c)
		if err != nil {
			return fmt.Errorf("save course %s: %w", slug, err)
		}
		fmt.Printf("course    %-20s %s  revision %d\n", slug, c.ID(), rev)
	}
	return nil
}

// cmdFreeze freezes a stored exercise or course revision. Without a
// revision the latest one is frozen.
func cmdFreeze(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("exercise or course id required (e.g., jack freeze <id> [revision])")
	}
	revision := 0
	if len(args) > 1 {
		n, err := strconv.Atoi(args[1])
		if err != nil || n <= 0 {
			return fmt.Errorf("revision must be a positive number, got %q", args[1])
		}
		revision = n
	}

	e, err := loadEnv("jack")
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	st, err := e.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()
	engine := st.freezer()

	exID, err := domain.NewExerciseIDFromString(args[0])
	if err != nil {
		return err
	}

	var f *domain.FrozenExercise
	if revision == 0 {
		f, err = engine.FreezeLatestExercise(ctx, exID)
	} else {
		f, err = engine.FreezeExercise(ctx, exID, revision)
	}
	if err == nil {
		p := f.Proxy()
		fmt.Printf("Frozen exercise %s\n", f.ID())
		fmt.Printf("  original: %s@%d\n", p.Original, p.Revision)
		fmt.Printf("  stages:   %d\n", f.StageCount())
		return nil
	}
	if !errors.Is(err, domain.ErrNotPersisted) {
		return err
	}

	// Not a stored exercise; try the id as a course
	courseID, err := domain.NewCourseIDFromString(args[0])
	if err != nil {
		return err
	}
	var fc *domain.FrozenCourse
	if revision == 0 {
		fc, err = engine.FreezeLatestCourse(ctx, courseID)
	} else {
		fc, err = engine.FreezeCourse(ctx, courseID, revision)
	}
	if err != nil {
		return err
	}

	p := fc.Proxy()
	fmt.Printf("Frozen course %s\n", fc.ID())
	fmt.Printf("  original: %s@%d\n", p.Original, p.Revision)
	fmt.Printf("  scoring:  %s\n", fc.ScoringMode())
	for _, entry := range fc.Entries() {
		if entry.Frozen == nil {
			continue
		}
		fmt.Printf("  - %s@%d  %d points\n", entry.Frozen.ID, entry.Frozen.Revision, entry.Points)
	}
	return nil
}
