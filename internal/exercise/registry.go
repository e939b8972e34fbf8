package exercise

import (
	"fmt"
	"sort"
	"sync"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// Registry provides access to the exercises and courses of a content
// directory by slug
type Registry struct {
	loader    *Loader
	mu        sync.RWMutex
	exercises map[string]*domain.Exercise
	courses   map[string]*domain.Course
	slugs     map[domain.ExerciseID]string
	loaded    bool
}

// NewRegistry creates a new exercise registry
func NewRegistry(loader *Loader) *Registry {
	return &Registry{
		loader:    loader,
		exercises: make(map[string]*domain.Exercise),
		courses:   make(map[string]*domain.Course),
		slugs:     make(map[domain.ExerciseID]string),
	}
}

// Load loads all exercises, then all courses, into memory
func (r *Registry) Load() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	slugs, err := r.loader.ListSlugs("exercises")
	if err != nil {
		return fmt.Errorf("list exercises: %w", err)
	}
	for _, slug := range slugs {
		ex, err := r.loader.LoadExercise(slug)
		if err != nil {
			return fmt.Errorf("load exercise %s: %w", slug, err)
		}
		if other, dup := r.slugs[ex.ID()]; dup {
			return fmt.Errorf("exercise %s: id %s already used by %s", slug, ex.ID(), other)
		}
		r.exercises[slug] = ex
		r.slugs[ex.ID()] = slug
	}

	courses, err := r.loader.ListSlugs("courses")
	if err != nil {
		return fmt.Errorf("list courses: %w", err)
	}
	resolve := func(slug string) (domain.ExerciseID, bool) {
		ex, ok := r.exercises[slug]
		if !ok {
			return domain.ExerciseID{}, false
		}
		return ex.ID(), true
	}
	for _, slug := range courses {
		c, err := r.loader.LoadCourse(slug, resolve)
		if err != nil {
			return fmt.Errorf("load course %s: %w", slug, err)
		}
		r.courses[slug] = c
	}

	r.loaded = true
	return nil
}

// Reload reloads all content (useful for development)
func (r *Registry) Reload() error {
	r.mu.Lock()
	r.exercises = make(map[string]*domain.Exercise)
	r.courses = make(map[string]*domain.Course)
	r.slugs = make(map[domain.ExerciseID]string)
	r.loaded = false
	r.mu.Unlock()

	return r.Load()
}

// GetExercise returns an exercise by slug
func (r *Registry) GetExercise(slug string) (*domain.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ex, ok := r.exercises[slug]
	if !ok {
		return nil, fmt.Errorf("%s: %w", slug, domain.ErrExerciseNotFound)
	}
	return ex, nil
}

// ExerciseByID returns a loaded exercise by its identity
func (r *Registry) ExerciseByID(id domain.ExerciseID) (*domain.Exercise, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	slug, ok := r.slugs[id]
	if !ok {
		return nil, fmt.Errorf("%s: %w", id, domain.ErrExerciseNotFound)
	}
	return r.exercises[slug], nil
}

// SlugOf returns the slug an exercise was loaded from
func (r *Registry) SlugOf(id domain.ExerciseID) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	slug, ok := r.slugs[id]
	return slug, ok
}

// GetCourse returns a course by slug
func (r *Registry) GetCourse(slug string) (*domain.Course, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.courses[slug]
	if !ok {
		return nil, fmt.Errorf("%s: %w", slug, domain.ErrCourseNotFound)
	}
	return c, nil
}

// ListExercises returns the exercise slugs, sorted
func (r *Registry) ListExercises() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.exercises)
}

// ListCourses returns the course slugs, sorted
func (r *Registry) ListCourses() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.courses)
}

// ExercisesByKind returns the slugs of exercises that contain at least one
// stage of the given kind
func (r *Registry) ExercisesByKind(kind domain.StageKind) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []string
	for slug, ex := range r.exercises {
		for _, s := range ex.Stages() {
			if s.Kind() == kind {
				out = append(out, slug)
				break
			}
		}
	}
	sort.Strings(out)
	return out
}

// Stats returns statistics about loaded content
func (r *Registry) Stats() RegistryStats {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := RegistryStats{
		ExerciseCount: len(r.exercises),
		CourseCount:   len(r.courses),
		ByKind:        make(map[string]int),
	}
	for _, ex := range r.exercises {
		stats.StageCount += ex.StageCount()
		for _, s := range ex.Stages() {
			stats.ByKind[string(s.Kind())]++
		}
	}
	return stats
}

// RegistryStats holds statistics about the registry
type RegistryStats struct {
	ExerciseCount int
	CourseCount   int
	StageCount    int
	ByKind        map[string]int
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
