// Package storage holds what the SQLite and Postgres stores share: the JSON
// encoding of aggregate records and listing types.
package storage

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// Revision describes one saved revision of a live aggregate
type Revision struct {
	ID        string    `json:"id"`
	Revision  int       `json:"revision"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"created_at"`
}

// EncodeExercise serializes the record of a live exercise. Only exercises
// that pass validation enter the revision history, so every stored
// revision can be restored and frozen later. Frozen records never do.
func EncodeExercise(ex *domain.Exercise) ([]byte, error) {
	if err := ex.Validate(); err != nil {
		return nil, fmt.Errorf("save exercise %s: %w", ex.ID(), err)
	}
	r := ex.Record()
	if r.Proxy != nil {
		return nil, fmt.Errorf("save exercise %s: %w", r.ID, domain.ErrImmutableSnapshot)
	}
	return json.Marshal(r)
}

// EncodeCourse serializes a live course record
func EncodeCourse(r domain.CourseRecord) ([]byte, error) {
	if r.Proxy != nil {
		return nil, fmt.Errorf("save course %s: %w", r.ID, domain.ErrImmutableSnapshot)
	}
	return json.Marshal(r)
}

// DecodeExercise restores a live exercise from its stored record
func DecodeExercise(data []byte) (*domain.Exercise, error) {
	var r domain.ExerciseRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal exercise record: %w", err)
	}
	return domain.ExerciseFromRecord(r)
}

// DecodeCourse restores a live course from its stored record
func DecodeCourse(data []byte) (*domain.Course, error) {
	var r domain.CourseRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal course record: %w", err)
	}
	return domain.CourseFromRecord(r)
}

// DecodeFrozenExercise restores a frozen exercise snapshot
func DecodeFrozenExercise(data []byte) (*domain.FrozenExercise, error) {
	var r domain.ExerciseRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal frozen exercise record: %w", err)
	}
	return domain.FrozenExerciseFromRecord(r)
}

// DecodeFrozenCourse restores a frozen course snapshot
func DecodeFrozenCourse(data []byte) (*domain.FrozenCourse, error) {
	var r domain.CourseRecord
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("unmarshal frozen course record: %w", err)
	}
	return domain.FrozenCourseFromRecord(r)
}
