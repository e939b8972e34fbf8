package domain

import (
	"errors"
	"fmt"

	"github.com/google/uuid"
)

// ErrInvalidID indicates an invalid identifier format
var ErrInvalidID = errors.New("invalid identifier format")

// -----------------------------------------------------------------------------
// StageID - Typed identifier for stages
// -----------------------------------------------------------------------------

// StageID is a typed identifier for stages. The zero value means "no stage"
// and is used as the target of terminal and repeat transitions.
type StageID struct {
	value uuid.UUID
}

// NewStageID creates a new StageID from a UUID
func NewStageID(id uuid.UUID) StageID {
	return StageID{value: id}
}

// NewStageIDFromString creates a StageID from a string
func NewStageIDFromString(s string) (StageID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return StageID{}, fmt.Errorf("%w: stage %q: %v", ErrInvalidID, s, err)
	}
	return StageID{value: id}, nil
}

// GenerateStageID creates a new random StageID
func GenerateStageID() StageID {
	return StageID{value: uuid.New()}
}

// UUID returns the underlying uuid.UUID
func (id StageID) UUID() uuid.UUID {
	return id.value
}

// String returns the string representation
func (id StageID) String() string {
	if id.IsZero() {
		return ""
	}
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id StageID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equal compares two StageIDs
func (id StageID) Equal(other StageID) bool {
	return id.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (id StageID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *StageID) UnmarshalText(b []byte) error {
	if len(b) == 0 {
		*id = StageID{}
		return nil
	}
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("%w: stage %q", ErrInvalidID, b)
	}
	id.value = parsed
	return nil
}

// -----------------------------------------------------------------------------
// ExerciseID - Typed identifier for exercises (live and frozen)
// -----------------------------------------------------------------------------

// ExerciseID is a typed identifier for exercises
type ExerciseID struct {
	value uuid.UUID
}

// NewExerciseID creates a new ExerciseID from a UUID
func NewExerciseID(id uuid.UUID) ExerciseID {
	return ExerciseID{value: id}
}

// NewExerciseIDFromString creates an ExerciseID from a string
func NewExerciseIDFromString(s string) (ExerciseID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return ExerciseID{}, fmt.Errorf("%w: exercise %q: %v", ErrInvalidID, s, err)
	}
	return ExerciseID{value: id}, nil
}

// GenerateExerciseID creates a new random ExerciseID
func GenerateExerciseID() ExerciseID {
	return ExerciseID{value: uuid.New()}
}

// UUID returns the underlying uuid.UUID
func (id ExerciseID) UUID() uuid.UUID {
	return id.value
}

// String returns the string representation
func (id ExerciseID) String() string {
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id ExerciseID) IsZero() bool {
	return id.value == uuid.Nil
}

// Equal compares two ExerciseIDs
func (id ExerciseID) Equal(other ExerciseID) bool {
	return id.value == other.value
}

// MarshalText implements encoding.TextMarshaler
func (id ExerciseID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ExerciseID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("%w: exercise %q", ErrInvalidID, b)
	}
	id.value = parsed
	return nil
}

// -----------------------------------------------------------------------------
// CourseID - Typed identifier for courses (live and frozen)
// -----------------------------------------------------------------------------

// CourseID is a typed identifier for courses
type CourseID struct {
	value uuid.UUID
}

// NewCourseIDFromString creates a CourseID from a string
func NewCourseIDFromString(s string) (CourseID, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return CourseID{}, fmt.Errorf("%w: course %q: %v", ErrInvalidID, s, err)
	}
	return CourseID{value: id}, nil
}

// GenerateCourseID creates a new random CourseID
func GenerateCourseID() CourseID {
	return CourseID{value: uuid.New()}
}

// UUID returns the underlying uuid.UUID
func (id CourseID) UUID() uuid.UUID {
	return id.value
}

// String returns the string representation
func (id CourseID) String() string {
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id CourseID) IsZero() bool {
	return id.value == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler
func (id CourseID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *CourseID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("%w: course %q", ErrInvalidID, b)
	}
	id.value = parsed
	return nil
}

// -----------------------------------------------------------------------------
// VariableID - Typed identifier for variable declarations
// -----------------------------------------------------------------------------

// VariableID is a typed identifier for variable declarations
type VariableID struct {
	value uuid.UUID
}

// GenerateVariableID creates a new random VariableID
func GenerateVariableID() VariableID {
	return VariableID{value: uuid.New()}
}

// String returns the string representation
func (id VariableID) String() string {
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id VariableID) IsZero() bool {
	return id.value == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler
func (id VariableID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *VariableID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("%w: variable %q", ErrInvalidID, b)
	}
	id.value = parsed
	return nil
}

// -----------------------------------------------------------------------------
// ResourceID - Typed identifier for exercise resources
// -----------------------------------------------------------------------------

// ResourceID is a typed identifier for exercise resources
type ResourceID struct {
	value uuid.UUID
}

// GenerateResourceID creates a new random ResourceID
func GenerateResourceID() ResourceID {
	return ResourceID{value: uuid.New()}
}

// String returns the string representation
func (id ResourceID) String() string {
	return id.value.String()
}

// IsZero returns true if this is a zero value
func (id ResourceID) IsZero() bool {
	return id.value == uuid.Nil
}

// MarshalText implements encoding.TextMarshaler
func (id ResourceID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (id *ResourceID) UnmarshalText(b []byte) error {
	parsed, err := uuid.ParseBytes(b)
	if err != nil {
		return fmt.Errorf("%w: resource %q", ErrInvalidID, b)
	}
	id.value = parsed
	return nil
}

// -----------------------------------------------------------------------------
// Difficulty - Value object for exercise difficulty (0-100)
// -----------------------------------------------------------------------------

// Difficulty is an author-assigned difficulty between 0 and 100
type Difficulty int

// NewDifficulty validates and creates a Difficulty
func NewDifficulty(v int) (Difficulty, error) {
	if v < 0 || v > 100 {
		return 0, fmt.Errorf("difficulty must be between 0 and 100, got %d", v)
	}
	return Difficulty(v), nil
}
