package domain

import "errors"

// -----------------------------------------------------------------------------
// Domain Errors
// These errors represent domain-level failures and are used by stores,
// the freeze engine and the player to communicate domain-specific conditions.
// Callers wrap them with fmt.Errorf("...: %w") and match with errors.Is.
// -----------------------------------------------------------------------------

// Structural errors (rejected at edit time)
var (
	ErrStructural              = errors.New("structural error")
	ErrDuplicateStageName      = errors.New("duplicate internal stage name")
	ErrDuplicateVariableName   = errors.New("duplicate variable name")
	ErrTargetOutsideExercise   = errors.New("transition target is not a stage of this exercise")
	ErrUnknownVariable         = errors.New("variable update references unknown declaration")
	ErrUnknownResource         = errors.New("stage resource references unknown exercise resource")
	ErrMissingStartStage       = errors.New("exercise has no start stage")
	ErrInvalidWeight           = errors.New("stage weight must be positive")
	ErrTransitionIndexOutRange = errors.New("transition index out of range")
)

// Runtime errors
var (
	ErrIllegalSkip          = errors.New("illegal skip: stage does not allow skipping")
	ErrExpressionEvaluation = errors.New("expression evaluation error")
	ErrPendingCheckerJobs   = errors.New("stage has pending checker jobs")
	ErrSessionFinished      = errors.New("session already finished")
	ErrNoHintLeft           = errors.New("no hint left for stage")
)

// Freeze errors
var (
	ErrFreezePrecondition      = errors.New("freeze precondition violated")
	ErrNotPersisted            = errors.New("aggregate has no revision history")
	ErrMissingFrozenDependency = errors.New("missing frozen dependency")
	ErrImmutableSnapshot       = errors.New("frozen snapshot is immutable")
)

// Not found errors
var (
	ErrStageNotFound          = errors.New("stage not found")
	ErrVariableNotFound       = errors.New("variable not found")
	ErrExerciseNotFound       = errors.New("exercise not found")
	ErrCourseNotFound         = errors.New("course not found")
	ErrRevisionNotFound       = errors.New("revision not found")
	ErrFrozenExerciseNotFound = errors.New("frozen exercise not found")
	ErrFrozenCourseNotFound   = errors.New("frozen course not found")
)

// IsNotFound reports whether err is one of the not found errors
func IsNotFound(err error) bool {
	return errors.Is(err, ErrStageNotFound) ||
		errors.Is(err, ErrVariableNotFound) ||
		errors.Is(err, ErrExerciseNotFound) ||
		errors.Is(err, ErrCourseNotFound) ||
		errors.Is(err, ErrRevisionNotFound) ||
		errors.Is(err, ErrFrozenExerciseNotFound) ||
		errors.Is(err, ErrFrozenCourseNotFound)
}

// IsStructural reports whether err describes an inconsistent stage graph
func IsStructural(err error) bool {
	return errors.Is(err, ErrStructural) ||
		errors.Is(err, ErrDuplicateStageName) ||
		errors.Is(err, ErrDuplicateVariableName) ||
		errors.Is(err, ErrTargetOutsideExercise) ||
		errors.Is(err, ErrUnknownVariable) ||
		errors.Is(err, ErrUnknownResource) ||
		errors.Is(err, ErrMissingStartStage) ||
		errors.Is(err, ErrInvalidWeight)
}
