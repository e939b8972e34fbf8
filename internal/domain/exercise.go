package domain

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
)

var (
	defaultStageNamePattern    = regexp.MustCompile(`^#(\d+)$`)
	defaultVariableNamePattern = regexp.MustCompile(`^var(\d+)$`)
)

// ExerciseMeta holds the scalar attributes of an exercise
type ExerciseMeta struct {
	Name        string
	Description string
	Language    string
	Difficulty  Difficulty
	Tags        []string
}

// Exercise is the aggregate root of a stage graph. Stages are kept in an
// arena indexed by id; transitions reference stages by id only.
type Exercise struct {
	id   ExerciseID
	Meta ExerciseMeta

	stages    map[StageID]*Stage
	start     StageID
	variables []VariableDeclaration
	resources []Resource
	malusType HintMalusType

	suffixWeights map[StageID]int
	weightsDirty  bool
}

// NewExercise creates an empty exercise with a fresh identity
func NewExercise(name string) *Exercise {
	return newExercise(GenerateExerciseID(), ExerciseMeta{Name: name})
}

// NewExerciseWithID creates an empty exercise with a known identity, as
// used when authored content carries a stable id
func NewExerciseWithID(id ExerciseID, name string) *Exercise {
	if id.IsZero() {
		id = GenerateExerciseID()
	}
	return newExercise(id, ExerciseMeta{Name: name})
}

func newExercise(id ExerciseID, meta ExerciseMeta) *Exercise {
	return &Exercise{
		id:            id,
		Meta:          meta,
		stages:        make(map[StageID]*Stage),
		malusType:     MalusCutMaximum,
		suffixWeights: make(map[StageID]int),
	}
}

// ID returns the exercise identity
func (e *Exercise) ID() ExerciseID { return e.id }

// HintMalusType returns how hint maluses are applied
func (e *Exercise) HintMalusType() HintMalusType { return e.malusType }

// SetHintMalusType changes how hint maluses are applied
func (e *Exercise) SetHintMalusType(t HintMalusType) error {
	if t != MalusCutMaximum && t != MalusCutActual {
		return fmt.Errorf("unknown hint malus type %q", t)
	}
	e.malusType = t
	return nil
}

// -----------------------------------------------------------------------------
// Stages
// -----------------------------------------------------------------------------

// AddStage appends a new stage of the given kind with a default internal
// name and an end transition as default. The first stage becomes the start
// stage.
func (e *Exercise) AddStage(kind StageKind) (*Stage, error) {
	if !kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown stage kind %q", ErrStructural, kind)
	}
	s := newStage(GenerateStageID(), kind, e.NextDefaultInternalName(), len(e.stages))
	e.stages[s.id] = s
	if e.start.IsZero() {
		e.start = s.id
	}
	e.invalidate()
	return s, nil
}

// Stage returns the stage with the given id
func (e *Exercise) Stage(id StageID) (*Stage, bool) {
	s, ok := e.stages[id]
	return s, ok
}

// StageByInternalName returns the stage with the given internal name
func (e *Exercise) StageByInternalName(name string) (*Stage, bool) {
	for _, s := range e.stages {
		if s.internalName == name {
			return s, true
		}
	}
	return nil, false
}

// Stages returns all stages ordered by order index
func (e *Exercise) Stages() []*Stage {
	out := make([]*Stage, 0, len(e.stages))
	for _, s := range e.stages {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].orderIndex < out[j].orderIndex
	})
	return out
}

// StageCount returns the number of stages
func (e *Exercise) StageCount() int { return len(e.stages) }

// StartStage returns the start stage, if one is set
func (e *Exercise) StartStage() (*Stage, bool) {
	if e.start.IsZero() {
		return nil, false
	}
	return e.Stage(e.start)
}

// SetStartStage makes the given stage the entry point of the exercise
func (e *Exercise) SetStartStage(id StageID) error {
	if _, ok := e.stages[id]; !ok {
		return fmt.Errorf("set start stage %s: %w", id, ErrStageNotFound)
	}
	e.start = id
	return nil
}

// RemoveStage deletes a stage, closes the order index gap and turns every
// transition that targeted it into an end transition. Removing the start
// stage leaves the exercise without one until a new start is set.
func (e *Exercise) RemoveStage(id StageID) error {
	removed, ok := e.stages[id]
	if !ok {
		return fmt.Errorf("remove stage %s: %w", id, ErrStageNotFound)
	}
	delete(e.stages, id)

	for _, s := range e.stages {
		if s.orderIndex > removed.orderIndex {
			s.orderIndex--
		}
		s.retarget(func(t Transition) Transition {
			if t.HasTarget() && t.Target == id {
				t.Target = StageID{}
			}
			return t
		})
	}
	if e.start == id {
		e.start = StageID{}
	}
	e.invalidate()
	return nil
}

// MoveStage changes the authoring position of a stage, shifting the others
func (e *Exercise) MoveStage(id StageID, index int) error {
	ordered := e.Stages()
	if index < 0 || index >= len(ordered) {
		return fmt.Errorf("move stage to %d: index out of range", index)
	}
	from := -1
	for i, s := range ordered {
		if s.id == id {
			from = i
			break
		}
	}
	if from < 0 {
		return fmt.Errorf("move stage %s: %w", id, ErrStageNotFound)
	}
	moved := ordered[from]
	ordered = append(ordered[:from], ordered[from+1:]...)
	ordered = append(ordered[:index], append([]*Stage{moved}, ordered[index:]...)...)
	for i, s := range ordered {
		s.orderIndex = i
	}
	return nil
}

// NextDefaultInternalName returns the next free default stage name "#<n>".
// n is one more than the larger of the stage count and the highest number
// already used by a default name.
func (e *Exercise) NextDefaultInternalName() string {
	next := len(e.stages)
	for _, s := range e.stages {
		if m := defaultStageNamePattern.FindStringSubmatch(s.internalName); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > next {
				next = n
			}
		}
	}
	return "#" + strconv.Itoa(next+1)
}

// -----------------------------------------------------------------------------
// Variables
// -----------------------------------------------------------------------------

// AddVariable declares a new variable. An empty name picks the next default
// name "var<n>".
func (e *Exercise) AddVariable(name string, init Expression) (VariableDeclaration, error) {
	if name == "" {
		name = e.NextDefaultVariableName()
	}
	if _, ok := e.VariableByName(name); ok {
		return VariableDeclaration{}, fmt.Errorf("add variable %q: %w", name, ErrDuplicateVariableName)
	}
	decl := VariableDeclaration{ID: GenerateVariableID(), Name: name, Initializer: init}
	e.variables = append(e.variables, decl)
	return decl, nil
}

// Variable returns the declaration with the given id
func (e *Exercise) Variable(id VariableID) (VariableDeclaration, bool) {
	for _, v := range e.variables {
		if v.ID == id {
			return v, true
		}
	}
	return VariableDeclaration{}, false
}

// VariableByName returns the declaration with the given name
func (e *Exercise) VariableByName(name string) (VariableDeclaration, bool) {
	for _, v := range e.variables {
		if v.Name == name {
			return v, true
		}
	}
	return VariableDeclaration{}, false
}

// Variables returns the ordered declarations
func (e *Exercise) Variables() []VariableDeclaration {
	return append([]VariableDeclaration(nil), e.variables...)
}

// SetVariableInitializer replaces the initializer of a declaration
func (e *Exercise) SetVariableInitializer(id VariableID, init Expression) error {
	for i := range e.variables {
		if e.variables[i].ID == id {
			e.variables[i].Initializer = init
			return nil
		}
	}
	return fmt.Errorf("set initializer %s: %w", id, ErrVariableNotFound)
}

// RemoveVariable deletes a declaration together with every update that
// references it in any stage
func (e *Exercise) RemoveVariable(id VariableID) error {
	idx := -1
	for i, v := range e.variables {
		if v.ID == id {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("remove variable %s: %w", id, ErrVariableNotFound)
	}
	e.variables = append(e.variables[:idx], e.variables[idx+1:]...)

	for _, s := range e.stages {
		for m, list := range s.updates {
			kept := list[:0]
			for _, u := range list {
				if u.Variable != id {
					kept = append(kept, u)
				}
			}
			s.updates[m] = kept
		}
	}
	return nil
}

// ReorderVariables moves the declaration at index from to index to
func (e *Exercise) ReorderVariables(from, to int) error {
	n := len(e.variables)
	if from < 0 || to < 0 || from >= n || to >= n {
		return fmt.Errorf("reorder variables %d -> %d: index out of range", from, to)
	}
	v := e.variables[from]
	e.variables = append(e.variables[:from], e.variables[from+1:]...)
	e.variables = append(e.variables[:to], append([]VariableDeclaration{v}, e.variables[to:]...)...)
	return nil
}

// NextDefaultVariableName returns the next free default variable name
func (e *Exercise) NextDefaultVariableName() string {
	next := len(e.variables)
	for _, v := range e.variables {
		if m := defaultVariableNamePattern.FindStringSubmatch(v.Name); m != nil {
			if n, err := strconv.Atoi(m[1]); err == nil && n > next {
				next = n
			}
		}
	}
	return "var" + strconv.Itoa(next+1)
}

// -----------------------------------------------------------------------------
// Resources
// -----------------------------------------------------------------------------

// AddResource attaches a file to the exercise
func (e *Exercise) AddResource(filename, mediaType string, content []byte) Resource {
	r := Resource{
		ID:        GenerateResourceID(),
		Filename:  filename,
		MediaType: mediaType,
		Content:   append([]byte(nil), content...),
	}
	e.resources = append(e.resources, r)
	return r
}

// Resources returns the exercise resources in attachment order
func (e *Exercise) Resources() []Resource {
	return append([]Resource(nil), e.resources...)
}

// Resource returns the resource with the given id
func (e *Exercise) Resource(id ResourceID) (Resource, bool) {
	for _, r := range e.resources {
		if r.ID == id {
			return r, true
		}
	}
	return Resource{}, false
}

// -----------------------------------------------------------------------------
// Graph queries
// -----------------------------------------------------------------------------

// Validate checks the structural invariants of the stage graph and returns
// every violation found, joined
func (e *Exercise) Validate() error {
	var errs []error
	if _, ok := e.StartStage(); !ok && len(e.stages) > 0 {
		errs = append(errs, ErrMissingStartStage)
	}

	names := make(map[string]StageID)
	for _, s := range e.Stages() {
		if other, dup := names[s.internalName]; dup {
			errs = append(errs, fmt.Errorf("stage %s and %s named %q: %w", other, s.id, s.internalName, ErrDuplicateStageName))
		}
		names[s.internalName] = s.id

		if s.weight <= 0 {
			errs = append(errs, fmt.Errorf("stage %q: %w", s.internalName, ErrInvalidWeight))
		}
		for _, t := range s.Transitions() {
			if t.HasTarget() {
				if _, ok := e.stages[t.Target]; !ok {
					errs = append(errs, fmt.Errorf("stage %q -> %s: %w", s.internalName, t.Target, ErrTargetOutsideExercise))
				}
			}
		}
		for _, m := range Moments() {
			for _, u := range s.updates[m] {
				if _, ok := e.Variable(u.Variable); !ok {
					errs = append(errs, fmt.Errorf("stage %q %s: %w", s.internalName, m, ErrUnknownVariable))
				}
			}
		}
		for _, r := range s.resources {
			if _, ok := e.Resource(r.Resource); !ok {
				errs = append(errs, fmt.Errorf("stage %q: %w", s.internalName, ErrUnknownResource))
			}
		}
	}
	return errors.Join(errs...)
}

// EndStages returns the end stages ordered by order index
func (e *Exercise) EndStages() []*Stage {
	var out []*Stage
	for _, s := range e.Stages() {
		if s.IsEndStage() {
			out = append(out, s)
		}
	}
	return out
}

// UnreachableStages returns the stages that cannot be reached from the
// start stage by any transition, ordered by order index
func (e *Exercise) UnreachableStages() []*Stage {
	seen := make(map[StageID]bool)
	if start, ok := e.StartStage(); ok {
		queue := []StageID{start.id}
		seen[start.id] = true
		for len(queue) > 0 {
			cur := e.stages[queue[0]]
			queue = queue[1:]
			for _, t := range cur.Targets() {
				if _, ok := e.stages[t]; ok && !seen[t] {
					seen[t] = true
					queue = append(queue, t)
				}
			}
		}
	}

	var out []*Stage
	for _, s := range e.Stages() {
		if !seen[s.id] {
			out = append(out, s)
		}
	}
	return out
}

// -----------------------------------------------------------------------------
// Suffix weights
// -----------------------------------------------------------------------------

// SuffixWeights returns the maximum reachable weight per stage, recomputing
// the cache if the graph changed since the last computation
func (e *Exercise) SuffixWeights() map[StageID]int {
	if e.weightsDirty {
		e.GenerateSuffixWeights()
	}
	out := make(map[StageID]int, len(e.suffixWeights))
	for k, v := range e.suffixWeights {
		out[k] = v
	}
	return out
}

// GenerateSuffixWeights recomputes the suffix weight cache
func (e *Exercise) GenerateSuffixWeights() {
	e.suffixWeights = ComputeSuffixWeights(e.Stages())
	e.weightsDirty = false
}

// SuffixWeightsDirty reports whether the cache is stale
func (e *Exercise) SuffixWeightsDirty() bool { return e.weightsDirty }

func (e *Exercise) invalidate() {
	e.weightsDirty = true
}
