package domain

import "fmt"

// Graph is the read-only view of a stage graph shared by live and frozen
// exercises. Sessions only depend on this view.
type Graph interface {
	ID() ExerciseID
	Stage(id StageID) (*Stage, bool)
	StartStage() (*Stage, bool)
	Stages() []*Stage
	Variables() []VariableDeclaration
	Variable(id VariableID) (VariableDeclaration, bool)
	SuffixWeights() map[StageID]int
	HintMalusType() HintMalusType
}

var (
	_ Graph = (*Exercise)(nil)
	_ Graph = (*FrozenExercise)(nil)
)

// ExerciseProxy identifies the live exercise revision a snapshot was made of
type ExerciseProxy struct {
	Original ExerciseID `json:"original"`
	Revision int        `json:"revision"`
}

// FrozenExercise is an immutable snapshot of one exercise revision. It owns
// a private deep copy and exposes no mutators; it never references the live
// exercise other than through its proxy pair.
type FrozenExercise struct {
	ex    *Exercise
	proxy ExerciseProxy
}

// FreezeExercise snapshots src, which must be the state of revision of the
// live exercise. The snapshot gets fresh identities throughout.
func FreezeExercise(src *Exercise, revision int) (*FrozenExercise, error) {
	if revision <= 0 {
		return nil, fmt.Errorf("freeze exercise %s: %w", src.id, ErrNotPersisted)
	}
	c, _, err := src.deepCopy(GenerateExerciseID())
	if err != nil {
		return nil, fmt.Errorf("freeze exercise %s@%d: %w", src.id, revision, err)
	}
	return &FrozenExercise{
		ex:    c,
		proxy: ExerciseProxy{Original: src.id, Revision: revision},
	}, nil
}

func (f *FrozenExercise) ID() ExerciseID               { return f.ex.id }
func (f *FrozenExercise) Proxy() ExerciseProxy         { return f.proxy }
func (f *FrozenExercise) HintMalusType() HintMalusType { return f.ex.malusType }
func (f *FrozenExercise) StageCount() int              { return len(f.ex.stages) }

// Meta returns a copy of the scalar attributes
func (f *FrozenExercise) Meta() ExerciseMeta {
	m := f.ex.Meta
	m.Tags = append([]string(nil), f.ex.Meta.Tags...)
	return m
}

func (f *FrozenExercise) Stage(id StageID) (*Stage, bool) { return f.ex.Stage(id) }
func (f *FrozenExercise) StartStage() (*Stage, bool)      { return f.ex.StartStage() }
func (f *FrozenExercise) Stages() []*Stage                { return f.ex.Stages() }
func (f *FrozenExercise) EndStages() []*Stage             { return f.ex.EndStages() }
func (f *FrozenExercise) Resources() []Resource           { return f.ex.Resources() }

func (f *FrozenExercise) Variables() []VariableDeclaration {
	return f.ex.Variables()
}

func (f *FrozenExercise) Variable(id VariableID) (VariableDeclaration, bool) {
	return f.ex.Variable(id)
}

// SuffixWeights returns a copy of the snapshot's suffix weights. They are
// computed once at freeze time.
func (f *FrozenExercise) SuffixWeights() map[StageID]int {
	out := make(map[StageID]int, len(f.ex.suffixWeights))
	for k, v := range f.ex.suffixWeights {
		out[k] = v
	}
	return out
}

// Thaw returns an editable deep copy with fresh identities, e.g. to restore
// an old revision as a new live exercise
func (f *FrozenExercise) Thaw() (*Exercise, error) {
	c, _, err := f.ex.deepCopy(GenerateExerciseID())
	if err != nil {
		return nil, fmt.Errorf("thaw frozen exercise %s: %w", f.ex.id, err)
	}
	return c, nil
}

// -----------------------------------------------------------------------------
// Frozen courses
// -----------------------------------------------------------------------------

// CourseProxy identifies the live course revision a snapshot was made of
type CourseProxy struct {
	Original CourseID `json:"original"`
	Revision int      `json:"revision"`
}

// FrozenCourse is an immutable snapshot of one course revision. Every entry
// references a frozen exercise.
type FrozenCourse struct {
	id          CourseID
	meta        CourseMeta
	scoringMode ScoringMode
	resources   []Resource
	entries     []CourseEntry
	proxy       CourseProxy
}

// FreezeCourse snapshots src at revision. frozen maps every entry's live
// exercise to the frozen exercise the snapshot should reference; an entry
// without one fails with ErrMissingFrozenDependency.
func FreezeCourse(src *Course, revision int, frozen map[ExerciseID]FrozenRef) (*FrozenCourse, error) {
	if revision <= 0 {
		return nil, fmt.Errorf("freeze course %s: %w", src.id, ErrNotPersisted)
	}
	entries, ok := src.Entries()
	if !ok {
		return nil, fmt.Errorf("freeze course %s: dynamic content provider: %w", src.id, ErrFreezePrecondition)
	}
	for i, e := range entries {
		ref, ok := frozen[e.Exercise]
		if !ok {
			return nil, fmt.Errorf("freeze course %s entry %s: %w", src.id, e.Exercise, ErrMissingFrozenDependency)
		}
		entries[i].Frozen = &ref
	}

	resources := make([]Resource, len(src.resources))
	for i, r := range src.resources {
		resources[i] = r
		resources[i].ID = GenerateResourceID()
		resources[i].Content = append([]byte(nil), r.Content...)
	}

	return &FrozenCourse{
		id:          GenerateCourseID(),
		meta:        src.Meta,
		scoringMode: src.scoringMode,
		resources:   resources,
		entries:     entries,
		proxy:       CourseProxy{Original: src.id, Revision: revision},
	}, nil
}

func (f *FrozenCourse) ID() CourseID             { return f.id }
func (f *FrozenCourse) Meta() CourseMeta         { return f.meta }
func (f *FrozenCourse) ScoringMode() ScoringMode { return f.scoringMode }
func (f *FrozenCourse) Proxy() CourseProxy       { return f.proxy }
func (f *FrozenCourse) Resources() []Resource    { return append([]Resource(nil), f.resources...) }
func (f *FrozenCourse) Entries() []CourseEntry   { return copyEntries(f.entries) }

// MaxPoints returns the sum of entry points
func (f *FrozenCourse) MaxPoints() int {
	return (&FixedListProvider{Entries: f.entries}).PointSum()
}
