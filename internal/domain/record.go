package domain

import (
	"fmt"
)

// -----------------------------------------------------------------------------
// Persistence records
// Records are the serialized form of the aggregates. Stores persist them as
// JSON; the aggregates themselves keep their fields private.
// -----------------------------------------------------------------------------

// StageRecord is the serialized form of a Stage
type StageRecord struct {
	ID               StageID                     `json:"id"`
	Kind             StageKind                   `json:"kind"`
	InternalName     string                      `json:"internal_name"`
	ExternalName     string                      `json:"external_name,omitempty"`
	TaskDescription  string                      `json:"task_description,omitempty"`
	SkipMessage      string                      `json:"skip_message,omitempty"`
	OrderIndex       int                         `json:"order_index"`
	AllowSkip        bool                        `json:"allow_skip"`
	Weight           int                         `json:"weight"`
	Hints            []Hint                      `json:"hints,omitempty"`
	Resources        []StageResource             `json:"resources,omitempty"`
	Updates          map[Moment][]VariableUpdate `json:"updates,omitempty"`
	Default          Transition                  `json:"default_transition"`
	SkipTransitions  []Transition                `json:"skip_transitions,omitempty"`
	StageTransitions []Transition                `json:"stage_transitions,omitempty"`
}

// ExerciseRecord is the serialized form of an Exercise or FrozenExercise.
// Proxy is set for frozen snapshots only.
type ExerciseRecord struct {
	ID            ExerciseID            `json:"id"`
	Name          string                `json:"name"`
	Description   string                `json:"description,omitempty"`
	Language      string                `json:"language,omitempty"`
	Difficulty    int                   `json:"difficulty"`
	Tags          []string              `json:"tags,omitempty"`
	HintMalusType HintMalusType         `json:"hint_malus_type"`
	StartStage    StageID               `json:"start_stage"`
	Stages        []StageRecord         `json:"stages"`
	Variables     []VariableDeclaration `json:"variables,omitempty"`
	Resources     []Resource            `json:"resources,omitempty"`
	SuffixWeights map[StageID]int       `json:"suffix_weights,omitempty"`
	Proxy         *ExerciseProxy        `json:"proxy,omitempty"`
}

// Record returns the serialized form of the exercise
func (e *Exercise) Record() ExerciseRecord {
	r := ExerciseRecord{
		ID:            e.id,
		Name:          e.Meta.Name,
		Description:   e.Meta.Description,
		Language:      e.Meta.Language,
		Difficulty:    int(e.Meta.Difficulty),
		Tags:          append([]string(nil), e.Meta.Tags...),
		HintMalusType: e.malusType,
		StartStage:    e.start,
		Variables:     e.Variables(),
		Resources:     e.Resources(),
		SuffixWeights: e.SuffixWeights(),
	}
	for _, s := range e.Stages() {
		r.Stages = append(r.Stages, s.record())
	}
	return r
}

// Record returns the serialized form of the snapshot, proxy included
func (f *FrozenExercise) Record() ExerciseRecord {
	r := f.ex.Record()
	proxy := f.proxy
	r.Proxy = &proxy
	return r
}

func (s *Stage) record() StageRecord {
	updates := make(map[Moment][]VariableUpdate)
	for _, m := range Moments() {
		if list := s.Updates(m); len(list) > 0 {
			updates[m] = list
		}
	}
	return StageRecord{
		ID:               s.id,
		Kind:             s.kind,
		InternalName:     s.internalName,
		ExternalName:     s.externalName,
		TaskDescription:  s.taskDescription,
		SkipMessage:      s.skipMessage,
		OrderIndex:       s.orderIndex,
		AllowSkip:        s.allowSkip,
		Weight:           s.weight,
		Hints:            s.Hints(),
		Resources:        s.Resources(),
		Updates:          updates,
		Default:          s.defaultTransition,
		SkipTransitions:  s.SkipTransitions(),
		StageTransitions: s.StageTransitions(),
	}
}

// ExerciseFromRecord restores a live exercise. Records of frozen snapshots
// are rejected with ErrImmutableSnapshot.
func ExerciseFromRecord(r ExerciseRecord) (*Exercise, error) {
	if r.Proxy != nil {
		return nil, fmt.Errorf("restore exercise %s: %w", r.ID, ErrImmutableSnapshot)
	}
	return exerciseFromRecord(r)
}

// FrozenExerciseFromRecord restores a frozen snapshot
func FrozenExerciseFromRecord(r ExerciseRecord) (*FrozenExercise, error) {
	if r.Proxy == nil {
		return nil, fmt.Errorf("restore frozen exercise %s: record has no proxy", r.ID)
	}
	ex, err := exerciseFromRecord(r)
	if err != nil {
		return nil, err
	}
	return &FrozenExercise{ex: ex, proxy: *r.Proxy}, nil
}

func exerciseFromRecord(r ExerciseRecord) (*Exercise, error) {
	difficulty, err := NewDifficulty(r.Difficulty)
	if err != nil {
		return nil, fmt.Errorf("restore exercise %s: %w", r.ID, err)
	}
	e := newExercise(r.ID, ExerciseMeta{
		Name:        r.Name,
		Description: r.Description,
		Language:    r.Language,
		Difficulty:  difficulty,
		Tags:        append([]string(nil), r.Tags...),
	})
	if r.HintMalusType != "" {
		if err := e.SetHintMalusType(r.HintMalusType); err != nil {
			return nil, fmt.Errorf("restore exercise %s: %w", r.ID, err)
		}
	}
	e.variables = append(e.variables, r.Variables...)
	e.resources = append(e.resources, r.Resources...)

	for _, sr := range r.Stages {
		if !sr.Kind.IsValid() {
			return nil, fmt.Errorf("restore stage %s: %w: unknown kind %q", sr.ID, ErrStructural, sr.Kind)
		}
		s := newStage(sr.ID, sr.Kind, sr.InternalName, sr.OrderIndex)
		s.externalName = sr.ExternalName
		s.taskDescription = sr.TaskDescription
		s.skipMessage = sr.SkipMessage
		s.allowSkip = sr.AllowSkip
		s.weight = sr.Weight
		s.hints = append(s.hints, sr.Hints...)
		s.resources = append(s.resources, sr.Resources...)
		for m, list := range sr.Updates {
			s.updates[m] = append([]VariableUpdate(nil), list...)
		}
		s.defaultTransition = sr.Default
		s.skipTransitions = append(s.skipTransitions, sr.SkipTransitions...)
		s.stageTransitions = append(s.stageTransitions, sr.StageTransitions...)
		e.stages[s.id] = s
	}
	e.start = r.StartStage

	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("restore exercise %s: %w", r.ID, err)
	}

	if weightsMatch(r.SuffixWeights, e.stages) {
		for k, v := range r.SuffixWeights {
			e.suffixWeights[k] = v
		}
	} else {
		e.GenerateSuffixWeights()
	}
	return e, nil
}

// weightsMatch reports whether a stored suffix weight map may be reused: it
// must be present and only reference stages of the exercise.
func weightsMatch(weights map[StageID]int, stages map[StageID]*Stage) bool {
	if weights == nil {
		return false
	}
	for id := range weights {
		if _, ok := stages[id]; !ok {
			return false
		}
	}
	return true
}

// -----------------------------------------------------------------------------
// Course records
// -----------------------------------------------------------------------------

// Content provider kinds stored in CourseRecord.Provider
const (
	ProviderFixedList = "fixed_list"
	ProviderFolder    = "folder"
)

// CourseRecord is the serialized form of a Course or FrozenCourse
type CourseRecord struct {
	ID          CourseID      `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Language    string        `json:"language,omitempty"`
	ScoringMode ScoringMode   `json:"scoring_mode"`
	Resources   []Resource    `json:"resources,omitempty"`
	Provider    string        `json:"provider"`
	Entries     []CourseEntry `json:"entries,omitempty"`
	Folders     []string      `json:"folders,omitempty"`
	Proxy       *CourseProxy  `json:"proxy,omitempty"`
}

// Record returns the serialized form of the course
func (c *Course) Record() CourseRecord {
	r := CourseRecord{
		ID:          c.id,
		Name:        c.Meta.Name,
		Description: c.Meta.Description,
		Language:    c.Meta.Language,
		ScoringMode: c.scoringMode,
		Resources:   c.Resources(),
	}
	switch p := c.provider.(type) {
	case *FixedListProvider:
		r.Provider = ProviderFixedList
		r.Entries = copyEntries(p.Entries)
	case *FolderProvider:
		r.Provider = ProviderFolder
		r.Folders = append([]string(nil), p.Folders...)
	}
	return r
}

// Record returns the serialized form of the snapshot, proxy included
func (f *FrozenCourse) Record() CourseRecord {
	proxy := f.proxy
	return CourseRecord{
		ID:          f.id,
		Name:        f.meta.Name,
		Description: f.meta.Description,
		Language:    f.meta.Language,
		ScoringMode: f.scoringMode,
		Resources:   f.Resources(),
		Provider:    ProviderFixedList,
		Entries:     f.Entries(),
		Proxy:       &proxy,
	}
}

// CourseFromRecord restores a live course. Records of frozen snapshots are
// rejected with ErrImmutableSnapshot.
func CourseFromRecord(r CourseRecord) (*Course, error) {
	if r.Proxy != nil {
		return nil, fmt.Errorf("restore course %s: %w", r.ID, ErrImmutableSnapshot)
	}
	c := &Course{
		id:          r.ID,
		Meta:        CourseMeta{Name: r.Name, Description: r.Description, Language: r.Language},
		scoringMode: r.ScoringMode,
		resources:   append([]Resource(nil), r.Resources...),
	}
	if c.scoringMode == "" {
		c.scoringMode = ScoringLast
	}
	switch r.Provider {
	case ProviderFixedList, "":
		c.provider = &FixedListProvider{Entries: copyEntries(r.Entries)}
	case ProviderFolder:
		c.provider = &FolderProvider{Folders: append([]string(nil), r.Folders...)}
	default:
		return nil, fmt.Errorf("restore course %s: unknown content provider %q", r.ID, r.Provider)
	}
	return c, nil
}

// FrozenCourseFromRecord restores a frozen course snapshot
func FrozenCourseFromRecord(r CourseRecord) (*FrozenCourse, error) {
	if r.Proxy == nil {
		return nil, fmt.Errorf("restore frozen course %s: record has no proxy", r.ID)
	}
	for _, e := range r.Entries {
		if e.Frozen == nil {
			return nil, fmt.Errorf("restore frozen course %s entry %s: %w", r.ID, e.Exercise, ErrMissingFrozenDependency)
		}
	}
	return &FrozenCourse{
		id:          r.ID,
		meta:        CourseMeta{Name: r.Name, Description: r.Description, Language: r.Language},
		scoringMode: r.ScoringMode,
		resources:   append([]Resource(nil), r.Resources...),
		entries:     copyEntries(r.Entries),
		proxy:       *r.Proxy,
	}, nil
}
