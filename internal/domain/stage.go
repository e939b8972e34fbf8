package domain

// -----------------------------------------------------------------------------
// Transitions
// -----------------------------------------------------------------------------

// Transition is an outgoing edge of a stage. A transition either targets a
// stage, is a repeat marker (Repeat, no target) or is a terminal marker (no
// target, not Repeat). Empty expressions count as satisfied.
type Transition struct {
	Target          StageID    `json:"target"`
	Repeat          bool       `json:"repeat,omitempty"`
	Condition       Expression `json:"condition"`
	StageExpression Expression `json:"stage_expression"`
}

// TransitionTo creates an unconditional transition to the given stage
func TransitionTo(target StageID) Transition {
	return Transition{Target: target}
}

// RepeatTransition creates a transition back to the current stage
func RepeatTransition() Transition {
	return Transition{Repeat: true}
}

// EndTransition creates a transition that ends the exercise
func EndTransition() Transition {
	return Transition{}
}

// When returns a copy of t guarded by the given condition expression
func (t Transition) When(cond Expression) Transition {
	t.Condition = cond
	return t
}

// WhenStage returns a copy of t guarded by the given stage expression
func (t Transition) WhenStage(expr Expression) Transition {
	t.StageExpression = expr
	return t
}

// HasTarget returns true if the transition leads to a concrete stage.
// Repeat markers never have a concrete target.
func (t Transition) HasTarget() bool {
	return !t.Repeat && !t.Target.IsZero()
}

// IsEnd returns true for terminal markers
func (t Transition) IsEnd() bool {
	return !t.Repeat && t.Target.IsZero()
}

// -----------------------------------------------------------------------------
// Stage kinds
// -----------------------------------------------------------------------------

// StageKind is the closed set of stage variants. Graph algorithms never
// switch on it; they use the capability methods on Stage instead.
type StageKind string

const (
	KindMC       StageKind = "mc"
	KindFillIn   StageKind = "fillin"
	KindR        StageKind = "r"
	KindPython   StageKind = "python"
	KindJava     StageKind = "java"
	KindUML      StageKind = "uml"
	KindMolecule StageKind = "molecule"
)

// StageKinds returns all known kinds
func StageKinds() []StageKind {
	return []StageKind{KindMC, KindFillIn, KindR, KindPython, KindJava, KindUML, KindMolecule}
}

// IsValid returns true if k is a known stage kind
func (k StageKind) IsValid() bool {
	for _, known := range StageKinds() {
		if k == known {
			return true
		}
	}
	return false
}

// checkedAsync reports whether submissions of this kind are graded by an
// asynchronous checker job.
func (k StageKind) checkedAsync() bool {
	switch k {
	case KindR, KindPython, KindJava, KindUML, KindMolecule:
		return true
	default:
		return false
	}
}

// -----------------------------------------------------------------------------
// Hints and resources
// -----------------------------------------------------------------------------

// Hint is a text shown on request, reducing the stage score by Malus percent
type Hint struct {
	Text  string `json:"text"`
	Malus int    `json:"malus"`
}

// HintMalusType controls how hint maluses reduce a stage score
type HintMalusType string

const (
	// MalusCutMaximum caps the reachable points at 100 minus all maluses
	MalusCutMaximum HintMalusType = "CUT_MAXIMUM"
	// MalusCutActual scales the achieved points by 100 minus all maluses
	MalusCutActual HintMalusType = "CUT_ACTUAL"
)

// Resource is a file attached to an exercise
type Resource struct {
	ID        ResourceID `json:"id"`
	Filename  string     `json:"filename"`
	MediaType string     `json:"media_type"`
	Content   []byte     `json:"content"`
}

// StageResource places an exercise resource on a stage
type StageResource struct {
	Resource    ResourceID `json:"resource"`
	Description string     `json:"description,omitempty"`
}

// -----------------------------------------------------------------------------
// Stage
// -----------------------------------------------------------------------------

// Stage is one step of an exercise. Stages are owned by an Exercise and are
// only mutated through Exercise.EditStage, which keeps the suffix weight
// cache and the graph invariants consistent.
type Stage struct {
	id              StageID
	kind            StageKind
	internalName    string
	externalName    string
	taskDescription string
	skipMessage     string
	orderIndex      int
	allowSkip       bool
	weight          int
	hints           []Hint
	resources       []StageResource
	updates         map[Moment][]VariableUpdate

	defaultTransition Transition
	skipTransitions   []Transition
	stageTransitions  []Transition
}

func newStage(id StageID, kind StageKind, internalName string, orderIndex int) *Stage {
	return &Stage{
		id:                id,
		kind:              kind,
		internalName:      internalName,
		orderIndex:        orderIndex,
		weight:            1,
		updates:           make(map[Moment][]VariableUpdate),
		defaultTransition: EndTransition(),
	}
}

func (s *Stage) ID() StageID             { return s.id }
func (s *Stage) Kind() StageKind         { return s.kind }
func (s *Stage) InternalName() string    { return s.internalName }
func (s *Stage) ExternalName() string    { return s.externalName }
func (s *Stage) TaskDescription() string { return s.taskDescription }
func (s *Stage) SkipMessage() string     { return s.skipMessage }
func (s *Stage) OrderIndex() int         { return s.orderIndex }
func (s *Stage) AllowSkip() bool         { return s.allowSkip }
func (s *Stage) Weight() int             { return s.weight }

// DefaultTransition returns the transition used when nothing else matches
func (s *Stage) DefaultTransition() Transition { return s.defaultTransition }

// SkipTransitions returns a copy of the ordered skip transitions
func (s *Stage) SkipTransitions() []Transition {
	return append([]Transition(nil), s.skipTransitions...)
}

// StageTransitions returns a copy of the ordered conditional transitions
func (s *Stage) StageTransitions() []Transition {
	return append([]Transition(nil), s.stageTransitions...)
}

// Transitions returns every outgoing transition: default, skip, then stage
func (s *Stage) Transitions() []Transition {
	all := make([]Transition, 0, 1+len(s.skipTransitions)+len(s.stageTransitions))
	all = append(all, s.defaultTransition)
	all = append(all, s.skipTransitions...)
	all = append(all, s.stageTransitions...)
	return all
}

// Hints returns a copy of the ordered hints
func (s *Stage) Hints() []Hint {
	return append([]Hint(nil), s.hints...)
}

// Resources returns a copy of the ordered stage resources
func (s *Stage) Resources() []StageResource {
	return append([]StageResource(nil), s.resources...)
}

// Updates returns a copy of the variable updates for a lifecycle moment
func (s *Stage) Updates(m Moment) []VariableUpdate {
	return append([]VariableUpdate(nil), s.updates[m]...)
}

// IsEndStage returns true if no transition of the stage has a concrete target
func (s *Stage) IsEndStage() bool {
	for _, t := range s.Transitions() {
		if t.HasTarget() {
			return false
		}
	}
	return true
}

// LeadsTo returns true if any transition of the stage targets the given stage
func (s *Stage) LeadsTo(target StageID) bool {
	if target.IsZero() {
		return false
	}
	for _, t := range s.Transitions() {
		if t.HasTarget() && t.Target == target {
			return true
		}
	}
	return false
}

// Targets returns the distinct concrete targets of the stage in edge order
func (s *Stage) Targets() []StageID {
	var out []StageID
	seen := make(map[StageID]bool)
	for _, t := range s.Transitions() {
		if t.HasTarget() && !seen[t.Target] {
			seen[t.Target] = true
			out = append(out, t.Target)
		}
	}
	return out
}

// HasTestcaseTuples returns true for stages graded against testcase tuples
func (s *Stage) HasTestcaseTuples() bool {
	return s.kind == KindR
}

// MustWaitForPendingJobs returns true if the stage may not be left while
// checker jobs for its submission are still running
func (s *Stage) MustWaitForPendingJobs() bool {
	return s.kind.checkedAsync()
}

// clone copies the stage under a new identity. Transition targets and
// variable references are copied verbatim; callers re-link them.
func (s *Stage) clone(id StageID) *Stage {
	c := *s
	c.id = id
	c.hints = append([]Hint(nil), s.hints...)
	c.resources = append([]StageResource(nil), s.resources...)
	c.skipTransitions = append([]Transition(nil), s.skipTransitions...)
	c.stageTransitions = append([]Transition(nil), s.stageTransitions...)
	c.updates = make(map[Moment][]VariableUpdate, len(s.updates))
	for m, list := range s.updates {
		c.updates[m] = append([]VariableUpdate(nil), list...)
	}
	return &c
}

// retarget rewrites every transition target through fn
func (s *Stage) retarget(fn func(Transition) Transition) {
	s.defaultTransition = fn(s.defaultTransition)
	for i := range s.skipTransitions {
		s.skipTransitions[i] = fn(s.skipTransitions[i])
	}
	for i := range s.stageTransitions {
		s.stageTransitions[i] = fn(s.stageTransitions[i])
	}
}
