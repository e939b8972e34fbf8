package domain

import "fmt"

// StageEditor mutates one stage of an exercise. It is only valid inside the
// callback passed to Exercise.EditStage.
type StageEditor struct {
	ex    *Exercise
	stage *Stage
}

// EditStage runs fn with an editor for the given stage. Every edit marks the
// suffix weight cache stale.
func (e *Exercise) EditStage(id StageID, fn func(ed *StageEditor) error) error {
	s, ok := e.stages[id]
	if !ok {
		return fmt.Errorf("edit stage %s: %w", id, ErrStageNotFound)
	}
	defer e.invalidate()
	return fn(&StageEditor{ex: e, stage: s})
}

// Stage returns the stage being edited
func (ed *StageEditor) Stage() *Stage { return ed.stage }

// SetInternalName renames the stage; names are unique within the exercise
func (ed *StageEditor) SetInternalName(name string) error {
	if other, ok := ed.ex.StageByInternalName(name); ok && other.id != ed.stage.id {
		return fmt.Errorf("rename stage to %q: %w", name, ErrDuplicateStageName)
	}
	ed.stage.internalName = name
	return nil
}

func (ed *StageEditor) SetExternalName(name string)    { ed.stage.externalName = name }
func (ed *StageEditor) SetTaskDescription(text string) { ed.stage.taskDescription = text }
func (ed *StageEditor) SetSkipMessage(text string)     { ed.stage.skipMessage = text }
func (ed *StageEditor) SetAllowSkip(allow bool)        { ed.stage.allowSkip = allow }

// SetWeight changes the stage weight used for scoring and suffix weights
func (ed *StageEditor) SetWeight(w int) error {
	if w <= 0 {
		return fmt.Errorf("set weight %d: %w", w, ErrInvalidWeight)
	}
	ed.stage.weight = w
	return nil
}

// AddHint appends a hint
func (ed *StageEditor) AddHint(h Hint) error {
	if h.Malus < 0 || h.Malus > 100 {
		return fmt.Errorf("hint malus must be between 0 and 100, got %d", h.Malus)
	}
	ed.stage.hints = append(ed.stage.hints, h)
	return nil
}

// AddResource places an exercise resource on the stage
func (ed *StageEditor) AddResource(r StageResource) error {
	if _, ok := ed.ex.Resource(r.Resource); !ok {
		return fmt.Errorf("add stage resource %s: %w", r.Resource, ErrUnknownResource)
	}
	ed.stage.resources = append(ed.stage.resources, r)
	return nil
}

// AddUpdate appends a variable update to the list of the given moment
func (ed *StageEditor) AddUpdate(m Moment, u VariableUpdate) error {
	if !m.IsValid() {
		return fmt.Errorf("add update: unknown moment %q", m)
	}
	if _, ok := ed.ex.Variable(u.Variable); !ok {
		return fmt.Errorf("add update %s: %w", m, ErrUnknownVariable)
	}
	ed.stage.updates[m] = append(ed.stage.updates[m], u)
	return nil
}

// MoveUpdate reorders the update list of the given moment
func (ed *StageEditor) MoveUpdate(m Moment, from, to int) error {
	list := ed.stage.updates[m]
	if from < 0 || to < 0 || from >= len(list) || to >= len(list) {
		return fmt.Errorf("move update %s %d -> %d: index out of range", m, from, to)
	}
	u := list[from]
	list = append(list[:from], list[from+1:]...)
	ed.stage.updates[m] = append(list[:to], append([]VariableUpdate{u}, list[to:]...)...)
	return nil
}

// SetDefaultTransition replaces the default transition
func (ed *StageEditor) SetDefaultTransition(t Transition) error {
	if err := ed.checkTarget(t); err != nil {
		return err
	}
	ed.stage.defaultTransition = t
	return nil
}

// AddSkipTransition appends a skip transition
func (ed *StageEditor) AddSkipTransition(t Transition) error {
	if err := ed.checkTarget(t); err != nil {
		return err
	}
	ed.stage.skipTransitions = append(ed.stage.skipTransitions, t)
	return nil
}

// AddStageTransition appends a conditional stage transition
func (ed *StageEditor) AddStageTransition(t Transition) error {
	if err := ed.checkTarget(t); err != nil {
		return err
	}
	ed.stage.stageTransitions = append(ed.stage.stageTransitions, t)
	return nil
}

// RemoveSkipTransition deletes the skip transition at index i
func (ed *StageEditor) RemoveSkipTransition(i int) error {
	list, err := removeAt(ed.stage.skipTransitions, i)
	if err != nil {
		return err
	}
	ed.stage.skipTransitions = list
	return nil
}

// RemoveStageTransition deletes the stage transition at index i
func (ed *StageEditor) RemoveStageTransition(i int) error {
	list, err := removeAt(ed.stage.stageTransitions, i)
	if err != nil {
		return err
	}
	ed.stage.stageTransitions = list
	return nil
}

// MoveStageTransition changes the evaluation order of stage transitions
func (ed *StageEditor) MoveStageTransition(from, to int) error {
	list := ed.stage.stageTransitions
	if from < 0 || to < 0 || from >= len(list) || to >= len(list) {
		return fmt.Errorf("move stage transition %d -> %d: %w", from, to, ErrTransitionIndexOutRange)
	}
	t := list[from]
	list = append(list[:from], list[from+1:]...)
	ed.stage.stageTransitions = append(list[:to], append([]Transition{t}, list[to:]...)...)
	return nil
}

func (ed *StageEditor) checkTarget(t Transition) error {
	if !t.HasTarget() {
		return nil
	}
	if _, ok := ed.ex.stages[t.Target]; !ok {
		return fmt.Errorf("stage %q -> %s: %w", ed.stage.internalName, t.Target, ErrTargetOutsideExercise)
	}
	return nil
}

func removeAt(list []Transition, i int) ([]Transition, error) {
	if i < 0 || i >= len(list) {
		return nil, fmt.Errorf("transition %d: %w", i, ErrTransitionIndexOutRange)
	}
	return append(list[:i], list[i+1:]...), nil
}
