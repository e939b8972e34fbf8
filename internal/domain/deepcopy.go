package domain

import "fmt"

// copyMaps records the identity mapping of one deep copy
type copyMaps struct {
	stages    map[StageID]StageID
	resources map[ResourceID]ResourceID
	variables map[VariableID]VariableID
}

// deepCopy copies the exercise under the given identity. Nodes are copied
// first and edges rewritten in a second pass, since a transition may target
// a stage that is copied after its owner.
func (e *Exercise) deepCopy(id ExerciseID) (*Exercise, copyMaps, error) {
	meta := e.Meta
	meta.Tags = append([]string(nil), e.Meta.Tags...)
	c := newExercise(id, meta)
	c.malusType = e.malusType

	maps := copyMaps{
		stages:    make(map[StageID]StageID, len(e.stages)+1),
		resources: make(map[ResourceID]ResourceID, len(e.resources)),
		variables: make(map[VariableID]VariableID, len(e.variables)),
	}

	for _, r := range e.resources {
		cr := r
		cr.ID = GenerateResourceID()
		cr.Content = append([]byte(nil), r.Content...)
		maps.resources[r.ID] = cr.ID
		c.resources = append(c.resources, cr)
	}

	for _, v := range e.variables {
		cv := v
		cv.ID = GenerateVariableID()
		maps.variables[v.ID] = cv.ID
		c.variables = append(c.variables, cv)
	}

	// The zero stage id is the target of repeat and end transitions.
	maps.stages[StageID{}] = StageID{}
	for _, s := range e.Stages() {
		cs := s.clone(GenerateStageID())
		maps.stages[s.id] = cs.id
		c.stages[cs.id] = cs
	}

	var relinkErr error
	for _, cs := range c.stages {
		cs.retarget(func(t Transition) Transition {
			if t.Repeat {
				t.Target = StageID{}
				return t
			}
			mapped, ok := maps.stages[t.Target]
			if !ok && relinkErr == nil {
				relinkErr = fmt.Errorf("copy stage %q -> %s: %w", cs.internalName, t.Target, ErrTargetOutsideExercise)
			}
			t.Target = mapped
			return t
		})
		for i, r := range cs.resources {
			mapped, ok := maps.resources[r.Resource]
			if !ok && relinkErr == nil {
				relinkErr = fmt.Errorf("copy stage %q resource: %w", cs.internalName, ErrUnknownResource)
			}
			cs.resources[i].Resource = mapped
		}
		for m, list := range cs.updates {
			for i, u := range list {
				mapped, ok := maps.variables[u.Variable]
				if !ok && relinkErr == nil {
					relinkErr = fmt.Errorf("copy stage %q %s: %w", cs.internalName, m, ErrUnknownVariable)
				}
				list[i].Variable = mapped
			}
		}
	}
	if relinkErr != nil {
		return nil, copyMaps{}, relinkErr
	}

	if !e.start.IsZero() {
		c.start = maps.stages[e.start]
	}

	for old, w := range e.suffixWeights {
		if mapped, ok := maps.stages[old]; ok {
			c.suffixWeights[mapped] = w
		}
	}
	c.GenerateSuffixWeights()

	return c, maps, nil
}

// Duplicate returns an editable deep copy of the exercise with fresh
// identities for the exercise and everything it owns
func (e *Exercise) Duplicate() (*Exercise, error) {
	c, _, err := e.deepCopy(GenerateExerciseID())
	if err != nil {
		return nil, fmt.Errorf("duplicate exercise %s: %w", e.id, err)
	}
	c.Meta.Name = e.Meta.Name + " (copy)"
	return c, nil
}
