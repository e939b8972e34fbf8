// Package transition decides where a session goes after leaving a stage.
package transition

import (
	"context"
	"fmt"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
)

// Kind is the kind of a resolution outcome
type Kind int

const (
	KindGoTo Kind = iota
	KindRepeat
	KindEnd
)

func (k Kind) String() string {
	switch k {
	case KindGoTo:
		return "goto"
	case KindRepeat:
		return "repeat"
	default:
		return "end"
	}
}

// Source names the transition list the selected transition came from
type Source string

const (
	SourceDefault Source = "default"
	SourceSkip    Source = "skip"
	SourceStage   Source = "stage"
)

// Outcome is the result of resolving a stage
type Outcome struct {
	Kind   Kind
	Target domain.StageID // set for KindGoTo only
	Source Source
	Index  int // position in the source list, 0 for the default transition
}

func (o Outcome) String() string {
	if o.Kind == KindGoTo {
		return fmt.Sprintf("goto %s (%s #%d)", o.Target, o.Source, o.Index)
	}
	return fmt.Sprintf("%s (%s #%d)", o.Kind, o.Source, o.Index)
}

// Resolver selects the next stage. It is a pure decision function: it never
// changes bindings or stages.
type Resolver struct {
	eval evaluator.Evaluator
}

// NewResolver creates a resolver using ev for conditions
func NewResolver(ev evaluator.Evaluator) *Resolver {
	return &Resolver{eval: ev}
}

// Resolve selects the outgoing transition of stage.
//
// On skip, the first skip transition whose condition holds wins; skipping a
// stage that does not allow it fails with domain.ErrIllegalSkip. Otherwise
// the first stage transition whose condition and stage expression both hold
// wins. If nothing matches, the default transition is used. Evaluation
// errors abort resolution.
func (r *Resolver) Resolve(ctx context.Context, stage *domain.Stage, skip bool, b evaluator.Bindings) (Outcome, error) {
	if skip {
		if !stage.AllowSkip() {
			return Outcome{}, fmt.Errorf("skip stage %q: %w", stage.InternalName(), domain.ErrIllegalSkip)
		}
		for i, t := range stage.SkipTransitions() {
			ok, err := evaluator.Test(ctx, r.eval, t.Condition, b)
			if err != nil {
				return Outcome{}, fmt.Errorf("stage %q skip transition %d: %w", stage.InternalName(), i, err)
			}
			if ok {
				return outcomeOf(t, SourceSkip, i), nil
			}
		}
		return outcomeOf(stage.DefaultTransition(), SourceDefault, 0), nil
	}

	for i, t := range stage.StageTransitions() {
		ok, err := evaluator.Test(ctx, r.eval, t.Condition, b)
		if err != nil {
			return Outcome{}, fmt.Errorf("stage %q transition %d condition: %w", stage.InternalName(), i, err)
		}
		if !ok {
			continue
		}
		ok, err = evaluator.Test(ctx, r.eval, t.StageExpression, b)
		if err != nil {
			return Outcome{}, fmt.Errorf("stage %q transition %d stage expression: %w", stage.InternalName(), i, err)
		}
		if ok {
			return outcomeOf(t, SourceStage, i), nil
		}
	}
	return outcomeOf(stage.DefaultTransition(), SourceDefault, 0), nil
}

func outcomeOf(t domain.Transition, src Source, idx int) Outcome {
	switch {
	case t.Repeat:
		return Outcome{Kind: KindRepeat, Source: src, Index: idx}
	case t.Target.IsZero():
		return Outcome{Kind: KindEnd, Source: src, Index: idx}
	default:
		return Outcome{Kind: KindGoTo, Target: t.Target, Source: src, Index: idx}
	}
}
