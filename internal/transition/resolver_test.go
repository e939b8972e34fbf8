package transition

import (
	"context"
	"errors"
	"testing"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
)

type fixture struct {
	ex     *domain.Exercise
	source *domain.Stage
	t1     *domain.Stage
	t2     *domain.Stage
	t3     *domain.Stage
}

// newFixture builds a source stage with three stage transitions guarded by
// the given conditions and a default transition to t3.
func newFixture(t *testing.T, conds ...string) fixture {
	t.Helper()
	ex := domain.NewExercise("resolve")
	f := fixture{ex: ex}
	var err error
	for _, p := range []**domain.Stage{&f.source, &f.t1, &f.t2, &f.t3} {
		if *p, err = ex.AddStage(domain.KindMC); err != nil {
			t.Fatalf("AddStage() error = %v", err)
		}
	}
	targets := []*domain.Stage{f.t1, f.t2, f.t3}
	err = ex.EditStage(f.source.ID(), func(ed *domain.StageEditor) error {
		for i, c := range conds {
			if err := ed.AddStageTransition(domain.TransitionTo(targets[i].ID()).When(domain.MathExpression(c))); err != nil {
				return err
			}
		}
		return ed.SetDefaultTransition(domain.TransitionTo(f.t3.ID()))
	})
	if err != nil {
		t.Fatalf("EditStage() error = %v", err)
	}
	return f
}

func TestResolve_FirstMatchWins(t *testing.T) {
	f := newFixture(t, "false", "true", "true")
	r := NewResolver(evaluator.NewLocal())

	got, err := r.Resolve(context.Background(), f.source, false, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Kind != KindGoTo || got.Target != f.t2.ID() {
		t.Errorf("Resolve() = %v, want goto T2 %s", got, f.t2.ID())
	}
	if got.Source != SourceStage || got.Index != 1 {
		t.Errorf("Resolve() source = %s #%d, want stage #1", got.Source, got.Index)
	}
}

func TestResolve_FallsBackToDefault(t *testing.T) {
	f := newFixture(t, "false", "[var=x] > 5")
	r := NewResolver(evaluator.NewLocal())

	got, err := r.Resolve(context.Background(), f.source, false, evaluator.Bindings{"x": evaluator.Number(1)})
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Kind != KindGoTo || got.Target != f.t3.ID() || got.Source != SourceDefault {
		t.Errorf("Resolve() = %v, want default goto T3", got)
	}
}

func TestResolve_StageExpressionMustHoldToo(t *testing.T) {
	f := newFixture(t)
	err := f.ex.EditStage(f.source.ID(), func(ed *domain.StageEditor) error {
		if err := ed.AddStageTransition(domain.TransitionTo(f.t1.ID()).
			When(domain.MathExpression("true")).
			WhenStage(domain.MathExpression("[input=choice] == 2"))); err != nil {
			return err
		}
		return ed.AddStageTransition(domain.TransitionTo(f.t2.ID()))
	})
	if err != nil {
		t.Fatalf("EditStage() error = %v", err)
	}
	r := NewResolver(evaluator.NewLocal())

	tests := []struct {
		choice float64
		want   domain.StageID
	}{
		{2, f.t1.ID()},
		{1, f.t2.ID()},
	}
	for _, tt := range tests {
		b := evaluator.Bindings{evaluator.InputPrefix + "choice": evaluator.Number(tt.choice)}
		got, err := r.Resolve(context.Background(), f.source, false, b)
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if got.Target != tt.want {
			t.Errorf("Resolve(choice=%v) target = %s, want %s", tt.choice, got.Target, tt.want)
		}
	}
}

func TestResolve_IllegalSkip(t *testing.T) {
	f := newFixture(t, "true")
	r := NewResolver(evaluator.NewLocal())

	_, err := r.Resolve(context.Background(), f.source, true, nil)
	if !errors.Is(err, domain.ErrIllegalSkip) {
		t.Errorf("Resolve(skip) error = %v, want ErrIllegalSkip", err)
	}
}

func TestResolve_Skip(t *testing.T) {
	f := newFixture(t)
	err := f.ex.EditStage(f.source.ID(), func(ed *domain.StageEditor) error {
		ed.SetAllowSkip(true)
		if err := ed.AddSkipTransition(domain.RepeatTransition().When(domain.MathExpression("[var=tries] < 2"))); err != nil {
			return err
		}
		return ed.AddSkipTransition(domain.EndTransition().When(domain.MathExpression("true")))
	})
	if err != nil {
		t.Fatalf("EditStage() error = %v", err)
	}
	r := NewResolver(evaluator.NewLocal())

	tests := []struct {
		tries float64
		want  Kind
	}{
		{0, KindRepeat},
		{5, KindEnd},
	}
	for _, tt := range tests {
		got, err := r.Resolve(context.Background(), f.source, true, evaluator.Bindings{"tries": evaluator.Number(tt.tries)})
		if err != nil {
			t.Fatalf("Resolve(skip) error = %v", err)
		}
		if got.Kind != tt.want || got.Source != SourceSkip {
			t.Errorf("Resolve(skip, tries=%v) = %v, want %s from skip list", tt.tries, got, tt.want)
		}
	}
}

func TestResolve_SkipWithoutMatchUsesDefault(t *testing.T) {
	f := newFixture(t)
	err := f.ex.EditStage(f.source.ID(), func(ed *domain.StageEditor) error {
		ed.SetAllowSkip(true)
		return ed.AddSkipTransition(domain.TransitionTo(f.t1.ID()).When(domain.MathExpression("false")))
	})
	if err != nil {
		t.Fatalf("EditStage() error = %v", err)
	}

	got, err := NewResolver(evaluator.NewLocal()).Resolve(context.Background(), f.source, true, nil)
	if err != nil {
		t.Fatalf("Resolve(skip) error = %v", err)
	}
	if got.Target != f.t3.ID() || got.Source != SourceDefault {
		t.Errorf("Resolve(skip) = %v, want default", got)
	}
}

func TestResolve_EvaluationErrorPropagates(t *testing.T) {
	f := newFixture(t, "[var=undefined] > 1", "true")

	_, err := NewResolver(evaluator.NewLocal()).Resolve(context.Background(), f.source, false, nil)
	if !errors.Is(err, domain.ErrExpressionEvaluation) {
		t.Errorf("Resolve() error = %v, want ErrExpressionEvaluation", err)
	}
}

func TestResolve_EvaluatorErrorKeepsCause(t *testing.T) {
	f := newFixture(t, "x > 1")
	slow := evaluator.Func(func(context.Context, domain.Expression, evaluator.Bindings) (evaluator.Value, error) {
		return evaluator.Value{}, context.DeadlineExceeded
	})

	_, err := NewResolver(slow).Resolve(context.Background(), f.source, false, nil)
	if !errors.Is(err, domain.ErrExpressionEvaluation) {
		t.Errorf("Resolve() error = %v, want ErrExpressionEvaluation", err)
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Resolve() error = %v, want the evaluator's deadline error kept", err)
	}
}

func TestResolve_EndStage(t *testing.T) {
	f := newFixture(t)
	got, err := NewResolver(evaluator.NewLocal()).Resolve(context.Background(), f.t3, false, nil)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if got.Kind != KindEnd {
		t.Errorf("Resolve(end stage) = %v, want end", got)
	}
}
