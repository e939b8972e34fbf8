package checker

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
)

// RuleField is the submission field that carries the grading rule
const RuleField = "rule"

// ErrNoRule is returned for jobs without a grading rule
var ErrNoRule = errors.New("submission has no grading rule")

// Grader grades a job by evaluating its rule with every other submission
// field bound as [input=field]. A boolean rule yields 100 or 0 points, a
// numeric rule yields its value clamped to 0..100.
type Grader struct {
	eval   evaluator.Evaluator
	runner ProgramRunner
}

// NewGrader creates a grader using ev for rules
func NewGrader(ev evaluator.Evaluator) *Grader {
	if ev == nil {
		ev = evaluator.NewLocal()
	}
	return &Grader{eval: ev}
}

// Grade runs the program of a code submission when a runner is set and
// evaluates the rule of job otherwise
func (g *Grader) Grade(ctx context.Context, job *Job) (*Result, error) {
	if lang, ok := g.gradesProgram(job); ok {
		return g.gradeProgram(ctx, job, lang)
	}

	rule, ok := job.Submission[RuleField]
	if !ok || rule == "" {
		return nil, fmt.Errorf("job %s: %w", job.ID, ErrNoRule)
	}

	b := make(evaluator.Bindings, len(job.Submission))
	for field, raw := range job.Submission {
		if field == RuleField {
			continue
		}
		b[evaluator.InputPrefix+field] = evaluator.ParseValue(raw)
	}

	v, err := evaluator.Eval(ctx, g.eval, domain.MathExpression(rule), b)
	if err != nil {
		return nil, err
	}

	var points int
	switch v.Kind() {
	case evaluator.KindBool:
		if ok, _ := v.AsBool(); ok {
			points = 100
		}
	case evaluator.KindNumber:
		n, _ := v.AsNumber()
		points = int(math.Round(math.Max(0, math.Min(100, n))))
	default:
		return nil, fmt.Errorf("job %s: rule yields %s: %w", job.ID, v.Kind(), domain.ErrExpressionEvaluation)
	}

	return &Result{
		Status:   StatusCompleted,
		Points:   points,
		Feedback: fmt.Sprintf("rule evaluated to %s", v),
	}, nil
}
