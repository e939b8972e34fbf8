package checker

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/sandbox"
)

// Submission fields of program stages. The test code runs after the
// student's code in the same program.
const (
	CodeField = "code"
	TestField = "test"
)

// maxFeedback caps the program output kept as feedback
const maxFeedback = 2000

// ProgramRunner runs a complete program in an isolated environment
type ProgramRunner interface {
	Run(ctx context.Context, lang sandbox.Language, program string) (*sandbox.ExecResult, error)
}

// WithRunner lets g grade R and Python submissions that carry code. The
// program's last output line is its score; a program that prints no number
// scores 100 when it exits cleanly.
func (g *Grader) WithRunner(r ProgramRunner) *Grader {
	g.runner = r
	return g
}

func (g *Grader) gradesProgram(job *Job) (sandbox.Language, bool) {
	if g.runner == nil {
		return "", false
	}
	if _, ok := job.Submission[CodeField]; !ok {
		return "", false
	}
	var lang sandbox.Language
	switch job.Kind {
	case domain.KindR:
		lang = sandbox.LanguageR
	case domain.KindPython:
		lang = sandbox.LanguagePython
	default:
		return "", false
	}
	return lang, true
}

func (g *Grader) gradeProgram(ctx context.Context, job *Job, lang sandbox.Language) (*Result, error) {
	program := job.Submission[CodeField]
	if test := job.Submission[TestField]; test != "" {
		program += "\n" + test + "\n"
	}

	res, err := g.runner.Run(ctx, lang, program)
	if err != nil {
		return nil, fmt.Errorf("job %s: run %s program: %w", job.ID, lang, err)
	}
	if !res.OK() {
		return &Result{
			Status:   StatusCompleted,
			Points:   0,
			Feedback: truncate(fmt.Sprintf("exit code %d\n%s", res.ExitCode, res.Stderr)),
		}, nil
	}

	points := 100
	if n, ok := lastNumber(res.Stdout); ok {
		points = int(math.Round(math.Max(0, math.Min(100, n))))
	}
	return &Result{
		Status:   StatusCompleted,
		Points:   points,
		Feedback: truncate(res.Stdout),
	}, nil
}

// lastNumber parses the last non-empty output line, dropping an R index
// prefix such as "[1]"
func lastNumber(out string) (float64, bool) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	last := strings.TrimSpace(lines[len(lines)-1])
	if strings.HasPrefix(last, "[") {
		if i := strings.Index(last, "]"); i >= 0 {
			last = strings.TrimSpace(last[i+1:])
		}
	}
	n, err := strconv.ParseFloat(last, 64)
	if err != nil || math.IsNaN(n) {
		return 0, false
	}
	return n, true
}

func truncate(s string) string {
	if len(s) <= maxFeedback {
		return s
	}
	return s[:maxFeedback] + "..."
}
