package mcp

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/freeze"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage/sqlite"
)

type testEnv struct {
	server      *Server
	registry    *exercise.Registry
	submissions *sqlite.SubmissionStore
}

// setupTestServer creates a server over the bundled content and a
// temporary SQLite database
func setupTestServer(t *testing.T) *testEnv {
	t.Helper()

	registry := exercise.NewRegistry(exercise.NewLoader("../../content"))
	if err := registry.Load(); err != nil {
		t.Fatalf("load content: %v", err)
	}

	db, err := sqlite.Open(filepath.Join(t.TempDir(), "jack.db"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	revisions := sqlite.NewRevisionStore(db)
	submissions := sqlite.NewSubmissionStore(db)

	server := NewServer(Config{
		Registry:    registry,
		Revisions:   revisions,
		Freezer:     freeze.NewEngine(revisions, sqlite.NewSnapshotStore(db), logger),
		Submissions: submissions,
		Logger:      logger,
	})
	return &testEnv{server: server, registry: registry, submissions: submissions}
}

func TestNewServer(t *testing.T) {
	env := setupTestServer(t)

	if env.server.mcpServer == nil {
		t.Fatal("expected non-nil MCP server")
	}
	if env.server.GetMCPServer() == nil {
		t.Fatal("expected non-nil underlying MCP server")
	}
}

func TestServerConfig(t *testing.T) {
	// Missing collaborators must not panic at construction
	server := NewServer(Config{})
	if server == nil {
		t.Fatal("expected non-nil server even with empty config")
	}

	ctx := context.Background()
	if _, err := server.handleList(ctx, ListInput{}); !errors.Is(err, errUnavailable) {
		t.Errorf("handleList() error = %v, want errUnavailable", err)
	}
	if _, err := server.handleFreeze(ctx, FreezeInput{Exercise: uuid.NewString()}); !errors.Is(err, errUnavailable) {
		t.Errorf("handleFreeze() error = %v, want errUnavailable", err)
	}
	if _, err := server.handleScore(ctx, ScoreInput{Course: "basics"}); !errors.Is(err, errUnavailable) {
		t.Errorf("handleScore() error = %v, want errUnavailable", err)
	}
}

func TestHandleList(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	out, err := env.server.handleList(ctx, ListInput{})
	if err != nil {
		t.Fatalf("handleList() error = %v", err)
	}
	if len(out.Exercises) != 2 || out.Exercises[0].Slug != "fractions" || out.Exercises[0].Stages != 4 {
		t.Errorf("Exercises = %+v, want fractions (4 stages) and mean", out.Exercises)
	}
	if len(out.Courses) != 1 || out.Courses[0] != "basics" {
		t.Errorf("Courses = %v, want [basics]", out.Courses)
	}

	byKind, err := env.server.handleList(ctx, ListInput{Kind: "r"})
	if err != nil {
		t.Fatalf("handleList(r) error = %v", err)
	}
	if len(byKind.Exercises) != 1 || byKind.Exercises[0].Slug != "mean" {
		t.Errorf("Exercises(r) = %+v, want [mean]", byKind.Exercises)
	}

	if _, err := env.server.handleList(ctx, ListInput{Kind: "essay"}); err == nil {
		t.Error("handleList() should reject unknown kinds")
	}
}

func TestHandleValidate(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name            string
		ref             ExerciseRef
		wantValid       bool
		wantUnreachable []string
		wantEnd         []string
	}{
		{
			name:      "bundled exercise",
			ref:       ExerciseRef{Exercise: "fractions"},
			wantValid: true,
			wantEnd:   []string{"done"},
		},
		{
			name:            "unreachable stage",
			ref:             ExerciseRef{Source: "stages:\n  - name: a\n    kind: mc\n  - name: b\n    kind: mc\n"},
			wantValid:       true,
			wantUnreachable: []string{"b"},
			wantEnd:         []string{"a", "b"},
		},
		{
			name:      "unknown target",
			ref:       ExerciseRef{Source: "stages:\n  - name: a\n    kind: mc\n    default:\n      to: nowhere\n"},
			wantValid: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := env.server.handleValidate(ctx, tt.ref)
			if err != nil {
				t.Fatalf("handleValidate() error = %v", err)
			}
			if out.Valid != tt.wantValid {
				t.Errorf("Valid = %v, want %v (errors %v)", out.Valid, tt.wantValid, out.Errors)
			}
			if !tt.wantValid && len(out.Errors) == 0 {
				t.Error("invalid exercise should report errors")
			}
			if !equalStrings(out.Unreachable, tt.wantUnreachable) {
				t.Errorf("Unreachable = %v, want %v", out.Unreachable, tt.wantUnreachable)
			}
			if tt.wantValid && !equalStrings(out.EndStages, tt.wantEnd) {
				t.Errorf("EndStages = %v, want %v", out.EndStages, tt.wantEnd)
			}
		})
	}

	if _, err := env.server.handleValidate(ctx, ExerciseRef{}); err == nil {
		t.Error("handleValidate() without slug or source should error")
	}
}

func TestHandleSuffixWeights(t *testing.T) {
	env := setupTestServer(t)

	out, err := env.server.handleSuffixWeights(context.Background(), ExerciseRef{Exercise: "fractions"})
	if err != nil {
		t.Fatalf("handleSuffixWeights() error = %v", err)
	}
	want := map[string]int{"common-denominator": 5, "sum": 3, "reduce": 2, "done": 1}
	for name, w := range want {
		if out.Weights[name] != w {
			t.Errorf("Weights[%s] = %d, want %d", name, out.Weights[name], w)
		}
	}
	if out.Start != "common-denominator" || out.Maximum != 5 {
		t.Errorf("Start = %q, Maximum = %d; want common-denominator, 5", out.Start, out.Maximum)
	}
}

func TestHandleSuffixPaths(t *testing.T) {
	env := setupTestServer(t)

	out, err := env.server.handleSuffixPaths(context.Background(), ExerciseRef{Exercise: "fractions"})
	if err != nil {
		t.Fatalf("handleSuffixPaths() error = %v", err)
	}

	paths := out.Paths["sum"]
	if len(paths) != 2 {
		t.Fatalf("Paths[sum] = %+v, want 2 paths", paths)
	}
	best := 0
	for _, p := range paths {
		if p.Stages[0] != "sum" || p.Stages[len(p.Stages)-1] != "done" {
			t.Errorf("path %v should run from sum to done", p.Stages)
		}
		best = max(best, p.Weight)
	}
	if best != 3 {
		t.Errorf("best path weight = %d, want 3", best)
	}
}

func TestHandleResolve(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	tests := []struct {
		name        string
		input       ResolveInput
		wantOutcome string
		wantTarget  string
		wantSource  string
	}{
		{
			name: "wrong answer repeats",
			input: ResolveInput{
				Stage:     "common-denominator",
				Variables: map[string]any{"tries": float64(1)},
				Input:     map[string]any{"value": float64(10)},
			},
			wantOutcome: "repeat",
			wantSource:  "stage",
		},
		{
			name: "right answer follows default",
			input: ResolveInput{
				Stage:     "common-denominator",
				Variables: map[string]any{"tries": float64(1)},
				Input:     map[string]any{"value": float64(12)},
			},
			wantOutcome: "goto",
			wantTarget:  "sum",
			wantSource:  "default",
		},
		{
			name: "out of tries",
			input: ResolveInput{
				Stage:     "common-denominator",
				Variables: map[string]any{"tries": 3},
				Input:     map[string]any{"value": float64(10)},
			},
			wantOutcome: "goto",
			wantTarget:  "sum",
			wantSource:  "default",
		},
		{
			name:        "skip without skip transitions",
			input:       ResolveInput{Stage: "sum", Skip: true},
			wantOutcome: "goto",
			wantTarget:  "done",
			wantSource:  "default",
		},
		{
			name:        "end stage",
			input:       ResolveInput{Stage: "done"},
			wantOutcome: "end",
			wantSource:  "default",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.input.Exercise = "fractions"
			out, err := env.server.handleResolve(ctx, tt.input)
			if err != nil {
				t.Fatalf("handleResolve() error = %v", err)
			}
			if out.Outcome != tt.wantOutcome || out.Target != tt.wantTarget || out.Source != tt.wantSource {
				t.Errorf("handleResolve() = %+v, want %s %q from %s", out, tt.wantOutcome, tt.wantTarget, tt.wantSource)
			}
		})
	}
}

func TestHandleResolve_Errors(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	_, err := env.server.handleResolve(ctx, ResolveInput{
		ExerciseRef: ExerciseRef{Exercise: "fractions"},
		Stage:       "common-denominator",
		Skip:        true,
	})
	if !errors.Is(err, domain.ErrIllegalSkip) {
		t.Errorf("skip error = %v, want ErrIllegalSkip", err)
	}

	_, err = env.server.handleResolve(ctx, ResolveInput{
		ExerciseRef: ExerciseRef{Exercise: "fractions"},
		Stage:       "missing",
	})
	if !errors.Is(err, domain.ErrStageNotFound) {
		t.Errorf("missing stage error = %v, want ErrStageNotFound", err)
	}

	_, err = env.server.handleResolve(ctx, ResolveInput{
		ExerciseRef: ExerciseRef{Exercise: "fractions"},
		Stage:       "common-denominator",
		Variables:   map[string]any{"tries": []any{1}},
	})
	if err == nil {
		t.Error("unsupported variable values should be rejected")
	}
}

func TestHandleImportAndFreeze(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	for _, slug := range []string{"fractions", "mean"} {
		out, err := env.server.handleImport(ctx, ImportInput{Exercise: slug})
		if err != nil {
			t.Fatalf("handleImport(%s) error = %v", slug, err)
		}
		if out.Revision != 1 {
			t.Errorf("handleImport(%s) revision = %d, want 1", slug, out.Revision)
		}
	}
	again, err := env.server.handleImport(ctx, ImportInput{Exercise: "fractions"})
	if err != nil || again.Revision != 2 {
		t.Errorf("second import = %+v, %v; want revision 2", again, err)
	}
	if _, err := env.server.handleImport(ctx, ImportInput{Course: "basics"}); err != nil {
		t.Fatalf("handleImport(basics) error = %v", err)
	}
	if _, err := env.server.handleImport(ctx, ImportInput{Exercise: "fractions", Course: "basics"}); err == nil {
		t.Error("handleImport() with both targets should error")
	}

	frozen, err := env.server.handleFreeze(ctx, FreezeInput{Exercise: "fractions", Revision: 1})
	if err != nil {
		t.Fatalf("handleFreeze(fractions) error = %v", err)
	}
	fractions, _ := env.registry.GetExercise("fractions")
	if frozen.OriginalID != fractions.ID().String() || frozen.Revision != 1 || frozen.Stages != 4 {
		t.Errorf("handleFreeze(fractions) = %+v", frozen)
	}
	if frozen.FrozenID == frozen.OriginalID {
		t.Error("snapshot should have its own identity")
	}

	course, err := env.server.handleFreeze(ctx, FreezeInput{Course: "basics"})
	if err != nil {
		t.Fatalf("handleFreeze(basics) error = %v", err)
	}
	if course.Entries != 2 || course.Revision != 1 {
		t.Errorf("handleFreeze(basics) = %+v, want 2 entries at revision 1", course)
	}

	if _, err := env.server.handleFreeze(ctx, FreezeInput{Exercise: uuid.NewString()}); !errors.Is(err, domain.ErrNotPersisted) {
		t.Errorf("freezing an unsaved exercise error = %v, want ErrNotPersisted", err)
	}
}

func TestHandleScore(t *testing.T) {
	env := setupTestServer(t)
	ctx := context.Background()

	fractions, _ := env.registry.GetExercise("fractions")
	mean, _ := env.registry.GetExercise("mean")
	base := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	saves := []scoring.Submission{
		{Exercise: fractions.ID(), Points: 80, SubmittedAt: base},
		{Exercise: fractions.ID(), Points: 30, SubmittedAt: base.Add(time.Hour)},
		{Exercise: mean.ID(), Points: 50, SubmittedAt: base},
	}
	for _, sub := range saves {
		if err := env.submissions.SaveSubmission(ctx, uuid.New(), sub); err != nil {
			t.Fatalf("SaveSubmission() error = %v", err)
		}
	}

	out, err := env.server.handleScore(ctx, ScoreInput{Course: "basics"})
	if err != nil {
		t.Fatalf("handleScore() error = %v", err)
	}
	// BEST: (80*10 + 50*20) / 30
	if !out.Scored || out.Score != 60 || out.Mode != string(domain.ScoringBest) {
		t.Errorf("handleScore() = %+v, want 60 under BEST", out)
	}
	if len(out.Entries) != 2 || out.Entries[0].Exercise != "fractions" || out.Entries[0].Submissions != 2 {
		t.Errorf("Entries = %+v", out.Entries)
	}

	if _, err := env.server.handleScore(ctx, ScoreInput{Course: "missing"}); !errors.Is(err, domain.ErrCourseNotFound) {
		t.Errorf("handleScore(missing) error = %v, want ErrCourseNotFound", err)
	}
}

func TestToValue(t *testing.T) {
	tests := []struct {
		in   any
		want string
	}{
		{true, "true"},
		{float64(2.5), "2.5"},
		{7, "7"},
		{"x", "x"},
		{nil, ""},
	}
	for _, tt := range tests {
		got, err := toValue(tt.in)
		if err != nil {
			t.Errorf("toValue(%v) error = %v", tt.in, err)
			continue
		}
		if got.String() != tt.want {
			t.Errorf("toValue(%v) = %q, want %q", tt.in, got.String(), tt.want)
		}
	}
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
