package scoring

import (
	"testing"
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

func TestTotalScore(t *testing.T) {
	s1, s2 := domain.GenerateStageID(), domain.GenerateStageID()

	tests := []struct {
		name    string
		results []StageResult
		want    int
	}{
		{
			name: "weighted mean rounds half up",
			results: []StageResult{
				{Stage: s1, Points: 100, Weight: 2},
				{Stage: s2, Points: 0, Weight: 1},
			},
			want: 67,
		},
		{
			name: "exact half",
			results: []StageResult{
				{Stage: s1, Points: 50, Weight: 1},
				{Stage: s2, Points: 51, Weight: 1},
			},
			want: 51,
		},
		{
			name:    "nothing counted",
			results: nil,
			want:    0,
		},
		{
			name: "manual result wins",
			results: []StageResult{
				{Stage: s1, Points: 10, Weight: 1, Manual: ptr(90), HintMaluses: []int{50}},
			},
			want: 90,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TotalScore(tt.results, domain.MalusCutMaximum); got != tt.want {
				t.Errorf("TotalScore() = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestApplyHintMalus(t *testing.T) {
	tests := []struct {
		name    string
		points  int
		maluses []int
		typ     domain.HintMalusType
		want    int
	}{
		{"no hints", 80, nil, domain.MalusCutMaximum, 80},
		{"cut maximum below cap", 60, []int{20}, domain.MalusCutMaximum, 60},
		{"cut maximum caps", 100, []int{20, 10}, domain.MalusCutMaximum, 70},
		{"cut maximum floor", 100, []int{80, 40}, domain.MalusCutMaximum, 0},
		{"cut actual scales", 80, []int{25}, domain.MalusCutActual, 60},
		{"cut actual cumulates", 100, []int{10, 20}, domain.MalusCutActual, 70},
		{"cut actual rounds", 33, []int{50}, domain.MalusCutActual, 17},
		{"cut actual floor", 100, []int{150}, domain.MalusCutActual, 0},
		{"no malus type", 90, []int{50}, "", 90},
		{"points clamp", 140, nil, domain.MalusCutMaximum, 100},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ApplyHintMalus(tt.points, tt.maluses, tt.typ); got != tt.want {
				t.Errorf("ApplyHintMalus(%d, %v, %s) = %d, want %d", tt.points, tt.maluses, tt.typ, got, tt.want)
			}
		})
	}
}

func TestMaxRemainingScore(t *testing.T) {
	s1, s2, s3 := domain.GenerateStageID(), domain.GenerateStageID(), domain.GenerateStageID()
	weights := map[domain.StageID]int{s1: 10, s2: 8, s3: 5}

	// s1 (weight 2) scored 50, the student now sits at s2.
	results := []StageResult{{Stage: s1, Points: 50, Weight: 2}}

	// (50*2 + 100*8) / (2 + 8) = 90
	if got := MaxRemainingScore(results, domain.MalusCutMaximum, weights, s2); got != 90 {
		t.Errorf("MaxRemainingScore(at s2) = %d, want 90", got)
	}

	// Already graded s2 (weight 3) with 0: remaining is 8-3 = 5.
	// (100 + 0 + 500) / (2 + 3 + 5) = 60
	results = append(results, StageResult{Stage: s2, Points: 0, Weight: 3})
	if got := MaxRemainingScore(results, domain.MalusCutMaximum, weights, s2); got != 60 {
		t.Errorf("MaxRemainingScore(after s2) = %d, want 60", got)
	}

	// A stage without suffix path adds nothing.
	if got := MaxRemainingScore(results, domain.MalusCutMaximum, weights, domain.GenerateStageID()); got != TotalScore(results, domain.MalusCutMaximum) {
		t.Errorf("MaxRemainingScore(no suffix) = %d, want total score", got)
	}

	if got := MaxRemainingScore(nil, domain.MalusCutMaximum, weights, s1); got != 100 {
		t.Errorf("MaxRemainingScore(start) = %d, want 100", got)
	}
}

func TestRunningScore(t *testing.T) {
	s1, s2 := domain.GenerateStageID(), domain.GenerateStageID()
	weights := map[domain.StageID]int{s1: 3, s2: 2}
	results := []StageResult{{Stage: s1, Points: 100, Weight: 1}}

	// 100 / (1 + 2) = 33
	if got := RunningScore(results, domain.MalusCutMaximum, weights, s2); got != 33 {
		t.Errorf("RunningScore() = %d, want 33", got)
	}
	if got := RunningScore(nil, domain.MalusCutMaximum, nil, s1); got != 100 {
		t.Errorf("RunningScore(empty) = %d, want 100", got)
	}
}

func TestPath(t *testing.T) {
	s1, s2, s3 := domain.GenerateStageID(), domain.GenerateStageID(), domain.GenerateStageID()
	var p Path

	p.Add(StageResult{Stage: s1, Points: 100, Weight: 1})
	p.Add(StageResult{Stage: s2, Points: 20, Weight: 1})
	p.Repeat()
	p.Add(StageResult{Stage: s2, Points: 80, Weight: 1})

	if p.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", p.Len())
	}
	if last, _ := p.Last(); last.Points != 80 {
		t.Errorf("repeated stage result = %d, want 80", last.Points)
	}

	p.Add(StageResult{Stage: s3, Points: 0, Weight: 1})
	if !p.Erase(s2) {
		t.Fatal("Erase(s2) = false")
	}
	got := p.Results()
	if len(got) != 1 || got[0].Stage != s1 {
		t.Errorf("Results() after erase = %+v, want only s1", got)
	}
	if p.Erase(s3) {
		t.Error("Erase() of a dropped stage should report false")
	}
}

func TestSelectSubmission(t *testing.T) {
	ex := domain.GenerateExerciseID()
	t0 := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	subs := []Submission{
		{Exercise: ex, Points: 40, SubmittedAt: t0},
		{Exercise: ex, Points: 90, SubmittedAt: t0.Add(time.Hour)},
		{Exercise: ex, Points: 70, SubmittedAt: t0.Add(2 * time.Hour)},
	}

	last, _ := SelectSubmission(subs, domain.ScoringLast)
	if last.Points != 70 {
		t.Errorf("LAST = %d, want 70", last.Points)
	}
	best, _ := SelectSubmission(subs, domain.ScoringBest)
	if best.Points != 90 {
		t.Errorf("BEST = %d, want 90", best.Points)
	}
	if _, ok := SelectSubmission(nil, domain.ScoringBest); ok {
		t.Error("SelectSubmission(nil) should report no submission")
	}
}

func TestCourseScore(t *testing.T) {
	a, b := domain.GenerateExerciseID(), domain.GenerateExerciseID()
	frozenB := domain.GenerateExerciseID()
	entries := []domain.CourseEntry{
		{Exercise: a, Points: 10},
		{Exercise: b, Frozen: &domain.FrozenRef{ID: frozenB, Revision: 3}, Points: 30},
	}
	subs := map[domain.ExerciseID][]Submission{
		a:       {{Exercise: a, Points: 100}},
		frozenB: {{Exercise: frozenB, Points: 50}},
		b:       {{Exercise: b, Points: 100}}, // live exercise is not played
	}

	// (100*10 + 50*30) / 40 = 62.5 -> 63
	got, ok := CourseScore(entries, domain.ScoringLast, subs)
	if !ok || got != 63 {
		t.Errorf("CourseScore() = %d, %v; want 63, true", got, ok)
	}

	if _, ok := CourseScore(nil, domain.ScoringLast, subs); ok {
		t.Error("CourseScore() without points should report false")
	}
}

func ptr(v int) *int { return &v }
