package main

import (
	"bytes"
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/queue"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
)

type recordingSink struct {
	mu   sync.Mutex
	subs []scoring.Submission
}

func (r *recordingSink) SaveSubmission(_ context.Context, _ uuid.UUID, sub scoring.Submission) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subs = append(r.subs, sub)
	return nil
}

func TestPlayLoop(t *testing.T) {
	ex, err := exercise.LoadExerciseFile("../../content/exercises/fractions.yaml")
	if err != nil {
		t.Fatalf("LoadExerciseFile() error = %v", err)
	}

	sink := &recordingSink{}
	ctx := context.Background()
	session, err := player.Start(ctx, ex, player.Options{Submissions: sink})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	script := strings.Join([]string{
		"hint",
		"submit 100 value=10",
		"submit 100 value=12",
		"check value=1",
		"skip",
		"submit 80",
	}, "\n")
	var out bytes.Buffer
	if err := playLoop(ctx, session, nil, strings.NewReader(script), &out); err != nil {
		t.Fatalf("playLoop() error = %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"hint (-20%): List the multiples of 6.",
		"repeat",
		"== Sum",
		"error: request check",
		"finished with",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}

	if !session.Finished() {
		t.Error("session should be finished")
	}
	if len(sink.subs) != 1 || sink.subs[0].Exercise != ex.ID() {
		t.Errorf("submissions = %+v, want one for %s", sink.subs, ex.ID())
	}
}

// trackingQueue registers published jobs with the tracker
type trackingQueue struct{ tracker *checker.Tracker }

func (q trackingQueue) PublishJob(_ context.Context, job *checker.Job) error {
	q.tracker.Register(job)
	return nil
}

// gradingWatcher grades every watched job at once with a fixed score
type gradingWatcher struct {
	tracker  *checker.Tracker
	points   int
	handlers map[string]queue.ResultHandler
}

func (w *gradingWatcher) Subscribe(jobID string, handler queue.ResultHandler) {
	w.handlers[jobID] = handler
	r := checker.Result{JobID: uuid.MustParse(jobID), Status: checker.StatusCompleted, Points: w.points}
	if _, err := w.tracker.Complete(r); err != nil {
		panic(err)
	}
	handler(&r)
}

func (w *gradingWatcher) Unsubscribe(jobID string) { delete(w.handlers, jobID) }

func TestPlayLoop_AnnouncesCheckerResults(t *testing.T) {
	ex, err := exercise.LoadExerciseFile("../../content/exercises/mean.yaml")
	if err != nil {
		t.Fatalf("LoadExerciseFile() error = %v", err)
	}
	tracker := checker.NewTracker()
	ctx := context.Background()
	session, err := player.Start(ctx, ex, player.Options{Tracker: tracker, Jobs: trackingQueue{tracker}})
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	watch := &gradingWatcher{tracker: tracker, points: 75, handlers: make(map[string]queue.ResultHandler)}
	var out bytes.Buffer
	if err := playLoop(ctx, session, watch, strings.NewReader("check code=mean(x)\nsubmit\nquit\n"), &out); err != nil {
		t.Fatalf("playLoop() error = %v", err)
	}

	got := out.String()
	if !strings.Contains(got, "completed: 75 points") {
		t.Errorf("output missing the checker result:\n%s", got)
	}
	if len(watch.handlers) != 0 {
		t.Errorf("handlers left = %d, want 0 after the result", len(watch.handlers))
	}
	if session.Current().InternalName() != "interpret" {
		t.Errorf("current stage = %q, want interpret after grading code", session.Current().InternalName())
	}
}

func TestPlayLoop_QuitLeavesSessionOpen(t *testing.T) {
	ex, err := exercise.LoadExerciseFile("../../content/exercises/fractions.yaml")
	if err != nil {
		t.Fatal(err)
	}
	sink := &recordingSink{}
	session, err := player.Start(context.Background(), ex, player.Options{Submissions: sink})
	if err != nil {
		t.Fatal(err)
	}

	var out bytes.Buffer
	if err := playLoop(context.Background(), session, nil, strings.NewReader("score\nquit\nsubmit 100\n"), &out); err != nil {
		t.Fatalf("playLoop() error = %v", err)
	}
	if session.Finished() {
		t.Error("quit should not finish the session")
	}
	if len(sink.subs) != 0 {
		t.Errorf("submissions = %d, want 0", len(sink.subs))
	}
	if !strings.Contains(out.String(), "best reachable") {
		t.Errorf("score output missing:\n%s", out.String())
	}
}

func TestParseSubmission(t *testing.T) {
	sub, err := parseSubmission([]string{"70", "value=12", "name=x"})
	if err != nil {
		t.Fatalf("parseSubmission() error = %v", err)
	}
	if sub.Points == nil || *sub.Points != 70 {
		t.Errorf("Points = %v, want 70", sub.Points)
	}
	if len(sub.Input) != 2 || sub.Input["value"].String() != "12" {
		t.Errorf("Input = %v", sub.Input)
	}

	sub, err = parseSubmission([]string{"value=12"})
	if err != nil || sub.Points != nil {
		t.Errorf("answer only: Points = %v, err = %v; want nil, nil", sub.Points, err)
	}

	for _, bad := range []string{"101", "-1", "lots"} {
		if _, err := parseSubmission([]string{bad}); err == nil {
			t.Errorf("parseSubmission(%q) should error", bad)
		}
	}
}
