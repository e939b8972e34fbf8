package checker

import (
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

func newKey() Key {
	return Key{Session: uuid.New(), Stage: domain.GenerateStageID()}
}

func TestTracker_MatchesByJobID(t *testing.T) {
	tr := NewTracker()
	k1, k2 := newKey(), newKey()
	j1 := NewJob(k1, domain.KindR, map[string]string{"answer": "1"})
	j2 := NewJob(k2, domain.KindPython, nil)
	tr.Register(j1)
	tr.Register(j2)

	// j2 finishes first
	if key, err := tr.Complete(Result{JobID: j2.ID, Status: StatusCompleted, Points: 40}); err != nil || key != k2 {
		t.Fatalf("Complete(j2) = %v, %v; want %v", key, err, k2)
	}
	if tr.Pending(k1) != 1 || tr.Pending(k2) != 0 {
		t.Errorf("Pending = %d, %d; want 1, 0", tr.Pending(k1), tr.Pending(k2))
	}
	if _, ok := tr.Result(k1); ok {
		t.Error("k1 should have no result yet")
	}

	if _, err := tr.Complete(Result{JobID: j1.ID, Points: 90}); err != nil {
		t.Fatalf("Complete(j1) error = %v", err)
	}
	r, ok := tr.Result(k1)
	if !ok || r.Points != 90 || !r.OK() {
		t.Errorf("Result(k1) = %+v, %v; want 90 completed", r, ok)
	}
}

func TestTracker_LatestJobWins(t *testing.T) {
	tr := NewTracker()
	key := newKey()
	old := NewJob(key, domain.KindJava, nil)
	latest := NewJob(key, domain.KindJava, nil)
	tr.Register(old)
	tr.Register(latest)

	if tr.Pending(key) != 2 {
		t.Fatalf("Pending() = %d, want 2", tr.Pending(key))
	}

	var notified []Result
	tr.OnComplete(func(_ Key, r Result) { notified = append(notified, r) })

	_, _ = tr.Complete(Result{JobID: latest.ID, Status: StatusCompleted, Points: 70})
	_, _ = tr.Complete(Result{JobID: old.ID, Status: StatusCompleted, Points: 10})

	r, _ := tr.Result(key)
	if r.Points != 70 {
		t.Errorf("Result() points = %d, want 70 from the latest job", r.Points)
	}
	if tr.Pending(key) != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending(key))
	}
	if len(notified) != 1 {
		t.Errorf("notifications = %d, want 1", len(notified))
	}
}

func TestTracker_Errors(t *testing.T) {
	tr := NewTracker()
	key := newKey()
	job := NewJob(key, domain.KindUML, nil)
	tr.Register(job)

	tests := []struct {
		name   string
		result Result
		want   error
	}{
		{"unknown job", Result{JobID: uuid.New()}, ErrUnknownJob},
		{"points out of range", Result{JobID: job.ID, Status: StatusCompleted, Points: 101}, ErrInvalidPoints},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := tr.Complete(tt.result); !errors.Is(err, tt.want) {
				t.Errorf("Complete() error = %v, want %v", err, tt.want)
			}
		})
	}

	if _, err := tr.Complete(Result{JobID: job.ID, Status: StatusFailed, Error: "crashed"}); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, err := tr.Complete(Result{JobID: job.ID, Status: StatusCompleted}); !errors.Is(err, ErrJobCompleted) {
		t.Errorf("duplicate Complete() error = %v, want ErrJobCompleted", err)
	}
	if r, _ := tr.Result(key); r.OK() {
		t.Error("failed job should not report OK")
	}
}

func TestTracker_Forget(t *testing.T) {
	tr := NewTracker()
	key := newKey()
	job := NewJob(key, domain.KindMolecule, nil)
	tr.Register(job)

	tr.Forget(key.Session)

	if tr.Pending(key) != 0 {
		t.Errorf("Pending() = %d after Forget, want 0", tr.Pending(key))
	}
	if _, err := tr.Complete(Result{JobID: job.ID}); !errors.Is(err, ErrUnknownJob) {
		t.Errorf("Complete() after Forget error = %v, want ErrUnknownJob", err)
	}
}

func TestTracker_ConcurrentSafe(t *testing.T) {
	tr := NewTracker()
	key := newKey()
	jobs := make([]*Job, 50)
	for i := range jobs {
		jobs[i] = NewJob(key, domain.KindR, nil)
		tr.Register(jobs[i])
	}

	var wg sync.WaitGroup
	for _, j := range jobs {
		wg.Add(1)
		go func(id uuid.UUID) {
			defer wg.Done()
			_, _ = tr.Complete(Result{JobID: id, Status: StatusCompleted, Points: 50})
			_ = tr.Pending(key)
		}(j.ID)
	}
	wg.Wait()

	if tr.Pending(key) != 0 {
		t.Errorf("Pending() = %d, want 0", tr.Pending(key))
	}
}
