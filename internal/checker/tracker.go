// Package checker tracks asynchronous checker jobs of stage submissions.
package checker

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

var (
	ErrUnknownJob    = errors.New("unknown checker job")
	ErrJobCompleted  = errors.New("checker job already completed")
	ErrInvalidPoints = errors.New("checker points must be within 0..100")
)

// Status is the state of a checker job
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusTimeout   Status = "timeout"
)

// Key identifies one visit of a stage in a session. A stage entered again
// after a repeat or through a cycle gets a new visit number, so results of
// earlier visits never count for the current one.
type Key struct {
	Session uuid.UUID
	Stage   domain.StageID
	Visit   int
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s#%d", k.Session, k.Stage, k.Visit)
}

// Job asks a checker to grade a stage submission
type Job struct {
	ID         uuid.UUID         `json:"id"`
	SessionID  uuid.UUID         `json:"session_id"`
	StageID    domain.StageID    `json:"stage_id"`
	Visit      int               `json:"visit"`
	Kind       domain.StageKind  `json:"kind"`
	Submission map[string]string `json:"submission"`
	Timeout    int               `json:"timeout"` // seconds
	CreatedAt  time.Time         `json:"created_at"`
}

// NewJob creates a job with a fresh id
func NewJob(key Key, kind domain.StageKind, submission map[string]string) *Job {
	return &Job{
		ID:         uuid.New(),
		SessionID:  key.Session,
		StageID:    key.Stage,
		Visit:      key.Visit,
		Kind:       kind,
		Submission: submission,
		CreatedAt:  time.Now(),
	}
}

// Key returns the stage submission the job belongs to
func (j *Job) Key() Key {
	return Key{Session: j.SessionID, Stage: j.StageID, Visit: j.Visit}
}

// Result is the outcome of a checker job
type Result struct {
	JobID       uuid.UUID     `json:"job_id"`
	Status      Status        `json:"status"`
	Points      int           `json:"points"`
	Feedback    string        `json:"feedback,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
	CompletedAt time.Time     `json:"completed_at"`
}

// OK reports whether the checker graded the submission
func (r Result) OK() bool {
	return r.Status == StatusCompleted
}

type jobEntry struct {
	key    Key
	status Status
}

// Tracker counts pending checker jobs per stage submission and matches
// results to their job by id, regardless of arrival order. For every key
// only the result of the most recently registered job is kept. Tracker is
// safe for concurrent use.
type Tracker struct {
	mu         sync.Mutex
	jobs       map[uuid.UUID]*jobEntry
	pending    map[Key]int
	latest     map[Key]uuid.UUID
	results    map[Key]Result
	onComplete func(Key, Result)
}

// NewTracker creates an empty tracker
func NewTracker() *Tracker {
	return &Tracker{
		jobs:    make(map[uuid.UUID]*jobEntry),
		pending: make(map[Key]int),
		latest:  make(map[Key]uuid.UUID),
		results: make(map[Key]Result),
	}
}

// OnComplete registers a callback invoked for every result that becomes the
// current result of its key. It runs outside the tracker lock.
func (t *Tracker) OnComplete(fn func(Key, Result)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.onComplete = fn
}

// Register records job as pending
func (t *Tracker) Register(job *Job) {
	t.mu.Lock()
	defer t.mu.Unlock()

	key := job.Key()
	t.jobs[job.ID] = &jobEntry{key: key, status: StatusPending}
	t.pending[key]++
	t.latest[key] = job.ID
	delete(t.results, key)
}

// Complete records the result of a registered job. Results of superseded
// jobs only release their pending slot.
func (t *Tracker) Complete(r Result) (Key, error) {
	if r.Status == StatusCompleted && (r.Points < 0 || r.Points > 100) {
		return Key{}, fmt.Errorf("job %s: %w", r.JobID, ErrInvalidPoints)
	}

	t.mu.Lock()
	entry, ok := t.jobs[r.JobID]
	if !ok {
		t.mu.Unlock()
		return Key{}, fmt.Errorf("job %s: %w", r.JobID, ErrUnknownJob)
	}
	if entry.status != StatusPending {
		t.mu.Unlock()
		return entry.key, fmt.Errorf("job %s: %w", r.JobID, ErrJobCompleted)
	}

	if r.Status == "" {
		r.Status = StatusCompleted
	}
	entry.status = r.Status
	if t.pending[entry.key] > 0 {
		t.pending[entry.key]--
	}
	current := t.latest[entry.key] == r.JobID
	if current {
		t.results[entry.key] = r
	}
	fn := t.onComplete
	t.mu.Unlock()

	if current && fn != nil {
		fn(entry.key, r)
	}
	return entry.key, nil
}

// Pending returns the number of unfinished jobs of key
func (t *Tracker) Pending(key Key) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending[key]
}

// Result returns the result of the latest job of key once it arrived
func (t *Tracker) Result(key Key) (Result, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	r, ok := t.results[key]
	return r, ok
}

// Forget drops all state of a session
func (t *Tracker) Forget(session uuid.UUID) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for id, e := range t.jobs {
		if e.key.Session == session {
			delete(t.jobs, id)
		}
	}
	for k := range t.pending {
		if k.Session == session {
			delete(t.pending, k)
		}
	}
	for k := range t.latest {
		if k.Session == session {
			delete(t.latest, k)
			delete(t.results, k)
		}
	}
}
