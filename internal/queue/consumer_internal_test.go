package queue

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

func TestConsumerConfig_WithDefaults(t *testing.T) {
	tests := []struct {
		name string
		in   ConsumerConfig
		want ConsumerConfig
	}{
		{"zero values", ConsumerConfig{}, ConsumerConfig{Workers: 3, Prefetch: 1}},
		{"custom values kept", ConsumerConfig{Workers: 10, Prefetch: 5}, ConsumerConfig{Workers: 10, Prefetch: 5}},
		{"negative values", ConsumerConfig{Workers: -1, Prefetch: -2}, ConsumerConfig{Workers: 3, Prefetch: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.in.withDefaults(); got != tt.want {
				t.Errorf("withDefaults() = %+v; want %+v", got, tt.want)
			}
		})
	}
}

func TestRunJob(t *testing.T) {
	job := checker.NewJob(checker.Key{Session: uuid.New(), Stage: domain.GenerateStageID()}, domain.KindR, nil)

	t.Run("completed", func(t *testing.T) {
		result := runJob(context.Background(), func(ctx context.Context, j *checker.Job) (*checker.Result, error) {
			return &checker.Result{Points: 80}, nil
		}, job)
		if result.JobID != job.ID {
			t.Errorf("JobID = %v; want %v", result.JobID, job.ID)
		}
		if result.Status != checker.StatusCompleted || result.Points != 80 {
			t.Errorf("result = %+v; want completed with 80 points", result)
		}
		if result.CompletedAt.IsZero() {
			t.Error("CompletedAt should be set")
		}
	})

	t.Run("handler error", func(t *testing.T) {
		result := runJob(context.Background(), func(ctx context.Context, j *checker.Job) (*checker.Result, error) {
			return nil, errors.New("container crashed")
		}, job)
		if result.Status != checker.StatusFailed || result.Error != "container crashed" {
			t.Errorf("result = %+v; want failed", result)
		}
	})

	t.Run("timeout", func(t *testing.T) {
		short := *job
		short.Timeout = 1
		result := runJob(context.Background(), func(ctx context.Context, j *checker.Job) (*checker.Result, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}, &short)
		if result.Status != checker.StatusTimeout {
			t.Errorf("Status = %q; want %q", result.Status, checker.StatusTimeout)
		}
	})

	t.Run("nil result", func(t *testing.T) {
		result := runJob(context.Background(), func(ctx context.Context, j *checker.Job) (*checker.Result, error) {
			return nil, nil
		}, job)
		if result.Status != checker.StatusFailed {
			t.Errorf("Status = %q; want failed", result.Status)
		}
	})
}

func TestResultConsumer_SubscribeUnsubscribe(t *testing.T) {
	rc := NewResultConsumer(nil, nil)
	jobID := uuid.New().String()

	rc.Subscribe(jobID, func(result *checker.Result) {})

	rc.handlersMu.RLock()
	_, exists := rc.handlers[jobID]
	rc.handlersMu.RUnlock()
	if !exists {
		t.Error("Handler should be registered after Subscribe")
	}

	rc.Unsubscribe(jobID)

	rc.handlersMu.RLock()
	_, exists = rc.handlers[jobID]
	rc.handlersMu.RUnlock()
	if exists {
		t.Error("Handler should be removed after Unsubscribe")
	}
}

func TestResultConsumer_Subscribe_ConcurrentSafe(t *testing.T) {
	rc := NewResultConsumer(nil, nil)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			jobID := uuid.New().String()
			rc.Subscribe(jobID, func(result *checker.Result) {})
			time.Sleep(time.Microsecond)
			rc.Unsubscribe(jobID)
		}()
	}
	wg.Wait()

	rc.handlersMu.RLock()
	count := len(rc.handlers)
	rc.handlersMu.RUnlock()
	if count != 0 {
		t.Errorf("All handlers should be unsubscribed, got %d remaining", count)
	}
}

func TestResultConsumer_DispatchRoutesByJobID(t *testing.T) {
	tracker := checker.NewTracker()
	rc := NewResultConsumer(nil, tracker)

	key := checker.Key{Session: uuid.New(), Stage: domain.GenerateStageID()}
	first := checker.NewJob(key, domain.KindPython, nil)
	second := checker.NewJob(key, domain.KindPython, nil)
	tracker.Register(first)
	tracker.Register(second)

	var got []uuid.UUID
	rc.Subscribe(first.ID.String(), func(r *checker.Result) { got = append(got, r.JobID) })

	// Results arrive out of order
	rc.dispatch(&checker.Result{JobID: second.ID, Status: checker.StatusCompleted, Points: 100})
	rc.dispatch(&checker.Result{JobID: first.ID, Status: checker.StatusCompleted, Points: 0})
	rc.dispatch(&checker.Result{JobID: uuid.New(), Status: checker.StatusCompleted})

	if tracker.Pending(key) != 0 {
		t.Errorf("Pending() = %d; want 0", tracker.Pending(key))
	}
	if r, _ := tracker.Result(key); r.Points != 100 {
		t.Errorf("Result() points = %d; want 100 from the latest job", r.Points)
	}
	if len(got) != 1 || got[0] != first.ID {
		t.Errorf("subscriber calls = %v; want only %v", got, first.ID)
	}
}

func TestResultConsumer_Stop_NilCancelFunc(t *testing.T) {
	rc := NewResultConsumer(nil, nil)
	rc.Stop()
}

func TestConsumer_Stop_NilCancelFunc(t *testing.T) {
	c := &Consumer{}
	c.Stop()
}
