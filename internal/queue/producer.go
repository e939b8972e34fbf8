package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
)

// Publisher sends JSON messages to a queue
type Publisher interface {
	PublishJSON(ctx context.Context, queue string, data any) error
}

var _ Publisher = (*Connection)(nil)

// Producer publishes checker jobs and results
type Producer struct {
	conn    Publisher
	tracker *checker.Tracker
}

// NewProducer creates a new queue producer
func NewProducer(conn Publisher) *Producer {
	return &Producer{conn: conn}
}

// SetTracker registers published jobs with tracker so the stage waits for
// their results
func (p *Producer) SetTracker(t *checker.Tracker) {
	p.tracker = t
}

// PublishJob publishes a checker job. The job is registered as pending
// before it is sent; a failed publish releases it again.
func (p *Producer) PublishJob(ctx context.Context, job *checker.Job) error {
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now()
	}

	if p.tracker != nil {
		p.tracker.Register(job)
	}
	if err := p.conn.PublishJSON(ctx, JobQueueName, job); err != nil {
		if p.tracker != nil {
			_, _ = p.tracker.Complete(checker.Result{JobID: job.ID, Status: checker.StatusFailed, Error: err.Error()})
		}
		return fmt.Errorf("failed to publish checker job: %w", err)
	}

	slog.Info("published checker job",
		"job_id", job.ID,
		"session_id", job.SessionID,
		"stage_id", job.StageID.String(),
		"kind", job.Kind,
	)

	return nil
}

// PublishResult publishes a checker result to the results queue
func (p *Producer) PublishResult(ctx context.Context, result *checker.Result) error {
	if result.CompletedAt.IsZero() {
		result.CompletedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, ResultQueueName, result); err != nil {
		return fmt.Errorf("failed to publish checker result: %w", err)
	}

	slog.Info("published checker result",
		"job_id", result.JobID,
		"status", result.Status,
		"duration", result.Duration,
	)

	return nil
}
