//go:build integration

package queue_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/queue"
)

// setupRabbitMQ creates a RabbitMQ container for testing
func setupRabbitMQ(t *testing.T) (string, func()) {
	t.Helper()
	ctx := context.Background()

	container, err := rabbitmq.Run(ctx, "rabbitmq:3.12-management")
	if err != nil {
		t.Fatalf("failed to start RabbitMQ container: %v", err)
	}

	amqpURL, err := container.AmqpURL(ctx)
	if err != nil {
		_ = container.Terminate(ctx)
		t.Fatalf("failed to get AMQP URL: %v", err)
	}

	cleanup := func() {
		if err := testcontainers.TerminateContainer(container); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return amqpURL, cleanup
}

func TestIntegration_Connection_ConnectAndClose(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}

	if !conn.IsConnected() {
		t.Error("expected connection to be active")
	}

	if err := conn.Close(); err != nil {
		t.Errorf("failed to close connection: %v", err)
	}
}

func TestIntegration_Connection_InvalidURL(t *testing.T) {
	_, err := queue.NewConnection("amqp://invalid:5672")
	if err == nil {
		t.Error("expected error for invalid URL")
	}
}

func TestIntegration_Producer_PublishJob(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	producer := queue.NewProducer(conn)
	key := checker.Key{Session: uuid.New(), Stage: domain.GenerateStageID()}
	job := checker.NewJob(key, domain.KindR, map[string]string{"answer": "mean(x)"})

	if err := producer.PublishJob(context.Background(), job); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}

	q, err := conn.Channel().QueueInspect(queue.JobQueueName)
	if err != nil {
		t.Fatalf("failed to inspect queue: %v", err)
	}
	if q.Messages != 1 {
		t.Errorf("expected 1 message in queue, got %d", q.Messages)
	}
}

// TestIntegration_RoundTrip publishes jobs for two stages, lets a worker
// grade them and checks that the results reach the tracker by job id.
func TestIntegration_RoundTrip(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The slow stage finishes after the fast one.
	slow := checker.Key{Session: uuid.New(), Stage: domain.GenerateStageID()}
	fast := checker.Key{Session: slow.Session, Stage: domain.GenerateStageID()}

	handler := func(ctx context.Context, job *checker.Job) (*checker.Result, error) {
		if job.StageID == slow.Stage {
			time.Sleep(300 * time.Millisecond)
			return &checker.Result{Points: 40}, nil
		}
		return &checker.Result{Points: 90}, nil
	}

	consumer := queue.NewConsumer(conn, handler, queue.ConsumerConfig{Workers: 2, Prefetch: 1})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	tracker := checker.NewTracker()
	done := make(chan checker.Key, 2)
	tracker.OnComplete(func(k checker.Key, _ checker.Result) { done <- k })

	results := queue.NewResultConsumer(conn, tracker)
	if err := results.Start(ctx); err != nil {
		t.Fatalf("failed to start result consumer: %v", err)
	}
	defer results.Stop()

	producer := queue.NewProducer(conn)
	producer.SetTracker(tracker)
	for _, key := range []checker.Key{slow, fast} {
		if err := producer.PublishJob(ctx, checker.NewJob(key, domain.KindPython, nil)); err != nil {
			t.Fatalf("failed to publish job: %v", err)
		}
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(10 * time.Second):
			t.Fatal("timeout waiting for checker results")
		}
	}

	for key, want := range map[checker.Key]int{slow: 40, fast: 90} {
		r, ok := tracker.Result(key)
		if !ok || r.Points != want {
			t.Errorf("Result(%s) = %+v, %v; want %d points", key, r, ok, want)
		}
		if tracker.Pending(key) != 0 {
			t.Errorf("Pending(%s) = %d; want 0", key, tracker.Pending(key))
		}
	}
}

func TestIntegration_Consumer_HandlerError(t *testing.T) {
	amqpURL, cleanup := setupRabbitMQ(t)
	defer cleanup()

	conn, err := queue.NewConnection(amqpURL)
	if err != nil {
		t.Fatalf("failed to create connection: %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	consumer := queue.NewConsumer(conn, func(ctx context.Context, job *checker.Job) (*checker.Result, error) {
		return nil, errors.New("checker crashed")
	}, queue.ConsumerConfig{Workers: 1})
	if err := consumer.Start(ctx); err != nil {
		t.Fatalf("failed to start consumer: %v", err)
	}
	defer consumer.Stop()

	received := make(chan *checker.Result, 1)
	results := queue.NewResultConsumer(conn, nil)
	job := checker.NewJob(checker.Key{Session: uuid.New(), Stage: domain.GenerateStageID()}, domain.KindUML, nil)
	results.Subscribe(job.ID.String(), func(r *checker.Result) { received <- r })
	if err := results.Start(ctx); err != nil {
		t.Fatalf("failed to start result consumer: %v", err)
	}
	defer results.Stop()

	if err := queue.NewProducer(conn).PublishJob(ctx, job); err != nil {
		t.Fatalf("failed to publish job: %v", err)
	}

	select {
	case r := <-received:
		if r.Status != checker.StatusFailed || r.Error != "checker crashed" {
			t.Errorf("result = %+v; want failed with handler error", r)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timeout waiting for result")
	}
}
