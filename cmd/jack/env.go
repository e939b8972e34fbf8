package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/config"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/freeze"
	mcpserver "github.com/ccogit/JACK3-Competencies-sub004/internal/mcp"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/queue"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage/postgres"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/storage/sqlite"
)

type revisionStore interface {
	freeze.RevisionHistory
	mcpserver.RevisionStore
}

type submissionStore interface {
	player.SubmissionSink
	mcpserver.SubmissionSource
}

// stores bundles the persistence backends selected by the configuration
type stores struct {
	revisions   revisionStore
	snapshots   freeze.SnapshotStore
	submissions submissionStore
	ping        func(ctx context.Context) error
	close       func()
}

func (s *stores) freezer() *freeze.Engine {
	engine := freeze.NewEngine(s.revisions, s.snapshots, slog.Default())
	engine.SetDispatcher(eventLog())
	return engine
}

// pinner saves and freezes live exercises so sessions play a fixed revision
func (s *stores) pinner() *freeze.Pinner {
	return freeze.NewPinner(s.freezer(), s.revisions)
}

// eventLog returns a dispatcher that logs every domain event. Session
// events are frequent and go to debug.
func eventLog() *domain.EventDispatcher {
	d := domain.NewEventDispatcher()
	d.SubscribeAll(func(ev domain.Event) {
		level := slog.LevelInfo
		if ev.AggregateType() == "Session" {
			level = slog.LevelDebug
		}
		slog.Log(context.Background(), level, "domain event",
			"type", ev.EventType(),
			"aggregate", ev.AggregateType(),
			"aggregate_id", ev.AggregateID(),
			"event_id", ev.EventID())
	})
	return d
}

// env is the state shared by every command that touches configuration
type env struct {
	cfg *config.Config
	log io.Closer
}

func loadEnv(name string) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logFile, err := setupLogging(cfg, name)
	if err != nil {
		return nil, fmt.Errorf("setup logging: %w", err)
	}
	return &env{cfg: cfg, log: logFile}, nil
}

func (e *env) Close() {
	_ = e.log.Close()
}

// openStores connects to PostgreSQL when DATABASE_URL is set and falls
// back to the local SQLite file
func (e *env) openStores(ctx context.Context) (*stores, error) {
	if e.cfg.UsePostgres() {
		pool, err := postgres.Connect(ctx, e.cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		slog.Info("using postgres storage")
		store := postgres.NewStore(pool)
		return &stores{
			revisions:   store,
			snapshots:   store,
			submissions: store,
			ping:        pool.Ping,
			close:       pool.Close,
		}, nil
	}

	if err := os.MkdirAll(filepath.Dir(e.cfg.SQLitePath), 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}
	db, err := sqlite.Open(e.cfg.SQLitePath)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	slog.Info("using sqlite storage", "path", e.cfg.SQLitePath)
	return &stores{
		revisions:   sqlite.NewRevisionStore(db),
		snapshots:   sqlite.NewSnapshotStore(db),
		submissions: sqlite.NewSubmissionStore(db),
		ping:        db.PingContext,
		close:       func() { _ = db.Close() },
	}, nil
}

// evaluator returns the built-in evaluator, or the remote service behind
// retries and a circuit breaker when EVALUATOR_URL is set
func (e *env) evaluator() (evaluator.Evaluator, func()) {
	if e.cfg.EvaluatorURL == "" {
		return evaluator.NewLocal(), func() {}
	}
	remote := evaluator.NewRemote(evaluator.RemoteConfig{
		BaseURL: e.cfg.EvaluatorURL,
		APIKey:  e.cfg.EvaluatorAPIKey,
		Timeout: e.cfg.EvaluatorTimeout,
	})
	rc := evaluator.DefaultResilientConfig()
	rc.MaxAttempts = e.cfg.EvaluatorMaxAttempts
	rc.MaxConcurrent = e.cfg.EvaluatorMaxConcurrent
	rc.Logger = slog.Default()
	resilient := evaluator.NewResilient(remote, rc)
	slog.Info("using remote evaluator", "url", e.cfg.EvaluatorURL)
	return resilient, func() { _ = resilient.Close() }
}

// attachChecker routes asynchronous checks of sessions started with opts
// through RabbitMQ and returns the consumer of their results. Without a
// broker it does nothing and the consumer is nil.
func (e *env) attachChecker(ctx context.Context, opts *player.Options) (*queue.ResultConsumer, func(), error) {
	if e.cfg.RabbitMQURL == "" {
		return nil, func() {}, nil
	}
	conn, err := queue.NewConnection(e.cfg.RabbitMQURL)
	if err != nil {
		return nil, nil, err
	}

	tracker := checker.NewTracker()
	producer := queue.NewProducer(conn)
	producer.SetTracker(tracker)
	results := queue.NewResultConsumer(conn, tracker)
	if err := results.Start(ctx); err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	opts.Tracker = tracker
	opts.Jobs = producer
	return results, func() {
		results.Stop()
		_ = conn.Close()
	}, nil
}

func (e *env) registry() (*exercise.Registry, error) {
	registry := exercise.NewRegistry(exercise.NewLoader(e.cfg.ExercisesPath))
	if err := registry.Load(); err != nil {
		return nil, fmt.Errorf("load exercises from %s: %w", e.cfg.ExercisesPath, err)
	}
	return registry, nil
}

// signalContext is cancelled on SIGINT or SIGTERM
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
