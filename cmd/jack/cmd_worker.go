package main

import (
	"fmt"
	"log/slog"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/queue"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/sandbox"
)

// cmdWorker grades checker jobs from RabbitMQ until interrupted
func cmdWorker() error {
	e, err := loadEnv("jack-worker")
	if err != nil {
		return err
	}
	defer e.Close()

	if e.cfg.RabbitMQURL == "" {
		return fmt.Errorf("RABBITMQ_URL is required for the worker")
	}

	ctx, cancel := signalContext()
	defer cancel()

	ev, closeEval := e.evaluator()
	defer closeEval()

	conn, err := queue.NewConnection(e.cfg.RabbitMQURL)
	if err != nil {
		return err
	}
	defer conn.Close()

	grader := checker.NewGrader(ev)
	if e.cfg.CheckerSandbox {
		backend, err := sandbox.NewDockerBackend(ctx)
		if err != nil {
			return err
		}
		defer backend.Close()

		sc := sandbox.DefaultConfig()
		sc.Image = e.cfg.SandboxImage
		sc.MaxConcurrent = e.cfg.CheckerWorkers
		grader.WithRunner(sandbox.NewRunner(backend, sc, slog.Default()))
		slog.Info("grading code submissions in docker", "max_concurrent", sc.MaxConcurrent)
	}
	consumer := queue.NewConsumer(conn, grader.Grade, queue.ConsumerConfig{
		Workers:  e.cfg.CheckerWorkers,
		Prefetch: e.cfg.CheckerPrefetch,
	})
	if err := consumer.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	slog.Info("shutting down worker")
	consumer.Stop()
	return nil
}
