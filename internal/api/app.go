package api

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/api/handlers"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/api/middleware"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
)

// App holds all application dependencies
type App struct {
	Registry    *exercise.Registry
	Sessions    *player.Store
	Player      player.Options
	Submissions handlers.SubmissionSource
	RateLimit   *middleware.RateLimit

	// Ready reports whether backing services are reachable
	Ready func(ctx context.Context) error
	// Events receives session events; nil drops them
	Events *domain.EventDispatcher
	// Pinner freezes exercises before they are played; nil plays them live
	Pinner handlers.ExercisePinner
}

// AppConfig holds configuration for application initialization
type AppConfig struct {
	Registry    *exercise.Registry
	Player      player.Options
	Submissions handlers.SubmissionSource
	Ready       func(ctx context.Context) error
	Events      *domain.EventDispatcher
	Pinner      handlers.ExercisePinner
	// RateLimit nil disables rate limiting
	RateLimit *middleware.RateLimitConfig
}

// NewApp creates a new application instance with all dependencies wired
func NewApp(cfg AppConfig) (*App, error) {
	if cfg.Registry == nil {
		return nil, errors.New("api: exercise registry required")
	}
	if cfg.Submissions == nil {
		return nil, errors.New("api: submission source required")
	}
	app := &App{
		Registry:    cfg.Registry,
		Sessions:    player.NewStore(),
		Player:      cfg.Player,
		Submissions: cfg.Submissions,
		Ready:       cfg.Ready,
		Events:      cfg.Events,
		Pinner:      cfg.Pinner,
	}
	if app.Ready == nil {
		app.Ready = func(context.Context) error { return nil }
	}
	if cfg.RateLimit != nil {
		app.RateLimit = middleware.NewRateLimit(*cfg.RateLimit)
	}
	return app, nil
}

// SweepSessions drops idle sessions every interval until ctx is done
func (a *App) SweepSessions(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := a.Sessions.Sweep(maxIdle); n > 0 {
				slog.Info("idle sessions dropped", "count", n, "live", a.Sessions.Len())
			}
		}
	}
}

// Close cleans up application resources
func (a *App) Close() error {
	if a.RateLimit != nil {
		return a.RateLimit.Close()
	}
	return nil
}
