package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/api"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/api/middleware"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
)

// cmdServe serves the exercise API over HTTP until interrupted
func cmdServe(args []string) error {
	e, err := loadEnv("jack-server")
	if err != nil {
		return err
	}
	defer e.Close()

	addr := fmt.Sprintf(":%d", e.cfg.Port)
	if len(args) > 0 {
		addr = args[0]
	}

	ctx, cancel := signalContext()
	defer cancel()

	registry, err := e.registry()
	if err != nil {
		return err
	}
	ev, closeEval := e.evaluator()
	defer closeEval()

	st, err := e.openStores(ctx)
	if err != nil {
		return err
	}
	defer st.close()

	opts := player.Options{Evaluator: ev, Submissions: st.submissions, Logger: slog.Default()}
	_, detach, err := e.attachChecker(ctx, &opts)
	if err != nil {
		return err
	}
	defer detach()

	appCfg := api.AppConfig{
		Registry:    registry,
		Player:      opts,
		Submissions: st.submissions,
		Ready:       st.ping,
		Events:      eventLog(),
		Pinner:      st.pinner(),
	}
	if !e.cfg.Debug {
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerMinute = e.cfg.RequestsPerMinute
		rl.EvaluationRequestsPerMinute = e.cfg.EvaluationsPerMinute
		appCfg.RateLimit = &rl
	}
	app, err := api.NewApp(appCfg)
	if err != nil {
		return err
	}
	defer app.Close()

	go app.SweepSessions(ctx, time.Minute, e.cfg.SessionIdleTimeout)

	server := &http.Server{
		Addr:         addr,
		Handler:      api.NewRouter(app),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		<-ctx.Done()
		slog.Info("shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
		close(done)
	}()

	slog.Info("serving exercise API",
		"addr", addr,
		"exercises", len(registry.ListExercises()),
		"courses", len(registry.ListCourses()),
	)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	<-done
	slog.Info("server stopped")
	return nil
}
