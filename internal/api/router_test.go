package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/api/middleware"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
)

type noSubmissions struct{}

func (noSubmissions) Submissions(context.Context, []domain.ExerciseID) (map[domain.ExerciseID][]scoring.Submission, error) {
	return nil, nil
}

func newTestApp(t *testing.T, cfg AppConfig) *App {
	t.Helper()
	registry := exercise.NewRegistry(exercise.NewLoader("../../content"))
	if err := registry.Load(); err != nil {
		t.Fatalf("Failed to load content: %v", err)
	}
	cfg.Registry = registry
	cfg.Submissions = noSubmissions{}
	app, err := NewApp(cfg)
	if err != nil {
		t.Fatalf("NewApp() error = %v", err)
	}
	t.Cleanup(func() { _ = app.Close() })
	return app
}

func TestNewApp_RequiresDependencies(t *testing.T) {
	if _, err := NewApp(AppConfig{}); err == nil {
		t.Error("NewApp() without registry should error")
	}
	registry := exercise.NewRegistry(exercise.NewLoader("../../content"))
	if _, err := NewApp(AppConfig{Registry: registry}); err == nil {
		t.Error("NewApp() without submission source should error")
	}
}

func TestRouter_Health(t *testing.T) {
	router := NewRouter(newTestApp(t, AppConfig{}))

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Error("response should carry a request id")
	}
}

func TestRouter_Ready(t *testing.T) {
	tests := []struct {
		name   string
		ready  func(context.Context) error
		status int
	}{
		{"healthy storage", func(context.Context) error { return nil }, http.StatusOK},
		{"storage down", func(context.Context) error { return errors.New("connection refused") }, http.StatusServiceUnavailable},
		{"no readiness check", nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := NewRouter(newTestApp(t, AppConfig{Ready: tt.ready}))
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.status {
				t.Errorf("status = %d, want %d", rec.Code, tt.status)
			}
		})
	}
}

func TestRouter_SessionRoundTrip(t *testing.T) {
	app := newTestApp(t, AppConfig{})
	router := NewRouter(app)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/exercises/mean/sessions", nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("start status = %d, want 201: %s", rec.Code, rec.Body)
	}
	var st struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&st); err != nil {
		t.Fatal(err)
	}
	if app.Sessions.Len() != 1 {
		t.Errorf("Sessions.Len() = %d, want 1", app.Sessions.Len())
	}

	rec = httptest.NewRecorder()
	body := strings.NewReader(`{"points": 90}`)
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/sessions/"+st.ID+"/submit", body))
	if rec.Code != http.StatusOK {
		t.Fatalf("submit status = %d, want 200: %s", rec.Code, rec.Body)
	}

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/sessions/"+st.ID, nil))
	if rec.Code != http.StatusOK {
		t.Errorf("get status = %d, want 200", rec.Code)
	}
}

func TestRouter_UnknownRoute(t *testing.T) {
	router := NewRouter(newTestApp(t, AppConfig{}))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/nothing", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", rec.Code)
	}
}

func TestRouter_EvaluationRateLimit(t *testing.T) {
	app := newTestApp(t, AppConfig{RateLimit: &middleware.RateLimitConfig{
		RequestsPerMinute:           600,
		EvaluationRequestsPerMinute: 1,
		BurstMultiplier:             1,
	}})
	router := NewRouter(app)

	var limited bool
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/api/v1/sessions/00000000-0000-0000-0000-000000000001/skip", nil)
		req.RemoteAddr = "192.0.2.10:4000"
		router.ServeHTTP(rec, req)
		if rec.Code == http.StatusTooManyRequests {
			limited = true
		}
	}
	if !limited {
		t.Error("evaluation endpoints should be rate limited")
	}

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/exercises", nil)
	req.RemoteAddr = "192.0.2.10:4000"
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("list status = %d, want 200 under the general limit", rec.Code)
	}
}
