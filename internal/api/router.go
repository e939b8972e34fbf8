package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/api/handlers"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/api/middleware"
)

// Router wraps the HTTP multiplexer with middleware and handlers
type Router struct {
	mux      *http.ServeMux
	app      *App
	exercise *handlers.ExerciseHandler
	session  *handlers.SessionHandler
	course   *handlers.CourseHandler
}

// NewRouter creates a new API router with all routes configured
func NewRouter(app *App) http.Handler {
	r := &Router{
		mux:      http.NewServeMux(),
		app:      app,
		exercise: handlers.NewExerciseHandler(app.Registry),
		session:  handlers.NewSessionHandler(app.Registry, app.Sessions, app.Player).WithEvents(app.Events).WithPinner(app.Pinner),
		course:   handlers.NewCourseHandler(app.Registry, app.Submissions),
	}
	r.registerRoutes()
	return r.buildMiddlewareChain(r.mux)
}

func (r *Router) registerRoutes() {
	r.mux.HandleFunc("GET /health", r.handleHealth)
	r.mux.HandleFunc("GET /ready", r.handleReady)

	// Exercises
	r.mux.HandleFunc("GET /api/v1/exercises", r.exercise.List)
	r.mux.HandleFunc("GET /api/v1/exercises/{slug}", r.exercise.Get)
	r.mux.HandleFunc("POST /api/v1/exercises/{slug}/sessions", r.session.Start)

	// Sessions
	r.mux.HandleFunc("GET /api/v1/sessions/{id}", r.session.Get)
	r.mux.HandleFunc("DELETE /api/v1/sessions/{id}", r.session.Delete)
	r.mux.HandleFunc("POST /api/v1/sessions/{id}/hints", r.session.Hint)
	r.mux.HandleFunc("POST /api/v1/sessions/{id}/submit", r.evaluation(r.session.Submit))
	r.mux.HandleFunc("POST /api/v1/sessions/{id}/skip", r.evaluation(r.session.Skip))
	r.mux.HandleFunc("POST /api/v1/sessions/{id}/check", r.evaluation(r.session.Check))

	// Courses
	r.mux.HandleFunc("GET /api/v1/courses", r.course.List)
	r.mux.HandleFunc("GET /api/v1/courses/{slug}/score", r.course.Score)
}

func (r *Router) buildMiddlewareChain(handler http.Handler) http.Handler {
	mws := []func(http.Handler) http.Handler{
		middleware.RequestID,
		middleware.Logger,
		middleware.Recovery,
	}
	if r.app.RateLimit != nil {
		mws = append(mws, r.app.RateLimit.Middleware)
	}
	return middleware.Chain(handler, mws...)
}

// evaluation applies the stricter limit to endpoints that run expressions
func (r *Router) evaluation(next http.HandlerFunc) http.HandlerFunc {
	if r.app.RateLimit == nil {
		return next
	}
	return r.app.RateLimit.Evaluation(next)
}

func (r *Router) handleHealth(w http.ResponseWriter, req *http.Request) {
	handlers.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func (r *Router) handleReady(w http.ResponseWriter, req *http.Request) {
	if err := r.app.Ready(req.Context()); err != nil {
		slog.Error("storage health check failed",
			"error", err,
			"request_id", middleware.GetRequestID(req.Context()),
		)
		handlers.WriteJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not ready",
			"checks": map[string]string{"storage": "unhealthy"},
		})
		return
	}

	handlers.WriteJSON(w, http.StatusOK, map[string]any{
		"status":   "ready",
		"checks":   map[string]string{"storage": "healthy"},
		"sessions": r.app.Sessions.Len(),
	})
}
