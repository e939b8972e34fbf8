package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/transition"
)

// SessionHandler plays exercises over HTTP
type SessionHandler struct {
	registry *exercise.Registry
	store    *player.Store
	opts     player.Options
	events   *domain.EventDispatcher
	pinner   ExercisePinner
}

// ExercisePinner resolves the frozen snapshot a new session plays
type ExercisePinner interface {
	Pin(ctx context.Context, ex *domain.Exercise) (*domain.FrozenExercise, error)
}

// NewSessionHandler creates a session handler. opts is used for every new
// session.
func NewSessionHandler(registry *exercise.Registry, store *player.Store, opts player.Options) *SessionHandler {
	return &SessionHandler{registry: registry, store: store, opts: opts}
}

// WithEvents publishes the events sessions record to d
func (h *SessionHandler) WithEvents(d *domain.EventDispatcher) *SessionHandler {
	h.events = d
	return h
}

// WithPinner plays every new session on the snapshot p pins instead of
// the live exercise
func (h *SessionHandler) WithPinner(p ExercisePinner) *SessionHandler {
	h.pinner = p
	return h
}

// StageView is the student-facing part of a stage
type StageView struct {
	Name      string `json:"name"`
	Title     string `json:"title,omitempty"`
	Kind      string `json:"kind"`
	Task      string `json:"task,omitempty"`
	Weight    int    `json:"weight"`
	AllowSkip bool   `json:"allow_skip"`
	Hints     int    `json:"hints"`
}

// SessionState is returned by every session endpoint
type SessionState struct {
	ID           string     `json:"id"`
	Exercise     string     `json:"exercise"`
	Snapshot     string     `json:"snapshot,omitempty"`
	Revision     int        `json:"revision,omitempty"`
	Stage        *StageView `json:"stage,omitempty"`
	Finished     bool       `json:"finished"`
	Score        int        `json:"score"`
	MaxRemaining int        `json:"max_remaining"`
	// Outcome of the last move: goto, repeat or end
	Outcome string `json:"outcome,omitempty"`
	Message string `json:"message,omitempty"`
}

// SubmitRequest grades the current stage
type SubmitRequest struct {
	// Points 0..100; omitted to use the latest checker result
	Points *int           `json:"points,omitempty"`
	Input  map[string]any `json:"input,omitempty"`
}

// CheckRequest sends an answer to the checker queue
type CheckRequest struct {
	Answer map[string]string `json:"answer"`
}

// Start opens a session on the exercise named by the slug
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	ex, err := h.registry.GetExercise(r.PathValue("slug"))
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	var graph domain.Graph = ex
	if h.pinner != nil {
		f, err := h.pinner.Pin(r.Context(), ex)
		if err != nil {
			WriteDomainError(w, r, err)
			return
		}
		graph = f
	}
	s, err := player.Start(r.Context(), graph, h.opts)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	h.publish(s)
	h.store.Save(s)
	WriteJSON(w, http.StatusCreated, state(s, nil, ""))
}

// Get returns the state of a session
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(s *player.Session) (any, error) {
		return state(s, nil, ""), nil
	})
}

// Hint reveals the next hint of the current stage
func (h *SessionHandler) Hint(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(s *player.Session) (any, error) {
		hint, err := s.RevealHint()
		if err != nil {
			return nil, err
		}
		return map[string]any{
			"text":    hint.Text,
			"malus":   hint.Malus,
			"session": state(s, nil, ""),
		}, nil
	})
}

// Submit grades the current stage and follows the matching transition
func (h *SessionHandler) Submit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}
	if req.Points != nil && (*req.Points < 0 || *req.Points > 100) {
		BadRequest(w, r, "points must be between 0 and 100")
		return
	}
	input, err := bindings(req.Input)
	if err != nil {
		BadRequest(w, r, err.Error())
		return
	}

	h.with(w, r, func(s *player.Session) (any, error) {
		out, err := s.Submit(r.Context(), player.Submission{Points: req.Points, Input: input})
		if err != nil {
			return nil, err
		}
		return state(s, &out, ""), nil
	})
}

// Skip leaves the current stage through its skip transitions
func (h *SessionHandler) Skip(w http.ResponseWriter, r *http.Request) {
	h.with(w, r, func(s *player.Session) (any, error) {
		message := s.Current().SkipMessage()
		out, err := s.Skip(r.Context())
		if err != nil {
			return nil, err
		}
		return state(s, &out, message), nil
	})
}

// Check queues the answer for asynchronous grading
func (h *SessionHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req CheckRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		BadRequest(w, r, "invalid request body")
		return
	}

	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var jobID string
	err := h.store.Do(id, func(s *player.Session) error {
		job, err := s.RequestCheck(r.Context(), req.Answer)
		if err != nil {
			return err
		}
		jobID = job.ID.String()
		h.publish(s)
		return nil
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

// Delete abandons a session
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(id); err != nil {
		WriteDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// with runs fn on the session named in the path and writes its result
func (h *SessionHandler) with(w http.ResponseWriter, r *http.Request, fn func(*player.Session) (any, error)) {
	id, ok := h.sessionID(w, r)
	if !ok {
		return
	}
	var result any
	err := h.store.Do(id, func(s *player.Session) error {
		var err error
		result, err = fn(s)
		h.publish(s)
		return err
	})
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	WriteJSON(w, http.StatusOK, result)
}

// publish hands recorded events to the dispatcher. Events are dropped
// without one.
func (h *SessionHandler) publish(s *player.Session) {
	if h.events != nil {
		h.events.PublishAll(s.RecordedEvents())
	}
	s.ClearEvents()
}

func (h *SessionHandler) sessionID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		BadRequest(w, r, "invalid session id")
		return uuid.Nil, false
	}
	return id, true
}

func state(s *player.Session, out *transition.Outcome, message string) SessionState {
	st := SessionState{
		ID:           s.ID().String(),
		Exercise:     s.ExerciseID().String(),
		Finished:     s.Finished(),
		Score:        s.Score(),
		MaxRemaining: s.MaxRemainingScore(),
		Message:      message,
	}
	if p, ok := s.Pinned(); ok {
		st.Exercise = p.Original.String()
		st.Snapshot = s.ExerciseID().String()
		st.Revision = p.Revision
	}
	if out != nil {
		st.Outcome = out.Kind.String()
	}
	if !s.Finished() {
		st.Stage = view(s.Current())
	}
	return st
}

func view(stage *domain.Stage) *StageView {
	return &StageView{
		Name:      stage.InternalName(),
		Title:     stage.ExternalName(),
		Kind:      string(stage.Kind()),
		Task:      stage.TaskDescription(),
		Weight:    stage.Weight(),
		AllowSkip: stage.AllowSkip(),
		Hints:     len(stage.Hints()),
	}
}

// bindings converts JSON input values. Strings stay text.
func bindings(input map[string]any) (evaluator.Bindings, error) {
	if len(input) == 0 {
		return nil, nil
	}
	b := make(evaluator.Bindings, len(input))
	for k, v := range input {
		switch x := v.(type) {
		case bool:
			b[k] = evaluator.Bool(x)
		case float64:
			b[k] = evaluator.Number(x)
		case string:
			b[k] = evaluator.Text(x)
		default:
			return nil, fmt.Errorf("input %q: unsupported value %v", k, v)
		}
	}
	return b, nil
}
