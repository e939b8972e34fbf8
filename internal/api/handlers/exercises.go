package handlers

import (
	"net/http"
	"strings"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
)

// ExerciseHandler handles exercise endpoints
type ExerciseHandler struct {
	registry *exercise.Registry
}

// NewExerciseHandler creates a new exercise handler
func NewExerciseHandler(registry *exercise.Registry) *ExerciseHandler {
	return &ExerciseHandler{registry: registry}
}

// ExerciseSummary represents an exercise in list responses
type ExerciseSummary struct {
	Slug        string   `json:"slug"`
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Difficulty  int      `json:"difficulty"`
	Tags        []string `json:"tags,omitempty"`
	Stages      int      `json:"stages"`
}

// StageSummary describes one stage of an exercise
type StageSummary struct {
	Name         string `json:"name"`
	Title        string `json:"title,omitempty"`
	Kind         string `json:"kind"`
	Weight       int    `json:"weight"`
	SuffixWeight int    `json:"suffix_weight"`
	AllowSkip    bool   `json:"allow_skip"`
	Hints        int    `json:"hints"`
	End          bool   `json:"end"`
}

// ExerciseDetail represents a single exercise with its stage graph
type ExerciseDetail struct {
	ExerciseSummary
	Start     string         `json:"start"`
	HintMalus string         `json:"hint_malus"`
	MaxWeight int            `json:"max_weight"`
	Graph     []StageSummary `json:"graph"`
}

// List lists the loaded exercises, optionally only those containing a
// stage of ?kind=
func (h *ExerciseHandler) List(w http.ResponseWriter, r *http.Request) {
	slugs := h.registry.ListExercises()
	if kind := r.URL.Query().Get("kind"); kind != "" {
		k := domain.StageKind(strings.ToLower(kind))
		if !k.IsValid() {
			BadRequest(w, r, "unknown stage kind "+kind)
			return
		}
		slugs = h.registry.ExercisesByKind(k)
	}

	response := make([]ExerciseSummary, 0, len(slugs))
	for _, slug := range slugs {
		ex, err := h.registry.GetExercise(slug)
		if err != nil {
			continue
		}
		response = append(response, summarize(slug, ex))
	}

	WriteJSON(w, http.StatusOK, map[string]any{
		"exercises": response,
		"total":     len(response),
	})
}

// Get returns an exercise with its stages and suffix weights
func (h *ExerciseHandler) Get(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	ex, err := h.registry.GetExercise(slug)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	weights := ex.SuffixWeights()
	detail := ExerciseDetail{
		ExerciseSummary: summarize(slug, ex),
		HintMalus:       string(ex.HintMalusType()),
		Graph:           make([]StageSummary, 0, ex.StageCount()),
	}
	if start, ok := ex.StartStage(); ok {
		detail.Start = start.InternalName()
		detail.MaxWeight = weights[start.ID()]
	}
	for _, s := range ex.Stages() {
		detail.Graph = append(detail.Graph, StageSummary{
			Name:         s.InternalName(),
			Title:        s.ExternalName(),
			Kind:         string(s.Kind()),
			Weight:       s.Weight(),
			SuffixWeight: weights[s.ID()],
			AllowSkip:    s.AllowSkip(),
			Hints:        len(s.Hints()),
			End:          s.IsEndStage(),
		})
	}
	WriteJSON(w, http.StatusOK, detail)
}

func summarize(slug string, ex *domain.Exercise) ExerciseSummary {
	return ExerciseSummary{
		Slug:        slug,
		ID:          ex.ID().String(),
		Name:        ex.Meta.Name,
		Description: ex.Meta.Description,
		Difficulty:  int(ex.Meta.Difficulty),
		Tags:        ex.Meta.Tags,
		Stages:      ex.StageCount(),
	}
}
