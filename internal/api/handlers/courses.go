package handlers

import (
	"context"
	"net/http"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
)

// SubmissionSource returns the recorded submissions per exercise
type SubmissionSource interface {
	Submissions(ctx context.Context, exercises []domain.ExerciseID) (map[domain.ExerciseID][]scoring.Submission, error)
}

// CourseHandler handles course endpoints
type CourseHandler struct {
	registry    *exercise.Registry
	submissions SubmissionSource
}

// NewCourseHandler creates a course handler
func NewCourseHandler(registry *exercise.Registry, submissions SubmissionSource) *CourseHandler {
	return &CourseHandler{registry: registry, submissions: submissions}
}

// EntryScore is the scoring input of one course entry
type EntryScore struct {
	Exercise    string `json:"exercise"`
	Points      int    `json:"points"`
	Submissions int    `json:"submissions"`
}

// CourseScore is the result of scoring a course
type CourseScore struct {
	Course  string       `json:"course"`
	Mode    string       `json:"mode"`
	Score   int          `json:"score"`
	Scored  bool         `json:"scored"`
	Entries []EntryScore `json:"entries"`
}

// List lists the loaded course slugs
func (h *CourseHandler) List(w http.ResponseWriter, r *http.Request) {
	courses := h.registry.ListCourses()
	WriteJSON(w, http.StatusOK, map[string]any{
		"courses": courses,
		"total":   len(courses),
	})
}

// Score computes the course score from the recorded submissions
func (h *CourseHandler) Score(w http.ResponseWriter, r *http.Request) {
	slug := r.PathValue("slug")
	c, err := h.registry.GetCourse(slug)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}
	entries, ok := c.Entries()
	if !ok {
		WriteError(w, r, http.StatusUnprocessableEntity,
			NewAPIError("UNPROCESSABLE", "course "+slug+" has no fixed exercise list"))
		return
	}

	ids := make([]domain.ExerciseID, len(entries))
	for i, e := range entries {
		ids[i] = scoring.PlayedExercise(e)
	}
	subs, err := h.submissions.Submissions(r.Context(), ids)
	if err != nil {
		WriteDomainError(w, r, err)
		return
	}

	score, scored := scoring.CourseScore(entries, c.ScoringMode(), subs)
	out := CourseScore{
		Course:  slug,
		Mode:    string(c.ScoringMode()),
		Score:   score,
		Scored:  scored,
		Entries: make([]EntryScore, len(entries)),
	}
	for i, e := range entries {
		name := e.Exercise.String()
		if s, ok := h.registry.SlugOf(e.Exercise); ok {
			name = s
		}
		out.Entries[i] = EntryScore{Exercise: name, Points: e.Points, Submissions: len(subs[ids[i]])}
	}
	WriteJSON(w, http.StatusOK, out)
}
