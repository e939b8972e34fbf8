package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	mcp "github.com/felixgeelhaar/mcp-go"
	"github.com/felixgeelhaar/mcp-go/server"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/freeze"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/transition"
)

// RevisionStore saves live aggregates as new revisions
type RevisionStore interface {
	SaveExercise(ctx context.Context, ex *domain.Exercise) (int, error)
	SaveCourse(ctx context.Context, c *domain.Course) (int, error)
}

// SubmissionSource returns the recorded submissions per exercise
type SubmissionSource interface {
	Submissions(ctx context.Context, exercises []domain.ExerciseID) (map[domain.ExerciseID][]scoring.Submission, error)
}

// Server exposes the stage-graph tooling as MCP tools
type Server struct {
	mcpServer   *server.Server
	registry    *exercise.Registry
	resolver    *transition.Resolver
	revisions   RevisionStore
	freezer     *freeze.Engine
	submissions SubmissionSource
	logger      *slog.Logger
}

// Config contains configuration for the MCP server. Only Registry is
// required; tools whose collaborator is missing report an error.
type Config struct {
	Registry    *exercise.Registry
	Evaluator   evaluator.Evaluator
	Revisions   RevisionStore
	Freezer     *freeze.Engine
	Submissions SubmissionSource
	Logger      *slog.Logger
	Version     string
}

// errUnavailable is returned by tools whose backing service is not configured
var errUnavailable = errors.New("not available in this configuration")

// NewServer creates a new MCP server
func NewServer(cfg Config) *Server {
	ev := cfg.Evaluator
	if ev == nil {
		ev = evaluator.NewLocal()
	}
	s := &Server{
		registry:    cfg.Registry,
		resolver:    transition.NewResolver(ev),
		revisions:   cfg.Revisions,
		freezer:     cfg.Freezer,
		submissions: cfg.Submissions,
		logger:      cfg.Logger,
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}

	s.mcpServer = server.New(server.Info{
		Name:    "jack",
		Version: version,
	}, server.WithInstructions(`
Tools for authoring and checking stage-graph exercises.

Exercises are referenced by slug (the file name under exercises/) or passed
inline as YAML through the "source" argument.

Available tools:
- jack_list: List exercises and courses
- jack_validate: Check an exercise graph for structural problems
- jack_suffix_weights: Maximum reachable weight per stage
- jack_suffix_paths: Every suffix path per stage with its weight
- jack_resolve: Decide where a stage leads for given variables and input
- jack_import: Save an exercise or course as a new revision
- jack_freeze: Create an immutable snapshot of a saved revision
- jack_score: Course score from recorded submissions
`))

	s.registerTools()

	return s
}

// registerTools registers all MCP tools
func (s *Server) registerTools() {
	s.mcpServer.Tool("jack_list").
		Description("List the loaded exercises and courses.").
		Handler(s.handleList)

	s.mcpServer.Tool("jack_validate").
		Description("Validate an exercise: structural errors, unreachable and end stages.").
		Handler(s.handleValidate)

	s.mcpServer.Tool("jack_suffix_weights").
		Description("Compute the maximum reachable weight from every stage.").
		Handler(s.handleSuffixWeights)

	s.mcpServer.Tool("jack_suffix_paths").
		Description("List the suffix paths from every stage to an end stage.").
		Handler(s.handleSuffixPaths)

	s.mcpServer.Tool("jack_resolve").
		Description("Resolve the outgoing transition of a stage.").
		Handler(s.handleResolve)

	s.mcpServer.Tool("jack_import").
		Description("Save an exercise or course from the content directory as a new revision.").
		Handler(s.handleImport)

	s.mcpServer.Tool("jack_freeze").
		Description("Freeze a saved exercise or course revision into an immutable snapshot.").
		Handler(s.handleFreeze)

	s.mcpServer.Tool("jack_score").
		Description("Compute a course score from the recorded submissions.").
		Handler(s.handleScore)
}

// Input/Output types for tools

// ExerciseRef names an exercise by slug or carries its YAML source
type ExerciseRef struct {
	Exercise string `json:"exercise,omitempty" jsonschema:"description=Exercise slug"`
	Source   string `json:"source,omitempty" jsonschema:"description=Exercise YAML, used instead of a slug"`
}

type ListInput struct {
	Kind string `json:"kind,omitempty" jsonschema:"description=Only exercises containing a stage of this kind,enum=mc,enum=fillin,enum=r,enum=python,enum=java,enum=uml,enum=molecule"`
}

type ExerciseSummary struct {
	Slug   string `json:"slug"`
	ID     string `json:"id"`
	Name   string `json:"name"`
	Stages int    `json:"stages"`
}

type ListOutput struct {
	Exercises []ExerciseSummary `json:"exercises"`
	Courses   []string          `json:"courses"`
}

type ValidateOutput struct {
	Valid       bool     `json:"valid"`
	Errors      []string `json:"errors,omitempty"`
	Stages      int      `json:"stages"`
	Start       string   `json:"start,omitempty"`
	EndStages   []string `json:"end_stages"`
	Unreachable []string `json:"unreachable,omitempty"`
}

type WeightsOutput struct {
	Weights map[string]int `json:"weights"`
	Start   string         `json:"start,omitempty"`
	Maximum int            `json:"maximum"`
}

type PathOutput struct {
	Stages []string `json:"stages"`
	Weight int      `json:"weight"`
}

type PathsOutput struct {
	Paths map[string][]PathOutput `json:"paths"`
}

type ResolveInput struct {
	ExerciseRef
	Stage     string         `json:"stage" jsonschema:"description=Internal name of the stage being left"`
	Skip      bool           `json:"skip,omitempty" jsonschema:"description=Resolve a skip instead of a submission"`
	Variables map[string]any `json:"variables,omitempty" jsonschema:"description=Variable values by name"`
	Input     map[string]any `json:"input,omitempty" jsonschema:"description=Submitted input values by field"`
}

type ResolveOutput struct {
	Outcome string `json:"outcome"`
	Target  string `json:"target,omitempty"`
	Source  string `json:"source"`
	Index   int    `json:"index"`
}

type ImportInput struct {
	Exercise string `json:"exercise,omitempty" jsonschema:"description=Exercise slug"`
	Course   string `json:"course,omitempty" jsonschema:"description=Course slug"`
}

type ImportOutput struct {
	ID       string `json:"id"`
	Revision int    `json:"revision"`
}

type FreezeInput struct {
	Exercise string `json:"exercise,omitempty" jsonschema:"description=Exercise slug or id"`
	Course   string `json:"course,omitempty" jsonschema:"description=Course slug or id"`
	Revision int    `json:"revision,omitempty" jsonschema:"description=Revision to freeze; latest when omitted"`
}

type FreezeOutput struct {
	FrozenID   string `json:"frozen_id"`
	OriginalID string `json:"original_id"`
	Revision   int    `json:"revision"`
	Stages     int    `json:"stages,omitempty"`
	Entries    int    `json:"entries,omitempty"`
}

type ScoreInput struct {
	Course string `json:"course" jsonschema:"description=Course slug"`
}

type EntryScore struct {
	Exercise    string `json:"exercise"`
	Points      int    `json:"points"`
	Submissions int    `json:"submissions"`
}

type ScoreOutput struct {
	Score   int          `json:"score"`
	Scored  bool         `json:"scored"`
	Mode    string       `json:"mode"`
	Entries []EntryScore `json:"entries"`
}

// Tool handlers

func (s *Server) handleList(ctx context.Context, input ListInput) (ListOutput, error) {
	if s.registry == nil {
		return ListOutput{}, fmt.Errorf("list: registry %w", errUnavailable)
	}

	slugs := s.registry.ListExercises()
	if input.Kind != "" {
		kind := domain.StageKind(input.Kind)
		if !kind.IsValid() {
			return ListOutput{}, fmt.Errorf("unknown stage kind %q", input.Kind)
		}
		slugs = s.registry.ExercisesByKind(kind)
	}

	out := ListOutput{
		Exercises: make([]ExerciseSummary, 0, len(slugs)),
		Courses:   s.registry.ListCourses(),
	}
	for _, slug := range slugs {
		ex, err := s.registry.GetExercise(slug)
		if err != nil {
			return ListOutput{}, err
		}
		out.Exercises = append(out.Exercises, ExerciseSummary{
			Slug:   slug,
			ID:     ex.ID().String(),
			Name:   ex.Meta.Name,
			Stages: ex.StageCount(),
		})
	}
	return out, nil
}

func (s *Server) handleValidate(ctx context.Context, input ExerciseRef) (ValidateOutput, error) {
	ex, err := s.exercise(input)
	if err != nil {
		// Build failures are findings, not tool errors
		if domain.IsStructural(err) || errors.Is(err, exercise.ErrUnknownStageName) {
			return ValidateOutput{Errors: errorList(err)}, nil
		}
		return ValidateOutput{}, err
	}

	out := ValidateOutput{
		Stages:    ex.StageCount(),
		EndStages: stageNames(ex.EndStages()),
	}
	if start, ok := ex.StartStage(); ok {
		out.Start = start.InternalName()
	}
	if err := ex.Validate(); err != nil {
		out.Errors = errorList(err)
	}
	if unreachable := ex.UnreachableStages(); len(unreachable) > 0 {
		out.Unreachable = stageNames(unreachable)
	}
	out.Valid = len(out.Errors) == 0
	return out, nil
}

func (s *Server) handleSuffixWeights(ctx context.Context, input ExerciseRef) (WeightsOutput, error) {
	ex, err := s.exercise(input)
	if err != nil {
		return WeightsOutput{}, err
	}

	weights := ex.SuffixWeights()
	out := WeightsOutput{Weights: make(map[string]int, len(weights))}
	for _, st := range ex.Stages() {
		if w, ok := weights[st.ID()]; ok {
			out.Weights[st.InternalName()] = w
			out.Maximum = max(out.Maximum, w)
		}
	}
	if start, ok := ex.StartStage(); ok {
		out.Start = start.InternalName()
	}
	return out, nil
}

func (s *Server) handleSuffixPaths(ctx context.Context, input ExerciseRef) (PathsOutput, error) {
	ex, err := s.exercise(input)
	if err != nil {
		return PathsOutput{}, err
	}

	stages := ex.Stages()
	paths := domain.SuffixPaths(stages)
	out := PathsOutput{Paths: make(map[string][]PathOutput, len(paths))}
	for _, st := range stages {
		for _, p := range paths[st.ID()] {
			names := make([]string, len(p))
			for i, id := range p {
				names[i] = nameOf(ex, id)
			}
			out.Paths[st.InternalName()] = append(out.Paths[st.InternalName()], PathOutput{
				Stages: names,
				Weight: domain.PathWeight(stages, p),
			})
		}
	}
	return out, nil
}

func (s *Server) handleResolve(ctx context.Context, input ResolveInput) (ResolveOutput, error) {
	ex, err := s.exercise(input.ExerciseRef)
	if err != nil {
		return ResolveOutput{}, err
	}
	stage, ok := ex.StageByInternalName(input.Stage)
	if !ok {
		return ResolveOutput{}, fmt.Errorf("stage %q: %w", input.Stage, domain.ErrStageNotFound)
	}

	b := make(evaluator.Bindings, len(input.Variables)+len(input.Input))
	for name, v := range input.Variables {
		val, err := toValue(v)
		if err != nil {
			return ResolveOutput{}, fmt.Errorf("variable %q: %w", name, err)
		}
		b[name] = val
	}
	for field, v := range input.Input {
		val, err := toValue(v)
		if err != nil {
			return ResolveOutput{}, fmt.Errorf("input %q: %w", field, err)
		}
		b[evaluator.InputPrefix+field] = val
	}

	outcome, err := s.resolver.Resolve(ctx, stage, input.Skip, b)
	if err != nil {
		return ResolveOutput{}, err
	}
	out := ResolveOutput{
		Outcome: outcome.Kind.String(),
		Source:  string(outcome.Source),
		Index:   outcome.Index,
	}
	if outcome.Kind == transition.KindGoTo {
		out.Target = nameOf(ex, outcome.Target)
	}
	return out, nil
}

func (s *Server) handleImport(ctx context.Context, input ImportInput) (ImportOutput, error) {
	if s.revisions == nil || s.registry == nil {
		return ImportOutput{}, fmt.Errorf("import: revision store %w", errUnavailable)
	}

	switch {
	case input.Exercise != "" && input.Course == "":
		ex, err := s.registry.GetExercise(input.Exercise)
		if err != nil {
			return ImportOutput{}, err
		}
		rev, err := s.revisions.SaveExercise(ctx, ex)
		if err != nil {
			return ImportOutput{}, fmt.Errorf("save exercise: %w", err)
		}
		s.logger.Info("exercise imported", "slug", input.Exercise, "exercise_id", ex.ID(), "revision", rev)
		return ImportOutput{ID: ex.ID().String(), Revision: rev}, nil

	case input.Course != "" && input.Exercise == "":
		c, err := s.registry.GetCourse(input.Course)
		if err != nil {
			return ImportOutput{}, err
		}
		rev, err := s.revisions.SaveCourse(ctx, c)
		if err != nil {
			return ImportOutput{}, fmt.Errorf("save course: %w", err)
		}
		s.logger.Info("course imported", "slug", input.Course, "course_id", c.ID(), "revision", rev)
		return ImportOutput{ID: c.ID().String(), Revision: rev}, nil

	default:
		return ImportOutput{}, fmt.Errorf("import: exactly one of exercise or course is required")
	}
}

func (s *Server) handleFreeze(ctx context.Context, input FreezeInput) (FreezeOutput, error) {
	if s.freezer == nil {
		return FreezeOutput{}, fmt.Errorf("freeze: snapshot store %w", errUnavailable)
	}

	switch {
	case input.Exercise != "" && input.Course == "":
		id, err := s.exerciseID(input.Exercise)
		if err != nil {
			return FreezeOutput{}, err
		}
		var f *domain.FrozenExercise
		if input.Revision > 0 {
			f, err = s.freezer.FreezeExercise(ctx, id, input.Revision)
		} else {
			f, err = s.freezer.FreezeLatestExercise(ctx, id)
		}
		if err != nil {
			return FreezeOutput{}, err
		}
		return FreezeOutput{
			FrozenID:   f.ID().String(),
			OriginalID: f.Proxy().Original.String(),
			Revision:   f.Proxy().Revision,
			Stages:     f.StageCount(),
		}, nil

	case input.Course != "" && input.Exercise == "":
		id, err := s.courseID(input.Course)
		if err != nil {
			return FreezeOutput{}, err
		}
		var f *domain.FrozenCourse
		if input.Revision > 0 {
			f, err = s.freezer.FreezeCourse(ctx, id, input.Revision)
		} else {
			f, err = s.freezer.FreezeLatestCourse(ctx, id)
		}
		if err != nil {
			return FreezeOutput{}, err
		}
		return FreezeOutput{
			FrozenID:   f.ID().String(),
			OriginalID: f.Proxy().Original.String(),
			Revision:   f.Proxy().Revision,
			Entries:    len(f.Entries()),
		}, nil

	default:
		return FreezeOutput{}, fmt.Errorf("freeze: exactly one of exercise or course is required")
	}
}

func (s *Server) handleScore(ctx context.Context, input ScoreInput) (ScoreOutput, error) {
	if s.submissions == nil || s.registry == nil {
		return ScoreOutput{}, fmt.Errorf("score: submission store %w", errUnavailable)
	}

	c, err := s.registry.GetCourse(input.Course)
	if err != nil {
		return ScoreOutput{}, err
	}
	entries, ok := c.Entries()
	if !ok {
		return ScoreOutput{}, fmt.Errorf("course %s has no fixed exercise list", input.Course)
	}

	ids := make([]domain.ExerciseID, len(entries))
	for i, e := range entries {
		ids[i] = scoring.PlayedExercise(e)
	}
	subs, err := s.submissions.Submissions(ctx, ids)
	if err != nil {
		return ScoreOutput{}, fmt.Errorf("load submissions: %w", err)
	}

	score, scored := scoring.CourseScore(entries, c.ScoringMode(), subs)
	out := ScoreOutput{
		Score:   score,
		Scored:  scored,
		Mode:    string(c.ScoringMode()),
		Entries: make([]EntryScore, len(entries)),
	}
	for i, e := range entries {
		name := e.Exercise.String()
		if slug, ok := s.registry.SlugOf(e.Exercise); ok {
			name = slug
		}
		out.Entries[i] = EntryScore{
			Exercise:    name,
			Points:      e.Points,
			Submissions: len(subs[ids[i]]),
		}
	}
	return out, nil
}

// ServeStdio starts the MCP server on stdio
func (s *Server) ServeStdio(ctx context.Context) error {
	return mcp.ServeStdio(ctx, s.mcpServer)
}

// ServeHTTP starts the MCP server on HTTP (alternative transport)
func (s *Server) ServeHTTP(ctx context.Context, addr string) error {
	return mcp.ServeHTTP(ctx, s.mcpServer, addr)
}

// GetMCPServer returns the underlying MCP server (for testing)
func (s *Server) GetMCPServer() *server.Server {
	return s.mcpServer
}

// exercise loads the referenced exercise, preferring inline source
func (s *Server) exercise(ref ExerciseRef) (*domain.Exercise, error) {
	if ref.Source != "" {
		return exercise.ParseExercise([]byte(ref.Source))
	}
	if ref.Exercise == "" {
		return nil, fmt.Errorf("exercise slug or source is required")
	}
	if s.registry == nil {
		return nil, fmt.Errorf("registry %w", errUnavailable)
	}
	return s.registry.GetExercise(ref.Exercise)
}

// exerciseID accepts a slug of the registry or a literal id
func (s *Server) exerciseID(ref string) (domain.ExerciseID, error) {
	if s.registry != nil {
		if ex, err := s.registry.GetExercise(ref); err == nil {
			return ex.ID(), nil
		}
	}
	return domain.NewExerciseIDFromString(ref)
}

// courseID accepts a slug of the registry or a literal id
func (s *Server) courseID(ref string) (domain.CourseID, error) {
	if s.registry != nil {
		if c, err := s.registry.GetCourse(ref); err == nil {
			return c.ID(), nil
		}
	}
	return domain.NewCourseIDFromString(ref)
}

func toValue(v any) (evaluator.Value, error) {
	switch x := v.(type) {
	case bool:
		return evaluator.Bool(x), nil
	case float64:
		return evaluator.Number(x), nil
	case int:
		return evaluator.Number(float64(x)), nil
	case string:
		return evaluator.Text(x), nil
	case nil:
		return evaluator.Text(""), nil
	default:
		return evaluator.Value{}, fmt.Errorf("unsupported value %T", v)
	}
}

func nameOf(ex *domain.Exercise, id domain.StageID) string {
	if st, ok := ex.Stage(id); ok {
		return st.InternalName()
	}
	return id.String()
}

func stageNames(stages []*domain.Stage) []string {
	names := make([]string, len(stages))
	for i, st := range stages {
		names[i] = st.InternalName()
	}
	return names
}

// errorList flattens joined errors into their messages
func errorList(err error) []string {
	var joined interface{ Unwrap() []error }
	if errors.As(err, &joined) {
		var out []string
		for _, e := range joined.Unwrap() {
			out = append(out, e.Error())
		}
		return out
	}
	return []string{err.Error()}
}
