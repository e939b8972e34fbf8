// Package player walks a student through the stage graph of an exercise.
package player

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/scoring"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/transition"
)

// JobPublisher sends checker jobs for asynchronously graded stages
type JobPublisher interface {
	PublishJob(ctx context.Context, job *checker.Job) error
}

// SubmissionSink receives the final score of every finished session
type SubmissionSink interface {
	SaveSubmission(ctx context.Context, session uuid.UUID, sub scoring.Submission) error
}

// Options configures a session
type Options struct {
	Evaluator evaluator.Evaluator
	// Tracker is required for stages that are checked asynchronously
	Tracker     *checker.Tracker
	Jobs        JobPublisher
	Submissions SubmissionSink
	Logger      *slog.Logger
}

// Submission is a student's answer to the current stage
type Submission struct {
	// Points graded synchronously, 0..100. Nil takes the points from the
	// latest checker job of the stage.
	Points *int
	// Input is exposed to expressions as [input=name]
	Input evaluator.Bindings
}

// Session is one attempt at an exercise. It reads the graph but never
// changes it. A Session is not safe for concurrent use.
type Session struct {
	domain.AggregateRoot

	id       uuid.UUID
	graph    domain.Graph
	eval     evaluator.Evaluator
	resolver *transition.Resolver
	tracker  *checker.Tracker
	jobs     JobPublisher
	sink     SubmissionSink
	logger   *slog.Logger

	vars     evaluator.Bindings
	current  *domain.Stage
	visit    int   // stage entries so far, numbering checker keys
	shown    []int // maluses of hints shown on the current stage
	path     scoring.Path
	finished bool
}

// Start opens a session on graph: variables are initialized in declaration
// order and the start stage is entered.
func Start(ctx context.Context, graph domain.Graph, opts Options) (*Session, error) {
	start, ok := graph.StartStage()
	if !ok {
		return nil, fmt.Errorf("start session: %w", domain.ErrMissingStartStage)
	}
	if opts.Evaluator == nil {
		opts.Evaluator = evaluator.NewLocal()
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Session{
		id:       uuid.New(),
		graph:    graph,
		eval:     opts.Evaluator,
		resolver: transition.NewResolver(opts.Evaluator),
		tracker:  opts.Tracker,
		jobs:     opts.Jobs,
		sink:     opts.Submissions,
		logger:   opts.Logger,
		vars:     make(evaluator.Bindings),
	}

	for _, decl := range graph.Variables() {
		if decl.Initializer.IsEmpty() {
			s.vars[decl.Name] = evaluator.Text("")
			continue
		}
		v, err := evaluator.Eval(ctx, s.eval, decl.Initializer, s.vars)
		if err != nil {
			return nil, fmt.Errorf("initialize variable %q: %w", decl.Name, err)
		}
		s.vars[decl.Name] = v
	}

	if err := s.enter(ctx, start); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Session) ID() uuid.UUID          { return s.id }
func (s *Session) Current() *domain.Stage { return s.current }
func (s *Session) Finished() bool         { return s.finished }

// ExerciseID returns the identity of the played graph
func (s *Session) ExerciseID() domain.ExerciseID { return s.graph.ID() }

// Pinned returns the live exercise revision a frozen graph was made of.
// It reports false for sessions on a live exercise.
func (s *Session) Pinned() (domain.ExerciseProxy, bool) {
	f, ok := s.graph.(interface{ Proxy() domain.ExerciseProxy })
	if !ok {
		return domain.ExerciseProxy{}, false
	}
	return f.Proxy(), true
}

// Variables returns a copy of the current variable values by name
func (s *Session) Variables() evaluator.Bindings { return s.vars.Clone() }

// Results returns the stage results that count for the score
func (s *Session) Results() []scoring.StageResult { return s.path.Results() }

// Key identifies the current stage visit for checker jobs. Entering a
// stage again yields a new key.
func (s *Session) Key() checker.Key {
	return checker.Key{Session: s.id, Stage: s.current.ID(), Visit: s.visit}
}

// RevealHint shows the next hint of the current stage
func (s *Session) RevealHint() (domain.Hint, error) {
	if s.finished {
		return domain.Hint{}, domain.ErrSessionFinished
	}
	hints := s.current.Hints()
	if len(s.shown) >= len(hints) {
		return domain.Hint{}, fmt.Errorf("stage %q: %w", s.current.InternalName(), domain.ErrNoHintLeft)
	}
	h := hints[len(s.shown)]
	s.shown = append(s.shown, h.Malus)
	return h, nil
}

// RequestCheck sends the answer of the current stage to an asynchronous
// checker. The stage cannot be left until the job reports back.
func (s *Session) RequestCheck(ctx context.Context, answer map[string]string) (*checker.Job, error) {
	if s.finished {
		return nil, domain.ErrSessionFinished
	}
	if s.jobs == nil || s.tracker == nil {
		return nil, errors.New("request check: session has no checker queue")
	}
	job := checker.NewJob(s.Key(), s.current.Kind(), answer)
	if err := s.jobs.PublishJob(ctx, job); err != nil {
		return nil, fmt.Errorf("request check: %w", err)
	}
	return job, nil
}

// Submit grades the current stage and moves along the first matching stage
// transition. Stages that wait for checker jobs reject submissions while
// jobs are pending. A failed submission leaves the session unchanged.
func (s *Session) Submit(ctx context.Context, sub Submission) (transition.Outcome, error) {
	if s.finished {
		return transition.Outcome{}, domain.ErrSessionFinished
	}
	points, err := s.points(sub)
	if err != nil {
		return transition.Outcome{}, err
	}

	// Check updates work on a copy until the transition is resolved
	vars := s.vars.Clone()
	b := withInput(vars, sub.Input)
	if err := s.apply(ctx, domain.MomentBeforeCheck, vars, b); err != nil {
		return transition.Outcome{}, err
	}
	result := scoring.StageResult{
		Stage:       s.current.ID(),
		Points:      points,
		Weight:      s.current.Weight(),
		HintMaluses: append([]int(nil), s.shown...),
	}
	if err := s.apply(ctx, domain.MomentAfterCheck, vars, b); err != nil {
		return transition.Outcome{}, err
	}

	out, err := s.resolver.Resolve(ctx, s.current, false, b)
	if err != nil {
		return transition.Outcome{}, err
	}
	s.vars = vars
	s.path.Add(result)
	return out, s.leave(ctx, out, false, result.Effective(s.graph.HintMalusType()))
}

// Skip leaves the current stage through its skip transitions. A stage that
// does not allow skipping fails with domain.ErrIllegalSkip and the session
// is left unchanged.
func (s *Session) Skip(ctx context.Context) (transition.Outcome, error) {
	if s.finished {
		return transition.Outcome{}, domain.ErrSessionFinished
	}
	out, err := s.resolver.Resolve(ctx, s.current, true, s.vars.Clone())
	if err != nil {
		return transition.Outcome{}, err
	}
	s.path.Add(scoring.StageResult{
		Stage:   s.current.ID(),
		Weight:  s.current.Weight(),
		Skipped: true,
	})
	return out, s.leave(ctx, out, true, 0)
}

// Score returns the final score of a finished session, or the running
// score of an unfinished one
func (s *Session) Score() int {
	results := s.path.Results()
	if s.finished {
		return scoring.TotalScore(results, s.graph.HintMalusType())
	}
	return scoring.RunningScore(results, s.graph.HintMalusType(), s.graph.SuffixWeights(), s.current.ID())
}

// MaxRemainingScore returns the best score still reachable
func (s *Session) MaxRemainingScore() int {
	results := s.path.Results()
	if s.finished {
		return scoring.TotalScore(results, s.graph.HintMalusType())
	}
	return scoring.MaxRemainingScore(results, s.graph.HintMalusType(), s.graph.SuffixWeights(), s.current.ID())
}

func (s *Session) points(sub Submission) (int, error) {
	key := s.Key()
	if s.current.MustWaitForPendingJobs() && s.tracker != nil && s.tracker.Pending(key) > 0 {
		return 0, fmt.Errorf("stage %q: %w", s.current.InternalName(), domain.ErrPendingCheckerJobs)
	}
	if sub.Points != nil {
		return *sub.Points, nil
	}
	if s.tracker == nil {
		return 0, fmt.Errorf("stage %q: no points and no checker result", s.current.InternalName())
	}
	r, ok := s.tracker.Result(key)
	if !ok {
		return 0, fmt.Errorf("stage %q: no checker result: %w", s.current.InternalName(), domain.ErrPendingCheckerJobs)
	}
	if !r.OK() {
		s.logger.Warn("checker job did not complete, grading with zero points",
			"session_id", s.id,
			"stage_id", key.Stage.String(),
			"job_id", r.JobID,
			"status", r.Status)
		return 0, nil
	}
	return r.Points, nil
}

func (s *Session) leave(ctx context.Context, out transition.Outcome, skipped bool, points int) error {
	s.RecordEvent(domain.NewStageLeftEvent(s.id, s.current.ID(), out.Kind.String(), skipped, points))

	exit := domain.MomentNormalExit
	switch {
	case skipped:
		exit = domain.MomentSkip
	case out.Kind == transition.KindRepeat:
		exit = domain.MomentRepeat
	}
	if err := s.apply(ctx, exit, s.vars, s.vars.Clone()); err != nil {
		return err
	}

	switch out.Kind {
	case transition.KindRepeat:
		s.path.Repeat()
		return s.enter(ctx, s.current)
	case transition.KindGoTo:
		next, ok := s.graph.Stage(out.Target)
		if !ok {
			return fmt.Errorf("stage %s: %w", out.Target, domain.ErrStageNotFound)
		}
		return s.enter(ctx, next)
	default:
		s.finished = true
		if s.tracker != nil {
			s.tracker.Forget(s.id)
		}
		score := scoring.TotalScore(s.path.Results(), s.graph.HintMalusType())
		s.RecordEvent(domain.NewSessionFinishedEvent(s.id, s.graph.ID(), score))
		s.logger.Info("session finished", "session_id", s.id, "score", score)
		if s.sink == nil {
			return nil
		}
		sub := scoring.Submission{Exercise: s.graph.ID(), Points: score, SubmittedAt: time.Now().UTC()}
		if p, ok := s.Pinned(); ok {
			sub.Exercise, sub.Snapshot, sub.Revision = p.Original, s.graph.ID(), p.Revision
		}
		if err := s.sink.SaveSubmission(ctx, s.id, sub); err != nil {
			return fmt.Errorf("record submission: %w", err)
		}
		return nil
	}
}

func (s *Session) enter(ctx context.Context, stage *domain.Stage) error {
	s.current = stage
	s.visit++
	s.shown = nil
	s.RecordEvent(domain.NewStageEnteredEvent(s.id, stage))
	return s.apply(ctx, domain.MomentEnter, s.vars, s.vars.Clone())
}

// apply runs the updates of the current stage for moment in list order and
// stores the new values in vars. Each update sees the results of the
// previous ones through b.
func (s *Session) apply(ctx context.Context, m domain.Moment, vars, b evaluator.Bindings) error {
	for _, u := range s.current.Updates(m) {
		if u.Expression.IsEmpty() {
			continue
		}
		decl, ok := s.graph.Variable(u.Variable)
		if !ok {
			return fmt.Errorf("stage %q %s update: %w", s.current.InternalName(), m, domain.ErrVariableNotFound)
		}
		v, err := evaluator.Eval(ctx, s.eval, u.Expression, b)
		if err != nil {
			return fmt.Errorf("stage %q %s update of %q: %w", s.current.InternalName(), m, decl.Name, err)
		}
		vars[decl.Name] = v
		b[decl.Name] = v
	}
	return nil
}

// withInput merges vars with the submitted input
func withInput(vars, input evaluator.Bindings) evaluator.Bindings {
	b := vars.Clone()
	for k, v := range input {
		b[evaluator.InputPrefix+k] = v
	}
	return b
}
