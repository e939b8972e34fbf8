package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/checker"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/evaluator"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/exercise"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/queue"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/transition"
)

const playHelp = `Commands:
  submit <points> [field=value ...]  Grade the stage and move on
  submit [field=value ...]           Use the points of the last check
  check field=value ...              Send the answer to the checker queue
  hint                               Reveal the next hint
  skip                               Skip the stage
  score                              Show the running and best reachable score
  quit                               Leave without finishing`

// cmdPlay plays an exercise, given as a file or a content slug, on the
// terminal. Finished sessions are recorded as submissions.
func cmdPlay(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("exercise file or slug required (e.g., jack play fractions)")
	}

	e, err := loadEnv("jack")
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var ex *domain.Exercise
	if strings.HasSuffix(args[0], ".yaml") {
		ex, err = exercise.LoadExerciseFile(args[0])
	} else {
		var registry *exercise.Registry
		if registry, err = e.registry(); err == nil {
			ex, err = registry.GetExercise(args[0])
		}
	}
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

	opts := player.Options{Evaluator: ev, Submissions: st.submissions}
	results, detach, err := e.attachChecker(ctx, &opts)
	if err != nil {
		return err
	}
	defer detach()
	var watch resultWatcher
	if results != nil {
		watch = results
	}

	snapshot, err := st.pinner().Pin(ctx, ex)
	if err != nil {
		return err
	}
	session, err := player.Start(ctx, snapshot, opts)
	if err != nil {
		return err
	}
	return playLoop(ctx, session, watch, os.Stdin, os.Stdout)
}

// resultWatcher delivers the result of a single checker job
type resultWatcher interface {
	Subscribe(jobID string, handler queue.ResultHandler)
	Unsubscribe(jobID string)
}

// syncWriter serializes writes from the loop and from result handlers
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// playLoop runs the command loop. watch may be nil; otherwise checker
// results are announced as they arrive.
func playLoop(ctx context.Context, session *player.Session, watch resultWatcher, in io.Reader, w io.Writer) error {
	out := &syncWriter{w: w}
	fmt.Fprintln(out, playHelp)
	printStage(out, session.Current())

	scanner := bufio.NewScanner(in)
	for !session.Finished() {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		var (
			outcome transition.Outcome
			moved   bool
			err     error
		)
		switch fields[0] {
		case "submit":
			var sub player.Submission
			sub, err = parseSubmission(fields[1:])
			if err == nil {
				outcome, err = session.Submit(ctx, sub)
				moved = err == nil
			}
		case "check":
			var job *checker.Job
			job, err = session.RequestCheck(ctx, parseAnswer(fields[1:]))
			if err == nil {
				fmt.Fprintf(out, "check %s queued\n", job.ID)
				if watch != nil {
					announce(watch, job.ID.String(), out)
				}
			}
		case "hint":
			var h domain.Hint
			if h, err = session.RevealHint(); err == nil {
				fmt.Fprintf(out, "hint (-%d%%): %s\n", h.Malus, h.Text)
			}
		case "skip":
			outcome, err = session.Skip(ctx)
			moved = err == nil
		case "score":
			fmt.Fprintf(out, "score %d, best reachable %d\n", session.Score(), session.MaxRemainingScore())
		case "quit", "exit":
			return nil
		default:
			fmt.Fprintln(out, playHelp)
		}

		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		if !moved {
			continue
		}
		switch outcome.Kind {
		case transition.KindRepeat:
			fmt.Fprintln(out, "repeat")
			printStage(out, session.Current())
		case transition.KindGoTo:
			printStage(out, session.Current())
		}
	}

	fmt.Fprintf(out, "finished with %d points\n", session.Score())
	return nil
}

// announce prints the result of jobID once and stops watching it
func announce(watch resultWatcher, jobID string, out io.Writer) {
	watch.Subscribe(jobID, func(r *checker.Result) {
		watch.Unsubscribe(jobID)
		if r.Error != "" {
			fmt.Fprintf(out, "check %s %s: %s\n", r.JobID, r.Status, r.Error)
			return
		}
		fmt.Fprintf(out, "check %s %s: %d points\n", r.JobID, r.Status, r.Points)
	})
}

func printStage(out io.Writer, s *domain.Stage) {
	title := s.ExternalName()
	if title == "" {
		title = s.InternalName()
	}
	fmt.Fprintf(out, "\n== %s [%s, weight %d]\n", title, s.Kind(), s.Weight())
	if s.TaskDescription() != "" {
		fmt.Fprintln(out, s.TaskDescription())
	}
}

// parseSubmission reads "[points] [field=value ...]"
func parseSubmission(args []string) (player.Submission, error) {
	var sub player.Submission
	if len(args) > 0 && !strings.Contains(args[0], "=") {
		points, err := strconv.Atoi(args[0])
		if err != nil || points < 0 || points > 100 {
			return sub, fmt.Errorf("points must be between 0 and 100, got %q", args[0])
		}
		sub.Points = &points
		args = args[1:]
	}
	answer := parseAnswer(args)
	if len(answer) > 0 {
		sub.Input = make(evaluator.Bindings, len(answer))
		for k, v := range answer {
			sub.Input[k] = evaluator.ParseValue(v)
		}
	}
	return sub, nil
}

func parseAnswer(args []string) map[string]string {
	answer := make(map[string]string, len(args))
	for _, a := range args {
		if k, v, ok := strings.Cut(a, "="); ok && k != "" {
			answer[k] = v
		}
	}
	return answer
}
