package freeze

import (
	"context"
	"fmt"
	"sync"

	"github.com/ccogit/JACK3-Competencies-sub004/internal/domain"
)

// RevisionWriter appends revisions of live exercises
type RevisionWriter interface {
	SaveExercise(ctx context.Context, ex *domain.Exercise) (int, error)
}

// Pinner hands out the frozen snapshot sessions of a live exercise play,
// so every submission can be traced back to the exact revision the student
// saw. The first pin of an exercise instance saves it as a new revision;
// later pins reuse that revision's snapshot until a different instance of
// the exercise is pinned. Pinner is safe for concurrent use.
type Pinner struct {
	engine *Engine
	writer RevisionWriter

	mu     sync.Mutex
	pinned map[domain.ExerciseID]pin
}

type pin struct {
	source   *domain.Exercise
	snapshot *domain.FrozenExercise
}

// NewPinner creates a pinner that freezes through engine and saves unseen
// exercises with writer
func NewPinner(engine *Engine, writer RevisionWriter) *Pinner {
	return &Pinner{
		engine: engine,
		writer: writer,
		pinned: make(map[domain.ExerciseID]pin),
	}
}

// Pin returns the snapshot to play for ex
func (p *Pinner) Pin(ctx context.Context, ex *domain.Exercise) (*domain.FrozenExercise, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if cur, ok := p.pinned[ex.ID()]; ok && cur.source == ex {
		return cur.snapshot, nil
	}

	rev, err := p.writer.SaveExercise(ctx, ex)
	if err != nil {
		return nil, fmt.Errorf("pin exercise %s: %w", ex.ID(), err)
	}
	f, err := p.engine.FreezeExercise(ctx, ex.ID(), rev)
	if err != nil {
		return nil, fmt.Errorf("pin exercise %s: %w", ex.ID(), err)
	}
	p.pinned[ex.ID()] = pin{source: ex, snapshot: f}
	return f, nil
}
