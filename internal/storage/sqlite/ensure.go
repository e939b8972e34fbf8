package sqlite

import (
	"github.com/ccogit/JACK3-Competencies-sub004/internal/freeze"
	"github.com/ccogit/JACK3-Competencies-sub004/internal/player"
)

// Ensure SQLite stores implement the interfaces they are wired into.
var (
	_ freeze.RevisionHistory = (*RevisionStore)(nil)
	_ freeze.SnapshotStore   = (*SnapshotStore)(nil)
	_ player.SubmissionSink  = (*SubmissionStore)(nil)
)
