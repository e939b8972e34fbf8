package sandbox

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Backend creates, feeds and removes containers
type Backend interface {
	CreateContainer(ctx context.Context, img string, cfg Config) (string, error)
	CopyFiles(ctx context.Context, containerID string, files map[string]string) error
	Exec(ctx context.Context, containerID string, cmd []string) (*ExecResult, error)
	DestroyContainer(ctx context.Context, containerID string) error
}

// Runner runs one program per container and removes the container
// afterwards. At most Config.MaxConcurrent programs run at once.
type Runner struct {
	backend Backend
	cfg     Config
	slots   chan struct{}
	logger  *slog.Logger
}

// NewRunner creates a runner on backend. Zero limits in cfg fall back to
// DefaultConfig.
func NewRunner(backend Backend, cfg Config, logger *slog.Logger) *Runner {
	def := DefaultConfig()
	if cfg.MemoryMB == 0 {
		cfg.MemoryMB = def.MemoryMB
	}
	if cfg.CPULimit == 0 {
		cfg.CPULimit = def.CPULimit
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = def.Timeout
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = def.MaxConcurrent
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		backend: backend,
		cfg:     cfg,
		slots:   make(chan struct{}, cfg.MaxConcurrent),
		logger:  logger,
	}
}

// Run executes program with the interpreter for lang. A program that exits
// non-zero is not an error; the exit code is part of the result.
func (r *Runner) Run(ctx context.Context, lang Language, program string) (*ExecResult, error) {
	spec, ok := languages[lang]
	if !ok {
		return nil, fmt.Errorf("%s: %w", lang, ErrUnsupportedLanguage)
	}
	if program == "" {
		return nil, ErrEmptyProgram
	}

	select {
	case r.slots <- struct{}{}:
		defer func() { <-r.slots }()
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	img := spec.image
	if r.cfg.Image != "" {
		img = r.cfg.Image
	}
	id, err := r.backend.CreateContainer(ctx, img, r.cfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		// The run context may already be cancelled
		cleanupCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := r.backend.DestroyContainer(cleanupCtx, id); err != nil {
			r.logger.Warn("failed to destroy container", "container_id", id, "error", err)
		}
	}()

	if err := r.backend.CopyFiles(ctx, id, map[string]string{spec.file: program}); err != nil {
		return nil, fmt.Errorf("copy program: %w", err)
	}
	res, err := r.backend.Exec(ctx, id, spec.cmd)
	if err != nil {
		return nil, err
	}

	r.logger.Debug("program finished",
		"language", lang,
		"exit_code", res.ExitCode,
		"duration", res.Duration)
	return res, nil
}
