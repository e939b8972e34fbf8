// Package sandbox runs submitted programs in throwaway Docker containers.
package sandbox

import (
	"errors"
	"time"
)

// Language selects the image and interpreter a program runs with
type Language string

const (
	LanguageR      Language = "r"
	LanguagePython Language = "python"
)

type languageSpec struct {
	image string
	file  string
	cmd   []string
}

var languages = map[Language]languageSpec{
	LanguageR:      {image: "r-base:4.4.1", file: "main.R", cmd: []string{"Rscript", "--vanilla", "main.R"}},
	LanguagePython: {image: "python:3.12-alpine", file: "main.py", cmd: []string{"python3", "main.py"}},
}

// Supported reports whether programs in lang can be run
func Supported(lang Language) bool {
	_, ok := languages[lang]
	return ok
}

// ExecResult holds the output from a sandbox execution.
type ExecResult struct {
	ExitCode int           `json:"exit_code"`
	Stdout   string        `json:"stdout"`
	Stderr   string        `json:"stderr"`
	Duration time.Duration `json:"duration"`
}

// OK reports a zero exit code
func (r *ExecResult) OK() bool {
	return r.ExitCode == 0
}

// Config holds container limits. Image overrides the language default.
type Config struct {
	Image         string        `json:"image,omitempty"`
	MemoryMB      int           `json:"memory_mb"`
	CPULimit      float64       `json:"cpu_limit"`
	NetworkOff    bool          `json:"network_off"`
	Timeout       time.Duration `json:"timeout"`
	MaxConcurrent int           `json:"max_concurrent"`
}

// DefaultConfig returns the limits used for checker programs.
func DefaultConfig() Config {
	return Config{
		MemoryMB:      256,
		CPULimit:      0.5,
		NetworkOff:    true,
		Timeout:       30 * time.Second,
		MaxConcurrent: 4,
	}
}

var (
	ErrUnsupportedLanguage = errors.New("unsupported sandbox language")
	ErrEmptyProgram        = errors.New("empty program")
)
