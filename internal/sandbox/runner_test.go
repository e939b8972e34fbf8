package sandbox

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type fakeBackend struct {
	mu        sync.Mutex
	images    []string
	files     map[string]string
	cmds      [][]string
	destroyed int
	running   atomic.Int32
	peak      atomic.Int32

	result   *ExecResult
	execErr  error
	execWait time.Duration
}

func (f *fakeBackend) CreateContainer(_ context.Context, img string, _ Config) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images = append(f.images, img)
	return "c1", nil
}

func (f *fakeBackend) CopyFiles(_ context.Context, _ string, files map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files = files
	return nil
}

func (f *fakeBackend) Exec(ctx context.Context, _ string, cmd []string) (*ExecResult, error) {
	n := f.running.Add(1)
	defer f.running.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}

	f.mu.Lock()
	f.cmds = append(f.cmds, cmd)
	f.mu.Unlock()

	if f.execWait > 0 {
		select {
		case <-time.After(f.execWait):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.execErr != nil {
		return nil, f.execErr
	}
	if f.result != nil {
		return f.result, nil
	}
	return &ExecResult{}, nil
}

func (f *fakeBackend) DestroyContainer(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.destroyed++
	return nil
}

func TestRunner_Run(t *testing.T) {
	backend := &fakeBackend{result: &ExecResult{Stdout: "42\n"}}
	r := NewRunner(backend, Config{}, nil)

	res, err := r.Run(context.Background(), LanguageR, "x <- 42; cat(x)")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if res.Stdout != "42\n" || !res.OK() {
		t.Errorf("result = %+v", res)
	}
	if backend.images[0] != "r-base:4.4.1" {
		t.Errorf("image = %q, want r-base", backend.images[0])
	}
	if backend.files["main.R"] != "x <- 42; cat(x)" {
		t.Errorf("files = %v", backend.files)
	}
	if backend.cmds[0][0] != "Rscript" {
		t.Errorf("cmd = %v", backend.cmds[0])
	}
	if backend.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", backend.destroyed)
	}
}

func TestRunner_ImageOverride(t *testing.T) {
	backend := &fakeBackend{}
	r := NewRunner(backend, Config{Image: "registry.local/r:custom"}, nil)
	if _, err := r.Run(context.Background(), LanguageR, "1"); err != nil {
		t.Fatal(err)
	}
	if backend.images[0] != "registry.local/r:custom" {
		t.Errorf("image = %q", backend.images[0])
	}
}

func TestRunner_Errors(t *testing.T) {
	tests := []struct {
		name    string
		lang    Language
		program string
		execErr error
		want    error
	}{
		{"unsupported language", Language("cobol"), "DISPLAY 1", nil, ErrUnsupportedLanguage},
		{"empty program", LanguagePython, "", nil, ErrEmptyProgram},
		{"exec failure", LanguagePython, "print(1)", context.DeadlineExceeded, context.DeadlineExceeded},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{execErr: tt.execErr}
			r := NewRunner(backend, Config{}, nil)
			_, err := r.Run(context.Background(), tt.lang, tt.program)
			if !errors.Is(err, tt.want) {
				t.Errorf("Run() error = %v, want %v", err, tt.want)
			}
			if tt.execErr != nil && backend.destroyed != 1 {
				t.Errorf("container should be removed after a failed exec")
			}
		})
	}
}

func TestRunner_Timeout(t *testing.T) {
	backend := &fakeBackend{execWait: time.Second}
	r := NewRunner(backend, Config{Timeout: 20 * time.Millisecond}, nil)

	_, err := r.Run(context.Background(), LanguageR, "Sys.sleep(10)")
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Run() error = %v, want deadline exceeded", err)
	}
	if backend.destroyed != 1 {
		t.Errorf("destroyed = %d, want 1", backend.destroyed)
	}
}

func TestRunner_LimitsConcurrency(t *testing.T) {
	backend := &fakeBackend{execWait: 20 * time.Millisecond}
	r := NewRunner(backend, Config{MaxConcurrent: 2}, nil)

	var wg sync.WaitGroup
	for i := 0; i < 6; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Run(context.Background(), LanguagePython, "print(1)"); err != nil {
				t.Errorf("Run() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if peak := backend.peak.Load(); peak > 2 {
		t.Errorf("peak concurrency = %d, want <= 2", peak)
	}
}

func TestDemuxOutput(t *testing.T) {
	frame := func(stream byte, s string) []byte {
		n := len(s)
		return append([]byte{stream, 0, 0, 0, byte(n >> 24), byte(n >> 16), byte(n >> 8), byte(n)}, s...)
	}

	tests := []struct {
		name       string
		data       []byte
		wantStdout string
		wantStderr string
	}{
		{"multiplexed", append(frame(1, "out\n"), frame(2, "err\n")...), "out\n", "err\n"},
		{"stdout only", frame(1, "[1] 3"), "[1] 3", ""},
		{"raw tty output", []byte("plain text"), "plain text", ""},
		{"empty", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout, stderr := demuxOutput(tt.data)
			if stdout != tt.wantStdout || stderr != tt.wantStderr {
				t.Errorf("demuxOutput() = %q, %q; want %q, %q", stdout, stderr, tt.wantStdout, tt.wantStderr)
			}
		})
	}
}

func TestSupported(t *testing.T) {
	if !Supported(LanguageR) || !Supported(LanguagePython) {
		t.Error("R and Python should be supported")
	}
	if Supported(Language("java")) {
		t.Error("Java should not be supported")
	}
}
