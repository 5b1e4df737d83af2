// Package runner executes external tools with an explicit argument vector,
// a deadline and captured output.
package runner

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"DropFM/logger"
)

var commandContext = exec.CommandContext

var (
	// ErrTimedOut is returned when a command exceeded its deadline and was killed.
	ErrTimedOut = errors.New("command timed out")
	// ErrDisabled is returned by the Disabled runner.
	ErrDisabled = errors.New("command execution disabled")
)

const (
	defaultTailLines = 20
	defaultMaxOutput = 256 * 1024
	killGrace        = 5 * time.Second
)

// Command describes one invocation. Args never pass through a shell.
type Command struct {
	Binary  string
	Args    []string
	Dir     string
	Env     []string // appended to the current environment
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Binary + " " + strings.Join(c.Args, " "))
}

// Result holds what a finished process produced.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ExitError reports a non-zero exit status.
type ExitError struct {
	Binary     string
	ExitCode   int
	StderrTail string
}

func (e *ExitError) Error() string {
	if e.StderrTail == "" {
		return fmt.Sprintf("%s exited with status %d", e.Binary, e.ExitCode)
	}
	return fmt.Sprintf("%s exited with status %d: %s", e.Binary, e.ExitCode, e.StderrTail)
}

// Runner starts external programs.
type Runner interface {
	Run(ctx context.Context, cmd Command) (*Result, error)
}

// LocalBinary runs commands on the local host in their own process group.
type LocalBinary struct {
	DefaultTimeout time.Duration
	TailLines      int
	MaxOutputBytes int
}

// NewLocalBinary 创建本地进程执行器
func NewLocalBinary(timeout time.Duration, tailLines int) *LocalBinary {
	return &LocalBinary{DefaultTimeout: timeout, TailLines: tailLines}
}

// Run executes cmd and waits for it. On timeout the whole process group is
// killed and the returned error matches ErrTimedOut. When the parent context
// is cancelled the context error is returned instead.
func (r *LocalBinary) Run(ctx context.Context, c Command) (*Result, error) {
	if strings.TrimSpace(c.Binary) == "" {
		return nil, errors.New("runner: binary required")
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = r.DefaultTimeout
	}
	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	maxOut := r.MaxOutputBytes
	if maxOut <= 0 {
		maxOut = defaultMaxOutput
	}
	stdout := newTailBuffer(maxOut)
	stderr := newTailBuffer(maxOut)

	cmd := commandContext(runCtx, c.Binary, c.Args...) //nolint:gosec
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdout = stdout
	cmd.Stderr = stderr
	cmd.WaitDelay = killGrace
	setProcessGroup(cmd)

	logger.Debug("Executing command", logger.String("command", c.String()), logger.Duration("timeout", timeout))

	start := time.Now()
	err := cmd.Run()
	res := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		res.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return res, nil
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		return res, fmt.Errorf("%w: %s after %s", ErrTimedOut, c.Binary, timeout)
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return res, &ExitError{
			Binary:     c.Binary,
			ExitCode:   exitErr.ExitCode(),
			StderrTail: TailLines(res.Stderr, r.tailLines()),
		}
	}
	return res, fmt.Errorf("start %s: %w", c.Binary, err)
}

func (r *LocalBinary) tailLines() int {
	if r.TailLines > 0 {
		return r.TailLines
	}
	return defaultTailLines
}

// Disabled never spawns anything.
type Disabled struct{}

func (Disabled) Run(context.Context, Command) (*Result, error) {
	return nil, ErrDisabled
}

var (
	_ Runner = (*LocalBinary)(nil)
	_ Runner = Disabled{}
)

// TailLines returns the last n non-empty lines of text.
func TailLines(text string, n int) string {
	if n <= 0 {
		return ""
	}
	lines := strings.Split(strings.ReplaceAll(text, "\r\n", "\n"), "\n")
	kept := make([]string, 0, n)
	for i := len(lines) - 1; i >= 0 && len(kept) < n; i-- {
		if line := strings.TrimRight(lines[i], " \t\r"); line != "" {
			kept = append(kept, line)
		}
	}
	for i, j := 0, len(kept)-1; i < j; i, j = i+1, j-1 {
		kept[i], kept[j] = kept[j], kept[i]
	}
	return strings.Join(kept, "\n")
}
