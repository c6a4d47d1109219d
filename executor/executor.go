package executor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"slices"
	"time"
)

const (
	// DefaultTimeout bounds a command that does not set its own timeout.
	DefaultTimeout = 30 * time.Second
	// DefaultMaxOutputBytes caps each of stdout and stderr.
	DefaultMaxOutputBytes = 1 << 20

	defaultWaitDelay = 500 * time.Millisecond
)

// Status classifies how a subprocess finished.
type Status string

const (
	StatusSuccess     Status = "success"
	StatusNonZero     Status = "non_zero"
	StatusTimedOut    Status = "timed_out"
	StatusCanceled    Status = "canceled"
	StatusSpawnFailed Status = "spawn_failed"
)

// Command describes one subprocess invocation. Arguments are passed as an
// argument vector; no shell is involved, so values need no quoting.
type Command struct {
	// Name labels the invocation in logs and metrics. Defaults to Args[0].
	Name    string
	Program string
	Args    []string
	// Stdin feeds the process. When nil the process reads from the null device.
	Stdin io.Reader
	Env   map[string]string
	Dir   string

	Timeout        time.Duration
	MaxOutputBytes int

	// Filter post-processes stdout of a clean exit, like a pipeline stage
	// after the program. Its result is returned as is, even when empty;
	// stderr is not consulted.
	Filter func(stdout string) string
}

func (c Command) label() string {
	if c.Name != "" {
		return c.Name
	}
	if len(c.Args) > 0 {
		return c.Args[0]
	}
	return c.Program
}

// Config configures an Executor.
type Config struct {
	Logger   *slog.Logger
	Observer Observer
	// WaitDelay bounds how long Execute waits for output pipes to drain after
	// the process has been killed.
	WaitDelay time.Duration
}

// Executor runs commands. It holds no per-call state and is safe for
// concurrent use.
type Executor struct {
	logger    *slog.Logger
	observer  Observer
	waitDelay time.Duration
}

// New creates an executor.
func New(cfg Config) *Executor {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.WaitDelay <= 0 {
		cfg.WaitDelay = defaultWaitDelay
	}
	return &Executor{
		logger:    cfg.Logger,
		observer:  cfg.Observer,
		waitDelay: cfg.WaitDelay,
	}
}

// Outcome summarizes a finished command for callers that need to know how it
// ended, not just what it printed.
type Outcome struct {
	Status   Status
	ExitCode int
	// Text is the same reduction Execute returns.
	Text     string
	Duration time.Duration
}

type outcome struct {
	program   string
	timeout   time.Duration
	stdout    string
	stderr    string
	status    Status
	exitCode  int
	state     string
	filtered  bool
	err       error
	duration  time.Duration
	truncated bool
}

// Execute runs the command and reduces its outcome to one string:
//
//   - clean exit: stdout, or stderr when stdout is empty and no Filter ran
//   - non-zero exit: stderr, or stdout when stderr is empty
//   - timeout, cancellation, spawn failure: a short "Error: ..." diagnostic
func (e *Executor) Execute(ctx context.Context, c Command) string {
	return e.run(ctx, c).text()
}

// Inspect runs the command like Execute and also reports its status.
func (e *Executor) Inspect(ctx context.Context, c Command) Outcome {
	out := e.run(ctx, c)
	return Outcome{
		Status:   out.status,
		ExitCode: out.exitCode,
		Text:     out.text(),
		Duration: out.duration,
	}
}

func (e *Executor) run(ctx context.Context, c Command) outcome {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	limit := c.MaxOutputBytes
	if limit <= 0 {
		limit = DefaultMaxOutputBytes
	}

	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	// #nosec G204 -- program is operator configuration; args are an argv, never a shell string.
	cmd := exec.CommandContext(execCtx, c.Program, slices.Clone(c.Args)...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), flattenEnv(c.Env)...)
	}
	cmd.WaitDelay = e.waitDelay

	stdout := newCappedBuffer(limit)
	stderr := newCappedBuffer(limit)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	start := time.Now()
	err := cmd.Run()

	out := outcome{
		program:   c.Program,
		timeout:   timeout,
		stdout:    stdout.String(),
		stderr:    stderr.String(),
		err:       err,
		duration:  time.Since(start),
		truncated: stdout.Truncated() || stderr.Truncated(),
	}
	out.status, out.exitCode, out.state = classify(ctx, execCtx, cmd, err)
	if out.status == StatusSuccess && c.Filter != nil {
		out.stdout = c.Filter(out.stdout)
		out.filtered = true
	}

	e.report(c, out)
	return out
}

func classify(parent, execCtx context.Context, cmd *exec.Cmd, err error) (Status, int, string) {
	state := ""
	if cmd.ProcessState != nil {
		state = cmd.ProcessState.String()
	}

	if err == nil {
		return StatusSuccess, 0, state
	}
	if execCtx.Err() != nil {
		// The parent's own deadline counts as a timeout too; only an explicit
		// cancel from the caller is reported as cancellation.
		if errors.Is(parent.Err(), context.Canceled) {
			return StatusCanceled, -1, state
		}
		return StatusTimedOut, -1, state
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return StatusNonZero, exitErr.ExitCode(), state
	}
	if errors.Is(err, exec.ErrWaitDelay) && cmd.ProcessState != nil {
		// The process exited but left its pipes open; trust its exit status.
		if cmd.ProcessState.Success() {
			return StatusSuccess, 0, state
		}
		return StatusNonZero, cmd.ProcessState.ExitCode(), state
	}
	return StatusSpawnFailed, -1, state
}

func (o outcome) text() string {
	switch o.status {
	case StatusSuccess:
		if o.stdout != "" || o.filtered {
			return o.stdout
		}
		return o.stderr
	case StatusNonZero:
		if o.stderr != "" {
			return o.stderr
		}
		if o.stdout != "" {
			return o.stdout
		}
		if o.state != "" {
			return fmt.Sprintf("Error: %s failed (%s)", o.program, o.state)
		}
		return fmt.Sprintf("Error: %s exited with status %d", o.program, o.exitCode)
	case StatusTimedOut:
		return fmt.Sprintf("Error: command timed out after %s", o.timeout)
	case StatusCanceled:
		return "Error: command canceled"
	default:
		return fmt.Sprintf("Error: failed to start %s: %v", o.program, o.err)
	}
}

func (e *Executor) report(c Command, out outcome) {
	attrs := []any{
		slog.String("command", c.label()),
		slog.String("status", string(out.status)),
		slog.Int("exit_code", out.exitCode),
		slog.Duration("duration", out.duration),
	}
	switch out.status {
	case StatusSuccess, StatusNonZero:
		e.logger.Debug("command finished", attrs...)
	case StatusSpawnFailed:
		e.logger.Warn("command failed to start", append(attrs, slog.Any("error", out.err))...)
	default:
		e.logger.Warn("command aborted", attrs...)
	}
	if out.truncated {
		e.logger.Warn("command output truncated", slog.String("command", c.label()))
	}

	e.observer.ObserveExec(Observation{
		Command:    c.label(),
		Status:     out.status,
		ExitCode:   out.exitCode,
		DurationMS: out.duration.Milliseconds(),
		Truncated:  out.truncated,
	})
}

func flattenEnv(values map[string]string) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	slices.Sort(keys)

	out := make([]string, 0, len(values))
	for _, key := range keys {
		out = append(out, key+"="+values[key])
	}
	return out
}
