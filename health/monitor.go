// Package health probes the ailang program in the background so operators see
// a missing or broken installation before the first tool call fails.
package health

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/petal-labs/ailang-mcp/executor"
)

const (
	// DefaultSchedule runs a probe every five minutes.
	DefaultSchedule = "@every 5m"

	defaultProbeTimeout = 10 * time.Second
)

// State is the probed availability of the program.
type State string

const (
	StateUnknown   State = "unknown"
	StateHealthy   State = "healthy"
	StateUnhealthy State = "unhealthy"
)

// Prober runs a command and reports how it finished. *executor.Executor
// satisfies it.
type Prober interface {
	Inspect(ctx context.Context, cmd executor.Command) executor.Outcome
}

// Report is the result of one probe.
type Report struct {
	Program   string
	State     State
	Detail    string
	CheckedAt time.Time
	Duration  time.Duration
}

// Event is delivered to MonitorConfig.OnEvent after every probe.
type Event struct {
	Report              Report
	PreviousState       State
	ConsecutiveFailures int
}

// MonitorConfig configures a Monitor.
type MonitorConfig struct {
	Prober  Prober
	Program string
	Args    []string
	Env     map[string]string
	Dir     string

	// Schedule is a standard cron expression or descriptor such as "@every 1m".
	Schedule string
	Timeout  time.Duration

	Now      func() time.Time
	Logger   *slog.Logger
	Observer Observer
	OnEvent  func(Event)
}

// Monitor periodically probes the program with --version.
type Monitor struct {
	prober   Prober
	program  string
	args     []string
	env      map[string]string
	dir      string
	schedule cron.Schedule
	spec     string
	timeout  time.Duration
	now      func() time.Time
	logger   *slog.Logger
	observer Observer
	onEvent  func(Event)

	mu       sync.Mutex
	last     Report
	failures int

	runMu  sync.Mutex
	cron   *cron.Cron
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMonitor validates cfg and creates a stopped monitor.
func NewMonitor(cfg MonitorConfig) (*Monitor, error) {
	if cfg.Prober == nil {
		return nil, errors.New("health: prober is nil")
	}
	if strings.TrimSpace(cfg.Program) == "" {
		return nil, errors.New("health: program is required")
	}
	if strings.TrimSpace(cfg.Schedule) == "" {
		cfg.Schedule = DefaultSchedule
	}
	schedule, err := cron.ParseStandard(cfg.Schedule)
	if err != nil {
		return nil, fmt.Errorf("health: invalid schedule %q: %w", cfg.Schedule, err)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultProbeTimeout
	}
	if cfg.Now == nil {
		cfg.Now = func() time.Time { return time.Now().UTC() }
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Observer == nil {
		cfg.Observer = noopObserver{}
	}
	if cfg.OnEvent == nil {
		cfg.OnEvent = func(Event) {}
	}

	return &Monitor{
		prober:   cfg.Prober,
		program:  cfg.Program,
		args:     slices.Clone(cfg.Args),
		env:      cfg.Env,
		dir:      cfg.Dir,
		schedule: schedule,
		spec:     cfg.Schedule,
		timeout:  cfg.Timeout,
		now:      cfg.Now,
		logger:   cfg.Logger,
		observer: cfg.Observer,
		onEvent:  cfg.OnEvent,
		last:     Report{Program: cfg.Program, State: StateUnknown},
	}, nil
}

// Start probes once immediately and then on every scheduled tick. Calling
// Start on a running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	if m == nil {
		return errors.New("health: monitor is nil")
	}

	m.runMu.Lock()
	defer m.runMu.Unlock()
	if m.cancel != nil {
		return nil
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	m.cancel = cancel
	m.cron = cron.New()
	m.cron.Schedule(m.schedule, cron.FuncJob(func() {
		m.Check(loopCtx)
	}))

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Check(loopCtx)
	}()
	m.cron.Start()

	m.logger.Debug("health monitor started", slog.String("schedule", m.spec))
	return nil
}

// Stop halts scheduling and waits for in-flight probes, or for ctx.
func (m *Monitor) Stop(ctx context.Context) error {
	if m == nil {
		return nil
	}

	m.runMu.Lock()
	cancel := m.cancel
	c := m.cron
	m.cancel = nil
	m.cron = nil
	m.runMu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		m.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Check runs one probe, records it and returns the report. A probe canceled
// through ctx is not recorded and the previous report is returned.
func (m *Monitor) Check(ctx context.Context) Report {
	out := m.prober.Inspect(ctx, executor.Command{
		Name:           "health",
		Program:        m.program,
		Args:           append(slices.Clone(m.args), "--version"),
		Env:            m.env,
		Dir:            m.dir,
		Timeout:        m.timeout,
		MaxOutputBytes: 64 << 10,
	})
	if out.Status == executor.StatusCanceled {
		// shutdown interrupted the probe; it says nothing about ailang
		return m.Last()
	}

	report := Report{
		Program:   m.program,
		State:     StateHealthy,
		Detail:    firstLine(out.Text),
		CheckedAt: m.now(),
		Duration:  out.Duration,
	}
	if out.Status != executor.StatusSuccess {
		report.State = StateUnhealthy
	}

	m.mu.Lock()
	previous := m.last.State
	if report.State == StateHealthy {
		m.failures = 0
	} else {
		m.failures++
	}
	failures := m.failures
	m.last = report
	m.mu.Unlock()

	m.log(report, previous, failures)
	m.observer.ObserveHealth(Observation{
		Program:             report.Program,
		State:               report.State,
		PreviousState:       previous,
		ConsecutiveFailures: failures,
		DurationMS:          report.Duration.Milliseconds(),
	})
	m.onEvent(Event{Report: report, PreviousState: previous, ConsecutiveFailures: failures})
	return report
}

// Last returns the most recent report, or an unknown state before the first
// probe completes.
func (m *Monitor) Last() Report {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

func (m *Monitor) log(report Report, previous State, failures int) {
	attrs := []any{
		slog.String("program", report.Program),
		slog.String("state", string(report.State)),
		slog.String("detail", report.Detail),
		slog.Duration("duration", report.Duration),
	}
	switch {
	case report.State == StateUnhealthy:
		m.logger.Warn("ailang unavailable", append(attrs, slog.Int("consecutive_failures", failures))...)
	case previous != StateHealthy:
		m.logger.Info("ailang available", attrs...)
	default:
		m.logger.Debug("ailang health check passed", attrs...)
	}
}

func firstLine(text string) string {
	text = strings.TrimSpace(text)
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		return strings.TrimSpace(text[:i])
	}
	return text
}
