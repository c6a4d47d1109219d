package health

import (
	"context"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/petal-labs/ailang-mcp/executor"
)

type fakeProber struct {
	mu       sync.Mutex
	outcomes []executor.Outcome
	commands []executor.Command
}

func (p *fakeProber) Inspect(_ context.Context, cmd executor.Command) executor.Outcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.commands = append(p.commands, cmd)
	if len(p.outcomes) == 0 {
		return executor.Outcome{Status: executor.StatusSuccess, Text: "ailang v0.5.6"}
	}
	out := p.outcomes[0]
	if len(p.outcomes) > 1 {
		p.outcomes = p.outcomes[1:]
	}
	return out
}

type recordingObserver struct {
	mu           sync.Mutex
	observations []Observation
}

func (o *recordingObserver) ObserveHealth(observation Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observations = append(o.observations, observation)
}

func TestNewMonitorValidation(t *testing.T) {
	tests := []struct {
		name string
		cfg  MonitorConfig
	}{
		{name: "nil prober", cfg: MonitorConfig{Program: "ailang"}},
		{name: "empty program", cfg: MonitorConfig{Prober: &fakeProber{}, Program: " "}},
		{name: "bad schedule", cfg: MonitorConfig{Prober: &fakeProber{}, Program: "ailang", Schedule: "every minute"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewMonitor(tt.cfg); err == nil {
				t.Fatal("NewMonitor() error = nil, want validation error")
			}
		})
	}
}

func TestCheckHealthy(t *testing.T) {
	prober := &fakeProber{outcomes: []executor.Outcome{{
		Status:   executor.StatusSuccess,
		Text:     "ailang v0.5.6\ncommit abc123\n",
		Duration: 12 * time.Millisecond,
	}}}
	observer := &recordingObserver{}
	checkedAt := time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC)

	monitor, err := NewMonitor(MonitorConfig{
		Prober:   prober,
		Program:  "ailang",
		Args:     []string{"--color=never"},
		Observer: observer,
		Now:      func() time.Time { return checkedAt },
	})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}
	if got := monitor.Last().State; got != StateUnknown {
		t.Fatalf("Last().State before probe = %q, want %q", got, StateUnknown)
	}

	report := monitor.Check(context.Background())
	if report.State != StateHealthy || report.Detail != "ailang v0.5.6" || !report.CheckedAt.Equal(checkedAt) {
		t.Fatalf("Check() = %+v, want healthy with version line", report)
	}
	if !slices.Equal(prober.commands[0].Args, []string{"--color=never", "--version"}) {
		t.Fatalf("probe args = %q, want base args then --version", prober.commands[0].Args)
	}
	if prober.commands[0].Timeout != defaultProbeTimeout {
		t.Fatalf("probe timeout = %v, want %v", prober.commands[0].Timeout, defaultProbeTimeout)
	}

	obs := observer.observations[0]
	if obs.State != StateHealthy || obs.PreviousState != StateUnknown || obs.DurationMS != 12 {
		t.Fatalf("observation = %+v, want healthy transition from unknown", obs)
	}
}

func TestCheckTracksConsecutiveFailures(t *testing.T) {
	prober := &fakeProber{outcomes: []executor.Outcome{
		{Status: executor.StatusSpawnFailed, Text: "Error: failed to start ailang: executable file not found in $PATH"},
		{Status: executor.StatusNonZero, ExitCode: 1, Text: "broken install"},
		{Status: executor.StatusSuccess, Text: "ailang v0.5.6"},
	}}
	var events []Event
	monitor, err := NewMonitor(MonitorConfig{
		Prober:  prober,
		Program: "ailang",
		OnEvent: func(e Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	for range 3 {
		monitor.Check(context.Background())
	}

	want := []struct {
		state    State
		previous State
		failures int
	}{
		{state: StateUnhealthy, previous: StateUnknown, failures: 1},
		{state: StateUnhealthy, previous: StateUnhealthy, failures: 2},
		{state: StateHealthy, previous: StateUnhealthy, failures: 0},
	}
	if len(events) != len(want) {
		t.Fatalf("events = %d, want %d", len(events), len(want))
	}
	for i, w := range want {
		e := events[i]
		if e.Report.State != w.state || e.PreviousState != w.previous || e.ConsecutiveFailures != w.failures {
			t.Fatalf("event %d = %+v, want %+v", i, e, w)
		}
	}
	if got := events[0].Report.Detail; got != "Error: failed to start ailang: executable file not found in $PATH" {
		t.Fatalf("detail = %q, want spawn diagnostic", got)
	}
}

func TestCheckIgnoresCanceledProbe(t *testing.T) {
	prober := &fakeProber{outcomes: []executor.Outcome{
		{Status: executor.StatusSuccess, Text: "ailang v0.5.6"},
		{Status: executor.StatusCanceled, ExitCode: -1, Text: "Error: command canceled"},
	}}
	observer := &recordingObserver{}
	var events []Event
	monitor, err := NewMonitor(MonitorConfig{
		Prober:   prober,
		Program:  "ailang",
		Observer: observer,
		OnEvent:  func(e Event) { events = append(events, e) },
	})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	first := monitor.Check(context.Background())
	second := monitor.Check(context.Background())

	if second.State != StateHealthy || second.Detail != first.Detail {
		t.Fatalf("Check() after cancel = %+v, want previous healthy report", second)
	}
	if got := monitor.Last().State; got != StateHealthy {
		t.Fatalf("Last().State = %q, want %q", got, StateHealthy)
	}
	if len(events) != 1 || len(observer.observations) != 1 {
		t.Fatalf("events = %d, observations = %d, want 1 each", len(events), len(observer.observations))
	}
}

func TestStartProbesImmediatelyAndStops(t *testing.T) {
	checked := make(chan Event, 4)
	monitor, err := NewMonitor(MonitorConfig{
		Prober:   &fakeProber{},
		Program:  "ailang",
		Schedule: "@every 1h",
		OnEvent:  func(e Event) { checked <- e },
	})
	if err != nil {
		t.Fatalf("NewMonitor() error = %v", err)
	}

	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := monitor.Start(context.Background()); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	select {
	case e := <-checked:
		if e.Report.State != StateHealthy {
			t.Fatalf("first probe = %+v, want healthy", e.Report)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no probe after Start()")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := monitor.Stop(ctx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if err := monitor.Stop(ctx); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
	if len(checked) != 0 {
		t.Fatalf("extra probes = %d, want one immediate probe only", len(checked))
	}
}
