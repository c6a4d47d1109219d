package executor

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"
)

type recordingObserver struct {
	mu           sync.Mutex
	observations []Observation
}

func (o *recordingObserver) ObserveExec(observation Observation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observations = append(o.observations, observation)
}

func (o *recordingObserver) last(t *testing.T) Observation {
	t.Helper()
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.observations) == 0 {
		t.Fatal("no observations recorded")
	}
	return o.observations[len(o.observations)-1]
}

func helperCommand(args ...string) Command {
	return Command{
		Name:    "helper",
		Program: os.Args[0],
		Args:    append([]string{"-test.run=^TestHelperProcess$", "--"}, args...),
		Env: map[string]string{
			"GO_WANT_EXECUTOR_HELPER": "1",
		},
	}
}

func TestExecuteReduction(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{name: "clean exit prefers stdout", args: []string{"both", "out", "err"}, want: "out"},
		{name: "clean exit falls back to stderr", args: []string{"both", "", "only stderr"}, want: "only stderr"},
		{name: "clean exit with no output", args: []string{"both", "", ""}, want: ""},
		{name: "non-zero prefers stderr", args: []string{"fail", "2", "partial", "bad input"}, want: "bad input"},
		{name: "non-zero falls back to stdout", args: []string{"fail", "3", "partial", ""}, want: "partial"},
	}

	exec := New(Config{})
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := exec.Execute(context.Background(), helperCommand(tt.args...))
			if got != tt.want {
				t.Fatalf("Execute() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestExecuteNonZeroWithoutOutput(t *testing.T) {
	observer := &recordingObserver{}
	exec := New(Config{Observer: observer})

	got := exec.Execute(context.Background(), helperCommand("fail", "4", "", ""))
	if !strings.HasPrefix(got, "Error: ") {
		t.Fatalf("Execute() = %q, want synthetic diagnostic", got)
	}
	if !strings.Contains(got, "exit status 4") {
		t.Fatalf("Execute() = %q, want exit status in diagnostic", got)
	}

	obs := observer.last(t)
	if obs.Status != StatusNonZero {
		t.Fatalf("status = %q, want %q", obs.Status, StatusNonZero)
	}
	if obs.ExitCode != 4 {
		t.Fatalf("exit code = %d, want 4", obs.ExitCode)
	}
}

func TestInspectReportsStatus(t *testing.T) {
	exec := New(Config{})

	out := exec.Inspect(context.Background(), helperCommand("fail", "3", "", "type error"))
	if out.Status != StatusNonZero || out.ExitCode != 3 {
		t.Fatalf("Inspect() = %+v, want non-zero exit 3", out)
	}
	if out.Text != "type error" {
		t.Fatalf("Text = %q, want stderr reduction", out.Text)
	}

	out = exec.Inspect(context.Background(), helperCommand("both", "ailang v0.5.6", ""))
	if out.Status != StatusSuccess || out.Text != "ailang v0.5.6" {
		t.Fatalf("Inspect() = %+v, want success with stdout", out)
	}
}

func TestExecuteTimeout(t *testing.T) {
	observer := &recordingObserver{}
	exec := New(Config{Observer: observer})

	cmd := helperCommand("sleep")
	cmd.Timeout = 200 * time.Millisecond

	start := time.Now()
	got := exec.Execute(context.Background(), cmd)
	elapsed := time.Since(start)

	if got != "Error: command timed out after 200ms" {
		t.Fatalf("Execute() = %q, want timeout diagnostic", got)
	}
	if elapsed > cmd.Timeout+2*time.Second {
		t.Fatalf("Execute() took %s, want bounded by timeout", elapsed)
	}
	if obs := observer.last(t); obs.Status != StatusTimedOut {
		t.Fatalf("status = %q, want %q", obs.Status, StatusTimedOut)
	}
}

func TestExecuteCanceled(t *testing.T) {
	exec := New(Config{})
	ctx, cancel := context.WithCancel(context.Background())

	go func() {
		time.Sleep(100 * time.Millisecond)
		cancel()
	}()

	got := exec.Execute(ctx, helperCommand("sleep"))
	if got != "Error: command canceled" {
		t.Fatalf("Execute() = %q, want cancellation diagnostic", got)
	}
}

func TestExecuteSpawnFailure(t *testing.T) {
	observer := &recordingObserver{}
	exec := New(Config{Observer: observer})

	got := exec.Execute(context.Background(), Command{
		Program: "/nonexistent/ailang",
		Args:    []string{"check", "main.ail"},
	})
	if !strings.HasPrefix(got, "Error: failed to start /nonexistent/ailang") {
		t.Fatalf("Execute() = %q, want spawn failure diagnostic", got)
	}

	obs := observer.last(t)
	if obs.Status != StatusSpawnFailed {
		t.Fatalf("status = %q, want %q", obs.Status, StatusSpawnFailed)
	}
	if obs.Command != "check" {
		t.Fatalf("command label = %q, want check", obs.Command)
	}
}

func TestExecuteCapsOutput(t *testing.T) {
	observer := &recordingObserver{}
	exec := New(Config{Observer: observer})

	cmd := helperCommand("flood", "5000")
	cmd.MaxOutputBytes = 100

	got := exec.Execute(context.Background(), cmd)
	if len(got) != 100 {
		t.Fatalf("len(Execute()) = %d, want 100", len(got))
	}
	if strings.Trim(got, "x") != "" {
		t.Fatalf("Execute() = %q, want only flood bytes", got)
	}
	if obs := observer.last(t); !obs.Truncated || obs.Status != StatusSuccess {
		t.Fatalf("observation = %+v, want truncated success", obs)
	}
}

func TestExecuteStdin(t *testing.T) {
	exec := New(Config{})

	t.Run("explicit input", func(t *testing.T) {
		cmd := helperCommand("cat")
		cmd.Stdin = strings.NewReader("1 + 2\n")
		if got := exec.Execute(context.Background(), cmd); got != "1 + 2\n" {
			t.Fatalf("Execute() = %q, want echoed input", got)
		}
	})

	t.Run("no input is inherited", func(t *testing.T) {
		if got := exec.Execute(context.Background(), helperCommand("stdin-len")); got != "0" {
			t.Fatalf("Execute() = %q, want 0 bytes read", got)
		}
	})
}

func TestExecuteFilter(t *testing.T) {
	exec := New(Config{})

	cmd := helperCommand("both", "hello", "")
	cmd.Filter = strings.ToUpper
	if got := exec.Execute(context.Background(), cmd); got != "HELLO" {
		t.Fatalf("Execute() = %q, want filtered stdout", got)
	}

	// an empty filtered result must not fall back to stderr noise
	noisy := helperCommand("both", "hello", "warning: newer version available")
	noisy.Filter = func(string) string { return "" }
	if got := exec.Execute(context.Background(), noisy); got != "" {
		t.Fatalf("Execute() = %q, want empty filtered stdout", got)
	}

	failing := helperCommand("fail", "1", "hello", "")
	failing.Filter = func(string) string { return "filtered" }
	if got := exec.Execute(context.Background(), failing); got != "hello" {
		t.Fatalf("Execute() = %q, want unfiltered output on failure", got)
	}
}

func TestCappedBuffer(t *testing.T) {
	buf := newCappedBuffer(4)
	n, err := buf.Write([]byte("ab"))
	if err != nil || n != 2 {
		t.Fatalf("Write() = %d, %v", n, err)
	}
	n, err = buf.Write([]byte("cé"))
	if err != nil || n != 3 {
		t.Fatalf("Write() = %d, %v, want full length accepted", n, err)
	}
	if !buf.Truncated() {
		t.Fatal("Truncated() = false, want true")
	}
	if got := buf.String(); got != "abc" {
		t.Fatalf("String() = %q, want partial rune dropped", got)
	}
}

func TestCappedBufferKeepsBytesBeforeCut(t *testing.T) {
	tests := []struct {
		name  string
		limit int
		input string
		want  string
	}{
		{name: "invalid byte before cut", limit: 4, input: "\xffabcd", want: "\xffabc"},
		{name: "whole rune at cut", limit: 5, input: "abcé!", want: "abcé"},
		{name: "three byte rune split", limit: 4, input: "ab€cd", want: "ab"},
		{name: "invalid byte then split rune", limit: 3, input: "\xfeaé", want: "\xfea"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := newCappedBuffer(tt.limit)
			_, _ = buf.Write([]byte(tt.input))
			if !buf.Truncated() {
				t.Fatal("Truncated() = false, want true")
			}
			if got := buf.String(); got != tt.want {
				t.Fatalf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_EXECUTOR_HELPER") != "1" {
		return
	}

	args := os.Args
	for i, arg := range args {
		if arg == "--" {
			args = args[i+1:]
			break
		}
	}
	if len(args) == 0 {
		os.Exit(2)
	}

	switch args[0] {
	case "both":
		fmt.Fprint(os.Stdout, args[1])
		fmt.Fprint(os.Stderr, args[2])
		os.Exit(0)
	case "fail":
		code, _ := strconv.Atoi(args[1])
		fmt.Fprint(os.Stdout, args[2])
		fmt.Fprint(os.Stderr, args[3])
		os.Exit(code)
	case "sleep":
		time.Sleep(10 * time.Second)
		os.Exit(0)
	case "flood":
		n, _ := strconv.Atoi(args[1])
		fmt.Fprint(os.Stdout, strings.Repeat("x", n))
		os.Exit(0)
	case "cat":
		_, _ = io.Copy(os.Stdout, os.Stdin)
		os.Exit(0)
	case "stdin-len":
		data, _ := io.ReadAll(os.Stdin)
		fmt.Fprint(os.Stdout, len(data))
		os.Exit(0)
	}
	os.Exit(2)
}
