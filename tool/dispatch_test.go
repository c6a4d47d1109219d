package tool

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
)

type recordingObserver struct {
	mu           sync.Mutex
	observations []DispatchObservation
}

func (o *recordingObserver) ObserveDispatch(observation DispatchObservation) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observations = append(o.observations, observation)
}

type echoArgs struct {
	File  string `json:"file"`
	Caps  string `json:"caps"`
	Stub  bool   `json:"ai_stub"`
	Other string `json:"search"`
}

func newTestRegistry(t *testing.T, calls *int, observer Observer) *Registry {
	t.Helper()

	reg := NewRegistry(RegistryConfig{
		Observer:  observer,
		NewCallID: func() string { return "call-1" },
	})
	err := reg.Register(Definition{
		Name:        "echo",
		Description: "Echo bound arguments",
		Input:       runLikeSchema(),
		Handler: Typed(func(_ context.Context, in echoArgs) (Result, error) {
			*calls++
			return TextResult(in.File + "|" + in.Caps), nil
		}),
	})
	if err != nil {
		t.Fatalf("Register(echo) error = %v", err)
	}
	err = reg.Register(Definition{
		Name: "empty",
		Handler: func(context.Context, map[string]any) (Result, error) {
			*calls++
			return Result{}, nil
		},
	})
	if err != nil {
		t.Fatalf("Register(empty) error = %v", err)
	}
	err = reg.Register(Definition{
		Name: "broken",
		Handler: func(context.Context, map[string]any) (Result, error) {
			*calls++
			return Result{}, errors.New("disk on fire")
		},
	})
	if err != nil {
		t.Fatalf("Register(broken) error = %v", err)
	}
	return reg
}

func TestDispatchValidCall(t *testing.T) {
	calls := 0
	observer := &recordingObserver{}
	reg := newTestRegistry(t, &calls, observer)

	result, err := reg.Dispatch(context.Background(), Call{
		Name:      "echo",
		Arguments: map[string]any{"file": "main.ail"},
	})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if got := result.Text(); got != "main.ail|IO" {
		t.Fatalf("result = %q, want defaults applied", got)
	}

	if len(observer.observations) != 1 {
		t.Fatalf("observations = %d, want 1", len(observer.observations))
	}
	obs := observer.observations[0]
	if !obs.Success || obs.ToolName != "echo" || obs.CallID != "call-1" {
		t.Fatalf("observation = %+v, want successful echo call-1", obs)
	}
}

func TestDispatchUnknownTool(t *testing.T) {
	calls := 0
	observer := &recordingObserver{}
	reg := newTestRegistry(t, &calls, observer)

	_, err := reg.Dispatch(context.Background(), Call{Name: "missing"})
	if !errors.Is(err, ErrUnknownTool) {
		t.Fatalf("Dispatch() error = %v, want ErrUnknownTool", err)
	}
	if !IsProtocolError(err) {
		t.Fatal("IsProtocolError() = false, want true")
	}
	if calls != 0 {
		t.Fatalf("handler calls = %d, want 0", calls)
	}
	if got := observer.observations[0].ErrorCode; got != ErrorCodeUnknownTool {
		t.Fatalf("observed error code = %q, want %q", got, ErrorCodeUnknownTool)
	}
}

func TestDispatchInvalidArgumentsNeverRunsHandler(t *testing.T) {
	calls := 0
	reg := newTestRegistry(t, &calls, nil)

	_, err := reg.Dispatch(context.Background(), Call{Name: "echo", Arguments: map[string]any{"caps": "IO"}})
	if !errors.Is(err, ErrInvalidArguments) {
		t.Fatalf("Dispatch() error = %v, want ErrInvalidArguments", err)
	}
	if !strings.Contains(err.Error(), `echo: argument "file" is required`) {
		t.Fatalf("Dispatch() error = %q, want field description", err)
	}
	if calls != 0 {
		t.Fatalf("handler calls = %d, want 0", calls)
	}
}

func TestDispatchNormalizesEmptyResult(t *testing.T) {
	calls := 0
	reg := newTestRegistry(t, &calls, nil)

	result, err := reg.Dispatch(context.Background(), Call{Name: "empty"})
	if err != nil {
		t.Fatalf("Dispatch() error = %v", err)
	}
	if len(result.Content) != 1 || result.Content[0].Type != ContentTypeText {
		t.Fatalf("result = %+v, want one text entry", result)
	}
}

func TestDispatchHandlerFailure(t *testing.T) {
	calls := 0
	reg := newTestRegistry(t, &calls, nil)

	_, err := reg.Dispatch(context.Background(), Call{Name: "broken"})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrExecutionFailed", err)
	}
	if IsProtocolError(err) {
		t.Fatal("IsProtocolError() = true, want false for handler failures")
	}
	if !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("Dispatch() error = %q, want handler cause", err)
	}
}

func TestDispatchRecoversHandlerPanic(t *testing.T) {
	observer := &recordingObserver{}
	reg := NewRegistry(RegistryConfig{Observer: observer})
	err := reg.Register(Definition{
		Name: "boom",
		Handler: func(context.Context, map[string]any) (Result, error) {
			panic("index out of range")
		},
	})
	if err != nil {
		t.Fatalf("Register(boom) error = %v", err)
	}

	_, err = reg.Dispatch(context.Background(), Call{Name: "boom"})
	if !errors.Is(err, ErrExecutionFailed) {
		t.Fatalf("Dispatch() error = %v, want ErrExecutionFailed", err)
	}
	if !strings.Contains(err.Error(), "handler panicked: index out of range") {
		t.Fatalf("Dispatch() error = %q, want panic value", err)
	}
	if len(observer.observations) != 1 {
		t.Fatalf("observations = %d, want 1", len(observer.observations))
	}
	if obs := observer.observations[0]; obs.Success || obs.ErrorCode != ErrorCodeExecutionFailed {
		t.Fatalf("observation = %+v, want failed EXECUTION_FAILED", obs)
	}
}

func TestRegisterRejectsBadDefinitions(t *testing.T) {
	noop := func(context.Context, map[string]any) (Result, error) { return TextResult(""), nil }

	reg := NewRegistry(RegistryConfig{})
	if err := reg.Register(Definition{Name: "check", Handler: noop}); err != nil {
		t.Fatalf("Register(check) error = %v", err)
	}

	tests := []struct {
		name string
		def  Definition
		want error
	}{
		{name: "duplicate", def: Definition{Name: "check", Handler: noop}, want: ErrDuplicateTool},
		{name: "empty name", def: Definition{Name: "", Handler: noop}, want: ErrInvalidDefinition},
		{name: "padded name", def: Definition{Name: " run", Handler: noop}, want: ErrInvalidDefinition},
		{name: "nil handler", def: Definition{Name: "run"}, want: ErrInvalidDefinition},
		{name: "bad schema", def: Definition{Name: "run", Handler: noop, Input: Schema{{Name: "n", Type: "integer"}}}, want: ErrInvalidDefinition},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := reg.Register(tt.def); !errors.Is(err, tt.want) {
				t.Fatalf("Register() error = %v, want %v", err, tt.want)
			}
		})
	}

	if reg.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", reg.Len())
	}
}

func TestDefinitionsKeepRegistrationOrder(t *testing.T) {
	noop := func(context.Context, map[string]any) (Result, error) { return TextResult(""), nil }
	reg := NewRegistry(RegistryConfig{})
	for _, name := range []string{"prompt", "check", "run", "builtins", "eval"} {
		if err := reg.Register(Definition{Name: name, Handler: noop}); err != nil {
			t.Fatalf("Register(%s) error = %v", name, err)
		}
	}

	var got []string
	for _, def := range reg.Definitions() {
		got = append(got, def.Name)
	}
	if strings.Join(got, ",") != "prompt,check,run,builtins,eval" {
		t.Fatalf("Definitions() = %v, want registration order", got)
	}
}

func TestErrorString(t *testing.T) {
	tests := []struct {
		err  *Error
		want string
	}{
		{err: &Error{Code: ErrorCodeUnknownTool, Message: `unknown tool "x"`}, want: `UNKNOWN_TOOL: unknown tool "x"`},
		{err: &Error{Message: "only message"}, want: "only message"},
		{err: &Error{Code: ErrorCodeInvalidArguments}, want: ErrorCodeInvalidArguments},
		{err: &Error{}, want: ErrorCodeExecutionFailed},
	}
	for _, tt := range tests {
		if got := tt.err.Error(); got != tt.want {
			t.Fatalf("Error() = %q, want %q", got, tt.want)
		}
	}
}
