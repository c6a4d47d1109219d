package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Call is one inbound tool invocation.
type Call struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments,omitempty"`
}

// Dispatch validates the call against the named tool's schema and runs its
// handler. It fails with ErrUnknownTool or ErrInvalidArguments before any
// handler runs; a handler failure is returned as ErrExecutionFailed.
func (r *Registry) Dispatch(ctx context.Context, call Call) (Result, error) {
	callID := r.newCallID()
	logger := r.logger.With(slog.String("tool", call.Name), slog.String("call_id", callID))

	start := time.Now()
	result, err := r.dispatch(ctx, call)
	duration := time.Since(start)

	observation := DispatchObservation{
		ToolName:   call.Name,
		CallID:     callID,
		DurationMS: duration.Milliseconds(),
		Success:    err == nil,
		ErrorCode:  Code(err),
	}
	r.observer.ObserveDispatch(observation)

	if err != nil {
		logger.Warn("tool call failed", slog.String("code", observation.ErrorCode), slog.Any("error", err))
		return Result{}, err
	}
	logger.Info("tool call completed", slog.Duration("duration", duration))
	return result, nil
}

func (r *Registry) dispatch(ctx context.Context, call Call) (Result, error) {
	def, ok := r.defs[call.Name]
	if !ok {
		err := newError(ErrorCodeUnknownTool, fmt.Sprintf("unknown tool %q", call.Name), nil)
		err.Tool = call.Name
		return Result{}, err
	}

	args, err := def.Input.Bind(call.Arguments)
	if err != nil {
		var toolErr *Error
		if errors.As(err, &toolErr) {
			toolErr.Tool = def.Name
			toolErr.Message = def.Name + ": " + toolErr.Message
		}
		return Result{}, err
	}

	result, err := r.invoke(ctx, def, args)
	if err != nil {
		failed := newError(ErrorCodeExecutionFailed, err.Error(), err)
		failed.Tool = def.Name
		return Result{}, failed
	}
	if len(result.Content) == 0 {
		result = TextResult("")
	}
	return result, nil
}

// invoke runs the handler and turns a panic into an error so one bad call
// cannot take down the server or the CLI.
func (r *Registry) invoke(ctx context.Context, def Definition, args map[string]any) (result Result, err error) {
	defer func() {
		if v := recover(); v != nil {
			r.logger.Error("tool handler panicked", slog.String("tool", def.Name), slog.Any("panic", v))
			result, err = Result{}, fmt.Errorf("handler panicked: %v", v)
		}
	}()
	return def.Handler(ctx, args)
}
