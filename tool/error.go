package tool

import (
	"errors"
	"fmt"
	"strings"
)

const (
	// ErrorCodeUnknownTool is returned when a call names no registered tool.
	ErrorCodeUnknownTool = "UNKNOWN_TOOL"
	// ErrorCodeInvalidArguments is returned when arguments fail schema binding.
	ErrorCodeInvalidArguments = "INVALID_ARGUMENTS"
	// ErrorCodeExecutionFailed is returned when a handler itself fails.
	ErrorCodeExecutionFailed = "EXECUTION_FAILED"
)

var (
	// ErrUnknownTool matches errors with ErrorCodeUnknownTool.
	ErrUnknownTool = errors.New("tool: unknown tool")
	// ErrInvalidArguments matches errors with ErrorCodeInvalidArguments.
	ErrInvalidArguments = errors.New("tool: invalid arguments")
	// ErrExecutionFailed matches errors with ErrorCodeExecutionFailed.
	ErrExecutionFailed = errors.New("tool: execution failed")
	// ErrDuplicateTool is returned by Register for a name already in the catalog.
	ErrDuplicateTool = errors.New("tool: duplicate tool name")
	// ErrInvalidDefinition is returned by Register for malformed definitions.
	ErrInvalidDefinition = errors.New("tool: invalid definition")
)

// Error is a structured dispatch error that keeps a machine-readable code next
// to the human message so the bridge can decide how to surface it.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Tool    string `json:"tool,omitempty"`
	Field   string `json:"field,omitempty"`
	Cause   error  `json:"-"`
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	code := strings.TrimSpace(e.Code)
	msg := strings.TrimSpace(e.Message)
	switch {
	case code == "" && msg == "":
		return ErrorCodeExecutionFailed
	case code == "":
		return msg
	case msg == "":
		return code
	default:
		return fmt.Sprintf("%s: %s", code, msg)
	}
}

// Unwrap exposes the wrapped cause for errors.Is/errors.As.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// Is maps error codes onto the package sentinels.
func (e *Error) Is(target error) bool {
	if e == nil {
		return false
	}
	switch target {
	case ErrUnknownTool:
		return e.Code == ErrorCodeUnknownTool
	case ErrInvalidArguments:
		return e.Code == ErrorCodeInvalidArguments
	case ErrExecutionFailed:
		return e.Code == ErrorCodeExecutionFailed
	}
	return false
}

func newError(code, message string, cause error) *Error {
	cleanMsg := strings.TrimSpace(message)
	if cleanMsg == "" && cause != nil {
		cleanMsg = cause.Error()
	}
	return &Error{
		Code:    code,
		Message: cleanMsg,
		Cause:   cause,
	}
}

func invalidArgument(field, format string, args ...any) *Error {
	err := newError(ErrorCodeInvalidArguments, fmt.Sprintf(format, args...), nil)
	err.Field = field
	return err
}

// Code returns the error code carried by err, or "" for foreign errors.
func Code(err error) string {
	var toolErr *Error
	if errors.As(err, &toolErr) && toolErr != nil {
		return toolErr.Code
	}
	return ""
}

// IsProtocolError reports whether err must be surfaced as a protocol-level
// failure rather than folded into a tool result.
func IsProtocolError(err error) bool {
	return errors.Is(err, ErrUnknownTool) || errors.Is(err, ErrInvalidArguments)
}
