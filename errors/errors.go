package errors

import (
	stderrors "errors"
	"fmt"
	"path/filepath"
	"runtime"
)

// New creates a new error with file and line number information.
func New(format string, a ...interface{}) error {
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s", file, line, fmt.Sprintf(format, a...))
}

// Wrapf adds context (including file and line number) to an existing error.
// If the provided error is nil, Wrapf returns nil.
func Wrapf(err error, format string, a ...interface{}) error {
	if err == nil {
		return nil
	}
	_, file, line, ok := runtime.Caller(1)
	if !ok {
		file = "???"
		line = 0
	} else {
		file = filepath.Base(file)
	}
	return fmt.Errorf("[%s:%d] %s: %w", file, line, fmt.Sprintf(format, a...), err)
}

// Kind classifies failures of the agent loop.
type Kind string

const (
	// ProviderUnavailable means the capability provider handshake or
	// enumeration failed. Fatal at session start.
	ProviderUnavailable Kind = "provider unavailable"
	// ToolExecutionFailed means a single tool call failed. The agent
	// records it as the tool result instead of aborting the turn.
	ToolExecutionFailed Kind = "tool execution failed"
	// CompletionEndpoint means the model call itself failed.
	CompletionEndpoint Kind = "completion endpoint error"
	// MalformedToolArguments means the model produced arguments that are
	// not a JSON object.
	MalformedToolArguments Kind = "malformed tool arguments"
	// ToolLoopExceeded means a turn asked for more tool rounds than allowed.
	ToolLoopExceeded Kind = "tool loop exceeded"
	// DeadlineExceeded means a round trip outlived its configured timeout.
	DeadlineExceeded Kind = "deadline exceeded"
)

// Sentinels for use with the standard library's errors.Is.
var (
	ErrProviderUnavailable    = &Error{Kind: ProviderUnavailable}
	ErrToolExecutionFailed    = &Error{Kind: ToolExecutionFailed}
	ErrCompletionEndpoint     = &Error{Kind: CompletionEndpoint}
	ErrMalformedToolArguments = &Error{Kind: MalformedToolArguments}
	ErrToolLoopExceeded       = &Error{Kind: ToolLoopExceeded}
	ErrDeadlineExceeded       = &Error{Kind: DeadlineExceeded}
)

// Error attaches a Kind to an underlying error.
type Error struct {
	Kind Kind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return string(e.Kind)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is an *Error of the same Kind, so that any
// classified error matches its sentinel.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// E classifies err as kind. A nil err still yields a non-nil error so
// callers can raise a bare kind.
func E(kind Kind, err error) error {
	return &Error{Kind: kind, Err: err}
}

// KindOf returns the Kind of the outermost classified error in err's
// chain, or the empty Kind.
func KindOf(err error) Kind {
	var e *Error
	if stderrors.As(err, &e) {
		return e.Kind
	}
	return ""
}
