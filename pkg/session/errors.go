package session

import "fmt"

// Error is a stable gateway error with a machine-readable code. Two Errors
// match under errors.Is when their codes are equal, so callers can compare
// against the sentinel values below regardless of message detail.
type Error struct {
	Code    string
	Message string
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is matches errors by code.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	// ErrInvalidToolSet is returned when the requested tool set is not supported
	ErrInvalidToolSet = &Error{Code: "invalid_tool_set", Message: "unsupported tool set"}

	// ErrNotFound is returned when the session id is unknown
	ErrNotFound = &Error{Code: "session_not_found", Message: "session not found"}

	// ErrExpired is returned when the session idled past its TTL
	ErrExpired = &Error{Code: "session_expired", Message: "session expired"}

	// ErrConcurrentQuery is returned when a query is already in flight on the session
	ErrConcurrentQuery = &Error{Code: "concurrent_query_in_progress", Message: "another query is already in progress for this session"}

	// ErrInvalidQuery is returned when the query text is empty or too long
	ErrInvalidQuery = &Error{Code: "invalid_query", Message: "query must be 1-2000 characters"}

	// ErrTimeout is returned when query execution exceeded its deadline
	ErrTimeout = &Error{Code: "query_timeout", Message: "query execution timed out"}

	// ErrExecutionFailed is returned when the agent layer failed
	ErrExecutionFailed = &Error{Code: "execution_failure", Message: "query execution failed"}
)

// InvalidToolSetError returns an ErrInvalidToolSet naming the rejected set.
func InvalidToolSetError(toolSet string) error {
	return &Error{
		Code:    ErrInvalidToolSet.Code,
		Message: fmt.Sprintf("unsupported tool set: %s", toolSet),
	}
}

// ExecutionError wraps an agent-layer failure as ErrExecutionFailed.
func ExecutionError(cause error) error {
	return &Error{
		Code:    ErrExecutionFailed.Code,
		Message: ErrExecutionFailed.Message,
		cause:   cause,
	}
}
