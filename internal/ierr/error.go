// Package ierr defines Intent-Engine's error taxonomy: a small set of
// stable error codes shared by every service, the ToolServer, and the CLI.
package ierr

import "fmt"

// Kind identifies which row of the error taxonomy an error belongs to.
type Kind int

const (
	KindInternal Kind = iota
	KindTaskNotFound
	KindInvalidInput
	KindCircularDependency
	KindTaskBlocked
	KindUncompletedChildren
	KindActionNotAllowed
	KindNotAProject
	KindDatabaseError
)

// Error is the concrete error type every service returns.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Cause }

// Code returns the stable string code for the {error, code} envelope.
func (e *Error) Code() string {
	switch e.Kind {
	case KindTaskNotFound:
		return "TASK_NOT_FOUND"
	case KindInvalidInput:
		return "INVALID_INPUT"
	case KindCircularDependency:
		return "CIRCULAR_DEPENDENCY"
	case KindTaskBlocked:
		return "TASK_BLOCKED"
	case KindUncompletedChildren:
		return "UNCOMPLETED_CHILDREN"
	case KindActionNotAllowed:
		return "ACTION_NOT_ALLOWED"
	case KindNotAProject:
		return "NOT_A_PROJECT"
	case KindDatabaseError:
		return "DATABASE_ERROR"
	default:
		return "INTERNAL_ERROR"
	}
}

// Constructors, one per taxonomy row.

func TaskNotFound(id int64) *Error {
	return &Error{Kind: KindTaskNotFound, Message: fmt.Sprintf("task not found: %d", id)}
}

func InvalidInput(msg string) *Error {
	return &Error{Kind: KindInvalidInput, Message: "invalid input: " + msg}
}

func CircularDependency(blocking, blocked int64) *Error {
	return &Error{
		Kind: KindCircularDependency,
		Message: fmt.Sprintf(
			"circular dependency detected: adding dependency from task %d to task %d would create a cycle",
			blocking, blocked,
		),
	}
}

func TaskBlocked(taskID int64, blockingIDs []int64) *Error {
	return &Error{
		Kind:    KindTaskBlocked,
		Message: fmt.Sprintf("task %d is blocked by incomplete tasks: %v", taskID, blockingIDs),
	}
}

func UncompletedChildren() *Error {
	return &Error{Kind: KindUncompletedChildren, Message: "uncompleted children exist"}
}

func ActionNotAllowed(msg string) *Error {
	return &Error{Kind: KindActionNotAllowed, Message: "action not allowed: " + msg}
}

func NotAProject() *Error {
	return &Error{Kind: KindNotAProject, Message: "current directory is not an Intent-Engine project"}
}

func Database(cause error) *Error {
	return &Error{Kind: KindDatabaseError, Message: "database error", Cause: cause}
}

func Internal(cause error) *Error {
	return &Error{Kind: KindInternal, Message: "internal error", Cause: cause}
}

// Response is the wire envelope CLI and ToolServer both produce on failure.
type Response struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

// ToResponse converts any error into the stable {error, code} envelope,
// wrapping non-*Error values as internal errors.
func ToResponse(err error) Response {
	e := As(err)
	return Response{Error: e.Error(), Code: e.Code()}
}

// As coerces err into *Error, wrapping foreign errors as internal.
func As(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		return e
	}
	return Internal(err)
}

// Code is a convenience wrapper around As(err).Code() for non-nil errors.
func Code(err error) string {
	if err == nil {
		return ""
	}
	return As(err).Code()
}
