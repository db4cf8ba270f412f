package task

import "errors"

// ErrHandlerNotFound is returned when a CallTask names a handler that was
// never registered.
var ErrHandlerNotFound = errors.New("task: handler not found")

// ErrTaskNoResult is the Err a worker synthesizes when a Task's Execute
// returns without calling Resolve or Reject.
var ErrTaskNoResult = errors.New("task: execute returned without settling")

// TaskError wraps the error a CallTask's Handler returned. It
// distinguishes an ordinary application-level failure from the
// dispatcher-originated errors below (TimeoutError, WorkerLostError,
// ShutdownError), all of which a caller can tell apart with errors.As.
type TaskError struct {
	Cause error
}

func (e *TaskError) Error() string { return "task failed: " + e.Cause.Error() }
func (e *TaskError) Unwrap() error { return e.Cause }

// TimeoutError is delivered when a task's TASK_TIMEOUT elapses before it
// settles. The worker running it is always replaced; never auto-retried.
type TimeoutError struct {
	TaskID uint64
}

func (e *TimeoutError) Error() string {
	return "task timed out before settling"
}

// WorkerLostError is delivered to a task whose execution panicked,
// taking its worker down, and to every task still running when the
// dispatcher is stopped. Never auto-retried; the caller decides whether
// to resubmit.
type WorkerLostError struct {
	WorkerID string
}

func (e *WorkerLostError) Error() string {
	return "worker lost before task completed: " + e.WorkerID
}

// ShutdownError is delivered to every task still queued (never assigned
// to a worker) when the dispatcher is stopped.
type ShutdownError struct{}

func (e *ShutdownError) Error() string { return "dispatcher stopped before task completed" }

// SubmissionError is returned synchronously from Call/Execute — never
// delivered via a promise — when a task cannot be accepted at all
// because the dispatcher is already stopped.
type SubmissionError struct {
	Reason string
}

func (e *SubmissionError) Error() string { return "task rejected: " + e.Reason }

// OptionError is returned synchronously from SetOption when a proposed
// value is invalid, such as POOL_SIZE_MIN exceeding POOL_SIZE_MAX.
type OptionError struct {
	Option string
	Reason string
}

func (e *OptionError) Error() string {
	return "invalid option " + e.Option + ": " + e.Reason
}
