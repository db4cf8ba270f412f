// Package task defines the unit of work the dispatcher executes: the
// Task interface, its two concrete shapes (a named Call resolved through
// a Registry, and a Custom task supplying its own execute body), and the
// error taxonomy a task's outcome can settle with.
package task

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/mvasquez/taskpool/internal/logger"
)

// Status describes how a task's promise ultimately settled.
type Status int

const (
	StatusPending Status = iota
	StatusFulfilled
	StatusRejected
)

func (s Status) String() string {
	switch s {
	case StatusPending:
		return "pending"
	case StatusFulfilled:
		return "fulfilled"
	case StatusRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Resolver is handed to a Task's Execute method. Resolve or Reject must
// be called at most once; any call after the first is a no-op logged at
// Warn rather than a panic, since a buggy user Task is not grounds for
// bringing the worker down.
type Resolver interface {
	Resolve(value any)
	Reject(err error)
}

// Outcome is the settled result of a task, handed back to the dispatcher
// by a worker once execution finishes (or panics).
type Outcome struct {
	Status Status
	Value  any
	Err    error
}

// Task is anything the dispatcher can hand to a worker. Execute must
// call exactly one of Resolver.Resolve / Resolver.Reject before
// returning, or returning without settling is treated by the worker as
// an implicit Reject with ErrTaskNoResult.
type Task interface {
	Execute(ctx context.Context, r Resolver)
}

// resolver is the concrete Resolver implementation used by workers. It
// is safe for task code to call Resolve/Reject more than once, even from
// different goroutines: settled lets only the first call deliver.
type resolver struct {
	settled atomic.Bool
	out     chan<- Outcome
}

// NewResolver constructs a Resolver that delivers exactly one Outcome on
// out. It is used by the worker package; exported so Custom tasks in
// tests can exercise the exact same double-settle guard the dispatcher
// relies on.
func NewResolver(out chan<- Outcome) Resolver {
	return &resolver{out: out}
}

func (r *resolver) Resolve(value any) {
	r.settle(Outcome{Status: StatusFulfilled, Value: value})
}

func (r *resolver) Reject(err error) {
	r.settle(Outcome{Status: StatusRejected, Err: err})
}

func (r *resolver) settle(o Outcome) {
	if !r.settled.CompareAndSwap(false, true) {
		logger.Warn().Msg("task resolver settled more than once, ignoring")
		return
	}
	r.out <- o
}

// Handler is a named callable a CallTask resolves against. Registered
// ahead of time into a Registry, per the "explicit, testable table"
// strategy for dynamic dispatch-by-name.
type Handler func(ctx context.Context, args []any) (any, error)

// CallTask is a Task identified by name plus positional arguments,
// looked up in a Registry at execution time rather than carrying a
// function value directly — this is what crosses process or API
// boundaries (the admin HTTP surface submits CallTasks by name).
type CallTask struct {
	Name string
	Args []any
	reg  *Registry
}

// NewCallTask binds a named call to the registry it will be resolved
// against.
func NewCallTask(reg *Registry, name string, args ...any) *CallTask {
	return &CallTask{Name: name, Args: args, reg: reg}
}

func (c *CallTask) Execute(ctx context.Context, r Resolver) {
	h, ok := c.reg.Lookup(c.Name)
	if !ok {
		r.Reject(fmt.Errorf("%w: %s", ErrHandlerNotFound, c.Name))
		return
	}
	value, err := h(ctx, c.Args)
	if err != nil {
		r.Reject(&TaskError{Cause: err})
		return
	}
	r.Resolve(value)
}
