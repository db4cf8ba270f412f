package dispatcher

import (
	"context"

	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/events"
	"github.com/mvasquez/taskpool/internal/promise"
	"github.com/mvasquez/taskpool/internal/reactor"
	"github.com/mvasquez/taskpool/internal/task"
)

// Handler is a named callable registered with a Dispatcher and resolved
// by name when a Call is submitted.
type Handler = task.Handler

// Task is anything a Dispatcher can execute directly via Execute.
type Task = task.Task

// Future is a read-only handle on a task's eventual result.
type Future = promise.Future[any]

// Publisher receives best-effort lifecycle events from a Dispatcher. It
// is never consulted to recover dispatcher state.
type Publisher = events.Publisher

// Dispatcher is an in-process worker pool: submit named or custom tasks,
// tune pool size and timeouts at runtime, and shut down cleanly. All
// dispatcher-owned state is mutated on a single internal reactor
// goroutine; Call, Execute and the getters are safe to call from any
// goroutine.
type Dispatcher struct {
	inner    *dispatch.Dispatcher
	reactor  reactor.Reactor
	registry *task.Registry
}

// New constructs a Dispatcher with its own private reactor run-loop and
// handler registry. opts is validated up front.
func New(opts Options) (*Dispatcher, error) {
	r := reactor.New()
	reg := task.NewRegistry()
	inner, err := dispatch.New(r, reg, opts)
	if err != nil {
		return nil, err
	}
	return &Dispatcher{inner: inner, reactor: r, registry: reg}, nil
}

// RegisterHandler binds a name a Call can target to h. Safe to call
// before or after the Dispatcher starts handling submissions.
func (d *Dispatcher) RegisterHandler(name string, h Handler) {
	d.registry.Register(name, h)
}

// SetPublisher wires an optional events.Publisher the Dispatcher
// notifies of lifecycle events. A nil publisher disables emission.
func (d *Dispatcher) SetPublisher(p Publisher) {
	d.inner.SetPublisher(p)
}

// Call submits a named, registry-resolved task with positional args,
// returning the allocated task-id and a Future settled once the task
// completes.
func (d *Dispatcher) Call(name string, args ...any) (uint64, *Future, error) {
	return d.inner.Call(name, args...)
}

// Execute submits a caller-supplied Task directly, bypassing the
// handler registry.
func (d *Dispatcher) Execute(t Task) (uint64, *Future, error) {
	return d.inner.Execute(t)
}

// AddStartTask adds t to the start-task set, which every newly spawned
// worker runs once before accepting regular tasks. Adding the same
// (comparable) t twice has no further effect.
func (d *Dispatcher) AddStartTask(t Task) {
	d.inner.AddStartTask(t)
}

// RemoveStartTask undoes a prior AddStartTask.
func (d *Dispatcher) RemoveStartTask(t Task) {
	d.inner.RemoveStartTask(t)
}

// SetOption tunes a single Option at runtime, validating the resulting
// Options before applying it.
func (d *Dispatcher) SetOption(key Option, value any) error {
	return d.inner.SetOption(key, value)
}

// Options returns the Dispatcher's current configuration.
func (d *Dispatcher) Options() Options {
	return d.inner.Options()
}

// Stats returns a snapshot of the Dispatcher's live pool and queue
// state.
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	return d.inner.Stats(ctx)
}

// Stop rejects queued tasks with ShutdownError, rejects in-flight tasks
// with WorkerLostError without waiting for them, and retires every
// worker, returning once that pass has run or ctx expires first.
func (d *Dispatcher) Stop(ctx context.Context) error {
	return d.inner.Stop(ctx)
}
