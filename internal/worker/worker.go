// Package worker implements the dispatcher's Worker: a goroutine that
// runs one task at a time, reports its outcome on a shared result
// channel, and never lets a panic become fatal to the dispatcher that
// owns it.
package worker

import (
	"context"
	"runtime"
	"runtime/debug"
	"time"

	"github.com/google/uuid"

	"github.com/mvasquez/taskpool/internal/logger"
	"github.com/mvasquez/taskpool/internal/task"
)

// ThreadFlags mirrors spec.md's opaque worker-context-creation mask,
// passed verbatim from Options.THREAD_FLAGS to every spawned Worker.
type ThreadFlags uint32

const (
	// ThreadFlagLockOSThread pins the worker goroutine to its OS thread
	// for the lifetime of the worker, via runtime.LockOSThread. Needed
	// for tasks relying on cgo or other thread-local state.
	ThreadFlagLockOSThread ThreadFlags = 1 << iota
)

// Outcome is what a worker reports back to the dispatcher once a
// regular (non-start) task finishes or panics.
type Outcome struct {
	TaskID   uint64
	WorkerID string
	Result   task.Outcome
}

// Worker runs tasks assigned to it one at a time on a dedicated
// goroutine. All state transitions happen on the dispatcher's run-loop
// goroutine via the StateMachine; the worker goroutine itself only ever
// touches the task.Resolver and the result channel.
type Worker struct {
	ID    string
	sm    *StateMachine
	flags ThreadFlags

	assign  chan assignment
	results chan<- Outcome
	stopCh  chan struct{}
	stopped chan struct{}
	ready   chan struct{}
	failed  chan struct{}
	startErr error

	execs int
}

type assignment struct {
	taskID uint64
	t      task.Task
	ctx    context.Context
}

// New creates a Worker identified by a fresh UUID (the teacher's
// convention for non-task identifiers — task-ids stay a dispatcher-owned
// monotonic counter) that will report outcomes on results.
func New(results chan<- Outcome, flags ThreadFlags) *Worker {
	return &Worker{
		ID:      uuid.NewString(),
		sm:      NewStateMachine(),
		flags:   flags,
		assign:  make(chan assignment),
		results: results,
		stopCh:  make(chan struct{}),
		stopped: make(chan struct{}),
		ready:   make(chan struct{}),
		failed:  make(chan struct{}),
	}
}

// State returns the worker's current lifecycle state. Only safe to call
// from the dispatcher's run-loop goroutine, which is the sole owner of
// the underlying StateMachine.
func (w *Worker) State() State { return w.sm.State() }

// StateMachine exposes the worker's state machine for the dispatcher to
// drive (MarkIdle/MarkBusy/MarkDying) from its run-loop.
func (w *Worker) StateMachine() *StateMachine { return w.sm }

// Execs returns how many regular tasks this worker has completed, for
// EXEC_LIMIT recycling. Start-tasks do not count.
func (w *Worker) Execs() int { return w.execs }

// Ready returns a channel closed once every start-task has succeeded and
// the worker is waiting to accept its first regular assignment.
func (w *Worker) Ready() <-chan struct{} { return w.ready }

// Failed returns a channel closed if a start-task rejected; the worker
// goroutine exits without ever becoming ready. StartErr holds the cause.
func (w *Worker) Failed() <-chan struct{} { return w.failed }

// StartErr returns the error a failed start-task settled with. Only
// meaningful after Failed() has been observed closed.
func (w *Worker) StartErr() error { return w.startErr }

// Start launches the worker's goroutine, running each start-task in
// order before the worker is available for regular assignment. The
// start-task set's membership-dedup is the dispatcher's responsibility;
// Start just runs whatever slice it is given, once, in order.
func (w *Worker) Start(ctx context.Context, startTasks []task.Task) {
	go w.run(ctx, startTasks)
}

func (w *Worker) run(ctx context.Context, startTasks []task.Task) {
	defer close(w.stopped)

	if w.flags&ThreadFlagLockOSThread != 0 {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	for _, st := range startTasks {
		o := w.runTask(ctx, st)
		if o.Status == task.StatusRejected {
			w.startErr = o.Err
			close(w.failed)
			return
		}
	}
	close(w.ready)

	for {
		select {
		case <-w.stopCh:
			return
		case a := <-w.assign:
			w.execs++
			result := w.runTask(a.ctx, a.t)
			w.reportOutcome(Outcome{TaskID: a.taskID, WorkerID: w.ID, Result: result})
		}
	}
}

// Assign hands t to the worker for execution. It must only be called
// while the worker is Idle; the caller (the dispatcher run-loop) is
// responsible for that invariant.
func (w *Worker) Assign(ctx context.Context, taskID uint64, t task.Task) {
	select {
	case w.assign <- assignment{taskID: taskID, t: t, ctx: ctx}:
	case <-w.stopped:
	}
}

// Stop signals the worker's goroutine to exit after its current task (if
// any) finishes reporting. It does not wait for in-flight work; callers
// that need to block until the goroutine has fully exited should select
// on Stopped().
func (w *Worker) Stop() {
	select {
	case <-w.stopCh:
	default:
		close(w.stopCh)
	}
}

// Stopped returns a channel closed once the worker goroutine has
// returned.
func (w *Worker) Stopped() <-chan struct{} { return w.stopped }

// runTask executes t to completion (or panic) and returns its settled
// Outcome directly, without touching the shared result channel — used
// both for start-tasks (resolved locally by run) and, via the caller in
// run's assign branch, for regular tasks.
//
// A panic is treated as a crash of the worker's execution context, not
// an ordinary task failure: spec.md §4.2 requires a fatal condition in
// the worker context to surface as the in-flight task being lost, not as
// a ordinary TaskError, and to take the worker down with it. A Task that
// wants to report a controlled failure should call Resolver.Reject, not
// panic.
func (w *Worker) runTask(ctx context.Context, t task.Task) task.Outcome {
	out := make(chan task.Outcome, 1)
	resolver := task.NewResolver(out)

	done := make(chan struct{})
	go func() {
		defer close(done)
		defer func() {
			if r := recover(); r != nil {
				logger.Error().
					Str("worker_id", w.ID).
					Interface("panic", r).
					Str("stack", string(debug.Stack())).
					Msg("task panicked, worker context presumed lost")
				out <- task.Outcome{Status: task.StatusRejected, Err: &task.WorkerLostError{WorkerID: w.ID}}
			}
		}()
		t.Execute(ctx, resolver)
	}()
	<-done

	select {
	case result := <-out:
		return result
	default:
		return task.Outcome{Status: task.StatusRejected, Err: task.ErrTaskNoResult}
	}
}

func (w *Worker) reportOutcome(o Outcome) {
	// A short retry loop rather than an unbounded blocking send: the
	// result channel is only ever momentarily full (the dispatcher
	// drains it fully on every wakeup), so this never spins for long,
	// and it keeps a slow dispatcher from wedging this worker's
	// goroutine forever.
	for {
		select {
		case w.results <- o:
			return
		case <-time.After(10 * time.Millisecond):
		case <-w.stopCh:
			select {
			case w.results <- o:
			default:
			}
			return
		}
	}
}
