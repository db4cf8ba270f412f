// Package dispatch implements the Dispatcher: the worker-pool lifecycle
// manager, task queue, per-worker state machine, timeout/recovery logic,
// and event-loop-safe result settlement that is this module's core.
//
// All internal mutable state (queue, pending table, worker table,
// options, start-task set) is touched only from callbacks run on the
// injected reactor.Reactor — the Go reading of "a single cooperatively
// scheduled reactor thread owns this state, so no locking is required."
// Workers run on their own goroutines and communicate back only through
// the shared result channel, exactly as spec.md's concurrency model
// describes.
package dispatch

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/mvasquez/taskpool/internal/events"
	"github.com/mvasquez/taskpool/internal/logger"
	"github.com/mvasquez/taskpool/internal/metrics"
	"github.com/mvasquez/taskpool/internal/promise"
	"github.com/mvasquez/taskpool/internal/reactor"
	"github.com/mvasquez/taskpool/internal/task"
	"github.com/mvasquez/taskpool/internal/worker"
)

// idleSweepInterval is the cadence of the periodic idle-worker retirement
// pass. spec.md §9 leaves the exact cadence to implementation discretion.
const idleSweepInterval = time.Second

const resultChanBuffer = 256

type queueEntry struct {
	taskID      uint64
	t           task.Task
	submittedAt time.Time
	deadline    time.Time
	settle      promise.Settle[any]
	ctx         context.Context
	cancel      context.CancelFunc
}

type pendingEntry struct {
	workerID      string
	cancelTimeout reactor.CancelFunc
	settle        promise.Settle[any]
	cancel        context.CancelFunc
}

type workerEntry struct {
	w        *worker.Worker
	spawning bool
}

// Stats is a snapshot of a Dispatcher's live state, consumed by the
// Prometheus exporter and the admin HTTP API.
type Stats struct {
	Live        int
	Spawning    int
	Idle        int
	Busy        int
	QueueDepth  int
	PendingSize int
	Options     Options
}

// Dispatcher is the public entry point: submit tasks, tune Options,
// manage the start-task set, and shut down cleanly.
type Dispatcher struct {
	r        reactor.Reactor
	registry *task.Registry
	publisher events.Publisher

	opts        Options
	nextTaskID  atomic.Uint64
	stoppedFlag boolFlag

	respawnBackoff     respawnBackoff
	consecutiveCrashes int

	queue      []*queueEntry
	pending    map[uint64]*pendingEntry
	workers    map[string]*workerEntry
	idle       []string // front = MRU, back = LRU
	startTasks []task.Task

	results chan worker.Outcome

	idleSweepCancel reactor.CancelFunc
}

// New constructs a Dispatcher bound to r for all loop-thread scheduling
// and reg for resolving named Call tasks. opts is validated up front;
// an invalid Options returns an *task.OptionError.
func New(r reactor.Reactor, reg *task.Registry, opts Options) (*Dispatcher, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	d := &Dispatcher{
		r:              r,
		registry:       reg,
		opts:           opts,
		respawnBackoff: defaultRespawnBackoff(),
		pending:        make(map[uint64]*pendingEntry),
		workers:        make(map[string]*workerEntry),
		results:        make(chan worker.Outcome, resultChanBuffer),
	}
	go d.forwardResults()
	d.r.RunImmediate(func() { d.ensurePoolMinimum() })
	d.idleSweepCancel = d.r.ScheduleOnce(idleSweepInterval, d.idleSweepTick)
	return d, nil
}

// SetPublisher wires an optional, best-effort events.Publisher that the
// Dispatcher notifies of lifecycle events (task submitted/started/
// settled, worker spawned/retired/crashed). Never required for correct
// operation; a nil publisher (the default) simply means no events are
// emitted.
func (d *Dispatcher) SetPublisher(p events.Publisher) {
	d.r.RunImmediate(func() { d.publisher = p })
}

func (d *Dispatcher) emit(ctx context.Context, evt *events.Event) {
	if d.publisher == nil {
		return
	}
	if err := d.publisher.Publish(ctx, evt); err != nil {
		metrics.RecordTelemetryPublishError()
		logger.Debug().Err(err).Str("event_type", string(evt.Type)).Msg("telemetry publish failed")
	}
}

// Call submits a named, registry-resolved task with positional args.
// The returned task-id identifies this submission in lifecycle events
// published to a Publisher; it carries no meaning on its own since the
// Dispatcher keeps no persisted task state.
func (d *Dispatcher) Call(name string, args ...any) (uint64, *promise.Future[any], error) {
	return d.submit(task.NewCallTask(d.registry, name, args...))
}

// Execute submits a user-supplied Task.
func (d *Dispatcher) Execute(t task.Task) (uint64, *promise.Future[any], error) {
	return d.submit(t)
}

func (d *Dispatcher) submit(t task.Task) (uint64, *promise.Future[any], error) {
	if d.stoppedFlag.get() {
		return 0, nil, &task.SubmissionError{Reason: "dispatcher stopped"}
	}
	taskID := d.allocTaskID()
	future, settle := promise.New[any]()
	d.r.RunImmediate(func() { d.dispatch(taskID, t, settle) })
	return taskID, future, nil
}

// allocTaskID hands out a fresh task-id. It is safe to call from any
// goroutine: task-id allocation does not need to be serialized through
// the reactor, unlike every other piece of Dispatcher state.
func (d *Dispatcher) allocTaskID() uint64 {
	return d.nextTaskID.Add(1)
}

// dispatch runs on the reactor goroutine: spec.md §4.4's dispatch
// algorithm, steps 1-4.
func (d *Dispatcher) dispatch(taskID uint64, t task.Task, settle promise.Settle[any]) {
	if d.stoppedFlag.get() {
		settle(nil, &task.ShutdownError{})
		return
	}

	now := time.Now()
	var deadline time.Time
	if d.opts.TaskTimeout > 0 {
		deadline = now.Add(d.opts.TaskTimeout)
	}

	var ctx context.Context
	var cancel context.CancelFunc
	if deadline.IsZero() {
		ctx, cancel = context.Background(), func() {}
	} else {
		ctx, cancel = context.WithDeadline(context.Background(), deadline)
	}

	qe := &queueEntry{taskID: taskID, t: t, submittedAt: now, deadline: deadline, settle: settle, ctx: ctx, cancel: cancel}
	metrics.RecordTaskSubmission()
	d.emit(context.Background(), events.NewTaskEvent(events.EventTaskSubmitted, taskID, nil))

	d.queue = append(d.queue, qe)
	d.drainQueue()
	metrics.SetQueueDepth(float64(len(d.queue)))
	metrics.SetPendingSize(float64(len(d.pending)))
}

// drainQueue assigns as many queued entries as there is idle capacity
// for, spawning at most one new worker (per call) when none is idle but
// the pool has room. It is the shared tail of dispatch, the result
// handler, and worker-ready handling.
func (d *Dispatcher) drainQueue() {
	for len(d.queue) > 0 {
		if len(d.idle) > 0 {
			workerID := d.idle[0]
			d.idle = d.idle[1:]
			we := d.workers[workerID]
			qe := d.queue[0]
			d.queue = d.queue[1:]
			d.assignToWorker(we, qe)
			continue
		}
		if d.liveCount() < d.opts.PoolSizeMax {
			d.spawnWorker()
		}
		return
	}
}

func (d *Dispatcher) liveCount() int { return len(d.workers) }

func (d *Dispatcher) assignToWorker(we *workerEntry, qe *queueEntry) {
	if err := we.w.StateMachine().MarkBusy(); err != nil {
		logger.Error().Err(err).Str("worker_id", we.w.ID).Msg("invalid transition to busy")
	}

	var cancelTimeout reactor.CancelFunc = func() {}
	if !qe.deadline.IsZero() {
		delay := time.Until(qe.deadline)
		if delay < 0 {
			delay = 0
		}
		taskID := qe.taskID
		cancelTimeout = d.r.ScheduleOnce(delay, func() { d.handleTimeout(taskID) })
	}
	d.pending[qe.taskID] = &pendingEntry{
		workerID:      we.w.ID,
		cancelTimeout: cancelTimeout,
		settle:        qe.settle,
		cancel:        qe.cancel,
	}

	metrics.SetActiveWorkers(float64(d.liveCount()))
	d.emit(context.Background(), events.NewTaskEvent(events.EventTaskStarted, qe.taskID, map[string]any{"worker_id": we.w.ID}))
	we.w.Assign(qe.ctx, qe.taskID, qe.t)
}

func (d *Dispatcher) forwardResults() {
	for o := range d.results {
		o := o
		d.r.RunImmediate(func() { d.handleOutcome(o) })
	}
}

// handleOutcome is spec.md §4.4's result handler.
func (d *Dispatcher) handleOutcome(o worker.Outcome) {
	pe, ok := d.pending[o.TaskID]
	if !ok {
		return // already timed out; discard per spec
	}
	delete(d.pending, o.TaskID)
	pe.cancelTimeout()
	pe.cancel()

	we, workerStillKnown := d.workers[o.WorkerID]

	if lost, isLost := o.Result.Err.(*task.WorkerLostError); isLost {
		pe.settle(nil, lost)
		metrics.RecordTaskCompletion("crashed")
		d.emit(context.Background(), events.NewTaskEvent(events.EventTaskFailed, o.TaskID, map[string]any{"reason": "worker_lost"}))
		if workerStillKnown {
			d.retireWorker(we, true)
		}
		d.ensurePoolMinimumAfter(d.respawnBackoff.delay(d.consecutiveCrashes))
		return
	}
	d.consecutiveCrashes = 0

	switch o.Result.Status {
	case task.StatusFulfilled:
		pe.settle(o.Result.Value, nil)
		metrics.RecordTaskCompletion("success")
		d.emit(context.Background(), events.NewTaskEvent(events.EventTaskCompleted, o.TaskID, nil))
	default:
		pe.settle(nil, o.Result.Err)
		metrics.RecordTaskCompletion("failed")
		d.emit(context.Background(), events.NewTaskEvent(events.EventTaskFailed, o.TaskID, map[string]any{"reason": "task_error"}))
	}

	if !workerStillKnown {
		return
	}

	if d.opts.ExecLimit > 0 && we.w.Execs() >= d.opts.ExecLimit {
		d.retireWorker(we, false)
		d.ensurePoolMinimum()
		d.drainQueue()
		return
	}

	if d.liveCount() > d.opts.PoolSizeMax {
		d.retireWorker(we, false)
		d.drainQueue()
		return
	}

	if err := we.w.StateMachine().MarkIdle(); err != nil {
		logger.Error().Err(err).Str("worker_id", we.w.ID).Msg("invalid transition to idle")
	}
	d.idle = append([]string{we.w.ID}, d.idle...)
	d.drainQueue()
}

// handleTimeout is spec.md §4.4's timeout handler.
func (d *Dispatcher) handleTimeout(taskID uint64) {
	pe, ok := d.pending[taskID]
	if !ok {
		return // already settled
	}
	delete(d.pending, taskID)
	pe.cancel()
	pe.settle(nil, &task.TimeoutError{TaskID: taskID})
	metrics.RecordTaskCompletion("timeout")
	d.emit(context.Background(), events.NewTaskEvent(events.EventTaskFailed, taskID, map[string]any{"reason": "timeout"}))

	if we, ok := d.workers[pe.workerID]; ok {
		d.retireWorker(we, true)
	}
	d.ensurePoolMinimum()
	d.drainQueue()
}

// retireWorker tears a worker down: stops its goroutine, removes it from
// the live worker table and (if present) the idle list. crashed records
// whether this was a forced teardown (timeout, crash) for metrics.
func (d *Dispatcher) retireWorker(we *workerEntry, crashed bool) {
	we.w.StateMachine().MarkDying()
	we.w.Stop()
	delete(d.workers, we.w.ID)
	for i, id := range d.idle {
		if id == we.w.ID {
			d.idle = append(d.idle[:i], d.idle[i+1:]...)
			break
		}
	}
	metrics.SetActiveWorkers(float64(d.liveCount()))
	reason := "recycled"
	if crashed {
		reason = "crashed"
		d.consecutiveCrashes++
		metrics.IncrementWorkerCrash()
	}
	d.emit(context.Background(), events.NewWorkerEvent(events.EventWorkerLeft, we.w.ID, reason))
}

func (d *Dispatcher) spawnWorker() {
	w := worker.New(d.results, d.opts.ThreadFlags)
	we := &workerEntry{w: w, spawning: true}
	d.workers[w.ID] = we
	w.Start(context.Background(), d.startTaskSnapshot())
	d.emit(context.Background(), events.NewWorkerEvent(events.EventWorkerJoined, w.ID, "spawning"))
	go d.watchSpawn(w)
}

func (d *Dispatcher) watchSpawn(w *worker.Worker) {
	select {
	case <-w.Ready():
		d.r.RunImmediate(func() { d.onWorkerReady(w.ID) })
	case <-w.Failed():
		d.r.RunImmediate(func() { d.onWorkerStartFailed(w.ID) })
	}
}

func (d *Dispatcher) onWorkerReady(workerID string) {
	we, ok := d.workers[workerID]
	if !ok {
		return // removed (e.g. by Stop) before it finished spawning
	}
	we.spawning = false
	if err := we.w.StateMachine().MarkIdle(); err != nil {
		logger.Error().Err(err).Str("worker_id", workerID).Msg("invalid transition to idle")
	}
	metrics.SetActiveWorkers(float64(d.liveCount()))
	d.emit(context.Background(), events.NewWorkerEvent(events.EventWorkerJoined, workerID, "idle"))
	if len(d.queue) > 0 {
		qe := d.queue[0]
		d.queue = d.queue[1:]
		d.assignToWorker(we, qe)
		return
	}
	d.idle = append([]string{workerID}, d.idle...)
}

func (d *Dispatcher) onWorkerStartFailed(workerID string) {
	we, ok := d.workers[workerID]
	if !ok {
		return
	}
	logger.Error().Str("worker_id", workerID).Err(we.w.StartErr()).Msg("worker start-task failed")
	delete(d.workers, workerID)
	d.consecutiveCrashes++
	metrics.IncrementWorkerCrash()
	d.emit(context.Background(), events.NewWorkerEvent(events.EventWorkerLeft, workerID, "start_failed"))
	d.ensurePoolMinimumAfter(d.respawnBackoff.delay(d.consecutiveCrashes))
	d.drainQueue()
}

// ensurePoolMinimum spawns workers up to POOL_SIZE_MIN. Run at
// construction and after any teardown that might have dropped the pool
// below its floor.
func (d *Dispatcher) ensurePoolMinimum() {
	for d.liveCount() < d.opts.PoolSizeMin {
		d.spawnWorker()
	}
}

// ensurePoolMinimumAfter schedules ensurePoolMinimum to run once delay
// has elapsed, or runs it immediately when delay is zero. Used to pace
// worker respawns after a crash so a handler that panics on every
// invocation cannot turn into a tight spawn-crash-crash storm; normal
// pool growth and recycling call ensurePoolMinimum directly.
func (d *Dispatcher) ensurePoolMinimumAfter(delay time.Duration) {
	if delay <= 0 {
		d.ensurePoolMinimum()
		return
	}
	d.r.ScheduleOnce(delay, d.ensurePoolMinimum)
}

func (d *Dispatcher) idleSweepTick() {
	if d.stoppedFlag.get() {
		return
	}
	for i := len(d.idle) - 1; i >= 0; i-- {
		if d.liveCount() <= d.opts.PoolSizeMin {
			break
		}
		id := d.idle[i]
		we, ok := d.workers[id]
		if !ok {
			continue
		}
		if time.Since(we.w.StateMachine().IdleSince()) < d.opts.IdleWorkerTimeout {
			continue
		}
		d.idle = append(d.idle[:i], d.idle[i+1:]...)
		d.retireWorker(we, false)
	}
	d.idleSweepCancel = d.r.ScheduleOnce(idleSweepInterval, d.idleSweepTick)
}

func (d *Dispatcher) startTaskSnapshot() []task.Task {
	out := make([]task.Task, len(d.startTasks))
	copy(out, d.startTasks)
	return out
}

// AddStartTask idempotently adds t to the start-task set (membership by
// identity, per spec.md §4.4/§9): t must be a comparable value, such as
// a pointer-typed Task, so two adds of the same identity are a no-op.
func (d *Dispatcher) AddStartTask(t task.Task) {
	done := make(chan struct{})
	d.r.RunImmediate(func() {
		defer close(done)
		for _, existing := range d.startTasks {
			if existing == t {
				return
			}
		}
		d.startTasks = append(d.startTasks, t)
	})
	<-done
}

// RemoveStartTask idempotently removes t from the start-task set.
func (d *Dispatcher) RemoveStartTask(t task.Task) {
	done := make(chan struct{})
	d.r.RunImmediate(func() {
		defer close(done)
		for i, existing := range d.startTasks {
			if existing == t {
				d.startTasks = append(d.startTasks[:i], d.startTasks[i+1:]...)
				return
			}
		}
	})
	<-done
}

// SetOption changes a single tunable at runtime. Per spec.md §4.5 the
// change is never retroactive: it takes effect on the next relevant
// decision (spawn, assign, recycle, sweep).
func (d *Dispatcher) SetOption(key Option, value any) error {
	errCh := make(chan error, 1)
	d.r.RunImmediate(func() {
		next, err := d.opts.apply(key, value)
		if err != nil {
			errCh <- err
			return
		}
		d.opts = next
		d.ensurePoolMinimum()
		errCh <- nil
	})
	return <-errCh
}

// Options returns the Dispatcher's current Options snapshot.
func (d *Dispatcher) Options() Options {
	out := make(chan Options, 1)
	d.r.RunImmediate(func() { out <- d.opts })
	return <-out
}

// Stats returns a point-in-time snapshot of the Dispatcher's pool and
// queue state, blocking until ctx is done or the reactor computes it.
func (d *Dispatcher) Stats(ctx context.Context) (Stats, error) {
	out := make(chan Stats, 1)
	d.r.RunImmediate(func() {
		s := Stats{QueueDepth: len(d.queue), PendingSize: len(d.pending), Options: d.opts}
		for _, we := range d.workers {
			switch {
			case we.spawning:
				s.Spawning++
			case we.w.State() == worker.StateIdle:
				s.Idle++
			default:
				s.Busy++
			}
		}
		s.Live = d.liveCount()
		out <- s
	})
	select {
	case s := <-out:
		return s, nil
	case <-ctx.Done():
		return Stats{}, ctx.Err()
	}
}

// Stop drains queued (never-assigned) tasks with ShutdownError and
// forcibly tears down every live worker, settling any task still
// in-flight with WorkerLostError. It blocks until the shutdown pass has
// run on the reactor goroutine or ctx is done.
func (d *Dispatcher) Stop(ctx context.Context) error {
	if !d.stoppedFlag.set() {
		return nil // already stopped
	}
	d.idleSweepCancel()
	done := make(chan struct{})
	d.r.RunImmediate(func() {
		defer close(done)
		for _, qe := range d.queue {
			qe.settle(nil, &task.ShutdownError{})
			qe.cancel()
		}
		d.queue = nil
		for taskID, pe := range d.pending {
			pe.cancelTimeout()
			pe.cancel()
			pe.settle(nil, &task.WorkerLostError{WorkerID: pe.workerID})
			delete(d.pending, taskID)
		}
		for id, we := range d.workers {
			we.w.StateMachine().MarkDying()
			we.w.Stop()
			delete(d.workers, id)
		}
		d.idle = nil
	})
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
