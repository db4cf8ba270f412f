package dispatch

import (
	"fmt"
	"time"

	"github.com/mvasquez/taskpool/internal/task"
	"github.com/mvasquez/taskpool/internal/worker"
)

// Option names the six tunables a Dispatcher exposes, per spec.md §4.5.
type Option string

const (
	OptionPoolSizeMin       Option = "POOL_SIZE_MIN"
	OptionPoolSizeMax       Option = "POOL_SIZE_MAX"
	OptionTaskTimeout       Option = "TASK_TIMEOUT"
	OptionExecLimit         Option = "EXEC_LIMIT"
	OptionThreadFlags       Option = "THREAD_FLAGS"
	OptionIdleWorkerTimeout Option = "IDLE_WORKER_TIMEOUT"
)

// Options holds a Dispatcher's live configuration. All six fields map
// directly onto spec.md §4.5; ThreadFlags is the Go-native realization
// of the opaque worker-context-creation mask.
type Options struct {
	PoolSizeMin       int
	PoolSizeMax       int
	TaskTimeout       time.Duration
	ExecLimit         int
	ThreadFlags       worker.ThreadFlags
	IdleWorkerTimeout time.Duration
}

// DefaultOptions returns spec.md §4.5's stated defaults.
func DefaultOptions() Options {
	return Options{
		PoolSizeMin:       1,
		PoolSizeMax:       8,
		TaskTimeout:       30 * time.Second,
		ExecLimit:         1024,
		ThreadFlags:       0,
		IdleWorkerTimeout: 10 * time.Second,
	}
}

// Validate reports whether o is internally consistent. The one cross-
// field invariant spec.md's Open Questions flags: a pool floor above its
// own ceiling is rejected outright rather than silently clamped, per the
// spec's suggested "safe choice."
func (o Options) Validate() error {
	if o.PoolSizeMin < 0 {
		return &task.OptionError{Option: string(OptionPoolSizeMin), Reason: "must be >= 0"}
	}
	if o.PoolSizeMax < 1 {
		return &task.OptionError{Option: string(OptionPoolSizeMax), Reason: "must be >= 1"}
	}
	if o.PoolSizeMin > o.PoolSizeMax {
		return &task.OptionError{
			Option: string(OptionPoolSizeMin),
			Reason: fmt.Sprintf("%d exceeds POOL_SIZE_MAX %d", o.PoolSizeMin, o.PoolSizeMax),
		}
	}
	if o.ExecLimit < 1 {
		return &task.OptionError{Option: string(OptionExecLimit), Reason: "must be >= 1"}
	}
	if o.IdleWorkerTimeout <= 0 {
		return &task.OptionError{Option: string(OptionIdleWorkerTimeout), Reason: "must be positive"}
	}
	return nil
}

// apply returns a copy of o with the named Option set to value, or an
// OptionError if key is unrecognized, value is the wrong type, or the
// resulting Options fails Validate.
func (o Options) apply(key Option, value any) (Options, error) {
	next := o
	switch key {
	case OptionPoolSizeMin:
		v, ok := value.(int)
		if !ok {
			return o, &task.OptionError{Option: string(key), Reason: "expected int"}
		}
		next.PoolSizeMin = v
	case OptionPoolSizeMax:
		v, ok := value.(int)
		if !ok {
			return o, &task.OptionError{Option: string(key), Reason: "expected int"}
		}
		next.PoolSizeMax = v
	case OptionTaskTimeout:
		v, ok := value.(time.Duration)
		if !ok {
			return o, &task.OptionError{Option: string(key), Reason: "expected time.Duration"}
		}
		next.TaskTimeout = v
	case OptionExecLimit:
		v, ok := value.(int)
		if !ok {
			return o, &task.OptionError{Option: string(key), Reason: "expected int"}
		}
		next.ExecLimit = v
	case OptionThreadFlags:
		v, ok := value.(worker.ThreadFlags)
		if !ok {
			return o, &task.OptionError{Option: string(key), Reason: "expected worker.ThreadFlags"}
		}
		next.ThreadFlags = v
	case OptionIdleWorkerTimeout:
		v, ok := value.(time.Duration)
		if !ok {
			return o, &task.OptionError{Option: string(key), Reason: "expected time.Duration"}
		}
		next.IdleWorkerTimeout = v
	default:
		return o, &task.OptionError{Option: string(key), Reason: "unrecognized option"}
	}
	if err := next.Validate(); err != nil {
		return o, err
	}
	return next, nil
}
