package dispatcher

import (
	"github.com/mvasquez/taskpool/internal/dispatch"
	"github.com/mvasquez/taskpool/internal/worker"
)

// ThreadFlags is the Go-native realization of the opaque worker-context
// creation mask spec.md §4.5 describes.
type ThreadFlags = worker.ThreadFlags

// Option names a tunable exposed through SetOption.
type Option = dispatch.Option

const (
	OptionPoolSizeMin       = dispatch.OptionPoolSizeMin
	OptionPoolSizeMax       = dispatch.OptionPoolSizeMax
	OptionTaskTimeout       = dispatch.OptionTaskTimeout
	OptionExecLimit         = dispatch.OptionExecLimit
	OptionThreadFlags       = dispatch.OptionThreadFlags
	OptionIdleWorkerTimeout = dispatch.OptionIdleWorkerTimeout
)

// Options configures a Dispatcher at construction time. See
// DefaultOptions for spec.md §4.5's stated defaults.
type Options = dispatch.Options

// DefaultOptions returns spec.md §4.5's stated defaults: a pool that
// idles down to one worker, grows up to eight, and times a task out
// after 30 seconds.
func DefaultOptions() Options {
	return dispatch.DefaultOptions()
}

// Stats is a snapshot of a Dispatcher's live pool and queue state.
type Stats = dispatch.Stats
