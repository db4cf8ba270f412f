package dispatch

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvasquez/taskpool/internal/reactor"
	"github.com/mvasquez/taskpool/internal/task"
)

type fnTask struct {
	fn func(ctx context.Context, r task.Resolver)
}

func (f fnTask) Execute(ctx context.Context, r task.Resolver) { f.fn(ctx, r) }

func newTestDispatcher(t *testing.T, opts Options) *Dispatcher {
	t.Helper()
	r := reactor.New()
	reg := task.NewRegistry()
	d, err := New(r, reg, opts)
	require.NoError(t, err)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		d.Stop(ctx)
	})
	return d
}

func TestNew_RejectsInvalidOptions(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 10
	opts.PoolSizeMax = 2

	_, err := New(reactor.New(), task.NewRegistry(), opts)
	require.Error(t, err)
	var optErr *task.OptionError
	assert.ErrorAs(t, err, &optErr)
}

func TestExecute_SettlesFulfilled(t *testing.T) {
	d := newTestDispatcher(t, DefaultOptions())

	taskID, future, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
		r.Resolve(42)
	}})
	require.NoError(t, err)
	assert.NotZero(t, taskID)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	value, err := future.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, 42, value)
}

func TestExecute_SettlesRejected(t *testing.T) {
	d := newTestDispatcher(t, DefaultOptions())

	want := errors.New("bad input")
	_, future, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
		r.Reject(want)
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	assert.Equal(t, want, err)
}

func TestSubmit_RejectedAfterStop(t *testing.T) {
	d := newTestDispatcher(t, DefaultOptions())

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, d.Stop(ctx))

	taskID, future, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) { r.Resolve(nil) }})
	require.Error(t, err)
	assert.Zero(t, taskID)
	assert.Nil(t, future)
	var subErr *task.SubmissionError
	assert.ErrorAs(t, err, &subErr)
}

func TestCall_UnregisteredHandlerRejects(t *testing.T) {
	d := newTestDispatcher(t, DefaultOptions())

	_, future, err := d.Call("does.not.exist")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, task.ErrHandlerNotFound)
}

func TestDispatch_WorkerCrashReplacesWorkerForNextTask(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 1
	opts.PoolSizeMax = 1
	d := newTestDispatcher(t, opts)

	_, crashFuture, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
		panic("boom")
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = crashFuture.Wait(ctx)
	require.Error(t, err)
	var lost *task.WorkerLostError
	require.ErrorAs(t, err, &lost)

	_, okFuture, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
		r.Resolve("recovered")
	}})
	require.NoError(t, err)

	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	value, err := okFuture.Wait(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
}

func TestDispatch_TaskTimeoutRejectsAndReplacesWorker(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 1
	opts.PoolSizeMax = 1
	opts.TaskTimeout = 200 * time.Millisecond
	d := newTestDispatcher(t, opts)

	blocked := make(chan struct{})
	_, timeoutFuture, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
		<-blocked
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err = timeoutFuture.Wait(ctx)
	require.Error(t, err)
	var timeoutErr *task.TimeoutError
	assert.ErrorAs(t, err, &timeoutErr)
	close(blocked)

	_, okFuture, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) { r.Resolve("ok") }})
	require.NoError(t, err)
	ctx2, cancel2 := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel2()
	value, err := okFuture.Wait(ctx2)
	require.NoError(t, err)
	assert.Equal(t, "ok", value)
}

func TestSetOption_RejectsPoolSizeMinAbovePoolSizeMax(t *testing.T) {
	d := newTestDispatcher(t, DefaultOptions())

	err := d.SetOption(OptionPoolSizeMax, 1)
	require.NoError(t, err)

	err = d.SetOption(OptionPoolSizeMin, 5)
	require.Error(t, err)
	assert.Equal(t, 1, d.Options().PoolSizeMax)
	assert.Equal(t, 1, d.Options().PoolSizeMin)
}

func TestAddStartTask_IdempotentByIdentity(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 0
	opts.PoolSizeMax = 1
	d := newTestDispatcher(t, opts)

	runs := 0
	st := &fnTask{fn: func(ctx context.Context, r task.Resolver) {
		runs++
		r.Resolve(nil)
	}}
	d.AddStartTask(st)
	d.AddStartTask(st)

	_, future, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) { r.Resolve("ok") }})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	_, err = future.Wait(ctx)
	require.NoError(t, err)

	assert.Equal(t, 1, runs)
}

func TestStats_ReflectsPoolSize(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 2
	opts.PoolSizeMax = 2
	d := newTestDispatcher(t, opts)

	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	stats, err := d.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Live)
}

func TestDispatch_RepeatedCrashesBackOffRespawn(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 1
	opts.PoolSizeMax = 1
	d := newTestDispatcher(t, opts)

	crash := func() error {
		_, f, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
			panic("boom")
		}})
		require.NoError(t, err)
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, err = f.Wait(ctx)
		return err
	}

	for i := 0; i < 3; i++ {
		err := crash()
		var lost *task.WorkerLostError
		require.ErrorAs(t, err, &lost)
	}
	assert.Equal(t, 3, d.consecutiveCrashes)

	_, okFuture, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
		r.Resolve("recovered")
	}})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	value, err := okFuture.Wait(ctx)
	require.NoError(t, err)
	assert.Equal(t, "recovered", value)
	assert.Equal(t, 0, d.consecutiveCrashes)
}

func TestParallelThroughput_SleepsOverlap(t *testing.T) {
	opts := DefaultOptions()
	opts.PoolSizeMin = 3
	opts.PoolSizeMax = 3
	d := newTestDispatcher(t, opts)

	start := time.Now()
	type result struct {
		value any
		err   error
	}
	done := make(chan result, 3)
	for i := 0; i < 3; i++ {
		_, f, err := d.Execute(fnTask{fn: func(ctx context.Context, r task.Resolver) {
			time.Sleep(300 * time.Millisecond)
			r.Resolve("done")
		}})
		require.NoError(t, err)
		go func() {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			v, err := f.Wait(ctx)
			done <- result{v, err}
		}()
	}

	for i := 0; i < 3; i++ {
		r := <-done
		require.NoError(t, r.err)
		assert.Equal(t, "done", r.value)
	}
	assert.Less(t, time.Since(start), time.Second)
}
