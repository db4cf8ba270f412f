package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mvasquez/taskpool/internal/task"
)

type fnTask struct {
	fn func(ctx context.Context, r task.Resolver)
}

func (f fnTask) Execute(ctx context.Context, r task.Resolver) { f.fn(ctx, r) }

func TestWorker_ExecuteResolvesSuccess(t *testing.T) {
	results := make(chan Outcome, 1)
	w := New(results, 0)
	w.Start(context.Background(), nil)

	w.Assign(context.Background(), 1, fnTask{fn: func(ctx context.Context, r task.Resolver) {
		r.Resolve("ok")
	}})

	select {
	case o := <-results:
		assert.Equal(t, uint64(1), o.TaskID)
		assert.Equal(t, w.ID, o.WorkerID)
		assert.Equal(t, task.StatusFulfilled, o.Result.Status)
		assert.Equal(t, "ok", o.Result.Value)
	case <-time.After(time.Second):
		t.Fatal("no outcome reported")
	}
	w.Stop()
}

func TestWorker_ExecuteResolvesRejection(t *testing.T) {
	results := make(chan Outcome, 1)
	w := New(results, 0)
	w.Start(context.Background(), nil)

	want := errors.New("nope")
	w.Assign(context.Background(), 2, fnTask{fn: func(ctx context.Context, r task.Resolver) {
		r.Reject(want)
	}})

	o := <-results
	assert.Equal(t, task.StatusRejected, o.Result.Status)
	assert.Equal(t, want, o.Result.Err)
	w.Stop()
}

func TestWorker_PanicBecomesWorkerLostError(t *testing.T) {
	results := make(chan Outcome, 1)
	w := New(results, 0)
	w.Start(context.Background(), nil)

	w.Assign(context.Background(), 3, fnTask{fn: func(ctx context.Context, r task.Resolver) {
		panic("boom")
	}})

	o := <-results
	require.Equal(t, task.StatusRejected, o.Result.Status)
	var lost *task.WorkerLostError
	require.ErrorAs(t, o.Result.Err, &lost)
	assert.Equal(t, w.ID, lost.WorkerID)
	w.Stop()
}

func TestWorker_NoSettleBecomesErrTaskNoResult(t *testing.T) {
	results := make(chan Outcome, 1)
	w := New(results, 0)
	w.Start(context.Background(), nil)

	w.Assign(context.Background(), 4, fnTask{fn: func(ctx context.Context, r task.Resolver) {}})

	o := <-results
	assert.Equal(t, task.StatusRejected, o.Result.Status)
	assert.ErrorIs(t, o.Result.Err, task.ErrTaskNoResult)
	w.Stop()
}

func TestWorker_StartTasksRunBeforeReady(t *testing.T) {
	results := make(chan Outcome, 2)
	w := New(results, 0)

	ran := false
	startTasks := []task.Task{
		fnTask{fn: func(ctx context.Context, r task.Resolver) {
			ran = true
			r.Resolve("start")
		}},
	}
	w.Start(context.Background(), startTasks)

	select {
	case <-w.Ready():
	case <-time.After(time.Second):
		t.Fatal("worker never became ready")
	}
	assert.True(t, ran)
	w.Stop()
}

func TestWorker_FailedStartTaskNeverBecomesReady(t *testing.T) {
	results := make(chan Outcome, 2)
	w := New(results, 0)

	want := errors.New("bad config")
	startTasks := []task.Task{
		fnTask{fn: func(ctx context.Context, r task.Resolver) { r.Reject(want) }},
	}
	w.Start(context.Background(), startTasks)

	select {
	case <-w.Failed():
		assert.Equal(t, want, w.StartErr())
	case <-w.Ready():
		t.Fatal("worker became ready despite failed start-task")
	case <-time.After(time.Second):
		t.Fatal("worker neither ready nor failed")
	}
	w.Stop()
}

func TestWorker_ExecsIncrementsPerTask(t *testing.T) {
	results := make(chan Outcome, 2)
	w := New(results, 0)
	w.Start(context.Background(), nil)

	for i := 0; i < 2; i++ {
		w.Assign(context.Background(), uint64(i), fnTask{fn: func(ctx context.Context, r task.Resolver) { r.Resolve(nil) }})
		<-results
	}

	assert.Equal(t, 2, w.Execs())
	w.Stop()
}
