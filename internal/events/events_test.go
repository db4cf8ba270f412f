package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewTaskEvent(t *testing.T) {
	evt := NewTaskEvent(EventTaskSubmitted, 42, nil)
	assert.Equal(t, EventTaskSubmitted, evt.Type)
	assert.Equal(t, uint64(42), evt.Data["task_id"])
	assert.False(t, evt.Timestamp.IsZero())
}

func TestNewTaskEvent_MergesExtra(t *testing.T) {
	evt := NewTaskEvent(EventTaskFailed, 7, map[string]any{"reason": "timeout"})
	assert.Equal(t, uint64(7), evt.Data["task_id"])
	assert.Equal(t, "timeout", evt.Data["reason"])
}

func TestNewWorkerEvent(t *testing.T) {
	evt := NewWorkerEvent(EventWorkerJoined, "worker-1", "idle")
	assert.Equal(t, EventWorkerJoined, evt.Type)
	assert.Equal(t, "worker-1", evt.Data["worker_id"])
	assert.Equal(t, "idle", evt.Data["state"])
}

func TestNewQueueDepthEvent(t *testing.T) {
	evt := NewQueueDepthEvent(3, 2)
	assert.Equal(t, EventQueueDepth, evt.Type)
	assert.Equal(t, 3, evt.Data["depth"])
	assert.Equal(t, 2, evt.Data["pending"])
}

func TestEventJSONRoundTrip(t *testing.T) {
	original := NewTaskEvent(EventTaskCompleted, 99, map[string]any{"worker_id": "w-1"})
	data, err := original.ToJSON()
	require.NoError(t, err)

	decoded, err := FromJSON(data)
	require.NoError(t, err)
	assert.Equal(t, original.Type, decoded.Type)
	assert.Equal(t, float64(99), decoded.Data["task_id"]) // JSON numbers decode as float64
	assert.Equal(t, "w-1", decoded.Data["worker_id"])
}

func TestFromJSON_Invalid(t *testing.T) {
	_, err := FromJSON([]byte("not json"))
	assert.Error(t, err)
}
