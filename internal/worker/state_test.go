package worker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStateMachine_SpawningToIdle(t *testing.T) {
	sm := NewStateMachine()
	assert.Equal(t, StateSpawning, sm.State())

	require.NoError(t, sm.MarkIdle())
	assert.Equal(t, StateIdle, sm.State())
}

func TestStateMachine_IdleBusyCycle(t *testing.T) {
	sm := NewStateMachine()
	require.NoError(t, sm.MarkIdle())
	require.NoError(t, sm.MarkBusy())
	assert.Equal(t, StateBusy, sm.State())
	require.NoError(t, sm.MarkIdle())
	assert.Equal(t, StateIdle, sm.State())
}

func TestStateMachine_InvalidTransition(t *testing.T) {
	sm := NewStateMachine()
	err := sm.MarkBusy()
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestStateMachine_DyingIsTerminal(t *testing.T) {
	sm := NewStateMachine()
	sm.MarkDying()
	assert.Equal(t, StateDying, sm.State())
	assert.False(t, sm.State().CanTransitionTo(StateIdle))
}

func TestStateMachine_MarkDyingFromAnyState(t *testing.T) {
	for _, s := range []State{StateSpawning, StateIdle, StateBusy} {
		sm := &StateMachine{state: s}
		sm.MarkDying()
		assert.Equal(t, StateDying, sm.State())
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "spawning", StateSpawning.String())
	assert.Equal(t, "idle", StateIdle.String())
	assert.Equal(t, "busy", StateBusy.String())
	assert.Equal(t, "dying", StateDying.String())
}

func TestParseState(t *testing.T) {
	assert.Equal(t, StateIdle, ParseState("idle"))
	assert.Equal(t, StateSpawning, ParseState("garbage"))
}
