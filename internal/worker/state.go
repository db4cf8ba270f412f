package worker

import (
	"errors"
	"time"
)

// State represents where a Worker is in its lifecycle.
type State int

const (
	StateSpawning State = iota
	StateIdle
	StateBusy
	StateDying
)

func (s State) String() string {
	switch s {
	case StateSpawning:
		return "spawning"
	case StateIdle:
		return "idle"
	case StateBusy:
		return "busy"
	case StateDying:
		return "dying"
	default:
		return "unknown"
	}
}

// ParseState parses the String() form back into a State, defaulting to
// StateSpawning for unrecognized input.
func ParseState(s string) State {
	switch s {
	case "spawning":
		return StateSpawning
	case "idle":
		return StateIdle
	case "busy":
		return StateBusy
	case "dying":
		return StateDying
	default:
		return StateSpawning
	}
}

// ErrInvalidTransition is returned when a Worker's state machine is
// asked to move to a state not reachable from its current one.
var ErrInvalidTransition = errors.New("worker: invalid state transition")

// ValidTransitions enumerates every legal move, per §4.2: a worker is
// spawned, becomes idle once its start-tasks finish, alternates between
// idle and busy for the rest of its life, and can be marked dying from
// either idle (retired past IDLE_WORKER_TIMEOUT) or busy (crashed, timed
// out, recycled at EXEC_LIMIT, or drained by a lowered POOL_SIZE_MAX
// once its task settles).
var ValidTransitions = map[State][]State{
	StateSpawning: {StateIdle, StateDying},
	StateIdle:     {StateBusy, StateDying},
	StateBusy:     {StateIdle, StateDying},
	StateDying:    {},
}

// CanTransitionTo reports whether target is reachable from s.
func (s State) CanTransitionTo(target State) bool {
	for _, v := range ValidTransitions[s] {
		if v == target {
			return true
		}
	}
	return false
}

// StateMachine drives a single Worker's State, recording the timestamp
// of its last transition for idle-timeout bookkeeping. It is owned
// exclusively by the dispatcher run-loop goroutine; nothing here takes
// a lock because nothing outside that goroutine ever touches it.
type StateMachine struct {
	state        State
	sinceIdle    time.Time
	transitionAt time.Time
}

// NewStateMachine starts a Worker's state machine in StateSpawning.
func NewStateMachine() *StateMachine {
	return &StateMachine{state: StateSpawning, transitionAt: time.Now()}
}

// State returns the current state.
func (sm *StateMachine) State() State { return sm.state }

// IdleSince returns when the worker last entered StateIdle. Only
// meaningful while the current state is StateIdle.
func (sm *StateMachine) IdleSince() time.Time { return sm.sinceIdle }

// Transition moves the machine to target, or returns ErrInvalidTransition
// if that move isn't legal from the current state.
func (sm *StateMachine) Transition(target State) error {
	if !sm.state.CanTransitionTo(target) {
		return ErrInvalidTransition
	}
	sm.state = target
	sm.transitionAt = time.Now()
	if target == StateIdle {
		sm.sinceIdle = sm.transitionAt
	}
	return nil
}

// MarkIdle transitions Spawning/Busy -> Idle.
func (sm *StateMachine) MarkIdle() error { return sm.Transition(StateIdle) }

// MarkBusy transitions Idle -> Busy.
func (sm *StateMachine) MarkBusy() error { return sm.Transition(StateBusy) }

// MarkDying transitions any non-terminal state to Dying. Unlike the
// other transitions this one never fails: a worker must always be able
// to be torn down, regardless of which state it crashed in.
func (sm *StateMachine) MarkDying() {
	sm.state = StateDying
	sm.transitionAt = time.Now()
}
