package dispatch

import (
	"math"
	"math/rand"
	"time"
)

// respawnBackoff paces how quickly a crashed worker slot is refilled. It
// is not a task retry policy — spec.md is explicit that a task's own
// failure is never auto-retried (§7, P1). This only throttles the
// dispatcher's own worker-replacement loop, so a handler that panics on
// every invocation cannot turn into a tight spawn-crash-spawn storm that
// starves the run-loop.
type respawnBackoff struct {
	initial      time.Duration
	max          time.Duration
	factor       float64
	jitterFactor float64
}

func defaultRespawnBackoff() respawnBackoff {
	return respawnBackoff{
		initial:      50 * time.Millisecond,
		max:          5 * time.Second,
		factor:       2.0,
		jitterFactor: 0.2,
	}
}

// delay returns how long to wait before spawning a replacement, given
// how many consecutive crashes that worker slot has already seen.
func (b respawnBackoff) delay(consecutiveCrashes int) time.Duration {
	if consecutiveCrashes <= 0 {
		return 0
	}
	d := float64(b.initial) * math.Pow(b.factor, float64(consecutiveCrashes-1))
	if d > float64(b.max) {
		d = float64(b.max)
	}
	if b.jitterFactor > 0 {
		jitter := d * b.jitterFactor * (rand.Float64()*2 - 1)
		d += jitter
	}
	if d < 0 {
		d = float64(b.initial)
	}
	return time.Duration(d)
}
