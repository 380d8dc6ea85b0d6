// Package timectrl provides the stepped clock that drives a simulation.
package timectrl

import (
	"sync"
	"time"
)

// Mode selects how Step relates simulated time to wall time.
type Mode int

const (
	// RealTime makes Step wait until the step's wall-clock deadline,
	// so one simulated second takes 1/Scale wall seconds.
	RealTime Mode = iota
	// Accelerated steps as fast as the caller asks.
	Accelerated
)

func (m Mode) String() string {
	if m == RealTime {
		return "realtime"
	}
	return "accelerated"
}

// TimeController is a discrete clock advanced by a fixed Tick. Seconds
// is derived from the step count so long runs do not accumulate
// rounding error.
type TimeController struct {
	mu        sync.RWMutex
	StartTime time.Time
	Tick      time.Duration
	Mode      Mode
	// Scale is the RealTime speed-up factor; values <= 0 mean 1.
	Scale float64

	steps     int64
	wallStart time.Time
	sleep     func(time.Duration)
}

// NewTimeController returns a controller at start.
func NewTimeController(start time.Time, tick time.Duration, mode Mode) *TimeController {
	return &TimeController{
		StartTime: start,
		Tick:      tick,
		Mode:      mode,
		sleep:     time.Sleep,
	}
}

// Now returns the simulated instant.
func (tc *TimeController) Now() time.Time {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.StartTime.Add(time.Duration(tc.steps) * tc.Tick)
}

// Seconds returns simulated seconds since StartTime.
func (tc *TimeController) Seconds() float64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return float64(tc.steps) * tc.Tick.Seconds()
}

// Steps returns how many ticks have elapsed.
func (tc *TimeController) Steps() int64 {
	tc.mu.RLock()
	defer tc.mu.RUnlock()
	return tc.steps
}

// Reset rewinds the clock to StartTime.
func (tc *TimeController) Reset() {
	tc.mu.Lock()
	tc.steps = 0
	tc.wallStart = time.Time{}
	tc.mu.Unlock()
}

// Step advances one Tick and returns the new simulated instant. In
// RealTime mode it first sleeps until the tick is due.
func (tc *TimeController) Step() time.Time {
	tc.mu.Lock()
	if tc.Mode == RealTime {
		if tc.wallStart.IsZero() {
			tc.wallStart = time.Now()
		}
		due := tc.wallStart.Add(tc.wallDuration(tc.steps + 1))
		if wait := time.Until(due); wait > 0 {
			sleep := tc.sleep
			tc.mu.Unlock()
			sleep(wait)
			tc.mu.Lock()
		}
	}
	tc.steps++
	now := tc.StartTime.Add(time.Duration(tc.steps) * tc.Tick)
	tc.mu.Unlock()
	return now
}

func (tc *TimeController) wallDuration(steps int64) time.Duration {
	scale := tc.Scale
	if scale <= 0 {
		scale = 1
	}
	return time.Duration(float64(time.Duration(steps)*tc.Tick) / scale)
}
