// SPDX-License-Identifier: GPL-3.0-or-later

/*
Package engine adapts the [github.com/iti/evt] discrete-event scheduler
to the needs of the network simulation.

The scheduler is single threaded: every callback registered with
[*Simulator.Schedule] runs on the goroutine that invoked [*Simulator.Run],
in simulated-time order. Nothing in this package is goroutine safe.

Time is measured as a [time.Duration] since the simulation epoch zero.
*/
package engine

import (
	"context"
	"math"
	"time"

	"github.com/iti/evt/evtm"
	"github.com/iti/evt/vrtime"
)

// Simulator is the discrete-event simulator.
//
// Construct using [New].
type Simulator struct {
	// mgr is the underlying event manager.
	mgr *evtm.EventManager

	// pending counts the scheduled events that did not run yet.
	pending int

	// rng derives the random streams.
	rng *Streams

	// running is true while Run is executing.
	running bool
}

// New creates a new [*Simulator] whose random streams are derived
// from the given seed and run number.
func New(seed, run uint64) *Simulator {
	return &Simulator{
		mgr: evtm.New(),
		rng: NewStreams(seed, run),
	}
}

// Timer is a handle to a scheduled event.
//
// The zero value and the nil pointer are both valid and never fire.
type Timer struct {
	fn        func()
	cancelled bool
	fired     bool
}

// Cancel prevents the event from running. Cancelling an already
// fired or cancelled timer is a no-op.
func (t *Timer) Cancel() {
	if t != nil {
		t.cancelled = true
	}
}

// Pending returns whether the event is still going to run.
func (t *Timer) Pending() bool {
	return t != nil && !t.cancelled && !t.fired && t.fn != nil
}

// Now returns the current simulated time.
func (s *Simulator) Now() time.Duration {
	return secondsToDuration(s.mgr.CurrentSeconds())
}

// Schedule runs fn after the given delay of simulated time. A negative
// delay is treated as zero.
func (s *Simulator) Schedule(delay time.Duration, fn func()) *Timer {
	delay = max(delay, 0)
	timer := &Timer{fn: fn}
	s.pending++
	s.mgr.Schedule(s, timer, dispatch, vrtime.SecondsToTime(delay.Seconds()))
	return timer
}

// ScheduleAt runs fn at the given absolute simulated time. Times in
// the past run as soon as possible.
func (s *Simulator) ScheduleAt(at time.Duration, fn func()) *Timer {
	return s.Schedule(at-s.Now(), fn)
}

// dispatch is the [evtm.EventHandlerFunction] shared by all events.
func dispatch(_ *evtm.EventManager, cxt any, data any) any {
	sim := cxt.(*Simulator)
	timer := data.(*Timer)
	sim.pending--
	if timer.cancelled {
		return nil
	}
	timer.fired = true
	timer.fn()
	return nil
}

// Pending returns the number of events still in the queue,
// including cancelled events that have not been popped yet.
func (s *Simulator) Pending() int {
	return s.pending
}

// Run executes events until the queue drains or the simulated time
// would exceed stop. The run itself cannot be interrupted: the
// context is only checked before handing control to the scheduler.
func (s *Simulator) Run(ctx context.Context, stop time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.running = true
	defer func() { s.running = false }()
	s.mgr.Run(stop.Seconds())
	return nil
}

// Running returns whether the simulator is executing events.
func (s *Simulator) Running() bool {
	return s.running
}

// Streams returns the simulator random streams.
func (s *Simulator) Streams() *Streams {
	return s.rng
}

// secondsToDuration converts float seconds to a [time.Duration]
// rounding to the closest nanosecond.
func secondsToDuration(sec float64) time.Duration {
	return time.Duration(math.Round(sec * float64(time.Second)))
}
