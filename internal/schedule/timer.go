package schedule

import (
	"fmt"
	"time"
)

// PausableTimer is a single-shot countdown that can be suspended and resumed
// without losing progress. Stopping a running timer banks the unelapsed
// remainder; starting it again without a reset counts down only that
// remainder. When the countdown completes naturally the remainder snaps back
// to the full interval and the callback fires.
//
// Calling Start on a running timer or Stop on a stopped one is a programming
// error and returns a non-nil error; callers are expected to treat that as
// fatal rather than carry on with inconsistent state.
//
// All methods must be called from the dispatch goroutine. The clock callback
// hops back onto it via the Poster, so expiry handling is serialized with
// everything else.
type PausableTimer struct {
	name     string
	interval time.Duration
	clock    Clock
	poster   Poster
	callback func() error

	remaining time.Duration
	running   bool
	startedAt time.Time
	pending   TimerHandle

	// gen invalidates expiries that were already in flight when the timer
	// was stopped or restarted.
	gen uint64
}

// NewPausableTimer returns a stopped timer with the full interval remaining.
// The callback runs on the dispatch goroutine after a natural expiry; its
// error aborts the dispatch loop.
func NewPausableTimer(name string, interval time.Duration, clock Clock, poster Poster, callback func() error) *PausableTimer {
	return &PausableTimer{
		name:      name,
		interval:  interval,
		clock:     clock,
		poster:    poster,
		callback:  callback,
		remaining: interval,
	}
}

// Start arms the countdown. With reset the timer counts down its full
// interval; without it, whatever remainder the last Stop banked.
func (t *PausableTimer) Start(reset bool) error {
	if t.running {
		return fmt.Errorf("start %s timer: already running", t.name)
	}

	if reset {
		t.remaining = t.interval
	}

	t.running = true
	t.startedAt = t.clock.Now()
	t.gen++

	gen := t.gen
	t.pending = t.clock.AfterFunc(t.remaining, func() {
		t.poster.Post(func() error {
			return t.expire(gen)
		})
	})

	return nil
}

// Stop suspends the countdown and banks the unelapsed remainder.
func (t *PausableTimer) Stop() error {
	if !t.running {
		return fmt.Errorf("stop %s timer: not running", t.name)
	}

	t.pending.Stop()
	t.pending = nil
	t.gen++

	elapsed := t.clock.Now().Sub(t.startedAt)
	t.remaining -= elapsed
	if t.remaining < 0 {
		t.remaining = 0
	}
	t.running = false

	return nil
}

func (t *PausableTimer) expire(gen uint64) error {
	// A Stop or restart that raced the clock callback bumped gen; this
	// expiry belongs to the cancelled arming and must not fire.
	if !t.running || gen != t.gen {
		return nil
	}

	t.running = false
	t.pending = nil
	t.remaining = t.interval

	return t.callback()
}

// Running reports whether the countdown is armed.
func (t *PausableTimer) Running() bool {
	return t.running
}

// Remaining returns the banked countdown time. While the timer is running it
// reflects the value at the last Start, not a live reading.
func (t *PausableTimer) Remaining() time.Duration {
	return t.remaining
}

// Interval returns the full countdown the timer resets to.
func (t *PausableTimer) Interval() time.Duration {
	return t.interval
}
