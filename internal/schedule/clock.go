package schedule

import "time"

// TimerHandle is a cancellable deferred call, as returned by Clock.AfterFunc.
type TimerHandle interface {
	// Stop cancels the pending call. It reports whether the call was still
	// pending; a callback that already started is not interrupted.
	Stop() bool
}

// Clock abstracts time so the scheduler can be driven deterministically in
// tests. time.Now values carry a monotonic reading, so subtracting two of
// them is immune to wall-clock adjustments.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) TimerHandle
}

// SystemClock is the Clock used outside of tests.
var SystemClock Clock = systemClock{}

type systemClock struct{}

func (systemClock) Now() time.Time {
	return time.Now()
}

func (systemClock) AfterFunc(d time.Duration, f func()) TimerHandle {
	return time.AfterFunc(d, f)
}
