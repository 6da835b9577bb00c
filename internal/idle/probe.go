package idle

import "time"

// Probe returns how long the user has been idle (no keyboard/mouse input),
// read from the platform input stack. It is the sampling primitive behind
// PollMonitor on desktops without a Mutter idle monitor.
func Probe() (time.Duration, error) {
	return probeIdle()
}
