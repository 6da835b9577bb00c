package idle

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

const pollInterval = time.Second

// PollMonitor approximates watch semantics on desktops that expose only an
// instantaneous idle counter (xprintidle, IOHIDSystem, GetLastInputInfo).
// It samples the counter once a second: crossing the threshold starts an
// idle episode, and the counter jumping backwards means user input arrived.
type PollMonitor struct {
	probe    func() (time.Duration, error)
	interval time.Duration
	log      *slog.Logger

	mu          sync.Mutex
	threshold   time.Duration
	onIdleStart func()
	onActive    func()
	inEpisode   bool
	lastSample  time.Duration

	stop chan struct{}
	done chan struct{}
}

// NewPollMonitor starts a sampling monitor over Probe. A first synchronous
// sample acts as the availability check.
func NewPollMonitor(log *slog.Logger) (*PollMonitor, error) {
	return newPollMonitor(Probe, log)
}

func newPollMonitor(probe func() (time.Duration, error), log *slog.Logger) (*PollMonitor, error) {
	if log == nil {
		log = slog.Default()
	}

	if _, err := probe(); err != nil {
		return nil, fmt.Errorf("probe idle counter: %w", err)
	}

	m := &PollMonitor{
		probe:    probe,
		interval: pollInterval,
		log:      log,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	go m.run()

	return m, nil
}

// WatchIdle sets the idle threshold and the persistent idle-start callback.
// The callback runs on the monitor's sampling goroutine.
func (m *PollMonitor) WatchIdle(threshold time.Duration, onIdleStart func()) error {
	m.mu.Lock()
	m.threshold = threshold
	m.onIdleStart = onIdleStart
	m.mu.Unlock()
	return nil
}

// WatchActive sets the one-shot callback for the next user input.
func (m *PollMonitor) WatchActive(onActive func()) error {
	m.mu.Lock()
	m.onActive = onActive
	m.mu.Unlock()
	return nil
}

// Close stops the sampling goroutine and waits for it to exit.
func (m *PollMonitor) Close() error {
	close(m.stop)
	<-m.done
	return nil
}

func (m *PollMonitor) run() {
	defer close(m.done)

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			sample, err := m.probe()
			if err != nil {
				m.log.Warn("idle.poll.probe_failed", "error", err)
				continue
			}
			m.step(sample)
		}
	}
}

// step folds one idle-counter sample into the episode state.
func (m *PollMonitor) step(sample time.Duration) {
	m.mu.Lock()
	var fire func()
	switch {
	case !m.inEpisode && m.threshold > 0 && sample >= m.threshold:
		m.inEpisode = true
		fire = m.onIdleStart
	case m.inEpisode && sample < m.lastSample:
		// the counter only moves backwards when input resets it
		m.inEpisode = false
		fire = m.onActive
		m.onActive = nil
	}
	m.lastSample = sample
	m.mu.Unlock()

	if fire != nil {
		fire()
	}
}
