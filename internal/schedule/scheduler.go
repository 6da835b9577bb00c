package schedule

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Config holds the effective durations the scheduler runs with. Values are
// fully resolved; there is no unit conversion at this layer.
type Config struct {
	// WorkDuration is how long continuous activity runs before a break is due.
	WorkDuration time.Duration
	// BreakDuration is how long the user must stay away for a break to count.
	BreakDuration time.Duration
	// PostponeDuration is the snooze applied when the user waves a reminder off.
	PostponeDuration time.Duration
	// IdleThreshold is the inactivity span after which the user counts as idle.
	// Time spent reaching it is credited toward the break, so the break timer
	// runs for BreakDuration-IdleThreshold.
	IdleThreshold time.Duration
}

// CloseReason classifies how a reminder prompt went away.
type CloseReason int

const (
	CloseUnknown CloseReason = iota
	// CloseUserDismissed means the user closed the prompt by hand.
	CloseUserDismissed
	// CloseProgrammatic means we closed it ourselves.
	CloseProgrammatic
	// CloseActionInvoked means the user picked the postpone action.
	CloseActionInvoked
)

func (r CloseReason) String() string {
	switch r {
	case CloseUserDismissed:
		return "user_dismissed"
	case CloseProgrammatic:
		return "programmatic"
	case CloseActionInvoked:
		return "action_invoked"
	default:
		return "unknown"
	}
}

// IdleMonitor reports user inactivity. WatchIdle registers a persistent
// callback that fires once per idle episode, when inactivity first reaches
// the threshold. WatchActive registers a one-shot callback for the next user
// input. Callbacks may arrive on any goroutine; the scheduler posts them
// onto its dispatch loop.
type IdleMonitor interface {
	WatchIdle(threshold time.Duration, onIdleStart func()) error
	WatchActive(onActive func()) error
}

// Presenter shows and hides the break reminder. Show while a prompt is
// already visible and Close while none is are both no-ops. How the prompt
// went away is reported out of band, through the daemon, as a CloseReason.
type Presenter interface {
	Show() error
	Close() error
}

// Deps are the scheduler's collaborators. Clock and Logger may be left nil
// for the system defaults.
type Deps struct {
	Clock  Clock
	Poster Poster
	Idle   IdleMonitor
	Prompt Presenter
	Logger *slog.Logger
}

// Scheduler decides when break reminders appear. It owns three pausable
// timers and two booleans, and every transition runs on the dispatch
// goroutine, so none of its state needs locking.
//
// The cycle: the work timer runs while the user is active. When it expires a
// prompt appears and nags (dismissal only postpones it) until the user stays
// idle long enough for the break timer to complete. Idle time before the
// threshold fired already counts toward the break, which is why the break
// timer's interval is the configured break minus the threshold.
type Scheduler struct {
	cfg    Config
	clock  Clock
	poster Poster
	idle   IdleMonitor
	prompt Presenter
	log    *slog.Logger

	workTimer     *PausableTimer
	breakTimer    *PausableTimer
	postponeTimer *PausableTimer

	isIdle        bool
	promptVisible bool
	started       bool

	// cycleID correlates every log line of one work/break round trip.
	cycleID string
}

// New wires a scheduler from its dependencies. Start must be posted to the
// dispatch loop before any events flow.
func New(cfg Config, deps Deps) *Scheduler {
	clock := deps.Clock
	if clock == nil {
		clock = SystemClock
	}

	log := deps.Logger
	if log == nil {
		log = slog.Default()
	}

	s := &Scheduler{
		cfg:    cfg,
		clock:  clock,
		poster: deps.Poster,
		idle:   deps.Idle,
		prompt: deps.Prompt,
		log:    log,
	}

	breakRun := cfg.BreakDuration - cfg.IdleThreshold
	if breakRun < 0 {
		breakRun = 0
	}

	s.workTimer = NewPausableTimer("work", cfg.WorkDuration, clock, deps.Poster, s.handleWorkExpired)
	s.breakTimer = NewPausableTimer("break", breakRun, clock, deps.Poster, s.handleBreakExpired)
	s.postponeTimer = NewPausableTimer("postpone", cfg.PostponeDuration, clock, deps.Poster, s.handlePostponeExpired)

	return s
}

// Start begins the first work interval and registers the persistent idle
// watch. It runs on the dispatch loop, typically as its first posted event.
func (s *Scheduler) Start() error {
	if s.started {
		return errors.New("scheduler already started")
	}
	s.started = true

	s.beginCycle()
	if err := s.workTimer.Start(true); err != nil {
		return err
	}

	if err := s.idle.WatchIdle(s.cfg.IdleThreshold, func() {
		s.poster.Post(s.handleIdleStart)
	}); err != nil {
		return fmt.Errorf("register idle watch: %w", err)
	}

	s.log.Info("scheduler.started",
		"work", s.cfg.WorkDuration,
		"break", s.cfg.BreakDuration,
		"postpone", s.cfg.PostponeDuration,
		"idle_threshold", s.cfg.IdleThreshold,
		"cycle_id", s.cycleID,
	)
	return nil
}

// Shutdown closes any visible prompt and disarms the timers. It runs on the
// dispatch loop as the final event before the process exits.
func (s *Scheduler) Shutdown() error {
	if err := s.closePrompt(); err != nil {
		return err
	}

	for _, t := range []*PausableTimer{s.workTimer, s.breakTimer, s.postponeTimer} {
		if !t.Running() {
			continue
		}
		if err := t.Stop(); err != nil {
			return err
		}
	}

	s.log.Info("scheduler.stopped", "cycle_id", s.cycleID)
	return nil
}

// HandlePromptClosed processes a prompt-closure report from the presenter.
// Manual dismissal and the postpone action both snooze the reminder; our own
// programmatic close does not, or every satisfied break would immediately
// schedule a phantom re-prompt.
func (s *Scheduler) HandlePromptClosed(reason CloseReason) error {
	switch reason {
	case CloseUserDismissed, CloseActionInvoked:
	default:
		s.log.Debug("scheduler.prompt.closed", "reason", reason.String(), "cycle_id", s.cycleID)
		return nil
	}

	if !s.promptVisible {
		// The user's click raced a close we already issued; the prompt it
		// refers to is gone and the report is stale.
		s.log.Debug("scheduler.prompt.stale_report", "reason", reason.String(), "cycle_id", s.cycleID)
		return nil
	}

	if err := s.closePrompt(); err != nil {
		return err
	}

	if err := s.postponeTimer.Start(true); err != nil {
		return err
	}

	s.log.Info("scheduler.break.postponed",
		"reason", reason.String(),
		"postpone", s.cfg.PostponeDuration,
		"cycle_id", s.cycleID,
	)
	return nil
}

// handleWorkExpired fires when the work interval has fully elapsed: a break
// is now due.
func (s *Scheduler) handleWorkExpired() error {
	s.log.Info("scheduler.break.due", "cycle_id", s.cycleID)
	return s.showPrompt()
}

// handleIdleStart fires when inactivity reaches the threshold. The work
// countdown is suspended where it stands and the break countdown begins;
// the threshold itself is already served, so the break timer starts from
// its reduced interval.
func (s *Scheduler) handleIdleStart() error {
	if s.isIdle {
		s.log.Warn("scheduler.idle.duplicate_start", "cycle_id", s.cycleID)
		return nil
	}

	wasWorking := s.workTimer.Running()
	if wasWorking {
		if err := s.workTimer.Stop(); err != nil {
			return err
		}
	}

	if err := s.breakTimer.Start(true); err != nil {
		return err
	}
	s.isIdle = true

	s.log.Debug("scheduler.idle.start",
		"was_working", wasWorking,
		"work_remaining", s.workTimer.Remaining(),
		"break_run", s.breakTimer.Remaining(),
		"cycle_id", s.cycleID,
	)

	if err := s.idle.WatchActive(func() {
		s.poster.Post(func() error {
			return s.handleIdleEnd(wasWorking)
		})
	}); err != nil {
		return fmt.Errorf("register active watch: %w", err)
	}
	return nil
}

// handleIdleEnd fires on the first user input after an idle episode.
// wasWorking tells it what the episode interrupted: if the break countdown
// is still running the user came back too soon, and either the suspended
// work interval resumes or, when a break was already due, the reminder keeps
// nagging. If the break countdown already completed the user has rested;
// a fresh work interval starts from zero.
func (s *Scheduler) handleIdleEnd(wasWorking bool) error {
	if !s.isIdle {
		s.log.Warn("scheduler.idle.duplicate_end", "cycle_id", s.cycleID)
		return nil
	}
	s.isIdle = false

	if s.breakTimer.Running() {
		if err := s.breakTimer.Stop(); err != nil {
			return err
		}
		s.log.Debug("scheduler.idle.end_early",
			"was_working", wasWorking,
			"work_remaining", s.workTimer.Remaining(),
			"cycle_id", s.cycleID,
		)
		if wasWorking {
			return s.workTimer.Start(false)
		}
		return nil
	}

	s.log.Info("scheduler.idle.end_rested", "cycle_id", s.cycleID)
	s.beginCycle()
	return s.workTimer.Start(true)
}

// handleBreakExpired fires when the user has stayed idle for the full break:
// the reminder, if any, is withdrawn and the pending snooze is cancelled.
// The work timer stays stopped until activity resumes.
func (s *Scheduler) handleBreakExpired() error {
	s.log.Info("scheduler.break.satisfied", "cycle_id", s.cycleID)

	if err := s.closePrompt(); err != nil {
		return err
	}

	if s.postponeTimer.Running() {
		if err := s.postponeTimer.Stop(); err != nil {
			return err
		}
	}
	return nil
}

// handlePostponeExpired fires when a snooze runs out and the reminder comes
// back.
func (s *Scheduler) handlePostponeExpired() error {
	s.log.Info("scheduler.break.due_again", "cycle_id", s.cycleID)
	return s.showPrompt()
}

func (s *Scheduler) showPrompt() error {
	if err := s.prompt.Show(); err != nil {
		return fmt.Errorf("show prompt: %w", err)
	}
	s.promptVisible = true
	return nil
}

func (s *Scheduler) closePrompt() error {
	if !s.promptVisible {
		return nil
	}
	if err := s.prompt.Close(); err != nil {
		return fmt.Errorf("close prompt: %w", err)
	}
	s.promptVisible = false
	return nil
}

func (s *Scheduler) beginCycle() {
	s.cycleID = uuid.NewString()
}
