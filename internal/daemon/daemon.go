// Package daemon wires the break scheduler to the desktop session: idle
// watches and the reminder notification over the session bus, plus an
// optional chime.
package daemon

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"

	"github.com/takefive/takefive/internal/chime"
	"github.com/takefive/takefive/internal/config"
	"github.com/takefive/takefive/internal/idle"
	"github.com/takefive/takefive/internal/prompt"
	"github.com/takefive/takefive/internal/schedule"
)

type idleMonitor interface {
	schedule.IdleMonitor
	Close() error
}

type presenter interface {
	schedule.Presenter
	Stop()
}

type chimePlayer interface {
	Play()
}

type options struct {
	newMonitor   func(log *slog.Logger) (idleMonitor, error)
	newPresenter func(opts prompt.Options, log *slog.Logger) (presenter, error)
	newChime     func(log *slog.Logger) chimePlayer
	clock        schedule.Clock
	notify       func(ch chan<- os.Signal)
	loop         *schedule.Loop
}

// Run starts the reminder daemon and blocks until a shutdown signal or a
// fatal scheduler error.
func Run(cfg config.Config, schedCfg schedule.Config) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return fmt.Errorf("connect session bus: %w", err)
	}
	defer conn.Close()

	return runWithOptions(cfg, schedCfg, options{
		newMonitor: func(log *slog.Logger) (idleMonitor, error) {
			return newSessionMonitor(conn, log)
		},
		newPresenter: func(opts prompt.Options, log *slog.Logger) (presenter, error) {
			return prompt.NewDBusPresenter(conn, opts, log)
		},
	})
}

func runWithOptions(cfg config.Config, schedCfg schedule.Config, opts options) error {
	if opts.clock == nil {
		opts.clock = schedule.SystemClock
	}
	if opts.newChime == nil {
		opts.newChime = func(log *slog.Logger) chimePlayer { return chime.NewPlayer(log) }
	}
	if opts.notify == nil {
		opts.notify = func(ch chan<- os.Signal) {
			signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
		}
	}

	log := slog.Default().With("run_id", uuid.NewString())

	loop := opts.loop
	if loop == nil {
		loop = schedule.NewLoop()
	}

	// The close-report callback runs before sched is assigned only if a
	// notification signal arrives before Start, which cannot happen: the
	// first Show is posted by the scheduler itself.
	var sched *schedule.Scheduler

	pres, err := opts.newPresenter(prompt.Options{
		Summary:     "Time for a break",
		Body:        "You have been at the screen for a while. Step away for a few minutes.",
		ActionLabel: "Postpone",
		OnResult: func(reason schedule.CloseReason) {
			loop.Post(func() error {
				return sched.HandlePromptClosed(reason)
			})
		},
	}, log)
	if err != nil {
		return fmt.Errorf("initialize reminder presenter: %w", err)
	}
	defer pres.Stop()

	monitor, err := opts.newMonitor(log)
	if err != nil {
		return fmt.Errorf("initialize idle monitor: %w", err)
	}
	defer func() {
		_ = monitor.Close()
	}()

	var promptSink schedule.Presenter = pres
	if cfg.Chime.Enabled {
		promptSink = &chimingPresenter{Presenter: pres, player: opts.newChime(log)}
	}

	sched = schedule.New(schedCfg, schedule.Deps{
		Clock:  opts.clock,
		Poster: loop,
		Idle:   monitor,
		Prompt: promptSink,
		Logger: log,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	opts.notify(sigCh)
	defer signal.Stop(sigCh)

	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		log.Info("daemon.signal", "signal", fmt.Sprint(sig))
		loop.Post(func() error {
			err := sched.Shutdown()
			cancel()
			return err
		})
	}()

	loop.Post(sched.Start)
	log.Info("daemon.started")

	if err := loop.Run(ctx); err != nil {
		log.Error("daemon.failed", "error", err.Error())
		return err
	}

	log.Info("daemon.stopped")
	return nil
}

// newSessionMonitor prefers the Mutter idle monitor and falls back to
// sampling the platform idle counter.
func newSessionMonitor(conn *dbus.Conn, log *slog.Logger) (idleMonitor, error) {
	m, mutterErr := idle.NewDBusMonitor(conn)
	if mutterErr == nil {
		log.Info("daemon.idle.backend", "backend", "mutter")
		return m, nil
	}

	log.Warn("daemon.idle.mutter_unavailable", "error", mutterErr.Error())

	p, pollErr := idle.NewPollMonitor(log)
	if pollErr != nil {
		return nil, fmt.Errorf("no idle monitor available: mutter: %v; poll: %w", mutterErr, pollErr)
	}

	log.Info("daemon.idle.backend", "backend", "poll")
	return p, nil
}

// chimingPresenter sounds the chime whenever the reminder appears.
type chimingPresenter struct {
	schedule.Presenter
	player chimePlayer
}

func (p *chimingPresenter) Show() error {
	if err := p.Presenter.Show(); err != nil {
		return err
	}
	p.player.Play()
	return nil
}
