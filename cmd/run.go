package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/takefive/takefive/internal/config"
	"github.com/takefive/takefive/internal/daemon"
	"github.com/takefive/takefive/internal/logging"
	"github.com/takefive/takefive/internal/schedule"
)

var (
	runWorkMinutes     int
	runBreakMinutes    int
	runPostponeMinutes int
	runIdleMinutes     int
	runDebug           bool
	runMinuteScale     time.Duration
)

var startDaemon = daemon.Run
var runLoadConfig = loadConfigForCommand

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the reminder daemon",
	Long: `Run the break reminder daemon in the foreground.

The daemon counts down a work period, raises a desktop notification when
it expires, and starts the next period once the break has been taken.
Walking away from the keyboard for the idle threshold counts as taking
the break early.

Example:
  takefive run
  takefive run -w 45 -b 10`,
	RunE: func(cmd *cobra.Command, args []string) error {
		loadResult, err := runLoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		printConfigSourceDetails(cmd, loadResult.Source)
		cfg := loadResult.Config

		if runWorkMinutes > 0 {
			cfg.Schedule.WorkMinutes = runWorkMinutes
		}
		if runBreakMinutes > 0 {
			cfg.Schedule.BreakMinutes = runBreakMinutes
		}
		if runPostponeMinutes > 0 {
			cfg.Schedule.PostponeMinutes = runPostponeMinutes
		}
		if runIdleMinutes > 0 {
			cfg.Schedule.IdleThresholdMinutes = runIdleMinutes
		}
		if runDebug {
			cfg.Logging.Level = "debug"
		}

		if err := config.Validate(cfg); err != nil {
			return err
		}
		if runMinuteScale <= 0 {
			return fmt.Errorf("minute-scale must be greater than 0")
		}

		initializeCommandLogging(cmd.ErrOrStderr(), cfg.Logging, logging.RoleDaemon)
		return startDaemon(cfg, scheduleConfig(cfg.Schedule, runMinuteScale))
	},
}

// scheduleConfig converts the configured minute counts into durations. scale
// is normally time.Minute; the hidden --minute-scale flag shrinks it so a
// whole work/break cycle can be watched in seconds.
func scheduleConfig(sc config.ScheduleConfig, scale time.Duration) schedule.Config {
	return schedule.Config{
		WorkDuration:     time.Duration(sc.WorkMinutes) * scale,
		BreakDuration:    time.Duration(sc.BreakMinutes) * scale,
		PostponeDuration: time.Duration(sc.PostponeMinutes) * scale,
		IdleThreshold:    time.Duration(sc.IdleThresholdMinutes) * scale,
	}
}

func init() {
	runCmd.Flags().IntVarP(&runWorkMinutes, "work-minutes", "w", 0, "Minutes of work before a break is due (default from config)")
	runCmd.Flags().IntVarP(&runBreakMinutes, "break-minutes", "b", 0, "Minutes a break lasts (default from config)")
	runCmd.Flags().IntVarP(&runPostponeMinutes, "postpone-minutes", "p", 0, "Minutes a postponed reminder waits (default from config)")
	runCmd.Flags().IntVar(&runIdleMinutes, "idle-threshold-minutes", 0, "Idle minutes before you count as away (default from config)")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Log at debug level")
	runCmd.Flags().DurationVar(&runMinuteScale, "minute-scale", time.Minute, "Length of one configured minute")
	_ = runCmd.Flags().MarkHidden("minute-scale")

	rootCmd.AddCommand(runCmd)
}
