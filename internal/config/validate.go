package config

import (
	"fmt"
	"strings"
)

// Validate enforces the invariants the scheduler and logger rely on.
func Validate(cfg Config) error {
	if err := validateSchedule(cfg.Schedule); err != nil {
		return err
	}

	return validateLogging(cfg.Logging)
}

func validateSchedule(schedule ScheduleConfig) error {
	if schedule.WorkMinutes <= 0 {
		return fmt.Errorf("schedule.work_minutes must be greater than 0")
	}

	if schedule.BreakMinutes <= 0 {
		return fmt.Errorf("schedule.break_minutes must be greater than 0")
	}

	if schedule.PostponeMinutes <= 0 {
		return fmt.Errorf("schedule.postpone_minutes must be greater than 0")
	}

	if schedule.IdleThresholdMinutes <= 0 {
		return fmt.Errorf("schedule.idle_threshold_minutes must be greater than 0")
	}

	if schedule.IdleThresholdMinutes >= schedule.WorkMinutes {
		return fmt.Errorf("schedule.idle_threshold_minutes must be less than schedule.work_minutes")
	}

	return nil
}

func validateLogging(logging LoggingConfig) error {
	switch strings.ToLower(logging.Level) {
	case "error", "warn", "info", "debug":
		// valid
	default:
		return fmt.Errorf("logging.level must be one of error, warn, info, debug")
	}

	if logging.MaxSizeMB <= 0 {
		return fmt.Errorf("logging.max_size_mb must be greater than 0")
	}

	if logging.MaxBackups <= 0 {
		return fmt.Errorf("logging.max_backups must be greater than 0")
	}

	if strings.TrimSpace(logging.Dir) == "" {
		return fmt.Errorf("logging.dir is required")
	}

	return nil
}
