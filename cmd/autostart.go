package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/emersion/go-autostart"
	"github.com/spf13/cobra"
)

var autostartExecutable = func() (string, error) {
	exe, err := os.Executable()
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(exe)
}

var autostartEnable = func(app *autostart.App) error { return app.Enable() }
var autostartDisable = func(app *autostart.App) error { return app.Disable() }
var autostartState = func(app *autostart.App) bool { return app.IsEnabled() }

func autostartApp() (*autostart.App, error) {
	exe, err := autostartExecutable()
	if err != nil {
		return nil, fmt.Errorf("locate executable: %w", err)
	}
	return &autostart.App{
		Name:        "takefive",
		DisplayName: "takefive break reminders",
		Exec:        []string{exe, "run"},
	}, nil
}

var autostartCmd = &cobra.Command{
	Use:   "autostart",
	Short: "Run the daemon on login",
}

var autostartEnableCmd = &cobra.Command{
	Use:   "enable",
	Short: "Register the daemon to start on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := autostartApp()
		if err != nil {
			return err
		}
		if autostartState(app) {
			fmt.Fprintln(cmd.OutOrStdout(), "autostart already enabled")
			return nil
		}
		if err := autostartEnable(app); err != nil {
			return fmt.Errorf("enable autostart: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "autostart enabled")
		return nil
	},
}

var autostartDisableCmd = &cobra.Command{
	Use:   "disable",
	Short: "Stop starting the daemon on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := autostartApp()
		if err != nil {
			return err
		}
		if !autostartState(app) {
			fmt.Fprintln(cmd.OutOrStdout(), "autostart already disabled")
			return nil
		}
		if err := autostartDisable(app); err != nil {
			return fmt.Errorf("disable autostart: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), "autostart disabled")
		return nil
	},
}

var autostartStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report whether the daemon starts on login",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := autostartApp()
		if err != nil {
			return err
		}
		if autostartState(app) {
			fmt.Fprintln(cmd.OutOrStdout(), "enabled")
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "disabled")
		}
		return nil
	},
}

func init() {
	autostartCmd.AddCommand(autostartEnableCmd)
	autostartCmd.AddCommand(autostartDisableCmd)
	autostartCmd.AddCommand(autostartStatusCmd)
	rootCmd.AddCommand(autostartCmd)
}
