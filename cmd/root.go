package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "takefive",
	Short: "Gentle break reminders",
	Version: Version,
	Long: `takefive reminds you to step away from the screen at a steady rhythm.

It runs quietly in the background, tracks whether you are actually at the
keyboard, and raises a desktop notification when a break is due. Walking
away on your own counts as the break.

Usage:
  takefive run                    Start the reminder daemon
  takefive config init            Create default config file
  takefive autostart enable       Start the daemon on login`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
