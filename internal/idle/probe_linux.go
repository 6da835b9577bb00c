//go:build linux

package idle

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

func probeIdle() (time.Duration, error) {
	// xprintidle (X11) reports milliseconds
	out, err := exec.Command("xprintidle").Output()
	if err != nil {
		return 0, fmt.Errorf("xprintidle: %w", err)
	}
	return parseIdleMillis(out)
}

func parseIdleMillis(out []byte) (time.Duration, error) {
	ms, err := strconv.ParseInt(strings.TrimSpace(string(out)), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse xprintidle output: %w", err)
	}
	return time.Duration(ms) * time.Millisecond, nil
}
