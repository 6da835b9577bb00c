//go:build darwin

package idle

import (
	"fmt"
	"os/exec"
	"strconv"
	"strings"
	"time"
)

func probeIdle() (time.Duration, error) {
	// ioreg reports HIDIdleTime in nanoseconds
	out, err := exec.Command("ioreg", "-c", "IOHIDSystem").Output()
	if err != nil {
		return 0, fmt.Errorf("ioreg: %w", err)
	}
	return parseHIDIdleTime(out)
}

func parseHIDIdleTime(out []byte) (time.Duration, error) {
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "HIDIdleTime") {
			continue
		}

		_, value, found := strings.Cut(line, "=")
		if !found {
			continue
		}

		ns, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse HIDIdleTime: %w", err)
		}
		return time.Duration(ns) * time.Nanosecond, nil
	}

	return 0, fmt.Errorf("HIDIdleTime not found in ioreg output")
}
