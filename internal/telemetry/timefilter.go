package telemetry

import (
	"fmt"
	"strconv"
	"time"
)

// ParseWindow parses the short time-filter form `<int><unit>` with
// unit ∈ {h, d, w, m}; m is treated as 30 days.
func ParseWindow(s string) (time.Duration, error) {
	if len(s) < 2 {
		return 0, fmt.Errorf("invalid time filter %q", s)
	}
	unit := s[len(s)-1]
	n, err := strconv.Atoi(s[:len(s)-1])
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid time filter %q", s)
	}

	var unitDuration time.Duration
	switch unit {
	case 'h':
		unitDuration = time.Hour
	case 'd':
		unitDuration = 24 * time.Hour
	case 'w':
		unitDuration = 7 * 24 * time.Hour
	case 'm':
		unitDuration = 30 * 24 * time.Hour
	default:
		return 0, fmt.Errorf("invalid time filter unit %q in %q", string(unit), s)
	}
	return time.Duration(n) * unitDuration, nil
}
