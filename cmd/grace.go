package cmd

import (
	"fmt"
	"strconv"
	"time"
)

// parseGrace accepts a duration ("10s", "1m") or a plain number of seconds.
func parseGrace(s string) (time.Duration, error) {
	if n, err := strconv.Atoi(s); err == nil {
		if n < 0 {
			return 0, fmt.Errorf("invalid --grace %q: must not be negative", s)
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("invalid --grace %q: expected a duration such as 10s", s)
	}
	return d, nil
}
