package utils

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidExpiry is returned for expiry strings that do not describe a
// positive duration.
var ErrInvalidExpiry = errors.New("invalid expiry")

// ParseExpiresIn turns an expiry string such as "30d", "12h", "15m" or "3600"
// into a duration.
//
// Day and hour values are read by stripping every non-digit character and
// looking at the trailing unit letter, so "30d" is 30 days. Anything else is
// tried as a Go duration and finally as a bare number of seconds.
func ParseExpiresIn(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, fmt.Errorf("%w: empty", ErrInvalidExpiry)
	}

	var unit time.Duration
	switch {
	case strings.HasSuffix(s, "d"):
		unit = 24 * time.Hour
	case strings.HasSuffix(s, "h"):
		unit = time.Hour
	}
	if unit > 0 {
		n, err := strconv.Atoi(digitsOnly(s))
		if err != nil || n <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
		}
		return time.Duration(n) * unit, nil
	}

	if d, err := time.ParseDuration(s); err == nil {
		if d <= 0 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
		}
		return d, nil
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return time.Duration(n) * time.Second, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrInvalidExpiry, s)
}

func digitsOnly(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
