// Package duration parses the human duration strings used by the operator
// commands, e.g. "15m" or "2h". The accepted grammar is deliberately small:
// one or more digits followed by exactly one unit letter, unit being minutes
// or hours.
package duration

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

var ErrNotDuration = errors.New("not a duration")

// Parse returns the duration for a string like "15m" or "2h". The unit is
// case-insensitive, surrounding whitespace is allowed. Anything else,
// including a zero value, yields ErrNotDuration.
func Parse(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)

	if len(s) < 2 {
		return 0, ErrNotDuration
	}

	unit := s[len(s)-1]
	digits := s[:len(s)-1]

	value, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, ErrNotDuration
	}

	if value == 0 {
		return 0, ErrNotDuration
	}

	switch unit {
	case 'm', 'M':
		return time.Duration(value) * time.Minute, nil
	case 'h', 'H':
		return time.Duration(value) * time.Hour, nil
	}

	return 0, ErrNotDuration
}

// Expiry parses the string and returns the absolute instant at which a
// window starting at now runs out.
func Expiry(s string, now time.Time) (time.Time, error) {
	d, err := Parse(s)
	if err != nil {
		return time.Time{}, err
	}

	return now.Add(d), nil
}
