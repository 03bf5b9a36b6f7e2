package duration

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParse(t *testing.T) {
	data := map[string]time.Duration{
		"15m":    15 * time.Minute,
		"2h":     2 * time.Hour,
		"1M":     time.Minute,
		"24H":    24 * time.Hour,
		" 90m ":  90 * time.Minute,
		"\t3h\n": 3 * time.Hour,
	}

	for in, want := range data {
		d, err := Parse(in)

		assert.NoError(t, err, in)
		assert.Equal(t, want, d, in)
	}
}

func TestParseInvalid(t *testing.T) {
	data := []string{
		"",
		"m",
		"15",
		"0m",
		"0h",
		"-5m",
		"1.5h",
		"15s",
		"15d",
		"h15",
		"five minutes",
		"15 m",
	}

	for _, in := range data {
		_, err := Parse(in)

		assert.ErrorIs(t, err, ErrNotDuration, in)
	}
}

func TestExpiry(t *testing.T) {
	now := time.Unix(1000, 0)

	expiry, err := Expiry("1h", now)

	assert.NoError(t, err)
	assert.Equal(t, now.Add(time.Hour), expiry)

	_, err = Expiry("nope", now)

	assert.ErrorIs(t, err, ErrNotDuration)
}
