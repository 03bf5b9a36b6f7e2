package alert

import (
	"testing"
	"time"

	"github.com/fleetwatch/core/event"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEvent(t *testing.T) {
	e := event.Event{
		Workload:  "radarr",
		Kind:      event.KindLogError,
		Severity:  event.SeverityCritical,
		Message:   "it broke",
		Timestamp: time.Unix(1000, 0),
	}

	a := FromEvent(e)

	assert.NotEmpty(t, a.ID)
	assert.Equal(t, "radarr", a.Workload)
	assert.Equal(t, event.KindLogError, a.Kind)
	assert.Equal(t, "it broke", a.Message)
	assert.Equal(t, e.Timestamp, a.Timestamp)

	b := FromEvent(e)
	assert.NotEqual(t, a.ID, b.ID)
}

func TestBufferSink(t *testing.T) {
	s := NewBufferSink(3)

	for _, id := range []string{"a", "b", "c", "d"} {
		s.Notify(Alert{ID: id})
	}

	alerts := s.List()
	require.Equal(t, 3, len(alerts))
	assert.Equal(t, "b", alerts[0].ID)
	assert.Equal(t, "d", alerts[2].ID)
}

func TestBufferSinkEnrich(t *testing.T) {
	s := NewBufferSink(10)

	s.Notify(Alert{ID: "a"})
	s.Notify(Alert{ID: "b"})

	s.Enrich("a", "the disk is full")
	s.Enrich("nope", "ignored")

	alerts := s.List()
	assert.Equal(t, "the disk is full", alerts[0].Analysis)
	assert.Empty(t, alerts[1].Analysis)
}
