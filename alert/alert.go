// Package alert defines the record handed to the notification side and the
// sink boundary behind which the actual transport (chat, webhook, ...) lives.
package alert

import (
	"time"

	"github.com/fleetwatch/core/event"

	"github.com/lithammer/shortuuid/v4"
)

// Alert is one notification-worthy event that survived the filter chain. The
// Analysis field is empty at first and may be filled in later via the sink's
// Enrich call.
type Alert struct {
	ID        string         `json:"id"`
	Workload  string         `json:"workload"`
	Kind      event.Kind     `json:"kind"`
	Severity  event.Severity `json:"severity"`
	Message   string         `json:"message"`
	Analysis  string         `json:"analysis,omitempty"`
	Timestamp time.Time      `json:"ts"`

	// Suppressed is the number of events that were swallowed by the rate
	// ceiling since the last alert for this workload went out.
	Suppressed uint64 `json:"suppressed,omitempty"`
}

// FromEvent creates an alert with a fresh ID from an event.
func FromEvent(e event.Event) Alert {
	return Alert{
		ID:        shortuuid.New(),
		Workload:  e.Workload,
		Kind:      e.Kind,
		Severity:  e.Severity,
		Message:   e.Message,
		Timestamp: e.Timestamp,
	}
}

// Sink receives alerts. Implementations must not block; a slow transport has
// to buffer or drop on its own.
type Sink interface {
	// Notify delivers a new alert.
	Notify(a Alert)

	// Enrich delivers the analysis text for a previously notified alert.
	// Sinks that cannot amend a sent notification are free to present it
	// as a follow-up.
	Enrich(id string, analysis string)
}
