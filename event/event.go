// Package event defines the normalized observation emitted by the source
// adapters and the queue that carries it to the dispatch loop.
package event

import (
	"fmt"
	"strings"
	"time"
)

// Kind is the closed set of observation kinds. Adding a kind means touching
// every switch over it, which is intended.
type Kind int

const (
	KindLifecycleDie Kind = iota
	KindLifecycleStart
	KindLifecycleOOM
	KindHealthStatus
	KindResourceThreshold
	KindLogError
)

func (k Kind) String() string {
	switch k {
	case KindLifecycleDie:
		return "lifecycle-die"
	case KindLifecycleStart:
		return "lifecycle-start"
	case KindLifecycleOOM:
		return "lifecycle-oom"
	case KindHealthStatus:
		return "health-status"
	case KindResourceThreshold:
		return "resource-threshold"
	case KindLogError:
		return "log-error"
	}

	return "unknown"
}

func (k Kind) MarshalJSON() ([]byte, error) {
	return []byte(`"` + k.String() + `"`), nil
}

func (k *Kind) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)

	for kind := KindLifecycleDie; kind <= KindLogError; kind++ {
		if kind.String() == name {
			*k = kind
			return nil
		}
	}

	return fmt.Errorf("unknown event kind %s", name)
}

type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityCritical
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityCritical:
		return "critical"
	}

	return "unknown"
}

func (s Severity) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *Severity) UnmarshalJSON(data []byte) error {
	switch strings.Trim(string(data), `"`) {
	case "info":
		*s = SeverityInfo
	case "warning":
		*s = SeverityWarning
	case "critical":
		*s = SeverityCritical
	default:
		return fmt.Errorf("unknown severity %s", string(data))
	}

	return nil
}

// Payload carries the kind-dependent structured part of an event. Which
// fields are meaningful depends on the kind.
type Payload struct {
	ExitCode     int     `json:"exit_code,omitempty"`
	Resource     string  `json:"resource,omitempty"` // "cpu" or "memory"
	Value        float64 `json:"value,omitempty"`    // percent
	Threshold    float64 `json:"threshold,omitempty"`
	Resolved     bool    `json:"resolved,omitempty"`
	RestartCount int     `json:"restart_count,omitempty"`
	Health       string  `json:"health,omitempty"`
}

// Event is one observation for one workload. An event is created by exactly
// one source adapter and is read-only once it has been published.
type Event struct {
	Workload  string    `json:"workload"`
	Kind      Kind      `json:"kind"`
	Severity  Severity  `json:"severity"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"ts"`
	Payload   Payload   `json:"payload,omitempty"`
}

// Normalize maps a message to the representation used for matching and
// deduplication: trimmed and lower-cased.
func Normalize(message string) string {
	return strings.ToLower(strings.TrimSpace(message))
}

// Fingerprint is the debounce key for this event.
func (e Event) Fingerprint() string {
	return e.Workload + "\x00" + Normalize(e.Message)
}

// TruncatedMessage returns the message capped to max runes. Messages can be
// arbitrarily long log lines and have to be cut before persistence and
// display.
func (e Event) TruncatedMessage(max int) string {
	runes := []rune(e.Message)
	if len(runes) <= max {
		return e.Message
	}

	return string(runes[:max]) + "…"
}
