package api

import (
	"time"
)

// MuteRequest is the body for setting a mute.
type MuteRequest struct {
	// Duration is a parseable duration, e.g. "30m" or "1h".
	Duration string `json:"duration"`
}

// Mute is one active mute window.
type Mute struct {
	Key    string    `json:"key"`
	Expiry time.Time `json:"expiry"`
}

// MuteRemoved tells whether there was a mute to remove.
type MuteRemoved struct {
	Removed bool `json:"removed"`
}

// IgnoreRequest is the body for adding an ignore rule. Either the pattern is
// given verbatim, or a 1-based position into the workload's recent unique
// error list.
type IgnoreRequest struct {
	Pattern  string `json:"pattern"`
	Position int    `json:"position"`
}

// IgnoreRule is one ignore rule with its origin tier.
type IgnoreRule struct {
	Pattern string `json:"pattern"`
	Source  string `json:"source" enums:"config,runtime"`
}

// IgnoreResponse reports the outcome of an ignore mutation.
type IgnoreResponse struct {
	Pattern string `json:"pattern"`
	Changed bool   `json:"changed"`
}

// RecentError is one entry of the recent unique error view. The position is
// what an operator passes back to ignore it.
type RecentError struct {
	Position int    `json:"position"`
	Message  string `json:"message"`
}
