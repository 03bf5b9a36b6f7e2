// Package source contains the adapters that observe the workload runtime and
// turn what they see into normalized events. Each adapter is an independent,
// restartable producer; a failing adapter degrades to silence and never takes
// the others down.
package source

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by a runtime for a feed it cannot provide. The
// adapter for that feed shuts down quietly.
var ErrNotSupported = errors.New("not supported by this runtime")

// LifecycleAction is the raw event kind as reported by the runtime.
type LifecycleAction string

const (
	ActionDie          LifecycleAction = "die"
	ActionStart        LifecycleAction = "start"
	ActionOOM          LifecycleAction = "oom"
	ActionHealthStatus LifecycleAction = "health_status"
)

// LifecycleEvent is one raw entry from the runtime's event feed.
type LifecycleEvent struct {
	Workload  string
	Action    LifecycleAction
	ExitCode  int
	Health    string
	Timestamp time.Time
}

// Sample is a point-in-time health snapshot of one workload.
type Sample struct {
	Workload      string
	Running       bool
	CPUPercent    float64 // percent 0-100
	MemoryPercent float64 // percent 0-100
	RestartCount  int
	Health        string // "healthy", "unhealthy", "starting" or "" if the workload has no health probe
}

// Runtime is the boundary to the system that actually runs the workloads,
// e.g. a container engine. The pipeline only consumes; it never manages the
// workloads themselves.
type Runtime interface {
	// List returns the names of the workloads this runtime monitors.
	List(ctx context.Context) ([]string, error)

	// Subscribe opens the lifecycle event feed. The returned channel is
	// closed when the feed breaks; the caller is expected to subscribe
	// again.
	Subscribe(ctx context.Context) (<-chan LifecycleEvent, error)

	// Sample takes a health snapshot of one workload.
	Sample(ctx context.Context, workload string) (Sample, error)

	// Logs opens the log line stream of one workload, starting at
	// subscription time. No historical backlog is replayed.
	Logs(ctx context.Context, workload string) (<-chan string, error)
}

// backoff returns the delay before the n-th reconnect attempt, starting at
// base and doubling up to cap.
func backoff(n int, base, cap time.Duration) time.Duration {
	d := base

	for i := 0; i < n; i++ {
		d *= 2
		if d >= cap {
			return cap
		}
	}

	return d
}
