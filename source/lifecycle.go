package source

import (
	"context"
	"fmt"
	gotime "time"

	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/time"
)

type LifecycleConfig struct {
	Runtime Runtime
	Queue   *event.Queue

	// ReconnectDelay is the initial delay before resubscribing to a broken
	// feed. The delay doubles per failed attempt up to ReconnectMaxDelay.
	ReconnectDelay    gotime.Duration
	ReconnectMaxDelay gotime.Duration

	Source time.Source
	Logger log.Logger
}

// Lifecycle subscribes to the runtime's event feed and translates the raw
// die/start/oom/health_status entries into events.
type Lifecycle struct {
	runtime Runtime
	queue   *event.Queue

	reconnectDelay    gotime.Duration
	reconnectMaxDelay gotime.Duration

	ts     time.Source
	logger log.Logger
}

func NewLifecycle(config LifecycleConfig) *Lifecycle {
	a := &Lifecycle{
		runtime:           config.Runtime,
		queue:             config.Queue,
		reconnectDelay:    config.ReconnectDelay,
		reconnectMaxDelay: config.ReconnectMaxDelay,
		ts:                config.Source,
		logger:            config.Logger,
	}

	if a.reconnectDelay <= 0 {
		a.reconnectDelay = gotime.Second
	}

	if a.reconnectMaxDelay <= 0 {
		a.reconnectMaxDelay = 30 * gotime.Second
	}

	if a.ts == nil {
		a.ts = &time.StdSource{}
	}

	if a.logger == nil {
		a.logger = log.New("")
	}

	return a
}

// Run consumes the feed until the context is done. A broken feed is
// resubscribed with backoff; while disconnected the pipeline simply sees no
// lifecycle events.
func (a *Lifecycle) Run(ctx context.Context) {
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		feed, err := a.runtime.Subscribe(ctx)
		if err != nil {
			if err == ErrNotSupported {
				a.logger.Info().Log("Runtime has no lifecycle feed, adapter disabled")
				return
			}

			delay := backoff(attempt, a.reconnectDelay, a.reconnectMaxDelay)
			attempt++

			a.logger.Warn().WithError(err).WithField("retry_in", delay.String()).Log("Subscribing to lifecycle feed failed")

			select {
			case <-ctx.Done():
				return
			case <-gotime.After(delay):
			}

			continue
		}

		a.logger.Debug().Log("Lifecycle feed connected")

		for raw := range feed {
			attempt = 0

			if e, ok := a.translate(raw); ok {
				a.queue.Publish(e)
			}
		}

		if ctx.Err() != nil {
			return
		}

		// A feed that closes without an error still waits before the
		// next subscribe. A runtime that accepts the subscription and
		// drops it right away would otherwise be resubscribed in a
		// tight loop.
		delay := backoff(attempt, a.reconnectDelay, a.reconnectMaxDelay)
		attempt++

		a.logger.Warn().WithField("retry_in", delay.String()).Log("Lifecycle feed disconnected")

		select {
		case <-ctx.Done():
			return
		case <-gotime.After(delay):
		}
	}
}

func (a *Lifecycle) translate(raw LifecycleEvent) (event.Event, bool) {
	ts := raw.Timestamp
	if ts.IsZero() {
		ts = a.ts.Now()
	}

	e := event.Event{
		Workload:  raw.Workload,
		Timestamp: ts,
	}

	switch raw.Action {
	case ActionDie:
		e.Kind = event.KindLifecycleDie
		e.Severity = event.SeverityCritical
		e.Message = fmt.Sprintf("Workload exited with code %d", raw.ExitCode)
		e.Payload.ExitCode = raw.ExitCode

		if raw.ExitCode == 0 {
			e.Severity = event.SeverityWarning
			e.Message = "Workload exited"
		}
	case ActionStart:
		e.Kind = event.KindLifecycleStart
		e.Severity = event.SeverityInfo
		e.Message = "Workload started"
	case ActionOOM:
		e.Kind = event.KindLifecycleOOM
		e.Severity = event.SeverityCritical
		e.Message = "Workload was killed because it ran out of memory"
	case ActionHealthStatus:
		e.Kind = event.KindHealthStatus
		e.Payload.Health = raw.Health

		if raw.Health == "healthy" {
			e.Severity = event.SeverityInfo
			e.Message = "Workload became healthy"
		} else {
			e.Severity = event.SeverityWarning
			e.Message = fmt.Sprintf("Workload health changed to %s", raw.Health)
		}
	default:
		a.logger.Debug().WithField("action", string(raw.Action)).Log("Dropping unknown lifecycle action")
		return event.Event{}, false
	}

	return e, true
}
