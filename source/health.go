package source

import (
	"context"
	"fmt"
	gotime "time"

	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/time"
)

type HealthConfig struct {
	Runtime Runtime
	Queue   *event.Queue

	// Interval is how often all workloads are sampled.
	Interval gotime.Duration

	// CPUThreshold and MemoryThreshold are in percent 0-100. 0 disables
	// the respective condition.
	CPUThreshold    float64
	MemoryThreshold float64

	// SustainFor is how long a resource condition has to hold continuously
	// before it emits. A condition that clears earlier never produces an
	// event.
	SustainFor gotime.Duration

	Source time.Source
	Logger log.Logger
}

// condition tracks one resource threshold for one workload across ticks.
type condition struct {
	overSince gotime.Time // zero if currently below the threshold
	fired     bool
}

// workloadState is what the adapter remembers about a workload from the
// previous tick, so that all its signals are edge-triggered.
type workloadState struct {
	known        bool
	running      bool
	health       string
	restartCount int

	cpu    condition
	memory condition
}

// Health samples all workloads on a fixed interval and emits events on state
// transitions: stopped/started, restart count jumps, health probe flips and
// sustained resource thresholds. A condition that persists does not re-emit
// every tick.
type Health struct {
	runtime Runtime
	queue   *event.Queue

	interval        gotime.Duration
	cpuThreshold    float64
	memoryThreshold float64
	sustainFor      gotime.Duration

	state map[string]*workloadState

	ts     time.Source
	logger log.Logger
}

func NewHealth(config HealthConfig) *Health {
	a := &Health{
		runtime:         config.Runtime,
		queue:           config.Queue,
		interval:        config.Interval,
		cpuThreshold:    config.CPUThreshold,
		memoryThreshold: config.MemoryThreshold,
		sustainFor:      config.SustainFor,
		state:           map[string]*workloadState{},
		ts:              config.Source,
		logger:          config.Logger,
	}

	if a.interval <= 0 {
		a.interval = 30 * gotime.Second
	}

	if a.sustainFor < 0 {
		a.sustainFor = 0
	}

	if a.ts == nil {
		a.ts = &time.StdSource{}
	}

	if a.logger == nil {
		a.logger = log.New("")
	}

	return a
}

// Run polls until the context is done.
func (a *Health) Run(ctx context.Context) {
	ticker := gotime.NewTicker(a.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.poll(ctx)
		}
	}
}

// poll samples every workload once and publishes the resulting events.
func (a *Health) poll(ctx context.Context) {
	workloads, err := a.runtime.List(ctx)
	if err != nil {
		a.logger.Warn().WithError(err).Log("Listing workloads failed")
		return
	}

	for _, workload := range workloads {
		sample, err := a.runtime.Sample(ctx, workload)
		if err != nil {
			a.logger.Debug().WithField("workload", workload).WithError(err).Log("Sampling failed")
			continue
		}

		for _, e := range a.observe(sample) {
			a.queue.Publish(e)
		}
	}
}

// observe compares a sample against the remembered state and returns the
// events for every transition it finds.
func (a *Health) observe(sample Sample) []event.Event {
	now := a.ts.Now()

	s, ok := a.state[sample.Workload]
	if !ok {
		s = &workloadState{}
		a.state[sample.Workload] = s
	}

	events := []event.Event{}

	if s.known {
		if s.running && !sample.Running {
			events = append(events, event.Event{
				Workload:  sample.Workload,
				Kind:      event.KindHealthStatus,
				Severity:  event.SeverityCritical,
				Message:   "Workload is not running",
				Timestamp: now,
			})
		} else if !s.running && sample.Running {
			events = append(events, event.Event{
				Workload:  sample.Workload,
				Kind:      event.KindHealthStatus,
				Severity:  event.SeverityInfo,
				Message:   "Workload is running",
				Timestamp: now,
			})
		}

		if sample.RestartCount > s.restartCount {
			events = append(events, event.Event{
				Workload:  sample.Workload,
				Kind:      event.KindHealthStatus,
				Severity:  event.SeverityWarning,
				Message:   fmt.Sprintf("Workload restarted (%d restarts total)", sample.RestartCount),
				Timestamp: now,
				Payload:   event.Payload{RestartCount: sample.RestartCount},
			})
		}

		if sample.Health != s.health && len(sample.Health) != 0 {
			severity := event.SeverityWarning
			if sample.Health == "healthy" {
				severity = event.SeverityInfo
			}

			events = append(events, event.Event{
				Workload:  sample.Workload,
				Kind:      event.KindHealthStatus,
				Severity:  severity,
				Message:   fmt.Sprintf("Workload health changed to %s", sample.Health),
				Timestamp: now,
				Payload:   event.Payload{Health: sample.Health},
			})
		}
	}

	if sample.Running {
		events = append(events, a.observeResource(sample.Workload, "cpu", sample.CPUPercent, a.cpuThreshold, &s.cpu, now)...)
		events = append(events, a.observeResource(sample.Workload, "memory", sample.MemoryPercent, a.memoryThreshold, &s.memory, now)...)
	} else {
		// A stopped workload has no resource consumption to track.
		s.cpu = condition{}
		s.memory = condition{}
	}

	s.known = true
	s.running = sample.Running
	s.health = sample.Health
	s.restartCount = sample.RestartCount

	return events
}

// observeResource implements the sustained-threshold semantics: the value
// has to stay above the threshold from the instant it was first seen over it
// until the sustain duration has passed. The event fires once; a "recovered"
// event is emitted when the condition clears after having fired.
func (a *Health) observeResource(workload, resource string, value, threshold float64, c *condition, now gotime.Time) []event.Event {
	if threshold <= 0 {
		return nil
	}

	if value > threshold {
		if c.overSince.IsZero() {
			c.overSince = now
		}

		if !c.fired && now.Sub(c.overSince) >= a.sustainFor {
			c.fired = true

			return []event.Event{{
				Workload:  workload,
				Kind:      event.KindResourceThreshold,
				Severity:  event.SeverityCritical,
				Message:   fmt.Sprintf("%s usage at %.1f%% exceeds %.1f%% for more than %s", resource, value, threshold, a.sustainFor),
				Timestamp: now,
				Payload: event.Payload{
					Resource:  resource,
					Value:     value,
					Threshold: threshold,
				},
			}}
		}

		return nil
	}

	c.overSince = gotime.Time{}

	if c.fired {
		c.fired = false

		return []event.Event{{
			Workload:  workload,
			Kind:      event.KindResourceThreshold,
			Severity:  event.SeverityInfo,
			Message:   fmt.Sprintf("%s usage back below %.1f%%", resource, threshold),
			Timestamp: now,
			Payload: event.Payload{
				Resource:  resource,
				Value:     value,
				Threshold: threshold,
				Resolved:  true,
			},
		}}
	}

	return nil
}
