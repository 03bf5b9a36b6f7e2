package source

import (
	"context"
	"strings"
	"sync"
	gotime "time"

	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/time"
)

type LogStreamConfig struct {
	Runtime Runtime
	Queue   *event.Queue

	// ErrorPatterns and WarningPatterns classify a line. Matching is
	// case-insensitive substring; the error tier wins if both match. A
	// line that matches neither is discarded and never becomes an event.
	ErrorPatterns   []string
	WarningPatterns []string

	// RescanInterval is how often the workload list is checked for
	// newly appeared workloads.
	RescanInterval gotime.Duration

	// ReconnectDelay is the initial delay before reopening a broken line
	// stream, doubling up to ReconnectMaxDelay.
	ReconnectDelay    gotime.Duration
	ReconnectMaxDelay gotime.Duration

	// MaxLineLength caps the message taken from a line.
	MaxLineLength int

	Source time.Source
	Logger log.Logger
}

// LogStream follows the log lines of every workload and publishes the ones
// that look like errors or warnings. Everything else is dropped here, before
// it ever reaches the filter chain.
type LogStream struct {
	runtime Runtime
	queue   *event.Queue

	errorPatterns   []string
	warningPatterns []string

	rescanInterval    gotime.Duration
	reconnectDelay    gotime.Duration
	reconnectMaxDelay gotime.Duration
	maxLineLength     int

	ts     time.Source
	logger log.Logger
}

func NewLogStream(config LogStreamConfig) *LogStream {
	a := &LogStream{
		runtime:           config.Runtime,
		queue:             config.Queue,
		rescanInterval:    config.RescanInterval,
		reconnectDelay:    config.ReconnectDelay,
		reconnectMaxDelay: config.ReconnectMaxDelay,
		maxLineLength:     config.MaxLineLength,
		ts:                config.Source,
		logger:            config.Logger,
	}

	for _, p := range config.ErrorPatterns {
		if p = event.Normalize(p); len(p) != 0 {
			a.errorPatterns = append(a.errorPatterns, p)
		}
	}

	for _, p := range config.WarningPatterns {
		if p = event.Normalize(p); len(p) != 0 {
			a.warningPatterns = append(a.warningPatterns, p)
		}
	}

	if a.rescanInterval <= 0 {
		a.rescanInterval = 30 * gotime.Second
	}

	if a.reconnectDelay <= 0 {
		a.reconnectDelay = gotime.Second
	}

	if a.reconnectMaxDelay <= 0 {
		a.reconnectMaxDelay = 30 * gotime.Second
	}

	if a.maxLineLength <= 0 {
		a.maxLineLength = 500
	}

	if a.ts == nil {
		a.ts = &time.StdSource{}
	}

	if a.logger == nil {
		a.logger = log.New("")
	}

	return a
}

// Run follows all workloads until the context is done. Newly appearing
// workloads are picked up on the next rescan.
func (a *LogStream) Run(ctx context.Context) {
	wg := sync.WaitGroup{}
	followed := map[string]struct{}{}

	ticker := gotime.NewTicker(a.rescanInterval)
	defer ticker.Stop()

	rescan := func() {
		workloads, err := a.runtime.List(ctx)
		if err != nil {
			a.logger.Warn().WithError(err).Log("Listing workloads failed")
			return
		}

		for _, workload := range workloads {
			if _, ok := followed[workload]; ok {
				continue
			}

			followed[workload] = struct{}{}

			wg.Add(1)
			go func(workload string) {
				defer wg.Done()
				a.follow(ctx, workload)
			}(workload)
		}
	}

	rescan()

	for {
		select {
		case <-ctx.Done():
			wg.Wait()
			return
		case <-ticker.C:
			rescan()
		}
	}
}

// follow consumes one workload's line stream, reopening it with backoff when
// it breaks.
func (a *LogStream) follow(ctx context.Context, workload string) {
	logger := a.logger.WithField("workload", workload)
	attempt := 0

	for {
		if ctx.Err() != nil {
			return
		}

		lines, err := a.runtime.Logs(ctx, workload)
		if err != nil {
			if err == ErrNotSupported {
				logger.Info().Log("Runtime has no log stream, adapter disabled")
				return
			}

			delay := backoff(attempt, a.reconnectDelay, a.reconnectMaxDelay)
			attempt++

			logger.Warn().WithError(err).WithField("retry_in", delay.String()).Log("Opening log stream failed")

			select {
			case <-ctx.Done():
				return
			case <-gotime.After(delay):
			}

			continue
		}

		for line := range lines {
			attempt = 0

			severity, ok := a.Classify(line)
			if !ok {
				continue
			}

			e := event.Event{
				Workload:  workload,
				Kind:      event.KindLogError,
				Severity:  severity,
				Message:   line,
				Timestamp: a.ts.Now(),
			}
			e.Message = e.TruncatedMessage(a.maxLineLength)

			a.queue.Publish(e)
		}

		if ctx.Err() != nil {
			return
		}

		// A stream that ends cleanly is reopened with the same delay
		// as a failed one, otherwise an accept-then-close runtime
		// turns this into a busy loop.
		delay := backoff(attempt, a.reconnectDelay, a.reconnectMaxDelay)
		attempt++

		logger.Debug().WithField("retry_in", delay.String()).Log("Log stream ended")

		select {
		case <-ctx.Done():
			return
		case <-gotime.After(delay):
		}
	}
}

// Classify decides whether a line is worth an event and with which severity.
func (a *LogStream) Classify(line string) (event.Severity, bool) {
	normalized := strings.ToLower(line)

	for _, pattern := range a.errorPatterns {
		if strings.Contains(normalized, pattern) {
			return event.SeverityCritical, true
		}
	}

	for _, pattern := range a.warningPatterns {
		if strings.Contains(normalized, pattern) {
			return event.SeverityWarning, true
		}
	}

	return event.SeverityInfo, false
}
