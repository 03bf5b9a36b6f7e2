package alert

import (
	"sync"

	"github.com/fleetwatch/core/log"
)

// LogSink writes alerts to the structured logger. It is the default sink and
// doubles as the fallback when no transport is configured.
type LogSink struct {
	logger log.Logger
}

func NewLogSink(logger log.Logger) *LogSink {
	s := &LogSink{
		logger: logger,
	}

	if s.logger == nil {
		s.logger = log.New("alert")
	}

	return s
}

func (s *LogSink) Notify(a Alert) {
	logger := s.logger.WithFields(log.Fields{
		"id":       a.ID,
		"workload": a.Workload,
		"kind":     a.Kind.String(),
		"severity": a.Severity.String(),
	})

	if a.Suppressed != 0 {
		logger = logger.WithField("suppressed", a.Suppressed)
	}

	logger.Warn().Log(a.Message)
}

func (s *LogSink) Enrich(id string, analysis string) {
	s.logger.Info().WithField("id", id).Log("Analysis: %s", analysis)
}

// BufferSink keeps the last alerts in memory. It serves tests and the demo
// setup where no transport is attached.
type BufferSink struct {
	lock   sync.Mutex
	alerts []Alert
	max    int
}

func NewBufferSink(max int) *BufferSink {
	if max <= 0 {
		max = 100
	}

	return &BufferSink{
		max: max,
	}
}

func (s *BufferSink) Notify(a Alert) {
	s.lock.Lock()
	defer s.lock.Unlock()

	s.alerts = append(s.alerts, a)

	if len(s.alerts) > s.max {
		s.alerts = s.alerts[len(s.alerts)-s.max:]
	}
}

func (s *BufferSink) Enrich(id string, analysis string) {
	s.lock.Lock()
	defer s.lock.Unlock()

	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].ID == id {
			s.alerts[i].Analysis = analysis
			return
		}
	}
}

// List returns a copy of the buffered alerts, oldest first.
func (s *BufferSink) List() []Alert {
	s.lock.Lock()
	defer s.lock.Unlock()

	return append([]Alert{}, s.alerts...)
}
