// Package limiter bounds how often alerts leave the pipeline. Two controls
// are composed: a cooldown per fingerprint (workload + normalized message)
// that debounces flapping conditions, and a rate ceiling per workload over a
// rolling window that caps total alert volume no matter how many distinct
// messages arrive. Events beyond the ceiling are counted, not forgotten: the
// count is handed out with the next allowed alert so a summary can be
// attached.
package limiter

import (
	"sync"
	gotime "time"

	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/time"

	"github.com/prep/average"
)

// Reason tells why a decision denied an event.
type Reason string

const (
	ReasonNone     Reason = ""
	ReasonCooldown Reason = "cooldown"
	ReasonRate     Reason = "rate"
)

type Decision struct {
	Allowed bool
	Reason  Reason

	// Suppressed is the number of events that were held back by the rate
	// ceiling since it last saturated. It is only non-zero on an allowed
	// decision, i.e. when the window has drained again.
	Suppressed uint64
}

type Config struct {
	// Cooldown is the minimum distance between two alerts with the same
	// fingerprint.
	Cooldown gotime.Duration

	// MaxAlerts is the ceiling per workload per window. 0 disables the
	// ceiling.
	MaxAlerts int

	// Window is the rolling window for the ceiling.
	Window gotime.Duration

	// Granularity is the resolution of the rolling window. Window must be
	// a multiple of it.
	Granularity gotime.Duration

	Source time.Source
	Logger log.Logger
}

// Limiter implements the cooldown and the rate ceiling. All methods are safe
// for concurrent use.
type Limiter struct {
	cooldown    gotime.Duration
	maxAlerts   int
	window      gotime.Duration
	granularity gotime.Duration
	ts          time.Source
	logger      log.Logger

	lastAlert  map[string]gotime.Time
	windows    map[string]*average.SlidingWindow
	suppressed map[string]uint64

	lock sync.Mutex
}

const maxFingerprints = 4096

func New(config Config) *Limiter {
	l := &Limiter{
		cooldown:    config.Cooldown,
		maxAlerts:   config.MaxAlerts,
		window:      config.Window,
		granularity: config.Granularity,
		ts:          config.Source,
		logger:      config.Logger,
		lastAlert:   map[string]gotime.Time{},
		windows:     map[string]*average.SlidingWindow{},
		suppressed:  map[string]uint64{},
	}

	if l.cooldown <= 0 {
		l.cooldown = 5 * gotime.Minute
	}

	if l.window <= 0 {
		l.window = gotime.Hour
	}

	if l.granularity <= 0 || l.window%l.granularity != 0 {
		l.granularity = l.window / 60
	}

	if l.ts == nil {
		l.ts = &time.StdSource{}
	}

	if l.logger == nil {
		l.logger = log.New("")
	}

	return l
}

// Allow decides whether an alert for this workload and message may be
// emitted right now and records the emission if so. This is the live path.
func (l *Limiter) Allow(workload, message string) Decision {
	fingerprint := workload + "\x00" + event.Normalize(message)
	now := l.ts.Now()

	l.lock.Lock()
	defer l.lock.Unlock()

	if last, ok := l.lastAlert[fingerprint]; ok {
		if now.Sub(last) < l.cooldown {
			return Decision{Allowed: false, Reason: ReasonCooldown}
		}
	}

	if l.maxAlerts > 0 {
		w := l.windows[workload]
		if w != nil {
			if total, _ := w.Total(l.window); total >= int64(l.maxAlerts) {
				l.suppressed[workload]++

				l.logger.Debug().WithFields(log.Fields{
					"workload":   workload,
					"suppressed": l.suppressed[workload],
				}).Log("Rate ceiling reached")

				return Decision{Allowed: false, Reason: ReasonRate}
			}
		}
	}

	l.record(workload, fingerprint, now)

	d := Decision{Allowed: true}

	if n := l.suppressed[workload]; n > 0 {
		d.Suppressed = n
		delete(l.suppressed, workload)
	}

	return d
}

// Peek answers what Allow would decide, without recording anything and
// without counting the event.
func (l *Limiter) Peek(workload, message string) Decision {
	fingerprint := workload + "\x00" + event.Normalize(message)
	now := l.ts.Now()

	l.lock.Lock()
	defer l.lock.Unlock()

	if last, ok := l.lastAlert[fingerprint]; ok {
		if now.Sub(last) < l.cooldown {
			return Decision{Allowed: false, Reason: ReasonCooldown}
		}
	}

	if l.maxAlerts > 0 {
		if w := l.windows[workload]; w != nil {
			if total, _ := w.Total(l.window); total >= int64(l.maxAlerts) {
				return Decision{Allowed: false, Reason: ReasonRate}
			}
		}
	}

	return Decision{Allowed: true}
}

// record is called with the lock held.
func (l *Limiter) record(workload, fingerprint string, now gotime.Time) {
	if len(l.lastAlert) >= maxFingerprints {
		l.pruneFingerprints(now)
	}

	l.lastAlert[fingerprint] = now

	if l.maxAlerts > 0 {
		w := l.windows[workload]
		if w == nil {
			w = average.MustNew(l.window, l.granularity)
			l.windows[workload] = w
		}

		w.Add(1)
	}
}

// pruneFingerprints drops fingerprints whose cooldown has long passed. It is
// called with the lock held.
func (l *Limiter) pruneFingerprints(now gotime.Time) {
	for fingerprint, last := range l.lastAlert {
		if now.Sub(last) >= l.cooldown {
			delete(l.lastAlert, fingerprint)
		}
	}
}

// Close stops the rolling windows.
func (l *Limiter) Close() {
	l.lock.Lock()
	defer l.lock.Unlock()

	for workload, w := range l.windows {
		w.Stop()
		delete(l.windows, workload)
	}
}
