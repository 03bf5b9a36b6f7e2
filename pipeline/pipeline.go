// Package pipeline contains the dispatch loop: the single consumer of the
// event queue that applies the filter chain and hands the survivors to the
// alert sink.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/fleetwatch/core/alert"
	"github.com/fleetwatch/core/analysis"
	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/history"
	"github.com/fleetwatch/core/ignore"
	"github.com/fleetwatch/core/limiter"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/mute"
	"github.com/fleetwatch/core/recent"
)

type Config struct {
	Queue   *event.Queue
	Mutes   *mute.Manager
	Ignores *ignore.Manager
	Recent  *recent.Buffer
	Limiter *limiter.Limiter
	Sink    alert.Sink

	// History is optional. Without it alerts are not persisted.
	History *history.Store

	// Analyzer is optional. With it, alerts for error log lines are
	// enriched asynchronously.
	Analyzer analysis.Analyzer

	// SummaryNotice attaches the number of rate-suppressed events to the
	// first alert after a saturated window drained.
	SummaryNotice bool

	Metrics *Metrics
	Logger  log.Logger
}

// Pipeline drains the queue until it is closed. Events pass the filter
// stages strictly in order; the first stage that intercepts an event decides
// its fate.
type Pipeline struct {
	queue   *event.Queue
	mutes   *mute.Manager
	ignores *ignore.Manager
	recent  *recent.Buffer
	limiter *limiter.Limiter
	sink    alert.Sink

	history  *history.Store
	analyzer analysis.Analyzer

	summaryNotice bool

	metrics *Metrics
	logger  log.Logger

	ctx    context.Context
	cancel context.CancelFunc

	running bool
	done    sync.WaitGroup
	lock    sync.Mutex
}

func New(config Config) (*Pipeline, error) {
	p := &Pipeline{
		queue:         config.Queue,
		mutes:         config.Mutes,
		ignores:       config.Ignores,
		recent:        config.Recent,
		limiter:       config.Limiter,
		sink:          config.Sink,
		history:       config.History,
		analyzer:      config.Analyzer,
		summaryNotice: config.SummaryNotice,
		metrics:       config.Metrics,
		logger:        config.Logger,
	}

	if p.queue == nil {
		return nil, fmt.Errorf("an event queue is required")
	}

	if p.mutes == nil || p.ignores == nil || p.recent == nil || p.limiter == nil {
		return nil, fmt.Errorf("mute, ignore, recent and limiter stages are all required")
	}

	if p.sink == nil {
		return nil, fmt.Errorf("an alert sink is required")
	}

	if p.metrics == nil {
		p.metrics = NewMetrics()
	}

	if p.logger == nil {
		p.logger = log.New("pipeline")
	}

	return p, nil
}

// Start launches the dispatch loop. It returns immediately.
func (p *Pipeline) Start() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if p.running {
		return
	}

	p.running = true
	p.ctx, p.cancel = context.WithCancel(context.Background())

	p.done.Add(1)

	go func() {
		defer p.done.Done()

		for e := range p.queue.Events() {
			p.process(e)
		}
	}()
}

// Stop waits for the loop to finish draining the queue. The caller has to
// close the queue first. Analysis calls still in flight are abandoned.
func (p *Pipeline) Stop() {
	p.lock.Lock()
	defer p.lock.Unlock()

	if !p.running {
		return
	}

	p.running = false

	p.done.Wait()
	p.cancel()
}

func (p *Pipeline) process(e event.Event) {
	p.metrics.received.WithLabelValues(e.Kind.String()).Inc()

	logger := p.logger.WithFields(log.Fields{
		"workload": e.Workload,
		"kind":     e.Kind.String(),
	})

	// Error lines are recorded no matter what the filter chain decides.
	// The recent view feeds the interactive ignore selection and has to
	// show candidate errors, not only alerted ones.
	if e.Kind == event.KindLogError {
		p.recent.Add(e.Workload, e.Message)
	}

	if p.mutes.IsMuted(mute.GlobalKey) {
		p.metrics.filtered.WithLabelValues("muted_global").Inc()
		logger.Debug().Log("Dropped, global mute")
		return
	}

	if p.mutes.IsMuted(e.Workload) {
		p.metrics.filtered.WithLabelValues("muted_workload").Inc()
		logger.Debug().Log("Dropped, workload muted")
		return
	}

	if p.ignores.IsIgnored(e.Workload, e.Message) {
		p.metrics.filtered.WithLabelValues("ignored").Inc()
		logger.Debug().Log("Dropped, matched an ignore rule")
		return
	}

	decision := p.limiter.Allow(e.Workload, e.Message)
	if !decision.Allowed {
		p.metrics.filtered.WithLabelValues(string(decision.Reason)).Inc()
		logger.Debug().WithField("reason", string(decision.Reason)).Log("Dropped, rate limited")
		return
	}

	a := alert.FromEvent(e)

	if p.summaryNotice {
		a.Suppressed = decision.Suppressed
	}

	if p.history != nil {
		if err := p.history.Append(a); err != nil {
			logger.Warn().WithError(err).Log("Appending to the history failed")
		}
	}

	p.metrics.alerted.Inc()
	p.sink.Notify(a)

	p.analyze(a)
}

// analyze fires the analysis collaborator on its own goroutine. The alert
// has already been delivered; a result arrives as an enrichment, a failure
// arrives not at all.
func (p *Pipeline) analyze(a alert.Alert) {
	if p.analyzer == nil {
		return
	}

	if a.Kind != event.KindLogError {
		return
	}

	go func() {
		text, err := p.analyzer.Analyze(p.ctx, a.Message)
		if err != nil {
			p.logger.Debug().WithError(err).WithField("id", a.ID).Log("Analysis failed")
			return
		}

		if len(text) == 0 {
			return
		}

		p.sink.Enrich(a.ID, text)
	}()
}
