package pipeline

import (
	"context"
	"testing"
	gotime "time"

	"github.com/fleetwatch/core/alert"
	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/ignore"
	"github.com/fleetwatch/core/limiter"
	"github.com/fleetwatch/core/mute"
	"github.com/fleetwatch/core/recent"
	"github.com/fleetwatch/core/time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	queue    *event.Queue
	mutes    *mute.Manager
	ignores  *ignore.Manager
	recent   *recent.Buffer
	limiter  *limiter.Limiter
	sink     *alert.BufferSink
	pipeline *Pipeline
	ts       *time.TestSource
}

func newFixture(t *testing.T, configure func(*Config)) *fixture {
	ts := &time.TestSource{}
	ts.Set(1000, 0)

	f := &fixture{
		queue:   event.NewQueue(64),
		mutes:   mute.New(mute.Config{Source: ts}),
		ignores: ignore.New(ignore.Config{}),
		recent:  recent.New(recent.Config{Source: ts}),
		limiter: limiter.New(limiter.Config{
			Cooldown: 10 * gotime.Minute,
			Source:   ts,
		}),
		sink: alert.NewBufferSink(100),
		ts:   ts,
	}

	config := Config{
		Queue:   f.queue,
		Mutes:   f.mutes,
		Ignores: f.ignores,
		Recent:  f.recent,
		Limiter: f.limiter,
		Sink:    f.sink,
	}

	if configure != nil {
		configure(&config)
	}

	p, err := New(config)
	require.NoError(t, err)

	f.pipeline = p

	t.Cleanup(func() {
		f.limiter.Close()
	})

	return f
}

// run feeds the events through a started pipeline and waits for the drain.
func (f *fixture) run(events ...event.Event) {
	f.pipeline.Start()

	for _, e := range events {
		f.queue.Publish(e)
	}

	f.queue.Close()
	f.pipeline.Stop()
}

func logError(workload, message string) event.Event {
	return event.Event{
		Workload: workload,
		Kind:     event.KindLogError,
		Severity: event.SeverityCritical,
		Message:  message,
	}
}

func TestDispatch(t *testing.T) {
	f := newFixture(t, nil)

	f.run(logError("radarr", "it broke"))

	alerts := f.sink.List()
	require.Equal(t, 1, len(alerts))
	assert.Equal(t, "radarr", alerts[0].Workload)
	assert.Equal(t, "it broke", alerts[0].Message)
	assert.NotEmpty(t, alerts[0].ID)
}

func TestMutedWorkload(t *testing.T) {
	f := newFixture(t, nil)

	f.mutes.Add("radarr", gotime.Hour)

	f.run(
		logError("radarr", "it broke"),
		logError("sonarr", "something else"),
	)

	alerts := f.sink.List()
	require.Equal(t, 1, len(alerts))
	assert.Equal(t, "sonarr", alerts[0].Workload)
}

func TestGlobalMute(t *testing.T) {
	f := newFixture(t, nil)

	f.mutes.Add(mute.GlobalKey, gotime.Hour)

	f.run(
		logError("radarr", "it broke"),
		logError("sonarr", "something else"),
	)

	assert.Empty(t, f.sink.List())
}

// A muted log error produces no alert and burns no rate-limit budget, but
// stays visible in the recent view for interactive ignore selection.
func TestMutedErrorStaysRecent(t *testing.T) {
	f := newFixture(t, nil)

	f.mutes.Add("radarr", 60*gotime.Minute)

	f.ts.Advance(30 * gotime.Minute)
	f.run(logError("radarr", "it broke"))

	assert.Empty(t, f.sink.List())
	assert.Equal(t, []string{"it broke"}, f.recent.Unique("radarr"))

	d := f.limiter.Peek("radarr", "it broke")
	assert.True(t, d.Allowed, "a muted event must not count against the cooldown")
}

func TestIgnoredError(t *testing.T) {
	f := newFixture(t, nil)

	f.ignores.Add("radarr", "rate limit exceeded")

	f.run(logError("radarr", "Rate Limit Exceeded on API"))

	assert.Empty(t, f.sink.List())
	assert.Equal(t, []string{"Rate Limit Exceeded on API"}, f.recent.Unique("radarr"))

	d := f.limiter.Peek("radarr", "Rate Limit Exceeded on API")
	assert.True(t, d.Allowed, "an ignored event must not count against the cooldown")
}

func TestCooldown(t *testing.T) {
	f := newFixture(t, nil)

	f.run(
		logError("radarr", "it broke"),
		logError("radarr", "It Broke"),
		logError("radarr", "another thing"),
	)

	alerts := f.sink.List()
	require.Equal(t, 2, len(alerts))
	assert.Equal(t, "it broke", alerts[0].Message)
	assert.Equal(t, "another thing", alerts[1].Message)
}

func TestOnlyLogErrorsRecorded(t *testing.T) {
	f := newFixture(t, nil)

	f.run(event.Event{
		Workload: "radarr",
		Kind:     event.KindLifecycleDie,
		Severity: event.SeverityCritical,
		Message:  "Workload exited with code 137",
	})

	require.Equal(t, 1, len(f.sink.List()))
	assert.Empty(t, f.recent.Unique("radarr"))
}

type fakeAnalyzer struct {
	text string
	err  error
}

func (a *fakeAnalyzer) Analyze(ctx context.Context, text string) (string, error) {
	return a.text, a.err
}

func TestAnalysisEnrichment(t *testing.T) {
	f := newFixture(t, func(config *Config) {
		config.Analyzer = &fakeAnalyzer{text: "the disk is full"}
	})

	f.run(logError("radarr", "no space left on device"))

	require.Eventually(t, func() bool {
		alerts := f.sink.List()
		return len(alerts) == 1 && alerts[0].Analysis == "the disk is full"
	}, 2*gotime.Second, 10*gotime.Millisecond)
}

func TestAnalysisFailureStillAlerts(t *testing.T) {
	f := newFixture(t, func(config *Config) {
		config.Analyzer = &fakeAnalyzer{err: context.DeadlineExceeded}
	})

	f.run(logError("radarr", "it broke"))

	alerts := f.sink.List()
	require.Equal(t, 1, len(alerts))
	assert.Empty(t, alerts[0].Analysis)
}

func TestRequiredStages(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)
}
