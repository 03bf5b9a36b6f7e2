package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindNames(t *testing.T) {
	assert.Equal(t, "lifecycle-die", KindLifecycleDie.String())
	assert.Equal(t, "lifecycle-start", KindLifecycleStart.String())
	assert.Equal(t, "lifecycle-oom", KindLifecycleOOM.String())
	assert.Equal(t, "health-status", KindHealthStatus.String())
	assert.Equal(t, "resource-threshold", KindResourceThreshold.String())
	assert.Equal(t, "log-error", KindLogError.String())
}

func TestFingerprint(t *testing.T) {
	a := Event{Workload: "radarr", Message: "  Rate Limit Exceeded "}
	b := Event{Workload: "radarr", Message: "rate limit exceeded"}
	c := Event{Workload: "sonarr", Message: "rate limit exceeded"}

	assert.Equal(t, a.Fingerprint(), b.Fingerprint())
	assert.NotEqual(t, a.Fingerprint(), c.Fingerprint())
}

func TestTruncatedMessage(t *testing.T) {
	e := Event{Message: "hello world"}

	assert.Equal(t, "hello world", e.TruncatedMessage(11))
	assert.Equal(t, "hello…", e.TruncatedMessage(5))
}

func TestQueuePublish(t *testing.T) {
	q := NewQueue(4)

	err := q.Publish(Event{Workload: "radarr"})
	require.NoError(t, err)

	e := <-q.Events()
	assert.Equal(t, "radarr", e.Workload)
}

func TestQueueOverflow(t *testing.T) {
	q := NewQueue(2)

	require.NoError(t, q.Publish(Event{}))
	require.NoError(t, q.Publish(Event{}))

	err := q.Publish(Event{})
	assert.Error(t, err)
	assert.Equal(t, uint64(1), q.Dropped())
}

func TestQueueClose(t *testing.T) {
	q := NewQueue(4)

	require.NoError(t, q.Publish(Event{Workload: "a"}))
	require.NoError(t, q.Publish(Event{Workload: "b"}))

	q.Close()

	assert.Error(t, q.Publish(Event{Workload: "c"}))

	// Queued events are still drainable after close.
	names := []string{}
	for e := range q.Events() {
		names = append(names, e.Workload)
	}

	assert.Equal(t, []string{"a", "b"}, names)
}

func TestQueueConcurrentProducers(t *testing.T) {
	q := NewQueue(1024)

	wg := sync.WaitGroup{}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				q.Publish(Event{Workload: "w", Timestamp: time.Now()})
			}
		}()
	}

	wg.Wait()
	q.Close()

	n := 0
	for range q.Events() {
		n++
	}

	assert.Equal(t, 800, n)
}
