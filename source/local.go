package source

import (
	"context"
	"sort"
	"sync"
	gotime "time"

	"github.com/fleetwatch/core/glob"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/psutil"
)

type LocalRuntimeConfig struct {
	// Patterns select which process names count as monitored workloads.
	Patterns []string

	// ScanInterval is how often the synthesized lifecycle feed compares
	// process snapshots.
	ScanInterval gotime.Duration

	PSUtil psutil.Util
	Logger log.Logger
}

// LocalRuntime implements the Runtime boundary on top of the host's process
// table. It lets the pipeline run without a container engine: workloads are
// plain processes selected by name pattern. There is no log stream and no
// health probe in this mode.
type LocalRuntime struct {
	patterns     []glob.Glob
	scanInterval gotime.Duration
	ps           psutil.Util
	logger       log.Logger

	lock     sync.Mutex
	restarts map[string]*restartState
}

type restartState struct {
	createTime gotime.Time
	count      int
}

func NewLocalRuntime(config LocalRuntimeConfig) (*LocalRuntime, error) {
	r := &LocalRuntime{
		scanInterval: config.ScanInterval,
		ps:           config.PSUtil,
		logger:       config.Logger,
		restarts:     map[string]*restartState{},
	}

	for _, pattern := range config.Patterns {
		g, err := glob.Compile(pattern)
		if err != nil {
			return nil, err
		}

		r.patterns = append(r.patterns, g)
	}

	if r.scanInterval <= 0 {
		r.scanInterval = 10 * gotime.Second
	}

	if r.ps == nil {
		r.ps = psutil.DefaultUtil
	}

	if r.logger == nil {
		r.logger = log.New("")
	}

	return r, nil
}

func (r *LocalRuntime) matches(name string) bool {
	for _, g := range r.patterns {
		if g.Match(name) {
			return true
		}
	}

	return false
}

func (r *LocalRuntime) List(ctx context.Context) ([]string, error) {
	stats, err := r.ps.Snapshot()
	if err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	names := []string{}

	for _, stat := range stats {
		if !r.matches(stat.Name) {
			continue
		}

		if _, ok := seen[stat.Name]; ok {
			continue
		}

		seen[stat.Name] = struct{}{}
		names = append(names, stat.Name)
	}

	sort.Strings(names)

	return names, nil
}

func (r *LocalRuntime) Sample(ctx context.Context, workload string) (Sample, error) {
	stats, err := r.ps.Snapshot()
	if err != nil {
		return Sample{}, err
	}

	sample := Sample{
		Workload: workload,
	}

	var newest gotime.Time

	for _, stat := range stats {
		if stat.Name != workload {
			continue
		}

		sample.Running = true
		sample.CPUPercent += stat.CPUPercent
		sample.MemoryPercent += stat.MemoryPercent

		if stat.CreateTime.After(newest) {
			newest = stat.CreateTime
		}
	}

	r.lock.Lock()
	defer r.lock.Unlock()

	s, ok := r.restarts[workload]
	if !ok {
		s = &restartState{createTime: newest}
		r.restarts[workload] = s
	}

	// A newer create time than remembered means the process came back.
	if sample.Running && newest.After(s.createTime) {
		if !s.createTime.IsZero() {
			s.count++
		}
		s.createTime = newest
	}

	sample.RestartCount = s.count

	return sample, nil
}

// Subscribe synthesizes start/die events by diffing process snapshots on the
// scan interval.
func (r *LocalRuntime) Subscribe(ctx context.Context) (<-chan LifecycleEvent, error) {
	feed := make(chan LifecycleEvent, 64)

	go func() {
		defer close(feed)

		ticker := gotime.NewTicker(r.scanInterval)
		defer ticker.Stop()

		previous, err := r.List(ctx)
		if err != nil {
			r.logger.Warn().WithError(err).Log("Snapshotting processes failed")
		}

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			current, err := r.List(ctx)
			if err != nil {
				r.logger.Warn().WithError(err).Log("Snapshotting processes failed")
				continue
			}

			now := gotime.Now()

			for _, e := range diffNames(previous, current, now) {
				select {
				case feed <- e:
				default:
				}
			}

			previous = current
		}
	}()

	return feed, nil
}

func (r *LocalRuntime) Logs(ctx context.Context, workload string) (<-chan string, error) {
	return nil, ErrNotSupported
}

// diffNames turns the difference between two sorted name lists into start
// and die events.
func diffNames(previous, current []string, now gotime.Time) []LifecycleEvent {
	events := []LifecycleEvent{}

	prev := map[string]struct{}{}
	for _, name := range previous {
		prev[name] = struct{}{}
	}

	cur := map[string]struct{}{}
	for _, name := range current {
		cur[name] = struct{}{}
	}

	for _, name := range current {
		if _, ok := prev[name]; !ok {
			events = append(events, LifecycleEvent{
				Workload:  name,
				Action:    ActionStart,
				Timestamp: now,
			})
		}
	}

	for _, name := range previous {
		if _, ok := cur[name]; !ok {
			events = append(events, LifecycleEvent{
				Workload:  name,
				Action:    ActionDie,
				ExitCode:  -1,
				Timestamp: now,
			})
		}
	}

	return events
}
