// Package psutil is a thin wrapper around gopsutil that provides the process
// snapshots the local runtime samples workloads from.
package psutil

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/process"
)

// ProcessStat is one observed process.
type ProcessStat struct {
	PID           int32
	Name          string
	CPUPercent    float64 // percent 0-100, independent of the number of cores
	MemoryPercent float64 // percent 0-100
	CreateTime    time.Time
}

type Util interface {
	// CPUCounts returns the number of cores, either logical or physical.
	CPUCounts(logical bool) (float64, error)

	// Snapshot returns the currently running processes. Processes that
	// vanish or deny access while iterating are skipped.
	Snapshot() ([]ProcessStat, error)
}

var DefaultUtil Util = &util{}

type util struct{}

func New() Util {
	return &util{}
}

func (u *util) CPUCounts(logical bool) (float64, error) {
	counts, err := cpu.Counts(logical)
	if err != nil {
		return 0, err
	}

	return float64(counts), nil
}

func (u *util) Snapshot() ([]ProcessStat, error) {
	procs, err := process.Processes()
	if err != nil {
		return nil, err
	}

	ncpu, err := u.CPUCounts(true)
	if err != nil || ncpu <= 0 {
		ncpu = 1
	}

	stats := make([]ProcessStat, 0, len(procs))

	for _, p := range procs {
		name, err := p.Name()
		if err != nil {
			continue
		}

		stat := ProcessStat{
			PID:  p.Pid,
			Name: name,
		}

		if pcpu, err := p.CPUPercent(); err == nil {
			// gopsutil reports 0-100*ncpu
			stat.CPUPercent = pcpu / ncpu
		}

		if pmem, err := p.MemoryPercent(); err == nil {
			stat.MemoryPercent = float64(pmem)
		}

		if created, err := p.CreateTime(); err == nil {
			stat.CreateTime = time.UnixMilli(created)
		}

		stats = append(stats, stat)
	}

	return stats, nil
}
