// Package config implements the operator-authored configuration for the app.
package config

import (
	"fmt"
	"os"

	"github.com/fleetwatch/core/duration"
	"github.com/fleetwatch/core/encoding/json"
	"github.com/fleetwatch/core/glob"
)

// Data is the actual configuration data for the app. All durations are in
// seconds unless the field name says otherwise.
type Data struct {
	Version int64  `json:"version"`
	Address string `json:"address"`

	Log struct {
		Level    string `json:"level" enums:"debug,info,warn,error"`
		Format   string `json:"format" enums:"console,json"`
		MaxLines int    `json:"max_lines"`
	} `json:"log"`

	DB struct {
		Dir string `json:"dir"`
	} `json:"db"`

	Queue struct {
		Size int `json:"size"`
	} `json:"queue"`

	Workloads struct {
		// Include are glob patterns over workload names. Without any
		// pattern nothing is monitored.
		Include []string `json:"include"`
	} `json:"workloads"`

	Health struct {
		IntervalSeconds   int     `json:"interval_seconds"`
		CPUThreshold      float64 `json:"cpu_threshold"`      // percent
		MemoryThreshold   float64 `json:"memory_threshold"`   // percent
		SustainForSeconds int     `json:"sustain_for_seconds"` // 0 fires on first observation
	} `json:"health"`

	Logs struct {
		ErrorPatterns   []string `json:"error_patterns"`
		WarningPatterns []string `json:"warning_patterns"`
		MaxLineLength   int      `json:"max_line_length"`
	} `json:"logs"`

	Limiter struct {
		CooldownSeconds int `json:"cooldown_seconds"`
		MaxAlerts       int `json:"max_alerts"` // 0 disables the rate ceiling
		WindowSeconds   int `json:"window_seconds"`
	} `json:"limiter"`

	Recent struct {
		MaxAge   string `json:"max_age"` // e.g. "24h"
		MaxCount int    `json:"max_count"`
	} `json:"recent"`

	// Ignore are the config-tier ignore rules per workload.
	Ignore map[string][]string `json:"ignore"`

	Alert struct {
		// SummaryNotice attaches suppressed-event counts to the first
		// alert after a saturated rate window drained.
		SummaryNotice bool `json:"summary_notice"`
	} `json:"alert"`

	Analysis struct {
		// URL of the analysis service. Empty disables analysis.
		URL            string `json:"url"`
		TimeoutSeconds int    `json:"timeout_seconds"`
	} `json:"analysis"`
}

// New returns a configuration with all defaults applied.
func New() *Data {
	d := &Data{}

	d.Version = 1
	d.Address = ":8080"

	d.Log.Level = "info"
	d.Log.Format = "console"
	d.Log.MaxLines = 1000

	d.DB.Dir = "./data"

	d.Queue.Size = 1024

	d.Health.IntervalSeconds = 30
	d.Health.CPUThreshold = 90
	d.Health.MemoryThreshold = 90
	d.Health.SustainForSeconds = 120

	d.Logs.ErrorPatterns = []string{"error", "fatal", "panic", "exception", "traceback"}
	d.Logs.WarningPatterns = []string{"warn", "deprecated"}
	d.Logs.MaxLineLength = 500

	d.Limiter.CooldownSeconds = 600
	d.Limiter.MaxAlerts = 10
	d.Limiter.WindowSeconds = 3600

	d.Recent.MaxAge = "24h"
	d.Recent.MaxCount = 50

	d.Ignore = map[string][]string{}

	d.Analysis.TimeoutSeconds = 30

	return d
}

// Load reads the configuration from the given path, on top of the defaults.
// A missing file is not an error, a malformed one is. The configuration is
// operator-authored, so unlike the managers' state files it has to fail
// loudly.
func Load(path string) (*Data, error) {
	d := New()

	if len(path) == 0 {
		return d, nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return d, nil
		}

		return nil, fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(content, d); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, json.FormatError(content, err))
	}

	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("validating %s: %w", path, err)
	}

	return d, nil
}

func (d *Data) Validate() error {
	switch d.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %s", d.Log.Level)
	}

	switch d.Log.Format {
	case "console", "json":
	default:
		return fmt.Errorf("unknown log format %s", d.Log.Format)
	}

	for _, pattern := range d.Workloads.Include {
		if _, err := glob.Compile(pattern); err != nil {
			return fmt.Errorf("invalid workload pattern %s: %w", pattern, err)
		}
	}

	if _, err := duration.Parse(d.Recent.MaxAge); err != nil {
		return fmt.Errorf("invalid recent max age %s: %w", d.Recent.MaxAge, err)
	}

	if d.Limiter.MaxAlerts > 0 && d.Limiter.WindowSeconds <= 0 {
		return fmt.Errorf("a rate ceiling needs a window")
	}

	if d.Queue.Size <= 0 {
		return fmt.Errorf("the queue size must be positive")
	}

	return nil
}
