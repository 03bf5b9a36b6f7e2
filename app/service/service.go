// Package service assembles the pipeline: config, stores, managers, queue,
// adapters, dispatch loop and the command API, wired by constructors.
package service

import (
	"context"
	"fmt"
	"io"
	gohttp "net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fleetwatch/core/alert"
	"github.com/fleetwatch/core/analysis"
	"github.com/fleetwatch/core/app"
	"github.com/fleetwatch/core/config"
	"github.com/fleetwatch/core/duration"
	"github.com/fleetwatch/core/event"
	"github.com/fleetwatch/core/history"
	"github.com/fleetwatch/core/http"
	"github.com/fleetwatch/core/ignore"
	"github.com/fleetwatch/core/limiter"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/mute"
	"github.com/fleetwatch/core/pipeline"
	"github.com/fleetwatch/core/recent"
	"github.com/fleetwatch/core/source"
	"github.com/fleetwatch/core/store/jsonfile"
)

// The Service interface is the implementation for the whole app.
type Service interface {
	// Start starts the service. This is blocking until the app has been
	// ended with Stop(). In that case a nil error is returned.
	Start() error

	// Stop stops the service and releases all state.
	Stop()
}

type service struct {
	queue   *event.Queue
	mutes   *mute.Manager
	ignores *ignore.Manager
	recent  *recent.Buffer
	limiter *limiter.Limiter
	history *history.Store

	runtime   *source.LocalRuntime
	lifecycle *source.Lifecycle
	health    *source.Health
	logstream *source.LogStream

	pipeline *pipeline.Pipeline
	server   *gohttp.Server

	errorChan chan error

	adapterCancel context.CancelFunc
	adapterDone   sync.WaitGroup

	log struct {
		writer io.Writer
		buffer log.BufferWriter
		logger log.Logger
	}

	config *config.Data

	lock  sync.Mutex
	state string
}

// New returns a new instance of the Service interface. The configuration is
// read from configpath, logs go to logwriter.
func New(configpath string, logwriter io.Writer) (Service, error) {
	s := &service{
		state: "idle",
	}

	s.log.writer = logwriter

	if s.log.writer == nil {
		s.log.writer = io.Discard
	}

	s.errorChan = make(chan error, 1)

	data, err := config.Load(configpath)
	if err != nil {
		return nil, err
	}

	s.config = data

	if err := s.assemble(); err != nil {
		return nil, err
	}

	return s, nil
}

func (s *service) assemble() error {
	cfg := s.config

	level := log.FromString(cfg.Log.Level)

	var writer log.Writer

	if cfg.Log.Format == "json" {
		writer = log.NewJSONWriter(s.log.writer, level)
	} else {
		writer = log.NewConsoleWriter(s.log.writer, level, true)
	}

	s.log.buffer = log.NewBufferWriter(level, cfg.Log.MaxLines)
	s.log.logger = log.New("core").WithOutput(log.NewMultiWriter(
		writer,
		s.log.buffer,
	))

	logfields := log.Fields{
		"application": app.Name,
		"version":     app.Version.String(),
		"arch":        app.Arch,
		"compiler":    app.Compiler,
	}

	if len(app.Commit) != 0 && len(app.Branch) != 0 {
		logfields["commit"] = app.Commit
		logfields["branch"] = app.Branch
	}

	if len(app.Build) != 0 {
		logfields["build"] = app.Build
	}

	s.log.logger.Info().WithFields(logfields).Log("")

	if err := os.MkdirAll(cfg.DB.Dir, 0700); err != nil {
		return fmt.Errorf("creating the db directory: %w", err)
	}

	muteStore, err := jsonfile.New(jsonfile.Config{
		Filepath: filepath.Join(cfg.DB.Dir, "mutes.json"),
		Version:  1,
		Logger:   s.log.logger.WithComponent("store"),
	})
	if err != nil {
		return err
	}

	ignoreStore, err := jsonfile.New(jsonfile.Config{
		Filepath: filepath.Join(cfg.DB.Dir, "ignores.json"),
		Version:  1,
		Logger:   s.log.logger.WithComponent("store"),
	})
	if err != nil {
		return err
	}

	s.mutes = mute.New(mute.Config{
		Store:  muteStore,
		Logger: s.log.logger.WithComponent("mute"),
	})

	s.ignores = ignore.New(ignore.Config{
		Rules:  cfg.Ignore,
		Store:  ignoreStore,
		Logger: s.log.logger.WithComponent("ignore"),
	})

	maxAge, err := duration.Parse(cfg.Recent.MaxAge)
	if err != nil {
		return err
	}

	s.recent = recent.New(recent.Config{
		MaxAge:   maxAge,
		MaxCount: cfg.Recent.MaxCount,
	})

	s.limiter = limiter.New(limiter.Config{
		Cooldown:  time.Duration(cfg.Limiter.CooldownSeconds) * time.Second,
		MaxAlerts: cfg.Limiter.MaxAlerts,
		Window:    time.Duration(cfg.Limiter.WindowSeconds) * time.Second,
		Logger:    s.log.logger.WithComponent("limiter"),
	})

	s.history, err = history.New(history.Config{
		Filepath:         filepath.Join(cfg.DB.Dir, "history.db"),
		MaxMessageLength: cfg.Logs.MaxLineLength,
		Logger:           s.log.logger.WithComponent("history"),
	})
	if err != nil {
		return err
	}

	s.queue = event.NewQueue(cfg.Queue.Size)

	metrics := pipeline.NewMetrics()
	metrics.ObserveQueue(s.queue)

	var analyzer analysis.Analyzer

	if len(cfg.Analysis.URL) != 0 {
		analyzer, err = analysis.NewClient(analysis.ClientConfig{
			URL:    cfg.Analysis.URL,
			Logger: s.log.logger.WithComponent("analysis"),
		})
		if err != nil {
			return err
		}

		analyzer = analysis.WithTimeout(analyzer, time.Duration(cfg.Analysis.TimeoutSeconds)*time.Second)
	}

	s.pipeline, err = pipeline.New(pipeline.Config{
		Queue:         s.queue,
		Mutes:         s.mutes,
		Ignores:       s.ignores,
		Recent:        s.recent,
		Limiter:       s.limiter,
		Sink:          alert.NewLogSink(s.log.logger.WithComponent("alert")),
		History:       s.history,
		Analyzer:      analyzer,
		SummaryNotice: cfg.Alert.SummaryNotice,
		Metrics:       metrics,
		Logger:        s.log.logger.WithComponent("pipeline"),
	})
	if err != nil {
		return err
	}

	s.runtime, err = source.NewLocalRuntime(source.LocalRuntimeConfig{
		Patterns: cfg.Workloads.Include,
		Logger:   s.log.logger.WithComponent("runtime"),
	})
	if err != nil {
		return err
	}

	s.lifecycle = source.NewLifecycle(source.LifecycleConfig{
		Runtime: s.runtime,
		Queue:   s.queue,
		Logger:  s.log.logger.WithComponent("lifecycle"),
	})

	s.health = source.NewHealth(source.HealthConfig{
		Runtime:         s.runtime,
		Queue:           s.queue,
		Interval:        time.Duration(cfg.Health.IntervalSeconds) * time.Second,
		CPUThreshold:    cfg.Health.CPUThreshold,
		MemoryThreshold: cfg.Health.MemoryThreshold,
		SustainFor:      time.Duration(cfg.Health.SustainForSeconds) * time.Second,
		Logger:          s.log.logger.WithComponent("health"),
	})

	s.logstream = source.NewLogStream(source.LogStreamConfig{
		Runtime:         s.runtime,
		Queue:           s.queue,
		ErrorPatterns:   cfg.Logs.ErrorPatterns,
		WarningPatterns: cfg.Logs.WarningPatterns,
		MaxLineLength:   cfg.Logs.MaxLineLength,
		Logger:          s.log.logger.WithComponent("logstream"),
	})

	server, err := http.NewServer(http.Config{
		Logger:     s.log.logger.WithComponent("HTTP"),
		Mutes:      s.mutes,
		Ignores:    s.ignores,
		Recent:     s.recent,
		History:    s.history,
		LogBuffer:  s.log.buffer,
		Prometheus: metrics.HTTPHandler(),
	})
	if err != nil {
		return err
	}

	s.server = &gohttp.Server{
		Addr:    cfg.Address,
		Handler: server,
	}

	return nil
}

func (s *service) Start() error {
	s.lock.Lock()

	if s.state == "running" {
		s.lock.Unlock()
		return fmt.Errorf("already running")
	}

	s.state = "running"

	logger := s.log.logger

	s.pipeline.Start()

	ctx, cancel := context.WithCancel(context.Background())
	s.adapterCancel = cancel

	for _, run := range []func(context.Context){
		s.lifecycle.Run,
		s.health.Run,
		s.logstream.Run,
	} {
		s.adapterDone.Add(1)

		go func(run func(context.Context)) {
			defer s.adapterDone.Done()
			run(ctx)
		}(run)
	}

	go func() {
		logger.Info().WithField("address", s.server.Addr).Log("Command API listening")

		if err := s.server.ListenAndServe(); err != nil && err != gohttp.ErrServerClosed {
			s.errorChan <- err
		}
	}()

	logger.Info().Log("Pipeline started")

	s.lock.Unlock()

	return <-s.errorChan
}

// Stop shuts everything down in dependency order: no new events (adapters),
// drain what is queued (pipeline), then close the stores.
func (s *service) Stop() {
	s.lock.Lock()
	defer s.lock.Unlock()

	if s.state != "running" {
		return
	}

	s.state = "idle"

	logger := s.log.logger.WithField("action", "shutdown")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		logger.Warn().WithError(err).Log("Shutting down the command API failed")
	}

	s.adapterCancel()
	s.adapterDone.Wait()

	s.queue.Close()
	s.pipeline.Stop()

	s.limiter.Close()

	if err := s.history.Close(); err != nil {
		logger.Warn().WithError(err).Log("Closing the history failed")
	}

	logger.Info().Log("Complete")

	s.errorChan <- nil
}
