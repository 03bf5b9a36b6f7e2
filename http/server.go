// Package http implements the command API the chat transport (or an
// operator's curl) talks to. Mutes and ignores are managed here; the alert
// history and the recent error views are read here.
package http

import (
	"net/http"
	"strings"

	"github.com/fleetwatch/core/history"
	"github.com/fleetwatch/core/http/errorhandler"
	"github.com/fleetwatch/core/http/handler"
	api "github.com/fleetwatch/core/http/handler/api"
	"github.com/fleetwatch/core/ignore"
	"github.com/fleetwatch/core/log"
	"github.com/fleetwatch/core/mute"
	"github.com/fleetwatch/core/recent"

	mwlog "github.com/fleetwatch/core/http/middleware/log"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type Config struct {
	Logger  log.Logger
	Mutes   *mute.Manager
	Ignores *ignore.Manager
	Recent  *recent.Buffer

	// LogBuffer is optional. Without it the log route is not mounted.
	LogBuffer log.BufferWriter

	// History is optional. Without it the alerts route is not mounted.
	History *history.Store

	// Prometheus is optional. Without it the metrics route is not
	// mounted.
	Prometheus http.Handler
}

type Server interface {
	ServeHTTP(w http.ResponseWriter, r *http.Request)
}

type server struct {
	logger log.Logger

	handler struct {
		ping       *handler.PingHandler
		prometheus *handler.PrometheusHandler
	}

	v1handler struct {
		mute   *api.MuteHandler
		ignore *api.IgnoreHandler
		alerts *api.AlertsHandler
		log    *api.LogHandler
	}

	middleware struct {
		log echo.MiddlewareFunc
	}

	router *echo.Echo
}

func NewServer(config Config) (Server, error) {
	s := &server{
		logger: config.Logger,
	}

	if s.logger == nil {
		s.logger = log.New("HTTP")
	}

	s.handler.ping = handler.NewPing()

	if config.Prometheus != nil {
		s.handler.prometheus = handler.NewPrometheus(config.Prometheus)
	}

	s.v1handler.mute = api.NewMute(config.Mutes)
	s.v1handler.ignore = api.NewIgnore(config.Ignores, config.Recent)

	if config.History != nil {
		s.v1handler.alerts = api.NewAlerts(config.History)
	}

	if config.LogBuffer != nil {
		s.v1handler.log = api.NewLog(config.LogBuffer)
	}

	s.middleware.log = mwlog.NewWithConfig(mwlog.Config{
		Logger: s.logger,
	})

	s.router = echo.New()
	s.router.HTTPErrorHandler = errorhandler.HTTPErrorHandler
	s.router.Use(s.middleware.log)
	s.router.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			rows := strings.Split(string(stack), "\n")
			s.logger.Error().WithField("stack", rows).Log("recovered from a panic")
			return nil
		},
	}))

	s.router.HideBanner = true
	s.router.HidePort = true

	s.setRoutes()

	return s, nil
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *server) setRoutes() {
	s.router.GET("/ping", s.handler.ping.Ping)

	if s.handler.prometheus != nil {
		s.router.GET("/metrics", s.handler.prometheus.Metrics)
	}

	v1 := s.router.Group("/api/v1")

	v1.POST("/workload/:name/mute", s.v1handler.mute.Add)
	v1.DELETE("/workload/:name/mute", s.v1handler.mute.Remove)
	v1.GET("/mutes", s.v1handler.mute.Active)

	v1.POST("/workload/:name/ignore", s.v1handler.ignore.Add)
	v1.DELETE("/workload/:name/ignore", s.v1handler.ignore.Remove)
	v1.GET("/workload/:name/ignores", s.v1handler.ignore.List)
	v1.GET("/workload/:name/errors", s.v1handler.ignore.Errors)

	if s.v1handler.alerts != nil {
		v1.GET("/alerts", s.v1handler.alerts.List)
	}

	if s.v1handler.log != nil {
		v1.GET("/log", s.v1handler.log.Log)
	}
}
