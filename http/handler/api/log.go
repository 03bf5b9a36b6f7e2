package api

import (
	"net/http"
	"strings"

	"github.com/fleetwatch/core/http/handler/util"
	"github.com/fleetwatch/core/log"

	"github.com/labstack/echo/v4"
)

// The LogHandler type provides handler functions for reading the application
// log buffer.
type LogHandler struct {
	buffer log.BufferWriter
}

// NewLog returns a new log handler reading from the given buffer.
func NewLog(buffer log.BufferWriter) *LogHandler {
	h := &LogHandler{
		buffer: buffer,
	}

	if h.buffer == nil {
		h.buffer = log.NewBufferWriter(log.Lsilent, 1)
	}

	return h
}

// Log returns the last log lines, formatted for the console or as raw
// fields with the format query parameter.
func (h *LogHandler) Log(c echo.Context) error {
	format := util.DefaultQuery(c, "format", "console")

	events := h.buffer.Events()

	if format == "raw" {
		lines := make([]map[string]interface{}, len(events))

		for i, e := range events {
			e.Data["ts"] = e.Time
			e.Data["component"] = e.Component

			if len(e.Caller) != 0 {
				e.Data["caller"] = e.Caller
			}

			if len(e.Message) != 0 {
				e.Data["message"] = e.Message
			}

			lines[i] = e.Data
		}

		return c.JSON(http.StatusOK, lines)
	}

	formatter := log.NewConsoleFormatter(false)

	lines := make([]string, len(events))

	for i, e := range events {
		lines[i] = strings.TrimSpace(formatter.String(e))
	}

	return c.JSON(http.StatusOK, lines)
}
