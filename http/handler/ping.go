package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"
)

// The PingHandler type provides a handler for a ping request
type PingHandler struct{}

// NewPing returns a new Ping type.
func NewPing() *PingHandler {
	return &PingHandler{}
}

// Ping returns pong
func (p *PingHandler) Ping(c echo.Context) error {
	return c.String(http.StatusOK, "pong")
}
