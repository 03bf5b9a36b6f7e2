package api

import (
	"net/http"
	"strconv"

	"github.com/fleetwatch/core/history"
	"github.com/fleetwatch/core/http/api"
	"github.com/fleetwatch/core/http/handler/util"

	"github.com/labstack/echo/v4"
)

// The AlertsHandler type provides read access to the alert history.
type AlertsHandler struct {
	history *history.Store
}

func NewAlerts(history *history.Store) *AlertsHandler {
	return &AlertsHandler{
		history: history,
	}
}

// List returns the newest alerts, optionally restricted to one workload.
func (h *AlertsHandler) List(c echo.Context) error {
	workload := util.DefaultQuery(c, "workload", "")

	limit, err := strconv.Atoi(util.DefaultQuery(c, "limit", "10"))
	if err != nil || limit <= 0 {
		return api.Err(http.StatusBadRequest, "", "the limit must be a positive number")
	}

	alerts, err := h.history.Latest(workload, limit)
	if err != nil {
		return api.Err(http.StatusInternalServerError, "", "reading the history failed: %s", err.Error())
	}

	return c.JSON(http.StatusOK, alerts)
}
