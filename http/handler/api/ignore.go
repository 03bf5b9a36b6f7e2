package api

import (
	"net/http"

	"github.com/fleetwatch/core/http/api"
	"github.com/fleetwatch/core/http/handler/util"
	"github.com/fleetwatch/core/ignore"
	"github.com/fleetwatch/core/recent"

	"github.com/labstack/echo/v4"
)

// The IgnoreHandler type provides functions for managing ignore rules and
// browsing the recent errors they are picked from.
type IgnoreHandler struct {
	ignores *ignore.Manager
	recent  *recent.Buffer
}

func NewIgnore(ignores *ignore.Manager, recent *recent.Buffer) *IgnoreHandler {
	return &IgnoreHandler{
		ignores: ignores,
		recent:  recent,
	}
}

// Add adds a runtime ignore rule, either verbatim or by position into the
// workload's recent unique error list.
func (h *IgnoreHandler) Add(c echo.Context) error {
	name := util.PathParam(c, "name")

	request := api.IgnoreRequest{}

	if err := util.ShouldBindJSON(c, &request); err != nil {
		return api.Err(http.StatusBadRequest, "", "invalid JSON: %s", err.Error())
	}

	pattern := request.Pattern

	if len(pattern) == 0 {
		if request.Position <= 0 {
			return api.Err(http.StatusBadRequest, "", "either a pattern or a position is required")
		}

		resolved, ok := h.recent.At(name, request.Position)
		if !ok {
			return api.Err(http.StatusNotFound, "", "no recent error at position %d for %s", request.Position, name)
		}

		pattern = resolved
	}

	added, err := h.ignores.Add(name, pattern)
	if err != nil {
		return api.Err(http.StatusInternalServerError, "", "storing the ignore rule failed: %s", err.Error())
	}

	return c.JSON(http.StatusOK, api.IgnoreResponse{
		Pattern: pattern,
		Changed: added,
	})
}

// Remove removes a runtime ignore rule. Config-tier rules cannot be removed
// at runtime.
func (h *IgnoreHandler) Remove(c echo.Context) error {
	name := util.PathParam(c, "name")

	request := api.IgnoreRequest{}

	if err := util.ShouldBindJSON(c, &request); err != nil {
		return api.Err(http.StatusBadRequest, "", "invalid JSON: %s", err.Error())
	}

	if len(request.Pattern) == 0 {
		return api.Err(http.StatusBadRequest, "", "a pattern is required")
	}

	removed, err := h.ignores.Remove(name, request.Pattern)
	if err != nil {
		return api.Err(http.StatusInternalServerError, "", "storing the ignore removal failed: %s", err.Error())
	}

	return c.JSON(http.StatusOK, api.IgnoreResponse{
		Pattern: request.Pattern,
		Changed: removed,
	})
}

// List returns all ignore rules for a workload, config tier first.
func (h *IgnoreHandler) List(c echo.Context) error {
	name := util.PathParam(c, "name")

	rules := h.ignores.All(name)

	response := make([]api.IgnoreRule, 0, len(rules))

	for _, rule := range rules {
		response = append(response, api.IgnoreRule{
			Pattern: rule.Pattern,
			Source:  string(rule.Source),
		})
	}

	return c.JSON(http.StatusOK, response)
}

// Errors returns the recent unique errors of a workload, numbered for
// interactive ignore selection.
func (h *IgnoreHandler) Errors(c echo.Context) error {
	name := util.PathParam(c, "name")

	messages := h.recent.Unique(name)

	response := make([]api.RecentError, 0, len(messages))

	for i, message := range messages {
		response = append(response, api.RecentError{
			Position: i + 1,
			Message:  message,
		})
	}

	return c.JSON(http.StatusOK, response)
}
