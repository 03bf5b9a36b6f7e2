package api

import (
	"net/http"

	"github.com/fleetwatch/core/duration"
	"github.com/fleetwatch/core/http/api"
	"github.com/fleetwatch/core/http/handler/util"
	"github.com/fleetwatch/core/mute"

	"github.com/labstack/echo/v4"
)

// The MuteHandler type provides functions for managing mute windows.
type MuteHandler struct {
	mutes *mute.Manager
}

func NewMute(mutes *mute.Manager) *MuteHandler {
	return &MuteHandler{
		mutes: mutes,
	}
}

// Add sets a mute window for a workload, or globally with the reserved key.
// An existing window for the same key is replaced.
func (h *MuteHandler) Add(c echo.Context) error {
	name := util.PathParam(c, "name")

	request := api.MuteRequest{}

	if err := util.ShouldBindJSON(c, &request); err != nil {
		return api.Err(http.StatusBadRequest, "", "invalid JSON: %s", err.Error())
	}

	d, err := duration.Parse(request.Duration)
	if err != nil {
		return api.Err(http.StatusBadRequest, "", "invalid duration %q, expecting e.g. \"30m\" or \"2h\"", request.Duration)
	}

	expiry, err := h.mutes.Add(name, d)
	if err != nil {
		return api.Err(http.StatusInternalServerError, "", "storing the mute failed: %s", err.Error())
	}

	return c.JSON(http.StatusOK, api.Mute{
		Key:    name,
		Expiry: expiry,
	})
}

// Remove lifts the mute for a workload. Removing an expired or absent mute
// reports removed=false.
func (h *MuteHandler) Remove(c echo.Context) error {
	name := util.PathParam(c, "name")

	removed, err := h.mutes.Remove(name)
	if err != nil {
		return api.Err(http.StatusInternalServerError, "", "storing the mute removal failed: %s", err.Error())
	}

	return c.JSON(http.StatusOK, api.MuteRemoved{
		Removed: removed,
	})
}

// Active lists the active mutes, soonest expiry first.
func (h *MuteHandler) Active(c echo.Context) error {
	entries := h.mutes.Active()

	mutes := make([]api.Mute, 0, len(entries))

	for _, entry := range entries {
		mutes = append(mutes, api.Mute{
			Key:    entry.Key,
			Expiry: entry.Expiry,
		})
	}

	return c.JSON(http.StatusOK, mutes)
}
