package api

import (
	"fmt"
	"net/http"

	"github.com/bornholm/uitester/internal/device"
)

// handleDeviceList handles GET /device/list
func (h *Handler) handleDeviceList(w http.ResponseWriter, r *http.Request) {
	statuses, err := h.devices.List(r.Context())
	if err != nil {
		h.handleInternalError(w, r, err, "could not list devices")
		return
	}

	if len(statuses) == 0 {
		writeJSONResponse(w, http.StatusBadRequest, "no device detected", []device.Status{})
		return
	}

	writeSuccess(w, fmt.Sprintf("%d device(s) detected", len(statuses)), statuses)
}

// handleDeviceStatus handles GET /device/{deviceID}/status
func (h *Handler) handleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	deviceID := r.PathValue("deviceID")

	status, exists := h.devices.Status(deviceID)
	if !exists {
		writeError(w, http.StatusNotFound, fmt.Sprintf("device '%s' not found", deviceID))
		return
	}

	writeSuccess(w, "ok", status)
}
