// Package handlers serves the local diagnostics API of e32-hal. It only
// reads shell statistics and never touches the radio link.
package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"e32-hal/internal/shell"
)

// ServiceName is reported by the health check.
const ServiceName = "e32-hal"

// StatsSource is the part of shell.Stats the API reads.
type StatsSource interface {
	Snapshot() shell.StatsSnapshot
	Count(name string) (int, bool)
}

// HALHandler handles all diagnostics endpoints
type HALHandler struct {
	stats StatsSource
}

// NewHALHandler creates a new HAL handler
func NewHALHandler(stats StatsSource) *HALHandler {
	return &HALHandler{stats: stats}
}

// Response helpers
func jsonResponse(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func errorResponse(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]interface{}{
		"error": message,
		"code":  status,
	})
}

// HealthCheck reports that the service is up.
func (h *HALHandler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"service": ServiceName,
	})
}

// ============================================================================
// Shell statistics
// ============================================================================

// GetShellStats returns the command counters of the radio shell.
func (h *HALHandler) GetShellStats(w http.ResponseWriter, r *http.Request) {
	jsonResponse(w, http.StatusOK, h.stats.Snapshot())
}

// CommandCount is the counter of a single shell command.
type CommandCount struct {
	Command string `json:"command"`
	Count   int    `json:"count"`
}

// GetCommandStats returns how often one shell command ran.
func (h *HALHandler) GetCommandStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "command")
	if name == "" {
		errorResponse(w, http.StatusBadRequest, "command name required")
		return
	}
	n, ok := h.stats.Count(name)
	if !ok {
		errorResponse(w, http.StatusNotFound, "unknown command: "+name)
		return
	}
	jsonResponse(w, http.StatusOK, CommandCount{Command: name, Count: n})
}
