package handlers

import (
	"net/http"
	"time"

	"github.com/greenraise/storefront/internal/platform/httpx"
)

// HealthHandlers responds to liveness probes.
type HealthHandlers struct {
	started time.Time
	now     func() time.Time
}

// NewHealthHandlers constructs the health handler set.
func NewHealthHandlers() *HealthHandlers {
	return &HealthHandlers{started: time.Now(), now: time.Now}
}

// Healthz reports a simple status payload for monitoring.
func (h *HealthHandlers) Healthz(w http.ResponseWriter, r *http.Request) {
	now := h.now()
	httpx.WriteJSON(r.Context(), w, http.StatusOK, map[string]any{
		"status":    "ok",
		"uptime":    now.Sub(h.started).String(),
		"timestamp": now.UTC().Format(time.RFC3339),
	})
}
