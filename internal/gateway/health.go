package gateway

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/Davincible/claude-proxy/internal/state"
)

type healthHandler struct {
	startedAt time.Time
	active    *state.ActiveSelection
}

// healthResponse exposes {pid, startedAt} so a launcher can cross-verify
// it against the on-disk PID lock.
type healthResponse struct {
	Status    string    `json:"status"`
	PID       int       `json:"pid"`
	StartedAt time.Time `json:"startedAt"`
}

func (h *healthHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/_status" {
		h.serveStatus(w, r)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(healthResponse{
		Status:    "ok",
		PID:       os.Getpid(),
		StartedAt: h.startedAt,
	})
}

type statusResponse struct {
	healthResponse
	ActiveProvider string `json:"activeProvider,omitempty"`
	ActiveModel    string `json:"activeModel,omitempty"`
}

func (h *healthHandler) serveStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		healthResponse: healthResponse{Status: "ok", PID: os.Getpid(), StartedAt: h.startedAt},
	}

	if sel, ok := h.active.Get(); ok {
		resp.ActiveProvider = string(sel.Provider)
		resp.ActiveModel = sel.Model
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
