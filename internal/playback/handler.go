package playback

import (
	"encoding/json"
	"log/slog"
	"net/http"
)

// Handler exposes the engine's page-facing controls over HTTP.
type Handler struct {
	eng *Engine
	log *slog.Logger
}

// NewHandler returns a Handler for the given engine.
func NewHandler(eng *Engine, log *slog.Logger) *Handler {
	return &Handler{eng: eng, log: log}
}

// Status handles GET /playback/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	snap := h.eng.Status()
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(snap); err != nil {
		h.log.Error("encode status failed", slog.String("error", err.Error()))
	}
}

// Start handles POST /playback/start: clears a prior user stop so
// reconciliation resumes on the next backend report (or immediately when
// a manifest is already known).
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.eng.Start()
	h.log.Info("playback start requested")
	w.WriteHeader(http.StatusAccepted)
}

// Stop handles POST /playback/stop: explicit user stop, tears down the
// session and suspends attach attempts.
func (h *Handler) Stop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	h.eng.Stop()
	h.log.Info("playback stopped by user")
	w.WriteHeader(http.StatusOK)
}
