package api

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/feedrelay/feedrelay/internal/hub"
	"github.com/feedrelay/feedrelay/internal/relay"
)

// RelayStatus is the controller-side view the API reads. Satisfied by
// *relay.Controller.
type RelayStatus interface {
	State() relay.State
	Retries() uint64
}

// HealthResponse is the payload for GET /api/v1/health.
type HealthResponse struct {
	Status     string `json:"status"`
	RelayState string `json:"relay_state"`
}

// SessionResponse is one subscriber session in GET /api/v1/status.
type SessionResponse struct {
	ID         string `json:"id"`
	State      string `json:"state"`
	QueueDepth int    `json:"queue_depth"`
	Dropped    uint64 `json:"dropped"`
}

// StatusResponse is the payload for GET /api/v1/status.
type StatusResponse struct {
	RelayState      string            `json:"relay_state"`
	ReaderRetries   uint64            `json:"reader_retries"`
	EventsPublished uint64            `json:"events_published"`
	EventsDropped   uint64            `json:"events_dropped"`
	SessionCount    int               `json:"session_count"`
	Sessions        []SessionResponse `json:"sessions"`
}

// Handler is the HTTP handler for all /api/v1/* endpoints.
type Handler struct {
	relay RelayStatus
	hub   *hub.Hub
	mux   *http.ServeMux
}

// New creates a Handler wired to the given relay and hub and registers
// all routes.
func New(rs RelayStatus, h *hub.Hub) http.Handler {
	hd := &Handler{relay: rs, hub: h, mux: http.NewServeMux()}

	hd.mux.HandleFunc("/api/v1/health", hd.health)
	hd.mux.HandleFunc("/api/v1/status", hd.status)

	return hd
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// --- route handlers ---------------------------------------------------------

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	state := h.relay.State()
	resp := HealthResponse{Status: "ok", RelayState: state.String()}
	if state == relay.StateFailed {
		resp.Status = "failed"
	}
	jsonResp(w, http.StatusOK, resp)
}

func (h *Handler) status(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		jsonErr(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	stats := h.hub.Stats()
	sessions := make([]SessionResponse, 0, len(stats))
	for _, st := range stats {
		sessions = append(sessions, SessionResponse{
			ID:         st.ID.String(),
			State:      st.StateName,
			QueueDepth: st.QueueDepth,
			Dropped:    st.Dropped,
		})
	}

	jsonResp(w, http.StatusOK, StatusResponse{
		RelayState:      h.relay.State().String(),
		ReaderRetries:   h.relay.Retries(),
		EventsPublished: h.hub.Published(),
		EventsDropped:   h.hub.TotalDropped(),
		SessionCount:    len(sessions),
		Sessions:        sessions,
	})
}

// --- response helpers -------------------------------------------------------

func jsonResp(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("api: encode response", "err", err)
	}
}

func jsonErr(w http.ResponseWriter, code int, msg string) {
	jsonResp(w, code, map[string]string{"error": msg})
}
