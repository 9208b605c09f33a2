package ws

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/feedrelay/feedrelay/internal/event"
	"github.com/feedrelay/feedrelay/internal/hub"
)

const (
	// writeTimeout is the deadline for a single write to a client.
	writeTimeout = 10 * time.Second

	// pongWait is how long to wait for a pong response before treating
	// the connection as dead.
	pongWait = 60 * time.Second

	// pingPeriod controls how often the server sends WebSocket ping
	// frames. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Allow all origins — callers should apply CORS at the reverse-proxy level.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Envelope is the JSON frame sent to clients for every relayed event.
type Envelope struct {
	Event      string         `json:"event"`
	ID         string         `json:"id,omitempty"`
	Collection string         `json:"collection,omitempty"`
	Data       map[string]any `json:"data,omitempty"`
	Removed    []string       `json:"removed,omitempty"`
}

// helloFrame is the first frame on every connection.
type helloFrame struct {
	Event      string `json:"event"`
	Session    string `json:"session"`
	RelayState string `json:"relay_state"`
}

// Handler serves the WebSocket subscriber endpoint on top of a hub.
type Handler struct {
	hub *hub.Hub

	// relayState reports the controller's current state name for the
	// hello frame.
	relayState func() string
}

// New creates a Handler. relayState may be nil, in which case the hello
// frame reports "unknown".
func New(h *hub.Hub, relayState func() string) *Handler {
	if relayState == nil {
		relayState = func() string { return "unknown" }
	}
	return &Handler{hub: h, relayState: relayState}
}

// ServeHTTP upgrades the connection, registers a session and streams
// events until the client disconnects or the hub closes the session.
// Returns 503 when the relay no longer accepts subscribers.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s, err := h.hub.Subscribe()
	if errors.Is(err, hub.ErrNotAccepting) {
		http.Error(w, "relay not accepting subscribers", http.StatusServiceUnavailable)
		return
	}
	if err != nil {
		http.Error(w, "subscribe failed", http.StatusInternalServerError)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// upgrader has already written the error response.
		h.hub.Unsubscribe(s)
		return
	}
	defer h.hub.Unsubscribe(s)

	slog.Debug("ws: client connected", "session", s.ID())

	hello := helloFrame{Event: "hello", Session: s.ID().String(), RelayState: h.relayState()}
	conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
	if err := conn.WriteJSON(hello); err != nil {
		conn.Close()
		return
	}

	// Handshake complete — start receiving events.
	s.Activate()

	go writePump(conn, s)
	readPump(conn) // blocks until the connection closes

	slog.Debug("ws: client disconnected", "session", s.ID())
}

// writePump drains the session queue and forwards frames to the
// connection, interleaved with periodic pings. Runs in its own goroutine
// per client; exits when the session queue is closed or a write fails.
func writePump(conn *websocket.Conn, s *hub.Session) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case ev, ok := <-s.Events():
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if !ok {
				// Session closed (unsubscribe or relay shutdown).
				conn.WriteMessage(websocket.CloseMessage, []byte{}) //nolint:errcheck
				return
			}
			data, err := json.Marshal(envelope(ev))
			if err != nil {
				slog.Warn("ws: marshal event", "session", s.ID(), "err", err)
				continue
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			// A draining session receives no further events; once its
			// backlog is flushed, drop the connection rather than hold it
			// open forever.
			if s.State() == hub.StateDraining && s.QueueDepth() == 0 {
				slog.Warn("ws: dropping slow client after drain",
					"session", s.ID(),
					"dropped", s.Dropped(),
				)
				conn.WriteMessage(websocket.CloseMessage, //nolint:errcheck
					websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too slow"))
				return
			}

		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeTimeout)) //nolint:errcheck
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readPump reads frames to process control messages (pong, close) and
// detect disconnects. Blocks until the connection closes.
func readPump(conn *websocket.Conn) {
	defer conn.Close()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait)) //nolint:errcheck
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
}

func envelope(ev event.Event) Envelope {
	return Envelope{
		Event:      string(ev.Kind),
		ID:         ev.ID,
		Collection: ev.Collection,
		Data:       ev.Payload,
		Removed:    ev.Removed,
	}
}
