package uisink

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 * 1024,
	// The viewer is a local desktop shell served from another origin.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type healthResponse struct {
	Status    string `json:"status"`
	Viewers   int    `json:"viewers"`
	Timestamp string `json:"timestamp"`
}

// NewRouter exposes the hub:
//
//	GET /health    liveness of the relay
//	GET /api/logs  the full session log as JSON
//	GET /ws        the live stream; send {"type":"ready"} to start it
func NewRouter(h *Hub) *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/ws", h.handleStream).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/logs", h.handleLogs).Methods(http.MethodGet)

	r.Use(logging)
	return r
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Warn("error encoding JSON response", "error", err)
	}
}

func (h *Hub) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{
		Status:    "healthy",
		Viewers:   h.Viewers(),
		Timestamp: time.Now().Format(time.RFC3339),
	})
}

func (h *Hub) handleLogs(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, Message{Type: "logs", Entries: h.logs.Snapshot()})
}

func (h *Hub) handleStream(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written an HTTP error.
		slog.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := h.register()
	slog.Info("log viewer connected", "remote", r.RemoteAddr)

	go h.writePump(conn, c)
	h.readPump(conn, c)

	h.unregister(c)
	slog.Info("log viewer disconnected", "remote", r.RemoteAddr)
}

// readPump handles control frames from the viewer until the connection
// fails.
func (h *Hub) readPump(conn *websocket.Conn, c *client) {
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m Message
		if err := conn.ReadJSON(&m); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Debug("log viewer read error", "error", err)
			}
			return
		}
		switch m.Type {
		case "ready":
			h.markReady(c)
		default:
			slog.Debug("ignoring viewer message", "type", m.Type)
		}
	}
}

// writePump is the only writer on conn. It exits when the hub closes the
// client's queue.
func (h *Hub) writePump(conn *websocket.Conn, c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case m, ok := <-c.send:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteJSON(m); err != nil {
				slog.Debug("log viewer write error", "error", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		slog.Debug("http request", "method", r.Method, "path", r.URL.Path, "duration", time.Since(start))
	})
}
