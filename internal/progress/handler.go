package progress

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades dashboard connections onto a Hub.
type Handler struct {
	hub *Hub
}

// NewHandler builds a Handler serving hub.
func NewHandler(hub *Hub) *Handler {
	return &Handler{hub: hub}
}

// ServeHTTP upgrades the request; an optional "runtime" query parameter
// narrows delivery to one run (cmd/server mounts this at /ws/progress).
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	runtime := r.URL.Query().Get("runtime")

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.hub.log.Error("failed to upgrade progress connection", "error", err)
		return
	}

	client := NewClient(uuid.New().String(), conn, h.hub, runtime)
	h.hub.Register(client)

	welcome, _ := json.Marshal(map[string]any{
		"type":      "control",
		"message":   "connected",
		"client_id": client.ID,
		"runtime":   runtime,
		"timestamp": time.Now().Format(time.RFC3339),
	})
	select {
	case client.send <- welcome:
	default:
	}

	go client.WritePump()
	go client.ReadPump()
}

// Status reports the hub's current connection count, for a health/ready
// endpoint.
func (h *Handler) Status() map[string]any {
	return map[string]any{"connected_clients": h.hub.ClientCount()}
}
