package progress

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Hub manages connected dashboard clients and fans out broadcast
// messages to them. One Hub serves every run; clients narrow what
// they see by subscribing to a runtime or leaving it blank for
// everything.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan []byte
	register   chan *Client
	unregister chan *Client
	log        *slog.Logger
	mu         sync.RWMutex
}

// Client is one upgraded WebSocket connection.
type Client struct {
	ID      string
	conn    *websocket.Conn
	send    chan []byte
	hub     *Hub
	runtime string // non-empty restricts delivery to this runtime
}

// Message is the envelope written to a WebSocket connection.
type Message struct {
	Type      string    `json:"type"`
	Event     *Payload  `json:"event,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Payload is the wire shape of an Event.
type Payload struct {
	EventType  string    `json:"event_type"`
	Runtime    string    `json:"runtime"`
	ServiceID  string    `json:"service_id,omitempty"`
	Device     *string   `json:"device,omitempty"`
	Status     string    `json:"status,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
	DurationMs *int64    `json:"duration_ms,omitempty"`
	RetryCount *int      `json:"retry_count,omitempty"`
	Error      *string   `json:"error,omitempty"`
	Message    *string   `json:"message,omitempty"`
}

// NewHub builds a Hub and starts its run loop in the background.
func NewHub(log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	h := &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        log,
	}
	go h.run()
	return h
}

func (h *Hub) run() {
	for {
		select {
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.log.Info("progress client connected", "client_id", c.ID, "runtime", c.runtime)

		case c := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[c]; ok {
				delete(h.clients, c)
				close(c.send)
			}
			h.mu.Unlock()
			h.log.Info("progress client disconnected", "client_id", c.ID)

		case msg := <-h.broadcast:
			h.mu.RLock()
			for c := range h.clients {
				select {
				case c.send <- msg:
				default:
					close(c.send)
					delete(h.clients, c)
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Register enrolls a client with the hub.
func (h *Hub) Register(c *Client) { h.register <- c }

// Unregister removes a client from the hub.
func (h *Hub) Unregister(c *Client) { h.unregister <- c }

// ClientCount reports the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// BroadcastToRuntime delivers message to clients with no runtime
// filter or whose filter matches runtime.
func (h *Hub) BroadcastToRuntime(runtime string, message []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if c.runtime != "" && c.runtime != runtime {
			continue
		}
		select {
		case c.send <- message:
		default:
			h.log.Warn("progress client send buffer full, dropping message", "client_id", c.ID)
		}
	}
}

// NewClient wraps an upgraded connection. runtime may be empty to
// receive every event the hub broadcasts.
func NewClient(id string, conn *websocket.Conn, hub *Hub, runtime string) *Client {
	return &Client{ID: id, conn: conn, send: make(chan []byte, 256), hub: hub, runtime: runtime}
}

// ReadPump drains the connection so control frames (pong, close) are
// processed; dashboard clients are not expected to send data frames.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Warn("progress client read error", "client_id", c.ID, "error", err)
			}
			return
		}
	}
}

// WritePump writes queued broadcasts to the connection and keeps it
// alive with periodic pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(54 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, nil)
				return
			}
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)
			for n := len(c.send); n > 0; n-- {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// HubObserver adapts a Hub to the Observer interface so it can be
// attached to a Dispatcher alongside any other subscriber (logging,
// metrics).
type HubObserver struct {
	hub    *Hub
	filter EventFilter
}

// NewHubObserver builds an Observer that broadcasts to hub.
func NewHubObserver(hub *Hub, filter EventFilter) *HubObserver {
	return &HubObserver{hub: hub, filter: filter}
}

func (o *HubObserver) Name() string        { return "websocket" }
func (o *HubObserver) Filter() EventFilter { return o.filter }

func (o *HubObserver) OnEvent(ctx context.Context, event Event) error {
	payload := &Payload{
		EventType:  string(event.Type),
		Runtime:    event.Runtime,
		ServiceID:  event.ServiceID,
		Device:     event.Device,
		Status:     event.Status,
		Timestamp:  event.Timestamp,
		DurationMs: event.DurationMs,
		RetryCount: event.RetryCount,
		Message:    event.Message,
	}
	if event.Error != nil {
		errStr := event.Error.Error()
		payload.Error = &errStr
	}
	data, err := json.Marshal(Message{Type: "event", Event: payload, Timestamp: time.Now()})
	if err != nil {
		return fmt.Errorf("progress: marshal event: %w", err)
	}
	o.hub.BroadcastToRuntime(event.Runtime, data)
	return nil
}
