// Package control implements the server-push half of the control
// surface: a gorilla/websocket hub that fans out typed status,
// heartbeat, log, attribute-sample and trigger-fired messages to every
// connected UI client, grounded on the hub-and-typed-message pattern
// of vincent99-velocipi/server/hub.go (client{conn, send}, register/
// unregister under a mutex, broadcastAll marshalling then
// non-blocking per-client sends).
package control

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Outbound message types, each carrying a fixed Type field exactly
// like hub.go's PingMsg/AirReadingMsg convention.

type StatusMsg struct {
	Type      string         `json:"type"` // always "status"
	Worker    string         `json:"worker"`
	State     string         `json:"state"`
	ProtocolID string        `json:"protocolId,omitempty"`
	PhaseID   int            `json:"phaseId,omitempty"`
	Recording bool           `json:"recording"`
	Extra     map[string]any `json:"extra,omitempty"`
}

type HeartbeatMsg struct {
	Type string `json:"type"` // always "heartbeat"
	Time string `json:"time"`
}

type LogMsg struct {
	Type    string `json:"type"` // always "log"
	Level   string `json:"level"`
	Worker  string `json:"worker"`
	Message string `json:"message"`
}

type AttributeSampleMsg struct {
	Type   string    `json:"type"` // always "attributeSample"
	Name   string    `json:"name"`
	Index  int64     `json:"index"`
	Time   time.Time `json:"time"`
	Values []float64 `json:"values,omitempty"`
}

type TriggerFiredMsg struct {
	Type    string  `json:"type"` // always "triggerFired"
	Trigger string  `json:"trigger"`
	Index   int64   `json:"index"`
	Value   float64 `json:"value"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub owns the set of connected UI clients and fans typed messages out
// to all of them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]struct{}
}

// NewHub returns an empty Hub.
func NewHub() *Hub {
	return &Hub{clients: make(map[*client]struct{})}
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

// ClientCount reports how many UI clients are currently connected.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Broadcast marshals msg and fans it out to every connected client,
// dropping it for any client whose send buffer is full rather than
// blocking the caller.
func (h *Hub) Broadcast(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("control: marshal error: %v", err)
		return
	}
	h.mu.RLock()
	snapshot := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		snapshot = append(snapshot, c)
	}
	h.mu.RUnlock()

	for _, c := range snapshot {
		select {
		case c.send <- data:
		default:
		}
	}
}

// ServeWS upgrades r to a websocket connection and registers a new
// client, spawning its write pump. The connection is inbound-silent:
// this control surface is push-only (status/log/sample/trigger
// fan-out), matching spec.md §4.8's "UI subscribes, never drives
// control logic over this channel" framing.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("control: upgrade error: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan []byte, 64)}
	h.register(c)
	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
	c.conn.WriteMessage(websocket.CloseMessage, []byte{})
}

// readPump reads and discards inbound traffic until a read fails (no
// read deadline is set), then unregisters the client.
func (h *Hub) readPump(c *client) {
	defer h.unregister(c)
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
