// Package alerts implements the operator alert channel described throughout
// spec §7: "persistent submission failure escalates to operator alert",
// "TimelockViolated ... move to HUNG, alert", "InsufficientFunds (report to
// operator...)". It is grounded in the teacher's internal/rpc/websocket.go
// hub/client pattern (register/unregister/broadcast channels, per-client
// send buffer, ping/pong keepalive), narrowed from a general peer/node event
// feed to a small fixed set of operator-alert event types.
package alerts

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/ntvswap/pkg/logging"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// EventType enumerates operator-facing alert kinds. These map directly onto
// the error-kind taxonomy and state transitions spec §7 calls "operator
// alert" moments.
type EventType string

const (
	EventSwapHung           EventType = "swap_hung"
	EventChainUnreachable   EventType = "chain_unreachable"
	EventTimelockViolated   EventType = "timelock_violated"
	EventInsufficientFunds  EventType = "insufficient_funds"
	EventRegistryAbandoned  EventType = "registry_abandoned"
	EventPersistenceFailure EventType = "persistence_failure"
)

// Event is a single operator alert broadcast to all connected clients. ID lets
// an operator correlate an alert with the log records emitted around it.
type Event struct {
	ID        string      `json:"id"`
	Type      EventType   `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp int64       `json:"timestamp"`
}

// Client is a single connected operator websocket session.
type Client struct {
	conn *websocket.Conn
	send chan []byte
	hub  *Hub
}

// Hub fans out alert events to every connected operator client.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	log        *logging.Logger
	mu         sync.RWMutex
}

// NewHub creates an alert hub. Call Run in its own goroutine to start it.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		log:        logging.GetDefault().Component("alerts"),
	}
}

// Run drives the hub's event loop until ctx-like termination is requested by
// the caller closing off new sends; in practice this runs for the daemon's
// lifetime.
func (h *Hub) Run() {
	for {
		select {
		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			h.log.Debug("operator alert client connected", "clients", len(h.clients))

		case client := <-h.unregister:
			h.mu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.mu.Unlock()

		case event := <-h.broadcast:
			data, err := json.Marshal(event)
			if err != nil {
				h.log.Error("failed to marshal alert event", "error", err)
				continue
			}
			h.mu.RLock()
			for client := range h.clients {
				select {
				case client.send <- data:
				default:
					h.mu.RUnlock()
					h.mu.Lock()
					delete(h.clients, client)
					close(client.send)
					h.mu.Unlock()
					h.mu.RLock()
				}
			}
			h.mu.RUnlock()
		}
	}
}

// Emit broadcasts an alert. It never blocks: if the broadcast buffer is full
// the event is dropped and logged, since alerting must never back-pressure
// swap processing (spec §5's single cooperative event loop must not stall on
// a full websocket buffer).
func (h *Hub) Emit(eventType EventType, data interface{}) {
	event := &Event{ID: uuid.NewString(), Type: eventType, Data: data, Timestamp: time.Now().Unix()}
	select {
	case h.broadcast <- event:
	default:
		h.log.Warn("alert broadcast buffer full, dropping event", "type", eventType, "id", event.ID)
	}
}

// ClientCount returns the number of connected operator sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades an HTTP request to a websocket and registers the resulting
// client with the hub. Intended to be mounted at a single operator-only
// endpoint by the daemon's minimal HTTP mux.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Error("alert websocket upgrade failed", "error", err)
		return
	}
	client := &Client{conn: conn, send: make(chan []byte, 64), hub: h}
	h.register <- client

	go client.writePump()
	go client.readPump()
}

func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()
	c.conn.SetReadLimit(4096)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})
	for {
		// Operator clients are read-only observers; any inbound message just
		// resets the read deadline (acts as a client-driven keepalive).
		if _, _, err := c.conn.ReadMessage(); err != nil {
			break
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
