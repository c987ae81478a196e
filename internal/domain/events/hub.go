package events

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// Event is one realtime message pushed to subscribers
type Event struct {
	Type      string      `json:"type"`
	Data      interface{} `json:"data"`
	Timestamp time.Time   `json:"timestamp"`
}

// Connection wraps one websocket subscriber
type Connection struct {
	conn *websocket.Conn
	send chan *Event
}

// Hub broadcasts gallery audit events to connected moderator clients.
// Delivery is best-effort: a slow client is dropped rather than blocking
// the publisher.
type Hub struct {
	mu      sync.RWMutex
	clients map[*Connection]struct{}

	register   chan *Connection
	unregister chan *Connection
	broadcast  chan *Event
	done       chan struct{}
}

// NewHub creates an event hub
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Connection]struct{}),
		register:   make(chan *Connection),
		unregister: make(chan *Connection),
		broadcast:  make(chan *Event, 64),
		done:       make(chan struct{}),
	}
}

// Run processes hub events until Shutdown. Call in its own goroutine.
func (h *Hub) Run() {
	for {
		select {
		case conn := <-h.register:
			h.mu.Lock()
			h.clients[conn] = struct{}{}
			h.mu.Unlock()

		case conn := <-h.unregister:
			h.removeClient(conn)

		case event := <-h.broadcast:
			h.mu.RLock()
			for conn := range h.clients {
				select {
				case conn.send <- event:
				default:
					// Slow consumer; drop it.
					go h.Unregister(conn)
				}
			}
			h.mu.RUnlock()

		case <-h.done:
			h.mu.Lock()
			for conn := range h.clients {
				close(conn.send)
				conn.conn.Close()
			}
			h.clients = make(map[*Connection]struct{})
			h.mu.Unlock()
			return
		}
	}
}

// Publish queues an event for broadcast. Never blocks the caller.
func (h *Hub) Publish(eventType string, data interface{}) {
	event := &Event{Type: eventType, Data: data, Timestamp: time.Now()}
	select {
	case h.broadcast <- event:
	default:
		log.Warn().Str("type", eventType).Msg("Event hub backlog full, dropping event")
	}
}

// Register adds a subscriber and starts its writer
func (h *Hub) Register(conn *websocket.Conn) *Connection {
	c := &Connection{
		conn: conn,
		send: make(chan *Event, sendBufferSize),
	}
	h.register <- c
	go c.writeLoop()
	return c
}

// Unregister removes a subscriber
func (h *Hub) Unregister(conn *Connection) {
	h.unregister <- conn
}

// Shutdown closes all client connections
func (h *Hub) Shutdown() {
	close(h.done)
}

// ClientCount returns the number of connected subscribers
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

func (h *Hub) removeClient(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[conn]; ok {
		delete(h.clients, conn)
		close(conn.send)
		conn.conn.Close()
	}
}

func (c *Connection) writeLoop() {
	for event := range c.send {
		c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteJSON(event); err != nil {
			log.Debug().Err(err).Msg("Websocket write failed")
			return
		}
	}
}
