package gateway

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// EventMessage is one status event pushed to connected browsers.
type EventMessage struct {
	Event string                 `json:"event"`
	Data  map[string]interface{} `json:"data,omitempty"`
}

// client pairs a connection with its write lock. The websocket package allows
// only one concurrent writer per connection, and broadcasts arrive from both
// the tick emitter and request handlers.
type client struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (c *client) write(msg EventMessage) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.conn.WriteJSON(msg)
}

// Broadcaster fans service events out to every connected websocket client.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[*websocket.Conn]*client
	logger  zerolog.Logger
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger zerolog.Logger) *Broadcaster {
	return &Broadcaster{
		clients: make(map[*websocket.Conn]*client),
		logger:  logger,
	}
}

// Add registers a client connection.
func (b *Broadcaster) Add(conn *websocket.Conn) {
	b.mu.Lock()
	b.clients[conn] = &client{conn: conn}
	b.mu.Unlock()
}

// Remove drops a client connection.
func (b *Broadcaster) Remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
}

// Count returns the number of connected clients.
func (b *Broadcaster) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

// Broadcast sends an event to all clients, dropping any whose write fails.
// Safe to call from multiple goroutines: each connection serializes its own
// writes.
func (b *Broadcaster) Broadcast(event string, data map[string]interface{}) {
	msg := EventMessage{Event: event, Data: data}

	b.mu.RLock()
	clients := make([]*client, 0, len(b.clients))
	for _, c := range b.clients {
		clients = append(clients, c)
	}
	b.mu.RUnlock()

	for _, c := range clients {
		if err := c.write(msg); err != nil {
			b.logger.Debug().Err(err).Msg("Dropping unreachable websocket client")
			c.conn.Close()
			b.Remove(c.conn)
		}
	}
}

// CloseAll closes every client connection.
func (b *Broadcaster) CloseAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for conn := range b.clients {
		conn.Close()
	}
	b.clients = make(map[*websocket.Conn]*client)
}
