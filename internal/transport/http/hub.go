package http

import (
	"context"
	"sync"
	"time"

	"trivia-live-service/internal/app"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// Hub tracks open websocket connections and fans coordinator events out to
// them. Each connection gets a buffered send channel drained by a dedicated
// writer goroutine, so no two goroutines ever write the same socket.
type Hub struct {
	mu        sync.RWMutex
	conns     map[string]*client
	startedAt time.Time
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan app.Event
	once sync.Once
}

func NewHub() *Hub {
	return &Hub{
		conns:     make(map[string]*client),
		startedAt: time.Now(),
	}
}

// Run drains the coordinator's outbound queue until ctx is cancelled.
func (h *Hub) Run(ctx context.Context, events <-chan app.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			h.deliver(e)
		}
	}
}

func (h *Hub) deliver(e app.Event) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if e.TargetConn != "" {
		if c, ok := h.conns[e.TargetConn]; ok {
			c.enqueue(e)
		}
		return
	}
	for _, c := range h.conns {
		c.enqueue(e)
	}
}

// enqueue hands an event to the writer without ever blocking the hub; a
// client too slow to keep up loses the oldest queued event, and the next
// session-state broadcast makes it whole again.
func (c *client) enqueue(e app.Event) {
	select {
	case c.send <- e:
	default:
		select {
		case <-c.send:
		default:
		}
		select {
		case c.send <- e:
		default:
			log.Warn().Str("conn_id", c.id).Str("event", e.Type).Msg("dropping event for slow client")
		}
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.send)
	})
}

func (h *Hub) register(conn *websocket.Conn) *client {
	c := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan app.Event, 32),
	}
	h.mu.Lock()
	h.conns[c.id] = c
	h.mu.Unlock()

	go func() {
		for e := range c.send {
			if err := conn.WriteJSON(e); err != nil {
				log.Debug().Err(err).Str("conn_id", c.id).Msg("websocket write failed")
				return
			}
		}
	}()
	return c
}

func (h *Hub) unregister(c *client) {
	h.mu.Lock()
	delete(h.conns, c.id)
	h.mu.Unlock()
	c.close()
}

// Connections reports the number of open transport connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

// Uptime is how long the hub has been serving.
func (h *Hub) Uptime() time.Duration {
	return time.Since(h.startedAt)
}

// CloseAll closes every open connection, used during graceful shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, c := range h.conns {
		c.close()
		_ = c.conn.Close()
		delete(h.conns, id)
	}
}
