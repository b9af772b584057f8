package preview

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Event is one preview lifecycle notification pushed to attached
// websocket clients.
type Event struct {
	Event     string `json:"event"`
	AgentID   string `json:"agentId"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
	PlanID    string `json:"planId,omitempty"`
	Timestamp int64  `json:"timestamp"`
	Seq       int64  `json:"seq"`
}

// Broadcaster fans preview events out to websocket clients so a UI
// can observe a running session.
type Broadcaster struct {
	logger   zerolog.Logger
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	seq     uint64
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster(logger *zerolog.Logger) *Broadcaster {
	l := log.Logger
	if logger != nil {
		l = *logger
	}

	return &Broadcaster{
		logger: l.With().Str("component", "preview-broadcaster").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients: make(map[*websocket.Conn]bool),
	}
}

// ServeHTTP upgrades the request and registers the client until its
// connection drops.
func (b *Broadcaster) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn().Err(err).Msg("Websocket upgrade failed")
		return
	}

	b.mu.Lock()
	b.clients[conn] = true
	count := len(b.clients)
	b.mu.Unlock()

	b.logger.Debug().Int("clients", count).Msg("Preview client attached")

	// Drain reads to detect disconnect; events flow one way.
	go func() {
		defer b.remove(conn)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()
}

func (b *Broadcaster) remove(conn *websocket.Conn) {
	b.mu.Lock()
	delete(b.clients, conn)
	b.mu.Unlock()
	conn.Close()
}

// Broadcast sends the event to every attached client. Slow or dead
// clients are dropped rather than blocking the session.
func (b *Broadcaster) Broadcast(event Event) {
	if event.Timestamp == 0 {
		event.Timestamp = time.Now().UnixMilli()
	}
	event.Seq = int64(atomic.AddUint64(&b.seq, 1))

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error().Err(err).Str("event", event.Event).Msg("Failed to marshal event")
		return
	}

	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.mu.Unlock()

	for _, conn := range conns {
		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			b.logger.Warn().Err(err).Str("event", event.Event).Msg("Dropping preview client")
			b.remove(conn)
		}
	}
}

// ClientCount reports attached clients.
func (b *Broadcaster) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects all clients.
func (b *Broadcaster) Close() {
	b.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(b.clients))
	for conn := range b.clients {
		conns = append(conns, conn)
	}
	b.clients = make(map[*websocket.Conn]bool)
	b.mu.Unlock()

	for _, conn := range conns {
		conn.Close()
	}
}
