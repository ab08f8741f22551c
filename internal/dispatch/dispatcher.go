package dispatch

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"loadsignal.dev/collector/internal/collecterr"
	"loadsignal.dev/collector/internal/db"
)

const (
	// DefaultMaxConnections caps the live push registry.
	DefaultMaxConnections = 100
	// connectionBufferSize bounds undelivered frames per connection;
	// overflow drops the oldest frame.
	connectionBufferSize = 32

	// HeartbeatInterval and PongDeadline drive the ping/pong liveness
	// protocol owned by the transport layer.
	HeartbeatInterval = 30 * time.Second
	PongDeadline      = 90 * time.Second
)

// ErrCapacity is returned when the registry is full; the transport closes
// the socket with close code 1013.
var ErrCapacity = collecterr.Wrapf(collecterr.KindCapacity, "maximum live connections reached")

// Connection is one live push subscriber. The transport layer drains Send
// and writes frames to the socket.
type Connection struct {
	ID     string
	Filter Filter
	Send   chan []byte

	dropped atomic.Int64
}

// Dropped reports how many frames this connection lost to overflow.
func (c *Connection) Dropped() int64 {
	return c.dropped.Load()
}

// Frame is the push wire envelope.
type Frame struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

// Dispatcher fans completed articles out to live push connections and
// enqueues realtime webhook deliveries.
type Dispatcher struct {
	pool    *db.Pool
	webhook *WebhookSender
	logger  zerolog.Logger

	maxConnections int

	mu          sync.RWMutex
	connections map[string]*Connection
}

func NewDispatcher(pool *db.Pool, webhook *WebhookSender, maxConnections int, logger zerolog.Logger) *Dispatcher {
	if maxConnections < 1 {
		maxConnections = DefaultMaxConnections
	}
	return &Dispatcher{
		pool:           pool,
		webhook:        webhook,
		logger:         logger.With().Str("component", "dispatch").Logger(),
		maxConnections: maxConnections,
		connections:    make(map[string]*Connection),
	}
}

// Register adds a live connection with an immutable filter. Returns
// ErrCapacity at the cap.
func (d *Dispatcher) Register(filter Filter) (*Connection, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if len(d.connections) >= d.maxConnections {
		return nil, ErrCapacity
	}
	conn := &Connection{
		ID:     uuid.NewString(),
		Filter: filter,
		Send:   make(chan []byte, connectionBufferSize),
	}
	d.connections[conn.ID] = conn
	d.logger.Debug().Str("connection_id", conn.ID).Int("total", len(d.connections)).Msg("push connection registered")
	return conn, nil
}

// Unregister removes a connection and closes its send channel.
func (d *Dispatcher) Unregister(conn *Connection) {
	if conn == nil {
		return
	}
	d.mu.Lock()
	if _, ok := d.connections[conn.ID]; ok {
		delete(d.connections, conn.ID)
		close(conn.Send)
	}
	total := len(d.connections)
	d.mu.Unlock()
	d.logger.Debug().Str("connection_id", conn.ID).Int("total", total).Msg("push connection removed")
}

// ConnectionCount reports the live registry size.
func (d *Dispatcher) ConnectionCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.connections)
}

// PublishArticle delivers a completed article to every matching live
// connection and queues realtime webhook deliveries. Push writes never
// block: a full buffer drops its oldest frame first.
func (d *Dispatcher) PublishArticle(article *db.Article) {
	if article == nil {
		return
	}

	payload, err := json.Marshal(Frame{Type: "new_article", Data: article})
	if err != nil {
		d.logger.Error().Err(err).Str("article_id", article.ID).Msg("marshal push frame failed")
		return
	}

	d.mu.RLock()
	for _, conn := range d.connections {
		if !conn.Filter.Matches(article) {
			continue
		}
		d.offer(conn, payload)
	}
	d.mu.RUnlock()

	d.enqueueWebhooks(article)
}

// offer performs the bounded non-blocking write with oldest-drop.
func (d *Dispatcher) offer(conn *Connection, payload []byte) {
	select {
	case conn.Send <- payload:
		return
	default:
	}

	// Buffer full: evict the oldest undelivered frame and retry once.
	select {
	case <-conn.Send:
		conn.dropped.Add(1)
	default:
	}
	select {
	case conn.Send <- payload:
	default:
		conn.dropped.Add(1)
	}
}

func (d *Dispatcher) enqueueWebhooks(article *db.Article) {
	if d.webhook == nil || d.pool == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	subs, err := d.pool.RealtimeWebhookSubscriptions(ctx)
	if err != nil {
		d.logger.Error().Err(err).Msg("loading webhook subscriptions failed")
		return
	}
	for _, sub := range subs {
		if !FromSubscription(sub).Matches(article) {
			continue
		}
		d.webhook.Enqueue(sub, article)
	}
}
