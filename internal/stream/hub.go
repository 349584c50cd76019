// Package stream fans audit events out to websocket subscribers.
package stream

import (
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"consumption-unit/internal/domain"
	"consumption-unit/internal/observability"
)

// HubConfig configures websocket behavior.
type HubConfig struct {
	// PingInterval is interval for sending ping frames.
	PingInterval time.Duration
	// ReadTimeout is how long a client may stay silent (pongs included).
	ReadTimeout time.Duration
	// WriteTimeout is timeout for writing messages.
	WriteTimeout time.Duration
	// SendBuffer is the per-client queue length. Events for a full queue are dropped.
	SendBuffer int
}

// DefaultHubConfig returns default websocket configuration.
func DefaultHubConfig() HubConfig {
	return HubConfig{
		PingInterval: 30 * time.Second,
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 10 * time.Second,
		SendBuffer:   64,
	}
}

// Hub tracks connected subscribers and broadcasts events to them.
// A subscriber may pass ?token_id= to receive only that token's events.
type Hub struct {
	config   HubConfig
	upgrader websocket.Upgrader
	logger   *slog.Logger
	metrics  *observability.Metrics

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  atomic.Bool
}

type client struct {
	conn    *websocket.Conn
	tokenID string
	send    chan *domain.AuditEvent
	done    chan struct{}
	written chan struct{} // closed when writeLoop returns
	once    sync.Once
}

func (c *client) stop() {
	c.once.Do(func() { close(c.done) })
}

// NewHub creates a hub. A nil config uses DefaultHubConfig; metrics may be nil.
func NewHub(config *HubConfig, logger *slog.Logger, metrics *observability.Metrics) *Hub {
	cfg := DefaultHubConfig()
	if config != nil {
		cfg = *config
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		config: cfg,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		logger:  logger.With("component", "stream"),
		metrics: metrics,
		clients: make(map[*client]struct{}),
	}
}

// ServeHTTP upgrades the request and registers the subscriber until it disconnects.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if h.closed.Load() {
		http.Error(w, "stream closed", http.StatusServiceUnavailable)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	c := &client{
		conn:    conn,
		tokenID: r.URL.Query().Get("token_id"),
		send:    make(chan *domain.AuditEvent, h.config.SendBuffer),
		done:    make(chan struct{}),
		written: make(chan struct{}),
	}
	h.add(c)
	defer h.remove(c)

	go h.writeLoop(c)
	h.readLoop(c)
}

// Publish queues events for every matching subscriber without blocking.
func (h *Hub) Publish(events []*domain.AuditEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		for _, e := range events {
			if c.tokenID != "" && c.tokenID != e.TokenID {
				continue
			}
			select {
			case c.send <- e:
			default:
				if h.metrics != nil {
					h.metrics.StreamDropped.Inc()
				}
				h.logger.Warn("dropping event for slow subscriber", "event_id", e.EventID)
			}
		}
	}
}

// Clients returns the number of connected subscribers.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects every subscriber and rejects new ones.
func (h *Hub) Close() {
	if h.closed.Swap(true) {
		return
	}
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		c.stop()
	}
}

func (h *Hub) add(c *client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()

	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(n))
	}
	h.logger.Debug("subscriber connected", "token_id", c.tokenID, "clients", n)
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	delete(h.clients, c)
	n := len(h.clients)
	h.mu.Unlock()

	c.stop()
	<-c.written
	c.conn.Close()

	if h.metrics != nil {
		h.metrics.StreamClients.Set(float64(n))
	}
	h.logger.Debug("subscriber disconnected", "clients", n)
}

// readLoop discards client messages and returns when the connection fails
// or the client is stopped.
func (h *Hub) readLoop(c *client) {
	c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(h.config.ReadTimeout))
	})

	errCh := make(chan error, 1)
	go func() {
		for {
			if _, _, err := c.conn.ReadMessage(); err != nil {
				errCh <- err
				return
			}
		}
	}()

	select {
	case <-errCh:
	case <-c.done:
	}
}

func (h *Hub) writeLoop(c *client) {
	defer close(c.written)
	ticker := time.NewTicker(h.config.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.done:
			c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(h.config.WriteTimeout))
			return
		case e := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(h.config.WriteTimeout))
			if err := c.conn.WriteJSON(e); err != nil {
				h.logger.Debug("websocket write failed", "error", err)
				c.stop()
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(h.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				c.stop()
				return
			}
		}
	}
}
