package client

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/voxlink-ai/voxlink/internal/wire"
)

// dialTimeout bounds one connection attempt.
const dialTimeout = 5 * time.Second

// connManager maintains a single websocket connection to the server,
// redialling on a fixed poll interval while disconnected. Callers take the
// current connection with get and return a broken one with drop; the manager
// replaces it on the next poll tick.
type connManager struct {
	url      string
	interval time.Duration
	log      *slog.Logger

	// onOpen, when set, is started in its own goroutine for every
	// successfully opened connection.
	onOpen func(ctx context.Context, c *websocket.Conn)

	mu   sync.Mutex
	conn *websocket.Conn
}

func newConnManager(url string, interval time.Duration, log *slog.Logger) *connManager {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &connManager{url: url, interval: interval, log: log}
}

// run dials immediately and then polls until ctx is cancelled.
func (m *connManager) run(ctx context.Context) error {
	timer := time.NewTicker(m.interval)
	defer timer.Stop()

	for {
		if m.get() == nil {
			m.dial(ctx)
		}
		select {
		case <-ctx.Done():
			if c := m.get(); c != nil {
				c.Close(websocket.StatusNormalClosure, "shutting down")
			}
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// get returns the live connection, or nil while disconnected.
func (m *connManager) get() *websocket.Conn {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.conn
}

// drop discards c if it is still the current connection. Safe to call from
// any goroutine and with a connection that was already replaced.
func (m *connManager) drop(c *websocket.Conn) {
	m.mu.Lock()
	if m.conn == c {
		m.conn = nil
	}
	m.mu.Unlock()
	c.CloseNow()
}

func (m *connManager) dial(ctx context.Context) {
	dctx, cancel := context.WithTimeout(ctx, dialTimeout)
	c, _, err := websocket.Dial(dctx, m.url, nil)
	cancel()
	if err != nil {
		if ctx.Err() == nil {
			m.log.Warn("server unreachable, retrying", "url", m.url, "err", err)
		}
		return
	}
	c.SetReadLimit(wire.MaxMessageSize)

	m.mu.Lock()
	m.conn = c
	m.mu.Unlock()
	m.log.Info("connected", "url", m.url)

	if m.onOpen != nil {
		go m.onOpen(ctx, c)
	}
}
