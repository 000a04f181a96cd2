// Package signal is the WebSocket signaling gateway: one connection per peer,
// JSON request/response frames and room events pushed as they happen.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/roomcast/internal/app"
	"github.com/dkeye/roomcast/internal/core"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

type Config struct {
	ReadLimit         int64
	PingPeriod        time.Duration
	PongWait          time.Duration
	WriteWait         time.Duration
	SendQueue         int
	RequestsPerSecond float64
	Burst             int
}

func DefaultConfig() Config {
	return Config{
		ReadLimit:         65536,
		PingPeriod:        54 * time.Second,
		PongWait:          60 * time.Second,
		WriteWait:         10 * time.Second,
		SendQueue:         32,
		RequestsPerSecond: 20,
		Burst:             40,
	}
}

type SignalWSController struct {
	Registry *app.Registry
	cfg      Config
	wg       sync.WaitGroup
}

func NewSignalWSController(registry *app.Registry, cfg Config) *SignalWSController {
	def := DefaultConfig()
	if cfg.SendQueue <= 0 {
		cfg.SendQueue = def.SendQueue
	}
	if cfg.PongWait <= 0 {
		cfg.PongWait = def.PongWait
	}
	if cfg.PingPeriod <= 0 || cfg.PingPeriod >= cfg.PongWait {
		cfg.PingPeriod = cfg.PongWait * 9 / 10
	}
	if cfg.WriteWait <= 0 {
		cfg.WriteWait = def.WriteWait
	}
	return &SignalWSController{Registry: registry, cfg: cfg}
}

// WsSignalConn is the outbound half of a peer's websocket. Frames are queued
// and written by the connection's write pump.
type WsSignalConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsSignalConn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return core.ErrConnectionClosed
	}
	select {
	case c.send <- f:
	default:
		return core.ErrBackpressure
	}
	return nil
}

func (c *WsSignalConn) Closed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Close stops accepting frames. The write pump flushes what is queued,
// sends a close frame and releases the socket.
func (c *WsSignalConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	sid := c.GetString("client_token")
	log.Info().Str("module", "signal").Str("sid", sid).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("ws upgrade")
		return
	}
	if ctl.cfg.ReadLimit > 0 {
		ws.SetReadLimit(ctl.cfg.ReadLimit)
	}

	conn := &WsSignalConn{
		conn: ws,
		send: make(chan core.Frame, ctl.cfg.SendQueue),
	}
	cl := newClient(ctl, sid, conn)

	ctx, cancel := context.WithCancel(ctx)
	ctl.wg.Add(2)
	go func() {
		defer ctl.wg.Done()
		ctl.writePump(ctx, conn)
	}()
	go func() {
		defer ctl.wg.Done()
		defer cancel()
		ctl.readPump(ctx, cl)
	}()
}

// Wait blocks until every connection pump has exited or ctx is done.
func (ctl *SignalWSController) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		ctl.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
