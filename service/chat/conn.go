package chat

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/tools/errs"
	"PPGate/tools/safe"
	"PPGate/tools/security"
)

type AuthState int32

const (
	Unauthenticated AuthState = iota
	Authenticated
)

func (s AuthState) String() string {
	if s == Authenticated {
		return "authenticated"
	}
	return "unauthenticated"
}

// WsConn is one client connection. Outbound frames go through a bounded
// queue drained by a single writer goroutine; enqueueing never blocks.
type WsConn struct {
	ID        string
	Remote    string
	CreatedAt time.Time

	transport Transport
	writeWait time.Duration

	mu       sync.RWMutex
	identity security.Identity
	state    AuthState
	admitted bool

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once

	liveness *Liveness
	onBroken func(*WsConn, error)
}

type connOptions struct {
	queue     int
	writeWait time.Duration
	onBroken  func(*WsConn, error)
}

func newWsConn(id, remote string, t Transport, opts connOptions) *WsConn {
	if opts.queue <= 0 {
		opts.queue = 256
	}
	c := &WsConn{
		ID:        id,
		Remote:    remote,
		CreatedAt: time.Now(),
		transport: t,
		writeWait: opts.writeWait,
		onBroken:  opts.onBroken,
		send:      make(chan []byte, opts.queue),
		done:      make(chan struct{}),
	}
	safe.Go("ws-writer", c.writeLoop)
	return c
}

// Authenticate binds the verified identity. It only takes effect before the
// connection is admitted to the registry.
func (c *WsConn) Authenticate(id security.Identity) error {
	if id.IsZero() {
		return errs.ErrAuth.WrapMsg("empty identity")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.admitted {
		return errs.ErrArgs.WrapMsg("identity is immutable after admission", "conn", c.ID)
	}
	c.identity = id
	c.state = Authenticated
	return nil
}

// Identity returns the bound identity, ok is false for anonymous connections.
func (c *WsConn) Identity() (security.Identity, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.identity, c.state == Authenticated
}

func (c *WsConn) State() AuthState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

func (c *WsConn) attachLiveness(l *Liveness) {
	c.mu.Lock()
	c.liveness = l
	c.mu.Unlock()
}

func (c *WsConn) Liveness() *Liveness {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.liveness
}

func (c *WsConn) markAdmitted() {
	c.mu.Lock()
	c.admitted = true
	c.mu.Unlock()
}

func (c *WsConn) Done() <-chan struct{} { return c.done }

func (c *WsConn) Closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// Enqueue hands a frame to the writer. It reports false when the connection
// is closed or its queue is full; the frame is dropped in both cases. Dropped
// chat frames stay retrievable from the message store.
func (c *WsConn) Enqueue(frame []byte) bool {
	if c.Closed() {
		return false
	}
	select {
	case c.send <- frame:
		return true
	case <-c.done:
		return false
	default:
		logger.Warn("send queue full, frame dropped", zap.String("conn", c.ID))
		return false
	}
}

// Close is idempotent. It stops liveness and tears down the transport.
func (c *WsConn) Close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if l := c.Liveness(); l != nil {
			l.Stop()
		}
		_ = c.transport.Close()
	})
}

func (c *WsConn) ping() error {
	return c.transport.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.writeWait))
}

func (c *WsConn) writeLoop() {
	for {
		select {
		case <-c.done:
			return
		case frame := <-c.send:
			if c.writeWait > 0 {
				_ = c.transport.SetWriteDeadline(time.Now().Add(c.writeWait))
			}
			if err := c.transport.WriteMessage(websocket.TextMessage, frame); err != nil {
				if c.onBroken != nil {
					c.onBroken(c, err)
				} else {
					c.Close()
				}
				return
			}
		}
	}
}
