package chat

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/service/events"
	"PPGate/service/storage"
	"PPGate/tools/errs"
	"PPGate/tools/safe"
)

type Options struct {
	GatewayID      string
	PingInterval   time.Duration
	PongTimeout    time.Duration
	SendQueue      int
	InboxSize      int
	WriteWait      time.Duration
	MaxMessageSize int64
	CookieName     string
	AuthTimeout    time.Duration
	RouteTimeout   time.Duration
	AllowedOrigins []string
	Scheduler      Scheduler
}

func (o *Options) setDefaults() {
	if o.GatewayID == "" {
		o.GatewayID = "gw-1"
	}
	if o.PingInterval <= 0 {
		o.PingInterval = DefaultPingInterval
	}
	if o.PongTimeout <= 0 {
		o.PongTimeout = DefaultPongTimeout
	}
	if o.SendQueue <= 0 {
		o.SendQueue = 256
	}
	if o.InboxSize <= 0 {
		o.InboxSize = 64
	}
	if o.WriteWait <= 0 {
		o.WriteWait = 10 * time.Second
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = 10 << 20
	}
	if o.CookieName == "" {
		o.CookieName = "token"
	}
	if o.AuthTimeout <= 0 {
		o.AuthTimeout = 3 * time.Second
	}
	if o.RouteTimeout <= 0 {
		o.RouteTimeout = 30 * time.Second
	}
	if o.Scheduler == nil {
		o.Scheduler = realScheduler{}
	}
}

// Server ties registry, liveness, presence and routing together.
type Server struct {
	opts     Options
	verifier IdentityVerifier
	reg      *ConnManager
	presence *Presence
	router   *Router
	metrics  *Metrics
}

func NewServer(opts Options, verifier IdentityVerifier, messages storage.MessageStore, objects storage.ObjectStore, pub events.Publisher) (*Server, error) {
	if verifier == nil {
		return nil, errs.ErrArgs.WrapMsg("identity verifier is required")
	}
	if messages == nil {
		return nil, errs.ErrArgs.WrapMsg("message store is required")
	}
	opts.setDefaults()
	if opts.PongTimeout >= opts.PingInterval {
		return nil, errs.ErrArgs.WrapMsg("pong timeout must be shorter than ping interval",
			"interval", opts.PingInterval, "timeout", opts.PongTimeout)
	}
	m := NewMetrics(opts.GatewayID)
	reg := NewConnManager()
	return &Server{
		opts:     opts,
		verifier: verifier,
		reg:      reg,
		presence: NewPresence(reg, pub, m, opts.GatewayID),
		router:   NewRouter(reg, messages, objects, pub, m),
		metrics:  m,
	}, nil
}

func (s *Server) ConnMgr() *ConnManager { return s.reg }
func (s *Server) Presence() *Presence   { return s.presence }
func (s *Server) Router() *Router       { return s.router }
func (s *Server) Metrics() *Metrics     { return s.metrics }
func (s *Server) Options() Options      { return s.opts }

// Accept verifies the credential, wraps t and admits the connection. A bad or
// missing credential yields an anonymous connection, not an error.
func (s *Server) Accept(ctx context.Context, t Transport, remote, credential string) (*WsConn, error) {
	c := newWsConn(uuid.NewString(), remote, t, connOptions{
		queue:     s.opts.SendQueue,
		writeWait: s.opts.WriteWait,
		onBroken:  s.Drop,
	})

	if credential != "" {
		vctx, cancel := context.WithTimeout(ctx, s.opts.AuthTimeout)
		id, err := s.verifier.Verify(vctx, credential)
		cancel()
		if err != nil {
			logger.Info("credential rejected, connection stays anonymous",
				zap.String("conn", c.ID), zap.String("remote", remote), zap.Error(err))
		} else if err := c.Authenticate(id); err != nil {
			logger.Warn("bind identity", zap.String("conn", c.ID), zap.Error(err))
		}
	}

	l := NewLiveness(LivenessConfig{
		Interval:  s.opts.PingInterval,
		Timeout:   s.opts.PongTimeout,
		Scheduler: s.opts.Scheduler,
	}, c.ping, func(cause error) { s.Drop(c, cause) })
	c.attachLiveness(l)
	t.SetPongHandler(func(string) error {
		l.Ack()
		return nil
	})

	if err := s.reg.Admit(c); err != nil {
		c.Close()
		return nil, err
	}
	l.Start()

	state := c.State()
	s.metrics.admitted.WithLabelValues(state.String()).Inc()
	id, _ := c.Identity()
	logger.Info("connection admitted", zap.String("conn", c.ID), zap.String("remote", remote),
		zap.String("state", state.String()), zap.String("user", id.UserID))
	return c, nil
}

// Drop closes c and evicts it. Safe to call any number of times from any
// goroutine; only the first call is logged and counted.
func (s *Server) Drop(c *WsConn, cause error) {
	if l := c.Liveness(); l != nil {
		l.Stop()
	}
	removed := s.reg.Remove(c)
	c.Close()
	if !removed {
		return
	}
	label := "closed"
	if ce, ok := errs.As(cause); ok && ce.Code == errs.LivenessTimeout {
		label = "liveness"
	} else if cause != nil {
		label = "error"
	}
	s.metrics.evicted.WithLabelValues(label).Inc()
	logger.Info("connection removed", zap.String("conn", c.ID), zap.String("cause", label), zap.Error(cause))
}

// Serve consumes inbound frames until read fails. Routing runs on a separate
// goroutine so control frames (pongs) keep flowing while a slow upload or
// store write is in progress; frames of one connection stay in order.
// Every frame read is routed, even when the connection closes meanwhile.
// A full inbox blocks the reader; liveness evicts a peer stalled that way.
func (s *Server) Serve(c *WsConn, read func() ([]byte, error)) error {
	inbox := make(chan []byte, s.opts.InboxSize)
	go s.routeLoop(c, inbox)
	// the worker outlives Serve until the queued frames are routed
	defer close(inbox)

	for {
		data, err := read()
		if err != nil {
			return err
		}
		if data == nil {
			continue
		}
		inbox <- data
	}
}

func (s *Server) routeLoop(c *WsConn, inbox <-chan []byte) {
	for raw := range inbox {
		_ = safe.Run("ws-route", func() { s.handleFrame(c, raw) })
	}
}

func (s *Server) handleFrame(c *WsConn, raw []byte) {
	// not bound to the connection: a route in flight may finish persisting
	// after its sender went away.
	ctx, cancel := context.WithTimeout(context.Background(), s.opts.RouteTimeout)
	defer cancel()

	d, err := s.router.Route(ctx, c, raw)
	if err != nil {
		ce, _ := errs.As(err)
		switch ce.Code {
		case errs.MalformedPayload, errs.AuthError:
			logger.Debug("chat payload dropped", zap.String("conn", c.ID), zap.Error(err))
		default:
			logger.Warn("chat payload failed", zap.String("conn", c.ID), zap.Int("code", ce.Code), zap.Error(err))
		}
		return
	}
	logger.Debug("chat payload routed", zap.String("conn", c.ID), zap.String("msg", d.Message.ID),
		zap.Int("recipients", d.Recipients))
}

// Close evicts every connection.
func (s *Server) Close() {
	for _, c := range s.reg.All() {
		s.Drop(c, nil)
	}
}
