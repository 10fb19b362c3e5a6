package chat

import (
	"net"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"PPGate/logger"
	"PPGate/tools/security"
)

func (s *Server) upgrader() *websocket.Upgrader {
	return &websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     s.checkOrigin,
	}
}

// checkOrigin allows everything when no origins are configured.
func (s *Server) checkOrigin(r *http.Request) bool {
	if len(s.opts.AllowedOrigins) == 0 {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	for _, allowed := range s.opts.AllowedOrigins {
		if allowed == "*" || strings.EqualFold(strings.TrimRight(allowed, "/"), u.Scheme+"://"+u.Host) {
			return true
		}
	}
	return false
}

// HandleWS upgrades the request and runs the connection until it ends.
func (s *Server) HandleWS(c *gin.Context) {
	credential := security.CredentialFromRequest(c.Request, s.opts.CookieName)
	ws, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 非 WebSocket 请求 / 握手失败
		logger.Info("[HandleWS] upgrade websocket", zap.Error(err))
		return
	}
	ws.SetReadLimit(s.opts.MaxMessageSize)

	conn, err := s.Accept(c.Request.Context(), ws, c.ClientIP(), credential)
	if err != nil {
		logger.Warn("[HandleWS] admit", zap.Error(err))
		_ = ws.Close()
		return
	}

	err = s.Serve(conn, func() ([]byte, error) {
		mt, data, err := ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.TextMessage && mt != websocket.BinaryMessage {
			return nil, nil
		}
		return data, nil
	})
	s.Drop(conn, readCause(conn, err))
}

// readCause turns an ordinary peer close into nil so evictions are labelled
// by what actually happened.
func readCause(c *WsConn, err error) error {
	if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) {
		logger.Debug("[WS] peer closed", zap.String("conn", c.ID))
		return nil
	}
	if ne, ok := err.(net.Error); ok && ne.Timeout() {
		logger.Info("[WS] read timeout", zap.String("conn", c.ID), zap.Error(err))
		return err
	}
	if c.Closed() {
		// already evicted (liveness, write failure); the read error is a consequence
		return nil
	}
	return err
}
