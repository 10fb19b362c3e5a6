package middleware

import (
	"net/http"
	"sync"

	"github.com/gin-gonic/gin"

	"PPGate/tools/errs"
)

// 进程级单例，第一次 Manager() 时创建
var globalMgr = sync.OnceValue(NewManager)

// MiddlewareManager holds the handlers mounted through Use and the handler
// guarding routes registered with RouteOpt{IsAuth: true}. Handlers added here
// must not call c.Next; Use drives the chain.
type MiddlewareManager struct {
	mu   sync.RWMutex
	mids []gin.HandlerFunc
	auth gin.HandlerFunc
}

func NewManager() *MiddlewareManager {
	return &MiddlewareManager{}
}

func Manager() *MiddlewareManager {
	return globalMgr()
}

// Add appends handlers; they run in registration order.
func (m *MiddlewareManager) Add(h ...gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = append(m.mids, h...)
}

// SetAuth installs the handler used by routes registered with IsAuth. It is
// captured when the route is registered.
func (m *MiddlewareManager) SetAuth(h gin.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.auth = h
}

// Auth returns the configured auth handler. Without one, protected routes
// answer 401.
func (m *MiddlewareManager) Auth() gin.HandlerFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.auth == nil {
		return func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrAuth)
		}
	}
	return m.auth
}

func (m *MiddlewareManager) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.mids = nil
	m.auth = nil
}

// Use mounts the manager on an engine. The handler list is snapshotted per
// request so Add is safe while serving.
func (m *MiddlewareManager) Use() gin.HandlerFunc {
	return func(c *gin.Context) {
		m.mu.RLock()
		handlers := m.mids[:len(m.mids):len(m.mids)]
		m.mu.RUnlock()

		for _, h := range handlers {
			h(c)
			if c.IsAborted() {
				return
			}
		}
		c.Next()
	}
}
