package security

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"PPGate/tools/errs"
	toolsec "PPGate/tools/security"
)

// context key
// 后续模块统一用这个 key 读取当前用户
const PPCtxIdentityKey = "identity"

type Verifier interface {
	Verify(ctx context.Context, credential string) (toolsec.Identity, error)
}

type Options struct {
	Verifier   Verifier
	CookieName string // 默认 "token"
	// Optional lets anonymous requests through without an identity.
	Optional bool
}

func Middleware(opts Options) gin.HandlerFunc {
	if opts.CookieName == "" {
		opts.CookieName = toolsec.DefaultCookieName
	}
	return func(c *gin.Context) {
		credential := toolsec.CredentialFromRequest(c.Request, opts.CookieName)
		if credential == "" || opts.Verifier == nil {
			deny(c, opts)
			return
		}
		id, err := opts.Verifier.Verify(c.Request.Context(), credential)
		if err != nil {
			deny(c, opts)
			return
		}
		c.Set(PPCtxIdentityKey, id)
	}
}

func deny(c *gin.Context, opts Options) {
	if opts.Optional {
		return
	}
	c.AbortWithStatusJSON(http.StatusUnauthorized, errs.ErrAuth)
}

// IdentityFrom returns the identity stored by Middleware.
func IdentityFrom(c *gin.Context) (toolsec.Identity, bool) {
	v, ok := c.Get(PPCtxIdentityKey)
	if !ok {
		return toolsec.Identity{}, false
	}
	id, ok := v.(toolsec.Identity)
	return id, ok && !id.IsZero()
}
