package user

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	mid "PPGate/middleware"
	midsec "PPGate/middleware/security"
	"PPGate/module/resp"
	"PPGate/module/user/service"
	"PPGate/tools/errs"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type Handler struct {
	svc        *service.Service
	cookieName string
	secure     bool
}

// NewHandler 参数 secure 控制 cookie 的 Secure 标记（https 部署时打开）
func NewHandler(svc *service.Service, cookieName string, secure bool) *Handler {
	if cookieName == "" {
		cookieName = "token"
	}
	return &Handler{svc: svc, cookieName: cookieName, secure: secure}
}

func (h *Handler) Routes(r gin.IRoutes) {
	mid.POST(r, "/register", h.HandlerRegister, mid.RouteOpt{IsAuth: false})
	mid.POST(r, "/login", h.HandlerLogin, mid.RouteOpt{IsAuth: false})
	mid.POST(r, "/logout", h.HandlerLogout, mid.RouteOpt{IsAuth: false})
	mid.GET(r, "/profile", h.HandlerProfile, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/people", h.HandlerPeople, mid.RouteOpt{IsAuth: false})
}

func (h *Handler) bind(c *gin.Context) (credentials, bool) {
	var in credentials
	if err := c.ShouldBindJSON(&in); err != nil {
		resp.Fail(c, errs.ErrArgs.Cause(err))
		return in, false
	}
	return in, true
}

func (h *Handler) setCookie(c *gin.Context, token string, exp time.Time) {
	maxAge := 0
	if !exp.IsZero() {
		maxAge = int(time.Until(exp).Seconds())
	}
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, token, maxAge, "/", "", h.secure, true)
}

func (h *Handler) HandlerRegister(c *gin.Context) {
	in, ok := h.bind(c)
	if !ok {
		return
	}
	sess, err := h.svc.Register(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	h.setCookie(c, sess.Token, sess.ExpireAt)
	c.JSON(http.StatusCreated, gin.H{"id": sess.User.ID})
}

func (h *Handler) HandlerLogin(c *gin.Context) {
	in, ok := h.bind(c)
	if !ok {
		return
	}
	sess, err := h.svc.Login(c.Request.Context(), in.Username, in.Password)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	h.setCookie(c, sess.Token, sess.ExpireAt)
	c.JSON(http.StatusOK, gin.H{"id": sess.User.ID})
}

func (h *Handler) HandlerLogout(c *gin.Context) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(h.cookieName, "", -1, "/", "", h.secure, true)
	c.String(http.StatusOK, "ok")
}

func (h *Handler) HandlerProfile(c *gin.Context) {
	id, ok := midsec.IdentityFrom(c)
	if !ok {
		resp.Fail(c, errs.ErrAuth.Wrap())
		return
	}
	c.JSON(http.StatusOK, id)
}

func (h *Handler) HandlerPeople(c *gin.Context) {
	users, err := h.svc.People(c.Request.Context())
	if err != nil {
		resp.Fail(c, err)
		return
	}
	out := make([]gin.H, 0, len(users))
	for _, u := range users {
		out = append(out, gin.H{"id": u.ID, "username": u.Username})
	}
	c.JSON(http.StatusOK, out)
}
