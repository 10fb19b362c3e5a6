package chat

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	mid "PPGate/middleware"
	midsec "PPGate/middleware/security"
	"PPGate/module/resp"
	"PPGate/service/storage"
	"PPGate/tools/errs"
)

// Handler serves conversation history and stored attachments.
type Handler struct {
	messages storage.MessageStore
	objects  storage.ObjectStore
}

func NewHandler(messages storage.MessageStore, objects storage.ObjectStore) *Handler {
	return &Handler{messages: messages, objects: objects}
}

func (h *Handler) Routes(r gin.IRoutes) {
	mid.GET(r, "/messages/:userId", h.HandlerHistory, mid.RouteOpt{IsAuth: true})
	mid.GET(r, "/attachments/:key", h.HandlerAttachment, mid.RouteOpt{IsAuth: true})
}

// HandlerHistory returns the conversation between the caller and :userId,
// oldest first.
func (h *Handler) HandlerHistory(c *gin.Context) {
	me, ok := midsec.IdentityFrom(c)
	if !ok {
		resp.Fail(c, errs.ErrAuth.Wrap())
		return
	}
	peer := c.Param("userId")
	if peer == "" {
		resp.Fail(c, errs.ErrArgs.WrapMsg("userId is required"))
		return
	}
	msgs, err := h.messages.Find(c.Request.Context(), me.UserID, peer)
	if err != nil {
		resp.Fail(c, err)
		return
	}
	if msgs == nil {
		msgs = []*storage.Message{}
	}
	c.JSON(http.StatusOK, msgs)
}

func (h *Handler) HandlerAttachment(c *gin.Context) {
	obj, err := h.objects.Open(c.Request.Context(), c.Param("key"))
	if err != nil {
		resp.Fail(c, err)
		return
	}
	c.Header("Cache-Control", "private, max-age=86400")
	c.Header("Content-Length", strconv.Itoa(len(obj.Data)))
	c.Data(http.StatusOK, obj.ContentType, obj.Data)
}
