package ingest

import (
	"errors"
	"net/http"

	"PPGateway/logger"
	"PPGateway/middleware"
	"PPGateway/tools/errs"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Presence answers the "who is online" query.
type Presence interface {
	OnlineUsers() []string
}

// HTTPHook exposes delivery and presence to the message-send collaborator
// over plain HTTP.
type HTTPHook struct {
	d Deliverer
	p Presence
}

func NewHTTPHook(d Deliverer, p Presence) *HTTPHook {
	return &HTTPHook{d: d, p: p}
}

// Register mounts POST /internal/messages (when deliver is true, behind
// guards) and GET /online.
func (h *HTTPHook) Register(r gin.IRouter, deliver bool, guards ...gin.HandlerFunc) {
	if deliver {
		middleware.POST(r, "/internal/messages", h.PostMessage, middleware.RouteOpt{Guards: guards})
	}
	middleware.GET(r, "/online", h.GetOnline, middleware.RouteOpt{})
}

func (h *HTTPHook) PostMessage(c *gin.Context) {
	body, err := c.GetRawData()
	if err != nil {
		writeError(c, http.StatusBadRequest, errs.ErrArgs.WrapMsg("read body"))
		return
	}
	msg, err := DecodeMessage(body)
	if err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	if err := msg.Validate(); err != nil {
		writeError(c, http.StatusBadRequest, err)
		return
	}
	n := h.d.DeliverNewMessage(msg)
	c.JSON(http.StatusAccepted, gin.H{"id": msg.ID, "delivered": n})
}

func (h *HTTPHook) GetOnline(c *gin.Context) {
	users := h.p.OnlineUsers()
	if users == nil {
		users = []string{}
	}
	c.JSON(http.StatusOK, gin.H{"users": users, "count": len(users)})
}

func writeError(c *gin.Context, status int, err error) {
	var ce *errs.CodeError
	if errors.As(err, &ce) {
		c.AbortWithStatusJSON(status, ce)
		return
	}
	logger.Warn("[ingest] http hook", zap.Error(err))
	c.AbortWithStatusJSON(status, errs.ErrInternalServer)
}
