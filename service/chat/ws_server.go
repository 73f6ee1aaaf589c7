package chat

import (
	"net/http"

	"PPGateway/logger"
	"PPGateway/tools/ids"
	"PPGateway/tools/safe"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// WSHandler upgrades HTTP requests and runs the connection against a Gateway.
type WSHandler struct {
	gw       *Gateway
	conf     ClientConf
	userKey  string
	upgrader websocket.Upgrader
	nextID   func() string
}

// NewWSHandler builds the handler. checkOrigin may be nil to accept any
// origin; userKey is the query parameter carrying the claimed user id.
func NewWSHandler(gw *Gateway, conf ClientConf, userKey string, checkOrigin func(*http.Request) bool) *WSHandler {
	safe.MustNotNil(gw, "gateway")
	conf.norm()
	if userKey == "" {
		userKey = "userId"
	}
	if checkOrigin == nil {
		checkOrigin = func(*http.Request) bool { return true }
	}
	return &WSHandler{
		gw:      gw,
		conf:    conf,
		userKey: userKey,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     checkOrigin,
		},
		nextID: ids.GenerateString,
	}
}

// HandleWS ===== WebSocket 处理 =====
func (h *WSHandler) HandleWS(c *gin.Context) {
	ws, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// 常见：非 WebSocket 请求/握手失败；Upgrade 已写回错误响应
		logger.Info("[HandleWS] upgrade failed", zap.String("remote", c.ClientIP()), zap.Error(err))
		return
	}

	hs := Handshake{
		UserID: c.Query(h.userKey),
		Remote: c.ClientIP(),
	}
	client := NewClient(h.nextID(), hs.UserID, ws, h.conf)

	h.gw.OnConnect(client, hs)
	go client.WritePump()

	// ---- 读循环：阻塞直到断开 ----
	client.ReadPump()

	// ---- 退出阶段：注销、广播、关闭 ----
	h.gw.OnDisconnect(client.ConnID)
	if err := client.Close(); err != nil {
		logger.Debug("[HandleWS] close websocket", zap.String("conn", client.ConnID), zap.Error(err))
	}
}
