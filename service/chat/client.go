package chat

import (
	"errors"
	"io"
	"net"
	"sync"
	"time"

	"PPGateway/logger"
	"PPGateway/tools/errs"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ClientConf struct {
	SendQueue      int           // 每连接发送队列长度
	WriteWait      time.Duration // 单次写超时
	PongWait       time.Duration // 读超时，收到 pong 续期
	PingPeriod     time.Duration // 必须小于 PongWait
	MaxMessageSize int64
}

func (c *ClientConf) norm() {
	if c.SendQueue <= 0 {
		c.SendQueue = 256
	}
	if c.WriteWait <= 0 {
		c.WriteWait = 10 * time.Second
	}
	if c.PongWait <= 0 {
		c.PongWait = 60 * time.Second
	}
	if c.PingPeriod <= 0 || c.PingPeriod >= c.PongWait {
		c.PingPeriod = c.PongWait * 9 / 10
	}
	if c.MaxMessageSize <= 0 {
		c.MaxMessageSize = 4096
	}
}

// Client is the websocket side of one connection. Frames are queued by
// Emit and written by a single writer goroutine (WritePump).
type Client struct {
	ConnID string
	UserID string
	WS     *websocket.Conn

	conf      ClientConf
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

func NewClient(connID, userID string, ws *websocket.Conn, conf ClientConf) *Client {
	conf.norm()
	return &Client{
		ConnID: connID,
		UserID: userID,
		WS:     ws,
		conf:   conf,
		send:   make(chan []byte, conf.SendQueue),
		done:   make(chan struct{}),
	}
}

func (c *Client) ID() string { return c.ConnID }

// Emit queues frame for the writer. It never blocks and never panics on a
// closed client.
func (c *Client) Emit(frame []byte) error {
	select {
	case <-c.done:
		return errs.ErrConnClosed.WrapMsg("emit", "conn", c.ConnID)
	default:
	}
	select {
	case c.send <- frame:
		return nil
	case <-c.done:
		return errs.ErrConnClosed.WrapMsg("emit", "conn", c.ConnID)
	default:
		return errs.ErrSendQueueFull.WrapMsg("emit", "conn", c.ConnID, "queue", cap(c.send))
	}
}

// Close stops the writer and closes the socket. Idempotent.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		if c.WS != nil {
			_ = c.WS.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(c.conf.WriteWait))
			err = c.WS.Close()
		}
	})
	if err != nil && !isExpectedCloseError(err) {
		return err
	}
	return nil
}

// Done is closed once the client is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// ReadPump keeps the read side alive so that pongs and close frames are
// processed. Clients only listen, so application frames are discarded.
// Returns when the connection fails or is closed.
func (c *Client) ReadPump() {
	c.WS.SetReadLimit(c.conf.MaxMessageSize)
	_ = c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	c.WS.SetPongHandler(func(string) error {
		return c.WS.SetReadDeadline(time.Now().Add(c.conf.PongWait))
	})

	for {
		if _, _, err := c.WS.ReadMessage(); err != nil {
			c.logReadError(err)
			return
		}
	}
}

func (c *Client) logReadError(err error) {
	fields := []zap.Field{zap.String("conn", c.ConnID), zap.String("user", c.UserID), zap.Error(err)}
	var ne net.Error
	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		logger.Warn("[WS] frame exceeds read limit", append(fields, zap.Int64("limit", c.conf.MaxMessageSize))...)
	case websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived):
		logger.Debug("[WS] peer closed", fields...)
	case errors.As(err, &ne) && ne.Timeout():
		logger.Info("[WS] read timeout", fields...)
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		logger.Debug("[WS] connection closed", fields...)
	default:
		logger.Info("[WS] read err", fields...)
	}
}

// WritePump drains the send queue and keeps the peer alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.conf.PingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.Close()
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(websocket.TextMessage, frame); err != nil {
				logger.Debug("[WS] write err", zap.String("conn", c.ConnID), zap.Error(err))
				return
			}
		case <-ticker.C:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				logger.Debug("[WS] ping err", zap.String("conn", c.ConnID), zap.Error(err))
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) write(mt int, data []byte) error {
	if err := c.WS.SetWriteDeadline(time.Now().Add(c.conf.WriteWait)); err != nil {
		return err
	}
	return c.WS.WriteMessage(mt, data)
}

func isExpectedCloseError(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}
