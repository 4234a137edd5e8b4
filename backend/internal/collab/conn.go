package collab

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	apperrors "branchboard/backend/pkg/errors"
	"branchboard/backend/pkg/logger"
)

const (
	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period (must be less than pongWait)
	pingPeriod = (pongWait * 9) / 10
)

var (
	errConnClosed = errors.New("connection closed")
	errQueueFull  = errors.New("send queue full")
)

// Conn is one live client channel as seen by the hub
type Conn interface {
	ID() string
	// Send queues payload for delivery. An error means the connection can
	// no longer be used and should be evicted.
	Send(payload []byte) error
	Close() error
}

// Receiver yields inbound frames until the peer goes away
type Receiver interface {
	Receive(ctx context.Context) ([]byte, error)
}

// WSOptions tunes a websocket connection
type WSOptions struct {
	SendBuffer      int
	WriteWait       time.Duration
	MaxMessageBytes int64
}

// DefaultWSOptions mirrors the server configuration defaults
func DefaultWSOptions() WSOptions {
	return WSOptions{
		SendBuffer:      256,
		WriteWait:       10 * time.Second,
		MaxMessageBytes: 512 * 1024,
	}
}

// WSConn adapts a gorilla websocket to Conn and Receiver. Outbound frames go
// through a buffered queue drained by a single write pump, so a slow peer
// fills its own queue and is evicted instead of stalling the broadcaster.
type WSConn struct {
	id        string
	ws        *websocket.Conn
	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
	writeWait time.Duration
	logger    *zap.Logger
}

// NewWSConn wraps ws and starts its write pump
func NewWSConn(ws *websocket.Conn, opts WSOptions) *WSConn {
	defaults := DefaultWSOptions()
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = defaults.SendBuffer
	}
	if opts.WriteWait <= 0 {
		opts.WriteWait = defaults.WriteWait
	}
	if opts.MaxMessageBytes <= 0 {
		opts.MaxMessageBytes = defaults.MaxMessageBytes
	}

	id := uuid.New().String()
	c := &WSConn{
		id:        id,
		ws:        ws,
		send:      make(chan []byte, opts.SendBuffer),
		done:      make(chan struct{}),
		writeWait: opts.WriteWait,
		logger:    logger.Get().With(zap.String("connection_id", id)),
	}

	ws.SetReadLimit(opts.MaxMessageBytes)
	ws.SetReadDeadline(time.Now().Add(pongWait))
	ws.SetPongHandler(func(string) error {
		ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	go c.writePump()
	return c
}

func (c *WSConn) ID() string {
	return c.id
}

func (c *WSConn) Send(payload []byte) error {
	select {
	case <-c.done:
		return apperrors.NewTransportFailure(c.id, errConnClosed)
	default:
	}

	select {
	case c.send <- payload:
		return nil
	case <-c.done:
		return apperrors.NewTransportFailure(c.id, errConnClosed)
	default:
		return apperrors.NewTransportFailure(c.id, errQueueFull)
	}
}

// Close stops the write pump, which sends a close frame and releases the
// socket. It is safe to call more than once.
func (c *WSConn) Close() error {
	c.closeOnce.Do(func() {
		close(c.done)
	})
	return nil
}

// Receive blocks for the next text frame. Binary frames are ignored.
func (c *WSConn) Receive(ctx context.Context) ([]byte, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		messageType, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return nil, err
		}

		if messageType == websocket.TextMessage {
			return message, nil
		}
		c.logger.Debug("Ignoring non-text frame", zap.Int("message_type", messageType))
	}
}

func (c *WSConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.ws.Close()
	}()

	for {
		select {
		case <-c.done:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			c.ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return

		case message := <-c.send:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Warn("Failed to write message", zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			c.ws.SetWriteDeadline(time.Now().Add(c.writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.logger.Warn("Failed to send ping", zap.Error(err))
				c.Close()
				return
			}
		}
	}
}
