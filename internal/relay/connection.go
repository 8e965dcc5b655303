package relay

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/eleven-am/voice-relay/internal/protocol"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 16 << 20
	sendQueueSize  = 64
)

// Connection owns one websocket. A single writer goroutine drains the send
// queue so frames go out in the order they were queued.
type Connection struct {
	ws         *websocket.Conn
	id         string
	remoteAddr string
	openedAt   time.Time
	logger     *slog.Logger
	send       chan protocol.Message
	done       chan struct{}
	closeOnce  sync.Once
}

func NewConnection(ws *websocket.Conn, id, remoteAddr string, logger *slog.Logger) *Connection {
	return &Connection{
		ws:         ws,
		id:         id,
		remoteAddr: remoteAddr,
		openedAt:   time.Now(),
		logger:     logger.With("connection_id", id),
		send:       make(chan protocol.Message, sendQueueSize),
		done:       make(chan struct{}),
	}
}

func (c *Connection) ID() string {
	return c.id
}

func (c *Connection) RemoteAddr() string {
	return c.remoteAddr
}

func (c *Connection) OpenedAt() time.Time {
	return c.openedAt
}

func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// Send queues msg, blocking while the queue is full.
func (c *Connection) Send(ctx context.Context, msg protocol.Message) error {
	select {
	case <-c.done:
		return &TransportError{Op: "send", Err: ErrConnectionClosed}
	default:
	}

	select {
	case c.send <- msg:
		return nil
	case <-c.done:
		return &TransportError{Op: "send", Err: ErrConnectionClosed}
	case <-ctx.Done():
		return &TransportError{Op: "send", Err: ctx.Err()}
	}
}

func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.done)
		err = c.ws.Close()
	})
	return err
}

// Run pumps frames to onFrame until the peer goes away or Close is called.
func (c *Connection) Run(ctx context.Context, onFrame func([]byte)) error {
	go c.writePump(ctx)
	return c.readPump(ctx, onFrame)
}

func (c *Connection) readPump(ctx context.Context, onFrame func([]byte)) error {
	defer c.Close()

	c.ws.SetReadLimit(maxMessageSize)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.done:
			return nil
		default:
		}

		_, message, err := c.ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.logger.Error("websocket read error", "error", err)
				return &TransportError{Op: "read", Err: err}
			}
			return nil
		}

		onFrame(message)
	}
}

func (c *Connection) writePump(ctx context.Context) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.done:
			return
		case msg := <-c.send:
			data, err := protocol.Encode(msg)
			if err != nil {
				c.logger.Error("failed to encode message", "type", msg.Type, "error", err)
				continue
			}

			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.TextMessage, data); err != nil {
				c.logger.Error("websocket write error", "error", err)
				return
			}

		case <-ticker.C:
			_ = c.ws.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
