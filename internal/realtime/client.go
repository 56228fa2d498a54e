// internal/realtime/client.go

package realtime

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 512 * 1024 // 512KB

	// Frames queued per client before pushes start failing
	sendBuffer = 256
)

// Client is a websocket connection served by a read loop and a write loop
type Client struct {
	conn   *websocket.Conn
	userID int64
	logger *zap.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(conn *websocket.Conn, userID int64, logger *zap.Logger) *Client {
	return &Client{
		conn:   conn,
		userID: userID,
		logger: logger,
		send:   make(chan []byte, sendBuffer),
	}
}

func (c *Client) UserID() int64 { return c.userID }

// Send queues one text frame without blocking.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrConnBroken
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBufferFull
	}
}

// Close stops the write loop, which sends a close frame and drops the socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

// readPump delivers every inbound text frame to handle until the peer goes away.
func (c *Client) readPump(handle func(data []byte)) {
	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				c.logger.Warn("websocket read error", zap.Int64("user_id", c.userID), zap.Error(err))
			}
			return
		}

		handle(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				c.logger.Debug("websocket write failed", zap.Int64("user_id", c.userID), zap.Error(err))
				c.Close()
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.Close()
				return
			}
		}
	}
}
