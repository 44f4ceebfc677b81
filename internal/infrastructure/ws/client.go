package ws

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/baechuer/newsroom/internal/application/delivery"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 90 * time.Second // three missed 30s heartbeats
	maxMessageSize = 4096
	sendBufferSize = 256
	callTimeout    = 5 * time.Second
)

var (
	ErrClientClosed = errors.New("ws client closed")
	ErrBufferFull   = errors.New("ws send buffer full")
)

// Client is one websocket connection. It implements delivery.Deliverer by
// queueing frames for WritePump; Send never blocks.
type Client struct {
	reg    Registry
	conn   *websocket.Conn
	userID string
	lg     zerolog.Logger

	send chan []byte

	mu     sync.Mutex // guards closed and the send channel close
	closed bool

	writeMu sync.Mutex // one writer on conn at a time
}

func newClient(reg Registry, conn *websocket.Conn, lg zerolog.Logger) *Client {
	return &Client{
		reg:  reg,
		conn: conn,
		send: make(chan []byte, sendBufferSize),
		lg:   lg,
	}
}

var _ delivery.Deliverer = (*Client)(nil)

func (c *Client) Send(_ context.Context, _ string, env delivery.Envelope) (delivery.DeliveryResult, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return delivery.DeliveryResult{}, err
	}
	if err := c.enqueue(data); err != nil {
		return delivery.DeliveryResult{}, err
	}
	return delivery.DeliveryResult{Delivered: true}, nil
}

func (c *Client) enqueue(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- data:
		return nil
	default:
		c.lg.Warn().Msg("send buffer full")
		return ErrBufferFull
	}
}

func (c *Client) sendFrame(f Frame) {
	data, err := json.Marshal(f)
	if err != nil {
		c.lg.Error().Err(err).Str("op", f.Op).Msg("marshal frame")
		return
	}
	if err := c.enqueue(data); err != nil {
		c.lg.Debug().Err(err).Str("op", f.Op).Msg("frame dropped")
	}
}

// close stops WritePump. Safe to call more than once.
func (c *Client) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// ReadPump blocks until the connection ends, then detaches the client from
// the registry.
func (c *Client) ReadPump() {
	defer func() {
		c.reg.Detach(c.userID, c)
		c.close()
		_ = c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.lg.Warn().Err(err).Str("user_id", c.userID).Msg("set read deadline")
		return
	}

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.lg.Info().Err(err).Str("user_id", c.userID).Msg("unexpected close")
			}
			return
		}

		var f Frame
		if err := json.Unmarshal(raw, &f); err != nil {
			c.lg.Debug().Err(err).Str("user_id", c.userID).Msg("invalid frame")
			continue
		}
		c.handleFrame(f)
	}
}

func (c *Client) handleFrame(f Frame) {
	switch f.Op {
	case OpHeartbeat:
		if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
			return
		}
		c.sendFrame(Frame{Op: OpHeartbeatAck})

	case OpMarkRead:
		var d MarkReadData
		if err := json.Unmarshal(f.Data, &d); err != nil || d.NotificationID == "" {
			c.sendFrame(errorFrame("mark_read requires notification_id"))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		ok := c.reg.MarkNotificationAsRead(ctx, d.NotificationID, c.userID)
		cancel()
		c.sendFrame(mustFrame(OpMarkReadAck, MarkReadAckData{NotificationID: d.NotificationID, OK: ok}))

	case OpMarkAllRead:
		ctx, cancel := context.WithTimeout(context.Background(), callTimeout)
		ok := c.reg.MarkAllNotificationsAsRead(ctx, c.userID)
		cancel()
		c.sendFrame(mustFrame(OpMarkAllReadAck, MarkReadAckData{OK: ok}))

	default:
		c.lg.Debug().Str("user_id", c.userID).Str("op", f.Op).Msg("unknown op")
	}
}

// WritePump drains the send buffer onto the connection until close.
func (c *Client) WritePump() {
	defer c.conn.Close()

	for msg := range c.send {
		if err := c.write(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.write(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

func (c *Client) write(messageType int, data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(messageType, data)
}
