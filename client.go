package main

import (
	"fmt"
	"sync"
	"time"

	"coopshooter/protocol"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 4096
	sendBufSize    = 256
)

// Client is one WebSocket connection. Messages it reads are handed to the
// hub in arrival order; messages sent to it are written in FIFO order.
type Client struct {
	hub        *Hub
	conn       *websocket.Conn
	id         uint64
	send       chan []byte
	remoteAddr string
	limiter    *rate.Limiter

	done      chan struct{}
	closeOnce sync.Once
}

// NewClient creates a new Client
func NewClient(hub *Hub, conn *websocket.Conn, id uint64, remoteAddr string) *Client {
	return &Client{
		hub:        hub,
		conn:       conn,
		id:         id,
		send:       make(chan []byte, sendBufSize),
		remoteAddr: remoteAddr,
		limiter:    rate.NewLimiter(rate.Limit(hub.cfg.Server.MessagesPerSec), hub.cfg.Server.MessageBurst),
		done:       make(chan struct{}),
	}
}

// ID is the connection id, unique for the life of the process.
func (c *Client) ID() uint64 { return c.id }

// Send encodes msg and queues it for the write pump. It never blocks: a
// client whose queue is full is too slow to keep up and is disconnected.
func (c *Client) Send(msg protocol.Message) {
	data, err := protocol.Encode(msg)
	if err != nil {
		Log.Errorw("Encode failed", "conn", c.id, "type", msg.MessageType(), "error", err)
		return
	}
	select {
	case <-c.done:
		return
	default:
	}
	select {
	case c.send <- data:
	default:
		Log.Warnw("Send queue full, disconnecting slow client", "conn", c.id, "addr", c.remoteAddr)
		c.hub.metrics.SlowConsumers.Add(1)
		c.Close()
	}
}

// Close stops the write pump, which closes the socket. Safe to call more
// than once and from any goroutine.
func (c *Client) Close() {
	c.closeOnce.Do(func() { close(c.done) })
}

// ReadPump reads messages from the WebSocket connection until it fails, then
// hands the disconnect to the hub.
func (c *Client) ReadPump() {
	defer func() {
		c.hub.TrackDisconnect(c.remoteAddr)
		c.hub.leave(c)
		c.Close()
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				Log.Infow("WebSocket read error", "conn", c.id, "error", err)
			}
			return
		}

		if !c.limiter.Allow() {
			Log.Warnw("Rate limit exceeded, disconnecting", "conn", c.id, "addr", c.remoteAddr)
			c.hub.metrics.RateLimited.Add(1)
			c.closeWith(websocket.ClosePolicyViolation, "rate limit exceeded")
			return
		}

		msg, err := protocol.Decode(raw)
		if err == nil && !protocol.FromClient(msg.MessageType()) {
			err = &protocol.ProtocolError{Reason: "unexpected message type " + string(msg.MessageType())}
		}
		if err != nil {
			Log.Infow("Protocol error, disconnecting", "conn", c.id, "error", err)
			c.hub.metrics.ProtocolErrors.Add(1)
			c.hub.analytics.Track(EvtProtocolError, 0, "", fmt.Sprintf(`{"conn":%d}`, c.id))
			c.closeWith(websocket.CloseProtocolError, "protocol error")
			return
		}

		c.hub.metrics.MessagesIn.Add(1)
		if !c.hub.deliver(c, msg) {
			return
		}
	}
}

// closeWith sends a close frame with code and reason.
func (c *Client) closeWith(code int, reason string) {
	deadline := time.Now().Add(writeWait)
	_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(code, reason), deadline)
}

// WritePump writes messages to the WebSocket connection
func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}

		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.drain()
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// drain writes whatever is still queued, without waiting for more.
func (c *Client) drain() {
	for {
		select {
		case message := <-c.send:
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		default:
			return
		}
	}
}
