package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10
)

// Client is one websocket connection of a user.
type Client struct {
	hub     *Hub
	conn    *websocket.Conn
	userID  uint
	limiter *rate.Limiter

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

// trySend queues data without blocking. It returns false when the client is
// closed or its queue is full; a full queue closes the client.
func (c *Client) trySend(data []byte) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.send <- data:
		return true
	default:
		c.closed = true
		close(c.send)
		return false
	}
}

func (c *Client) closeSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.send)
	}
}

func (c *Client) sendEvent(event interface{}) {
	data, err := json.Marshal(event)
	if err != nil {
		return
	}
	c.trySend(data)
}

// readPump reads client frames until the connection fails.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister(c)
		c.conn.Close()
	}()
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var in Inbound
		if err := c.conn.ReadJSON(&in); err != nil {
			if badFrame(err) {
				c.sendEvent(NewErrorEvent("invalid message format"))
				continue
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.log.Debug("websocket closed", zap.Uint("user_id", c.userID), zap.Error(err))
			}
			return
		}
		if !c.limiter.Allow() {
			c.sendEvent(NewErrorEvent("rate limit exceeded, slow down"))
			continue
		}
		c.handle(in)
	}
}

func badFrame(err error) bool {
	var syntax *json.SyntaxError
	var typ *json.UnmarshalTypeError
	return errors.As(err, &syntax) || errors.As(err, &typ)
}

func (c *Client) handle(in Inbound) {
	switch in.Type {
	case TypeChatMessage, "":
		if c.hub.onMessage == nil {
			return
		}
		if in.ReceiverID == 0 || in.Message == "" {
			c.sendEvent(NewErrorEvent("receiver_id and message are required"))
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), writeWait)
		defer cancel()
		if err := c.hub.onMessage(ctx, c.userID, in); err != nil {
			c.sendEvent(NewErrorEvent(err.Error()))
		}
	case "ping":
		if c.hub.presence != nil {
			_ = c.hub.presence.Heartbeat(context.Background(), c.userID)
		}
	default:
		c.sendEvent(NewErrorEvent("unknown message type"))
	}
}

// writePump writes queued events and keepalive pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case data, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
