package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"learnhub-backend/pkg/logger"
)

const (
	// writeWait is the deadline for a single frame write
	writeWait = 10 * time.Second

	// pongWait is how long a connection may stay silent before it is
	// considered dead
	pongWait = 60 * time.Second

	// pingPeriod must be shorter than pongWait
	pingPeriod = 54 * time.Second

	// sendBufferSize bounds the per-connection outbound queue
	sendBufferSize = 256

	maxMessageSize = 64 * 1024
)

// Client is one websocket connection. userID is uuid.Nil for anonymous
// connections (failed or missing handshake auth); identity-requiring events
// are rejected per event, not at connect time.
type Client struct {
	gateway *Gateway
	conn    *websocket.Conn
	send    chan []byte
	userID  uuid.UUID
}

func newClient(g *Gateway, conn *websocket.Conn, userID uuid.UUID) *Client {
	return &Client{
		gateway: g,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		userID:  userID,
	}
}

// authenticated reports whether the handshake produced an identity
func (c *Client) authenticated() bool {
	return c.userID != uuid.Nil
}

// enqueue queues an event for delivery to this connection
func (c *Client) enqueue(data []byte) {
	select {
	case c.send <- data:
	default:
		c.dropped()
	}
}

// dropped counts an event lost to a full send buffer
func (c *Client) dropped() {
	if c.gateway.metrics != nil {
		c.gateway.metrics.RecordWebSocketError("slow_consumer_drop")
	}
}

// readPump reads frames off the connection and dispatches events until the
// connection dies. It owns the disconnect cleanup.
func (c *Client) readPump() {
	defer func() {
		c.gateway.disconnect(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		if c.authenticated() {
			// The pong doubles as a presence heartbeat
			if err := c.gateway.presence.Refresh(context.Background(), c.userID); err != nil {
				logger.Debug("presence refresh failed", zap.Error(err))
			}
		}
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				logger.Debug("websocket read error", zap.Error(err))
			}
			return
		}

		var env Envelope
		if err := json.Unmarshal(data, &env); err != nil {
			c.enqueue(encodeEvent(EventError, errorEvent{
				Code:    "INVALID_EVENT",
				Message: "malformed event frame",
			}))
			continue
		}

		if c.gateway.metrics != nil {
			c.gateway.metrics.RecordWebSocketMessage(env.Type, "in")
		}

		c.gateway.handleEvent(c, &env)
	}
}

// writePump drains the send channel onto the connection and keeps the
// connection alive with pings.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
			if c.gateway.metrics != nil {
				c.gateway.metrics.RecordWebSocketMessage("event", "out")
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
