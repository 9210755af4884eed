package hub

import (
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8 * 1024

	// sendQueueSize bounds the per-subscriber delivery queue. On overflow the
	// oldest frame is dropped; the dashboard reconciles by re-fetching.
	sendQueueSize = 64
)

// Client is one attached dashboard subscriber.
type Client struct {
	hub  *Hub
	conn *websocket.Conn
	send chan []byte

	// subscribedAt is stamped at handshake and anchors this subscriber's
	// replay gate.
	subscribedAt time.Time

	logger *zap.Logger
}

// fresh applies the subscriber-side replay gate to a message timestamp.
func (c *Client) fresh(occurredAt int64) bool {
	return FreshAt(occurredAt, c.subscribedAt, c.hub.grace)
}

// enqueue queues a frame for delivery, dropping the oldest queued frame if
// the subscriber is not keeping up. Never blocks the caller.
func (c *Client) enqueue(frame []byte) {
	for {
		select {
		case c.send <- frame:
			return
		default:
		}
		select {
		case <-c.send:
		default:
		}
	}
}

// readPump drains the connection until it closes. Subscribers are read-only;
// inbound frames are discarded, but the pump is what notices a dead peer.
func (c *Client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Debug("subscriber read error", zap.Error(err))
			}
			return
		}
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
		case frame, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
