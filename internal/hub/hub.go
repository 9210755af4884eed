// Package hub fans accepted pipeline events out to live dashboard
// subscribers over websockets. Delivery is fire-and-forget: a slow or dead
// subscriber never blocks ingestion, and a dropped frame is not retried —
// subscribers reconcile by re-fetching over HTTP on reconnect.
package hub

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/gfranca/leadflow/internal/bus"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Same-host dashboard only; the listener binds loopback by default.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub owns the ephemeral subscriber set. It holds no persistent state.
type Hub struct {
	bus   *bus.Bus
	grace time.Duration

	clients    map[*Client]bool
	register   chan *Client
	unregister chan *Client

	logger *zap.Logger
}

// New creates a hub with the given subscriber replay grace buffer.
func New(b *bus.Bus, grace time.Duration, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		bus:        b,
		grace:      grace,
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		logger:     logger,
	}
}

// Run subscribes to the bus and serves the subscriber set until ctx is
// cancelled.
func (h *Hub) Run(ctx context.Context) {
	events, unsub := h.bus.Subscribe(256)
	defer unsub()

	h.logger.Info("hub started")
	for {
		select {
		case client := <-h.register:
			h.clients[client] = true
			h.logger.Info("subscriber attached",
				zap.Int("subscribers", len(h.clients)))

		case client := <-h.unregister:
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
				h.logger.Info("subscriber detached",
					zap.Int("subscribers", len(h.clients)))
			}

		case evt := <-events:
			h.dispatch(evt)

		case <-ctx.Done():
			for client := range h.clients {
				close(client.send)
				delete(h.clients, client)
			}
			h.logger.Info("hub stopped")
			return
		}
	}
}

// dispatch translates one bus event into subscriber frames. The new-message
// frame is marshalled per client because the freshness flag depends on each
// subscriber's own attach time.
func (h *Hub) dispatch(evt bus.Event) {
	switch e := evt.(type) {
	case bus.NewMessage:
		for client := range h.clients {
			client.enqueue(marshalFrame(FrameNewMessage, NewMessagePayload{
				ContactID: e.Lead.ID,
				Message:   e.Message,
				Contact:   e.Lead,
				New:       client.fresh(e.Message.OccurredAt),
			}))
		}

	case bus.ContactsChanged:
		frame := marshalFrame(FrameContactsChanged, nil)
		for client := range h.clients {
			client.enqueue(frame)
		}

	case bus.ConnectionChanged:
		frame := marshalFrame(FrameConnectionChanged, ConnectionChangedPayload{
			Connected: e.Connected,
			At:        e.At,
		})
		for client := range h.clients {
			client.enqueue(frame)
		}
	}
}

// ServeWS upgrades an HTTP request to a websocket subscription. The
// subscriber's replay gate is anchored at this handshake.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	client := &Client{
		hub:          h,
		conn:         conn,
		send:         make(chan []byte, sendQueueSize),
		subscribedAt: time.Now(),
		logger:       h.logger,
	}
	h.register <- client

	go client.writePump()
	go client.readPump()
}
