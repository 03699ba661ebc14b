package websocket

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/0xmhha/tron-indexer-go/internal/constants"
	"github.com/0xmhha/tron-indexer-go/pkg/events"
)

const (
	writeWait  = constants.DefaultWSWriteTimeout
	pongWait   = constants.DefaultWSPongTimeout
	pingPeriod = constants.DefaultWSPingInterval

	// Maximum message size allowed from peer
	maxMessageSize = 4096

	sendBufferSize = 256
)

// Client is one WebSocket connection with at most one bus subscription
type Client struct {
	server *Server
	conn   *websocket.Conn
	id     events.SubscriptionID
	send   chan []byte

	done      chan struct{}
	closeOnce sync.Once

	logger *zap.Logger
}

func newClient(s *Server, conn *websocket.Conn, id events.SubscriptionID) *Client {
	return &Client{
		server: s,
		conn:   conn,
		id:     id,
		send:   make(chan []byte, sendBufferSize),
		done:   make(chan struct{}),
		logger: s.logger.With(zap.String("client", string(id))),
	}
}

// close releases the subscription and the connection; safe to call repeatedly
func (c *Client) close() {
	c.closeOnce.Do(func() {
		close(c.done)
		if c.server.bus != nil {
			c.server.bus.Unsubscribe(c.id)
		}
		c.conn.Close()
		c.server.remove(c)
	})
}

func (c *Client) readPump() {
	defer c.close()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.logger.Warn("WebSocket read error", zap.Error(err))
			}
			return
		}
		c.handleMessage(message)
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return

		case message := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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

func (c *Client) handleMessage(message []byte) {
	var msg Message
	if err := json.Unmarshal(message, &msg); err != nil {
		c.sendError("invalid message format")
		return
	}

	switch msg.Type {
	case "subscribe":
		c.handleSubscribe(msg.Payload)
	case "unsubscribe":
		if c.server.bus != nil {
			c.server.bus.Unsubscribe(c.id)
		}
		c.sendSuccess("unsubscribed")
	case "ping":
		c.sendMessage(Message{Type: "pong"})
	default:
		c.sendError("unknown message type: " + msg.Type)
	}
}

func (c *Client) handleSubscribe(payload json.RawMessage) {
	var req SubscribeRequest
	if len(payload) > 0 {
		if err := json.Unmarshal(payload, &req); err != nil {
			c.sendError("invalid subscribe request")
			return
		}
	}
	if c.server.bus == nil {
		c.sendError("event stream unavailable")
		return
	}

	eventTypes, ok := parseEventTypes(req.EventTypes)
	if !ok {
		c.sendError("invalid event type")
		return
	}

	var filter *events.Filter
	if len(req.Topics) > 0 || len(req.Addresses) > 0 {
		filter = &events.Filter{Topics: req.Topics, Addresses: req.Addresses}
	}

	// Resubscribing under the same ID closes the previous channel
	sub := c.server.bus.SubscribeWithOptions(c.id, eventTypes, filter, events.SubscribeOptions{
		ChannelSize: sendBufferSize,
		ReplayLast:  req.ReplayLast,
	})
	if sub == nil {
		c.sendError("subscription rejected")
		return
	}

	c.sendSuccess("subscribed")
	go c.forward(sub)

	c.logger.Debug("Client subscribed",
		zap.Strings("eventTypes", req.EventTypes),
		zap.Strings("topics", req.Topics))
}

func (c *Client) forward(sub *events.Subscription) {
	for {
		select {
		case <-c.done:
			return
		case event, ok := <-sub.Channel:
			if !ok {
				return
			}
			payload, err := json.Marshal(EventPayload{Type: string(event.Type()), Data: event})
			if err != nil {
				c.logger.Error("Failed to marshal event", zap.Error(err))
				continue
			}
			c.sendMessage(Message{Type: "event", Payload: payload})
		}
	}
}

func parseEventTypes(names []string) ([]events.EventType, bool) {
	if len(names) == 0 {
		return []events.EventType{events.EventTypeBlock, events.EventTypeTransaction}, true
	}
	out := make([]events.EventType, 0, len(names))
	for _, n := range names {
		switch events.EventType(n) {
		case events.EventTypeBlock, events.EventTypeTransaction:
			out = append(out, events.EventType(n))
		default:
			return nil, false
		}
	}
	return out, true
}

func (c *Client) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("Failed to marshal message", zap.Error(err))
		return
	}

	select {
	case <-c.done:
	case c.send <- data:
	default:
		c.logger.Warn("Client send buffer full, dropping message")
	}
}

func (c *Client) sendError(errMsg string) {
	payload, _ := json.Marshal(ErrorMessage{Error: errMsg})
	c.sendMessage(Message{Type: "error", Payload: payload})
}

func (c *Client) sendSuccess(message string) {
	payload, _ := json.Marshal(SuccessMessage{Message: message})
	c.sendMessage(Message{Type: "success", Payload: payload})
}
