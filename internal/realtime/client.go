package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/guardiannet/dispatch/internal/auth"
	"github.com/sirupsen/logrus"
)

const (
	writeWait          = 10 * time.Second
	pongWait           = 60 * time.Second
	pingPeriod         = (pongWait * 9) / 10
	maxMessageSize     = 512
	sendBufferSize     = 64
	accessCheckTimeout = 5 * time.Second
)

// Клиенты аутентифицируются токеном в query, поэтому Origin не проверяется
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// Client - одно websocket-соединение
type Client struct {
	hub      *Hub
	conn     *websocket.Conn
	send     chan []byte
	identity auth.Identity
	// rooms защищен hub.mu
	rooms map[uuid.UUID]struct{}
}

func newClient(hub *Hub, conn *websocket.Conn, identity auth.Identity) *Client {
	return &Client{
		hub:      hub,
		conn:     conn,
		send:     make(chan []byte, sendBufferSize),
		identity: identity,
		rooms:    make(map[uuid.UUID]struct{}),
	}
}

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
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.logger.WithError(err).WithField("user_id", c.identity.UserID).Warn("Realtime connection closed unexpectedly")
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
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
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
	var msg inboundMessage
	if err := json.Unmarshal(message, &msg); err != nil {
		c.hub.enqueue(c, outboundMessage{Type: MessageError, Error: "malformed message"})
		return
	}

	incidentID, err := uuid.Parse(msg.IncidentID)
	if err != nil {
		c.hub.enqueue(c, outboundMessage{Type: MessageError, Error: "invalid incident_id"})
		return
	}

	log := c.hub.logger.WithFields(logrus.Fields{
		"user_id":     c.identity.UserID,
		"incident_id": incidentID,
		"type":        msg.Type,
	})

	switch msg.Type {
	case MessageSubscribe:
		ctx, cancel := context.WithTimeout(context.Background(), accessCheckTimeout)
		allowed, err := c.hub.access(ctx, c.identity, incidentID)
		cancel()
		if err != nil {
			log.WithError(err).Warn("Realtime access check failed")
			c.hub.enqueue(c, outboundMessage{Type: MessageError, IncidentID: &incidentID, Error: "incident not available"})
			return
		}
		if !allowed {
			log.Warn("Realtime subscription denied")
			c.hub.enqueue(c, outboundMessage{Type: MessageError, IncidentID: &incidentID, Error: "forbidden"})
			return
		}
		if c.hub.subscribe(c, incidentID) {
			log.Debug("Realtime client subscribed")
			c.hub.enqueue(c, outboundMessage{Type: MessageSubscribed, IncidentID: &incidentID})
		}

	case MessageUnsubscribe:
		c.hub.unsubscribe(c, incidentID)
		c.hub.enqueue(c, outboundMessage{Type: MessageUnsubscribed, IncidentID: &incidentID})

	default:
		c.hub.enqueue(c, outboundMessage{Type: MessageError, Error: "unknown message type"})
	}
}
