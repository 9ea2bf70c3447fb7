// Package realtime доставляет обновления инцидентов подписанным websocket-клиентам.
package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/auth"
	"github.com/guardiannet/dispatch/internal/notifier"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	MessageSubscribe      = "subscribe"
	MessageUnsubscribe    = "unsubscribe"
	MessageSubscribed     = "subscribed"
	MessageUnsubscribed   = "unsubscribed"
	MessageIncidentUpdate = "incident:update"
	MessageError          = "error"
)

// AccessFunc решает, может ли пользователь следить за инцидентом
type AccessFunc func(ctx context.Context, identity auth.Identity, incidentID uuid.UUID) (bool, error)

// Hub держит подключенных клиентов и их подписки на инциденты
type Hub struct {
	redisClient *redis.Client
	access      AccessFunc
	logger      *logrus.Logger

	mu      sync.Mutex
	clients map[*Client]struct{}
	rooms   map[uuid.UUID]map[*Client]struct{}
}

// inboundMessage - сообщение от клиента
type inboundMessage struct {
	Type       string `json:"type"`
	IncidentID string `json:"incident_id"`
}

// outboundMessage - сообщение клиенту
type outboundMessage struct {
	Type       string          `json:"type"`
	IncidentID *uuid.UUID      `json:"incident_id,omitempty"`
	Data       json.RawMessage `json:"data,omitempty"`
	Error      string          `json:"error,omitempty"`
}

func NewHub(redisClient *redis.Client, access AccessFunc, logger *logrus.Logger) *Hub {
	return &Hub{
		redisClient: redisClient,
		access:      access,
		logger:      logger,
		clients:     make(map[*Client]struct{}),
		rooms:       make(map[uuid.UUID]map[*Client]struct{}),
	}
}

// Run подписывается на каналы инцидентов в Redis и пересылает сообщения
// клиентам до отмены ctx. При выходе все соединения закрываются.
func (h *Hub) Run(ctx context.Context) error {
	pubsub := h.redisClient.PSubscribe(ctx, notifier.ChannelPattern)
	defer pubsub.Close()

	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("realtime: failed to subscribe to %s: %w", notifier.ChannelPattern, err)
	}
	h.logger.WithField("pattern", notifier.ChannelPattern).Info("Realtime hub subscribed to incident updates")

	h.consume(ctx, pubsub.Channel())
	h.closeAll()

	h.logger.Info("Realtime hub stopped")
	return nil
}

func (h *Hub) consume(ctx context.Context, messages <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-messages:
			if !ok {
				return
			}
			incidentID, err := notifier.IncidentIDFromChannel(msg.Channel)
			if err != nil {
				h.logger.WithError(err).Warn("Skipping message from unexpected channel")
				continue
			}
			h.Broadcast(incidentID, []byte(msg.Payload))
		}
	}
}

// Broadcast отправляет обновление всем подписчикам инцидента.
// Клиент с переполненным буфером отключается.
func (h *Hub) Broadcast(incidentID uuid.UUID, update []byte) {
	frame, err := json.Marshal(outboundMessage{
		Type: MessageIncidentUpdate,
		Data: json.RawMessage(update),
	})
	if err != nil {
		h.logger.WithError(err).WithField("incident_id", incidentID).Warn("Dropping malformed incident update")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	for client := range h.rooms[incidentID] {
		select {
		case client.send <- frame:
		default:
			h.logger.WithFields(logrus.Fields{
				"user_id":     client.identity.UserID,
				"incident_id": incidentID,
			}).Warn("Dropping slow realtime client")
			h.removeLocked(client)
		}
	}
}

// ServeWS переводит запрос в websocket и регистрирует клиента
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, identity auth.Identity) error {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("realtime: failed to upgrade connection: %w", err)
	}

	client := newClient(h, conn, identity)
	h.register(client)

	go client.writePump()
	go client.readPump()
	return nil
}

// ClientCount - число подключенных клиентов
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) register(c *Client) {
	h.mu.Lock()
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.logger.WithField("user_id", c.identity.UserID).Debug("Realtime client connected")
}

func (h *Hub) unregister(c *Client) {
	h.mu.Lock()
	h.removeLocked(c)
	h.mu.Unlock()
}

// removeLocked удаляет клиента из всех комнат и закрывает его очередь; вызывать под h.mu
func (h *Hub) removeLocked(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	for incidentID := range c.rooms {
		h.leaveLocked(c, incidentID)
	}
	close(c.send)
}

func (h *Hub) leaveLocked(c *Client, incidentID uuid.UUID) {
	delete(c.rooms, incidentID)
	room := h.rooms[incidentID]
	delete(room, c)
	if len(room) == 0 {
		delete(h.rooms, incidentID)
	}
}

// subscribe добавляет клиента в комнату инцидента; false если клиент уже отключен
func (h *Hub) subscribe(c *Client, incidentID uuid.UUID) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	room, ok := h.rooms[incidentID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[incidentID] = room
	}
	room[c] = struct{}{}
	c.rooms[incidentID] = struct{}{}
	return true
}

func (h *Hub) unsubscribe(c *Client, incidentID uuid.UUID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	h.leaveLocked(c, incidentID)
}

// enqueue ставит сообщение в очередь клиента без блокировки
func (h *Hub) enqueue(c *Client, msg outboundMessage) {
	frame, err := json.Marshal(msg)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal realtime message")
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	select {
	case c.send <- frame:
	default:
		h.removeLocked(c)
	}
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for c := range h.clients {
		h.removeLocked(c)
	}
}
