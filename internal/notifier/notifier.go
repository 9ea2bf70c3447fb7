// Package notifier рассылает изменения статуса инцидентов подписчикам через Redis Pub/Sub.
package notifier

//go:generate mockgen -source=notifier.go -destination=mocks/mock_notifier.go -package=mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "incident:"

// ChannelPattern - шаблон PSUBSCRIBE для всех каналов инцидентов
const ChannelPattern = channelPrefix + "*"

// IncidentUpdate - сообщение об изменении статуса инцидента
type IncidentUpdate struct {
	IncidentID     uuid.UUID             `json:"incidentId"`
	Status         models.IncidentStatus `json:"status"`
	AssignedUnitID *uuid.UUID            `json:"assignedUnitId"`
}

// Channel возвращает имя канала инцидента
func Channel(incidentID uuid.UUID) string {
	return channelPrefix + incidentID.String()
}

// IncidentIDFromChannel извлекает id инцидента из имени канала
func IncidentIDFromChannel(channel string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(channel, channelPrefix)
	if !ok {
		return uuid.Nil, fmt.Errorf("channel %q is not an incident channel", channel)
	}
	return uuid.Parse(raw)
}

// Notifier - публикация без подтверждения доставки
type Notifier interface {
	Publish(ctx context.Context, channel string, update IncidentUpdate) error
}

// RedisNotifier - реализация Notifier поверх Redis PUBLISH
type RedisNotifier struct {
	redisClient *redis.Client
}

// NewRedisNotifier создает новый RedisNotifier
func NewRedisNotifier(client *redis.Client) *RedisNotifier {
	return &RedisNotifier{redisClient: client}
}

// Publish публикует обновление в канал инцидента
func (n *RedisNotifier) Publish(ctx context.Context, channel string, update IncidentUpdate) error {
	payload, err := json.Marshal(update)
	if err != nil {
		return fmt.Errorf("failed to marshal incident update: %w", err)
	}

	if err := n.redisClient.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish incident update to Redis: %w", err)
	}
	return nil
}
