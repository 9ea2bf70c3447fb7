package webhook

//go:generate mockgen -source=publisher.go -destination=mocks/mock_publisher.go -package=mocks

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/geo"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/redis/go-redis/v9"
)

const (
	webhookQueueKey = "webhook_events"
)

// DispatchEvent - данные вебхука о результате диспетчеризации
type DispatchEvent struct {
	IncidentID         uuid.UUID             `json:"incident_id"`
	ReporterID         uuid.UUID             `json:"reporter_id"`
	Service            models.ServiceType    `json:"service"`
	Status             models.IncidentStatus `json:"status"`
	AssignedUnitID     *uuid.UUID            `json:"assigned_unit_id"`
	UnitName           string                `json:"unit_name,omitempty"`
	Location           geo.Point             `json:"location"`
	FallbackClassified bool                  `json:"fallback_classified"`
	Timestamp          time.Time             `json:"timestamp"`
}

const (
	EventIncidentDispatched = "incident.dispatched"
	EventIncidentUnassigned = "incident.unassigned"
)

// Type - тип события: назначен экипаж или покрытия нет
func (e DispatchEvent) Type() string {
	if e.AssignedUnitID != nil {
		return EventIncidentDispatched
	}
	return EventIncidentUnassigned
}

// WebhookPublisher - интерфейс для публикации вебхуков
type WebhookPublisher interface {
	Publish(ctx context.Context, event DispatchEvent) error
}

// RedisWebhookPublisher - реализация WebhookPublisher, использующая Redis
type RedisWebhookPublisher struct {
	redisClient *redis.Client
}

// NewRedisWebhookPublisher создает новый RedisWebhookPublisher
func NewRedisWebhookPublisher(client *redis.Client) *RedisWebhookPublisher {
	return &RedisWebhookPublisher{
		redisClient: client,
	}
}

// Publish публикует событие вебхука в очередь Redis
func (p *RedisWebhookPublisher) Publish(ctx context.Context, event DispatchEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal webhook event: %w", err)
	}

	// LPUSH в голову списка, воркер забирает с хвоста
	if err := p.redisClient.LPush(ctx, webhookQueueKey, payload).Err(); err != nil {
		return fmt.Errorf("failed to publish webhook event to Redis: %w", err)
	}
	return nil
}
