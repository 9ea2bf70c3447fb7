package webhook

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/guardiannet/dispatch/internal/config"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const (
	// SignatureHeader - заголовок с HMAC-подписью тела запроса
	SignatureHeader = "X-Webhook-Signature"
	// EventHeader - заголовок с типом события
	EventHeader = "X-Webhook-Event"

	// deadLetterKey хранит события, которые не удалось доставить
	deadLetterKey = webhookQueueKey + ":failed"
	deadLetterCap = 1000
)

// WebhookWorker забирает события диспетчеризации из очереди и доставляет их получателю
type WebhookWorker struct {
	redisClient *redis.Client
	logger      *logrus.Logger
	cfg         *config.Config
	httpClient  *http.Client
}

func NewWebhookWorker(redisClient *redis.Client, logger *logrus.Logger, cfg *config.Config) *WebhookWorker {
	return &WebhookWorker{
		redisClient: redisClient,
		logger:      logger,
		cfg:         cfg,
		httpClient: &http.Client{
			Timeout: cfg.WebhookTimeout,
		},
	}
}

// Run обрабатывает очередь до отмены контекста
func (w *WebhookWorker) Run(ctx context.Context) {
	log := w.logger.WithField("component", "webhook_worker")
	log.Info("Starting webhook worker...")
	defer log.Info("Stopping webhook worker.")

	for ctx.Err() == nil {
		// BRPOP блокируется до появления события; 0 - без таймаута
		result, err := w.redisClient.BRPop(ctx, 0, webhookQueueKey).Result()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return
			}
			log.WithError(err).Error("Failed to pop webhook event from Redis")
			sleepCtx(ctx, w.cfg.WebhookTimeout)
			continue
		}

		// result[0] - ключ, result[1] - значение
		payload := result[1]
		var event DispatchEvent
		if err := json.Unmarshal([]byte(payload), &event); err != nil {
			log.WithError(err).Error("Dropping malformed webhook event")
			continue
		}

		if !w.processWebhookEvent(ctx, event, payload) && ctx.Err() == nil {
			w.deadLetter(ctx, log, payload)
		}
	}
}

// deadLetter откладывает недоставленное событие в ограниченный список
func (w *WebhookWorker) deadLetter(ctx context.Context, log *logrus.Entry, payload string) {
	_, err := w.redisClient.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.LPush(ctx, deadLetterKey, payload)
		pipe.LTrim(ctx, deadLetterKey, 0, deadLetterCap-1)
		return nil
	})
	if err != nil {
		log.WithError(err).Error("Failed to store undelivered webhook event")
	}
}

// processWebhookEvent доставляет событие с экспоненциальной задержкой между попытками.
// Возвращает false, только если получатель так и не ответил 2xx;
// при выключенной доставке событие считается обработанным.
func (w *WebhookWorker) processWebhookEvent(ctx context.Context, event DispatchEvent, rawPayload string) bool {
	log := w.logger.WithFields(logrus.Fields{
		"incident_id": event.IncidentID,
		"event":       event.Type(),
	})

	if w.cfg.WebhookURL == "" {
		log.Debug("Webhook URL is not configured. Skipping webhook delivery.")
		return true
	}

	attempts := max(w.cfg.WebhookMaxRetries, 1)
	delay := w.cfg.WebhookBaseDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		err := w.deliver(ctx, event, rawPayload)
		if err == nil {
			log.WithField("attempt", attempt).Info("Webhook delivered")
			return true
		}

		log.WithError(err).WithFields(logrus.Fields{
			"attempt":      attempt,
			"last_attempt": attempt == attempts,
			"retry_in":     delay,
		}).Warn("Webhook delivery failed")

		if attempt == attempts || !sleepCtx(ctx, delay) {
			break
		}
		delay *= 2
	}

	log.Errorf("Failed to deliver webhook after %d attempts", attempts)
	return false
}

// deliver выполняет одну попытку доставки
func (w *WebhookWorker) deliver(ctx context.Context, event DispatchEvent, rawPayload string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.cfg.WebhookURL, bytes.NewBufferString(rawPayload))
	if err != nil {
		return fmt.Errorf("webhook: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(EventHeader, event.Type())
	if w.cfg.WebhookSecret != "" {
		req.Header.Set(SignatureHeader, generateHMACSHA256(rawPayload, w.cfg.WebhookSecret))
	}

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("webhook: send: %w", err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook: unexpected status %d", resp.StatusCode)
	}
	return nil
}

// sleepCtx ждет d или отмены контекста; false означает отмену
func sleepCtx(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

// generateHMACSHA256 генерирует HMAC-SHA256 подпись для данных
func generateHMACSHA256(data, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(data))
	return hex.EncodeToString(h.Sum(nil))
}
