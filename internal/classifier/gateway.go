// Package classifier обращается к внешнему ML-сервису классификации
// и деградирует до эвристики по ключевым словам, когда сервис недоступен.
package classifier

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/guardiannet/dispatch/internal/config"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Result - итог классификации
type Result struct {
	Service  models.ServiceType
	Fallback bool
	Reason   string
}

// healthState - закешированный результат проверки доступности.
// Поля обновляются независимо, последняя запись побеждает.
type healthState struct {
	lastCheckedAt    atomic.Int64 // unix nano
	lastKnownHealthy atomic.Bool
}

// Gateway - клиент ML-сервиса классификации
type Gateway struct {
	baseURL         string
	httpClient      *http.Client
	classifyTimeout time.Duration
	healthTimeout   time.Duration
	healthInterval  time.Duration
	logger          *logrus.Logger

	health       healthState
	healthChecks singleflight.Group
	now          func() time.Time
}

// NewGateway создает клиент классификатора по конфигурации
func NewGateway(cfg *config.Config, logger *logrus.Logger) *Gateway {
	return &Gateway{
		baseURL:         cfg.ClassifierURL,
		httpClient:      &http.Client{},
		classifyTimeout: cfg.ClassifierTimeout,
		healthTimeout:   cfg.ClassifierHealthTimeout,
		healthInterval:  cfg.ClassifierHealthInterval,
		logger:          logger,
		now:             time.Now,
	}
}

type classifyRequest struct {
	Text  *string `json:"text"`
	Image *string `json:"image"`
	Video *string `json:"video"`
	Audio *string `json:"audio"`
}

type classifyResponse struct {
	Service string `json:"service"`
}

type healthResponse struct {
	Status string `json:"status"`
}

// HealthCheck возвращает закешированное состояние сервиса,
// обновляя его не чаще одного раза за интервал
func (g *Gateway) HealthCheck(ctx context.Context) bool {
	last := g.health.lastCheckedAt.Load()
	if last != 0 && g.now().Sub(time.Unix(0, last)) < g.healthInterval {
		return g.health.lastKnownHealthy.Load()
	}

	// Проверка общая для всех ждущих вызовов, поэтому отмена одного
	// клиента не должна попасть в кеш; длительность ограничивает healthTimeout
	checkCtx := context.WithoutCancel(ctx)
	ch := g.healthChecks.DoChan("health", func() (interface{}, error) {
		healthy := g.checkHealth(checkCtx)
		g.health.lastKnownHealthy.Store(healthy)
		g.health.lastCheckedAt.Store(g.now().UnixNano())
		return healthy, nil
	})

	select {
	case <-ctx.Done():
		return false
	case res := <-ch:
		return res.Val.(bool)
	}
}

func (g *Gateway) checkHealth(ctx context.Context) bool {
	log := g.logger.WithField("component", "classifier")

	ctx, cancel := context.WithTimeout(ctx, g.healthTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, g.baseURL+"/health", nil)
	if err != nil {
		log.WithError(err).Warn("Failed to build classifier health request")
		return false
	}

	resp, err := g.httpClient.Do(req)
	if err != nil {
		log.WithError(err).Warn("Classifier health check failed")
		return false
	}
	defer resp.Body.Close()

	var body healthResponse
	if resp.StatusCode != http.StatusOK || json.NewDecoder(resp.Body).Decode(&body) != nil {
		log.WithField("status_code", resp.StatusCode).Warn("Classifier health check returned unexpected response")
		return false
	}

	healthy := body.Status == "healthy"
	log.WithField("healthy", healthy).Info("Classifier health checked")
	return healthy
}

func (g *Gateway) markUnhealthy() {
	g.health.lastKnownHealthy.Store(false)
	g.health.lastCheckedAt.Store(g.now().UnixNano())
}

// Classify определяет категорию службы. Ошибки ML-сервиса не возвращаются:
// при любой проблеме используется Fallback.
func (g *Gateway) Classify(ctx context.Context, description string, media []models.Media) Result {
	text := reportText(description, media)
	log := g.logger.WithFields(logrus.Fields{
		"component":   "classifier",
		"method":      "Classify",
		"text_length": len(text),
		"media_count": len(media),
	})

	if !g.HealthCheck(ctx) {
		return g.fallback(log, text, "classifier unhealthy")
	}

	service, err := g.callClassify(ctx, text, media)
	if err != nil {
		var netErr net.Error
		// Отмена запроса клиентом не говорит о состоянии ML-сервиса
		if ctx.Err() == nil && (errors.As(err, &netErr) || errors.Is(err, context.DeadlineExceeded)) {
			g.markUnhealthy()
		}
		log.WithError(err).Warn("Classifier call failed")
		return g.fallback(log, text, "classifier error")
	}

	parsed, ok := models.ParseServiceType(service)
	if !ok {
		log.WithField("service", service).Warn("Classifier returned unknown category")
		return g.fallback(log, text, "invalid category")
	}

	log.WithField("service", parsed).Info("Incident classified by ML service")
	return Result{Service: parsed}
}

func (g *Gateway) fallback(log *logrus.Entry, text, reason string) Result {
	service := Fallback(text)
	log.WithFields(logrus.Fields{"service": service, "reason": reason}).Warn("Using fallback classification")
	return Result{Service: service, Fallback: true, Reason: reason}
}

func (g *Gateway) callClassify(ctx context.Context, text string, media []models.Media) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.classifyTimeout)
	defer cancel()

	payload, err := json.Marshal(buildClassifyRequest(text, media))
	if err != nil {
		return "", fmt.Errorf("failed to marshal classify request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+"/classify", bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create classify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("classify request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("classify request returned status %d", resp.StatusCode)
	}

	var body classifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode classify response: %w", err)
	}
	return body.Service, nil
}

// buildClassifyRequest раскладывает вложения по типам; для каждого типа берется последнее
func buildClassifyRequest(text string, media []models.Media) classifyRequest {
	var req classifyRequest
	if text != "" {
		req.Text = &text
	}
	for i := range media {
		if media[i].Content == "" {
			continue
		}
		content := media[i].Content
		switch media[i].Kind {
		case models.MediaImage:
			req.Image = &content
		case models.MediaVideo:
			req.Video = &content
		case models.MediaAudio:
			req.Audio = &content
		}
	}
	return req
}
