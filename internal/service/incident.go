package service

//go:generate mockgen -source=incident.go -destination=mocks/mock_incident.go -package=mocks

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/config"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/notifier"
	"github.com/sirupsen/logrus"
)

// IncidentRepository определяет контракт для работы с бд инцидентов
type IncidentRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	// UpdateStatus сохраняет новый статус, только если текущий статус все еще from,
	// иначе ErrInvalidStatusTransition. releaseUnit в той же транзакции
	// освобождает экипаж, если он все еще закреплен за этим инцидентом
	UpdateStatus(ctx context.Context, incident *models.Incident, from models.IncidentStatus, releaseUnit bool) error
	CountByStatusSince(ctx context.Context, minutes int) (map[models.IncidentStatus]int, error)
	AddHistory(ctx context.Context, entry *models.HistoryEntry) error
	ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryEntry, error)
	GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	SetIncidentCache(ctx context.Context, incident *models.Incident) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// IncidentService определяет контракт бизнес-логики обработки вызовов
type IncidentService interface {
	ReportIncident(ctx context.Context, incident *models.Incident) (*DispatchResult, error)
	GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error)
	ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error)
	RedispatchIncident(ctx context.Context, id uuid.UUID) (*DispatchResult, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus, note string) (*models.Incident, error)
	GetHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryEntry, error)
	GetStats(ctx context.Context) (*models.IncidentStats, error)
}

type incidentService struct {
	repo       IncidentRepository
	dispatcher Dispatcher
	notifier   notifier.Notifier
	logger     *logrus.Logger
	cfg        *config.Config
}

func NewIncidentService(
	repo IncidentRepository,
	dispatcher Dispatcher,
	notifier notifier.Notifier,
	logger *logrus.Logger,
	cfg *config.Config,
) IncidentService {
	return &incidentService{
		repo:       repo,
		dispatcher: dispatcher,
		notifier:   notifier,
		logger:     logger,
		cfg:        cfg,
	}
}

// ReportIncident регистрирует новый вызов и сразу назначает экипаж
func (s *incidentService) ReportIncident(ctx context.Context, incident *models.Incident) (*DispatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "ReportIncident",
		"reporter_id": incident.ReporterID,
	})
	log.Info("Attempting to report a new incident")

	if !incident.Location.Valid() {
		log.Warn("Rejected incident without a valid location")
		return nil, fmt.Errorf("service: could not report incident: %w", ErrInvalidLocation)
	}
	if incident.ClassifiedService != "" {
		serviceType, ok := models.ParseServiceType(string(incident.ClassifiedService))
		if !ok {
			return nil, fmt.Errorf("service: could not report incident: %w", ErrInvalidServiceType)
		}
		incident.ClassifiedService = serviceType
	}

	incident.ID = uuid.New()
	incident.Status = models.StatusReported
	incident.AssignedUnitID = nil
	if incident.Media == nil {
		incident.Media = []models.Media{}
	}

	result, err := s.dispatcher.Dispatch(ctx, incident)
	if err != nil {
		log.WithError(err).Error("Failed to dispatch reported incident")
		return nil, fmt.Errorf("service: could not report incident: %w", err)
	}

	log.WithFields(logrus.Fields{
		"incident_id": incident.ID,
		"status":      incident.Status,
	}).Info("Incident reported successfully")
	return result, nil
}

// GetIncident получает инцидент по ID
func (s *incidentService) GetIncident(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "GetIncident",
		"incident_id": id,
	})
	log.Info("Fetching incident by ID")

	cached, err := s.repo.GetIncidentFromCache(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Failed to read incident from cache")
	}
	if cached != nil {
		log.Debug("Incident served from cache")
		return cached, nil
	}

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Error("Failed to get incident in repository")
		return nil, fmt.Errorf("service: could not get incident: %w", err)
	}

	if err := s.repo.SetIncidentCache(ctx, incident); err != nil {
		log.WithError(err).Warn("Failed to cache incident")
	}

	log.Info("Incident fetched successfully")
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (s *incidentService) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	if page < 1 {
		page = 1
	}

	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	log := s.logger.WithFields(logrus.Fields{
		"service":   "incident",
		"method":    "ListIncidents",
		"page":      page,
		"page_size": pageSize,
	})
	log.Info("Listing incidents")

	incidents, err := s.repo.ListIncidents(ctx, page, pageSize)
	if err != nil {
		log.WithError(err).Error("Failed to list incidents from repository")
		return nil, fmt.Errorf("service: could not list incidents: %w", err)
	}

	log.WithField("count", len(incidents)).Info("Incidents listed successfully")
	return incidents, nil
}

// RedispatchIncident повторяет поиск экипажа для инцидента, оставшегося без назначения
func (s *incidentService) RedispatchIncident(ctx context.Context, id uuid.UUID) (*DispatchResult, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "RedispatchIncident",
		"incident_id": id,
	})
	log.Info("Attempting to redispatch incident")

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to redispatch a non-existent incident")
		return nil, fmt.Errorf("service: incident with id %s not found for redispatch: %w", id, err)
	}

	if incident.Status != models.StatusReported || incident.AssignedUnitID != nil {
		log.WithField("status", incident.Status).Warn("Incident is not awaiting dispatch")
		return nil, fmt.Errorf("service: incident %s has status %s: %w", id, incident.Status, ErrIncidentNotDispatchable)
	}

	result, err := s.dispatcher.Dispatch(ctx, incident)
	if err != nil {
		log.WithError(err).Error("Failed to redispatch incident")
		return nil, fmt.Errorf("service: could not redispatch incident: %w", err)
	}

	log.WithField("status", incident.Status).Info("Incident redispatched")
	return result, nil
}

// UpdateStatus переводит назначенный инцидент в следующий статус.
// При закрытии инцидента экипаж освобождается.
func (s *incidentService) UpdateStatus(ctx context.Context, id uuid.UUID, status models.IncidentStatus, note string) (*models.Incident, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":     "incident",
		"method":      "UpdateStatus",
		"incident_id": id,
		"status":      status,
	})
	log.Info("Attempting to update incident status")

	incident, err := s.repo.GetByID(ctx, id)
	if err != nil {
		log.WithError(err).Warn("Attempted to update status of a non-existent incident")
		return nil, fmt.Errorf("service: incident with id %s not found for status update: %w", id, err)
	}

	if !incident.Status.CanTransition(status) {
		log.WithField("current_status", incident.Status).Warn("Rejected status transition")
		return nil, fmt.Errorf("service: %s -> %s: %w", incident.Status, status, ErrInvalidStatusTransition)
	}

	previous := incident.Status
	incident.Status = status
	if err := s.repo.UpdateStatus(ctx, incident, previous, status == models.StatusResolved); err != nil {
		if errors.Is(err, ErrInvalidStatusTransition) {
			log.WithError(err).Warn("Incident status changed concurrently")
		} else {
			log.WithError(err).Error("Failed to update incident status in repository")
		}
		return nil, fmt.Errorf("service: could not update incident status: %w", err)
	}

	entry := &models.HistoryEntry{
		UserID:     incident.ReporterID,
		IncidentID: incident.ID,
		Status:     status,
		Note:       note,
	}
	if err := s.repo.AddHistory(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to append incident history")
	}
	if err := s.repo.InvalidateIncidentCache(ctx, incident.ID); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	update := notifier.IncidentUpdate{
		IncidentID:     incident.ID,
		Status:         incident.Status,
		AssignedUnitID: incident.AssignedUnitID,
	}
	if err := s.notifier.Publish(ctx, notifier.Channel(incident.ID), update); err != nil {
		log.WithError(err).Warn("Failed to publish incident update")
	}

	log.Info("Incident status updated successfully")
	return incident, nil
}

// GetHistory возвращает журнал инцидентов пользователя
func (s *incidentService) GetHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryEntry, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "GetHistory",
		"user_id": userID,
	})

	entries, err := s.repo.ListHistory(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to list history from repository")
		return nil, fmt.Errorf("service: could not get history: %w", err)
	}

	log.WithField("count", len(entries)).Info("History fetched successfully")
	return entries, nil
}

// GetStats считает инциденты по статусам за настроенное окно времени
func (s *incidentService) GetStats(ctx context.Context) (*models.IncidentStats, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service": "incident",
		"method":  "GetStats",
		"window":  s.cfg.StatsTimeWindowMinutes,
	})

	counts, err := s.repo.CountByStatusSince(ctx, s.cfg.StatsTimeWindowMinutes)
	if err != nil {
		log.WithError(err).Error("Failed to get incident stats from repository")
		return nil, fmt.Errorf("service: could not get stats: %w", err)
	}

	stats := &models.IncidentStats{
		WindowMinutes: s.cfg.StatsTimeWindowMinutes,
		ByStatus:      make(map[models.IncidentStatus]int, len(counts)),
	}
	for status, count := range counts {
		stats.ByStatus[status] = count
		stats.Total += count
	}
	return stats, nil
}
