package service

//go:generate mockgen -source=dispatch.go -destination=mocks/mock_dispatch.go -package=mocks

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/classifier"
	"github.com/guardiannet/dispatch/internal/geo"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/notifier"
	"github.com/guardiannet/dispatch/internal/webhook"
	"github.com/sirupsen/logrus"
)

// maxDispatchRounds ограничивает повторные выборки кандидатов,
// когда все экипажи из выборки были заняты параллельными вызовами
const maxDispatchRounds = 3

// DispatchStore - операции хранилища, нужные диспетчеризации
type DispatchStore interface {
	FindEligibleUnits(ctx context.Context, serviceType models.ServiceType) ([]*models.Unit, error)
	// TryReserveUnit атомарно закрепляет экипаж за инцидентом и сохраняет инцидент.
	// false без ошибки означает, что экипаж уже занят или недоступен.
	// ErrIncidentNotDispatchable - инцидент уже назначен другим вызовом.
	TryReserveUnit(ctx context.Context, unitID uuid.UUID, incident *models.Incident) (bool, error)
	// SaveIncident сохраняет инцидент без экипажа; уже назначенный
	// инцидент не перезаписывается (ErrIncidentNotDispatchable)
	SaveIncident(ctx context.Context, incident *models.Incident) error
	AddHistory(ctx context.Context, entry *models.HistoryEntry) error
	InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error
}

// Classifier определяет категорию службы и никогда не возвращает ошибку
type Classifier interface {
	Classify(ctx context.Context, description string, media []models.Media) classifier.Result
}

// Dispatcher назначает ближайший свободный экипаж
type Dispatcher interface {
	Dispatch(ctx context.Context, incident *models.Incident) (*DispatchResult, error)
}

// DispatchResult - итог диспетчеризации. AssignedUnit == nil означает,
// что свободных экипажей нет; это не ошибка.
type DispatchResult struct {
	Incident           *models.Incident
	AssignedUnit       *models.Unit
	FallbackClassified bool
}

type dispatchEngine struct {
	store      DispatchStore
	classifier Classifier
	notifier   notifier.Notifier
	webhooks   webhook.WebhookPublisher
	logger     *logrus.Logger
	now        func() time.Time
}

func NewDispatchEngine(
	store DispatchStore,
	classifier Classifier,
	notifier notifier.Notifier,
	webhooks webhook.WebhookPublisher,
	logger *logrus.Logger,
) Dispatcher {
	return &dispatchEngine{
		store:      store,
		classifier: classifier,
		notifier:   notifier,
		webhooks:   webhooks,
		logger:     logger,
		now:        time.Now,
	}
}

// Dispatch классифицирует инцидент (если нужно), резервирует ближайший
// свободный экипаж и сохраняет результат. Ошибка возвращается только
// при сбое хранилища.
func (e *dispatchEngine) Dispatch(ctx context.Context, incident *models.Incident) (*DispatchResult, error) {
	log := e.logger.WithFields(logrus.Fields{
		"service":     "dispatch",
		"method":      "Dispatch",
		"incident_id": incident.ID,
	})

	if !incident.Location.Valid() {
		return nil, fmt.Errorf("service: cannot dispatch incident %s: %w", incident.ID, ErrInvalidLocation)
	}

	result := &DispatchResult{Incident: incident}

	if incident.ClassifiedService == "" {
		classification := e.classifier.Classify(ctx, incident.Description, incident.Media)
		incident.ClassifiedService = classification.Service
		result.FallbackClassified = classification.Fallback
	}
	log = log.WithField("classified_service", incident.ClassifiedService)

	unit, err := e.reserveNearest(ctx, incident, log)
	if err != nil {
		logStoreError(log, err, "Failed to reserve unit")
		return nil, fmt.Errorf("service: could not dispatch incident: %w", err)
	}

	if unit == nil {
		incident.Status = models.StatusReported
		incident.AssignedUnitID = nil
		if err := e.store.SaveIncident(ctx, incident); err != nil {
			logStoreError(log, err, "Failed to save undispatched incident")
			return nil, fmt.Errorf("service: could not save incident: %w", err)
		}
		log.Warn("No eligible unit available, incident left in reported state")
	} else {
		log.WithField("unit_id", unit.ID).Info("Unit assigned to incident")
	}

	result.AssignedUnit = unit
	e.announce(ctx, incident, unit, result.FallbackClassified, log)
	return result, nil
}

// logStoreError: проигранная гонка за инцидент - не сбой хранилища
func logStoreError(log *logrus.Entry, err error, msg string) {
	if errors.Is(err, ErrIncidentNotDispatchable) {
		log.WithError(err).Warn("Incident was dispatched concurrently")
		return
	}
	log.WithError(err).Error(msg)
}

// reserveNearest перебирает кандидатов по возрастанию расстояния,
// пока условное резервирование не удастся
func (e *dispatchEngine) reserveNearest(ctx context.Context, incident *models.Incident, log *logrus.Entry) (*models.Unit, error) {
	for round := 0; round < maxDispatchRounds; round++ {
		units, err := e.store.FindEligibleUnits(ctx, incident.ClassifiedService)
		if err != nil {
			return nil, fmt.Errorf("failed to find eligible units: %w", err)
		}

		candidates := RankCandidates(incident.Location, incident.ClassifiedService, units)
		if len(candidates) == 0 {
			return nil, nil
		}

		for _, candidate := range candidates {
			unit := candidate.Unit
			previousStatus := incident.Status
			previousUnit := incident.AssignedUnitID

			unitID := unit.ID
			incident.AssignedUnitID = &unitID
			incident.Status = models.StatusDispatched

			reserved, err := e.store.TryReserveUnit(ctx, unit.ID, incident)
			if err != nil || !reserved {
				incident.Status = previousStatus
				incident.AssignedUnitID = previousUnit
			}
			if err != nil {
				return nil, fmt.Errorf("failed to reserve unit %s: %w", unit.ID, err)
			}
			if reserved {
				incidentID := incident.ID
				unit.AssignedIncidentID = &incidentID
				return unit, nil
			}

			log.WithFields(logrus.Fields{
				"unit_id":     unit.ID,
				"distance_m":  candidate.DistanceMeters,
				"retry_round": round,
			}).Info("Unit claimed concurrently, trying next candidate")
		}
	}
	return nil, nil
}

// announce записывает историю и рассылает уведомления. Сбои здесь
// не влияют на результат диспетчеризации.
func (e *dispatchEngine) announce(ctx context.Context, incident *models.Incident, unit *models.Unit, fallback bool, log *logrus.Entry) {
	note := "no unit available"
	if unit != nil {
		note = fmt.Sprintf("assigned %s unit %s", unit.Type, unit.Name)
	}

	entry := &models.HistoryEntry{
		UserID:     incident.ReporterID,
		IncidentID: incident.ID,
		Status:     incident.Status,
		Note:       note,
	}
	if err := e.store.AddHistory(ctx, entry); err != nil {
		log.WithError(err).Warn("Failed to append incident history")
	}

	if err := e.store.InvalidateIncidentCache(ctx, incident.ID); err != nil {
		log.WithError(err).Warn("Failed to invalidate incident cache")
	}

	update := notifier.IncidentUpdate{
		IncidentID:     incident.ID,
		Status:         incident.Status,
		AssignedUnitID: incident.AssignedUnitID,
	}
	if err := e.notifier.Publish(ctx, notifier.Channel(incident.ID), update); err != nil {
		log.WithError(err).Warn("Failed to publish incident update")
	}

	event := webhook.DispatchEvent{
		IncidentID:         incident.ID,
		ReporterID:         incident.ReporterID,
		Service:            incident.ClassifiedService,
		Status:             incident.Status,
		AssignedUnitID:     incident.AssignedUnitID,
		Location:           incident.Location,
		FallbackClassified: fallback,
		Timestamp:          e.now().UTC(),
	}
	if unit != nil {
		event.UnitName = unit.Name
	}
	if err := e.webhooks.Publish(ctx, event); err != nil {
		log.WithError(err).Warn("Failed to enqueue dispatch webhook")
	}
}

// Candidate - подходящий экипаж и расстояние до инцидента
type Candidate struct {
	Unit           *models.Unit
	DistanceMeters float64
}

// RankCandidates отбирает подходящие экипажи и сортирует их по расстоянию.
// При равном расстоянии выше экипаж с меньшим id.
func RankCandidates(location geo.Point, service models.ServiceType, units []*models.Unit) []Candidate {
	candidates := make([]Candidate, 0, len(units))
	for _, unit := range units {
		if unit == nil || !unit.EligibleFor(service) {
			continue
		}
		candidates = append(candidates, Candidate{
			Unit:           unit,
			DistanceMeters: geo.Distance(location, unit.Location),
		})
	}

	slices.SortFunc(candidates, func(a, b Candidate) int {
		if c := cmp.Compare(a.DistanceMeters, b.DistanceMeters); c != 0 {
			return c
		}
		return cmp.Compare(a.Unit.ID.String(), b.Unit.ID.String())
	})
	return candidates
}
