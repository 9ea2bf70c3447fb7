package service

//go:generate mockgen -source=unit.go -destination=mocks/mock_unit.go -package=mocks

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/sirupsen/logrus"
)

// UnitRepository определяет контракт для работы с бд экипажей
type UnitRepository interface {
	CreateUnit(ctx context.Context, unit *models.Unit) error
	// UpdateUnit меняет только паспортные данные экипажа владельца и не трогает назначение
	UpdateUnit(ctx context.Context, unit *models.Unit) error
	ListUnitsByOwner(ctx context.Context, adminID uuid.UUID) ([]*models.Unit, error)
	SetUnitActive(ctx context.Context, adminID, unitID uuid.UUID, isActive bool) (*models.Unit, error)
}

// UnitService - управление экипажами со стороны оператора
type UnitService interface {
	UpsertUnit(ctx context.Context, adminID uuid.UUID, unit *models.Unit) error
	ListUnits(ctx context.Context, adminID uuid.UUID) ([]*models.Unit, error)
	ToggleUnit(ctx context.Context, adminID, unitID uuid.UUID, isActive bool) (*models.Unit, error)
}

type unitService struct {
	repo   UnitRepository
	logger *logrus.Logger
}

func NewUnitService(repo UnitRepository, logger *logrus.Logger) UnitService {
	return &unitService{
		repo:   repo,
		logger: logger,
	}
}

// UpsertUnit создает экипаж (unit.ID == uuid.Nil) или обновляет экипаж оператора
func (s *unitService) UpsertUnit(ctx context.Context, adminID uuid.UUID, unit *models.Unit) error {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "unit",
		"method":   "UpsertUnit",
		"admin_id": adminID,
		"name":     unit.Name,
	})

	if !unit.Location.Valid() {
		return fmt.Errorf("service: could not save unit: %w", ErrInvalidLocation)
	}
	if _, ok := models.ParseServiceType(string(unit.Type)); !ok {
		return fmt.Errorf("service: could not save unit: %w", ErrInvalidServiceType)
	}

	unit.AdminOwnerID = adminID

	if unit.ID == uuid.Nil {
		unit.ID = uuid.New()
		unit.AssignedIncidentID = nil
		if err := s.repo.CreateUnit(ctx, unit); err != nil {
			log.WithError(err).Error("Failed to create unit in repository")
			return fmt.Errorf("service: could not create unit: %w", err)
		}
		log.WithField("unit_id", unit.ID).Info("Unit created successfully")
		return nil
	}

	if err := s.repo.UpdateUnit(ctx, unit); err != nil {
		log.WithError(err).WithField("unit_id", unit.ID).Error("Failed to update unit in repository")
		return fmt.Errorf("service: could not update unit: %w", err)
	}
	log.WithField("unit_id", unit.ID).Info("Unit updated successfully")
	return nil
}

// ListUnits возвращает экипажи оператора, новые первыми
func (s *unitService) ListUnits(ctx context.Context, adminID uuid.UUID) ([]*models.Unit, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":  "unit",
		"method":   "ListUnits",
		"admin_id": adminID,
	})

	units, err := s.repo.ListUnitsByOwner(ctx, adminID)
	if err != nil {
		log.WithError(err).Error("Failed to list units from repository")
		return nil, fmt.Errorf("service: could not list units: %w", err)
	}

	log.WithField("count", len(units)).Info("Units listed successfully")
	return units, nil
}

// ToggleUnit включает или выключает экипаж. Выключенный экипаж не участвует в подборе,
// текущее назначение при этом сохраняется.
func (s *unitService) ToggleUnit(ctx context.Context, adminID, unitID uuid.UUID, isActive bool) (*models.Unit, error) {
	log := s.logger.WithFields(logrus.Fields{
		"service":   "unit",
		"method":    "ToggleUnit",
		"admin_id":  adminID,
		"unit_id":   unitID,
		"is_active": isActive,
	})

	unit, err := s.repo.SetUnitActive(ctx, adminID, unitID, isActive)
	if err != nil {
		log.WithError(err).Warn("Failed to toggle unit")
		return nil, fmt.Errorf("service: could not toggle unit: %w", err)
	}

	log.Info("Unit availability changed")
	return unit, nil
}
