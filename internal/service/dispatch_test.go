package service_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/classifier"
	"github.com/guardiannet/dispatch/internal/config"
	"github.com/guardiannet/dispatch/internal/geo"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/notifier"
	notifier_mocks "github.com/guardiannet/dispatch/internal/notifier/mocks"
	"github.com/guardiannet/dispatch/internal/service"
	"github.com/guardiannet/dispatch/internal/service/mocks"
	"github.com/guardiannet/dispatch/internal/webhook"
	webhook_mocks "github.com/guardiannet/dispatch/internal/webhook/mocks"
	"github.com/guardiannet/dispatch/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var incidentLocation = geo.Point{Longitude: 77.2090, Latitude: 28.6139}

type dispatchMocks struct {
	store      *mocks.MockDispatchStore
	classifier *mocks.MockClassifier
	notifier   *notifier_mocks.MockNotifier
	webhooks   *webhook_mocks.MockWebhookPublisher
}

// newTestDispatchEngine - движок диспетчеризации на моках
func newTestDispatchEngine(t *testing.T) (service.Dispatcher, *dispatchMocks) {
	ctrl := gomock.NewController(t)
	m := &dispatchMocks{
		store:      mocks.NewMockDispatchStore(ctrl),
		classifier: mocks.NewMockClassifier(ctrl),
		notifier:   notifier_mocks.NewMockNotifier(ctrl),
		webhooks:   webhook_mocks.NewMockWebhookPublisher(ctrl),
	}
	engine := service.NewDispatchEngine(m.store, m.classifier, m.notifier, m.webhooks, logger.NewDiscard())
	return engine, m
}

// expectSideEffects разрешает запись истории, сброс кеша и рассылки
func (m *dispatchMocks) expectSideEffects() {
	m.store.EXPECT().AddHistory(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.store.EXPECT().InvalidateIncidentCache(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
}

func newIncident() *models.Incident {
	return &models.Incident{
		ID:          uuid.New(),
		ReporterID:  uuid.New(),
		Description: "person collapsed on the street",
		Media:       []models.Media{},
		Location:    incidentLocation,
		Status:      models.StatusReported,
	}
}

func newUnit(serviceType models.ServiceType, lng, lat float64) *models.Unit {
	return &models.Unit{
		ID:       uuid.New(),
		Name:     fmt.Sprintf("%s-%.2f-%.2f", serviceType, lng, lat),
		Type:     serviceType,
		Location: geo.Point{Longitude: lng, Latitude: lat},
		IsActive: true,
	}
}

func TestDispatch_AssignsNearestUnit(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	near := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	far := newUnit(models.ServiceAmbulance, 77.30, 28.70)

	// Ожидания
	m.classifier.EXPECT().
		Classify(ctx, incident.Description, incident.Media).
		Return(classifier.Result{Service: models.ServiceAmbulance}).
		Times(1)
	m.store.EXPECT().
		FindEligibleUnits(ctx, models.ServiceAmbulance).
		Return([]*models.Unit{far, near}, nil).
		Times(1)
	m.store.EXPECT().
		TryReserveUnit(ctx, near.ID, incident).
		DoAndReturn(func(_ context.Context, _ uuid.UUID, inc *models.Incident) (bool, error) {
			// инцидент сохраняется уже с назначением
			assert.Equal(t, models.StatusDispatched, inc.Status)
			require.NotNil(t, inc.AssignedUnitID)
			assert.Equal(t, near.ID, *inc.AssignedUnitID)
			return true, nil
		}).
		Times(1)
	m.store.EXPECT().SaveIncident(gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().AddHistory(ctx, gomock.Any()).Return(nil).Times(1)
	m.store.EXPECT().InvalidateIncidentCache(ctx, incident.ID).Return(nil).Times(1)

	var published notifier.IncidentUpdate
	m.notifier.EXPECT().
		Publish(ctx, notifier.Channel(incident.ID), gomock.Any()).
		DoAndReturn(func(_ context.Context, _ string, update notifier.IncidentUpdate) error {
			published = update
			return nil
		}).
		Times(1)
	m.webhooks.EXPECT().Publish(ctx, gomock.Any()).Return(nil).Times(1)

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, near.ID, result.AssignedUnit.ID)
	assert.False(t, result.FallbackClassified)
	assert.Equal(t, models.StatusDispatched, incident.Status)
	assert.Equal(t, models.ServiceAmbulance, incident.ClassifiedService)
	require.NotNil(t, near.AssignedIncidentID)
	assert.Equal(t, incident.ID, *near.AssignedIncidentID)
	assert.Nil(t, far.AssignedIncidentID)

	assert.Equal(t, incident.ID, published.IncidentID)
	assert.Equal(t, models.StatusDispatched, published.Status)
	require.NotNil(t, published.AssignedUnitID)
	assert.Equal(t, near.ID, *published.AssignedUnitID)
}

func TestDispatch_SkipsIneligibleUnits(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance

	wrongType := newUnit(models.ServicePolice, 77.2091, 28.6140)
	inactive := newUnit(models.ServiceAmbulance, 77.2092, 28.6140)
	inactive.IsActive = false
	busy := newUnit(models.ServiceAmbulance, 77.2093, 28.6140)
	busyWith := uuid.New()
	busy.AssignedIncidentID = &busyWith
	eligible := newUnit(models.ServiceAmbulance, 77.25, 28.65)

	// Ожидания
	m.classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().
		FindEligibleUnits(ctx, models.ServiceAmbulance).
		Return([]*models.Unit{wrongType, inactive, busy, eligible}, nil).
		Times(1)
	m.store.EXPECT().TryReserveUnit(ctx, eligible.ID, incident).Return(true, nil).Times(1)
	m.expectSideEffects()

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, eligible.ID, result.AssignedUnit.ID)
	assert.Equal(t, busyWith, *busy.AssignedIncidentID)
}

func TestDispatch_FallbackClassification(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.Description = "smoke and fire in the building"
	unit := newUnit(models.ServiceFirebrigade, 77.21, 28.62)

	// Ожидания
	m.classifier.EXPECT().
		Classify(ctx, incident.Description, incident.Media).
		Return(classifier.Result{Service: models.ServiceFirebrigade, Fallback: true, Reason: "classifier unhealthy"}).
		Times(1)
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceFirebrigade).Return([]*models.Unit{unit}, nil).Times(1)
	m.store.EXPECT().TryReserveUnit(ctx, unit.ID, incident).Return(true, nil).Times(1)
	m.store.EXPECT().AddHistory(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.store.EXPECT().InvalidateIncidentCache(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).AnyTimes()

	var event webhook.DispatchEvent
	m.webhooks.EXPECT().
		Publish(ctx, gomock.Any()).
		DoAndReturn(func(_ context.Context, e webhook.DispatchEvent) error {
			event = e
			return nil
		}).
		Times(1)

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	assert.True(t, result.FallbackClassified)
	assert.Equal(t, models.ServiceFirebrigade, incident.ClassifiedService)
	assert.True(t, event.FallbackClassified)
	assert.Equal(t, models.ServiceFirebrigade, event.Service)
	assert.Equal(t, unit.Name, event.UnitName)
	assert.Equal(t, models.StatusDispatched, event.Status)
}

func TestDispatch_NoCoverage(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServicePolice

	// Ожидания
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServicePolice).Return([]*models.Unit{}, nil).Times(1)
	m.store.EXPECT().TryReserveUnit(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().SaveIncident(ctx, incident).Return(nil).Times(1)
	m.store.EXPECT().AddHistory(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.store.EXPECT().InvalidateIncidentCache(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Return(nil).AnyTimes()
	m.notifier.EXPECT().
		Publish(ctx, notifier.Channel(incident.ID), notifier.IncidentUpdate{
			IncidentID: incident.ID,
			Status:     models.StatusReported,
		}).
		Return(nil).
		Times(1)

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, result.AssignedUnit)
	assert.Equal(t, models.StatusReported, incident.Status)
	assert.Nil(t, incident.AssignedUnitID)
}

func TestDispatch_ConflictFallsThroughToNextCandidate(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance
	near := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	far := newUnit(models.ServiceAmbulance, 77.30, 28.70)

	// Ожидания
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceAmbulance).Return([]*models.Unit{near, far}, nil).Times(1)
	gomock.InOrder(
		m.store.EXPECT().
			TryReserveUnit(ctx, near.ID, incident).
			Return(false, nil),
		m.store.EXPECT().
			TryReserveUnit(ctx, far.ID, incident).
			DoAndReturn(func(_ context.Context, _ uuid.UUID, inc *models.Incident) (bool, error) {
				assert.Equal(t, far.ID, *inc.AssignedUnitID)
				return true, nil
			}),
	)
	m.expectSideEffects()

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, far.ID, result.AssignedUnit.ID)
	assert.Nil(t, near.AssignedIncidentID)
	assert.Equal(t, far.ID, *incident.AssignedUnitID)
}

func TestDispatch_RequeriesAfterAllCandidatesClaimed(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance
	first := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	second := newUnit(models.ServiceAmbulance, 77.30, 28.70)

	// Ожидания
	gomock.InOrder(
		m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceAmbulance).Return([]*models.Unit{first}, nil),
		m.store.EXPECT().TryReserveUnit(ctx, first.ID, incident).Return(false, nil),
		m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceAmbulance).Return([]*models.Unit{second}, nil),
		m.store.EXPECT().TryReserveUnit(ctx, second.ID, incident).Return(true, nil),
	)
	m.expectSideEffects()

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, second.ID, result.AssignedUnit.ID)
}

func TestDispatch_GivesUpAfterRepeatedConflicts(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance

	// Ожидания: каждая выборка возвращает экипаж, который тут же занимают
	m.store.EXPECT().
		FindEligibleUnits(ctx, models.ServiceAmbulance).
		DoAndReturn(func(context.Context, models.ServiceType) ([]*models.Unit, error) {
			return []*models.Unit{newUnit(models.ServiceAmbulance, 77.21, 28.62)}, nil
		}).
		Times(3)
	m.store.EXPECT().TryReserveUnit(ctx, gomock.Any(), incident).Return(false, nil).Times(3)
	m.store.EXPECT().SaveIncident(ctx, incident).Return(nil).Times(1)
	m.expectSideEffects()

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	assert.Nil(t, result.AssignedUnit)
	assert.Equal(t, models.StatusReported, incident.Status)
	assert.Nil(t, incident.AssignedUnitID)
}

func TestDispatch_ReservationFailure(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance
	unit := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	dbErr := errors.New("connection reset")

	// Ожидания
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceAmbulance).Return([]*models.Unit{unit}, nil).Times(1)
	m.store.EXPECT().TryReserveUnit(ctx, unit.ID, incident).Return(false, dbErr).Times(1)
	m.store.EXPECT().SaveIncident(gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().AddHistory(gomock.Any(), gomock.Any()).Times(0)
	m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, dbErr)
	assert.Nil(t, result)
	assert.Equal(t, models.StatusReported, incident.Status)
	assert.Nil(t, incident.AssignedUnitID)
	assert.Nil(t, unit.AssignedIncidentID)
}

func TestDispatch_IncidentAlreadyDispatchedElsewhere(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance
	near := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	far := newUnit(models.ServiceAmbulance, 77.30, 28.70)
	taken := fmt.Errorf("incident %s already dispatched: %w", incident.ID, service.ErrIncidentNotDispatchable)

	// Ожидания: после отказа хранилища следующий кандидат не пробуется
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceAmbulance).Return([]*models.Unit{far, near}, nil).Times(1)
	m.store.EXPECT().TryReserveUnit(ctx, near.ID, incident).Return(false, taken).Times(1)
	m.store.EXPECT().TryReserveUnit(ctx, far.ID, gomock.Any()).Times(0)
	m.store.EXPECT().SaveIncident(gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().AddHistory(gomock.Any(), gomock.Any()).Times(0)
	m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrIncidentNotDispatchable)
	assert.Nil(t, result)
	assert.Equal(t, models.StatusReported, incident.Status)
	assert.Nil(t, incident.AssignedUnitID)
}

func TestDispatch_QueryFailure(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceHospital
	dbErr := errors.New("db down")

	// Ожидания
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceHospital).Return(nil, dbErr).Times(1)
	m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := engine.Dispatch(ctx, incident)

	// Проверки
	assert.ErrorIs(t, err, dbErr)
}

func TestDispatch_SaveFailureWithoutUnits(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceHospital
	dbErr := errors.New("disk full")

	// Ожидания
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceHospital).Return(nil, nil).Times(1)
	m.store.EXPECT().SaveIncident(ctx, incident).Return(dbErr).Times(1)
	m.notifier.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.webhooks.EXPECT().Publish(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := engine.Dispatch(ctx, incident)

	// Проверки
	assert.ErrorIs(t, err, dbErr)
}

func TestDispatch_NotificationFailureDoesNotFailDispatch(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	ctx := context.Background()
	incident := newIncident()
	incident.ClassifiedService = models.ServiceAmbulance
	unit := newUnit(models.ServiceAmbulance, 77.21, 28.62)

	// Ожидания
	m.store.EXPECT().FindEligibleUnits(ctx, models.ServiceAmbulance).Return([]*models.Unit{unit}, nil).Times(1)
	m.store.EXPECT().TryReserveUnit(ctx, unit.ID, incident).Return(true, nil).Times(1)
	m.store.EXPECT().AddHistory(ctx, gomock.Any()).Return(errors.New("history down")).Times(1)
	m.store.EXPECT().InvalidateIncidentCache(ctx, incident.ID).Return(errors.New("redis down")).Times(1)
	m.notifier.EXPECT().Publish(ctx, gomock.Any(), gomock.Any()).Return(errors.New("redis down")).Times(1)
	m.webhooks.EXPECT().Publish(ctx, gomock.Any()).Return(errors.New("redis down")).Times(1)

	// Действие
	result, err := engine.Dispatch(ctx, incident)

	// Проверки
	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, unit.ID, result.AssignedUnit.ID)
	assert.Equal(t, models.StatusDispatched, incident.Status)
}

func TestDispatch_InvalidLocation(t *testing.T) {
	// Подготовка
	engine, m := newTestDispatchEngine(t)
	incident := newIncident()
	incident.Location = geo.Point{Longitude: 200, Latitude: 28.6}

	// Ожидания
	m.classifier.EXPECT().Classify(gomock.Any(), gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().FindEligibleUnits(gomock.Any(), gomock.Any()).Times(0)

	// Действие
	_, err := engine.Dispatch(context.Background(), incident)

	// Проверки
	assert.ErrorIs(t, err, service.ErrInvalidLocation)
}

func TestRankCandidates(t *testing.T) {
	lowID := uuid.MustParse("00000000-0000-0000-0000-000000000001")
	highID := uuid.MustParse("00000000-0000-0000-0000-000000000002")

	tieHigh := newUnit(models.ServicePolice, 77.22, 28.62)
	tieHigh.ID = highID
	tieLow := newUnit(models.ServicePolice, 77.22, 28.62)
	tieLow.ID = lowID
	nearest := newUnit(models.ServicePolice, 77.2091, 28.6139)
	other := newUnit(models.ServiceHospital, 77.2090, 28.6139)

	candidates := service.RankCandidates(incidentLocation, models.ServicePolice, []*models.Unit{tieHigh, nil, other, tieLow, nearest})

	require.Len(t, candidates, 3)
	assert.Equal(t, nearest.ID, candidates[0].Unit.ID)
	assert.Equal(t, lowID, candidates[1].Unit.ID)
	assert.Equal(t, highID, candidates[2].Unit.ID)
	assert.Equal(t, candidates[1].DistanceMeters, candidates[2].DistanceMeters)
	assert.Less(t, candidates[0].DistanceMeters, candidates[1].DistanceMeters)
}

func TestRankCandidates_Empty(t *testing.T) {
	assert.Empty(t, service.RankCandidates(incidentLocation, models.ServiceAmbulance, nil))
}

// memoryDispatchStore - потокобезопасное хранилище в памяти с той же
// семантикой условного резервирования, что и у Postgres
type memoryDispatchStore struct {
	mu        sync.Mutex
	units     map[uuid.UUID]*models.Unit
	incidents map[uuid.UUID]models.Incident
}

func newMemoryDispatchStore(units ...*models.Unit) *memoryDispatchStore {
	s := &memoryDispatchStore{
		units:     make(map[uuid.UUID]*models.Unit, len(units)),
		incidents: make(map[uuid.UUID]models.Incident),
	}
	for _, u := range units {
		s.units[u.ID] = u
	}
	return s
}

func (s *memoryDispatchStore) FindEligibleUnits(_ context.Context, serviceType models.ServiceType) ([]*models.Unit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*models.Unit, 0, len(s.units))
	for _, u := range s.units {
		if u.EligibleFor(serviceType) {
			snapshot := *u
			result = append(result, &snapshot)
		}
	}
	return result, nil
}

// dispatchableLocked повторяет условную запись инцидента в Postgres:
// поверх назначенного инцидента ничего не пишется
func (s *memoryDispatchStore) dispatchableLocked(id uuid.UUID) error {
	stored, ok := s.incidents[id]
	if ok && (stored.Status != models.StatusReported || stored.AssignedUnitID != nil) {
		return fmt.Errorf("incident %s already dispatched: %w", id, service.ErrIncidentNotDispatchable)
	}
	return nil
}

func (s *memoryDispatchStore) TryReserveUnit(_ context.Context, unitID uuid.UUID, incident *models.Incident) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.dispatchableLocked(incident.ID); err != nil {
		return false, err
	}
	u, ok := s.units[unitID]
	if !ok || !u.EligibleFor(incident.ClassifiedService) {
		return false, nil
	}
	incidentID := incident.ID
	u.AssignedIncidentID = &incidentID
	s.incidents[incident.ID] = *incident
	return true, nil
}

func (s *memoryDispatchStore) SaveIncident(_ context.Context, incident *models.Incident) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.dispatchableLocked(incident.ID); err != nil {
		return err
	}
	s.incidents[incident.ID] = *incident
	return nil
}

// Методы ниже делают memoryDispatchStore еще и service.IncidentRepository

func (s *memoryDispatchStore) GetByID(_ context.Context, id uuid.UUID) (*models.Incident, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.incidents[id]
	if !ok {
		return nil, service.ErrNotFound
	}
	return &stored, nil
}

func (s *memoryDispatchStore) ListIncidents(context.Context, int, int) ([]*models.Incident, error) {
	return nil, nil
}

func (s *memoryDispatchStore) UpdateStatus(_ context.Context, incident *models.Incident, from models.IncidentStatus, releaseUnit bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.incidents[incident.ID]
	if !ok || stored.Status != from {
		return fmt.Errorf("incident %s is no longer %s: %w", incident.ID, from, service.ErrInvalidStatusTransition)
	}
	stored.Status = incident.Status
	s.incidents[incident.ID] = stored

	if releaseUnit && stored.AssignedUnitID != nil {
		u := s.units[*stored.AssignedUnitID]
		if u != nil && u.AssignedIncidentID != nil && *u.AssignedIncidentID == incident.ID {
			u.AssignedIncidentID = nil
		}
	}
	return nil
}

func (s *memoryDispatchStore) CountByStatusSince(context.Context, int) (map[models.IncidentStatus]int, error) {
	return nil, nil
}

func (s *memoryDispatchStore) ListHistory(context.Context, uuid.UUID) ([]*models.HistoryEntry, error) {
	return nil, nil
}

func (s *memoryDispatchStore) GetIncidentFromCache(context.Context, uuid.UUID) (*models.Incident, error) {
	return nil, nil
}

func (s *memoryDispatchStore) SetIncidentCache(context.Context, *models.Incident) error { return nil }

func (s *memoryDispatchStore) AddHistory(context.Context, *models.HistoryEntry) error { return nil }

func (s *memoryDispatchStore) InvalidateIncidentCache(context.Context, uuid.UUID) error { return nil }

type staticClassifier models.ServiceType

func (c staticClassifier) Classify(context.Context, string, []models.Media) classifier.Result {
	return classifier.Result{Service: models.ServiceType(c)}
}

type discardNotifier struct{}

func (discardNotifier) Publish(context.Context, string, notifier.IncidentUpdate) error { return nil }

type discardWebhooks struct{}

func (discardWebhooks) Publish(context.Context, webhook.DispatchEvent) error { return nil }

func TestDispatch_ConcurrentIncidentsNeverShareUnit(t *testing.T) {
	const (
		unitCount     = 8
		incidentCount = 40
	)

	units := make([]*models.Unit, 0, unitCount)
	for i := 0; i < unitCount; i++ {
		units = append(units, newUnit(models.ServiceAmbulance, 77.21+float64(i)*0.001, 28.62))
	}
	store := newMemoryDispatchStore(units...)
	engine := service.NewDispatchEngine(store, staticClassifier(models.ServiceAmbulance), discardNotifier{}, discardWebhooks{}, logger.NewDiscard())

	results := make([]*service.DispatchResult, incidentCount)
	errs := make([]error, incidentCount)

	var wg sync.WaitGroup
	for i := 0; i < incidentCount; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = engine.Dispatch(context.Background(), newIncident())
		}(i)
	}
	wg.Wait()

	assigned := make(map[uuid.UUID]uuid.UUID)
	unassigned := 0
	for i := range results {
		require.NoError(t, errs[i])
		if results[i].AssignedUnit == nil {
			unassigned++
			assert.Equal(t, models.StatusReported, results[i].Incident.Status)
			continue
		}
		unitID := results[i].AssignedUnit.ID
		previous, dup := assigned[unitID]
		assert.False(t, dup, "unit %s assigned to %s and %s", unitID, previous, results[i].Incident.ID)
		assigned[unitID] = results[i].Incident.ID
	}

	assert.Len(t, assigned, unitCount)
	assert.Equal(t, incidentCount-unitCount, unassigned)

	// состояние хранилища согласовано в обе стороны
	for unitID, incidentID := range assigned {
		stored := store.units[unitID]
		require.NotNil(t, stored.AssignedIncidentID)
		assert.Equal(t, incidentID, *stored.AssignedIncidentID)
		assert.Equal(t, unitID, *store.incidents[incidentID].AssignedUnitID)
	}
	assert.Len(t, store.incidents, incidentCount)
}

func TestDispatch_StaleCopyCannotRebindIncident(t *testing.T) {
	near := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	far := newUnit(models.ServiceAmbulance, 77.30, 28.70)
	store := newMemoryDispatchStore(near, far)
	engine := service.NewDispatchEngine(store, staticClassifier(models.ServiceAmbulance), discardNotifier{}, discardWebhooks{}, logger.NewDiscard())

	incident := newIncident()
	incident.Status = models.StatusReported
	require.NoError(t, store.SaveIncident(context.Background(), incident))

	// обе копии прочитаны до диспетчеризации
	first, stale := *incident, *incident

	result, err := engine.Dispatch(context.Background(), &first)
	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, near.ID, result.AssignedUnit.ID)

	result, err = engine.Dispatch(context.Background(), &stale)
	require.Error(t, err)
	assert.ErrorIs(t, err, service.ErrIncidentNotDispatchable)
	assert.Nil(t, result)

	assert.Nil(t, far.AssignedIncidentID, "second unit must stay free")
	assert.Equal(t, models.StatusReported, stale.Status)
	assert.Nil(t, stale.AssignedUnitID)
	stored := store.incidents[incident.ID]
	require.NotNil(t, stored.AssignedUnitID)
	assert.Equal(t, near.ID, *stored.AssignedUnitID)
}

func TestRedispatch_ConcurrentCallsBindOneUnit(t *testing.T) {
	const callers = 8

	for iter := 0; iter < 50; iter++ {
		units := make([]*models.Unit, 0, callers)
		for i := 0; i < callers; i++ {
			units = append(units, newUnit(models.ServiceAmbulance, 77.21+float64(i)*0.001, 28.62))
		}
		store := newMemoryDispatchStore(units...)
		engine := service.NewDispatchEngine(store, staticClassifier(models.ServiceAmbulance), discardNotifier{}, discardWebhooks{}, logger.NewDiscard())
		svc := service.NewIncidentService(store, engine, discardNotifier{}, logger.NewDiscard(), &config.Config{})

		incident := newIncident()
		incident.Status = models.StatusReported
		require.NoError(t, store.SaveIncident(context.Background(), incident))

		results := make([]*service.DispatchResult, callers)
		errs := make([]error, callers)
		var wg sync.WaitGroup
		for i := 0; i < callers; i++ {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i], errs[i] = svc.RedispatchIncident(context.Background(), incident.ID)
			}(i)
		}
		wg.Wait()

		succeeded := 0
		for i := range results {
			if errs[i] != nil {
				assert.ErrorIs(t, errs[i], service.ErrIncidentNotDispatchable)
				continue
			}
			succeeded++
			require.NotNil(t, results[i].AssignedUnit)
		}
		require.Equal(t, 1, succeeded)

		var bound []uuid.UUID
		for _, u := range units {
			if u.AssignedIncidentID != nil {
				assert.Equal(t, incident.ID, *u.AssignedIncidentID)
				bound = append(bound, u.ID)
			}
		}
		require.Len(t, bound, 1, "incident bound to several units")
		stored := store.incidents[incident.ID]
		assert.Equal(t, models.StatusDispatched, stored.Status)
		require.NotNil(t, stored.AssignedUnitID)
		assert.Equal(t, bound[0], *stored.AssignedUnitID)
	}
}

func TestUpdateStatus_ConcurrentEnrouteAndResolveStayConsistent(t *testing.T) {
	for iter := 0; iter < 50; iter++ {
		unit := newUnit(models.ServiceAmbulance, 77.21, 28.62)
		store := newMemoryDispatchStore(unit)
		engine := service.NewDispatchEngine(store, staticClassifier(models.ServiceAmbulance), discardNotifier{}, discardWebhooks{}, logger.NewDiscard())
		svc := service.NewIncidentService(store, engine, discardNotifier{}, logger.NewDiscard(), &config.Config{})

		incident := newIncident()
		_, err := engine.Dispatch(context.Background(), incident)
		require.NoError(t, err)
		require.NotNil(t, unit.AssignedIncidentID)

		var (
			wg                     sync.WaitGroup
			enrouteErr, resolveErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, enrouteErr = svc.UpdateStatus(context.Background(), incident.ID, models.StatusEnroute, "")
		}()
		go func() {
			defer wg.Done()
			_, resolveErr = svc.UpdateStatus(context.Background(), incident.ID, models.StatusResolved, "")
		}()
		wg.Wait()

		for _, err := range []error{enrouteErr, resolveErr} {
			if err != nil {
				assert.ErrorIs(t, err, service.ErrInvalidStatusTransition)
			}
		}

		stored := store.incidents[incident.ID]
		switch stored.Status {
		case models.StatusResolved:
			assert.NoError(t, resolveErr)
			assert.Nil(t, unit.AssignedIncidentID, "resolved incident must free its unit")
		case models.StatusEnroute:
			// resolve проиграл гонку: его устаревшая запись не прошла
			assert.Error(t, resolveErr)
			assert.NoError(t, enrouteErr)
			require.NotNil(t, unit.AssignedIncidentID, "enroute incident must keep its unit")
			assert.Equal(t, incident.ID, *unit.AssignedIncidentID)
		default:
			t.Fatalf("unexpected final status %s", stored.Status)
		}
	}
}

func TestDispatch_EndToEndNearestAmbulance(t *testing.T) {
	near := newUnit(models.ServiceAmbulance, 77.21, 28.62)
	far := newUnit(models.ServiceAmbulance, 77.30, 28.70)
	store := newMemoryDispatchStore(near, far)
	engine := service.NewDispatchEngine(store, staticClassifier(models.ServiceAmbulance), discardNotifier{}, discardWebhooks{}, logger.NewDiscard())

	incident := newIncident()
	result, err := engine.Dispatch(context.Background(), incident)

	require.NoError(t, err)
	require.NotNil(t, result.AssignedUnit)
	assert.Equal(t, near.ID, result.AssignedUnit.ID)
	require.NotNil(t, near.AssignedIncidentID)
	assert.Equal(t, incident.ID, *near.AssignedIncidentID)
	assert.Nil(t, far.AssignedIncidentID)
	assert.Equal(t, models.StatusDispatched, store.incidents[incident.ID].Status)
}
