package v1

import (
	"time"

	"github.com/google/uuid"
)

// GeoPoint - точка в формате GeoJSON, coordinates = [longitude, latitude]
// @Description Точка GeoJSON
type GeoPoint struct {
	Type        string    `json:"type" validate:"omitempty,eq=Point" example:"Point"`
	Coordinates []float64 `json:"coordinates" validate:"required,len=2"`
}

// MediaRequest DTO вложения к сообщению
// @Description DTO вложения к сообщению
type MediaRequest struct {
	Type    string `json:"type" validate:"required,oneof=text image video audio voice"`
	Content string `json:"content" validate:"required"`
}

// ReportIncidentRequest DTO для сообщения об инциденте
// @Description DTO для сообщения об инциденте
type ReportIncidentRequest struct {
	Description string         `json:"description,omitempty" validate:"max=4000"`
	Media       []MediaRequest `json:"media,omitempty" validate:"max=10,dive"`
	Location    GeoPoint       `json:"location"`
	ServiceType string         `json:"service_type,omitempty" validate:"omitempty,oneof=ambulance hospital police firebrigade"`
}

// UpdateStatusRequest DTO для смены статуса инцидента
// @Description DTO для смены статуса инцидента
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=enroute resolved"`
	Note   string `json:"note,omitempty" validate:"max=500"`
}

// UnitRequest DTO для создания или обновления экипажа
// @Description DTO для создания или обновления экипажа. Без id создается новый экипаж.
type UnitRequest struct {
	ID       *uuid.UUID `json:"id,omitempty"`
	Name     string     `json:"name" validate:"required,min=2,max=255"`
	Type     string     `json:"type" validate:"required,oneof=ambulance hospital police firebrigade"`
	Location GeoPoint   `json:"location"`
	IsActive *bool      `json:"is_active,omitempty"`
}

// ToggleUnitRequest DTO для включения и выключения экипажа
// @Description DTO для включения и выключения экипажа
type ToggleUnitRequest struct {
	UnitID   uuid.UUID `json:"unit_id" validate:"required"`
	IsActive *bool     `json:"is_active" validate:"required"`
}

// MediaResponse DTO вложения в ответе
type MediaResponse struct {
	Type    string `json:"type"`
	Content string `json:"content"`
}

// IncidentResponse DTO для ответа с информацией об инциденте
// @Description DTO для ответа с информацией об инциденте
type IncidentResponse struct {
	ID                uuid.UUID       `json:"id"`
	ReporterID        uuid.UUID       `json:"reporter_id"`
	Description       string          `json:"description,omitempty"`
	Media             []MediaResponse `json:"media"`
	Location          GeoPoint        `json:"location"`
	ClassifiedService string          `json:"classified_service,omitempty"`
	AssignedUnitID    *uuid.UUID      `json:"assigned_unit_id"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// UnitResponse DTO для ответа с информацией об экипаже
// @Description DTO для ответа с информацией об экипаже
type UnitResponse struct {
	ID                 uuid.UUID  `json:"id"`
	Name               string     `json:"name"`
	Type               string     `json:"type"`
	Location           GeoPoint   `json:"location"`
	IsActive           bool       `json:"is_active"`
	AssignedIncidentID *uuid.UUID `json:"assigned_incident_id"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// DispatchResponse DTO результата диспетчеризации; assigned_unit = null, если свободных экипажей нет
// @Description DTO результата диспетчеризации
type DispatchResponse struct {
	Incident           *IncidentResponse `json:"incident"`
	AssignedUnit       *UnitResponse     `json:"assigned_unit"`
	FallbackClassified bool              `json:"fallback_classified"`
}

// HistoryEntryResponse DTO записи журнала
// @Description DTO записи журнала
type HistoryEntryResponse struct {
	ID         int64     `json:"id"`
	IncidentID uuid.UUID `json:"incident_id"`
	Status     string    `json:"status"`
	Note       string    `json:"note,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// StatsResponse DTO для ответа со статистикой
// @Description DTO для ответа со статистикой
type StatsResponse struct {
	WindowMinutes int            `json:"window_minutes"`
	Total         int            `json:"total"`
	ByStatus      map[string]int `json:"by_status"`
}
