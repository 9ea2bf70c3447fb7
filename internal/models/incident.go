package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/geo"
)

// ServiceType - категория экстренной службы
type ServiceType string

const (
	ServiceAmbulance   ServiceType = "ambulance"
	ServiceHospital    ServiceType = "hospital"
	ServicePolice      ServiceType = "police"
	ServiceFirebrigade ServiceType = "firebrigade"
)

// ServiceTypes - полный набор допустимых категорий
var ServiceTypes = []ServiceType{ServiceAmbulance, ServiceHospital, ServicePolice, ServiceFirebrigade}

// ParseServiceType сопоставляет строку с категорией без учета регистра
func ParseServiceType(s string) (ServiceType, bool) {
	candidate := ServiceType(strings.ToLower(strings.TrimSpace(s)))
	for _, t := range ServiceTypes {
		if t == candidate {
			return t, true
		}
	}
	return "", false
}

// IncidentStatus - состояние инцидента
type IncidentStatus string

const (
	StatusReported   IncidentStatus = "reported"
	StatusDispatched IncidentStatus = "dispatched"
	StatusEnroute    IncidentStatus = "enroute"
	StatusResolved   IncidentStatus = "resolved"
)

// allowedTransitions - переходы, доступные после назначения экипажа.
// reported -> dispatched выполняет только диспетчеризация.
var allowedTransitions = map[IncidentStatus][]IncidentStatus{
	StatusDispatched: {StatusEnroute, StatusResolved},
	StatusEnroute:    {StatusResolved},
}

// CanTransition проверяет, допустим ли ручной переход статуса
func (s IncidentStatus) CanTransition(to IncidentStatus) bool {
	for _, next := range allowedTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// MediaKind - тип вложения в сообщении об инциденте
type MediaKind string

const (
	MediaText  MediaKind = "text"
	MediaImage MediaKind = "image"
	MediaVideo MediaKind = "video"
	MediaAudio MediaKind = "audio"
)

// Media - вложение; Content хранит текст, URL или base64
type Media struct {
	Kind    MediaKind `json:"kind"`
	Content string    `json:"content"`
}

type Incident struct {
	ID                uuid.UUID      `json:"id"`
	ReporterID        uuid.UUID      `json:"reporter_id"`
	Description       string         `json:"description"`
	Media             []Media        `json:"media"`
	Location          geo.Point      `json:"location"`
	ClassifiedService ServiceType    `json:"classified_service,omitempty"`
	AssignedUnitID    *uuid.UUID     `json:"assigned_unit_id,omitempty"`
	Status            IncidentStatus `json:"status"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// IncidentStats - количество инцидентов по статусам за окно времени
type IncidentStats struct {
	WindowMinutes int                    `json:"window_minutes"`
	Total         int                    `json:"total"`
	ByStatus      map[IncidentStatus]int `json:"by_status"`
}
