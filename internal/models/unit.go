package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/geo"
)

// Unit - экипаж экстренной службы
type Unit struct {
	ID                 uuid.UUID   `json:"id"`
	Name               string      `json:"name"`
	Type               ServiceType `json:"type"`
	Location           geo.Point   `json:"location"`
	IsActive           bool        `json:"is_active"`
	AssignedIncidentID *uuid.UUID  `json:"assigned_incident_id,omitempty"`
	AdminOwnerID       uuid.UUID   `json:"admin_owner_id"`
	CreatedAt          time.Time   `json:"created_at"`
	UpdatedAt          time.Time   `json:"updated_at"`
}

// EligibleFor сообщает, может ли экипаж принять инцидент данной категории
func (u *Unit) EligibleFor(service ServiceType) bool {
	return u.Type == service && u.IsActive && u.AssignedIncidentID == nil
}
