package models

import (
	"time"

	"github.com/google/uuid"
)

// HistoryEntry - запись журнала изменений статуса инцидента для пользователя
type HistoryEntry struct {
	ID         int64          `json:"id"`
	UserID     uuid.UUID      `json:"user_id"`
	IncidentID uuid.UUID      `json:"incident_id"`
	Status     IncidentStatus `json:"status"`
	Note       string         `json:"note,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}
