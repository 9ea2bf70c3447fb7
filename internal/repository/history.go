package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/models"
)

// historyLimit - сколько последних записей журнала отдается пользователю
const historyLimit = 100

// AddHistory добавляет запись в журнал
func (r *Repository) AddHistory(ctx context.Context, entry *models.HistoryEntry) error {
	query := `
		INSERT INTO incident_history (user_id, incident_id, status, note)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at;
	`
	err := r.db.QueryRow(ctx, query,
		entry.UserID,
		entry.IncidentID,
		string(entry.Status),
		entry.Note,
	).Scan(&entry.ID, &entry.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to add history entry: %w", err)
	}
	return nil
}

// ListHistory возвращает журнал пользователя, новые записи первыми
func (r *Repository) ListHistory(ctx context.Context, userID uuid.UUID) ([]*models.HistoryEntry, error) {
	query := `
		SELECT id, user_id, incident_id, status, note, created_at
		FROM incident_history
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2;
	`
	rows, err := r.db.Query(ctx, query, userID, historyLimit)
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	entries := make([]*models.HistoryEntry, 0)
	for rows.Next() {
		var (
			entry  models.HistoryEntry
			status string
		)
		if err := rows.Scan(&entry.ID, &entry.UserID, &entry.IncidentID, &status, &entry.Note, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		entry.Status = models.IncidentStatus(status)
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error history iteration: %w", err)
	}
	return entries, nil
}
