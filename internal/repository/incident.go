package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/service"
	"github.com/jackc/pgx/v5"
	"github.com/redis/go-redis/v9"
)

const incidentColumns = `
	id,
	reporter_id,
	description,
	media,
	ST_X(location::geometry) as longitude,
	ST_Y(location::geometry) as latitude,
	classified_service,
	assigned_unit_id,
	status,
	created_at,
	updated_at`

// execQuerier - общая часть pgxpool.Pool и pgx.Tx
type execQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// scanIncident читает строку, выбранную с incidentColumns
func scanIncident(row pgx.Row) (*models.Incident, error) {
	var (
		incident   models.Incident
		media      []byte
		classified *string
		status     string
	)
	err := row.Scan(
		&incident.ID,
		&incident.ReporterID,
		&incident.Description,
		&media,
		&incident.Location.Longitude,
		&incident.Location.Latitude,
		&classified,
		&incident.AssignedUnitID,
		&status,
		&incident.CreatedAt,
		&incident.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	incident.Status = models.IncidentStatus(status)
	if classified != nil {
		incident.ClassifiedService = models.ServiceType(*classified)
	}
	incident.Media = []models.Media{}
	if len(media) > 0 {
		if err := json.Unmarshal(media, &incident.Media); err != nil {
			return nil, fmt.Errorf("failed to decode incident media: %w", err)
		}
	}
	return &incident, nil
}

// upsertIncident создает инцидент или обновляет его, пока он ждет назначения
// (reported без экипажа). Уже назначенный инцидент не перезаписывается:
// вернется service.ErrIncidentNotDispatchable. created_at сохраняется.
func upsertIncident(ctx context.Context, q execQuerier, incident *models.Incident) error {
	media, err := json.Marshal(incident.Media)
	if err != nil {
		return fmt.Errorf("failed to encode incident media: %w", err)
	}

	query := `
		INSERT INTO incidents (id, reporter_id, description, media, location, classified_service, assigned_unit_id, status)
		VALUES ($1, $2, $3, $4, ST_SetSRID(ST_MakePoint($5, $6), 4326), $7, $8, $9)
		ON CONFLICT (id) DO UPDATE SET
			description = EXCLUDED.description,
			media = EXCLUDED.media,
			location = EXCLUDED.location,
			classified_service = EXCLUDED.classified_service,
			assigned_unit_id = EXCLUDED.assigned_unit_id,
			status = EXCLUDED.status,
			updated_at = NOW()
		WHERE incidents.status = 'reported' AND incidents.assigned_unit_id IS NULL
		RETURNING created_at, updated_at;
	`
	err = q.QueryRow(ctx, query,
		incident.ID,
		incident.ReporterID,
		incident.Description,
		media,
		incident.Location.Longitude,
		incident.Location.Latitude,
		nullableString(string(incident.ClassifiedService)),
		incident.AssignedUnitID,
		string(incident.Status),
	).Scan(&incident.CreatedAt, &incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("incident %s already dispatched: %w", incident.ID, service.ErrIncidentNotDispatchable)
		}
		return fmt.Errorf("failed to save incident: %w", err)
	}
	return nil
}

// SaveIncident сохраняет инцидент без назначения экипажа
func (r *Repository) SaveIncident(ctx context.Context, incident *models.Incident) error {
	return upsertIncident(ctx, r.db, incident)
}

// GetByID возвращает инцидент по его UUID
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	query := `SELECT ` + incidentColumns + ` FROM incidents WHERE id = $1;`

	incident, err := scanIncident(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("incident with id %s: %w", id, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get incident by id: %w", err)
	}
	return incident, nil
}

// ListIncidents возвращает список инцидентов с пагинацией
func (r *Repository) ListIncidents(ctx context.Context, page, pageSize int) ([]*models.Incident, error) {
	// рассчитываем смещение
	offset := (page - 1) * pageSize

	query := `SELECT ` + incidentColumns + `
		FROM incidents
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2;
	`
	rows, err := r.db.Query(ctx, query, pageSize, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list incidents: %w", err)
	}
	defer rows.Close()

	incidents := make([]*models.Incident, 0)
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan incident row: %w", err)
		}
		incidents = append(incidents, incident)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error list iteration: %w", err)
	}
	return incidents, nil
}

// UpdateStatus меняет статус инцидента, только если он все еще равен from,
// и при необходимости освобождает экипаж
func (r *Repository) UpdateStatus(ctx context.Context, incident *models.Incident, from models.IncidentStatus, releaseUnit bool) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после Commit откат ничего не делает

	query := `
		UPDATE incidents SET
			status = $1,
			updated_at = NOW()
		WHERE id = $2 AND status = $3
		RETURNING updated_at;
	`
	err = tx.QueryRow(ctx, query, string(incident.Status), incident.ID, string(from)).Scan(&incident.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// статус успели сменить параллельно
			return fmt.Errorf("incident %s is no longer %s: %w", incident.ID, from, service.ErrInvalidStatusTransition)
		}
		return fmt.Errorf("failed to update incident status: %w", err)
	}

	if releaseUnit && incident.AssignedUnitID != nil {
		release := `
			UPDATE units SET
				assigned_incident_id = NULL,
				updated_at = NOW()
			WHERE id = $1 AND assigned_incident_id = $2;
		`
		if _, err := tx.Exec(ctx, release, *incident.AssignedUnitID, incident.ID); err != nil {
			return fmt.Errorf("failed to release unit: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}
	return nil
}

// CountByStatusSince считает инциденты, созданные за последние minutes минут
func (r *Repository) CountByStatusSince(ctx context.Context, minutes int) (map[models.IncidentStatus]int, error) {
	query := `
		SELECT status, COUNT(*)
		FROM incidents
		WHERE created_at >= NOW() - ($1 * INTERVAL '1 minute')
		GROUP BY status;
	`
	rows, err := r.db.Query(ctx, query, minutes)
	if err != nil {
		return nil, fmt.Errorf("failed to count incidents: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.IncidentStatus]int)
	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan incident count: %w", err)
		}
		counts[models.IncidentStatus(status)] = count
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error count iteration: %w", err)
	}
	return counts, nil
}

// GetIncidentFromCache пытается получить инцидент из Redis
func (r *Repository) GetIncidentFromCache(ctx context.Context, id uuid.UUID) (*models.Incident, error) {
	val, err := r.redisClient.Get(ctx, incidentCacheKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get incident from cache: %w", err)
	}

	incident := &models.Incident{}
	if err := json.Unmarshal(val, incident); err != nil {
		return nil, fmt.Errorf("failed to unmarshal incident from cache: %w", err)
	}
	return incident, nil
}

// SetIncidentCache сохраняет инцидент в Redis
func (r *Repository) SetIncidentCache(ctx context.Context, incident *models.Incident) error {
	val, err := json.Marshal(incident)
	if err != nil {
		return fmt.Errorf("failed to marshal incident for cache: %w", err)
	}
	if err := r.redisClient.Set(ctx, incidentCacheKey(incident.ID), val, r.cacheTTL).Err(); err != nil {
		return fmt.Errorf("failed to set incident in cache: %w", err)
	}
	return nil
}

// InvalidateIncidentCache удаляет инцидент из Redis кэша
func (r *Repository) InvalidateIncidentCache(ctx context.Context, id uuid.UUID) error {
	if err := r.redisClient.Del(ctx, incidentCacheKey(id)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate incident cache: %w", err)
	}
	return nil
}

func incidentCacheKey(id uuid.UUID) string {
	return fmt.Sprintf("incident:%s", id.String())
}
