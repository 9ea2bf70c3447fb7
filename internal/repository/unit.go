package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/service"
	"github.com/jackc/pgx/v5"
)

const unitColumns = `
	id,
	name,
	type,
	ST_X(location::geometry) as longitude,
	ST_Y(location::geometry) as latitude,
	is_active,
	assigned_incident_id,
	admin_owner_id,
	created_at,
	updated_at`

func scanUnit(row pgx.Row) (*models.Unit, error) {
	var (
		unit     models.Unit
		unitType string
	)
	err := row.Scan(
		&unit.ID,
		&unit.Name,
		&unitType,
		&unit.Location.Longitude,
		&unit.Location.Latitude,
		&unit.IsActive,
		&unit.AssignedIncidentID,
		&unit.AdminOwnerID,
		&unit.CreatedAt,
		&unit.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	unit.Type = models.ServiceType(unitType)
	return &unit, nil
}

func collectUnits(rows pgx.Rows) ([]*models.Unit, error) {
	defer rows.Close()

	units := make([]*models.Unit, 0)
	for rows.Next() {
		unit, err := scanUnit(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan unit row: %w", err)
		}
		units = append(units, unit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error unit iteration: %w", err)
	}
	return units, nil
}

// FindEligibleUnits возвращает активные свободные экипажи нужной категории
func (r *Repository) FindEligibleUnits(ctx context.Context, serviceType models.ServiceType) ([]*models.Unit, error) {
	query := `SELECT ` + unitColumns + `
		FROM units
		WHERE type = $1 AND is_active AND assigned_incident_id IS NULL;
	`
	rows, err := r.db.Query(ctx, query, string(serviceType))
	if err != nil {
		return nil, fmt.Errorf("failed to find eligible units: %w", err)
	}
	return collectUnits(rows)
}

// TryReserveUnit в одной транзакции закрепляет экипаж за инцидентом
// и сохраняет инцидент. Экипаж закрепляется только если он все еще
// активен, свободен и подходит по категории. Если инцидент успели назначить
// параллельно, транзакция откатывается с service.ErrIncidentNotDispatchable.
func (r *Repository) TryReserveUnit(ctx context.Context, unitID uuid.UUID, incident *models.Incident) (bool, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // после Commit откат ничего не делает

	claim := `
		UPDATE units SET
			assigned_incident_id = $1,
			updated_at = NOW()
		WHERE id = $2
			AND type = $3
			AND is_active
			AND assigned_incident_id IS NULL;
	`
	tag, err := tx.Exec(ctx, claim, incident.ID, unitID, string(incident.ClassifiedService))
	if err != nil {
		return false, fmt.Errorf("failed to claim unit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}

	if err := upsertIncident(ctx, tx, incident); err != nil {
		return false, err
	}

	if err := tx.Commit(ctx); err != nil {
		return false, fmt.Errorf("failed to commit unit reservation: %w", err)
	}
	return true, nil
}

// CreateUnit регистрирует новый экипаж
func (r *Repository) CreateUnit(ctx context.Context, unit *models.Unit) error {
	query := `
		INSERT INTO units (id, name, type, location, is_active, admin_owner_id)
		VALUES ($1, $2, $3, ST_SetSRID(ST_MakePoint($4, $5), 4326), $6, $7)
		RETURNING created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		unit.ID,
		unit.Name,
		string(unit.Type),
		unit.Location.Longitude,
		unit.Location.Latitude,
		unit.IsActive,
		unit.AdminOwnerID,
	).Scan(&unit.CreatedAt, &unit.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create unit: %w", err)
	}
	return nil
}

// UpdateUnit обновляет экипаж владельца, назначение не меняется
func (r *Repository) UpdateUnit(ctx context.Context, unit *models.Unit) error {
	query := `
		UPDATE units SET
			name = $1,
			type = $2,
			location = ST_SetSRID(ST_MakePoint($3, $4), 4326),
			is_active = $5,
			updated_at = NOW()
		WHERE id = $6 AND admin_owner_id = $7
		RETURNING assigned_incident_id, created_at, updated_at;
	`
	err := r.db.QueryRow(ctx, query,
		unit.Name,
		string(unit.Type),
		unit.Location.Longitude,
		unit.Location.Latitude,
		unit.IsActive,
		unit.ID,
		unit.AdminOwnerID,
	).Scan(&unit.AssignedIncidentID, &unit.CreatedAt, &unit.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("unit with id %s: %w", unit.ID, service.ErrNotFound)
		}
		return fmt.Errorf("failed to update unit: %w", err)
	}
	return nil
}

// ListUnitsByOwner возвращает экипажи оператора, новые первыми
func (r *Repository) ListUnitsByOwner(ctx context.Context, adminID uuid.UUID) ([]*models.Unit, error) {
	query := `SELECT ` + unitColumns + `
		FROM units
		WHERE admin_owner_id = $1
		ORDER BY created_at DESC;
	`
	rows, err := r.db.Query(ctx, query, adminID)
	if err != nil {
		return nil, fmt.Errorf("failed to list units: %w", err)
	}
	return collectUnits(rows)
}

// SetUnitActive меняет доступность экипажа оператора
func (r *Repository) SetUnitActive(ctx context.Context, adminID, unitID uuid.UUID, isActive bool) (*models.Unit, error) {
	query := `
		UPDATE units SET
			is_active = $1,
			updated_at = NOW()
		WHERE id = $2 AND admin_owner_id = $3
		RETURNING ` + unitColumns + `;
	`
	unit, err := scanUnit(r.db.QueryRow(ctx, query, isActive, unitID, adminID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("unit with id %s: %w", unitID, service.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to toggle unit: %w", err)
	}
	return unit, nil
}
