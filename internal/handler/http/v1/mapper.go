package v1

import (
	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/geo"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/service"
)

const geoJSONPoint = "Point"

// DTOToPoint преобразует GeoJSON-точку; длина coordinates проверяется валидатором
func DTOToPoint(dto GeoPoint) geo.Point {
	return geo.Point{Longitude: dto.Coordinates[0], Latitude: dto.Coordinates[1]}
}

func PointToDTO(p geo.Point) GeoPoint {
	return GeoPoint{Type: geoJSONPoint, Coordinates: []float64{p.Longitude, p.Latitude}}
}

// DTOToMedia приводит вложения к модели; voice хранится как audio
func DTOToMedia(dto []MediaRequest) []models.Media {
	media := make([]models.Media, 0, len(dto))
	for _, m := range dto {
		kind := models.MediaKind(m.Type)
		if m.Type == "voice" {
			kind = models.MediaAudio
		}
		media = append(media, models.Media{Kind: kind, Content: m.Content})
	}
	return media
}

// DTOToIncidentModel собирает инцидент из запроса пользователя
func DTOToIncidentModel(dto ReportIncidentRequest, reporterID uuid.UUID) *models.Incident {
	return &models.Incident{
		ReporterID:        reporterID,
		Description:       dto.Description,
		Media:             DTOToMedia(dto.Media),
		Location:          DTOToPoint(dto.Location),
		ClassifiedService: models.ServiceType(dto.ServiceType),
	}
}

// DTOToUnitModel собирает экипаж из запроса оператора; новый экипаж по умолчанию активен
func DTOToUnitModel(dto UnitRequest) *models.Unit {
	unit := &models.Unit{
		Name:     dto.Name,
		Type:     models.ServiceType(dto.Type),
		Location: DTOToPoint(dto.Location),
		IsActive: true,
	}
	if dto.ID != nil {
		unit.ID = *dto.ID
	}
	if dto.IsActive != nil {
		unit.IsActive = *dto.IsActive
	}
	return unit
}

// ModelToIncidentResponse преобразует доменную модель в DTO для ответа
func ModelToIncidentResponse(model *models.Incident) *IncidentResponse {
	media := make([]MediaResponse, 0, len(model.Media))
	for _, m := range model.Media {
		media = append(media, MediaResponse{Type: string(m.Kind), Content: m.Content})
	}
	return &IncidentResponse{
		ID:                model.ID,
		ReporterID:        model.ReporterID,
		Description:       model.Description,
		Media:             media,
		Location:          PointToDTO(model.Location),
		ClassifiedService: string(model.ClassifiedService),
		AssignedUnitID:    model.AssignedUnitID,
		Status:            string(model.Status),
		CreatedAt:         model.CreatedAt,
		UpdatedAt:         model.UpdatedAt,
	}
}

// ModelsToIncidentResponses преобразует слайс моделей в слайс DTO
func ModelsToIncidentResponses(incidents []*models.Incident) []*IncidentResponse {
	responses := make([]*IncidentResponse, len(incidents))
	for i, model := range incidents {
		responses[i] = ModelToIncidentResponse(model)
	}
	return responses
}

func ModelToUnitResponse(model *models.Unit) *UnitResponse {
	if model == nil {
		return nil
	}
	return &UnitResponse{
		ID:                 model.ID,
		Name:               model.Name,
		Type:               string(model.Type),
		Location:           PointToDTO(model.Location),
		IsActive:           model.IsActive,
		AssignedIncidentID: model.AssignedIncidentID,
		CreatedAt:          model.CreatedAt,
		UpdatedAt:          model.UpdatedAt,
	}
}

func ModelsToUnitResponses(units []*models.Unit) []*UnitResponse {
	responses := make([]*UnitResponse, len(units))
	for i, model := range units {
		responses[i] = ModelToUnitResponse(model)
	}
	return responses
}

func DispatchResultToResponse(result *service.DispatchResult) *DispatchResponse {
	return &DispatchResponse{
		Incident:           ModelToIncidentResponse(result.Incident),
		AssignedUnit:       ModelToUnitResponse(result.AssignedUnit),
		FallbackClassified: result.FallbackClassified,
	}
}

func ModelsToHistoryResponses(entries []*models.HistoryEntry) []*HistoryEntryResponse {
	responses := make([]*HistoryEntryResponse, len(entries))
	for i, e := range entries {
		responses[i] = &HistoryEntryResponse{
			ID:         e.ID,
			IncidentID: e.IncidentID,
			Status:     string(e.Status),
			Note:       e.Note,
			CreatedAt:  e.CreatedAt,
		}
	}
	return responses
}

func ModelToStatsResponse(stats *models.IncidentStats) *StatsResponse {
	byStatus := make(map[string]int, len(stats.ByStatus))
	for status, count := range stats.ByStatus {
		byStatus[string(status)] = count
	}
	return &StatsResponse{
		WindowMinutes: stats.WindowMinutes,
		Total:         stats.Total,
		ByStatus:      byStatus,
	}
}
