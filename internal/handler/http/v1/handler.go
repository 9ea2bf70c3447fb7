package v1

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/auth"
	"github.com/guardiannet/dispatch/internal/config"
	"github.com/guardiannet/dispatch/internal/models"
	"github.com/guardiannet/dispatch/internal/service"
	"github.com/sirupsen/logrus"
)

type Handler struct {
	incidentService service.IncidentService
	unitService     service.UnitService
	authenticator   Authenticator
	realtime        RealtimeServer
	logger          *logrus.Logger
	validate        *validator.Validate
	cfg             *config.Config
}

func NewHandler(
	incidentService service.IncidentService,
	unitService service.UnitService,
	authenticator Authenticator,
	realtime RealtimeServer,
	logger *logrus.Logger,
	cfg *config.Config,
) *Handler {
	return &Handler{
		incidentService: incidentService,
		unitService:     unitService,
		authenticator:   authenticator,
		realtime:        realtime,
		logger:          logger,
		validate:        validator.New(),
		cfg:             cfg,
	}
}

// respondError переводит ошибку сервиса в HTTP-ответ
func (h *Handler) respondError(c *gin.Context, log *logrus.Entry, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		log.WithError(err).Warn("Requested record not found")
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	case errors.Is(err, service.ErrInvalidLocation):
		log.WithError(err).Warn("Rejected invalid location")
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidLocation.Error()})
	case errors.Is(err, service.ErrInvalidServiceType):
		log.WithError(err).Warn("Rejected invalid service type")
		c.JSON(http.StatusBadRequest, gin.H{"error": service.ErrInvalidServiceType.Error()})
	case errors.Is(err, service.ErrInvalidStatusTransition):
		log.WithError(err).Warn("Rejected status transition")
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrInvalidStatusTransition.Error()})
	case errors.Is(err, service.ErrIncidentNotDispatchable):
		log.WithError(err).Warn("Rejected redispatch")
		c.JSON(http.StatusConflict, gin.H{"error": service.ErrIncidentNotDispatchable.Error()})
	default:
		log.WithError(err).Error("Request failed in service")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal server error"})
	}
}

// bindAndValidate читает JSON-тело и проверяет его; при ошибке ответ уже отправлен
func (h *Handler) bindAndValidate(c *gin.Context, log *logrus.Entry, input any) bool {
	if err := c.ShouldBindJSON(input); err != nil {
		log.WithError(err).Warn("Failed to bind JSON")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return false
	}

	if err := h.validate.Struct(input); err != nil {
		log.WithError(err).Warn("Validation failed")
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return false
	}
	return true
}

func parseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid incident ID"})
		return uuid.Nil, false
	}
	return id, true
}

// canViewIncident - инцидент видят автор и операторы
func canViewIncident(identity auth.Identity, incident *models.Incident) bool {
	return identity.IsAdmin() || incident.ReporterID == identity.UserID
}

// @Summary Report an incident
// @Description Register an emergency and dispatch the nearest available unit. assigned_unit is null when no unit is available.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param incident body ReportIncidentRequest true "Incident report"
// @Success 201 {object} DispatchResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [post]
func (h *Handler) reportIncident(c *gin.Context) {
	identity, _ := identityFromContext(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":  "reportIncident",
		"user_id": identity.UserID,
	})

	var input ReportIncidentRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	model := DTOToIncidentModel(input, identity.UserID)
	result, err := h.incidentService.ReportIncident(c.Request.Context(), model)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusCreated, DispatchResultToResponse(result))
}

// @Summary Get a list of incidents
// @Description Get a paginated list of all incidents, newest first. Admin only.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page number" default(1)
// @Param pageSize query int false "Number of items per page" default(20)
// @Success 200 {array} IncidentResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents [get]
func (h *Handler) listIncidents(c *gin.Context) {
	log := h.logger.WithField("method", "listIncidents")
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	incidents, err := h.incidentService.ListIncidents(c.Request.Context(), page, pageSize)
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, ModelsToIncidentResponses(incidents))
}

// @Summary Get incident by ID
// @Description Get a single incident by its ID. Available to its reporter and to admins.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id} [get]
func (h *Handler) getIncident(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	identity, _ := identityFromContext(c)
	log := h.logger.WithField("method", "getIncident").WithField("id", id)

	incident, err := h.incidentService.GetIncident(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	if !canViewIncident(identity, incident) {
		log.WithField("user_id", identity.UserID).Warn("Incident requested by another user")
		c.JSON(http.StatusForbidden, gin.H{"error": "forbidden"})
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Retry dispatch
// @Description Search for a unit again for an incident that is still waiting in reported status. Admin only.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Success 200 {object} DispatchResponse
// @Failure 400 {object} map[string]string "Invalid incident ID"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Incident is not awaiting dispatch"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/dispatch [post]
func (h *Handler) redispatchIncident(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "redispatchIncident").WithField("id", id)

	result, err := h.incidentService.RedispatchIncident(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, DispatchResultToResponse(result))
}

// @Summary Update incident status
// @Description Move a dispatched incident to enroute or resolved. Resolving releases the unit. Admin only.
// @Tags Incidents
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Incident ID"
// @Param status body UpdateStatusRequest true "New status"
// @Success 200 {object} IncidentResponse
// @Failure 400 {object} map[string]string "Invalid incident ID or request body"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Incident not found"
// @Failure 409 {object} map[string]string "Invalid status transition"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /incidents/{id}/status [patch]
func (h *Handler) updateIncidentStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	log := h.logger.WithField("method", "updateIncidentStatus").WithField("id", id)

	var input UpdateStatusRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	incident, err := h.incidentService.UpdateStatus(c.Request.Context(), id, models.IncidentStatus(input.Status), input.Note)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToIncidentResponse(incident))
}

// @Summary Get my incident history
// @Description Status history of the incidents reported by the current user, newest first.
// @Tags Incidents
// @Produce json
// @Security BearerAuth
// @Success 200 {array} HistoryEntryResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /history [get]
func (h *Handler) getHistory(c *gin.Context) {
	identity, _ := identityFromContext(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":  "getHistory",
		"user_id": identity.UserID,
	})

	entries, err := h.incidentService.GetHistory(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToHistoryResponses(entries))
}

// @Summary List my units
// @Description Units managed by the current admin, newest first.
// @Tags Units
// @Produce json
// @Security BearerAuth
// @Success 200 {array} UnitResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/units [get]
func (h *Handler) listUnits(c *gin.Context) {
	identity, _ := identityFromContext(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":   "listUnits",
		"admin_id": identity.UserID,
	})

	units, err := h.unitService.ListUnits(c.Request.Context(), identity.UserID)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelsToUnitResponses(units))
}

// @Summary Create or update a unit
// @Description Create a unit (no id) or update one owned by the current admin.
// @Tags Units
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param unit body UnitRequest true "Unit"
// @Success 200 {object} UnitResponse
// @Success 201 {object} UnitResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Unit not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/units [post]
func (h *Handler) upsertUnit(c *gin.Context) {
	identity, _ := identityFromContext(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":   "upsertUnit",
		"admin_id": identity.UserID,
	})

	var input UnitRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	unit := DTOToUnitModel(input)
	created := unit.ID == uuid.Nil
	if err := h.unitService.UpsertUnit(c.Request.Context(), identity.UserID, unit); err != nil {
		h.respondError(c, log, err)
		return
	}

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	c.JSON(status, ModelToUnitResponse(unit))
}

// @Summary Toggle unit availability
// @Description Enable or disable a unit. Disabled units are never dispatched.
// @Tags Units
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param toggle body ToggleUnitRequest true "Unit availability"
// @Success 200 {object} UnitResponse
// @Failure 400 {object} map[string]string "Invalid request body or validation error"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 403 {object} map[string]string "Forbidden"
// @Failure 404 {object} map[string]string "Unit not found"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /admin/units/toggle [post]
func (h *Handler) toggleUnit(c *gin.Context) {
	identity, _ := identityFromContext(c)
	log := h.logger.WithFields(logrus.Fields{
		"method":   "toggleUnit",
		"admin_id": identity.UserID,
	})

	var input ToggleUnitRequest
	if !h.bindAndValidate(c, log, &input) {
		return
	}

	unit, err := h.unitService.ToggleUnit(c.Request.Context(), identity.UserID, input.UnitID, *input.IsActive)
	if err != nil {
		h.respondError(c, log, err)
		return
	}
	c.JSON(http.StatusOK, ModelToUnitResponse(unit))
}

// @Summary Get incident statistics
// @Description Incident counts per status over the configured time window. Requires API key.
// @Tags Admin
// @Accept json
// @Produce json
// @Security ApiKeyAuth
// @Success 200 {object} StatsResponse
// @Failure 401 {object} map[string]string "Unauthorized"
// @Failure 500 {object} map[string]string "Internal server error"
// @Router /stats [get]
func (h *Handler) getStats(c *gin.Context) {
	log := h.logger.WithField("method", "getStats")

	stats, err := h.incidentService.GetStats(c.Request.Context())
	if err != nil {
		h.respondError(c, log, err)
		return
	}

	c.JSON(http.StatusOK, ModelToStatsResponse(stats))
}

// @Summary Get application health status
// @Description Get health status of the application
// @Tags System
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string "Status OK"
// @Router /system/health [get]
func (h *Handler) healthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
