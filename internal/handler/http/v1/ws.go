package v1

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/guardiannet/dispatch/internal/auth"
	"github.com/guardiannet/dispatch/internal/realtime"
	"github.com/guardiannet/dispatch/internal/service"
)

// RealtimeServer обслуживает websocket-подписки на инциденты
type RealtimeServer interface {
	ServeWS(w http.ResponseWriter, r *http.Request, identity auth.Identity) error
}

// IncidentAccess - правило доступа к подписке: автор инцидента или оператор
func IncidentAccess(incidents service.IncidentService) realtime.AccessFunc {
	return func(ctx context.Context, identity auth.Identity, incidentID uuid.UUID) (bool, error) {
		incident, err := incidents.GetIncident(ctx, incidentID)
		if err != nil {
			if errors.Is(err, service.ErrNotFound) {
				return false, nil
			}
			return false, err
		}
		return canViewIncident(identity, incident), nil
	}
}

// @Summary Subscribe to incident updates
// @Description Upgrade to a websocket. Send {"type":"subscribe","incident_id":"..."} to receive {"type":"incident:update","data":{...}} messages.
// @Tags Realtime
// @Param token query string true "Bearer token"
// @Success 101 "Switching Protocols"
// @Failure 401 {object} map[string]string "Unauthorized"
// @Router /ws [get]
func (h *Handler) serveWS(c *gin.Context) {
	log := h.logger.WithField("method", "serveWS")

	// браузерный WebSocket не умеет отправлять заголовки, поэтому токен берется из query
	token := c.Query("token")
	if token == "" {
		token, _ = bearerToken(c.GetHeader("Authorization"))
	}
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "token required"})
		return
	}

	identity, err := h.authenticator.Authenticate(token)
	if err != nil {
		log.WithError(err).Warn("Rejected websocket token")
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}

	if err := h.realtime.ServeWS(c.Writer, c.Request, identity); err != nil {
		log.WithError(err).WithField("user_id", identity.UserID).Warn("Websocket upgrade failed")
	}
}
