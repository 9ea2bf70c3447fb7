package v1

import (
	"github.com/gin-gonic/gin"
)

// RegisterRoutes регистрирует все маршруты API v1
func (h *Handler) RegisterRoutes(api *gin.RouterGroup) {
	adminOnly := AdminOnly(h.logger)

	// Маршруты, доступные пользователю с токеном
	authorized := api.Group("", JWTAuthMiddleware(h.authenticator, h.logger))

	incidents := authorized.Group("/incidents")
	{
		incidents.POST("", h.reportIncident)
		incidents.GET("", adminOnly, h.listIncidents)
		incidents.GET("/:id", h.getIncident)
		incidents.POST("/:id/dispatch", adminOnly, h.redispatchIncident)
		incidents.PATCH("/:id/status", adminOnly, h.updateIncidentStatus)
	}
	authorized.GET("/history", h.getHistory)

	// Управление экипажами
	units := authorized.Group("/admin/units", adminOnly)
	{
		units.GET("", h.listUnits)
		units.POST("", h.upsertUnit)
		units.POST("/toggle", h.toggleUnit)
	}

	// Статистика для внешних систем по API-ключу
	api.GET("/stats", APIKeyAuthMiddleware(h.cfg, h.logger), h.getStats)

	// Websocket аутентифицируется сам: токен приходит в query
	api.GET("/ws", h.serveWS)

	// Маршрут Health-check
	api.GET("/system/health", h.healthCheck)
}
