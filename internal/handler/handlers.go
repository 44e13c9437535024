package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"RescueNet/internal/dispatch"
	"RescueNet/pkg/config"
	"RescueNet/pkg/metrics"
	"RescueNet/pkg/middleware"
	"RescueNet/pkg/push"
	"RescueNet/pkg/response"
)

type Handlers struct {
	db  *gorm.DB
	svc *dispatch.Service
	hub *push.Hub
}

func NewHandlers(db *gorm.DB, svc *dispatch.Service, hub *push.Hub) *Handlers {
	return &Handlers{
		db:  db,
		svc: svc,
		hub: hub,
	}
}

func (h *Handlers) Register(engine *gin.Engine) {
	engine.Use(metrics.Middleware())
	engine.GET("/metrics", metrics.Handler())
	engine.GET("/health", h.HealthCheck)

	r := engine.Group("/api")

	h.registerSystemRoutes(r)
	h.registerRequestRoutes(r)
	h.registerResponderRoutes(r)

	engine.GET("/ws", identityRequired, h.handleWebSocket)
}

func (h *Handlers) registerRequestRoutes(r *gin.RouterGroup) {
	requests := r.Group("requests")
	requests.Use(identityRequired)
	{
		requests.POST("",
			middleware.RateLimit(config.GlobalConfig.CreateRate),
			middleware.Idempotency(middleware.IdempotencyConfig{}),
			h.handleCreateRequest)

		requests.GET("/:id", h.handleRequestDetails)

		requests.POST("/:id/accept", h.handleAcceptRequest)

		requests.POST("/:id/reject", h.handleRejectRequest)

		requests.PATCH("/:id/status", h.handleUpdateStatus)

		requests.POST("/:id/feedback", h.handleAddFeedback)
	}
}

func (h *Handlers) registerResponderRoutes(r *gin.RouterGroup) {
	responders := r.Group("responders")
	responders.Use(identityRequired)
	{
		responders.PUT("/me/availability", h.handleSetAvailability)

		responders.PUT("/me/location", h.handleUpdateLocation)
	}
}

func (h *Handlers) registerSystemRoutes(r *gin.RouterGroup) {
	system := r.Group("system")
	{
		system.GET("/health", h.HealthCheck)
	}
}

const (
	ctxUserID = "userID"
	ctxRole   = "role"
)

// identityRequired trusts the identity headers set by the gateway in front
// of this service. Authentication itself happens there.
func identityRequired(c *gin.Context) {
	raw := c.GetHeader("X-User-ID")
	if raw == "" {
		response.Fail(c, http.StatusUnauthorized, "missing identity")
		return
	}
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		response.Fail(c, http.StatusUnauthorized, "invalid identity")
		return
	}
	c.Set(ctxUserID, uint(id))
	c.Set(ctxRole, c.GetHeader("X-User-Role"))
	c.Next()
}

func currentUserID(c *gin.Context) uint {
	if v, ok := c.Get(ctxUserID); ok {
		if id, ok := v.(uint); ok {
			return id
		}
	}
	return 0
}
