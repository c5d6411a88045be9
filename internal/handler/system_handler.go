package handler

import (
	"errors"
	"net/http"

	"fleetops/internal/auth"
	"fleetops/internal/storage"
	"fleetops/internal/websocket"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"gorm.io/gorm"
)

// SystemHandler serves health checks, signed local files and the realtime socket.
type SystemHandler struct {
	db     *gorm.DB
	files  *storage.LocalBackend
	hub    *websocket.Hub
	tokens *auth.TokenManager
	authz  websocket.Authorizer
}

// NewSystemHandler wires the non-API endpoints. files is nil when objects live in S3.
func NewSystemHandler(db *gorm.DB, files *storage.LocalBackend, hub *websocket.Hub, tokens *auth.TokenManager, authz websocket.Authorizer) *SystemHandler {
	return &SystemHandler{db: db, files: files, hub: hub, tokens: tokens, authz: authz}
}

func (h *SystemHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/health", h.Health)
	if h.hub != nil {
		router.GET("/ws", h.ServeWs)
	}
	if h.files != nil {
		router.GET("/files/*key", h.ServeFile)
	}
}

// Health godoc
// @Summary  Liveness and database check
// @Tags     system
// @Produce  json
// @Success  200 {object} map[string]interface{}
// @Failure  503 {object} map[string]interface{}
// @Router   /health [get]
func (h *SystemHandler) Health(c *gin.Context) {
	sqlDB, err := h.db.DB()
	if err == nil {
		err = sqlDB.PingContext(c.Request.Context())
	}
	if err != nil {
		log.Warn().Err(err).Msg("health check: database unreachable")
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED", "database": "down"})
		return
	}
	body := gin.H{"status": "OK", "database": "up"}
	if h.hub != nil {
		body["wsClients"] = h.hub.ClientCount()
	}
	c.JSON(http.StatusOK, body)
}

// ServeFile streams a locally stored object when the token query parameter grants access to it
func (h *SystemHandler) ServeFile(c *gin.Context) {
	path, err := h.files.Resolve(c.Param("key"), c.Query("token"))
	if err != nil {
		switch {
		case errors.Is(err, storage.ErrInvalidToken):
			c.JSON(http.StatusForbidden, response.Error(http.StatusForbidden, err.Error()))
		case errors.Is(err, storage.ErrInvalidKey):
			c.JSON(http.StatusNotFound, response.Error(http.StatusNotFound, "file not found"))
		default:
			respondError(c, err)
		}
		return
	}
	c.Header("Cache-Control", "private, no-store")
	c.File(path)
}

// ServeWs upgrades to a websocket subscribed to onboarding events; the access token is passed as ?token=
func (h *SystemHandler) ServeWs(c *gin.Context) {
	websocket.ServeWs(h.hub, c, h.tokens, h.authz)
}
