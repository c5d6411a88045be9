package handler

import (
	"net/http"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type EmailConfigHandler struct {
	emailConfigService service.EmailConfigService
	auth               *middleware.Authenticator
}

func NewEmailConfigHandler(emailConfigService service.EmailConfigService, auth *middleware.Authenticator) *EmailConfigHandler {
	return &EmailConfigHandler{emailConfigService: emailConfigService, auth: auth}
}

func (h *EmailConfigHandler) RegisterRoutes(router *gin.RouterGroup) {
	configs := router.Group("/api/email-configs")
	{
		configs.GET("", h.auth.RequirePermission("settings.read"), h.ListConfigs)
		configs.POST("", h.auth.RequirePermission("settings.write"), h.CreateConfig)
		configs.GET("/:id", h.auth.RequirePermission("settings.read"), h.GetConfig)
		configs.PUT("/:id", h.auth.RequirePermission("settings.write"), h.UpdateConfig)
		configs.DELETE("/:id", h.auth.RequirePermission("settings.delete"), h.DeleteConfig)
		configs.POST("/:id/default", h.auth.RequirePermission("settings.write"), h.SetDefault)
		configs.POST("/:id/test", h.auth.RequirePermission("settings.write"), h.SendTest)
	}
}

// ListConfigs returns every SMTP configuration; passwords are never returned
func (h *EmailConfigHandler) ListConfigs(c *gin.Context) {
	configs, err := h.emailConfigService.List(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, configs))
}

func (h *EmailConfigHandler) GetConfig(c *gin.Context) {
	cfg, err := h.emailConfigService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cfg))
}

// CreateConfig godoc
// @Summary      Add an SMTP configuration
// @Description  The first configuration becomes the default
// @Tags         email-configs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body  service.CreateEmailConfigRequest  true  "SMTP settings"
// @Success      201  {object}  response.Response{data=service.EmailConfigResponse}
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/email-configs [post]
func (h *EmailConfigHandler) CreateConfig(c *gin.Context) {
	var req service.CreateEmailConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cfg, err := h.emailConfigService.Create(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, cfg))
}

// UpdateConfig applies a partial update; an empty password keeps the stored one
func (h *EmailConfigHandler) UpdateConfig(c *gin.Context) {
	var req service.UpdateEmailConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	cfg, err := h.emailConfigService.Update(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cfg))
}

func (h *EmailConfigHandler) DeleteConfig(c *gin.Context) {
	if err := h.emailConfigService.Delete(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Email configuration deleted successfully"}))
}

// SetDefault makes one configuration the default and clears the flag on all others
func (h *EmailConfigHandler) SetDefault(c *gin.Context) {
	cfg, err := h.emailConfigService.SetDefault(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, cfg))
}

// SendTest godoc
// @Summary      Send a test email through one configuration
// @Description  Delivery failures are reported in the body with sent=false
// @Tags         email-configs
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                        true  "Email config ID"
// @Param        payload  body  service.SendTestEmailRequest  true  "Recipient"
// @Success      200  {object}  response.Response{data=service.TestEmailResponse}
// @Router       /api/email-configs/{id}/test [post]
func (h *EmailConfigHandler) SendTest(c *gin.Context) {
	var req service.SendTestEmailRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.emailConfigService.SendTest(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
