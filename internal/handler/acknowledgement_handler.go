package handler

import (
	"net/http"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type AcknowledgementHandler struct {
	ackService service.AcknowledgementService
	auth       *middleware.Authenticator
}

func NewAcknowledgementHandler(ackService service.AcknowledgementService, auth *middleware.Authenticator) *AcknowledgementHandler {
	return &AcknowledgementHandler{ackService: ackService, auth: auth}
}

func (h *AcknowledgementHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/riders/:id/acknowledgements", h.auth.RequirePermission("riders.read"), h.ListAcknowledgements)
	router.POST("/api/riders/:id/acknowledgements", h.auth.RequirePermission("riders.write"), h.Generate)

	acks := router.Group("/api/acknowledgements")
	{
		acks.POST("/:id/acknowledge", h.auth.RequirePermission("riders.write"), h.Acknowledge)
		acks.GET("/:id/download", h.auth.RequirePermission("riders.read"), h.Download)
		acks.DELETE("/:id", h.auth.RequirePermission("riders.delete"), h.DeleteAcknowledgement)
	}
}

// Generate godoc
// @Summary      Generate an acknowledgement PDF for a rider
// @Tags         acknowledgements
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id       path  string                                  true  "Rider ID"
// @Param        payload  body  service.GenerateAcknowledgementRequest  true  "Acknowledgement"
// @Success      201  {object}  response.Response{data=service.AcknowledgementResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Router       /api/riders/{id}/acknowledgements [post]
func (h *AcknowledgementHandler) Generate(c *gin.Context) {
	actorID, ok := requireActor(c)
	if !ok {
		return
	}
	var req service.GenerateAcknowledgementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ack, err := h.ackService.Generate(c.Request.Context(), actorID, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, ack))
}

func (h *AcknowledgementHandler) ListAcknowledgements(c *gin.Context) {
	acks, err := h.ackService.ListByRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, acks))
}

// Acknowledge marks a PENDING acknowledgement as ACKNOWLEDGED; a second call conflicts
func (h *AcknowledgementHandler) Acknowledge(c *gin.Context) {
	ack, err := h.ackService.Acknowledge(c.Request.Context(), middleware.ActorID(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ack))
}

func (h *AcknowledgementHandler) Download(c *gin.Context) {
	dl, err := h.ackService.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, dl))
}

func (h *AcknowledgementHandler) DeleteAcknowledgement(c *gin.Context) {
	if err := h.ackService.Delete(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Acknowledgement deleted successfully"}))
}
