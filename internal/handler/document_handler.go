package handler

import (
	"net/http"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type DocumentHandler struct {
	documentService service.DocumentService
	auth            *middleware.Authenticator
}

func NewDocumentHandler(documentService service.DocumentService, auth *middleware.Authenticator) *DocumentHandler {
	return &DocumentHandler{documentService: documentService, auth: auth}
}

func (h *DocumentHandler) RegisterRoutes(router *gin.RouterGroup) {
	router.GET("/api/riders/:id/documents", h.auth.RequirePermission("riders.read"), h.ListDocuments)
	router.POST("/api/riders/:id/documents", h.auth.RequirePermission("riders.write"), h.UploadDocument)

	docs := router.Group("/api/documents")
	{
		docs.PATCH("/:id/status", h.auth.RequirePermission("riders.write"), h.UpdateStatus)
		docs.GET("/:id/download", h.auth.RequirePermission("riders.read"), h.Download)
		docs.DELETE("/:id", h.auth.RequirePermission("riders.delete"), h.DeleteDocument)
	}
}

// UploadDocument godoc
// @Summary      Upload a rider document
// @Description  Accepts PDF, JPEG, PNG or WebP files up to 10 MiB; the document starts PENDING
// @Tags         documents
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        id          path      string  true   "Rider ID"
// @Param        type        formData  string  true   "PASSPORT, EMIRATES_ID, DRIVING_LICENSE, WORK_PERMIT, INSURANCE, PROFILE_PHOTO or OTHER_DOCUMENT"
// @Param        expiryDate  formData  string  false  "YYYY-MM-DD"
// @Param        file        formData  file    true   "Document"
// @Success      201  {object}  response.Response{data=service.DocumentResponse}
// @Failure      400  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      413  {object}  response.Response
// @Router       /api/riders/{id}/documents [post]
func (h *DocumentHandler) UploadDocument(c *gin.Context) {
	data, ok := readUpload(c, "file", service.MaxDocumentSize)
	if !ok {
		return
	}
	fh, _ := c.FormFile("file")

	doc, err := h.documentService.Upload(c.Request.Context(), middleware.ActorID(c), c.Param("id"), service.UploadDocumentInput{
		Type:       c.PostForm("type"),
		ExpiryDate: c.PostForm("expiryDate"),
		FileName:   fh.Filename,
		Data:       data,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, doc))
}

// ListDocuments returns the documents of one rider, newest first
func (h *DocumentHandler) ListDocuments(c *gin.Context) {
	docs, err := h.documentService.ListByRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, docs))
}

// UpdateStatus verifies or rejects a document; rejections need a reason
func (h *DocumentHandler) UpdateStatus(c *gin.Context) {
	var req service.UpdateDocumentStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	doc, err := h.documentService.UpdateStatus(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, doc))
}

// Download returns a short lived signed URL for the stored file
func (h *DocumentHandler) Download(c *gin.Context) {
	dl, err := h.documentService.Download(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, dl))
}

func (h *DocumentHandler) DeleteDocument(c *gin.Context) {
	if err := h.documentService.Delete(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Document deleted successfully"}))
}
