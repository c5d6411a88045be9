package handler

import (
	"io"
	"net/http"
	"strconv"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/pagination"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

// maxUploadBytes bounds the CSV accepted by the bulk upload endpoint.
const maxUploadBytes = 5 << 20

type RiderHandler struct {
	riderService service.RiderService
	auth         *middleware.Authenticator
}

func NewRiderHandler(riderService service.RiderService, auth *middleware.Authenticator) *RiderHandler {
	return &RiderHandler{riderService: riderService, auth: auth}
}

func (h *RiderHandler) RegisterRoutes(router *gin.RouterGroup) {
	riders := router.Group("/api/riders")
	{
		riders.GET("", h.auth.RequirePermission("riders.read"), h.ListRiders)
		riders.POST("", h.auth.RequirePermission("riders.write"), h.CreateRider)
		riders.GET("/template", h.auth.RequirePermission("riders.read"), h.DownloadTemplate)
		riders.POST("/bulk-upload", h.auth.RequirePermission("riders.write"), h.BulkUpload)
		riders.GET("/:id", h.auth.RequirePermission("riders.read"), h.GetRider)
		riders.PATCH("/:id", h.auth.RequirePermission("riders.write"), h.UpdateRider)
		riders.DELETE("/:id", h.auth.RequirePermission("riders.delete"), h.DeleteRider)
	}
}

// CreateRider godoc
// @Summary      Onboard a rider
// @Description  Assigns a rider code and initial password, then emails the credentials and generates the VISA and SIM acknowledgements when applicable
// @Tags         riders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        payload  body      service.RiderInput  true  "Rider"
// @Success      201      {object}  response.Response{data=service.CreateRiderResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/riders [post]
func (h *RiderHandler) CreateRider(c *gin.Context) {
	var req service.RiderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.riderService.CreateRider(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, res))
}

// ListRiders godoc
// @Summary      List riders
// @Tags         riders
// @Produce      json
// @Security     BearerAuth
// @Param        page              query  int     false  "Page number (default 1)"
// @Param        limit             query  int     false  "Items per page (default 20)"
// @Param        search            query  string  false  "Matches code, name, phone, email or identity numbers"
// @Param        employmentStatus  query  string  false  "PENDING, ACTIVE, SUSPENDED or TERMINATED"
// @Param        onboardingStatus  query  string  false  "PENDING, IN_PROGRESS, COMPLETED or REJECTED"
// @Param        includeInactive   query  bool    false  "Include soft deleted riders"
// @Success      200  {object}  response.Response{data=response.Page}
// @Router       /api/riders [get]
func (h *RiderHandler) ListRiders(c *gin.Context) {
	p := pagination.Parse(c)
	includeInactive, _ := strconv.ParseBool(c.Query("includeInactive"))

	riders, total, err := h.riderService.ListRiders(c.Request.Context(), service.ListRidersQuery{
		Search:           c.Query("search"),
		EmploymentStatus: c.Query("employmentStatus"),
		OnboardingStatus: c.Query("onboardingStatus"),
		IncludeInactive:  includeInactive,
		Offset:           p.Offset,
		Limit:            p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Wrap(riders, total)))
}

// GetRider returns a rider with documents and acknowledgements
func (h *RiderHandler) GetRider(c *gin.Context) {
	rider, err := h.riderService.GetRider(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rider))
}

func (h *RiderHandler) UpdateRider(c *gin.Context) {
	var req service.UpdateRiderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	rider, err := h.riderService.UpdateRider(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, rider))
}

// DeleteRider deactivates a rider; the row and its code are kept
func (h *RiderHandler) DeleteRider(c *gin.Context) {
	if err := h.riderService.DeleteRider(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Rider deleted successfully"}))
}

// BulkUpload godoc
// @Summary      Bulk onboard riders from CSV
// @Description  Each row is onboarded independently; failed rows are reported with their line number
// @Tags         riders
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        file  formData  file  true  "CSV file"
// @Success      200   {object}  response.Response{data=service.BulkUploadResult}
// @Failure      400   {object}  response.Response
// @Router       /api/riders/bulk-upload [post]
func (h *RiderHandler) BulkUpload(c *gin.Context) {
	data, ok := readUpload(c, "file", maxUploadBytes)
	if !ok {
		return
	}

	res, err := h.riderService.BulkUpload(c.Request.Context(), middleware.ActorID(c), data)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// DownloadTemplate serves the CSV header and an example row for bulk uploads
func (h *RiderHandler) DownloadTemplate(c *gin.Context) {
	tmpl, err := h.riderService.BulkTemplate()
	if err != nil {
		respondError(c, err)
		return
	}
	c.Header("Content-Disposition", `attachment; filename="rider_upload_template.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", tmpl)
}

// readUpload reads a multipart file field up to limit bytes. It writes the
// error response itself and reports false on failure.
func readUpload(c *gin.Context, field string, limit int64) ([]byte, bool) {
	fh, err := c.FormFile(field)
	if err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Missing file field '"+field+"'"))
		return nil, false
	}
	if fh.Size > limit {
		c.JSON(http.StatusRequestEntityTooLarge, response.Error(http.StatusRequestEntityTooLarge, "File is too large"))
		return nil, false
	}

	f, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, limit+1))
	if err != nil {
		respondError(c, err)
		return nil, false
	}
	if int64(len(data)) > limit {
		c.JSON(http.StatusRequestEntityTooLarge, response.Error(http.StatusRequestEntityTooLarge, "File is too large"))
		return nil, false
	}
	return data, true
}
