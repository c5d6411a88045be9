package handler

import (
	"net/http"

	"fleetops/internal/middleware"
	"fleetops/internal/service"
	"fleetops/pkg/response"

	"github.com/gin-gonic/gin"
)

type RoleHandler struct {
	roleService service.RoleService
	auth        *middleware.Authenticator
}

func NewRoleHandler(roleService service.RoleService, auth *middleware.Authenticator) *RoleHandler {
	return &RoleHandler{roleService: roleService, auth: auth}
}

func (h *RoleHandler) RegisterRoutes(router *gin.RouterGroup) {
	roles := router.Group("/api/roles")
	{
		roles.GET("", h.auth.RequirePermission("settings.read"), h.ListRoles)
		roles.GET("/modules", h.auth.RequirePermission("settings.read"), h.ListModules)
		roles.POST("/initialize-presets", h.auth.RequirePermission("settings.write"), h.InitializePresets)
		roles.GET("/:id", h.auth.RequirePermission("settings.read"), h.GetRole)
		roles.POST("", h.auth.RequirePermission("settings.write"), h.CreateRole)
		roles.PUT("/:id", h.auth.RequirePermission("settings.write"), h.UpdateRole)
		roles.DELETE("/:id", h.auth.RequirePermission("settings.delete"), h.DeleteRole)
		roles.PUT("/:id/permissions", h.auth.RequirePermission("settings.write"), h.UpdateRolePermissions)
	}

	// Permissions list
	perms := router.Group("/api/permissions")
	perms.Use(h.auth.RequirePermission("settings.read"))
	{
		perms.GET("", h.ListPermissions)
	}
}

// ListRoles godoc
// @Summary  List roles with their permissions
// @Tags     roles
// @Produce  json
// @Success  200 {object} response.Response{data=[]service.RoleResponse}
// @Router   /api/roles [get]
func (h *RoleHandler) ListRoles(c *gin.Context) {
	roles, err := h.roleService.ListRoles(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, roles))
}

// GetRole returns a single role by ID
func (h *RoleHandler) GetRole(c *gin.Context) {
	role, err := h.roleService.GetRole(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// CreateRole godoc
// @Summary  Create a custom role
// @Tags     roles
// @Accept   json
// @Produce  json
// @Param    body body service.CreateRoleRequest true "Role"
// @Success  201 {object} response.Response{data=service.RoleResponse}
// @Failure  409 {object} response.Response
// @Router   /api/roles [post]
func (h *RoleHandler) CreateRole(c *gin.Context) {
	var req service.CreateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role, err := h.roleService.CreateRole(c.Request.Context(), middleware.ActorID(c), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, role))
}

// UpdateRole applies a partial update; a permissions list replaces the role's set
func (h *RoleHandler) UpdateRole(c *gin.Context) {
	var req service.UpdateRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role, err := h.roleService.UpdateRole(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// DeleteRole deletes a role no user holds
func (h *RoleHandler) DeleteRole(c *gin.Context) {
	if err := h.roleService.DeleteRole(c.Request.Context(), middleware.ActorID(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Role deleted successfully"}))
}

// ListPermissions returns all stored permissions
func (h *RoleHandler) ListPermissions(c *gin.Context) {
	perms, err := h.roleService.ListPermissions(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, perms))
}

// UpdateRolePermissions sets the full permission list of a role
func (h *RoleHandler) UpdateRolePermissions(c *gin.Context) {
	var req service.SetPermissionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	role, err := h.roleService.SetPermissions(c.Request.Context(), middleware.ActorID(c), c.Param("id"), req.Permissions)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, role))
}

// ListModules godoc
// @Summary  Permission catalog and preset roles
// @Tags     roles
// @Produce  json
// @Success  200 {object} response.Response{data=service.ModulesResponse}
// @Router   /api/roles/modules [get]
func (h *RoleHandler) ListModules(c *gin.Context) {
	c.JSON(http.StatusOK, response.Success(http.StatusOK, h.roleService.ListModules()))
}

// InitializePresets creates the missing preset roles and leaves existing ones untouched
func (h *RoleHandler) InitializePresets(c *gin.Context) {
	results, err := h.roleService.InitializePresets(c.Request.Context(), middleware.ActorID(c))
	if err != nil {
		respondError(c, err)
		return
	}

	created := 0
	for _, r := range results {
		if r.Status == service.PresetCreated {
			created++
		}
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{
		"created": created,
		"results": results,
	}))
}
