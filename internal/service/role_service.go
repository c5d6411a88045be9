package service

import (
	"context"
	"fmt"
	"strings"

	"fleetops/internal/model"
	"fleetops/internal/rbac"
	"fleetops/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// --- DTOs ---

type CreateRoleRequest struct {
	Name        string   `json:"name" validate:"required,max=100"`
	Description string   `json:"description" validate:"max=1000"`
	Permissions []string `json:"permissions"`
}

// UpdateRoleRequest is a partial update; nil fields are left untouched.
type UpdateRoleRequest struct {
	Name        *string   `json:"name" validate:"omitempty,max=100"`
	Description *string   `json:"description" validate:"omitempty,max=1000"`
	Permissions *[]string `json:"permissions"`
	IsActive    *bool     `json:"isActive"`
}

type SetPermissionsRequest struct {
	Permissions []string `json:"permissions"`
}

type RoleResponse struct {
	ID          string   `json:"id"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	IsActive    bool     `json:"isActive"`
	IsSystem    bool     `json:"isSystem"`
	Permissions []string `json:"permissions"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

type PermissionResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description"`
}

type ModulesResponse struct {
	Modules     []rbac.Module     `json:"modules"`
	PresetRoles []rbac.PresetRole `json:"presetRoles"`
	PresetKeys  []string          `json:"presetKeys"`
}

const (
	PresetCreated = "created"
	PresetExists  = "exists"
)

type PresetResult struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Status string `json:"status"`
}

// --- Interface ---

type RoleService interface {
	ListRoles(ctx context.Context) ([]RoleResponse, error)
	GetRole(ctx context.Context, id string) (*RoleResponse, error)
	CreateRole(ctx context.Context, actorID *uuid.UUID, req CreateRoleRequest) (*RoleResponse, error)
	UpdateRole(ctx context.Context, actorID *uuid.UUID, id string, req UpdateRoleRequest) (*RoleResponse, error)
	SetPermissions(ctx context.Context, actorID *uuid.UUID, id string, permissions []string) (*RoleResponse, error)
	DeleteRole(ctx context.Context, actorID *uuid.UUID, id string) error
	InitializePresets(ctx context.Context, actorID *uuid.UUID) ([]PresetResult, error)
	ListPermissions(ctx context.Context) ([]PermissionResponse, error)
	ListModules() ModulesResponse
}

type roleService struct {
	roleRepo  repository.RoleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

func NewRoleService(
	roleRepo repository.RoleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) RoleService {
	return &roleService{
		roleRepo:  roleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
	}
}

// --- Implementation ---

func (s *roleService) ListRoles(ctx context.Context) ([]RoleResponse, error) {
	roles, err := s.roleRepo.ListAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch roles: %w", err)
	}

	res := make([]RoleResponse, 0, len(roles))
	for _, r := range roles {
		res = append(res, toRoleResponse(r))
	}
	return res, nil
}

func (s *roleService) GetRole(ctx context.Context, id string) (*RoleResponse, error) {
	roleID, err := parseID("role", id)
	if err != nil {
		return nil, err
	}
	return s.loadRole(ctx, roleID)
}

func (s *roleService) loadRole(ctx context.Context, id uuid.UUID) (*RoleResponse, error) {
	role, err := s.roleRepo.FindByIDWithPermissions(ctx, id)
	if err != nil {
		return nil, lookupErr("role", err)
	}
	resp := toRoleResponse(*role)
	return &resp, nil
}

func (s *roleService) CreateRole(ctx context.Context, actorID *uuid.UUID, req CreateRoleRequest) (*RoleResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var role *model.Role
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		role, err = createRole(txCtx, s.roleRepo, req.Name, req.Description, req.Permissions)
		if err != nil {
			return err
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionCreateRole, role.ID.String(), role.Name, map[string]interface{}{
			"permissions": role.PermissionNames(),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.loadRole(ctx, role.ID)
}

// createRole inserts the role and links its permissions, creating unknown ones.
func createRole(ctx context.Context, roles repository.RoleRepository, name, description string, permissions []string) (*model.Role, error) {
	if _, err := roles.FindByName(ctx, name); err == nil {
		return nil, conflict("role %q already exists", name)
	} else if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to check role name: %w", err)
	}

	perms, err := resolvePermissions(ctx, roles, permissions)
	if err != nil {
		return nil, err
	}

	role := &model.Role{Name: name, Description: description, IsActive: true}
	if err := roles.Create(ctx, role); err != nil {
		return nil, fmt.Errorf("failed to create role: %w", err)
	}
	if err := roles.AddPermissions(ctx, role, perms); err != nil {
		return nil, fmt.Errorf("failed to assign permissions: %w", err)
	}
	role.Permissions = perms
	return role, nil
}

// resolvePermissions normalises names and finds or creates the matching rows.
func resolvePermissions(ctx context.Context, roles repository.RoleRepository, names []string) ([]model.Permission, error) {
	canonical := rbac.NormalizeSet(names)

	var issues []FieldIssue
	for _, name := range canonical {
		if resource, action := rbac.SplitPermission(name); resource == "" || action == "" {
			issues = append(issues, FieldIssue{Field: "permissions", Message: fmt.Sprintf("%q must have the form resource.action", name)})
		}
	}
	if len(issues) > 0 {
		return nil, &ValidationError{Issues: issues}
	}

	perms := make([]model.Permission, 0, len(canonical))
	for _, name := range canonical {
		resource, action := rbac.SplitPermission(name)
		p := model.Permission{Name: name, Resource: resource, Action: action, Description: rbac.Describe(name)}
		if err := roles.FindOrCreatePermission(ctx, &p); err != nil {
			return nil, fmt.Errorf("failed to resolve permission %q: %w", name, err)
		}
		perms = append(perms, p)
	}
	return perms, nil
}

func (s *roleService) UpdateRole(ctx context.Context, actorID *uuid.UUID, id string, req UpdateRoleRequest) (*RoleResponse, error) {
	roleID, err := parseID("role", id)
	if err != nil {
		return nil, err
	}
	if req.Name != nil {
		trimmed := strings.TrimSpace(*req.Name)
		req.Name = &trimmed
		if trimmed == "" {
			return nil, invalid("name", "is required")
		}
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByID(txCtx, roleID)
		if err != nil {
			return lookupErr("role", err)
		}
		changes := map[string]interface{}{}

		if req.Name != nil && *req.Name != role.Name {
			if role.Name == rbac.SuperAdminRole {
				return forbidden("the %s role cannot be renamed", rbac.SuperAdminRole)
			}
			if _, err := s.roleRepo.FindByName(txCtx, *req.Name); err == nil {
				return conflict("role %q already exists", *req.Name)
			} else if !repository.IsNotFound(err) {
				return fmt.Errorf("failed to check role name: %w", err)
			}
			changes["name"] = *req.Name
			role.Name = *req.Name
		}
		if req.Description != nil {
			changes["description"] = *req.Description
			role.Description = *req.Description
		}
		if req.IsActive != nil && *req.IsActive != role.IsActive {
			if role.Name == rbac.SuperAdminRole && !*req.IsActive {
				return forbidden("the %s role cannot be deactivated", rbac.SuperAdminRole)
			}
			changes["isActive"] = *req.IsActive
			role.IsActive = *req.IsActive
		}

		if err := s.roleRepo.Update(txCtx, role); err != nil {
			return fmt.Errorf("failed to update role: %w", err)
		}

		if req.Permissions != nil {
			added, removed, err := s.setPermissions(txCtx, role, *req.Permissions)
			if err != nil {
				return err
			}
			changes["addedPermissions"] = added
			changes["removedPermissions"] = removed
		}

		return s.auditRepo.Record(txCtx, actorID, model.ActionUpdateRole, role.ID.String(), role.Name, changes)
	})
	if err != nil {
		return nil, err
	}

	return s.loadRole(ctx, roleID)
}

func (s *roleService) SetPermissions(ctx context.Context, actorID *uuid.UUID, id string, permissions []string) (*RoleResponse, error) {
	roleID, err := parseID("role", id)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByID(txCtx, roleID)
		if err != nil {
			return lookupErr("role", err)
		}
		added, removed, err := s.setPermissions(txCtx, role, permissions)
		if err != nil {
			return err
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionSetRolePermissions, role.ID.String(), role.Name, map[string]interface{}{
			"added":   added,
			"removed": removed,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.loadRole(ctx, roleID)
}

// setPermissions makes the role's links equal to names by appending the
// missing ones and deleting the extra ones. Links present in both are kept.
func (s *roleService) setPermissions(ctx context.Context, role *model.Role, names []string) (added, removed []string, err error) {
	current, err := s.roleRepo.FindByIDWithPermissions(ctx, role.ID)
	if err != nil {
		return nil, nil, lookupErr("role", err)
	}
	desired, err := resolvePermissions(ctx, s.roleRepo, names)
	if err != nil {
		return nil, nil, err
	}

	have := make(map[string]bool, len(current.Permissions))
	for _, p := range current.Permissions {
		have[p.Name] = true
	}
	want := make(map[string]bool, len(desired))
	for _, p := range desired {
		want[p.Name] = true
	}

	var toAdd, toRemove []model.Permission
	for _, p := range desired {
		if !have[p.Name] {
			toAdd = append(toAdd, p)
			added = append(added, p.Name)
		}
	}
	for _, p := range current.Permissions {
		if !want[p.Name] {
			toRemove = append(toRemove, p)
			removed = append(removed, p.Name)
		}
	}

	if err := s.roleRepo.AddPermissions(ctx, current, toAdd); err != nil {
		return nil, nil, fmt.Errorf("failed to add permissions: %w", err)
	}
	if err := s.roleRepo.RemovePermissions(ctx, current, toRemove); err != nil {
		return nil, nil, fmt.Errorf("failed to remove permissions: %w", err)
	}
	return added, removed, nil
}

func (s *roleService) DeleteRole(ctx context.Context, actorID *uuid.UUID, id string) error {
	roleID, err := parseID("role", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		role, err := s.roleRepo.FindByID(txCtx, roleID)
		if err != nil {
			return lookupErr("role", err)
		}
		if role.Name == rbac.SuperAdminRole {
			return forbidden("the %s role cannot be deleted", rbac.SuperAdminRole)
		}

		holders, err := s.roleRepo.CountUsers(txCtx, roleID)
		if err != nil {
			return fmt.Errorf("failed to count role holders: %w", err)
		}
		if holders > 0 {
			return conflict("role %q is assigned to %d user(s)", role.Name, holders)
		}

		if err := s.roleRepo.Delete(txCtx, roleID); err != nil {
			return fmt.Errorf("failed to delete role: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionDeleteRole, role.ID.String(), role.Name, nil)
	})
}

// InitializePresets creates each preset role whose name is not taken yet.
// Existing roles are reported and never modified.
func (s *roleService) InitializePresets(ctx context.Context, actorID *uuid.UUID) ([]PresetResult, error) {
	presets := rbac.PresetRoles()
	results := make([]PresetResult, 0, len(presets))
	var created []string

	for _, p := range presets {
		status := PresetExists
		err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
			if _, err := s.roleRepo.FindByName(txCtx, p.Name); err == nil {
				return nil
			} else if !repository.IsNotFound(err) {
				return fmt.Errorf("failed to check preset %s: %w", p.Key, err)
			}
			if _, err := createRole(txCtx, s.roleRepo, p.Name, p.Description, p.Permissions); err != nil {
				return fmt.Errorf("failed to create preset %s: %w", p.Key, err)
			}
			status = PresetCreated
			return nil
		})
		if err != nil {
			// a concurrent initializer may have won the insert
			if _, ferr := s.roleRepo.FindByName(ctx, p.Name); ferr != nil {
				return nil, err
			}
			status = PresetExists
		}
		if status == PresetCreated {
			created = append(created, p.Key)
		}
		results = append(results, PresetResult{Key: p.Key, Name: p.Name, Status: status})
	}

	if err := s.auditRepo.Record(ctx, actorID, model.ActionInitializePresets, "", "", map[string]interface{}{
		"created": created,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to audit preset initialization")
	}
	log.Info().Strs("created", created).Msg("preset roles initialized")

	return results, nil
}

func (s *roleService) ListPermissions(ctx context.Context) ([]PermissionResponse, error) {
	perms, err := s.roleRepo.ListPermissions(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch permissions: %w", err)
	}

	res := make([]PermissionResponse, 0, len(perms))
	for _, p := range perms {
		res = append(res, PermissionResponse{
			ID:          p.ID.String(),
			Name:        p.Name,
			Resource:    p.Resource,
			Action:      p.Action,
			Description: p.Description,
		})
	}
	return res, nil
}

func (s *roleService) ListModules() ModulesResponse {
	return ModulesResponse{
		Modules:     rbac.Modules(),
		PresetRoles: rbac.PresetRoles(),
		PresetKeys:  rbac.PresetKeys(),
	}
}

// --- Helpers ---

func toRoleResponse(r model.Role) RoleResponse {
	names := r.PermissionNames()
	if r.Name == rbac.SuperAdminRole {
		names = rbac.NormalizeSet(append(names, rbac.AllPermissions()...))
	}

	return RoleResponse{
		ID:          r.ID.String(),
		Name:        r.Name,
		Description: r.Description,
		IsActive:    r.IsActive,
		IsSystem:    r.Name == rbac.SuperAdminRole,
		Permissions: names,
		CreatedAt:   r.CreatedAt.Format(timeLayout),
		UpdatedAt:   r.UpdatedAt.Format(timeLayout),
	}
}
