package service

import (
	"context"
	"fmt"
	"sort"

	"fleetops/internal/metrics"
	"fleetops/internal/rbac"
	"fleetops/internal/repository"

	"github.com/google/uuid"
)

// PermissionSet is a set of canonical permission names.
type PermissionSet map[string]struct{}

// Has reports whether the set contains name, accepting either separator.
func (s PermissionSet) Has(name string) bool {
	_, ok := s[rbac.NormalizePermission(name)]
	return ok
}

// Sorted returns the names in lexical order.
func (s PermissionSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for n := range s {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// AuthorizationService answers permission questions from the store on every call.
type AuthorizationService interface {
	ResolveEffectivePermissions(ctx context.Context, userID uuid.UUID) (PermissionSet, error)
	Authorize(ctx context.Context, userID uuid.UUID, permission string) (bool, error)
}

type authorizationService struct {
	userRepo repository.UserRepository
	roleRepo repository.RoleRepository
	metrics  *metrics.Metrics
}

func NewAuthorizationService(userRepo repository.UserRepository, roleRepo repository.RoleRepository, m *metrics.Metrics) AuthorizationService {
	if m == nil {
		m = metrics.NewNop()
	}
	return &authorizationService{userRepo: userRepo, roleRepo: roleRepo, metrics: m}
}

func (s *authorizationService) ResolveEffectivePermissions(ctx context.Context, userID uuid.UUID) (PermissionSet, error) {
	set, _, err := s.resolve(ctx, userID)
	return set, err
}

// resolve returns the stored permission names of the user's active roles and
// whether one of those roles is Super Admin. Super Admin also holds the catalog.
func (s *authorizationService) resolve(ctx context.Context, userID uuid.UUID) (PermissionSet, bool, error) {
	set := PermissionSet{}

	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return set, false, nil
		}
		return nil, false, fmt.Errorf("failed to load user: %w", err)
	}
	if !user.IsActive {
		return set, false, nil
	}

	roles, err := s.roleRepo.ListForUser(ctx, userID)
	if err != nil {
		return nil, false, fmt.Errorf("failed to load user roles: %w", err)
	}

	super := false
	for _, role := range roles {
		if !role.IsActive {
			continue
		}
		if role.Name == rbac.SuperAdminRole {
			super = true
			for _, p := range rbac.AllPermissions() {
				set[p] = struct{}{}
			}
		}
		for _, p := range role.Permissions {
			set[rbac.NormalizePermission(p.Name)] = struct{}{}
		}
	}
	return set, super, nil
}

// Authorize grants every permission to Super Admin, including names outside
// the catalog; everyone else needs the name in their effective set.
func (s *authorizationService) Authorize(ctx context.Context, userID uuid.UUID, permission string) (bool, error) {
	set, super, err := s.resolve(ctx, userID)
	if err != nil {
		return false, err
	}
	allowed := super || set.Has(permission)
	s.metrics.Authorization(allowed)
	return allowed, nil
}
