package service

import (
	"context"
	"fmt"
	"strings"

	"fleetops/internal/model"
	"fleetops/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

// DTOs for Request validation
type CreateUserRequest struct {
	Email     string   `json:"email" validate:"required,email,max=255"`
	Phone     string   `json:"phone" validate:"omitempty,min=10,max=20"`
	Password  string   `json:"password" validate:"required,min=8,max=72"`
	FirstName string   `json:"firstName" validate:"required,max=100"`
	LastName  string   `json:"lastName" validate:"max=100"`
	RoleIDs   []string `json:"roleIds" validate:"dive,uuid"`
}

type UpdateUserRequest struct {
	Email     *string `json:"email" validate:"omitempty,email,max=255"`
	Phone     *string `json:"phone" validate:"omitempty,max=20"`
	Password  *string `json:"password" validate:"omitempty,min=8,max=72"`
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
	IsActive  *bool   `json:"isActive"`
}

type SetUserRolesRequest struct {
	RoleIDs []string `json:"roleIds" validate:"dive,uuid"`
}

type RoleSummary struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// UserResponse never exposes the password hash
type UserResponse struct {
	ID          string        `json:"id"`
	Email       string        `json:"email"`
	Phone       *string       `json:"phone"`
	FirstName   string        `json:"firstName"`
	LastName    string        `json:"lastName"`
	IsActive    bool          `json:"isActive"`
	LastLoginAt *string       `json:"lastLoginAt"`
	Roles       []RoleSummary `json:"roles"`
	CreatedAt   string        `json:"createdAt"`
	UpdatedAt   string        `json:"updatedAt"`
}

type ListUsersQuery struct {
	Search          string
	IncludeInactive bool
	Offset          int
	Limit           int
}

// UserService defines the interface for business logic related to User
type UserService interface {
	CreateUser(ctx context.Context, actorID *uuid.UUID, req CreateUserRequest) (*UserResponse, error)
	GetUser(ctx context.Context, id string) (*UserResponse, error)
	ListUsers(ctx context.Context, q ListUsersQuery) ([]UserResponse, int64, error)
	UpdateUser(ctx context.Context, actorID *uuid.UUID, id string, req UpdateUserRequest) (*UserResponse, error)
	DeleteUser(ctx context.Context, actorID *uuid.UUID, id string) error
	SetUserRoles(ctx context.Context, actorID *uuid.UUID, id string, roleIDs []string) (*UserResponse, error)
}

type userService struct {
	userRepo  repository.UserRepository
	roleRepo  repository.RoleRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
}

// NewUserService returns a new instance of UserService
func NewUserService(
	userRepo repository.UserRepository,
	roleRepo repository.RoleRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
) UserService {
	return &userService{
		userRepo:  userRepo,
		roleRepo:  roleRepo,
		auditRepo: auditRepo,
		txManager: txManager,
	}
}

func (s *userService) CreateUser(ctx context.Context, actorID *uuid.UUID, req CreateUserRequest) (*UserResponse, error) {
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Phone = strings.TrimSpace(req.Phone)
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:     req.Email,
		Phone:     optional(req.Phone),
		Password:  string(hashed),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  true,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkUnique(txCtx, user.Email, user.Phone, uuid.Nil); err != nil {
			return err
		}
		roles, err := s.loadRoles(txCtx, req.RoleIDs)
		if err != nil {
			return err
		}
		if err := s.userRepo.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := s.userRepo.AddRoles(txCtx, user, roles); err != nil {
			return fmt.Errorf("failed to assign roles: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionCreateUser, user.ID.String(), user.Email, map[string]interface{}{
			"roles": roleNames(roles),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, user.ID.String())
}

// checkUnique rejects an email or phone already held by another user.
func (s *userService) checkUnique(ctx context.Context, email string, phone *string, self uuid.UUID) error {
	if u, err := s.userRepo.GetByEmail(ctx, email); err == nil && u.ID != self {
		return &ConflictError{Message: "email already exists", Fields: []string{"email"}}
	} else if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check email: %w", err)
	}

	if phone == nil {
		return nil
	}
	if u, err := s.userRepo.GetByPhone(ctx, *phone); err == nil && u.ID != self {
		return &ConflictError{Message: "phone already exists", Fields: []string{"phone"}}
	} else if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check phone: %w", err)
	}
	return nil
}

// loadRoles resolves role ids and fails when any of them is unknown.
func (s *userService) loadRoles(ctx context.Context, raw []string) ([]model.Role, error) {
	ids := make([]uuid.UUID, 0, len(raw))
	seen := make(map[uuid.UUID]bool, len(raw))
	for _, r := range raw {
		id, err := uuid.Parse(r)
		if err != nil {
			return nil, invalid("roleIds", "invalid role id "+r)
		}
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}

	roles, err := s.roleRepo.FindByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load roles: %w", err)
	}
	if len(roles) != len(ids) {
		return nil, invalid("roleIds", "one or more roles do not exist")
	}
	return roles, nil
}

func (s *userService) GetUser(ctx context.Context, id string) (*UserResponse, error) {
	userID, err := parseID("user", id)
	if err != nil {
		return nil, err
	}
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr("user", err)
	}
	return toUserResponse(user), nil
}

func (s *userService) ListUsers(ctx context.Context, q ListUsersQuery) ([]UserResponse, int64, error) {
	users, total, err := s.userRepo.List(ctx, repository.UserFilter{
		Search:          q.Search,
		IncludeInactive: q.IncludeInactive,
		Offset:          q.Offset,
		Limit:           q.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch users: %w", err)
	}

	res := make([]UserResponse, 0, len(users))
	for i := range users {
		res = append(res, *toUserResponse(&users[i]))
	}
	return res, total, nil
}

func (s *userService) UpdateUser(ctx context.Context, actorID *uuid.UUID, id string, req UpdateUserRequest) (*UserResponse, error) {
	userID, err := parseID("user", id)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.userRepo.GetByID(txCtx, userID)
		if err != nil {
			return lookupErr("user", err)
		}
		changed := []string{}

		if req.Email != nil {
			email := strings.ToLower(strings.TrimSpace(*req.Email))
			if email != user.Email {
				user.Email = email
				changed = append(changed, "email")
			}
		}
		if req.Phone != nil {
			phone := strings.TrimSpace(*req.Phone)
			if phone != "" && len(phone) < 10 {
				return invalid("phone", "must be at least 10 characters")
			}
			user.Phone = optional(phone)
			changed = append(changed, "phone")
		}
		if req.FirstName != nil {
			name := strings.TrimSpace(*req.FirstName)
			if name == "" {
				return invalid("firstName", "is required")
			}
			user.FirstName = name
			changed = append(changed, "firstName")
		}
		if req.LastName != nil {
			user.LastName = strings.TrimSpace(*req.LastName)
			changed = append(changed, "lastName")
		}
		if req.Password != nil {
			hashed, err := bcrypt.GenerateFromPassword([]byte(*req.Password), bcrypt.DefaultCost)
			if err != nil {
				return fmt.Errorf("failed to hash password: %w", err)
			}
			user.Password = string(hashed)
			changed = append(changed, "password")
		}
		if req.IsActive != nil && *req.IsActive != user.IsActive {
			if !*req.IsActive && actorID != nil && *actorID == user.ID {
				return forbidden("you cannot deactivate your own account")
			}
			user.IsActive = *req.IsActive
			changed = append(changed, "isActive")
		}

		if err := s.checkUnique(txCtx, user.Email, user.Phone, user.ID); err != nil {
			return err
		}
		if err := s.userRepo.Update(txCtx, user); err != nil {
			return fmt.Errorf("failed to update user: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionUpdateUser, user.ID.String(), user.Email, map[string]interface{}{
			"fields": changed,
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, id)
}

// DeleteUser deactivates the account; rows are kept for audit history.
func (s *userService) DeleteUser(ctx context.Context, actorID *uuid.UUID, id string) error {
	userID, err := parseID("user", id)
	if err != nil {
		return err
	}
	if actorID != nil && *actorID == userID {
		return forbidden("you cannot delete your own account")
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.userRepo.GetByID(txCtx, userID)
		if err != nil {
			return lookupErr("user", err)
		}
		if err := s.userRepo.SetActive(txCtx, userID, false); err != nil {
			return fmt.Errorf("failed to deactivate user: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionDeleteUser, user.ID.String(), user.Email, nil)
	})
}

// SetUserRoles makes the user's role links equal to roleIDs, touching only the difference.
func (s *userService) SetUserRoles(ctx context.Context, actorID *uuid.UUID, id string, roleIDs []string) (*UserResponse, error) {
	userID, err := parseID("user", id)
	if err != nil {
		return nil, err
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		user, err := s.userRepo.GetByID(txCtx, userID)
		if err != nil {
			return lookupErr("user", err)
		}
		desired, err := s.loadRoles(txCtx, roleIDs)
		if err != nil {
			return err
		}

		have := make(map[uuid.UUID]bool, len(user.Roles))
		for _, r := range user.Roles {
			have[r.ID] = true
		}
		want := make(map[uuid.UUID]bool, len(desired))
		for _, r := range desired {
			want[r.ID] = true
		}

		var toAdd, toRemove []model.Role
		for _, r := range desired {
			if !have[r.ID] {
				toAdd = append(toAdd, r)
			}
		}
		for _, r := range user.Roles {
			if !want[r.ID] {
				toRemove = append(toRemove, r)
			}
		}

		if err := s.userRepo.AddRoles(txCtx, user, toAdd); err != nil {
			return fmt.Errorf("failed to add roles: %w", err)
		}
		if err := s.userRepo.RemoveRoles(txCtx, user, toRemove); err != nil {
			return fmt.Errorf("failed to remove roles: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionSetUserRoles, user.ID.String(), user.Email, map[string]interface{}{
			"added":   roleNames(toAdd),
			"removed": roleNames(toRemove),
		})
	})
	if err != nil {
		return nil, err
	}

	return s.GetUser(ctx, id)
}

// --- Helpers ---

// optional trims s and maps an empty result to nil.
func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}

func roleNames(roles []model.Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	return names
}

// Helper: parse model to standard json API response
func toUserResponse(user *model.User) *UserResponse {
	var lastLogin *string
	if user.LastLoginAt != nil {
		s := user.LastLoginAt.Format(timeLayout)
		lastLogin = &s
	}

	roles := make([]RoleSummary, 0, len(user.Roles))
	for _, r := range user.Roles {
		roles = append(roles, RoleSummary{ID: r.ID.String(), Name: r.Name})
	}

	return &UserResponse{
		ID:          user.ID.String(),
		Email:       user.Email,
		Phone:       user.Phone,
		FirstName:   user.FirstName,
		LastName:    user.LastName,
		IsActive:    user.IsActive,
		LastLoginAt: lastLogin,
		Roles:       roles,
		CreatedAt:   user.CreatedAt.Format(timeLayout),
		UpdatedAt:   user.UpdatedAt.Format(timeLayout),
	}
}
