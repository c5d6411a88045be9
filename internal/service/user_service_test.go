package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/model"
	"fleetops/internal/repository"
)

func newUserService(r *repos) UserService {
	return NewUserService(r.users, r.roles, r.audit, r.tx)
}

func TestCreateUser(t *testing.T) {
	r := newRepos(t)
	svc := newUserService(r)
	ctx := context.Background()
	role := r.seedRole(t, "Dispatcher", true, "jobs.read")

	got, err := svc.CreateUser(ctx, nil, CreateUserRequest{
		Email:     " Jane@Example.com ",
		Phone:     "0501234567",
		Password:  "s3cret-pass",
		FirstName: "Jane",
		LastName:  "Doe",
		RoleIDs:   []string{role.ID.String(), role.ID.String()},
	})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", got.Email)
	assert.True(t, got.IsActive)
	require.Len(t, got.Roles, 1)
	assert.Equal(t, "Dispatcher", got.Roles[0].Name)

	stored, err := r.users.GetByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte("s3cret-pass")))

	_, err = svc.CreateUser(ctx, nil, CreateUserRequest{
		Email: "jane@example.com", Password: "another-pass", FirstName: "J",
	})
	var cerr *ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"email"}, cerr.Fields)

	_, err = svc.CreateUser(ctx, nil, CreateUserRequest{
		Email: "other@example.com", Phone: "0501234567", Password: "another-pass", FirstName: "O",
	})
	assert.ErrorIs(t, err, ErrConflict)

	_, err = svc.CreateUser(ctx, nil, CreateUserRequest{
		Email: "ghost@example.com", Password: "another-pass", FirstName: "G", RoleIDs: []string{uuid.NewString()},
	})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = svc.CreateUser(ctx, nil, CreateUserRequest{Email: "bad", Password: "short"})
	var verr *ValidationError
	require.True(t, errors.As(err, &verr))
	assert.Len(t, verr.Issues, 3)
}

func TestUpdateAndDeleteUser(t *testing.T) {
	r := newRepos(t)
	svc := newUserService(r)
	ctx := context.Background()

	admin := r.seedUser(t, "admin@example.com", true)
	user := r.seedUser(t, "rider.ops@example.com", true)
	r.seedUser(t, "taken@example.com", true)

	taken := "taken@example.com"
	_, err := svc.UpdateUser(ctx, &admin.ID, user.ID.String(), UpdateUserRequest{Email: &taken})
	assert.ErrorIs(t, err, ErrConflict)

	first := "Renamed"
	phone := ""
	got, err := svc.UpdateUser(ctx, &admin.ID, user.ID.String(), UpdateUserRequest{FirstName: &first, Phone: &phone})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.FirstName)
	assert.Nil(t, got.Phone)
	assert.Equal(t, "rider.ops@example.com", got.Email)

	off := false
	_, err = svc.UpdateUser(ctx, &admin.ID, admin.ID.String(), UpdateUserRequest{IsActive: &off})
	assert.ErrorIs(t, err, ErrForbidden)

	assert.ErrorIs(t, svc.DeleteUser(ctx, &admin.ID, admin.ID.String()), ErrForbidden)
	require.NoError(t, svc.DeleteUser(ctx, &admin.ID, user.ID.String()))

	got, err = svc.GetUser(ctx, user.ID.String())
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	list, total, err := svc.ListUsers(ctx, ListUsersQuery{Limit: 10})
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, list, 2)

	assert.ErrorIs(t, svc.DeleteUser(ctx, &admin.ID, uuid.NewString()), ErrNotFound)
}

func TestSetUserRoles(t *testing.T) {
	r := newRepos(t)
	svc := newUserService(r)
	ctx := context.Background()

	a := r.seedRole(t, "A", true)
	b := r.seedRole(t, "B", true)
	c := r.seedRole(t, "C", true)
	user := r.seedUser(t, "multi@example.com", true, a, b)

	got, err := svc.SetUserRoles(ctx, nil, user.ID.String(), []string{b.ID.String(), c.ID.String()})
	require.NoError(t, err)
	names := []string{}
	for _, role := range got.Roles {
		names = append(names, role.Name)
	}
	assert.ElementsMatch(t, []string{"B", "C"}, names)

	var links int64
	require.NoError(t, r.db.Model(&model.UserRole{}).Where("user_id = ?", user.ID).Count(&links).Error)
	assert.EqualValues(t, 2, links)

	logs, _, err := r.audit.List(ctx, repository.AuditFilter{Action: model.ActionSetUserRoles, Limit: 5})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"added":["C"],"removed":["A"]}`, logs[0].Details)

	got, err = svc.SetUserRoles(ctx, nil, user.ID.String(), nil)
	require.NoError(t, err)
	assert.Empty(t, got.Roles)
}
