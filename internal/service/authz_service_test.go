package service

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/metrics"
	"fleetops/internal/rbac"
)

func TestResolveEffectivePermissions(t *testing.T) {
	r := newRepos(t)
	svc := NewAuthorizationService(r.users, r.roles, nil)
	ctx := context.Background()

	ops := r.seedRole(t, "Ops", true, "riders.read", "riders.write")
	reports := r.seedRole(t, "Reports", true, "reports.read", "riders.read")
	retired := r.seedRole(t, "Retired", false, "finance.delete")
	super := r.seedRole(t, rbac.SuperAdminRole, true, "legacy.thing")

	tests := []struct {
		name string
		user func() uuid.UUID
		want []string
	}{
		{
			name: "union of active roles",
			user: func() uuid.UUID { return r.seedUser(t, "a@example.com", true, ops, reports).ID },
			want: []string{"reports.read", "riders.read", "riders.write"},
		},
		{
			name: "inactive role contributes nothing",
			user: func() uuid.UUID { return r.seedUser(t, "b@example.com", true, retired).ID },
			want: []string{},
		},
		{
			name: "inactive user has no permissions",
			user: func() uuid.UUID { return r.seedUser(t, "c@example.com", false, ops).ID },
			want: []string{},
		},
		{
			name: "unknown user has no permissions",
			user: func() uuid.UUID { return uuid.New() },
			want: []string{},
		},
		{
			name: "super admin holds the catalog and stored names",
			user: func() uuid.UUID { return r.seedUser(t, "d@example.com", true, super).ID },
			want: rbac.NormalizeSet(append(rbac.AllPermissions(), "legacy.thing")),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			set, err := svc.ResolveEffectivePermissions(ctx, tt.user())
			require.NoError(t, err)
			assert.Equal(t, tt.want, set.Sorted())
		})
	}
}

func TestAuthorize(t *testing.T) {
	r := newRepos(t)
	m := metrics.New(prometheus.NewRegistry())
	svc := NewAuthorizationService(r.users, r.roles, m)
	ctx := context.Background()

	role := r.seedRole(t, "Onboarding", true, "riders.write")
	user := r.seedUser(t, "officer@example.com", true, role)

	for _, perm := range []string{"riders.write", "riders:write", " Riders.Write "} {
		ok, err := svc.Authorize(ctx, user.ID, perm)
		require.NoError(t, err)
		assert.True(t, ok, perm)
	}

	ok, err := svc.Authorize(ctx, user.ID, "riders.delete")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.AuthorizationsTotal.WithLabelValues("allowed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AuthorizationsTotal.WithLabelValues("denied")))
}

func TestAuthorizeSeesRoleChangesImmediately(t *testing.T) {
	r := newRepos(t)
	authz := NewAuthorizationService(r.users, r.roles, nil)
	roles := newRoleService(r)
	ctx := context.Background()

	role := r.seedRole(t, "Garage", true, "garage.read")
	user := r.seedUser(t, "mechanic@example.com", true, role)

	ok, err := authz.Authorize(ctx, user.ID, "garage.write")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = roles.SetPermissions(ctx, nil, role.ID.String(), []string{"garage.read", "garage.write"})
	require.NoError(t, err)

	ok, err = authz.Authorize(ctx, user.ID, "garage.write")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestAuthorizeSuperAdminHoldsEveryPermission(t *testing.T) {
	r := newRepos(t)
	svc := NewAuthorizationService(r.users, r.roles, nil)
	ctx := context.Background()

	super := r.seedRole(t, rbac.SuperAdminRole, true)
	admin := r.seedUser(t, "root@example.com", true, super)

	// names outside the catalog, including one another role holds explicitly
	auditors := r.seedRole(t, "Auditors", true, "audit.read")
	auditor := r.seedUser(t, "auditor@example.com", true, auditors)

	for _, perm := range []string{"riders.write", "audit.read", "vehicles:export", "email-configs.write"} {
		ok, err := svc.Authorize(ctx, admin.ID, perm)
		require.NoError(t, err)
		assert.True(t, ok, perm)
	}

	ok, err := svc.Authorize(ctx, auditor.ID, "audit.read")
	require.NoError(t, err)
	assert.True(t, ok)

	inactiveAdmin := r.seedUser(t, "gone@example.com", false, super)
	ok, err = svc.Authorize(ctx, inactiveAdmin.ID, "audit.read")
	require.NoError(t, err)
	assert.False(t, ok, "inactive users are never authorised")
}
