package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/model"
)

func TestListAuditLogs(t *testing.T) {
	r := newRepos(t)
	svc := NewAuditService(r.audit)
	ctx := context.Background()
	actor := r.seedUser(t, "admin@example.com", true)

	require.NoError(t, r.audit.Record(ctx, &actor.ID, model.ActionCreateRole, "role-1", "Dispatcher", map[string]string{"k": "v"}))
	require.NoError(t, r.audit.Record(ctx, nil, model.ActionCreateRider, "rider-1", "FLCR260001", nil))
	require.NoError(t, r.audit.Record(ctx, nil, model.ActionCreateRider, "rider-2", "FLCR260002", nil))

	all, total, err := svc.ListAuditLogs(ctx, ListAuditLogsQuery{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, all, 3)

	riders, total, err := svc.ListAuditLogs(ctx, ListAuditLogsQuery{Action: "create_rider", Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, riders, 1)
	assert.Equal(t, "System", riders[0].UserName)
	assert.Nil(t, riders[0].UserID)

	roles, _, err := svc.ListAuditLogs(ctx, ListAuditLogsQuery{EntityID: "role-1", Limit: 10})
	require.NoError(t, err)
	require.Len(t, roles, 1)
	assert.Equal(t, "Test User", roles[0].UserName)
	require.NotNil(t, roles[0].UserID)
	assert.Equal(t, actor.ID.String(), *roles[0].UserID)
	assert.JSONEq(t, `{"k":"v"}`, roles[0].Details)
}
