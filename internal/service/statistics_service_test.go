package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/model"
)

func countOf(list []model.StatusCount, status string) int64 {
	for _, c := range list {
		if c.Status == status {
			return c.Count
		}
	}
	return 0
}

func TestGetStatistics(t *testing.T) {
	f := newRiderFixture(t)
	svc := NewStatisticsService(f.stats)
	ctx := context.Background()
	start := time.Now().Add(-time.Hour)
	end := time.Now().Add(time.Hour)

	empty, err := svc.GetStatistics(ctx, start, end)
	require.NoError(t, err)
	assert.Zero(t, empty.TotalRiders)
	assert.NotNil(t, empty.ByOnboardingStatus)
	assert.NotNil(t, empty.DocumentsByStatus)

	active := sampleRider("0501000001")
	active.EmploymentStatus = "ACTIVE"
	_, err = f.svc.CreateRider(ctx, nil, active)
	require.NoError(t, err)
	second, err := f.svc.CreateRider(ctx, nil, sampleRider("0501000002"))
	require.NoError(t, err)
	gone, err := f.svc.CreateRider(ctx, nil, sampleRider("0501000003"))
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteRider(ctx, nil, gone.Rider.ID))

	list, err := f.acks.ListByRider(ctx, second.Rider.ID)
	require.NoError(t, err)
	_, err = f.acks.Acknowledge(ctx, nil, list[0].ID)
	require.NoError(t, err)

	stats, err := svc.GetStatistics(ctx, start, end)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.TotalRiders)
	assert.Equal(t, int64(2), stats.ActiveRiders)
	assert.Equal(t, int64(3), stats.RidersCreatedInRange)
	assert.Equal(t, int64(1), countOf(stats.ByEmploymentStatus, model.EmploymentActive))
	assert.Equal(t, int64(1), countOf(stats.ByEmploymentStatus, model.EmploymentPending))
	assert.Equal(t, int64(2), countOf(stats.ByOnboardingStatus, model.OnboardingPending))
	assert.Equal(t, int64(2), countOf(stats.AcknowledgementsByStatus, model.AckPending))
	assert.Equal(t, int64(1), countOf(stats.AcknowledgementsByStatus, model.AckAcknowledged))

	past, err := svc.GetStatistics(ctx, start.Add(-48*time.Hour), start.Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Zero(t, past.RidersCreatedInRange)

	_, err = svc.GetStatistics(ctx, end, start)
	assert.ErrorIs(t, err, ErrValidation)
}
