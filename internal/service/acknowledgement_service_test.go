package service

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/model"
	"fleetops/internal/repository"
	ws "fleetops/internal/websocket"
)

func TestGenerateAcknowledgement(t *testing.T) {
	f := newRiderFixture(t)
	ctx := context.Background()
	officer := f.seedUser(t, "officer@example.com", true)

	rider, err := f.svc.CreateRider(ctx, nil, sampleRider("0501234567"))
	require.NoError(t, err)

	ack, err := f.acks.Generate(ctx, officer.ID, rider.Rider.ID, GenerateAcknowledgementRequest{
		Type:    "equipment",
		Details: "Helmet, delivery box, jacket",
	})
	require.NoError(t, err)
	assert.Equal(t, model.AckEquipment, ack.Type)
	assert.Equal(t, "Equipment Acknowledgement", ack.Title)
	assert.Equal(t, model.AckPending, ack.Status)
	assert.Equal(t, officer.ID.String(), ack.GeneratedByID)
	assert.Nil(t, ack.AcknowledgedAt)

	custom, err := f.acks.Generate(ctx, officer.ID, rider.Rider.ID, GenerateAcknowledgementRequest{Type: "OTHER", Title: "Uniform policy"})
	require.NoError(t, err)
	assert.Equal(t, "Uniform policy", custom.Title)

	list, err := f.acks.ListByRider(ctx, rider.Rider.ID)
	require.NoError(t, err)
	assert.Len(t, list, 3, "visa from onboarding plus two generated")

	_, err = f.acks.Generate(ctx, officer.ID, rider.Rider.ID, GenerateAcknowledgementRequest{Type: "LAPTOP"})
	assert.ErrorIs(t, err, ErrValidation)

	logs, _, err := f.audit.List(ctx, repository.AuditFilter{Action: model.ActionGenerateAcknowledgement, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, logs, 2)
}

func TestAcknowledgeOnlyOnce(t *testing.T) {
	f := newRiderFixture(t)
	ctx := context.Background()

	rider, err := f.svc.CreateRider(ctx, nil, sampleRider("0501234567"))
	require.NoError(t, err)
	list, err := f.acks.ListByRider(ctx, rider.Rider.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	done, err := f.acks.Acknowledge(ctx, nil, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, model.AckAcknowledged, done.Status)
	assert.NotNil(t, done.AcknowledgedAt)
	assert.Contains(t, f.events.Types(), ws.EventAcknowledged)

	_, err = f.acks.Acknowledge(ctx, nil, list[0].ID)
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.acks.Acknowledge(ctx, nil, "9d7e0c35-3c1b-4b8e-a5a0-5a3b0f5f7d11")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestAcknowledgementDownloadAndDelete(t *testing.T) {
	f := newRiderFixture(t)
	ctx := context.Background()

	rider, err := f.svc.CreateRider(ctx, nil, sampleRider("0501234567"))
	require.NoError(t, err)
	list, err := f.acks.ListByRider(ctx, rider.Rider.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)

	dl, err := f.acks.Download(ctx, list[0].ID)
	require.NoError(t, err)
	assert.Equal(t, "visa-acknowledgement.pdf", dl.FileName)
	assert.True(t, strings.HasPrefix(dl.URL, "http://localhost:8080/files/riders/"), dl.URL)
	assert.Contains(t, dl.URL, "token=")

	require.NoError(t, f.acks.Delete(ctx, nil, list[0].ID))
	list, err = f.acks.ListByRider(ctx, rider.Rider.ID)
	require.NoError(t, err)
	assert.Empty(t, list)

	assert.ErrorIs(t, f.acks.Delete(ctx, nil, "bogus"), ErrValidation)
}
