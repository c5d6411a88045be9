package service

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"net/url"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/model"
	"fleetops/internal/storage"
	ws "fleetops/internal/websocket"
)

type documentFixture struct {
	*riderFixture
	docs  DocumentService
	local *storage.LocalBackend
	rider *CreateRiderResponse
}

func newDocumentFixture(t *testing.T) *documentFixture {
	t.Helper()
	local, err := storage.NewLocalBackend(t.TempDir(), "http://localhost:8080", "file-secret")
	require.NoError(t, err)

	rf := newRiderFixture(t, withStorage(local))
	rider, err := rf.svc.CreateRider(context.Background(), nil, sampleRider("0501234567"))
	require.NoError(t, err)

	return &documentFixture{
		riderFixture: rf,
		docs:         NewDocumentService(rf.repos.docs, rf.riders, rf.audit, rf.tx, local, time.Minute, rf.events),
		local:        local,
		rider:        rider,
	}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewRGBA(image.Rect(0, 0, 2, 2))))
	return buf.Bytes()
}

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")

func TestUploadDocument(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	officer := f.seedUser(t, "officer@example.com", true)

	doc, err := f.docs.Upload(ctx, &officer.ID, f.rider.Rider.ID, UploadDocumentInput{
		Type:       "passport",
		ExpiryDate: "2030-06-30",
		FileName:   "../../passport scan.png",
		Data:       pngBytes(t),
	})
	require.NoError(t, err)

	assert.Equal(t, model.DocumentPassport, doc.Type)
	assert.Equal(t, model.DocumentPending, doc.Status)
	assert.Equal(t, "passport scan.png", doc.FileName)
	assert.Equal(t, "image/png", doc.MimeType)
	require.NotNil(t, doc.ExpiryDate)
	assert.Equal(t, "2030-06-30", *doc.ExpiryDate)
	require.NotNil(t, doc.UploadedByID)
	assert.Equal(t, officer.ID.String(), *doc.UploadedByID)

	list, err := f.docs.ListByRider(ctx, f.rider.Rider.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, doc.ID, list[0].ID)
}

func TestUploadDocumentRejectsBadInput(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   UploadDocumentInput
	}{
		{"unknown type", UploadDocumentInput{Type: "TAX_FORM", FileName: "a.pdf", Data: pdfBytes}},
		{"no file", UploadDocumentInput{Type: "PASSPORT", FileName: "a.pdf"}},
		{"not allowed content", UploadDocumentInput{Type: "PASSPORT", FileName: "a.pdf", Data: []byte("#!/bin/sh\nrm -rf /\n")}},
		{"too large", UploadDocumentInput{Type: "PASSPORT", FileName: "a.pdf", Data: append(append([]byte{}, pdfBytes...), make([]byte, MaxDocumentSize)...)}},
		{"bad expiry", UploadDocumentInput{Type: "PASSPORT", FileName: "a.pdf", ExpiryDate: "30/06/2030", Data: pdfBytes}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.docs.Upload(ctx, nil, f.rider.Rider.ID, tt.in)
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	_, err := f.docs.Upload(ctx, nil, "2b0c53a4-94a5-4c55-9d3c-2c6f1a1e0b77", UploadDocumentInput{Type: "PASSPORT", FileName: "a.pdf", Data: pdfBytes})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdateDocumentStatus(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()
	reviewer := f.seedUser(t, "reviewer@example.com", true)

	doc, err := f.docs.Upload(ctx, nil, f.rider.Rider.ID, UploadDocumentInput{Type: "EMIRATES_ID", FileName: "eid.pdf", Data: pdfBytes})
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", doc.MimeType)

	_, err = f.docs.UpdateStatus(ctx, &reviewer.ID, doc.ID, UpdateDocumentStatusRequest{Status: "REJECTED"})
	require.ErrorIs(t, err, ErrValidation, "rejection needs a reason")

	rejected, err := f.docs.UpdateStatus(ctx, &reviewer.ID, doc.ID, UpdateDocumentStatusRequest{Status: "rejected", RejectionReason: "blurry"})
	require.NoError(t, err)
	assert.Equal(t, model.DocumentRejected, rejected.Status)
	require.NotNil(t, rejected.RejectionReason)
	assert.Equal(t, "blurry", *rejected.RejectionReason)
	require.NotNil(t, rejected.VerifiedByID)
	assert.Equal(t, reviewer.ID.String(), *rejected.VerifiedByID)

	verified, err := f.docs.UpdateStatus(ctx, &reviewer.ID, doc.ID, UpdateDocumentStatusRequest{Status: "VERIFIED"})
	require.NoError(t, err)
	assert.Nil(t, verified.RejectionReason)
	assert.NotNil(t, verified.VerifiedAt)

	pending, err := f.docs.UpdateStatus(ctx, nil, doc.ID, UpdateDocumentStatusRequest{Status: "PENDING"})
	require.NoError(t, err)
	assert.Nil(t, pending.VerifiedByID)
	assert.Nil(t, pending.VerifiedAt)

	assert.Contains(t, f.events.Types(), ws.EventDocumentStatusChanged)
}

func TestDocumentDownloadAndDelete(t *testing.T) {
	f := newDocumentFixture(t)
	ctx := context.Background()

	doc, err := f.docs.Upload(ctx, nil, f.rider.Rider.ID, UploadDocumentInput{Type: "PASSPORT", FileName: "passport.pdf", Data: pdfBytes})
	require.NoError(t, err)

	dl, err := f.docs.Download(ctx, doc.ID)
	require.NoError(t, err)
	assert.Equal(t, "passport.pdf", dl.FileName)

	u, err := url.Parse(dl.URL)
	require.NoError(t, err)
	key := u.Path[len("/files/"):]
	path, err := f.local.Resolve(key, u.Query().Get("token"))
	require.NoError(t, err)
	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, content)

	require.NoError(t, f.docs.Delete(ctx, nil, doc.ID))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err), "stored file is removed")

	_, err = f.docs.Download(ctx, doc.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, f.docs.Delete(ctx, nil, doc.ID), ErrNotFound)
}
