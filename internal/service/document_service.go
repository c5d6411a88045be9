package service

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/repository"
	"fleetops/internal/storage"
	ws "fleetops/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// MaxDocumentSize is the largest accepted upload.
const MaxDocumentSize = 10 << 20

// allowedDocumentTypes maps accepted content types to stored file extensions.
var allowedDocumentTypes = map[string]string{
	"application/pdf": ".pdf",
	"image/jpeg":      ".jpg",
	"image/png":       ".png",
	"image/webp":      ".webp",
}

// UploadDocumentInput is a received file plus its form fields.
type UploadDocumentInput struct {
	Type       string `json:"type" validate:"required,oneof=PASSPORT EMIRATES_ID DRIVING_LICENSE WORK_PERMIT INSURANCE PROFILE_PHOTO OTHER_DOCUMENT"`
	ExpiryDate string `json:"expiryDate" validate:"isodate"`
	FileName   string `json:"fileName" validate:"required,max=255"`
	Data       []byte `json:"-"`
}

type UpdateDocumentStatusRequest struct {
	Status          string `json:"status" validate:"required,oneof=PENDING VERIFIED REJECTED"`
	RejectionReason string `json:"rejectionReason" validate:"max=1000"`
}

type DocumentResponse struct {
	ID              string  `json:"id"`
	RiderID         string  `json:"riderId"`
	Type            string  `json:"type"`
	Status          string  `json:"status"`
	FileName        string  `json:"fileName"`
	FileSize        int64   `json:"fileSize"`
	MimeType        string  `json:"mimeType"`
	ExpiryDate      *string `json:"expiryDate"`
	RejectionReason *string `json:"rejectionReason"`
	UploadedByID    *string `json:"uploadedById"`
	VerifiedByID    *string `json:"verifiedById"`
	VerifiedAt      *string `json:"verifiedAt"`
	CreatedAt       string  `json:"createdAt"`
}

type DocumentService interface {
	Upload(ctx context.Context, actorID *uuid.UUID, riderID string, in UploadDocumentInput) (*DocumentResponse, error)
	ListByRider(ctx context.Context, riderID string) ([]DocumentResponse, error)
	UpdateStatus(ctx context.Context, actorID *uuid.UUID, id string, req UpdateDocumentStatusRequest) (*DocumentResponse, error)
	Download(ctx context.Context, id string) (*DownloadResponse, error)
	Delete(ctx context.Context, actorID *uuid.UUID, id string) error
}

type documentService struct {
	docRepo   repository.DocumentRepository
	riderRepo repository.RiderRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	files     storage.Backend
	urlTTL    time.Duration
	events    Publisher
}

func NewDocumentService(
	docRepo repository.DocumentRepository,
	riderRepo repository.RiderRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	files storage.Backend,
	urlTTL time.Duration,
	events Publisher,
) DocumentService {
	if urlTTL <= 0 {
		urlTTL = 15 * time.Minute
	}
	return &documentService{
		docRepo:   docRepo,
		riderRepo: riderRepo,
		auditRepo: auditRepo,
		txManager: txManager,
		files:     files,
		urlTTL:    urlTTL,
		events:    publisherOrNop(events),
	}
}

func (s *documentService) Upload(ctx context.Context, actorID *uuid.UUID, riderID string, in UploadDocumentInput) (*DocumentResponse, error) {
	in.Type = strings.ToUpper(strings.TrimSpace(in.Type))
	in.FileName = filepath.Base(strings.TrimSpace(in.FileName))
	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if len(in.Data) == 0 {
		return nil, invalid("file", "is required")
	}
	if len(in.Data) > MaxDocumentSize {
		return nil, invalid("file", "must be at most 10 MB")
	}

	// trust the bytes, not the client supplied content type
	mime := http.DetectContentType(in.Data)
	ext, ok := allowedDocumentTypes[mime]
	if !ok {
		return nil, invalid("file", "must be a PDF, JPEG, PNG or WebP file")
	}

	id, err := parseID("rider", riderID)
	if err != nil {
		return nil, err
	}
	rider, err := s.riderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr("rider", err)
	}

	key := storage.DocumentKey(rider.ID, ext)
	if err := s.files.Put(ctx, key, in.Data, mime); err != nil {
		return nil, fmt.Errorf("failed to store document: %w", err)
	}

	doc := &model.RiderDocument{
		RiderID:      rider.ID,
		Type:         in.Type,
		Status:       model.DocumentPending,
		FileName:     in.FileName,
		StorageKey:   key,
		FileSize:     int64(len(in.Data)),
		MimeType:     mime,
		ExpiryDate:   optionalDate(in.ExpiryDate),
		UploadedByID: actorID,
	}
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.docRepo.Create(txCtx, doc); err != nil {
			return fmt.Errorf("failed to save document: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionUploadDocument, doc.ID.String(), doc.FileName, map[string]interface{}{
			"riderId": rider.ID.String(),
			"type":    doc.Type,
			"size":    doc.FileSize,
		})
	})
	if err != nil {
		s.removeFile(ctx, key)
		return nil, err
	}

	resp := toDocumentResponse(*doc)
	return &resp, nil
}

func (s *documentService) ListByRider(ctx context.Context, riderID string) ([]DocumentResponse, error) {
	id, err := parseID("rider", riderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.riderRepo.FindByID(ctx, id); err != nil {
		return nil, lookupErr("rider", err)
	}

	docs, err := s.docRepo.ListByRider(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch documents: %w", err)
	}
	res := make([]DocumentResponse, 0, len(docs))
	for _, d := range docs {
		res = append(res, toDocumentResponse(d))
	}
	return res, nil
}

// UpdateStatus records a review decision. Verifying or rejecting stamps the
// reviewer; moving back to PENDING clears the review.
func (s *documentService) UpdateStatus(ctx context.Context, actorID *uuid.UUID, id string, req UpdateDocumentStatusRequest) (*DocumentResponse, error) {
	req.Status = strings.ToUpper(strings.TrimSpace(req.Status))
	req.RejectionReason = strings.TrimSpace(req.RejectionReason)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if req.Status == model.DocumentRejected && req.RejectionReason == "" {
		return nil, invalid("rejectionReason", "is required when rejecting a document")
	}
	docID, err := parseID("document", id)
	if err != nil {
		return nil, err
	}

	var doc *model.RiderDocument
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		doc, err = s.docRepo.FindByID(txCtx, docID)
		if err != nil {
			return lookupErr("document", err)
		}

		doc.Status = req.Status
		doc.RejectionReason = nil
		switch req.Status {
		case model.DocumentPending:
			doc.VerifiedByID = nil
			doc.VerifiedAt = nil
		default:
			now := time.Now()
			doc.VerifiedByID = actorID
			doc.VerifiedAt = &now
			if req.Status == model.DocumentRejected {
				doc.RejectionReason = &req.RejectionReason
			}
		}

		if err := s.docRepo.Update(txCtx, doc); err != nil {
			return fmt.Errorf("failed to update document: %w", err)
		}

		action := model.ActionVerifyDocument
		if req.Status == model.DocumentRejected {
			action = model.ActionRejectDocument
		}
		return s.auditRepo.Record(txCtx, actorID, action, doc.ID.String(), doc.FileName, map[string]interface{}{
			"riderId": doc.RiderID.String(),
			"status":  doc.Status,
			"reason":  req.RejectionReason,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ws.EventDocumentStatusChanged, statusEvent{ID: doc.ID.String(), RiderID: doc.RiderID.String(), Status: doc.Status})
	resp := toDocumentResponse(*doc)
	return &resp, nil
}

func (s *documentService) Download(ctx context.Context, id string) (*DownloadResponse, error) {
	docID, err := parseID("document", id)
	if err != nil {
		return nil, err
	}
	doc, err := s.docRepo.FindByID(ctx, docID)
	if err != nil {
		return nil, lookupErr("document", err)
	}

	url, err := s.files.SignedURL(ctx, doc.StorageKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download url: %w", err)
	}
	return &DownloadResponse{
		URL:       url,
		FileName:  doc.FileName,
		ExpiresAt: time.Now().Add(s.urlTTL).Format(timeLayout),
	}, nil
}

func (s *documentService) Delete(ctx context.Context, actorID *uuid.UUID, id string) error {
	docID, err := parseID("document", id)
	if err != nil {
		return err
	}

	var key string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		doc, err := s.docRepo.FindByID(txCtx, docID)
		if err != nil {
			return lookupErr("document", err)
		}
		key = doc.StorageKey
		if err := s.docRepo.Delete(txCtx, docID); err != nil {
			return fmt.Errorf("failed to delete document: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionDeleteDocument, doc.ID.String(), doc.FileName, map[string]interface{}{
			"riderId": doc.RiderID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.removeFile(ctx, key)
	return nil
}

func (s *documentService) removeFile(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to delete stored file")
	}
}

func toDocumentResponse(d model.RiderDocument) DocumentResponse {
	var uploadedBy, verifiedBy *string
	if d.UploadedByID != nil {
		s := d.UploadedByID.String()
		uploadedBy = &s
	}
	if d.VerifiedByID != nil {
		s := d.VerifiedByID.String()
		verifiedBy = &s
	}

	return DocumentResponse{
		ID:              d.ID.String(),
		RiderID:         d.RiderID.String(),
		Type:            d.Type,
		Status:          d.Status,
		FileName:        d.FileName,
		FileSize:        d.FileSize,
		MimeType:        d.MimeType,
		ExpiryDate:      formatDatePtr(d.ExpiryDate),
		RejectionReason: d.RejectionReason,
		UploadedByID:    uploadedBy,
		VerifiedByID:    verifiedBy,
		VerifiedAt:      formatTimePtr(d.VerifiedAt),
		CreatedAt:       d.CreatedAt.Format(timeLayout),
	}
}
