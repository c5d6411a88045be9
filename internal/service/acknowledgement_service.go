package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetops/internal/model"
	"fleetops/internal/pdf"
	"fleetops/internal/repository"
	"fleetops/internal/storage"
	ws "fleetops/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type GenerateAcknowledgementRequest struct {
	Type    string `json:"type" validate:"required,oneof=VISA SIM EQUIPMENT TRAINING OTHER"`
	Title   string `json:"title" validate:"max=255"`
	Details string `json:"details" validate:"max=2000"`
}

type AcknowledgementResponse struct {
	ID             string  `json:"id"`
	RiderID        string  `json:"riderId"`
	Type           string  `json:"type"`
	Status         string  `json:"status"`
	Title          string  `json:"title"`
	GeneratedByID  string  `json:"generatedById"`
	AcknowledgedAt *string `json:"acknowledgedAt"`
	CreatedAt      string  `json:"createdAt"`
}

// DownloadResponse is a time-limited link to a stored file.
type DownloadResponse struct {
	URL       string `json:"url"`
	FileName  string `json:"fileName"`
	ExpiresAt string `json:"expiresAt"`
}

type AcknowledgementService interface {
	Generate(ctx context.Context, actorID uuid.UUID, riderID string, req GenerateAcknowledgementRequest) (*AcknowledgementResponse, error)
	// GenerateForRider renders, stores and records one acknowledgement without auditing.
	GenerateForRider(ctx context.Context, rider *model.Rider, ackType, title, details string, generatedBy uuid.UUID) (*model.Acknowledgement, error)
	ListByRider(ctx context.Context, riderID string) ([]AcknowledgementResponse, error)
	Acknowledge(ctx context.Context, actorID *uuid.UUID, id string) (*AcknowledgementResponse, error)
	Download(ctx context.Context, id string) (*DownloadResponse, error)
	Delete(ctx context.Context, actorID *uuid.UUID, id string) error
}

type acknowledgementService struct {
	ackRepo   repository.AcknowledgementRepository
	riderRepo repository.RiderRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	renderer  pdf.Renderer
	files     storage.Backend
	urlTTL    time.Duration
	events    Publisher
}

type AcknowledgementDeps struct {
	Acks      repository.AcknowledgementRepository
	Riders    repository.RiderRepository
	Users     repository.UserRepository
	Audit     repository.AuditRepository
	Tx        repository.TransactionManager
	Renderer  pdf.Renderer
	Storage   storage.Backend
	URLTTL    time.Duration
	Publisher Publisher
}

func NewAcknowledgementService(d AcknowledgementDeps) AcknowledgementService {
	if d.URLTTL <= 0 {
		d.URLTTL = 15 * time.Minute
	}
	return &acknowledgementService{
		ackRepo:   d.Acks,
		riderRepo: d.Riders,
		userRepo:  d.Users,
		auditRepo: d.Audit,
		txManager: d.Tx,
		renderer:  d.Renderer,
		files:     d.Storage,
		urlTTL:    d.URLTTL,
		events:    publisherOrNop(d.Publisher),
	}
}

func (s *acknowledgementService) Generate(ctx context.Context, actorID uuid.UUID, riderID string, req GenerateAcknowledgementRequest) (*AcknowledgementResponse, error) {
	req.Type = strings.ToUpper(strings.TrimSpace(req.Type))
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	id, err := parseID("rider", riderID)
	if err != nil {
		return nil, err
	}
	rider, err := s.riderRepo.FindByID(ctx, id)
	if err != nil {
		return nil, lookupErr("rider", err)
	}

	ack, err := s.GenerateForRider(ctx, rider, req.Type, strings.TrimSpace(req.Title), strings.TrimSpace(req.Details), actorID)
	if err != nil {
		return nil, err
	}

	if err := s.auditRepo.Record(ctx, &actorID, model.ActionGenerateAcknowledgement, ack.ID.String(), ack.Title, map[string]interface{}{
		"riderId": rider.ID.String(),
		"type":    ack.Type,
	}); err != nil {
		log.Warn().Err(err).Str("acknowledgement_id", ack.ID.String()).Msg("failed to audit acknowledgement")
	}

	resp := toAcknowledgementResponse(*ack)
	return &resp, nil
}

func (s *acknowledgementService) GenerateForRider(ctx context.Context, rider *model.Rider, ackType, title, details string, generatedBy uuid.UUID) (*model.Acknowledgement, error) {
	if !model.ValidAcknowledgementType(ackType) {
		return nil, invalid("type", "unknown acknowledgement type "+ackType)
	}
	if title == "" {
		title = defaultAckTitle(ackType)
	}

	data := riderPDFData(rider)
	data["title"] = title
	data["details"] = details
	data["generatedBy"] = s.generatorName(ctx, generatedBy)

	doc, err := s.renderer.Render(ackType, data)
	if err != nil {
		return nil, fmt.Errorf("failed to render %s acknowledgement: %w", ackType, err)
	}

	key := storage.AcknowledgementKey(rider.ID, ackType)
	if err := s.files.Put(ctx, key, doc, "application/pdf"); err != nil {
		return nil, fmt.Errorf("failed to store %s acknowledgement: %w", ackType, err)
	}

	ack := &model.Acknowledgement{
		RiderID:       rider.ID,
		Type:          ackType,
		Status:        model.AckPending,
		Title:         title,
		StorageKey:    key,
		GeneratedByID: generatedBy,
	}
	if err := s.ackRepo.Create(ctx, ack); err != nil {
		s.removeFile(ctx, key)
		return nil, fmt.Errorf("failed to save %s acknowledgement: %w", ackType, err)
	}
	return ack, nil
}

func (s *acknowledgementService) generatorName(ctx context.Context, id uuid.UUID) string {
	u, err := s.userRepo.GetByID(ctx, id)
	if err != nil {
		return "administration"
	}
	return u.FullName()
}

func (s *acknowledgementService) ListByRider(ctx context.Context, riderID string) ([]AcknowledgementResponse, error) {
	id, err := parseID("rider", riderID)
	if err != nil {
		return nil, err
	}
	if _, err := s.riderRepo.FindByID(ctx, id); err != nil {
		return nil, lookupErr("rider", err)
	}

	acks, err := s.ackRepo.ListByRider(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch acknowledgements: %w", err)
	}
	res := make([]AcknowledgementResponse, 0, len(acks))
	for _, a := range acks {
		res = append(res, toAcknowledgementResponse(a))
	}
	return res, nil
}

// Acknowledge moves a PENDING acknowledgement to ACKNOWLEDGED. A second call is a conflict.
func (s *acknowledgementService) Acknowledge(ctx context.Context, actorID *uuid.UUID, id string) (*AcknowledgementResponse, error) {
	ackID, err := parseID("acknowledgement", id)
	if err != nil {
		return nil, err
	}

	var ack *model.Acknowledgement
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if _, err := s.ackRepo.FindByID(txCtx, ackID); err != nil {
			return lookupErr("acknowledgement", err)
		}
		flipped, err := s.ackRepo.MarkAcknowledged(txCtx, ackID)
		if err != nil {
			return fmt.Errorf("failed to acknowledge: %w", err)
		}
		if !flipped {
			return conflict("acknowledgement is already acknowledged")
		}
		ack, err = s.ackRepo.FindByID(txCtx, ackID)
		if err != nil {
			return lookupErr("acknowledgement", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionAcknowledge, ack.ID.String(), ack.Title, map[string]interface{}{
			"riderId": ack.RiderID.String(),
			"type":    ack.Type,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ws.EventAcknowledged, statusEvent{ID: ack.ID.String(), RiderID: ack.RiderID.String(), Status: ack.Status})
	resp := toAcknowledgementResponse(*ack)
	return &resp, nil
}

func (s *acknowledgementService) Download(ctx context.Context, id string) (*DownloadResponse, error) {
	ackID, err := parseID("acknowledgement", id)
	if err != nil {
		return nil, err
	}
	ack, err := s.ackRepo.FindByID(ctx, ackID)
	if err != nil {
		return nil, lookupErr("acknowledgement", err)
	}

	url, err := s.files.SignedURL(ctx, ack.StorageKey, s.urlTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to sign download url: %w", err)
	}
	return &DownloadResponse{
		URL:       url,
		FileName:  strings.ToLower(ack.Type) + "-acknowledgement.pdf",
		ExpiresAt: time.Now().Add(s.urlTTL).Format(timeLayout),
	}, nil
}

// Delete removes the record, then its file. A file left behind is logged only.
func (s *acknowledgementService) Delete(ctx context.Context, actorID *uuid.UUID, id string) error {
	ackID, err := parseID("acknowledgement", id)
	if err != nil {
		return err
	}

	var key string
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		ack, err := s.ackRepo.FindByID(txCtx, ackID)
		if err != nil {
			return lookupErr("acknowledgement", err)
		}
		key = ack.StorageKey
		if err := s.ackRepo.Delete(txCtx, ackID); err != nil {
			return fmt.Errorf("failed to delete acknowledgement: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionDeleteAcknowledgement, ack.ID.String(), ack.Title, map[string]interface{}{
			"riderId": ack.RiderID.String(),
		})
	})
	if err != nil {
		return err
	}

	s.removeFile(ctx, key)
	return nil
}

func (s *acknowledgementService) removeFile(ctx context.Context, key string) {
	if err := s.files.Delete(ctx, key); err != nil {
		log.Warn().Err(err).Str("key", key).Msg("failed to delete stored file")
	}
}

// --- Helpers ---

func defaultAckTitle(ackType string) string {
	switch ackType {
	case model.AckVisa:
		return "Visa Acknowledgement"
	case model.AckSim:
		return "SIM Card Acknowledgement"
	case model.AckEquipment:
		return "Equipment Acknowledgement"
	case model.AckTraining:
		return "Training Acknowledgement"
	}
	return "Acknowledgement"
}

func riderPDFData(r *model.Rider) pdf.Data {
	return pdf.Data{
		"riderName":      r.FullName(),
		"riderCode":      r.RiderCode,
		"phone":          r.Phone,
		"nationality":    deref(r.Nationality),
		"passportNumber": deref(r.PassportNumber),
		"visaNumber":     deref(r.VisaNumber),
		"visaExpiry":     formatDate(r.VisaExpiry),
		"companySim":     deref(r.CompanySim),
		"date":           time.Now().Format("02 January 2006"),
	}
}

func toAcknowledgementResponse(a model.Acknowledgement) AcknowledgementResponse {
	return AcknowledgementResponse{
		ID:             a.ID.String(),
		RiderID:        a.RiderID.String(),
		Type:           a.Type,
		Status:         a.Status,
		Title:          a.Title,
		GeneratedByID:  a.GeneratedByID.String(),
		AcknowledgedAt: formatTimePtr(a.AcknowledgedAt),
		CreatedAt:      a.CreatedAt.Format(timeLayout),
	}
}
