package service

import (
	"context"
	"fmt"
	"strings"

	"fleetops/internal/repository"
)

type AuditLogResponse struct {
	ID         string  `json:"id"`
	UserID     *string `json:"userId"`
	UserName   string  `json:"userName"`
	Action     string  `json:"action"`
	EntityID   string  `json:"entityId"`
	EntityName string  `json:"entityName"`
	Details    string  `json:"details"`
	CreatedAt  string  `json:"createdAt"`
}

type ListAuditLogsQuery struct {
	Action   string
	EntityID string
	Offset   int
	Limit    int
}

type AuditService interface {
	ListAuditLogs(ctx context.Context, q ListAuditLogsQuery) ([]AuditLogResponse, int64, error)
}

type auditService struct {
	auditRepo repository.AuditRepository
}

func NewAuditService(auditRepo repository.AuditRepository) AuditService {
	return &auditService{auditRepo: auditRepo}
}

// ListAuditLogs returns entries newest first. Entries without an actor are attributed to System.
func (s *auditService) ListAuditLogs(ctx context.Context, q ListAuditLogsQuery) ([]AuditLogResponse, int64, error) {
	logs, total, err := s.auditRepo.List(ctx, repository.AuditFilter{
		Action:   strings.ToUpper(strings.TrimSpace(q.Action)),
		EntityID: strings.TrimSpace(q.EntityID),
		Offset:   q.Offset,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch audit logs: %w", err)
	}

	res := make([]AuditLogResponse, 0, len(logs))
	for _, l := range logs {
		name := "System"
		if l.User != nil {
			name = l.User.FullName()
		}
		var userID *string
		if l.UserID != nil {
			id := l.UserID.String()
			userID = &id
		}

		res = append(res, AuditLogResponse{
			ID:         l.ID.String(),
			UserID:     userID,
			UserName:   name,
			Action:     l.Action,
			EntityID:   l.EntityID,
			EntityName: l.EntityName,
			Details:    l.Details,
			CreatedAt:  l.CreatedAt.Format(timeLayout),
		})
	}

	return res, total, nil
}
