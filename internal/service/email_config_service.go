package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetops/internal/mailer"
	"fleetops/internal/model"
	"fleetops/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

type CreateEmailConfigRequest struct {
	Name      string `json:"name" validate:"required,max=100"`
	Host      string `json:"host" validate:"required,max=255"`
	Port      int    `json:"port" validate:"required,gte=1,lte=65535"`
	Username  string `json:"username" validate:"max=255"`
	Password  string `json:"password" validate:"max=255"`
	FromEmail string `json:"fromEmail" validate:"required,email,max=255"`
	FromName  string `json:"fromName" validate:"max=255"`
	UseTLS    bool   `json:"useTls"`
	IsDefault bool   `json:"isDefault"`
	IsActive  *bool  `json:"isActive"`
}

// UpdateEmailConfigRequest leaves nil fields untouched. An empty password keeps the stored one.
type UpdateEmailConfigRequest struct {
	Name      *string `json:"name" validate:"omitempty,max=100"`
	Host      *string `json:"host" validate:"omitempty,max=255"`
	Port      *int    `json:"port" validate:"omitempty,gte=1,lte=65535"`
	Username  *string `json:"username" validate:"omitempty,max=255"`
	Password  *string `json:"password" validate:"omitempty,max=255"`
	FromEmail *string `json:"fromEmail" validate:"omitempty,email,max=255"`
	FromName  *string `json:"fromName" validate:"omitempty,max=255"`
	UseTLS    *bool   `json:"useTls"`
	IsActive  *bool   `json:"isActive"`
}

type SendTestEmailRequest struct {
	To string `json:"to" validate:"required,email"`
}

type EmailConfigResponse struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Host        string `json:"host"`
	Port        int    `json:"port"`
	Username    string `json:"username"`
	HasPassword bool   `json:"hasPassword"`
	FromEmail   string `json:"fromEmail"`
	FromName    string `json:"fromName"`
	UseTLS      bool   `json:"useTls"`
	IsDefault   bool   `json:"isDefault"`
	IsActive    bool   `json:"isActive"`
	CreatedAt   string `json:"createdAt"`
	UpdatedAt   string `json:"updatedAt"`
}

type TestEmailResponse struct {
	Sent      bool   `json:"sent"`
	Recipient string `json:"recipient"`
	Error     string `json:"error,omitempty"`
}

// MailTester sends through an explicit account instead of the resolved default.
type MailTester interface {
	SendWith(ctx context.Context, s mailer.Settings, to, subject, html string) error
}

type EmailConfigService interface {
	mailer.SettingsSource

	List(ctx context.Context) ([]EmailConfigResponse, error)
	Get(ctx context.Context, id string) (*EmailConfigResponse, error)
	Create(ctx context.Context, actorID *uuid.UUID, req CreateEmailConfigRequest) (*EmailConfigResponse, error)
	Update(ctx context.Context, actorID *uuid.UUID, id string, req UpdateEmailConfigRequest) (*EmailConfigResponse, error)
	Delete(ctx context.Context, actorID *uuid.UUID, id string) error
	SetDefault(ctx context.Context, actorID *uuid.UUID, id string) (*EmailConfigResponse, error)
	SendTest(ctx context.Context, id string, req SendTestEmailRequest) (*TestEmailResponse, error)
	SetTester(t MailTester)
}

type emailConfigService struct {
	repo      repository.EmailConfigRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	tester    MailTester
}

// NewEmailConfigService builds the service. tester may be nil until the mailer
// is constructed; see SetTester.
func NewEmailConfigService(
	repo repository.EmailConfigRepository,
	auditRepo repository.AuditRepository,
	txManager repository.TransactionManager,
	tester MailTester,
) EmailConfigService {
	return &emailConfigService{
		repo:      repo,
		auditRepo: auditRepo,
		txManager: txManager,
		tester:    tester,
	}
}

// SetTester breaks the construction cycle between the mailer, which reads its
// settings from this service, and the test-send path, which needs the mailer.
func (s *emailConfigService) SetTester(t MailTester) {
	s.tester = t
}

// SMTPSettings returns the active default account. ok is false when none is configured.
func (s *emailConfigService) SMTPSettings(ctx context.Context) (mailer.Settings, bool, error) {
	cfg, err := s.repo.FindDefault(ctx)
	if err != nil {
		if repository.IsNotFound(err) {
			return mailer.Settings{}, false, nil
		}
		return mailer.Settings{}, false, fmt.Errorf("failed to load default email config: %w", err)
	}
	return settingsOf(cfg), true, nil
}

func (s *emailConfigService) List(ctx context.Context) ([]EmailConfigResponse, error) {
	cfgs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch email configs: %w", err)
	}
	res := make([]EmailConfigResponse, 0, len(cfgs))
	for i := range cfgs {
		res = append(res, toEmailConfigResponse(&cfgs[i]))
	}
	return res, nil
}

func (s *emailConfigService) Get(ctx context.Context, id string) (*EmailConfigResponse, error) {
	cfgID, err := parseID("email config", id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.repo.FindByID(ctx, cfgID)
	if err != nil {
		return nil, lookupErr("email config", err)
	}
	resp := toEmailConfigResponse(cfg)
	return &resp, nil
}

// Create stores a new account. The first account becomes the default.
func (s *emailConfigService) Create(ctx context.Context, actorID *uuid.UUID, req CreateEmailConfigRequest) (*EmailConfigResponse, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Host = strings.TrimSpace(req.Host)
	req.FromEmail = strings.ToLower(strings.TrimSpace(req.FromEmail))
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	cfg := &model.EmailConfig{
		Name:      req.Name,
		Host:      req.Host,
		Port:      req.Port,
		Username:  strings.TrimSpace(req.Username),
		Password:  req.Password,
		FromEmail: req.FromEmail,
		FromName:  strings.TrimSpace(req.FromName),
		UseTLS:    req.UseTLS,
		IsDefault: req.IsDefault,
		IsActive:  req.IsActive == nil || *req.IsActive,
	}

	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.ensureNameFree(txCtx, cfg.Name, uuid.Nil); err != nil {
			return err
		}
		defaults, err := s.repo.CountDefaults(txCtx)
		if err != nil {
			return fmt.Errorf("failed to count default email configs: %w", err)
		}
		if defaults == 0 {
			cfg.IsDefault = true
		}

		if err := s.repo.Create(txCtx, cfg); err != nil {
			return fmt.Errorf("failed to create email config: %w", err)
		}
		if cfg.IsDefault {
			if err := s.repo.ClearDefault(txCtx, cfg.ID); err != nil {
				return fmt.Errorf("failed to clear previous default: %w", err)
			}
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionCreateEmailConfig, cfg.ID.String(), cfg.Name, map[string]interface{}{
			"host":      cfg.Host,
			"isDefault": cfg.IsDefault,
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toEmailConfigResponse(cfg)
	return &resp, nil
}

func (s *emailConfigService) Update(ctx context.Context, actorID *uuid.UUID, id string, req UpdateEmailConfigRequest) (*EmailConfigResponse, error) {
	cfgID, err := parseID("email config", id)
	if err != nil {
		return nil, err
	}
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	var cfg *model.EmailConfig
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		cfg, err = s.repo.FindByID(txCtx, cfgID)
		if err != nil {
			return lookupErr("email config", err)
		}

		if req.Name != nil {
			name := strings.TrimSpace(*req.Name)
			if name == "" {
				return invalid("name", "is required")
			}
			if name != cfg.Name {
				if err := s.ensureNameFree(txCtx, name, cfg.ID); err != nil {
					return err
				}
			}
			cfg.Name = name
		}
		if req.Host != nil {
			cfg.Host = strings.TrimSpace(*req.Host)
		}
		if req.Port != nil {
			cfg.Port = *req.Port
		}
		if req.Username != nil {
			cfg.Username = strings.TrimSpace(*req.Username)
		}
		if req.Password != nil && *req.Password != "" {
			cfg.Password = *req.Password
		}
		if req.FromEmail != nil {
			cfg.FromEmail = strings.ToLower(strings.TrimSpace(*req.FromEmail))
		}
		if req.FromName != nil {
			cfg.FromName = strings.TrimSpace(*req.FromName)
		}
		if req.UseTLS != nil {
			cfg.UseTLS = *req.UseTLS
		}
		if req.IsActive != nil {
			cfg.IsActive = *req.IsActive
		}

		if err := s.repo.Update(txCtx, cfg); err != nil {
			return fmt.Errorf("failed to update email config: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionUpdateEmailConfig, cfg.ID.String(), cfg.Name, map[string]interface{}{
			"host":     cfg.Host,
			"isActive": cfg.IsActive,
		})
	})
	if err != nil {
		return nil, err
	}

	resp := toEmailConfigResponse(cfg)
	return &resp, nil
}

func (s *emailConfigService) Delete(ctx context.Context, actorID *uuid.UUID, id string) error {
	cfgID, err := parseID("email config", id)
	if err != nil {
		return err
	}

	return s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		cfg, err := s.repo.FindByID(txCtx, cfgID)
		if err != nil {
			return lookupErr("email config", err)
		}
		if err := s.repo.Delete(txCtx, cfgID); err != nil {
			return fmt.Errorf("failed to delete email config: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionDeleteEmailConfig, cfg.ID.String(), cfg.Name, map[string]interface{}{
			"wasDefault": cfg.IsDefault,
		})
	})
}

// SetDefault makes id the only default account in one transaction.
func (s *emailConfigService) SetDefault(ctx context.Context, actorID *uuid.UUID, id string) (*EmailConfigResponse, error) {
	cfgID, err := parseID("email config", id)
	if err != nil {
		return nil, err
	}

	var cfg *model.EmailConfig
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		var err error
		cfg, err = s.repo.FindByID(txCtx, cfgID)
		if err != nil {
			return lookupErr("email config", err)
		}
		if !cfg.IsActive {
			return invalid("isActive", "an inactive email config cannot be the default")
		}

		if err := s.repo.ClearDefault(txCtx, cfg.ID); err != nil {
			return fmt.Errorf("failed to clear previous default: %w", err)
		}
		cfg.IsDefault = true
		if err := s.repo.Update(txCtx, cfg); err != nil {
			return fmt.Errorf("failed to set default email config: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionSetDefaultEmailConfig, cfg.ID.String(), cfg.Name, nil)
	})
	if err != nil {
		return nil, err
	}

	resp := toEmailConfigResponse(cfg)
	return &resp, nil
}

// SendTest delivers a test message through the given account. A delivery
// failure is reported in the response rather than as an error.
func (s *emailConfigService) SendTest(ctx context.Context, id string, req SendTestEmailRequest) (*TestEmailResponse, error) {
	req.To = strings.TrimSpace(req.To)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	cfgID, err := parseID("email config", id)
	if err != nil {
		return nil, err
	}
	cfg, err := s.repo.FindByID(ctx, cfgID)
	if err != nil {
		return nil, lookupErr("email config", err)
	}
	if s.tester == nil {
		return nil, fmt.Errorf("mail delivery is not configured")
	}

	subject, html, err := mailer.TestEmail(cfg.Name, time.Now())
	if err != nil {
		return nil, fmt.Errorf("failed to render test email: %w", err)
	}

	res := &TestEmailResponse{Recipient: req.To}
	if err := s.tester.SendWith(ctx, settingsOf(cfg), req.To, subject, html); err != nil {
		log.Warn().Err(err).Str("email_config", cfg.Name).Msg("test email failed")
		res.Error = err.Error()
		return res, nil
	}
	res.Sent = true
	return res, nil
}

func (s *emailConfigService) ensureNameFree(ctx context.Context, name string, self uuid.UUID) error {
	existing, err := s.repo.FindByName(ctx, name)
	if err == nil && existing.ID != self {
		return &ConflictError{Message: fmt.Sprintf("email config %q already exists", name), Fields: []string{"name"}}
	}
	if err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check email config name: %w", err)
	}
	return nil
}

func settingsOf(cfg *model.EmailConfig) mailer.Settings {
	return mailer.Settings{
		Host:      cfg.Host,
		Port:      cfg.Port,
		Username:  cfg.Username,
		Password:  cfg.Password,
		FromEmail: cfg.FromEmail,
		FromName:  cfg.FromName,
		UseTLS:    cfg.UseTLS,
	}
}

func toEmailConfigResponse(cfg *model.EmailConfig) EmailConfigResponse {
	return EmailConfigResponse{
		ID:          cfg.ID.String(),
		Name:        cfg.Name,
		Host:        cfg.Host,
		Port:        cfg.Port,
		Username:    cfg.Username,
		HasPassword: cfg.Password != "",
		FromEmail:   cfg.FromEmail,
		FromName:    cfg.FromName,
		UseTLS:      cfg.UseTLS,
		IsDefault:   cfg.IsDefault,
		IsActive:    cfg.IsActive,
		CreatedAt:   cfg.CreatedAt.Format(timeLayout),
		UpdatedAt:   cfg.UpdatedAt.Format(timeLayout),
	}
}
