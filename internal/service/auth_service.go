package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"fleetops/internal/auth"
	"fleetops/internal/mailer"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/otp"
	"fleetops/internal/rbac"
	"fleetops/internal/repository"
	"fleetops/pkg/randstr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/crypto/bcrypt"
)

// OTPLength is the number of digits in a registration code.
const OTPLength = 6

type LoginRequest struct {
	Email    string `json:"email" binding:"required,email"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type SendOTPRequest struct {
	Phone string `json:"phone" validate:"required,min=10,max=20"`
	Email string `json:"email" validate:"required,email,max=255"`
}

type SendOTPResponse struct {
	Phone     string `json:"phone"`
	ExpiresIn int    `json:"expiresIn"` // seconds
}

type VerifyOTPRequest struct {
	Phone     string `json:"phone" validate:"required,min=10,max=20"`
	Email     string `json:"email" validate:"required,email,max=255"`
	Code      string `json:"code" validate:"required,len=6,numeric"`
	FirstName string `json:"firstName" validate:"required,max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
	Password  string `json:"password" validate:"required,min=8,max=72"`
}

type AuthResponse struct {
	AccessToken      string       `json:"accessToken"`
	RefreshToken     string       `json:"refreshToken"`
	AccessExpiresAt  time.Time    `json:"accessExpiresAt"`
	RefreshExpiresAt time.Time    `json:"refreshExpiresAt"`
	User             UserResponse `json:"user"`
}

type MeResponse struct {
	User        UserResponse `json:"user"`
	Permissions []string     `json:"permissions"`
}

type AuthService interface {
	Login(ctx context.Context, req LoginRequest) (*AuthResponse, error)
	Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error)
	Logout(ctx context.Context, refreshToken string) error
	Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error)
	SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResponse, error)
	VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResponse, error)
}

type authService struct {
	userRepo   repository.UserRepository
	roleRepo   repository.RoleRepository
	auditRepo  repository.AuditRepository
	txManager  repository.TransactionManager
	authz      AuthorizationService
	tokens     *auth.TokenManager
	refreshTTL time.Duration
	otpStore   otp.Store
	otpTTL     time.Duration
	mail       mailer.Mailer
	metrics    *metrics.Metrics
}

type AuthDeps struct {
	Users      repository.UserRepository
	Roles      repository.RoleRepository
	Audit      repository.AuditRepository
	Tx         repository.TransactionManager
	Authz      AuthorizationService
	Tokens     *auth.TokenManager
	RefreshTTL time.Duration
	OTP        otp.Store
	OTPTTL     time.Duration
	Mailer     mailer.Mailer
	Metrics    *metrics.Metrics
}

func NewAuthService(d AuthDeps) AuthService {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	return &authService{
		userRepo:   d.Users,
		roleRepo:   d.Roles,
		auditRepo:  d.Audit,
		txManager:  d.Tx,
		authz:      d.Authz,
		tokens:     d.Tokens,
		refreshTTL: d.RefreshTTL,
		otpStore:   d.OTP,
		otpTTL:     d.OTPTTL,
		mail:       d.Mailer,
		metrics:    d.Metrics,
	}
}

var errBadCredentials = fmt.Errorf("invalid email or password: %w", ErrUnauthorized)

func (s *authService) Login(ctx context.Context, req LoginRequest) (*AuthResponse, error) {
	user, err := s.userRepo.GetByEmail(ctx, strings.TrimSpace(req.Email))
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, errBadCredentials
		}
		return nil, fmt.Errorf("failed to load user: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errBadCredentials
	}
	if !user.IsActive {
		return nil, fmt.Errorf("account is disabled: %w", ErrUnauthorized)
	}

	now := time.Now()
	if err := s.userRepo.TouchLastLogin(ctx, user.ID, now); err != nil {
		log.Warn().Err(err).Str("user_id", user.ID.String()).Msg("failed to record last login")
	} else {
		user.LastLoginAt = &now
	}

	return s.issue(ctx, user)
}

// Refresh rotates the refresh token: the presented token is revoked and a new pair is issued.
func (s *authService) Refresh(ctx context.Context, refreshToken string) (*AuthResponse, error) {
	if refreshToken == "" {
		return nil, fmt.Errorf("refresh token is required: %w", ErrUnauthorized)
	}

	var user *model.User
	err := s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rt, err := s.userRepo.FindRefreshToken(txCtx, refreshToken)
		if err != nil {
			if repository.IsNotFound(err) {
				return fmt.Errorf("invalid refresh token: %w", ErrUnauthorized)
			}
			return fmt.Errorf("failed to load refresh token: %w", err)
		}
		if time.Now().After(rt.ExpiresAt) {
			return fmt.Errorf("refresh token expired: %w", ErrUnauthorized)
		}
		if err := s.userRepo.DeleteRefreshToken(txCtx, refreshToken); err != nil {
			return fmt.Errorf("failed to revoke refresh token: %w", err)
		}

		user, err = s.userRepo.GetByID(txCtx, rt.UserID)
		if err != nil {
			return lookupErr("user", err)
		}
		if !user.IsActive {
			return fmt.Errorf("account is disabled: %w", ErrUnauthorized)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.issue(ctx, user)
}

// Logout revokes the refresh token. Unknown tokens are ignored.
func (s *authService) Logout(ctx context.Context, refreshToken string) error {
	if refreshToken == "" {
		return nil
	}
	if err := s.userRepo.DeleteRefreshToken(ctx, refreshToken); err != nil && !repository.IsNotFound(err) {
		return fmt.Errorf("failed to revoke refresh token: %w", err)
	}
	return nil
}

func (s *authService) Me(ctx context.Context, userID uuid.UUID) (*MeResponse, error) {
	user, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		return nil, lookupErr("user", err)
	}
	perms, err := s.authz.ResolveEffectivePermissions(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &MeResponse{User: *toUserResponse(user), Permissions: perms.Sorted()}, nil
}

func (s *authService) SendOTP(ctx context.Context, req SendOTPRequest) (*SendOTPResponse, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	if err := s.checkRegistrable(ctx, req.Email, req.Phone); err != nil {
		return nil, err
	}

	code := randstr.Numeric(OTPLength)
	if err := s.otpStore.Save(ctx, req.Phone, otpValue(code, req.Email)); err != nil {
		return nil, fmt.Errorf("failed to store verification code: %w", err)
	}

	subject, html, err := mailer.OTPEmail(code, s.otpTTL)
	if err != nil {
		return nil, fmt.Errorf("failed to render verification email: %w", err)
	}
	if err := s.mail.Send(ctx, req.Email, subject, html); err != nil {
		return nil, fmt.Errorf("failed to send verification email: %w", err)
	}

	log.Info().Str("phone", req.Phone).Msg("registration code sent")
	return &SendOTPResponse{Phone: req.Phone, ExpiresIn: int(s.otpTTL.Seconds())}, nil
}

func (s *authService) VerifyOTP(ctx context.Context, req VerifyOTPRequest) (*AuthResponse, error) {
	req.Phone = strings.TrimSpace(req.Phone)
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.FirstName = strings.TrimSpace(req.FirstName)
	req.LastName = strings.TrimSpace(req.LastName)
	if err := validateStruct(req); err != nil {
		return nil, err
	}

	value := otpValue(req.Code, req.Email)
	ok, err := s.otpStore.Consume(ctx, req.Phone, value)
	if err != nil {
		return nil, fmt.Errorf("failed to check verification code: %w", err)
	}
	s.metrics.OTPVerification(ok)
	if !ok {
		return nil, fmt.Errorf("invalid or expired verification code: %w", ErrUnauthorized)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := &model.User{
		Email:     req.Email,
		Phone:     &req.Phone,
		Password:  string(hashed),
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsActive:  true,
	}

	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		if err := s.checkRegistrable(txCtx, req.Email, req.Phone); err != nil {
			return err
		}
		viewer, err := s.viewerRole(txCtx)
		if err != nil {
			return err
		}
		if err := s.userRepo.Create(txCtx, user); err != nil {
			return fmt.Errorf("failed to create user: %w", err)
		}
		if err := s.userRepo.AddRoles(txCtx, user, []model.Role{*viewer}); err != nil {
			return fmt.Errorf("failed to assign role: %w", err)
		}
		user.Roles = []model.Role{*viewer}
		return s.auditRepo.Record(txCtx, &user.ID, model.ActionRegisterUser, user.ID.String(), user.Email, map[string]interface{}{
			"phone": req.Phone,
		})
	})
	if err != nil {
		// the code was valid; give it back so the caller can retry
		if rerr := s.otpStore.Save(context.WithoutCancel(ctx), req.Phone, value); rerr != nil {
			log.Warn().Err(rerr).Str("phone", req.Phone).Msg("failed to restore registration code")
		}
		return nil, err
	}

	return s.issue(ctx, user)
}

func (s *authService) checkRegistrable(ctx context.Context, email, phone string) error {
	var taken []string
	if _, err := s.userRepo.GetByEmail(ctx, email); err == nil {
		taken = append(taken, "email")
	} else if !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check email: %w", err)
	}
	if _, err := s.userRepo.GetByPhone(ctx, phone); err == nil {
		taken = append(taken, "phone")
	} else if !repository.IsNotFound(err) {
		return fmt.Errorf("failed to check phone: %w", err)
	}
	if len(taken) > 0 {
		return &ConflictError{Message: "an account with this " + strings.Join(taken, " or ") + " already exists", Fields: taken}
	}
	return nil
}

// viewerRole loads the Viewer role, seeding it from the catalog when missing.
func (s *authService) viewerRole(ctx context.Context) (*model.Role, error) {
	role, err := s.roleRepo.FindByName(ctx, rbac.ViewerRole)
	if err == nil {
		return role, nil
	}
	if !repository.IsNotFound(err) {
		return nil, fmt.Errorf("failed to load %s role: %w", rbac.ViewerRole, err)
	}

	for _, p := range rbac.PresetRoles() {
		if p.Name == rbac.ViewerRole {
			return createRole(ctx, s.roleRepo, p.Name, p.Description, p.Permissions)
		}
	}
	return nil, fmt.Errorf("%s role is missing from the catalog", rbac.ViewerRole)
}

func (s *authService) issue(ctx context.Context, user *model.User) (*AuthResponse, error) {
	access, accessExp, err := s.tokens.Issue(user.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	rt := &model.RefreshToken{
		UserID:    user.ID,
		Token:     string(randstr.Bytes(64, hexAlphabet)),
		ExpiresAt: time.Now().Add(s.refreshTTL),
	}
	if err := s.userRepo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, fmt.Errorf("failed to store refresh token: %w", err)
	}

	return &AuthResponse{
		AccessToken:      access,
		RefreshToken:     rt.Token,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: rt.ExpiresAt,
		User:             *toUserResponse(user),
	}, nil
}

var hexAlphabet = []byte("0123456789abcdef")

// otpValue binds a code to the email it was sent to.
func otpValue(code, email string) string {
	return code + "|" + email
}
