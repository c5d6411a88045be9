package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"fleetops/internal/auth"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/otp"
	"fleetops/internal/rbac"
)

type authFixture struct {
	*repos
	svc     AuthService
	mail    *fakeMailer
	store   otp.Store
	tokens  *auth.TokenManager
	metrics *metrics.Metrics
}

func newAuthFixture(t *testing.T) *authFixture {
	r := newRepos(t)
	f := &authFixture{
		repos:   r,
		mail:    &fakeMailer{},
		store:   otp.NewMemoryStore(100, 10*time.Minute, otp.DefaultMaxAttempts),
		tokens:  auth.NewTokenManager("test-secret", time.Hour),
		metrics: metrics.New(prometheus.NewRegistry()),
	}
	f.svc = NewAuthService(AuthDeps{
		Users:      r.users,
		Roles:      r.roles,
		Audit:      r.audit,
		Tx:         r.tx,
		Authz:      NewAuthorizationService(r.users, r.roles, nil),
		Tokens:     f.tokens,
		RefreshTTL: 24 * time.Hour,
		OTP:        f.store,
		OTPTTL:     10 * time.Minute,
		Mailer:     f.mail,
		Metrics:    f.metrics,
	})
	return f
}

func (f *authFixture) seedLogin(t *testing.T, email, password string, active bool, roles ...model.Role) *model.User {
	t.Helper()
	u := f.seedUser(t, email, active, roles...)
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, f.db.Model(&model.User{}).Where("id = ?", u.ID).Update("password", string(hashed)).Error)
	return u
}

func TestLogin(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedLogin(t, "ops@example.com", "correct-horse", true)
	f.seedLogin(t, "gone@example.com", "correct-horse", false)

	res, err := f.svc.Login(ctx, LoginRequest{Email: "OPS@example.com", Password: "correct-horse"})
	require.NoError(t, err)
	assert.NotEmpty(t, res.RefreshToken)
	assert.Equal(t, user.ID.String(), res.User.ID)
	assert.NotNil(t, res.User.LastLoginAt)

	sub, err := f.tokens.Parse(res.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, sub)

	for _, tc := range []LoginRequest{
		{Email: "ops@example.com", Password: "wrong"},
		{Email: "nobody@example.com", Password: "correct-horse"},
		{Email: "gone@example.com", Password: "correct-horse"},
	} {
		_, err := f.svc.Login(ctx, tc)
		assert.ErrorIs(t, err, ErrUnauthorized, tc.Email)
	}
}

func TestRefreshRotatesAndLogoutRevokes(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	f.seedLogin(t, "ops@example.com", "correct-horse", true)

	first, err := f.svc.Login(ctx, LoginRequest{Email: "ops@example.com", Password: "correct-horse"})
	require.NoError(t, err)

	second, err := f.svc.Refresh(ctx, first.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, first.RefreshToken, second.RefreshToken)

	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)

	require.NoError(t, f.svc.Logout(ctx, second.RefreshToken))
	require.NoError(t, f.svc.Logout(ctx, second.RefreshToken))
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestRefreshRejectsExpiredToken(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.seedLogin(t, "ops@example.com", "correct-horse", true)

	rt := &model.RefreshToken{UserID: user.ID, Token: "stale", ExpiresAt: time.Now().Add(-time.Minute)}
	require.NoError(t, f.users.CreateRefreshToken(ctx, rt))

	_, err := f.svc.Refresh(ctx, "stale")
	assert.ErrorIs(t, err, ErrUnauthorized)
}

func TestMe(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	role := f.seedRole(t, "Reporter", true, "reports.read")
	user := f.seedLogin(t, "me@example.com", "correct-horse", true, role)

	me, err := f.svc.Me(ctx, user.ID)
	require.NoError(t, err)
	assert.Equal(t, "me@example.com", me.User.Email)
	assert.Equal(t, []string{"reports.read"}, me.Permissions)
}

var codePattern = regexp.MustCompile(`\b(\d{6})\b`)

func sentCode(t *testing.T, m *fakeMailer) string {
	t.Helper()
	sent := m.Sent()
	require.NotEmpty(t, sent)
	match := codePattern.FindStringSubmatch(sent[len(sent)-1].HTML)
	require.Len(t, match, 2, "no code in email body")
	return match[1]
}

func TestOTPRegistration(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	res, err := f.svc.SendOTP(ctx, SendOTPRequest{Phone: "0509876543", Email: "New@Example.com"})
	require.NoError(t, err)
	assert.Equal(t, 600, res.ExpiresIn)
	assert.Equal(t, "new@example.com", f.mail.Sent()[0].To)
	code := sentCode(t, f.mail)

	req := VerifyOTPRequest{
		Phone:     "0509876543",
		Email:     "new@example.com",
		Code:      code,
		FirstName: "New",
		Password:  "long-enough",
	}

	wrong := req
	wrong.Code = "000000"
	if code == wrong.Code {
		wrong.Code = "111111"
	}
	_, err = f.svc.VerifyOTP(ctx, wrong)
	assert.ErrorIs(t, err, ErrUnauthorized)

	otherEmail := req
	otherEmail.Email = "intruder@example.com"
	_, err = f.svc.VerifyOTP(ctx, otherEmail)
	assert.ErrorIs(t, err, ErrUnauthorized)

	out, err := f.svc.VerifyOTP(ctx, req)
	require.NoError(t, err)
	assert.NotEmpty(t, out.AccessToken)
	require.Len(t, out.User.Roles, 1)
	assert.Equal(t, rbac.ViewerRole, out.User.Roles[0].Name)

	// codes are single use
	_, err = f.svc.VerifyOTP(ctx, req)
	assert.ErrorIs(t, err, ErrUnauthorized)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.OTPVerificationsTotal.WithLabelValues("accepted")))
	assert.Equal(t, 3.0, testutil.ToFloat64(f.metrics.OTPVerificationsTotal.WithLabelValues("rejected")))

	me, err := f.svc.Me(ctx, mustParse(t, out.User.ID))
	require.NoError(t, err)
	assert.Len(t, me.Permissions, len(rbac.Modules()))

	_, err = f.svc.SendOTP(ctx, SendOTPRequest{Phone: "0509876543", Email: "again@example.com"})
	var cerr *ConflictError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, []string{"phone"}, cerr.Fields)
}

func TestSendOTPFailsWhenMailFails(t *testing.T) {
	f := newAuthFixture(t)
	f.mail.err = errors.New("smtp down")

	_, err := f.svc.SendOTP(context.Background(), SendOTPRequest{Phone: "0501112222", Email: "x@example.com"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrValidation)
}

func registration(t *testing.T, f *authFixture, phone, email string) VerifyOTPRequest {
	t.Helper()
	_, err := f.svc.SendOTP(context.Background(), SendOTPRequest{Phone: phone, Email: email})
	require.NoError(t, err)
	return VerifyOTPRequest{
		Phone:     phone,
		Email:     email,
		Code:      sentCode(t, f.mail),
		FirstName: "New",
		Password:  "long-enough",
	}
}

func TestVerifyOTPInvalidatesCodeAfterRepeatedFailures(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	req := registration(t, f, "0507770001", "guess@example.com")

	wrong := req
	for i := 0; i < otp.DefaultMaxAttempts; i++ {
		wrong.Code = fmt.Sprintf("%06d", i)
		if wrong.Code == req.Code {
			wrong.Code = "999999"
		}
		_, err := f.svc.VerifyOTP(ctx, wrong)
		require.ErrorIs(t, err, ErrUnauthorized)
	}

	_, err := f.svc.VerifyOTP(ctx, req)
	assert.ErrorIs(t, err, ErrUnauthorized, "the correct code no longer works")

	// a new code is accepted
	fresh := registration(t, f, "0507770001", "guess@example.com")
	_, err = f.svc.VerifyOTP(ctx, fresh)
	assert.NoError(t, err)
}

func TestVerifyOTPKeepsCodeWhenRegistrationFails(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()
	req := registration(t, f, "0507770002", "late@example.com")

	// another account takes the email between sending and verifying
	other := f.seedUser(t, "late@example.com", true)
	_, err := f.svc.VerifyOTP(ctx, req)
	require.ErrorIs(t, err, ErrConflict)

	require.NoError(t, f.db.Unscoped().Delete(&model.User{}, "id = ?", other.ID).Error)

	out, err := f.svc.VerifyOTP(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "late@example.com", out.User.Email)
}

func TestRegistrationSeedsViewerRoleOnce(t *testing.T) {
	f := newAuthFixture(t)
	ctx := context.Background()

	first, err := f.svc.VerifyOTP(ctx, registration(t, f, "0507770003", "one@example.com"))
	require.NoError(t, err)
	second, err := f.svc.VerifyOTP(ctx, registration(t, f, "0507770004", "two@example.com"))
	require.NoError(t, err)
	assert.Equal(t, first.User.Roles[0].ID, second.User.Roles[0].ID)

	var count int64
	require.NoError(t, f.db.Model(&model.Role{}).Where("name = ?", rbac.ViewerRole).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	viewer, err := f.roles.FindByName(ctx, rbac.ViewerRole)
	require.NoError(t, err)
	stored, err := f.roles.FindByIDWithPermissions(ctx, viewer.ID)
	require.NoError(t, err)

	var preset rbac.PresetRole
	for _, p := range rbac.PresetRoles() {
		if p.Name == rbac.ViewerRole {
			preset = p
		}
	}
	assert.Equal(t, rbac.NormalizeSet(preset.Permissions), stored.PermissionNames())
	for _, p := range stored.Permissions {
		assert.NotEmpty(t, p.Description, p.Name)
	}
}
