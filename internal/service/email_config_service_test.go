package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/mailer"
	"fleetops/internal/model"
)

type testSend struct {
	Settings mailer.Settings
	To       string
	Subject  string
}

type fakeTester struct {
	mu    sync.Mutex
	sends []testSend
	err   error
}

func (f *fakeTester) SendWith(_ context.Context, s mailer.Settings, to, subject, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sends = append(f.sends, testSend{Settings: s, To: to, Subject: subject})
	return f.err
}

func smtpRequest(name string) CreateEmailConfigRequest {
	return CreateEmailConfigRequest{
		Name:      name,
		Host:      "smtp.example.com",
		Port:      587,
		Username:  "mailer",
		Password:  "s3cret",
		FromEmail: "No-Reply@Example.com",
		FromName:  "Fleet Ops",
		UseTLS:    true,
	}
}

func defaultConfigNames(t *testing.T, r *repos) []string {
	t.Helper()
	var names []string
	require.NoError(t, r.db.Model(&model.EmailConfig{}).Where("is_default = ?", true).Pluck("name", &names).Error)
	return names
}

func TestEmailConfigLifecycle(t *testing.T) {
	r := newRepos(t)
	tester := &fakeTester{}
	svc := NewEmailConfigService(r.emails, r.audit, r.tx, tester)
	ctx := context.Background()

	_, ok, err := svc.SMTPSettings(ctx)
	require.NoError(t, err)
	assert.False(t, ok, "nothing configured yet")

	primary, err := svc.Create(ctx, nil, smtpRequest("primary"))
	require.NoError(t, err)
	assert.True(t, primary.IsDefault, "the first config becomes the default")
	assert.True(t, primary.HasPassword)
	assert.Equal(t, "no-reply@example.com", primary.FromEmail)

	backup, err := svc.Create(ctx, nil, smtpRequest("backup"))
	require.NoError(t, err)
	assert.False(t, backup.IsDefault)

	_, err = svc.Create(ctx, nil, smtpRequest("primary"))
	require.ErrorIs(t, err, ErrConflict)

	bad := smtpRequest("broken")
	bad.Port = 70000
	bad.FromEmail = "nobody"
	_, err = svc.Create(ctx, nil, bad)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Len(t, verr.Issues, 2)

	settings, ok, err := svc.SMTPSettings(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com", settings.Host)
	assert.Equal(t, "s3cret", settings.Password)

	_, err = svc.SetDefault(ctx, nil, backup.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"backup"}, defaultConfigNames(t, r))

	// a new default created later also leaves exactly one
	third := smtpRequest("third")
	third.IsDefault = true
	_, err = svc.Create(ctx, nil, third)
	require.NoError(t, err)
	assert.Equal(t, []string{"third"}, defaultConfigNames(t, r))

	host := "mail.example.org"
	empty := ""
	updated, err := svc.Update(ctx, nil, primary.ID, UpdateEmailConfigRequest{Host: &host, Password: &empty})
	require.NoError(t, err)
	assert.Equal(t, "mail.example.org", updated.Host)
	assert.True(t, updated.HasPassword, "an empty password keeps the stored one")

	taken := "backup"
	_, err = svc.Update(ctx, nil, primary.ID, UpdateEmailConfigRequest{Name: &taken})
	assert.ErrorIs(t, err, ErrConflict)

	inactive := false
	_, err = svc.Update(ctx, nil, primary.ID, UpdateEmailConfigRequest{IsActive: &inactive})
	require.NoError(t, err)
	_, err = svc.SetDefault(ctx, nil, primary.ID)
	assert.ErrorIs(t, err, ErrValidation)

	require.NoError(t, svc.Delete(ctx, nil, backup.ID))
	_, err = svc.Get(ctx, backup.ID)
	assert.ErrorIs(t, err, ErrNotFound)

	list, err := svc.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "third", list[0].Name, "default first")
}

func TestSendTestEmail(t *testing.T) {
	r := newRepos(t)
	tester := &fakeTester{}
	svc := NewEmailConfigService(r.emails, r.audit, r.tx, nil)
	ctx := context.Background()

	cfg, err := svc.Create(ctx, nil, smtpRequest("primary"))
	require.NoError(t, err)

	_, err = svc.SendTest(ctx, cfg.ID, SendTestEmailRequest{To: "ops@example.com"})
	require.Error(t, err, "no tester wired yet")

	svc.SetTester(tester)
	res, err := svc.SendTest(ctx, cfg.ID, SendTestEmailRequest{To: "ops@example.com"})
	require.NoError(t, err)
	assert.True(t, res.Sent)
	require.Len(t, tester.sends, 1)
	assert.Equal(t, "smtp.example.com", tester.sends[0].Settings.Host)
	assert.Equal(t, "ops@example.com", tester.sends[0].To)

	tester.err = errors.New("535 authentication failed")
	res, err = svc.SendTest(ctx, cfg.ID, SendTestEmailRequest{To: "ops@example.com"})
	require.NoError(t, err)
	assert.False(t, res.Sent)
	assert.Contains(t, res.Error, "authentication failed")

	_, err = svc.SendTest(ctx, cfg.ID, SendTestEmailRequest{To: "not-an-address"})
	assert.ErrorIs(t, err, ErrValidation)
}
