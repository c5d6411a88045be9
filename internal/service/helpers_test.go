package service

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fleetops/internal/database/dbtest"
	"fleetops/internal/model"
	"fleetops/internal/repository"
)

type repos struct {
	db     *gorm.DB
	tx     repository.TransactionManager
	users  repository.UserRepository
	roles  repository.RoleRepository
	riders repository.RiderRepository
	codes  repository.RiderCodeRepository
	docs   repository.DocumentRepository
	acks   repository.AcknowledgementRepository
	emails repository.EmailConfigRepository
	audit  repository.AuditRepository
	stats  repository.StatisticsRepository
}

func newRepos(t *testing.T) *repos {
	t.Helper()
	return reposFor(dbtest.New(t))
}

func reposFor(db *gorm.DB) *repos {
	return &repos{
		db:     db,
		tx:     repository.NewTransactionManager(db),
		users:  repository.NewUserRepository(db),
		roles:  repository.NewRoleRepository(db),
		riders: repository.NewRiderRepository(db),
		codes:  repository.NewRiderCodeRepository(db),
		docs:   repository.NewDocumentRepository(db),
		acks:   repository.NewAcknowledgementRepository(db),
		emails: repository.NewEmailConfigRepository(db),
		audit:  repository.NewAuditRepository(db),
		stats:  repository.NewStatisticsRepository(db),
	}
}

func (r *repos) seedUser(t *testing.T, email string, active bool, roles ...model.Role) *model.User {
	t.Helper()
	ctx := context.Background()
	u := &model.User{Email: email, Password: "x", FirstName: "Test", LastName: "User", IsActive: true}
	require.NoError(t, r.users.Create(ctx, u))
	if !active {
		require.NoError(t, r.users.SetActive(ctx, u.ID, false))
		u.IsActive = false
	}
	require.NoError(t, r.users.AddRoles(ctx, u, roles))
	return u
}

func (r *repos) seedRole(t *testing.T, name string, active bool, perms ...string) model.Role {
	t.Helper()
	ctx := context.Background()
	role := &model.Role{Name: name, IsActive: active}
	require.NoError(t, r.roles.Create(ctx, role))

	linked := make([]model.Permission, 0, len(perms))
	for _, name := range perms {
		p := model.Permission{Name: name}
		p.Resource, p.Action = splitForTest(name)
		require.NoError(t, r.roles.FindOrCreatePermission(ctx, &p))
		linked = append(linked, p)
	}
	require.NoError(t, r.roles.AddPermissions(ctx, role, linked))
	return *role
}

func splitForTest(name string) (string, string) {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[:i], name[i+1:]
		}
	}
	return name, ""
}

type sentMail struct {
	To, Subject, HTML string
}

// fakeMailer records messages and fails every send when err is set.
type fakeMailer struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (m *fakeMailer) Send(_ context.Context, to, subject, html string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{To: to, Subject: subject, HTML: html})
	return nil
}

func (m *fakeMailer) Sent() []sentMail {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]sentMail(nil), m.sent...)
}

func mustParse(t *testing.T, id string) uuid.UUID {
	t.Helper()
	u, err := uuid.Parse(id)
	require.NoError(t, err)
	return u
}
