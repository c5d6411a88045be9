package routes

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/config"
	"fleetops/internal/database/dbtest"
	"fleetops/internal/mailer"
	"fleetops/internal/metrics"
	"fleetops/internal/middleware"
	"fleetops/internal/otp"
	"fleetops/internal/pdf"
	"fleetops/internal/rbac"
	"fleetops/internal/service"
	"fleetops/internal/storage"
	"fleetops/internal/websocket"
)

const adminPassword = "admin-password"

// captureMailer records every message and serves as the email config tester.
type captureMailer struct {
	mu   sync.Mutex
	sent []string
}

func (m *captureMailer) Send(_ context.Context, to, _, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, to)
	return nil
}

func (m *captureMailer) SendWith(ctx context.Context, _ mailer.Settings, to, subject, html string) error {
	return m.Send(ctx, to, subject, html)
}

func (m *captureMailer) Recipients() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.sent...)
}

type testApp struct {
	engine   *gin.Engine
	services *Services
	mail     *captureMailer
	admin    string // access token of a Super Admin
	viewer   string // access token of a Viewer
}

// envelope mirrors response.Response with the data left undecoded.
type envelope struct {
	Status     string          `json:"status"`
	StatusCode int             `json:"status_code"`
	Data       json.RawMessage `json:"data"`
	Error      string          `json:"error"`
	Details    json.RawMessage `json:"details"`
}

func newTestApp(t *testing.T) *testApp {
	t.Helper()
	gin.SetMode(gin.TestMode)

	files, err := storage.NewLocalBackend(t.TempDir(), "http://api.example.test", "test-secret")
	require.NoError(t, err)

	reg := prometheus.NewRegistry()
	mail := &captureMailer{}
	infra := Infra{
		Config: config.Config{
			Server:  config.Server{Mode: gin.TestMode},
			JWT:     config.JWT{Secret: "test-secret", AccessTTL: time.Hour, RefreshTTL: 24 * time.Hour},
			Storage: config.Storage{SignedURLTTL: time.Minute},
			OTP:     config.OTP{TTL: 10 * time.Minute},
		},
		DB:       dbtest.New(t),
		Files:    files,
		OTP:      otp.NewMemoryStore(100, 10*time.Minute, otp.DefaultMaxAttempts),
		Renderer: pdf.NewRenderer("Fleet Operations"),
		Mailer:   mail,
		Metrics:  metrics.New(reg),
		Gatherer: reg,
		Hub:      websocket.NewHub(),
	}
	services := NewServices(infra)
	app := &testApp{engine: NewRouter(infra, services), services: services, mail: mail}

	ctx := context.Background()
	_, err = services.Roles.InitializePresets(ctx, nil)
	require.NoError(t, err)
	roles, err := services.Roles.ListRoles(ctx)
	require.NoError(t, err)
	roleIDs := map[string]string{}
	for _, r := range roles {
		roleIDs[r.Name] = r.ID
	}

	for email, role := range map[string]string{
		"admin@example.com":  rbac.SuperAdminRole,
		"viewer@example.com": rbac.ViewerRole,
	} {
		_, err := services.Users.CreateUser(ctx, nil, service.CreateUserRequest{
			Email:     email,
			Password:  adminPassword,
			FirstName: "Test",
			RoleIDs:   []string{roleIDs[role]},
		})
		require.NoError(t, err)
	}

	app.admin = app.login(t, "admin@example.com").AccessToken
	app.viewer = app.login(t, "viewer@example.com").AccessToken
	return app
}

func (a *testApp) do(t *testing.T, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, body)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	a.engine.ServeHTTP(w, req)
	return w
}

func (a *testApp) doJSON(t *testing.T, method, path, token string, payload interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		require.NoError(t, err)
		body = bytes.NewReader(raw)
	}
	return a.do(t, method, path, token, body, "application/json")
}

func (a *testApp) login(t *testing.T, email string) service.AuthResponse {
	t.Helper()
	w := a.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": email, "password": adminPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res service.AuthResponse
	decode(t, w, &res)
	return res
}

func decode(t *testing.T, w *httptest.ResponseRecorder, out interface{}) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	if out != nil {
		require.NoError(t, json.Unmarshal(env.Data, out), string(env.Data))
	}
	return env
}

func multipartBody(t *testing.T, fields map[string]string, fileName string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	fw, err := mw.CreateFormFile("file", fileName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, mw.Close())
	return &buf, mw.FormDataContentType()
}

func TestHealthAndMetrics(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/health", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"OK","database":"up","wsClients":0}`, w.Body.String())

	w = app.do(t, http.MethodGet, "/metrics", "", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "fleetops_http_requests_total")
}

func TestAuthEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.doJSON(t, http.MethodPost, "/api/auth/login", "", map[string]string{"email": "admin@example.com", "password": adminPassword})
	require.Equal(t, http.StatusOK, w.Code)
	var refreshCookie *http.Cookie
	for _, c := range w.Result().Cookies() {
		if c.Name == middleware.RefreshTokenCookie {
			refreshCookie = c
		}
	}
	require.NotNil(t, refreshCookie, "login sets the refresh cookie")

	w = app.do(t, http.MethodGet, "/api/auth/me", app.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var me service.MeResponse
	decode(t, w, &me)
	assert.Equal(t, "admin@example.com", me.User.Email)
	assert.ElementsMatch(t, rbac.AllPermissions(), me.Permissions)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(refreshCookie)
	rw := httptest.NewRecorder()
	app.engine.ServeHTTP(rw, req)
	require.Equal(t, http.StatusOK, rw.Code, rw.Body.String())
	var rotated service.AuthResponse
	decode(t, rw, &rotated)
	assert.NotEqual(t, refreshCookie.Value, rotated.RefreshToken)

	// the rotated-out token is spent
	w = app.doJSON(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": refreshCookie.Value})
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.doJSON(t, http.MethodPost, "/api/auth/logout", "", map[string]string{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusOK, w.Code)
	w = app.doJSON(t, http.MethodPost, "/api/auth/refresh", "", map[string]string{"refreshToken": rotated.RefreshToken})
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPermissionsAreEnforced(t *testing.T) {
	app := newTestApp(t)
	rider := map[string]string{"firstName": "Ahmed", "lastName": "Khan", "phone": "0501234567"}

	w := app.do(t, http.MethodGet, "/api/riders", "", nil, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = app.do(t, http.MethodGet, "/api/riders", app.viewer, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.doJSON(t, http.MethodPost, "/api/riders", app.viewer, rider)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.doJSON(t, http.MethodPost, "/api/roles", app.viewer, map[string]interface{}{"name": "Ops"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.doJSON(t, http.MethodPost, "/api/riders", app.admin, rider)
	assert.Equal(t, http.StatusCreated, w.Code)
}

func TestRoleEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/roles/modules", app.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var modules service.ModulesResponse
	decode(t, w, &modules)
	assert.Len(t, modules.Modules, 10)
	assert.Len(t, modules.PresetKeys, 10)

	w = app.do(t, http.MethodPost, "/api/roles/initialize-presets", app.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var seeded struct {
		Created int                    `json:"created"`
		Results []service.PresetResult `json:"results"`
	}
	decode(t, w, &seeded)
	assert.Zero(t, seeded.Created, "presets already exist")
	assert.Len(t, seeded.Results, 10)

	w = app.doJSON(t, http.MethodPost, "/api/roles", app.admin, map[string]interface{}{
		"name":        "Night Shift",
		"permissions": []string{"riders.read", "jobs:write"},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var role service.RoleResponse
	decode(t, w, &role)
	assert.ElementsMatch(t, []string{"riders.read", "jobs.write"}, role.Permissions)

	w = app.doJSON(t, http.MethodPost, "/api/roles", app.admin, map[string]interface{}{"name": "Night Shift"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.doJSON(t, http.MethodPut, "/api/roles/"+role.ID+"/permissions", app.admin, map[string]interface{}{
		"permissions": []string{"riders.read", "riders.write"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	decode(t, w, &role)
	assert.ElementsMatch(t, []string{"riders.read", "riders.write"}, role.Permissions)

	w = app.do(t, http.MethodDelete, "/api/roles/"+role.ID, app.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = app.do(t, http.MethodGet, "/api/roles/"+role.ID, app.admin, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = app.do(t, http.MethodGet, "/api/permissions", app.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRiderEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.doJSON(t, http.MethodPost, "/api/riders", app.admin, map[string]interface{}{
		"firstName":  "Ahmed",
		"lastName":   "Khan",
		"phone":      "0501234567",
		"email":      "ahmed@example.com",
		"visaNumber": "V-1",
		"companySim": "0559876543",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created service.CreateRiderResponse
	decode(t, w, &created)
	assert.Regexp(t, `^FLCR\d{2}\d{4}$`, created.Rider.RiderCode)
	assert.True(t, created.EmailSent)
	assert.True(t, created.Acknowledgements.Visa)
	assert.True(t, created.Acknowledgements.Sim)
	assert.Contains(t, app.mail.Recipients(), "ahmed@example.com")

	w = app.doJSON(t, http.MethodPost, "/api/riders", app.admin, map[string]interface{}{
		"firstName": "Other",
		"lastName":  "Person",
		"phone":     "0501234567",
	})
	require.Equal(t, http.StatusConflict, w.Code)
	env := decode(t, w, nil)
	assert.JSONEq(t, `{"fields":["phone"]}`, string(env.Details))

	w = app.doJSON(t, http.MethodPost, "/api/riders", app.admin, map[string]interface{}{"firstName": "No"})
	require.Equal(t, http.StatusBadRequest, w.Code)
	env = decode(t, w, nil)
	var issues []service.FieldIssue
	require.NoError(t, json.Unmarshal(env.Details, &issues))
	assert.NotEmpty(t, issues)

	w = app.doJSON(t, http.MethodPatch, "/api/riders/"+created.Rider.ID, app.admin, map[string]interface{}{"onboardingStatus": "IN_PROGRESS"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var updated service.RiderResponse
	decode(t, w, &updated)
	assert.Equal(t, "IN_PROGRESS", updated.OnboardingStatus)

	w = app.do(t, http.MethodGet, "/api/riders/"+created.Rider.ID, app.viewer, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var detail service.RiderDetailResponse
	decode(t, w, &detail)
	assert.Len(t, detail.Acknowledgements, 2)

	w = app.do(t, http.MethodGet, "/api/riders?search=ahmed&limit=5", app.viewer, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var page struct {
		Items []service.RiderResponse `json:"items"`
		Total int64                   `json:"total"`
		Limit int                     `json:"limit"`
	}
	decode(t, w, &page)
	assert.EqualValues(t, 1, page.Total)
	assert.Equal(t, 5, page.Limit)

	w = app.do(t, http.MethodDelete, "/api/riders/"+created.Rider.ID, app.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = app.do(t, http.MethodGet, "/api/riders", app.viewer, nil, "")
	decode(t, w, &page)
	assert.Zero(t, page.Total, "deleted riders are hidden by default")
}

func TestBulkUploadEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.do(t, http.MethodGet, "/api/riders/template", app.viewer, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.True(t, strings.HasPrefix(w.Body.String(), "firstName,lastName,phone"), w.Body.String())

	csv := "firstName,lastName,phone\nAhmed,Khan,0501111111\nBilal,,0502222222\n"
	body, contentType := multipartBody(t, nil, "riders.csv", []byte(csv))
	w = app.do(t, http.MethodPost, "/api/riders/bulk-upload", app.admin, body, contentType)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var res service.BulkUploadResult
	decode(t, w, &res)
	assert.Equal(t, 2, res.Total)
	assert.Equal(t, 1, res.Successful)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, 3, res.Errors[0].Row)

	w = app.do(t, http.MethodPost, "/api/riders/bulk-upload", app.admin, strings.NewReader("{}"), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDocumentEndpoints(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	rider, err := app.services.Riders.CreateRider(ctx, nil, service.RiderInput{FirstName: "Ahmed", LastName: "Khan", Phone: "0501234567"})
	require.NoError(t, err)

	content := []byte("%PDF-1.4\n1 0 obj\n<<>>\nendobj\ntrailer\n<<>>\n%%EOF\n")
	body, contentType := multipartBody(t, map[string]string{"type": "PASSPORT", "expiryDate": "2030-01-31"}, "passport.pdf", content)
	w := app.do(t, http.MethodPost, "/api/riders/"+rider.Rider.ID+"/documents", app.admin, body, contentType)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var doc service.DocumentResponse
	decode(t, w, &doc)
	assert.Equal(t, "PENDING", doc.Status)

	w = app.doJSON(t, http.MethodPatch, "/api/documents/"+doc.ID+"/status", app.admin, map[string]string{"status": "REJECTED"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "rejection without a reason")
	w = app.doJSON(t, http.MethodPatch, "/api/documents/"+doc.ID+"/status", app.admin, map[string]string{"status": "VERIFIED"})
	require.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodGet, "/api/documents/"+doc.ID+"/download", app.viewer, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var dl service.DownloadResponse
	decode(t, w, &dl)
	u, err := url.Parse(dl.URL)
	require.NoError(t, err)

	w = app.do(t, http.MethodGet, u.RequestURI(), "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, content, w.Body.Bytes())

	w = app.do(t, http.MethodGet, u.Path+"?token=forged", "", nil, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = app.do(t, http.MethodDelete, "/api/documents/"+doc.ID, app.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = app.do(t, http.MethodGet, "/api/riders/"+rider.Rider.ID+"/documents", app.admin, nil, "")
	var docs []service.DocumentResponse
	decode(t, w, &docs)
	assert.Empty(t, docs)
}

func TestAcknowledgementEndpoints(t *testing.T) {
	app := newTestApp(t)
	ctx := context.Background()
	rider, err := app.services.Riders.CreateRider(ctx, nil, service.RiderInput{FirstName: "Ahmed", LastName: "Khan", Phone: "0501234567"})
	require.NoError(t, err)

	w := app.doJSON(t, http.MethodPost, "/api/riders/"+rider.Rider.ID+"/acknowledgements", app.admin, map[string]string{"type": "EQUIPMENT", "details": "Helmet and bag"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var ack service.AcknowledgementResponse
	decode(t, w, &ack)
	assert.Equal(t, "PENDING", ack.Status)

	w = app.do(t, http.MethodPost, "/api/acknowledgements/"+ack.ID+"/acknowledge", app.admin, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	w = app.do(t, http.MethodPost, "/api/acknowledgements/"+ack.ID+"/acknowledge", app.admin, nil, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	w = app.do(t, http.MethodGet, "/api/acknowledgements/"+ack.ID+"/download", app.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = app.do(t, http.MethodDelete, "/api/acknowledgements/"+ack.ID, app.admin, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	w = app.do(t, http.MethodDelete, "/api/acknowledgements/"+ack.ID, app.admin, nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestEmailConfigAndReportingEndpoints(t *testing.T) {
	app := newTestApp(t)

	w := app.doJSON(t, http.MethodPost, "/api/email-configs", app.admin, map[string]interface{}{
		"name":      "Primary",
		"host":      "smtp.example.com",
		"port":      587,
		"username":  "mailer",
		"password":  "secret",
		"fromEmail": "ops@example.com",
		"fromName":  "Fleet Ops",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var cfg service.EmailConfigResponse
	decode(t, w, &cfg)
	assert.True(t, cfg.IsDefault)
	assert.True(t, cfg.HasPassword)
	assert.NotContains(t, w.Body.String(), "secret")

	w = app.doJSON(t, http.MethodPost, "/api/email-configs/"+cfg.ID+"/test", app.admin, map[string]string{"to": "check@example.com"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var sent service.TestEmailResponse
	decode(t, w, &sent)
	assert.True(t, sent.Sent)
	assert.Contains(t, app.mail.Recipients(), "check@example.com")

	w = app.do(t, http.MethodGet, "/api/email-configs", app.viewer, nil, "")
	assert.Equal(t, http.StatusOK, w.Code)

	_, err := app.services.Riders.CreateRider(context.Background(), nil, service.RiderInput{FirstName: "Ahmed", LastName: "Khan", Phone: "0501234567"})
	require.NoError(t, err)

	w = app.do(t, http.MethodGet, "/api/statistics?startDate=2000-01-01", app.viewer, nil, "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var stats struct {
		TotalRiders int64 `json:"totalRiders"`
	}
	decode(t, w, &stats)
	assert.EqualValues(t, 1, stats.TotalRiders)

	w = app.do(t, http.MethodGet, "/api/statistics?startDate=yesterday", app.viewer, nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = app.do(t, http.MethodGet, "/api/audit-logs?action=create_rider", app.viewer, nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var logs struct {
		Items []service.AuditLogResponse `json:"items"`
		Total int64                      `json:"total"`
	}
	decode(t, w, &logs)
	assert.EqualValues(t, 1, logs.Total)
	assert.Equal(t, "CREATE_RIDER", logs.Items[0].Action)
}
