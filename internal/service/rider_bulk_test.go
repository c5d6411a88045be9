package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	ws "fleetops/internal/websocket"
)

func TestFoldHeader(t *testing.T) {
	tests := map[string]string{
		"firstName":       "firstname",
		"first_name":      "firstname",
		"First Name":      "firstname",
		"FIRST-NAME":      "firstname",
		"\ufefffirstName": "firstname",
		"Surname":         "lastname",
		"Mobile Number":   "phone",
		"Emirates ID":     "emiratesid",
		"D.O.B":           "dateofbirth",
		"unknown column":  "unknowncolumn",
	}
	for in, want := range tests {
		assert.Equal(t, want, foldHeader(in), in)
	}
}

func TestBulkTemplateRoundTrips(t *testing.T) {
	f := newRiderFixture(t)

	tmpl, err := f.svc.BulkTemplate()
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(tmpl)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, templateColumns, records[0])
	assert.Len(t, records[1], len(templateColumns))

	// the example row is itself a valid upload
	res, err := f.svc.BulkUpload(context.Background(), nil, tmpl)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Successful, "%+v", res.Errors)
}

func TestBulkUpload(t *testing.T) {
	f := newRiderFixture(t)
	ctx := context.Background()
	creator := f.seedUser(t, "hr@example.com", true)

	body := strings.Join([]string{
		"First Name,last_name,Mobile Number,Email,Company SIM,Salary",
		"Ahmed,Khan,0501111111,ahmed@example.com,0551111111,\"3,500.00\"",
		"Bilal,,0502222222,,,",
		",,,,,",
		"Chen,Wei,0501111111,,,",
		"Dana,Lee,0503333333,dana-at-example.com,,",
		"Eli,Moss,0504444444,,,lots",
		"Farah,Ali,0505555555,,,",
	}, "\n")

	res, err := f.svc.BulkUpload(ctx, &creator.ID, []byte(body))
	require.NoError(t, err)

	assert.Equal(t, 6, res.Total, "blank rows are skipped")
	assert.Equal(t, 2, res.Successful)
	assert.Equal(t, 4, res.Failed)

	require.Len(t, res.Created, 2)
	assert.Equal(t, 2, res.Created[0].Row)
	assert.Regexp(t, riderCodePattern, res.Created[0].RiderCode)
	assert.True(t, res.Created[0].EmailSent)
	assert.True(t, res.Created[0].Acknowledgements.Sim)
	assert.Equal(t, 8, res.Created[1].Row)

	byRow := map[int]BulkRowError{}
	for _, e := range res.Errors {
		byRow[e.Row] = e
	}
	require.Len(t, byRow, 4)

	assert.Equal(t, "lastName", byRow[3].Issues[0].Field)
	assert.Equal(t, "Bilal", byRow[3].Data["firstName"])

	assert.Contains(t, byRow[5].Error, "already exists")
	require.Len(t, byRow[5].Issues, 1)
	assert.Equal(t, "phone", byRow[5].Issues[0].Field)

	assert.Equal(t, "email", byRow[6].Issues[0].Field)
	assert.Equal(t, "salary", byRow[7].Issues[0].Field)

	stored, err := f.riders.FindByID(ctx, mustParse(t, res.Created[0].RiderID))
	require.NoError(t, err)
	require.NotNil(t, stored.Salary)
	assert.True(t, stored.Salary.Equal(decimal.NewFromInt(3500)), stored.Salary.String())
	assert.Equal(t, creator.ID, stored.CreatedByID)

	assert.Len(t, f.mail.Sent(), 1)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.RidersCreatedTotal.WithLabelValues(metrics.SourceBulk)))
	assert.Contains(t, f.events.Types(), ws.EventRidersBulkUploaded)

	logs, _, err := f.audit.List(ctx, repository.AuditFilter{Action: model.ActionBulkUploadRiders, Limit: 10})
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.JSONEq(t, `{"total":6,"successful":2,"failed":4}`, logs[0].Details)
}

func TestBulkUploadRejectsBadFiles(t *testing.T) {
	f := newRiderFixture(t)
	ctx := context.Background()

	tests := map[string]string{
		"empty":          "",
		"header only":    "firstName,lastName,phone\n",
		"missing column": "firstName,lastName\nA,B\n",
		"broken quoting": "firstName,lastName,phone\n\"A,B,0501234567\n",
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := f.svc.BulkUpload(ctx, nil, []byte(body))
			assert.ErrorIs(t, err, ErrValidation)
		})
	}

	var sb strings.Builder
	sb.WriteString("firstName,lastName,phone\n")
	for i := 0; i <= MaxBulkRows; i++ {
		sb.WriteString("A,B,0500000000\n")
	}
	_, err := f.svc.BulkUpload(ctx, nil, []byte(sb.String()))
	assert.ErrorIs(t, err, ErrValidation)
}

// slowMailer takes delay per message and records the peak number of sends in flight.
type slowMailer struct {
	delay time.Duration
	err   error

	mu     sync.Mutex
	active int
	peak   int
	calls  int
}

func (m *slowMailer) Send(context.Context, string, string, string) error {
	m.mu.Lock()
	m.active++
	m.calls++
	if m.active > m.peak {
		m.peak = m.active
	}
	m.mu.Unlock()

	time.Sleep(m.delay)

	m.mu.Lock()
	m.active--
	m.mu.Unlock()
	return m.err
}

func bulkBody(rows int) []byte {
	var sb strings.Builder
	sb.WriteString("firstName,lastName,phone,email\n")
	for i := 0; i < rows; i++ {
		fmt.Fprintf(&sb, "Rider,%d,05010%05d,rider%d@example.com\n", i, i, i)
	}
	return []byte(sb.String())
}

func TestBulkUploadSideEffectsRunConcurrently(t *testing.T) {
	m := &slowMailer{delay: 50 * time.Millisecond}
	f := newRiderFixture(t, withMailer(m))

	const rows = 24
	res, err := f.svc.BulkUpload(context.Background(), nil, bulkBody(rows))
	require.NoError(t, err)
	require.Equal(t, rows, res.Successful, "%+v", res.Errors)

	for i, c := range res.Created {
		assert.Equal(t, i+2, c.Row, "rows keep file order")
		assert.True(t, c.EmailSent, "row %d", c.Row)
		assert.True(t, c.Acknowledgements.Visa, "row %d", c.Row)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	assert.Equal(t, rows, m.calls)
	assert.Greater(t, m.peak, 1, "riders must not be mailed one at a time")
	assert.LessOrEqual(t, m.peak, BulkSideEffectWorkers)
}

func TestBulkUploadReportsFailedSideEffectsPerRow(t *testing.T) {
	m := &slowMailer{delay: 10 * time.Millisecond, err: errors.New("smtp down")}
	f := newRiderFixture(t, withMailer(m))

	res, err := f.svc.BulkUpload(context.Background(), nil, bulkBody(5))
	require.NoError(t, err)

	assert.Equal(t, 5, res.Successful, "mail failures never fail the row")
	assert.Zero(t, res.Failed)
	for _, c := range res.Created {
		assert.False(t, c.EmailSent, "row %d", c.Row)
		assert.True(t, c.Acknowledgements.Visa, "row %d", c.Row)
	}
	assert.Equal(t, 5.0, testutil.ToFloat64(f.metrics.SideEffectsTotal.WithLabelValues(metrics.EffectEmail, "failure")))
}
