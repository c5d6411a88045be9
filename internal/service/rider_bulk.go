package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"

	"fleetops/internal/metrics"
	"fleetops/internal/model"
	ws "fleetops/internal/websocket"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

const (
	// MaxBulkRows caps the data rows accepted in one upload.
	MaxBulkRows = 1000
	// BulkSideEffectWorkers bounds how many riders of one upload send
	// credentials and render acknowledgements at the same time.
	BulkSideEffectWorkers = 8
)

// BulkRowError describes one rejected CSV row. Row is the line number in the
// file, so the first data row after the header is 2.
type BulkRowError struct {
	Row    int               `json:"row"`
	Data   map[string]string `json:"data"`
	Error  string            `json:"error"`
	Issues []FieldIssue      `json:"issues,omitempty"`
}

type BulkCreated struct {
	Row              int                    `json:"row"`
	RiderID          string                 `json:"riderId"`
	RiderCode        string                 `json:"riderCode"`
	EmailSent        bool                   `json:"emailSent"`
	Acknowledgements AcknowledgementOutcome `json:"acknowledgements"`
}

type BulkUploadResult struct {
	Total      int            `json:"total"`
	Successful int            `json:"successful"`
	Failed     int            `json:"failed"`
	Created    []BulkCreated  `json:"created"`
	Errors     []BulkRowError `json:"errors"`
}

// templateColumns is the canonical column order of the upload template.
var templateColumns = []string{
	"firstName", "lastName", "phone", "email", "nationality", "dateOfBirth",
	"emiratesId", "emiratesIdExpiry", "passportNumber", "passportExpiry",
	"licenseNumber", "licenseExpiry", "visaNumber", "visaExpiry", "employeeId",
	"companySim", "address", "emergencyContactName", "emergencyContactPhone",
	"joinDate", "salary", "notes", "employmentStatus", "onboardingStatus",
}

var templateExample = []string{
	"Ahmed", "Khan", "0501234567", "ahmed.khan@example.com", "Pakistan", "1994-03-18",
	"784-1994-1234567-1", "2027-03-01", "AB1234567", "2030-06-30",
	"DL-998877", "2028-01-15", "VN-445566", "2027-03-01", "EMP-0042",
	"0559876543", "Al Quoz, Dubai", "Sara Khan", "0507654321",
	"2026-01-05", "3500.00", "", "PENDING", "PENDING",
}

// columnAliases maps alternative header spellings, already folded, to the
// folded canonical name.
var columnAliases = map[string]string{
	"first":            "firstname",
	"given":            "firstname",
	"givenname":        "firstname",
	"last":             "lastname",
	"surname":          "lastname",
	"familyname":       "lastname",
	"mobile":           "phone",
	"mobilenumber":     "phone",
	"phonenumber":      "phone",
	"contactnumber":    "phone",
	"emailaddress":     "email",
	"mail":             "email",
	"dob":              "dateofbirth",
	"birthdate":        "dateofbirth",
	"eid":              "emiratesid",
	"emiratesidnumber": "emiratesid",
	"eidexpiry":        "emiratesidexpiry",
	"passport":         "passportnumber",
	"passportno":       "passportnumber",
	"license":          "licensenumber",
	"licence":          "licensenumber",
	"licenseno":        "licensenumber",
	"licencenumber":    "licensenumber",
	"drivinglicense":   "licensenumber",
	"licenceexpiry":    "licenseexpiry",
	"visa":             "visanumber",
	"visano":           "visanumber",
	"employeeno":       "employeeid",
	"employeenumber":   "employeeid",
	"empid":            "employeeid",
	"sim":              "companysim",
	"simnumber":        "companysim",
	"emergencycontact": "emergencycontactname",
	"emergencyphone":   "emergencycontactphone",
	"startdate":        "joindate",
	"joiningdate":      "joindate",
	"status":           "employmentstatus",
	"onboarding":       "onboardingstatus",
}

// foldHeader reduces camelCase, snake_case, Title Case and spaced headers to
// one lower-case alphanumeric form.
func foldHeader(h string) string {
	var b strings.Builder
	for _, r := range strings.TrimPrefix(h, "\ufeff") {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	folded := b.String()
	if canonical, ok := columnAliases[folded]; ok {
		return canonical
	}
	return folded
}

// canonicalColumns maps folded names to the canonical column name.
var canonicalColumns = func() map[string]string {
	m := make(map[string]string, len(templateColumns))
	for _, c := range templateColumns {
		m[foldHeader(c)] = c
	}
	return m
}()

func (s *riderService) BulkTemplate() ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(templateColumns); err != nil {
		return nil, err
	}
	if err := w.Write(templateExample); err != nil {
		return nil, err
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}

// BulkUpload creates one rider per CSV row. Each row runs the same validation,
// duplicate check and creation as single creation; a failed row is reported
// and never aborts the batch. Rows are committed in file order, then their side
// effects run at most BulkSideEffectWorkers riders at a time.
func (s *riderService) BulkUpload(ctx context.Context, creatorID *uuid.UUID, csvData []byte) (*BulkUploadResult, error) {
	r := csv.NewReader(bytes.NewReader(csvData))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, invalid("file", "the CSV file is empty")
	}
	if err != nil {
		return nil, invalid("file", "the CSV header could not be read: "+err.Error())
	}

	columns := make([]string, len(header))
	present := map[string]bool{}
	for i, h := range header {
		if c, ok := canonicalColumns[foldHeader(h)]; ok {
			columns[i] = c
			present[c] = true
		}
	}
	var missing []FieldIssue
	for _, req := range []string{"firstName", "lastName", "phone"} {
		if !present[req] {
			missing = append(missing, FieldIssue{Field: req, Message: "column is missing from the CSV header"})
		}
	}
	if len(missing) > 0 {
		return nil, &ValidationError{Issues: missing}
	}

	type row struct {
		line int
		data map[string]string
	}
	var rows []row
	for line := 2; ; line++ {
		record, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, invalid("file", fmt.Sprintf("row %d could not be parsed: %v", line, err))
		}
		if blankRecord(record) {
			continue
		}
		data := make(map[string]string, len(columns))
		for i, v := range record {
			if i < len(columns) && columns[i] != "" {
				data[columns[i]] = strings.TrimSpace(v)
			}
		}
		rows = append(rows, row{line: line, data: data})
	}
	if len(rows) == 0 {
		return nil, invalid("file", "the CSV file has no data rows")
	}
	if len(rows) > MaxBulkRows {
		return nil, invalid("file", fmt.Sprintf("at most %d rows can be uploaded at once", MaxBulkRows))
	}

	res := &BulkUploadResult{
		Total:   len(rows),
		Created: []BulkCreated{},
		Errors:  []BulkRowError{},
	}
	var pending []*onboarded
	for _, rw := range rows {
		in, convErr := inputFromRow(rw.data)
		var o *onboarded
		if convErr == nil {
			o, convErr = s.persist(ctx, creatorID, in, metrics.SourceBulk)
		}
		if convErr != nil {
			res.Failed++
			res.Errors = append(res.Errors, rowError(rw.line, rw.data, convErr))
			continue
		}
		res.Successful++
		res.Created = append(res.Created, BulkCreated{
			Row:       rw.line,
			RiderID:   o.rider.ID.String(),
			RiderCode: o.rider.RiderCode,
		})
		pending = append(pending, o)
	}

	// every row is committed; side effects of different riders overlap
	var g errgroup.Group
	g.SetLimit(BulkSideEffectWorkers)
	for i, o := range pending {
		g.Go(func() error {
			done := s.finish(ctx, o)
			res.Created[i].EmailSent = done.EmailSent
			res.Created[i].Acknowledgements = done.Acknowledgements
			return nil
		})
	}
	_ = g.Wait()

	if err := s.auditRepo.Record(ctx, creatorID, model.ActionBulkUploadRiders, "", "", map[string]interface{}{
		"total":      res.Total,
		"successful": res.Successful,
		"failed":     res.Failed,
	}); err != nil {
		log.Warn().Err(err).Msg("failed to audit bulk upload")
	}
	log.Info().Int("total", res.Total).Int("successful", res.Successful).Int("failed", res.Failed).Msg("bulk rider upload finished")

	s.events.Publish(ws.EventRidersBulkUploaded, bulkEvent{Successful: res.Successful, Failed: res.Failed})
	return res, nil
}

func blankRecord(record []string) bool {
	for _, v := range record {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

func inputFromRow(d map[string]string) (RiderInput, error) {
	in := RiderInput{
		FirstName:             d["firstName"],
		LastName:              d["lastName"],
		Phone:                 d["phone"],
		Email:                 d["email"],
		Nationality:           d["nationality"],
		DateOfBirth:           d["dateOfBirth"],
		EmiratesID:            d["emiratesId"],
		EmiratesIDExpiry:      d["emiratesIdExpiry"],
		PassportNumber:        d["passportNumber"],
		PassportExpiry:        d["passportExpiry"],
		LicenseNumber:         d["licenseNumber"],
		LicenseExpiry:         d["licenseExpiry"],
		VisaNumber:            d["visaNumber"],
		VisaExpiry:            d["visaExpiry"],
		EmployeeID:            d["employeeId"],
		CompanySim:            d["companySim"],
		Address:               d["address"],
		EmergencyContactName:  d["emergencyContactName"],
		EmergencyContactPhone: d["emergencyContactPhone"],
		JoinDate:              d["joinDate"],
		Notes:                 d["notes"],
		EmploymentStatus:      d["employmentStatus"],
		OnboardingStatus:      d["onboardingStatus"],
	}
	if raw := d["salary"]; raw != "" {
		salary, err := decimal.NewFromString(strings.ReplaceAll(raw, ",", ""))
		if err != nil {
			return in, invalid("salary", "must be a number")
		}
		in.Salary = &salary
	}
	return in, nil
}

func rowError(line int, data map[string]string, err error) BulkRowError {
	e := BulkRowError{Row: line, Data: data}

	var verr *ValidationError
	var cerr *ConflictError
	switch {
	case errors.As(err, &verr):
		e.Error = "validation failed"
		e.Issues = verr.Issues
	case errors.As(err, &cerr):
		e.Error = cerr.Message
		for _, f := range cerr.Fields {
			e.Issues = append(e.Issues, FieldIssue{Field: f, Message: "already exists"})
		}
	default:
		log.Error().Err(err).Int("row", line).Msg("bulk rider row failed")
		e.Error = "internal error while creating the rider"
	}
	return e
}
