package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fleetops/internal/mailer"
	"fleetops/internal/metrics"
	"fleetops/internal/model"
	"fleetops/internal/repository"
	ws "fleetops/internal/websocket"
	"fleetops/pkg/randstr"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

// InitialPasswordLength is the length of generated rider credentials.
const InitialPasswordLength = 8

// SystemUserEmail identifies the inactive account that owns riders created without a creator.
const SystemUserEmail = "system@fleetops.local"

// RiderInput is one rider as submitted by the dashboard or read from a CSV row.
type RiderInput struct {
	FirstName             string           `json:"firstName" validate:"required,max=100"`
	LastName              string           `json:"lastName" validate:"required,max=100"`
	Phone                 string           `json:"phone" validate:"required,min=10,max=30"`
	Email                 string           `json:"email" validate:"omitempty,email,max=255"`
	Nationality           string           `json:"nationality" validate:"max=100"`
	DateOfBirth           string           `json:"dateOfBirth" validate:"isodate"`
	EmiratesID            string           `json:"emiratesId" validate:"max=50"`
	EmiratesIDExpiry      string           `json:"emiratesIdExpiry" validate:"isodate"`
	PassportNumber        string           `json:"passportNumber" validate:"max=50"`
	PassportExpiry        string           `json:"passportExpiry" validate:"isodate"`
	LicenseNumber         string           `json:"licenseNumber" validate:"max=50"`
	LicenseExpiry         string           `json:"licenseExpiry" validate:"isodate"`
	VisaNumber            string           `json:"visaNumber" validate:"max=50"`
	VisaExpiry            string           `json:"visaExpiry" validate:"isodate"`
	EmployeeID            string           `json:"employeeId" validate:"max=50"`
	CompanySim            string           `json:"companySim" validate:"max=30"`
	Address               string           `json:"address" validate:"max=1000"`
	EmergencyContactName  string           `json:"emergencyContactName" validate:"max=200"`
	EmergencyContactPhone string           `json:"emergencyContactPhone" validate:"max=30"`
	JoinDate              string           `json:"joinDate" validate:"isodate"`
	Salary                *decimal.Decimal `json:"salary"`
	Notes                 string           `json:"notes" validate:"max=5000"`
	EmploymentStatus      string           `json:"employmentStatus" validate:"omitempty,oneof=PENDING ACTIVE SUSPENDED TERMINATED"`
	OnboardingStatus      string           `json:"onboardingStatus" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED REJECTED"`
}

// UpdateRiderRequest is a partial update; nil fields are left untouched and
// blank optional values clear the field.
type UpdateRiderRequest struct {
	FirstName             *string          `json:"firstName" validate:"omitempty,max=100"`
	LastName              *string          `json:"lastName" validate:"omitempty,max=100"`
	Phone                 *string          `json:"phone" validate:"omitempty,max=30"`
	Email                 *string          `json:"email" validate:"omitempty,max=255"`
	Nationality           *string          `json:"nationality" validate:"omitempty,max=100"`
	DateOfBirth           *string          `json:"dateOfBirth" validate:"omitempty,isodate"`
	EmiratesID            *string          `json:"emiratesId" validate:"omitempty,max=50"`
	EmiratesIDExpiry      *string          `json:"emiratesIdExpiry" validate:"omitempty,isodate"`
	PassportNumber        *string          `json:"passportNumber" validate:"omitempty,max=50"`
	PassportExpiry        *string          `json:"passportExpiry" validate:"omitempty,isodate"`
	LicenseNumber         *string          `json:"licenseNumber" validate:"omitempty,max=50"`
	LicenseExpiry         *string          `json:"licenseExpiry" validate:"omitempty,isodate"`
	VisaNumber            *string          `json:"visaNumber" validate:"omitempty,max=50"`
	VisaExpiry            *string          `json:"visaExpiry" validate:"omitempty,isodate"`
	EmployeeID            *string          `json:"employeeId" validate:"omitempty,max=50"`
	CompanySim            *string          `json:"companySim" validate:"omitempty,max=30"`
	Address               *string          `json:"address" validate:"omitempty,max=1000"`
	EmergencyContactName  *string          `json:"emergencyContactName" validate:"omitempty,max=200"`
	EmergencyContactPhone *string          `json:"emergencyContactPhone" validate:"omitempty,max=30"`
	JoinDate              *string          `json:"joinDate" validate:"omitempty,isodate"`
	Salary                *decimal.Decimal `json:"salary"`
	Notes                 *string          `json:"notes" validate:"omitempty,max=5000"`
	EmploymentStatus      *string          `json:"employmentStatus" validate:"omitempty,oneof=PENDING ACTIVE SUSPENDED TERMINATED"`
	OnboardingStatus      *string          `json:"onboardingStatus" validate:"omitempty,oneof=PENDING IN_PROGRESS COMPLETED REJECTED"`
}

type RiderResponse struct {
	ID                    string           `json:"id"`
	RiderCode             string           `json:"riderCode"`
	FirstName             string           `json:"firstName"`
	LastName              string           `json:"lastName"`
	Phone                 string           `json:"phone"`
	Email                 *string          `json:"email"`
	Nationality           *string          `json:"nationality"`
	DateOfBirth           *string          `json:"dateOfBirth"`
	EmiratesID            *string          `json:"emiratesId"`
	EmiratesIDExpiry      *string          `json:"emiratesIdExpiry"`
	PassportNumber        *string          `json:"passportNumber"`
	PassportExpiry        *string          `json:"passportExpiry"`
	LicenseNumber         *string          `json:"licenseNumber"`
	LicenseExpiry         *string          `json:"licenseExpiry"`
	VisaNumber            *string          `json:"visaNumber"`
	VisaExpiry            *string          `json:"visaExpiry"`
	EmployeeID            *string          `json:"employeeId"`
	CompanySim            *string          `json:"companySim"`
	Address               *string          `json:"address"`
	EmergencyContactName  *string          `json:"emergencyContactName"`
	EmergencyContactPhone *string          `json:"emergencyContactPhone"`
	JoinDate              *string          `json:"joinDate"`
	Salary                *decimal.Decimal `json:"salary"`
	Notes                 *string          `json:"notes"`
	EmploymentStatus      string           `json:"employmentStatus"`
	OnboardingStatus      string           `json:"onboardingStatus"`
	IsActive              bool             `json:"isActive"`
	CreatedByID           string           `json:"createdById"`
	CreatedAt             string           `json:"createdAt"`
	UpdatedAt             string           `json:"updatedAt"`
}

type RiderDetailResponse struct {
	RiderResponse
	CreatedBy        *RoleSummary              `json:"createdBy,omitempty"`
	Documents        []DocumentResponse        `json:"documents"`
	Acknowledgements []AcknowledgementResponse `json:"acknowledgements"`
}

// AcknowledgementOutcome reports which acknowledgements were actually generated.
type AcknowledgementOutcome struct {
	Visa bool `json:"visa"`
	Sim  bool `json:"sim"`
}

type CreateRiderResponse struct {
	Rider            RiderResponse          `json:"rider"`
	EmailSent        bool                   `json:"emailSent"`
	Acknowledgements AcknowledgementOutcome `json:"acknowledgements"`
}

type ListRidersQuery struct {
	Search           string
	EmploymentStatus string
	OnboardingStatus string
	IncludeInactive  bool
	Offset           int
	Limit            int
}

type RiderService interface {
	CreateRider(ctx context.Context, creatorID *uuid.UUID, in RiderInput) (*CreateRiderResponse, error)
	BulkUpload(ctx context.Context, creatorID *uuid.UUID, csvData []byte) (*BulkUploadResult, error)
	BulkTemplate() ([]byte, error)
	GetRider(ctx context.Context, id string) (*RiderDetailResponse, error)
	ListRiders(ctx context.Context, q ListRidersQuery) ([]RiderResponse, int64, error)
	UpdateRider(ctx context.Context, actorID *uuid.UUID, id string, req UpdateRiderRequest) (*RiderResponse, error)
	DeleteRider(ctx context.Context, actorID *uuid.UUID, id string) error
	GenerateRiderCode(ctx context.Context) (string, error)
}

type riderService struct {
	riderRepo repository.RiderRepository
	codeRepo  repository.RiderCodeRepository
	userRepo  repository.UserRepository
	auditRepo repository.AuditRepository
	txManager repository.TransactionManager
	acks      AcknowledgementService
	mail      mailer.Mailer
	metrics   *metrics.Metrics
	events    Publisher
	now       func() time.Time
}

type RiderDeps struct {
	Riders          repository.RiderRepository
	Codes           repository.RiderCodeRepository
	Users           repository.UserRepository
	Audit           repository.AuditRepository
	Tx              repository.TransactionManager
	Acknowledgement AcknowledgementService
	Mailer          mailer.Mailer
	Metrics         *metrics.Metrics
	Publisher       Publisher
	Now             func() time.Time
}

func NewRiderService(d RiderDeps) RiderService {
	if d.Metrics == nil {
		d.Metrics = metrics.NewNop()
	}
	if d.Now == nil {
		d.Now = time.Now
	}
	return &riderService{
		riderRepo: d.Riders,
		codeRepo:  d.Codes,
		userRepo:  d.Users,
		auditRepo: d.Audit,
		txManager: d.Tx,
		acks:      d.Acknowledgement,
		mail:      d.Mailer,
		metrics:   d.Metrics,
		events:    publisherOrNop(d.Publisher),
		now:       d.Now,
	}
}

// GenerateInitialPassword returns a one-time rider credential.
func GenerateInitialPassword(length int) string {
	return randstr.Password(length)
}

// GenerateRiderCode draws the next FLCR{YY}{NNNN} code. The counter row stays
// locked until the surrounding transaction ends, so call it inside the
// transaction that persists the rider.
func (s *riderService) GenerateRiderCode(ctx context.Context) (string, error) {
	year := s.now().Year()
	n, err := s.codeRepo.Next(ctx, year)
	if err != nil {
		return "", fmt.Errorf("failed to allocate rider code: %w", err)
	}
	return fmt.Sprintf("%s%02d%04d", model.RiderCodePrefix, year%100, n), nil
}

func (s *riderService) CreateRider(ctx context.Context, creatorID *uuid.UUID, in RiderInput) (*CreateRiderResponse, error) {
	return s.create(ctx, creatorID, in, metrics.SourceSingle)
}

func (s *riderService) create(ctx context.Context, creatorID *uuid.UUID, in RiderInput, source string) (*CreateRiderResponse, error) {
	o, err := s.persist(ctx, creatorID, in, source)
	if err != nil {
		return nil, err
	}
	return s.finish(ctx, o), nil
}

// onboarded is a committed rider whose side effects have not run yet.
type onboarded struct {
	rider       *model.Rider
	password    string
	generatedBy uuid.UUID
}

// persist validates in and commits the rider with its code and audit entry.
func (s *riderService) persist(ctx context.Context, creatorID *uuid.UUID, in RiderInput, source string) (*onboarded, error) {
	rider, err := buildRider(in)
	if err != nil {
		return nil, err
	}

	password := GenerateInitialPassword(InitialPasswordLength)
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	rider.PasswordHash = string(hashed)

	var creator *model.User
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		// the code row lock also serialises the duplicate check with the insert
		code, err := s.GenerateRiderCode(txCtx)
		if err != nil {
			return err
		}
		rider.RiderCode = code

		if err := s.checkDuplicates(txCtx, identityOf(rider), nil); err != nil {
			return err
		}

		creator, err = s.resolveCreator(txCtx, creatorID)
		if err != nil {
			return err
		}
		rider.CreatedByID = creator.ID

		if err := s.riderRepo.Create(txCtx, rider); err != nil {
			if repository.IsDuplicate(err) {
				return errDuplicateRider(nil)
			}
			return fmt.Errorf("failed to create rider: %w", err)
		}
		return s.auditRepo.Record(txCtx, creatorID, model.ActionCreateRider, rider.ID.String(), rider.RiderCode, map[string]interface{}{
			"source": source,
			"name":   rider.FullName(),
		})
	})
	if err != nil {
		return nil, err
	}

	s.metrics.RiderCreated(source)
	log.Info().Str("rider_code", rider.RiderCode).Str("source", source).Msg("rider created")

	return &onboarded{rider: rider, password: password, generatedBy: creator.ID}, nil
}

// finish runs the side effects of a committed rider and announces it.
func (s *riderService) finish(ctx context.Context, o *onboarded) *CreateRiderResponse {
	// side effects must not depend on the caller staying connected
	res := &CreateRiderResponse{Rider: toRiderResponse(o.rider)}
	res.EmailSent, res.Acknowledgements = s.runSideEffects(context.WithoutCancel(ctx), o.rider, o.password, o.generatedBy)

	s.events.Publish(ws.EventRiderCreated, riderEvent{
		RiderID:          o.rider.ID.String(),
		RiderCode:        o.rider.RiderCode,
		OnboardingStatus: o.rider.OnboardingStatus,
	})
	return res
}

// runSideEffects sends credentials and generates acknowledgements concurrently.
// Failures are logged and counted; the booleans report what actually happened.
func (s *riderService) runSideEffects(ctx context.Context, rider *model.Rider, password string, generatedBy uuid.UUID) (emailSent bool, acks AcknowledgementOutcome) {
	var wg sync.WaitGroup
	run := func(effect string, ok *bool, fn func() error) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := fn()
			*ok = err == nil
			s.metrics.SideEffect(effect, *ok)
			if err != nil {
				log.Error().Err(err).
					Str("rider_code", rider.RiderCode).
					Str("effect", effect).
					Msg("onboarding side effect failed")
			}
		}()
	}

	if rider.Email != nil {
		run(metrics.EffectEmail, &emailSent, func() error {
			subject, html, err := mailer.CredentialsEmail(rider.FullName(), rider.RiderCode, password)
			if err != nil {
				return err
			}
			return s.mail.Send(ctx, *rider.Email, subject, html)
		})
	}

	run(metrics.EffectVisa, &acks.Visa, func() error {
		_, err := s.acks.GenerateForRider(ctx, rider, model.AckVisa, "", "", generatedBy)
		return err
	})

	if rider.CompanySim != nil {
		run(metrics.EffectSim, &acks.Sim, func() error {
			_, err := s.acks.GenerateForRider(ctx, rider, model.AckSim, "", "", generatedBy)
			return err
		})
	}

	wg.Wait()
	return emailSent, acks
}

// resolveCreator returns the acting user, or the inactive system account when
// there is none.
func (s *riderService) resolveCreator(ctx context.Context, creatorID *uuid.UUID) (*model.User, error) {
	if creatorID != nil {
		u, err := s.userRepo.GetByID(ctx, *creatorID)
		if err == nil {
			return u, nil
		}
		if !repository.IsNotFound(err) {
			return nil, fmt.Errorf("failed to load creator: %w", err)
		}
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(randstr.Password(32)), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}
	system := &model.User{
		Email:     SystemUserEmail,
		Password:  string(hashed),
		FirstName: "System",
		IsActive:  false,
	}
	if err := s.userRepo.FirstOrCreateByEmail(ctx, system); err != nil {
		return nil, fmt.Errorf("failed to resolve system user: %w", err)
	}
	return system, nil
}

// checkDuplicates fails with a conflict naming the colliding fields when any
// rider, active or not, shares an identity value.
func (s *riderService) checkDuplicates(ctx context.Context, ident repository.RiderIdentity, exclude *uuid.UUID) error {
	dups, err := s.riderRepo.FindDuplicates(ctx, ident, exclude)
	if err != nil {
		return fmt.Errorf("failed to check duplicates: %w", err)
	}
	if len(dups) == 0 {
		return nil
	}
	return errDuplicateRider(collidingFields(ident, dups))
}

func errDuplicateRider(fields []string) error {
	return &ConflictError{
		Message: "a rider with the same phone, email, emiratesId, passportNumber, licenseNumber or employeeId already exists",
		Fields:  fields,
	}
}

func collidingFields(ident repository.RiderIdentity, dups []model.Rider) []string {
	set := map[string]bool{}
	same := func(a, b *string) bool { return a != nil && b != nil && *a == *b }
	for _, d := range dups {
		if ident.Phone != "" && d.Phone == ident.Phone {
			set["phone"] = true
		}
		if same(ident.Email, d.Email) {
			set["email"] = true
		}
		if same(ident.EmiratesID, d.EmiratesID) {
			set["emiratesId"] = true
		}
		if same(ident.PassportNumber, d.PassportNumber) {
			set["passportNumber"] = true
		}
		if same(ident.LicenseNumber, d.LicenseNumber) {
			set["licenseNumber"] = true
		}
		if same(ident.EmployeeID, d.EmployeeID) {
			set["employeeId"] = true
		}
	}
	out := make([]string, 0, len(set))
	for f := range set {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func identityOf(r *model.Rider) repository.RiderIdentity {
	return repository.RiderIdentity{
		Phone:          r.Phone,
		Email:          r.Email,
		EmiratesID:     r.EmiratesID,
		PassportNumber: r.PassportNumber,
		LicenseNumber:  r.LicenseNumber,
		EmployeeID:     r.EmployeeID,
	}
}

func (s *riderService) GetRider(ctx context.Context, id string) (*RiderDetailResponse, error) {
	riderID, err := parseID("rider", id)
	if err != nil {
		return nil, err
	}
	rider, err := s.riderRepo.FindByIDWithRelations(ctx, riderID)
	if err != nil {
		return nil, lookupErr("rider", err)
	}

	res := &RiderDetailResponse{
		RiderResponse:    toRiderResponse(rider),
		Documents:        make([]DocumentResponse, 0, len(rider.Documents)),
		Acknowledgements: make([]AcknowledgementResponse, 0, len(rider.Acknowledgements)),
	}
	if rider.CreatedBy != nil {
		res.CreatedBy = &RoleSummary{ID: rider.CreatedBy.ID.String(), Name: rider.CreatedBy.FullName()}
	}
	for _, d := range rider.Documents {
		res.Documents = append(res.Documents, toDocumentResponse(d))
	}
	for _, a := range rider.Acknowledgements {
		res.Acknowledgements = append(res.Acknowledgements, toAcknowledgementResponse(a))
	}
	return res, nil
}

func (s *riderService) ListRiders(ctx context.Context, q ListRidersQuery) ([]RiderResponse, int64, error) {
	q.EmploymentStatus = strings.ToUpper(strings.TrimSpace(q.EmploymentStatus))
	q.OnboardingStatus = strings.ToUpper(strings.TrimSpace(q.OnboardingStatus))
	if q.EmploymentStatus != "" && !model.ValidEmploymentStatus(q.EmploymentStatus) {
		return nil, 0, invalid("employmentStatus", "must be one of: PENDING, ACTIVE, SUSPENDED, TERMINATED")
	}
	if q.OnboardingStatus != "" && !model.ValidOnboardingStatus(q.OnboardingStatus) {
		return nil, 0, invalid("onboardingStatus", "must be one of: PENDING, IN_PROGRESS, COMPLETED, REJECTED")
	}

	riders, total, err := s.riderRepo.List(ctx, repository.RiderFilter{
		Search:           q.Search,
		EmploymentStatus: q.EmploymentStatus,
		OnboardingStatus: q.OnboardingStatus,
		IncludeInactive:  q.IncludeInactive,
		Offset:           q.Offset,
		Limit:            q.Limit,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch riders: %w", err)
	}

	res := make([]RiderResponse, 0, len(riders))
	for i := range riders {
		res = append(res, toRiderResponse(&riders[i]))
	}
	return res, total, nil
}

func (s *riderService) UpdateRider(ctx context.Context, actorID *uuid.UUID, id string, req UpdateRiderRequest) (*RiderResponse, error) {
	riderID, err := parseID("rider", id)
	if err != nil {
		return nil, err
	}
	req.EmploymentStatus = upperTrimmed(req.EmploymentStatus)
	req.OnboardingStatus = upperTrimmed(req.OnboardingStatus)
	if err := validateStruct(req); err != nil {
		return nil, err
	}
	fields, err := updateFields(req)
	if err != nil {
		return nil, err
	}

	var rider *model.Rider
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		current, err := s.riderRepo.FindByID(txCtx, riderID)
		if err != nil {
			return lookupErr("rider", err)
		}

		if ident, changed := changedIdentity(current, fields); changed {
			if err := s.codeRepo.Lock(txCtx, s.now().Year()); err != nil {
				return fmt.Errorf("failed to lock rider identities: %w", err)
			}
			if err := s.checkDuplicates(txCtx, ident, &current.ID); err != nil {
				return err
			}
		}

		if err := s.riderRepo.UpdateFields(txCtx, riderID, fields); err != nil {
			if repository.IsDuplicate(err) {
				return errDuplicateRider(nil)
			}
			return fmt.Errorf("failed to update rider: %w", err)
		}
		rider, err = s.riderRepo.FindByID(txCtx, riderID)
		if err != nil {
			return lookupErr("rider", err)
		}

		names := make([]string, 0, len(fields))
		for col := range fields {
			names = append(names, col)
		}
		sort.Strings(names)
		return s.auditRepo.Record(txCtx, actorID, model.ActionUpdateRider, rider.ID.String(), rider.RiderCode, map[string]interface{}{
			"fields": names,
		})
	})
	if err != nil {
		return nil, err
	}

	s.events.Publish(ws.EventRiderUpdated, riderEvent{
		RiderID:          rider.ID.String(),
		RiderCode:        rider.RiderCode,
		OnboardingStatus: rider.OnboardingStatus,
	})
	res := toRiderResponse(rider)
	return &res, nil
}

// changedIdentity merges pending updates into the rider's identity and reports
// whether any identity value differs from the stored one.
func changedIdentity(r *model.Rider, fields map[string]interface{}) (repository.RiderIdentity, bool) {
	ident := identityOf(r)
	changed := false

	if v, ok := fields["phone"]; ok && v.(string) != r.Phone {
		ident.Phone = v.(string)
		changed = true
	}
	for col, target := range map[string]**string{
		"email":           &ident.Email,
		"emirates_id":     &ident.EmiratesID,
		"passport_number": &ident.PassportNumber,
		"license_number":  &ident.LicenseNumber,
		"employee_id":     &ident.EmployeeID,
	} {
		v, ok := fields[col]
		if !ok {
			continue
		}
		next, _ := v.(*string)
		if deref(next) != deref(*target) || (next == nil) != (*target == nil) {
			changed = true
		}
		*target = next
	}
	return ident, changed
}

// DeleteRider deactivates the rider; rows are never removed.
func (s *riderService) DeleteRider(ctx context.Context, actorID *uuid.UUID, id string) error {
	riderID, err := parseID("rider", id)
	if err != nil {
		return err
	}

	var rider *model.Rider
	err = s.txManager.RunInTx(ctx, func(txCtx context.Context) error {
		rider, err = s.riderRepo.FindByID(txCtx, riderID)
		if err != nil {
			return lookupErr("rider", err)
		}
		if err := s.riderRepo.SoftDelete(txCtx, riderID); err != nil {
			return fmt.Errorf("failed to delete rider: %w", err)
		}
		return s.auditRepo.Record(txCtx, actorID, model.ActionDeleteRider, rider.ID.String(), rider.RiderCode, nil)
	})
	if err != nil {
		return err
	}

	s.events.Publish(ws.EventRiderDeleted, riderEvent{RiderID: rider.ID.String(), RiderCode: rider.RiderCode})
	return nil
}

// --- Normalisation ---

// buildRider validates in and converts it to an unsaved rider. Optional
// strings are trimmed and blank values become NULL.
func buildRider(in RiderInput) (*model.Rider, error) {
	in.FirstName = strings.TrimSpace(in.FirstName)
	in.LastName = strings.TrimSpace(in.LastName)
	in.Phone = strings.TrimSpace(in.Phone)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.EmploymentStatus = strings.ToUpper(strings.TrimSpace(in.EmploymentStatus))
	in.OnboardingStatus = strings.ToUpper(strings.TrimSpace(in.OnboardingStatus))

	if err := validateStruct(in); err != nil {
		return nil, err
	}
	if in.Salary != nil && in.Salary.IsNegative() {
		return nil, invalid("salary", "must be greater than or equal to 0")
	}

	r := &model.Rider{
		FirstName:             in.FirstName,
		LastName:              in.LastName,
		Phone:                 in.Phone,
		Email:                 optional(in.Email),
		Nationality:           optional(in.Nationality),
		DateOfBirth:           optionalDate(in.DateOfBirth),
		EmiratesID:            optional(in.EmiratesID),
		EmiratesIDExpiry:      optionalDate(in.EmiratesIDExpiry),
		PassportNumber:        optional(in.PassportNumber),
		PassportExpiry:        optionalDate(in.PassportExpiry),
		LicenseNumber:         optional(in.LicenseNumber),
		LicenseExpiry:         optionalDate(in.LicenseExpiry),
		VisaNumber:            optional(in.VisaNumber),
		VisaExpiry:            optionalDate(in.VisaExpiry),
		EmployeeID:            optional(in.EmployeeID),
		CompanySim:            optional(in.CompanySim),
		Address:               optional(in.Address),
		EmergencyContactName:  optional(in.EmergencyContactName),
		EmergencyContactPhone: optional(in.EmergencyContactPhone),
		JoinDate:              optionalDate(in.JoinDate),
		Salary:                in.Salary,
		Notes:                 optional(in.Notes),
		EmploymentStatus:      in.EmploymentStatus,
		OnboardingStatus:      in.OnboardingStatus,
		IsActive:              true,
	}
	if r.EmploymentStatus == "" {
		r.EmploymentStatus = model.EmploymentPending
	}
	if r.OnboardingStatus == "" {
		r.OnboardingStatus = model.OnboardingPending
	}
	return r, nil
}

func upperTrimmed(v *string) *string {
	if v == nil {
		return nil
	}
	u := strings.ToUpper(strings.TrimSpace(*v))
	return &u
}

// optionalDate parses a date already checked by the isodate validation.
func optionalDate(s string) *time.Time {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	t, err := parseDate(s)
	if err != nil {
		return nil
	}
	return &t
}

// updateFields maps provided request fields to column updates.
func updateFields(req UpdateRiderRequest) (map[string]interface{}, error) {
	fields := map[string]interface{}{}
	var issues []FieldIssue

	required := func(col, field string, v *string, minLen int) {
		if v == nil {
			return
		}
		s := strings.TrimSpace(*v)
		switch {
		case s == "":
			issues = append(issues, FieldIssue{Field: field, Message: "is required"})
		case len(s) < minLen:
			issues = append(issues, FieldIssue{Field: field, Message: fmt.Sprintf("must be at least %d characters", minLen)})
		default:
			fields[col] = s
		}
	}
	required("first_name", "firstName", req.FirstName, 1)
	required("last_name", "lastName", req.LastName, 1)
	required("phone", "phone", req.Phone, 10)

	if req.Email != nil {
		email := strings.ToLower(strings.TrimSpace(*req.Email))
		if email != "" {
			if err := validate.Var(email, "email"); err != nil {
				issues = append(issues, FieldIssue{Field: "email", Message: "must be a valid email address"})
			}
		}
		fields["email"] = optional(email)
	}

	for col, v := range map[string]*string{
		"nationality":             req.Nationality,
		"emirates_id":             req.EmiratesID,
		"passport_number":         req.PassportNumber,
		"license_number":          req.LicenseNumber,
		"visa_number":             req.VisaNumber,
		"employee_id":             req.EmployeeID,
		"company_sim":             req.CompanySim,
		"address":                 req.Address,
		"emergency_contact_name":  req.EmergencyContactName,
		"emergency_contact_phone": req.EmergencyContactPhone,
		"notes":                   req.Notes,
	} {
		if v != nil {
			fields[col] = optional(*v)
		}
	}

	for col, v := range map[string]*string{
		"date_of_birth":      req.DateOfBirth,
		"emirates_id_expiry": req.EmiratesIDExpiry,
		"passport_expiry":    req.PassportExpiry,
		"license_expiry":     req.LicenseExpiry,
		"visa_expiry":        req.VisaExpiry,
		"join_date":          req.JoinDate,
	} {
		if v != nil {
			fields[col] = optionalDate(*v)
		}
	}

	if req.Salary != nil {
		if req.Salary.IsNegative() {
			issues = append(issues, FieldIssue{Field: "salary", Message: "must be greater than or equal to 0"})
		}
		fields["salary"] = req.Salary
	}
	// a blank status leaves the stored one in place
	if req.EmploymentStatus != nil && *req.EmploymentStatus != "" {
		fields["employment_status"] = *req.EmploymentStatus
	}
	if req.OnboardingStatus != nil && *req.OnboardingStatus != "" {
		fields["onboarding_status"] = *req.OnboardingStatus
	}

	if len(issues) > 0 {
		sort.Slice(issues, func(i, j int) bool { return issues[i].Field < issues[j].Field })
		return nil, &ValidationError{Issues: issues}
	}
	return fields, nil
}

func toRiderResponse(r *model.Rider) RiderResponse {
	return RiderResponse{
		ID:                    r.ID.String(),
		RiderCode:             r.RiderCode,
		FirstName:             r.FirstName,
		LastName:              r.LastName,
		Phone:                 r.Phone,
		Email:                 r.Email,
		Nationality:           r.Nationality,
		DateOfBirth:           formatDatePtr(r.DateOfBirth),
		EmiratesID:            r.EmiratesID,
		EmiratesIDExpiry:      formatDatePtr(r.EmiratesIDExpiry),
		PassportNumber:        r.PassportNumber,
		PassportExpiry:        formatDatePtr(r.PassportExpiry),
		LicenseNumber:         r.LicenseNumber,
		LicenseExpiry:         formatDatePtr(r.LicenseExpiry),
		VisaNumber:            r.VisaNumber,
		VisaExpiry:            formatDatePtr(r.VisaExpiry),
		EmployeeID:            r.EmployeeID,
		CompanySim:            r.CompanySim,
		Address:               r.Address,
		EmergencyContactName:  r.EmergencyContactName,
		EmergencyContactPhone: r.EmergencyContactPhone,
		JoinDate:              formatDatePtr(r.JoinDate),
		Salary:                r.Salary,
		Notes:                 r.Notes,
		EmploymentStatus:      r.EmploymentStatus,
		OnboardingStatus:      r.OnboardingStatus,
		IsActive:              r.IsActive,
		CreatedByID:           r.CreatedByID.String(),
		CreatedAt:             r.CreatedAt.Format(timeLayout),
		UpdatedAt:             r.UpdatedAt.Format(timeLayout),
	}
}
