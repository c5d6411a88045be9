package repository

import (
	"context"
	"strings"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// RiderFilter narrows rider listings
type RiderFilter struct {
	Search           string
	EmploymentStatus string
	OnboardingStatus string
	IncludeInactive  bool
	Offset           int
	Limit            int
}

// RiderIdentity carries the fields that must be unique across riders.
// Nil pointers and an empty phone are not checked.
type RiderIdentity struct {
	Phone          string
	Email          *string
	EmiratesID     *string
	PassportNumber *string
	LicenseNumber  *string
	EmployeeID     *string
}

type RiderRepository interface {
	Create(ctx context.Context, rider *model.Rider) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Rider, error)
	FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Rider, error)
	List(ctx context.Context, filter RiderFilter) ([]model.Rider, int64, error)
	FindDuplicates(ctx context.Context, ident RiderIdentity, excludeID *uuid.UUID) ([]model.Rider, error)
	UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error
	SoftDelete(ctx context.Context, id uuid.UUID) error
}

type riderRepository struct {
	db *gorm.DB
}

func NewRiderRepository(db *gorm.DB) RiderRepository {
	return &riderRepository{db: db}
}

func (r *riderRepository) Create(ctx context.Context, rider *model.Rider) error {
	return GetDB(ctx, r.db).Omit("CreatedBy", "Documents", "Acknowledgements").Create(rider).Error
}

func (r *riderRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Rider, error) {
	var rider model.Rider
	if err := GetDB(ctx, r.db).First(&rider, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &rider, nil
}

func (r *riderRepository) FindByIDWithRelations(ctx context.Context, id uuid.UUID) (*model.Rider, error) {
	var rider model.Rider
	err := GetDB(ctx, r.db).
		Preload("CreatedBy").
		Preload("Documents", func(db *gorm.DB) *gorm.DB { return db.Order("created_at desc") }).
		Preload("Acknowledgements", func(db *gorm.DB) *gorm.DB { return db.Order("created_at desc") }).
		First(&rider, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &rider, nil
}

func (r *riderRepository) List(ctx context.Context, filter RiderFilter) ([]model.Rider, int64, error) {
	var riders []model.Rider
	var total int64

	q := GetDB(ctx, r.db).Model(&model.Rider{})
	if !filter.IncludeInactive {
		q = q.Where("is_active = ?", true)
	}
	if filter.EmploymentStatus != "" {
		q = q.Where("employment_status = ?", filter.EmploymentStatus)
	}
	if filter.OnboardingStatus != "" {
		q = q.Where("onboarding_status = ?", filter.OnboardingStatus)
	}
	if s := strings.TrimSpace(filter.Search); s != "" {
		like := "%" + strings.ToLower(s) + "%"
		q = q.Where(
			"LOWER(first_name) LIKE ? OR LOWER(last_name) LIKE ? OR LOWER(rider_code) LIKE ? OR phone LIKE ? OR LOWER(email) LIKE ?",
			like, like, like, like, like,
		)
	}

	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	if err := q.Order("created_at desc").Offset(filter.Offset).Limit(filter.Limit).Find(&riders).Error; err != nil {
		return nil, 0, err
	}

	return riders, total, nil
}

// FindDuplicates returns riders, active or not, sharing any identity value with ident.
func (r *riderRepository) FindDuplicates(ctx context.Context, ident RiderIdentity, excludeID *uuid.UUID) ([]model.Rider, error) {
	var conds []string
	var args []interface{}

	if ident.Phone != "" {
		conds = append(conds, "phone = ?")
		args = append(args, ident.Phone)
	}
	for _, c := range []struct {
		column string
		value  *string
	}{
		{"email", ident.Email},
		{"emirates_id", ident.EmiratesID},
		{"passport_number", ident.PassportNumber},
		{"license_number", ident.LicenseNumber},
		{"employee_id", ident.EmployeeID},
	} {
		if c.value != nil {
			conds = append(conds, c.column+" = ?")
			args = append(args, *c.value)
		}
	}

	var riders []model.Rider
	if len(conds) == 0 {
		return riders, nil
	}

	q := GetDB(ctx, r.db).Where("("+strings.Join(conds, " OR ")+")", args...)
	if excludeID != nil {
		q = q.Where("id <> ?", *excludeID)
	}

	if err := q.Find(&riders).Error; err != nil {
		return nil, err
	}
	return riders, nil
}

func (r *riderRepository) UpdateFields(ctx context.Context, id uuid.UUID, fields map[string]interface{}) error {
	if len(fields) == 0 {
		return nil
	}
	return GetDB(ctx, r.db).Model(&model.Rider{}).Where("id = ?", id).Updates(fields).Error
}

func (r *riderRepository) SoftDelete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.Rider{}).Where("id = ?", id).Update("is_active", false).Error
}
