package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	EmploymentPending    = "PENDING"
	EmploymentActive     = "ACTIVE"
	EmploymentSuspended  = "SUSPENDED"
	EmploymentTerminated = "TERMINATED"

	OnboardingPending    = "PENDING"
	OnboardingInProgress = "IN_PROGRESS"
	OnboardingCompleted  = "COMPLETED"
	OnboardingRejected   = "REJECTED"
)

// RiderCodePrefix prefixes every generated rider code.
const RiderCodePrefix = "FLCR"

// Rider is an onboarded worker
type Rider struct {
	ID                    uuid.UUID         `gorm:"type:varchar(36);primaryKey" json:"id"`
	RiderCode             string            `gorm:"type:varchar(20);uniqueIndex;not null" json:"riderCode"`
	FirstName             string            `gorm:"type:varchar(100);not null" json:"firstName"`
	LastName              string            `gorm:"type:varchar(100);not null" json:"lastName"`
	Phone                 string            `gorm:"type:varchar(30);uniqueIndex;not null" json:"phone"`
	Email                 *string           `gorm:"type:varchar(255);uniqueIndex" json:"email"`
	Nationality           *string           `gorm:"type:varchar(100)" json:"nationality"`
	DateOfBirth           *time.Time        `gorm:"type:date" json:"dateOfBirth"`
	EmiratesID            *string           `gorm:"type:varchar(50);uniqueIndex" json:"emiratesId"`
	EmiratesIDExpiry      *time.Time        `gorm:"type:date" json:"emiratesIdExpiry"`
	PassportNumber        *string           `gorm:"type:varchar(50);uniqueIndex" json:"passportNumber"`
	PassportExpiry        *time.Time        `gorm:"type:date" json:"passportExpiry"`
	LicenseNumber         *string           `gorm:"type:varchar(50);uniqueIndex" json:"licenseNumber"`
	LicenseExpiry         *time.Time        `gorm:"type:date" json:"licenseExpiry"`
	VisaNumber            *string           `gorm:"type:varchar(50)" json:"visaNumber"`
	VisaExpiry            *time.Time        `gorm:"type:date" json:"visaExpiry"`
	EmployeeID            *string           `gorm:"type:varchar(50);uniqueIndex" json:"employeeId"`
	CompanySim            *string           `gorm:"type:varchar(30)" json:"companySim"`
	Address               *string           `gorm:"type:text" json:"address"`
	EmergencyContactName  *string           `gorm:"type:varchar(200)" json:"emergencyContactName"`
	EmergencyContactPhone *string           `gorm:"type:varchar(30)" json:"emergencyContactPhone"`
	JoinDate              *time.Time        `gorm:"type:date" json:"joinDate"`
	Salary                *decimal.Decimal  `gorm:"type:decimal(12,2)" json:"salary"`
	Notes                 *string           `gorm:"type:text" json:"notes"`
	EmploymentStatus      string            `gorm:"type:varchar(20);not null;index" json:"employmentStatus"`
	OnboardingStatus      string            `gorm:"type:varchar(20);not null;index" json:"onboardingStatus"`
	IsActive              bool              `gorm:"not null;index" json:"isActive"`
	PasswordHash          string            `gorm:"type:varchar(255)" json:"-"`
	CreatedByID           uuid.UUID         `gorm:"type:varchar(36);not null;index" json:"createdById"`
	CreatedBy             *User             `gorm:"foreignKey:CreatedByID" json:"createdBy,omitempty"`
	Documents             []RiderDocument   `gorm:"foreignKey:RiderID" json:"documents,omitempty"`
	Acknowledgements      []Acknowledgement `gorm:"foreignKey:RiderID" json:"acknowledgements,omitempty"`
	CreatedAt             time.Time         `json:"createdAt"`
	UpdatedAt             time.Time         `json:"updatedAt"`
}

func (r *Rider) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// FullName joins first and last name.
func (r *Rider) FullName() string {
	return r.FirstName + " " + r.LastName
}

// RiderCodeSequence is the per-year counter behind rider codes.
type RiderCodeSequence struct {
	Year      int `gorm:"primaryKey;autoIncrement:false"`
	LastValue int `gorm:"not null"`
}

// ValidEmploymentStatus reports whether s is a known employment status.
func ValidEmploymentStatus(s string) bool {
	switch s {
	case EmploymentPending, EmploymentActive, EmploymentSuspended, EmploymentTerminated:
		return true
	}
	return false
}

// ValidOnboardingStatus reports whether s is a known onboarding status.
func ValidOnboardingStatus(s string) bool {
	switch s {
	case OnboardingPending, OnboardingInProgress, OnboardingCompleted, OnboardingRejected:
		return true
	}
	return false
}
