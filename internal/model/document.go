package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	DocumentPassport       = "PASSPORT"
	DocumentEmiratesID     = "EMIRATES_ID"
	DocumentDrivingLicense = "DRIVING_LICENSE"
	DocumentWorkPermit     = "WORK_PERMIT"
	DocumentInsurance      = "INSURANCE"
	DocumentProfilePhoto   = "PROFILE_PHOTO"
	DocumentOther          = "OTHER_DOCUMENT"

	DocumentPending  = "PENDING"
	DocumentVerified = "VERIFIED"
	DocumentRejected = "REJECTED"
)

// RiderDocument references an uploaded file
type RiderDocument struct {
	ID              uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	RiderID         uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"riderId"`
	Type            string     `gorm:"type:varchar(30);not null" json:"type"`
	Status          string     `gorm:"type:varchar(20);not null;index" json:"status"`
	FileName        string     `gorm:"type:varchar(255);not null" json:"fileName"`
	StorageKey      string     `gorm:"type:varchar(500);not null" json:"-"`
	FileSize        int64      `gorm:"not null" json:"fileSize"`
	MimeType        string     `gorm:"type:varchar(100);not null" json:"mimeType"`
	ExpiryDate      *time.Time `gorm:"type:date" json:"expiryDate"`
	RejectionReason *string    `gorm:"type:text" json:"rejectionReason"`
	UploadedByID    *uuid.UUID `gorm:"type:varchar(36)" json:"uploadedById"`
	VerifiedByID    *uuid.UUID `gorm:"type:varchar(36)" json:"verifiedById"`
	VerifiedAt      *time.Time `json:"verifiedAt"`
	CreatedAt       time.Time  `json:"createdAt"`
	UpdatedAt       time.Time  `json:"updatedAt"`
}

func (d *RiderDocument) BeforeCreate(_ *gorm.DB) error {
	ensureID(&d.ID)
	return nil
}

// ValidDocumentType reports whether t is a known document type.
func ValidDocumentType(t string) bool {
	switch t {
	case DocumentPassport, DocumentEmiratesID, DocumentDrivingLicense, DocumentWorkPermit,
		DocumentInsurance, DocumentProfilePhoto, DocumentOther:
		return true
	}
	return false
}
