package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	AckVisa      = "VISA"
	AckSim       = "SIM"
	AckEquipment = "EQUIPMENT"
	AckTraining  = "TRAINING"
	AckOther     = "OTHER"

	AckPending      = "PENDING"
	AckAcknowledged = "ACKNOWLEDGED"
)

// Acknowledgement is a generated compliance record awaiting the rider's signature
type Acknowledgement struct {
	ID             uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	RiderID        uuid.UUID  `gorm:"type:varchar(36);not null;index" json:"riderId"`
	Type           string     `gorm:"type:varchar(20);not null" json:"type"`
	Status         string     `gorm:"type:varchar(20);not null;index" json:"status"`
	Title          string     `gorm:"type:varchar(255);not null" json:"title"`
	StorageKey     string     `gorm:"type:varchar(500);not null" json:"-"`
	GeneratedByID  uuid.UUID  `gorm:"type:varchar(36);not null" json:"generatedById"`
	AcknowledgedAt *time.Time `json:"acknowledgedAt"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

func (a *Acknowledgement) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}

// ValidAcknowledgementType reports whether t is a known acknowledgement type.
func ValidAcknowledgementType(t string) bool {
	switch t {
	case AckVisa, AckSim, AckEquipment, AckTraining, AckOther:
		return true
	}
	return false
}
