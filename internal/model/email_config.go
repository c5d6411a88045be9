package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// EmailConfig holds SMTP settings managed from the dashboard
type EmailConfig struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name      string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Host      string    `gorm:"type:varchar(255);not null" json:"host"`
	Port      int       `gorm:"not null" json:"port"`
	Username  string    `gorm:"type:varchar(255)" json:"username"`
	Password  string    `gorm:"type:varchar(255)" json:"-"`
	FromEmail string    `gorm:"type:varchar(255);not null" json:"fromEmail"`
	FromName  string    `gorm:"type:varchar(255)" json:"fromName"`
	UseTLS    bool      `gorm:"not null" json:"useTls"`
	IsDefault bool      `gorm:"not null;index" json:"isDefault"`
	IsActive  bool      `gorm:"not null" json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (e *EmailConfig) BeforeCreate(_ *gorm.DB) error {
	ensureID(&e.ID)
	return nil
}
