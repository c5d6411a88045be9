package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// User represents a staff or admin account
type User struct {
	ID          uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	Email       string     `gorm:"type:varchar(255);uniqueIndex;not null" json:"email"`
	Phone       *string    `gorm:"type:varchar(20);uniqueIndex" json:"phone"`
	Password    string     `gorm:"type:varchar(255);not null" json:"-"` // bcrypt hash, never serialised
	FirstName   string     `gorm:"type:varchar(100);not null" json:"firstName"`
	LastName    string     `gorm:"type:varchar(100);not null" json:"lastName"`
	IsActive    bool       `gorm:"not null" json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt"`
	Roles       []Role     `gorm:"many2many:user_roles;" json:"roles,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

func (u *User) BeforeCreate(_ *gorm.DB) error {
	ensureID(&u.ID)
	return nil
}

// FullName joins first and last name.
func (u *User) FullName() string {
	if u.LastName == "" {
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// RefreshToken stores long-lived tokens allowing users to request new access tokens
type RefreshToken struct {
	ID        uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID    uuid.UUID `gorm:"type:varchar(36);not null;index" json:"userId"`
	User      User      `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE;" json:"-"`
	Token     string    `gorm:"type:varchar(255);uniqueIndex;not null" json:"token"`
	ExpiresAt time.Time `gorm:"not null" json:"expiresAt"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"createdAt"`
}

func (t *RefreshToken) BeforeCreate(_ *gorm.DB) error {
	ensureID(&t.ID)
	return nil
}
