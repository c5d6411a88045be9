package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Role is a named permission bundle
type Role struct {
	ID          uuid.UUID    `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string       `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"`
	Description string       `gorm:"type:text" json:"description"`
	IsActive    bool         `gorm:"not null" json:"isActive"`
	Permissions []Permission `gorm:"many2many:role_permissions;" json:"permissions"`
	CreatedAt   time.Time    `json:"createdAt"`
	UpdatedAt   time.Time    `json:"updatedAt"`
}

func (r *Role) BeforeCreate(_ *gorm.DB) error {
	ensureID(&r.ID)
	return nil
}

// PermissionNames lists the names of the loaded permissions.
func (r *Role) PermissionNames() []string {
	names := make([]string, 0, len(r.Permissions))
	for _, p := range r.Permissions {
		names = append(names, p.Name)
	}
	return names
}

// Permission is an atomic capability named "resource.action"
type Permission struct {
	ID          uuid.UUID `gorm:"type:varchar(36);primaryKey" json:"id"`
	Name        string    `gorm:"type:varchar(100);uniqueIndex;not null" json:"name"` // e.g. "riders.write"
	Resource    string    `gorm:"type:varchar(50);not null;index" json:"resource"`
	Action      string    `gorm:"type:varchar(50);not null" json:"action"`
	Description string    `gorm:"type:varchar(255)" json:"description"`
}

func (p *Permission) BeforeCreate(_ *gorm.DB) error {
	ensureID(&p.ID)
	return nil
}

// UserRole is the user_roles join row.
type UserRole struct {
	UserID uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	RoleID uuid.UUID `gorm:"type:varchar(36);primaryKey;index"`
}

// RolePermission is the role_permissions join row.
type RolePermission struct {
	RoleID       uuid.UUID `gorm:"type:varchar(36);primaryKey"`
	PermissionID uuid.UUID `gorm:"type:varchar(36);primaryKey;index"`
}
