package model

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	ActionCreateRole         = "CREATE_ROLE"
	ActionUpdateRole         = "UPDATE_ROLE"
	ActionDeleteRole         = "DELETE_ROLE"
	ActionSetRolePermissions = "SET_ROLE_PERMISSIONS"
	ActionInitializePresets  = "INITIALIZE_PRESETS"
	ActionSetUserRoles       = "SET_USER_ROLES"
	ActionCreateUser         = "CREATE_USER"
	ActionUpdateUser         = "UPDATE_USER"
	ActionDeleteUser         = "DELETE_USER"
	ActionRegisterUser       = "REGISTER_USER"

	ActionCreateRider      = "CREATE_RIDER"
	ActionBulkUploadRiders = "BULK_UPLOAD_RIDERS"
	ActionUpdateRider      = "UPDATE_RIDER"
	ActionDeleteRider      = "DELETE_RIDER"

	ActionUploadDocument          = "UPLOAD_DOCUMENT"
	ActionVerifyDocument          = "VERIFY_DOCUMENT"
	ActionRejectDocument          = "REJECT_DOCUMENT"
	ActionDeleteDocument          = "DELETE_DOCUMENT"
	ActionGenerateAcknowledgement = "GENERATE_ACKNOWLEDGEMENT"
	ActionAcknowledge             = "ACKNOWLEDGE"
	ActionDeleteAcknowledgement   = "DELETE_ACKNOWLEDGEMENT"
	ActionCreateEmailConfig       = "CREATE_EMAIL_CONFIG"
	ActionUpdateEmailConfig       = "UPDATE_EMAIL_CONFIG"
	ActionDeleteEmailConfig       = "DELETE_EMAIL_CONFIG"
	ActionSetDefaultEmailConfig   = "SET_DEFAULT_EMAIL_CONFIG"
)

// AuditLog tracks Who, What, and When for critical system changes
type AuditLog struct {
	ID         uuid.UUID  `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID     *uuid.UUID `gorm:"type:varchar(36);index" json:"userId"` // nil for automated actions
	User       *User      `gorm:"foreignKey:UserID" json:"user,omitempty"`
	Action     string     `gorm:"type:varchar(50);not null;index" json:"action"`
	EntityID   string     `gorm:"type:varchar(50);index" json:"entityId"`
	EntityName string     `gorm:"type:varchar(255)" json:"entityName,omitempty"`
	Details    string     `gorm:"type:text" json:"details"` // serialized JSON payload
	CreatedAt  time.Time  `gorm:"index" json:"createdAt"`
}

func (a *AuditLog) BeforeCreate(_ *gorm.DB) error {
	ensureID(&a.ID)
	return nil
}
