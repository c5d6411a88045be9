package repository

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type EmailConfigRepository interface {
	Create(ctx context.Context, cfg *model.EmailConfig) error
	Update(ctx context.Context, cfg *model.EmailConfig) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.EmailConfig, error)
	FindByName(ctx context.Context, name string) (*model.EmailConfig, error)
	FindDefault(ctx context.Context) (*model.EmailConfig, error)
	List(ctx context.Context) ([]model.EmailConfig, error)
	ClearDefault(ctx context.Context, exceptID uuid.UUID) error
	CountDefaults(ctx context.Context) (int64, error)
}

type emailConfigRepository struct {
	db *gorm.DB
}

func NewEmailConfigRepository(db *gorm.DB) EmailConfigRepository {
	return &emailConfigRepository{db: db}
}

func (r *emailConfigRepository) Create(ctx context.Context, cfg *model.EmailConfig) error {
	return GetDB(ctx, r.db).Create(cfg).Error
}

func (r *emailConfigRepository) Update(ctx context.Context, cfg *model.EmailConfig) error {
	return GetDB(ctx, r.db).Save(cfg).Error
}

func (r *emailConfigRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.EmailConfig{}).Error
}

func (r *emailConfigRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.EmailConfig, error) {
	var cfg model.EmailConfig
	if err := GetDB(ctx, r.db).First(&cfg, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *emailConfigRepository) FindByName(ctx context.Context, name string) (*model.EmailConfig, error) {
	var cfg model.EmailConfig
	if err := GetDB(ctx, r.db).First(&cfg, "name = ?", name).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FindDefault returns the active default configuration.
func (r *emailConfigRepository) FindDefault(ctx context.Context) (*model.EmailConfig, error) {
	var cfg model.EmailConfig
	if err := GetDB(ctx, r.db).Where("is_default = ? AND is_active = ?", true, true).First(&cfg).Error; err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (r *emailConfigRepository) List(ctx context.Context) ([]model.EmailConfig, error) {
	var cfgs []model.EmailConfig
	if err := GetDB(ctx, r.db).Order("is_default desc, name asc").Find(&cfgs).Error; err != nil {
		return nil, err
	}
	return cfgs, nil
}

// ClearDefault unsets the default flag on every configuration except exceptID.
func (r *emailConfigRepository) ClearDefault(ctx context.Context, exceptID uuid.UUID) error {
	return GetDB(ctx, r.db).Model(&model.EmailConfig{}).
		Where("is_default = ? AND id <> ?", true, exceptID).
		Update("is_default", false).Error
}

func (r *emailConfigRepository) CountDefaults(ctx context.Context) (int64, error) {
	var n int64
	err := GetDB(ctx, r.db).Model(&model.EmailConfig{}).Where("is_default = ?", true).Count(&n).Error
	return n, err
}
