package repository

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type DocumentRepository interface {
	Create(ctx context.Context, doc *model.RiderDocument) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.RiderDocument, error)
	ListByRider(ctx context.Context, riderID uuid.UUID) ([]model.RiderDocument, error)
	Update(ctx context.Context, doc *model.RiderDocument) error
	Delete(ctx context.Context, id uuid.UUID) error
}

type documentRepository struct {
	db *gorm.DB
}

func NewDocumentRepository(db *gorm.DB) DocumentRepository {
	return &documentRepository{db: db}
}

func (r *documentRepository) Create(ctx context.Context, doc *model.RiderDocument) error {
	return GetDB(ctx, r.db).Create(doc).Error
}

func (r *documentRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.RiderDocument, error) {
	var doc model.RiderDocument
	if err := GetDB(ctx, r.db).First(&doc, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &doc, nil
}

func (r *documentRepository) ListByRider(ctx context.Context, riderID uuid.UUID) ([]model.RiderDocument, error) {
	var docs []model.RiderDocument
	if err := GetDB(ctx, r.db).Where("rider_id = ?", riderID).Order("created_at desc").Find(&docs).Error; err != nil {
		return nil, err
	}
	return docs, nil
}

func (r *documentRepository) Update(ctx context.Context, doc *model.RiderDocument) error {
	return GetDB(ctx, r.db).Save(doc).Error
}

func (r *documentRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.RiderDocument{}).Error
}
