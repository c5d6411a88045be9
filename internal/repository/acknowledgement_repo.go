package repository

import (
	"context"

	"fleetops/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AcknowledgementRepository interface {
	Create(ctx context.Context, ack *model.Acknowledgement) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Acknowledgement, error)
	ListByRider(ctx context.Context, riderID uuid.UUID) ([]model.Acknowledgement, error)
	// MarkAcknowledged flips a PENDING record; it reports false when the record was not pending.
	MarkAcknowledged(ctx context.Context, id uuid.UUID) (bool, error)
	Delete(ctx context.Context, id uuid.UUID) error
}

type acknowledgementRepository struct {
	db *gorm.DB
}

func NewAcknowledgementRepository(db *gorm.DB) AcknowledgementRepository {
	return &acknowledgementRepository{db: db}
}

func (r *acknowledgementRepository) Create(ctx context.Context, ack *model.Acknowledgement) error {
	return GetDB(ctx, r.db).Create(ack).Error
}

func (r *acknowledgementRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Acknowledgement, error) {
	var ack model.Acknowledgement
	if err := GetDB(ctx, r.db).First(&ack, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &ack, nil
}

func (r *acknowledgementRepository) ListByRider(ctx context.Context, riderID uuid.UUID) ([]model.Acknowledgement, error) {
	var acks []model.Acknowledgement
	if err := GetDB(ctx, r.db).Where("rider_id = ?", riderID).Order("created_at desc").Find(&acks).Error; err != nil {
		return nil, err
	}
	return acks, nil
}

func (r *acknowledgementRepository) MarkAcknowledged(ctx context.Context, id uuid.UUID) (bool, error) {
	res := GetDB(ctx, r.db).Model(&model.Acknowledgement{}).
		Where("id = ? AND status = ?", id, model.AckPending).
		Updates(map[string]interface{}{
			"status":          model.AckAcknowledged,
			"acknowledged_at": gorm.Expr("CURRENT_TIMESTAMP"),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *acknowledgementRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return GetDB(ctx, r.db).Where("id = ?", id).Delete(&model.Acknowledgement{}).Error
}
