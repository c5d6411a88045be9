package repository

import (
	"context"
	"fmt"
	"time"

	"fleetops/internal/model"

	"gorm.io/gorm"
)

type StatisticsRepository interface {
	CountRiders(ctx context.Context, activeOnly bool) (int64, error)
	CountRidersCreatedBetween(ctx context.Context, start, end time.Time) (int64, error)
	GroupRidersBy(ctx context.Context, column string) ([]model.StatusCount, error)
	GroupDocumentsByStatus(ctx context.Context) ([]model.StatusCount, error)
	GroupAcknowledgementsByStatus(ctx context.Context) ([]model.StatusCount, error)
}

type statisticsRepository struct {
	db *gorm.DB
}

func NewStatisticsRepository(db *gorm.DB) StatisticsRepository {
	return &statisticsRepository{db: db}
}

func (r *statisticsRepository) CountRiders(ctx context.Context, activeOnly bool) (int64, error) {
	var n int64
	q := GetDB(ctx, r.db).Model(&model.Rider{})
	if activeOnly {
		q = q.Where("is_active = ?", true)
	}
	if err := q.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count riders: %w", err)
	}
	return n, nil
}

func (r *statisticsRepository) CountRidersCreatedBetween(ctx context.Context, start, end time.Time) (int64, error) {
	var n int64
	if err := GetDB(ctx, r.db).Model(&model.Rider{}).
		Where("created_at >= ? AND created_at <= ?", start, end).
		Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count riders in range: %w", err)
	}
	return n, nil
}

// GroupRidersBy counts active riders per value of column (employment_status or onboarding_status).
func (r *statisticsRepository) GroupRidersBy(ctx context.Context, column string) ([]model.StatusCount, error) {
	if column != "employment_status" && column != "onboarding_status" {
		return nil, fmt.Errorf("unsupported rider grouping %q", column)
	}

	var out []model.StatusCount
	if err := GetDB(ctx, r.db).Model(&model.Rider{}).
		Select(column + " as status, COUNT(*) as count").
		Where("is_active = ?", true).
		Group(column).
		Order("status asc").
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to group riders by %s: %w", column, err)
	}
	return out, nil
}

func (r *statisticsRepository) GroupDocumentsByStatus(ctx context.Context) ([]model.StatusCount, error) {
	return r.groupByStatus(ctx, &model.RiderDocument{})
}

func (r *statisticsRepository) GroupAcknowledgementsByStatus(ctx context.Context) ([]model.StatusCount, error) {
	return r.groupByStatus(ctx, &model.Acknowledgement{})
}

func (r *statisticsRepository) groupByStatus(ctx context.Context, table interface{}) ([]model.StatusCount, error) {
	var out []model.StatusCount
	if err := GetDB(ctx, r.db).Model(table).
		Select("status, COUNT(*) as count").
		Group("status").
		Order("status asc").
		Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("failed to group by status: %w", err)
	}
	return out, nil
}
