package repository

import (
	"context"
	"errors"

	"fleetops/internal/model"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// RiderCodeRepository hands out per-year rider code sequence numbers.
type RiderCodeRepository interface {
	// Next increments and returns the counter for year. Callers run it inside
	// the transaction that persists the rider so the row lock is held until commit.
	Next(ctx context.Context, year int) (int, error)
	// Lock takes the same row lock as Next without drawing a value.
	Lock(ctx context.Context, year int) error
}

type riderCodeRepository struct {
	db *gorm.DB
}

func NewRiderCodeRepository(db *gorm.DB) RiderCodeRepository {
	return &riderCodeRepository{db: db}
}

func (r *riderCodeRepository) Next(ctx context.Context, year int) (int, error) {
	db := GetDB(ctx, r.db)

	seq, err := lockYear(db, year)
	if err != nil {
		return 0, err
	}

	seq.LastValue++
	if err := db.Model(&model.RiderCodeSequence{}).
		Where("year = ?", year).
		Update("last_value", seq.LastValue).Error; err != nil {
		return 0, err
	}

	return seq.LastValue, nil
}

func (r *riderCodeRepository) Lock(ctx context.Context, year int) error {
	_, err := lockYear(GetDB(ctx, r.db), year)
	return err
}

func lockYear(db *gorm.DB, year int) (*model.RiderCodeSequence, error) {
	var seq model.RiderCodeSequence
	err := forUpdate(db).Where("year = ?", year).Take(&seq).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		// first code of the year; concurrent creators race on the insert, the loser re-reads
		if err := db.Clauses(clause.OnConflict{DoNothing: true}).
			Create(&model.RiderCodeSequence{Year: year}).Error; err != nil {
			return nil, err
		}
		err = forUpdate(db).Where("year = ?", year).Take(&seq).Error
	}
	if err != nil {
		return nil, err
	}
	return &seq, nil
}
