package repository

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fleetops/internal/database/dbtest"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()

	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	return db, mock
}

func TestRiderCodeNextLocksExistingRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiderCodeRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "rider_code_sequences" WHERE year = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"year", "last_value"}).AddRow(2026, 41))
	mock.ExpectExec(`UPDATE "rider_code_sequences" SET "last_value"=\$1 WHERE year = \$2`).
		WithArgs(42, 2026).
		WillReturnResult(sqlmock.NewResult(0, 1))

	next, err := repo.Next(context.Background(), 2026)
	require.NoError(t, err)
	assert.Equal(t, 42, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiderCodeNextCreatesYearRow(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiderCodeRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "rider_code_sequences" WHERE year = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"year", "last_value"}))
	mock.ExpectExec(`INSERT INTO "rider_code_sequences" .* ON CONFLICT DO NOTHING`).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "rider_code_sequences" WHERE year = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"year", "last_value"}).AddRow(2027, 0))
	mock.ExpectExec(`UPDATE "rider_code_sequences" SET "last_value"=\$1 WHERE year = \$2`).
		WithArgs(1, 2027).
		WillReturnResult(sqlmock.NewResult(0, 1))

	next, err := repo.Next(context.Background(), 2027)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestRiderCodeNextSequential(t *testing.T) {
	db := dbtest.New(t)
	repo := NewRiderCodeRepository(db)
	tx := NewTransactionManager(db)
	ctx := context.Background()

	var got []int
	for i := 0; i < 3; i++ {
		require.NoError(t, tx.RunInTx(ctx, func(txCtx context.Context) error {
			n, err := repo.Next(txCtx, 2026)
			got = append(got, n)
			return err
		}))
	}

	// separate years count independently
	other, err := repo.Next(ctx, 2025)
	require.NoError(t, err)

	assert.Equal(t, []int{1, 2, 3}, got)
	assert.Equal(t, 1, other)
}

func TestRiderCodeRolledBackTransactionReleasesValue(t *testing.T) {
	db := dbtest.New(t)
	repo := NewRiderCodeRepository(db)
	tx := NewTransactionManager(db)
	ctx := context.Background()

	err := tx.RunInTx(ctx, func(txCtx context.Context) error {
		_, err := repo.Next(txCtx, 2026)
		require.NoError(t, err)
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	next, err := repo.Next(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestRiderCodeLockDrawsNothing(t *testing.T) {
	db := dbtest.New(t)
	repo := NewRiderCodeRepository(db)
	tx := NewTransactionManager(db)
	ctx := context.Background()

	require.NoError(t, tx.RunInTx(ctx, func(txCtx context.Context) error {
		return repo.Lock(txCtx, 2026)
	}))

	next, err := repo.Next(ctx, 2026)
	require.NoError(t, err)
	assert.Equal(t, 1, next)
}

func TestRiderCodeLockUsesRowLock(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewRiderCodeRepository(db)

	mock.ExpectQuery(`SELECT \* FROM "rider_code_sequences" WHERE year = \$1 .*FOR UPDATE`).
		WillReturnRows(sqlmock.NewRows([]string{"year", "last_value"}).AddRow(2026, 7))

	require.NoError(t, repo.Lock(context.Background(), 2026))
	assert.NoError(t, mock.ExpectationsWereMet())
}
