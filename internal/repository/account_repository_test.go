package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/vidkeep/storage-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestAccountRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccountRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO storage_accounts")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	account := &models.StorageAccount{
		OwnerID:    "owner-1",
		UsedBytes:  0,
		QuotaBytes: 5 << 30,
	}
	require.NoError(t, repo.Create(context.Background(), account))
	require.False(t, account.CreatedAt.IsZero())

	rows := sqlmock.NewRows([]string{
		"owner_id", "used_bytes", "quota_bytes", "is_premium", "grace_period_start", "grace_period_end",
		"in_grace_period", "restriction_level", "overage_notified", "last_notification_at", "created_at", "updated_at",
	}).AddRow("owner-1", int64(0), int64(5<<30), false, nil, nil, false, 0, false, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id, used_bytes, quota_bytes")).
		WithArgs("owner-1").
		WillReturnRows(rows)

	found, err := repo.GetByOwner(context.Background(), "owner-1")
	require.NoError(t, err)
	require.Equal(t, "owner-1", found.OwnerID)
	require.Equal(t, int64(5<<30), found.QuotaBytes)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryUpdateMissingRow(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccountRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE storage_accounts SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), &models.StorageAccount{OwnerID: "ghost"})
	require.Error(t, err)
}

func TestAccountRepositoryAdjustUsage(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccountRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("SET used_bytes = used_bytes + $2")).
		WithArgs("owner-1", int64(1024), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.AdjustUsage(context.Background(), "owner-1", 1024))

	// A delta that would drive used_bytes negative matches no row.
	mock.ExpectExec(regexp.QuoteMeta("SET used_bytes = used_bytes + $2")).
		WithArgs("owner-1", int64(-1<<40), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, repo.AdjustUsage(context.Background(), "owner-1", -1<<40))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryListOwnerIDs(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewAccountRepository(db)
	rows := sqlmock.NewRows([]string{"owner_id"}).AddRow("owner-1").AddRow("owner-2")
	mock.ExpectQuery(regexp.QuoteMeta("SELECT owner_id FROM storage_accounts")).
		WillReturnRows(rows)

	ids, err := repo.ListOwnerIDs(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"owner-1", "owner-2"}, ids)
}
