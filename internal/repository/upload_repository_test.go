package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/vidkeep/storage-api/internal/models"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

func TestUploadRepositoryCreateAndGetSession(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upload_sessions")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	session := &models.UploadSession{
		OwnerID:        "owner-1",
		Filename:       "clip.mp4",
		TotalSizeBytes: 1 << 20,
		ChunkSizeBytes: 1 << 18,
		TotalChunks:    4,
		ExpiresAt:      time.Now().Add(24 * time.Hour),
	}
	require.NoError(t, repo.CreateSession(context.Background(), session))
	require.NotEmpty(t, session.ID)
	require.Equal(t, models.UploadStatusUploading, session.Status)

	rows := sqlmock.NewRows([]string{
		"id", "owner_id", "filename", "total_size_bytes", "chunk_size_bytes", "total_chunks",
		"chunks_received", "priority", "status", "asset_id", "created_at", "expires_at",
	}).AddRow(session.ID, "owner-1", "clip.mp4", int64(1<<20), int64(1<<18), 4, 0, 2, "UPLOADING", nil, time.Now(), session.ExpiresAt)
	mock.ExpectQuery(regexp.QuoteMeta("FROM upload_sessions WHERE id = $1")).
		WithArgs(session.ID).
		WillReturnRows(rows)

	found, err := repo.GetSession(context.Background(), session.ID)
	require.NoError(t, err)
	require.Equal(t, 4, found.TotalChunks)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryInsertChunkDuplicate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upload_chunks")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	chunk := &models.UploadChunk{SessionID: "sess-1", ChunkNumber: 0, SizeBytes: 1024, BlobID: "b1"}
	require.NoError(t, repo.InsertChunk(context.Background(), chunk))

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO upload_chunks")).
		WillReturnError(&pq.Error{Code: "23505"})
	err := repo.InsertChunk(context.Background(), chunk)
	require.ErrorIs(t, err, appErrors.ErrDuplicateChunk)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUploadRepositoryIncrementReceived(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	rows := sqlmock.NewRows([]string{"chunks_received"}).AddRow(3)
	mock.ExpectQuery(regexp.QuoteMeta("SET chunks_received = chunks_received + 1")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	received, err := repo.IncrementReceived(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Equal(t, 3, received)
}

func TestUploadRepositoryCompleteSessionGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewUploadRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE upload_sessions SET status = $2, asset_id = $3")).
		WithArgs("sess-1", string(models.UploadStatusComplete), "asset-1", string(models.UploadStatusUploading)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.CompleteSession(context.Background(), "sess-1", "asset-1"))

	// Completing twice touches no row.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE upload_sessions SET status = $2, asset_id = $3")).
		WithArgs("sess-1", string(models.UploadStatusComplete), "asset-1", string(models.UploadStatusUploading)).
		WillReturnResult(sqlmock.NewResult(0, 0))
	require.Error(t, repo.CompleteSession(context.Background(), "sess-1", "asset-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}
