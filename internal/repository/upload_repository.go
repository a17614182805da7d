package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/vidkeep/storage-api/internal/models"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

const pqUniqueViolation = "23505"

// UploadRepository handles upload session and chunk persistence.
type UploadRepository struct {
	db *sqlx.DB
}

// NewUploadRepository constructs the repository.
func NewUploadRepository(db *sqlx.DB) *UploadRepository {
	return &UploadRepository{db: db}
}

const sessionColumns = `id, owner_id, filename, total_size_bytes, chunk_size_bytes, total_chunks,
       chunks_received, priority, status, asset_id, created_at, expires_at`

// CreateSession inserts a new uploading session.
func (r *UploadRepository) CreateSession(ctx context.Context, session *models.UploadSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = models.UploadStatusUploading
	}
	if session.Priority == 0 {
		session.Priority = models.AssetPriorityNormal
	}
	const query = `INSERT INTO upload_sessions
	(id, owner_id, filename, total_size_bytes, chunk_size_bytes, total_chunks,
	 chunks_received, priority, status, asset_id, created_at, expires_at)
	VALUES (:id, :owner_id, :filename, :total_size_bytes, :chunk_size_bytes, :total_chunks,
	 :chunks_received, :priority, :status, :asset_id, :created_at, :expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create upload session: %w", err)
	}
	return nil
}

// GetSession retrieves one session row.
func (r *UploadRepository) GetSession(ctx context.Context, id string) (*models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions WHERE id = $1`
	var session models.UploadSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// InsertChunk persists one received chunk. A second chunk with the same number
// for the same session surfaces as ErrDuplicateChunk.
func (r *UploadRepository) InsertChunk(ctx context.Context, chunk *models.UploadChunk) error {
	if chunk.ReceivedAt.IsZero() {
		chunk.ReceivedAt = time.Now().UTC()
	}
	const query = `INSERT INTO upload_chunks (session_id, chunk_number, size_bytes, blob_id, received_at)
	VALUES (:session_id, :chunk_number, :size_bytes, :blob_id, :received_at)`
	if _, err := r.db.NamedExecContext(ctx, query, chunk); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return appErrors.ErrDuplicateChunk
		}
		return fmt.Errorf("insert chunk %d for %s: %w", chunk.ChunkNumber, chunk.SessionID, err)
	}
	return nil
}

// IncrementReceived bumps the received counter and returns the new value.
func (r *UploadRepository) IncrementReceived(ctx context.Context, sessionID string) (int, error) {
	const query = `UPDATE upload_sessions SET chunks_received = chunks_received + 1
	WHERE id = $1 RETURNING chunks_received`
	var received int
	if err := r.db.GetContext(ctx, &received, query, sessionID); err != nil {
		return 0, fmt.Errorf("increment received for %s: %w", sessionID, err)
	}
	return received, nil
}

// ListChunks returns a session's chunks in ascending chunk order.
func (r *UploadRepository) ListChunks(ctx context.Context, sessionID string) ([]models.UploadChunk, error) {
	const query = `SELECT session_id, chunk_number, size_bytes, blob_id, received_at
	FROM upload_chunks WHERE session_id = $1 ORDER BY chunk_number ASC`
	var chunks []models.UploadChunk
	if err := r.db.SelectContext(ctx, &chunks, query, sessionID); err != nil {
		return nil, fmt.Errorf("list chunks for %s: %w", sessionID, err)
	}
	return chunks, nil
}

// CompleteSession marks an uploading session complete and links the asset.
func (r *UploadRepository) CompleteSession(ctx context.Context, sessionID, assetID string) error {
	const query = `UPDATE upload_sessions SET status = $2, asset_id = $3
	WHERE id = $1 AND status = $4`
	res, err := r.db.ExecContext(ctx, query, sessionID, models.UploadStatusComplete, assetID, models.UploadStatusUploading)
	if err != nil {
		return fmt.Errorf("complete session %s: %w", sessionID, err)
	}
	return requireRow(res, "complete session")
}

// SetStatus transitions an uploading session into a terminal state.
func (r *UploadRepository) SetStatus(ctx context.Context, sessionID string, status models.UploadSessionStatus) error {
	const query = `UPDATE upload_sessions SET status = $2 WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, sessionID, status, models.UploadStatusUploading)
	if err != nil {
		return fmt.Errorf("set session %s status: %w", sessionID, err)
	}
	return requireRow(res, "set session status")
}

// ListExpiredSessions returns sessions still uploading past their deadline.
func (r *UploadRepository) ListExpiredSessions(ctx context.Context, asOf time.Time) ([]models.UploadSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM upload_sessions
	WHERE status = $1 AND expires_at < $2`
	var sessions []models.UploadSession
	if err := r.db.SelectContext(ctx, &sessions, query, models.UploadStatusUploading, asOf); err != nil {
		return nil, fmt.Errorf("list expired sessions: %w", err)
	}
	return sessions, nil
}

// DeleteChunks removes all chunk records for a session.
func (r *UploadRepository) DeleteChunks(ctx context.Context, sessionID string) error {
	const query = `DELETE FROM upload_chunks WHERE session_id = $1`
	if _, err := r.db.ExecContext(ctx, query, sessionID); err != nil {
		return fmt.Errorf("delete chunks for %s: %w", sessionID, err)
	}
	return nil
}
