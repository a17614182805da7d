package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/vidkeep/storage-api/internal/dto"
	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

type uploadStore interface {
	CreateSession(ctx context.Context, session *models.UploadSession) error
	GetSession(ctx context.Context, id string) (*models.UploadSession, error)
	InsertChunk(ctx context.Context, chunk *models.UploadChunk) error
	IncrementReceived(ctx context.Context, sessionID string) (int, error)
	ListChunks(ctx context.Context, sessionID string) ([]models.UploadChunk, error)
	CompleteSession(ctx context.Context, sessionID, assetID string) error
	SetStatus(ctx context.Context, sessionID string, status models.UploadSessionStatus) error
	ListExpiredSessions(ctx context.Context, asOf time.Time) ([]models.UploadSession, error)
	DeleteChunks(ctx context.Context, sessionID string) error
}

type assetWriter interface {
	Create(ctx context.Context, asset *models.StoredAsset) error
	DeletePermanently(ctx context.Context, id string) error
}

type blobStore interface {
	Put(ctx context.Context, data []byte) (string, error)
	Get(ctx context.Context, id string) ([]byte, error)
	Delete(ctx context.Context, id string) error
}

type reservationLedger interface {
	Reserve(ctx context.Context, ownerID string, sizeBytes int64) error
	Release(ownerID string, sizeBytes int64)
	CommitReservation(ctx context.Context, ownerID string, sizeBytes int64) error
	ApplyUsageDelta(ctx context.Context, ownerID string, delta int64) error
}

// UploadService runs chunked uploads: admission against the quota ledger,
// chunk staging, and reassembly into a stored asset once the last chunk
// lands. Chunks may arrive in any order and concurrently; per-session locking
// makes the completion decision race-free.
type UploadService struct {
	uploads  uploadStore
	assets   assetWriter
	blobs    blobStore
	accounts reservationLedger
	validate *validator.Validate
	cfg      config.UploadsConfig
	logger   *zap.Logger
	now      func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewUploadService constructs the service.
func NewUploadService(uploads uploadStore, assets assetWriter, blobs blobStore, accounts reservationLedger, cfg config.UploadsConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UploadService{
		uploads:  uploads,
		assets:   assets,
		blobs:    blobs,
		accounts: accounts,
		validate: validator.New(),
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
	}
}

func (s *UploadService) lockFor(sessionID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[sessionID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[sessionID] = lock
	}
	return lock
}

func (s *UploadService) dropLock(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.locks, sessionID)
}

// BeginSession admits a new chunked upload. The full declared size is
// reserved against the owner's quota up front, so a session that would
// overflow the quota is rejected before any byte is accepted.
func (s *UploadService) BeginSession(ctx context.Context, req dto.BeginUploadRequest) (*models.UploadSession, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid upload request")
	}
	if s.cfg.MaxChunkBytes > 0 && req.ChunkSizeBytes > s.cfg.MaxChunkBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("chunk size exceeds the %d byte maximum", s.cfg.MaxChunkBytes))
	}

	if err := s.accounts.Reserve(ctx, req.OwnerID, req.TotalSizeBytes); err != nil {
		return nil, err
	}

	totalChunks := int((req.TotalSizeBytes + req.ChunkSizeBytes - 1) / req.ChunkSizeBytes)
	session := &models.UploadSession{
		OwnerID:        req.OwnerID,
		Filename:       req.Filename,
		TotalSizeBytes: req.TotalSizeBytes,
		ChunkSizeBytes: req.ChunkSizeBytes,
		TotalChunks:    totalChunks,
		Priority:       models.AssetPriority(req.Priority),
		ExpiresAt:      s.now().Add(s.cfg.SessionTTL),
	}
	if err := s.uploads.CreateSession(ctx, session); err != nil {
		s.accounts.Release(req.OwnerID, req.TotalSizeBytes)
		return nil, err
	}

	s.logger.Info("upload session started",
		zap.String("session_id", session.ID),
		zap.String("owner_id", session.OwnerID),
		zap.Int64("total_size_bytes", session.TotalSizeBytes),
		zap.Int("total_chunks", session.TotalChunks))
	return session, nil
}

// GetSession reports session progress.
func (s *UploadService) GetSession(ctx context.Context, sessionID string) (*dto.UploadSessionResponse, error) {
	session, err := s.uploads.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload session not found")
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}
	return &dto.UploadSessionResponse{
		UploadSession:   *session,
		RemainingChunks: session.TotalChunks - session.ChunksReceived,
	}, nil
}

// ReceiveChunk accepts one chunk of an open session. The chunk that completes
// the session triggers reassembly before the receipt is returned.
func (s *UploadService) ReceiveChunk(ctx context.Context, sessionID string, chunkNumber int, data []byte) (*dto.ChunkReceipt, error) {
	lock := s.lockFor(sessionID)
	lock.Lock()
	defer lock.Unlock()

	session, err := s.uploads.GetSession(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "upload session not found")
		}
		return nil, fmt.Errorf("load session %s: %w", sessionID, err)
	}

	switch session.Status {
	case models.UploadStatusUploading:
	case models.UploadStatusExpired:
		return nil, appErrors.ErrSessionExpired
	default:
		return nil, appErrors.ErrSessionClosed
	}
	if s.now().After(session.ExpiresAt) {
		s.expireSession(ctx, session)
		return nil, appErrors.ErrSessionExpired
	}

	if chunkNumber < 0 || chunkNumber >= session.TotalChunks {
		return nil, appErrors.Clone(appErrors.ErrInvalidChunk,
			fmt.Sprintf("chunk number %d outside range [0, %d)", chunkNumber, session.TotalChunks))
	}
	if expected := chunkPayloadSize(session, chunkNumber); int64(len(data)) != expected {
		return nil, appErrors.Clone(appErrors.ErrInvalidChunk,
			fmt.Sprintf("chunk %d has %d bytes, expected %d", chunkNumber, len(data), expected))
	}

	blobID, err := s.blobs.Put(ctx, data)
	if err != nil {
		return nil, fmt.Errorf("stage chunk %d for %s: %w", chunkNumber, sessionID, err)
	}

	chunk := &models.UploadChunk{
		SessionID:   sessionID,
		ChunkNumber: chunkNumber,
		SizeBytes:   int64(len(data)),
		BlobID:      blobID,
	}
	if err := s.uploads.InsertChunk(ctx, chunk); err != nil {
		if delErr := s.blobs.Delete(ctx, blobID); delErr != nil {
			s.logger.Warn("failed to discard rejected chunk blob", zap.String("blob_id", blobID), zap.Error(delErr))
		}
		return nil, err
	}

	received, err := s.uploads.IncrementReceived(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	receipt := &dto.ChunkReceipt{
		SessionID:      sessionID,
		ChunkNumber:    chunkNumber,
		ChunksReceived: received,
		TotalChunks:    session.TotalChunks,
		Status:         models.UploadStatusUploading,
	}
	if received < session.TotalChunks {
		return receipt, nil
	}

	assetID, err := s.assemble(ctx, session)
	if err != nil {
		return nil, err
	}
	receipt.Status = models.UploadStatusComplete
	receipt.AssetID = &assetID
	return receipt, nil
}

func chunkPayloadSize(session *models.UploadSession, chunkNumber int) int64 {
	if chunkNumber == session.TotalChunks-1 {
		return session.TotalSizeBytes - int64(session.TotalChunks-1)*session.ChunkSizeBytes
	}
	return session.ChunkSizeBytes
}

// assemble concatenates the staged chunks in order, verifies the result
// byte-for-byte against the declared size, and promotes it to a stored asset.
func (s *UploadService) assemble(ctx context.Context, session *models.UploadSession) (string, error) {
	chunks, err := s.uploads.ListChunks(ctx, session.ID)
	if err != nil {
		return "", s.failSession(ctx, session, err)
	}
	if len(chunks) != session.TotalChunks {
		return "", s.failSession(ctx, session,
			fmt.Errorf("have %d chunk records, expected %d", len(chunks), session.TotalChunks))
	}

	payload := make([]byte, 0, session.TotalSizeBytes)
	for i, chunk := range chunks {
		if chunk.ChunkNumber != i {
			return "", s.failSession(ctx, session,
				fmt.Errorf("chunk sequence broken at position %d (got %d)", i, chunk.ChunkNumber))
		}
		data, err := s.blobs.Get(ctx, chunk.BlobID)
		if err != nil {
			return "", s.failSession(ctx, session, err)
		}
		payload = append(payload, data...)
	}
	if int64(len(payload)) != session.TotalSizeBytes {
		return "", s.failSession(ctx, session,
			fmt.Errorf("assembled %d bytes, declared %d", len(payload), session.TotalSizeBytes))
	}

	blobID, err := s.blobs.Put(ctx, payload)
	if err != nil {
		return "", s.failSession(ctx, session, err)
	}

	// The quota is charged before the asset becomes visible. A charge that
	// cannot land fails the session rather than leaving an active asset that
	// no account is paying for.
	if err := s.accounts.CommitReservation(ctx, session.OwnerID, session.TotalSizeBytes); err != nil {
		if delErr := s.blobs.Delete(ctx, blobID); delErr != nil {
			s.logger.Warn("failed to discard orphaned asset blob", zap.String("blob_id", blobID), zap.Error(delErr))
		}
		return "", s.failSession(ctx, session, err)
	}

	asset := &models.StoredAsset{
		OwnerID:   session.OwnerID,
		Filename:  session.Filename,
		BlobID:    blobID,
		SizeBytes: session.TotalSizeBytes,
		Priority:  session.Priority,
	}
	if err := s.assets.Create(ctx, asset); err != nil {
		s.refundCharge(ctx, session)
		if delErr := s.blobs.Delete(ctx, blobID); delErr != nil {
			s.logger.Warn("failed to discard orphaned asset blob", zap.String("blob_id", blobID), zap.Error(delErr))
		}
		return "", s.abortSession(ctx, session, err)
	}
	if err := s.uploads.CompleteSession(ctx, session.ID, asset.ID); err != nil {
		s.refundCharge(ctx, session)
		if delErr := s.assets.DeletePermanently(ctx, asset.ID); delErr != nil {
			s.logger.Warn("failed to remove asset for failed session", zap.String("asset_id", asset.ID), zap.Error(delErr))
		}
		if delErr := s.blobs.Delete(ctx, blobID); delErr != nil {
			s.logger.Warn("failed to discard orphaned asset blob", zap.String("blob_id", blobID), zap.Error(delErr))
		}
		return "", s.abortSession(ctx, session, err)
	}

	s.cleanupChunks(ctx, session.ID, chunks)
	s.dropLock(session.ID)
	s.logger.Info("upload assembled",
		zap.String("session_id", session.ID),
		zap.String("asset_id", asset.ID),
		zap.Int64("size_bytes", asset.SizeBytes))
	return asset.ID, nil
}

// failSession moves the session to FAILED, discards staged chunks, and
// returns the quota reservation.
func (s *UploadService) failSession(ctx context.Context, session *models.UploadSession, cause error) error {
	s.accounts.Release(session.OwnerID, session.TotalSizeBytes)
	return s.abortSession(ctx, session, cause)
}

// abortSession finalises a failed session whose reservation has already been
// settled, either released or refunded after a charge.
func (s *UploadService) abortSession(ctx context.Context, session *models.UploadSession, cause error) error {
	s.logger.Error("upload reassembly failed",
		zap.String("session_id", session.ID),
		zap.String("owner_id", session.OwnerID),
		zap.Error(cause))
	if err := s.uploads.SetStatus(ctx, session.ID, models.UploadStatusFailed); err != nil {
		s.logger.Warn("failed to mark session failed", zap.String("session_id", session.ID), zap.Error(err))
	}
	s.cleanupChunks(ctx, session.ID, nil)
	s.dropLock(session.ID)
	return appErrors.Wrap(cause, appErrors.ErrReassemblyFailure.Code,
		appErrors.ErrReassemblyFailure.Status, appErrors.ErrReassemblyFailure.Message)
}

// refundCharge returns bytes already committed to the usage counter when a
// later step of assembly fails.
func (s *UploadService) refundCharge(ctx context.Context, session *models.UploadSession) {
	if err := s.accounts.ApplyUsageDelta(ctx, session.OwnerID, -session.TotalSizeBytes); err != nil {
		s.logger.Error("failed to return charged bytes for failed upload",
			zap.String("session_id", session.ID),
			zap.String("owner_id", session.OwnerID),
			zap.Error(err))
	}
}

func (s *UploadService) expireSession(ctx context.Context, session *models.UploadSession) {
	if err := s.uploads.SetStatus(ctx, session.ID, models.UploadStatusExpired); err != nil {
		s.logger.Warn("failed to mark session expired", zap.String("session_id", session.ID), zap.Error(err))
		return
	}
	s.cleanupChunks(ctx, session.ID, nil)
	s.accounts.Release(session.OwnerID, session.TotalSizeBytes)
	s.dropLock(session.ID)
	s.logger.Info("upload session expired",
		zap.String("session_id", session.ID),
		zap.String("owner_id", session.OwnerID))
}

// cleanupChunks discards staged chunk blobs and their records. chunks may be
// nil, in which case they are listed first.
func (s *UploadService) cleanupChunks(ctx context.Context, sessionID string, chunks []models.UploadChunk) {
	if chunks == nil {
		listed, err := s.uploads.ListChunks(ctx, sessionID)
		if err != nil {
			s.logger.Warn("failed to list chunks for cleanup", zap.String("session_id", sessionID), zap.Error(err))
			return
		}
		chunks = listed
	}
	for _, chunk := range chunks {
		if err := s.blobs.Delete(ctx, chunk.BlobID); err != nil {
			s.logger.Warn("failed to delete staged chunk blob",
				zap.String("session_id", sessionID),
				zap.Int("chunk_number", chunk.ChunkNumber),
				zap.Error(err))
		}
	}
	if err := s.uploads.DeleteChunks(ctx, sessionID); err != nil {
		s.logger.Warn("failed to delete chunk records", zap.String("session_id", sessionID), zap.Error(err))
	}
}

// ExpireStaleSessions sweeps sessions still uploading past their deadline.
func (s *UploadService) ExpireStaleSessions(ctx context.Context) (int, error) {
	sessions, err := s.uploads.ListExpiredSessions(ctx, s.now())
	if err != nil {
		return 0, err
	}
	expired := 0
	for _, session := range sessions {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		lock := s.lockFor(session.ID)
		lock.Lock()
		s.expireSession(ctx, &session)
		lock.Unlock()
		expired++
	}
	return expired, nil
}
