package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/vidkeep/storage-api/internal/dto"
	"github.com/vidkeep/storage-api/internal/models"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

type assetStore interface {
	GetByID(ctx context.Context, id string) (*models.StoredAsset, error)
	ListByOwnerAndStatus(ctx context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error)
	MarkDeleted(ctx context.Context, id string) error
	TouchAccess(ctx context.Context, id string, at time.Time) error
}

type accountUsage interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.StorageAccount, error)
	ApplyUsageDelta(ctx context.Context, ownerID string, delta int64) error
}

type urlSigner interface {
	Generate(assetID, blobID string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (assetID, blobID string, expiresAt time.Time, err error)
}

type blobReader interface {
	Open(id string) (*os.File, error)
	Delete(ctx context.Context, id string) error
}

// AssetService serves stored asset metadata and the signed download flow.
// Downloads feed the access statistics that drive archival scoring.
type AssetService struct {
	repo      assetStore
	blobs     blobReader
	signer    urlSigner
	accounts  accountUsage
	apiPrefix string
	logger    *zap.Logger
	now       func() time.Time
}

// NewAssetService constructs the service.
func NewAssetService(repo assetStore, blobs blobReader, signer urlSigner, accounts accountUsage, apiPrefix string, logger *zap.Logger) *AssetService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssetService{
		repo:      repo,
		blobs:     blobs,
		signer:    signer,
		accounts:  accounts,
		apiPrefix: apiPrefix,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// List returns an owner's assets in the given lifecycle state (ACTIVE by default).
func (s *AssetService) List(ctx context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error) {
	if status == "" {
		status = models.AssetStatusActive
	}
	return s.repo.ListByOwnerAndStatus(ctx, ownerID, status)
}

// Get returns one asset's metadata.
func (s *AssetService) Get(ctx context.Context, id string) (*models.StoredAsset, error) {
	asset, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "asset not found")
		}
		return nil, fmt.Errorf("load asset %s: %w", id, err)
	}
	return asset, nil
}

// CreateDownloadURL issues a time-limited signed link for an active asset.
// Accounts at restriction level 2 or above cannot mint new links.
func (s *AssetService) CreateDownloadURL(ctx context.Context, assetID string) (*dto.AssetDownloadResponse, error) {
	asset, err := s.Get(ctx, assetID)
	if err != nil {
		return nil, err
	}
	if asset.Status != models.AssetStatusActive {
		return nil, appErrors.Clone(appErrors.ErrConflict, fmt.Sprintf("asset is %s", asset.Status))
	}

	account, err := s.accounts.GetOrCreate(ctx, asset.OwnerID)
	if err != nil {
		return nil, err
	}
	if account.SharingBlocked() {
		return nil, appErrors.ErrSharingBlocked
	}

	token, _, err := s.signer.Generate(asset.ID, asset.BlobID)
	if err != nil {
		return nil, fmt.Errorf("sign download url for %s: %w", assetID, err)
	}
	return &dto.AssetDownloadResponse{
		StoredAsset: *asset,
		DownloadURL: fmt.Sprintf("%s/assets/%s/download?token=%s", s.apiPrefix, asset.ID, url.QueryEscape(token)),
	}, nil
}

// Download validates a signed token and opens the asset's blob for streaming.
// Each successful download counts as one access.
func (s *AssetService) Download(ctx context.Context, token string) (*models.StoredAsset, *os.File, error) {
	assetID, blobID, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid download token")
	}

	asset, err := s.Get(ctx, assetID)
	if err != nil {
		return nil, nil, err
	}
	if asset.Status != models.AssetStatusActive || asset.BlobID != blobID {
		return nil, nil, appErrors.Clone(appErrors.ErrConflict, "asset is no longer available")
	}

	file, err := s.blobs.Open(asset.BlobID)
	if err != nil {
		return nil, nil, fmt.Errorf("open blob for %s: %w", assetID, err)
	}

	if err := s.repo.TouchAccess(ctx, asset.ID, s.now()); err != nil {
		s.logger.Warn("failed to record asset access", zap.String("asset_id", asset.ID), zap.Error(err))
	}
	return asset, file, nil
}

// Delete soft-deletes an asset, discards its blob, and returns the bytes to
// the owner's quota if the asset was still active.
func (s *AssetService) Delete(ctx context.Context, id string) error {
	asset, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if asset.Status == models.AssetStatusDeleted {
		return appErrors.Clone(appErrors.ErrConflict, "asset already deleted")
	}

	if err := s.repo.MarkDeleted(ctx, id); err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	if err := s.blobs.Delete(ctx, asset.BlobID); err != nil {
		s.logger.Warn("failed to delete asset blob", zap.String("asset_id", id), zap.Error(err))
	}

	// Archived assets were already taken off the usage total when archived.
	if asset.Status == models.AssetStatusActive {
		if err := s.accounts.ApplyUsageDelta(ctx, asset.OwnerID, -asset.SizeBytes); err != nil {
			return err
		}
	}

	s.logger.Info("asset deleted",
		zap.String("asset_id", id),
		zap.String("owner_id", asset.OwnerID),
		zap.Int64("size_bytes", asset.SizeBytes))
	return nil
}
