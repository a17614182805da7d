package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/vidkeep/storage-api/internal/models"
)

// AssetRepository handles stored asset persistence.
type AssetRepository struct {
	db *sqlx.DB
}

// NewAssetRepository constructs the repository.
func NewAssetRepository(db *sqlx.DB) *AssetRepository {
	return &AssetRepository{db: db}
}

const assetColumns = `id, owner_id, filename, blob_id, size_bytes, status, priority, created_at,
       last_accessed_at, access_count, archived_at, archive_expires_at`

// Create stores metadata for a newly assembled asset.
func (r *AssetRepository) Create(ctx context.Context, asset *models.StoredAsset) error {
	if asset.ID == "" {
		asset.ID = uuid.NewString()
	}
	if asset.CreatedAt.IsZero() {
		asset.CreatedAt = time.Now().UTC()
	}
	if asset.Status == "" {
		asset.Status = models.AssetStatusActive
	}
	if asset.Priority == 0 {
		asset.Priority = models.AssetPriorityNormal
	}
	const query = `INSERT INTO stored_assets
	(id, owner_id, filename, blob_id, size_bytes, status, priority, created_at,
	 last_accessed_at, access_count, archived_at, archive_expires_at)
	VALUES (:id, :owner_id, :filename, :blob_id, :size_bytes, :status, :priority, :created_at,
	 :last_accessed_at, :access_count, :archived_at, :archive_expires_at)`
	if _, err := r.db.NamedExecContext(ctx, query, asset); err != nil {
		return fmt.Errorf("create stored asset: %w", err)
	}
	return nil
}

// GetByID retrieves one asset row.
func (r *AssetRepository) GetByID(ctx context.Context, id string) (*models.StoredAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM stored_assets WHERE id = $1`
	var asset models.StoredAsset
	if err := r.db.GetContext(ctx, &asset, query, id); err != nil {
		return nil, err
	}
	return &asset, nil
}

// ListByOwnerAndStatus returns an owner's assets in the given status, newest first.
func (r *AssetRepository) ListByOwnerAndStatus(ctx context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM stored_assets
	WHERE owner_id = $1 AND status = $2 ORDER BY created_at DESC`
	var assets []models.StoredAsset
	if err := r.db.SelectContext(ctx, &assets, query, ownerID, status); err != nil {
		return nil, fmt.Errorf("list assets for %s: %w", ownerID, err)
	}
	return assets, nil
}

// ListArchivedByOwner returns archived assets ordered oldest-archived first,
// the order in which restoration considers them.
func (r *AssetRepository) ListArchivedByOwner(ctx context.Context, ownerID string) ([]models.StoredAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM stored_assets
	WHERE owner_id = $1 AND status = $2 ORDER BY archived_at ASC`
	var assets []models.StoredAsset
	if err := r.db.SelectContext(ctx, &assets, query, ownerID, models.AssetStatusArchived); err != nil {
		return nil, fmt.Errorf("list archived assets for %s: %w", ownerID, err)
	}
	return assets, nil
}

// Archive flips an active asset to archived with its recovery deadline.
func (r *AssetRepository) Archive(ctx context.Context, id string, archivedAt, expiresAt time.Time) error {
	const query = `UPDATE stored_assets
	SET status = $2, archived_at = $3, archive_expires_at = $4
	WHERE id = $1 AND status = $5`
	res, err := r.db.ExecContext(ctx, query, id, models.AssetStatusArchived, archivedAt, expiresAt, models.AssetStatusActive)
	if err != nil {
		return fmt.Errorf("archive asset %s: %w", id, err)
	}
	return requireRow(res, "archive asset")
}

// Restore flips an archived asset back to active and clears archival fields.
func (r *AssetRepository) Restore(ctx context.Context, id string) error {
	const query = `UPDATE stored_assets
	SET status = $2, archived_at = NULL, archive_expires_at = NULL
	WHERE id = $1 AND status = $3`
	res, err := r.db.ExecContext(ctx, query, id, models.AssetStatusActive, models.AssetStatusArchived)
	if err != nil {
		return fmt.Errorf("restore asset %s: %w", id, err)
	}
	return requireRow(res, "restore asset")
}

// MarkDeleted soft-deletes an asset record.
func (r *AssetRepository) MarkDeleted(ctx context.Context, id string) error {
	const query = `UPDATE stored_assets SET status = $2 WHERE id = $1 AND status <> $2`
	res, err := r.db.ExecContext(ctx, query, id, models.AssetStatusDeleted)
	if err != nil {
		return fmt.Errorf("delete asset %s: %w", id, err)
	}
	return requireRow(res, "delete asset")
}

// DeletePermanently removes the asset row once its archive window has lapsed.
func (r *AssetRepository) DeletePermanently(ctx context.Context, id string) error {
	const query = `DELETE FROM stored_assets WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id); err != nil {
		return fmt.Errorf("destroy asset %s: %w", id, err)
	}
	return nil
}

// ListArchiveExpired returns archived assets whose recovery window has passed.
func (r *AssetRepository) ListArchiveExpired(ctx context.Context, asOf time.Time) ([]models.StoredAsset, error) {
	query := `SELECT ` + assetColumns + ` FROM stored_assets
	WHERE status = $1 AND archive_expires_at IS NOT NULL AND archive_expires_at < $2`
	var assets []models.StoredAsset
	if err := r.db.SelectContext(ctx, &assets, query, models.AssetStatusArchived, asOf); err != nil {
		return nil, fmt.Errorf("list archive-expired assets: %w", err)
	}
	return assets, nil
}

// TouchAccess records one access against an asset.
func (r *AssetRepository) TouchAccess(ctx context.Context, id string, at time.Time) error {
	const query = `UPDATE stored_assets
	SET access_count = access_count + 1, last_accessed_at = $2
	WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, id, at); err != nil {
		return fmt.Errorf("touch asset %s: %w", id, err)
	}
	return nil
}

// SumActiveSize computes the byte total of an owner's active assets.
func (r *AssetRepository) SumActiveSize(ctx context.Context, ownerID string) (int64, error) {
	const query = `SELECT COALESCE(SUM(size_bytes), 0) FROM stored_assets
	WHERE owner_id = $1 AND status = $2`
	var total int64
	if err := r.db.GetContext(ctx, &total, query, ownerID, models.AssetStatusActive); err != nil {
		return 0, fmt.Errorf("sum active assets for %s: %w", ownerID, err)
	}
	return total, nil
}

func requireRow(res sql.Result, op string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows: %w", op, err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
