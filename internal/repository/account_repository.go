package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/vidkeep/storage-api/internal/models"
)

// AccountRepository handles storage account persistence.
type AccountRepository struct {
	db *sqlx.DB
}

// NewAccountRepository constructs the repository.
func NewAccountRepository(db *sqlx.DB) *AccountRepository {
	return &AccountRepository{db: db}
}

const accountColumns = `owner_id, used_bytes, quota_bytes, is_premium, grace_period_start, grace_period_end,
       in_grace_period, restriction_level, overage_notified, last_notification_at, created_at, updated_at`

// Create inserts a fresh account row for an owner.
func (r *AccountRepository) Create(ctx context.Context, account *models.StorageAccount) error {
	now := time.Now().UTC()
	if account.CreatedAt.IsZero() {
		account.CreatedAt = now
	}
	account.UpdatedAt = now
	const query = `INSERT INTO storage_accounts
	(owner_id, used_bytes, quota_bytes, is_premium, grace_period_start, grace_period_end,
	 in_grace_period, restriction_level, overage_notified, last_notification_at, created_at, updated_at)
	VALUES (:owner_id, :used_bytes, :quota_bytes, :is_premium, :grace_period_start, :grace_period_end,
	 :in_grace_period, :restriction_level, :overage_notified, :last_notification_at, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, account); err != nil {
		return fmt.Errorf("create storage account: %w", err)
	}
	return nil
}

// GetByOwner retrieves one account row.
func (r *AccountRepository) GetByOwner(ctx context.Context, ownerID string) (*models.StorageAccount, error) {
	query := `SELECT ` + accountColumns + ` FROM storage_accounts WHERE owner_id = $1`
	var account models.StorageAccount
	if err := r.db.GetContext(ctx, &account, query, ownerID); err != nil {
		return nil, err
	}
	return &account, nil
}

// ListOwnerIDs returns every account owner id for sweep iteration.
func (r *AccountRepository) ListOwnerIDs(ctx context.Context) ([]string, error) {
	const query = `SELECT owner_id FROM storage_accounts ORDER BY owner_id`
	var ids []string
	if err := r.db.SelectContext(ctx, &ids, query); err != nil {
		return nil, fmt.Errorf("list account owners: %w", err)
	}
	return ids, nil
}

// Update persists quota, premium flag and the full overage state of an account.
func (r *AccountRepository) Update(ctx context.Context, account *models.StorageAccount) error {
	account.UpdatedAt = time.Now().UTC()
	const query = `UPDATE storage_accounts SET
	 quota_bytes = :quota_bytes,
	 is_premium = :is_premium,
	 grace_period_start = :grace_period_start,
	 grace_period_end = :grace_period_end,
	 in_grace_period = :in_grace_period,
	 restriction_level = :restriction_level,
	 overage_notified = :overage_notified,
	 last_notification_at = :last_notification_at,
	 updated_at = :updated_at
	WHERE owner_id = :owner_id`
	res, err := r.db.NamedExecContext(ctx, query, account)
	if err != nil {
		return fmt.Errorf("update storage account: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check account update rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// AdjustUsage applies a delta to used_bytes, refusing to drive it negative.
func (r *AccountRepository) AdjustUsage(ctx context.Context, ownerID string, delta int64) error {
	const query = `UPDATE storage_accounts
	SET used_bytes = used_bytes + $2, updated_at = $3
	WHERE owner_id = $1 AND used_bytes + $2 >= 0`
	res, err := r.db.ExecContext(ctx, query, ownerID, delta, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("adjust usage for %s: %w", ownerID, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check usage adjust rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("usage adjust for %s rejected (missing account or negative result)", ownerID)
	}
	return nil
}
