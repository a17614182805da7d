package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

type billingClient interface {
	GetPlan(ctx context.Context, ownerID string) (*models.Plan, error)
}

type subscriptionAccounts interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.StorageAccount, error)
	UpdateQuota(ctx context.Context, ownerID string, quotaBytes int64, isPremium bool) (*OverageEvaluation, error)
	ApplyUsageDelta(ctx context.Context, ownerID string, delta int64) error
}

type restorableAssets interface {
	ListArchivedByOwner(ctx context.Context, ownerID string) ([]models.StoredAsset, error)
	Restore(ctx context.Context, assetID string) error
}

// SubscriptionService reconciles an account's quota with the billing
// service's view of its plan. The billing service is the source of truth; a
// lapsed or canceled premium plan collapses the account back to the free
// tier, and a quota increase pulls archived assets back while they fit.
type SubscriptionService struct {
	billing  billingClient
	accounts subscriptionAccounts
	assets   restorableAssets
	notifier notifier
	cfg      config.QuotaConfig
	logger   *zap.Logger
}

// NewSubscriptionService constructs the syncer.
func NewSubscriptionService(billing billingClient, accounts subscriptionAccounts, assets restorableAssets, notifier notifier, cfg config.QuotaConfig, logger *zap.Logger) *SubscriptionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SubscriptionService{
		billing:  billing,
		accounts: accounts,
		assets:   assets,
		notifier: notifier,
		cfg:      cfg,
		logger:   logger,
	}
}

// Sync fetches the owner's plan and applies any quota change. When billing is
// unreachable the existing quota stays in force and ErrBillingUnavailable is
// returned so callers can decide whether that is fatal.
func (s *SubscriptionService) Sync(ctx context.Context, ownerID string) (*models.StorageAccount, error) {
	plan, err := s.billing.GetPlan(ctx, ownerID)
	if err != nil {
		s.logger.Warn("billing lookup failed, keeping current quota",
			zap.String("owner_id", ownerID),
			zap.Error(err))
		return nil, appErrors.Wrap(err, appErrors.ErrBillingUnavailable.Code,
			appErrors.ErrBillingUnavailable.Status, appErrors.ErrBillingUnavailable.Message)
	}

	quotaBytes := s.cfg.FreeTierBytes
	premium := false
	if plan.Active() && plan.IsPremium {
		premium = true
		quotaBytes = plan.QuotaBytes
		if quotaBytes <= 0 {
			quotaBytes = s.cfg.PremiumTierBytes
		}
	}

	account, err := s.accounts.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if account.QuotaBytes == quotaBytes && account.IsPremium == premium {
		return account, nil
	}

	quotaIncreased := quotaBytes > account.QuotaBytes
	eval, err := s.accounts.UpdateQuota(ctx, ownerID, quotaBytes, premium)
	if err != nil {
		return nil, err
	}

	if quotaIncreased {
		if err := s.restoreArchived(ctx, eval.Account); err != nil {
			s.logger.Warn("archived asset restoration incomplete",
				zap.String("owner_id", ownerID),
				zap.Error(err))
		}
	}
	return eval.Account, nil
}

// restoreArchived brings archived assets back to ACTIVE, oldest archived
// first, skipping any asset that would push usage over the new quota.
func (s *SubscriptionService) restoreArchived(ctx context.Context, account *models.StorageAccount) error {
	if s.assets == nil {
		return nil
	}

	archived, err := s.assets.ListArchivedByOwner(ctx, account.OwnerID)
	if err != nil {
		return err
	}
	if len(archived) == 0 {
		return nil
	}

	used := account.UsedBytes
	var restoredIDs []string
	var restoredBytes int64
	for _, asset := range archived {
		if used+asset.SizeBytes > account.QuotaBytes {
			continue
		}
		if err := s.assets.Restore(ctx, asset.ID); err != nil {
			s.logger.Warn("asset restore failed",
				zap.String("owner_id", account.OwnerID),
				zap.String("asset_id", asset.ID),
				zap.Error(err))
			continue
		}
		if err := s.accounts.ApplyUsageDelta(ctx, account.OwnerID, asset.SizeBytes); err != nil {
			return err
		}
		used += asset.SizeBytes
		restoredBytes += asset.SizeBytes
		restoredIDs = append(restoredIDs, asset.ID)
	}

	if len(restoredIDs) > 0 {
		s.logger.Info("restored archived assets after quota increase",
			zap.String("owner_id", account.OwnerID),
			zap.Int("count", len(restoredIDs)),
			zap.Int64("restored_bytes", restoredBytes))
		if s.notifier != nil {
			s.notifier.Notify(account.OwnerID, models.EventAssetsRestored, map[string]interface{}{
				"assetIds":      restoredIDs,
				"restoredBytes": restoredBytes,
			})
		}
	}
	return nil
}
