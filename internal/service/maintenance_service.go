package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
)

type maintenanceAccounts interface {
	ListOwnerIDs(ctx context.Context) ([]string, error)
	Evaluate(ctx context.Context, ownerID string, dryRun bool) (*OverageEvaluation, error)
	ApplyUsageDelta(ctx context.Context, ownerID string, delta int64) error
}

type subscriptionSyncer interface {
	Sync(ctx context.Context, ownerID string) (*models.StorageAccount, error)
}

type archivableAssets interface {
	ListByOwnerAndStatus(ctx context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error)
	Archive(ctx context.Context, id string, archivedAt, expiresAt time.Time) error
	ListArchiveExpired(ctx context.Context, asOf time.Time) ([]models.StoredAsset, error)
	DeletePermanently(ctx context.Context, id string) error
}

type sessionExpirer interface {
	ExpireStaleSessions(ctx context.Context) (int, error)
}

type blobDeleter interface {
	Delete(ctx context.Context, id string) error
}

// MaintenanceService runs the quota sweep: plan sync, overage detection and
// escalation, archival eviction at the final restriction level, cleanup of
// lapsed archives, and expiry of stale upload sessions. One account failing
// never aborts the sweep; failures are collected in the report.
type MaintenanceService struct {
	accounts maintenanceAccounts
	subs     subscriptionSyncer
	assets   archivableAssets
	blobs    blobDeleter
	sessions sessionExpirer
	notifier notifier
	metrics  *MetricsService
	quota    config.QuotaConfig
	interval time.Duration
	logger   *zap.Logger
	now      func() time.Time
}

// NewMaintenanceService constructs the sweep runner. subs, sessions, notifier
// and metrics may be nil.
func NewMaintenanceService(accounts maintenanceAccounts, subs subscriptionSyncer, assets archivableAssets, blobs blobDeleter, sessions sessionExpirer, notifier notifier, metrics *MetricsService, quota config.QuotaConfig, maintenance config.MaintenanceConfig, logger *zap.Logger) *MaintenanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{
		accounts: accounts,
		subs:     subs,
		assets:   assets,
		blobs:    blobs,
		sessions: sessions,
		notifier: notifier,
		metrics:  metrics,
		quota:    quota,
		interval: maintenance.Interval,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start launches the periodic sweep loop. It returns immediately; the loop
// stops when ctx is cancelled.
func (s *MaintenanceService) Start(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.RunSweep(ctx, models.MaintenanceOptions{CleanupExpired: true}); err != nil {
					s.logger.Error("scheduled quota sweep failed", zap.Error(err))
				}
			}
		}
	}()
}

// RunSweep executes one full maintenance cycle and returns its report.
// Cancelling ctx stops the sweep between accounts and returns the partial
// report alongside the context error.
func (s *MaintenanceService) RunSweep(ctx context.Context, opts models.MaintenanceOptions) (*models.MaintenanceReport, error) {
	started := s.now()
	report := &models.MaintenanceReport{DryRun: opts.DryRun, StartedAt: started}

	owners, err := s.accounts.ListOwnerIDs(ctx)
	if err != nil {
		return report, err
	}

	for _, ownerID := range owners {
		if err := ctx.Err(); err != nil {
			report.FinishedAt = s.now()
			return report, err
		}
		report.AccountsChecked++
		s.sweepAccount(ctx, ownerID, opts, report)
	}

	if opts.CleanupExpired {
		deleted, err := s.cleanupExpiredArchives(ctx, opts.DryRun)
		report.AssetsDeleted = deleted
		if err != nil {
			report.Errors = append(report.Errors, models.MaintenanceError{Message: err.Error()})
		}
	}

	if !opts.DryRun && s.sessions != nil {
		expired, err := s.sessions.ExpireStaleSessions(ctx)
		report.SessionsExpired = expired
		if err != nil {
			report.Errors = append(report.Errors, models.MaintenanceError{Message: err.Error()})
		}
	}

	report.FinishedAt = s.now()
	s.metrics.RecordSweep(report, report.FinishedAt.Sub(started))
	s.logger.Info("quota sweep finished",
		zap.Bool("dry_run", report.DryRun),
		zap.Int("accounts_checked", report.AccountsChecked),
		zap.Int("overage_detected", report.OverageDetected),
		zap.Int("restrictions_escalated", report.RestrictionsEscalated),
		zap.Int("assets_archived", report.AssetsArchived),
		zap.Int("assets_deleted", report.AssetsDeleted),
		zap.Int("sessions_expired", report.SessionsExpired),
		zap.Int("errors", len(report.Errors)))
	return report, nil
}

func (s *MaintenanceService) sweepAccount(ctx context.Context, ownerID string, opts models.MaintenanceOptions, report *models.MaintenanceReport) {
	if s.subs != nil && !opts.DryRun {
		if _, err := s.subs.Sync(ctx, ownerID); err != nil {
			// The existing quota stays in force when billing is unreachable,
			// but the operator still sees the failure in the report.
			report.Errors = append(report.Errors, models.MaintenanceError{OwnerID: ownerID, Message: err.Error()})
			s.logger.Warn("plan sync failed, keeping current quota",
				zap.String("owner_id", ownerID),
				zap.Error(err))
		}
	}

	eval, err := s.accounts.Evaluate(ctx, ownerID, opts.DryRun)
	if err != nil {
		report.Errors = append(report.Errors, models.MaintenanceError{OwnerID: ownerID, Message: err.Error()})
		return
	}
	if eval.Overage {
		report.OverageDetected++
	}
	if eval.Escalated {
		report.RestrictionsEscalated++
	}

	account := eval.Account
	if account.Overage() <= 0 {
		return
	}
	if account.RestrictionLevel < models.RestrictionArchivingTriggered && !opts.ForceArchiving {
		return
	}

	archived, err := s.archiveOverage(ctx, account, opts.DryRun)
	if err != nil {
		report.Errors = append(report.Errors, models.MaintenanceError{OwnerID: ownerID, Message: err.Error()})
		return
	}
	report.AssetsArchived += archived
}

// archiveOverage evicts enough of the account's active assets to cover its
// overage, charging each one back to the quota as it lands in the archive.
func (s *MaintenanceService) archiveOverage(ctx context.Context, account *models.StorageAccount, dryRun bool) (int, error) {
	active, err := s.assets.ListByOwnerAndStatus(ctx, account.OwnerID, models.AssetStatusActive)
	if err != nil {
		return 0, err
	}

	now := s.now()
	selected := SelectForArchival(active, account.Overage(), now)
	if len(selected) == 0 {
		return 0, nil
	}
	if dryRun {
		return len(selected), nil
	}

	expiresAt := now.Add(s.quota.ArchiveRetention)
	var archivedIDs []string
	var freedBytes int64
	for _, asset := range selected {
		if err := s.assets.Archive(ctx, asset.ID, now, expiresAt); err != nil {
			s.logger.Warn("asset archive failed",
				zap.String("owner_id", account.OwnerID),
				zap.String("asset_id", asset.ID),
				zap.Error(err))
			continue
		}
		if err := s.accounts.ApplyUsageDelta(ctx, account.OwnerID, -asset.SizeBytes); err != nil {
			s.logger.Error("failed to return archived bytes to quota",
				zap.String("owner_id", account.OwnerID),
				zap.String("asset_id", asset.ID),
				zap.Error(err))
		}
		archivedIDs = append(archivedIDs, asset.ID)
		freedBytes += asset.SizeBytes
	}

	if len(archivedIDs) > 0 {
		s.logger.Info("archived assets to cover overage",
			zap.String("owner_id", account.OwnerID),
			zap.Int("count", len(archivedIDs)),
			zap.Int64("freed_bytes", freedBytes))
		if s.notifier != nil {
			s.notifier.Notify(account.OwnerID, models.EventAssetsArchived, map[string]interface{}{
				"assetIds":         archivedIDs,
				"freedBytes":       freedBytes,
				"archiveExpiresAt": expiresAt,
			})
		}
	}
	return len(archivedIDs), nil
}

// cleanupExpiredArchives permanently deletes archived assets whose recovery
// window has lapsed. Usage was already decremented at archival time, so no
// quota adjustment happens here.
func (s *MaintenanceService) cleanupExpiredArchives(ctx context.Context, dryRun bool) (int, error) {
	expired, err := s.assets.ListArchiveExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	if dryRun {
		return len(expired), nil
	}

	deleted := 0
	for _, asset := range expired {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if s.blobs != nil {
			if err := s.blobs.Delete(ctx, asset.BlobID); err != nil {
				// Keep the record so the next sweep retries the blob; deleting
				// the row now would orphan the blob on disk forever.
				s.logger.Warn("failed to delete expired archive blob",
					zap.String("asset_id", asset.ID),
					zap.Error(err))
				continue
			}
		}
		if err := s.assets.DeletePermanently(ctx, asset.ID); err != nil {
			s.logger.Warn("failed to destroy expired archive record",
				zap.String("asset_id", asset.ID),
				zap.Error(err))
			continue
		}
		deleted++
	}
	if deleted > 0 {
		s.logger.Info("purged expired archives", zap.Int("count", deleted))
	}
	return deleted, nil
}
