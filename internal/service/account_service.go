package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/internal/repository"
	"github.com/vidkeep/storage-api/pkg/config"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

type accountStore interface {
	Create(ctx context.Context, account *models.StorageAccount) error
	GetByOwner(ctx context.Context, ownerID string) (*models.StorageAccount, error)
	ListOwnerIDs(ctx context.Context) ([]string, error)
	Update(ctx context.Context, account *models.StorageAccount) error
	AdjustUsage(ctx context.Context, ownerID string, delta int64) error
}

type usageCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

type notifier interface {
	Notify(ownerID string, event models.NotificationEvent, payload map[string]interface{})
}

// OverageEvaluation describes what a single evaluation cycle did to an account.
type OverageEvaluation struct {
	Account      *models.StorageAccount
	Overage      bool
	GraceStarted bool
	Escalated    bool
	Cleared      bool
}

// AccountService owns the storage account lifecycle: quota accounting, the
// pending-reservation ledger, and the overage state machine
// (normal -> grace period -> restriction levels 1..3).
//
// All mutations of one account are serialised through a per-owner mutex, and
// upload admission reserves bytes before any data lands, so two concurrent
// uploads cannot both pass the quota check and jointly overflow it.
type AccountService struct {
	repo     accountStore
	cache    usageCache
	notifier notifier
	metrics  *MetricsService
	cfg      config.QuotaConfig
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	locks    map[string]*sync.Mutex
	reserved map[string]int64
}

// NewAccountService constructs the service. cache, notifier and metrics may be nil.
func NewAccountService(repo accountStore, cache usageCache, notifier notifier, metrics *MetricsService, cfg config.QuotaConfig, logger *zap.Logger) *AccountService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccountService{
		repo:     repo,
		cache:    cache,
		notifier: notifier,
		metrics:  metrics,
		cfg:      cfg,
		logger:   logger,
		now:      func() time.Time { return time.Now().UTC() },
		locks:    make(map[string]*sync.Mutex),
		reserved: make(map[string]int64),
	}
}

func (s *AccountService) lockFor(ownerID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[ownerID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[ownerID] = lock
	}
	return lock
}

// GetOrCreate fetches the owner's account, provisioning a free-tier account on
// first contact.
func (s *AccountService) GetOrCreate(ctx context.Context, ownerID string) (*models.StorageAccount, error) {
	account, err := s.repo.GetByOwner(ctx, ownerID)
	if err == nil {
		return account, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("load account %s: %w", ownerID, err)
	}

	account = &models.StorageAccount{
		OwnerID:    ownerID,
		QuotaBytes: s.cfg.FreeTierBytes,
	}
	if err := s.repo.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("provision account %s: %w", ownerID, err)
	}
	s.logger.Info("provisioned free-tier account",
		zap.String("owner_id", ownerID),
		zap.Int64("quota_bytes", account.QuotaBytes))
	return account, nil
}

// ListOwnerIDs exposes the sweep iteration order.
func (s *AccountService) ListOwnerIDs(ctx context.Context) ([]string, error) {
	return s.repo.ListOwnerIDs(ctx)
}

// Usage returns the cached usage snapshot for an owner, rebuilding it from the
// account row on a cache miss.
func (s *AccountService) Usage(ctx context.Context, ownerID string) (*models.UsageSnapshot, error) {
	key := repository.UsageKey(ownerID)
	if s.cache != nil {
		var cached models.UsageSnapshot
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			s.metrics.RecordCacheLookup(true)
			return &cached, nil
		} else if !errors.Is(err, appErrors.ErrCacheMiss) {
			s.logger.Warn("usage cache read failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
		s.metrics.RecordCacheLookup(false)
	}

	account, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	snapshot := buildUsageSnapshot(account, s.now())

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, snapshot, s.cfg.UsageCacheTTL); err != nil {
			s.logger.Warn("usage cache write failed", zap.String("owner_id", ownerID), zap.Error(err))
		}
	}
	return snapshot, nil
}

func buildUsageSnapshot(account *models.StorageAccount, now time.Time) *models.UsageSnapshot {
	available := account.QuotaBytes - account.UsedBytes
	if available < 0 {
		available = 0
	}
	percent := 0.0
	if account.QuotaBytes > 0 {
		percent = float64(account.UsedBytes) / float64(account.QuotaBytes) * 100
	}
	return &models.UsageSnapshot{
		OwnerID:          account.OwnerID,
		UsedBytes:        account.UsedBytes,
		QuotaBytes:       account.QuotaBytes,
		AvailableBytes:   available,
		UsagePercent:     percent,
		IsPremium:        account.IsPremium,
		RestrictionLevel: account.RestrictionLevel,
		InGracePeriod:    account.InGracePeriod,
		GracePeriodEnd:   account.GracePeriodEnd,
		GeneratedAt:      now,
	}
}

func (s *AccountService) invalidateUsage(ctx context.Context, ownerID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Delete(ctx, repository.UsageKey(ownerID)); err != nil {
		s.logger.Warn("usage cache invalidation failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
}

// Reserve admits an upload of the given size. The bytes are held in the
// in-memory ledger until Commit or Release, and count against the quota for
// every admission check in between.
func (s *AccountService) Reserve(ctx context.Context, ownerID string, sizeBytes int64) error {
	if sizeBytes <= 0 {
		return appErrors.Clone(appErrors.ErrValidation, "reservation size must be positive")
	}

	lock := s.lockFor(ownerID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return err
	}
	if account.UploadsBlocked() {
		return appErrors.ErrUploadsBlocked
	}

	s.mu.Lock()
	pending := s.reserved[ownerID]
	s.mu.Unlock()

	if account.UsedBytes+pending+sizeBytes > account.QuotaBytes {
		return appErrors.ErrQuotaExceeded
	}

	s.mu.Lock()
	s.reserved[ownerID] = pending + sizeBytes
	s.mu.Unlock()
	return nil
}

// Release drops a reservation without charging usage (failed or abandoned upload).
func (s *AccountService) Release(ownerID string, sizeBytes int64) {
	if sizeBytes <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	remaining := s.reserved[ownerID] - sizeBytes
	if remaining <= 0 {
		delete(s.reserved, ownerID)
		return
	}
	s.reserved[ownerID] = remaining
}

// CommitReservation converts a reservation into persisted usage and re-runs
// overage detection. The reservation is held until the usage row is charged,
// so at no point between admission and commit are the bytes invisible to a
// concurrent Reserve. On failure the reservation stays in place for the
// caller to release.
func (s *AccountService) CommitReservation(ctx context.Context, ownerID string, sizeBytes int64) error {
	lock := s.lockFor(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.AdjustUsage(ctx, ownerID, sizeBytes); err != nil {
		return err
	}
	s.Release(ownerID, sizeBytes)
	s.invalidateUsage(ctx, ownerID)

	if _, err := s.evaluateLocked(ctx, ownerID, false); err != nil {
		s.logger.Warn("overage evaluation after commit failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	return nil
}

// ApplyUsageDelta adjusts persisted usage directly (deletes, archival,
// restoration) and re-runs overage detection.
func (s *AccountService) ApplyUsageDelta(ctx context.Context, ownerID string, delta int64) error {
	lock := s.lockFor(ownerID)
	lock.Lock()
	defer lock.Unlock()

	if err := s.repo.AdjustUsage(ctx, ownerID, delta); err != nil {
		return err
	}
	s.invalidateUsage(ctx, ownerID)

	if _, err := s.evaluateLocked(ctx, ownerID, false); err != nil {
		s.logger.Warn("overage evaluation after usage delta failed", zap.String("owner_id", ownerID), zap.Error(err))
	}
	return nil
}

// Evaluate runs one overage detection cycle for an owner. In dry-run mode the
// transition is computed and reported but nothing is persisted or notified.
func (s *AccountService) Evaluate(ctx context.Context, ownerID string, dryRun bool) (*OverageEvaluation, error) {
	lock := s.lockFor(ownerID)
	lock.Lock()
	defer lock.Unlock()
	return s.evaluateLocked(ctx, ownerID, dryRun)
}

// evaluateLocked applies at most one lifecycle transition per cycle. Callers
// must hold the owner lock.
func (s *AccountService) evaluateLocked(ctx context.Context, ownerID string, dryRun bool) (*OverageEvaluation, error) {
	account, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	eval := &OverageEvaluation{Account: account, Overage: account.Overage() > 0}

	if !eval.Overage {
		if account.InGracePeriod || account.RestrictionLevel > models.RestrictionNone || account.OverageNotified {
			eval.Cleared = true
			if !dryRun {
				account.InGracePeriod = false
				account.GracePeriodStart = nil
				account.GracePeriodEnd = nil
				account.RestrictionLevel = models.RestrictionNone
				account.OverageNotified = false
				if err := s.repo.Update(ctx, account); err != nil {
					return nil, fmt.Errorf("clear overage state for %s: %w", ownerID, err)
				}
				s.invalidateUsage(ctx, ownerID)
				s.logger.Info("overage cleared", zap.String("owner_id", ownerID))
				s.notify(account.OwnerID, models.EventQuotaRestored, map[string]interface{}{
					"usedBytes":  account.UsedBytes,
					"quotaBytes": account.QuotaBytes,
				})
			}
		}
		return eval, nil
	}

	switch {
	case !account.InGracePeriod && account.RestrictionLevel == models.RestrictionNone:
		eval.GraceStarted = true
		if dryRun {
			return eval, nil
		}
		start := now
		end := now.Add(s.cfg.GracePeriod)
		account.InGracePeriod = true
		account.GracePeriodStart = &start
		account.GracePeriodEnd = &end
		account.OverageNotified = true
		account.LastNotificationAt = &now
		if err := s.repo.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("start grace period for %s: %w", ownerID, err)
		}
		s.invalidateUsage(ctx, ownerID)
		s.logger.Info("grace period started",
			zap.String("owner_id", ownerID),
			zap.Int64("overage_bytes", account.Overage()),
			zap.Time("grace_period_end", end))
		s.notify(account.OwnerID, models.EventGracePeriodStarted, map[string]interface{}{
			"overageBytes":   account.Overage(),
			"gracePeriodEnd": end,
		})

	case account.InGracePeriod && account.GracePeriodEnd != nil && now.After(*account.GracePeriodEnd):
		eval.Escalated = true
		if dryRun {
			return eval, nil
		}
		account.InGracePeriod = false
		account.GracePeriodStart = nil
		account.GracePeriodEnd = nil
		account.RestrictionLevel = models.RestrictionUploadsBlocked
		account.LastNotificationAt = &now
		if err := s.repo.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("end grace period for %s: %w", ownerID, err)
		}
		s.invalidateUsage(ctx, ownerID)
		s.logger.Info("grace period lapsed, uploads blocked",
			zap.String("owner_id", ownerID),
			zap.Int64("overage_bytes", account.Overage()))
		s.notify(account.OwnerID, models.EventGracePeriodEnded, map[string]interface{}{
			"overageBytes":     account.Overage(),
			"restrictionLevel": account.RestrictionLevel,
		})

	case account.RestrictionLevel >= models.RestrictionUploadsBlocked &&
		account.RestrictionLevel < models.RestrictionArchivingTriggered &&
		account.LastNotificationAt != nil &&
		now.Sub(*account.LastNotificationAt) >= s.cfg.EscalationInterval:
		eval.Escalated = true
		if dryRun {
			return eval, nil
		}
		account.RestrictionLevel++
		account.LastNotificationAt = &now
		if err := s.repo.Update(ctx, account); err != nil {
			return nil, fmt.Errorf("escalate restriction for %s: %w", ownerID, err)
		}
		s.invalidateUsage(ctx, ownerID)
		s.logger.Info("restriction escalated",
			zap.String("owner_id", ownerID),
			zap.Int("restriction_level", account.RestrictionLevel))
		s.notify(account.OwnerID, models.EventRestrictionEscalated, map[string]interface{}{
			"overageBytes":     account.Overage(),
			"restrictionLevel": account.RestrictionLevel,
		})
	}

	return eval, nil
}

// UpdateQuota applies a plan change. The overage clock resets: grace and
// restriction state are wiped, then detection reruns from scratch against the
// new quota, so a downgraded account that is now over gets a fresh grace
// period rather than inheriting stale restrictions.
func (s *AccountService) UpdateQuota(ctx context.Context, ownerID string, quotaBytes int64, isPremium bool) (*OverageEvaluation, error) {
	lock := s.lockFor(ownerID)
	lock.Lock()
	defer lock.Unlock()

	account, err := s.GetOrCreate(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	if account.QuotaBytes == quotaBytes && account.IsPremium == isPremium {
		return &OverageEvaluation{Account: account, Overage: account.Overage() > 0}, nil
	}

	oldQuota := account.QuotaBytes
	account.QuotaBytes = quotaBytes
	account.IsPremium = isPremium
	account.InGracePeriod = false
	account.GracePeriodStart = nil
	account.GracePeriodEnd = nil
	account.RestrictionLevel = models.RestrictionNone
	account.OverageNotified = false
	if err := s.repo.Update(ctx, account); err != nil {
		return nil, fmt.Errorf("apply plan change for %s: %w", ownerID, err)
	}
	s.invalidateUsage(ctx, ownerID)
	s.logger.Info("quota updated",
		zap.String("owner_id", ownerID),
		zap.Int64("old_quota_bytes", oldQuota),
		zap.Int64("new_quota_bytes", quotaBytes),
		zap.Bool("is_premium", isPremium))

	return s.evaluateLocked(ctx, ownerID, false)
}

func (s *AccountService) notify(ownerID string, event models.NotificationEvent, payload map[string]interface{}) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(ownerID, event, payload)
}
