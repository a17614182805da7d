package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
)

type archiveAssetsStub struct {
	active   map[string][]models.StoredAsset
	expired  []models.StoredAsset
	archived []string
	deleted  []string
}

func newArchiveAssetsStub() *archiveAssetsStub {
	return &archiveAssetsStub{active: make(map[string][]models.StoredAsset)}
}

func (s *archiveAssetsStub) ListByOwnerAndStatus(_ context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error) {
	if status != models.AssetStatusActive {
		return nil, nil
	}
	var out []models.StoredAsset
	for _, asset := range s.active[ownerID] {
		if !contains(s.archived, asset.ID) {
			out = append(out, asset)
		}
	}
	return out, nil
}

func (s *archiveAssetsStub) Archive(_ context.Context, id string, _, _ time.Time) error {
	s.archived = append(s.archived, id)
	return nil
}

func (s *archiveAssetsStub) ListArchiveExpired(_ context.Context, _ time.Time) ([]models.StoredAsset, error) {
	return s.expired, nil
}

func (s *archiveAssetsStub) DeletePermanently(_ context.Context, id string) error {
	s.deleted = append(s.deleted, id)
	return nil
}

func contains(ids []string, id string) bool {
	for _, candidate := range ids {
		if candidate == id {
			return true
		}
	}
	return false
}

type sessionExpirerStub struct {
	expired int
}

func (s *sessionExpirerStub) ExpireStaleSessions(_ context.Context) (int, error) {
	return s.expired, nil
}

type failingSyncerStub struct {
	err error
}

func (s *failingSyncerStub) Sync(_ context.Context, _ string) (*models.StorageAccount, error) {
	return nil, s.err
}

type failingBlobDeleter struct {
	err error
}

func (d *failingBlobDeleter) Delete(_ context.Context, _ string) error {
	return d.err
}

type failingAccounts struct {
	maintenanceAccounts
	failOwner string
}

func (f *failingAccounts) Evaluate(ctx context.Context, ownerID string, dryRun bool) (*OverageEvaluation, error) {
	if ownerID == f.failOwner {
		return nil, errors.New("account row corrupted")
	}
	return f.maintenanceAccounts.Evaluate(ctx, ownerID, dryRun)
}

func maintenanceConfig() config.MaintenanceConfig {
	return config.MaintenanceConfig{Enabled: true, Interval: time.Hour}
}

func newMaintenanceFixture(t *testing.T) (*MaintenanceService, *accountStoreStub, *archiveAssetsStub, *notifierStub, *time.Time) {
	t.Helper()
	store := newAccountStoreStub()
	notes := &notifierStub{}
	accounts := NewAccountService(store, nil, notes, nil, quotaTestConfig(), nil)
	clock := time.Date(2026, 5, 1, 3, 0, 0, 0, time.UTC)
	accounts.now = func() time.Time { return clock }

	assets := newArchiveAssetsStub()
	svc := NewMaintenanceService(accounts, nil, assets, newBlobStoreStub(), &sessionExpirerStub{expired: 2}, notes, nil, quotaTestConfig(), maintenanceConfig(), nil)
	svc.now = func() time.Time { return clock }
	return svc, store, assets, notes, &clock
}

func activeAssetForSweep(id, ownerID string, sizeBytes int64, ageDays int, now time.Time) models.StoredAsset {
	return models.StoredAsset{
		ID:        id,
		OwnerID:   ownerID,
		SizeBytes: sizeBytes,
		Status:    models.AssetStatusActive,
		Priority:  models.AssetPriorityNormal,
		CreatedAt: now.Add(-time.Duration(ageDays) * 24 * time.Hour),
	}
}

func TestRunSweepArchivesAtFinalRestrictionLevel(t *testing.T) {
	svc, store, assets, notes, clock := newMaintenanceFixture(t)
	lastNote := clock.Add(-24 * time.Hour)
	store.accounts["owner-1"] = &models.StorageAccount{
		OwnerID:            "owner-1",
		QuotaBytes:         100 * mb,
		UsedBytes:          150 * mb,
		RestrictionLevel:   models.RestrictionArchivingTriggered,
		OverageNotified:    true,
		LastNotificationAt: &lastNote,
	}
	assets.active["owner-1"] = []models.StoredAsset{
		activeAssetForSweep("a", "owner-1", 30*mb, 300, *clock),
		activeAssetForSweep("b", "owner-1", 30*mb, 200, *clock),
		activeAssetForSweep("c", "owner-1", 30*mb, 100, *clock),
	}

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, report.AccountsChecked)
	require.Equal(t, 1, report.OverageDetected)
	require.Equal(t, 2, report.AssetsArchived)
	require.Equal(t, []string{"a", "b"}, assets.archived, "oldest, highest-scoring assets go first")

	// 150MB - 60MB archived = 90MB, back under quota, so the restriction clears.
	account := store.accounts["owner-1"]
	require.Equal(t, 90*mb, account.UsedBytes)
	require.Equal(t, models.RestrictionNone, account.RestrictionLevel)
	require.Contains(t, notes.events, models.EventAssetsArchived)
	require.Contains(t, notes.events, models.EventQuotaRestored)

	require.Equal(t, 2, report.SessionsExpired)
}

func TestRunSweepForceArchivingOverridesLevel(t *testing.T) {
	svc, store, assets, _, clock := newMaintenanceFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 130 * mb}
	assets.active["owner-1"] = []models.StoredAsset{
		activeAssetForSweep("a", "owner-1", 40*mb, 300, *clock),
	}

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{ForceArchiving: true})
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, assets.archived)
	require.Equal(t, 1, report.AssetsArchived)
	require.Equal(t, 90*mb, store.accounts["owner-1"].UsedBytes)
}

func TestRunSweepDryRunTouchesNothing(t *testing.T) {
	svc, store, assets, notes, clock := newMaintenanceFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{
		OwnerID:          "owner-1",
		QuotaBytes:       100 * mb,
		UsedBytes:        150 * mb,
		RestrictionLevel: models.RestrictionArchivingTriggered,
	}
	assets.active["owner-1"] = []models.StoredAsset{
		activeAssetForSweep("a", "owner-1", 60*mb, 300, *clock),
	}
	archivedAt := clock.Add(-100 * 24 * time.Hour)
	assets.expired = []models.StoredAsset{{ID: "old", Status: models.AssetStatusArchived, ArchivedAt: &archivedAt}}

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{
		DryRun:         true,
		CleanupExpired: true,
	})
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 1, report.OverageDetected)
	require.Equal(t, 1, report.AssetsArchived, "dry run reports what would be archived")
	require.Equal(t, 1, report.AssetsDeleted)
	require.Zero(t, report.SessionsExpired)

	require.Empty(t, assets.archived)
	require.Empty(t, assets.deleted)
	require.Equal(t, 150*mb, store.accounts["owner-1"].UsedBytes)
	require.Zero(t, store.updates)
	require.Empty(t, notes.events)
}

func TestRunSweepCleansExpiredArchives(t *testing.T) {
	svc, store, assets, _, clock := newMaintenanceFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 10 * mb}
	archivedAt := clock.Add(-100 * 24 * time.Hour)
	assets.expired = []models.StoredAsset{
		{ID: "old-1", OwnerID: "owner-1", BlobID: "blob-old-1", Status: models.AssetStatusArchived, ArchivedAt: &archivedAt},
		{ID: "old-2", OwnerID: "owner-1", BlobID: "blob-old-2", Status: models.AssetStatusArchived, ArchivedAt: &archivedAt},
	}

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{CleanupExpired: true})
	require.NoError(t, err)
	require.Equal(t, 2, report.AssetsDeleted)
	require.Equal(t, []string{"old-1", "old-2"}, assets.deleted)
	// Usage is untouched; archived bytes were returned at archival time.
	require.Equal(t, 10*mb, store.accounts["owner-1"].UsedBytes)
}

func TestRunSweepOneAccountFailureDoesNotAbort(t *testing.T) {
	store := newAccountStoreStub()
	accounts := NewAccountService(store, nil, nil, nil, quotaTestConfig(), nil)
	store.accounts["owner-bad"] = &models.StorageAccount{OwnerID: "owner-bad", QuotaBytes: 100 * mb}
	store.accounts["owner-good"] = &models.StorageAccount{OwnerID: "owner-good", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	wrapped := &failingAccounts{maintenanceAccounts: accounts, failOwner: "owner-bad"}
	svc := NewMaintenanceService(wrapped, nil, newArchiveAssetsStub(), nil, nil, nil, nil, quotaTestConfig(), maintenanceConfig(), nil)

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, report.AccountsChecked)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "owner-bad", report.Errors[0].OwnerID)
	require.Equal(t, 1, report.OverageDetected, "the healthy account is still processed")
	require.True(t, store.accounts["owner-good"].InGracePeriod)
}

func TestRunSweepReportsBillingSyncFailure(t *testing.T) {
	store := newAccountStoreStub()
	accounts := NewAccountService(store, nil, nil, nil, quotaTestConfig(), nil)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	subs := &failingSyncerStub{err: errors.New("billing gateway timeout")}
	svc := NewMaintenanceService(accounts, subs, newArchiveAssetsStub(), nil, nil, nil, nil, quotaTestConfig(), maintenanceConfig(), nil)

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{})
	require.NoError(t, err)
	require.Len(t, report.Errors, 1)
	require.Equal(t, "owner-1", report.Errors[0].OwnerID)
	require.Contains(t, report.Errors[0].Message, "billing gateway timeout")

	// The account is still evaluated against its last known quota.
	require.Equal(t, 1, report.OverageDetected)
	require.True(t, store.accounts["owner-1"].InGracePeriod)
}

func TestRunSweepKeepsExpiredArchiveWhenBlobDeleteFails(t *testing.T) {
	store := newAccountStoreStub()
	accounts := NewAccountService(store, nil, nil, nil, quotaTestConfig(), nil)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 10 * mb}

	assets := newArchiveAssetsStub()
	archivedAt := time.Now().UTC().Add(-100 * 24 * time.Hour)
	assets.expired = []models.StoredAsset{
		{ID: "old-1", OwnerID: "owner-1", BlobID: "blob-old-1", Status: models.AssetStatusArchived, ArchivedAt: &archivedAt},
	}

	svc := NewMaintenanceService(accounts, nil, assets, &failingBlobDeleter{err: errors.New("blob store offline")}, nil, nil, nil, quotaTestConfig(), maintenanceConfig(), nil)

	report, err := svc.RunSweep(context.Background(), models.MaintenanceOptions{CleanupExpired: true})
	require.NoError(t, err)
	require.Zero(t, report.AssetsDeleted)
	require.Empty(t, assets.deleted, "the record stays so the next sweep retries the blob")
}

func TestRunSweepStopsOnCancelledContext(t *testing.T) {
	svc, store, _, _, _ := newMaintenanceFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	report, err := svc.RunSweep(ctx, models.MaintenanceOptions{})
	require.ErrorIs(t, err, context.Canceled)
	require.Zero(t, report.AccountsChecked)
}
