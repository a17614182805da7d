package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

type accountStoreStub struct {
	accounts map[string]*models.StorageAccount
	updates  int
	getHook  func(ownerID string)
}

func newAccountStoreStub() *accountStoreStub {
	return &accountStoreStub{accounts: make(map[string]*models.StorageAccount)}
}

func (s *accountStoreStub) Create(_ context.Context, account *models.StorageAccount) error {
	stored := *account
	s.accounts[account.OwnerID] = &stored
	return nil
}

func (s *accountStoreStub) GetByOwner(_ context.Context, ownerID string) (*models.StorageAccount, error) {
	if s.getHook != nil {
		s.getHook(ownerID)
	}
	account, ok := s.accounts[ownerID]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *account
	return &copied, nil
}

func (s *accountStoreStub) ListOwnerIDs(_ context.Context) ([]string, error) {
	ids := make([]string, 0, len(s.accounts))
	for id := range s.accounts {
		ids = append(ids, id)
	}
	return ids, nil
}

func (s *accountStoreStub) Update(_ context.Context, account *models.StorageAccount) error {
	if _, ok := s.accounts[account.OwnerID]; !ok {
		return sql.ErrNoRows
	}
	stored := *account
	s.accounts[account.OwnerID] = &stored
	s.updates++
	return nil
}

func (s *accountStoreStub) AdjustUsage(_ context.Context, ownerID string, delta int64) error {
	account, ok := s.accounts[ownerID]
	if !ok || account.UsedBytes+delta < 0 {
		return sql.ErrNoRows
	}
	account.UsedBytes += delta
	return nil
}

type notifierStub struct {
	events []models.NotificationEvent
}

func (n *notifierStub) Notify(_ string, event models.NotificationEvent, _ map[string]interface{}) {
	n.events = append(n.events, event)
}

func quotaTestConfig() config.QuotaConfig {
	return config.QuotaConfig{
		FreeTierBytes:      100 * mb,
		PremiumTierBytes:   1000 * mb,
		GracePeriod:        30 * 24 * time.Hour,
		EscalationInterval: 30 * 24 * time.Hour,
		ArchiveRetention:   90 * 24 * time.Hour,
	}
}

func newAccountFixture(t *testing.T) (*AccountService, *accountStoreStub, *notifierStub, *time.Time) {
	t.Helper()
	store := newAccountStoreStub()
	notes := &notifierStub{}
	svc := NewAccountService(store, nil, notes, nil, quotaTestConfig(), nil)
	clock := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return clock }
	return svc, store, notes, &clock
}

func TestEvaluateStartsGracePeriodOnOverage(t *testing.T) {
	svc, store, notes, clock := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	eval, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	require.True(t, eval.Overage)
	require.True(t, eval.GraceStarted)

	account := store.accounts["owner-1"]
	require.True(t, account.InGracePeriod)
	require.Equal(t, models.RestrictionNone, account.RestrictionLevel)
	require.NotNil(t, account.GracePeriodEnd)
	require.Equal(t, clock.Add(30*24*time.Hour), *account.GracePeriodEnd)
	require.Equal(t, []models.NotificationEvent{models.EventGracePeriodStarted}, notes.events)
}

func TestEvaluateIsIdempotentWithinGracePeriod(t *testing.T) {
	svc, store, notes, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	_, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	firstEnd := *store.accounts["owner-1"].GracePeriodEnd

	eval, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	require.False(t, eval.GraceStarted)
	require.False(t, eval.Escalated)
	require.Equal(t, firstEnd, *store.accounts["owner-1"].GracePeriodEnd)
	require.Len(t, notes.events, 1, "no duplicate notification for an unchanged state")
}

func TestEvaluateEscalatesAfterGraceLapse(t *testing.T) {
	svc, store, notes, clock := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	_, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)

	*clock = clock.Add(31 * 24 * time.Hour)
	eval, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	require.True(t, eval.Escalated)

	account := store.accounts["owner-1"]
	require.False(t, account.InGracePeriod)
	require.Nil(t, account.GracePeriodEnd)
	require.Equal(t, models.RestrictionUploadsBlocked, account.RestrictionLevel)
	require.Equal(t, models.EventGracePeriodEnded, notes.events[len(notes.events)-1])
}

func TestEvaluateEscalationIsMonotonicAndCapped(t *testing.T) {
	svc, store, _, clock := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	levels := []int{0, 1, 2, 3, 3}
	for i := 1; i < len(levels); i++ {
		*clock = clock.Add(31 * 24 * time.Hour)
		_, err := svc.Evaluate(context.Background(), "owner-1", false)
		require.NoError(t, err)
		require.Equal(t, levels[i], store.accounts["owner-1"].RestrictionLevel, "cycle %d", i)
	}
}

func TestEvaluateClearsWhenBackUnderQuota(t *testing.T) {
	svc, store, notes, clock := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	_, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	*clock = clock.Add(31 * 24 * time.Hour)
	_, err = svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	require.Equal(t, models.RestrictionUploadsBlocked, store.accounts["owner-1"].RestrictionLevel)

	store.accounts["owner-1"].UsedBytes = 90 * mb
	eval, err := svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	require.True(t, eval.Cleared)

	account := store.accounts["owner-1"]
	require.Equal(t, models.RestrictionNone, account.RestrictionLevel)
	require.False(t, account.InGracePeriod)
	require.False(t, account.OverageNotified)
	require.Equal(t, models.EventQuotaRestored, notes.events[len(notes.events)-1])

	// Re-evaluating a clean account is a no-op.
	updatesBefore := store.updates
	eval, err = svc.Evaluate(context.Background(), "owner-1", false)
	require.NoError(t, err)
	require.False(t, eval.Cleared)
	require.Equal(t, updatesBefore, store.updates)
}

func TestEvaluateDryRunPersistsNothing(t *testing.T) {
	svc, store, notes, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 120 * mb}

	eval, err := svc.Evaluate(context.Background(), "owner-1", true)
	require.NoError(t, err)
	require.True(t, eval.GraceStarted)
	require.False(t, store.accounts["owner-1"].InGracePeriod)
	require.Zero(t, store.updates)
	require.Empty(t, notes.events)
}

func TestReserveEnforcesQuotaAcrossPendingUploads(t *testing.T) {
	svc, store, _, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}

	require.NoError(t, svc.Reserve(context.Background(), "owner-1", 60*mb))
	err := svc.Reserve(context.Background(), "owner-1", 60*mb)
	require.ErrorIs(t, err, appErrors.ErrQuotaExceeded)

	svc.Release("owner-1", 60*mb)
	require.NoError(t, svc.Reserve(context.Background(), "owner-1", 60*mb))
}

func TestReserveRejectsBlockedAccount(t *testing.T) {
	svc, store, _, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{
		OwnerID:          "owner-1",
		QuotaBytes:       100 * mb,
		RestrictionLevel: models.RestrictionUploadsBlocked,
	}

	err := svc.Reserve(context.Background(), "owner-1", mb)
	require.ErrorIs(t, err, appErrors.ErrUploadsBlocked)
}

func TestCommitReservationChargesUsage(t *testing.T) {
	svc, store, _, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}

	require.NoError(t, svc.Reserve(context.Background(), "owner-1", 40*mb))
	require.NoError(t, svc.CommitReservation(context.Background(), "owner-1", 40*mb))
	require.Equal(t, 40*mb, store.accounts["owner-1"].UsedBytes)

	// The reservation is gone, so the remaining headroom is quota - used.
	require.NoError(t, svc.Reserve(context.Background(), "owner-1", 60*mb))
}

func TestCommitReservationHoldsReservationUntilCharged(t *testing.T) {
	svc, store, _, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}
	require.NoError(t, svc.Reserve(context.Background(), "owner-1", 100*mb))

	loading := make(chan struct{})
	proceed := make(chan struct{})
	var once sync.Once
	store.getHook = func(string) {
		once.Do(func() {
			close(loading)
			<-proceed
		})
	}

	// A second admission stalls while it reads the account row.
	reserveDone := make(chan error, 1)
	go func() {
		reserveDone <- svc.Reserve(context.Background(), "owner-1", 100*mb)
	}()
	<-loading

	// The commit for the first upload lands while that admission is mid-flight.
	commitDone := make(chan error, 1)
	go func() {
		commitDone <- svc.CommitReservation(context.Background(), "owner-1", 100*mb)
	}()
	time.Sleep(50 * time.Millisecond)
	close(proceed)

	// At no point are the 100MB both released and uncharged, so the second
	// admission must see a full quota either way.
	require.ErrorIs(t, <-reserveDone, appErrors.ErrQuotaExceeded)
	require.NoError(t, <-commitDone)
	require.Equal(t, 100*mb, store.accounts["owner-1"].UsedBytes)
}

func TestUpdateQuotaDowngradeGetsFreshGracePeriod(t *testing.T) {
	svc, store, notes, _ := newAccountFixture(t)
	store.accounts["owner-1"] = &models.StorageAccount{
		OwnerID:          "owner-1",
		QuotaBytes:       1000 * mb,
		UsedBytes:        300 * mb,
		IsPremium:        true,
		RestrictionLevel: models.RestrictionSharingBlocked,
	}

	eval, err := svc.UpdateQuota(context.Background(), "owner-1", 100*mb, false)
	require.NoError(t, err)
	require.True(t, eval.Overage)
	require.True(t, eval.GraceStarted)

	account := store.accounts["owner-1"]
	require.False(t, account.IsPremium)
	require.Equal(t, 100*mb, account.QuotaBytes)
	require.True(t, account.InGracePeriod)
	require.Equal(t, models.RestrictionNone, account.RestrictionLevel)
	require.Equal(t, models.EventGracePeriodStarted, notes.events[len(notes.events)-1])
}

func TestGetOrCreateProvisionsFreeTier(t *testing.T) {
	svc, store, _, _ := newAccountFixture(t)

	account, err := svc.GetOrCreate(context.Background(), "new-owner")
	require.NoError(t, err)
	require.Equal(t, 100*mb, account.QuotaBytes)
	require.False(t, account.IsPremium)
	require.Contains(t, store.accounts, "new-owner")
}
