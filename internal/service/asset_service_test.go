package service

import (
	"context"
	"database/sql"
	"io"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/blob"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
)

type assetStoreStub struct {
	assets  map[string]*models.StoredAsset
	touched []string
}

func newAssetStoreStub() *assetStoreStub {
	return &assetStoreStub{assets: make(map[string]*models.StoredAsset)}
}

func (s *assetStoreStub) GetByID(_ context.Context, id string) (*models.StoredAsset, error) {
	asset, ok := s.assets[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *asset
	return &copied, nil
}

func (s *assetStoreStub) ListByOwnerAndStatus(_ context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error) {
	var out []models.StoredAsset
	for _, asset := range s.assets {
		if asset.OwnerID == ownerID && asset.Status == status {
			out = append(out, *asset)
		}
	}
	return out, nil
}

func (s *assetStoreStub) MarkDeleted(_ context.Context, id string) error {
	asset, ok := s.assets[id]
	if !ok {
		return sql.ErrNoRows
	}
	asset.Status = models.AssetStatusDeleted
	return nil
}

func (s *assetStoreStub) TouchAccess(_ context.Context, id string, at time.Time) error {
	asset, ok := s.assets[id]
	if !ok {
		return sql.ErrNoRows
	}
	asset.AccessCount++
	asset.LastAccessedAt = &at
	s.touched = append(s.touched, id)
	return nil
}

func newAssetFixture(t *testing.T) (*AssetService, *assetStoreStub, *blob.LocalStore, *accountStoreStub) {
	t.Helper()
	store, err := blob.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	assets := newAssetStoreStub()
	accountsStore := newAccountStoreStub()
	accounts := NewAccountService(accountsStore, nil, nil, nil, quotaTestConfig(), nil)
	signer := blob.NewSignedURLSigner("test-secret", 30*time.Minute)
	svc := NewAssetService(assets, store, signer, accounts, "/api/v1", nil)
	return svc, assets, store, accountsStore
}

func storeTestAsset(t *testing.T, assets *assetStoreStub, blobs *blob.LocalStore, id, ownerID string, payload []byte) *models.StoredAsset {
	t.Helper()
	blobID, err := blobs.Put(context.Background(), payload)
	require.NoError(t, err)
	asset := &models.StoredAsset{
		ID:        id,
		OwnerID:   ownerID,
		Filename:  id + ".mp4",
		BlobID:    blobID,
		SizeBytes: int64(len(payload)),
		Status:    models.AssetStatusActive,
		Priority:  models.AssetPriorityNormal,
		CreatedAt: time.Now().UTC(),
	}
	assets.assets[id] = asset
	return asset
}

func TestDownloadFlowRecordsAccess(t *testing.T) {
	svc, assets, blobs, accountsStore := newAssetFixture(t)
	accountsStore.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}
	payload := []byte("video payload bytes")
	storeTestAsset(t, assets, blobs, "asset-1", "owner-1", payload)

	link, err := svc.CreateDownloadURL(context.Background(), "asset-1")
	require.NoError(t, err)
	require.Contains(t, link.DownloadURL, "/api/v1/assets/asset-1/download?token=")

	parsed, err := url.Parse(link.DownloadURL[strings.Index(link.DownloadURL, "?"):])
	require.NoError(t, err)
	token := parsed.Query().Get("token")
	require.NotEmpty(t, token)

	asset, file, err := svc.Download(context.Background(), token)
	require.NoError(t, err)
	defer file.Close() //nolint:errcheck

	served, err := io.ReadAll(file)
	require.NoError(t, err)
	require.Equal(t, payload, served)
	require.Equal(t, "asset-1", asset.ID)

	require.Equal(t, []string{"asset-1"}, assets.touched)
	require.Equal(t, int64(1), assets.assets["asset-1"].AccessCount)
}

func TestCreateDownloadURLBlockedAtSharingRestriction(t *testing.T) {
	svc, assets, blobs, accountsStore := newAssetFixture(t)
	accountsStore.accounts["owner-1"] = &models.StorageAccount{
		OwnerID:          "owner-1",
		QuotaBytes:       100 * mb,
		RestrictionLevel: models.RestrictionSharingBlocked,
	}
	storeTestAsset(t, assets, blobs, "asset-1", "owner-1", []byte("data"))

	_, err := svc.CreateDownloadURL(context.Background(), "asset-1")
	require.ErrorIs(t, err, appErrors.ErrSharingBlocked)
}

func TestCreateDownloadURLRejectsArchivedAsset(t *testing.T) {
	svc, assets, blobs, accountsStore := newAssetFixture(t)
	accountsStore.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}
	asset := storeTestAsset(t, assets, blobs, "asset-1", "owner-1", []byte("data"))
	asset.Status = models.AssetStatusArchived

	_, err := svc.CreateDownloadURL(context.Background(), "asset-1")
	require.Error(t, err)
}

func TestDownloadRejectsTamperedToken(t *testing.T) {
	svc, assets, blobs, accountsStore := newAssetFixture(t)
	accountsStore.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb}
	storeTestAsset(t, assets, blobs, "asset-1", "owner-1", []byte("data"))

	_, _, err := svc.Download(context.Background(), "asset-1.123.bogus.sig")
	require.Error(t, err)
	require.Empty(t, assets.touched)
}

func TestDeleteActiveAssetReturnsBytesToQuota(t *testing.T) {
	svc, assets, blobs, accountsStore := newAssetFixture(t)
	accountsStore.accounts["owner-1"] = &models.StorageAccount{OwnerID: "owner-1", QuotaBytes: 100 * mb, UsedBytes: 10 * mb}
	payload := make([]byte, 2*mb)
	asset := storeTestAsset(t, assets, blobs, "asset-1", "owner-1", payload)

	require.NoError(t, svc.Delete(context.Background(), "asset-1"))
	require.Equal(t, models.AssetStatusDeleted, assets.assets["asset-1"].Status)
	require.Equal(t, 8*mb, accountsStore.accounts["owner-1"].UsedBytes)

	_, err := blobs.Get(context.Background(), asset.BlobID)
	require.Error(t, err, "blob is gone after delete")

	// Deleting twice is a conflict.
	require.Error(t, svc.Delete(context.Background(), "asset-1"))
}
