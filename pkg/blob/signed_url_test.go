package blob

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignedURLSignerGenerateAndParse(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Hour)
	token, expiresAt, err := signer.Generate("asset-1", "2026/01/blob-1")
	require.NoError(t, err)
	require.NotEmpty(t, token)
	require.False(t, expiresAt.IsZero())

	assetID, blobID, parsedExpiry, err := signer.Parse(token, false)
	require.NoError(t, err)
	require.Equal(t, "asset-1", assetID)
	require.Equal(t, "2026/01/blob-1", blobID)
	require.WithinDuration(t, expiresAt, parsedExpiry, time.Second)
}

func TestSignedURLSignerExpired(t *testing.T) {
	signer := NewSignedURLSigner("secret", time.Millisecond*10)
	token, _, err := signer.Generate("asset-1", "2026/01/blob-1")
	require.NoError(t, err)
	time.Sleep(time.Millisecond * 20)

	_, _, _, err = signer.Parse(token, false)
	require.Error(t, err)

	assetID, blobID, _, err := signer.Parse(token, true)
	require.NoError(t, err)
	require.Equal(t, "asset-1", assetID)
	require.Equal(t, "2026/01/blob-1", blobID)
}

func TestLocalStoreRoundTrip(t *testing.T) {
	store, err := NewLocalStore(t.TempDir())
	require.NoError(t, err)

	payload := []byte("chunk payload")
	id, err := store.Put(context.Background(), payload)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	got, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	require.Equal(t, payload, got)

	require.NoError(t, store.Delete(context.Background(), id))
	_, err = store.Get(context.Background(), id)
	require.Error(t, err)
}
