package dto

import "github.com/vidkeep/storage-api/internal/models"

// AssetFilter captures asset listing query parameters.
type AssetFilter struct {
	OwnerID string
	Status  models.AssetStatus
	Limit   int
	Offset  int
}

// AssetDownloadResponse enriches asset metadata with a signed download URL.
type AssetDownloadResponse struct {
	models.StoredAsset
	DownloadURL string `json:"downloadUrl"`
}
