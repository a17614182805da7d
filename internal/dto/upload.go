package dto

import "github.com/vidkeep/storage-api/internal/models"

// BeginUploadRequest starts a chunked upload session.
type BeginUploadRequest struct {
	OwnerID        string `json:"ownerId" validate:"required"`
	Filename       string `json:"filename" validate:"required"`
	TotalSizeBytes int64  `json:"totalSizeBytes" validate:"required,gt=0"`
	ChunkSizeBytes int64  `json:"chunkSizeBytes" validate:"required,gt=0"`
	Priority       int    `json:"priority" validate:"omitempty,min=1,max=4"`
}

// UploadSessionResponse reports session progress to the client.
type UploadSessionResponse struct {
	models.UploadSession
	RemainingChunks int `json:"remainingChunks"`
}

// ChunkReceipt acknowledges one accepted chunk.
type ChunkReceipt struct {
	SessionID      string                     `json:"sessionId"`
	ChunkNumber    int                        `json:"chunkNumber"`
	ChunksReceived int                        `json:"chunksReceived"`
	TotalChunks    int                        `json:"totalChunks"`
	Status         models.UploadSessionStatus `json:"status"`
	AssetID        *string                    `json:"assetId,omitempty"`
}
