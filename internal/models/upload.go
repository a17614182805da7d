package models

import "time"

// UploadSessionStatus describes the state of a chunked upload attempt.
type UploadSessionStatus string

const (
	UploadStatusUploading UploadSessionStatus = "UPLOADING"
	UploadStatusComplete  UploadSessionStatus = "COMPLETE"
	UploadStatusFailed    UploadSessionStatus = "FAILED"
	UploadStatusExpired   UploadSessionStatus = "EXPIRED"
)

// UploadSession represents one chunked upload attempt.
type UploadSession struct {
	ID             string              `db:"id" json:"id"`
	OwnerID        string              `db:"owner_id" json:"ownerId"`
	Filename       string              `db:"filename" json:"filename"`
	TotalSizeBytes int64               `db:"total_size_bytes" json:"totalSizeBytes"`
	ChunkSizeBytes int64               `db:"chunk_size_bytes" json:"chunkSizeBytes"`
	TotalChunks    int                 `db:"total_chunks" json:"totalChunks"`
	ChunksReceived int                 `db:"chunks_received" json:"chunksReceived"`
	Priority       AssetPriority       `db:"priority" json:"priority"`
	Status         UploadSessionStatus `db:"status" json:"status"`
	AssetID        *string             `db:"asset_id" json:"assetId,omitempty"`
	CreatedAt      time.Time           `db:"created_at" json:"createdAt"`
	ExpiresAt      time.Time           `db:"expires_at" json:"expiresAt"`
}

// UploadChunk is one physical fragment of an upload session.
type UploadChunk struct {
	SessionID   string    `db:"session_id" json:"sessionId"`
	ChunkNumber int       `db:"chunk_number" json:"chunkNumber"`
	SizeBytes   int64     `db:"size_bytes" json:"sizeBytes"`
	BlobID      string    `db:"blob_id" json:"-"`
	ReceivedAt  time.Time `db:"received_at" json:"receivedAt"`
}
