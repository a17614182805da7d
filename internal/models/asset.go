package models

import "time"

// AssetStatus describes the lifecycle state of a stored asset.
type AssetStatus string

const (
	AssetStatusActive   AssetStatus = "ACTIVE"
	AssetStatusArchived AssetStatus = "ARCHIVED"
	AssetStatusDeleted  AssetStatus = "DELETED"
)

// AssetPriority ranks how strongly an asset resists archival eviction.
type AssetPriority int

const (
	AssetPriorityLow      AssetPriority = 1
	AssetPriorityNormal   AssetPriority = 2
	AssetPriorityHigh     AssetPriority = 3
	AssetPriorityCritical AssetPriority = 4
)

// StoredAsset represents one uploaded file owned by an account.
type StoredAsset struct {
	ID               string        `db:"id" json:"id"`
	OwnerID          string        `db:"owner_id" json:"ownerId"`
	Filename         string        `db:"filename" json:"filename"`
	BlobID           string        `db:"blob_id" json:"-"`
	SizeBytes        int64         `db:"size_bytes" json:"sizeBytes"`
	Status           AssetStatus   `db:"status" json:"status"`
	Priority         AssetPriority `db:"priority" json:"priority"`
	CreatedAt        time.Time     `db:"created_at" json:"createdAt"`
	LastAccessedAt   *time.Time    `db:"last_accessed_at" json:"lastAccessedAt,omitempty"`
	AccessCount      int64         `db:"access_count" json:"accessCount"`
	ArchivedAt       *time.Time    `db:"archived_at" json:"archivedAt,omitempty"`
	ArchiveExpiresAt *time.Time    `db:"archive_expires_at" json:"archiveExpiresAt,omitempty"`
}

// AssetFilter narrows asset listing queries.
type AssetFilter struct {
	OwnerID string
	Status  AssetStatus
	Limit   int
	Offset  int
}
