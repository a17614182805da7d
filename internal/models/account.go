package models

import "time"

// Restriction levels applied once an overage grace period lapses.
const (
	RestrictionNone               = 0
	RestrictionUploadsBlocked     = 1
	RestrictionSharingBlocked     = 2
	RestrictionArchivingTriggered = 3
)

// StorageAccount tracks quota, usage and the overage restriction state for one owner.
type StorageAccount struct {
	OwnerID            string     `db:"owner_id" json:"ownerId"`
	UsedBytes          int64      `db:"used_bytes" json:"usedBytes"`
	QuotaBytes         int64      `db:"quota_bytes" json:"quotaBytes"`
	IsPremium          bool       `db:"is_premium" json:"isPremium"`
	GracePeriodStart   *time.Time `db:"grace_period_start" json:"gracePeriodStart,omitempty"`
	GracePeriodEnd     *time.Time `db:"grace_period_end" json:"gracePeriodEnd,omitempty"`
	InGracePeriod      bool       `db:"in_grace_period" json:"inGracePeriod"`
	RestrictionLevel   int        `db:"restriction_level" json:"restrictionLevel"`
	OverageNotified    bool       `db:"overage_notified" json:"overageNotified"`
	LastNotificationAt *time.Time `db:"last_notification_at" json:"lastNotificationAt,omitempty"`
	CreatedAt          time.Time  `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time  `db:"updated_at" json:"updatedAt"`
}

// Overage reports how many bytes the account currently exceeds its quota by.
func (a *StorageAccount) Overage() int64 {
	if a.UsedBytes <= a.QuotaBytes {
		return 0
	}
	return a.UsedBytes - a.QuotaBytes
}

// UploadsBlocked reports whether new uploads are rejected for this account.
func (a *StorageAccount) UploadsBlocked() bool {
	return a.RestrictionLevel >= RestrictionUploadsBlocked
}

// SharingBlocked reports whether share links are rejected for this account.
func (a *StorageAccount) SharingBlocked() bool {
	return a.RestrictionLevel >= RestrictionSharingBlocked
}

// UsageSnapshot is the cached, read-only view of an account served by the usage endpoint.
type UsageSnapshot struct {
	OwnerID          string     `json:"ownerId"`
	UsedBytes        int64      `json:"usedBytes"`
	QuotaBytes       int64      `json:"quotaBytes"`
	AvailableBytes   int64      `json:"availableBytes"`
	UsagePercent     float64    `json:"usagePercent"`
	IsPremium        bool       `json:"isPremium"`
	RestrictionLevel int        `json:"restrictionLevel"`
	InGracePeriod    bool       `json:"inGracePeriod"`
	GracePeriodEnd   *time.Time `json:"gracePeriodEnd,omitempty"`
	GeneratedAt      time.Time  `json:"generatedAt"`
}
