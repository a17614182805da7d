package models

// NotificationEvent is the closed set of events delivered to the notification service.
type NotificationEvent string

const (
	EventGracePeriodStarted   NotificationEvent = "GRACE_PERIOD_STARTED"
	EventGracePeriodEnded     NotificationEvent = "GRACE_PERIOD_ENDED"
	EventRestrictionEscalated NotificationEvent = "RESTRICTION_ESCALATED"
	EventQuotaRestored        NotificationEvent = "QUOTA_RESTORED"
	EventAssetsArchived       NotificationEvent = "ASSETS_ARCHIVED"
	EventAssetsRestored       NotificationEvent = "ASSETS_RESTORED"
)

// Notification is the fire-and-forget message handed to the notification service.
// Rendering and templating are entirely the receiving service's concern.
type Notification struct {
	OwnerID string                 `json:"ownerId"`
	Event   NotificationEvent      `json:"event"`
	Payload map[string]interface{} `json:"payload,omitempty"`
}
