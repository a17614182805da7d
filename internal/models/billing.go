package models

// Plan statuses reported by the billing service.
const (
	PlanStatusActive   = "active"
	PlanStatusPastDue  = "past_due"
	PlanStatusCanceled = "canceled"
)

// Plan is the billing service's view of an owner's subscription.
type Plan struct {
	QuotaBytes int64  `json:"quotaBytes"`
	IsPremium  bool   `json:"isPremium"`
	PlanStatus string `json:"planStatus"`
}

// Active reports whether the plan entitles the owner to its paid quota.
func (p Plan) Active() bool {
	return p.PlanStatus == PlanStatusActive
}
