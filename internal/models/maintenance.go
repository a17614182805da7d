package models

import "time"

// MaintenanceOptions selects the behaviour of one maintenance sweep.
type MaintenanceOptions struct {
	DryRun         bool `json:"dryRun"`
	ForceArchiving bool `json:"forceArchiving"`
	CleanupExpired bool `json:"cleanupExpired"`
}

// MaintenanceError records a per-account failure that did not abort the sweep.
type MaintenanceError struct {
	OwnerID string `json:"ownerId"`
	Message string `json:"message"`
}

// MaintenanceReport aggregates the outcome of one full sweep.
type MaintenanceReport struct {
	AccountsChecked       int                `json:"accountsChecked"`
	OverageDetected       int                `json:"overageDetected"`
	RestrictionsEscalated int                `json:"restrictionsEscalated"`
	AssetsArchived        int                `json:"assetsArchived"`
	AssetsDeleted         int                `json:"assetsDeleted"`
	SessionsExpired       int                `json:"sessionsExpired"`
	Errors                []MaintenanceError `json:"errors,omitempty"`
	DryRun                bool               `json:"dryRun"`
	StartedAt             time.Time          `json:"startedAt"`
	FinishedAt            time.Time          `json:"finishedAt"`
}
