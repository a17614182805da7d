package models

import "time"

// SystemMetricsSnapshot is the aggregated operational view served by the
// stats endpoint. Prometheus scraping remains the primary export path.
type SystemMetricsSnapshot struct {
	RequestsTotal            uint64    `json:"requestsTotal"`
	AverageRequestDurationMs float64   `json:"averageRequestDurationMs"`
	CacheHitRatio            float64   `json:"cacheHitRatio"`
	SweepsRun                uint64    `json:"sweepsRun"`
	AssetsArchived           uint64    `json:"assetsArchived"`
	AssetsDeleted            uint64    `json:"assetsDeleted"`
	UploadsCompleted         uint64    `json:"uploadsCompleted"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generatedAt"`
}
