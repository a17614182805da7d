package service

import (
	"sort"
	"time"

	"github.com/vidkeep/storage-api/internal/models"
)

// Scoring weights for archival eviction. The values are preserved exactly from
// the tuning the hosting product shipped with; selection behaviour depends on
// their relative magnitudes.
const (
	scoreWeightAgeDays       = 0.1
	scoreWeightSizeMB        = 0.05
	scoreWeightIdleDays      = 0.2
	scoreNeverAccessed       = 10.0
	criticalFallbackFraction = 0.8
)

var priorityMultiplier = map[models.AssetPriority]float64{
	models.AssetPriorityLow:      2.0,
	models.AssetPriorityNormal:   1.0,
	models.AssetPriorityHigh:     0.5,
	models.AssetPriorityCritical: 0.1,
}

// ArchivalScore rates how strongly an asset should be evicted; higher means
// evicted first. Deterministic and side-effect-free.
func ArchivalScore(asset models.StoredAsset, now time.Time) float64 {
	ageDays := now.Sub(asset.CreatedAt).Hours() / 24

	lastAccess := asset.CreatedAt
	if asset.LastAccessedAt != nil {
		lastAccess = *asset.LastAccessedAt
	}
	idleDays := now.Sub(lastAccess).Hours() / 24

	accessPenalty := scoreNeverAccessed
	if asset.AccessCount > 0 {
		accessPenalty = scoreNeverAccessed / float64(asset.AccessCount)
	}

	score := ageDays*scoreWeightAgeDays +
		float64(asset.SizeBytes)/(1024*1024)*scoreWeightSizeMB +
		idleDays*scoreWeightIdleDays +
		accessPenalty

	multiplier, ok := priorityMultiplier[asset.Priority]
	if !ok {
		multiplier = priorityMultiplier[models.AssetPriorityNormal]
	}
	return score * multiplier
}

// SelectForArchival picks the ordered set of active assets to evict so that
// their combined size reaches targetBytes. Assets are taken greedily in score
// order; Critical assets are a last resort, considered only when everything
// else frees less than 80% of the target.
func SelectForArchival(assets []models.StoredAsset, targetBytes int64, now time.Time) []models.StoredAsset {
	if targetBytes <= 0 || len(assets) == 0 {
		return nil
	}

	ranked := make([]models.StoredAsset, len(assets))
	copy(ranked, assets)
	scores := make(map[string]float64, len(ranked))
	for _, asset := range ranked {
		scores[asset.ID] = ArchivalScore(asset, now)
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		si, sj := scores[ranked[i].ID], scores[ranked[j].ID]
		if si != sj {
			return si > sj
		}
		if !ranked[i].CreatedAt.Equal(ranked[j].CreatedAt) {
			return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
		}
		return ranked[i].ID < ranked[j].ID
	})

	var selected []models.StoredAsset
	var freed int64
	for _, asset := range ranked {
		if freed >= targetBytes {
			break
		}
		if asset.Priority == models.AssetPriorityCritical {
			continue
		}
		selected = append(selected, asset)
		freed += asset.SizeBytes
	}

	if freed >= targetBytes {
		return selected
	}
	if float64(freed) >= criticalFallbackFraction*float64(targetBytes) {
		return selected
	}

	for _, asset := range ranked {
		if freed >= targetBytes {
			break
		}
		if asset.Priority != models.AssetPriorityCritical {
			continue
		}
		selected = append(selected, asset)
		freed += asset.SizeBytes
	}
	return selected
}
