package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
)

// Client talks to the external billing service. Every call is bounded by the
// configured HTTP timeout so a slow billing backend cannot stall a sweep.
type Client struct {
	httpClient *http.Client
	baseURL    string
}

// NewClient constructs a billing client from config.
func NewClient(cfg config.BillingConfig) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: cfg.Timeout},
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// GetPlan fetches the current subscription plan for an owner.
func (c *Client) GetPlan(ctx context.Context, ownerID string) (*models.Plan, error) {
	url := fmt.Sprintf("%s/owners/%s/plan", c.baseURL, ownerID)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build plan request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch plan for %s: %w", ownerID, err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("billing service returned %d for %s", resp.StatusCode, ownerID)
	}

	var plan models.Plan
	if err := json.NewDecoder(resp.Body).Decode(&plan); err != nil {
		return nil, fmt.Errorf("decode plan for %s: %w", ownerID, err)
	}
	return &plan, nil
}
