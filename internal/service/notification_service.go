package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/pkg/config"
	"github.com/vidkeep/storage-api/pkg/jobs"
)

// NotificationService delivers quota lifecycle events to the external
// notification endpoint. Delivery is asynchronous and fire-and-forget: a
// failed notification is retried by the queue and eventually dropped, it
// never blocks or fails the state transition that produced it.
type NotificationService struct {
	queue   *jobs.Queue
	client  *http.Client
	baseURL string
	logger  *zap.Logger
}

// NewNotificationService constructs the dispatcher and its worker queue.
func NewNotificationService(cfg config.NotifierConfig, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &NotificationService{
		client:  &http.Client{Timeout: cfg.Timeout},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		logger:  logger,
	}
	s.queue = jobs.NewQueue("notifications", s.deliver, jobs.QueueConfig{
		Workers:    cfg.Workers,
		MaxRetries: cfg.MaxRetries,
		Logger:     logger,
	})
	return s
}

// Start begins asynchronous delivery.
func (s *NotificationService) Start(ctx context.Context) {
	s.queue.Start(ctx)
}

// Stop drains the worker pool.
func (s *NotificationService) Stop() {
	s.queue.Stop()
}

// Notify enqueues one event for delivery. Errors are logged, never returned.
func (s *NotificationService) Notify(ownerID string, event models.NotificationEvent, payload map[string]interface{}) {
	job := jobs.Job{
		ID:   uuid.NewString(),
		Type: string(event),
		Payload: models.Notification{
			OwnerID: ownerID,
			Event:   event,
			Payload: payload,
		},
	}
	if err := s.queue.Enqueue(job); err != nil {
		s.logger.Warn("failed to enqueue notification",
			zap.String("owner_id", ownerID),
			zap.String("event", string(event)),
			zap.Error(err))
	}
}

func (s *NotificationService) deliver(ctx context.Context, job jobs.Job) error {
	notification, ok := job.Payload.(models.Notification)
	if !ok {
		s.logger.Warn("dropping malformed notification job", zap.String("job_id", job.ID))
		return nil
	}

	body, err := json.Marshal(notification)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/notifications", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver notification: %w", err)
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notification endpoint returned %d", resp.StatusCode)
	}
	return nil
}
