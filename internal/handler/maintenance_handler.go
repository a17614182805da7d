package handler

import (
	"context"
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/internal/service"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
	"github.com/vidkeep/storage-api/pkg/response"
)

type maintenanceService interface {
	RunSweep(ctx context.Context, opts models.MaintenanceOptions) (*models.MaintenanceReport, error)
}

// MaintenanceHandler exposes the on-demand quota sweep and ops stats.
type MaintenanceHandler struct {
	service maintenanceService
	metrics *service.MetricsService
}

// NewMaintenanceHandler constructs the handler.
func NewMaintenanceHandler(service maintenanceService, metrics *service.MetricsService) *MaintenanceHandler {
	return &MaintenanceHandler{service: service, metrics: metrics}
}

// Sweep godoc
// @Summary Run a quota maintenance sweep
// @Tags Maintenance
// @Accept json
// @Produce json
// @Param options body models.MaintenanceOptions false "Sweep options"
// @Success 200 {object} response.Envelope
// @Router /maintenance/sweep [post]
func (h *MaintenanceHandler) Sweep(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "maintenance service not configured"))
		return
	}
	var opts models.MaintenanceOptions
	if err := c.ShouldBindJSON(&opts); err != nil && !errors.Is(err, io.EOF) {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid sweep options"))
		return
	}
	report, err := h.service.RunSweep(c.Request.Context(), opts)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report)
}

// Stats godoc
// @Summary Aggregated operational metrics
// @Tags Maintenance
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /maintenance/stats [get]
func (h *MaintenanceHandler) Stats(c *gin.Context) {
	response.JSON(c, http.StatusOK, h.metrics.Snapshot())
}
