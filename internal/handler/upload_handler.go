package handler

import (
	"context"
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/vidkeep/storage-api/internal/dto"
	"github.com/vidkeep/storage-api/internal/models"
	"github.com/vidkeep/storage-api/internal/service"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
	"github.com/vidkeep/storage-api/pkg/response"
)

type uploadService interface {
	BeginSession(ctx context.Context, req dto.BeginUploadRequest) (*models.UploadSession, error)
	GetSession(ctx context.Context, sessionID string) (*dto.UploadSessionResponse, error)
	ReceiveChunk(ctx context.Context, sessionID string, chunkNumber int, data []byte) (*dto.ChunkReceipt, error)
}

// UploadHandler manages chunked upload HTTP endpoints.
type UploadHandler struct {
	service uploadService
	metrics *service.MetricsService
}

// NewUploadHandler constructs the handler.
func NewUploadHandler(service uploadService, metrics *service.MetricsService) *UploadHandler {
	return &UploadHandler{service: service, metrics: metrics}
}

// Begin godoc
// @Summary Start a chunked upload session
// @Tags Uploads
// @Accept json
// @Produce json
// @Param request body dto.BeginUploadRequest true "Upload declaration"
// @Success 201 {object} response.Envelope
// @Router /uploads [post]
func (h *UploadHandler) Begin(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "upload service not configured"))
		return
	}
	var req dto.BeginUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid upload payload"))
		return
	}
	session, err := h.service.BeginSession(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, session)
}

// Get godoc
// @Summary Get upload session progress
// @Tags Uploads
// @Produce json
// @Param id path string true "Session ID"
// @Success 200 {object} response.Envelope
// @Router /uploads/{id} [get]
func (h *UploadHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "upload service not configured"))
		return
	}
	session, err := h.service.GetSession(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, session)
}

// Chunk godoc
// @Summary Upload one chunk
// @Tags Uploads
// @Accept octet-stream
// @Produce json
// @Param id path string true "Session ID"
// @Param number path int true "Chunk number (0-based)"
// @Success 200 {object} response.Envelope
// @Router /uploads/{id}/chunks/{number} [put]
func (h *UploadHandler) Chunk(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "upload service not configured"))
		return
	}
	chunkNumber, err := strconv.Atoi(c.Param("number"))
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "chunk number must be an integer"))
		return
	}
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read chunk body"))
		return
	}

	receipt, err := h.service.ReceiveChunk(c.Request.Context(), c.Param("id"), chunkNumber, data)
	if err != nil {
		response.Error(c, err)
		return
	}
	h.metrics.RecordChunk(int64(len(data)))
	if receipt.Status == models.UploadStatusComplete {
		h.metrics.RecordUploadCompleted()
	}
	response.JSON(c, http.StatusOK, receipt)
}
