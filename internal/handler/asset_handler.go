package handler

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vidkeep/storage-api/internal/dto"
	"github.com/vidkeep/storage-api/internal/models"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
	"github.com/vidkeep/storage-api/pkg/response"
)

type assetService interface {
	List(ctx context.Context, ownerID string, status models.AssetStatus) ([]models.StoredAsset, error)
	Get(ctx context.Context, id string) (*models.StoredAsset, error)
	CreateDownloadURL(ctx context.Context, id string) (*dto.AssetDownloadResponse, error)
	Download(ctx context.Context, token string) (*models.StoredAsset, *os.File, error)
	Delete(ctx context.Context, id string) error
}

// AssetHandler serves stored asset metadata and downloads.
type AssetHandler struct {
	service assetService
}

// NewAssetHandler constructs the handler.
func NewAssetHandler(service assetService) *AssetHandler {
	return &AssetHandler{service: service}
}

// List godoc
// @Summary List an owner's assets
// @Tags Assets
// @Produce json
// @Param ownerId query string true "Owner ID"
// @Param status query string false "Lifecycle status (ACTIVE, ARCHIVED, DELETED)"
// @Success 200 {object} response.Envelope
// @Router /assets [get]
func (h *AssetHandler) List(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "asset service not configured"))
		return
	}
	ownerID := strings.TrimSpace(c.Query("ownerId"))
	if ownerID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ownerId is required"))
		return
	}
	status := models.AssetStatus(strings.ToUpper(strings.TrimSpace(c.Query("status"))))
	assets, err := h.service.List(c.Request.Context(), ownerID, status)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, assets)
}

// Get godoc
// @Summary Get asset metadata
// @Tags Assets
// @Produce json
// @Param id path string true "Asset ID"
// @Success 200 {object} response.Envelope
// @Router /assets/{id} [get]
func (h *AssetHandler) Get(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "asset service not configured"))
		return
	}
	asset, err := h.service.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, asset)
}

// DownloadURL godoc
// @Summary Issue a signed download link
// @Tags Assets
// @Produce json
// @Param id path string true "Asset ID"
// @Success 200 {object} response.Envelope
// @Router /assets/{id}/download-url [post]
func (h *AssetHandler) DownloadURL(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "asset service not configured"))
		return
	}
	link, err := h.service.CreateDownloadURL(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link)
}

// Download godoc
// @Summary Download an asset via signed token
// @Tags Assets
// @Produce octet-stream
// @Param id path string true "Asset ID"
// @Param token query string true "Signed token"
// @Success 200 {file} binary
// @Router /assets/{id}/download [get]
func (h *AssetHandler) Download(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "asset service not configured"))
		return
	}
	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	asset, file, err := h.service.Download(c.Request.Context(), token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Close() //nolint:errcheck
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", asset.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, asset.SizeBytes, "application/octet-stream", file, nil)
}

// Delete godoc
// @Summary Delete an asset
// @Tags Assets
// @Produce json
// @Param id path string true "Asset ID"
// @Success 204
// @Router /assets/{id} [delete]
func (h *AssetHandler) Delete(c *gin.Context) {
	if h.service == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "asset service not configured"))
		return
	}
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
