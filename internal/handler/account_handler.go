package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/vidkeep/storage-api/internal/models"
	appErrors "github.com/vidkeep/storage-api/pkg/errors"
	"github.com/vidkeep/storage-api/pkg/response"
)

type accountService interface {
	GetOrCreate(ctx context.Context, ownerID string) (*models.StorageAccount, error)
	Usage(ctx context.Context, ownerID string) (*models.UsageSnapshot, error)
}

type subscriptionService interface {
	Sync(ctx context.Context, ownerID string) (*models.StorageAccount, error)
}

// AccountHandler serves storage account state and usage.
type AccountHandler struct {
	accounts      accountService
	subscriptions subscriptionService
}

// NewAccountHandler constructs the handler.
func NewAccountHandler(accounts accountService, subscriptions subscriptionService) *AccountHandler {
	return &AccountHandler{accounts: accounts, subscriptions: subscriptions}
}

func ownerParam(c *gin.Context) (string, bool) {
	ownerID := strings.TrimSpace(c.Param("ownerId"))
	if ownerID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "ownerId is required"))
		return "", false
	}
	return ownerID, true
}

// Get godoc
// @Summary Get storage account state
// @Tags Accounts
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{ownerId} [get]
func (h *AccountHandler) Get(c *gin.Context) {
	if h.accounts == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "account service not configured"))
		return
	}
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	account, err := h.accounts.GetOrCreate(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account)
}

// Usage godoc
// @Summary Get the cached usage snapshot
// @Tags Accounts
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{ownerId}/usage [get]
func (h *AccountHandler) Usage(c *gin.Context) {
	if h.accounts == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "account service not configured"))
		return
	}
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	snapshot, err := h.accounts.Usage(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, snapshot)
}

// Sync godoc
// @Summary Reconcile the account quota with the billing plan
// @Tags Accounts
// @Produce json
// @Param ownerId path string true "Owner ID"
// @Success 200 {object} response.Envelope
// @Router /accounts/{ownerId}/sync [post]
func (h *AccountHandler) Sync(c *gin.Context) {
	if h.subscriptions == nil {
		response.Error(c, appErrors.Clone(appErrors.ErrInternal, "subscription service not configured"))
		return
	}
	ownerID, ok := ownerParam(c)
	if !ok {
		return
	}
	account, err := h.subscriptions.Sync(c.Request.Context(), ownerID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, account)
}
