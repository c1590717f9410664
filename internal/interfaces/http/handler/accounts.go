package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/erp/manufacture/internal/domain/marketplace"
	"github.com/erp/manufacture/internal/interfaces/http/dto"
)

// AccountDirectory lists the configured seller accounts and toggles their sync
type AccountDirectory interface {
	All() []marketplace.Account
	SetEnabled(id marketplace.AccountID, enabled bool) error
}

// AccountResponse is a seller account without its token
type AccountResponse struct {
	ID       string `json:"id"`
	Enabled  bool   `json:"enabled"`
	HasToken bool   `json:"has_token"`
	Active   bool   `json:"active"`
}

// SetEnabledRequest is the body of PUT /accounts/:account/enabled
type SetEnabledRequest struct {
	Enabled *bool `json:"enabled" binding:"required"`
}

// AccountHandler exposes the account registry
type AccountHandler struct {
	BaseHandler
	accounts AccountDirectory
}

func NewAccountHandler(accounts AccountDirectory) *AccountHandler {
	return &AccountHandler{accounts: accounts}
}

func toAccountResponse(a marketplace.Account) AccountResponse {
	return AccountResponse{
		ID:       a.ID.String(),
		Enabled:  a.Enabled,
		HasToken: a.Token != "",
		Active:   a.Active(),
	}
}

// List handles GET /accounts
func (h *AccountHandler) List(c *gin.Context) {
	all := h.accounts.All()
	resp := make([]AccountResponse, 0, len(all))
	for _, a := range all {
		resp = append(resp, toAccountResponse(a))
	}
	h.Success(c, resp)
}

// SetEnabled handles PUT /accounts/:account/enabled. Disabled accounts are
// skipped by the periodic sync runs; stored data is kept.
func (h *AccountHandler) SetEnabled(c *gin.Context) {
	id, err := marketplace.NewAccountID(c.Param("account"))
	if err != nil {
		h.BadRequest(c, err.Error())
		return
	}

	var req SetEnabledRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.BindError(c, err)
		return
	}

	if err := h.accounts.SetEnabled(id, *req.Enabled); err != nil {
		if errors.Is(err, marketplace.ErrAccountNotConfigured) {
			h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())
			return
		}
		h.HandleError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
