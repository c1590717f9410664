package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/erp/manufacture/internal/application/replenishment"
)

// Ranker ranks products by how much they need replenishing
type Ranker interface {
	RankForAccount(ctx context.Context, rawAccount string, req replenishment.RankRequest) (*replenishment.RankResponse, error)
}

// ReplenishmentHandler serves the replenishment ranking of a seller account
type ReplenishmentHandler struct {
	BaseHandler
	ranker Ranker
}

func NewReplenishmentHandler(ranker Ranker) *ReplenishmentHandler {
	return &ReplenishmentHandler{ranker: ranker}
}

// Rank handles GET /accounts/:account/replenishment?window=&coverage=&channel=
func (h *ReplenishmentHandler) Rank(c *gin.Context) {
	var req replenishment.RankRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.BindError(c, err)
		return
	}

	resp, err := h.ranker.RankForAccount(c.Request.Context(), c.Param("account"), req)
	if err != nil {
		h.HandleError(c, err)
		return
	}
	h.Success(c, resp)
}
