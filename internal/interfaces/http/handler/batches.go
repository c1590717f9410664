package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/erp/manufacture/internal/domain/manufacture"
	"github.com/erp/manufacture/internal/interfaces/http/dto"
)

// BatchStore loads and saves production batches. Saving a completed batch publishes its events.
type BatchStore interface {
	FindBatch(ctx context.Context, id uuid.UUID) (*manufacture.ProductionBatch, error)
	Save(ctx context.Context, batch *manufacture.ProductionBatch) error
}

// BatchResponse is a batch as exposed by the API
type BatchResponse struct {
	ID        string    `json:"id"`
	Account   string    `json:"account"`
	Status    string    `json:"status"`
	Channel   string    `json:"channel"`
	Products  int       `json:"products"`
	UpdatedAt time.Time `json:"updated_at"`
}

// BatchHandler moves production batches through their lifecycle
type BatchHandler struct {
	BaseHandler
	batches BatchStore
}

func NewBatchHandler(batches BatchStore) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// Complete handles POST /batches/:id/complete.
// Packing of the batch orders happens asynchronously once the completion event is delivered.
func (h *BatchHandler) Complete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.BadRequest(c, "invalid batch id")
		return
	}

	ctx := c.Request.Context()
	batch, err := h.batches.FindBatch(ctx, id)
	if errors.Is(err, manufacture.ErrBatchNotFound) {
		h.Error(c, http.StatusNotFound, dto.ErrCodeNotFound, err.Error())
		return
	}
	if err != nil {
		h.HandleError(c, err)
		return
	}

	if err := batch.Complete(); err != nil {
		h.Error(c, http.StatusConflict, dto.ErrCodeInvalidState, "batch is "+batch.Status.String())
		return
	}
	if err := h.batches.Save(ctx, batch); err != nil {
		h.HandleError(c, err)
		return
	}

	h.Accepted(c, BatchResponse{
		ID:        batch.ID.String(),
		Account:   batch.Account.String(),
		Status:    batch.Status.String(),
		Channel:   batch.Channel.String(),
		Products:  len(batch.Products),
		UpdatedAt: batch.UpdatedAt,
	})
}
