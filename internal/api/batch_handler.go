package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/api/shared"
	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/service"
)

// CreateBatchRequest represents the request body for creating a new batch.
type CreateBatchRequest struct {
	Params     json.RawMessage `json:"params" validate:"required"`
	TotalItems int             `json:"total_items" validate:"required,gte=1"`
}

// BatchItemResponse represents one item of a batch.
type BatchItemResponse struct {
	ItemNo       int       `json:"item_no"`
	Status       string    `json:"status"`
	ObjectKey    string    `json:"object_key,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// BatchResponse represents the response data for a batch task.
type BatchResponse struct {
	ID             string              `json:"id"`
	Status         string              `json:"status"`
	TotalItems     int                 `json:"total_items"`
	CompletedItems int                 `json:"completed_items"`
	FailedItems    int                 `json:"failed_items"`
	ErrorMessage   string              `json:"error_message,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	UpdatedAt      time.Time           `json:"updated_at"`
	CompletedAt    *time.Time          `json:"completed_at,omitempty"`
	Items          []BatchItemResponse `json:"items,omitempty"`
}

// BatchHandler handles batch task HTTP requests.
type BatchHandler struct {
	batches service.BatchService
}

// NewBatchHandler creates a new BatchHandler.
func NewBatchHandler(batches service.BatchService) *BatchHandler {
	return &BatchHandler{batches: batches}
}

// CreateBatch handles POST /api/batches requests. A submission beyond the
// running-batch cap is rejected synchronously with 409 Conflict.
func (h *BatchHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req CreateBatchRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"Validation error: params and a positive total_items are required")
		return
	}

	batch, err := h.batches.CreateBatch(r.Context(), req.Params, req.TotalItems)
	if err != nil {
		mapBatchError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, batchToResponse(batch, nil))
}

// GetBatch handles GET /api/batches/{id} requests.
func (h *BatchHandler) GetBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid batch ID")
		return
	}

	batch, items, err := h.batches.GetBatch(r.Context(), id)
	if err != nil {
		mapBatchError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, batchToResponse(batch, items))
}

// StopBatch handles POST /api/batches/{id}/stop requests. Stop is
// cooperative: items already dispatched finish, the rest are skipped.
func (h *BatchHandler) StopBatch(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid batch ID")
		return
	}

	stopped, err := h.batches.StopBatch(r.Context(), id)
	if err != nil {
		mapBatchError(w, r, err)
		return
	}
	if !stopped {
		shared.RespondWithError(w, r, http.StatusConflict, "Batch is not running")
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, map[string]string{
		"id":     id.String(),
		"status": "stopping",
	})
}

// RetryItem handles POST /api/batches/{id}/items/{item_no}/retry requests.
// The call is synchronous: it returns once the retried item settles.
func (h *BatchHandler) RetryItem(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid batch ID")
		return
	}

	itemNo, err := strconv.Atoi(chi.URLParam(r, "item_no"))
	if err != nil || itemNo < 1 {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item number")
		return
	}

	if err := h.batches.RetryItem(r.Context(), id, itemNo); err != nil {
		mapBatchError(w, r, err)
		return
	}

	batch, items, err := h.batches.GetBatch(r.Context(), id)
	if err != nil {
		mapBatchError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, batchToResponse(batch, items))
}

// batchToResponse converts a domain.BatchTask to a BatchResponse.
func batchToResponse(batch *domain.BatchTask, items []domain.BatchItem) BatchResponse {
	resp := BatchResponse{
		ID:             batch.ID.String(),
		Status:         string(batch.Status),
		TotalItems:     batch.TotalItems,
		CompletedItems: batch.CompletedItems,
		FailedItems:    batch.FailedItems,
		ErrorMessage:   batch.ErrorMessage,
		CreatedAt:      batch.CreatedAt,
		UpdatedAt:      batch.UpdatedAt,
		CompletedAt:    batch.CompletedAt,
	}

	for _, item := range items {
		resp.Items = append(resp.Items, BatchItemResponse{
			ItemNo:       item.ItemNo,
			Status:       string(item.Status),
			ObjectKey:    item.ObjectKey,
			SizeBytes:    item.SizeBytes,
			ErrorMessage: item.ErrorMessage,
			UpdatedAt:    item.UpdatedAt,
		})
	}

	return resp
}
