package api

import (
	"errors"
	"net/http"

	"github.com/docforge/docforge-api/internal/api/shared"
	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/scheduler"
	"github.com/docforge/docforge-api/internal/store"
)

// mapDocumentError maps document service errors onto HTTP responses.
func mapDocumentError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, store.ErrTaskNotFound):
		shared.RespondWithError(w, r, http.StatusNotFound, "Document task not found")
	case errors.Is(err, domain.ErrEmptySubject):
		shared.RespondWithError(w, r, http.StatusBadRequest, "Subject cannot be empty")
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to process document task", err)
	}
}

// mapBatchError maps batch service errors onto HTTP responses.
func mapBatchError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, scheduler.ErrBatchCapacity):
		shared.RespondWithError(w, r, http.StatusConflict,
			"Too many running batches, try again later")
	case errors.Is(err, scheduler.ErrRetryInFlight):
		shared.RespondWithError(w, r, http.StatusConflict,
			"A retry for this item is already in flight")
	case errors.Is(err, scheduler.ErrItemNotFailed):
		shared.RespondWithError(w, r, http.StatusConflict,
			"Only failed items can be retried")
	case errors.Is(err, store.ErrBatchNotFound):
		shared.RespondWithError(w, r, http.StatusNotFound, "Batch not found")
	case errors.Is(err, store.ErrItemNotFound):
		shared.RespondWithError(w, r, http.StatusNotFound, "Batch item not found")
	case errors.Is(err, domain.ErrEmptyBatch), errors.Is(err, domain.ErrEmptyBatchParams):
		shared.RespondWithError(w, r, http.StatusBadRequest,
			"Batch params and at least one item are required")
	case errors.Is(err, domain.ErrInvalidItemNumber):
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid item number")
	default:
		shared.RespondWithErrorAndLog(w, r, http.StatusInternalServerError,
			"Failed to process batch", err)
	}
}
