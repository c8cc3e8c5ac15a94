package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/docforge/docforge-api/internal/api/shared"
	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/service"
)

// CreateDocumentRequest represents the request body for creating a new
// document task.
type CreateDocumentRequest struct {
	Subject json.RawMessage `json:"subject" validate:"required"`
}

// StageResponse represents one stage slot of a document task.
type StageResponse struct {
	StageNo      int       `json:"stage_no"`
	Name         string    `json:"name"`
	Status       string    `json:"status"`
	ObjectKey    string    `json:"object_key,omitempty"`
	SizeBytes    int64     `json:"size_bytes"`
	ErrorMessage string    `json:"error_message,omitempty"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DocumentTaskResponse represents the response data for a document task.
type DocumentTaskResponse struct {
	ID           string          `json:"id"`
	Kind         string          `json:"kind"`
	Status       string          `json:"status"`
	StageCount   int             `json:"stage_count"`
	CurrentStage int             `json:"current_stage"`
	ErrorMessage string          `json:"error_message,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
	CompletedAt  *time.Time      `json:"completed_at,omitempty"`
	Stages       []StageResponse `json:"stages,omitempty"`
}

// DocumentHandler handles document task HTTP requests.
type DocumentHandler struct {
	documents service.DocumentService
}

// NewDocumentHandler creates a new DocumentHandler.
func NewDocumentHandler(documents service.DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// CreateDocument handles POST /api/documents requests. Generation happens
// asynchronously, so the response is 202 Accepted with the pending task.
func (h *DocumentHandler) CreateDocument(w http.ResponseWriter, r *http.Request) {
	var req CreateDocumentRequest
	if err := shared.DecodeJSON(r, &req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid request format")
		return
	}
	if err := shared.ValidateRequest(req); err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Validation error: subject is required")
		return
	}

	task, err := h.documents.CreateDocumentTask(r.Context(), req.Subject)
	if err != nil {
		mapDocumentError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusAccepted, documentToResponse(task, nil))
}

// GetDocument handles GET /api/documents/{id} requests.
func (h *DocumentHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		shared.RespondWithError(w, r, http.StatusBadRequest, "Invalid document task ID")
		return
	}

	task, stages, err := h.documents.GetDocumentTask(r.Context(), id)
	if err != nil {
		mapDocumentError(w, r, err)
		return
	}

	shared.RespondWithJSON(w, r, http.StatusOK, documentToResponse(task, stages))
}

// documentToResponse converts a domain.DocumentTask to a DocumentTaskResponse.
func documentToResponse(task *domain.DocumentTask, stages []domain.StageResult) DocumentTaskResponse {
	resp := DocumentTaskResponse{
		ID:           task.ID.String(),
		Kind:         task.Kind,
		Status:       string(task.Status),
		StageCount:   task.StageCount,
		CurrentStage: task.CurrentStage,
		ErrorMessage: task.ErrorMessage,
		CreatedAt:    task.CreatedAt,
		UpdatedAt:    task.UpdatedAt,
		CompletedAt:  task.CompletedAt,
	}

	for _, stage := range stages {
		resp.Stages = append(resp.Stages, StageResponse{
			StageNo:      stage.StageNo,
			Name:         stage.Name,
			Status:       string(stage.Status),
			ObjectKey:    stage.ObjectKey,
			SizeBytes:    stage.SizeBytes,
			ErrorMessage: stage.ErrorMessage,
			UpdatedAt:    stage.UpdatedAt,
		})
	}

	return resp
}
