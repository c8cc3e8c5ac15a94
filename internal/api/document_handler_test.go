package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/docforge/docforge-api/internal/domain"
	"github.com/docforge/docforge-api/internal/store"
)

// mockDocumentService implements service.DocumentService for handler tests.
type mockDocumentService struct {
	createFn func(ctx context.Context, subject json.RawMessage) (*domain.DocumentTask, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, []domain.StageResult, error)
}

func (m *mockDocumentService) CreateDocumentTask(ctx context.Context, subject json.RawMessage) (*domain.DocumentTask, error) {
	return m.createFn(ctx, subject)
}

func (m *mockDocumentService) GetDocumentTask(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, []domain.StageResult, error) {
	return m.getFn(ctx, id)
}

func newDocumentRouter(svc *mockDocumentService) http.Handler {
	h := NewDocumentHandler(svc)
	r := chi.NewRouter()
	r.Post("/api/documents", h.CreateDocument)
	r.Get("/api/documents/{id}", h.GetDocument)
	return r
}

func TestDocumentHandler_CreateDocument(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewDocumentTask(domain.TaskKindReportBundle,
			json.RawMessage(`{"name":"Acme Corp"}`), domain.DefaultStageCount)
		require.NoError(t, err)

		svc := &mockDocumentService{
			createFn: func(ctx context.Context, subject json.RawMessage) (*domain.DocumentTask, error) {
				assert.JSONEq(t, `{"name":"Acme Corp"}`, string(subject))
				return task, nil
			},
		}

		body := bytes.NewBufferString(`{"subject":{"name":"Acme Corp"}}`)
		req := httptest.NewRequest(http.MethodPost, "/api/documents", body)
		rec := httptest.NewRecorder()
		newDocumentRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp DocumentTaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, task.ID.String(), resp.ID)
		assert.Equal(t, "pending", resp.Status)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		t.Parallel()

		svc := &mockDocumentService{
			createFn: func(ctx context.Context, subject json.RawMessage) (*domain.DocumentTask, error) {
				t.Fatal("service must not be called for an invalid request")
				return nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewBufferString(`{}`))
		rec := httptest.NewRecorder()
		newDocumentRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("malformed body rejected", func(t *testing.T) {
		t.Parallel()

		svc := &mockDocumentService{}
		req := httptest.NewRequest(http.MethodPost, "/api/documents", bytes.NewBufferString(`{nope`))
		rec := httptest.NewRecorder()
		newDocumentRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestDocumentHandler_GetDocument(t *testing.T) {
	t.Parallel()

	t.Run("found with stages", func(t *testing.T) {
		t.Parallel()

		task, err := domain.NewDocumentTask(domain.TaskKindReportBundle,
			json.RawMessage(`{"name":"Acme Corp"}`), domain.DefaultStageCount)
		require.NoError(t, err)
		task.Status = domain.TaskStatusPartial
		task.ErrorMessage = "1 of 4 section stages failed"

		stages := []domain.StageResult{
			{TaskID: task.ID, StageNo: 1, Name: "brief", Status: domain.StageStatusCompleted, ObjectKey: "documents/x/01-brief.docx"},
			{TaskID: task.ID, StageNo: 2, Name: "summary", Status: domain.StageStatusFailed, ErrorMessage: "generation refused"},
		}

		svc := &mockDocumentService{
			getFn: func(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, []domain.StageResult, error) {
				assert.Equal(t, task.ID, id)
				return task, stages, nil
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/documents/"+task.ID.String(), nil)
		rec := httptest.NewRecorder()
		newDocumentRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp DocumentTaskResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, "partial", resp.Status)
		require.Len(t, resp.Stages, 2)
		assert.Equal(t, "failed", resp.Stages[1].Status)
		assert.Equal(t, "generation refused", resp.Stages[1].ErrorMessage)
	})

	t.Run("not found", func(t *testing.T) {
		t.Parallel()

		svc := &mockDocumentService{
			getFn: func(ctx context.Context, id uuid.UUID) (*domain.DocumentTask, []domain.StageResult, error) {
				return nil, nil, store.ErrTaskNotFound
			},
		}

		req := httptest.NewRequest(http.MethodGet, "/api/documents/"+uuid.NewString(), nil)
		rec := httptest.NewRecorder()
		newDocumentRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid id", func(t *testing.T) {
		t.Parallel()

		svc := &mockDocumentService{}
		req := httptest.NewRequest(http.MethodGet, "/api/documents/not-a-uuid", nil)
		rec := httptest.NewRecorder()
		newDocumentRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
