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
	"github.com/docforge/docforge-api/internal/scheduler"
	"github.com/docforge/docforge-api/internal/store"
)

// mockBatchService implements service.BatchService for handler tests.
type mockBatchService struct {
	createFn func(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error)
	getFn    func(ctx context.Context, id uuid.UUID) (*domain.BatchTask, []domain.BatchItem, error)
	stopFn   func(ctx context.Context, id uuid.UUID) (bool, error)
	retryFn  func(ctx context.Context, id uuid.UUID, itemNo int) error
}

func (m *mockBatchService) CreateBatch(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error) {
	return m.createFn(ctx, params, totalItems)
}

func (m *mockBatchService) GetBatch(ctx context.Context, id uuid.UUID) (*domain.BatchTask, []domain.BatchItem, error) {
	return m.getFn(ctx, id)
}

func (m *mockBatchService) StopBatch(ctx context.Context, id uuid.UUID) (bool, error) {
	return m.stopFn(ctx, id)
}

func (m *mockBatchService) RetryItem(ctx context.Context, id uuid.UUID, itemNo int) error {
	return m.retryFn(ctx, id, itemNo)
}

func newBatchRouter(svc *mockBatchService) http.Handler {
	h := NewBatchHandler(svc)
	r := chi.NewRouter()
	r.Post("/api/batches", h.CreateBatch)
	r.Get("/api/batches/{id}", h.GetBatch)
	r.Post("/api/batches/{id}/stop", h.StopBatch)
	r.Post("/api/batches/{id}/items/{item_no}/retry", h.RetryItem)
	return r
}

func testBatch(t *testing.T, totalItems int) *domain.BatchTask {
	t.Helper()
	batch, err := domain.NewBatchTask(json.RawMessage(`{"template":"invoice"}`), totalItems)
	require.NoError(t, err)
	return batch
}

func TestBatchHandler_CreateBatch(t *testing.T) {
	t.Parallel()

	t.Run("accepted", func(t *testing.T) {
		t.Parallel()

		batch := testBatch(t, 10)
		svc := &mockBatchService{
			createFn: func(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error) {
				assert.Equal(t, 10, totalItems)
				return batch, nil
			},
		}

		body := bytes.NewBufferString(`{"params":{"template":"invoice"},"total_items":10}`)
		req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusAccepted, rec.Code)

		var resp BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, batch.ID.String(), resp.ID)
		assert.Equal(t, 10, resp.TotalItems)
	})

	t.Run("capacity rejection is a conflict", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{
			createFn: func(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error) {
				return nil, scheduler.ErrBatchCapacity
			},
		}

		body := bytes.NewBufferString(`{"params":{"template":"invoice"},"total_items":3}`)
		req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("zero items rejected", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{
			createFn: func(ctx context.Context, params json.RawMessage, totalItems int) (*domain.BatchTask, error) {
				t.Fatal("service must not be called for an invalid request")
				return nil, nil
			},
		}

		body := bytes.NewBufferString(`{"params":{"template":"invoice"},"total_items":0}`)
		req := httptest.NewRequest(http.MethodPost, "/api/batches", body)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}

func TestBatchHandler_GetBatch(t *testing.T) {
	t.Parallel()

	batch := testBatch(t, 2)
	batch.Status = domain.BatchStatusCompleted
	batch.CompletedItems = 1
	batch.FailedItems = 1
	batch.ErrorMessage = "1 of 2 items failed"

	items := []domain.BatchItem{
		{BatchID: batch.ID, ItemNo: 1, Status: domain.ItemStatusCompleted, ObjectKey: "batches/x/item-0001.docx"},
		{BatchID: batch.ID, ItemNo: 2, Status: domain.ItemStatusFailed, ErrorMessage: "render failed"},
	}

	svc := &mockBatchService{
		getFn: func(ctx context.Context, id uuid.UUID) (*domain.BatchTask, []domain.BatchItem, error) {
			return batch, items, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/api/batches/"+batch.ID.String(), nil)
	rec := httptest.NewRecorder()
	newBatchRouter(svc).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp BatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "completed", resp.Status)
	assert.Equal(t, "1 of 2 items failed", resp.ErrorMessage)
	require.Len(t, resp.Items, 2)
	assert.Equal(t, "failed", resp.Items[1].Status)
}

func TestBatchHandler_StopBatch(t *testing.T) {
	t.Parallel()

	t.Run("stopping", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{
			stopFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
				return true, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/api/batches/"+uuid.NewString()+"/stop", nil)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusAccepted, rec.Code)
	})

	t.Run("not running", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{
			stopFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
				return false, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/api/batches/"+uuid.NewString()+"/stop", nil)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusConflict, rec.Code)
	})

	t.Run("unknown batch", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{
			stopFn: func(ctx context.Context, id uuid.UUID) (bool, error) {
				return false, store.ErrBatchNotFound
			},
		}

		req := httptest.NewRequest(http.MethodPost, "/api/batches/"+uuid.NewString()+"/stop", nil)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}

func TestBatchHandler_RetryItem(t *testing.T) {
	t.Parallel()

	t.Run("success returns refreshed batch", func(t *testing.T) {
		t.Parallel()

		batch := testBatch(t, 3)
		batch.Status = domain.BatchStatusCompleted
		batch.CompletedItems = 3

		svc := &mockBatchService{
			retryFn: func(ctx context.Context, id uuid.UUID, itemNo int) error {
				assert.Equal(t, 2, itemNo)
				return nil
			},
			getFn: func(ctx context.Context, id uuid.UUID) (*domain.BatchTask, []domain.BatchItem, error) {
				return batch, nil, nil
			},
		}

		req := httptest.NewRequest(http.MethodPost,
			"/api/batches/"+batch.ID.String()+"/items/2/retry", nil)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code)

		var resp BatchResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		assert.Equal(t, 3, resp.CompletedItems)
	})

	t.Run("conflicting retries", func(t *testing.T) {
		t.Parallel()

		for name, retryErr := range map[string]error{
			"in flight":  scheduler.ErrRetryInFlight,
			"not failed": scheduler.ErrItemNotFailed,
		} {
			t.Run(name, func(t *testing.T) {
				svc := &mockBatchService{
					retryFn: func(ctx context.Context, id uuid.UUID, itemNo int) error {
						return retryErr
					},
				}

				req := httptest.NewRequest(http.MethodPost,
					"/api/batches/"+uuid.NewString()+"/items/1/retry", nil)
				rec := httptest.NewRecorder()
				newBatchRouter(svc).ServeHTTP(rec, req)

				assert.Equal(t, http.StatusConflict, rec.Code)
			})
		}
	})

	t.Run("unknown item", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{
			retryFn: func(ctx context.Context, id uuid.UUID, itemNo int) error {
				return store.ErrItemNotFound
			},
		}

		req := httptest.NewRequest(http.MethodPost,
			"/api/batches/"+uuid.NewString()+"/items/9/retry", nil)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("invalid item number", func(t *testing.T) {
		t.Parallel()

		svc := &mockBatchService{}
		req := httptest.NewRequest(http.MethodPost,
			"/api/batches/"+uuid.NewString()+"/items/zero/retry", nil)
		rec := httptest.NewRecorder()
		newBatchRouter(svc).ServeHTTP(rec, req)

		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})
}
