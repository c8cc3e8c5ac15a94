package main

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/docforge/docforge-api/internal/api"
	"github.com/docforge/docforge-api/internal/api/shared"
)

// setupRouter configures the application router with all routes and
// middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(shared.TraceID)

	documentHandler := api.NewDocumentHandler(app.documents)
	batchHandler := api.NewBatchHandler(app.batches)
	healthHandler := api.NewHealthHandler(map[string]api.HealthChecker{
		"database": api.HealthCheckerFunc(func(ctx context.Context) error {
			return app.db.PingContext(ctx)
		}),
		"object_store": app.artifacts,
	})

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", documentHandler.CreateDocument)
		r.Get("/documents/{id}", documentHandler.GetDocument)

		r.Post("/batches", batchHandler.CreateBatch)
		r.Get("/batches/{id}", batchHandler.GetBatch)
		r.Post("/batches/{id}/stop", batchHandler.StopBatch)
		r.Post("/batches/{id}/items/{item_no}/retry", batchHandler.RetryItem)
	})

	r.Get("/health", healthHandler.Health)

	return r
}
