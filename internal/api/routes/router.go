package routes

import (
	"net/http"

	"github.com/kzhara/lathemind/backend/internal/api/handlers"
	"github.com/kzhara/lathemind/backend/internal/api/middleware"
	"github.com/kzhara/lathemind/backend/internal/infrastructure/observability"
)

// Router holds all route handlers
type Router struct {
	mux *http.ServeMux

	sampleHandler   *handlers.SampleHandler
	generateHandler *handlers.GenerateHandler
	processHandler  *handlers.ProcessHandler
	healthHandler   *handlers.HealthHandler

	metrics *observability.Metrics
}

// NewRouter creates a new router
func NewRouter(
	sampleHandler *handlers.SampleHandler,
	generateHandler *handlers.GenerateHandler,
	processHandler *handlers.ProcessHandler,
	healthHandler *handlers.HealthHandler,
	metrics *observability.Metrics,
) *Router {
	return &Router{
		mux: http.NewServeMux(),

		sampleHandler:   sampleHandler,
		generateHandler: generateHandler,
		processHandler:  processHandler,
		healthHandler:   healthHandler,

		metrics: metrics,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes() http.Handler {
	// Health check endpoint
	r.mux.HandleFunc("GET /api/health", r.healthHandler.Health)

	// Sample library endpoints
	r.mux.HandleFunc("POST /api/samples", r.sampleHandler.RegisterSample)
	r.mux.HandleFunc("GET /api/samples", r.sampleHandler.SearchSamples)
	r.mux.HandleFunc("GET /api/samples/{id}", r.sampleHandler.GetSample)
	r.mux.HandleFunc("GET /api/samples/{id}/drawing", r.sampleHandler.GetDrawing)
	r.mux.HandleFunc("DELETE /api/samples/{id}", r.sampleHandler.DeleteSample)
	r.mux.HandleFunc("POST /api/samples/reindex", r.sampleHandler.RebuildIndex)

	// Program generation endpoint
	r.mux.HandleFunc("POST /api/generate", r.generateHandler.Generate)

	// Process sheet endpoint
	r.mux.HandleFunc("POST /api/process/upload", r.processHandler.Upload)

	// Apply middleware in reverse order (last middleware wraps first)
	var handler http.Handler = r.mux
	handler = middleware.LoggingMiddleware(handler)

	if r.metrics != nil {
		handler = middleware.ObservabilityMiddleware(r.metrics)(handler)
	}

	// CORS wraps everything so headers are set on every response
	handler = middleware.CORSMiddleware(handler)

	return handler
}
