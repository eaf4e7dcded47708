package rest

import (
	"net/http"

	"goaltrack/application/services"
	"goaltrack/interfaces/http/rest/handlers"
	"goaltrack/interfaces/http/rest/middleware"
	"goaltrack/pkg/auth"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// Router creates and configures the HTTP router
type Router struct {
	registry   *services.Registry
	validator  *auth.JWTValidator
	enableCORS bool
	logger     *zap.Logger
}

// NewRouter creates a new router instance
func NewRouter(
	registry *services.Registry,
	validator *auth.JWTValidator,
	enableCORS bool,
	logger *zap.Logger,
) *Router {
	return &Router{
		registry:   registry,
		validator:  validator,
		enableCORS: enableCORS,
		logger:     logger,
	}
}

// Setup configures all routes and middleware
func (rt *Router) Setup() http.Handler {
	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(rt.logger))

	if rt.enableCORS {
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"http://localhost:3000", "https://*.goaltrack.app"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	router.Get("/health", rt.healthCheck)
	router.Get("/ready", rt.readinessCheck)

	router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Authenticate(rt.validator, rt.logger))

		r.Route("/goals", func(r chi.Router) {
			goalHandler := handlers.NewGoalHandler(rt.registry, rt.logger)
			r.Get("/", goalHandler.ListGoals)
			r.Post("/", goalHandler.CreateGoal)
			r.Get("/{goalID}", goalHandler.GetGoal)
			r.Put("/{goalID}", goalHandler.UpdateGoal)
			r.Delete("/{goalID}", goalHandler.DeleteGoal)
			r.Post("/{goalID}/milestones/{index}/complete", goalHandler.CompleteMilestone)
			r.Post("/{goalID}/milestones/{index}/undo", goalHandler.UndoMilestone)
			r.Post("/{goalID}/timeline/adjust", goalHandler.AdjustTimeline)
		})

		r.Route("/sync", func(r chi.Router) {
			syncHandler := handlers.NewSyncHandler(rt.registry, rt.logger)
			r.Post("/migrate", syncHandler.Migrate)
			r.Post("/bidirectional", syncHandler.Bidirectional)
			r.Get("/status", syncHandler.Status)
		})
	})

	return router
}

// healthCheck handles health check requests
func (rt *Router) healthCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"healthy"}`))
}

// readinessCheck handles readiness check requests
func (rt *Router) readinessCheck(w http.ResponseWriter, req *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ready"}`))
}
