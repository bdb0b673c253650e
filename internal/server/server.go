package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ibarani/fitforge/internal/analysis"
	"github.com/ibarani/fitforge/internal/catalog"
	"github.com/ibarani/fitforge/internal/coach"
	"github.com/ibarani/fitforge/internal/cycle"
	"github.com/ibarani/fitforge/internal/ingest"
	"github.com/ibarani/fitforge/internal/metrics"
	"github.com/ibarani/fitforge/internal/session"
	"github.com/ibarani/fitforge/internal/storage"
)

// Deps are the components the HTTP handlers call into.
type Deps struct {
	Catalog     *catalog.Catalog
	Sessions    *session.Service
	Coach       *coach.Coach
	Cycles      *cycle.Tracker
	Suggestions *analysis.Suggestions
	Store       storage.Gateway
	Metrics     *metrics.Manager
	// Importer is optional; without it the import route is not mounted.
	Importer *ingest.Importer
}

// Server holds dependencies for HTTP handlers.
type Server struct {
	catalog     *catalog.Catalog
	sessions    *session.Service
	coach       *coach.Coach
	cycles      *cycle.Tracker
	suggestions *analysis.Suggestions
	store       storage.Gateway
	metrics     *metrics.Manager
	importer    *ingest.Importer
	identity    func(http.Handler) http.Handler
	log         *slog.Logger
	router      chi.Router
}

// New creates a Server with all routes configured. identity resolves the
// caller for every /api/v1 route; nil selects the dev identity.
func New(d Deps, identity func(http.Handler) http.Handler, log *slog.Logger) *Server {
	if identity == nil {
		identity = DevIdentity(DevUserID)
	}
	s := &Server{
		catalog:     d.Catalog,
		sessions:    d.Sessions,
		coach:       d.Coach,
		cycles:      d.Cycles,
		suggestions: d.Suggestions,
		store:       d.Store,
		metrics:     d.Metrics,
		importer:    d.Importer,
		identity:    identity,
		log:         log,
		router:      chi.NewRouter(),
	}
	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func (s *Server) routes() {
	s.router.Use(RequestLogging(s.log, s.metrics))
	s.router.Use(CORS)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.identity)
		r.Use(RequireIdentity)

		r.Get("/me", s.handleMe)
		r.Get("/templates", s.handleTemplates)

		r.Get("/profile", s.handleGetProfile)
		r.Put("/profile", s.handlePutProfile)

		r.Route("/sessions/{templateKey}", func(r chi.Router) {
			r.Post("/", s.handleStartSession)
			r.Get("/", s.handleGetSession)
			r.Put("/sets/{exercise}/{index}", s.handleUpdateSet)
			r.Put("/rpe/{exercise}", s.handleRecordRPE)
			r.Post("/skip/{exercise}", s.handleSkipExercise)
		})

		r.Post("/workouts", s.handleSaveWorkout)
		r.Get("/workouts", s.handleListWorkouts)

		r.Get("/cycles/current", s.handleCurrentCycle)
		r.Put("/cycles/config", s.handleConfigureCycle)
		r.Get("/cycles", s.handleListCycles)

		r.Post("/analysis/trigger", s.handleTriggerAnalysis)
		r.Get("/analysis/{cycle}", s.handleGetAnalysis)

		r.Get("/suggestions", s.handleLatestSuggestions)
		r.Get("/suggestions/{exerciseName}", s.handleGetSuggestion)

		if s.importer != nil {
			r.Post("/import/alpha", s.handleImportAlpha)
		}
	})

	s.router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
}

// Mount attaches an unauthenticated handler beside the API.
func (s *Server) Mount(pattern string, h http.Handler) {
	s.router.Mount(pattern, h)
}

// MountWithIdentity attaches a handler that sees the same caller identity as
// the API routes.
func (s *Server) MountWithIdentity(pattern string, h http.Handler) {
	s.router.With(s.identity, RequireIdentity).Mount(pattern, h)
}

// UserID returns the caller identity stored by the identity middleware.
func UserID(r *http.Request) string {
	return userIDFromContext(r)
}
