package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"journal-sync/internal/handlers"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Journal handlers.JournalService
	// Syncer is nil when no journal directory is configured.
	Syncer     handlers.Syncer
	DB         handlers.Pinger
	JournalDir string
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(CORS)

	entries := handlers.NewEntryHandler(deps.Journal, deps.Syncer)
	health := handlers.NewHealthHandler(deps.DB, deps.JournalDir)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", health)

		r.Route("/entries", func(r chi.Router) {
			r.Get("/", entries.List)
			r.Post("/", entries.Create)
			r.Route("/{date}", func(r chi.Router) {
				r.Get("/", entries.Get)
				r.Patch("/", entries.Update)
				r.Delete("/", entries.Delete)
				r.Get("/document", entries.Document)
				r.Post("/restore", entries.Restore)
			})
		})

		r.Get("/tombstones", entries.Tombstones)
		r.Post("/tombstones/prune", entries.PruneTombstones)
		r.Post("/sync", entries.Sync)
	})

	return r
}
