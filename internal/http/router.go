// Package http wires the chi router, middleware, and handlers together.
package http

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"mirza-mirror/internal/handlers"
	"mirza-mirror/internal/importer"
	"mirza-mirror/internal/search"
	"mirza-mirror/internal/service"
	"mirza-mirror/internal/storage"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	DB            *sql.DB
	Capture       *service.CaptureService
	Importer      *importer.Importer
	Search        *search.Facade
	Thoughts      storage.ThoughtStore
	Tags          storage.TagStore
	Links         storage.LinkStore
	Actions       storage.ActionStore
	Conversations storage.ConversationStore
	VectorChecker handlers.VectorChecker
	Collection    string
	Logger        *slog.Logger
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	// Add chi middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware(deps.Logger))
	r.Use(CORS)

	thoughtHandler := handlers.NewThoughtHandler(deps.Capture, deps.Thoughts, deps.Tags, deps.Links, deps.Actions)
	searchHandler := handlers.NewSearchHandler(deps.Search)
	importHandler := handlers.NewImportHandler(deps.Importer, deps.Conversations, deps.Thoughts)
	actionHandler := handlers.NewActionHandler(deps.Actions)
	tagHandler := handlers.NewTagHandler(deps.Tags)
	linkHandler := handlers.NewLinkHandler(deps.Links)
	healthHandler := handlers.NewHealthHandler(deps.DB, deps.VectorChecker, deps.Collection)

	r.Route("/api", func(r chi.Router) {
		r.Method(http.MethodGet, "/health", healthHandler)

		r.Route("/thoughts", func(r chi.Router) {
			r.Post("/", thoughtHandler.CreateText)
			r.Post("/audio", thoughtHandler.CreateAudio)
			r.Post("/document", thoughtHandler.CreateDocument)
			r.Get("/", thoughtHandler.List)
			r.Get("/{id}", thoughtHandler.Get)
			r.Patch("/{id}", thoughtHandler.Patch)
			r.Delete("/{id}", thoughtHandler.Delete)
			r.Get("/{id}/links", thoughtHandler.Links)
			r.Get("/{id}/similar", searchHandler.Similar)
			r.Post("/{id}/enrich", thoughtHandler.Enrich)
		})

		r.Get("/search", searchHandler.Search)

		r.Route("/import", func(r chi.Router) {
			r.Post("/", importHandler.Import)
			r.Get("/sources", importHandler.Sources)
			r.Get("/formats", importHandler.Formats)
		})

		r.Route("/conversations", func(r chi.Router) {
			r.Get("/", importHandler.ListConversations)
			r.Get("/{id}", importHandler.GetConversation)
			r.Delete("/{id}", importHandler.DeleteConversation)
		})

		r.Route("/actions", func(r chi.Router) {
			r.Get("/", actionHandler.ListOpen)
			r.Get("/{id}", actionHandler.Get)
			r.Patch("/{id}", actionHandler.Update)
			r.Delete("/{id}", actionHandler.Delete)
		})

		r.Route("/tags", func(r chi.Router) {
			r.Get("/", tagHandler.List)
			r.Get("/{id}", tagHandler.Get)
			r.Patch("/{id}", tagHandler.Update)
			r.Delete("/{id}", tagHandler.Delete)
		})

		r.Route("/links", func(r chi.Router) {
			r.Post("/", linkHandler.Create)
			r.Get("/{id}", linkHandler.Get)
			r.Patch("/{id}", linkHandler.Update)
			r.Delete("/{id}", linkHandler.Delete)
		})
	})

	return r
}
