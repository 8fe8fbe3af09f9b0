package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/starford/wikiport/internal/pageservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *pageservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(authEnabled, token))

		// Vault browsing.
		r.Get("/pages", h.ListPages)
		r.Get("/pages/{name}", h.GetPage)
		r.Get("/pages/{name}/html", h.RenderPage)
		r.Get("/pages/{name}/backlinks", h.Backlinks)
		r.Get("/search", h.Search)
		r.Get("/tags", h.Tags)
		r.Get("/graph", h.Graph)

		// Conversion.
		r.Post("/convert/preview", h.Preview)
		r.Post("/convert", h.Convert)
		r.Post("/index/sync", h.SyncIndex)

		if sseHandler != nil {
			r.Get("/events", sseHandler.ServeHTTP)
		}
	})

	return r
}
