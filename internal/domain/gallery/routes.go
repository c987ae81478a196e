package gallery

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the gallery router
func (h *Handler) Routes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	// Public reads
	r.Get("/", h.List)
	r.Get("/{id}", h.Get)

	// Authenticated operations
	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)

		r.Post("/ingest", h.Ingest)
		r.Delete("/{id}", h.SoftDelete)

		// Moderation
		r.Group(func(r chi.Router) {
			r.Use(adminMiddleware)
			r.Patch("/{id}/status", h.UpdateStatus)
			r.Post("/{id}/restore", h.Restore)
			r.Delete("/{id}/hard", h.HardDelete)
			r.Get("/{id}/audit", h.ListAudit)
		})
	})

	return r
}
