package account

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Routes returns the account router
func (h *Handler) Routes(authMiddleware, adminMiddleware func(http.Handler) http.Handler) chi.Router {
	r := chi.NewRouter()

	r.Post("/token", h.Token)

	r.Group(func(r chi.Router) {
		r.Use(authMiddleware)
		r.Use(adminMiddleware)
		r.Post("/", h.Provision)
	})

	return r
}
