package confirmations

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter builds the HTTP routes for the confirmation workflow.
func NewRouter(engine *Engine) chi.Router {
	r := chi.NewRouter()

	r.Get("/", listHandler(engine))
	r.Post("/", openHandler(engine))
	r.Get("/{id}", getHandler(engine))
	r.Post("/{id}/submit", submitHandler(engine))

	return r
}
