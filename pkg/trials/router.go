package trials

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter builds the HTTP routes for trials and their system links.
func NewRouter(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Get("/", listTrialsHandler(store))
	r.Post("/", createTrialHandler(store))
	r.Get("/{id}", getTrialHandler(store))
	r.Put("/{id}", updateTrialHandler(store))
	r.Post("/{id}/links", linkSystemHandler(store))
	r.Put("/{id}/links/{linkID}", updateLinkHandler(store))
	r.Delete("/{id}/links/{linkID}", unlinkHandler(store))

	return r
}
