package registry

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with the registry API routes.
func NewRouter(store *Store) chi.Router {
	r := chi.NewRouter()

	r.Route("/systems", func(r chi.Router) {
		r.Get("/", listSystemsHandler(store))
		r.Post("/", createSystemHandler(store))
		r.Get("/{id}", getSystemHandler(store))
		r.Put("/{id}", updateSystemHandler(store))
		r.Delete("/{id}", deactivateSystemHandler(store))
	})

	r.Route("/vendors", func(r chi.Router) {
		r.Get("/", listVendorsHandler(store))
		r.Post("/", createVendorHandler(store))
		r.Put("/{id}", updateVendorHandler(store))
	})

	r.Get("/lookups", listLookupsHandler(store))
	r.Get("/stats", statsHandler(store))

	return r
}
