package audit

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router exposing the audit trail read API.
func NewRouter(store *Store) chi.Router {
	r := chi.NewRouter()
	r.Get("/{entityType}/{entityID}", getTrailHandler(store))
	return r
}
