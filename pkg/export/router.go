package export

import (
	"github.com/go-chi/chi/v5"
)

// NewRouter builds the HTTP routes for report exports.
func NewRouter(assembler *Assembler) chi.Router {
	r := chi.NewRouter()

	r.Get("/confirmations/{id}.csv", exportCSVHandler(assembler))

	return r
}
