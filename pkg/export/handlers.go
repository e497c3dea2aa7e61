package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
)

func exportCSVHandler(assembler *Assembler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		// Assemble into a buffer first so a mid-report error still maps to
		// a clean error status instead of a truncated 200.
		var buf bytes.Buffer
		if err := assembler.WriteCSV(&buf, id, time.Now()); err != nil {
			writeError(w, err)
			return
		}

		w.Header().Set("Content-Type", "text/csv")
		w.Header().Set("Content-Disposition",
			fmt.Sprintf("attachment; filename=%q", "confirmation-"+id+".csv"))
		w.WriteHeader(http.StatusOK)
		_, _ = buf.WriteTo(w)
	}
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(apierrors.StatusOf(err))
	_ = json.NewEncoder(w).Encode(map[string]string{"error": err.Error()})
}
