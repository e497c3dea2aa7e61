package audit

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
)

// getTrailHandler returns a handler that lists the audit trail for one
// entity.
func getTrailHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entityType := chi.URLParam(r, "entityType")
		entityID := chi.URLParam(r, "entityID")

		pageSize := 20
		if ps := r.URL.Query().Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}
		pageToken := r.URL.Query().Get("pageToken")

		records, nextToken, total, err := store.TrailForEntity(entityType, entityID, pageSize, pageToken)
		if err != nil {
			writeError(w, err)
			return
		}

		entries := make([]Entry, len(records))
		for i, rec := range records {
			entries[i] = recordToEntry(rec)
		}

		writeJSON(w, http.StatusOK, EntryList{
			Entries:       entries,
			NextPageToken: nextToken,
			TotalSize:     total,
		})
	}
}

// recordToEntry converts a stored audit record to the API type.
func recordToEntry(rec Record) Entry {
	return Entry{
		ID:         rec.ID,
		EntityType: rec.EntityType,
		EntityID:   rec.EntityID,
		Operation:  rec.Operation,
		Actor:      rec.Actor,
		OldValues:  map[string]any(rec.OldValues),
		NewValues:  map[string]any(rec.NewValues),
		ChangedAt:  rec.ChangedAt.Format(time.RFC3339),
	}
}

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response, mapping taxonomy errors to their
// HTTP status.
func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apierrors.StatusOf(err), map[string]string{"error": err.Error()})
}
