package confirmations

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/registry"
)

// OpenRequest is the request body for opening a confirmation cycle.
type OpenRequest struct {
	TrialID          string `json:"trial_id"`
	ConfirmationType string `json:"confirmation_type"`
	DueDate          string `json:"due_date"`
}

// SubmissionRequest is the request body for submitting a confirmation.
type SubmissionRequest struct {
	SubmitterRole string `json:"submitter_role"`
	Comments      string `json:"comments"`
	Attested      bool   `json:"attested"`
}

func openHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req OpenRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		due := time.Now()
		if req.DueDate != "" {
			parsed, err := time.Parse("2006-01-02", req.DueDate)
			if err != nil {
				writeError(w, apierrors.Validation("malformed date %q, expected YYYY-MM-DD", req.DueDate))
				return
			}
			due = parsed
		}

		confType := TypePeriodic
		if req.ConfirmationType != "" {
			confType = ConfirmationType(req.ConfirmationType)
		}

		conf, err := engine.Open(req.TrialID, confType, due, registry.ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, conf)
	}
}

func submitHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SubmissionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		conf, err := engine.Submit(chi.URLParam(r, "id"), SubmitRequest{
			SubmittedBy:   registry.ActorFromRequest(r),
			SubmitterRole: req.SubmitterRole,
			Comments:      req.Comments,
			Attested:      req.Attested,
		}, time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, conf)
	}
}

func getHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		detail, err := engine.GetDetail(chi.URLParam(r, "id"), time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, detail)
	}
}

func listHandler(engine *Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := Filter{
			TrialID: q.Get("trial"),
			Type:    ConfirmationType(q.Get("type")),
			Status:  ConfirmationStatus(q.Get("status")),
		}
		if d := q.Get("dueWithinDays"); d != "" {
			if v, err := strconv.Atoi(d); err == nil && v > 0 {
				filter.DueWithinDays = v
			}
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := engine.List(filter, pageSize, q.Get("pageToken"), time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"confirmations":   records,
			"next_page_token": nextToken,
			"total_size":      total,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, apierrors.StatusOf(err), map[string]string{"error": err.Error()})
}
