package trials

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/registry"
)

// TrialRequest is the request body for creating or updating a trial.
type TrialRequest struct {
	ProtocolNumber    string  `json:"protocol_number"`
	Title             string  `json:"trial_title"`
	Phase             *string `json:"trial_phase"`
	TherapeuticArea   *string `json:"therapeutic_area"`
	StartDate         *string `json:"trial_start_date"`
	PlannedDBLockDate *string `json:"planned_db_lock_date"`
	LeadName          *string `json:"trial_lead_name"`
	LeadEmail         *string `json:"trial_lead_email"`
	CTMSTrialID       *string `json:"ctms_trial_id"`
}

// LinkRequest is the request body for linking a system to a trial.
type LinkRequest struct {
	InstanceID     string  `json:"instance_id"`
	Criticality    string  `json:"criticality_code"`
	OverrideReason string  `json:"criticality_override_reason"`
	UsageStartDate *string `json:"usage_start_date"`
}

// UnlinkRequest is the request body for ending a link.
type UnlinkRequest struct {
	Reason string `json:"reason"`
}

func parseDateField(s *string) (*time.Time, error) {
	if s == nil || *s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", *s)
	if err != nil {
		return nil, apierrors.Validation("malformed date %q, expected YYYY-MM-DD", *s)
	}
	return &t, nil
}

func createTrialHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req TrialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		t := &Trial{
			ProtocolNumber: req.ProtocolNumber,
			Title:          req.Title,
		}
		applyTrialRequest(t, &req)

		var err error
		if t.StartDate, err = parseDateField(req.StartDate); err != nil {
			writeError(w, err)
			return
		}
		if t.PlannedDBLockDate, err = parseDateField(req.PlannedDBLockDate); err != nil {
			writeError(w, err)
			return
		}

		created, err := store.CreateTrial(t, registry.ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func applyTrialRequest(t *Trial, req *TrialRequest) {
	if req.Phase != nil {
		t.Phase = *req.Phase
	}
	if req.TherapeuticArea != nil {
		t.TherapeuticArea = *req.TherapeuticArea
	}
	if req.LeadName != nil {
		t.LeadName = *req.LeadName
	}
	if req.LeadEmail != nil {
		t.LeadEmail = *req.LeadEmail
	}
	if req.CTMSTrialID != nil {
		t.CTMSTrialID = *req.CTMSTrialID
	}
}

func updateTrialHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req TrialRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		startDate, err := parseDateField(req.StartDate)
		if err != nil {
			writeError(w, err)
			return
		}
		plannedLock, err := parseDateField(req.PlannedDBLockDate)
		if err != nil {
			writeError(w, err)
			return
		}

		updated, err := store.UpdateTrial(id, func(t *Trial) {
			if req.Title != "" {
				t.Title = req.Title
			}
			if startDate != nil {
				t.StartDate = startDate
			}
			if plannedLock != nil {
				t.PlannedDBLockDate = plannedLock
			}
			applyTrialRequest(t, &req)
		}, registry.ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func getTrialHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		t, err := store.GetTrial(id)
		if err != nil {
			writeError(w, err)
			return
		}
		links, err := store.LinksForTrial(id, r.URL.Query().Get("allLinks") != "true")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"trial": t,
			"links": links,
		})
	}
}

func listTrialsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := TrialFilter{
			Status:    TrialStatus(q.Get("status")),
			Phase:     q.Get("phase"),
			LeadEmail: q.Get("lead"),
			Search:    q.Get("search"),
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		records, nextToken, total, err := store.ListTrials(filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"trials":          records,
			"next_page_token": nextToken,
			"total_size":      total,
		})
	}
}

func linkSystemHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		trialID := chi.URLParam(r, "id")

		var req LinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		usageStart, err := parseDateField(req.UsageStartDate)
		if err != nil {
			writeError(w, err)
			return
		}

		link, err := store.LinkSystem(trialID, req.InstanceID, req.Criticality,
			req.OverrideReason, usageStart, registry.ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, link)
	}
}

func updateLinkHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req LinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		link, err := store.UpdateLinkCriticality(chi.URLParam(r, "linkID"),
			req.Criticality, req.OverrideReason, registry.ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, link)
	}
}

func unlinkHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req UnlinkRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		if err := store.Unlink(chi.URLParam(r, "linkID"), req.Reason, registry.ActorFromRequest(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
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
