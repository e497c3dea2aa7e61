package registry

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
)

// SystemRequest is the request body for creating or updating a system
// instance.
type SystemRequest struct {
	InstanceCode         string  `json:"instance_code"`
	PlatformName         string  `json:"platform_name"`
	PlatformVersion      *string `json:"platform_version"`
	InstanceName         *string `json:"instance_name"`
	Environment          *string `json:"instance_environment"`
	CategoryCode         string  `json:"category_code"`
	PlatformVendorID     *string `json:"platform_vendor_id"`
	ServiceProviderID    *string `json:"service_provider_id"`
	ValidationStatusCode string  `json:"validation_status_code"`
	ValidationDate       *string `json:"validation_date"`
	ValidationExpiry     *string `json:"validation_expiry"`
	HostingModel         *string `json:"hosting_model"`
	DataHostingRegion    *string `json:"data_hosting_region"`
	Description          *string `json:"description"`
}

// ActorFromRequest extracts the acting identity resolved by the
// authentication collaborator. Falls back to "system" for internal calls.
func ActorFromRequest(r *http.Request) string {
	if email := r.Header.Get("X-User-Email"); email != "" {
		return email
	}
	if role := r.Header.Get("X-User-Role"); role != "" {
		return role
	}
	return "system"
}

func parseDate(s string) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return nil, apierrors.Validation("malformed date %q, expected YYYY-MM-DD", s)
	}
	return &t, nil
}

func createSystemHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SystemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		sys := &SystemInstance{
			InstanceCode:         req.InstanceCode,
			PlatformName:         req.PlatformName,
			CategoryCode:         req.CategoryCode,
			ValidationStatusCode: req.ValidationStatusCode,
		}
		applySystemRequest(sys, &req)

		var err error
		if sys.ValidationDate, err = parseDateField(req.ValidationDate); err != nil {
			writeError(w, err)
			return
		}
		if sys.ValidationExpiry, err = parseDateField(req.ValidationExpiry); err != nil {
			writeError(w, err)
			return
		}

		created, err := store.CreateSystem(sys, ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func parseDateField(s *string) (*time.Time, error) {
	if s == nil {
		return nil, nil
	}
	return parseDate(*s)
}

// applySystemRequest copies optional request fields onto the instance.
func applySystemRequest(sys *SystemInstance, req *SystemRequest) {
	if req.PlatformVersion != nil {
		sys.PlatformVersion = *req.PlatformVersion
	}
	if req.InstanceName != nil {
		sys.InstanceName = *req.InstanceName
	}
	if req.Environment != nil {
		sys.Environment = *req.Environment
	}
	if req.PlatformVendorID != nil {
		sys.PlatformVendorID = *req.PlatformVendorID
	}
	if req.ServiceProviderID != nil {
		sys.ServiceProviderID = *req.ServiceProviderID
	}
	if req.HostingModel != nil {
		sys.HostingModel = *req.HostingModel
	}
	if req.DataHostingRegion != nil {
		sys.DataHostingRegion = *req.DataHostingRegion
	}
	if req.Description != nil {
		sys.Description = *req.Description
	}
}

func updateSystemHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req SystemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		validationDate, err := parseDateField(req.ValidationDate)
		if err != nil {
			writeError(w, err)
			return
		}
		validationExpiry, err := parseDateField(req.ValidationExpiry)
		if err != nil {
			writeError(w, err)
			return
		}

		updated, err := store.UpdateSystem(id, func(sys *SystemInstance) {
			if req.PlatformName != "" {
				sys.PlatformName = req.PlatformName
			}
			if req.CategoryCode != "" {
				sys.CategoryCode = req.CategoryCode
			}
			if req.ValidationStatusCode != "" {
				sys.ValidationStatusCode = req.ValidationStatusCode
			}
			if validationDate != nil {
				sys.ValidationDate = validationDate
			}
			if validationExpiry != nil {
				sys.ValidationExpiry = validationExpiry
			}
			applySystemRequest(sys, &req)
		}, ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func getSystemHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sys, err := store.GetSystem(chi.URLParam(r, "id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, sys)
	}
}

func deactivateSystemHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := store.DeactivateSystem(chi.URLParam(r, "id"), ActorFromRequest(r)); err != nil {
			writeError(w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func listSystemsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		filter := SystemFilter{
			CategoryCode:     q.Get("category"),
			ValidationStatus: q.Get("validationStatus"),
			HostingRegion:    q.Get("region"),
			VendorID:         q.Get("vendor"),
			Search:           q.Get("search"),
			IncludeInactive:  q.Get("includeInactive") == "true",
		}

		pageSize := 20
		if ps := q.Get("pageSize"); ps != "" {
			if v, err := strconv.Atoi(ps); err == nil && v > 0 {
				pageSize = v
			}
		}

		systems, nextToken, total, err := store.ListSystems(filter, pageSize, q.Get("pageToken"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"systems":         systems,
			"next_page_token": nextToken,
			"total_size":      total,
		})
	}
}

// VendorRequest is the request body for creating or updating a vendor.
type VendorRequest struct {
	VendorCode   string  `json:"vendor_code"`
	VendorName   string  `json:"vendor_name"`
	VendorType   string  `json:"vendor_type"`
	ContactName  *string `json:"contact_name"`
	ContactEmail *string `json:"contact_email"`
}

func createVendorHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req VendorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}
		v := &Vendor{
			VendorCode: req.VendorCode,
			VendorName: req.VendorName,
			VendorType: req.VendorType,
		}
		if req.ContactName != nil {
			v.ContactName = *req.ContactName
		}
		if req.ContactEmail != nil {
			v.ContactEmail = *req.ContactEmail
		}

		created, err := store.CreateVendor(v, ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, created)
	}
}

func updateVendorHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		var req VendorRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, apierrors.Validation("invalid request body: %v", err))
			return
		}

		updated, err := store.UpdateVendor(id, func(v *Vendor) {
			if req.VendorName != "" {
				v.VendorName = req.VendorName
			}
			if req.VendorType != "" {
				v.VendorType = req.VendorType
			}
			if req.ContactName != nil {
				v.ContactName = *req.ContactName
			}
			if req.ContactEmail != nil {
				v.ContactEmail = *req.ContactEmail
			}
		}, ActorFromRequest(r))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func listVendorsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vendors, err := store.ListVendors(r.URL.Query().Get("includeInactive") == "true")
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"vendors": vendors})
	}
}

func listLookupsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		categories, err := store.ListCategories()
		if err != nil {
			writeError(w, err)
			return
		}
		statuses, err := store.ListValidationStatuses()
		if err != nil {
			writeError(w, err)
			return
		}
		levels, err := store.ListCriticalities()
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"categories":          categories,
			"validation_statuses": statuses,
			"criticalities":       levels,
		})
	}
}

func statsHandler(store *Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := store.Stats(time.Now())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, stats)
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
