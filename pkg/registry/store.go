// Package registry owns the system-instance catalog, the vendor directory,
// and the lookup tables backing criticality and validation classification.
// Every mutating operation writes its audit record inside the same
// transaction; a failed audit write aborts the mutation.
package registry

import (
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/audit"
)

// Audit entity type tags.
const (
	EntitySystemInstance = "system_instance"
	EntityVendor         = "vendor"
)

// Store provides registry operations over the backing database.
type Store struct {
	db       *gorm.DB
	recorder *audit.Recorder
}

// NewStore creates a registry Store.
func NewStore(db *gorm.DB, recorder *audit.Recorder) *Store {
	return &Store{db: db, recorder: recorder}
}

// AutoMigrate creates or updates the registry tables.
func (s *Store) AutoMigrate() error {
	for _, model := range []any{&SystemInstance{}, &Vendor{}, &SystemCategory{}, &ValidationStatus{}, &Criticality{}} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate registry tables: %w", err)
		}
	}
	return nil
}

// StateMap serializes a system instance's descriptive attributes into a
// value map. Used both for audit before/after images and for confirmation
// snapshots.
func StateMap(sys *SystemInstance) audit.JSONMap {
	m := audit.JSONMap{
		"instance_code":          sys.InstanceCode,
		"platform_name":          sys.PlatformName,
		"platform_version":       sys.PlatformVersion,
		"instance_name":          sys.InstanceName,
		"instance_environment":   sys.Environment,
		"category_code":          sys.CategoryCode,
		"validation_status_code": sys.ValidationStatusCode,
		"hosting_model":          sys.HostingModel,
		"data_hosting_region":    sys.DataHostingRegion,
		"is_active":              sys.IsActive,
	}
	if sys.ValidationDate != nil {
		m["validation_date"] = sys.ValidationDate.Format("2006-01-02")
	}
	if sys.ValidationExpiry != nil {
		m["validation_expiry"] = sys.ValidationExpiry.Format("2006-01-02")
	}
	return m
}

// CreateSystem registers a new system instance.
func (s *Store) CreateSystem(sys *SystemInstance, actor string) (*SystemInstance, error) {
	if sys.InstanceCode == "" || sys.PlatformName == "" {
		return nil, apierrors.Validation("instance_code and platform_name are required")
	}
	if sys.CategoryCode == "" || sys.ValidationStatusCode == "" {
		return nil, apierrors.Validation("category_code and validation_status_code are required")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&SystemInstance{}).Where("instance_code = ?", sys.InstanceCode).Count(&count).Error; err != nil {
			return fmt.Errorf("check instance code: %w", err)
		}
		if count > 0 {
			return apierrors.Conflict("system instance with code %q already exists", sys.InstanceCode)
		}

		if sys.ID == "" {
			sys.ID = uuid.New().String()
		}
		if sys.Environment == "" {
			sys.Environment = "PRODUCTION"
		}
		sys.IsActive = true
		sys.CreatedBy = actor
		sys.UpdatedBy = actor

		if err := tx.Create(sys).Error; err != nil {
			return fmt.Errorf("create system instance: %w", err)
		}

		_, err := s.recorder.Record(tx, EntitySystemInstance, sys.ID, audit.OpInsert, actor, nil, StateMap(sys))
		return err
	})
	if err != nil {
		return nil, err
	}
	return sys, nil
}

// UpdateSystem applies the given attribute changes to a system instance.
// Vendor-ingestion callers go through this same path so their mutations are
// audited identically.
func (s *Store) UpdateSystem(id string, apply func(*SystemInstance), actor string) (*SystemInstance, error) {
	var updated SystemInstance
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var sys SystemInstance
		if err := tx.First(&sys, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("system instance", id)
			}
			return fmt.Errorf("load system instance: %w", err)
		}

		before := StateMap(&sys)
		apply(&sys)
		sys.ID = id
		sys.UpdatedBy = actor

		if err := tx.Save(&sys).Error; err != nil {
			return fmt.Errorf("update system instance: %w", err)
		}

		if _, err := s.recorder.Record(tx, EntitySystemInstance, sys.ID, audit.OpUpdate, actor, before, StateMap(&sys)); err != nil {
			return err
		}
		updated = sys
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeactivateSystem soft-deletes a system instance. The row is kept for
// snapshot and audit continuity.
func (s *Store) DeactivateSystem(id, actor string) error {
	return s.db.Transaction(func(tx *gorm.DB) error {
		var sys SystemInstance
		if err := tx.First(&sys, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("system instance", id)
			}
			return fmt.Errorf("load system instance: %w", err)
		}
		if !sys.IsActive {
			return apierrors.InvalidState("system instance %s is already inactive", id)
		}

		before := StateMap(&sys)
		sys.IsActive = false
		sys.UpdatedBy = actor
		if err := tx.Save(&sys).Error; err != nil {
			return fmt.Errorf("deactivate system instance: %w", err)
		}

		_, err := s.recorder.Record(tx, EntitySystemInstance, sys.ID, audit.OpUpdate, actor, before, StateMap(&sys))
		return err
	})
}

// GetSystem retrieves a system instance by ID.
func (s *Store) GetSystem(id string) (*SystemInstance, error) {
	var sys SystemInstance
	if err := s.db.First(&sys, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierrors.NotFound("system instance", id)
		}
		return nil, fmt.Errorf("get system instance: %w", err)
	}
	return &sys, nil
}

// SystemFilter defines filters for listing system instances.
type SystemFilter struct {
	CategoryCode     string
	ValidationStatus string
	HostingRegion    string
	VendorID         string
	Search           string
	IncludeInactive  bool
}

// ListSystems returns paginated system instances matching the filter,
// ordered by instance code.
func (s *Store) ListSystems(filter SystemFilter, pageSize int, pageToken string) ([]SystemInstance, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&SystemInstance{})
		if filter.CategoryCode != "" {
			q = q.Where("category_code = ?", filter.CategoryCode)
		}
		if filter.ValidationStatus != "" {
			q = q.Where("validation_status_code = ?", filter.ValidationStatus)
		}
		if filter.HostingRegion != "" {
			q = q.Where("data_hosting_region = ?", filter.HostingRegion)
		}
		if filter.VendorID != "" {
			q = q.Where("platform_vendor_id = ? OR service_provider_id = ?", filter.VendorID, filter.VendorID)
		}
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			q = q.Where("instance_code LIKE ? OR platform_name LIKE ? OR instance_name LIKE ?", pattern, pattern, pattern)
		}
		if !filter.IncludeInactive {
			q = q.Where("is_active = ?", true)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count system instances: %w", err)
	}

	query := buildQuery(s.db).Order("instance_code ASC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("instance_code > ?", pageToken)
	}

	var records []SystemInstance
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list system instances: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].InstanceCode
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// CreateVendor registers a new vendor.
func (s *Store) CreateVendor(v *Vendor, actor string) (*Vendor, error) {
	if v.VendorCode == "" || v.VendorName == "" || v.VendorType == "" {
		return nil, apierrors.Validation("vendor_code, vendor_name and vendor_type are required")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Vendor{}).Where("vendor_code = ?", v.VendorCode).Count(&count).Error; err != nil {
			return fmt.Errorf("check vendor code: %w", err)
		}
		if count > 0 {
			return apierrors.Conflict("vendor with code %q already exists", v.VendorCode)
		}

		if v.ID == "" {
			v.ID = uuid.New().String()
		}
		v.IsActive = true
		v.CreatedBy = actor
		v.UpdatedBy = actor

		if err := tx.Create(v).Error; err != nil {
			return fmt.Errorf("create vendor: %w", err)
		}

		_, err := s.recorder.Record(tx, EntityVendor, v.ID, audit.OpInsert, actor, nil, vendorMap(v))
		return err
	})
	if err != nil {
		return nil, err
	}
	return v, nil
}

// UpdateVendor applies attribute changes to a vendor.
func (s *Store) UpdateVendor(id string, apply func(*Vendor), actor string) (*Vendor, error) {
	var updated Vendor
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var v Vendor
		if err := tx.First(&v, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("vendor", id)
			}
			return fmt.Errorf("load vendor: %w", err)
		}

		before := vendorMap(&v)
		apply(&v)
		v.ID = id
		v.UpdatedBy = actor

		if err := tx.Save(&v).Error; err != nil {
			return fmt.Errorf("update vendor: %w", err)
		}

		if _, err := s.recorder.Record(tx, EntityVendor, v.ID, audit.OpUpdate, actor, before, vendorMap(&v)); err != nil {
			return err
		}
		updated = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// ListVendors returns all vendors, optionally including inactive ones.
func (s *Store) ListVendors(includeInactive bool) ([]Vendor, error) {
	q := s.db.Order("vendor_code ASC")
	if !includeInactive {
		q = q.Where("is_active = ?", true)
	}
	var vendors []Vendor
	if err := q.Find(&vendors).Error; err != nil {
		return nil, fmt.Errorf("list vendors: %w", err)
	}
	return vendors, nil
}

func vendorMap(v *Vendor) audit.JSONMap {
	return audit.JSONMap{
		"vendor_code":   v.VendorCode,
		"vendor_name":   v.VendorName,
		"vendor_type":   v.VendorType,
		"contact_name":  v.ContactName,
		"contact_email": v.ContactEmail,
		"is_active":     v.IsActive,
	}
}

// ListCategories returns active system categories in sort order.
func (s *Store) ListCategories() ([]SystemCategory, error) {
	var categories []SystemCategory
	if err := s.db.Where("is_active = ?", true).Order("sort_order ASC").Find(&categories).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return categories, nil
}

// ListValidationStatuses returns active validation statuses in sort order.
func (s *Store) ListValidationStatuses() ([]ValidationStatus, error) {
	var statuses []ValidationStatus
	if err := s.db.Where("is_active = ?", true).Order("sort_order ASC").Find(&statuses).Error; err != nil {
		return nil, fmt.Errorf("list validation statuses: %w", err)
	}
	return statuses, nil
}

// ListCriticalities returns active criticality levels in sort order.
func (s *Store) ListCriticalities() ([]Criticality, error) {
	var levels []Criticality
	if err := s.db.Where("is_active = ?", true).Order("sort_order ASC").Find(&levels).Error; err != nil {
		return nil, fmt.Errorf("list criticalities: %w", err)
	}
	return levels, nil
}

// DefaultCriticalityFor returns the default criticality for a category code.
// Falls back to STD when the category is unknown.
func DefaultCriticalityFor(tx *gorm.DB, categoryCode string) (string, error) {
	var category SystemCategory
	err := tx.First(&category, "category_code = ?", categoryCode).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return CriticalityStandard, nil
		}
		return "", fmt.Errorf("load category: %w", err)
	}
	return category.DefaultCriticality, nil
}
