package registry

import (
	"time"
)

// SystemInstance is one registered IT system version. Every mutation to a
// row produces an audit record in the same transaction.
type SystemInstance struct {
	ID                   string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	InstanceCode         string     `gorm:"column:instance_code;uniqueIndex;not null"`
	PlatformName         string     `gorm:"column:platform_name;not null"`
	PlatformVersion      string     `gorm:"column:platform_version"`
	InstanceName         string     `gorm:"column:instance_name"`
	Environment          string     `gorm:"column:instance_environment;default:PRODUCTION;not null"`
	CategoryCode         string     `gorm:"column:category_code;index;not null"`
	PlatformVendorID     string     `gorm:"column:platform_vendor_id;index"`
	ServiceProviderID    string     `gorm:"column:service_provider_id;index"`
	ValidationStatusCode string     `gorm:"column:validation_status_code;index;not null"`
	ValidationDate       *time.Time `gorm:"column:validation_date"`
	ValidationExpiry     *time.Time `gorm:"column:validation_expiry"`
	HostingModel         string     `gorm:"column:hosting_model"`
	DataHostingRegion    string     `gorm:"column:data_hosting_region"`
	Description          string     `gorm:"column:description;type:text"`
	Part11Compliant      *bool      `gorm:"column:part11_compliant"`
	Annex11Compliant     *bool      `gorm:"column:annex11_compliant"`
	IsActive             bool       `gorm:"column:is_active;default:true;not null"`
	CreatedAt            time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt            time.Time  `gorm:"column:updated_at;autoUpdateTime"`
	CreatedBy            string     `gorm:"column:created_by"`
	UpdatedBy            string     `gorm:"column:updated_by"`
}

// TableName returns the GORM table name.
func (SystemInstance) TableName() string { return "system_instances" }

// Vendor is a platform vendor, service provider, CRO, or lab.
type Vendor struct {
	ID           string    `gorm:"primaryKey;column:id;type:varchar(36)"`
	VendorCode   string    `gorm:"column:vendor_code;uniqueIndex;not null"`
	VendorName   string    `gorm:"column:vendor_name;not null"`
	VendorType   string    `gorm:"column:vendor_type;index;not null"`
	ContactName  string    `gorm:"column:contact_name"`
	ContactEmail string    `gorm:"column:contact_email"`
	IsActive     bool      `gorm:"column:is_active;default:true;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time `gorm:"column:updated_at;autoUpdateTime"`
	CreatedBy    string    `gorm:"column:created_by"`
	UpdatedBy    string    `gorm:"column:updated_by"`
}

// TableName returns the GORM table name.
func (Vendor) TableName() string { return "vendors" }

// SystemCategory is reference data classifying system instances. The default
// criticality is the baseline for trial links: assigning a different
// criticality is an override and requires a reason.
type SystemCategory struct {
	CategoryCode       string `gorm:"primaryKey;column:category_code;type:varchar(20)"`
	CategoryName       string `gorm:"column:category_name;not null"`
	Description        string `gorm:"column:description"`
	DefaultCriticality string `gorm:"column:default_criticality;default:STD;not null"`
	SortOrder          int    `gorm:"column:sort_order;default:0;not null"`
	IsActive           bool   `gorm:"column:is_active;default:true;not null"`
}

// TableName returns the GORM table name.
func (SystemCategory) TableName() string { return "lkp_system_category" }

// ValidationStatus is reference data for system validation states.
type ValidationStatus struct {
	StatusCode        string `gorm:"primaryKey;column:status_code;type:varchar(20)"`
	StatusName        string `gorm:"column:status_name;not null"`
	Description       string `gorm:"column:description"`
	RequiresAttention bool   `gorm:"column:requires_attention;default:false;not null"`
	SortOrder         int    `gorm:"column:sort_order;default:0;not null"`
	IsActive          bool   `gorm:"column:is_active;default:true;not null"`
}

// TableName returns the GORM table name.
func (ValidationStatus) TableName() string { return "lkp_validation_status" }

// Criticality is reference data for link risk classification.
type Criticality struct {
	CriticalityCode string `gorm:"primaryKey;column:criticality_code;type:varchar(10)"`
	CriticalityName string `gorm:"column:criticality_name;not null"`
	Description     string `gorm:"column:description"`
	SortOrder       int    `gorm:"column:sort_order;default:0;not null"`
	IsActive        bool   `gorm:"column:is_active;default:true;not null"`
}

// TableName returns the GORM table name.
func (Criticality) TableName() string { return "lkp_criticality" }

// Validation status codes that flag a system as needing attention.
const (
	ValidationValidated    = "VALIDATED"
	ValidationPending      = "PENDING_VALIDATION"
	ValidationExpired      = "VAL_EXPIRED"
	ValidationNotValidated = "NOT_VALIDATED"
)

// Criticality codes.
const (
	CriticalityCritical = "CRIT"
	CriticalityMajor    = "MAJ"
	CriticalityStandard = "STD"
)
