package trials

import (
	"time"
)

// TrialStatus is the lifecycle status of a clinical trial.
type TrialStatus string

const (
	TrialPlanned  TrialStatus = "PLANNED"
	TrialActive   TrialStatus = "ACTIVE"
	TrialDBLocked TrialStatus = "DB_LOCKED"
	TrialClosed   TrialStatus = "CLOSED"
)

// Trial is a clinical trial tracked by the registry. Status and
// next_confirmation_due are advanced by the confirmation engine; the rest is
// synced from CTMS.
type Trial struct {
	ID                  string      `gorm:"primaryKey;column:id;type:varchar(36)"`
	ProtocolNumber      string      `gorm:"column:protocol_number;uniqueIndex;not null"`
	Title               string      `gorm:"column:trial_title;not null"`
	Phase               string      `gorm:"column:trial_phase"`
	Status              TrialStatus `gorm:"column:trial_status;default:PLANNED;not null"`
	TherapeuticArea     string      `gorm:"column:therapeutic_area"`
	StartDate           *time.Time  `gorm:"column:trial_start_date"`
	PlannedDBLockDate   *time.Time  `gorm:"column:planned_db_lock_date"`
	ActualDBLockDate    *time.Time  `gorm:"column:actual_db_lock_date"`
	CloseDate           *time.Time  `gorm:"column:trial_close_date"`
	LeadName            string      `gorm:"column:trial_lead_name"`
	LeadEmail           string      `gorm:"column:trial_lead_email;index"`
	CTMSTrialID         string      `gorm:"column:ctms_trial_id"`
	NextConfirmationDue *time.Time  `gorm:"column:next_confirmation_due;index"`
	CreatedAt           time.Time   `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt           time.Time   `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Trial) TableName() string { return "trials" }

// TrialSystemLink relates one trial to one system instance. Links are never
// physically deleted once confirmed; they transition to REPLACED or LOCKED.
type TrialSystemLink struct {
	ID             string     `gorm:"primaryKey;column:id;type:varchar(36)"`
	TrialID        string     `gorm:"column:trial_id;index:idx_links_pair,priority:1;not null"`
	InstanceID     string     `gorm:"column:instance_id;index:idx_links_pair,priority:2;not null"`
	Status         LinkStatus `gorm:"column:assignment_status;index;default:ACTIVE;not null"`
	Criticality    string     `gorm:"column:criticality_code;not null"`
	OverrideReason string     `gorm:"column:criticality_override_reason"`
	UsageStartDate time.Time  `gorm:"column:usage_start_date;not null"`
	UsageEndDate   *time.Time `gorm:"column:usage_end_date"`
	LinkedBy       string     `gorm:"column:linked_by"`
	LinkedAt       time.Time  `gorm:"column:linked_at;autoCreateTime"`
	UnlinkedBy     string     `gorm:"column:unlinked_by"`
	UnlinkedAt     *time.Time `gorm:"column:unlinked_at"`
	UnlinkReason   string     `gorm:"column:unlink_reason"`
	CreatedAt      time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt      time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (TrialSystemLink) TableName() string { return "trial_system_links" }
