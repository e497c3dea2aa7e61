// Package confirmations implements the periodic compliance confirmation
// workflow: opening cycles, capturing point-in-time link snapshots, and
// advancing trial due dates on submission.
package confirmations

import (
	"time"

	"github.com/ctsr-project/ctsr/pkg/audit"
)

// ConfirmationType distinguishes the scheduled periodic confirmation from
// the one taken at database lock.
type ConfirmationType string

const (
	TypePeriodic ConfirmationType = "PERIODIC"
	TypeDBLock   ConfirmationType = "DB_LOCK"
)

// ConfirmationStatus is the stored workflow status of a confirmation.
// OVERDUE is never stored; it is derived at read time from the due date.
type ConfirmationStatus string

const (
	StatusPending   ConfirmationStatus = "PENDING"
	StatusCompleted ConfirmationStatus = "COMPLETED"
	StatusOverdue   ConfirmationStatus = "OVERDUE"
)

// Confirmation is one confirmation cycle for a trial.
type Confirmation struct {
	ID               string             `gorm:"primaryKey;column:id;type:varchar(36)"`
	TrialID          string             `gorm:"column:trial_id;index;not null"`
	ConfirmationType ConfirmationType   `gorm:"column:confirmation_type;default:PERIODIC;not null"`
	Status           ConfirmationStatus `gorm:"column:confirmation_status;index;default:PENDING;not null"`
	DueDate          time.Time          `gorm:"column:due_date;index;not null"`
	SubmittedBy      string             `gorm:"column:submitted_by"`
	SubmittedAt      *time.Time         `gorm:"column:submitted_at"`
	SubmitterRole    string             `gorm:"column:submitter_role"`
	Comments         string             `gorm:"column:comments"`
	SystemsCount     int                `gorm:"column:systems_count"`
	CreatedAt        time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// TableName returns the GORM table name.
func (Confirmation) TableName() string { return "confirmations" }

// LinkSnapshot is the frozen state of one trial-system link at the moment a
// confirmation was submitted. At most one snapshot exists per
// (confirmation, link) pair, and snapshots are never updated after capture.
type LinkSnapshot struct {
	ID                 string        `gorm:"primaryKey;column:id;type:varchar(36)"`
	ConfirmationID     string        `gorm:"column:confirmation_id;uniqueIndex:idx_snapshots_pair,priority:1;not null"`
	LinkID             string        `gorm:"column:link_id;uniqueIndex:idx_snapshots_pair,priority:2;not null"`
	InstanceID         string        `gorm:"column:instance_id;not null"`
	InstanceState      audit.JSONMap `gorm:"column:instance_state;type:text"`
	CriticalityAt      string        `gorm:"column:criticality_at"`
	ValidationStatusAt string        `gorm:"column:validation_status_at"`
	PlatformVersionAt  string        `gorm:"column:platform_version_at"`
	AssignmentStatusAt string        `gorm:"column:assignment_status_at"`
	CapturedAt         time.Time     `gorm:"column:captured_at;autoCreateTime"`
}

// TableName returns the GORM table name.
func (LinkSnapshot) TableName() string { return "link_snapshots" }
