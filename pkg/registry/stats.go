package registry

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// DashboardStats aggregates the counts shown on the compliance dashboard.
type DashboardStats struct {
	TotalSystems         int64     `json:"total_systems"`
	ActiveSystems        int64     `json:"active_systems"`
	ValidatedSystems     int64     `json:"validated_systems"`
	SystemsNeedingAction int64     `json:"systems_needing_action"`
	TotalTrials          int64     `json:"total_trials"`
	ActiveTrials         int64     `json:"active_trials"`
	LockedTrials         int64     `json:"locked_trials"`
	PendingConfirmations int64     `json:"pending_confirmations"`
	OverdueConfirmations int64     `json:"overdue_confirmations"`
	GeneratedAt          time.Time `json:"generated_at"`
}

// Stats computes dashboard aggregates as of now. Trial and confirmation
// counts go through raw table queries so the read side stays decoupled from
// the owning packages.
func (s *Store) Stats(now time.Time) (*DashboardStats, error) {
	stats := &DashboardStats{GeneratedAt: now}

	count := func(q *gorm.DB, dest *int64, what string) error {
		if err := q.Count(dest).Error; err != nil {
			return fmt.Errorf("count %s: %w", what, err)
		}
		return nil
	}

	if err := count(s.db.Model(&SystemInstance{}), &stats.TotalSystems, "systems"); err != nil {
		return nil, err
	}
	if err := count(s.db.Model(&SystemInstance{}).Where("is_active = ?", true), &stats.ActiveSystems, "active systems"); err != nil {
		return nil, err
	}
	if err := count(s.db.Model(&SystemInstance{}).
		Where("is_active = ? AND validation_status_code = ?", true, ValidationValidated),
		&stats.ValidatedSystems, "validated systems"); err != nil {
		return nil, err
	}
	if err := count(s.db.Model(&SystemInstance{}).
		Where("is_active = ? AND validation_status_code IN ?", true,
			[]string{ValidationPending, ValidationExpired, ValidationNotValidated}),
		&stats.SystemsNeedingAction, "systems needing action"); err != nil {
		return nil, err
	}

	if err := count(s.db.Table("trials"), &stats.TotalTrials, "trials"); err != nil {
		return nil, err
	}
	if err := count(s.db.Table("trials").Where("trial_status = ?", "ACTIVE"), &stats.ActiveTrials, "active trials"); err != nil {
		return nil, err
	}
	if err := count(s.db.Table("trials").Where("trial_status = ?", "DB_LOCKED"), &stats.LockedTrials, "locked trials"); err != nil {
		return nil, err
	}

	if err := count(s.db.Table("confirmations").Where("confirmation_status = ?", "PENDING"),
		&stats.PendingConfirmations, "pending confirmations"); err != nil {
		return nil, err
	}
	if err := count(s.db.Table("confirmations").
		Where("confirmation_status = ? AND due_date < ?", "PENDING", now),
		&stats.OverdueConfirmations, "overdue confirmations"); err != nil {
		return nil, err
	}

	return stats, nil
}
