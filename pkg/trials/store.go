// Package trials owns clinical trials and the lifecycle of their links to
// system instances. All link transitions run through the LinkMachine and are
// audited in the transaction that performs them.
package trials

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/audit"
	"github.com/ctsr-project/ctsr/pkg/registry"
)

// Audit entity type tags.
const (
	EntityTrial = "trial"
	EntityLink  = "trial_system_link"
)

// Store provides trial and link operations over the backing database.
type Store struct {
	db       *gorm.DB
	recorder *audit.Recorder
	machine  *LinkMachine
}

// NewStore creates a trials Store.
func NewStore(db *gorm.DB, recorder *audit.Recorder) *Store {
	return &Store{db: db, recorder: recorder, machine: NewLinkMachine()}
}

// AutoMigrate creates or updates the trials tables.
func (s *Store) AutoMigrate() error {
	for _, model := range []any{&Trial{}, &TrialSystemLink{}} {
		if err := s.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate trials tables: %w", err)
		}
	}
	return nil
}

// DB exposes the underlying handle for collaborators that compose larger
// transactions around link operations.
func (s *Store) DB() *gorm.DB { return s.db }

func trialMap(t *Trial) audit.JSONMap {
	m := audit.JSONMap{
		"protocol_number": t.ProtocolNumber,
		"trial_title":     t.Title,
		"trial_status":    string(t.Status),
		"trial_phase":     t.Phase,
	}
	if t.NextConfirmationDue != nil {
		m["next_confirmation_due"] = t.NextConfirmationDue.Format("2006-01-02")
	}
	return m
}

func linkMap(l *TrialSystemLink) audit.JSONMap {
	m := audit.JSONMap{
		"trial_id":          l.TrialID,
		"instance_id":       l.InstanceID,
		"assignment_status": string(l.Status),
		"criticality_code":  l.Criticality,
		"usage_start_date":  l.UsageStartDate.Format("2006-01-02"),
	}
	if l.OverrideReason != "" {
		m["criticality_override_reason"] = l.OverrideReason
	}
	if l.UsageEndDate != nil {
		m["usage_end_date"] = l.UsageEndDate.Format("2006-01-02")
	}
	return m
}

// CreateTrial registers a new trial.
func (s *Store) CreateTrial(t *Trial, actor string) (*Trial, error) {
	if t.ProtocolNumber == "" || t.Title == "" {
		return nil, apierrors.Validation("protocol_number and trial_title are required")
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&Trial{}).Where("protocol_number = ?", t.ProtocolNumber).Count(&count).Error; err != nil {
			return fmt.Errorf("check protocol number: %w", err)
		}
		if count > 0 {
			return apierrors.Conflict("trial with protocol %q already exists", t.ProtocolNumber)
		}

		if t.ID == "" {
			t.ID = uuid.New().String()
		}
		if t.Status == "" {
			t.Status = TrialPlanned
		}

		if err := tx.Create(t).Error; err != nil {
			return fmt.Errorf("create trial: %w", err)
		}

		_, err := s.recorder.Record(tx, EntityTrial, t.ID, audit.OpInsert, actor, nil, trialMap(t))
		return err
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

// UpdateTrial applies CTMS-synced attribute changes to a trial. The status
// and next_confirmation_due fields are owned by the confirmation engine and
// are not writable here.
func (s *Store) UpdateTrial(id string, apply func(*Trial), actor string) (*Trial, error) {
	var updated Trial
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var t Trial
		if err := tx.First(&t, "id = ?", id).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("trial", id)
			}
			return fmt.Errorf("load trial: %w", err)
		}
		if t.Status == TrialDBLocked {
			return apierrors.InvalidState("trial %s is DB-locked and cannot be modified", id)
		}

		before := trialMap(&t)
		status, due := t.Status, t.NextConfirmationDue
		apply(&t)
		t.ID = id
		t.Status = status
		t.NextConfirmationDue = due

		if err := tx.Save(&t).Error; err != nil {
			return fmt.Errorf("update trial: %w", err)
		}

		if _, err := s.recorder.Record(tx, EntityTrial, t.ID, audit.OpUpdate, actor, before, trialMap(&t)); err != nil {
			return err
		}
		updated = t
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// GetTrial retrieves a trial by ID.
func (s *Store) GetTrial(id string) (*Trial, error) {
	var t Trial
	if err := s.db.First(&t, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierrors.NotFound("trial", id)
		}
		return nil, fmt.Errorf("get trial: %w", err)
	}
	return &t, nil
}

// TrialFilter defines filters for listing trials.
type TrialFilter struct {
	Status    TrialStatus
	Phase     string
	LeadEmail string
	Search    string
}

// ListTrials returns paginated trials matching the filter, ordered by
// protocol number.
func (s *Store) ListTrials(filter TrialFilter, pageSize int, pageToken string) ([]Trial, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&Trial{})
		if filter.Status != "" {
			q = q.Where("trial_status = ?", filter.Status)
		}
		if filter.Phase != "" {
			q = q.Where("trial_phase = ?", filter.Phase)
		}
		if filter.LeadEmail != "" {
			q = q.Where("trial_lead_email = ?", filter.LeadEmail)
		}
		if filter.Search != "" {
			pattern := "%" + filter.Search + "%"
			q = q.Where("protocol_number LIKE ? OR trial_title LIKE ? OR therapeutic_area LIKE ?", pattern, pattern, pattern)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(s.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count trials: %w", err)
	}

	query := buildQuery(s.db).Order("protocol_number ASC").Limit(pageSize + 1)
	if pageToken != "" {
		query = query.Where("protocol_number > ?", pageToken)
	}

	var records []Trial
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list trials: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].ProtocolNumber
		records = records[:pageSize]
	}

	return records, nextToken, int(totalSize), nil
}

// LinkSystem creates an ACTIVE link between a trial and a system instance.
// A criticality that differs from the category default is an override and
// requires a reason. At most one live link may exist per (trial, instance)
// pair.
func (s *Store) LinkSystem(trialID, instanceID, criticality, overrideReason string, usageStart *time.Time, actor string) (*TrialSystemLink, error) {
	if criticality == "" {
		return nil, apierrors.Validation("criticality_code is required")
	}

	var link TrialSystemLink
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var trial Trial
		if err := tx.First(&trial, "id = ?", trialID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("trial", trialID)
			}
			return fmt.Errorf("load trial: %w", err)
		}
		if !trialAcceptsLinkChanges(trial.Status) {
			return apierrors.InvalidState("trial %s is %s and cannot accept link changes", trialID, trial.Status)
		}

		var instance registry.SystemInstance
		if err := tx.First(&instance, "id = ?", instanceID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("system instance", instanceID)
			}
			return fmt.Errorf("load system instance: %w", err)
		}

		defaultCriticality, err := registry.DefaultCriticalityFor(tx, instance.CategoryCode)
		if err != nil {
			return err
		}
		if criticality != defaultCriticality && overrideReason == "" {
			return apierrors.Validation(
				"criticality %s overrides the %s category default %s and requires an override reason",
				criticality, instance.CategoryCode, defaultCriticality)
		}

		var liveCount int64
		if err := tx.Model(&TrialSystemLink{}).
			Where("trial_id = ? AND instance_id = ? AND assignment_status IN ?", trialID, instanceID, LiveStatuses).
			Count(&liveCount).Error; err != nil {
			return fmt.Errorf("check live links: %w", err)
		}
		if liveCount > 0 {
			return apierrors.Conflict("system %s is already linked to trial %s", instanceID, trialID)
		}

		start := time.Now().Truncate(24 * time.Hour)
		if usageStart != nil {
			start = *usageStart
		}

		link = TrialSystemLink{
			ID:             uuid.New().String(),
			TrialID:        trialID,
			InstanceID:     instanceID,
			Status:         LinkActive,
			Criticality:    criticality,
			OverrideReason: overrideReason,
			UsageStartDate: start,
			LinkedBy:       actor,
		}
		if err := tx.Create(&link).Error; err != nil {
			return fmt.Errorf("create link: %w", err)
		}

		after := linkMap(&link)
		after["category_code"] = instance.CategoryCode
		after["category_default_criticality"] = defaultCriticality
		_, err = s.recorder.Record(tx, EntityLink, link.ID, audit.OpInsert, actor, nil, after)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &link, nil
}

// UpdateLinkCriticality changes a live link's criticality classification.
func (s *Store) UpdateLinkCriticality(linkID, criticality, overrideReason, actor string) (*TrialSystemLink, error) {
	if criticality == "" {
		return nil, apierrors.Validation("criticality_code is required")
	}

	var updated TrialSystemLink
	err := s.db.Transaction(func(tx *gorm.DB) error {
		link, trial, err := s.loadLinkAndTrial(tx, linkID)
		if err != nil {
			return err
		}
		if s.machine.IsTerminal(link.Status) {
			return apierrors.InvalidState("link %s is %s and cannot be modified", linkID, link.Status)
		}
		if !trialAcceptsLinkChanges(trial.Status) {
			return apierrors.InvalidState("trial %s is %s and cannot accept link changes", trial.ID, trial.Status)
		}

		var instance registry.SystemInstance
		if err := tx.First(&instance, "id = ?", link.InstanceID).Error; err != nil {
			return fmt.Errorf("load system instance: %w", err)
		}
		defaultCriticality, err := registry.DefaultCriticalityFor(tx, instance.CategoryCode)
		if err != nil {
			return err
		}
		if criticality != defaultCriticality && overrideReason == "" {
			return apierrors.Validation(
				"criticality %s overrides the %s category default %s and requires an override reason",
				criticality, instance.CategoryCode, defaultCriticality)
		}

		before := linkMap(link)
		link.Criticality = criticality
		link.OverrideReason = overrideReason
		if err := tx.Save(link).Error; err != nil {
			return fmt.Errorf("update link: %w", err)
		}

		if _, err := s.recorder.Record(tx, EntityLink, link.ID, audit.OpUpdate, actor, before, linkMap(link)); err != nil {
			return err
		}
		updated = *link
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Unlink transitions a link to REPLACED and records the end of its usage
// period. Only ACTIVE and CONFIRMED links may be unlinked; a link under
// pending confirmation must be confirmed or the cycle abandoned first. The
// (trial, instance) pair may be re-linked afresh afterwards.
func (s *Store) Unlink(linkID, reason, actor string) error {
	if reason == "" {
		return apierrors.Validation("unlink reason is required")
	}

	return s.db.Transaction(func(tx *gorm.DB) error {
		link, trial, err := s.loadLinkAndTrial(tx, linkID)
		if err != nil {
			return err
		}
		if !trialAcceptsLinkChanges(trial.Status) {
			return apierrors.InvalidState("trial %s is %s and cannot accept link changes", trial.ID, trial.Status)
		}
		if link.Status != LinkActive && link.Status != LinkConfirmed {
			return apierrors.InvalidState("link %s is %s and cannot be unlinked", linkID, link.Status)
		}

		before := linkMap(link)
		now := time.Now()
		link.Status = LinkReplaced
		link.UsageEndDate = &now
		link.UnlinkedBy = actor
		link.UnlinkedAt = &now
		link.UnlinkReason = reason

		if err := tx.Save(link).Error; err != nil {
			return fmt.Errorf("unlink: %w", err)
		}

		after := linkMap(link)
		after["unlink_reason"] = reason
		_, err = s.recorder.Record(tx, EntityLink, link.ID, audit.OpUpdate, actor, before, after)
		return err
	})
}

func (s *Store) loadLinkAndTrial(tx *gorm.DB, linkID string) (*TrialSystemLink, *Trial, error) {
	var link TrialSystemLink
	if err := tx.First(&link, "id = ?", linkID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil, apierrors.NotFound("link", linkID)
		}
		return nil, nil, fmt.Errorf("load link: %w", err)
	}
	var trial Trial
	if err := tx.First(&trial, "id = ?", link.TrialID).Error; err != nil {
		return nil, nil, fmt.Errorf("load trial for link: %w", err)
	}
	return &link, &trial, nil
}

// LinksForTrial returns a trial's links, newest first. When liveOnly is set
// only links counting toward the live invariant are returned.
func (s *Store) LinksForTrial(trialID string, liveOnly bool) ([]TrialSystemLink, error) {
	q := s.db.Where("trial_id = ?", trialID).Order("linked_at DESC")
	if liveOnly {
		q = q.Where("assignment_status IN ?", LiveStatuses)
	}
	var links []TrialSystemLink
	if err := q.Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list links: %w", err)
	}
	return links, nil
}

// ConfirmableLinksTx returns the links included in a confirmation submission
// for the trial: those in ACTIVE or PENDING_CONFIRMATION.
func (s *Store) ConfirmableLinksTx(tx *gorm.DB, trialID string) ([]TrialSystemLink, error) {
	var links []TrialSystemLink
	if err := tx.Where("trial_id = ? AND assignment_status IN ?", trialID, ConfirmableStatuses).
		Order("linked_at ASC").Find(&links).Error; err != nil {
		return nil, fmt.Errorf("list confirmable links: %w", err)
	}
	return links, nil
}

// transitionTx moves a link to a new status with validation and an audit
// record, inside the caller's transaction.
func (s *Store) transitionTx(tx *gorm.DB, link *TrialSystemLink, to LinkStatus, actor string) error {
	if err := s.machine.ValidateTransition(link.Status, to); err != nil {
		return err
	}
	if link.Status == to {
		return nil
	}

	before := linkMap(link)
	link.Status = to
	if err := tx.Model(&TrialSystemLink{}).Where("id = ?", link.ID).
		Update("assignment_status", to).Error; err != nil {
		return fmt.Errorf("transition link: %w", err)
	}

	_, err := s.recorder.Record(tx, EntityLink, link.ID, audit.OpUpdate, actor, before, linkMap(link))
	return err
}

// MarkPendingConfirmationTx moves every live link of the trial into
// PENDING_CONFIRMATION. Called when a periodic confirmation cycle opens.
func (s *Store) MarkPendingConfirmationTx(tx *gorm.DB, trialID, actor string) error {
	var links []TrialSystemLink
	if err := tx.Where("trial_id = ? AND assignment_status IN ?", trialID,
		[]LinkStatus{LinkActive, LinkConfirmed}).Find(&links).Error; err != nil {
		return fmt.Errorf("list links for cycle open: %w", err)
	}
	for i := range links {
		if err := s.transitionTx(tx, &links[i], LinkPendingConfirmation, actor); err != nil {
			return err
		}
	}
	return nil
}

// ConfirmLinkTx moves one link to CONFIRMED as part of a confirmation
// submission.
func (s *Store) ConfirmLinkTx(tx *gorm.DB, link *TrialSystemLink, actor string) error {
	return s.transitionTx(tx, link, LinkConfirmed, actor)
}

// LockTrialTx freezes a trial at database lock: the trial transitions to
// DB_LOCKED and every live link to LOCKED, all in the caller's transaction.
// Irreversible.
func (s *Store) LockTrialTx(tx *gorm.DB, trialID, actor string) error {
	var trial Trial
	if err := tx.First(&trial, "id = ?", trialID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apierrors.NotFound("trial", trialID)
		}
		return fmt.Errorf("load trial: %w", err)
	}
	if trial.Status == TrialDBLocked {
		return apierrors.InvalidState("trial %s is already DB-locked", trialID)
	}

	var links []TrialSystemLink
	if err := tx.Where("trial_id = ? AND assignment_status IN ?", trialID, LiveStatuses).
		Find(&links).Error; err != nil {
		return fmt.Errorf("list links for lock: %w", err)
	}
	for i := range links {
		if err := s.transitionTx(tx, &links[i], LinkLocked, actor); err != nil {
			return err
		}
	}

	before := trialMap(&trial)
	now := time.Now()
	trial.Status = TrialDBLocked
	trial.ActualDBLockDate = &now
	if err := tx.Model(&Trial{}).Where("id = ?", trialID).Updates(map[string]any{
		"trial_status":        TrialDBLocked,
		"actual_db_lock_date": now,
	}).Error; err != nil {
		return fmt.Errorf("lock trial: %w", err)
	}

	_, err := s.recorder.Record(tx, EntityTrial, trialID, audit.OpUpdate, actor, before, trialMap(&trial))
	return err
}

// SetNextConfirmationDueTx advances the trial's next confirmation due date.
// Only the confirmation engine calls this.
func (s *Store) SetNextConfirmationDueTx(tx *gorm.DB, trialID string, due time.Time, actor string) error {
	var trial Trial
	if err := tx.First(&trial, "id = ?", trialID).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apierrors.NotFound("trial", trialID)
		}
		return fmt.Errorf("load trial: %w", err)
	}

	before := trialMap(&trial)
	trial.NextConfirmationDue = &due
	if err := tx.Model(&Trial{}).Where("id = ?", trialID).
		Update("next_confirmation_due", due).Error; err != nil {
		return fmt.Errorf("set next confirmation due: %w", err)
	}

	_, err := s.recorder.Record(tx, EntityTrial, trialID, audit.OpUpdate, actor, before, trialMap(&trial))
	return err
}
