package confirmations

import (
	"fmt"
	"time"

	"github.com/golang/glog"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/audit"
	"github.com/ctsr-project/ctsr/pkg/trials"
)

// EntityConfirmation tags confirmation rows in the audit trail.
const EntityConfirmation = "confirmation"

// Engine drives confirmation cycles: it opens them, accepts submissions,
// captures snapshots, and advances trial due dates.
type Engine struct {
	db       *gorm.DB
	cfg      Config
	trials   *trials.Store
	recorder *audit.Recorder
}

// NewEngine creates a confirmation Engine sharing the trials store's
// database handle so cycle operations commit atomically across both.
func NewEngine(cfg Config, trialStore *trials.Store, recorder *audit.Recorder) *Engine {
	return &Engine{
		db:       trialStore.DB(),
		cfg:      cfg,
		trials:   trialStore,
		recorder: recorder,
	}
}

// AutoMigrate creates or updates the confirmation tables.
func (e *Engine) AutoMigrate() error {
	for _, model := range []any{&Confirmation{}, &LinkSnapshot{}} {
		if err := e.db.AutoMigrate(model); err != nil {
			return fmt.Errorf("auto-migrate confirmation tables: %w", err)
		}
	}
	return nil
}

func confirmationMap(c *Confirmation) audit.JSONMap {
	m := audit.JSONMap{
		"trial_id":            c.TrialID,
		"confirmation_type":   string(c.ConfirmationType),
		"confirmation_status": string(c.Status),
		"due_date":            c.DueDate.Format("2006-01-02"),
		"systems_count":       c.SystemsCount,
	}
	if c.SubmittedBy != "" {
		m["submitted_by"] = c.SubmittedBy
	}
	if c.SubmittedAt != nil {
		m["submitted_at"] = c.SubmittedAt.Format(time.RFC3339)
	}
	return m
}

// Open starts a confirmation cycle for a trial. For periodic cycles every
// live link moves to PENDING_CONFIRMATION. A trial has at most one pending
// confirmation at a time.
func (e *Engine) Open(trialID string, confType ConfirmationType, dueDate time.Time, actor string) (*Confirmation, error) {
	if confType != TypePeriodic && confType != TypeDBLock {
		return nil, apierrors.Validation("unknown confirmation type %q", confType)
	}

	var conf Confirmation
	err := e.db.Transaction(func(tx *gorm.DB) error {
		var trial trials.Trial
		if err := tx.First(&trial, "id = ?", trialID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("trial", trialID)
			}
			return fmt.Errorf("load trial: %w", err)
		}
		if trial.Status == trials.TrialDBLocked || trial.Status == trials.TrialClosed {
			return apierrors.InvalidState("trial %s is %s; no further confirmations can be opened", trialID, trial.Status)
		}

		var pending int64
		if err := tx.Model(&Confirmation{}).
			Where("trial_id = ? AND confirmation_status = ?", trialID, StatusPending).
			Count(&pending).Error; err != nil {
			return fmt.Errorf("check pending confirmations: %w", err)
		}
		if pending > 0 {
			return apierrors.Conflict("trial %s already has a pending confirmation", trialID)
		}

		conf = Confirmation{
			ID:               uuid.New().String(),
			TrialID:          trialID,
			ConfirmationType: confType,
			Status:           StatusPending,
			DueDate:          dueDate,
		}
		if err := tx.Create(&conf).Error; err != nil {
			return fmt.Errorf("create confirmation: %w", err)
		}

		// Only periodic cycles ask sites to re-confirm each link. A DB-lock
		// cycle leaves link statuses alone until submission freezes them.
		if confType == TypePeriodic {
			if err := e.trials.MarkPendingConfirmationTx(tx, trialID, actor); err != nil {
				return err
			}
		}

		_, err := e.recorder.Record(tx, EntityConfirmation, conf.ID, audit.OpInsert, actor, nil, confirmationMap(&conf))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

// SubmitRequest carries the attester's input for a confirmation submission.
type SubmitRequest struct {
	SubmittedBy   string
	SubmitterRole string
	Comments      string
	// Attested is the submitter's explicit confirmation that the linked
	// system inventory is accurate. Submission is rejected without it.
	Attested bool
}

// Submit completes a pending confirmation: every in-scope link is
// snapshotted and confirmed, the systems count is fixed at submission time,
// and for periodic cycles the trial's next due date advances by the
// configured interval. A DB-lock submission additionally freezes the trial.
// Failures outside the error taxonomy are retried.
func (e *Engine) Submit(confirmationID string, req SubmitRequest, now time.Time) (*Confirmation, error) {
	if req.SubmittedBy == "" {
		return nil, apierrors.Validation("submitted_by is required")
	}
	if !req.Attested {
		return nil, apierrors.Validation("attestation is required to complete a confirmation")
	}

	var conf *Confirmation
	err := e.withRetry(func() error {
		var err error
		conf, err = e.submitOnce(confirmationID, req, now)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conf, nil
}

func (e *Engine) submitOnce(confirmationID string, req SubmitRequest, now time.Time) (*Confirmation, error) {
	var conf Confirmation
	err := e.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&conf, "id = ?", confirmationID).Error; err != nil {
			if err == gorm.ErrRecordNotFound {
				return apierrors.NotFound("confirmation", confirmationID)
			}
			return fmt.Errorf("load confirmation: %w", err)
		}

		before := confirmationMap(&conf)

		links, err := e.trials.ConfirmableLinksTx(tx, conf.TrialID)
		if err != nil {
			return err
		}

		// The status guard decides the winner when two submissions race:
		// exactly one sees RowsAffected == 1.
		res := tx.Model(&Confirmation{}).
			Where("id = ? AND confirmation_status = ?", confirmationID, StatusPending).
			Updates(map[string]any{
				"confirmation_status": StatusCompleted,
				"submitted_by":        req.SubmittedBy,
				"submitted_at":        now,
				"submitter_role":      req.SubmitterRole,
				"comments":            req.Comments,
				"systems_count":       len(links),
			})
		if res.Error != nil {
			return fmt.Errorf("complete confirmation: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			// conf.Status may predate the competing writer, so re-read
			// rather than report a stale value.
			var cur Confirmation
			if err := tx.First(&cur, "id = ?", confirmationID).Error; err != nil {
				return fmt.Errorf("reload confirmation: %w", err)
			}
			return apierrors.InvalidState("confirmation %s is %s and cannot be submitted", confirmationID, cur.Status)
		}

		for i := range links {
			if err := e.captureSnapshotTx(tx, conf.ID, &links[i]); err != nil {
				return err
			}
			if err := e.trials.ConfirmLinkTx(tx, &links[i], req.SubmittedBy); err != nil {
				return err
			}
		}

		switch conf.ConfirmationType {
		case TypePeriodic:
			due := NextDueDate(now, e.cfg.IntervalMonths)
			if err := e.trials.SetNextConfirmationDueTx(tx, conf.TrialID, due, req.SubmittedBy); err != nil {
				return err
			}
		case TypeDBLock:
			if err := e.trials.LockTrialTx(tx, conf.TrialID, req.SubmittedBy); err != nil {
				return err
			}
		}

		conf.Status = StatusCompleted
		conf.SubmittedBy = req.SubmittedBy
		conf.SubmittedAt = &now
		conf.SubmitterRole = req.SubmitterRole
		conf.Comments = req.Comments
		conf.SystemsCount = len(links)

		_, err = e.recorder.Record(tx, EntityConfirmation, conf.ID, audit.OpUpdate, req.SubmittedBy, before, confirmationMap(&conf))
		return err
	})
	if err != nil {
		return nil, err
	}
	return &conf, nil
}

// withRetry runs fn, retrying on errors outside the taxonomy. Taxonomy
// errors describe business outcomes and are returned immediately.
func (e *Engine) withRetry(fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		err = fn()
		if err == nil || apierrors.IsAPIError(err) || attempt >= e.cfg.MaxRetries {
			return err
		}
		glog.Warningf("confirmation submit attempt %d failed, retrying: %v", attempt+1, err)
	}
}
