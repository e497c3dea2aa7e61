package confirmations

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/trials"
)

// Scheduler opens periodic confirmation cycles in the background as trial
// due dates approach. Opening early gives trial teams a submission window;
// a cycle left unsubmitted past its due date reads as OVERDUE.
type Scheduler struct {
	engine *Engine
	logger *slog.Logger
}

// NewScheduler creates a Scheduler over the engine.
func NewScheduler(engine *Engine, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{engine: engine, logger: logger}
}

// Run sweeps for due trials every PollInterval until the context is
// cancelled. One sweep runs immediately on start.
func (s *Scheduler) Run(ctx context.Context) {
	cfg := s.engine.cfg
	if !cfg.SchedulerEnabled {
		s.logger.Info("confirmation scheduler disabled")
		return
	}

	s.logger.Info("confirmation scheduler starting",
		"pollInterval", cfg.PollInterval.String(),
		"openLeadDays", cfg.OpenLeadDays)

	ticker := time.NewTicker(cfg.PollInterval)
	defer ticker.Stop()

	s.sweep(time.Now())
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("confirmation scheduler stopped")
			return
		case <-ticker.C:
			s.sweep(time.Now())
		}
	}
}

// sweep opens a periodic cycle for every active trial whose next due date
// falls within the lead window and which has no pending confirmation yet.
func (s *Scheduler) sweep(now time.Time) {
	due, err := s.DueTrials(now)
	if err != nil {
		s.logger.Error("confirmation sweep failed", "error", err)
		return
	}

	for _, trial := range due {
		conf, err := s.engine.Open(trial.ID, TypePeriodic, *trial.NextConfirmationDue, "scheduler")
		if err != nil {
			// Another replica may have opened the cycle between the sweep
			// query and here.
			if apierrors.IsConflict(err) || apierrors.IsInvalidState(err) {
				continue
			}
			s.logger.Error("failed to open confirmation cycle",
				"trialID", trial.ID, "protocol", trial.ProtocolNumber, "error", err)
			continue
		}
		s.logger.Info("opened periodic confirmation cycle",
			"trialID", trial.ID,
			"protocol", trial.ProtocolNumber,
			"confirmationID", conf.ID,
			"dueDate", conf.DueDate.Format("2006-01-02"))
	}
}

// DueTrials returns the trials whose next confirmation falls within the
// lead window and which have no pending confirmation yet.
func (s *Scheduler) DueTrials(now time.Time) ([]trials.Trial, error) {
	horizon := now.AddDate(0, 0, s.engine.cfg.OpenLeadDays)

	var due []trials.Trial
	err := s.engine.db.
		Where("trial_status IN ?", []trials.TrialStatus{trials.TrialPlanned, trials.TrialActive}).
		Where("next_confirmation_due IS NOT NULL AND next_confirmation_due <= ?", horizon).
		Where("id NOT IN (?)", s.engine.db.Model(&Confirmation{}).
			Select("trial_id").Where("confirmation_status = ?", StatusPending)).
		Find(&due).Error
	if err != nil {
		return nil, fmt.Errorf("list due trials: %w", err)
	}
	return due, nil
}
