// Package export renders completed confirmations as compliance reports for
// inspectors and sponsors.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"time"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/confirmations"
)

// Assembler turns a confirmation and its snapshots into a flat report.
type Assembler struct {
	engine *confirmations.Engine
}

// NewAssembler creates an Assembler over the confirmation engine.
func NewAssembler(engine *confirmations.Engine) *Assembler {
	return &Assembler{engine: engine}
}

var csvHeader = []string{
	"confirmation_id",
	"trial_id",
	"confirmation_type",
	"due_date",
	"submitted_by",
	"submitted_at",
	"link_id",
	"instance_id",
	"instance_code",
	"platform_name",
	"platform_version_at",
	"criticality_at",
	"validation_status_at",
	"assignment_status_at",
	"captured_at",
}

// WriteCSV streams the snapshot report of a completed confirmation as CSV.
// One row per snapshotted link. Only completed confirmations can be
// exported; a pending or overdue one has no frozen state to report.
func (a *Assembler) WriteCSV(w io.Writer, confirmationID string, now time.Time) error {
	detail, err := a.engine.GetDetail(confirmationID, now)
	if err != nil {
		return err
	}
	conf := detail.Confirmation
	if conf.Status != confirmations.StatusCompleted {
		return apierrors.Validation("confirmation %s is %s; only completed confirmations can be exported", confirmationID, conf.Status)
	}

	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	submittedAt := ""
	if conf.SubmittedAt != nil {
		submittedAt = conf.SubmittedAt.Format(time.RFC3339)
	}

	for _, snap := range detail.Snapshots {
		row := []string{
			conf.ID,
			conf.TrialID,
			string(conf.ConfirmationType),
			conf.DueDate.Format("2006-01-02"),
			conf.SubmittedBy,
			submittedAt,
			snap.LinkID,
			snap.InstanceID,
			stringField(snap.InstanceState["instance_code"]),
			stringField(snap.InstanceState["platform_name"]),
			snap.PlatformVersionAt,
			snap.CriticalityAt,
			snap.ValidationStatusAt,
			snap.AssignmentStatusAt,
			snap.CapturedAt.Format(time.RFC3339),
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}

	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flush csv: %w", err)
	}
	return nil
}

func stringField(v any) string {
	if v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", v)
}
