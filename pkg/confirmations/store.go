package confirmations

import (
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
)

// Get retrieves a confirmation with its effective status applied.
func (e *Engine) Get(id string, now time.Time) (*Confirmation, error) {
	var conf Confirmation
	if err := e.db.First(&conf, "id = ?", id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apierrors.NotFound("confirmation", id)
		}
		return nil, fmt.Errorf("get confirmation: %w", err)
	}
	conf.Status = EffectiveStatus(&conf, now)
	return &conf, nil
}

// Detail bundles a confirmation with its captured snapshots.
type Detail struct {
	Confirmation Confirmation   `json:"confirmation"`
	Snapshots    []LinkSnapshot `json:"snapshots"`
}

// GetDetail retrieves a confirmation together with its snapshots, ordered
// by capture time.
func (e *Engine) GetDetail(id string, now time.Time) (*Detail, error) {
	conf, err := e.Get(id, now)
	if err != nil {
		return nil, err
	}
	var snaps []LinkSnapshot
	if err := e.db.Where("confirmation_id = ?", id).
		Order("captured_at ASC").Find(&snaps).Error; err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	return &Detail{Confirmation: *conf, Snapshots: snaps}, nil
}

// Filter defines filters for listing confirmations.
type Filter struct {
	TrialID string
	Type    ConfirmationType
	Status  ConfirmationStatus
	// DueWithinDays restricts to pending confirmations whose due date falls
	// within the given number of days from now. Zero means no window.
	DueWithinDays int
}

// List returns paginated confirmations matching the filter, most recently
// due first. Statuses are presented effective as of now, and an OVERDUE
// status filter selects pending rows past their due date.
func (e *Engine) List(filter Filter, pageSize int, pageToken string, now time.Time) ([]Confirmation, string, int, error) {
	if pageSize <= 0 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}

	buildQuery := func(base *gorm.DB) *gorm.DB {
		q := base.Model(&Confirmation{})
		if filter.TrialID != "" {
			q = q.Where("trial_id = ?", filter.TrialID)
		}
		if filter.Type != "" {
			q = q.Where("confirmation_type = ?", filter.Type)
		}
		switch filter.Status {
		case StatusOverdue:
			// A row is overdue only once its due date is a past calendar
			// day, matching EffectiveStatus.
			q = q.Where("confirmation_status = ? AND due_date < ?", StatusPending, startOfDay(now))
		case StatusPending:
			q = q.Where("confirmation_status = ? AND due_date >= ?", StatusPending, startOfDay(now))
		case "":
		default:
			q = q.Where("confirmation_status = ?", filter.Status)
		}
		if filter.DueWithinDays > 0 {
			horizon := now.AddDate(0, 0, filter.DueWithinDays)
			q = q.Where("confirmation_status = ? AND due_date <= ?", StatusPending, horizon)
		}
		return q
	}

	var totalSize int64
	if err := buildQuery(e.db).Count(&totalSize).Error; err != nil {
		return nil, "", 0, fmt.Errorf("count confirmations: %w", err)
	}

	query := buildQuery(e.db).Order("due_date DESC, id DESC").Limit(pageSize + 1)
	if pageToken != "" {
		cursor, err := time.Parse(time.RFC3339Nano, pageToken)
		if err != nil {
			return nil, "", 0, apierrors.Validation("malformed page token %q", pageToken)
		}
		query = query.Where("due_date < ?", cursor)
	}

	var records []Confirmation
	if err := query.Find(&records).Error; err != nil {
		return nil, "", 0, fmt.Errorf("list confirmations: %w", err)
	}

	var nextToken string
	if len(records) > pageSize {
		nextToken = records[pageSize-1].DueDate.Format(time.RFC3339Nano)
		records = records[:pageSize]
	}
	for i := range records {
		records[i].Status = EffectiveStatus(&records[i], now)
	}

	return records, nextToken, int(totalSize), nil
}
