package confirmations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestNextDueDate(t *testing.T) {
	tests := []struct {
		name string
		from time.Time
		want time.Time
	}{
		{"mid-month", date(2026, time.March, 15), date(2026, time.September, 15)},
		{"year rollover", date(2026, time.October, 10), date(2027, time.April, 10)},
		{"aug 31 clips to feb 28", date(2024, time.August, 31), date(2025, time.February, 28)},
		{"aug 31 clips to leap feb 29", date(2023, time.August, 31), date(2024, time.February, 29)},
		{"jan 31 lands on jul 31", date(2026, time.January, 31), date(2026, time.July, 31)},
		{"may 31 clips to nov 30", date(2026, time.May, 31), date(2026, time.November, 30)},
		{"first of month", date(2026, time.February, 1), date(2026, time.August, 1)},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NextDueDate(tc.from, 6))
		})
	}
}

func TestNextDueDate_CustomInterval(t *testing.T) {
	assert.Equal(t, date(2026, time.April, 30), NextDueDate(date(2026, time.January, 31), 3))
	assert.Equal(t, date(2027, time.January, 31), NextDueDate(date(2026, time.January, 31), 12))
}

func TestEffectiveStatus(t *testing.T) {
	now := date(2026, time.June, 15)

	pending := &Confirmation{Status: StatusPending, DueDate: date(2026, time.July, 1)}
	assert.Equal(t, StatusPending, EffectiveStatus(pending, now))

	past := &Confirmation{Status: StatusPending, DueDate: date(2026, time.June, 1)}
	assert.Equal(t, StatusOverdue, EffectiveStatus(past, now))

	// Completed confirmations never read as overdue, however old.
	completed := &Confirmation{Status: StatusCompleted, DueDate: date(2020, time.January, 1)}
	assert.Equal(t, StatusCompleted, EffectiveStatus(completed, now))
}

// A confirmation stays pending for the whole of its due day; it turns
// overdue only on the next calendar day.
func TestEffectiveStatus_DueToday(t *testing.T) {
	dueToday := &Confirmation{Status: StatusPending, DueDate: date(2026, time.June, 15)}

	afternoon := time.Date(2026, time.June, 15, 14, 0, 0, 0, time.UTC)
	assert.Equal(t, StatusPending, EffectiveStatus(dueToday, afternoon))

	lastMinute := time.Date(2026, time.June, 15, 23, 59, 59, 0, time.UTC)
	assert.Equal(t, StatusPending, EffectiveStatus(dueToday, lastMinute))

	nextMorning := time.Date(2026, time.June, 16, 0, 30, 0, 0, time.UTC)
	assert.Equal(t, StatusOverdue, EffectiveStatus(dueToday, nextMorning))
}
