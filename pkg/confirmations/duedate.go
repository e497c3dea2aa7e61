package confirmations

import "time"

// NextDueDate returns the due date of the following confirmation cycle:
// the submission date plus the configured number of calendar months. When
// the target month is shorter than the source day the date clips to the
// last day of the target month, so Aug 31 plus six months is Feb 28 (or
// Feb 29 in a leap year), not Mar 2-3.
func NextDueDate(from time.Time, months int) time.Time {
	year, month, day := from.Date()
	target := time.Date(year, month+time.Month(months), 1, 0, 0, 0, 0, from.Location())
	if last := lastDayOfMonth(target); day > last {
		day = last
	}
	return time.Date(target.Year(), target.Month(), day, 0, 0, 0, 0, from.Location())
}

func lastDayOfMonth(t time.Time) int {
	return time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, t.Location()).Day()
}

// EffectiveStatus derives the presented status of a confirmation. A stored
// PENDING confirmation becomes OVERDUE only once the calendar date of the
// deadline has fully passed; a confirmation due today stays PENDING all day.
// Nothing is written back.
func EffectiveStatus(c *Confirmation, now time.Time) ConfirmationStatus {
	if c.Status == StatusPending && startOfDay(now).After(startOfDay(c.DueDate)) {
		return StatusOverdue
	}
	return c.Status
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
