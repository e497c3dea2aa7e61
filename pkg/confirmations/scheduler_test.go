package confirmations

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ctsr-project/ctsr/pkg/trials"
)

func setNextDue(t *testing.T, env *testEnv, trialID string, due time.Time) {
	t.Helper()
	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		return env.trials.SetNextConfirmationDueTx(tx, trialID, due, "test")
	}))
}

func TestScheduler_OpensCyclesWithinLeadWindow(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewScheduler(env.engine, nil)

	now := date(2026, time.June, 1)
	near, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")
	far, _ := env.createTrialWithLinks(t, "ONC-2026-002", "EDC-RAVE-P02")
	setNextDue(t, env, near.ID, date(2026, time.June, 20))
	setNextDue(t, env, far.ID, date(2026, time.December, 1))

	// No due date at all: never swept.
	env.createTrialWithLinks(t, "ONC-2026-003", "EDC-RAVE-P03")

	due, err := scheduler.DueTrials(now)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, near.ID, due[0].ID)

	scheduler.sweep(now)

	confs, _, total, err := env.engine.List(Filter{TrialID: near.ID}, 10, "", now)
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, StatusPending, confs[0].Status)
	assert.Equal(t, TypePeriodic, confs[0].ConfirmationType)
	assert.Equal(t, date(2026, time.June, 20), confs[0].DueDate.UTC())

	links, err := env.trials.LinksForTrial(near.ID, true)
	require.NoError(t, err)
	assert.Equal(t, trials.LinkPendingConfirmation, links[0].Status)

	// A second sweep is a no-op while the cycle is pending.
	scheduler.sweep(now)
	_, _, total, err = env.engine.List(Filter{TrialID: near.ID}, 10, "", now)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
}

func TestScheduler_SkipsLockedTrials(t *testing.T) {
	env := newTestEnv(t)
	scheduler := NewScheduler(env.engine, nil)

	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")
	setNextDue(t, env, trial.ID, date(2026, time.June, 20))
	require.NoError(t, env.db.Transaction(func(tx *gorm.DB) error {
		return env.trials.LockTrialTx(tx, trial.ID, "alice@example.com")
	}))

	due, err := scheduler.DueTrials(date(2026, time.June, 1))
	require.NoError(t, err)
	assert.Empty(t, due)
}
