package confirmations

import (
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/audit"
	"github.com/ctsr-project/ctsr/pkg/registry"
	"github.com/ctsr-project/ctsr/pkg/trials"
)

type testEnv struct {
	engine   *Engine
	trials   *trials.Store
	registry *registry.Store
	db       *gorm.DB
}

// newTestEnv wires the full stack over an in-memory SQLite DB.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, audit.NewStore(db).AutoMigrate())

	recorder := audit.NewRecorder()
	registryStore := registry.NewStore(db, recorder)
	require.NoError(t, registryStore.AutoMigrate())
	require.NoError(t, registry.SeedLookups(db))

	trialStore := trials.NewStore(db, recorder)
	require.NoError(t, trialStore.AutoMigrate())

	engine := NewEngine(DefaultConfig(), trialStore, recorder)
	require.NoError(t, engine.AutoMigrate())

	return &testEnv{engine: engine, trials: trialStore, registry: registryStore, db: db}
}

func (env *testEnv) createTrialWithLinks(t *testing.T, protocol string, systemCodes ...string) (*trials.Trial, []trials.TrialSystemLink) {
	t.Helper()
	trial, err := env.trials.CreateTrial(&trials.Trial{
		ProtocolNumber: protocol,
		Title:          "A Phase III Study of Examplimab",
		Status:         trials.TrialActive,
	}, "alice@example.com")
	require.NoError(t, err)

	for _, code := range systemCodes {
		sys, err := env.registry.CreateSystem(&registry.SystemInstance{
			InstanceCode:         code,
			PlatformName:         "Medidata Rave",
			PlatformVersion:      "2023.1.2",
			CategoryCode:         "EDC",
			ValidationStatusCode: registry.ValidationValidated,
		}, "alice@example.com")
		require.NoError(t, err)
		_, err = env.trials.LinkSystem(trial.ID, sys.ID, registry.CriticalityCritical, "", nil, "alice@example.com")
		require.NoError(t, err)
	}

	links, err := env.trials.LinksForTrial(trial.ID, true)
	require.NoError(t, err)
	return trial, links
}

func TestOpen_MarksLinksPending(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01", "EDC-RAVE-P02")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, conf.Status)

	links, err := env.trials.LinksForTrial(trial.ID, true)
	require.NoError(t, err)
	for _, l := range links {
		assert.Equal(t, trials.LinkPendingConfirmation, l.Status)
	}
}

func TestOpen_SecondPendingConflicts(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	_, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)

	_, err = env.engine.Open(trial.ID, TypePeriodic, date(2026, time.October, 1), "system")
	assert.True(t, apierrors.IsConflict(err), "got %v", err)
}

func TestOpen_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Open("missing", TypePeriodic, date(2026, time.September, 1), "system")
	assert.True(t, apierrors.IsNotFound(err), "got %v", err)

	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")
	_, err = env.engine.Open(trial.ID, ConfirmationType("ANNUAL"), date(2026, time.September, 1), "system")
	assert.True(t, apierrors.IsValidation(err), "got %v", err)
}

func TestSubmit_PeriodicCycle(t *testing.T) {
	env := newTestEnv(t)
	trial, links := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01", "EDC-RAVE-P02")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.August, 31), "system")
	require.NoError(t, err)

	submittedAt := date(2026, time.August, 31)
	completed, err := env.engine.Submit(conf.ID, SubmitRequest{
		SubmittedBy:   "alice@example.com",
		SubmitterRole: "Trial Lead",
		Comments:      "all systems reviewed",
		Attested:      true,
	}, submittedAt)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)
	assert.Equal(t, 2, completed.SystemsCount)
	assert.Equal(t, "alice@example.com", completed.SubmittedBy)

	// Every in-scope link is confirmed and snapshotted.
	gotLinks, err := env.trials.LinksForTrial(trial.ID, true)
	require.NoError(t, err)
	for _, l := range gotLinks {
		assert.Equal(t, trials.LinkConfirmed, l.Status)
	}
	var snaps []LinkSnapshot
	require.NoError(t, env.db.Where("confirmation_id = ?", conf.ID).Find(&snaps).Error)
	require.Len(t, snaps, len(links))
	for _, snap := range snaps {
		assert.Equal(t, string(registry.CriticalityCritical), snap.CriticalityAt)
		assert.Equal(t, registry.ValidationValidated, snap.ValidationStatusAt)
		assert.Equal(t, "2023.1.2", snap.PlatformVersionAt)
		assert.NotEmpty(t, snap.InstanceState["instance_code"])
	}

	// Aug 31 plus six months clips to the end of February.
	gotTrial, err := env.trials.GetTrial(trial.ID)
	require.NoError(t, err)
	require.NotNil(t, gotTrial.NextConfirmationDue)
	assert.Equal(t, date(2027, time.February, 28), gotTrial.NextConfirmationDue.UTC())
}

func TestSubmit_SecondSubmissionRejected(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)

	_, err = env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "alice@example.com", Attested: true}, date(2026, time.September, 1))
	require.NoError(t, err)

	// The loser of a submission race hits the same status guard, and the
	// error names the status the row actually has.
	_, err = env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "bob@example.com", Attested: true}, date(2026, time.September, 1))
	assert.True(t, apierrors.IsInvalidState(err), "got %v", err)
	assert.ErrorContains(t, err, string(StatusCompleted))

	var snaps int64
	require.NoError(t, env.db.Model(&LinkSnapshot{}).Where("confirmation_id = ?", conf.ID).Count(&snaps).Error)
	assert.Equal(t, int64(1), snaps, "losing submission must not add snapshots")
}

func TestSubmit_Validation(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.engine.Submit("missing", SubmitRequest{}, time.Now())
	assert.True(t, apierrors.IsValidation(err), "missing submitter: %v", err)

	_, err = env.engine.Submit("missing", SubmitRequest{SubmittedBy: "alice@example.com", Attested: true}, time.Now())
	assert.True(t, apierrors.IsNotFound(err), "got %v", err)
}

func TestSubmit_RequiresAttestation(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)

	_, err = env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "alice@example.com"}, date(2026, time.September, 1))
	assert.True(t, apierrors.IsValidation(err), "got %v", err)

	// The cycle is untouched: still pending, links still awaiting confirmation.
	var stored Confirmation
	require.NoError(t, env.db.First(&stored, "id = ?", conf.ID).Error)
	assert.Equal(t, StatusPending, stored.Status)
	assert.Empty(t, stored.SubmittedBy)

	links, err := env.trials.LinksForTrial(trial.ID, true)
	require.NoError(t, err)
	assert.Equal(t, trials.LinkPendingConfirmation, links[0].Status)
}

func TestSubmit_CountsLinksAtSubmissionTime(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)

	// A system linked after the cycle opened is still in scope.
	sys, err := env.registry.CreateSystem(&registry.SystemInstance{
		InstanceCode:         "IRT-4G-P01",
		PlatformName:         "4G Clinical Prancer",
		CategoryCode:         "IRT",
		ValidationStatusCode: registry.ValidationValidated,
	}, "alice@example.com")
	require.NoError(t, err)
	_, err = env.trials.LinkSystem(trial.ID, sys.ID, registry.CriticalityCritical, "", nil, "alice@example.com")
	require.NoError(t, err)

	completed, err := env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "alice@example.com", Attested: true}, date(2026, time.September, 1))
	require.NoError(t, err)
	assert.Equal(t, 2, completed.SystemsCount)
}

func TestSubmit_DBLockFreezesTrial(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01", "EDC-RAVE-P02")

	conf, err := env.engine.Open(trial.ID, TypeDBLock, date(2026, time.September, 1), "system")
	require.NoError(t, err)

	// Opening a DB-lock cycle never puts links through re-confirmation.
	openLinks, err := env.trials.LinksForTrial(trial.ID, true)
	require.NoError(t, err)
	for _, l := range openLinks {
		assert.Equal(t, trials.LinkActive, l.Status)
	}

	_, err = env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "alice@example.com", Attested: true}, date(2026, time.September, 1))
	require.NoError(t, err)

	gotTrial, err := env.trials.GetTrial(trial.ID)
	require.NoError(t, err)
	assert.Equal(t, trials.TrialDBLocked, gotTrial.Status)

	links, err := env.trials.LinksForTrial(trial.ID, false)
	require.NoError(t, err)
	for _, l := range links {
		assert.Equal(t, trials.LinkLocked, l.Status)
	}

	// A frozen trial admits no further cycles.
	_, err = env.engine.Open(trial.ID, TypePeriodic, date(2027, time.March, 1), "system")
	assert.True(t, apierrors.IsInvalidState(err), "got %v", err)
}

// A conflicting snapshot inside a submission must roll back the whole
// submission: no partial confirmations, no status flip.
func TestSubmit_SnapshotConflictRollsBackEverything(t *testing.T) {
	env := newTestEnv(t)
	trial, links := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)

	// Pre-seed a snapshot for the pair so the capture inside Submit conflicts.
	require.NoError(t, env.db.Create(&LinkSnapshot{
		ID:             "seeded",
		ConfirmationID: conf.ID,
		LinkID:         links[0].ID,
		InstanceID:     links[0].InstanceID,
	}).Error)

	_, err = env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "alice@example.com", Attested: true}, date(2026, time.September, 1))
	assert.True(t, apierrors.IsConflict(err), "got %v", err)

	got, err := env.engine.Get(conf.ID, date(2026, time.August, 1))
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	gotLinks, err := env.trials.LinksForTrial(trial.ID, true)
	require.NoError(t, err)
	assert.Equal(t, trials.LinkPendingConfirmation, gotLinks[0].Status)
}

func TestGetAndListWithEffectiveStatus(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.June, 1), "system")
	require.NoError(t, err)

	got, err := env.engine.Get(conf.ID, date(2026, time.July, 1))
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)

	// The stored row is untouched.
	var stored Confirmation
	require.NoError(t, env.db.First(&stored, "id = ?", conf.ID).Error)
	assert.Equal(t, StatusPending, stored.Status)

	records, _, total, err := env.engine.List(Filter{Status: StatusOverdue}, 10, "", date(2026, time.July, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, StatusOverdue, records[0].Status)

	records, _, total, err = env.engine.List(Filter{Status: StatusOverdue}, 10, "", date(2026, time.May, 1))
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, records)
}

func TestList_DueTodayFiltersAsPending(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.June, 15), "system")
	require.NoError(t, err)

	afternoon := time.Date(2026, time.June, 15, 14, 0, 0, 0, time.UTC)

	got, err := env.engine.Get(conf.ID, afternoon)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, got.Status)

	records, _, total, err := env.engine.List(Filter{Status: StatusPending}, 10, "", afternoon)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, conf.ID, records[0].ID)

	_, _, total, err = env.engine.List(Filter{Status: StatusOverdue}, 10, "", afternoon)
	require.NoError(t, err)
	assert.Equal(t, 0, total)

	// The day after, the same row reads and filters as overdue.
	nextDay := time.Date(2026, time.June, 16, 9, 0, 0, 0, time.UTC)
	records, _, total, err = env.engine.List(Filter{Status: StatusOverdue}, 10, "", nextDay)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, StatusOverdue, records[0].Status)
}

func TestList_DueWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	near, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01")
	far, _ := env.createTrialWithLinks(t, "ONC-2026-002", "EDC-RAVE-P02")

	_, err := env.engine.Open(near.ID, TypePeriodic, date(2026, time.June, 10), "system")
	require.NoError(t, err)
	_, err = env.engine.Open(far.ID, TypePeriodic, date(2026, time.December, 1), "system")
	require.NoError(t, err)

	records, _, total, err := env.engine.List(Filter{DueWithinDays: 30}, 10, "", date(2026, time.June, 1))
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, near.ID, records[0].TrialID)
}

func TestGetDetail(t *testing.T) {
	env := newTestEnv(t)
	trial, _ := env.createTrialWithLinks(t, "ONC-2026-001", "EDC-RAVE-P01", "EDC-RAVE-P02")

	conf, err := env.engine.Open(trial.ID, TypePeriodic, date(2026, time.September, 1), "system")
	require.NoError(t, err)
	_, err = env.engine.Submit(conf.ID, SubmitRequest{SubmittedBy: "alice@example.com", Attested: true}, date(2026, time.September, 1))
	require.NoError(t, err)

	detail, err := env.engine.GetDetail(conf.ID, time.Now())
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, detail.Confirmation.Status)
	assert.Len(t, detail.Snapshots, 2)

	_, err = env.engine.GetDetail("missing", time.Now())
	assert.True(t, apierrors.IsNotFound(err), "got %v", err)
}
