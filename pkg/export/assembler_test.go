package export

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/audit"
	"github.com/ctsr-project/ctsr/pkg/confirmations"
	"github.com/ctsr-project/ctsr/pkg/registry"
	"github.com/ctsr-project/ctsr/pkg/trials"
)

func newTestAssembler(t *testing.T) (*Assembler, *confirmations.Engine, *trials.Store, *registry.Store) {
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

	engine := confirmations.NewEngine(confirmations.DefaultConfig(), trialStore, recorder)
	require.NoError(t, engine.AutoMigrate())

	return NewAssembler(engine), engine, trialStore, registryStore
}

func TestWriteCSV(t *testing.T) {
	assembler, engine, trialStore, registryStore := newTestAssembler(t)

	trial, err := trialStore.CreateTrial(&trials.Trial{
		ProtocolNumber: "ONC-2026-001",
		Title:          "A Phase III Study of Examplimab",
		Status:         trials.TrialActive,
	}, "alice@example.com")
	require.NoError(t, err)

	sys, err := registryStore.CreateSystem(&registry.SystemInstance{
		InstanceCode:         "EDC-RAVE-P01",
		PlatformName:         "Medidata Rave",
		PlatformVersion:      "2023.1.2",
		CategoryCode:         "EDC",
		ValidationStatusCode: registry.ValidationValidated,
	}, "alice@example.com")
	require.NoError(t, err)
	_, err = trialStore.LinkSystem(trial.ID, sys.ID, registry.CriticalityCritical, "", nil, "alice@example.com")
	require.NoError(t, err)

	conf, err := engine.Open(trial.ID, confirmations.TypePeriodic,
		time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC), "system")
	require.NoError(t, err)

	var buf bytes.Buffer
	err = assembler.WriteCSV(&buf, conf.ID, time.Now())
	assert.True(t, apierrors.IsValidation(err), "pending confirmation must not export: %v", err)

	_, err = engine.Submit(conf.ID, confirmations.SubmitRequest{
		SubmittedBy: "alice@example.com",
		Attested:    true,
	}, time.Date(2026, time.September, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)

	buf.Reset()
	require.NoError(t, assembler.WriteCSV(&buf, conf.ID, time.Now()))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 2, "header plus one snapshot row")

	header, row := rows[0], rows[1]
	byName := map[string]string{}
	for i, name := range header {
		byName[name] = row[i]
	}
	assert.Equal(t, conf.ID, byName["confirmation_id"])
	assert.Equal(t, trial.ID, byName["trial_id"])
	assert.Equal(t, "PERIODIC", byName["confirmation_type"])
	assert.Equal(t, "alice@example.com", byName["submitted_by"])
	assert.Equal(t, "EDC-RAVE-P01", byName["instance_code"])
	assert.Equal(t, "Medidata Rave", byName["platform_name"])
	assert.Equal(t, "2023.1.2", byName["platform_version_at"])
	assert.Equal(t, "CRIT", byName["criticality_at"])
	assert.Equal(t, "VALIDATED", byName["validation_status_at"])
}

func TestWriteCSV_UnknownConfirmation(t *testing.T) {
	assembler, _, _, _ := newTestAssembler(t)

	var buf bytes.Buffer
	err := assembler.WriteCSV(&buf, "missing", time.Now())
	assert.True(t, apierrors.IsNotFound(err), "got %v", err)
}
