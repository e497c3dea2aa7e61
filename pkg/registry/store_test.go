package registry

import (
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/ctsr-project/ctsr/pkg/apierrors"
	"github.com/ctsr-project/ctsr/pkg/audit"
)

// newTestStore creates a registry store over an in-memory SQLite DB with
// lookups seeded.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, audit.NewStore(db).AutoMigrate())
	store := NewStore(db, audit.NewRecorder())
	require.NoError(t, store.AutoMigrate())
	require.NoError(t, SeedLookups(db))
	return store
}

func testSystem(code string) *SystemInstance {
	return &SystemInstance{
		InstanceCode:         code,
		PlatformName:         "Medidata Rave",
		PlatformVersion:      "2023.1.2",
		CategoryCode:         "EDC",
		ValidationStatusCode: ValidationValidated,
		DataHostingRegion:    "EU",
	}
}

func TestCreateSystem_WritesAuditRecord(t *testing.T) {
	store := newTestStore(t)

	sys, err := store.CreateSystem(testSystem("EDC-RAVE-P01"), "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, sys.ID)
	assert.True(t, sys.IsActive)
	assert.Equal(t, "PRODUCTION", sys.Environment)

	records, _, total, err := audit.NewStore(store.db).TrailForEntity(EntitySystemInstance, sys.ID, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, "INSERT", records[0].Operation)
	assert.Equal(t, "alice@example.com", records[0].Actor)
	assert.Nil(t, records[0].OldValues)
	assert.Equal(t, "EDC-RAVE-P01", records[0].NewValues["instance_code"])
}

func TestCreateSystem_DuplicateCodeConflicts(t *testing.T) {
	store := newTestStore(t)

	_, err := store.CreateSystem(testSystem("EDC-RAVE-P01"), "alice@example.com")
	require.NoError(t, err)

	_, err = store.CreateSystem(testSystem("EDC-RAVE-P01"), "bob@example.com")
	assert.True(t, apierrors.IsConflict(err), "got %v", err)
}

func TestCreateSystem_RequiresCoreFields(t *testing.T) {
	store := newTestStore(t)

	sys := testSystem("EDC-RAVE-P01")
	sys.CategoryCode = ""
	_, err := store.CreateSystem(sys, "alice@example.com")
	assert.True(t, apierrors.IsValidation(err), "got %v", err)
}

func TestUpdateSystem_AuditsBeforeAndAfter(t *testing.T) {
	store := newTestStore(t)

	sys, err := store.CreateSystem(testSystem("EDC-RAVE-P01"), "alice@example.com")
	require.NoError(t, err)

	updated, err := store.UpdateSystem(sys.ID, func(s *SystemInstance) {
		s.PlatformVersion = "2024.1.0"
		s.ValidationStatusCode = ValidationPending
	}, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "2024.1.0", updated.PlatformVersion)
	assert.Equal(t, "bob@example.com", updated.UpdatedBy)

	records, _, _, err := audit.NewStore(store.db).TrailForEntity(EntitySystemInstance, sys.ID, 10, "")
	require.NoError(t, err)
	require.Len(t, records, 2)

	var update audit.Record
	for _, rec := range records {
		if rec.Operation == "UPDATE" {
			update = rec
		}
	}
	assert.Equal(t, "2023.1.2", update.OldValues["platform_version"])
	assert.Equal(t, "2024.1.0", update.NewValues["platform_version"])
}

func TestUpdateSystem_NotFound(t *testing.T) {
	store := newTestStore(t)

	_, err := store.UpdateSystem("missing", func(*SystemInstance) {}, "alice@example.com")
	assert.True(t, apierrors.IsNotFound(err), "got %v", err)
}

func TestDeactivateSystem(t *testing.T) {
	store := newTestStore(t)

	sys, err := store.CreateSystem(testSystem("EDC-RAVE-P01"), "alice@example.com")
	require.NoError(t, err)

	require.NoError(t, store.DeactivateSystem(sys.ID, "alice@example.com"))

	got, err := store.GetSystem(sys.ID)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	err = store.DeactivateSystem(sys.ID, "alice@example.com")
	assert.True(t, apierrors.IsInvalidState(err), "got %v", err)
}

func TestListSystems_FiltersAndPagination(t *testing.T) {
	store := newTestStore(t)

	for _, code := range []string{"EDC-RAVE-P01", "EDC-RAVE-P02", "EDC-RAVE-P03"} {
		_, err := store.CreateSystem(testSystem(code), "alice@example.com")
		require.NoError(t, err)
	}
	irt := testSystem("IRT-4G-P01")
	irt.CategoryCode = "IRT"
	irt.PlatformName = "4G Clinical Prancer"
	_, err := store.CreateSystem(irt, "alice@example.com")
	require.NoError(t, err)

	systems, nextToken, total, err := store.ListSystems(SystemFilter{CategoryCode: "EDC"}, 2, "")
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, systems, 2)
	assert.NotEmpty(t, nextToken)

	systems, nextToken, _, err = store.ListSystems(SystemFilter{CategoryCode: "EDC"}, 2, nextToken)
	require.NoError(t, err)
	assert.Len(t, systems, 1)
	assert.Empty(t, nextToken)

	systems, _, _, err = store.ListSystems(SystemFilter{Search: "Prancer"}, 10, "")
	require.NoError(t, err)
	require.Len(t, systems, 1)
	assert.Equal(t, "IRT-4G-P01", systems[0].InstanceCode)
}

func TestListSystems_ExcludesInactiveByDefault(t *testing.T) {
	store := newTestStore(t)

	sys, err := store.CreateSystem(testSystem("EDC-RAVE-P01"), "alice@example.com")
	require.NoError(t, err)
	require.NoError(t, store.DeactivateSystem(sys.ID, "alice@example.com"))

	systems, _, total, err := store.ListSystems(SystemFilter{}, 10, "")
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Empty(t, systems)

	systems, _, _, err = store.ListSystems(SystemFilter{IncludeInactive: true}, 10, "")
	require.NoError(t, err)
	assert.Len(t, systems, 1)
}

func TestVendorLifecycle(t *testing.T) {
	store := newTestStore(t)

	v, err := store.CreateVendor(&Vendor{
		VendorCode: "MDSOL",
		VendorName: "Medidata Solutions",
		VendorType: "PLATFORM_VENDOR",
	}, "alice@example.com")
	require.NoError(t, err)
	assert.NotEmpty(t, v.ID)

	_, err = store.CreateVendor(&Vendor{
		VendorCode: "MDSOL",
		VendorName: "Duplicate",
		VendorType: "PLATFORM_VENDOR",
	}, "alice@example.com")
	assert.True(t, apierrors.IsConflict(err), "got %v", err)

	updated, err := store.UpdateVendor(v.ID, func(v *Vendor) {
		v.ContactEmail = "support@mdsol.example"
	}, "bob@example.com")
	require.NoError(t, err)
	assert.Equal(t, "support@mdsol.example", updated.ContactEmail)

	vendors, err := store.ListVendors(false)
	require.NoError(t, err)
	assert.Len(t, vendors, 1)
}

func TestSeedLookupsIsIdempotent(t *testing.T) {
	store := newTestStore(t)
	require.NoError(t, SeedLookups(store.db))

	categories, err := store.ListCategories()
	require.NoError(t, err)
	assert.Len(t, categories, 8)

	levels, err := store.ListCriticalities()
	require.NoError(t, err)
	assert.Len(t, levels, 3)
}

func TestDefaultCriticalityFor(t *testing.T) {
	store := newTestStore(t)

	crit, err := DefaultCriticalityFor(store.db, "EDC")
	require.NoError(t, err)
	assert.Equal(t, CriticalityCritical, crit)

	// Unknown categories fall back to the standard level.
	crit, err = DefaultCriticalityFor(store.db, "UNKNOWN")
	require.NoError(t, err)
	assert.Equal(t, CriticalityStandard, crit)
}
