package reconcile_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/reconcile"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func washingLog(rows ...[]string) *generic.Table {
	return generic.NewTable("washing_log", []string{"Cleaning Date", "Container Ref. No.", "Client", "Invoiced"}, rows)
}

func washingInvoice(rows ...[]string) *generic.Table {
	return generic.NewTable("washing", []string{"category", "date", "customer", "container_number"}, rows)
}

var january = generic.MonthPeriod(2024, time.January)

// =============================================================================
// TESTS
// =============================================================================

func TestDiff_ReportsBothSides(t *testing.T) {
	// GIVEN: A log and an invoice sharing one container, each with one extra row
	// WHEN: They are diffed for January
	// THEN: Each extra row is reported on its side; the shared one matches

	ds, err := reconcile.Lookup("washing")
	require.NoError(t, err)

	log := washingLog(
		[]string{"09/01/2024", "msku1", "MAERSK", ""},
		[]string{"10/01/2024", "MSKU2", "MAERSK", ""},
	)
	inv := washingInvoice(
		[]string{"washing", "09/01/2024", "MAERSK", "MSKU1"},
		[]string{"washing", "11/01/2024", "MAERSK", "MSKU3"},
	)

	report, err := reconcile.Diff(ds, log, inv, january)
	require.NoError(t, err)

	assert.False(t, report.Clean())
	assert.Equal(t, 2, report.Logged)
	assert.Equal(t, 2, report.Invoiced)
	require.Len(t, report.NotInvoiced, 1)
	assert.Equal(t, "MSKU2", report.NotInvoiced[0].Ref)
	assert.Equal(t, 1, report.NotInvoiced[0].Row)
	require.Len(t, report.NotLogged, 1)
	assert.Equal(t, "MSKU3", report.NotLogged[0].Ref)
}

func TestDiff_WindowAndSkips(t *testing.T) {
	// GIVEN: Rows outside January, skipped rows, and a datetime invoice cell
	// WHEN: They are diffed for January
	// THEN: Only in-window, non-skipped rows are compared and they match

	ds, err := reconcile.Lookup("washing")
	require.NoError(t, err)

	log := washingLog(
		[]string{"09/01/2024", "MSKU1", "MAERSK", ""},
		[]string{"01/02/2024", "MSKU9", "MAERSK", ""},
		[]string{"12/01/2024", "MSKU5", "MAERSK", "invalid"},
	)
	inv := washingInvoice(
		[]string{"washing", "2024-01-09 08:00:00", "MAERSK", "MSKU1"},
		[]string{"washing", "31/12/2023", "MAERSK", "MSKU8"},
		[]string{"washing", "15/01/2024", "INVALID", "MSKU7"},
	)

	report, err := reconcile.Diff(ds, log, inv, january)
	require.NoError(t, err)

	assert.True(t, report.Clean())
	assert.Equal(t, 1, report.Logged)
	assert.Equal(t, 1, report.Invoiced)
}

func TestDiff_BadDateIsAWarning(t *testing.T) {
	ds, _ := reconcile.Lookup("washing")
	log := washingLog([]string{"soon", "MSKU1", "MAERSK", ""})

	report, err := reconcile.Diff(ds, log, washingInvoice(), january)
	require.NoError(t, err)

	assert.Len(t, report.Warnings, 1)
	assert.Empty(t, report.NotInvoiced)
}

func TestDiff_MissingColumn(t *testing.T) {
	ds, _ := reconcile.Lookup("washing")
	bad := generic.NewTable("washing", []string{"date"}, nil)

	_, err := reconcile.Diff(ds, washingLog(), bad, january)
	assert.ErrorIs(t, err, generic.ErrSchema)
}

func TestLookup_Unknown(t *testing.T) {
	_, err := reconcile.Lookup("forklift_racing")
	assert.ErrorIs(t, err, generic.ErrCategoryNotFound)
	assert.Contains(t, reconcile.Names(), "pti")
}
