package billing_test

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/port-invoice/billing"
	"github.com/warp/port-invoice/factory"
	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/generic/store"
	"github.com/warp/port-invoice/ingest"
	"github.com/warp/port-invoice/services"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fixtureDir writes a washing sheet for January 2024 and, optionally, a price sheet.
func fixtureDir(t *testing.T, withPrices bool) string {
	t.Helper()
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(body), 0o644))
	}
	write(services.TableWashing,
		"date,container_number,invoice_to\n"+
			"09/01/2024,MSKU1,IOT\n"+
			"10/01/2024,MSKU2,INVALID\n"+
			"02/02/2024,MSKU3,IOT\n")
	write(services.TableClient, "Vessel/Client,Type,Customer\nCAP ST VINCENT,THONIER,CFTO\n")
	if withPrices {
		write(services.TablePrice, "Service,StartingDate,EndingDate,Price\nContainer Cleaning,01/01/2023,,25\n")
	}
	return dir
}

func washingPlan(t *testing.T) *factory.Plan {
	t.Helper()
	plan, err := factory.PlanJSON{Month: "2024-01", Categories: []string{services.CategoryWashing}}.Build()
	require.NoError(t, err)
	return plan
}

func newRunner(dir string, st *store.Memory) *billing.Runner {
	loader := ingest.NewLoader(ingest.CSVDir{Dir: dir}, 2, discard())
	return billing.NewRunner(loader, st, st, discard())
}

// =============================================================================
// RUNNER
// =============================================================================

func TestRunner_Run_PricesAndPersists(t *testing.T) {
	// GIVEN: A washing sheet with two January rows and one February row
	// WHEN: January is run
	// THEN: Two lines are priced, the run is stored, the directory is built

	st := store.NewMemory()
	out, err := newRunner(fixtureDir(t, true), st).Run(context.Background(), washingPlan(t))
	require.NoError(t, err)

	table, ok := out.Result.Table(services.CategoryWashing)
	require.True(t, ok)
	require.NoError(t, table.Err)
	assert.Len(t, table.Lines, 2)
	assert.Equal(t, "25.00", table.Total().StringFixed(2))
	assert.Equal(t, 1, out.Catalog)
	assert.True(t, out.Directory.Has(services.SetShipOwner, "CFTO"))
	assert.Empty(t, out.Unloaded)

	saved, err := st.GetRun(context.Background(), out.Result.ID)
	require.NoError(t, err)
	assert.Equal(t, generic.MonthPeriod(2024, time.January), saved.Period)
}

func TestRunner_Run_StoredPricesWithoutSheet(t *testing.T) {
	st := store.NewMemory()
	require.NoError(t, st.SavePrices(context.Background(), []generic.PriceEntry{{
		Service:   services.ServiceContainerCleaning,
		Effective: civil.Date{Year: 2023, Month: time.January, Day: 1},
		Price:     decimal.NewFromInt(30),
	}}))

	out, err := newRunner(fixtureDir(t, false), st).Run(context.Background(), washingPlan(t))
	require.NoError(t, err)

	assert.Contains(t, out.Unloaded, services.TablePrice)
	table, _ := out.Result.Table(services.CategoryWashing)
	assert.Equal(t, "30.00", table.Total().StringFixed(2))
}

func TestRunner_Run_NoPricesFailsCategory(t *testing.T) {
	out, err := newRunner(fixtureDir(t, false), store.NewMemory()).Run(context.Background(), washingPlan(t))
	require.NoError(t, err)

	table, _ := out.Result.Table(services.CategoryWashing)
	assert.ErrorIs(t, table.Err, generic.ErrPriceNotFound)
}

// =============================================================================
// SCHEDULER
// =============================================================================

func TestPreviousMonth(t *testing.T) {
	got := billing.PreviousMonth(time.Date(2024, time.January, 15, 9, 0, 0, 0, time.UTC))
	assert.Equal(t, generic.MonthPeriod(2023, time.December), got)
}

func TestScheduler_RunsEachMonthOnce(t *testing.T) {
	// GIVEN: A scheduler whose clock sits in February 2024
	// WHEN: It checks twice
	// THEN: January is priced once; the second check finds it covered

	st := store.NewMemory()
	s := billing.NewScheduler(newRunner(fixtureDir(t, true), st), generic.DefaultCutoffs(), discard())
	s.Now = func() time.Time { return time.Date(2024, time.February, 3, 6, 0, 0, 0, time.UTC) }

	first, err := s.CheckAndRun(context.Background())
	require.NoError(t, err)
	require.NotNil(t, first)
	assert.Equal(t, generic.MonthPeriod(2024, time.January), first.Period)

	second, err := s.CheckAndRun(context.Background())
	require.NoError(t, err)
	assert.Nil(t, second)

	runs, err := st.ListRuns(context.Background(), 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}
