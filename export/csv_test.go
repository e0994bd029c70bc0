package export_test

import (
	"bytes"
	"encoding/csv"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/port-invoice/export"
	"github.com/warp/port-invoice/generic"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func haulageTable() generic.PricedTable {
	split := generic.OvertimeSplit{Normal: 1}
	legs := []generic.Leg{
		generic.NewLeg("shifting_price", "Shifting", decimal.NewFromInt(15), split),
		generic.NewLeg("haulage_price", "Haulage FEU", decimal.NewFromInt(150), split),
	}
	first := generic.PricedLine{
		Category: "haulage",
		Date:     civil.Date{Year: 2024, Month: time.January, Day: 9},
		DayName:  "Tue",
		Customer: "MAERSK",
		Service:  "Haulage FEU",
		Split:    split,
		Legs:     legs,
		Total:    generic.SumLegs(legs),
		Attrs:    []generic.Attr{{Key: "container_number", Value: "MSKU1"}},
	}
	second := generic.PricedLine{
		Category: "haulage",
		Date:     civil.Date{Year: 2024, Month: time.January, Day: 7},
		DayName:  "Sun",
		Customer: "INVALID",
		Service:  "Haulage TEU",
		Split:    generic.OvertimeSplit{OT200: 0.5},
	}
	return generic.PricedTable{Category: "haulage", Lines: []generic.PricedLine{first, second}}
}

func readAll(t *testing.T, b []byte) [][]string {
	t.Helper()
	recs, err := csv.NewReader(bytes.NewReader(b)).ReadAll()
	require.NoError(t, err)
	return recs
}

// =============================================================================
// TESTS
// =============================================================================

func TestWriteCSV_Header(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, haulageTable()))

	recs := readAll(t, buf.Bytes())
	assert.Equal(t, []string{
		"category", "date", "day_name", "customer", "vessel", "service",
		"normal", "overtime_150", "overtime_200", "unit_price", "total",
		"shifting_price", "haulage_price", "container_number",
	}, recs[0])
}

func TestWriteCSV_Lines(t *testing.T) {
	// GIVEN: One line with legs and attrs, one line without
	// WHEN: The table is exported
	// THEN: Missing legs write 0.00 and missing attrs write empty cells

	var buf bytes.Buffer
	require.NoError(t, export.WriteCSV(&buf, haulageTable()))

	recs := readAll(t, buf.Bytes())
	require.Len(t, recs, 3)

	assert.Equal(t, []string{
		"haulage", "09/01/2024", "Tue", "MAERSK", "", "Haulage FEU",
		"1", "0", "0", "0.00", "165.00", "15.00", "150.00", "MSKU1",
	}, recs[1])
	assert.Equal(t, "0.5", recs[2][8])
	assert.Equal(t, "0.00", recs[2][11])
	assert.Equal(t, "", recs[2][13])
}

func TestWriteRun_SkipsFailedCategories(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	run := &generic.RunResult{
		ID: generic.NewRunID(),
		Tables: []generic.PricedTable{
			haulageTable(),
			{Category: "salt", Err: errors.New("price not found")},
		},
	}

	paths, err := export.WriteRun(dir, run)
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(dir, "haulage.csv")}, paths)

	data, err := os.ReadFile(paths[0])
	require.NoError(t, err)
	assert.Len(t, readAll(t, data), 3)
}
