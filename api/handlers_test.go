package api_test

import (
	"bytes"
	"encoding/csv"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/port-invoice/api"
	"github.com/warp/port-invoice/billing"
	"github.com/warp/port-invoice/ingest"
	"github.com/warp/port-invoice/services"
	"github.com/warp/port-invoice/store/sqlite"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// newServer wires the API over an in-memory store and a CSV directory
// holding a January 2024 washing sheet. withRunner=false disables runs.
func newServer(t *testing.T, withRunner bool) *httptest.Server {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	var runner *billing.Runner
	if withRunner {
		dir := t.TempDir()
		require.NoError(t, os.WriteFile(filepath.Join(dir, services.TableWashing+".csv"),
			[]byte("date,container_number,invoice_to\n09/01/2024,MSKU1,IOT\n10/01/2024,MSKU2,IOT\n"), 0o644))
		loader := ingest.NewLoader(ingest.CSVDir{Dir: dir}, 2, discard())
		runner = billing.NewRunner(loader, store, store, discard())
	}

	srv := httptest.NewServer(api.NewRouter(api.NewHandler(store, runner, discard())))
	t.Cleanup(srv.Close)
	return srv
}

func get(t *testing.T, srv *httptest.Server, path string, out any) int {
	t.Helper()
	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func post(t *testing.T, srv *httptest.Server, path string, body, out any) int {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+path, "application/json", bytes.NewReader(data))
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func savePrices(t *testing.T, srv *httptest.Server, entries ...api.PriceDTO) {
	t.Helper()
	status := post(t, srv, "/api/prices", api.CreatePricesRequest{Entries: entries}, nil)
	require.Equal(t, http.StatusCreated, status)
}

// =============================================================================
// CALENDAR
// =============================================================================

func TestHealth(t *testing.T) {
	srv := newServer(t, false)
	var body map[string]string
	assert.Equal(t, http.StatusOK, get(t, srv, "/api/health", &body))
	assert.Equal(t, "ok", body["status"])
}

func TestListHolidays(t *testing.T) {
	srv := newServer(t, false)

	var body struct {
		Holidays []api.HolidayDTO `json:"holidays"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/holidays/2024", &body))

	dates := make(map[string]bool)
	for _, h := range body.Holidays {
		dates[h.Date] = true
	}
	assert.True(t, dates["2024-03-29"], "Good Friday")
	assert.True(t, dates["2024-03-31"], "Easter Sunday")
	assert.True(t, dates["2024-12-25"])

	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/holidays/next", nil))
}

func TestGetDay(t *testing.T) {
	srv := newServer(t, false)

	var sunday api.DayDTO
	require.Equal(t, http.StatusOK, get(t, srv, "/api/calendar/2024-01-07", &sunday))
	assert.Equal(t, "Sunday", sunday.DayType)
	assert.Equal(t, "Sun", sunday.DayName)

	var christmas api.DayDTO
	require.Equal(t, http.StatusOK, get(t, srv, "/api/calendar/2024-12-25", &christmas))
	assert.Equal(t, "PublicHoliday", christmas.DayType)
	assert.Equal(t, "PH", christmas.DayName)
	assert.NotEmpty(t, christmas.Holiday)
}

// =============================================================================
// PRICES
// =============================================================================

func TestPrices_AsOfLookup(t *testing.T) {
	// GIVEN: Two Shifting entries effective 2023-01-01 and 2024-01-01
	// WHEN: Prices are looked up before, between and after
	// THEN: The latest entry effective on the date wins; before the first is 404

	srv := newServer(t, false)
	savePrices(t, srv,
		api.PriceDTO{Service: "Shifting", Effective: "2023-01-01", Price: "10"},
		api.PriceDTO{Service: "Shifting", Effective: "2024-01-01", Price: "12.5"},
	)

	var p api.PriceDTO
	require.Equal(t, http.StatusOK, get(t, srv, "/api/prices?service=Shifting&date=2023-06-01", &p))
	assert.Equal(t, "10.00", p.Price)

	require.Equal(t, http.StatusOK, get(t, srv, "/api/prices?service=Shifting&date=2024-01-01", &p))
	assert.Equal(t, "12.50", p.Price)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/prices?service=Shifting&date=2022-12-31", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/prices?service=Shifting", nil))

	var all struct {
		Entries []api.PriceDTO `json:"entries"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/prices", &all))
	assert.Len(t, all.Entries, 2)
}

func TestCreatePrices_Invalid(t *testing.T) {
	srv := newServer(t, false)

	status := post(t, srv, "/api/prices", api.CreatePricesRequest{Entries: []api.PriceDTO{
		{Service: "Shifting", Effective: "someday", Price: "10"},
	}}, nil)
	assert.Equal(t, http.StatusBadRequest, status)

	status = post(t, srv, "/api/prices", api.CreatePricesRequest{}, nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

// =============================================================================
// OVERTIME
// =============================================================================

func TestSplitOvertime(t *testing.T) {
	srv := newServer(t, false)

	var sunday api.SplitDTO
	require.Equal(t, http.StatusOK, post(t, srv, "/api/overtime/split",
		api.SplitRequest{Date: "2024-01-07", Start: "14:00", End: "18:00"}, &sunday))
	assert.Equal(t, "Sunday", sunday.DayType)
	assert.InDelta(t, 0.0, sunday.Normal, 1e-9)
	assert.InDelta(t, 2.0, sunday.OT150, 1e-9)
	assert.InDelta(t, 2.0, sunday.OT200, 1e-9)

	measure := 100.0
	var tonnes api.SplitDTO
	require.Equal(t, http.StatusOK, post(t, srv, "/api/overtime/split",
		api.SplitRequest{Date: "2024-01-09", Start: "15:00", End: "19:00", Measure: &measure}, &tonnes))
	assert.InDelta(t, 50.0, tonnes.Normal, 1e-9)
	assert.InDelta(t, 50.0, tonnes.OT150, 1e-9)
}

func TestSplitOvertime_Degenerate(t *testing.T) {
	srv := newServer(t, false)

	var out api.SplitDTO
	require.Equal(t, http.StatusOK, post(t, srv, "/api/overtime/split",
		api.SplitRequest{Date: "2024-01-09", Start: "14:00", End: "10:00"}, &out))
	assert.True(t, out.Degenerate)
	assert.NotEmpty(t, out.Warning)

	assert.Equal(t, http.StatusBadRequest, post(t, srv, "/api/overtime/split",
		api.SplitRequest{Date: "2024-01-09", Start: "late", End: "10:00"}, nil))
}

// =============================================================================
// RUNS
// =============================================================================

func TestRuns_CreateReadExport(t *testing.T) {
	// GIVEN: A washing price and two January washing rows
	// WHEN: A January washing run is created
	// THEN: It is listed, its lines read back and its CSV export has a header

	srv := newServer(t, true)
	savePrices(t, srv, api.PriceDTO{Service: services.ServiceContainerCleaning, Effective: "2023-01-01", Price: "25"})

	var run api.RunDTO
	status := post(t, srv, "/api/runs", map[string]any{
		"month":      "2024-01",
		"categories": []string{services.CategoryWashing},
	}, &run)
	require.Equal(t, http.StatusCreated, status)
	assert.Equal(t, "50.00", run.Total)
	assert.Equal(t, "2024-01-01", run.PeriodStart)
	assert.Equal(t, "2024-01-31", run.PeriodEnd)
	require.Len(t, run.Categories, 1)
	assert.Equal(t, 2, run.Categories[0].Lines)

	var got api.RunDTO
	require.Equal(t, http.StatusOK, get(t, srv, "/api/runs/"+run.ID, &got))
	assert.Equal(t, run.Total, got.Total)

	var list struct {
		Runs []api.RunDTO `json:"runs"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/runs?limit=5", &list))
	assert.Len(t, list.Runs, 1)

	var lines struct {
		Lines []api.LineDTO `json:"lines"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/runs/"+run.ID+"/lines?category=washing", &lines))
	require.Len(t, lines.Lines, 2)
	assert.Equal(t, "2024-01-09", lines.Lines[0].Date)
	assert.Equal(t, "25.00", lines.Lines[0].Total)

	resp, err := http.Get(srv.URL + "/api/runs/" + run.ID + "/export/washing")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/csv", resp.Header.Get("Content-Type"))
	recs, err := csv.NewReader(resp.Body).ReadAll()
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "category", recs[0][0])
}

func TestRuns_Errors(t *testing.T) {
	srv := newServer(t, true)

	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/runs/nope", nil))
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/runs/nope/lines?category=washing", nil))
	assert.Equal(t, http.StatusNotFound, get(t, srv, "/api/runs/nope/lines?category=teleport", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/runs/nope/lines", nil))
	assert.Equal(t, http.StatusBadRequest, get(t, srv, "/api/runs?limit=-1", nil))

	assert.Equal(t, http.StatusNotFound, post(t, srv, "/api/runs",
		map[string]any{"categories": []string{"teleport"}}, nil))
	assert.Equal(t, http.StatusBadRequest, post(t, srv, "/api/runs",
		map[string]any{"month": "January"}, nil))
}

func TestRuns_NoRunner(t *testing.T) {
	srv := newServer(t, false)
	assert.Equal(t, http.StatusServiceUnavailable, post(t, srv, "/api/runs", map[string]any{}, nil))
}

func TestListCategories(t *testing.T) {
	srv := newServer(t, false)

	var body struct {
		Categories []api.CategoryDTO `json:"categories"`
	}
	require.Equal(t, http.StatusOK, get(t, srv, "/api/categories", &body))
	assert.Len(t, body.Categories, len(services.Pipelines()))
}
