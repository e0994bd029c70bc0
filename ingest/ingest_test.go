package ingest_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/ingest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeCSV(t *testing.T, dir, name, body string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name+".csv"), []byte(body), 0o644))
}

// countingSource returns a one-row table and counts fetches.
type countingSource struct {
	calls atomic.Int32
	fail  map[string]bool
}

func (s *countingSource) Fetch(_ context.Context, name string) (*generic.Table, error) {
	s.calls.Add(1)
	if s.fail[name] {
		return nil, errors.New("boom")
	}
	return generic.NewTable(name, []string{"a"}, [][]string{{"1"}}), nil
}

// =============================================================================
// CSV
// =============================================================================

func TestDecodeCSV(t *testing.T) {
	body := "\uFEFFdate, customer ,tonnage\n09/01/2024,\"MAERSK, LINE\",1,200\n,,\n10/01/2024,IOT\n"

	tbl, err := ingest.DecodeCSV("salt", strings.NewReader(body))
	require.NoError(t, err)

	assert.Equal(t, []string{"date", "customer", "tonnage"}, tbl.Columns)
	require.Equal(t, 2, tbl.Len(), "blank row dropped")
	assert.Equal(t, "MAERSK, LINE", tbl.Row(0).String("customer"))
	assert.Equal(t, "", tbl.Row(1).String("tonnage"), "short rows read as empty")
}

func TestDecodeCSV_Empty(t *testing.T) {
	_, err := ingest.DecodeCSV("salt", strings.NewReader(""))
	assert.ErrorIs(t, err, generic.ErrSchema)
}

func TestCSVDir_Fetch(t *testing.T) {
	dir := t.TempDir()
	writeCSV(t, dir, "salt", "date,customer\n09/01/2024,IOT\n")

	src := ingest.CSVDir{Dir: dir}

	tbl, err := src.Fetch(context.Background(), "salt")
	require.NoError(t, err)
	assert.Equal(t, "salt", tbl.Name)
	assert.Equal(t, "IOT", tbl.Row(0).String("customer"))

	_, err = src.Fetch(context.Background(), "missing")
	assert.ErrorIs(t, err, ingest.ErrUnknownTable)
}

// =============================================================================
// GOOGLE SHEETS
// =============================================================================

func TestGSheet_Fetch(t *testing.T) {
	// GIVEN: A gviz endpoint serving one sheet
	// WHEN: The mapped table is fetched
	// THEN: The request carries the spreadsheet id and sheet name, and the CSV decodes

	var gotPath, gotSheet, gotFormat string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotSheet = r.URL.Query().Get("sheet")
		gotFormat = r.URL.Query().Get("tqx")
		if gotSheet != "SaltOperation" {
			http.Error(w, "no such sheet", http.StatusBadRequest)
			return
		}
		_, _ = io.WriteString(w, "\"date\",\"customer\"\n\"09/01/2024\",\"IOT\"\n")
	}))
	defer srv.Close()

	g := ingest.NewGSheet(
		map[string]ingest.SheetRef{
			"salt":  {Workbook: ingest.WorkbookShore, Sheet: "SaltOperation"},
			"other": {Workbook: ingest.WorkbookShore, Sheet: "Other"},
			"noid":  {Workbook: ingest.WorkbookMaster, Sheet: "Price"},
		},
		map[string]string{ingest.WorkbookShore: "sheet-123"},
		discard(),
	)
	g.BaseURL = srv.URL

	tbl, err := g.Fetch(context.Background(), "salt")
	require.NoError(t, err)
	assert.Equal(t, "/d/sheet-123/gviz/tq", gotPath)
	assert.Equal(t, "out:csv", gotFormat)
	assert.Equal(t, "IOT", tbl.Row(0).String("customer"))

	_, err = g.Fetch(context.Background(), "other")
	assert.ErrorContains(t, err, "unexpected status")

	_, err = g.Fetch(context.Background(), "noid")
	assert.ErrorIs(t, err, ingest.ErrUnknownTable)

	_, err = g.Fetch(context.Background(), "unmapped")
	assert.ErrorIs(t, err, ingest.ErrUnknownTable)
}

func TestDefaultSheets_CoverEveryPipelineSource(t *testing.T) {
	for _, name := range generic.RequiredSources(generic.ListPipelines()) {
		_, ok := ingest.DefaultSheets[name]
		assert.True(t, ok, "no sheet for table %s", name)
	}
}

// =============================================================================
// CACHE
// =============================================================================

func TestCached_MemoryCache(t *testing.T) {
	src := &countingSource{}
	cached := ingest.Cached(src, ingest.NewMemoryCache(), time.Hour, discard())
	ctx := context.Background()

	_, err := cached.Fetch(ctx, "salt")
	require.NoError(t, err)
	_, err = cached.Fetch(ctx, "salt")
	require.NoError(t, err)

	assert.Equal(t, int32(1), src.calls.Load())
}

func TestMemoryCache_Invalidate(t *testing.T) {
	c := ingest.NewMemoryCache()
	ctx := context.Background()
	require.NoError(t, c.Set(ctx, "salt", generic.NewTable("salt", nil, nil), 0))

	_, ok, _ := c.Get(ctx, "salt")
	assert.True(t, ok)

	c.Invalidate()
	_, ok, _ = c.Get(ctx, "salt")
	assert.False(t, ok)
}

func TestRedisCache_RoundTrip(t *testing.T) {
	addr := os.Getenv("PORTINV_REDIS_ADDR")
	if addr == "" {
		t.Skip("PORTINV_REDIS_ADDR not set; skipping integration test")
	}
	client := ingest.NewRedis(addr)
	defer client.Close()

	ctx := context.Background()
	cache := ingest.NewRedisCache(client, "portinv:test:")
	defer client.Del(ctx, "portinv:test:salt")

	in := generic.NewTable("salt", []string{"date", "customer"}, [][]string{{"09/01/2024", "IOT"}})
	require.NoError(t, cache.Set(ctx, "salt", in, time.Minute))

	out, ok, err := cache.Get(ctx, "salt")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, in.Columns, out.Columns)
	assert.Equal(t, "IOT", out.Row(0).String("customer"))
}

// =============================================================================
// LOADER
// =============================================================================

func TestLoader_LoadAll_IsolatesFailures(t *testing.T) {
	// GIVEN: Three tables, one of which fails
	// WHEN: They are loaded together
	// THEN: The failure is reported alone and the other two load

	src := &countingSource{fail: map[string]bool{"bad": true}}
	loader := ingest.NewLoader(src, 2, discard())

	tables, failed := loader.LoadAll(context.Background(), []string{"a", "bad", "b"})

	assert.Len(t, tables, 2)
	assert.Contains(t, tables, "a")
	assert.Contains(t, tables, "b")
	require.Len(t, failed, 1)
	assert.EqualError(t, failed["bad"], "boom")
}
