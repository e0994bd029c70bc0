/*
Package ingest loads the activity and master sheets into generic tables.

PURPOSE:
  Every sheet the pipelines read arrives as a generic.Table: named columns,
  string cells. Where the cells come from is a Source:

    CSVDir   one <table>.csv file per table in a directory
    GSheet   Google Sheets gviz CSV export, one HTTP request per sheet

  A Cache in front of a Source (Memory or Redis) saves re-fetching sheets
  across runs. Loader fetches many tables at once with bounded concurrency.

FAILURES:
  A table that fails to load is left out of the result and reported in the
  failure map. Pipelines reading it fail with ErrTableUnavailable; the other
  tables and pipelines are unaffected.

USAGE:
  src := ingest.NewGSheet(ingest.DefaultSheets, workbooks, logger)
  loader := ingest.NewLoader(ingest.Cached(src, ingest.NewMemoryCache(), time.Hour), 10, logger)
  tables, failed := loader.LoadAll(ctx, generic.RequiredSources(pipelines))

SEE ALSO:
  - generic/table.go: Table contract
  - generic/pipeline.go: Env.Tables consumer
*/
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/warp/port-invoice/generic"
)

// ErrUnknownTable is returned when a source has no location for a table name.
var ErrUnknownTable = errors.New("unknown table")

// Source fetches one table by name.
type Source interface {
	Fetch(ctx context.Context, name string) (*generic.Table, error)
}

// =============================================================================
// CSV DECODING
// =============================================================================

// DecodeCSV reads a header row followed by data rows. Ragged rows are
// accepted; fully blank rows are dropped.
func DecodeCSV(name string, r io.Reader) (*generic.Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, &generic.SchemaError{Table: name, Reason: "empty sheet"}
	}
	if err != nil {
		return nil, fmt.Errorf("read %s header: %w", name, err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\uFEFF")
	}

	var rows [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if blank(rec) {
			continue
		}
		rows = append(rows, rec)
	}
	return generic.NewTable(name, header, rows), nil
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

// =============================================================================
// CSV DIRECTORY
// =============================================================================

// CSVDir reads <Dir>/<name>.csv.
type CSVDir struct {
	Dir string
}

// Fetch opens and decodes the table's file.
func (s CSVDir) Fetch(ctx context.Context, name string) (*generic.Table, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(filepath.Join(s.Dir, name+".csv"))
	if errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownTable, name)
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeCSV(name, f)
}
