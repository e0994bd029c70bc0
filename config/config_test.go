package config_test

import (
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/port-invoice/config"
	"github.com/warp/port-invoice/ingest"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func writeYAML(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// =============================================================================
// TESTS
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	c, err := config.Load("")
	require.NoError(t, err)

	assert.Equal(t, 8080, c.Server.Port)
	assert.Equal(t, config.SourceCSV, c.Source.Mode)
	assert.Equal(t, 0.5, c.Engine.MaxParseFailureRatio)
	assert.Equal(t, civil.Time{Hour: 17}, c.Cutoffs().Normal)
}

func TestLoad_YAMLThenEnv(t *testing.T) {
	// GIVEN: A YAML file and PORTINV_* overrides
	// WHEN: Config is loaded
	// THEN: Env wins over YAML, YAML wins over defaults

	path := writeYAML(t, `
server:
  port: 9000
  db: ":memory:"
engine:
  concurrency: 4
  cutoffs:
    special: "15:00"
source:
  mode: gsheet
  workbooks:
    master: yaml-master
cache:
  type: none
  ttl: 30m
`)
	t.Setenv("PORTINV_PORT", "9100")
	t.Setenv("PORTINV_SHEET_EMR", "env-emr")
	t.Setenv("PORTINV_LOG_LEVEL", "debug")

	c, err := config.Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9100, c.Server.Port)
	assert.Equal(t, ":memory:", c.Server.DB)
	assert.Equal(t, 4, c.Engine.Concurrency)
	assert.Equal(t, "debug", c.Log.Level)
	assert.Equal(t, 30*time.Minute, c.Cache.TTL)
	assert.Equal(t, "yaml-master", c.Source.Workbooks["master"])
	assert.Equal(t, "env-emr", c.Source.Workbooks["emr"])
	assert.Equal(t, civil.Time{Hour: 15}, c.Cutoffs().Special)
	assert.Equal(t, civil.Time{Hour: 17}, c.Cutoffs().Normal)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
	}{
		{"bad port", map[string]string{"PORTINV_PORT": "0"}},
		{"non-numeric port", map[string]string{"PORTINV_PORT": "http"}},
		{"ratio above one", map[string]string{"PORTINV_MAX_PARSE_FAILURE_RATIO": "1.5"}},
		{"unknown source", map[string]string{"PORTINV_SOURCE": "ftp"}},
		{"gsheet without ids", map[string]string{"PORTINV_SOURCE": "gsheet"}},
		{"unknown cache", map[string]string{"PORTINV_CACHE": "disk"}},
		{"bad level", map[string]string{"PORTINV_LOG_LEVEL": "loud"}},
		{"bad ttl", map[string]string{"PORTINV_CACHE_TTL": "forever"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := config.Load("")
			assert.Error(t, err)
		})
	}
}

func TestSheets_Overrides(t *testing.T) {
	c := config.Default()
	c.Source.Sheets = map[string]ingest.SheetRef{"salt": {Workbook: "ops", Sheet: "Salt2024"}}

	sheets := c.Sheets()
	assert.Equal(t, "Salt2024", sheets["salt"].Sheet)
	assert.Equal(t, ingest.DefaultSheets["pti"], sheets["pti"])
	assert.Equal(t, "SaltOperation", ingest.DefaultSheets["salt"].Sheet, "defaults untouched")
}

func TestNewSource_CSV(t *testing.T) {
	c := config.Default()
	c.Source.CSVDir = t.TempDir()
	c.Cache.Type = config.CacheNone

	src, closeFn, err := c.NewSource(c.NewLogger(io.Discard))
	require.NoError(t, err)
	defer closeFn()

	assert.Equal(t, ingest.CSVDir{Dir: c.Source.CSVDir}, src)
}
