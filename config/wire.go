package config

import (
	"fmt"
	"io"
	"log/slog"
	"maps"
	"strings"

	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/ingest"
)

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(s))); err != nil {
		return 0, fmt.Errorf("log.level %q: %w", s, err)
	}
	return l, nil
}

// NewLogger builds the process logger writing to w.
func (c *Config) NewLogger(w io.Writer) *slog.Logger {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// Cutoffs returns the allocator cutoffs. Validate has already checked them.
func (c *Config) Cutoffs() generic.Cutoffs {
	cut, err := c.Engine.Cutoffs.Build()
	if err != nil {
		return generic.DefaultCutoffs()
	}
	return cut
}

// Sheets returns DefaultSheets with the configured overrides applied.
func (c *Config) Sheets() map[string]ingest.SheetRef {
	out := maps.Clone(ingest.DefaultSheets)
	maps.Copy(out, c.Source.Sheets)
	return out
}

// NewSource builds the table source with its cache. The returned close
// function releases the cache connection.
func (c *Config) NewSource(logger *slog.Logger) (ingest.Source, func() error, error) {
	var src ingest.Source
	switch c.Source.Mode {
	case SourceGSheet:
		src = ingest.NewGSheet(c.Sheets(), c.Source.Workbooks, logger)
	case SourceCSV:
		src = ingest.CSVDir{Dir: c.Source.CSVDir}
	default:
		return nil, nil, fmt.Errorf("source.mode %q: want csv or gsheet", c.Source.Mode)
	}

	noop := func() error { return nil }
	switch c.Cache.Type {
	case CacheMemory:
		return ingest.Cached(src, ingest.NewMemoryCache(), c.Cache.TTL, logger), noop, nil
	case CacheRedis:
		client := ingest.NewRedis(c.Cache.RedisAddr)
		return ingest.Cached(src, ingest.NewRedisCache(client, ""), c.Cache.TTL, logger), client.Close, nil
	default:
		return src, noop, nil
	}
}

// NewLoader wires a loader over NewSource.
func (c *Config) NewLoader(logger *slog.Logger) (*ingest.Loader, func() error, error) {
	src, closeFn, err := c.NewSource(logger)
	if err != nil {
		return nil, nil, err
	}
	return ingest.NewLoader(src, c.Engine.Concurrency, logger), closeFn, nil
}
