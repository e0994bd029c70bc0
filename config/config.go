/*
Package config loads runtime settings for the server and the CLI.

LOAD ORDER:
  1. Defaults
  2. YAML file (optional path)
  3. .env file in the working directory (optional; existing env wins)
  4. PORTINV_* environment variables
  5. Validate

ENVIRONMENT:
  PORTINV_PORT, PORTINV_DB, PORTINV_LOG_LEVEL, PORTINV_LOG_FORMAT,
  PORTINV_CONCURRENCY, PORTINV_MAX_PARSE_FAILURE_RATIO,
  PORTINV_SOURCE (csv|gsheet), PORTINV_CSV_DIR,
  PORTINV_CACHE (none|memory|redis), PORTINV_REDIS_ADDR, PORTINV_CACHE_TTL,
  PORTINV_OUTPUT_DIR,
  PORTINV_SHEET_<WORKBOOK> (spreadsheet id, e.g. PORTINV_SHEET_MASTER)

SEE ALSO:
  - config/wire.go: builds logger, source and allocator from a Config
*/
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/warp/port-invoice/factory"
	"github.com/warp/port-invoice/generic"
	"github.com/warp/port-invoice/ingest"
)

const envPrefix = "PORTINV_"

// Source modes.
const (
	SourceCSV    = "csv"
	SourceGSheet = "gsheet"
)

// Cache types.
const (
	CacheNone   = "none"
	CacheMemory = "memory"
	CacheRedis  = "redis"
)

type Config struct {
	Server struct {
		Port int    `yaml:"port"`
		DB   string `yaml:"db"`
	} `yaml:"server"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"` // json | text
	} `yaml:"log"`

	Engine struct {
		Concurrency          int                  `yaml:"concurrency"`
		MaxParseFailureRatio float64              `yaml:"max_parse_failure_ratio"`
		Cutoffs              *factory.CutoffsJSON `yaml:"cutoffs"`
	} `yaml:"engine"`

	Source struct {
		Mode      string                     `yaml:"mode"`
		CSVDir    string                     `yaml:"csv_dir"`
		Workbooks map[string]string          `yaml:"workbooks"` // workbook key -> spreadsheet id
		Sheets    map[string]ingest.SheetRef `yaml:"sheets"`    // per-table overrides of DefaultSheets
	} `yaml:"source"`

	Cache struct {
		Type      string        `yaml:"type"`
		RedisAddr string        `yaml:"redis_addr"`
		TTL       time.Duration `yaml:"ttl"`
	} `yaml:"cache"`

	OutputDir string `yaml:"output_dir"`
}

// Default returns the built-in settings.
func Default() *Config {
	c := &Config{}
	c.Server.Port = 8080
	c.Server.DB = "invoice.db"
	c.Log.Level = "info"
	c.Log.Format = "json"
	c.Engine.Concurrency = generic.DefaultConcurrency
	c.Engine.MaxParseFailureRatio = generic.DefaultMaxParseFailureRatio
	c.Source.Mode = SourceCSV
	c.Source.CSVDir = "data"
	c.Source.Workbooks = map[string]string{}
	c.Cache.Type = CacheMemory
	c.Cache.RedisAddr = "localhost:6379"
	c.Cache.TTL = time.Hour
	c.OutputDir = "out"
	return c
}

// Load reads path (may be empty), .env and the environment, then validates.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	if err := c.applyEnv(); err != nil {
		return nil, err
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) applyEnv() error {
	c.Server.DB = envOrDefault(envPrefix+"DB", c.Server.DB)
	c.Log.Level = envOrDefault(envPrefix+"LOG_LEVEL", c.Log.Level)
	c.Log.Format = envOrDefault(envPrefix+"LOG_FORMAT", c.Log.Format)
	c.Source.Mode = envOrDefault(envPrefix+"SOURCE", c.Source.Mode)
	c.Source.CSVDir = envOrDefault(envPrefix+"CSV_DIR", c.Source.CSVDir)
	c.Cache.Type = envOrDefault(envPrefix+"CACHE", c.Cache.Type)
	c.Cache.RedisAddr = envOrDefault(envPrefix+"REDIS_ADDR", c.Cache.RedisAddr)
	c.OutputDir = envOrDefault(envPrefix+"OUTPUT_DIR", c.OutputDir)

	var err error
	if c.Server.Port, err = envInt(envPrefix+"PORT", c.Server.Port); err != nil {
		return err
	}
	if c.Engine.Concurrency, err = envInt(envPrefix+"CONCURRENCY", c.Engine.Concurrency); err != nil {
		return err
	}
	if c.Engine.MaxParseFailureRatio, err = envFloat(envPrefix+"MAX_PARSE_FAILURE_RATIO", c.Engine.MaxParseFailureRatio); err != nil {
		return err
	}
	if v := os.Getenv(envPrefix + "CACHE_TTL"); v != "" {
		ttl, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%sCACHE_TTL: %w", envPrefix, err)
		}
		c.Cache.TTL = ttl
	}

	if c.Source.Workbooks == nil {
		c.Source.Workbooks = map[string]string{}
	}
	for _, kv := range os.Environ() {
		key, val, _ := strings.Cut(kv, "=")
		if wb, ok := strings.CutPrefix(key, envPrefix+"SHEET_"); ok && val != "" {
			c.Source.Workbooks[strings.ToLower(wb)] = val
		}
	}
	return nil
}

// Validate checks value ranges and enumerations.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.Engine.Concurrency <= 0 {
		return errors.New("engine.concurrency must be positive")
	}
	if r := c.Engine.MaxParseFailureRatio; r <= 0 || r > 1 {
		return fmt.Errorf("engine.max_parse_failure_ratio %v not in (0, 1]", r)
	}
	if _, err := c.Engine.Cutoffs.Build(); err != nil {
		return fmt.Errorf("engine.%w", err)
	}
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		return fmt.Errorf("log.format %q: want json or text", c.Log.Format)
	}
	switch c.Source.Mode {
	case SourceCSV:
		if c.Source.CSVDir == "" {
			return errors.New("source.csv_dir is required in csv mode")
		}
	case SourceGSheet:
		if len(c.Source.Workbooks) == 0 {
			return errors.New("source.workbooks is required in gsheet mode")
		}
	default:
		return fmt.Errorf("source.mode %q: want csv or gsheet", c.Source.Mode)
	}
	switch c.Cache.Type {
	case CacheNone, CacheMemory:
	case CacheRedis:
		if c.Cache.RedisAddr == "" {
			return errors.New("cache.redis_addr is required for the redis cache")
		}
	default:
		return fmt.Errorf("cache.type %q: want none, memory or redis", c.Cache.Type)
	}
	return nil
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return f, nil
}
