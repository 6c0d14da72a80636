// Package config loads matchsync settings from a YAML file, a .env file and
// the process environment, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/pable/go-match-sync/internal/perfscore"
	"github.com/pable/go-match-sync/internal/session"
	"github.com/pable/go-match-sync/internal/statsapi"
)

// Environment variables that override the file.
const (
	EnvAPIKey   = "MATCHSYNC_API_KEY"
	EnvAPIURL   = "MATCHSYNC_API_URL"
	EnvRedisURL = "MATCHSYNC_REDIS_URL"
	EnvDataDir  = "MATCHSYNC_DATA_DIR"
)

type API struct {
	BaseURL string               `yaml:"base_url"`
	Key     string               `yaml:"key"`
	Timeout time.Duration        `yaml:"timeout"`
	Retry   statsapi.RetryPolicy `yaml:"retry"`
	History HistoryPaging        `yaml:"history"`
}

type HistoryPaging struct {
	PageSize int `yaml:"page_size"`
	MaxPages int `yaml:"max_pages"`
}

// Cache configures the payload cache. An empty RedisURL selects the
// in-process cache.
type Cache struct {
	RedisURL string        `yaml:"redis_url"`
	Prefix   string        `yaml:"prefix"`
	TTL      time.Duration `yaml:"ttl"`
	Disabled bool          `yaml:"disabled"`
}

type Backfill struct {
	BatchSize     int           `yaml:"batch_size"`
	Workers       int           `yaml:"workers"`
	PairTolerance time.Duration `yaml:"pair_tolerance"`
	WatchInterval time.Duration `yaml:"watch_interval"`
}

// Session mirrors session.Config with the zone given by name.
type Session struct {
	GapThreshold     time.Duration `yaml:"gap_threshold"`
	CutoverHour      int           `yaml:"cutover_hour"`
	StabilityHorizon time.Duration `yaml:"stability_horizon"`
	Timezone         string        `yaml:"timezone"`
}

type Config struct {
	DataDir   string           `yaml:"data_dir"`
	Players   []string         `yaml:"players"`
	API       API              `yaml:"api"`
	Cache     Cache            `yaml:"cache"`
	Backfill  Backfill         `yaml:"backfill"`
	Session   Session          `yaml:"session"`
	PerfScore perfscore.Config `yaml:"performance_score"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	sc := session.DefaultConfig()
	return Config{
		DataDir: defaultDataDir(),
		API: API{
			BaseURL: "https://api.matchstats.example/v1",
			Timeout: 15 * time.Second,
			Retry:   statsapi.DefaultRetryPolicy,
			History: HistoryPaging{PageSize: 25},
		},
		Cache: Cache{
			Prefix: "matchsync",
			TTL:    24 * time.Hour,
		},
		Backfill: Backfill{
			BatchSize:     25,
			Workers:       2,
			PairTolerance: 500 * time.Millisecond,
			WatchInterval: 5 * time.Minute,
		},
		Session: Session{
			GapThreshold:     sc.GapThreshold,
			CutoverHour:      sc.CutoverHour,
			StabilityHorizon: sc.StabilityHorizon,
			Timezone:         "UTC",
		},
		PerfScore: perfscore.DefaultConfig(),
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matchsync"
	}
	return filepath.Join(home, ".matchsync")
}

// DefaultPath returns ~/.matchsync/config.yaml when that file exists, and ""
// otherwise.
func DefaultPath() string {
	path := filepath.Join(defaultDataDir(), "config.yaml")
	if _, err := os.Stat(path); err != nil {
		return ""
	}
	return path
}

// Load reads path over the defaults, then applies a .env file from the
// working directory when present and finally the environment. An empty path
// skips the file. The result is validated.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(raw, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	// A missing .env is normal.
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return cfg, fmt.Errorf("load .env: %w", err)
	}
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	set := func(dst *string, key string) {
		if v := strings.Trim(os.Getenv(key), `"`); v != "" {
			*dst = v
		}
	}
	set(&c.API.Key, EnvAPIKey)
	set(&c.API.BaseURL, EnvAPIURL)
	set(&c.Cache.RedisURL, EnvRedisURL)
	set(&c.DataDir, EnvDataDir)
}

func (c Config) Validate() error {
	var errs []error
	if c.DataDir == "" {
		errs = append(errs, errors.New("data_dir is required"))
	}
	if c.API.BaseURL == "" {
		errs = append(errs, errors.New("api.base_url is required"))
	}
	if c.API.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("api.timeout must be positive, got %s", c.API.Timeout))
	}
	if c.API.Retry.MaxTries == 0 {
		errs = append(errs, errors.New("api.retry.max_tries must be at least 1"))
	}
	if c.Backfill.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("backfill.batch_size must be positive, got %d", c.Backfill.BatchSize))
	}
	if c.Backfill.Workers <= 0 {
		errs = append(errs, fmt.Errorf("backfill.workers must be positive, got %d", c.Backfill.Workers))
	}
	if c.Backfill.PairTolerance < 0 {
		errs = append(errs, fmt.Errorf("backfill.pair_tolerance must not be negative, got %s", c.Backfill.PairTolerance))
	}
	if _, err := c.SessionConfig(); err != nil {
		errs = append(errs, err)
	}
	if err := c.PerfScore.Weights.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("performance_score: %w", err))
	}
	if c.PerfScore.MinHistory < 1 {
		errs = append(errs, fmt.Errorf("performance_score.min_history must be at least 1, got %d", c.PerfScore.MinHistory))
	}
	return errors.Join(errs...)
}

// SessionConfig resolves the session settings, including the time zone.
func (c Config) SessionConfig() (session.Config, error) {
	loc := time.UTC
	if c.Session.Timezone != "" {
		l, err := time.LoadLocation(c.Session.Timezone)
		if err != nil {
			return session.Config{}, fmt.Errorf("session.timezone: %w", err)
		}
		loc = l
	}
	sc := session.Config{
		GapThreshold:     c.Session.GapThreshold,
		CutoverHour:      c.Session.CutoverHour,
		StabilityHorizon: c.Session.StabilityHorizon,
		Location:         loc,
	}
	return sc, sc.Validate()
}
