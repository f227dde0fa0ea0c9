// Package config loads shadowfinder configuration from YAML files,
// a .env file and SHADOWFINDER_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	sferrors "github.com/anupammaurya6767/shadowfinder/internal/errors"
	"github.com/anupammaurya6767/shadowfinder/internal/logging"
)

// CurrentVersion is the config file format version.
const CurrentVersion = 1

// ProjectConfigName is the per-directory config file name.
const ProjectConfigName = ".shadowfinder.yaml"

// Config is the root configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	DataDir    string           `yaml:"data_dir" json:"data_dir"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Search     SearchConfig     `yaml:"search" json:"search"`
	Cache      CacheConfig      `yaml:"cache" json:"cache"`
	Snapshot   SnapshotConfig   `yaml:"snapshot" json:"snapshot"`
	Compaction CompactionConfig `yaml:"compaction" json:"compaction"`
	Server     ServerConfig     `yaml:"server" json:"server"`
	Logging    logging.Config   `yaml:"logging" json:"logging"`
}

// IngestConfig configures the ingestion pipeline.
type IngestConfig struct {
	// RatePerSecond is the token bucket refill rate.
	RatePerSecond float64 `yaml:"rate_per_second" json:"rate_per_second"`
	// Burst is the token bucket size.
	Burst int `yaml:"burst" json:"burst"`
	// QueueSize bounds the queue between the source and the writer.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// MaxRetries bounds retries of transient store errors per event.
	MaxRetries int `yaml:"max_retries" json:"max_retries"`
	// RetryDelay is the first backoff delay.
	RetryDelay time.Duration `yaml:"retry_delay" json:"retry_delay"`
	// RetryMaxDelay caps the backoff delay.
	RetryMaxDelay time.Duration `yaml:"retry_max_delay" json:"retry_max_delay"`
	// Channels restricts ingestion to these channel ids. Empty accepts all.
	Channels []string `yaml:"channels" json:"channels"`
	// Inbox is a directory watched for *.jsonl event files in serve mode.
	Inbox string `yaml:"inbox" json:"inbox"`
}

// SearchConfig configures query evaluation and ranking.
type SearchConfig struct {
	DefaultPageSize int `yaml:"default_page_size" json:"default_page_size"`
	MaxPageSize     int `yaml:"max_page_size" json:"max_page_size"`
	// MinQueryLength is the shortest query text, in runes, that is searched.
	MinQueryLength int `yaml:"min_query_length" json:"min_query_length"`
	// MatchWeight multiplies the number of matched title tokens.
	MatchWeight float64 `yaml:"match_weight" json:"match_weight"`
	// RecencyWeight multiplies the recency score (days since epoch).
	RecencyWeight float64 `yaml:"recency_weight" json:"recency_weight"`
	// Timeout is the evaluation deadline after which a partial page is returned.
	Timeout time.Duration `yaml:"timeout" json:"timeout"`
	// CursorSecret signs pagination cursors. Empty means a random key per process.
	CursorSecret string `yaml:"cursor_secret" json:"-"`
}

// CacheConfig configures the query result cache.
type CacheConfig struct {
	Enabled  bool          `yaml:"enabled" json:"enabled"`
	Capacity int           `yaml:"capacity" json:"capacity"`
	TTL      time.Duration `yaml:"ttl" json:"ttl"`
}

// SnapshotConfig configures the recovery snapshot.
type SnapshotConfig struct {
	// Path of the snapshot database. Empty means <data_dir>/snapshot.db.
	Path string `yaml:"path" json:"path"`
	// Driver is the database/sql driver: "sqlite" (pure Go) or "sqlite3" (cgo).
	Driver string `yaml:"driver" json:"driver"`
	// Interval between periodic snapshots in serve mode. 0 disables them.
	Interval time.Duration `yaml:"interval" json:"interval"`
}

// CompactionConfig configures background removal of tombstoned postings.
type CompactionConfig struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// TombstoneThreshold is the tombstoned/total document ratio that triggers compaction.
	TombstoneThreshold float64 `yaml:"tombstone_threshold" json:"tombstone_threshold"`
	// MinTombstones is the minimum tombstone count before compaction is considered.
	MinTombstones int `yaml:"min_tombstones" json:"min_tombstones"`
	// IdleTimeout is how long the server must be idle before compacting.
	IdleTimeout time.Duration `yaml:"idle_timeout" json:"idle_timeout"`
	// Cooldown is the minimum time between compactions.
	Cooldown time.Duration `yaml:"cooldown" json:"cooldown"`
}

// ServerConfig configures the daemon.
type ServerConfig struct {
	// SocketPath of the JSON-RPC unix socket. Empty means <data_dir>/shadowfinder.sock.
	SocketPath string `yaml:"socket_path" json:"socket_path"`
	// PIDPath of the pid file. Empty means <data_dir>/shadowfinder.pid.
	PIDPath string `yaml:"pid_path" json:"pid_path"`
	// MetricsAddr serves Prometheus metrics when set (e.g. ":9464").
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr"`
	// RequestTimeout bounds a single daemon request.
	RequestTimeout time.Duration `yaml:"request_timeout" json:"request_timeout"`
}

// NewConfig returns a Config with defaults applied.
func NewConfig() *Config {
	logCfg := logging.DefaultConfig()
	logCfg.WriteToStderr = false

	return &Config{
		Version: CurrentVersion,
		DataDir: DefaultDataDir(),
		Ingest: IngestConfig{
			RatePerSecond: 200,
			Burst:         50,
			QueueSize:     256,
			MaxRetries:    3,
			RetryDelay:    100 * time.Millisecond,
			RetryMaxDelay: 2 * time.Second,
		},
		Search: SearchConfig{
			DefaultPageSize: 20,
			MaxPageSize:     100,
			MinQueryLength:  1,
			MatchWeight:     1.0,
			RecencyWeight:   0.1,
			Timeout:         2 * time.Second,
		},
		Cache: CacheConfig{
			Enabled:  true,
			Capacity: 10000,
			TTL:      5 * time.Minute,
		},
		Snapshot: SnapshotConfig{
			Driver:   "sqlite",
			Interval: 5 * time.Minute,
		},
		Compaction: CompactionConfig{
			Enabled:            true,
			TombstoneThreshold: 0.2,
			MinTombstones:      100,
			IdleTimeout:        30 * time.Second,
			Cooldown:           10 * time.Minute,
		},
		Server: ServerConfig{
			RequestTimeout: 30 * time.Second,
		},
		Logging: logCfg,
	}
}

// DefaultDataDir returns ~/.shadowfinder/data.
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".shadowfinder", "data")
	}
	return filepath.Join(home, ".shadowfinder", "data")
}

// GetUserConfigPath returns $XDG_CONFIG_HOME/shadowfinder/config.yaml
// or ~/.config/shadowfinder/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "shadowfinder", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "shadowfinder", "config.yaml")
	}
	return filepath.Join(home, ".config", "shadowfinder", "config.yaml")
}

// Load loads configuration for dir. Precedence, lowest first:
//  1. Defaults
//  2. User config (~/.config/shadowfinder/config.yaml)
//  3. Project config (<dir>/.shadowfinder.yaml)
//  4. <dir>/.env
//  5. Process environment (SHADOWFINDER_*)
func Load(dir string) (*Config, error) {
	cfg := NewConfig()

	if err := cfg.loadYAMLIfExists(GetUserConfigPath()); err != nil {
		return nil, err
	}
	if err := cfg.loadYAMLIfExists(filepath.Join(dir, ProjectConfigName)); err != nil {
		return nil, err
	}

	dotenv, err := readDotEnv(filepath.Join(dir, ".env"))
	if err != nil {
		return nil, err
	}
	cfg.applyEnvOverrides(func(key string) (string, bool) {
		if v, ok := os.LookupEnv(key); ok {
			return v, true
		}
		v, ok := dotenv[key]
		return v, ok
	})

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAMLIfExists decodes path over the current values, so keys absent
// from the file keep their previous value and explicit zeros are honoured.
func (c *Config) loadYAMLIfExists(path string) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sferrors.New(sferrors.ErrCodeConfigNotFound, "read config file "+path, err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return sferrors.New(sferrors.ErrCodeConfigInvalid, "parse config file "+path, err)
	}
	return nil
}

func readDotEnv(path string) (map[string]string, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil
	}
	env, err := godotenv.Read(path)
	if err != nil {
		return nil, sferrors.New(sferrors.ErrCodeConfigInvalid, "parse "+path, err)
	}
	return env, nil
}

func (c *Config) applyEnvOverrides(lookup func(string) (string, bool)) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok {
			if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
				*dst = n
			}
		}
	}
	float := func(key string, dst *float64) {
		if v, ok := lookup(key); ok {
			if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
				*dst = f
			}
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok {
			if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
				*dst = d
			}
		}
	}
	boolean := func(key string, dst *bool) {
		if v, ok := lookup(key); ok {
			if b, err := strconv.ParseBool(strings.TrimSpace(v)); err == nil {
				*dst = b
			}
		}
	}

	str("SHADOWFINDER_DATA_DIR", &c.DataDir)
	str("SHADOWFINDER_LOG_LEVEL", &c.Logging.Level)
	str("SHADOWFINDER_LOG_FILE", &c.Logging.FilePath)

	float("SHADOWFINDER_INGEST_RATE", &c.Ingest.RatePerSecond)
	num("SHADOWFINDER_INGEST_BURST", &c.Ingest.Burst)
	num("SHADOWFINDER_QUEUE_SIZE", &c.Ingest.QueueSize)
	str("SHADOWFINDER_INBOX", &c.Ingest.Inbox)
	if v, ok := lookup("SHADOWFINDER_CHANNELS"); ok {
		c.Ingest.Channels = splitList(v)
	}

	num("SHADOWFINDER_PAGE_SIZE", &c.Search.DefaultPageSize)
	num("SHADOWFINDER_MIN_QUERY_LENGTH", &c.Search.MinQueryLength)
	float("SHADOWFINDER_MATCH_WEIGHT", &c.Search.MatchWeight)
	float("SHADOWFINDER_RECENCY_WEIGHT", &c.Search.RecencyWeight)
	dur("SHADOWFINDER_SEARCH_TIMEOUT", &c.Search.Timeout)
	str("SHADOWFINDER_CURSOR_SECRET", &c.Search.CursorSecret)

	boolean("SHADOWFINDER_CACHE_ENABLED", &c.Cache.Enabled)
	num("SHADOWFINDER_CACHE_CAPACITY", &c.Cache.Capacity)
	dur("SHADOWFINDER_CACHE_TTL", &c.Cache.TTL)

	str("SHADOWFINDER_SNAPSHOT_PATH", &c.Snapshot.Path)
	str("SHADOWFINDER_SNAPSHOT_DRIVER", &c.Snapshot.Driver)
	dur("SHADOWFINDER_SNAPSHOT_INTERVAL", &c.Snapshot.Interval)

	boolean("SHADOWFINDER_COMPACTION_ENABLED", &c.Compaction.Enabled)
	float("SHADOWFINDER_COMPACTION_THRESHOLD", &c.Compaction.TombstoneThreshold)

	str("SHADOWFINDER_SOCKET", &c.Server.SocketPath)
	str("SHADOWFINDER_METRICS_ADDR", &c.Server.MetricsAddr)
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks ranges. Bounds on page size, query length and cache size
// mirror the limits the bot settings panel enforced.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return sferrors.Newf(sferrors.ErrCodeConfigInvalid, format, args...)
	}

	if c.DataDir == "" {
		return invalid("data_dir must not be empty")
	}

	if c.Ingest.RatePerSecond <= 0 {
		return invalid("ingest.rate_per_second must be positive, got %g", c.Ingest.RatePerSecond)
	}
	if c.Ingest.Burst < 1 {
		return invalid("ingest.burst must be at least 1, got %d", c.Ingest.Burst)
	}
	if c.Ingest.QueueSize < 1 {
		return invalid("ingest.queue_size must be at least 1, got %d", c.Ingest.QueueSize)
	}
	if c.Ingest.MaxRetries < 0 {
		return invalid("ingest.max_retries must be non-negative, got %d", c.Ingest.MaxRetries)
	}

	if c.Search.MaxPageSize < 1 || c.Search.MaxPageSize > 100 {
		return invalid("search.max_page_size must be between 1 and 100, got %d", c.Search.MaxPageSize)
	}
	if c.Search.DefaultPageSize < 1 || c.Search.DefaultPageSize > c.Search.MaxPageSize {
		return invalid("search.default_page_size must be between 1 and %d, got %d", c.Search.MaxPageSize, c.Search.DefaultPageSize)
	}
	if c.Search.MinQueryLength < 1 || c.Search.MinQueryLength > 10 {
		return invalid("search.min_query_length must be between 1 and 10, got %d", c.Search.MinQueryLength)
	}
	if c.Search.MatchWeight < 0 || c.Search.RecencyWeight < 0 {
		return invalid("search weights must be non-negative")
	}
	if c.Search.MatchWeight == 0 && c.Search.RecencyWeight == 0 {
		return invalid("at least one of search.match_weight and search.recency_weight must be positive")
	}
	if c.Search.Timeout <= 0 {
		return invalid("search.timeout must be positive, got %s", c.Search.Timeout)
	}

	if c.Cache.Enabled {
		if c.Cache.Capacity < 100 || c.Cache.Capacity > 100000 {
			return invalid("cache.capacity must be between 100 and 100000, got %d", c.Cache.Capacity)
		}
		if c.Cache.TTL <= 0 {
			return invalid("cache.ttl must be positive, got %s", c.Cache.TTL)
		}
	}

	switch c.Snapshot.Driver {
	case "sqlite", "sqlite3":
	default:
		return invalid("snapshot.driver must be 'sqlite' or 'sqlite3', got %q", c.Snapshot.Driver)
	}
	if c.Snapshot.Interval < 0 {
		return invalid("snapshot.interval must be non-negative")
	}

	if c.Compaction.TombstoneThreshold < 0 || c.Compaction.TombstoneThreshold > 1 {
		return invalid("compaction.tombstone_threshold must be between 0 and 1, got %g", c.Compaction.TombstoneThreshold)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return invalid("logging.level must be 'debug', 'info', 'warn', or 'error', got %s", c.Logging.Level)
	}
	return nil
}

// SnapshotPath resolves the snapshot database path.
func (c *Config) SnapshotPath() string {
	if c.Snapshot.Path != "" {
		return c.Snapshot.Path
	}
	return filepath.Join(c.DataDir, "snapshot.db")
}

// SocketPath resolves the daemon socket path.
func (c *Config) SocketPath() string {
	if c.Server.SocketPath != "" {
		return c.Server.SocketPath
	}
	return filepath.Join(c.DataDir, "shadowfinder.sock")
}

// PIDPath resolves the daemon pid file path.
func (c *Config) PIDPath() string {
	if c.Server.PIDPath != "" {
		return c.Server.PIDPath
	}
	return filepath.Join(c.DataDir, "shadowfinder.pid")
}

// ChannelAllowed reports whether events from channel should be ingested.
func (c *Config) ChannelAllowed(channel string) bool {
	if len(c.Ingest.Channels) == 0 {
		return true
	}
	for _, ch := range c.Ingest.Channels {
		if ch == channel {
			return true
		}
	}
	return false
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}
