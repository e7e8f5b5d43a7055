package shared

import (
	_ "embed"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Bullhorn BullhornConfig `toml:"bullhorn"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
	Server   ServerConfig   `toml:"server"`
}

// BullhornConfig contains Bullhorn OAuth credentials and REST settings.
type BullhornConfig struct {
	ClientID     string  `toml:"client_id"`
	ClientSecret string  `toml:"client_secret"`
	Username     string  `toml:"username"`
	Password     string  `toml:"password"`
	RedirectURI  string  `toml:"redirect_uri"`
	AuthURL      string  `toml:"auth_url"`
	LoginURL     string  `toml:"login_url"`
	RateLimit    float64 `toml:"rate_limit"`
	PageSize     int     `toml:"page_size"`
	JobFields    string  `toml:"job_fields"`
	JobQuery     string  `toml:"job_query"`
}

// SyncConfig controls the time-boxed sync runner.
//
// Durations are Go duration strings ("25s", "6h").
type SyncConfig struct {
	TimeBudget             string `toml:"time_budget"`
	Schedule               string `toml:"schedule"`
	DuplicateBatch         int    `toml:"duplicate_batch"`
	LocalPageSize          int    `toml:"local_page_size"`
	SaveBatch              int    `toml:"save_batch"`
	ApplicationBatch       int    `toml:"application_batch"`
	MaxApplicationAttempts int    `toml:"max_application_attempts"`
	ContinuationTTL        string `toml:"continuation_ttl"`
	LockTTL                string `toml:"lock_ttl"`
	ContinuationDelay      string `toml:"continuation_delay"`
	Token                  string `toml:"token"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// ServerConfig contains HTTP server settings.
//
// PublicURL is used for REST self-calls, LoopbackURL for loopback requests.
type ServerConfig struct {
	Host        string `toml:"host"`
	Port        int    `toml:"port"`
	PublicURL   string `toml:"public_url"`
	LoopbackURL string `toml:"loopback_url"`
}

// Addr returns the listen address for the HTTP server.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Keys missing from the file keep the values of [DefaultConfig].
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks durations, batch sizes and required paths.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Database.Path) == "" {
		return fmt.Errorf("%w: database.path is required", ErrInvalidConfig)
	}

	durations := map[string]string{
		"sync.time_budget":        c.Sync.TimeBudget,
		"sync.continuation_ttl":   c.Sync.ContinuationTTL,
		"sync.lock_ttl":           c.Sync.LockTTL,
		"sync.continuation_delay": c.Sync.ContinuationDelay,
	}
	for path, raw := range durations {
		if _, err := ParseDurationField(path, raw); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
		}
	}

	batches := map[string]int{
		"sync.duplicate_batch":          c.Sync.DuplicateBatch,
		"sync.local_page_size":          c.Sync.LocalPageSize,
		"sync.save_batch":               c.Sync.SaveBatch,
		"sync.application_batch":        c.Sync.ApplicationBatch,
		"sync.max_application_attempts": c.Sync.MaxApplicationAttempts,
		"bullhorn.page_size":            c.Bullhorn.PageSize,
	}
	for path, n := range batches {
		if n <= 0 {
			return fmt.Errorf("%w: %s must be > 0", ErrInvalidConfig, path)
		}
	}

	return nil
}

// Budget returns the per-invocation time budget.
func (s SyncConfig) Budget() time.Duration {
	d, _ := ParseDurationOrDefault("sync.time_budget", s.TimeBudget, 25*time.Second)
	return d
}

// ContinuationCacheTTL returns how long a detected continuation method stays cached.
func (s SyncConfig) ContinuationCacheTTL() time.Duration {
	d, _ := ParseDurationOrDefault("sync.continuation_ttl", s.ContinuationTTL, 6*time.Hour)
	return d
}

// LockDuration returns the TTL of the runner lock.
func (s SyncConfig) LockDuration() time.Duration {
	d, _ := ParseDurationOrDefault("sync.lock_ttl", s.LockTTL, 5*time.Minute)
	return d
}

// Delay returns the delay before a cron continuation fires.
func (s SyncConfig) Delay() time.Duration {
	d, _ := ParseDurationOrDefault("sync.continuation_delay", s.ContinuationDelay, time.Minute)
	return d
}

// ParseDurationField parses a duration config value. Empty strings yield zero.
func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

// ParseDurationOrDefault is [ParseDurationField] with a fallback for zero values.
func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
