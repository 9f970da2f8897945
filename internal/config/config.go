// Package config loads and validates scraper configuration via Viper.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cast"
	"github.com/spf13/viper"

	"github.com/JakeFAU/council-da-scraper/internal/logging"
	"github.com/JakeFAU/council-da-scraper/internal/retention"
)

// EnvPrefix namespaces environment overrides, e.g. SCRAPER_STORAGE_PROVIDER.
const EnvPrefix = "SCRAPER"

// ForceMaintenanceEnv is the bare environment flag that forces retention maintenance.
const ForceMaintenanceEnv = "VACUUM"

// Storage and snapshot providers.
const (
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"

	SnapshotNone  = "none"
	SnapshotLocal = "local"
	SnapshotGCS   = "gcs"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Scraper   ScraperConfig   `mapstructure:"scraper"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Throttle  ThrottleConfig  `mapstructure:"throttle"`
	Selectors SelectorsConfig `mapstructure:"selectors"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Retention RetentionConfig `mapstructure:"retention"`
	Snapshot  SnapshotConfig  `mapstructure:"snapshot"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   logging.Config  `mapstructure:"logging"`
}

// ScraperConfig describes the listing page and how records are stamped.
type ScraperConfig struct {
	URL            string `mapstructure:"url"`
	Jurisdiction   string `mapstructure:"jurisdiction"`
	Timezone       string `mapstructure:"timezone"`
	UserAgent      string `mapstructure:"user_agent"`
	SinglePageText string `mapstructure:"single_page_text"`
}

// HTTPConfig configures the collector transport.
type HTTPConfig struct {
	Timeout            time.Duration `mapstructure:"timeout"`
	InsecureSkipVerify bool          `mapstructure:"insecure_skip_verify"`
	RespectRobots      bool          `mapstructure:"respect_robots"`
}

// ThrottleConfig sets the courtesy delay added to each measured response time.
type ThrottleConfig struct {
	ExtraDelay   time.Duration `mapstructure:"extra_delay"`
	InitialPause time.Duration `mapstructure:"initial_pause"`
}

// SelectorsConfig holds the CSS selectors used against the listing page.
type SelectorsConfig struct {
	Container  string `mapstructure:"container"`
	Item       string `mapstructure:"item"`
	Link       string `mapstructure:"link"`
	Reference  string `mapstructure:"reference"`
	Address    string `mapstructure:"address"`
	Pagination string `mapstructure:"pagination"`
}

// StorageConfig picks the record store backend.
type StorageConfig struct {
	Provider string         `mapstructure:"provider"`
	Table    string         `mapstructure:"table"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig locates the database file.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig controls access to the relational database.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// RetentionConfig bounds record age and schedules compaction.
type RetentionConfig struct {
	MaxAgeDays            int     `mapstructure:"max_age_days"`
	CompactionAgeDays     int     `mapstructure:"compaction_age_days"`
	CompactionProbability float64 `mapstructure:"compaction_probability"`
	ForceMaintenance      bool    `mapstructure:"force_maintenance"`
}

// SnapshotConfig controls archiving of the fetched page.
type SnapshotConfig struct {
	Provider    string        `mapstructure:"provider"`
	Prefix      string        `mapstructure:"prefix"`
	ContentType string        `mapstructure:"content_type"`
	Local       LocalSnapshot `mapstructure:"local"`
	GCS         GCSSnapshot   `mapstructure:"gcs"`
}

// LocalSnapshot writes snapshots under a directory.
type LocalSnapshot struct {
	BaseDir string `mapstructure:"base_dir"`
}

// GCSSnapshot writes snapshots to a bucket.
type GCSSnapshot struct {
	Bucket string `mapstructure:"bucket"`
}

// MetricsConfig points at an optional Pushgateway.
type MetricsConfig struct {
	PushURL string `mapstructure:"push_url"`
	Job     string `mapstructure:"job"`
}

// LoadDotEnv loads KEY=VALUE pairs from path into the process environment
// without overriding variables that are already set. A missing file is not an error.
func LoadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load %s: %w", path, err)
	}
	return nil
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if raw, ok := os.LookupEnv(ForceMaintenanceEnv); ok {
		cfg.Retention.ForceMaintenance = envFlag(raw)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// envFlag treats any non-empty value as set unless it parses as a false boolean.
func envFlag(raw string) bool {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false
	}
	b, err := cast.ToBoolE(raw)
	if err != nil {
		return true
	}
	return b
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("scraper.url", "https://www.clarence.nsw.gov.au/Building-and-planning/Development-applications/Advertised-DAs")
	v.SetDefault("scraper.jurisdiction", "NSW")
	v.SetDefault("scraper.timezone", "Local")
	v.SetDefault("scraper.user_agent", "council-da-scraper/1.0 (+https://github.com/JakeFAU/council-da-scraper)")
	v.SetDefault("scraper.single_page_text", "Page 1 of 1")
	v.SetDefault("http.timeout", "60s")
	v.SetDefault("http.insecure_skip_verify", true)
	v.SetDefault("http.respect_robots", false)
	v.SetDefault("throttle.extra_delay", "500ms")
	v.SetDefault("throttle.initial_pause", "0s")
	v.SetDefault("selectors.container", "div.da-list-container")
	v.SetDefault("selectors.item", "article")
	v.SetDefault("selectors.link", "a")
	v.SetDefault("selectors.reference", "p.da-application-number")
	v.SetDefault("selectors.address", "p.list-item-address")
	v.SetDefault("selectors.pagination", "div.seamless-pagination-info")
	v.SetDefault("storage.provider", ProviderSQLite)
	v.SetDefault("storage.table", "data")
	v.SetDefault("storage.sqlite.path", "data.sqlite")
	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.max_conns", 4)
	v.SetDefault("storage.postgres.max_conn_lifetime", "30m")
	v.SetDefault("retention.max_age_days", retention.DefaultMaxAgeDays)
	v.SetDefault("retention.compaction_age_days", retention.DefaultCompactionAgeDays)
	v.SetDefault("retention.compaction_probability", retention.DefaultCompactionProbability)
	v.SetDefault("retention.force_maintenance", false)
	v.SetDefault("snapshot.provider", SnapshotNone)
	v.SetDefault("snapshot.prefix", "pages")
	v.SetDefault("snapshot.content_type", "text/html; charset=utf-8")
	v.SetDefault("snapshot.local.base_dir", "")
	v.SetDefault("snapshot.gcs.bucket", "")
	v.SetDefault("metrics.push_url", "")
	v.SetDefault("metrics.job", "da_scraper")
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Scraper.URL) == "" {
		return fmt.Errorf("scraper.url is required")
	}
	if strings.TrimSpace(c.Scraper.Jurisdiction) == "" {
		return fmt.Errorf("scraper.jurisdiction is required")
	}
	if c.Scraper.SinglePageText == "" {
		return fmt.Errorf("scraper.single_page_text is required")
	}
	if c.HTTP.Timeout <= 0 {
		return fmt.Errorf("http.timeout must be > 0")
	}
	if c.Throttle.ExtraDelay < 0 {
		return fmt.Errorf("throttle.extra_delay must be >= 0")
	}
	if c.Throttle.InitialPause < 0 {
		return fmt.Errorf("throttle.initial_pause must be >= 0")
	}
	if err := c.Selectors.validate(); err != nil {
		return err
	}
	if err := c.Storage.validate(); err != nil {
		return err
	}
	if c.Retention.MaxAgeDays <= 0 {
		return fmt.Errorf("retention.max_age_days must be > 0")
	}
	if c.Retention.CompactionAgeDays < c.Retention.MaxAgeDays {
		return fmt.Errorf("retention.compaction_age_days must be >= retention.max_age_days")
	}
	if c.Retention.CompactionProbability < 0 || c.Retention.CompactionProbability > 1 {
		return fmt.Errorf("retention.compaction_probability must be within [0, 1]")
	}
	return c.Snapshot.validate()
}

func (s SelectorsConfig) validate() error {
	for key, val := range map[string]string{
		"selectors.container":  s.Container,
		"selectors.item":       s.Item,
		"selectors.link":       s.Link,
		"selectors.reference":  s.Reference,
		"selectors.address":    s.Address,
		"selectors.pagination": s.Pagination,
	} {
		if strings.TrimSpace(val) == "" {
			return fmt.Errorf("%s is required", key)
		}
	}
	return nil
}

func (s StorageConfig) validate() error {
	switch s.Provider {
	case ProviderSQLite:
		if strings.TrimSpace(s.SQLite.Path) == "" {
			return fmt.Errorf("storage.sqlite.path is required for the sqlite provider")
		}
	case ProviderPostgres:
		if strings.TrimSpace(s.Postgres.DSN) == "" {
			return fmt.Errorf("storage.postgres.dsn is required for the postgres provider")
		}
		if s.Postgres.MaxConns < 0 {
			return fmt.Errorf("storage.postgres.max_conns must be >= 0")
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("storage.provider %q is not one of sqlite, postgres, memory", s.Provider)
	}
	return nil
}

func (s SnapshotConfig) validate() error {
	switch s.Provider {
	case "", SnapshotNone:
	case SnapshotLocal:
		if strings.TrimSpace(s.Local.BaseDir) == "" {
			return fmt.Errorf("snapshot.local.base_dir is required for the local provider")
		}
	case SnapshotGCS:
		if strings.TrimSpace(s.GCS.Bucket) == "" {
			return fmt.Errorf("snapshot.gcs.bucket is required for the gcs provider")
		}
	default:
		return fmt.Errorf("snapshot.provider %q is not one of none, local, gcs", s.Provider)
	}
	return nil
}
