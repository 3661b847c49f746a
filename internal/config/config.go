// Package config loads dealership-intel settings from defaults, an optional
// YAML file and DEALERINTEL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/savvydealer-adam/dealership-intel/internal/intel"
	"github.com/savvydealer-adam/dealership-intel/internal/logging"
	"github.com/savvydealer-adam/dealership-intel/internal/scoring"
)

// EnvPrefix prefixes every environment override, e.g. DEALERINTEL_POOL_SIZE.
const EnvPrefix = "DEALERINTEL"

// Config is the root configuration object.
type Config struct {
	Logging    logging.Config   `mapstructure:"logging"`
	Server     ServerConfig     `mapstructure:"server"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Pool       PoolConfig       `mapstructure:"pool"`
	Browser    BrowserConfig    `mapstructure:"browser"`
	Stealth    StealthConfig    `mapstructure:"stealth"`
	Crawl      CrawlConfig      `mapstructure:"crawl"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Retry      RetryConfig      `mapstructure:"retry"`
	Validation ValidationConfig `mapstructure:"validation"`
	Scoring    scoring.Config   `mapstructure:"scoring"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// AuthConfig toggles API key authentication.
type AuthConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	APIKey  string `mapstructure:"api_key"`
}

// PoolConfig sizes the browser pool and controls session rotation.
type PoolConfig struct {
	Size                  int           `mapstructure:"size"`
	AcquireTimeout        time.Duration `mapstructure:"acquire_timeout"`
	MaxPagesPerSession    int           `mapstructure:"max_pages_per_session"`
	MaxSessionAge         time.Duration `mapstructure:"max_session_age"`
	MemoryPressurePercent float64       `mapstructure:"memory_pressure_percent"`
}

// BrowserConfig controls the Chrome processes.
type BrowserConfig struct {
	ExecPath    string        `mapstructure:"exec_path"`
	Headless    bool          `mapstructure:"headless"`
	NavTimeout  time.Duration `mapstructure:"nav_timeout"`
	SettleDelay time.Duration `mapstructure:"settle_delay"`
}

// StealthConfig bounds the human-like delay between navigations.
type StealthConfig struct {
	DelayMin time.Duration `mapstructure:"delay_min"`
	DelayMax time.Duration `mapstructure:"delay_max"`
}

// CrawlConfig bounds the site crawl of one target.
type CrawlConfig struct {
	MaxPages         int           `mapstructure:"max_pages"`
	MinStaffContacts int           `mapstructure:"min_staff_contacts"`
	PerHostRPS       float64       `mapstructure:"per_host_rps"`
	PerHostBurst     int           `mapstructure:"per_host_burst"`
	SitemapTimeout   time.Duration `mapstructure:"sitemap_timeout"`
	InventoryEnabled bool          `mapstructure:"inventory_enabled"`
	ReviewsEnabled   bool          `mapstructure:"reviews_enabled"`
	ReviewSources    []string      `mapstructure:"review_sources"`
}

// PipelineConfig bounds a single target.
type PipelineConfig struct {
	TargetTimeout time.Duration `mapstructure:"target_timeout"`
}

// FallbackConfig configures the enrichment API.
type FallbackConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	BaseURL        string        `mapstructure:"base_url"`
	APIKey         string        `mapstructure:"api_key"`
	VerifyOnStart  bool          `mapstructure:"verify_on_start"`
	Threshold      int           `mapstructure:"threshold"`
	Strategies     []string      `mapstructure:"strategies"`
	PerPage        int           `mapstructure:"per_page"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimitRPS   float64       `mapstructure:"rate_limit_rps"`
	RateLimitBurst int           `mapstructure:"rate_limit_burst"`
	Cooldown       time.Duration `mapstructure:"cooldown"`
}

// RetryConfig controls fallback API retries.
type RetryConfig struct {
	MaxRetries     int           `mapstructure:"max_retries"`
	BackoffInitial time.Duration `mapstructure:"backoff_initial"`
	BackoffMax     time.Duration `mapstructure:"backoff_max"`
}

// ValidationConfig selects the network checks.
type ValidationConfig struct {
	MXCheck        bool          `mapstructure:"mx_check"`
	MXTimeout      time.Duration `mapstructure:"mx_timeout"`
	MailboxProbe   bool          `mapstructure:"mailbox_probe"`
	MailboxTimeout time.Duration `mapstructure:"mailbox_timeout"`
	Region         string        `mapstructure:"region"`
}

// StorageConfig holds the optional record stores. Empty DSN or bucket
// disables the store.
type StorageConfig struct {
	Postgres PostgresConfig `mapstructure:"postgres"`
	GCS      GCSConfig      `mapstructure:"gcs"`
}

// PostgresConfig configures the Postgres record store.
type PostgresConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
}

// GCSConfig configures the GCS blob store.
type GCSConfig struct {
	Bucket string `mapstructure:"bucket"`
	Prefix string `mapstructure:"prefix"`
}

// PubSubConfig configures record publishing. An empty topic disables it.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// Load reads configuration from defaults, the environment and path. With an
// empty path it looks for dealerintel.yaml in the working directory and in
// $HOME/.dealerintel, and carries on without one.
func Load(path string) (Config, error) {
	return LoadWithOverrides(path, nil)
}

// LoadWithOverrides is Load with explicit key overrides, typically command
// line flags, applied above every other source.
func LoadWithOverrides(path string, overrides map[string]any) (Config, error) {
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
	} else {
		v.SetConfigName("dealerintel")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.dealerintel")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	for key, value := range overrides {
		v.Set(key, value)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.development", true)
	v.SetDefault("logging.file", "")
	v.SetDefault("logging.max_size_mb", 50)
	v.SetDefault("logging.max_backups", 3)
	v.SetDefault("logging.max_age_days", 14)

	v.SetDefault("server.port", 8080)
	v.SetDefault("auth.enabled", false)
	v.SetDefault("auth.api_key", "")

	v.SetDefault("pool.size", 3)
	v.SetDefault("pool.acquire_timeout", "90s")
	v.SetDefault("pool.max_pages_per_session", 25)
	v.SetDefault("pool.max_session_age", "10m")
	v.SetDefault("pool.memory_pressure_percent", 90)

	v.SetDefault("browser.exec_path", "")
	v.SetDefault("browser.headless", true)
	v.SetDefault("browser.nav_timeout", "30s")
	v.SetDefault("browser.settle_delay", "500ms")

	v.SetDefault("stealth.delay_min", "1.5s")
	v.SetDefault("stealth.delay_max", "3s")

	v.SetDefault("crawl.max_pages", 12)
	v.SetDefault("crawl.min_staff_contacts", 2)
	v.SetDefault("crawl.per_host_rps", 0.5)
	v.SetDefault("crawl.per_host_burst", 1)
	v.SetDefault("crawl.sitemap_timeout", "10s")
	v.SetDefault("crawl.inventory_enabled", true)
	v.SetDefault("crawl.reviews_enabled", true)
	v.SetDefault("crawl.review_sources", []string{"google", "dealerrater", "yelp"})

	v.SetDefault("pipeline.target_timeout", "4m")

	v.SetDefault("fallback.enabled", true)
	v.SetDefault("fallback.base_url", "https://api.apollo.io/v1")
	v.SetDefault("fallback.api_key", "")
	v.SetDefault("fallback.verify_on_start", true)
	v.SetDefault("fallback.threshold", 2)
	v.SetDefault("fallback.strategies", []string{
		string(intel.StrategyDomain),
		string(intel.StrategyCompanyName),
		string(intel.StrategyBroadened),
	})
	v.SetDefault("fallback.per_page", 10)
	v.SetDefault("fallback.request_timeout", "30s")
	v.SetDefault("fallback.rate_limit_rps", 1)
	v.SetDefault("fallback.rate_limit_burst", 1)
	v.SetDefault("fallback.cooldown", "10s")

	v.SetDefault("retry.max_retries", 3)
	v.SetDefault("retry.backoff_initial", "1s")
	v.SetDefault("retry.backoff_max", "30s")

	v.SetDefault("validation.mx_check", true)
	v.SetDefault("validation.mx_timeout", "3s")
	v.SetDefault("validation.mailbox_probe", false)
	v.SetDefault("validation.mailbox_timeout", "10s")
	v.SetDefault("validation.region", intel.DefaultRegion)

	// Penalties are set per key so a file overriding one keeps the others.
	table := scoring.DefaultConfig()
	v.SetDefault("scoring.weights.completeness", table.Weights.Completeness)
	v.SetDefault("scoring.weights.domain_match", table.Weights.DomainMatch)
	v.SetDefault("scoring.weights.title_quality", table.Weights.TitleQuality)
	v.SetDefault("scoring.weights.seed", table.Weights.Seed)
	v.SetDefault("scoring.weights.validation", table.Weights.Validation)
	for check, penalty := range table.Penalties {
		v.SetDefault("scoring.penalties."+check, penalty)
	}

	v.SetDefault("storage.postgres.dsn", "")
	v.SetDefault("storage.postgres.table_prefix", "intel")
	v.SetDefault("storage.gcs.bucket", "")
	v.SetDefault("storage.gcs.prefix", "intel")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic", "")
}

// Validate performs semantic validation on the configuration.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.APIKey) == "" {
		return fmt.Errorf("auth.api_key required when auth.enabled")
	}
	if c.Pool.Size <= 0 {
		return fmt.Errorf("pool.size must be > 0")
	}
	if c.Pool.AcquireTimeout <= 0 {
		return fmt.Errorf("pool.acquire_timeout must be > 0")
	}
	if c.Pool.MemoryPressurePercent < 0 || c.Pool.MemoryPressurePercent > 100 {
		return fmt.Errorf("pool.memory_pressure_percent must be within [0,100]")
	}
	if c.Browser.NavTimeout <= 0 {
		return fmt.Errorf("browser.nav_timeout must be > 0")
	}
	if c.Stealth.DelayMin < 0 || c.Stealth.DelayMin > c.Stealth.DelayMax {
		return fmt.Errorf("stealth.delay_min must be within [0, stealth.delay_max]")
	}
	if c.Crawl.MaxPages <= 0 {
		return fmt.Errorf("crawl.max_pages must be > 0")
	}
	if c.Crawl.SitemapTimeout <= 0 {
		return fmt.Errorf("crawl.sitemap_timeout must be > 0")
	}
	if c.Pipeline.TargetTimeout <= 0 {
		return fmt.Errorf("pipeline.target_timeout must be > 0")
	}
	if err := c.validateFallback(); err != nil {
		return err
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must be >= 0")
	}
	if c.Validation.MXTimeout <= 0 || c.Validation.MailboxTimeout <= 0 {
		return fmt.Errorf("validation timeouts must be > 0")
	}
	return validateScoring(c.Scoring)
}

func (c Config) validateFallback() error {
	f := c.Fallback
	if f.Threshold < 0 {
		return fmt.Errorf("fallback.threshold must be >= 0")
	}
	for _, s := range f.Strategies {
		if !knownStrategy(intel.Strategy(s)) {
			return fmt.Errorf("fallback.strategies: unknown strategy %q", s)
		}
	}
	if !f.Enabled {
		return nil
	}
	if len(f.Strategies) == 0 {
		return fmt.Errorf("fallback.strategies must not be empty when fallback.enabled")
	}
	if strings.TrimSpace(f.APIKey) == "" {
		return fmt.Errorf("fallback.api_key required when fallback.enabled")
	}
	if f.RequestTimeout <= 0 {
		return fmt.Errorf("fallback.request_timeout must be > 0")
	}
	return nil
}

func validateScoring(s scoring.Config) error {
	w := s.Weights
	weights := map[string]float64{
		"completeness":  w.Completeness,
		"domain_match":  w.DomainMatch,
		"title_quality": w.TitleQuality,
		"seed":          w.Seed,
		"validation":    w.Validation,
	}
	for name, value := range weights {
		if value < 0 {
			return fmt.Errorf("scoring.weights.%s must be >= 0", name)
		}
	}
	for name, value := range s.Penalties {
		if value < 0 {
			return fmt.Errorf("scoring.penalties.%s must be >= 0", name)
		}
	}
	return nil
}

func knownStrategy(s intel.Strategy) bool {
	switch s {
	case intel.StrategyDomain, intel.StrategyCompanyName, intel.StrategyBroadened:
		return true
	}
	return false
}

// FallbackStrategies returns the configured strategies in priority order.
func (c Config) FallbackStrategies() []intel.Strategy {
	out := make([]intel.Strategy, 0, len(c.Fallback.Strategies))
	for _, s := range c.Fallback.Strategies {
		out = append(out, intel.Strategy(s))
	}
	return out
}
