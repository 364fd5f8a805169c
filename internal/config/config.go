// Package config loads and validates crawler configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	API        APIConfig        `mapstructure:"api"`
	Quota      QuotaConfig      `mapstructure:"quota"`
	Catalog    CatalogConfig    `mapstructure:"catalog"`
	Checkpoint CheckpointConfig `mapstructure:"checkpoint"`
	DB         DBConfig         `mapstructure:"db"`
	Export     ExportConfig     `mapstructure:"export"`
	Storage    StorageConfig    `mapstructure:"storage"`
	PubSub     PubSubConfig     `mapstructure:"pubsub"`
	Server     ServerConfig     `mapstructure:"server"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// APIConfig governs the upstream review API client.
type APIConfig struct {
	BaseURL          string   `mapstructure:"base_url"`
	ReviewsEndpoint  string   `mapstructure:"reviews_endpoint"`
	ProductEndpoint  string   `mapstructure:"product_endpoint"`
	PageLimit        int      `mapstructure:"page_limit"`
	Sort             string   `mapstructure:"sort"`
	StarParam        string   `mapstructure:"star_param"`
	RateLimitRPS     float64  `mapstructure:"rate_limit_rps"`
	MaxRetries       int      `mapstructure:"max_retries"`
	BackoffInitialMs int      `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int      `mapstructure:"backoff_max_ms"`
	TimeoutSeconds   int      `mapstructure:"timeout_seconds"`
	UserAgents       []string `mapstructure:"user_agents"`
	Proxies          []string `mapstructure:"proxies"`
}

// QuotaConfig sets group-level review totals; per-star caps derive from them.
type QuotaConfig struct {
	PrimaryTotal int `mapstructure:"primary_total"`
	OtherTotal   int `mapstructure:"other_total"`
}

// CatalogConfig locates the target catalog and names its reserved key.
type CatalogConfig struct {
	Path       string `mapstructure:"path"`
	PrimaryKey string `mapstructure:"primary_key"`
}

// CheckpointConfig sets where per-target resume state lives.
type CheckpointConfig struct {
	Dir string `mapstructure:"dir"`
}

// DBConfig controls access to the relational storage sink.
type DBConfig struct {
	DSN         string `mapstructure:"dsn"`
	TablePrefix string `mapstructure:"table_prefix"`
	MaxConns    int32  `mapstructure:"max_conns"`
	MinConns    int32  `mapstructure:"min_conns"`
}

// ExportConfig controls the end-of-run workbook export.
type ExportConfig struct {
	Path         string `mapstructure:"path"`
	PrimarySheet string `mapstructure:"primary_sheet"`
	OtherSheet   string `mapstructure:"other_sheet"`
}

// StorageConfig configures the optional workbook archive.
type StorageConfig struct {
	GCSBucket string `mapstructure:"gcs_bucket"`
	Prefix    string `mapstructure:"prefix"`
}

// PubSubConfig holds metadata for completion event publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// ServerConfig controls the optional status HTTP server.
type ServerConfig struct {
	Enabled bool `mapstructure:"enabled"`
	Port    int  `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("CRAWLER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// AutomaticEnv alone does not surface env vars for keys Unmarshal
	// has not seen in a file or default, so bind every known key.
	for _, key := range v.AllKeys() {
		if err := v.BindEnv(key); err != nil {
			return Config{}, fmt.Errorf("bind env for %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("$HOME/.reviewcrawler")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
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
	v.SetDefault("api.base_url", "https://tiki.vn")
	v.SetDefault("api.reviews_endpoint", "/api/v2/reviews")
	v.SetDefault("api.product_endpoint", "/api/v2/products/%s")
	v.SetDefault("api.page_limit", 20)
	v.SetDefault("api.sort", "created_at,desc")
	v.SetDefault("api.star_param", "stars")
	v.SetDefault("api.rate_limit_rps", 2.0)
	v.SetDefault("api.max_retries", 5)
	v.SetDefault("api.backoff_initial_ms", 1000)
	v.SetDefault("api.backoff_max_ms", 20000)
	v.SetDefault("api.timeout_seconds", 30)
	v.SetDefault("api.user_agents", []string{
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		"Mozilla/5.0 (Windows NT 10.0; Win64; x64; rv:124.0) Gecko/20100101 Firefox/124.0",
	})
	v.SetDefault("api.proxies", []string{})

	v.SetDefault("quota.primary_total", 100)
	v.SetDefault("quota.other_total", 500)

	v.SetDefault("catalog.path", "data/products.json")
	v.SetDefault("catalog.primary_key", "rangdong")

	v.SetDefault("checkpoint.dir", "data/progress")

	v.SetDefault("db.dsn", "")
	v.SetDefault("db.table_prefix", "reviews")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("db.min_conns", 1)

	v.SetDefault("export.path", "data/reviews.xlsx")
	v.SetDefault("export.primary_sheet", "RD")
	v.SetDefault("export.other_sheet", "OTHER")

	v.SetDefault("storage.gcs_bucket", "")
	v.SetDefault("storage.prefix", "exports")

	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "crawl-events")

	v.SetDefault("server.enabled", false)
	v.SetDefault("server.port", 8080)

	v.SetDefault("logging.development", true)
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url must be set")
	}
	if c.API.PageLimit <= 0 {
		return fmt.Errorf("api.page_limit must be > 0")
	}
	if c.API.MaxRetries <= 0 {
		return fmt.Errorf("api.max_retries must be > 0")
	}
	if c.API.TimeoutSeconds <= 0 {
		return fmt.Errorf("api.timeout_seconds must be > 0")
	}
	if c.Quota.PrimaryTotal <= 0 || c.Quota.OtherTotal <= 0 {
		return fmt.Errorf("quota totals must be > 0")
	}
	if c.Catalog.PrimaryKey == "" {
		return fmt.Errorf("catalog.primary_key must be set")
	}
	if c.Checkpoint.Dir == "" {
		return fmt.Errorf("checkpoint.dir must be set")
	}
	if c.Server.Enabled && c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0 when server is enabled")
	}
	return nil
}

// Timeout converts the API timeout config into a duration.
func (c APIConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

// BackoffInitial converts the initial backoff config into a duration.
func (c APIConfig) BackoffInitial() time.Duration {
	return time.Duration(c.BackoffInitialMs) * time.Millisecond
}

// BackoffMax converts the backoff cap config into a duration.
func (c APIConfig) BackoffMax() time.Duration {
	return time.Duration(c.BackoffMaxMs) * time.Millisecond
}
