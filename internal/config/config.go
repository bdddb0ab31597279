// Package config loads and validates service configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	DB        DBConfig        `mapstructure:"db"`
	Scrape    ScrapeConfig    `mapstructure:"scrape"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Alerts    AlertsConfig    `mapstructure:"alerts"`
	Sites     SitesConfig     `mapstructure:"sites"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
}

// ServerConfig controls HTTP server behavior.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// DBConfig controls access to the relational database. An empty DSN selects
// the in-memory store, which is only suitable for development.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// ScrapeConfig governs the fetch and extraction pipeline.
type ScrapeConfig struct {
	TimeoutSeconds   int     `mapstructure:"timeout_seconds"`
	MaxRetries       int     `mapstructure:"max_retries"`
	BackoffInitialMs int     `mapstructure:"backoff_initial_ms"`
	BackoffMaxMs     int     `mapstructure:"backoff_max_ms"`
	DelayMinMs       int     `mapstructure:"delay_min_ms"`
	DelayMaxMs       int     `mapstructure:"delay_max_ms"`
	UserAgentRotate  float64 `mapstructure:"user_agent_rotate"`
	PriceCeiling     float64 `mapstructure:"price_ceiling"`
	RespectRobots    bool    `mapstructure:"respect_robots"`
}

// SchedulerConfig drives the sweep and maintenance cadences.
type SchedulerConfig struct {
	SweepInterval      time.Duration `mapstructure:"sweep_interval"`
	MaintenanceHourUTC int           `mapstructure:"maintenance_hour_utc"`
	GlobalConcurrency  int           `mapstructure:"global_concurrency"`
	RetentionDays      int           `mapstructure:"retention_days"`
	FailureThreshold   int           `mapstructure:"failure_threshold"`
}

// AlertsConfig selects the alert triggering policy.
type AlertsConfig struct {
	Policy string `mapstructure:"policy"`
}

// SitesConfig points at the per-domain site configuration document.
type SitesConfig struct {
	Path string `mapstructure:"path"`
}

// PubSubConfig holds metadata for the alert feed publisher. Empty values
// disable publishing.
type PubSubConfig struct {
	ProjectID string `mapstructure:"project_id"`
	TopicName string `mapstructure:"topic_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("PRICEWATCH")
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

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("logging.development", false)
	v.SetDefault("db.max_conns", 8)
	v.SetDefault("scrape.timeout_seconds", 15)
	v.SetDefault("scrape.max_retries", 3)
	v.SetDefault("scrape.backoff_initial_ms", 500)
	v.SetDefault("scrape.backoff_max_ms", 15000)
	v.SetDefault("scrape.delay_min_ms", 250)
	v.SetDefault("scrape.delay_max_ms", 1500)
	v.SetDefault("scrape.user_agent_rotate", 0.1)
	v.SetDefault("scrape.price_ceiling", 1_000_000)
	v.SetDefault("scrape.respect_robots", true)
	v.SetDefault("scheduler.sweep_interval", "6h")
	v.SetDefault("scheduler.maintenance_hour_utc", 3)
	v.SetDefault("scheduler.global_concurrency", 8)
	v.SetDefault("scheduler.retention_days", 90)
	v.SetDefault("scheduler.failure_threshold", 10)
	v.SetDefault("alerts.policy", "edge")
	v.SetDefault("sites.path", "sites.yaml")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Scrape.TimeoutSeconds <= 0 {
		return fmt.Errorf("scrape.timeout_seconds must be > 0")
	}
	if c.Scrape.MaxRetries < 1 {
		return fmt.Errorf("scrape.max_retries must be >= 1")
	}
	if c.Scrape.DelayMaxMs < c.Scrape.DelayMinMs {
		return fmt.Errorf("scrape.delay_max_ms must be >= scrape.delay_min_ms")
	}
	if c.Scrape.UserAgentRotate < 0 || c.Scrape.UserAgentRotate > 1 {
		return fmt.Errorf("scrape.user_agent_rotate must be in [0,1]")
	}
	if c.Scrape.PriceCeiling <= 0 {
		return fmt.Errorf("scrape.price_ceiling must be > 0")
	}
	if c.Scheduler.SweepInterval <= 0 {
		return fmt.Errorf("scheduler.sweep_interval must be > 0")
	}
	if c.Scheduler.MaintenanceHourUTC < 0 || c.Scheduler.MaintenanceHourUTC > 23 {
		return fmt.Errorf("scheduler.maintenance_hour_utc must be in [0,23]")
	}
	if c.Scheduler.GlobalConcurrency <= 0 {
		return fmt.Errorf("scheduler.global_concurrency must be > 0")
	}
	if c.Scheduler.RetentionDays <= 0 {
		return fmt.Errorf("scheduler.retention_days must be > 0")
	}
	if c.Alerts.Policy != "edge" && c.Alerts.Policy != "level" {
		return fmt.Errorf("alerts.policy must be %q or %q", "edge", "level")
	}
	if c.Sites.Path == "" {
		return fmt.Errorf("sites.path is required")
	}
	return nil
}

// ScrapeTimeout converts the configured timeout into a duration.
func (c Config) ScrapeTimeout() time.Duration {
	return time.Duration(c.Scrape.TimeoutSeconds) * time.Second
}

// Retention converts retention_days into a duration.
func (c Config) Retention() time.Duration {
	return time.Duration(c.Scheduler.RetentionDays) * 24 * time.Hour
}
