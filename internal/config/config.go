// Package config loads runtime settings from an optional TOML file and the
// environment. Environment values win over the file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/BurntSushi/toml"
)

// Config holds every runtime setting.
type Config struct {
	AppEnv    string `toml:"app_env"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`

	HTTPListenAddr string `toml:"http_listen_addr"`
	PublicBasePath string `toml:"public_base_path"`

	DatabaseDriver string `toml:"database_driver"`
	DatabaseURL    string `toml:"database_url"`
	DatabaseSchema string `toml:"database_schema"`
	SQLitePath     string `toml:"sqlite_path"`

	RedisAddr     string `toml:"redis_addr"`
	RedisPassword string `toml:"redis_password"`
	RedisDB       int    `toml:"redis_db"`
	RedisTLS      bool   `toml:"redis_tls"`

	MetricsNamespace string `toml:"metrics_namespace"`

	KafkaBrokers []string `toml:"kafka_brokers"`
	KafkaTopic   string   `toml:"kafka_topic"`
	ServiceName  string   `toml:"service_name"`

	StatsTimezone string        `toml:"stats_timezone"`
	StatsCacheTTL time.Duration `toml:"stats_cache_ttl"`

	RevenueGrantSecret string        `toml:"revenue_grant_secret"`
	RevenueGrantTTL    time.Duration `toml:"revenue_grant_ttl"`

	PhoneRegion string `toml:"phone_region"`

	WhatsAppEnabled   bool   `toml:"whatsapp_enabled"`
	WhatsAppStorePath string `toml:"whatsapp_store_path"`
	WhatsAppLogLevel  string `toml:"whatsapp_log_level"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		AppEnv:            "development",
		LogLevel:          "info",
		LogFormat:         "text",
		HTTPListenAddr:    ":8080",
		DatabaseDriver:    "sqlite",
		DatabaseSchema:    "public",
		SQLitePath:        "fixshop.db",
		MetricsNamespace:  "fixshop",
		KafkaTopic:        "fixshop.events",
		ServiceName:       "fixshop",
		StatsTimezone:     "UTC",
		StatsCacheTTL:     time.Minute,
		RevenueGrantTTL:   15 * time.Minute,
		PhoneRegion:       "IN",
		WhatsAppStorePath: "whatsapp.db",
		WhatsAppLogLevel:  "WARN",
	}
}

// Load reads CONFIG_FILE when set, then applies environment overrides and
// validates the result.
func Load() (Config, error) {
	cfg := Default()
	if path := strings.TrimSpace(os.Getenv("CONFIG_FILE")); path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode %s: %w", path, err)
		}
	}

	var errs []error
	str(&cfg.AppEnv, "APP_ENV")
	str(&cfg.LogLevel, "LOG_LEVEL")
	str(&cfg.LogFormat, "LOG_FORMAT")
	str(&cfg.HTTPListenAddr, "HTTP_LISTEN_ADDR")
	str(&cfg.PublicBasePath, "PUBLIC_BASE_PATH")
	str(&cfg.DatabaseDriver, "DATABASE_DRIVER")
	str(&cfg.DatabaseURL, "DATABASE_URL")
	str(&cfg.DatabaseSchema, "DATABASE_SCHEMA")
	str(&cfg.SQLitePath, "SQLITE_PATH")
	str(&cfg.RedisAddr, "REDIS_ADDR")
	str(&cfg.RedisPassword, "REDIS_PASSWORD")
	errs = append(errs, integer(&cfg.RedisDB, "REDIS_DB"))
	errs = append(errs, boolean(&cfg.RedisTLS, "REDIS_TLS"))
	str(&cfg.MetricsNamespace, "METRICS_NAMESPACE")
	if v := getenv("KAFKA_BROKERS", ""); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	str(&cfg.KafkaTopic, "KAFKA_TOPIC")
	str(&cfg.ServiceName, "SERVICE_NAME")
	str(&cfg.StatsTimezone, "STATS_TIMEZONE")
	errs = append(errs, duration(&cfg.StatsCacheTTL, "STATS_CACHE_TTL"))
	str(&cfg.RevenueGrantSecret, "REVENUE_GRANT_SECRET")
	errs = append(errs, duration(&cfg.RevenueGrantTTL, "REVENUE_GRANT_TTL"))
	str(&cfg.PhoneRegion, "PHONE_REGION")
	errs = append(errs, boolean(&cfg.WhatsAppEnabled, "WHATSAPP_ENABLED"))
	str(&cfg.WhatsAppStorePath, "WHATSAPP_STORE_PATH")
	str(&cfg.WhatsAppLogLevel, "WHATSAPP_LOG_LEVEL")

	errs = append(errs, cfg.validate())
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Location resolves StatsTimezone.
func (c Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.StatsTimezone)
}

func (c *Config) validate() error {
	var errs []error
	c.DatabaseDriver = strings.ToLower(strings.TrimSpace(c.DatabaseDriver))
	switch c.DatabaseDriver {
	case "postgres":
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("DATABASE_URL is required for the postgres driver"))
		}
	case "sqlite":
		if c.SQLitePath == "" {
			errs = append(errs, errors.New("SQLITE_PATH is required for the sqlite driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("DATABASE_DRIVER %q must be postgres or sqlite", c.DatabaseDriver))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT %q must be text or json", c.LogFormat))
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Errorf("STATS_TIMEZONE: %w", err))
	}
	if c.StatsCacheTTL < 0 {
		errs = append(errs, errors.New("STATS_CACHE_TTL must not be negative"))
	}
	if c.RevenueGrantTTL <= 0 {
		errs = append(errs, errors.New("REVENUE_GRANT_TTL must be positive"))
	}
	if c.KafkaTopic == "" && len(c.KafkaBrokers) > 0 {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	if c.PublicBasePath != "" {
		c.PublicBasePath = "/" + strings.Trim(c.PublicBasePath, "/")
		if c.PublicBasePath == "/" {
			c.PublicBasePath = ""
		}
	}
	return errors.Join(errs...)
}

func getenv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func str(dst *string, key string) {
	*dst = getenv(key, *dst)
}

func integer(dst *int, key string) error {
	v := getenv(key, "")
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = n
	return nil
}

func boolean(dst *bool, key string) error {
	v := getenv(key, "")
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = b
	return nil
}

func duration(dst *time.Duration, key string) error {
	v := getenv(key, "")
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	*dst = d
	return nil
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if t := strings.TrimSpace(p); t != "" {
			out = append(out, t)
		}
	}
	return out
}
