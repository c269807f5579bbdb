// Package config provides YAML-based configuration loading for vhc.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config is the top-level vhc configuration, loaded from vhc.yaml.
type Config struct {
	Environment string           `yaml:"environment"`
	Server      ServerConfig     `yaml:"server"`
	Database    DatabaseConfig   `yaml:"database"`
	Auth        AuthConfig       `yaml:"auth"`
	Portal      PortalConfig     `yaml:"portal"`
	Redis       RedisConfig      `yaml:"redis"`
	Events      EventsConfig     `yaml:"events"`
	Notify      NotifyConfig     `yaml:"notify"`
	Signatures  SignaturesConfig `yaml:"signatures"`
	Followup    FollowupConfig   `yaml:"followup"`
	Log         LogConfig        `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port        int      `yaml:"port"`
	CORSOrigins []string `yaml:"cors_origins"`
}

// DatabaseConfig selects the store. Driver is "mysql" or "sqlite".
type DatabaseConfig struct {
	Driver   string `yaml:"driver"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	// Path is the sqlite file; ":memory:" is accepted.
	Path string `yaml:"path"`
	// DSN overrides every other field when set.
	DSN string `yaml:"dsn"`
}

// AuthConfig holds the secret used to verify staff bearer tokens.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// PortalConfig controls the customer-facing token channel.
type PortalConfig struct {
	TokenTTL time.Duration `yaml:"token_ttl"`
}

// RedisConfig is optional; when Address is empty no distributed locking is used.
type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// EventsConfig selects where domain events go. Empty PubSubProject means log only.
type EventsConfig struct {
	PubSubProject string `yaml:"pubsub_project"`
	Topic         string `yaml:"topic"`
}

// NotifyConfig holds optional workshop chat destinations.
type NotifyConfig struct {
	SlackWebhookURL  string `yaml:"slack_webhook_url"`
	DiscordBotToken  string `yaml:"discord_bot_token"`
	DiscordChannelID string `yaml:"discord_channel_id"`
}

// SignaturesConfig selects the signature blob store: "database" or "gcs".
type SignaturesConfig struct {
	Backend string `yaml:"backend"`
	Bucket  string `yaml:"bucket"`
	Prefix  string `yaml:"prefix"`
}

// FollowupConfig schedules the deferred-work sweep. Empty Schedule disables it.
type FollowupConfig struct {
	Schedule string `yaml:"schedule"`
}

// LogConfig controls logrus output.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides maps environment variables to the fields they replace.
var envOverrides = []struct {
	key   string
	apply func(c *Config, v string)
}{
	{"VHC_JWT_SECRET", func(c *Config, v string) { c.Auth.JWTSecret = v }},
	{"VHC_DATABASE_DSN", func(c *Config, v string) { c.Database.DSN = v }},
	{"VHC_DATABASE_PASSWORD", func(c *Config, v string) { c.Database.Password = v }},
	{"VHC_REDIS_ADDRESS", func(c *Config, v string) { c.Redis.Address = v }},
	{"VHC_SLACK_WEBHOOK_URL", func(c *Config, v string) { c.Notify.SlackWebhookURL = v }},
	{"VHC_DISCORD_BOT_TOKEN", func(c *Config, v string) { c.Notify.DiscordBotToken = v }},
}

// Load reads a YAML config file from path, applies .env and environment
// overrides, and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	// A missing .env is normal outside local development.
	_ = godotenv.Load()
	return parse(data, os.Getenv)
}

// Parse unmarshals YAML bytes into a validated Config without consulting the
// environment.
func Parse(data []byte) (*Config, error) {
	return parse(data, func(string) string { return "" })
}

func parse(data []byte, getenv func(string) string) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	for _, o := range envOverrides {
		if v := getenv(o.key); v != "" {
			o.apply(&cfg, v)
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Environment == "" {
		c.Environment = "development"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Database.Driver == "" {
		c.Database.Driver = "mysql"
	}
	if c.Database.Driver == "mysql" {
		if c.Database.Host == "" {
			c.Database.Host = "127.0.0.1"
		}
		if c.Database.Port == 0 {
			c.Database.Port = 3306
		}
		if c.Database.User == "" {
			c.Database.User = "root"
		}
	}
	if c.Database.Driver == "sqlite" && c.Database.Path == "" {
		c.Database.Path = "vhc.db"
	}
	if c.Portal.TokenTTL == 0 {
		c.Portal.TokenTTL = 72 * time.Hour
	}
	if c.Events.Topic == "" {
		c.Events.Topic = "vhc-repair-events"
	}
	if c.Signatures.Backend == "" {
		c.Signatures.Backend = "database"
	}
	if c.Signatures.Prefix == "" {
		c.Signatures.Prefix = "signatures/"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		if c.Environment == "production" {
			c.Log.Format = "json"
		} else {
			c.Log.Format = "text"
		}
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.Database.Driver {
	case "mysql":
		if c.Database.DSN == "" && c.Database.Name == "" {
			errs = append(errs, "database.name is required for mysql")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("database.driver %q must be mysql or sqlite", c.Database.Driver))
	}
	if c.Auth.JWTSecret == "" {
		errs = append(errs, "auth.jwt_secret is required (or VHC_JWT_SECRET)")
	}
	if c.Portal.TokenTTL < 0 {
		errs = append(errs, "portal.token_ttl must be positive")
	}
	switch c.Signatures.Backend {
	case "database":
	case "gcs":
		if c.Signatures.Bucket == "" {
			errs = append(errs, "signatures.bucket is required for the gcs backend")
		}
	default:
		errs = append(errs, fmt.Sprintf("signatures.backend %q must be database or gcs", c.Signatures.Backend))
	}
	if (c.Notify.DiscordBotToken == "") != (c.Notify.DiscordChannelID == "") {
		errs = append(errs, "notify.discord_bot_token and notify.discord_channel_id must be set together")
	}
	switch c.Log.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("log.format %q must be json or text", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
