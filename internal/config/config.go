package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// ErrMissingCredential is returned when an enabled provider or the sink has
// no credential configured.
var ErrMissingCredential = errors.New("missing credential")

// EnvPrefix prefixes every environment override, e.g.
// DATABOX_INTEGRATION_SINK_API_KEY for sink.api_key.
const EnvPrefix = "DATABOX_INTEGRATION"

var validate = validator.New()

// Config is the top-level configuration for databox-integration.
type Config struct {
	ListenAddr  string          `mapstructure:"listen_addr" validate:"required"`
	LogFormat   string          `mapstructure:"log_format" validate:"oneof=json text"`
	HTTPTimeout time.Duration   `mapstructure:"http_timeout" validate:"gt=0"`
	Storage     StorageConfig   `mapstructure:"storage"`
	Providers   ProvidersConfig `mapstructure:"providers"`
	Sink        SinkConfig      `mapstructure:"sink"`
	Schedule    ScheduleConfig  `mapstructure:"schedule"`
	Logging     LoggingConfig   `mapstructure:"logging"`
}

// ProvidersConfig holds one block per data source.
type ProvidersConfig struct {
	Strava    StravaConfig    `mapstructure:"strava"`
	OpenMeteo OpenMeteoConfig `mapstructure:"openmeteo"`
}

// StravaConfig configures the activity source.
type StravaConfig struct {
	Enabled      bool    `mapstructure:"enabled"`
	ClientID     string  `mapstructure:"client_id"`
	ClientSecret string  `mapstructure:"client_secret"`
	DatasetID    string  `mapstructure:"dataset_id"`
	WeightKg     float64 `mapstructure:"weight_kg" validate:"gte=0"`
	Age          int     `mapstructure:"age" validate:"gte=0,lte=120"`
	Timezone     string  `mapstructure:"timezone" validate:"required"`
	BaseURL      string  `mapstructure:"base_url" validate:"omitempty,url"`
	TokenURL     string  `mapstructure:"token_url" validate:"omitempty,url"`
}

// OpenMeteoConfig configures the weather archive source.
type OpenMeteoConfig struct {
	Enabled   bool    `mapstructure:"enabled"`
	Latitude  float64 `mapstructure:"lat" validate:"gte=-90,lte=90"`
	Longitude float64 `mapstructure:"lon" validate:"gte=-180,lte=180"`
	Timezone  string  `mapstructure:"timezone" validate:"required"`
	DatasetID string  `mapstructure:"dataset_id"`
	BaseURL   string  `mapstructure:"base_url" validate:"omitempty,url"`
}

// SinkConfig configures the ingestion API.
type SinkConfig struct {
	BaseURL string `mapstructure:"base_url" validate:"required,url"`
	APIKey  string `mapstructure:"api_key"`
}

// StorageConfig defines the database backend.
type StorageConfig struct {
	Driver   string         `mapstructure:"driver" validate:"oneof=sqlite postgres"`
	SQLite   SQLiteConfig   `mapstructure:"sqlite"`
	Postgres PostgresConfig `mapstructure:"postgres"`
}

// SQLiteConfig holds SQLite-specific configuration.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig holds PostgreSQL-specific configuration.
type PostgresConfig struct {
	DSN string `mapstructure:"dsn"`
}

// ScheduleConfig controls the serve command.
type ScheduleConfig struct {
	Cron         string `mapstructure:"cron" validate:"required"`
	RunOnStartup bool   `mapstructure:"run_on_startup"`
}

// LoggingConfig controls log level and extra redacted keys.
type LoggingConfig struct {
	Level      string   `mapstructure:"level" validate:"omitempty,oneof=debug info warn error"`
	RedactKeys []string `mapstructure:"redact_keys"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("listen_addr", ":8080")
	v.SetDefault("log_format", "json")
	v.SetDefault("http_timeout", 20*time.Second)

	v.SetDefault("storage.driver", "sqlite")
	v.SetDefault("storage.sqlite.path", defaultSQLitePath())
	v.SetDefault("storage.postgres.dsn", "")

	v.SetDefault("providers.strava.enabled", true)
	v.SetDefault("providers.strava.client_id", "")
	v.SetDefault("providers.strava.client_secret", "")
	v.SetDefault("providers.strava.dataset_id", "")
	v.SetDefault("providers.strava.weight_kg", 0)
	v.SetDefault("providers.strava.age", 35)
	v.SetDefault("providers.strava.timezone", "UTC")
	v.SetDefault("providers.strava.base_url", "")
	v.SetDefault("providers.strava.token_url", "")

	v.SetDefault("providers.openmeteo.enabled", true)
	v.SetDefault("providers.openmeteo.lat", 0)
	v.SetDefault("providers.openmeteo.lon", 0)
	v.SetDefault("providers.openmeteo.timezone", "UTC")
	v.SetDefault("providers.openmeteo.dataset_id", "")
	v.SetDefault("providers.openmeteo.base_url", "")

	v.SetDefault("sink.base_url", "https://api.databox.com")
	v.SetDefault("sink.api_key", "")

	v.SetDefault("schedule.cron", "0 0 6 * * *")
	v.SetDefault("schedule.run_on_startup", false)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.redact_keys", []string{})
}

func defaultSQLitePath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".local", "share", "databox-integration", "state.db")
	}
	return "state.db"
}

// Load reads configuration from flag path, env vars, then default file paths.
// Precedence: flag → $DATABOX_INTEGRATION_CONFIG env → ~/.config/databox-integration/config.yaml → /etc/databox-integration/config.yaml
// A .env file in the working directory is loaded into the environment first.
func Load(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else if envPath := os.Getenv(EnvPrefix + "_CONFIG"); envPath != "" {
		v.SetConfigFile(envPath)
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".config", "databox-integration"))
		}
		v.AddConfigPath("/etc/databox-integration")
		v.SetConfigName("config")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	} else if cfgPath := v.ConfigFileUsed(); cfgPath != "" {
		// Warn if config file is world-readable.
		if info, err := os.Stat(cfgPath); err == nil {
			perm := info.Mode().Perm()
			if perm&0004 != 0 {
				slog.Warn("config file is world-readable", "path", cfgPath, "permissions", fmt.Sprintf("%04o", perm))
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Validate checks field constraints and the storage backend. Credentials are
// checked separately by RequireCredentials.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return err
	}

	switch c.Storage.Driver {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			return fmt.Errorf("storage.sqlite.path is required for sqlite driver")
		}
	case "postgres":
		if c.Storage.Postgres.DSN == "" {
			return fmt.Errorf("storage.postgres.dsn is required for postgres driver")
		}
	}

	if _, _, err := net.SplitHostPort(c.ListenAddr); err != nil {
		return fmt.Errorf("listen_addr %q is not a valid address: %w", c.ListenAddr, err)
	}

	for _, tz := range []struct{ key, name string }{
		{"providers.strava.timezone", c.Providers.Strava.Timezone},
		{"providers.openmeteo.timezone", c.Providers.OpenMeteo.Timezone},
	} {
		if _, err := time.LoadLocation(tz.name); err != nil {
			return fmt.Errorf("%s: %w", tz.key, err)
		}
	}

	return nil
}

// RequireCredentials checks that every enabled provider has its dataset and
// credentials and that the sink has an API key.
func (c *Config) RequireCredentials() error {
	if !c.Providers.Strava.Enabled && !c.Providers.OpenMeteo.Enabled {
		return fmt.Errorf("at least one provider must be enabled")
	}
	if c.Sink.APIKey == "" {
		return fmt.Errorf("%w: sink.api_key", ErrMissingCredential)
	}
	if s := c.Providers.Strava; s.Enabled {
		if s.ClientID == "" {
			return fmt.Errorf("%w: providers.strava.client_id", ErrMissingCredential)
		}
		if s.ClientSecret == "" {
			return fmt.Errorf("%w: providers.strava.client_secret", ErrMissingCredential)
		}
		if s.DatasetID == "" {
			return fmt.Errorf("providers.strava.dataset_id is required")
		}
	}
	if o := c.Providers.OpenMeteo; o.Enabled && o.DatasetID == "" {
		return fmt.Errorf("providers.openmeteo.dataset_id is required")
	}
	return nil
}

// DSN returns the appropriate DSN for the configured storage driver.
func (c *Config) DSN() string {
	switch c.Storage.Driver {
	case "sqlite":
		return c.Storage.SQLite.Path
	case "postgres":
		return c.Storage.Postgres.DSN
	default:
		return ""
	}
}

// LogLevel returns the configured level name, defaulting to info.
func (c *Config) LogLevel() string {
	if c.Logging.Level == "" {
		return "info"
	}
	return c.Logging.Level
}
