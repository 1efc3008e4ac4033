package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Search    SearchConfig    `mapstructure:"search"`
	Hierarchy HierarchyConfig `mapstructure:"hierarchy"`
	Risk      RiskConfig      `mapstructure:"risk"`
	Events    EventsConfig    `mapstructure:"events"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
}

type DatabaseConfig struct {
	Driver          string `mapstructure:"driver"` // "postgres" or "sqlite"
	DSN             string `mapstructure:"dsn"`
	ConnectAttempts int    `mapstructure:"connect_attempts"`
}

type SearchConfig struct {
	Backend string `mapstructure:"backend"` // "memory" or "sqlite"
	Path    string `mapstructure:"path"`
}

type HierarchyConfig struct {
	MaxDepth int `mapstructure:"max_depth"`
}

type RiskConfig struct {
	Policy    string `mapstructure:"policy"`
	Tolerance string `mapstructure:"tolerance"`
}

// EventsConfig enables change events when AMQPURL is set.
type EventsConfig struct {
	AMQPURL  string `mapstructure:"amqp_url"`
	Exchange string `mapstructure:"exchange"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"` // "json" or "console"
}

// Load reads .env, then config.yaml (optional), then the environment.
// Every key can be set as PRAGRISK_<SECTION>_<KEY>; DB_DSN and SERVER_PORT
// are honoured too.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()

	v.SetDefault("server.port", "8080")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.connect_attempts", 10)
	v.SetDefault("search.backend", "memory")
	v.SetDefault("search.path", "search.db")
	v.SetDefault("hierarchy.max_depth", 16)
	v.SetDefault("risk.policy", "fill")
	v.SetDefault("risk.tolerance", "0")
	v.SetDefault("events.amqp_url", "")
	v.SetDefault("events.exchange", "pragrisk.events")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRAGRISK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	_ = v.BindEnv("database.dsn", "PRAGRISK_DATABASE_DSN", "DB_DSN")
	_ = v.BindEnv("server.port", "PRAGRISK_SERVER_PORT", "SERVER_PORT")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return fmt.Errorf("database.dsn (DB_DSN) is not set")
	}
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver %q must be postgres or sqlite", c.Database.Driver)
	}
	if c.Database.ConnectAttempts <= 0 {
		return fmt.Errorf("database.connect_attempts must be greater than 0")
	}
	switch c.Search.Backend {
	case "memory":
	case "sqlite":
		if c.Search.Path == "" {
			return fmt.Errorf("search.path must not be empty for the sqlite backend")
		}
	default:
		return fmt.Errorf("search.backend %q must be memory or sqlite", c.Search.Backend)
	}
	if c.Hierarchy.MaxDepth <= 0 {
		return fmt.Errorf("hierarchy.max_depth must be greater than 0")
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q must be json or console", c.Logging.Format)
	}
	return nil
}
