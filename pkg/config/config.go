// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem (Server, Postgres, Kafka, Redis, Indexer, Search, Links, etc.).
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Indexer  IndexerConfig  `yaml:"indexer"`
	Search   SearchConfig   `yaml:"search"`
	Links    LinksConfig    `yaml:"links"`
	Source   SourceConfig   `yaml:"source"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Database        string        `yaml:"database"`
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	SSLMode         string        `yaml:"sslMode"`
	MaxOpenConns    int           `yaml:"maxOpenConns"`
	MaxIdleConns    int           `yaml:"maxIdleConns"`
	ConnMaxLifetime time.Duration `yaml:"connMaxLifetime"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	PageChanged string `yaml:"pageChanged"`
	PageLinks   string `yaml:"pageLinks"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// IndexerConfig controls stemming language and batch indexing behavior.
//
// FailurePolicy is either "abort" (the whole batch runs in one transaction
// and the first unreadable page rolls everything back) or "skip" (one
// transaction per page; failures are collected and reported after the
// sweep).
type IndexerConfig struct {
	Language      string        `yaml:"language"`
	FailurePolicy string        `yaml:"failurePolicy"`
	SweepInterval time.Duration `yaml:"sweepInterval"`
}

// SearchConfig controls query execution limits and fuzzy matching.
type SearchConfig struct {
	MaxResults     int  `yaml:"maxResults"`
	DefaultLimit   int  `yaml:"defaultLimit"`
	Fuzzy          bool `yaml:"fuzzy"`
	FuzzyTermLimit int  `yaml:"fuzzyTermLimit"`
}

// LinksConfig controls markdown link resolution.
type LinksConfig struct {
	WebRoot      string   `yaml:"webRoot"`
	AppPath      string   `yaml:"appPath"`
	TrustedHosts []string `yaml:"trustedHosts"`
}

// SourceConfig locates the page source on disk. The root directory holds
// one subdirectory per collective.
type SourceConfig struct {
	RootDir string `yaml:"rootDir"`
}

// LoggingConfig controls structured logging level and output format.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics server.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// Load reads a YAML config file (if provided) and applies environment-variable
// overrides. It returns a Config populated with sensible defaults for any
// missing values.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// defaultConfig returns a Config with production-ready defaults for local
// development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "pagesearch",
			User:            "pagesearch",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    25,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "pagesearch-group",
			Topics: KafkaTopics{
				PageChanged: "page-changed",
				PageLinks:   "page-links",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Indexer: IndexerConfig{
			Language:      "english",
			FailurePolicy: "abort",
			SweepInterval: 5 * time.Minute,
		},
		Search: SearchConfig{
			MaxResults:     100,
			DefaultLimit:   25,
			Fuzzy:          true,
			FuzzyTermLimit: 5,
		},
		Links: LinksConfig{
			WebRoot: "",
			AppPath: "/apps/collectives/",
		},
		Source: SourceConfig{
			RootDir: "./data/collectives",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9090,
		},
	}
}

// validate rejects config values the services cannot run with.
func validate(cfg *Config) error {
	switch cfg.Indexer.FailurePolicy {
	case "abort", "skip":
	default:
		return fmt.Errorf("invalid indexer.failurePolicy %q: must be \"abort\" or \"skip\"", cfg.Indexer.FailurePolicy)
	}
	if cfg.Search.MaxResults < 1 {
		return fmt.Errorf("invalid search.maxResults %d: must be positive", cfg.Search.MaxResults)
	}
	if cfg.Search.DefaultLimit < 1 || cfg.Search.DefaultLimit > cfg.Search.MaxResults {
		return fmt.Errorf("invalid search.defaultLimit %d: must be in [1, maxResults]", cfg.Search.DefaultLimit)
	}
	return nil
}

// applyEnvOverrides reads PS_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PS_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("PS_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("PS_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("PS_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("PS_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("PS_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("PS_POSTGRES_SSLMODE"); v != "" {
		cfg.Postgres.SSLMode = v
	}
	if v := os.Getenv("PS_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("PS_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PS_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PS_INDEXER_LANGUAGE"); v != "" {
		cfg.Indexer.Language = v
	}
	if v := os.Getenv("PS_INDEXER_FAILURE_POLICY"); v != "" {
		cfg.Indexer.FailurePolicy = v
	}
	if v := os.Getenv("PS_LINKS_TRUSTED_HOSTS"); v != "" {
		cfg.Links.TrustedHosts = strings.Split(v, ",")
	}
	if v := os.Getenv("PS_SOURCE_ROOT_DIR"); v != "" {
		cfg.Source.RootDir = v
	}
	if v := os.Getenv("PS_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("PS_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
