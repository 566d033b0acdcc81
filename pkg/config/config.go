// Package config loads and validates application configuration from YAML files
// with environment-variable overrides. It provides typed structs for every
// subsystem of the indexing service (Server, Indexer, Badger, Kafka, Redis,
// Postgres, Logging, Metrics).
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
	Indexer  IndexerConfig  `yaml:"indexer"`
	Badger   BadgerConfig   `yaml:"badger"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings for the query/admin API.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
}

// Forward index backends.
const (
	ForwardBackendBadger   = "badger"
	ForwardBackendPostgres = "postgres"
)

// IndexerConfig controls the index engine: where indexes live, buffering,
// flush cadence, memory-pressure eviction and value-contract validation.
type IndexerConfig struct {
	DataDir               string        `yaml:"dataDir"`
	FlushInterval         time.Duration `yaml:"flushInterval"`
	BufferingEnabled      bool          `yaml:"bufferingEnabled"`
	ValidateValueContract bool          `yaml:"validateValueContract"`
	ForwardCacheSize      int           `yaml:"forwardCacheSize"`
	ForwardBackend        string        `yaml:"forwardBackend"`
	MapWorkers            int           `yaml:"mapWorkers"`
	MemoryLimitBytes      uint64        `yaml:"memoryLimitBytes"`
	PressureCheckInterval time.Duration `yaml:"pressureCheckInterval"`
	OpenAttempts          int           `yaml:"openAttempts"`
}

// BadgerConfig holds settings for the embedded badger databases backing
// each index.
type BadgerConfig struct {
	InMemory       bool          `yaml:"inMemory"`
	SyncWrites     bool          `yaml:"syncWrites"`
	GCInterval     time.Duration `yaml:"gcInterval"`
	GCDiscardRatio float64       `yaml:"gcDiscardRatio"`
}

// KafkaConfig holds Kafka broker and topic settings.
type KafkaConfig struct {
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	ContentChanges  string `yaml:"contentChanges"`
	RebuildRequests string `yaml:"rebuildRequests"`
}

// RedisConfig holds Redis connection and caching parameters.
type RedisConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	PoolSize int           `yaml:"poolSize"`
	CacheTTL time.Duration `yaml:"cacheTTL"`
}

// PostgresConfig holds PostgreSQL connection parameters for the optional
// Postgres forward index backend.
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
	QueryTimeout    time.Duration `yaml:"queryTimeout"`
}

// DSN returns a lib/pq-compatible data source name.
func (p PostgresConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		p.Host, p.Port, p.User, p.Password, p.Database, p.SSLMode,
	)
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
// overrides. It returns a Config populated with defaults for any missing
// values, or an error when the result is not usable.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file %s: %w", path, err)
		}
	}
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports the first setting that cannot be used as configured.
func (c *Config) Validate() error {
	if c.Indexer.DataDir == "" && !c.Badger.InMemory {
		return fmt.Errorf("indexer.dataDir is required unless badger.inMemory is set")
	}
	switch c.Indexer.ForwardBackend {
	case ForwardBackendBadger, ForwardBackendPostgres:
	default:
		return fmt.Errorf("indexer.forwardBackend %q is not one of badger, postgres", c.Indexer.ForwardBackend)
	}
	if c.Indexer.FlushInterval < 0 {
		return fmt.Errorf("indexer.flushInterval must not be negative")
	}
	if c.Indexer.MapWorkers <= 0 {
		return fmt.Errorf("indexer.mapWorkers must be positive")
	}
	if c.Badger.GCDiscardRatio < 0 || c.Badger.GCDiscardRatio > 1 {
		return fmt.Errorf("badger.gcDiscardRatio must be between 0 and 1")
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("kafka.brokers is required when kafka is enabled")
	}
	return nil
}

// defaultConfig returns a Config with defaults for local development.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RequestTimeout:  10 * time.Second,
		},
		Indexer: IndexerConfig{
			DataDir:               "data/indexes",
			FlushInterval:         5 * time.Second,
			BufferingEnabled:      true,
			ForwardCacheSize:      4096,
			ForwardBackend:        ForwardBackendBadger,
			MapWorkers:            4,
			MemoryLimitBytes:      512 << 20,
			PressureCheckInterval: 2 * time.Second,
			OpenAttempts:          2,
		},
		Badger: BadgerConfig{
			SyncWrites:     true,
			GCInterval:     5 * time.Minute,
			GCDiscardRatio: 0.5,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "incremental-index",
			Topics: KafkaTopics{
				ContentChanges:  "content-changes",
				RebuildRequests: "index-rebuild-requests",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "indexes",
			User:            "indexes",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    5,
			ConnMaxLifetime: 5 * time.Minute,
			QueryTimeout:    5 * time.Second,
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

// applyEnvOverrides reads IX_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("IX_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("IX_INDEXER_DATA_DIR"); v != "" {
		cfg.Indexer.DataDir = v
	}
	if v := os.Getenv("IX_INDEXER_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Indexer.FlushInterval = d
		}
	}
	if v := os.Getenv("IX_INDEXER_BUFFERING"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.BufferingEnabled = b
		}
	}
	if v := os.Getenv("IX_INDEXER_VALIDATE_VALUES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Indexer.ValidateValueContract = b
		}
	}
	if v := os.Getenv("IX_INDEXER_FORWARD_BACKEND"); v != "" {
		cfg.Indexer.ForwardBackend = v
	}
	if v := os.Getenv("IX_BADGER_IN_MEMORY"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Badger.InMemory = b
		}
	}
	if v := os.Getenv("IX_KAFKA_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Kafka.Enabled = b
		}
	}
	if v := os.Getenv("IX_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("IX_REDIS_ENABLED"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.Redis.Enabled = b
		}
	}
	if v := os.Getenv("IX_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("IX_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("IX_POSTGRES_HOST"); v != "" {
		cfg.Postgres.Host = v
	}
	if v := os.Getenv("IX_POSTGRES_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Postgres.Port = port
		}
	}
	if v := os.Getenv("IX_POSTGRES_DATABASE"); v != "" {
		cfg.Postgres.Database = v
	}
	if v := os.Getenv("IX_POSTGRES_USER"); v != "" {
		cfg.Postgres.User = v
	}
	if v := os.Getenv("IX_POSTGRES_PASSWORD"); v != "" {
		cfg.Postgres.Password = v
	}
	if v := os.Getenv("IX_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("IX_LOGGING_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("IX_METRICS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Metrics.Port = port
		}
	}
}
