// Package config loads application configuration from YAML files with
// environment-variable overrides. It provides typed structs for the index,
// the HTTP service and the external systems the service talks to.
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
	Index    IndexConfig    `yaml:"index"`
	Postgres PostgresConfig `yaml:"postgres"`
	Kafka    KafkaConfig    `yaml:"kafka"`
	Redis    RedisConfig    `yaml:"redis"`
	Logging  LoggingConfig  `yaml:"logging"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`
	ReadTimeout     time.Duration `yaml:"readTimeout"`
	WriteTimeout    time.Duration `yaml:"writeTimeout"`
	RequestTimeout  time.Duration `yaml:"requestTimeout"`
	ShutdownTimeout time.Duration `yaml:"shutdownTimeout"`
	// EditRateLimit caps edit requests per client per minute; zero disables
	// the limit.
	EditRateLimit int `yaml:"editRateLimit"`
}

// IndexConfig holds the alphabet, history depth and persistence locations of
// the served index.
type IndexConfig struct {
	// Alphabet lists the characters edits may use. Empty derives it from the
	// initial text.
	Alphabet        string `yaml:"alphabet"`
	EndMarker       string `yaml:"endMarker"`
	UndoDepth       int    `yaml:"undoDepth"`
	SnapshotDir     string `yaml:"snapshotDir"`
	InitialTextFile string `yaml:"initialTextFile"`
	// Follow makes the service apply edit events from Kafka instead of
	// accepting edits over HTTP.
	Follow bool `yaml:"follow"`
}

// EndMarkerByte returns the configured end marker, accepting a single
// character or a decimal/hex byte such as "1" or "0x24".
func (c IndexConfig) EndMarkerByte() (byte, error) {
	switch {
	case c.EndMarker == "":
		return 0x01, nil
	case len(c.EndMarker) == 1 && (c.EndMarker[0] < '0' || c.EndMarker[0] > '9'):
		return c.EndMarker[0], nil
	}
	v, err := strconv.ParseUint(c.EndMarker, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("parsing end marker %q: %w", c.EndMarker, err)
	}
	return byte(v), nil
}

// PostgresConfig holds PostgreSQL connection parameters.
type PostgresConfig struct {
	Enabled         bool          `yaml:"enabled"`
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
	Enabled       bool        `yaml:"enabled"`
	Brokers       []string    `yaml:"brokers"`
	ConsumerGroup string      `yaml:"consumerGroup"`
	Topics        KafkaTopics `yaml:"topics"`
}

// KafkaTopics maps logical topic names to their Kafka topic strings.
type KafkaTopics struct {
	Edits string `yaml:"edits"`
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
// overrides. Missing values keep their defaults.
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
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			RequestTimeout:  10 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Index: IndexConfig{
			UndoDepth:   64,
			SnapshotDir: "data/snapshots",
		},
		Postgres: PostgresConfig{
			Host:            "localhost",
			Port:            5432,
			Database:        "rindex",
			User:            "rindex",
			Password:        "localdev",
			SSLMode:         "disable",
			MaxOpenConns:    10,
			MaxIdleConns:    2,
			ConnMaxLifetime: 5 * time.Minute,
		},
		Kafka: KafkaConfig{
			Brokers:       []string{"localhost:9092"},
			ConsumerGroup: "rindex-replica",
			Topics: KafkaTopics{
				Edits: "rindex.edits",
			},
		},
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			PoolSize: 10,
			CacheTTL: 60 * time.Second,
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

// applyEnvOverrides reads RI_* environment variables and overrides the
// corresponding config fields.
func applyEnvOverrides(cfg *Config) {
	setInt(&cfg.Server.Port, "RI_SERVER_PORT")
	setInt(&cfg.Server.EditRateLimit, "RI_SERVER_EDIT_RATE_LIMIT")
	setString(&cfg.Index.Alphabet, "RI_INDEX_ALPHABET")
	setString(&cfg.Index.EndMarker, "RI_INDEX_END_MARKER")
	setInt(&cfg.Index.UndoDepth, "RI_INDEX_UNDO_DEPTH")
	setString(&cfg.Index.SnapshotDir, "RI_INDEX_SNAPSHOT_DIR")
	setString(&cfg.Index.InitialTextFile, "RI_INDEX_INITIAL_TEXT_FILE")
	setBool(&cfg.Index.Follow, "RI_INDEX_FOLLOW")

	setBool(&cfg.Postgres.Enabled, "RI_POSTGRES_ENABLED")
	setString(&cfg.Postgres.Host, "RI_POSTGRES_HOST")
	setInt(&cfg.Postgres.Port, "RI_POSTGRES_PORT")
	setString(&cfg.Postgres.Database, "RI_POSTGRES_DATABASE")
	setString(&cfg.Postgres.User, "RI_POSTGRES_USER")
	setString(&cfg.Postgres.Password, "RI_POSTGRES_PASSWORD")
	setString(&cfg.Postgres.SSLMode, "RI_POSTGRES_SSLMODE")

	setBool(&cfg.Kafka.Enabled, "RI_KAFKA_ENABLED")
	if v := os.Getenv("RI_KAFKA_BROKERS"); v != "" {
		cfg.Kafka.Brokers = strings.Split(v, ",")
	}
	setString(&cfg.Kafka.Topics.Edits, "RI_KAFKA_EDITS_TOPIC")

	setBool(&cfg.Redis.Enabled, "RI_REDIS_ENABLED")
	setString(&cfg.Redis.Addr, "RI_REDIS_ADDR")
	setString(&cfg.Redis.Password, "RI_REDIS_PASSWORD")

	setString(&cfg.Logging.Level, "RI_LOGGING_LEVEL")
	setString(&cfg.Logging.Format, "RI_LOGGING_FORMAT")
	setBool(&cfg.Metrics.Enabled, "RI_METRICS_ENABLED")
	setInt(&cfg.Metrics.Port, "RI_METRICS_PORT")
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
