package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/vsinha/lineplan/pkg/domain/entities"
)

// Config is the runtime configuration of the planner
type Config struct {
	Storage    StorageConfig    `yaml:"storage"`
	Scheduling SchedulingConfig `yaml:"scheduling"`
	HTTP       HTTPConfig       `yaml:"http"`
	Redis      RedisConfig      `yaml:"redis"`
	Kafka      KafkaConfig      `yaml:"kafka"`
	Log        LogConfig        `yaml:"log"`
}

type StorageConfig struct {
	// Driver is memory, sqlite or postgres
	Driver  string `yaml:"driver"`
	DSN     string `yaml:"dsn,omitempty"`
	DataDir string `yaml:"data_dir,omitempty"`
}

type SchedulingConfig struct {
	AllowPartialPlans bool `yaml:"allow_partial_plans"`
	CommitRetries     int  `yaml:"commit_retries"`
	// HorizonDays is reported for visibility only; the allocator always
	// walks entities.HorizonDays
	HorizonDays int `yaml:"horizon_days,omitempty"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
	// RateLimit is requests per second, zero disables limiting
	RateLimit float64 `yaml:"rate_limit"`
	Burst     int     `yaml:"burst"`
}

type RedisConfig struct {
	URL     string `yaml:"url,omitempty"`
	LockTTL string `yaml:"lock_ttl,omitempty"`
}

type KafkaConfig struct {
	Brokers string `yaml:"brokers,omitempty"`
	Topic   string `yaml:"topic"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default returns a configuration that runs entirely in memory
func Default() *Config {
	return &Config{
		Storage:    StorageConfig{Driver: "memory"},
		Scheduling: SchedulingConfig{CommitRetries: 1, HorizonDays: entities.HorizonDays},
		HTTP:       HTTPConfig{Addr: ":8080", RateLimit: 20, Burst: 40},
		Redis:      RedisConfig{LockTTL: "30s"},
		Kafka:      KafkaConfig{Topic: "lineplan.schedule"},
		Log:        LogConfig{Level: "info", Format: "text"},
	}
}

// Load reads an optional .env file, an optional YAML file and then the
// environment, later sources winning
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("reading .env: %w", err)
	}

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing YAML: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(target *string, keys ...string) {
		for _, k := range keys {
			if v, ok := lookup(k); ok && v != "" {
				*target = v
				return
			}
		}
	}

	str(&c.Storage.Driver, "LINEPLAN_STORAGE_DRIVER")
	str(&c.Storage.DSN, "LINEPLAN_STORAGE_DSN", "DATABASE_URL")
	str(&c.Storage.DataDir, "LINEPLAN_DATA_DIR")
	str(&c.HTTP.Addr, "LINEPLAN_HTTP_ADDR")
	str(&c.Redis.URL, "LINEPLAN_REDIS_URL", "REDIS_URL")
	str(&c.Redis.LockTTL, "LINEPLAN_LOCK_TTL")
	str(&c.Kafka.Brokers, "LINEPLAN_KAFKA_BROKERS", "KAFKA_BROKERS")
	str(&c.Kafka.Topic, "LINEPLAN_KAFKA_TOPIC")
	str(&c.Log.Level, "LINEPLAN_LOG_LEVEL")
	str(&c.Log.Format, "LINEPLAN_LOG_FORMAT")

	if v, ok := lookup("PORT"); ok && v != "" && c.HTTP.Addr == Default().HTTP.Addr {
		c.HTTP.Addr = ":" + v
	}
	if v, ok := lookup("LINEPLAN_ALLOW_PARTIAL_PLANS"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("LINEPLAN_ALLOW_PARTIAL_PLANS: %w", err)
		}
		c.Scheduling.AllowPartialPlans = b
	}
	if v, ok := lookup("LINEPLAN_COMMIT_RETRIES"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("LINEPLAN_COMMIT_RETRIES: %w", err)
		}
		c.Scheduling.CommitRetries = n
	}
	if v, ok := lookup("LINEPLAN_RATE_LIMIT"); ok && v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("LINEPLAN_RATE_LIMIT: %w", err)
		}
		c.HTTP.RateLimit = f
	}
	return nil
}

// Validate checks every section
func (c *Config) Validate() error {
	var errs []error

	switch c.Storage.Driver {
	case "memory":
	case "sqlite":
		if c.Storage.DSN == "" && c.Storage.DataDir == "" {
			errs = append(errs, fmt.Errorf("storage: sqlite needs dsn or data_dir"))
		}
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, fmt.Errorf("storage: postgres needs dsn or DATABASE_URL"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage: unknown driver %q", c.Storage.Driver))
	}

	if c.Scheduling.CommitRetries < 0 {
		errs = append(errs, fmt.Errorf("scheduling: commit_retries cannot be negative"))
	}
	if h := c.Scheduling.HorizonDays; h != 0 && h != entities.HorizonDays {
		errs = append(errs, fmt.Errorf("scheduling: horizon_days is fixed at %d", entities.HorizonDays))
	}

	if c.HTTP.RateLimit < 0 {
		errs = append(errs, fmt.Errorf("http: rate_limit cannot be negative"))
	}
	if c.HTTP.RateLimit > 0 && c.HTTP.Burst < 1 {
		errs = append(errs, fmt.Errorf("http: burst must be at least 1 when rate limiting"))
	}

	if _, err := c.LockTTL(); err != nil {
		errs = append(errs, fmt.Errorf("redis: %w", err))
	}
	if c.Kafka.Brokers != "" && c.Kafka.Topic == "" {
		errs = append(errs, fmt.Errorf("kafka: topic required when brokers are set"))
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("log: unknown level %q", c.Log.Level))
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log: unknown format %q", c.Log.Format))
	}

	return errors.Join(errs...)
}

// LockTTL parses the lock lease duration
func (c *Config) LockTTL() (time.Duration, error) {
	if c.Redis.LockTTL == "" {
		return 30 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Redis.LockTTL)
	if err != nil {
		return 0, fmt.Errorf("invalid lock_ttl %q: %w", c.Redis.LockTTL, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("lock_ttl must be positive")
	}
	return d, nil
}

// SQLitePath resolves the database file for the sqlite driver
func (c *Config) SQLitePath() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	return strings.TrimRight(c.Storage.DataDir, "/") + "/lineplan.db"
}
