package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/0xPuncker/batch-registry/pkg/types"
	"github.com/joho/godotenv"
)

const (
	BackendMemory   = "memory"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type Config struct {
	Server       ServerConfig       `json:"server"`
	Registration RegistrationConfig `json:"registration"`
	Redis        RedisConfig        `json:"redis"`
	Postgres     PostgresConfig     `json:"postgres"`
	Jobs         JobsConfig         `json:"jobs"`
	Poller       PollerConfig       `json:"poller"`
	Slack        SlackConfig        `json:"slack"`
}

type ServerConfig struct {
	Port         string `json:"port"`
	ReadTimeout  string `json:"read_timeout"`
	WriteTimeout string `json:"write_timeout"`
}

// RegistrationConfig selects the application store. A zero TTL keeps
// registrations until they are deleted.
type RegistrationConfig struct {
	Backend string `json:"backend"`
	TTL     string `json:"ttl"`
}

type RedisConfig struct {
	Addr      string `json:"addr"`
	Password  string `json:"password"`
	DB        int    `json:"db"`
	KeyPrefix string `json:"key_prefix"`
	Stream    string `json:"stream"`
}

type PostgresConfig struct {
	DSN string `json:"dsn"`
}

type JobsConfig struct {
	Backend       string `json:"backend"`
	File          string `json:"file"`
	MaxConcurrent int    `json:"max_concurrent"`
}

type PollerConfig struct {
	Enabled  bool   `json:"enabled"`
	Interval string `json:"interval"`
	Timeout  string `json:"timeout"`
}

type SlackConfig struct {
	WebhookURL string `json:"webhook_url"`
}

// Load reads the JSON config file. When the file cannot be read the config is
// built from the environment, after loading .env or .env.local if present.
func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		if err := godotenv.Load(); err != nil {
			if err := godotenv.Load(".env.local"); err != nil {
				fmt.Printf("No .env or .env.local file found. Using environment variables.\n")
			}
		}
		return fromEnv(), nil
	}

	config := DefaultConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return config, nil
}

func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         "8080",
			ReadTimeout:  "15s",
			WriteTimeout: "15s",
		},
		Registration: RegistrationConfig{
			Backend: BackendMemory,
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "batch-registry",
		},
		Jobs: JobsConfig{
			Backend:       BackendMemory,
			File:          "config/jobs.yaml",
			MaxConcurrent: 10,
		},
		Poller: PollerConfig{
			Interval: "1m",
			Timeout:  "5s",
		},
	}
}

func fromEnv() *Config {
	defaults := DefaultConfig()
	return &Config{
		Server: ServerConfig{
			Port:         getEnv("PORT", defaults.Server.Port),
			ReadTimeout:  getEnv("SERVER_READ_TIMEOUT", defaults.Server.ReadTimeout),
			WriteTimeout: getEnv("SERVER_WRITE_TIMEOUT", defaults.Server.WriteTimeout),
		},
		Registration: RegistrationConfig{
			Backend: getEnv("REGISTRATION_BACKEND", defaults.Registration.Backend),
			TTL:     getEnv("REGISTRATION_TTL", ""),
		},
		Redis: RedisConfig{
			Addr:      getEnv("REDIS_ADDR", defaults.Redis.Addr),
			Password:  getEnv("REDIS_PASSWORD", ""),
			DB:        getEnvInt("REDIS_DB", 0),
			KeyPrefix: getEnv("REDIS_KEY_PREFIX", defaults.Redis.KeyPrefix),
			Stream:    getEnv("REDIS_EVENT_STREAM", ""),
		},
		Postgres: PostgresConfig{
			DSN: getEnv("POSTGRES_DSN", ""),
		},
		Jobs: JobsConfig{
			Backend:       getEnv("JOBS_BACKEND", defaults.Jobs.Backend),
			File:          getEnv("JOBS_FILE", defaults.Jobs.File),
			MaxConcurrent: getEnvInt("JOBS_MAX_CONCURRENT", defaults.Jobs.MaxConcurrent),
		},
		Poller: PollerConfig{
			Enabled:  getEnv("POLLER_ENABLED", "false") == "true",
			Interval: getEnv("POLLER_INTERVAL", defaults.Poller.Interval),
			Timeout:  getEnv("POLLER_TIMEOUT", defaults.Poller.Timeout),
		},
		Slack: SlackConfig{
			WebhookURL: getEnv("SLACK_WEBHOOK_URL", ""),
		},
	}
}

func (c *Config) SchedulerConfig() types.JobSchedulerConfig {
	return types.JobSchedulerConfig{MaxConcurrent: c.Jobs.MaxConcurrent}
}

// Duration parses value, returning fallback when it is empty or invalid.
func Duration(value string, fallback time.Duration) time.Duration {
	if value == "" {
		return fallback
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return d
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return fallback
	}
	return n
}
