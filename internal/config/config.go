// Package config loads the Semptify core configuration: a YAML file with
// environment-variable overrides, so containers can run file-less.
package config

import (
	"fmt"
	"os"
	"strconv"
	"sync"

	"gopkg.in/yaml.v2"
)

// Config is the full runtime configuration.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Bus         BusConfig         `yaml:"bus"`
	ContextLoop ContextLoopConfig `yaml:"context_loop"`
	Intensity   IntensityConfig   `yaml:"intensity"`
	Storage     StorageConfig     `yaml:"storage"`
	Classifier  ClassifierConfig  `yaml:"classifier"`
	Shutdown    ShutdownConfig    `yaml:"shutdown"`
	Audit       AuditConfig       `yaml:"audit"`
	Cache       CacheConfig       `yaml:"cache"`
}

type ServerConfig struct {
	Port string `yaml:"port"`
	Env  string `yaml:"env"`
}

type BusConfig struct {
	QueueHighWater int `yaml:"queue_high_water"`
	PerUserMailbox int `yaml:"per_user_mailbox"`
	HistoryPerType int `yaml:"history_per_type"`
	HistoryPerUser int `yaml:"history_per_user"`
}

type ContextLoopConfig struct {
	IdleTTLSeconds int `yaml:"idle_ttl_seconds"`
}

type IntensityConfig struct {
	RollingWindow int `yaml:"rolling_window"`
}

type SupabaseConfig struct {
	URL        string `yaml:"url"`
	ServiceKey string `yaml:"service_key"`
	Bucket     string `yaml:"bucket"`
}

type StorageConfig struct {
	Provider       string         `yaml:"provider"` // local, supabase
	LocalRoot      string         `yaml:"local_root"`
	TimeoutSeconds int            `yaml:"timeout_seconds"`
	SealKeyHex     string         `yaml:"seal_key_hex"`
	Supabase       SupabaseConfig `yaml:"supabase"`
}

type ClassifierConfig struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
}

type ShutdownConfig struct {
	DeadlineSeconds int `yaml:"deadline_seconds"`
}

type AuditConfig struct {
	LogDir      string `yaml:"log_dir"`
	PostgresDSN string `yaml:"postgres_dsn"`
}

type CacheConfig struct {
	RedisAddr     string `yaml:"redis_addr"`
	RedisPassword string `yaml:"redis_password"`
	RedisDB       int    `yaml:"redis_db"`
	TTLSeconds    int    `yaml:"ttl_seconds"`
}

var (
	cfg  *Config
	once sync.Once
)

// DefaultPath is where Load looks when no path is given.
const DefaultPath = "config.yaml"

// Load reads path (optional), applies env overrides and defaults. An
// unreadable file that was explicitly requested is an error; a missing
// default path is not.
func Load(path string) (*Config, error) {
	c := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, fmt.Errorf("parse config %s: %w", path, err)
			}
		case os.IsNotExist(err) && path == DefaultPath:
			// fine: env-only configuration
		default:
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	c.applyEnvOverrides()
	c.applyDefaults()
	return c, nil
}

// Get returns the process-wide config, loading it on first use.
func Get() *Config {
	once.Do(func() {
		loaded, err := Load(getEnv("SEMPTIFY_CONFIG", DefaultPath))
		if err != nil {
			panic(err)
		}
		cfg = loaded
	})
	return cfg
}

func (c *Config) applyEnvOverrides() {
	c.Server.Port = getEnv("SEMPTIFY_PORT", c.Server.Port)
	c.Server.Env = getEnv("SEMPTIFY_ENV", c.Server.Env)

	c.Bus.QueueHighWater = getEnvInt("SEMPTIFY_BUS_QUEUE_HIGH_WATER", c.Bus.QueueHighWater)
	c.Bus.PerUserMailbox = getEnvInt("SEMPTIFY_BUS_PER_USER_MAILBOX", c.Bus.PerUserMailbox)
	c.Bus.HistoryPerType = getEnvInt("SEMPTIFY_BUS_HISTORY_PER_TYPE", c.Bus.HistoryPerType)
	c.Bus.HistoryPerUser = getEnvInt("SEMPTIFY_BUS_HISTORY_PER_USER", c.Bus.HistoryPerUser)

	c.ContextLoop.IdleTTLSeconds = getEnvInt("SEMPTIFY_CONTEXT_IDLE_TTL", c.ContextLoop.IdleTTLSeconds)
	c.Intensity.RollingWindow = getEnvInt("SEMPTIFY_INTENSITY_WINDOW", c.Intensity.RollingWindow)

	c.Storage.Provider = getEnv("SEMPTIFY_STORAGE_PROVIDER", c.Storage.Provider)
	c.Storage.LocalRoot = getEnv("SEMPTIFY_STORAGE_ROOT", c.Storage.LocalRoot)
	c.Storage.TimeoutSeconds = getEnvInt("SEMPTIFY_STORAGE_TIMEOUT", c.Storage.TimeoutSeconds)
	c.Storage.SealKeyHex = getEnv("SEMPTIFY_SEAL_KEY", c.Storage.SealKeyHex)
	c.Storage.Supabase.URL = getEnv("SUPABASE_URL", c.Storage.Supabase.URL)
	c.Storage.Supabase.ServiceKey = getEnv("SUPABASE_SERVICE_KEY", c.Storage.Supabase.ServiceKey)
	c.Storage.Supabase.Bucket = getEnv("SUPABASE_BUCKET", c.Storage.Supabase.Bucket)

	c.Classifier.TimeoutSeconds = getEnvInt("SEMPTIFY_CLASSIFIER_TIMEOUT", c.Classifier.TimeoutSeconds)
	c.Shutdown.DeadlineSeconds = getEnvInt("SEMPTIFY_SHUTDOWN_DEADLINE", c.Shutdown.DeadlineSeconds)

	c.Audit.LogDir = getEnv("SEMPTIFY_AUDIT_DIR", c.Audit.LogDir)
	c.Audit.PostgresDSN = getEnv("SEMPTIFY_AUDIT_POSTGRES_DSN", c.Audit.PostgresDSN)

	c.Cache.RedisAddr = getEnv("REDIS_ADDR", c.Cache.RedisAddr)
	c.Cache.RedisPassword = getEnv("REDIS_PASSWORD", c.Cache.RedisPassword)
	c.Cache.RedisDB = getEnvInt("REDIS_DB", c.Cache.RedisDB)
}

func (c *Config) applyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = "8080"
	}
	if c.Server.Env == "" {
		c.Server.Env = "development"
	}
	if c.Bus.QueueHighWater == 0 {
		c.Bus.QueueHighWater = 10000
	}
	if c.Bus.PerUserMailbox == 0 {
		c.Bus.PerUserMailbox = 1000
	}
	if c.Bus.HistoryPerType == 0 {
		c.Bus.HistoryPerType = 1000
	}
	if c.Bus.HistoryPerUser == 0 {
		c.Bus.HistoryPerUser = 500
	}
	if c.ContextLoop.IdleTTLSeconds == 0 {
		c.ContextLoop.IdleTTLSeconds = 86400
	}
	if c.Intensity.RollingWindow == 0 {
		c.Intensity.RollingWindow = 100
	}
	if c.Storage.Provider == "" {
		c.Storage.Provider = "local"
	}
	if c.Storage.LocalRoot == "" {
		c.Storage.LocalRoot = "data/storage"
	}
	if c.Storage.TimeoutSeconds == 0 {
		c.Storage.TimeoutSeconds = 60
	}
	if c.Classifier.TimeoutSeconds == 0 {
		c.Classifier.TimeoutSeconds = 30
	}
	if c.Shutdown.DeadlineSeconds == 0 {
		c.Shutdown.DeadlineSeconds = 30
	}
	if c.Audit.LogDir == "" {
		c.Audit.LogDir = "logs/audit"
	}
	if c.Cache.TTLSeconds == 0 {
		c.Cache.TTLSeconds = 30
	}
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool { return c.Server.Env == "production" }

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}
