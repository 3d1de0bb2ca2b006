package config

import (
	"encoding/json"
	"os"
	"strconv"
	"time"
)

// RedisConfig holds Redis connection settings
type RedisConfig struct {
	Addr     string `json:"addr"`
	Password string `json:"password"`
	DB       int    `json:"db"`
}

// CacheConfig holds page cache settings
type CacheConfig struct {
	TTL          time.Duration `json:"ttl"`
	FetchTimeout time.Duration `json:"fetch_timeout"`
}

// Config is the central configuration struct embedding all component configs
type Config struct {
	Redis    RedisConfig `json:"redis"`
	Cache    CacheConfig `json:"cache"`
	LogLevel string      `json:"log_level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Redis: RedisConfig{
			Addr:     "localhost:6379",
			Password: "",
			DB:       0,
		},
		Cache: CacheConfig{
			TTL:          10 * time.Second,
			FetchTimeout: 30 * time.Second,
		},
		LogLevel: "info",
	}
}

// LoadFromFile loads configuration from a JSON file
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadFromEnv applies environment variable overrides to the config
func LoadFromEnv(cfg *Config) {
	if v := os.Getenv("PULSAR_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("PULSAR_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}
	if v := os.Getenv("PULSAR_REDIS_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Redis.DB = db
		}
	}
	if v := os.Getenv("PULSAR_CACHE_TTL"); v != "" {
		if ttl, err := time.ParseDuration(v); err == nil {
			cfg.Cache.TTL = ttl
		}
	}
	if v := os.Getenv("PULSAR_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
}
