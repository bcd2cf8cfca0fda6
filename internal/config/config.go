package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	API struct {
		// BaseURL of the treasure-hunt backend. Empty runs against the
		// built-in demo mystery.
		BaseURL    string `yaml:"base_url" validate:"omitempty,url"`
		Token      string `yaml:"token"`
		Timeout    string `yaml:"timeout"`
		Retries    int    `yaml:"retries" validate:"gte=0,lte=10"`
		RetryDelay string `yaml:"retry_delay"`
	} `yaml:"api"`
	Server struct {
		Port string `yaml:"port" validate:"omitempty,numeric"`
	} `yaml:"server"`
	Cache struct {
		MaxEntries   int    `yaml:"max_entries" validate:"gte=0"`
		HandlePrefix string `yaml:"handle_prefix" validate:"omitempty,startswith=/,endswith=/"`
	} `yaml:"cache"`
	Redis struct {
		Addr        string `yaml:"addr" validate:"omitempty,hostname_port"`
		Password    string `yaml:"password"`
		DB          int    `yaml:"db" validate:"gte=0"`
		TTL         string `yaml:"ttl"`
		SnapshotTTL string `yaml:"snapshot_ttl"`
	} `yaml:"redis"`
	Postgres struct {
		URL string `yaml:"url"`
	} `yaml:"postgres"`
	Log struct {
		Level  string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
		Format string `yaml:"format" validate:"omitempty,oneof=json text"`
	} `yaml:"log"`
}

// Load reads .env (if present), the YAML config at path (if present) and
// environment overrides, then validates the result.
func Load(path string) (Config, error) {
	cfg := Config{}
	_ = godotenv.Load()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return cfg, err
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, err
			}
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	if err := validator.New().Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) error {
	if v := os.Getenv("HUNT_API_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("HUNT_TOKEN"); v != "" {
		cfg.API.Token = v
	}
	if v := os.Getenv("PORT"); v != "" {
		cfg.Server.Port = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("HUNT_CACHE_MAX_ENTRIES"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("HUNT_CACHE_MAX_ENTRIES: %w", err)
		}
		cfg.Cache.MaxEntries = n
	}
	return nil
}

// TTLDuration parses a duration string or returns the fallback if empty.
func TTLDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}
