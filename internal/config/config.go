package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config contains all runtime settings for the companion context service.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	ContextDir         string
	ContextMaxMessages int
	ContextCacheTTL    time.Duration
	ContextCacheSize   int
	MonoRoundDuration  time.Duration

	EventLogDir        string
	EventRetentionDays int
	JanitorInterval    time.Duration

	DatabaseURL string

	// ConfigFile is the YAML overlay that was applied, if any.
	ConfigFile string
}

// fileConfig mirrors Config for the optional YAML overlay. Durations are
// strings in time.ParseDuration form.
type fileConfig struct {
	BindAddr         string `yaml:"bind_addr"`
	ShutdownTimeout  string `yaml:"shutdown_timeout"`
	MetricsNamespace string `yaml:"metrics_namespace"`
	AllowAnyOrigin   *bool  `yaml:"allow_any_origin"`

	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`

	Context struct {
		Dir               string `yaml:"dir"`
		MaxMessages       int    `yaml:"max_messages"`
		CacheTTL          string `yaml:"cache_ttl"`
		CacheSize         int    `yaml:"cache_size"`
		MonoRoundDuration string `yaml:"mono_round_duration"`
	} `yaml:"context"`

	Events struct {
		Dir             string `yaml:"dir"`
		RetentionDays   int    `yaml:"retention_days"`
		JanitorInterval string `yaml:"janitor_interval"`
	} `yaml:"events"`

	DatabaseURL string `yaml:"database_url"`
}

func defaults() Config {
	return Config{
		BindAddr:           ":8080",
		ShutdownTimeout:    15 * time.Second,
		MetricsNamespace:   "companion",
		AllowAnyOrigin:     false,
		LogLevel:           "info",
		LogFormat:          "json",
		ContextDir:         filepath.Join("data", "context"),
		ContextMaxMessages: 40,
		ContextCacheTTL:    time.Hour,
		ContextCacheSize:   100,
		MonoRoundDuration:  2 * time.Minute,
		EventLogDir:        filepath.Join("data", "events"),
		EventRetentionDays: 7,
		JanitorInterval:    10 * time.Minute,
	}
}

// Load applies defaults, then the YAML file named by APP_CONFIG_FILE, then
// environment variables.
func Load() (Config, error) {
	cfg := defaults()

	if path := stringsTrimSpace("APP_CONFIG_FILE"); path != "" {
		if err := applyFile(&cfg, path); err != nil {
			return Config{}, err
		}
		cfg.ConfigFile = path
	}

	cfg.BindAddr = envOrDefault("APP_BIND_ADDR", cfg.BindAddr)
	cfg.MetricsNamespace = envOrDefault("APP_METRICS_NAMESPACE", cfg.MetricsNamespace)
	cfg.LogLevel = strings.ToLower(envOrDefault("LOG_LEVEL", cfg.LogLevel))
	cfg.LogFormat = strings.ToLower(envOrDefault("LOG_FORMAT", cfg.LogFormat))
	cfg.ContextDir = envOrDefault("CONTEXT_DIR", cfg.ContextDir)
	cfg.EventLogDir = envOrDefault("EVENT_LOG_DIR", cfg.EventLogDir)
	if v := stringsTrimSpace("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}

	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("APP_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("APP_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextMaxMessages, err = intFromEnv("CONTEXT_MAX_MESSAGES", cfg.ContextMaxMessages)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextCacheTTL, err = durationFromEnv("CONTEXT_CACHE_TTL", cfg.ContextCacheTTL)
	if err != nil {
		return Config{}, err
	}
	cfg.ContextCacheSize, err = intFromEnv("CONTEXT_CACHE_SIZE", cfg.ContextCacheSize)
	if err != nil {
		return Config{}, err
	}
	cfg.MonoRoundDuration, err = durationFromEnv("MONO_ROUND_DURATION", cfg.MonoRoundDuration)
	if err != nil {
		return Config{}, err
	}
	cfg.EventRetentionDays, err = intFromEnv("EVENT_RETENTION_DAYS", cfg.EventRetentionDays)
	if err != nil {
		return Config{}, err
	}
	cfg.JanitorInterval, err = durationFromEnv("JANITOR_INTERVAL", cfg.JanitorInterval)
	if err != nil {
		return Config{}, err
	}

	if err := cfg.validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.ContextMaxMessages <= 0 {
		return fmt.Errorf("CONTEXT_MAX_MESSAGES must be positive")
	}
	if c.ContextCacheSize <= 0 {
		return fmt.Errorf("CONTEXT_CACHE_SIZE must be positive")
	}
	if c.ContextCacheTTL <= 0 {
		return fmt.Errorf("CONTEXT_CACHE_TTL must be positive")
	}
	if c.MonoRoundDuration <= 0 {
		return fmt.Errorf("MONO_ROUND_DURATION must be positive")
	}
	if c.EventRetentionDays <= 0 {
		return fmt.Errorf("EVENT_RETENTION_DAYS must be positive")
	}
	if c.JanitorInterval < time.Second {
		return fmt.Errorf("JANITOR_INTERVAL must be at least 1s")
	}
	if strings.TrimSpace(c.ContextDir) == "" {
		return fmt.Errorf("CONTEXT_DIR must not be empty")
	}
	if strings.TrimSpace(c.EventLogDir) == "" {
		return fmt.Errorf("EVENT_LOG_DIR must not be empty")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("LOG_LEVEL must be one of debug, info, warn, error")
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("LOG_FORMAT must be json or text")
	}
	return nil
}

func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	setString(&cfg.BindAddr, fc.BindAddr)
	setString(&cfg.MetricsNamespace, fc.MetricsNamespace)
	setString(&cfg.LogLevel, strings.ToLower(fc.Log.Level))
	setString(&cfg.LogFormat, strings.ToLower(fc.Log.Format))
	setString(&cfg.ContextDir, fc.Context.Dir)
	setString(&cfg.EventLogDir, fc.Events.Dir)
	setString(&cfg.DatabaseURL, fc.DatabaseURL)
	setInt(&cfg.ContextMaxMessages, fc.Context.MaxMessages)
	setInt(&cfg.ContextCacheSize, fc.Context.CacheSize)
	setInt(&cfg.EventRetentionDays, fc.Events.RetentionDays)
	if fc.AllowAnyOrigin != nil {
		cfg.AllowAnyOrigin = *fc.AllowAnyOrigin
	}

	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"shutdown_timeout", fc.ShutdownTimeout, &cfg.ShutdownTimeout},
		{"context.cache_ttl", fc.Context.CacheTTL, &cfg.ContextCacheTTL},
		{"context.mono_round_duration", fc.Context.MonoRoundDuration, &cfg.MonoRoundDuration},
		{"events.janitor_interval", fc.Events.JanitorInterval, &cfg.JanitorInterval},
	}
	for _, d := range durations {
		v := strings.TrimSpace(d.raw)
		if v == "" {
			continue
		}
		parsed, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("%s: %s parse error: %w", path, d.key, err)
		}
		*d.dst = parsed
	}
	return nil
}

func setString(dst *string, v string) {
	if v = strings.TrimSpace(v); v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
