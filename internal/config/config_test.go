package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.ContextMaxMessages != 40 {
		t.Fatalf("ContextMaxMessages = %d, want 40", cfg.ContextMaxMessages)
	}
	if cfg.ContextCacheTTL != time.Hour || cfg.ContextCacheSize != 100 {
		t.Fatalf("cache settings = %v/%d, want 1h/100", cfg.ContextCacheTTL, cfg.ContextCacheSize)
	}
	if cfg.EventRetentionDays != 7 {
		t.Fatalf("EventRetentionDays = %d, want 7", cfg.EventRetentionDays)
	}
	if cfg.MonoRoundDuration != 2*time.Minute {
		t.Fatalf("MonoRoundDuration = %v, want 2m", cfg.MonoRoundDuration)
	}
	if cfg.DatabaseURL != "" {
		t.Fatalf("DatabaseURL = %q, want empty default", cfg.DatabaseURL)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("APP_BIND_ADDR", ":9191")
	t.Setenv("CONTEXT_MAX_MESSAGES", "12")
	t.Setenv("EVENT_RETENTION_DAYS", "3")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("APP_ALLOW_ANY_ORIGIN", "yes")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.ContextMaxMessages != 12 || cfg.EventRetentionDays != 3 {
		t.Fatalf("unexpected config: %+v", cfg)
	}
	if cfg.LogLevel != "debug" || !cfg.AllowAnyOrigin {
		t.Fatalf("LogLevel/AllowAnyOrigin = %q/%v, want debug/true", cfg.LogLevel, cfg.AllowAnyOrigin)
	}
}

func TestLoadYAMLFileThenEnv(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "companion.yaml")
	data := `
bind_addr: ":7000"
log:
  format: text
context:
  dir: /var/lib/companion/context
  max_messages: 20
  cache_ttl: 30m
events:
  retention_days: 14
  janitor_interval: 1m
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)
	t.Setenv("EVENT_RETENTION_DAYS", "2")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":7000" || cfg.LogFormat != "text" || cfg.ContextDir != "/var/lib/companion/context" {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.ContextMaxMessages != 20 || cfg.ContextCacheTTL != 30*time.Minute || cfg.JanitorInterval != time.Minute {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.EventRetentionDays != 2 {
		t.Fatalf("EventRetentionDays = %d, want env override 2", cfg.EventRetentionDays)
	}
	if cfg.ConfigFile != path {
		t.Fatalf("ConfigFile = %q, want %q", cfg.ConfigFile, path)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"CONTEXT_MAX_MESSAGES": "0",
		"CONTEXT_CACHE_TTL":    "soon",
		"EVENT_RETENTION_DAYS": "-1",
		"LOG_FORMAT":           "xml",
		"APP_ALLOW_ANY_ORIGIN": "maybe",
		"JANITOR_INTERVAL":     "10ms",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			_, err := Load()
			if err == nil {
				t.Fatalf("Load() with %s=%q expected error", key, value)
			}
			if !strings.Contains(err.Error(), key) {
				t.Fatalf("Load() error = %v, want it to name %s", err, key)
			}
		})
	}
}

func TestLoadRejectsBadYAML(t *testing.T) {
	setCoreEnvEmpty(t)
	path := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(path, []byte("context: [unclosed"), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	t.Setenv("APP_CONFIG_FILE", path)
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected parse error")
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"APP_CONFIG_FILE",
		"APP_BIND_ADDR",
		"APP_SHUTDOWN_TIMEOUT",
		"APP_METRICS_NAMESPACE",
		"APP_ALLOW_ANY_ORIGIN",
		"LOG_LEVEL",
		"LOG_FORMAT",
		"CONTEXT_DIR",
		"CONTEXT_MAX_MESSAGES",
		"CONTEXT_CACHE_TTL",
		"CONTEXT_CACHE_SIZE",
		"MONO_ROUND_DURATION",
		"EVENT_LOG_DIR",
		"EVENT_RETENTION_DAYS",
		"JANITOR_INTERVAL",
		"DATABASE_URL",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
