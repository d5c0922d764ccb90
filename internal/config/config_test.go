package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rohmanhakim/feed-updater/internal/config"
)

func TestWithDefault(t *testing.T) {
	cfg := config.WithDefault()

	if cfg == nil {
		t.Fatal("WithDefault() returned nil")
	}

	builtCfg, err := cfg.Build()
	if err != nil {
		t.Fatalf("should not have any error, got %v", err)
	}

	if builtCfg.Concurrency() != 4 {
		t.Errorf("expected Concurrency 4, got %d", builtCfg.Concurrency())
	}
	if builtCfg.MaxRetries() != 3 {
		t.Errorf("expected MaxRetries 3, got %d", builtCfg.MaxRetries())
	}
	if builtCfg.RetryBaseDelay() != 10*time.Second {
		t.Errorf("expected RetryBaseDelay 10s, got %v", builtCfg.RetryBaseDelay())
	}
	if builtCfg.RetryMaxDelay() != 5*time.Minute {
		t.Errorf("expected RetryMaxDelay 5m, got %v", builtCfg.RetryMaxDelay())
	}
	if builtCfg.DispatchInterval() != 100*time.Millisecond {
		t.Errorf("expected DispatchInterval 100ms, got %v", builtCfg.DispatchInterval())
	}
	if builtCfg.Timeout() != 30*time.Second {
		t.Errorf("expected Timeout 30s, got %v", builtCfg.Timeout())
	}
	if !builtCfg.AllowRetries() {
		t.Error("expected AllowRetries true")
	}
	if !builtCfg.Online() {
		t.Error("expected Online true")
	}
	if builtCfg.UserAgent() != "feedupd/1.0" {
		t.Errorf("expected UserAgent 'feedupd/1.0', got '%s'", builtCfg.UserAgent())
	}
	if builtCfg.StateDir() != "" {
		t.Errorf("expected empty StateDir, got '%s'", builtCfg.StateDir())
	}
	if builtCfg.LogFormat() != "text" {
		t.Errorf("expected LogFormat 'text', got '%s'", builtCfg.LogFormat())
	}
}

func TestBuild_ConcurrencyFloor(t *testing.T) {
	for _, requested := range []int{-1, 0, 1} {
		cfg, err := config.WithDefault().WithConcurrency(requested).Build()
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.Concurrency() != config.MinConcurrency {
			t.Errorf("concurrency %d: expected floor %d, got %d", requested, config.MinConcurrency, cfg.Concurrency())
		}
	}

	cfg, _ := config.WithDefault().WithConcurrency(8).Build()
	if cfg.Concurrency() != 8 {
		t.Errorf("expected Concurrency 8, got %d", cfg.Concurrency())
	}
}

func TestBuild_Invalid(t *testing.T) {
	tests := []struct {
		name string
		cfg  *config.Config
	}{
		{"negative retries", config.WithDefault().WithMaxRetries(-1)},
		{"zero base delay", config.WithDefault().WithRetryBaseDelay(0)},
		{"max below base", config.WithDefault().WithRetryBaseDelay(time.Minute).WithRetryMaxDelay(time.Second)},
		{"negative jitter", config.WithDefault().WithRetryJitter(-time.Second)},
		{"negative host jitter", config.WithDefault().WithHostJitter(-time.Second)},
		{"zero dispatch interval", config.WithDefault().WithDispatchInterval(0)},
		{"unknown log format", config.WithDefault().WithLogFormat("xml")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Build()
			if !errors.Is(err, config.ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got: %v", err)
			}
		})
	}
}

func TestBuilderSetters(t *testing.T) {
	cfg, err := config.WithDefault().
		WithAllowRetries(false).
		WithMaxRetries(0).
		WithRetryJitter(time.Second).
		WithRandomSeed(42).
		WithTimeout(5 * time.Second).
		WithUserAgent("TestBot/1.0").
		WithHostDelay(2 * time.Second).
		WithHostJitter(500 * time.Millisecond).
		WithOnline(false).
		WithStateDir("/var/lib/feedupd").
		WithLogLevel("DEBUG").
		WithLogFormat("json").
		WithMetricsAddr(":9090").
		Build()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.AllowRetries() || cfg.MaxRetries() != 0 || cfg.RetryJitter() != time.Second || cfg.RandomSeed() != 42 {
		t.Errorf("retry settings not applied: %+v", cfg)
	}
	if cfg.Timeout() != 5*time.Second || cfg.UserAgent() != "TestBot/1.0" || cfg.HostDelay() != 2*time.Second || cfg.HostJitter() != 500*time.Millisecond || cfg.Online() {
		t.Errorf("fetch settings not applied: %+v", cfg)
	}
	if cfg.StateDir() != "/var/lib/feedupd" || cfg.LogLevel() != "DEBUG" || cfg.LogFormat() != "json" || cfg.MetricsAddr() != ":9090" {
		t.Errorf("ambient settings not applied: %+v", cfg)
	}
}

func TestWithConfigFile_FileDoesNotExist(t *testing.T) {
	_, err := config.WithConfigFile("/nonexistent/path/config.json")

	if !errors.Is(err, config.ErrFileDoesNotExist) {
		t.Errorf("expected ErrFileDoesNotExist, got: %v", err)
	}
}

func TestWithConfigFile_InvalidJSON(t *testing.T) {
	configPath := writeConfig(t, "invalid.json", "{invalid json content}")

	_, err := config.WithConfigFile(configPath)

	if !errors.Is(err, config.ErrConfigParsingFail) {
		t.Errorf("expected ErrConfigParsingFail, got: %v", err)
	}
}

func TestWithConfigFile_ValidJSON(t *testing.T) {
	configPath := writeConfig(t, "config.json", `{
		"concurrency": 6,
		"maxRetries": 0,
		"retryBaseDelay": 2000000000,
		"retryMaxDelay": 60000000000,
		"userAgent": "TestBot/1.0",
		"online": false,
		"allowRetries": false
	}`)

	cfg, err := config.WithConfigFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error loading valid config: %v", err)
	}

	if cfg.Concurrency() != 6 {
		t.Errorf("expected Concurrency 6, got %d", cfg.Concurrency())
	}
	if cfg.MaxRetries() != 0 {
		t.Errorf("expected explicit MaxRetries 0, got %d", cfg.MaxRetries())
	}
	if cfg.RetryBaseDelay() != 2*time.Second || cfg.RetryMaxDelay() != time.Minute {
		t.Errorf("unexpected retry delays %v / %v", cfg.RetryBaseDelay(), cfg.RetryMaxDelay())
	}
	if cfg.UserAgent() != "TestBot/1.0" {
		t.Errorf("expected UserAgent 'TestBot/1.0', got '%s'", cfg.UserAgent())
	}
	if cfg.Online() || cfg.AllowRetries() {
		t.Error("expected online and allowRetries to be false")
	}
	// untouched fields keep defaults
	if cfg.Timeout() != 30*time.Second {
		t.Errorf("expected default Timeout, got %v", cfg.Timeout())
	}
}

func TestWithConfigFile_ValidYAML(t *testing.T) {
	configPath := writeConfig(t, "config.yaml", `
concurrency: 3
retryBaseDelay: 5s
retryMaxDelay: 2m
dispatchInterval: 50ms
stateDir: /tmp/feedupd
logFormat: json
`)

	cfg, err := config.WithConfigFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error loading valid config: %v", err)
	}

	if cfg.Concurrency() != 3 {
		t.Errorf("expected Concurrency 3, got %d", cfg.Concurrency())
	}
	if cfg.RetryBaseDelay() != 5*time.Second || cfg.RetryMaxDelay() != 2*time.Minute {
		t.Errorf("unexpected retry delays %v / %v", cfg.RetryBaseDelay(), cfg.RetryMaxDelay())
	}
	if cfg.DispatchInterval() != 50*time.Millisecond {
		t.Errorf("expected DispatchInterval 50ms, got %v", cfg.DispatchInterval())
	}
	if cfg.StateDir() != "/tmp/feedupd" || cfg.LogFormat() != "json" {
		t.Errorf("unexpected ambient settings %q %q", cfg.StateDir(), cfg.LogFormat())
	}
	if cfg.MaxRetries() != 3 {
		t.Errorf("expected default MaxRetries 3, got %d", cfg.MaxRetries())
	}
}

func TestWithConfigFile_InvalidValues(t *testing.T) {
	configPath := writeConfig(t, "config.yml", "retryBaseDelay: 1m\nretryMaxDelay: 1s\n")

	_, err := config.WithConfigFile(configPath)

	if !errors.Is(err, config.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got: %v", err)
	}
}

func TestWithConfigFile_EmptyJSON(t *testing.T) {
	configPath := writeConfig(t, "empty.json", "{}")

	cfg, err := config.WithConfigFile(configPath)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Concurrency() != 4 || cfg.MaxRetries() != 3 {
		t.Errorf("expected defaults, got concurrency %d retries %d", cfg.Concurrency(), cfg.MaxRetries())
	}
}

func writeConfig(t *testing.T, name string, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}
