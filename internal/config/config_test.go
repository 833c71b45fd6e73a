package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	t.Run("Defaults", func(t *testing.T) {
		t.Setenv("TALKIE_BASE_URL", "https://chat.example.com")

		cfg, err := Load("")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BaseURL != "https://chat.example.com" {
			t.Errorf("unexpected base URL %q", cfg.BaseURL)
		}
		if cfg.WSBaseURL != "wss://chat.example.com/ws" {
			t.Errorf("expected derived websocket URL, got %q", cfg.WSBaseURL)
		}
		if cfg.CacheFile != "talkie-cache.db" || cfg.CredsFile != "talkie-creds.db" {
			t.Errorf("unexpected file defaults: %q %q", cfg.CacheFile, cfg.CredsFile)
		}
		if cfg.ReconnectWait != 3*time.Second {
			t.Errorf("unexpected reconnect wait %v", cfg.ReconnectWait)
		}
		if cfg.RequestTimeout != 30*time.Second {
			t.Errorf("unexpected request timeout %v", cfg.RequestTimeout)
		}
		if cfg.Env != "prod" {
			t.Errorf("unexpected env %q", cfg.Env)
		}
	})

	t.Run("File", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "talkie.toml")
		body := `
base_url = "http://localhost:8080"
ws_base_url = "ws://localhost:8080/stream"
cache_file = "/tmp/c.db"
env = "dev"
metrics_addr = ":9091"
reconnect_wait = "500ms"
`
		if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
			t.Fatal(err)
		}

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BaseURL != "http://localhost:8080" {
			t.Errorf("unexpected base URL %q", cfg.BaseURL)
		}
		if cfg.WSBaseURL != "ws://localhost:8080/stream" {
			t.Errorf("explicit websocket URL must win, got %q", cfg.WSBaseURL)
		}
		if cfg.CacheFile != "/tmp/c.db" {
			t.Errorf("unexpected cache file %q", cfg.CacheFile)
		}
		if cfg.Env != "dev" || cfg.MetricsAddr != ":9091" {
			t.Errorf("unexpected env %q metrics %q", cfg.Env, cfg.MetricsAddr)
		}
		if cfg.ReconnectWait != 500*time.Millisecond {
			t.Errorf("unexpected reconnect wait %v", cfg.ReconnectWait)
		}
	})

	t.Run("EnvOverridesFile", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "talkie.toml")
		if err := os.WriteFile(path, []byte(`base_url = "http://from-file"`), 0o600); err != nil {
			t.Fatal(err)
		}
		t.Setenv("TALKIE_BASE_URL", "http://from-env")
		t.Setenv("TALKIE_TIMEOUT", "5s")

		cfg, err := Load(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if cfg.BaseURL != "http://from-env" {
			t.Errorf("env must override file, got %q", cfg.BaseURL)
		}
		if cfg.RequestTimeout != 5*time.Second {
			t.Errorf("unexpected request timeout %v", cfg.RequestTimeout)
		}
		if cfg.WSBaseURL != "ws://from-env/ws" {
			t.Errorf("websocket URL must derive from the plain scheme, got %q", cfg.WSBaseURL)
		}
	})

	t.Run("MissingBaseURL", func(t *testing.T) {
		if _, err := Load(""); err == nil {
			t.Fatal("expected error without a base URL")
		}
	})

	t.Run("BadDuration", func(t *testing.T) {
		t.Setenv("TALKIE_BASE_URL", "http://localhost")
		t.Setenv("TALKIE_RECONNECT_WAIT", "soon")
		if _, err := Load(""); err == nil {
			t.Fatal("expected error for unparsable duration")
		}
	})

	t.Run("MissingFile", func(t *testing.T) {
		if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
			t.Fatal("expected error for missing config file")
		}
	})
}
