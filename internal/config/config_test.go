package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

var envVars = []string{
	"USER_DATA_PATH", "DATA_DIR", "AUDIT_DB", "MDWINDOW_PORT",
	"ALPACA_BASE_URL", "ALPACA_DATA_URL", "ALPACA_FEED", "LOG_LEVEL", "LOG_DIR",
	"APCA_API_KEY_ID", "APCA_API_SECRET_KEY",
}

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range envVars {
		t.Setenv(k, "")
	}
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "mdwindow.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
storage:
  data_dir: "/srv/market"
  audit_db: "/srv/market/audit.db"
server:
  host: "127.0.0.1"
  port: 8088
  grpc_port: -1
alpaca:
  api_key: "test-key"
  api_secret: "test-secret"
  data_url: "https://data.alpaca.markets"
  feed: "sip"
logging:
  level: "debug"
  format: "json"
  dir: "/var/log/mdwindow"
estimator:
  minute_bytes_per_row: 100
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}

	// -- Storage --
	if cfg.Storage.DataDir != "/srv/market" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "/srv/market")
	}
	if cfg.Storage.AuditDB != "/srv/market/audit.db" {
		t.Errorf("Storage.AuditDB = %q, want %q", cfg.Storage.AuditDB, "/srv/market/audit.db")
	}

	// -- Server --
	if cfg.Server.Host != "127.0.0.1" || cfg.Server.Port != 8088 {
		t.Errorf("Server = %+v, want 127.0.0.1:8088", cfg.Server)
	}
	if cfg.Server.GRPCPort != -1 {
		t.Errorf("Server.GRPCPort = %d, want -1", cfg.Server.GRPCPort)
	}

	// -- Alpaca --
	if !cfg.HasAlpaca() || cfg.Alpaca.Feed != "sip" {
		t.Errorf("Alpaca = %+v, want credentials and sip feed", cfg.Alpaca)
	}
	if cfg.Alpaca.RateLimitPerMin != 200 {
		t.Errorf("Alpaca.RateLimitPerMin = %d, want default 200", cfg.Alpaca.RateLimitPerMin)
	}

	// -- Logging --
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" || cfg.Logging.Dir != "/var/log/mdwindow" {
		t.Errorf("Logging = %+v", cfg.Logging)
	}

	// -- Estimator --
	if cfg.Estimator.MinuteBytesPerRow != 100 || cfg.Estimator.TickBytesPerRow != 232 {
		t.Errorf("Estimator = %+v, want 100/232", cfg.Estimator)
	}
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "data" {
		t.Errorf("Storage.DataDir = %q, want %q", cfg.Storage.DataDir, "data")
	}
	if cfg.Server.Port != 8080 || cfg.Server.GRPCPort != 9090 || cfg.Logging.Level != "info" || cfg.Logging.Format != "text" {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.HasAlpaca() {
		t.Error("HasAlpaca() should be false without credentials")
	}
}

func TestLoadKeepsExplicitZero(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "server:\n  grpc_port: 0\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Server.GRPCPort != 0 {
		t.Errorf("Server.GRPCPort = %d, want 0 from the file", cfg.Server.GRPCPort)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want default 8080", cfg.Server.Port)
	}
}

func TestLoadEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "storage:\n  data_dir: /from/file\n")

	t.Setenv("USER_DATA_PATH", "/from/user-data-path")
	t.Setenv("AUDIT_DB", "/tmp/audit.db")
	t.Setenv("MDWINDOW_PORT", "9999")
	t.Setenv("LOG_LEVEL", "warn")
	t.Setenv("APCA_API_KEY_ID", "env-key")
	t.Setenv("APCA_API_SECRET_KEY", "env-secret")
	t.Setenv("ALPACA_BASE_URL", "https://paper-api.alpaca.markets")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() returned error: %v", err)
	}
	if cfg.Storage.DataDir != "/from/user-data-path" {
		t.Errorf("Storage.DataDir = %q, want USER_DATA_PATH", cfg.Storage.DataDir)
	}
	if cfg.Storage.AuditDB != "/tmp/audit.db" || cfg.Server.Port != 9999 || cfg.Logging.Level != "warn" {
		t.Errorf("env overrides not applied: %+v", cfg)
	}
	if cfg.Alpaca.BaseURL != "https://paper-api.alpaca.markets" {
		t.Errorf("Alpaca.BaseURL = %q, want ALPACA_BASE_URL", cfg.Alpaca.BaseURL)
	}
	if cfg.Alpaca.APIKey != "env-key" || cfg.Alpaca.APISecret != "env-secret" {
		t.Errorf("Alpaca credentials = %q/%q, want env values", cfg.Alpaca.APIKey, cfg.Alpaca.APISecret)
	}

	t.Setenv("DATA_DIR", "/from/data-dir")
	cfg, err = Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Storage.DataDir != "/from/data-dir" {
		t.Errorf("DATA_DIR should win over USER_DATA_PATH, got %q", cfg.Storage.DataDir)
	}
}

func TestLoadInvalid(t *testing.T) {
	clearEnv(t)

	bad := writeConfig(t, "logging:\n  level: loud\n")
	if _, err := Load(bad); err == nil || !strings.Contains(err.Error(), "invalid config") {
		t.Errorf("Load(bad level) error = %v, want validation error", err)
	}

	broken := writeConfig(t, "storage: [unclosed\n")
	if _, err := Load(broken); err == nil {
		t.Error("Load(broken yaml) should fail")
	}
}

func TestPath(t *testing.T) {
	t.Setenv("MDWINDOW_CONFIG", "")
	if Path() != DefaultPath {
		t.Errorf("Path() = %q, want %q", Path(), DefaultPath)
	}
	t.Setenv("MDWINDOW_CONFIG", "/etc/mdwindow.yaml")
	if Path() != "/etc/mdwindow.yaml" {
		t.Errorf("Path() = %q, want /etc/mdwindow.yaml", Path())
	}
}
