package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is used when MDWINDOW_CONFIG is unset.
const DefaultPath = "config/mdwindow.yaml"

// ---------------------------------------------------------------------------
// Configuration structs
// ---------------------------------------------------------------------------

// Config is the top-level configuration for the mdwindow services.
type Config struct {
	Storage   Storage   `yaml:"storage"`
	Server    Server    `yaml:"server"`
	Alpaca    Alpaca    `yaml:"alpaca"`
	Logging   Logging   `yaml:"logging"`
	Estimator Estimator `yaml:"estimator"`
}

// Storage holds the data root and the audit database path.
type Storage struct {
	DataDir string `yaml:"data_dir" default:"data" validate:"required"`
	AuditDB string `yaml:"audit_db" default:"data/mdwindow.db"`
}

// Server holds network listener configuration. A negative GRPCPort disables
// the gRPC listener.
type Server struct {
	Host     string `yaml:"host" default:"0.0.0.0"`
	Port     int    `yaml:"port" default:"8080" validate:"min=1,max=65535"`
	GRPCPort int    `yaml:"grpc_port" default:"9090" validate:"min=-1,max=65535"`
}

// Alpaca holds credentials and endpoints for the Alpaca market data API.
type Alpaca struct {
	APIKey          string `yaml:"api_key"`
	APISecret       string `yaml:"api_secret"`
	BaseURL         string `yaml:"base_url"` // trading API, used for the asset list
	DataURL         string `yaml:"data_url"`
	Feed            string `yaml:"feed" default:"iex" validate:"oneof=iex sip delayed_sip otc"`
	RateLimitPerMin int    `yaml:"rate_limit_per_min" default:"200" validate:"gt=0"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"text" validate:"oneof=text json"`
	Dir    string `yaml:"dir"`
}

// Estimator holds the average bytes per row used for intraday row estimates.
type Estimator struct {
	MinuteBytesPerRow int64 `yaml:"minute_bytes_per_row" default:"120" validate:"gt=0"`
	TickBytesPerRow   int64 `yaml:"tick_bytes_per_row" default:"232" validate:"gt=0"`
}

// HasAlpaca reports whether live market data credentials are configured.
func (c *Config) HasAlpaca() bool {
	return c.Alpaca.APIKey != "" && c.Alpaca.APISecret != ""
}

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

var validate = validator.New()

// Path returns the config path from MDWINDOW_CONFIG, or DefaultPath.
func Path() string {
	if p := os.Getenv("MDWINDOW_CONFIG"); p != "" {
		return p
	}
	return DefaultPath
}

// Load fills defaults, overlays the YAML configuration file at the given
// path and then environment variable overrides, and validates the result.
// Defaults come first so explicit zero values in the file survive. A missing
// file is not an error: defaults and the environment apply.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, err
	}

	applyEnvOverrides(cfg)

	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("USER_DATA_PATH"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("AUDIT_DB"); v != "" {
		cfg.Storage.AuditDB = v
	}

	if v := os.Getenv("MDWINDOW_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}

	if v := os.Getenv("ALPACA_BASE_URL"); v != "" {
		cfg.Alpaca.BaseURL = v
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("ALPACA_FEED"); v != "" {
		cfg.Alpaca.Feed = v
	}

	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LOG_DIR"); v != "" {
		cfg.Logging.Dir = v
	}

	// Standard Alpaca env vars, as read by the SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
