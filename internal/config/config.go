package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
)

// Build-time variables injected via -ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

// Config holds all control-plane configuration loaded from environment
// variables.
type Config struct {
	// ProviderEndpoint is the base URL of the cloud provider API.
	ProviderEndpoint string

	// ProviderAPIKey authenticates against the provider.
	ProviderAPIKey string

	// TenancyID is the root compartment all tenant boundaries live under.
	TenancyID string

	// Region is the provider region this control plane manages.
	Region string

	// SealingKey is the hex-encoded 256-bit key for credential sealing.
	SealingKey string

	// LedgerDir is the badger directory for the resource ledger.
	LedgerDir string

	// NATSURL is the broker the mailer listens on.
	NATSURL string

	// ServiceSecret authenticates inbound control-plane calls.
	ServiceSecret string

	// Port is the HTTP listen port.
	Port int

	// FallbackShapes is the platform-wide shape fallback priority order.
	FallbackShapes []string

	// LogDir is the directory for log files.
	LogDir string

	// Debug enables verbose logging.
	Debug bool
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Region:    "eu-frankfurt-1",
		LedgerDir: "/var/lib/qudata/control",
		LogDir:    "/var/log/qudata",
		NATSURL:   "nats://127.0.0.1:4222",
		Port:      8090,
		FallbackShapes: []string{
			"VM.Standard.E4.Flex",
			"VM.Standard.E3.Flex",
			"VM.Standard3.Flex",
			"VM.Standard.E2.4",
			"VM.Standard2.2",
		},
	}
}

// Load reads configuration from environment variables, applying defaults
// for anything not explicitly set. Returns an error if required values
// are missing or malformed.
func Load() (*Config, error) {
	cfg := DefaultConfig()

	cfg.ProviderEndpoint = strings.TrimSpace(os.Getenv("CONTROL_PROVIDER_ENDPOINT"))
	if cfg.ProviderEndpoint == "" {
		return nil, fmt.Errorf("CONTROL_PROVIDER_ENDPOINT is required")
	}

	cfg.ProviderAPIKey = strings.TrimSpace(os.Getenv("CONTROL_PROVIDER_API_KEY"))
	if cfg.ProviderAPIKey == "" {
		return nil, fmt.Errorf("CONTROL_PROVIDER_API_KEY is required")
	}

	cfg.TenancyID = strings.TrimSpace(os.Getenv("CONTROL_TENANCY_ID"))
	if cfg.TenancyID == "" {
		return nil, fmt.Errorf("CONTROL_TENANCY_ID is required")
	}

	cfg.SealingKey = strings.TrimSpace(os.Getenv("CONTROL_SEALING_KEY"))
	if cfg.SealingKey == "" {
		return nil, fmt.Errorf("CONTROL_SEALING_KEY is required")
	}

	cfg.ServiceSecret = strings.TrimSpace(os.Getenv("CONTROL_SERVICE_SECRET"))

	if v := os.Getenv("CONTROL_REGION"); v != "" {
		cfg.Region = v
	}

	if v := os.Getenv("CONTROL_LEDGER_DIR"); v != "" {
		cfg.LedgerDir = v
	}

	if v := os.Getenv("CONTROL_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}

	if v := os.Getenv("CONTROL_NATS_URL"); v != "" {
		cfg.NATSURL = v
	}

	if v := os.Getenv("CONTROL_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("CONTROL_PORT must be numeric: %w", err)
		}
		cfg.Port = port
	}

	if v := os.Getenv("CONTROL_FALLBACK_SHAPES"); v != "" {
		shapes := strings.Split(v, ",")
		cfg.FallbackShapes = cfg.FallbackShapes[:0]
		for _, s := range shapes {
			if s = strings.TrimSpace(s); s != "" {
				cfg.FallbackShapes = append(cfg.FallbackShapes, s)
			}
		}
	}

	cfg.Debug = os.Getenv("CONTROL_DEBUG") == "true"

	return cfg, nil
}

// NewLogger creates a structured logger that writes JSON to a log file.
func NewLogger(cfg *Config, name string) (*slog.Logger, error) {
	if err := os.MkdirAll(cfg.LogDir, 0o755); err != nil {
		return nil, fmt.Errorf("create log dir: %w", err)
	}

	logPath := cfg.LogDir + "/" + name + ".log"
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file %s: %w", logPath, err)
	}

	level := slog.LevelInfo
	if cfg.Debug {
		level = slog.LevelDebug
	}

	handler := slog.NewJSONHandler(file, &slog.HandlerOptions{Level: level})
	return slog.New(handler), nil
}
