package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration loaded from environment variables.
// It is the single source of truth for runtime parameters.
type Config struct {
	Env string

	IAP    IAPConfig
	Verify VerifyConfig
	Worker WorkerConfig
}

// IAPConfig identifies the application against the store.
type IAPConfig struct {
	BundleID     string
	SharedSecret string // only needed for auto-renewable subscription receipts
}

// VerifyConfig contains receipt-verification endpoint parameters. The URLs
// are overridable so tests and staging setups can point at a local server.
type VerifyConfig struct {
	ReceiptPath   string
	ProductionURL string
	SandboxURL    string
	Timeout       time.Duration
}

// WorkerConfig contains interval configuration for background workers.
type WorkerConfig struct {
	RefreshInterval time.Duration
}

// Load reads configuration from environment variables. If a .env file exists
// in the working directory, it will be loaded first. It returns a populated
// Config or an error with a human-friendly message.
func Load() (*Config, error) {
	// Load .env if present; ignore error if file is missing so that production
	// environments relying solely on real environment variables keep working.
	_ = godotenv.Load()

	cfg := &Config{}

	cfg.Env = getEnv("ENV", "development")

	cfg.IAP = IAPConfig{
		BundleID:     getEnv("IAP_BUNDLE_ID", "com.example.iapdemo"),
		SharedSecret: getEnv("IAP_SHARED_SECRET", ""),
	}

	cfg.Verify = VerifyConfig{
		ReceiptPath:   getEnv("IAP_RECEIPT_PATH", "receipt.dat"),
		ProductionURL: getEnv("IAP_VERIFY_URL", ""),
		SandboxURL:    getEnv("IAP_VERIFY_SANDBOX_URL", ""),
	}

	var err error
	if cfg.Verify.Timeout, err = parseDurationEnv("IAP_HTTP_TIMEOUT", "30s"); err != nil {
		return nil, fmt.Errorf("invalid IAP_HTTP_TIMEOUT: %w", err)
	}
	if cfg.Worker.RefreshInterval, err = parseDurationEnv("IAP_REFRESH_INTERVAL", "1h"); err != nil {
		return nil, fmt.Errorf("invalid IAP_REFRESH_INTERVAL: %w", err)
	}

	return cfg, nil
}

// getEnv returns the value of an environment variable or a default if empty.
func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// parseDurationEnv reads an environment variable and parses it as a
// time.Duration, falling back to the given default when unset.
func parseDurationEnv(key, def string) (time.Duration, error) {
	return time.ParseDuration(getEnv(key, def))
}
