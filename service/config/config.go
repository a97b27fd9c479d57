package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"
)

const (
	minProviderPollInterval = 100 * time.Millisecond
	maxRecentBlockWindow    = 128
)

// Config holds all application configuration loaded from environment variables.
// All required fields are validated at startup to ensure fail-fast behavior.
type Config struct {
	// Server configuration
	ServerAddr string
	LogLevel   string

	// Chain reads
	EthRPCURL string

	// Wallet provider; empty means no provider is injected
	WalletProviderURL    string
	ProviderPollInterval time.Duration

	// Indexing API; an empty key disables it
	EtherscanAPIURL string
	EtherscanAPIKey string

	// NATS configuration; empty disables publishing and the SSE stream
	NATSURL string

	// Recent-activity scan
	RecentBlockWindow int
}

// IndexerEnabled reports whether the Etherscan indexing API should be used.
func (c *Config) IndexerEnabled() bool {
	return c.EtherscanAPIKey != ""
}

// Load reads configuration from environment variables and validates all required fields.
// Returns an error if any required configuration is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{}
	var errs []error

	cfg.ServerAddr = getEnvOrDefault("SERVER_ADDR", ":8080")
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.EthRPCURL = os.Getenv("ETH_RPC_URL")
	if cfg.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("ETH_RPC_URL is required"))
	} else if err := validateURL("ETH_RPC_URL", cfg.EthRPCURL); err != nil {
		errs = append(errs, err)
	}

	cfg.WalletProviderURL = os.Getenv("WALLET_PROVIDER_URL")
	if cfg.WalletProviderURL != "" {
		if err := validateURL("WALLET_PROVIDER_URL", cfg.WalletProviderURL); err != nil {
			errs = append(errs, err)
		}
	}

	pollInterval, err := parseDuration("PROVIDER_POLL_INTERVAL", "2s")
	if err != nil {
		errs = append(errs, err)
	} else if pollInterval < minProviderPollInterval {
		errs = append(errs, fmt.Errorf("PROVIDER_POLL_INTERVAL must be at least %v", minProviderPollInterval))
	} else {
		cfg.ProviderPollInterval = pollInterval
	}

	cfg.EtherscanAPIURL = getEnvOrDefault("ETHERSCAN_API_URL", "https://api.etherscan.io/v2/api")
	cfg.EtherscanAPIKey = os.Getenv("ETHERSCAN_API_KEY")

	cfg.NATSURL = os.Getenv("NATS_URL")

	window, err := parseInt("RECENT_BLOCK_WINDOW", 10)
	if err != nil {
		errs = append(errs, err)
	} else if window < 1 || window > maxRecentBlockWindow {
		errs = append(errs, fmt.Errorf("RECENT_BLOCK_WINDOW must be between 1 and %d, got %d", maxRecentBlockWindow, window))
	} else {
		cfg.RecentBlockWindow = window
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %v", errs)
	}

	return cfg, nil
}

// MustLoad is like Load but panics if configuration is invalid.
// Useful for server initialization where misconfiguration should halt startup.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(fmt.Sprintf("failed to load configuration: %v", err))
	}
	return cfg
}

// Validate checks if the configuration is valid.
// This is useful for testing configuration without loading from env.
func (c *Config) Validate() error {
	var errs []error

	if c.EthRPCURL == "" {
		errs = append(errs, fmt.Errorf("EthRPCURL is required"))
	}

	if c.WalletProviderURL != "" && c.ProviderPollInterval < minProviderPollInterval {
		errs = append(errs, fmt.Errorf("ProviderPollInterval must be at least %v", minProviderPollInterval))
	}

	if c.IndexerEnabled() && c.EtherscanAPIURL == "" {
		errs = append(errs, fmt.Errorf("EtherscanAPIURL is required when an API key is set"))
	}

	if c.RecentBlockWindow < 1 || c.RecentBlockWindow > maxRecentBlockWindow {
		errs = append(errs, fmt.Errorf("RecentBlockWindow must be between 1 and %d", maxRecentBlockWindow))
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

// getEnvOrDefault returns the environment variable value or a default if not set.
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// parseDuration parses a duration from an environment variable or uses a default.
func parseDuration(key, defaultValue string) (time.Duration, error) {
	value := getEnvOrDefault(key, defaultValue)
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", key, value, err)
	}
	return duration, nil
}

// parseInt parses an integer from an environment variable or uses a default.
func parseInt(key string, defaultValue int) (int, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	result, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid integer %q: %w", key, value, err)
	}
	return result, nil
}

// validateURL checks that value is an absolute URL.
func validateURL(key, value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("%s: invalid URL %q", key, value)
	}
	return nil
}
