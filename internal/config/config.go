// Package config loads gateway configuration from the environment, with an
// optional .env file and YAML overlay for deployments that prefer files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/omnidex/swapgate/internal/chains"
)

// Config is the process configuration. API keys are adapter credentials and
// must never be logged.
type Config struct {
	Port       int    `yaml:"port"`
	CORSOrigin string `yaml:"corsOrigin"`

	// RPCURLs maps EVM chain id to its JSON-RPC endpoint.
	RPCURLs map[uint64]string `yaml:"rpcUrls"`

	ZeroXAPIKey      string `yaml:"-"`
	LiFiAPIKey       string `yaml:"-"`
	SocketAPIKey     string `yaml:"-"`
	RangoAPIKey      string `yaml:"-"`
	RouterAPIKey     string `yaml:"-"`
	JupiterAPIKey    string `yaml:"-"`
	OdosReferralCode string `yaml:"odosReferralCode"`

	// RateLimit is the inbound per-IP budget per RateWindow.
	RateLimit  int           `yaml:"rateLimit"`
	RateWindow time.Duration `yaml:"rateWindow"`
}

// Load reads configuration: defaults, then an optional YAML file named by
// SWAPGATE_CONFIG, then environment variables (which always win). A .env file
// in the working directory is honoured when present.
func Load() (*Config, error) {
	// Missing .env is the common case in production.
	_ = godotenv.Load()

	cfg := &Config{
		Port:       8080,
		CORSOrigin: "*",
		RPCURLs:    make(map[uint64]string),
		RateLimit:  100,
		RateWindow: 60 * time.Second,
	}

	if path := os.Getenv("SWAPGATE_CONFIG"); path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if v := os.Getenv("PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid PORT %q: %w", v, err)
		}
		cfg.Port = port
	}
	if v := os.Getenv("CORS_ORIGIN"); v != "" {
		cfg.CORSOrigin = v
	}

	for _, chainID := range chains.Known() {
		envVar, ok := chains.RPCEnvVar(chainID)
		if !ok {
			continue
		}
		if v := os.Getenv(envVar); v != "" {
			cfg.RPCURLs[chainID] = v
		}
	}

	cfg.ZeroXAPIKey = firstNonEmpty(os.Getenv("ZEROX_API_KEY"), cfg.ZeroXAPIKey)
	cfg.LiFiAPIKey = firstNonEmpty(os.Getenv("LIFI_API_KEY"), cfg.LiFiAPIKey)
	cfg.SocketAPIKey = firstNonEmpty(os.Getenv("SOCKET_API_KEY"), cfg.SocketAPIKey)
	cfg.RangoAPIKey = firstNonEmpty(os.Getenv("RANGO_API_KEY"), cfg.RangoAPIKey)
	cfg.RouterAPIKey = firstNonEmpty(os.Getenv("ROUTER_API_KEY"), cfg.RouterAPIKey)
	cfg.JupiterAPIKey = firstNonEmpty(os.Getenv("JUPITER_API_KEY"), cfg.JupiterAPIKey)
	cfg.OdosReferralCode = firstNonEmpty(os.Getenv("ODOS_REFERRAL_CODE"), cfg.OdosReferralCode)

	return cfg, nil
}

// RPCURL returns the configured endpoint for a chain.
func (c *Config) RPCURL(chainID uint64) (string, bool) {
	url, ok := c.RPCURLs[chainID]
	return url, ok
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
