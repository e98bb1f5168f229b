package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// RateLimitConfig is one call-site budget for the sliding-window limiter.
type RateLimitConfig struct {
	Requests      int `toml:"Requests"`
	WindowSeconds int `toml:"WindowSeconds"`
}

// Window returns the configured window as a duration.
func (r RateLimitConfig) Window() time.Duration {
	return time.Duration(r.WindowSeconds) * time.Second
}

// PinningConfig carries pinning service credentials.
type PinningConfig struct {
	BaseURL   string `toml:"BaseURL"`
	JWT       string `toml:"JWT"`
	APIKey    string `toml:"APIKey"`
	APISecret string `toml:"APISecret"`
}

// Config captures runtime configuration for the gateway. It is read once at
// startup; there is no hot reload.
type Config struct {
	ListenAddress   string          `toml:"ListenAddress"`
	Environment     string          `toml:"Environment"`
	RPCEndpoint     string          `toml:"RPCEndpoint"`
	ContractAddress string          `toml:"ContractAddress"`
	ChainID         uint64          `toml:"ChainID"`
	OperatorKey     string          `toml:"OperatorKey"`
	DatabasePath    string          `toml:"DatabasePath"`
	ScanLimit       uint64          `toml:"ScanLimit"`
	ScanConcurrency int             `toml:"ScanConcurrency"`
	ReadLimit       RateLimitConfig `toml:"ReadLimit"`
	MutationLimit   RateLimitConfig `toml:"MutationLimit"`
	UploadLimit     RateLimitConfig `toml:"UploadLimit"`
	Pinning         PinningConfig   `toml:"Pinning"`
}

func defaults() Config {
	return Config{
		ListenAddress:   ":8080",
		Environment:     "dev",
		DatabasePath:    "getmechai.db",
		ScanLimit:       99,
		ScanConcurrency: 8,
		ReadLimit:       RateLimitConfig{Requests: 100, WindowSeconds: 60},
		MutationLimit:   RateLimitConfig{Requests: 20, WindowSeconds: 60},
		UploadLimit:     RateLimitConfig{Requests: 10, WindowSeconds: 60},
	}
}

// Load reads the optional TOML file at path, applies CHAI_* environment
// overrides, and validates the result. An empty path uses defaults plus
// environment only.
func Load(path string) (*Config, error) {
	cfg := defaults()
	if trimmed := strings.TrimSpace(path); trimmed != "" {
		if _, err := toml.DecodeFile(trimmed, &cfg); err != nil {
			return nil, fmt.Errorf("load config %s: %w", trimmed, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyEnv(cfg *Config) error {
	setString(&cfg.ListenAddress, "CHAI_LISTEN")
	setString(&cfg.Environment, "CHAI_ENV")
	setString(&cfg.RPCEndpoint, "CHAI_RPC_ENDPOINT")
	setString(&cfg.ContractAddress, "CHAI_CONTRACT_ADDRESS")
	setString(&cfg.OperatorKey, "CHAI_OPERATOR_KEY")
	setString(&cfg.DatabasePath, "CHAI_DB_PATH")
	setString(&cfg.Pinning.BaseURL, "CHAI_PINATA_BASE_URL")
	setString(&cfg.Pinning.JWT, "CHAI_PINATA_JWT")
	setString(&cfg.Pinning.APIKey, "CHAI_PINATA_API_KEY")
	setString(&cfg.Pinning.APISecret, "CHAI_PINATA_API_SECRET")
	if err := setUint(&cfg.ChainID, "CHAI_CHAIN_ID"); err != nil {
		return err
	}
	if err := setUint(&cfg.ScanLimit, "CHAI_SCAN_LIMIT"); err != nil {
		return err
	}
	if raw := strings.TrimSpace(os.Getenv("CHAI_SCAN_CONCURRENCY")); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			return fmt.Errorf("parse CHAI_SCAN_CONCURRENCY: %w", err)
		}
		cfg.ScanConcurrency = parsed
	}
	return nil
}

func setString(dst *string, key string) {
	if raw := strings.TrimSpace(os.Getenv(key)); raw != "" {
		*dst = raw
	}
}

func setUint(dst *uint64, key string) error {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parsed, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return fmt.Errorf("parse %s: %w", key, err)
	}
	*dst = parsed
	return nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.RPCEndpoint) == "" {
		return errors.New("RPCEndpoint is required")
	}
	if c.ChainID == 0 {
		return errors.New("ChainID is required")
	}
	if c.ScanLimit == 0 {
		return errors.New("ScanLimit must be positive")
	}
	if c.ScanConcurrency <= 0 {
		return errors.New("ScanConcurrency must be positive")
	}
	for _, limit := range []RateLimitConfig{c.ReadLimit, c.MutationLimit, c.UploadLimit} {
		if limit.Requests <= 0 || limit.WindowSeconds <= 0 {
			return errors.New("rate limits must have positive requests and window")
		}
	}
	return nil
}
