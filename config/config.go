package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config carries the operator-tunable settings for the deployment engine.
type Config struct {
	NodeEndpoint   string  `toml:"NodeEndpoint"`
	APIKeyEnv      string  `toml:"APIKeyEnv"`
	KeystorePath   string  `toml:"KeystorePath"`
	PassphraseEnv  string  `toml:"PassphraseEnv"`
	ExplorerURL    string  `toml:"ExplorerURL"`
	NetworkName    string  `toml:"NetworkName"`
	FeeCeilingSun  int64   `toml:"FeeCeilingSun"`
	PollIntervalMS int64   `toml:"PollIntervalMS"`
	PollAttempts   int     `toml:"PollAttempts"`
	RequestsPerSec float64 `toml:"RequestsPerSec"`
	RequestBurst   int     `toml:"RequestBurst"`
	MaxInFlight    int     `toml:"MaxInFlight"`

	// Estimator overrides; zero values keep the engine defaults.
	EnergyPriceSun    int64 `toml:"EnergyPriceSun"`
	EnergyPerCodeByte int64 `toml:"EnergyPerCodeByte"`
}

// Load loads the configuration from the given path, creating a default file
// when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.NodeEndpoint) == "" {
		c.NodeEndpoint = "http://127.0.0.1:8090"
	}
	if strings.TrimSpace(c.NetworkName) == "" {
		c.NetworkName = "tron-local"
	}
	if strings.TrimSpace(c.ExplorerURL) == "" {
		c.ExplorerURL = "https://tronscan.org/#/transaction/"
	}
	if c.PollIntervalMS <= 0 {
		c.PollIntervalMS = 3000
	}
	if c.PollAttempts <= 0 {
		c.PollAttempts = 40
	}
	if c.RequestsPerSec <= 0 {
		c.RequestsPerSec = 5
	}
	if c.RequestBurst <= 0 {
		c.RequestBurst = 10
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
}

// PollInterval returns the poll interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMS) * time.Millisecond
}

// APIKey resolves the provider API key from the configured environment
// variable; the key never lives in the config file itself.
func (c *Config) APIKey() string {
	if strings.TrimSpace(c.APIKeyEnv) == "" {
		return ""
	}
	return strings.TrimSpace(os.Getenv(c.APIKeyEnv))
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	cfg.KeystorePath = defaultKeystorePath(path)
	cfg.PassphraseEnv = "TRONFORGE_KEYSTORE_PASSPHRASE"
	cfg.APIKeyEnv = "TRONFORGE_API_KEY"

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("config: create directory: %w", err)
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return nil, fmt.Errorf("config: create default file: %w", err)
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, fmt.Errorf("config: write default file: %w", err)
	}
	return cfg, nil
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "keystore.json")
}
