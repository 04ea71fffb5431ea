package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"workmesh/native/fees"
)

// Config describes one marketplace instance: where state lives, which
// addresses hold the privileged roles, the active fee rates and the buyback
// route. Addresses are 20-byte values in hex, with or without a 0x prefix.
type Config struct {
	DataDir        string `toml:"DataDir"`
	MetricsAddress string `toml:"MetricsAddress"`
	LogLevel       string `toml:"LogLevel"`
	LogFile        string `toml:"LogFile"`
	Environment    string `toml:"Environment"`

	OwnerAddress      string `toml:"OwnerAddress"`
	ArbitratorAddress string `toml:"ArbitratorAddress"`
	TreasuryAddress   string `toml:"TreasuryAddress"`

	AssetFeeBps uint32 `toml:"AssetFeeBps"`
	TokenFeeBps uint32 `toml:"TokenFeeBps"`

	BuybackIntermediate string `toml:"BuybackIntermediate"`

	PausedModules []string `toml:"PausedModules"`
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
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./wmesh-data"
	}
	if strings.TrimSpace(c.MetricsAddress) == "" {
		c.MetricsAddress = ":9480"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if c.PausedModules == nil {
		c.PausedModules = []string{}
	}
}

// Validate checks address formats and fee bounds.
func (c *Config) Validate() error {
	if _, err := DecodeAddress(c.TreasuryAddress); err != nil {
		return fmt.Errorf("config: TreasuryAddress: %w", err)
	}
	if _, err := DecodeAddress(c.ArbitratorAddress); err != nil {
		return fmt.Errorf("config: ArbitratorAddress: %w", err)
	}
	if _, err := DecodeAddress(c.OwnerAddress); err != nil {
		return fmt.Errorf("config: OwnerAddress: %w", err)
	}
	if err := c.FeeConfig().Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// FeeConfig returns the fee rates the escrow engine starts with.
func (c *Config) FeeConfig() fees.Config {
	return fees.Config{AssetFeeBps: c.AssetFeeBps, TokenFeeBps: c.TokenFeeBps}
}

// IsPaused reports whether the named module is listed as suspended. It
// satisfies the pause view consulted by the fund-moving engines.
func (c *Config) IsPaused(module string) bool {
	if c == nil {
		return false
	}
	for _, paused := range c.PausedModules {
		if strings.EqualFold(strings.TrimSpace(paused), module) {
			return true
		}
	}
	return false
}

// DecodeAddress parses a 20-byte hex address. The empty string decodes to the
// zero address so optional roles can stay unset.
func DecodeAddress(value string) ([20]byte, error) {
	var addr [20]byte
	trimmed := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(value), "0x"))
	if trimmed == "" {
		return addr, nil
	}
	raw, err := hex.DecodeString(trimmed)
	if err != nil {
		return addr, fmt.Errorf("invalid hex address %q: %w", value, err)
	}
	if len(raw) != 20 {
		return addr, fmt.Errorf("address %q must be 20 bytes, got %d", value, len(raw))
	}
	copy(addr[:], raw)
	return addr, nil
}

// createDefault creates and saves a default configuration file.
func createDefault(path string) (*Config, error) {
	cfg := &Config{
		DataDir:        "./wmesh-data",
		MetricsAddress: ":9480",
		LogLevel:       "info",
		Environment:    "local",
		AssetFeeBps:    1_000,
		TokenFeeBps:    200,
		PausedModules:  []string{},
	}
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	dir := filepath.Dir(path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_TRUNC|os.O_CREATE, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(cfg)
}
