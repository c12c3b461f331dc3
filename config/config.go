package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"
)

// Duration wraps time.Duration so TOML files can carry values like "10s".
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler for TOML decoding.
func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(strings.TrimSpace(string(text)))
	if err != nil {
		return err
	}
	d.Duration = parsed
	return nil
}

type Config struct {
	Service    ServiceConfig    `toml:"Service"`
	Server     ServerConfig     `toml:"Server"`
	Auth       AuthConfig       `toml:"Auth"`
	RateLimit  RateLimitConfig  `toml:"RateLimit"`
	Telemetry  TelemetryConfig  `toml:"Telemetry"`
	Storage    StorageConfig    `toml:"Storage"`
	Pool       PoolConfig       `toml:"Pool"`
	Stable     StableConfig     `toml:"Stable"`
	Collateral []CollateralSeed `toml:"Collateral"`
	AmoVaults  []AmoVaultSeed   `toml:"AmoVault"`
}

type ServiceConfig struct {
	Name        string `toml:"Name"`
	Environment string `toml:"Environment"`
	LogLevel    string `toml:"LogLevel"`
}

type ServerConfig struct {
	Listen          string   `toml:"Listen"`
	ReadTimeout     Duration `toml:"ReadTimeout"`
	WriteTimeout    Duration `toml:"WriteTimeout"`
	ShutdownTimeout Duration `toml:"ShutdownTimeout"`
}

type AuthConfig struct {
	Enabled    bool   `toml:"Enabled"`
	HMACSecret string `toml:"HMACSecret"`
	Issuer     string `toml:"Issuer"`
	Audience   string `toml:"Audience"`
	ScopeClaim string `toml:"ScopeClaim"`
}

type RateLimitConfig struct {
	Enabled           bool    `toml:"Enabled"`
	RequestsPerSecond float64 `toml:"RequestsPerSecond"`
	Burst             int     `toml:"Burst"`
}

type TelemetryConfig struct {
	Endpoint string `toml:"Endpoint"`
	Insecure bool   `toml:"Insecure"`
	Metrics  bool   `toml:"Metrics"`
	Traces   bool   `toml:"Traces"`
}

type StorageConfig struct {
	StatePath string `toml:"StatePath"`
	AuditDSN  string `toml:"AuditDSN"`
}

type PoolConfig struct {
	Admin                string   `toml:"Admin"`
	PoolAddress          string   `toml:"PoolAddress"`
	MintPriceThreshold   uint64   `toml:"MintPriceThreshold"`
	RedeemPriceThreshold uint64   `toml:"RedeemPriceThreshold"`
	RedemptionDelay      uint64   `toml:"RedemptionDelay"`
	PriceMaxAge          Duration `toml:"PriceMaxAge"`
}

type StableConfig struct {
	Address string `toml:"Address"`
	Symbol  string `toml:"Symbol"`
}

// CollateralSeed lists one collateral the daemon registers on first start.
type CollateralSeed struct {
	Address       string `toml:"Address"`
	Symbol        string `toml:"Symbol"`
	Decimals      uint8  `toml:"Decimals"`
	Ceiling       string `toml:"Ceiling"`
	Enabled       bool   `toml:"Enabled"`
	MintingFee    uint64 `toml:"MintingFee"`
	RedemptionFee uint64 `toml:"RedemptionFee"`
}

// AmoVaultSeed lists one amo vault registered as a borrower on first start.
type AmoVaultSeed struct {
	Address         string `toml:"Address"`
	CollateralIndex uint64 `toml:"CollateralIndex"`
}

// Load reads and validates a daemon configuration file.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	meta, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config: decode %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("config: unknown key %q in %s", undecoded[0].String(), path)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.Service.Name) == "" {
		c.Service.Name = "poold"
	}
	if strings.TrimSpace(c.Service.LogLevel) == "" {
		c.Service.LogLevel = "info"
	}
	if strings.TrimSpace(c.Server.Listen) == "" {
		c.Server.Listen = ":8475"
	}
	if c.Server.ReadTimeout.Duration <= 0 {
		c.Server.ReadTimeout.Duration = 10 * time.Second
	}
	if c.Server.WriteTimeout.Duration <= 0 {
		c.Server.WriteTimeout.Duration = 15 * time.Second
	}
	if c.Server.ShutdownTimeout.Duration <= 0 {
		c.Server.ShutdownTimeout.Duration = 10 * time.Second
	}
	if strings.TrimSpace(c.Auth.ScopeClaim) == "" {
		c.Auth.ScopeClaim = "scope"
	}
	if c.RateLimit.RequestsPerSecond <= 0 {
		c.RateLimit.RequestsPerSecond = 20
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 40
	}
	if strings.TrimSpace(c.Storage.StatePath) == "" {
		c.Storage.StatePath = "./data/pool"
	}
	if strings.TrimSpace(c.Storage.AuditDSN) == "" {
		c.Storage.AuditDSN = "file:poold.db?_pragma=busy_timeout(5000)"
	}
	if c.Pool.MintPriceThreshold == 0 {
		c.Pool.MintPriceThreshold = 1_000_000
	}
	if c.Pool.RedeemPriceThreshold == 0 {
		c.Pool.RedeemPriceThreshold = 1_000_000
	}
	if c.Pool.PriceMaxAge.Duration <= 0 {
		c.Pool.PriceMaxAge.Duration = 5 * time.Minute
	}
	if strings.TrimSpace(c.Stable.Symbol) == "" {
		c.Stable.Symbol = "USDP"
	}
}

// Validate checks the configuration for internally consistent values.
func (c *Config) Validate() error {
	if !common.IsHexAddress(c.Pool.Admin) {
		return fmt.Errorf("config: Pool.Admin must be a hex address")
	}
	if !common.IsHexAddress(c.Pool.PoolAddress) {
		return fmt.Errorf("config: Pool.PoolAddress must be a hex address")
	}
	if !common.IsHexAddress(c.Stable.Address) {
		return fmt.Errorf("config: Stable.Address must be a hex address")
	}
	if c.Auth.Enabled && strings.TrimSpace(c.Auth.HMACSecret) == "" {
		return fmt.Errorf("config: Auth.HMACSecret required when auth is enabled")
	}
	seen := make(map[string]struct{}, len(c.Collateral))
	for i, seed := range c.Collateral {
		if !common.IsHexAddress(seed.Address) {
			return fmt.Errorf("config: Collateral[%d].Address must be a hex address", i)
		}
		key := strings.ToLower(seed.Address)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("config: duplicate collateral address %s", seed.Address)
		}
		seen[key] = struct{}{}
		if seed.Decimals > 18 {
			return fmt.Errorf("config: Collateral[%d].Decimals must be <= 18", i)
		}
		if strings.TrimSpace(seed.Symbol) == "" {
			return fmt.Errorf("config: Collateral[%d].Symbol required", i)
		}
	}
	for i, vault := range c.AmoVaults {
		if !common.IsHexAddress(vault.Address) {
			return fmt.Errorf("config: AmoVault[%d].Address must be a hex address", i)
		}
		if int(vault.CollateralIndex) >= len(c.Collateral) {
			return fmt.Errorf("config: AmoVault[%d].CollateralIndex out of range", i)
		}
	}
	return nil
}
