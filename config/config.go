package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration to support YAML unmarshalling.
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses human readable duration strings.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value == nil {
		return nil
	}
	if value.Kind != yaml.ScalarNode {
		return fmt.Errorf("duration must be string")
	}
	raw := value.Value
	if raw == "" {
		d.Duration = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("parse duration %q: %w", raw, err)
	}
	d.Duration = parsed
	return nil
}

// Config captures runtime configuration for vaultd.
type Config struct {
	ListenAddress string        `yaml:"listen"`
	DataDir       string        `yaml:"data_dir"`
	JournalPath   string        `yaml:"journal"`
	MarketsFile   string        `yaml:"markets"`
	AdminToken    string        `yaml:"admin_token"`
	VaultAddress  string        `yaml:"vault_address"`
	GovAddress    string        `yaml:"gov_address"`
	RouterAddress string        `yaml:"router_address"`
	UsdgAddress   string        `yaml:"usdg_address"`
	Fees          FeesConfig    `yaml:"fees"`
	Funding       FundingConfig `yaml:"funding"`
	Snapshot      SnapshotConfig `yaml:"snapshot"`
	QueryRateLimit RateLimitConfig `yaml:"query_rate_limit"`
}

// RateLimitConfig throttles the public query routes per client.
type RateLimitConfig struct {
	RequestsPerMinute float64 `yaml:"requests_per_minute"`
	Burst             int     `yaml:"burst"`
}

// FeesConfig carries the fee schedule applied at boot.
type FeesConfig struct {
	TaxBasisPoints           uint64 `yaml:"tax_bps"`
	StableTaxBasisPoints     uint64 `yaml:"stable_tax_bps"`
	MintBurnFeeBasisPoints   uint64 `yaml:"mint_burn_fee_bps"`
	SwapFeeBasisPoints       uint64 `yaml:"swap_fee_bps"`
	StableSwapFeeBasisPoints uint64 `yaml:"stable_swap_fee_bps"`
	MarginFeeBasisPoints     uint64 `yaml:"margin_fee_bps"`
	LiquidationFeeUsd        string `yaml:"liquidation_fee_usd"`
	MinProfitTime            Duration `yaml:"min_profit_time"`
	HasDynamicFees           bool   `yaml:"dynamic_fees"`
}

// FundingConfig carries the funding accrual parameters applied at boot.
type FundingConfig struct {
	Interval         Duration `yaml:"interval"`
	RateFactor       uint64   `yaml:"rate_factor"`
	StableRateFactor uint64   `yaml:"stable_rate_factor"`
}

// SnapshotConfig controls periodic state persistence.
type SnapshotConfig struct {
	Interval Duration `yaml:"interval"`
}

// Load reads and validates the vaultd configuration file.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8547"
	}
	if strings.TrimSpace(c.DataDir) == "" {
		c.DataDir = "./vaultd-data"
	}
	if c.Funding.Interval.Duration == 0 {
		c.Funding.Interval.Duration = 8 * time.Hour
	}
	if c.Snapshot.Interval.Duration == 0 {
		c.Snapshot.Interval.Duration = time.Minute
	}
}

func (c *Config) validate() error {
	if c.Funding.Interval.Duration < time.Hour {
		return fmt.Errorf("funding interval must be at least one hour")
	}
	if strings.TrimSpace(c.VaultAddress) == "" {
		return fmt.Errorf("vault_address is required")
	}
	if strings.TrimSpace(c.GovAddress) == "" {
		return fmt.Errorf("gov_address is required")
	}
	if strings.TrimSpace(c.UsdgAddress) == "" {
		return fmt.Errorf("usdg_address is required")
	}
	return nil
}
