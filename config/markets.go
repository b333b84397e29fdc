package config

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Markets declares the token whitelist applied at boot. The file is TOML so
// the table of markets stays reviewable in deployment repos.
type Markets struct {
	Tokens []MarketToken `toml:"Tokens"`
}

// MarketToken is one whitelisted asset row.
type MarketToken struct {
	Symbol             string `toml:"Symbol"`
	Address            string `toml:"Address"`
	Decimals           uint64 `toml:"Decimals"`
	Weight             uint64 `toml:"Weight"`
	MinProfitBps       uint64 `toml:"MinProfitBps"`
	MaxUsdgAmount      string `toml:"MaxUsdgAmount"`
	BufferAmount       string `toml:"BufferAmount"`
	MaxGlobalShortSize string `toml:"MaxGlobalShortSize"`
	IsStable           bool   `toml:"IsStable"`
	IsShortable        bool   `toml:"IsShortable"`
}

// LoadMarkets reads and validates the markets file. Unknown keys are
// rejected so typos surface at boot rather than as silently-missing caps.
func LoadMarkets(path string) (*Markets, error) {
	markets := &Markets{}
	meta, err := toml.DecodeFile(path, markets)
	if err != nil {
		return nil, fmt.Errorf("parse markets file: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, 0, len(undecoded))
		for _, key := range undecoded {
			keys = append(keys, key.String())
		}
		return nil, fmt.Errorf("unknown keys in markets file: %s", strings.Join(keys, ", "))
	}
	seen := make(map[string]bool, len(markets.Tokens))
	for _, token := range markets.Tokens {
		if strings.TrimSpace(token.Address) == "" {
			return nil, fmt.Errorf("market %q missing address", token.Symbol)
		}
		addr := strings.ToLower(strings.TrimSpace(token.Address))
		if seen[addr] {
			return nil, fmt.Errorf("duplicate market address %s", token.Address)
		}
		seen[addr] = true
		if token.Decimals == 0 || token.Decimals > 30 {
			return nil, fmt.Errorf("market %q has invalid decimals %d", token.Symbol, token.Decimals)
		}
	}
	return markets, nil
}
