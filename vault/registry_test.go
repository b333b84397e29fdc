package vault

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestSetTokenConfigMaintainsWeights(t *testing.T) {
	env := newTestEnv()
	if got := env.vault.TotalTokenWeights(); got != 30_000 {
		t.Fatalf("unexpected total weights: %d", got)
	}

	// updating an existing token swaps its weight, not stacks it
	mustNoErr(env.vault.SetTokenConfig(ethToken, 18, 25_000, 0, big.NewInt(0), false, true))
	if got := env.vault.TotalTokenWeights(); got != 45_000 {
		t.Fatalf("weights not swapped on update: %d", got)
	}

	cfg, ok := env.vault.TokenConfigOf(ethToken)
	if !ok {
		t.Fatalf("token config missing")
	}
	if cfg.Weight != 25_000 || cfg.Decimals != 18 || !cfg.IsShortable {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestClearTokenConfig(t *testing.T) {
	env := newTestEnv()
	mustNoErr(env.vault.ClearTokenConfig(btcToken))

	if env.vault.IsWhitelisted(btcToken) {
		t.Fatalf("token still whitelisted after clear")
	}
	if got := env.vault.TotalTokenWeights(); got != 20_000 {
		t.Fatalf("weight not released: %d", got)
	}
	// the registration history keeps the cleared entry
	if got := env.vault.AllWhitelistedTokensLength(); got != 3 {
		t.Fatalf("unexpected whitelist history length: %d", got)
	}

	if err := env.vault.ClearTokenConfig(btcToken); ErrorCode(err) != errTokenNotWhitelisted {
		t.Fatalf("expected whitelist failure, got %v", err)
	}
}

func TestSetTokenConfigProbesOracle(t *testing.T) {
	env := newTestEnv()
	unknown := common.HexToAddress("0x0000000000000000000000000000000000000999")
	err := env.vault.SetTokenConfig(unknown, 18, 10_000, 0, big.NewInt(0), false, true)
	if err == nil {
		t.Fatalf("expected oracle probe failure")
	}
	var ve *VaultError
	if errors.As(err, &ve) {
		t.Fatalf("expected the oracle's error, got coded %v", err)
	}
	if env.vault.IsWhitelisted(unknown) {
		t.Fatalf("failed registration still whitelisted")
	}
	if got := env.vault.TotalTokenWeights(); got != 30_000 {
		t.Fatalf("failed registration leaked weight: %d", got)
	}
}

func TestWhitelistIteration(t *testing.T) {
	env := newTestEnv()
	want := []common.Address{usdcToken, ethToken, btcToken}
	for i, addr := range want {
		got, ok := env.vault.AllWhitelistedToken(i)
		if !ok || got != addr {
			t.Fatalf("unexpected token at %d: %s", i, got.Hex())
		}
	}
	if _, ok := env.vault.AllWhitelistedToken(3); ok {
		t.Fatalf("out of range index answered")
	}
}
