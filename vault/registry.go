package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// SetTokenConfig adds a token to the whitelist or updates an existing entry.
// Weights feed the dynamic fee targets, so the running total is kept exact:
// an update subtracts the old weight before adding the new one. The oracle is
// queried once so a misconfigured feed surfaces at registration rather than
// on the first user operation.
func (v *Vault) SetTokenConfig(token common.Address, decimals, weight, minProfitBps uint64, maxUsdgAmount *big.Int, isStable, isShortable bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()

	// probe the oracle first so a misconfigured feed cannot register
	if _, err := v.maxPrice(token); err != nil {
		return err
	}

	if !v.whitelistedTokens[token] {
		v.whitelistedTokenCount++
		v.allWhitelistedTokens = append(v.allWhitelistedTokens, token)
	}

	v.totalTokenWeights -= v.tokenWeights[token]

	v.whitelistedTokens[token] = true
	v.tokenDecimals[token] = decimals
	v.tokenWeights[token] = weight
	v.minProfitBasisPoints[token] = minProfitBps
	v.maxUsdgAmounts[token] = cloneBig(maxUsdgAmount)
	v.stableTokens[token] = isStable
	v.shortableTokens[token] = isShortable

	v.totalTokenWeights += weight
	return nil
}

// ClearTokenConfig removes a token from the whitelist and releases its weight.
func (v *Vault) ClearTokenConfig(token common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.whitelistedTokens[token] {
		return v.codedError(errTokenNotWhitelisted)
	}
	v.totalTokenWeights -= v.tokenWeights[token]
	delete(v.whitelistedTokens, token)
	delete(v.tokenDecimals, token)
	delete(v.tokenWeights, token)
	delete(v.minProfitBasisPoints, token)
	delete(v.maxUsdgAmounts, token)
	delete(v.stableTokens, token)
	delete(v.shortableTokens, token)
	v.whitelistedTokenCount--
	return nil
}

// AllWhitelistedTokensLength reports how many tokens were ever whitelisted,
// including entries later cleared.
func (v *Vault) AllWhitelistedTokensLength() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return len(v.allWhitelistedTokens)
}

// AllWhitelistedToken returns the registration-ordered token at index.
func (v *Vault) AllWhitelistedToken(index int) (common.Address, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if index < 0 || index >= len(v.allWhitelistedTokens) {
		return common.Address{}, false
	}
	return v.allWhitelistedTokens[index], true
}

// IsWhitelisted reports whether token is currently whitelisted.
func (v *Vault) IsWhitelisted(token common.Address) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.whitelistedTokens[token]
}

// TokenConfigOf returns a copy of the registry record for token.
func (v *Vault) TokenConfigOf(token common.Address) (TokenConfig, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.whitelistedTokens[token] {
		return TokenConfig{}, false
	}
	return TokenConfig{
		Decimals:             v.tokenDecimals[token],
		Weight:               v.tokenWeights[token],
		MinProfitBasisPoints: v.minProfitBasisPoints[token],
		MaxUsdgAmount:        cloneBig(v.maxUsdgAmounts[token]),
		IsStable:             v.stableTokens[token],
		IsShortable:          v.shortableTokens[token],
	}, true
}

// TotalTokenWeights returns the sum of whitelisted token weights.
func (v *Vault) TotalTokenWeights() uint64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.totalTokenWeights
}
