package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Price adapter over the injected oracle. The includeAmmPrice and
// useSwapPricing hints are transient fields bracketed inside a single locked
// operation; liquidation clears includeAmmPrice so a manipulated AMM leg
// cannot trigger a seize.

func (v *Vault) minPrice(token common.Address) (*big.Int, error) {
	return v.oraclePrice(token, false)
}

func (v *Vault) maxPrice(token common.Address) (*big.Int, error) {
	return v.oraclePrice(token, true)
}

func (v *Vault) oraclePrice(token common.Address, maximise bool) (*big.Int, error) {
	if v.priceFeed == nil {
		return nil, v.codedError(errInvalidPrice)
	}
	price, err := v.priceFeed.GetPrice(token, maximise, v.includeAmmPrice, v.useSwapPricing)
	if err != nil {
		return nil, err
	}
	if price == nil || price.Sign() <= 0 {
		return nil, v.codedError(errInvalidPrice)
	}
	return price, nil
}

// GetMinPrice returns the oracle's minimum price for token at PricePrecision
// scale.
func (v *Vault) GetMinPrice(token common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.minPrice(token)
}

// GetMaxPrice returns the oracle's maximum price for token at PricePrecision
// scale.
func (v *Vault) GetMaxPrice(token common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.maxPrice(token)
}

// tokenToUsdMin values a token amount in USD at the min price.
func (v *Vault) tokenToUsdMin(token common.Address, amount *big.Int) (*big.Int, error) {
	if amount == nil || amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	price, err := v.minPrice(token)
	if err != nil {
		return nil, err
	}
	return mulDiv(amount, price, pow10(v.tokenDecimals[token])), nil
}

// usdToTokenMin converts USD to tokens at the max price, i.e. the smallest
// token amount the USD value is worth.
func (v *Vault) usdToTokenMin(token common.Address, usd *big.Int) (*big.Int, error) {
	if usd == nil || usd.Sign() == 0 {
		return big.NewInt(0), nil
	}
	price, err := v.maxPrice(token)
	if err != nil {
		return nil, err
	}
	return v.usdToToken(token, usd, price), nil
}

// usdToTokenMax converts USD to tokens at the min price, i.e. the largest
// token amount the USD value is worth.
func (v *Vault) usdToTokenMax(token common.Address, usd *big.Int) (*big.Int, error) {
	if usd == nil || usd.Sign() == 0 {
		return big.NewInt(0), nil
	}
	price, err := v.minPrice(token)
	if err != nil {
		return nil, err
	}
	return v.usdToToken(token, usd, price), nil
}

func (v *Vault) usdToToken(token common.Address, usd, price *big.Int) *big.Int {
	return mulDiv(usd, pow10(v.tokenDecimals[token]), price)
}
