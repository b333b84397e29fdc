package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// BuyUSDG mints USDG against a pre-transferred deposit of token. The fee is
// charged on the input token and the remainder joins the pool. Returns the
// minted USDG amount.
func (v *Vault) BuyUSDG(sender, token, receiver common.Address) (minted *big.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err = v.validateManager(sender); err != nil {
		return nil, err
	}
	if err = v.validateWhitelisted(token, errTokenNotWhitelisted); err != nil {
		return nil, err
	}
	v.useSwapPricing = true
	defer func() { v.useSwapPricing = false }()

	snap := v.beginOp(token)
	defer func() { v.endOp(snap, err) }()

	tokenAmount := v.transferIn(token)
	if tokenAmount.Sign() == 0 {
		return nil, v.codedError(errInvalidTokenAmount)
	}

	v.updateCumulativeFundingRate(token)

	price, err := v.minPrice(token)
	if err != nil {
		return nil, err
	}

	usdgAmount := mulDiv(tokenAmount, price, PricePrecision)
	usdgAmount = adjustForDecimals(usdgAmount, v.tokenDecimals[token], UsdgDecimals)
	if usdgAmount.Sign() == 0 {
		return nil, v.codedError(errInvalidUsdgAmount)
	}

	feeBps := v.utils.GetBuyUsdgFeeBasisPoints(token, usdgAmount)
	amountAfterFees, err := v.collectSwapFees(token, tokenAmount, feeBps)
	if err != nil {
		return nil, err
	}

	mintAmount := mulDiv(amountAfterFees, price, PricePrecision)
	mintAmount = adjustForDecimals(mintAmount, v.tokenDecimals[token], UsdgDecimals)

	if err = v.increaseUsdgAmount(token, mintAmount); err != nil {
		return nil, err
	}
	if err = v.increasePoolAmount(token, amountAfterFees); err != nil {
		return nil, err
	}

	if err = v.usdg.Mint(receiver, mintAmount); err != nil {
		return nil, err
	}

	v.emit(BuyUSDG{
		Account:     receiver,
		Token:       token,
		TokenAmount: cloneBig(tokenAmount),
		UsdgAmount:  cloneBig(mintAmount),
		FeeBasisPoints: feeBps,
	})
	return mintAmount, nil
}

// SellUSDG redeems a pre-transferred USDG deposit for token. Redemption is
// priced at the token's max price and the fee is charged on the output side.
// Returns the token amount paid out.
func (v *Vault) SellUSDG(sender, token, receiver common.Address) (out *big.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err = v.validateManager(sender); err != nil {
		return nil, err
	}
	if err = v.validateWhitelisted(token, errTokenNotWhitelisted); err != nil {
		return nil, err
	}
	v.useSwapPricing = true
	defer func() { v.useSwapPricing = false }()

	snap := v.beginOp(token, v.usdgToken)
	defer func() { v.endOp(snap, err) }()

	usdgAmount := v.transferIn(v.usdgToken)
	if usdgAmount.Sign() == 0 {
		return nil, v.codedError(errInvalidUsdgAmount)
	}

	v.updateCumulativeFundingRate(token)

	redemptionAmount, err := v.redemptionAmount(token, usdgAmount)
	if err != nil {
		return nil, err
	}
	if redemptionAmount.Sign() == 0 {
		return nil, v.codedError(errInvalidRedemptionAmount)
	}

	v.decreaseUsdgAmount(token, usdgAmount)
	if err = v.decreasePoolAmount(token, redemptionAmount); err != nil {
		return nil, err
	}

	feeBps := v.utils.GetSellUsdgFeeBasisPoints(token, usdgAmount)
	amountOut, err := v.collectSwapFees(token, redemptionAmount, feeBps)
	if err != nil {
		return nil, err
	}
	if amountOut.Sign() == 0 {
		return nil, v.codedError(errInvalidAmountOut)
	}

	if err = v.usdg.Burn(v.self, usdgAmount); err != nil {
		return nil, err
	}
	// the burn reduced the vault's custodial USDG balance outside the ledger
	v.resyncTokenBalance(v.usdgToken)

	if err = v.transferOut(token, amountOut, receiver); err != nil {
		return nil, err
	}

	v.emit(SellUSDG{
		Account:     receiver,
		Token:       token,
		TokenAmount: cloneBig(amountOut),
		UsdgAmount:  cloneBig(usdgAmount),
		FeeBasisPoints: feeBps,
	})
	return amountOut, nil
}

func (v *Vault) redemptionAmount(token common.Address, usdgAmount *big.Int) (*big.Int, error) {
	price, err := v.maxPrice(token)
	if err != nil {
		return nil, err
	}
	redemption := mulDiv(usdgAmount, PricePrecision, price)
	return adjustForDecimals(redemption, UsdgDecimals, v.tokenDecimals[token]), nil
}

// GetRedemptionAmount quotes the token amount usdgAmount redeems for at the
// current max price.
func (v *Vault) GetRedemptionAmount(token common.Address, usdgAmount *big.Int) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redemptionAmount(token, usdgAmount)
}

// GetRedemptionCollateral values the pool backing available for redemptions:
// the pool net of position reserves, plus the USD guaranteed by longs. Stable
// tokens back redemptions with their full pool.
func (v *Vault) GetRedemptionCollateral(token common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.redemptionCollateral(token)
}

func (v *Vault) redemptionCollateral(token common.Address) (*big.Int, error) {
	if v.stableTokens[token] {
		return cloneBig(v.poolAmounts[token]), nil
	}
	collateral, err := v.usdToTokenMin(token, cloneBig(v.guaranteedUsd[token]))
	if err != nil {
		return nil, err
	}
	collateral.Add(collateral, cloneBig(v.poolAmounts[token]))
	return collateral.Sub(collateral, cloneBig(v.reservedAmounts[token])), nil
}

// GetRedemptionCollateralUsd values GetRedemptionCollateral at the min price.
func (v *Vault) GetRedemptionCollateralUsd(token common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	collateral, err := v.redemptionCollateral(token)
	if err != nil {
		return nil, err
	}
	return v.tokenToUsdMin(token, collateral)
}
