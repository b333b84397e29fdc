package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Swap exchanges a pre-transferred amount of tokenIn for tokenOut, priced
// min(in)/max(out) through the oracle. The fee is retained on the output
// side and the USDG debt backing the books moves from tokenOut to tokenIn.
// Returns the amount paid out.
func (v *Vault) Swap(tokenIn, tokenOut, receiver common.Address) (out *big.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.isSwapEnabled {
		return nil, v.codedError(errSwapsNotEnabled)
	}
	if err = v.validateWhitelisted(tokenIn, errTokenInNotWhitelisted); err != nil {
		return nil, err
	}
	if err = v.validateWhitelisted(tokenOut, errTokenOutNotWhitelisted); err != nil {
		return nil, err
	}
	if tokenIn == tokenOut {
		return nil, v.codedError(errInvalidTokenPair)
	}

	v.useSwapPricing = true
	defer func() { v.useSwapPricing = false }()

	snap := v.beginOp(tokenIn, tokenOut)
	defer func() { v.endOp(snap, err) }()

	v.updateCumulativeFundingRate(tokenIn)
	v.updateCumulativeFundingRate(tokenOut)

	amountIn := v.transferIn(tokenIn)
	if amountIn.Sign() == 0 {
		return nil, v.codedError(errInvalidAmountIn)
	}

	priceIn, err := v.minPrice(tokenIn)
	if err != nil {
		return nil, err
	}
	priceOut, err := v.maxPrice(tokenOut)
	if err != nil {
		return nil, err
	}

	amountOut := mulDiv(amountIn, priceIn, priceOut)
	amountOut = adjustForDecimals(amountOut, v.tokenDecimals[tokenIn], v.tokenDecimals[tokenOut])

	// the USDG debt moved is the USD value of the input leg
	usdgAmount := mulDiv(amountIn, priceIn, PricePrecision)
	usdgAmount = adjustForDecimals(usdgAmount, v.tokenDecimals[tokenIn], UsdgDecimals)

	feeBps := v.utils.GetSwapFeeBasisPoints(tokenIn, tokenOut, usdgAmount)
	amountOutAfterFees, err := v.collectSwapFees(tokenOut, amountOut, feeBps)
	if err != nil {
		return nil, err
	}

	if err = v.increaseUsdgAmount(tokenIn, usdgAmount); err != nil {
		return nil, err
	}
	v.decreaseUsdgAmount(tokenOut, usdgAmount)

	if err = v.increasePoolAmount(tokenIn, amountIn); err != nil {
		return nil, err
	}
	if err = v.decreasePoolAmount(tokenOut, amountOut); err != nil {
		return nil, err
	}
	if err = v.validateBufferAmount(tokenOut); err != nil {
		return nil, err
	}

	if err = v.transferOut(tokenOut, amountOutAfterFees, receiver); err != nil {
		return nil, err
	}

	v.emit(SwapEvent{
		Account:        receiver,
		TokenIn:        tokenIn,
		TokenOut:       tokenOut,
		AmountIn:       cloneBig(amountIn),
		AmountOut:      cloneBig(amountOut),
		AmountOutAfterFees: cloneBig(amountOutAfterFees),
		FeeBasisPoints: feeBps,
	})
	return amountOutAfterFees, nil
}
