package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Liquidation states returned by ValidateLiquidation.
const (
	// LiquidationStateHealthy means the position cannot be liquidated.
	LiquidationStateHealthy = 0
	// LiquidationStateInsolvent means losses or fees consume the collateral
	// and the position must be seized.
	LiquidationStateInsolvent = 1
	// LiquidationStateOverLeveraged means the position breaches max leverage
	// but remains solvent; it is force-closed rather than seized.
	LiquidationStateOverLeveraged = 2
)

// LiquidatePosition seizes an insolvent position or force-closes an
// over-leveraged one. AMM-assisted pricing is disabled for the duration so a
// manipulated pool leg cannot trigger a seize.
func (v *Vault) LiquidatePosition(sender, account, collateralToken, indexToken common.Address, isLong bool, feeReceiver common.Address) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.inPrivateLiquidationMode && !v.liquidators[sender] {
		return v.codedError(errInvalidLiquidator)
	}

	v.includeAmmPrice = false
	defer func() { v.includeAmmPrice = true }()

	snap := v.beginOp(collateralToken, indexToken)
	defer func() { v.endOp(snap, err) }()

	v.updateCumulativeFundingRate(collateralToken)

	key := positionKey(account, collateralToken, indexToken, isLong)
	snap.trackPosition(v, key)
	position, ok := v.positions[key]
	if !ok || position.Size.Sign() == 0 {
		return v.codedError(errEmptyPosition)
	}

	state, marginFees, err := v.liquidationState(account, collateralToken, indexToken, isLong, false)
	if err != nil {
		return err
	}
	if state == LiquidationStateHealthy {
		return v.codedError(errCannotLiquidate)
	}
	if state == LiquidationStateOverLeveraged {
		// max leverage breached but solvent: close the full size back to the
		// account instead of seizing
		v.includeAmmPrice = true
		_, err = v.decreasePosition(account, collateralToken, indexToken, big.NewInt(0), cloneBig(position.Size), isLong, account, snap)
		v.includeAmmPrice = false
		return err
	}

	feeTokens, err := v.usdToTokenMin(collateralToken, marginFees)
	if err != nil {
		return err
	}
	v.feeReserves[collateralToken] = new(big.Int).Add(cloneBig(v.feeReserves[collateralToken]), feeTokens)
	v.emit(CollectMarginFees{Token: collateralToken, FeeUsd: cloneBig(marginFees), FeeTokens: feeTokens})

	if err = v.decreaseReservedAmount(collateralToken, cloneBig(position.ReserveAmount)); err != nil {
		return err
	}

	if isLong {
		v.decreaseGuaranteedUsd(collateralToken, new(big.Int).Sub(position.Size, position.Collateral))
		poolTokens, perr := v.usdToTokenMin(collateralToken, marginFees)
		if perr != nil {
			return perr
		}
		if err = v.decreasePoolAmount(collateralToken, poolTokens); err != nil {
			return err
		}
	}

	markPrice, err := v.markPrice(indexToken, isLong, false)
	if err != nil {
		return err
	}
	v.emit(LiquidatePositionEvent{
		Key:             key,
		Account:         account,
		CollateralToken: collateralToken,
		IndexToken:      indexToken,
		IsLong:          isLong,
		Size:            cloneBig(position.Size),
		Collateral:      cloneBig(position.Collateral),
		ReserveAmount:   cloneBig(position.ReserveAmount),
		RealisedPnl:     cloneBig(position.RealisedPnl),
		MarkPrice:       cloneBig(markPrice),
	})

	if !isLong && marginFees.Cmp(position.Collateral) < 0 {
		// the only path where a short's residual collateral rejoins the pool
		remainingCollateral := new(big.Int).Sub(position.Collateral, marginFees)
		poolTokens, perr := v.usdToTokenMin(collateralToken, remainingCollateral)
		if perr != nil {
			return perr
		}
		if err = v.increasePoolAmount(collateralToken, poolTokens); err != nil {
			return err
		}
	}
	if !isLong {
		v.decreaseGlobalShortSize(indexToken, cloneBig(position.Size))
	}

	delete(v.positions, key)

	// pay the liquidation bounty out of the pool
	liquidationFeeTokens, err := v.usdToTokenMin(collateralToken, v.liquidationFeeUsd)
	if err != nil {
		return err
	}
	if err = v.decreasePoolAmount(collateralToken, liquidationFeeTokens); err != nil {
		return err
	}
	if err = v.transferOut(collateralToken, liquidationFeeTokens, feeReceiver); err != nil {
		return err
	}
	return nil
}

// ValidateLiquidation reports the liquidation state of a position and the
// margin fees owed. With raise set, a liquidatable state is returned as the
// matching coded error instead.
func (v *Vault) ValidateLiquidation(account, collateralToken, indexToken common.Address, isLong, raise bool) (int, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.liquidationState(account, collateralToken, indexToken, isLong, raise)
}

func (v *Vault) liquidationState(account, collateralToken, indexToken common.Address, isLong, raise bool) (int, *big.Int, error) {
	key := positionKey(account, collateralToken, indexToken, isLong)
	position, ok := v.positions[key]
	if !ok {
		return 0, nil, v.codedError(errEmptyPosition)
	}

	hasProfit, delta, err := v.positionDelta(indexToken, position.Size, position.AveragePrice, isLong, position.LastIncreasedTime)
	if err != nil {
		return 0, nil, err
	}
	marginFees := v.utils.GetFundingFee(collateralToken, position.Size, position.EntryFundingRate)
	marginFees = new(big.Int).Add(marginFees, v.utils.GetPositionFee(position.Size))

	if !hasProfit && position.Collateral.Cmp(delta) < 0 {
		if raise {
			return 0, nil, v.codedError(errLossesExceedCollateral)
		}
		return LiquidationStateInsolvent, marginFees, nil
	}

	remainingCollateral := cloneBig(position.Collateral)
	if !hasProfit {
		remainingCollateral.Sub(remainingCollateral, delta)
	}

	if remainingCollateral.Cmp(marginFees) < 0 {
		if raise {
			return 0, nil, v.codedError(errFeesExceedCollateral)
		}
		// cap the fees at what is left
		return LiquidationStateInsolvent, remainingCollateral, nil
	}
	if remainingCollateral.Cmp(new(big.Int).Add(marginFees, v.liquidationFeeUsd)) < 0 {
		if raise {
			return 0, nil, v.codedError(errFeesExceedCollateral)
		}
		return LiquidationStateInsolvent, marginFees, nil
	}

	lhs := new(big.Int).Mul(remainingCollateral, new(big.Int).SetUint64(v.maxLeverage))
	rhs := new(big.Int).Mul(position.Size, bigBasisPointsDivisor)
	if lhs.Cmp(rhs) < 0 {
		if raise {
			return 0, nil, v.codedError(errMaxLeverageExceeded)
		}
		return LiquidationStateOverLeveraged, marginFees, nil
	}

	return LiquidationStateHealthy, marginFees, nil
}
