package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// IncreasePosition opens or grows a leveraged position. Collateral is the
// pre-transferred amount of collateralToken; sizeDelta is the USD notional
// added at PricePrecision scale. Longs must collateralize in the index token
// itself, shorts in a stable token against a shortable index.
func (v *Vault) IncreasePosition(sender, account, collateralToken, indexToken common.Address, sizeDelta *big.Int, isLong bool) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if !v.isLeverageEnabled {
		return v.codedError(errLeverageNotEnabled)
	}
	if err = v.validateGasPrice(); err != nil {
		return err
	}
	if err = v.validateRouter(sender, account); err != nil {
		return err
	}
	if err = v.validatePositionTokens(collateralToken, indexToken, isLong); err != nil {
		return err
	}
	if sizeDelta == nil {
		sizeDelta = big.NewInt(0)
	}

	snap := v.beginOp(collateralToken, indexToken)
	defer func() { v.endOp(snap, err) }()

	v.updateCumulativeFundingRate(collateralToken)

	key := positionKey(account, collateralToken, indexToken, isLong)
	snap.trackPosition(v, key)
	position, ok := v.positions[key]
	if !ok {
		position = newPosition()
		v.positions[key] = position
	}

	price, err := v.markPrice(indexToken, isLong, true)
	if err != nil {
		return err
	}

	if position.Size.Sign() == 0 {
		position.AveragePrice = cloneBig(price)
	}
	if position.Size.Sign() > 0 && sizeDelta.Sign() > 0 {
		position.AveragePrice, err = v.nextAveragePrice(indexToken, position.Size, position.AveragePrice, isLong, price, sizeDelta, position.LastIncreasedTime)
		if err != nil {
			return err
		}
	}

	fee, err := v.collectMarginFees(collateralToken, sizeDelta, position.Size, position.EntryFundingRate)
	if err != nil {
		return err
	}

	collateralDelta := v.transferIn(collateralToken)
	collateralDeltaUsd, err := v.tokenToUsdMin(collateralToken, collateralDelta)
	if err != nil {
		return err
	}

	position.Collateral = new(big.Int).Add(position.Collateral, collateralDeltaUsd)
	if position.Collateral.Cmp(fee) < 0 {
		return v.codedError(errInsufficientCollateralForFees)
	}
	position.Collateral.Sub(position.Collateral, fee)

	position.EntryFundingRate = cloneBig(v.cumulativeFundingRates[collateralToken])
	position.Size = new(big.Int).Add(position.Size, sizeDelta)
	position.LastIncreasedTime = v.nowUnix()

	if position.Size.Sign() == 0 {
		return v.codedError(errInvalidPositionSize)
	}
	if err = v.validatePosition(position.Size, position.Collateral); err != nil {
		return err
	}
	if _, _, err = v.liquidationState(account, collateralToken, indexToken, isLong, true); err != nil {
		return err
	}

	// reserve enough tokens to cover the position's maximum payout
	reserveDelta, err := v.usdToTokenMax(collateralToken, sizeDelta)
	if err != nil {
		return err
	}
	position.ReserveAmount = new(big.Int).Add(position.ReserveAmount, reserveDelta)
	if err = v.increaseReservedAmount(collateralToken, reserveDelta); err != nil {
		return err
	}

	if isLong {
		// guaranteedUsd tracks size minus collateral: treat the deposited
		// collateral as part of the pool and the fee as paid out of it
		v.increaseGuaranteedUsd(collateralToken, new(big.Int).Add(sizeDelta, fee))
		v.decreaseGuaranteedUsd(collateralToken, collateralDeltaUsd)
		if err = v.increasePoolAmount(collateralToken, collateralDelta); err != nil {
			return err
		}
		feeTokens, ferr := v.usdToTokenMin(collateralToken, fee)
		if ferr != nil {
			return ferr
		}
		if err = v.decreasePoolAmount(collateralToken, feeTokens); err != nil {
			return err
		}
	} else {
		if cloneBig(v.globalShortSizes[indexToken]).Sign() == 0 {
			v.globalShortAveragePrices[indexToken] = cloneBig(price)
		} else {
			v.globalShortAveragePrices[indexToken] = v.nextGlobalShortAveragePrice(indexToken, price, sizeDelta)
		}
		if err = v.increaseGlobalShortSize(indexToken, sizeDelta); err != nil {
			return err
		}
	}

	v.emit(IncreasePositionEvent{
		Key:             key,
		Account:         account,
		CollateralToken: collateralToken,
		IndexToken:      indexToken,
		CollateralDelta: cloneBig(collateralDeltaUsd),
		SizeDelta:       cloneBig(sizeDelta),
		IsLong:          isLong,
		Price:           cloneBig(price),
		Fee:             cloneBig(fee),
	})
	v.emit(UpdatePosition{
		Key:          key,
		Size:         cloneBig(position.Size),
		Collateral:   cloneBig(position.Collateral),
		AveragePrice: cloneBig(position.AveragePrice),
		EntryFundingRate: cloneBig(position.EntryFundingRate),
		ReserveAmount:    cloneBig(position.ReserveAmount),
		RealisedPnl:      cloneBig(position.RealisedPnl),
	})
	return nil
}

// DecreasePosition shrinks or closes a position, withdrawing
// collateralDelta USD of margin on top of any realized profit. Returns the
// collateral-token amount paid to receiver.
func (v *Vault) DecreasePosition(sender, account, collateralToken, indexToken common.Address, collateralDelta, sizeDelta *big.Int, isLong bool, receiver common.Address) (out *big.Int, err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err = v.validateGasPrice(); err != nil {
		return nil, err
	}
	if err = v.validateRouter(sender, account); err != nil {
		return nil, err
	}

	snap := v.beginOp(collateralToken, indexToken)
	defer func() { v.endOp(snap, err) }()

	return v.decreasePosition(account, collateralToken, indexToken, collateralDelta, sizeDelta, isLong, receiver, snap)
}

func (v *Vault) decreasePosition(account, collateralToken, indexToken common.Address, collateralDelta, sizeDelta *big.Int, isLong bool, receiver common.Address, snap *stateSnapshot) (*big.Int, error) {
	v.updateCumulativeFundingRate(collateralToken)

	key := positionKey(account, collateralToken, indexToken, isLong)
	snap.trackPosition(v, key)
	position, ok := v.positions[key]
	if !ok || position.Size.Sign() == 0 {
		return nil, v.codedError(errEmptyPosition)
	}
	if sizeDelta == nil || sizeDelta.Sign() <= 0 || position.Size.Cmp(sizeDelta) < 0 {
		return nil, v.codedError(errPositionSizeExceeded)
	}
	if collateralDelta == nil {
		collateralDelta = big.NewInt(0)
	}
	if position.Collateral.Cmp(collateralDelta) < 0 {
		return nil, v.codedError(errPositionCollateralExceeded)
	}

	collateralBefore := cloneBig(position.Collateral)

	// release the reserve proportionally to the size being closed
	reserveDelta := mulDiv(position.ReserveAmount, sizeDelta, position.Size)
	position.ReserveAmount = new(big.Int).Sub(position.ReserveAmount, reserveDelta)
	if err := v.decreaseReservedAmount(collateralToken, reserveDelta); err != nil {
		return nil, err
	}

	usdOut, usdOutAfterFee, err := v.reduceCollateral(key, position, collateralToken, indexToken, collateralDelta, sizeDelta, isLong)
	if err != nil {
		return nil, err
	}

	fullClose := position.Size.Cmp(sizeDelta) == 0
	price, err := v.markPrice(indexToken, isLong, false)
	if err != nil {
		return nil, err
	}

	if !fullClose {
		position.EntryFundingRate = cloneBig(v.cumulativeFundingRates[collateralToken])
		position.Size = new(big.Int).Sub(position.Size, sizeDelta)
		if err := v.validatePosition(position.Size, position.Collateral); err != nil {
			return nil, err
		}
		if _, _, err := v.liquidationState(account, collateralToken, indexToken, isLong, true); err != nil {
			return nil, err
		}
		if isLong {
			v.increaseGuaranteedUsd(collateralToken, new(big.Int).Sub(collateralBefore, position.Collateral))
			v.decreaseGuaranteedUsd(collateralToken, sizeDelta)
		}
		v.emit(DecreasePositionEvent{
			Key: key, Account: account, CollateralToken: collateralToken, IndexToken: indexToken,
			CollateralDelta: cloneBig(collateralDelta), SizeDelta: cloneBig(sizeDelta),
			IsLong: isLong, Price: cloneBig(price), UsdOut: cloneBig(usdOut),
		})
		v.emit(UpdatePosition{
			Key: key, Size: cloneBig(position.Size), Collateral: cloneBig(position.Collateral),
			AveragePrice: cloneBig(position.AveragePrice), EntryFundingRate: cloneBig(position.EntryFundingRate),
			ReserveAmount: cloneBig(position.ReserveAmount), RealisedPnl: cloneBig(position.RealisedPnl),
		})
	} else {
		if isLong {
			v.increaseGuaranteedUsd(collateralToken, collateralBefore)
			v.decreaseGuaranteedUsd(collateralToken, sizeDelta)
		}
		v.emit(DecreasePositionEvent{
			Key: key, Account: account, CollateralToken: collateralToken, IndexToken: indexToken,
			CollateralDelta: cloneBig(collateralDelta), SizeDelta: cloneBig(sizeDelta),
			IsLong: isLong, Price: cloneBig(price), UsdOut: cloneBig(usdOut),
		})
		v.emit(ClosePosition{
			Key: key, Size: cloneBig(position.Size), Collateral: cloneBig(position.Collateral),
			AveragePrice: cloneBig(position.AveragePrice), EntryFundingRate: cloneBig(position.EntryFundingRate),
			ReserveAmount: cloneBig(position.ReserveAmount), RealisedPnl: cloneBig(position.RealisedPnl),
		})
		delete(v.positions, key)
	}

	if !isLong {
		v.decreaseGlobalShortSize(indexToken, sizeDelta)
	}

	if usdOut.Sign() > 0 {
		if isLong {
			poolTokens, err := v.usdToTokenMin(collateralToken, usdOut)
			if err != nil {
				return nil, err
			}
			if err := v.decreasePoolAmount(collateralToken, poolTokens); err != nil {
				return nil, err
			}
		}
		amountOut, err := v.usdToTokenMin(collateralToken, usdOutAfterFee)
		if err != nil {
			return nil, err
		}
		if err := v.transferOut(collateralToken, amountOut, receiver); err != nil {
			return nil, err
		}
		return amountOut, nil
	}
	return big.NewInt(0), nil
}

// reduceCollateral settles PnL and fees for the size being closed and
// returns the gross and net USD owed to the account.
func (v *Vault) reduceCollateral(key PositionKey, position *Position, collateralToken, indexToken common.Address, collateralDelta, sizeDelta *big.Int, isLong bool) (*big.Int, *big.Int, error) {
	fee, err := v.collectMarginFees(collateralToken, sizeDelta, position.Size, position.EntryFundingRate)
	if err != nil {
		return nil, nil, err
	}

	hasProfit, delta, err := v.positionDelta(indexToken, position.Size, position.AveragePrice, isLong, position.LastIncreasedTime)
	if err != nil {
		return nil, nil, err
	}
	adjustedDelta := mulDiv(sizeDelta, delta, position.Size)

	usdOut := big.NewInt(0)
	if hasProfit && adjustedDelta.Sign() > 0 {
		usdOut = cloneBig(adjustedDelta)
		position.RealisedPnl = new(big.Int).Add(position.RealisedPnl, adjustedDelta)
		// short profits are paid out of the pool; long profits were provisioned
		// through the guaranteed-USD accounting at open time
		if !isLong {
			tokens, err := v.usdToTokenMin(collateralToken, adjustedDelta)
			if err != nil {
				return nil, nil, err
			}
			if err := v.decreasePoolAmount(collateralToken, tokens); err != nil {
				return nil, nil, err
			}
		}
	}
	if !hasProfit && adjustedDelta.Sign() > 0 {
		if position.Collateral.Cmp(adjustedDelta) < 0 {
			return nil, nil, v.codedError(errLossesExceedCollateral)
		}
		position.Collateral = new(big.Int).Sub(position.Collateral, adjustedDelta)
		if !isLong {
			tokens, err := v.usdToTokenMin(collateralToken, adjustedDelta)
			if err != nil {
				return nil, nil, err
			}
			if err := v.increasePoolAmount(collateralToken, tokens); err != nil {
				return nil, nil, err
			}
		}
		position.RealisedPnl = new(big.Int).Sub(position.RealisedPnl, adjustedDelta)
	}

	if collateralDelta.Sign() > 0 {
		if position.Collateral.Cmp(collateralDelta) < 0 {
			return nil, nil, v.codedError(errPositionCollateralExceeded)
		}
		usdOut.Add(usdOut, collateralDelta)
		position.Collateral = new(big.Int).Sub(position.Collateral, collateralDelta)
	}

	if position.Size.Cmp(sizeDelta) == 0 {
		usdOut.Add(usdOut, position.Collateral)
		position.Collateral = big.NewInt(0)
	}

	usdOutAfterFee := cloneBig(usdOut)
	if usdOut.Cmp(fee) > 0 {
		usdOutAfterFee = new(big.Int).Sub(usdOut, fee)
	} else {
		if position.Collateral.Cmp(fee) < 0 {
			return nil, nil, v.codedError(errFeesExceedCollateral)
		}
		position.Collateral = new(big.Int).Sub(position.Collateral, fee)
		if isLong {
			feeTokens, err := v.usdToTokenMin(collateralToken, fee)
			if err != nil {
				return nil, nil, err
			}
			if err := v.decreasePoolAmount(collateralToken, feeTokens); err != nil {
				return nil, nil, err
			}
		}
	}

	v.emit(UpdatePnl{Key: key, HasProfit: hasProfit, Delta: cloneBig(adjustedDelta)})
	return usdOut, usdOutAfterFee, nil
}

// markPrice selects the conservative oracle leg for the move: opening longs
// and closing shorts pay the max price, opening shorts and closing longs
// receive the min price.
func (v *Vault) markPrice(indexToken common.Address, isLong, increasing bool) (*big.Int, error) {
	if isLong == increasing {
		return v.maxPrice(indexToken)
	}
	return v.minPrice(indexToken)
}

func (v *Vault) validatePositionTokens(collateralToken, indexToken common.Address, isLong bool) error {
	if isLong {
		if collateralToken != indexToken {
			return v.codedError(errCollateralMismatch)
		}
		if !v.whitelistedTokens[collateralToken] {
			return v.codedError(errCollateralNotWhitelisted)
		}
		if v.stableTokens[collateralToken] {
			return v.codedError(errCollateralMustNotBeStable)
		}
		return nil
	}
	if !v.whitelistedTokens[collateralToken] {
		return v.codedError(errCollateralNotWhitelisted)
	}
	if !v.stableTokens[collateralToken] {
		return v.codedError(errCollateralMustBeStable)
	}
	if v.stableTokens[indexToken] {
		return v.codedError(errIndexMustNotBeStable)
	}
	if !v.shortableTokens[indexToken] {
		return v.codedError(errIndexNotShortable)
	}
	return nil
}

func (v *Vault) validatePosition(size, collateral *big.Int) error {
	if size.Sign() == 0 {
		if collateral.Sign() != 0 {
			return v.codedError(errZeroCollateral)
		}
		return nil
	}
	if size.Cmp(collateral) < 0 {
		return v.codedError(errSizeBelowCollateral)
	}
	return nil
}

// positionDelta computes the unrealised PnL of a position at the current
// mark. Profits below the minimum-profit floor are zeroed while the position
// is inside the anti-frontrun window.
func (v *Vault) positionDelta(indexToken common.Address, size, averagePrice *big.Int, isLong bool, lastIncreasedTime int64) (bool, *big.Int, error) {
	if averagePrice == nil || averagePrice.Sign() == 0 {
		return false, nil, v.codedError(errInvalidPosition)
	}
	var price *big.Int
	var err error
	if isLong {
		price, err = v.minPrice(indexToken)
	} else {
		price, err = v.maxPrice(indexToken)
	}
	if err != nil {
		return false, nil, err
	}

	priceDelta := absDiff(averagePrice, price)
	delta := mulDiv(size, priceDelta, averagePrice)

	var hasProfit bool
	if isLong {
		hasProfit = price.Cmp(averagePrice) > 0
	} else {
		hasProfit = averagePrice.Cmp(price) > 0
	}

	minBps := big.NewInt(0)
	if v.nowUnix() <= lastIncreasedTime+v.minProfitTime {
		minBps = new(big.Int).SetUint64(v.minProfitBasisPoints[indexToken])
	}
	if hasProfit {
		lhs := new(big.Int).Mul(delta, bigBasisPointsDivisor)
		rhs := new(big.Int).Mul(size, minBps)
		if lhs.Cmp(rhs) <= 0 {
			delta = big.NewInt(0)
		}
	}
	return hasProfit, delta, nil
}

// nextAveragePrice blends the entry price so that the unrealised PnL carried
// into the increased position is preserved at the new mark.
func (v *Vault) nextAveragePrice(indexToken common.Address, size, averagePrice *big.Int, isLong bool, nextPrice, sizeDelta *big.Int, lastIncreasedTime int64) (*big.Int, error) {
	hasProfit, delta, err := v.positionDelta(indexToken, size, averagePrice, isLong, lastIncreasedTime)
	if err != nil {
		return nil, err
	}
	nextSize := new(big.Int).Add(size, sizeDelta)
	divisor := new(big.Int).Set(nextSize)
	if isLong == hasProfit {
		divisor.Add(divisor, delta)
	} else {
		divisor.Sub(divisor, delta)
	}
	return mulDiv(nextPrice, nextSize, divisor), nil
}

// nextGlobalShortAveragePrice folds a new short of sizeDelta at nextPrice
// into the aggregate short book's average.
func (v *Vault) nextGlobalShortAveragePrice(indexToken common.Address, nextPrice, sizeDelta *big.Int) *big.Int {
	size := cloneBig(v.globalShortSizes[indexToken])
	averagePrice := cloneBig(v.globalShortAveragePrices[indexToken])
	priceDelta := absDiff(averagePrice, nextPrice)
	delta := mulDiv(size, priceDelta, averagePrice)
	hasProfit := averagePrice.Cmp(nextPrice) > 0

	nextSize := new(big.Int).Add(size, sizeDelta)
	divisor := new(big.Int).Set(nextSize)
	if hasProfit {
		divisor.Sub(divisor, delta)
	} else {
		divisor.Add(divisor, delta)
	}
	return mulDiv(nextPrice, nextSize, divisor)
}

// GetPositionKey derives the storage key of a position tuple.
func (v *Vault) GetPositionKey(account, collateralToken, indexToken common.Address, isLong bool) PositionKey {
	return positionKey(account, collateralToken, indexToken, isLong)
}

// GetPosition returns a copy of the stored position, if any.
func (v *Vault) GetPosition(account, collateralToken, indexToken common.Address, isLong bool) (*Position, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	position, ok := v.positions[positionKey(account, collateralToken, indexToken, isLong)]
	if !ok {
		return nil, false
	}
	return position.Clone(), true
}

// GetPositionDelta reports the unrealised PnL of a stored position.
func (v *Vault) GetPositionDelta(account, collateralToken, indexToken common.Address, isLong bool) (bool, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	position, ok := v.positions[positionKey(account, collateralToken, indexToken, isLong)]
	if !ok || position.Size.Sign() == 0 {
		return false, nil, v.codedError(errEmptyPosition)
	}
	return v.positionDelta(indexToken, position.Size, position.AveragePrice, isLong, position.LastIncreasedTime)
}

// GetPositionLeverage reports size/collateral in basis points.
func (v *Vault) GetPositionLeverage(account, collateralToken, indexToken common.Address, isLong bool) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	position, ok := v.positions[positionKey(account, collateralToken, indexToken, isLong)]
	if !ok || position.Collateral.Sign() == 0 {
		return nil, v.codedError(errEmptyPosition)
	}
	return mulDiv(position.Size, bigBasisPointsDivisor, position.Collateral), nil
}

// GetGlobalShortDelta reports the aggregate unrealised PnL of the short book
// for an index token.
func (v *Vault) GetGlobalShortDelta(token common.Address) (bool, *big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	size := cloneBig(v.globalShortSizes[token])
	if size.Sign() == 0 {
		return false, big.NewInt(0), nil
	}
	averagePrice := cloneBig(v.globalShortAveragePrices[token])
	price, err := v.maxPrice(token)
	if err != nil {
		return false, nil, err
	}
	priceDelta := absDiff(averagePrice, price)
	delta := mulDiv(size, priceDelta, averagePrice)
	return averagePrice.Cmp(price) > 0, delta, nil
}
