package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// FeeUtils is the fee policy consulted by the vault. It is pure over vault
// state; governance can swap the implementation via SetVaultUtils.
type FeeUtils interface {
	GetBuyUsdgFeeBasisPoints(token common.Address, usdgDelta *big.Int) uint64
	GetSellUsdgFeeBasisPoints(token common.Address, usdgDelta *big.Int) uint64
	GetSwapFeeBasisPoints(tokenIn, tokenOut common.Address, usdgDelta *big.Int) uint64
	GetFeeBasisPoints(token common.Address, usdgDelta *big.Int, feeBps, taxBps uint64, increment bool) uint64
	GetPositionFee(sizeDelta *big.Int) *big.Int
	GetFundingFee(collateralToken common.Address, size, entryFundingRate *big.Int) *big.Int
}

// feeUtils is the default policy. It reads vault state directly and is only
// invoked while the vault lock is held.
type feeUtils struct {
	v *Vault
}

// NewFeeUtils returns the default fee policy bound to v's read-only view.
func NewFeeUtils(v *Vault) FeeUtils {
	return &feeUtils{v: v}
}

func (u *feeUtils) GetBuyUsdgFeeBasisPoints(token common.Address, usdgDelta *big.Int) uint64 {
	return u.GetFeeBasisPoints(token, usdgDelta, u.v.mintBurnFeeBasisPoints, u.v.taxBasisPoints, true)
}

func (u *feeUtils) GetSellUsdgFeeBasisPoints(token common.Address, usdgDelta *big.Int) uint64 {
	return u.GetFeeBasisPoints(token, usdgDelta, u.v.mintBurnFeeBasisPoints, u.v.taxBasisPoints, false)
}

// GetSwapFeeBasisPoints charges the higher of the two legs: the incoming
// token's USDG debt grows by usdgDelta and the outgoing token's shrinks by
// it, and the swap pays whichever leg is priced worse. Stable-to-stable swaps
// use the tighter stable schedule.
func (u *feeUtils) GetSwapFeeBasisPoints(tokenIn, tokenOut common.Address, usdgDelta *big.Int) uint64 {
	isStableSwap := u.v.stableTokens[tokenIn] && u.v.stableTokens[tokenOut]
	baseBps := u.v.swapFeeBasisPoints
	taxBps := u.v.taxBasisPoints
	if isStableSwap {
		baseBps = u.v.stableSwapFeeBasisPoints
		taxBps = u.v.stableTaxBasisPoints
	}
	feesBps0 := u.GetFeeBasisPoints(tokenIn, usdgDelta, baseBps, taxBps, true)
	feesBps1 := u.GetFeeBasisPoints(tokenOut, usdgDelta, baseBps, taxBps, false)
	if feesBps0 > feesBps1 {
		return feesBps0
	}
	return feesBps1
}

// GetFeeBasisPoints prices a USDG debt move for token. With dynamic fees on,
// moves toward the weight-implied target earn a rebate and moves away pay a
// deviation-proportional tax.
func (u *feeUtils) GetFeeBasisPoints(token common.Address, usdgDelta *big.Int, feeBps, taxBps uint64, increment bool) uint64 {
	if !u.v.hasDynamicFees {
		return feeBps
	}
	delta := cloneBig(usdgDelta)
	initialAmount := cloneBig(u.v.usdgAmounts[token])
	nextAmount := new(big.Int).Add(initialAmount, delta)
	if !increment {
		nextAmount = saturatingSub(initialAmount, delta)
	}

	targetAmount := u.v.targetUsdgAmount(token)
	if targetAmount.Sign() == 0 {
		return feeBps
	}

	initialDiff := absDiff(initialAmount, targetAmount)
	nextDiff := absDiff(nextAmount, targetAmount)

	if nextDiff.Cmp(initialDiff) < 0 {
		rebate := mulDiv(new(big.Int).SetUint64(taxBps), initialDiff, targetAmount)
		if rebate.Cmp(new(big.Int).SetUint64(feeBps)) > 0 {
			return 0
		}
		return feeBps - rebate.Uint64()
	}

	averageDiff := new(big.Int).Add(initialDiff, nextDiff)
	averageDiff.Quo(averageDiff, bigTwo)
	if averageDiff.Cmp(targetAmount) > 0 {
		averageDiff = targetAmount
	}
	tax := mulDiv(new(big.Int).SetUint64(taxBps), averageDiff, targetAmount)
	return feeBps + tax.Uint64()
}

// GetPositionFee charges the margin fee on the notional delta.
func (u *feeUtils) GetPositionFee(sizeDelta *big.Int) *big.Int {
	if sizeDelta == nil || sizeDelta.Sign() == 0 {
		return big.NewInt(0)
	}
	afterFee := mulDiv(sizeDelta, big.NewInt(int64(BasisPointsDivisor-u.v.marginFeeBasisPoints)), bigBasisPointsDivisor)
	return new(big.Int).Sub(sizeDelta, afterFee)
}

// GetFundingFee charges the funding accrued on size since entryFundingRate
// was snapshotted.
func (u *feeUtils) GetFundingFee(collateralToken common.Address, size, entryFundingRate *big.Int) *big.Int {
	if size == nil || size.Sign() == 0 {
		return big.NewInt(0)
	}
	rate := saturatingSub(u.v.cumulativeFundingRates[collateralToken], entryFundingRate)
	if rate.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(size, rate, bigFundingRatePrecision)
}

// targetUsdgAmount is the share of circulating USDG this token should carry
// given its weight.
func (v *Vault) targetUsdgAmount(token common.Address) *big.Int {
	if v.usdg == nil || v.totalTokenWeights == 0 {
		return big.NewInt(0)
	}
	supply := v.usdg.TotalSupply()
	if supply == nil || supply.Sign() == 0 {
		return big.NewInt(0)
	}
	weight := new(big.Int).SetUint64(v.tokenWeights[token])
	return mulDiv(weight, supply, new(big.Int).SetUint64(v.totalTokenWeights))
}

// collectSwapFees retains the fee leg of amount in token's fee reserve and
// returns the remainder.
func (v *Vault) collectSwapFees(token common.Address, amount *big.Int, feeBps uint64) (*big.Int, error) {
	feeAmount := mulDiv(amount, new(big.Int).SetUint64(feeBps), bigBasisPointsDivisor)
	afterFee := new(big.Int).Sub(amount, feeAmount)
	v.feeReserves[token] = new(big.Int).Add(cloneBig(v.feeReserves[token]), feeAmount)
	feeUsd, err := v.tokenToUsdMin(token, feeAmount)
	if err != nil {
		return nil, err
	}
	v.emit(CollectSwapFees{Token: token, FeeUsd: feeUsd, FeeTokens: cloneBig(feeAmount)})
	return afterFee, nil
}

// collectMarginFees charges the position and funding fees for a position
// move, retains them in the collateral token's fee reserve, and returns the
// USD total owed.
func (v *Vault) collectMarginFees(collateralToken common.Address, sizeDelta, size, entryFundingRate *big.Int) (*big.Int, error) {
	feeUsd := v.utils.GetPositionFee(sizeDelta)
	fundingFee := v.utils.GetFundingFee(collateralToken, size, entryFundingRate)
	feeUsd = new(big.Int).Add(feeUsd, fundingFee)

	feeTokens, err := v.usdToTokenMin(collateralToken, feeUsd)
	if err != nil {
		return nil, err
	}
	v.feeReserves[collateralToken] = new(big.Int).Add(cloneBig(v.feeReserves[collateralToken]), feeTokens)
	v.emit(CollectMarginFees{Token: collateralToken, FeeUsd: cloneBig(feeUsd), FeeTokens: feeTokens})
	return feeUsd, nil
}

// FeeReserve reports the accumulated fee balance for token.
func (v *Vault) FeeReserve(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.feeReserves[token])
}

// WithdrawFees transfers token's whole fee reserve to receiver.
func (v *Vault) WithdrawFees(token common.Address, receiver common.Address) (*big.Int, error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	amount := cloneBig(v.feeReserves[token])
	if amount.Sign() == 0 {
		return big.NewInt(0), nil
	}
	v.feeReserves[token] = big.NewInt(0)
	if err := v.transferOut(token, amount, receiver); err != nil {
		v.feeReserves[token] = amount
		return nil, err
	}
	return amount, nil
}
