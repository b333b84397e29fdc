package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Funding accrues per collateral token on an interval grid aligned to real
// time: lastFundingTimes is always re-floored to now, not stepped by the
// number of elapsed intervals, so a delayed update cannot drift the grid.

func (v *Vault) updateCumulativeFundingRate(collateralToken common.Address) {
	now := v.nowUnix()
	interval := v.fundingInterval
	if _, ok := v.lastFundingTimes[collateralToken]; !ok {
		v.lastFundingTimes[collateralToken] = (now / interval) * interval
		return
	}
	if v.lastFundingTimes[collateralToken]+interval > now {
		return
	}
	rate := v.nextFundingRate(collateralToken)
	v.cumulativeFundingRates[collateralToken] = new(big.Int).Add(cloneBig(v.cumulativeFundingRates[collateralToken]), rate)
	v.lastFundingTimes[collateralToken] = (now / interval) * interval

	v.emit(UpdateFundingRate{
		Token:          collateralToken,
		FundingRate:    cloneBig(v.cumulativeFundingRates[collateralToken]),
	})
}

func (v *Vault) nextFundingRate(token common.Address) *big.Int {
	now := v.nowUnix()
	last, ok := v.lastFundingTimes[token]
	if !ok || last+v.fundingInterval > now {
		return big.NewInt(0)
	}
	intervals := (now - last) / v.fundingInterval
	pool := v.poolAmounts[token]
	if pool == nil || pool.Sign() == 0 {
		return big.NewInt(0)
	}
	factor := v.fundingRateFactor
	if v.stableTokens[token] {
		factor = v.stableFundingRateFactor
	}
	rate := new(big.Int).SetUint64(factor)
	rate.Mul(rate, cloneBig(v.reservedAmounts[token]))
	rate.Mul(rate, big.NewInt(intervals))
	return rate.Quo(rate, pool)
}

// UpdateCumulativeFundingRate advances funding for token. Every trading
// operation does this implicitly; keepers can call it directly to keep
// accrual current on quiet markets.
func (v *Vault) UpdateCumulativeFundingRate(token common.Address) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.validateWhitelisted(token, errTokenNotWhitelisted); err != nil {
		return err
	}
	v.updateCumulativeFundingRate(token)
	return nil
}

// GetNextFundingRate previews the funding increment the next update would
// apply for token.
func (v *Vault) GetNextFundingRate(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.nextFundingRate(token)
}

// CumulativeFundingRate reports the monotone accrued funding rate for token
// at FundingRatePrecision scale.
func (v *Vault) CumulativeFundingRate(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.cumulativeFundingRates[token])
}

// GetUtilisation reports reserved/pool at FundingRatePrecision scale.
func (v *Vault) GetUtilisation(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	pool := v.poolAmounts[token]
	if pool == nil || pool.Sign() == 0 {
		return big.NewInt(0)
	}
	return mulDiv(cloneBig(v.reservedAmounts[token]), bigFundingRatePrecision, pool)
}
