package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Pool ledger primitives. Each mutation re-checks the solvency invariants it
// can violate, so no caller sequence can leave the books inconsistent:
// reserved never exceeds pool, pool never exceeds the custodial balance, and
// per-token debt respects its cap.

func (v *Vault) increasePoolAmount(token common.Address, amount *big.Int) error {
	next := new(big.Int).Add(cloneBig(v.poolAmounts[token]), amount)
	if next.Cmp(v.custodialBalance(token)) > 0 {
		return v.codedError(errPoolExceedsBalance)
	}
	v.poolAmounts[token] = next
	v.emit(IncreasePoolAmount{Token: token, Amount: cloneBig(amount)})
	return nil
}

func (v *Vault) decreasePoolAmount(token common.Address, amount *big.Int) error {
	next := cloneBig(v.poolAmounts[token])
	if next.Cmp(amount) < 0 {
		return v.codedError(errPoolExceedsBalance)
	}
	next.Sub(next, amount)
	if cloneBig(v.reservedAmounts[token]).Cmp(next) > 0 {
		return v.codedError(errReserveExceedsPool)
	}
	v.poolAmounts[token] = next
	v.emit(DecreasePoolAmount{Token: token, Amount: cloneBig(amount)})
	return nil
}

func (v *Vault) validateBufferAmount(token common.Address) error {
	buffer := v.bufferAmounts[token]
	if buffer == nil {
		return nil
	}
	if cloneBig(v.poolAmounts[token]).Cmp(buffer) < 0 {
		return v.codedError(errPoolBelowBuffer)
	}
	return nil
}

func (v *Vault) increaseUsdgAmount(token common.Address, amount *big.Int) error {
	next := new(big.Int).Add(cloneBig(v.usdgAmounts[token]), amount)
	max := v.maxUsdgAmounts[token]
	if max != nil && max.Sign() > 0 && next.Cmp(max) > 0 {
		return v.codedError(errMaxUsdgExceeded)
	}
	v.usdgAmounts[token] = next
	v.emit(IncreaseUsdgAmount{Token: token, Amount: cloneBig(amount)})
	return nil
}

// decreaseUsdgAmount saturates at zero: multi-asset redemptions can push a
// single token's recorded debt below what it alone minted.
func (v *Vault) decreaseUsdgAmount(token common.Address, amount *big.Int) {
	value := cloneBig(v.usdgAmounts[token])
	if value.Cmp(amount) <= 0 {
		v.usdgAmounts[token] = big.NewInt(0)
		v.emit(DecreaseUsdgAmount{Token: token, Amount: value})
		return
	}
	v.usdgAmounts[token] = value.Sub(value, amount)
	v.emit(DecreaseUsdgAmount{Token: token, Amount: cloneBig(amount)})
}

func (v *Vault) increaseReservedAmount(token common.Address, amount *big.Int) error {
	next := new(big.Int).Add(cloneBig(v.reservedAmounts[token]), amount)
	if next.Cmp(cloneBig(v.poolAmounts[token])) > 0 {
		return v.codedError(errReserveExceedsPool)
	}
	v.reservedAmounts[token] = next
	v.emit(IncreaseReservedAmount{Token: token, Amount: cloneBig(amount)})
	return nil
}

func (v *Vault) decreaseReservedAmount(token common.Address, amount *big.Int) error {
	value := cloneBig(v.reservedAmounts[token])
	if value.Cmp(amount) < 0 {
		return v.codedError(errInvalidPosition)
	}
	v.reservedAmounts[token] = value.Sub(value, amount)
	v.emit(DecreaseReservedAmount{Token: token, Amount: cloneBig(amount)})
	return nil
}

func (v *Vault) increaseGuaranteedUsd(token common.Address, usdAmount *big.Int) {
	v.guaranteedUsd[token] = new(big.Int).Add(cloneBig(v.guaranteedUsd[token]), usdAmount)
	v.emit(IncreaseGuaranteedUsd{Token: token, Amount: cloneBig(usdAmount)})
}

func (v *Vault) decreaseGuaranteedUsd(token common.Address, usdAmount *big.Int) {
	v.guaranteedUsd[token] = saturatingSub(v.guaranteedUsd[token], usdAmount)
	v.emit(DecreaseGuaranteedUsd{Token: token, Amount: cloneBig(usdAmount)})
}

func (v *Vault) increaseGlobalShortSize(token common.Address, amount *big.Int) error {
	next := new(big.Int).Add(cloneBig(v.globalShortSizes[token]), amount)
	v.globalShortSizes[token] = next
	max := v.maxGlobalShortSizes[token]
	if max != nil && max.Sign() > 0 && next.Cmp(max) > 0 {
		return v.codedError(errMaxShortsExceeded)
	}
	return nil
}

func (v *Vault) decreaseGlobalShortSize(token common.Address, amount *big.Int) {
	v.globalShortSizes[token] = saturatingSub(v.globalShortSizes[token], amount)
}

// DirectPoolDeposit credits pre-transferred tokens straight into the pool
// without minting USDG against them.
func (v *Vault) DirectPoolDeposit(token common.Address) (err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err = v.validateWhitelisted(token, errTokenNotWhitelisted); err != nil {
		return err
	}
	snap := v.beginOp(token)
	defer func() { v.endOp(snap, err) }()

	amount := v.transferIn(token)
	if amount.Sign() == 0 {
		return v.codedError(errInvalidTokenAmount)
	}
	if err = v.increasePoolAmount(token, amount); err != nil {
		return err
	}
	v.emit(DirectPoolDeposit{Token: token, Amount: cloneBig(amount)})
	return nil
}

// SetUsdgAmount lets governance converge a token's recorded debt toward the
// actual amount, in either direction.
func (v *Vault) SetUsdgAmount(token common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	current := cloneBig(v.usdgAmounts[token])
	if amount.Cmp(current) > 0 {
		return v.increaseUsdgAmount(token, new(big.Int).Sub(amount, current))
	}
	v.decreaseUsdgAmount(token, new(big.Int).Sub(current, amount))
	return nil
}

// PoolAmount reports the pool balance backing swaps and leverage for token.
func (v *Vault) PoolAmount(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.poolAmounts[token])
}

// ReservedAmount reports the tokens locked for open positions.
func (v *Vault) ReservedAmount(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.reservedAmounts[token])
}

// UsdgAmount reports the USDG debt recorded against token.
func (v *Vault) UsdgAmount(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.usdgAmounts[token])
}

// GuaranteedUsd reports the aggregate size-minus-collateral of long
// positions collateralized in token.
func (v *Vault) GuaranteedUsd(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.guaranteedUsd[token])
}

// GlobalShortSize reports the aggregate short notional for an index token.
func (v *Vault) GlobalShortSize(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.globalShortSizes[token])
}

// GlobalShortAveragePrice reports the blended entry price of the short book.
func (v *Vault) GlobalShortAveragePrice(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.globalShortAveragePrices[token])
}

// BufferAmount reports the configured pool floor for token.
func (v *Vault) BufferAmount(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return cloneBig(v.bufferAmounts[token])
}
