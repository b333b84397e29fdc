package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// The vault never pulls funds. Callers credit the vault's custodial balance
// first and the next operation picks the delta up by diffing the recorded
// balance against the actual one.

func (v *Vault) transferIn(token common.Address) *big.Int {
	prev := v.recordedBalance(token)
	next := v.custodialBalance(token)
	v.tokenBalances[token] = next
	return saturatingSub(next, prev)
}

func (v *Vault) transferOut(token common.Address, amount *big.Int, receiver common.Address) error {
	if err := v.ledger.Transfer(token, receiver, amount); err != nil {
		return err
	}
	v.resyncTokenBalance(token)
	return nil
}

// resyncTokenBalance records the actual custodial balance without moving
// funds. Used after debt-token burns and custody upgrades.
func (v *Vault) resyncTokenBalance(token common.Address) {
	v.tokenBalances[token] = v.custodialBalance(token)
}

func (v *Vault) custodialBalance(token common.Address) *big.Int {
	return cloneBig(v.ledger.BalanceOf(token, v.self))
}

func (v *Vault) recordedBalance(token common.Address) *big.Int {
	return cloneBig(v.tokenBalances[token])
}

// TokenBalance reports the recorded custodial balance for token.
func (v *Vault) TokenBalance(token common.Address) *big.Int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.recordedBalance(token)
}

// UpdateTokenBalance resyncs the recorded balance to the custodial one.
func (v *Vault) UpdateTokenBalance(token common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.resyncTokenBalance(token)
}
