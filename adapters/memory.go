// Package adapters provides in-process implementations of the vault's
// collaborator contracts. They back the development daemon and integration
// tests; production deployments substitute real custody and oracle wiring.
package adapters

import (
	"errors"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

// MemoryLedger is an in-memory token custody ledger.
type MemoryLedger struct {
	mu       sync.RWMutex
	balances map[common.Address]map[common.Address]*big.Int
}

// NewMemoryLedger returns an empty ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{balances: make(map[common.Address]map[common.Address]*big.Int)}
}

// Credit mints amount of token to who. Used to pre-fund the vault before an
// operation, mirroring an on-chain transfer-then-call sequence.
func (l *MemoryLedger) Credit(token, who common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, who, amount)
}

func (l *MemoryLedger) credit(token, who common.Address, amount *big.Int) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*big.Int)
	}
	current := l.balances[token][who]
	if current == nil {
		current = big.NewInt(0)
	}
	l.balances[token][who] = new(big.Int).Add(current, amount)
}

// Debit burns amount of token from who, saturating at zero.
func (l *MemoryLedger) Debit(token, who common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balances[token][who]
	if current == nil {
		return
	}
	next := new(big.Int).Sub(current, amount)
	if next.Sign() < 0 {
		next = big.NewInt(0)
	}
	l.balances[token][who] = next
}

// BalanceOf implements vault.TokenLedger.
func (l *MemoryLedger) BalanceOf(token, who common.Address) *big.Int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	balance := l.balances[token][who]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

// OwnedLedger binds a MemoryLedger to the address whose balance outbound
// transfers debit; the vault is the only caller of Transfer.
type OwnedLedger struct {
	*MemoryLedger
	Owner common.Address
}

// Transfer implements vault.TokenLedger.
func (l *OwnedLedger) Transfer(token, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("adapters: invalid transfer amount")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[token][l.Owner]
	if balance == nil || balance.Cmp(amount) < 0 {
		return errors.New("adapters: insufficient balance")
	}
	l.balances[token][l.Owner] = new(big.Int).Sub(balance, amount)
	l.credit(token, to, amount)
	return nil
}

// MemoryDebtToken is an in-memory USDG implementation with 18 decimals.
type MemoryDebtToken struct {
	mu sync.RWMutex
	// Ledger mirrors balances under the token's address so the vault's
	// diff-based intake sees mints and burns.
	Ledger  *MemoryLedger
	Address common.Address

	supply *big.Int
}

// NewMemoryDebtToken returns an empty debt token mirrored into ledger.
func NewMemoryDebtToken(ledger *MemoryLedger, address common.Address) *MemoryDebtToken {
	return &MemoryDebtToken{Ledger: ledger, Address: address, supply: big.NewInt(0)}
}

// Mint implements vault.DebtToken.
func (t *MemoryDebtToken) Mint(to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("adapters: invalid mint amount")
	}
	t.mu.Lock()
	t.supply = new(big.Int).Add(t.supply, amount)
	t.mu.Unlock()
	t.Ledger.Credit(t.Address, to, amount)
	return nil
}

// Burn implements vault.DebtToken.
func (t *MemoryDebtToken) Burn(from common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return errors.New("adapters: invalid burn amount")
	}
	if t.Ledger.BalanceOf(t.Address, from).Cmp(amount) < 0 {
		return errors.New("adapters: burn exceeds balance")
	}
	t.mu.Lock()
	t.supply = new(big.Int).Sub(t.supply, amount)
	t.mu.Unlock()
	t.Ledger.Debit(t.Address, from, amount)
	return nil
}

// TotalSupply implements vault.DebtToken.
func (t *MemoryDebtToken) TotalSupply() *big.Int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return new(big.Int).Set(t.supply)
}

// BalanceOf implements vault.DebtToken.
func (t *MemoryDebtToken) BalanceOf(who common.Address) *big.Int {
	return t.Ledger.BalanceOf(t.Address, who)
}

// StaticOracle serves operator-set min/max prices per token.
type StaticOracle struct {
	mu     sync.RWMutex
	prices map[common.Address][2]*big.Int
}

// NewStaticOracle returns an oracle with no prices configured.
func NewStaticOracle() *StaticOracle {
	return &StaticOracle{prices: make(map[common.Address][2]*big.Int)}
}

// SetPrice installs the min and max price for token at 10^30 scale.
func (o *StaticOracle) SetPrice(token common.Address, minPrice, maxPrice *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[token] = [2]*big.Int{new(big.Int).Set(minPrice), new(big.Int).Set(maxPrice)}
}

// GetPrice implements vault.PriceOracle. The AMM and swap-pricing hints are
// accepted for contract compatibility; a static feed has a single source.
func (o *StaticOracle) GetPrice(token common.Address, maximise, includeAmm, useSwapPricing bool) (*big.Int, error) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	pair, ok := o.prices[token]
	if !ok {
		return nil, errors.New("adapters: no price for token")
	}
	if maximise {
		return new(big.Int).Set(pair[1]), nil
	}
	return new(big.Int).Set(pair[0]), nil
}
