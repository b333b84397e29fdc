package vault

import (
	"errors"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

var (
	vaultAddr  = common.HexToAddress("0x00000000000000000000000000000000000000aa")
	govAddr    = common.HexToAddress("0x00000000000000000000000000000000000000ab")
	routerAddr = common.HexToAddress("0x00000000000000000000000000000000000000ac")
	usdgAddr   = common.HexToAddress("0x00000000000000000000000000000000000000ad")

	usdcToken = common.HexToAddress("0x0000000000000000000000000000000000000101")
	ethToken  = common.HexToAddress("0x0000000000000000000000000000000000000102")
	btcToken  = common.HexToAddress("0x0000000000000000000000000000000000000103")

	alice       = common.HexToAddress("0x0000000000000000000000000000000000000201")
	bob         = common.HexToAddress("0x0000000000000000000000000000000000000202")
	feeReceiver = common.HexToAddress("0x0000000000000000000000000000000000000203")
)

func e30(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), PricePrecision)
}

func e18(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(18))
}

func e6(n int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), pow10(6))
}

type mockLedger struct {
	mu       sync.Mutex
	owner    common.Address
	balances map[common.Address]map[common.Address]*big.Int
}

func newMockLedger(owner common.Address) *mockLedger {
	return &mockLedger{owner: owner, balances: make(map[common.Address]map[common.Address]*big.Int)}
}

func (l *mockLedger) credit(token, who common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.creditLocked(token, who, amount)
}

func (l *mockLedger) creditLocked(token, who common.Address, amount *big.Int) {
	if l.balances[token] == nil {
		l.balances[token] = make(map[common.Address]*big.Int)
	}
	current := l.balances[token][who]
	if current == nil {
		current = big.NewInt(0)
	}
	l.balances[token][who] = new(big.Int).Add(current, amount)
}

func (l *mockLedger) debit(token, who common.Address, amount *big.Int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	current := l.balances[token][who]
	if current == nil {
		return
	}
	l.balances[token][who] = new(big.Int).Sub(current, amount)
}

func (l *mockLedger) BalanceOf(token, who common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[token][who]
	if balance == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(balance)
}

func (l *mockLedger) Transfer(token, to common.Address, amount *big.Int) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	balance := l.balances[token][l.owner]
	if balance == nil || balance.Cmp(amount) < 0 {
		return errors.New("mock ledger: insufficient balance")
	}
	l.balances[token][l.owner] = new(big.Int).Sub(balance, amount)
	l.creditLocked(token, to, amount)
	return nil
}

type mockOracle struct {
	mu     sync.Mutex
	prices map[common.Address][2]*big.Int
}

func newMockOracle() *mockOracle {
	return &mockOracle{prices: make(map[common.Address][2]*big.Int)}
}

func (o *mockOracle) setPrice(token common.Address, minPrice, maxPrice *big.Int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.prices[token] = [2]*big.Int{new(big.Int).Set(minPrice), new(big.Int).Set(maxPrice)}
}

func (o *mockOracle) GetPrice(token common.Address, maximise, includeAmm, useSwapPricing bool) (*big.Int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	pair, ok := o.prices[token]
	if !ok {
		return nil, errors.New("mock oracle: no price")
	}
	if maximise {
		return new(big.Int).Set(pair[1]), nil
	}
	return new(big.Int).Set(pair[0]), nil
}

type mockUsdg struct {
	mu     sync.Mutex
	ledger *mockLedger
	supply *big.Int
}

func newMockUsdg(ledger *mockLedger) *mockUsdg {
	return &mockUsdg{ledger: ledger, supply: big.NewInt(0)}
}

func (t *mockUsdg) Mint(to common.Address, amount *big.Int) error {
	t.mu.Lock()
	t.supply = new(big.Int).Add(t.supply, amount)
	t.mu.Unlock()
	t.ledger.credit(usdgAddr, to, amount)
	return nil
}

func (t *mockUsdg) Burn(from common.Address, amount *big.Int) error {
	if t.ledger.BalanceOf(usdgAddr, from).Cmp(amount) < 0 {
		return errors.New("mock usdg: burn exceeds balance")
	}
	t.mu.Lock()
	t.supply = new(big.Int).Sub(t.supply, amount)
	t.mu.Unlock()
	t.ledger.debit(usdgAddr, from, amount)
	return nil
}

func (t *mockUsdg) TotalSupply() *big.Int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return new(big.Int).Set(t.supply)
}

func (t *mockUsdg) BalanceOf(who common.Address) *big.Int {
	return t.ledger.BalanceOf(usdgAddr, who)
}

type testEnv struct {
	vault  *Vault
	ledger *mockLedger
	oracle *mockOracle
	usdg   *mockUsdg
	now    *int64
}

// newTestEnv wires a vault with USDC (stable, 6 decimals), ETH (shortable,
// 18 decimals), and BTC (shortable, 8 decimals) whitelisted.
func newTestEnv() *testEnv {
	ledger := newMockLedger(vaultAddr)
	oracle := newMockOracle()
	usdg := newMockUsdg(ledger)

	now := int64(1_700_000_000)
	env := &testEnv{ledger: ledger, oracle: oracle, usdg: usdg, now: &now}

	env.vault = New(vaultAddr, govAddr, ledger, WithClock(func() time.Time {
		return time.Unix(*env.now, 0)
	}))
	if err := env.vault.Initialize(routerAddr, usdg, usdgAddr, oracle, big.NewInt(0), 600, 600); err != nil {
		panic(err)
	}

	oracle.setPrice(usdcToken, e30(1), e30(1))
	oracle.setPrice(ethToken, e30(2000), e30(2000))
	oracle.setPrice(btcToken, e30(60000), e30(60000))

	mustNoErr(env.vault.SetTokenConfig(usdcToken, 6, 10000, 0, big.NewInt(0), true, false))
	mustNoErr(env.vault.SetTokenConfig(ethToken, 18, 10000, 0, big.NewInt(0), false, true))
	mustNoErr(env.vault.SetTokenConfig(btcToken, 8, 10000, 0, big.NewInt(0), false, true))
	return env
}

func mustNoErr(err error) {
	if err != nil {
		panic(err)
	}
}

func (env *testEnv) advance(seconds int64) {
	*env.now += seconds
}

// deposit simulates a user pre-crediting the vault's custodial balance.
func (env *testEnv) deposit(token common.Address, amount *big.Int) {
	env.ledger.credit(token, vaultAddr, amount)
}

// fundPool seeds pool liquidity through a direct deposit.
func (env *testEnv) fundPool(token common.Address, amount *big.Int) {
	env.deposit(token, amount)
	mustNoErr(env.vault.DirectPoolDeposit(token))
}
