package vault

import (
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"perpvault/core/events"
)

// Vault is the collateralized perpetual-swap vault: a multi-asset pool that
// backs a dollar-pegged debt token, swaps between whitelisted assets, and
// carries leveraged long/short positions against pool liquidity.
//
// Every public operation runs to completion under a single mutex. Mutating
// flows snapshot the entries they touch and restore them on error, so a
// failed operation leaves state untouched.
type Vault struct {
	mu sync.Mutex

	self      common.Address
	gov       common.Address
	router    common.Address
	usdgToken common.Address

	priceFeed PriceOracle
	usdg      DebtToken
	ledger    TokenLedger
	utils     FeeUtils
	emitter   events.Emitter
	now       func() time.Time

	isInitialized     bool
	isSwapEnabled     bool
	isLeverageEnabled bool

	inManagerMode            bool
	inPrivateLiquidationMode bool
	managers                 map[common.Address]bool
	liquidators              map[common.Address]bool
	approvedRouters          map[common.Address]map[common.Address]bool

	maxGasPrice      *big.Int
	observedGasPrice *big.Int

	maxLeverage uint64 // basis points, 500000 = 50x

	liquidationFeeUsd        *big.Int
	taxBasisPoints           uint64
	stableTaxBasisPoints     uint64
	mintBurnFeeBasisPoints   uint64
	swapFeeBasisPoints       uint64
	stableSwapFeeBasisPoints uint64
	marginFeeBasisPoints     uint64
	minProfitTime            int64
	hasDynamicFees           bool

	fundingInterval         int64 // seconds
	fundingRateFactor       uint64
	stableFundingRateFactor uint64

	includeAmmPrice bool
	useSwapPricing  bool

	whitelistedTokenCount int
	allWhitelistedTokens  []common.Address
	whitelistedTokens     map[common.Address]bool
	tokenDecimals         map[common.Address]uint64
	tokenWeights          map[common.Address]uint64
	minProfitBasisPoints  map[common.Address]uint64
	maxUsdgAmounts        map[common.Address]*big.Int
	stableTokens          map[common.Address]bool
	shortableTokens       map[common.Address]bool
	totalTokenWeights     uint64

	tokenBalances   map[common.Address]*big.Int
	poolAmounts     map[common.Address]*big.Int
	reservedAmounts map[common.Address]*big.Int
	usdgAmounts     map[common.Address]*big.Int
	bufferAmounts   map[common.Address]*big.Int
	guaranteedUsd   map[common.Address]*big.Int
	feeReserves     map[common.Address]*big.Int

	cumulativeFundingRates map[common.Address]*big.Int
	lastFundingTimes       map[common.Address]int64

	globalShortSizes         map[common.Address]*big.Int
	globalShortAveragePrices map[common.Address]*big.Int
	maxGlobalShortSizes      map[common.Address]*big.Int

	positions map[PositionKey]*Position

	buffering bool
	pending   []events.Event

	errorMessages map[uint16]string
}

// Option tunes vault construction.
type Option func(*Vault)

// WithEmitter wires an event subscriber.
func WithEmitter(e events.Emitter) Option {
	return func(v *Vault) {
		if e != nil {
			v.emitter = e
		}
	}
}

// WithClock overrides the time source. Used by tests and replay tooling.
func WithClock(now func() time.Time) Option {
	return func(v *Vault) {
		if now != nil {
			v.now = now
		}
	}
}

// New constructs an uninitialised vault bound to its custodial identity and
// governance address.
func New(self, gov common.Address, ledger TokenLedger, opts ...Option) *Vault {
	v := &Vault{
		self:   self,
		gov:    gov,
		ledger: ledger,

		isSwapEnabled:     true,
		isLeverageEnabled: true,
		includeAmmPrice:   true,

		maxLeverage: 50 * BasisPointsDivisor,

		taxBasisPoints:           50,
		stableTaxBasisPoints:     20,
		mintBurnFeeBasisPoints:   30,
		swapFeeBasisPoints:       30,
		stableSwapFeeBasisPoints: 4,
		marginFeeBasisPoints:     10,

		fundingInterval:         8 * 3600,
		fundingRateFactor:       600,
		stableFundingRateFactor: 600,

		managers:        make(map[common.Address]bool),
		liquidators:     make(map[common.Address]bool),
		approvedRouters: make(map[common.Address]map[common.Address]bool),

		whitelistedTokens:    make(map[common.Address]bool),
		tokenDecimals:        make(map[common.Address]uint64),
		tokenWeights:         make(map[common.Address]uint64),
		minProfitBasisPoints: make(map[common.Address]uint64),
		maxUsdgAmounts:       make(map[common.Address]*big.Int),
		stableTokens:         make(map[common.Address]bool),
		shortableTokens:      make(map[common.Address]bool),

		tokenBalances:   make(map[common.Address]*big.Int),
		poolAmounts:     make(map[common.Address]*big.Int),
		reservedAmounts: make(map[common.Address]*big.Int),
		usdgAmounts:     make(map[common.Address]*big.Int),
		bufferAmounts:   make(map[common.Address]*big.Int),
		guaranteedUsd:   make(map[common.Address]*big.Int),
		feeReserves:     make(map[common.Address]*big.Int),

		cumulativeFundingRates: make(map[common.Address]*big.Int),
		lastFundingTimes:       make(map[common.Address]int64),

		globalShortSizes:         make(map[common.Address]*big.Int),
		globalShortAveragePrices: make(map[common.Address]*big.Int),
		maxGlobalShortSizes:      make(map[common.Address]*big.Int),

		positions: make(map[PositionKey]*Position),

		liquidationFeeUsd: big.NewInt(0),

		emitter: events.NoopEmitter{},
		now:     time.Now,

		errorMessages: defaultErrors(),
	}
	v.utils = NewFeeUtils(v)
	for _, opt := range opts {
		opt(v)
	}
	return v
}

// Initialize wires the collaborators and the initial risk parameters. It can
// run exactly once.
func (v *Vault) Initialize(router common.Address, usdg DebtToken, usdgToken common.Address, priceFeed PriceOracle, liquidationFeeUsd *big.Int, fundingRateFactor, stableFundingRateFactor uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.isInitialized {
		return v.codedError(errAlreadyInitialized)
	}
	v.isInitialized = true
	v.router = router
	v.usdg = usdg
	v.usdgToken = usdgToken
	v.priceFeed = priceFeed
	v.liquidationFeeUsd = cloneBig(liquidationFeeUsd)
	v.fundingRateFactor = fundingRateFactor
	v.stableFundingRateFactor = stableFundingRateFactor
	return nil
}

// SetVaultUtils swaps the fee policy implementation.
func (v *Vault) SetVaultUtils(utils FeeUtils) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if utils != nil {
		v.utils = utils
	}
}

// SetGov hands governance to a new address.
func (v *Vault) SetGov(gov common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.gov = gov
}

// Gov returns the current governance address.
func (v *Vault) Gov() common.Address {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.gov
}

// SetPriceFeed swaps the oracle adapter.
func (v *Vault) SetPriceFeed(feed PriceOracle) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.priceFeed = feed
}

// SetInManagerMode restricts mint/redeem to approved managers.
func (v *Vault) SetInManagerMode(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inManagerMode = enabled
}

// SetManager approves or revokes a mint/redeem manager.
func (v *Vault) SetManager(manager common.Address, approved bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if approved {
		v.managers[manager] = true
	} else {
		delete(v.managers, manager)
	}
}

// SetInPrivateLiquidationMode restricts liquidations to approved liquidators.
func (v *Vault) SetInPrivateLiquidationMode(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.inPrivateLiquidationMode = enabled
}

// SetLiquidator approves or revokes a liquidator.
func (v *Vault) SetLiquidator(liquidator common.Address, approved bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if approved {
		v.liquidators[liquidator] = true
	} else {
		delete(v.liquidators, liquidator)
	}
}

// SetIsSwapEnabled toggles the swap engine.
func (v *Vault) SetIsSwapEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isSwapEnabled = enabled
}

// SetIsLeverageEnabled toggles position opening.
func (v *Vault) SetIsLeverageEnabled(enabled bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.isLeverageEnabled = enabled
}

// SetMaxGasPrice caps the observed gas price accepted on user operations.
// Zero disables the guard.
func (v *Vault) SetMaxGasPrice(price *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxGasPrice = cloneBig(price)
}

// SetObservedGasPrice records the gas price the transport observed for the
// next user operation. The ceiling guard compares against it when set.
func (v *Vault) SetObservedGasPrice(price *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.observedGasPrice = cloneBig(price)
}

// SetMaxLeverage bounds position leverage in basis points. The floor keeps a
// misconfiguration from bricking every open position.
func (v *Vault) SetMaxLeverage(maxLeverage uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if maxLeverage <= MinLeverageBps {
		return v.codedError(errInvalidMaxLeverage)
	}
	v.maxLeverage = maxLeverage
	return nil
}

// SetBufferAmount sets the floor the pool may not be drawn below for a token.
func (v *Vault) SetBufferAmount(token common.Address, amount *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.bufferAmounts[token] = cloneBig(amount)
}

// SetMaxGlobalShortSize caps the aggregate short book for an index token.
// Zero removes the cap.
func (v *Vault) SetMaxGlobalShortSize(token common.Address, size *big.Int) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.maxGlobalShortSizes[token] = cloneBig(size)
}

// SetFees installs the fee schedule. Every leg is bounds-checked before any
// field changes.
func (v *Vault) SetFees(taxBps, stableTaxBps, mintBurnFeeBps, swapFeeBps, stableSwapFeeBps, marginFeeBps uint64, liquidationFeeUsd *big.Int, minProfitTime int64, hasDynamicFees bool) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case taxBps > MaxFeeBasisPoints:
		return v.codedError(errInvalidTaxBps)
	case stableTaxBps > MaxFeeBasisPoints:
		return v.codedError(errInvalidStableTaxBps)
	case mintBurnFeeBps > MaxFeeBasisPoints:
		return v.codedError(errInvalidMintBurnFeeBps)
	case swapFeeBps > MaxFeeBasisPoints:
		return v.codedError(errInvalidSwapFeeBps)
	case stableSwapFeeBps > MaxFeeBasisPoints:
		return v.codedError(errInvalidStableSwapFeeBps)
	case marginFeeBps > MaxFeeBasisPoints:
		return v.codedError(errInvalidMarginFeeBps)
	case liquidationFeeUsd != nil && liquidationFeeUsd.Cmp(MaxLiquidationFeeUsd) > 0:
		return v.codedError(errInvalidLiquidationFeeUsd)
	case minProfitTime < 0 || minProfitTime > MaxMinProfitTime:
		return v.codedError(errInvalidFundingInterval)
	}
	v.taxBasisPoints = taxBps
	v.stableTaxBasisPoints = stableTaxBps
	v.mintBurnFeeBasisPoints = mintBurnFeeBps
	v.swapFeeBasisPoints = swapFeeBps
	v.stableSwapFeeBasisPoints = stableSwapFeeBps
	v.marginFeeBasisPoints = marginFeeBps
	v.liquidationFeeUsd = cloneBig(liquidationFeeUsd)
	v.minProfitTime = minProfitTime
	v.hasDynamicFees = hasDynamicFees
	return nil
}

// SetFundingRate installs the funding accrual parameters.
func (v *Vault) SetFundingRate(interval int64, fundingRateFactor, stableFundingRateFactor uint64) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	switch {
	case interval < MinFundingRateInterval:
		return v.codedError(errInvalidFundingInterval)
	case fundingRateFactor > MaxFundingRateFactor:
		return v.codedError(errInvalidFundingFactor)
	case stableFundingRateFactor > MaxFundingRateFactor:
		return v.codedError(errInvalidStableFundingFactor)
	}
	v.fundingInterval = interval
	v.fundingRateFactor = fundingRateFactor
	v.stableFundingRateFactor = stableFundingRateFactor
	return nil
}

// AddRouter lets account delegate position management to router.
func (v *Vault) AddRouter(account, router common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.approvedRouters[account] == nil {
		v.approvedRouters[account] = make(map[common.Address]bool)
	}
	v.approvedRouters[account][router] = true
}

// RemoveRouter revokes a delegated router.
func (v *Vault) RemoveRouter(account, router common.Address) {
	v.mu.Lock()
	defer v.mu.Unlock()
	delete(v.approvedRouters[account], router)
}

// UpgradeVault moves custody of a token amount to a successor vault. The
// recorded balance resyncs afterwards so the diff-based intake stays honest.
func (v *Vault) UpgradeVault(newVault, token common.Address, amount *big.Int) error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if err := v.ledger.Transfer(token, newVault, amount); err != nil {
		return err
	}
	v.resyncTokenBalance(token)
	return nil
}

func (v *Vault) validateManager(sender common.Address) error {
	if !v.inManagerMode {
		return nil
	}
	if !v.managers[sender] {
		return v.codedError(errForbiddenNonManager)
	}
	return nil
}

func (v *Vault) validateRouter(sender, account common.Address) error {
	if sender == account || sender == v.router {
		return nil
	}
	if v.approvedRouters[account][sender] {
		return nil
	}
	return v.codedError(errInvalidRouter)
}

func (v *Vault) validateGasPrice() error {
	if v.maxGasPrice == nil || v.maxGasPrice.Sign() == 0 {
		return nil
	}
	if v.observedGasPrice != nil && v.observedGasPrice.Cmp(v.maxGasPrice) > 0 {
		return v.codedError(errMaxGasPriceExceeded)
	}
	return nil
}

func (v *Vault) validateWhitelisted(token common.Address, code uint16) error {
	if !v.whitelistedTokens[token] {
		return v.codedError(code)
	}
	return nil
}

func (v *Vault) emit(e events.Event) {
	if v.buffering {
		v.pending = append(v.pending, e)
		return
	}
	v.emitter.Emit(e)
}

func (v *Vault) nowUnix() int64 {
	return v.now().Unix()
}
