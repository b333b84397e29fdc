package vault

import (
	"bytes"
	"math/big"
	"sort"

	"github.com/ethereum/go-ethereum/common"
)

// State is the portable snapshot of every book the vault keeps. Amounts are
// unsigned; RealisedPnl carries an explicit sign flag so the snapshot can be
// RLP-encoded.

// TokenState captures one token's registry record and ledgers.
type TokenState struct {
	Token                common.Address
	Decimals             uint64
	Weight               uint64
	MinProfitBasisPoints uint64
	MaxUsdgAmount        *big.Int
	IsStable             bool
	IsShortable          bool

	TokenBalance   *big.Int
	PoolAmount     *big.Int
	ReservedAmount *big.Int
	UsdgAmount     *big.Int
	BufferAmount   *big.Int
	GuaranteedUsd  *big.Int
	FeeReserve     *big.Int

	CumulativeFundingRate *big.Int
	LastFundingTime       uint64
	HasFundingTime        bool

	GlobalShortSize         *big.Int
	GlobalShortAveragePrice *big.Int
	MaxGlobalShortSize      *big.Int
}

// PositionState captures one stored position.
type PositionState struct {
	Key               [32]byte
	Size              *big.Int
	Collateral        *big.Int
	AveragePrice      *big.Int
	EntryFundingRate  *big.Int
	ReserveAmount     *big.Int
	RealisedPnlAbs    *big.Int
	RealisedPnlNeg    bool
	LastIncreasedTime uint64
}

// State is the full vault snapshot.
type State struct {
	Tokens               []TokenState
	AllWhitelistedTokens []common.Address
	TotalTokenWeights    uint64
	Positions            []PositionState

	IsSwapEnabled     bool
	IsLeverageEnabled bool
	MaxLeverage       uint64

	LiquidationFeeUsd        *big.Int
	TaxBasisPoints           uint64
	StableTaxBasisPoints     uint64
	MintBurnFeeBasisPoints   uint64
	SwapFeeBasisPoints       uint64
	StableSwapFeeBasisPoints uint64
	MarginFeeBasisPoints     uint64
	MinProfitTime            uint64
	HasDynamicFees           bool

	FundingInterval         uint64
	FundingRateFactor       uint64
	StableFundingRateFactor uint64
}

// ExportState snapshots the vault's books and parameters.
func (v *Vault) ExportState() *State {
	v.mu.Lock()
	defer v.mu.Unlock()

	state := &State{
		AllWhitelistedTokens: append([]common.Address{}, v.allWhitelistedTokens...),
		TotalTokenWeights:    v.totalTokenWeights,

		IsSwapEnabled:     v.isSwapEnabled,
		IsLeverageEnabled: v.isLeverageEnabled,
		MaxLeverage:       v.maxLeverage,

		LiquidationFeeUsd:        cloneBig(v.liquidationFeeUsd),
		TaxBasisPoints:           v.taxBasisPoints,
		StableTaxBasisPoints:     v.stableTaxBasisPoints,
		MintBurnFeeBasisPoints:   v.mintBurnFeeBasisPoints,
		SwapFeeBasisPoints:       v.swapFeeBasisPoints,
		StableSwapFeeBasisPoints: v.stableSwapFeeBasisPoints,
		MarginFeeBasisPoints:     v.marginFeeBasisPoints,
		MinProfitTime:            uint64(v.minProfitTime),
		HasDynamicFees:           v.hasDynamicFees,

		FundingInterval:         uint64(v.fundingInterval),
		FundingRateFactor:       v.fundingRateFactor,
		StableFundingRateFactor: v.stableFundingRateFactor,
	}

	tokens := make([]common.Address, 0, len(v.whitelistedTokens))
	for token := range v.whitelistedTokens {
		tokens = append(tokens, token)
	}
	sort.Slice(tokens, func(i, j int) bool {
		return bytes.Compare(tokens[i][:], tokens[j][:]) < 0
	})
	for _, token := range tokens {
		last, hasLast := v.lastFundingTimes[token]
		state.Tokens = append(state.Tokens, TokenState{
			Token:                token,
			Decimals:             v.tokenDecimals[token],
			Weight:               v.tokenWeights[token],
			MinProfitBasisPoints: v.minProfitBasisPoints[token],
			MaxUsdgAmount:        cloneBig(v.maxUsdgAmounts[token]),
			IsStable:             v.stableTokens[token],
			IsShortable:          v.shortableTokens[token],

			TokenBalance:   cloneBig(v.tokenBalances[token]),
			PoolAmount:     cloneBig(v.poolAmounts[token]),
			ReservedAmount: cloneBig(v.reservedAmounts[token]),
			UsdgAmount:     cloneBig(v.usdgAmounts[token]),
			BufferAmount:   cloneBig(v.bufferAmounts[token]),
			GuaranteedUsd:  cloneBig(v.guaranteedUsd[token]),
			FeeReserve:     cloneBig(v.feeReserves[token]),

			CumulativeFundingRate: cloneBig(v.cumulativeFundingRates[token]),
			LastFundingTime:       uint64(last),
			HasFundingTime:        hasLast,

			GlobalShortSize:         cloneBig(v.globalShortSizes[token]),
			GlobalShortAveragePrice: cloneBig(v.globalShortAveragePrices[token]),
			MaxGlobalShortSize:      cloneBig(v.maxGlobalShortSizes[token]),
		})
	}

	keys := make([]PositionKey, 0, len(v.positions))
	for key := range v.positions {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		return bytes.Compare(keys[i][:], keys[j][:]) < 0
	})
	for _, key := range keys {
		position := v.positions[key]
		realised := cloneBig(position.RealisedPnl)
		neg := realised.Sign() < 0
		state.Positions = append(state.Positions, PositionState{
			Key:               key,
			Size:              cloneBig(position.Size),
			Collateral:        cloneBig(position.Collateral),
			AveragePrice:      cloneBig(position.AveragePrice),
			EntryFundingRate:  cloneBig(position.EntryFundingRate),
			ReserveAmount:     cloneBig(position.ReserveAmount),
			RealisedPnlAbs:    realised.Abs(realised),
			RealisedPnlNeg:    neg,
			LastIncreasedTime: uint64(position.LastIncreasedTime),
		})
	}
	return state
}

// RestoreState replaces the vault's books and parameters with the snapshot.
func (v *Vault) RestoreState(state *State) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.allWhitelistedTokens = append([]common.Address{}, state.AllWhitelistedTokens...)
	v.totalTokenWeights = state.TotalTokenWeights

	v.isSwapEnabled = state.IsSwapEnabled
	v.isLeverageEnabled = state.IsLeverageEnabled
	v.maxLeverage = state.MaxLeverage

	v.liquidationFeeUsd = cloneBig(state.LiquidationFeeUsd)
	v.taxBasisPoints = state.TaxBasisPoints
	v.stableTaxBasisPoints = state.StableTaxBasisPoints
	v.mintBurnFeeBasisPoints = state.MintBurnFeeBasisPoints
	v.swapFeeBasisPoints = state.SwapFeeBasisPoints
	v.stableSwapFeeBasisPoints = state.StableSwapFeeBasisPoints
	v.marginFeeBasisPoints = state.MarginFeeBasisPoints
	v.minProfitTime = int64(state.MinProfitTime)
	v.hasDynamicFees = state.HasDynamicFees

	v.fundingInterval = int64(state.FundingInterval)
	v.fundingRateFactor = state.FundingRateFactor
	v.stableFundingRateFactor = state.StableFundingRateFactor

	v.whitelistedTokens = make(map[common.Address]bool)
	v.tokenDecimals = make(map[common.Address]uint64)
	v.tokenWeights = make(map[common.Address]uint64)
	v.minProfitBasisPoints = make(map[common.Address]uint64)
	v.maxUsdgAmounts = make(map[common.Address]*big.Int)
	v.stableTokens = make(map[common.Address]bool)
	v.shortableTokens = make(map[common.Address]bool)
	v.tokenBalances = make(map[common.Address]*big.Int)
	v.poolAmounts = make(map[common.Address]*big.Int)
	v.reservedAmounts = make(map[common.Address]*big.Int)
	v.usdgAmounts = make(map[common.Address]*big.Int)
	v.bufferAmounts = make(map[common.Address]*big.Int)
	v.guaranteedUsd = make(map[common.Address]*big.Int)
	v.feeReserves = make(map[common.Address]*big.Int)
	v.cumulativeFundingRates = make(map[common.Address]*big.Int)
	v.lastFundingTimes = make(map[common.Address]int64)
	v.globalShortSizes = make(map[common.Address]*big.Int)
	v.globalShortAveragePrices = make(map[common.Address]*big.Int)
	v.maxGlobalShortSizes = make(map[common.Address]*big.Int)

	for _, ts := range state.Tokens {
		token := ts.Token
		v.whitelistedTokens[token] = true
		v.tokenDecimals[token] = ts.Decimals
		v.tokenWeights[token] = ts.Weight
		v.minProfitBasisPoints[token] = ts.MinProfitBasisPoints
		v.maxUsdgAmounts[token] = cloneBig(ts.MaxUsdgAmount)
		v.stableTokens[token] = ts.IsStable
		v.shortableTokens[token] = ts.IsShortable
		v.tokenBalances[token] = cloneBig(ts.TokenBalance)
		v.poolAmounts[token] = cloneBig(ts.PoolAmount)
		v.reservedAmounts[token] = cloneBig(ts.ReservedAmount)
		v.usdgAmounts[token] = cloneBig(ts.UsdgAmount)
		v.bufferAmounts[token] = cloneBig(ts.BufferAmount)
		v.guaranteedUsd[token] = cloneBig(ts.GuaranteedUsd)
		v.feeReserves[token] = cloneBig(ts.FeeReserve)
		v.cumulativeFundingRates[token] = cloneBig(ts.CumulativeFundingRate)
		if ts.HasFundingTime {
			v.lastFundingTimes[token] = int64(ts.LastFundingTime)
		}
		v.globalShortSizes[token] = cloneBig(ts.GlobalShortSize)
		v.globalShortAveragePrices[token] = cloneBig(ts.GlobalShortAveragePrice)
		v.maxGlobalShortSizes[token] = cloneBig(ts.MaxGlobalShortSize)
	}
	v.whitelistedTokenCount = len(state.Tokens)

	v.positions = make(map[PositionKey]*Position)
	for _, ps := range state.Positions {
		realised := cloneBig(ps.RealisedPnlAbs)
		if ps.RealisedPnlNeg {
			realised.Neg(realised)
		}
		v.positions[PositionKey(ps.Key)] = &Position{
			Size:              cloneBig(ps.Size),
			Collateral:        cloneBig(ps.Collateral),
			AveragePrice:      cloneBig(ps.AveragePrice),
			EntryFundingRate:  cloneBig(ps.EntryFundingRate),
			ReserveAmount:     cloneBig(ps.ReserveAmount),
			RealisedPnl:       realised,
			LastIncreasedTime: int64(ps.LastIncreasedTime),
		}
	}
}
