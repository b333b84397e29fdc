package vault

import (
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Fixed-point scales shared by every monetary quantity the vault tracks.
// Prices and USD values are scaled by PricePrecision, funding rates by
// FundingRatePrecision, and fee/leverage parameters are expressed in basis
// points against BasisPointsDivisor. Token amounts always carry the native
// decimal scale of their asset.
const (
	BasisPointsDivisor   = 10_000
	FundingRatePrecision = 1_000_000
	UsdgDecimals         = 18

	MinLeverageBps = 10_000 // 1x

	MaxFeeBasisPoints        = 500   // 5%
	MaxFundingRateFactor     = 10_000
	MinFundingRateInterval   = 3600  // seconds
	MaxMinProfitTime         = 3600 * 24
)

var (
	// PricePrecision is the 10^30 scale applied to oracle prices and USD values.
	PricePrecision = mustBigInt("1000000000000000000000000000000")

	// MaxLiquidationFeeUsd caps the governance configurable liquidation fee.
	MaxLiquidationFeeUsd = new(big.Int).Mul(big.NewInt(100), PricePrecision)
)

// PriceOracle supplies min/max prices for an asset at PricePrecision scale.
// The maximise flag selects the max-price leg, includeAmm and useSwapPricing
// are pricing hints threaded through from the calling operation.
type PriceOracle interface {
	GetPrice(token common.Address, maximise, includeAmm, useSwapPricing bool) (*big.Int, error)
}

// DebtToken is the dollar-pegged token minted against pooled collateral. It
// carries 18 decimals.
type DebtToken interface {
	Mint(to common.Address, amount *big.Int) error
	Burn(from common.Address, amount *big.Int) error
	TotalSupply() *big.Int
	BalanceOf(who common.Address) *big.Int
}

// TokenLedger is the custodial balance view for every whitelisted asset.
// Callers pre-credit the vault's balance before invoking an operation; the
// vault never pulls funds itself.
type TokenLedger interface {
	BalanceOf(token, who common.Address) *big.Int
	Transfer(token, to common.Address, amount *big.Int) error
}

// Position tracks one leveraged exposure keyed by
// (account, collateralToken, indexToken, isLong).
type Position struct {
	// Size is the notional exposure in USD at PricePrecision scale.
	Size *big.Int
	// Collateral is the margin backing the position in USD.
	Collateral *big.Int
	// AveragePrice is the blended entry price at PricePrecision scale.
	AveragePrice *big.Int
	// EntryFundingRate snapshots the collateral token's cumulative funding
	// rate at the last increase.
	EntryFundingRate *big.Int
	// ReserveAmount is the collateral-token amount locked in the pool to
	// cover the position's maximum payout.
	ReserveAmount *big.Int
	// RealisedPnl accumulates settled profit and loss. It is the only signed
	// monetary field on the record.
	RealisedPnl *big.Int
	// LastIncreasedTime is the unix time of the most recent increase, used by
	// the minimum-profit floor.
	LastIncreasedTime int64
}

func newPosition() *Position {
	return &Position{
		Size:             big.NewInt(0),
		Collateral:       big.NewInt(0),
		AveragePrice:     big.NewInt(0),
		EntryFundingRate: big.NewInt(0),
		ReserveAmount:    big.NewInt(0),
		RealisedPnl:      big.NewInt(0),
	}
}

// Clone returns a deep copy so callers cannot mutate vault-held records.
func (p *Position) Clone() *Position {
	if p == nil {
		return nil
	}
	clone := &Position{LastIncreasedTime: p.LastIncreasedTime}
	clone.Size = cloneBig(p.Size)
	clone.Collateral = cloneBig(p.Collateral)
	clone.AveragePrice = cloneBig(p.AveragePrice)
	clone.EntryFundingRate = cloneBig(p.EntryFundingRate)
	clone.ReserveAmount = cloneBig(p.ReserveAmount)
	clone.RealisedPnl = cloneBig(p.RealisedPnl)
	return clone
}

// TokenConfig is the registry record for a whitelisted asset.
type TokenConfig struct {
	Decimals           uint64
	Weight             uint64
	MinProfitBasisPoints uint64
	MaxUsdgAmount      *big.Int
	IsStable           bool
	IsShortable        bool
}

func cloneBig(v *big.Int) *big.Int {
	if v == nil {
		return big.NewInt(0)
	}
	return new(big.Int).Set(v)
}

func mustBigInt(value string) *big.Int {
	v, ok := new(big.Int).SetString(value, 10)
	if !ok {
		panic("vault: invalid big integer constant")
	}
	return v
}
