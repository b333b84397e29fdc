package vault

import (
	"math/big"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
)

// Event type identifiers emitted by the vault.
const (
	TypeBuyUSDG                = "vault.buy_usdg"
	TypeSellUSDG               = "vault.sell_usdg"
	TypeSwap                   = "vault.swap"
	TypeIncreasePosition       = "vault.increase_position"
	TypeDecreasePosition       = "vault.decrease_position"
	TypeLiquidatePosition      = "vault.liquidate_position"
	TypeUpdatePosition         = "vault.update_position"
	TypeClosePosition          = "vault.close_position"
	TypeUpdateFundingRate      = "vault.update_funding_rate"
	TypeUpdatePnl              = "vault.update_pnl"
	TypeCollectSwapFees        = "vault.collect_swap_fees"
	TypeCollectMarginFees      = "vault.collect_margin_fees"
	TypeDirectPoolDeposit      = "vault.direct_pool_deposit"
	TypeIncreasePoolAmount     = "vault.increase_pool_amount"
	TypeDecreasePoolAmount     = "vault.decrease_pool_amount"
	TypeIncreaseUsdgAmount     = "vault.increase_usdg_amount"
	TypeDecreaseUsdgAmount     = "vault.decrease_usdg_amount"
	TypeIncreaseReservedAmount = "vault.increase_reserved_amount"
	TypeDecreaseReservedAmount = "vault.decrease_reserved_amount"
	TypeIncreaseGuaranteedUsd  = "vault.increase_guaranteed_usd"
	TypeDecreaseGuaranteedUsd  = "vault.decrease_guaranteed_usd"
)

func bigAttr(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return v.String()
}

// BuyUSDG is emitted when USDG is minted against a deposit.
type BuyUSDG struct {
	Account        common.Address
	Token          common.Address
	TokenAmount    *big.Int
	UsdgAmount     *big.Int
	FeeBasisPoints uint64
}

func (BuyUSDG) EventType() string { return TypeBuyUSDG }

func (e BuyUSDG) Attributes() map[string]string {
	return map[string]string{
		"account":        e.Account.Hex(),
		"token":          e.Token.Hex(),
		"tokenAmount":    bigAttr(e.TokenAmount),
		"usdgAmount":     bigAttr(e.UsdgAmount),
		"feeBasisPoints": strconv.FormatUint(e.FeeBasisPoints, 10),
	}
}

// SellUSDG is emitted when USDG is redeemed for pooled tokens.
type SellUSDG struct {
	Account        common.Address
	Token          common.Address
	TokenAmount    *big.Int
	UsdgAmount     *big.Int
	FeeBasisPoints uint64
}

func (SellUSDG) EventType() string { return TypeSellUSDG }

func (e SellUSDG) Attributes() map[string]string {
	return map[string]string{
		"account":        e.Account.Hex(),
		"token":          e.Token.Hex(),
		"tokenAmount":    bigAttr(e.TokenAmount),
		"usdgAmount":     bigAttr(e.UsdgAmount),
		"feeBasisPoints": strconv.FormatUint(e.FeeBasisPoints, 10),
	}
}

// SwapEvent is emitted on a completed token swap.
type SwapEvent struct {
	Account            common.Address
	TokenIn            common.Address
	TokenOut           common.Address
	AmountIn           *big.Int
	AmountOut          *big.Int
	AmountOutAfterFees *big.Int
	FeeBasisPoints     uint64
}

func (SwapEvent) EventType() string { return TypeSwap }

func (e SwapEvent) Attributes() map[string]string {
	return map[string]string{
		"account":            e.Account.Hex(),
		"tokenIn":            e.TokenIn.Hex(),
		"tokenOut":           e.TokenOut.Hex(),
		"amountIn":           bigAttr(e.AmountIn),
		"amountOut":          bigAttr(e.AmountOut),
		"amountOutAfterFees": bigAttr(e.AmountOutAfterFees),
		"feeBasisPoints":     strconv.FormatUint(e.FeeBasisPoints, 10),
	}
}

// IncreasePositionEvent is emitted when a position is opened or grown.
type IncreasePositionEvent struct {
	Key             PositionKey
	Account         common.Address
	CollateralToken common.Address
	IndexToken      common.Address
	CollateralDelta *big.Int
	SizeDelta       *big.Int
	IsLong          bool
	Price           *big.Int
	Fee             *big.Int
}

func (IncreasePositionEvent) EventType() string { return TypeIncreasePosition }

func (e IncreasePositionEvent) Attributes() map[string]string {
	return map[string]string{
		"key":             e.Key.Hex(),
		"account":         e.Account.Hex(),
		"collateralToken": e.CollateralToken.Hex(),
		"indexToken":      e.IndexToken.Hex(),
		"collateralDelta": bigAttr(e.CollateralDelta),
		"sizeDelta":       bigAttr(e.SizeDelta),
		"isLong":          strconv.FormatBool(e.IsLong),
		"price":           bigAttr(e.Price),
		"fee":             bigAttr(e.Fee),
	}
}

// DecreasePositionEvent is emitted when a position is shrunk or closed.
type DecreasePositionEvent struct {
	Key             PositionKey
	Account         common.Address
	CollateralToken common.Address
	IndexToken      common.Address
	CollateralDelta *big.Int
	SizeDelta       *big.Int
	IsLong          bool
	Price           *big.Int
	UsdOut          *big.Int
}

func (DecreasePositionEvent) EventType() string { return TypeDecreasePosition }

func (e DecreasePositionEvent) Attributes() map[string]string {
	return map[string]string{
		"key":             e.Key.Hex(),
		"account":         e.Account.Hex(),
		"collateralToken": e.CollateralToken.Hex(),
		"indexToken":      e.IndexToken.Hex(),
		"collateralDelta": bigAttr(e.CollateralDelta),
		"sizeDelta":       bigAttr(e.SizeDelta),
		"isLong":          strconv.FormatBool(e.IsLong),
		"price":           bigAttr(e.Price),
		"usdOut":          bigAttr(e.UsdOut),
	}
}

// LiquidatePositionEvent is emitted when a position is seized.
type LiquidatePositionEvent struct {
	Key             PositionKey
	Account         common.Address
	CollateralToken common.Address
	IndexToken      common.Address
	IsLong          bool
	Size            *big.Int
	Collateral      *big.Int
	ReserveAmount   *big.Int
	RealisedPnl     *big.Int
	MarkPrice       *big.Int
}

func (LiquidatePositionEvent) EventType() string { return TypeLiquidatePosition }

func (e LiquidatePositionEvent) Attributes() map[string]string {
	return map[string]string{
		"key":             e.Key.Hex(),
		"account":         e.Account.Hex(),
		"collateralToken": e.CollateralToken.Hex(),
		"indexToken":      e.IndexToken.Hex(),
		"isLong":          strconv.FormatBool(e.IsLong),
		"size":            bigAttr(e.Size),
		"collateral":      bigAttr(e.Collateral),
		"reserveAmount":   bigAttr(e.ReserveAmount),
		"realisedPnl":     bigAttr(e.RealisedPnl),
		"markPrice":       bigAttr(e.MarkPrice),
	}
}

// UpdatePosition mirrors the stored record after a mutation.
type UpdatePosition struct {
	Key              PositionKey
	Size             *big.Int
	Collateral       *big.Int
	AveragePrice     *big.Int
	EntryFundingRate *big.Int
	ReserveAmount    *big.Int
	RealisedPnl      *big.Int
}

func (UpdatePosition) EventType() string { return TypeUpdatePosition }

func (e UpdatePosition) Attributes() map[string]string {
	return map[string]string{
		"key":              e.Key.Hex(),
		"size":             bigAttr(e.Size),
		"collateral":       bigAttr(e.Collateral),
		"averagePrice":     bigAttr(e.AveragePrice),
		"entryFundingRate": bigAttr(e.EntryFundingRate),
		"reserveAmount":    bigAttr(e.ReserveAmount),
		"realisedPnl":      bigAttr(e.RealisedPnl),
	}
}

// ClosePosition snapshots the record being deleted on a full close.
type ClosePosition struct {
	Key              PositionKey
	Size             *big.Int
	Collateral       *big.Int
	AveragePrice     *big.Int
	EntryFundingRate *big.Int
	ReserveAmount    *big.Int
	RealisedPnl      *big.Int
}

func (ClosePosition) EventType() string { return TypeClosePosition }

func (e ClosePosition) Attributes() map[string]string {
	return map[string]string{
		"key":              e.Key.Hex(),
		"size":             bigAttr(e.Size),
		"collateral":       bigAttr(e.Collateral),
		"averagePrice":     bigAttr(e.AveragePrice),
		"entryFundingRate": bigAttr(e.EntryFundingRate),
		"reserveAmount":    bigAttr(e.ReserveAmount),
		"realisedPnl":      bigAttr(e.RealisedPnl),
	}
}

// UpdateFundingRate is emitted when a token's cumulative funding advances.
type UpdateFundingRate struct {
	Token       common.Address
	FundingRate *big.Int
}

func (UpdateFundingRate) EventType() string { return TypeUpdateFundingRate }

func (e UpdateFundingRate) Attributes() map[string]string {
	return map[string]string{
		"token":       e.Token.Hex(),
		"fundingRate": bigAttr(e.FundingRate),
	}
}

// UpdatePnl is emitted when PnL is realised on a decrease.
type UpdatePnl struct {
	Key       PositionKey
	HasProfit bool
	Delta     *big.Int
}

func (UpdatePnl) EventType() string { return TypeUpdatePnl }

func (e UpdatePnl) Attributes() map[string]string {
	return map[string]string{
		"key":       e.Key.Hex(),
		"hasProfit": strconv.FormatBool(e.HasProfit),
		"delta":     bigAttr(e.Delta),
	}
}

// CollectSwapFees records a swap/mint/redeem fee retained in a token's
// reserve.
type CollectSwapFees struct {
	Token     common.Address
	FeeUsd    *big.Int
	FeeTokens *big.Int
}

func (CollectSwapFees) EventType() string { return TypeCollectSwapFees }

func (e CollectSwapFees) Attributes() map[string]string {
	return map[string]string{
		"token":     e.Token.Hex(),
		"feeUsd":    bigAttr(e.FeeUsd),
		"feeTokens": bigAttr(e.FeeTokens),
	}
}

// CollectMarginFees records position and funding fees retained in a token's
// reserve.
type CollectMarginFees struct {
	Token     common.Address
	FeeUsd    *big.Int
	FeeTokens *big.Int
}

func (CollectMarginFees) EventType() string { return TypeCollectMarginFees }

func (e CollectMarginFees) Attributes() map[string]string {
	return map[string]string{
		"token":     e.Token.Hex(),
		"feeUsd":    bigAttr(e.FeeUsd),
		"feeTokens": bigAttr(e.FeeTokens),
	}
}

// DirectPoolDeposit records a pool credit without USDG issuance.
type DirectPoolDeposit struct {
	Token  common.Address
	Amount *big.Int
}

func (DirectPoolDeposit) EventType() string { return TypeDirectPoolDeposit }

func (e DirectPoolDeposit) Attributes() map[string]string {
	return map[string]string{
		"token":  e.Token.Hex(),
		"amount": bigAttr(e.Amount),
	}
}

type ledgerAttrs struct {
	Token  common.Address
	Amount *big.Int
}

func (e ledgerAttrs) Attributes() map[string]string {
	return map[string]string{
		"token":  e.Token.Hex(),
		"amount": bigAttr(e.Amount),
	}
}

// IncreasePoolAmount and friends mirror the ledger primitive mutations.
type IncreasePoolAmount ledgerAttrs

func (IncreasePoolAmount) EventType() string { return TypeIncreasePoolAmount }

// Attributes implements events.Event.
func (e IncreasePoolAmount) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type DecreasePoolAmount ledgerAttrs

func (DecreasePoolAmount) EventType() string { return TypeDecreasePoolAmount }

// Attributes implements events.Event.
func (e DecreasePoolAmount) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type IncreaseUsdgAmount ledgerAttrs

func (IncreaseUsdgAmount) EventType() string { return TypeIncreaseUsdgAmount }

// Attributes implements events.Event.
func (e IncreaseUsdgAmount) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type DecreaseUsdgAmount ledgerAttrs

func (DecreaseUsdgAmount) EventType() string { return TypeDecreaseUsdgAmount }

// Attributes implements events.Event.
func (e DecreaseUsdgAmount) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type IncreaseReservedAmount ledgerAttrs

func (IncreaseReservedAmount) EventType() string { return TypeIncreaseReservedAmount }

// Attributes implements events.Event.
func (e IncreaseReservedAmount) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type DecreaseReservedAmount ledgerAttrs

func (DecreaseReservedAmount) EventType() string { return TypeDecreaseReservedAmount }

// Attributes implements events.Event.
func (e DecreaseReservedAmount) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type IncreaseGuaranteedUsd ledgerAttrs

func (IncreaseGuaranteedUsd) EventType() string { return TypeIncreaseGuaranteedUsd }

// Attributes implements events.Event.
func (e IncreaseGuaranteedUsd) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }

type DecreaseGuaranteedUsd ledgerAttrs

func (DecreaseGuaranteedUsd) EventType() string { return TypeDecreaseGuaranteedUsd }

// Attributes implements events.Event.
func (e DecreaseGuaranteedUsd) Attributes() map[string]string { return ledgerAttrs(e).Attributes() }
