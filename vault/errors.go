package vault

import (
	"errors"
	"fmt"
)

// Operations fail with a *VaultError carrying a numeric code. Messages are
// resolved through a registry that governance can overwrite via SetError, so
// deployments can localise or tighten wording without touching the engine.

var (
	ErrUnauthorized = errors.New("vault: forbidden")
	ErrReentrancy   = errors.New("vault: reentrant call")
)

// VaultError is the coded failure returned by every guarded operation.
type VaultError struct {
	Code uint16
	Msg  string
}

func (e *VaultError) Error() string {
	return fmt.Sprintf("vault: [%d] %s", e.Code, e.Msg)
}

// Error codes. The numbering is part of the external contract: clients branch
// on codes, not messages.
const (
	errAlreadyInitialized       uint16 = 1
	errInvalidMaxLeverage       uint16 = 2
	errInvalidTaxBps            uint16 = 3
	errInvalidStableTaxBps      uint16 = 4
	errInvalidMintBurnFeeBps    uint16 = 5
	errInvalidSwapFeeBps        uint16 = 6
	errInvalidStableSwapFeeBps  uint16 = 7
	errInvalidMarginFeeBps      uint16 = 8
	errInvalidLiquidationFeeUsd uint16 = 9
	errInvalidFundingInterval   uint16 = 10
	errInvalidFundingFactor     uint16 = 11
	errInvalidStableFundingFactor uint16 = 12
	errTokenNotWhitelisted      uint16 = 13
	errInvalidTokenAmount       uint16 = 15
	errInvalidUsdgAmount        uint16 = 18
	errInvalidRedemptionAmount  uint16 = 21
	errInvalidAmountOut         uint16 = 22
	errSwapsNotEnabled          uint16 = 23
	errTokenInNotWhitelisted    uint16 = 24
	errTokenOutNotWhitelisted   uint16 = 25
	errInvalidTokenPair         uint16 = 26
	errInvalidAmountIn          uint16 = 27
	errLeverageNotEnabled       uint16 = 28
	errInsufficientCollateralForFees uint16 = 29
	errInvalidPositionSize      uint16 = 30
	errEmptyPosition            uint16 = 31
	errPositionSizeExceeded     uint16 = 32
	errPositionCollateralExceeded uint16 = 33
	errInvalidLiquidator        uint16 = 34
	errCannotLiquidate          uint16 = 36
	errInvalidPosition          uint16 = 37
	errLossesExceedCollateral   uint16 = 38
	errFeesExceedCollateral     uint16 = 39
	errMaxLeverageExceeded      uint16 = 40
	errMaxUsdgExceeded          uint16 = 41
	errForbiddenNonGov          uint16 = 42
	errForbiddenNonManager      uint16 = 43
	errCollateralNotWhitelisted uint16 = 44
	errCollateralMustBeStable   uint16 = 45
	errCollateralMustNotBeStable uint16 = 46
	errCollateralMismatch       uint16 = 47
	errIndexMustNotBeStable     uint16 = 48
	errIndexNotShortable        uint16 = 49
	errInvalidIncrease          uint16 = 50
	errReserveExceedsPool       uint16 = 51
	errMaxGasPriceExceeded      uint16 = 52
	errPoolExceedsBalance       uint16 = 53
	errSizeBelowCollateral      uint16 = 54
	errPoolBelowBuffer          uint16 = 55
	errMaxShortsExceeded        uint16 = 56
	errInvalidRouter            uint16 = 57
	errZeroCollateral           uint16 = 58
	errInvalidPrice             uint16 = 59
)

func defaultErrors() map[uint16]string {
	return map[uint16]string{
		errAlreadyInitialized:            "already initialized",
		errInvalidMaxLeverage:            "invalid max leverage",
		errInvalidTaxBps:                 "invalid tax basis points",
		errInvalidStableTaxBps:           "invalid stable tax basis points",
		errInvalidMintBurnFeeBps:         "invalid mint/burn fee basis points",
		errInvalidSwapFeeBps:             "invalid swap fee basis points",
		errInvalidStableSwapFeeBps:       "invalid stable swap fee basis points",
		errInvalidMarginFeeBps:           "invalid margin fee basis points",
		errInvalidLiquidationFeeUsd:      "invalid liquidation fee",
		errInvalidFundingInterval:        "invalid funding interval",
		errInvalidFundingFactor:          "invalid funding rate factor",
		errInvalidStableFundingFactor:    "invalid stable funding rate factor",
		errTokenNotWhitelisted:           "token not whitelisted",
		errInvalidTokenAmount:            "invalid token amount",
		errInvalidUsdgAmount:             "invalid usdg amount",
		errInvalidRedemptionAmount:       "invalid redemption amount",
		errInvalidAmountOut:              "invalid amount out",
		errSwapsNotEnabled:               "swaps not enabled",
		errTokenInNotWhitelisted:         "tokenIn not whitelisted",
		errTokenOutNotWhitelisted:        "tokenOut not whitelisted",
		errInvalidTokenPair:              "invalid token pair",
		errInvalidAmountIn:               "invalid amount in",
		errLeverageNotEnabled:            "leverage not enabled",
		errInsufficientCollateralForFees: "insufficient collateral for fees",
		errInvalidPositionSize:           "invalid position size",
		errEmptyPosition:                 "empty position",
		errPositionSizeExceeded:          "position size exceeded",
		errPositionCollateralExceeded:    "position collateral exceeded",
		errInvalidLiquidator:             "invalid liquidator",
		errCannotLiquidate:               "position cannot be liquidated",
		errInvalidPosition:               "invalid position",
		errLossesExceedCollateral:        "losses exceed collateral",
		errFeesExceedCollateral:          "fees exceed collateral",
		errMaxLeverageExceeded:           "max leverage exceeded",
		errMaxUsdgExceeded:               "max usdg exceeded",
		errForbiddenNonGov:               "forbidden: not gov",
		errForbiddenNonManager:           "forbidden: not manager",
		errCollateralNotWhitelisted:      "collateral token not whitelisted",
		errCollateralMustBeStable:        "collateral token must be stable",
		errCollateralMustNotBeStable:     "collateral token must not be stable",
		errCollateralMismatch:            "collateral token must equal index token",
		errIndexMustNotBeStable:          "index token must not be stable",
		errIndexNotShortable:             "index token not shortable",
		errInvalidIncrease:               "invalid position increase",
		errReserveExceedsPool:            "reserve exceeds pool",
		errMaxGasPriceExceeded:           "max gas price exceeded",
		errPoolExceedsBalance:            "pool exceeds balance",
		errSizeBelowCollateral:           "size must not be below collateral",
		errPoolBelowBuffer:               "pool below buffer",
		errMaxShortsExceeded:             "max global shorts exceeded",
		errInvalidRouter:                 "invalid router",
		errZeroCollateral:                "collateral must be withdrawn before zero",
		errInvalidPrice:                  "invalid price",
	}
}

func (v *Vault) codedError(code uint16) error {
	msg, ok := v.errorMessages[code]
	if !ok {
		msg = "unknown error"
	}
	return &VaultError{Code: code, Msg: msg}
}

// SetError installs or overwrites the message for an error code.
func (v *Vault) SetError(code uint16, msg string) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.errorMessages[code] = msg
}

// ErrorCode extracts the vault error code from err, or 0 when err is not a
// coded vault failure.
func ErrorCode(err error) uint16 {
	var ve *VaultError
	if errors.As(err, &ve) {
		return ve.Code
	}
	return 0
}
