package vault

import (
	"math/big"
	"testing"
)

func openLongEth(t *testing.T, env *testEnv) {
	t.Helper()
	env.oracle.setPrice(ethToken, e30(1999), e30(2000))
	env.fundPool(ethToken, e18(10))

	env.deposit(ethToken, e18(1))
	if err := env.vault.IncreasePosition(alice, alice, ethToken, ethToken, e30(10_000), true); err != nil {
		t.Fatalf("increase position: %v", err)
	}
}

func TestIncreaseLongPosition(t *testing.T) {
	env := newTestEnv()
	openLongEth(t, env)

	position, ok := env.vault.GetPosition(alice, ethToken, ethToken, true)
	if !ok {
		t.Fatalf("position not found")
	}
	if position.Size.Cmp(e30(10_000)) != 0 {
		t.Fatalf("unexpected size: %s", position.Size)
	}
	// 1 ETH at the $1999 min price, less the $10 position fee
	if position.Collateral.Cmp(e30(1989)) != 0 {
		t.Fatalf("unexpected collateral: %s", position.Collateral)
	}
	if position.AveragePrice.Cmp(e30(2000)) != 0 {
		t.Fatalf("unexpected average price: %s", position.AveragePrice)
	}
	if position.Size.Cmp(position.Collateral) < 0 {
		t.Fatalf("size below collateral")
	}

	// reserve converts the full size at the min price
	wantReserve := mulDiv(e30(10_000), pow10(18), e30(1999))
	if position.ReserveAmount.Cmp(wantReserve) != 0 {
		t.Fatalf("unexpected reserve: got %s want %s", position.ReserveAmount, wantReserve)
	}
	if got := env.vault.ReservedAmount(ethToken); got.Cmp(wantReserve) != 0 {
		t.Fatalf("unexpected reserved amount: %s", got)
	}

	// guaranteed USD carries sizeDelta - (collateralUsd - fee)
	if got := env.vault.GuaranteedUsd(ethToken); got.Cmp(e30(8011)) != 0 {
		t.Fatalf("unexpected guaranteed usd: %s", got)
	}

	// the $10 fee landed in the fee reserve at the max price
	wantFee := mulDiv(e30(10), pow10(18), e30(2000))
	if got := env.vault.FeeReserve(ethToken); got.Cmp(wantFee) != 0 {
		t.Fatalf("unexpected fee reserve: %s", got)
	}
}

func TestIncreasePositionValidatesTokens(t *testing.T) {
	env := newTestEnv()

	env.deposit(usdcToken, e6(100))
	err := env.vault.IncreasePosition(alice, alice, usdcToken, usdcToken, e30(100), true)
	if ErrorCode(err) != errCollateralMustNotBeStable {
		t.Fatalf("expected stable collateral failure, got %v", err)
	}

	err = env.vault.IncreasePosition(alice, alice, ethToken, usdcToken, e30(100), true)
	if ErrorCode(err) != errCollateralMismatch {
		t.Fatalf("expected collateral mismatch, got %v", err)
	}

	err = env.vault.IncreasePosition(alice, alice, ethToken, ethToken, e30(100), false)
	if ErrorCode(err) != errCollateralMustBeStable {
		t.Fatalf("expected stable requirement for shorts, got %v", err)
	}

	err = env.vault.IncreasePosition(alice, alice, usdcToken, usdcToken, e30(100), false)
	if ErrorCode(err) != errIndexMustNotBeStable {
		t.Fatalf("expected non-stable index for shorts, got %v", err)
	}
}

func TestIncreasePositionRejectsOverLeverage(t *testing.T) {
	env := newTestEnv()
	env.oracle.setPrice(ethToken, e30(1999), e30(2000))
	env.fundPool(ethToken, e18(10))
	poolBefore := env.vault.PoolAmount(ethToken)

	// 0.1 ETH of collateral against $10k of size is ~52x with fees
	env.deposit(ethToken, new(big.Int).Div(e18(1), big.NewInt(10)))
	err := env.vault.IncreasePosition(alice, alice, ethToken, ethToken, e30(10_000), true)
	if ErrorCode(err) != errMaxLeverageExceeded {
		t.Fatalf("expected max leverage failure, got %v", err)
	}

	// no state change survives the failed open
	if _, ok := env.vault.GetPosition(alice, ethToken, ethToken, true); ok {
		t.Fatalf("position created by failed open")
	}
	if got := env.vault.ReservedAmount(ethToken); got.Sign() != 0 {
		t.Fatalf("reserved mutated by failed open: %s", got)
	}
	if got := env.vault.PoolAmount(ethToken); got.Cmp(poolBefore) != 0 {
		t.Fatalf("pool mutated by failed open: %s", got)
	}
	if got := env.vault.GuaranteedUsd(ethToken); got.Sign() != 0 {
		t.Fatalf("guaranteed usd mutated by failed open: %s", got)
	}
	if got := env.vault.FeeReserve(ethToken); got.Sign() != 0 {
		t.Fatalf("fee reserve mutated by failed open: %s", got)
	}
}

func TestIncreasePositionRequiresLeverageEnabled(t *testing.T) {
	env := newTestEnv()
	env.vault.SetIsLeverageEnabled(false)
	err := env.vault.IncreasePosition(alice, alice, ethToken, ethToken, e30(100), true)
	if ErrorCode(err) != errLeverageNotEnabled {
		t.Fatalf("expected leverage disabled failure, got %v", err)
	}
}

func TestIncreasePositionRouterApproval(t *testing.T) {
	env := newTestEnv()
	env.oracle.setPrice(ethToken, e30(1999), e30(2000))
	env.fundPool(ethToken, e18(10))

	env.deposit(ethToken, e18(1))
	err := env.vault.IncreasePosition(bob, alice, ethToken, ethToken, e30(5000), true)
	if ErrorCode(err) != errInvalidRouter {
		t.Fatalf("expected router failure, got %v", err)
	}

	env.vault.AddRouter(alice, bob)
	if err := env.vault.IncreasePosition(bob, alice, ethToken, ethToken, e30(5000), true); err != nil {
		t.Fatalf("approved router rejected: %v", err)
	}
}

func TestDecreaseLongPositionFullClose(t *testing.T) {
	env := newTestEnv()
	openLongEth(t, env)

	// flat price: closing realises no PnL and returns collateral less fees
	out, err := env.vault.DecreasePosition(alice, alice, ethToken, ethToken, big.NewInt(0), e30(10_000), true, alice)
	if err != nil {
		t.Fatalf("decrease position: %v", err)
	}
	if out.Sign() <= 0 {
		t.Fatalf("expected payout, got %s", out)
	}
	if _, ok := env.vault.GetPosition(alice, ethToken, ethToken, true); ok {
		t.Fatalf("position survived full close")
	}
	if got := env.vault.ReservedAmount(ethToken); got.Sign() != 0 {
		t.Fatalf("reserved not released: %s", got)
	}
	if got := env.vault.GuaranteedUsd(ethToken); got.Sign() != 0 {
		t.Fatalf("guaranteed usd not released: %s", got)
	}

	// payout is collateral (1989) less the 5 USD min/max spread loss and the
	// 10 USD close fee, converted at the max price
	want := mulDiv(e30(1974), pow10(18), e30(2000))
	if out.Cmp(want) != 0 {
		t.Fatalf("unexpected payout: got %s want %s", out, want)
	}
}

func TestDecreaseLongPositionPartial(t *testing.T) {
	env := newTestEnv()
	openLongEth(t, env)

	before, _ := env.vault.GetPosition(alice, ethToken, ethToken, true)

	if _, err := env.vault.DecreasePosition(alice, alice, ethToken, ethToken, big.NewInt(0), e30(4_000), true, alice); err != nil {
		t.Fatalf("partial decrease: %v", err)
	}
	after, ok := env.vault.GetPosition(alice, ethToken, ethToken, true)
	if !ok {
		t.Fatalf("position deleted by partial close")
	}
	if after.Size.Cmp(e30(6_000)) != 0 {
		t.Fatalf("unexpected size: %s", after.Size)
	}
	wantReserve := new(big.Int).Sub(before.ReserveAmount, mulDiv(before.ReserveAmount, big.NewInt(4), big.NewInt(10)))
	if after.ReserveAmount.Cmp(wantReserve) != 0 {
		t.Fatalf("reserve not reduced proportionally: got %s want %s", after.ReserveAmount, wantReserve)
	}
}

func TestDecreasePositionValidatesBounds(t *testing.T) {
	env := newTestEnv()
	openLongEth(t, env)

	_, err := env.vault.DecreasePosition(alice, alice, ethToken, ethToken, big.NewInt(0), e30(20_000), true, alice)
	if ErrorCode(err) != errPositionSizeExceeded {
		t.Fatalf("expected size bound failure, got %v", err)
	}
	_, err = env.vault.DecreasePosition(alice, alice, ethToken, ethToken, e30(5_000), e30(1_000), true, alice)
	if ErrorCode(err) != errPositionCollateralExceeded {
		t.Fatalf("expected collateral bound failure, got %v", err)
	}
	_, err = env.vault.DecreasePosition(alice, alice, btcToken, btcToken, big.NewInt(0), e30(1), true, alice)
	if ErrorCode(err) != errEmptyPosition {
		t.Fatalf("expected empty position failure, got %v", err)
	}
}

func openShortEth(t *testing.T, env *testEnv) {
	t.Helper()
	env.oracle.setPrice(ethToken, e30(1999), e30(2000))
	env.fundPool(usdcToken, e6(10_000))

	env.deposit(usdcToken, e6(500))
	if err := env.vault.IncreasePosition(alice, alice, usdcToken, ethToken, e30(1_000), false); err != nil {
		t.Fatalf("open short: %v", err)
	}
}

func TestShortPositionAggregatesGlobalBook(t *testing.T) {
	env := newTestEnv()
	openShortEth(t, env)

	if got := env.vault.GlobalShortSize(ethToken); got.Cmp(e30(1_000)) != 0 {
		t.Fatalf("unexpected global short size: %s", got)
	}
	// shorts open at the index min price
	if got := env.vault.GlobalShortAveragePrice(ethToken); got.Cmp(e30(1999)) != 0 {
		t.Fatalf("unexpected global short average: %s", got)
	}

	// a second short at a different mark blends the average
	env.oracle.setPrice(ethToken, e30(2100), e30(2100))
	env.deposit(usdcToken, e6(500))
	if err := env.vault.IncreasePosition(bob, bob, usdcToken, ethToken, e30(1_000), false); err != nil {
		t.Fatalf("second short: %v", err)
	}
	if got := env.vault.GlobalShortSize(ethToken); got.Cmp(e30(2_000)) != 0 {
		t.Fatalf("unexpected combined short size: %s", got)
	}
	avg := env.vault.GlobalShortAveragePrice(ethToken)
	if avg.Cmp(e30(1999)) <= 0 || avg.Cmp(e30(2100)) >= 0 {
		t.Fatalf("blended average out of range: %s", avg)
	}
}

func TestShortDecreaseRealisedLossCreditsPool(t *testing.T) {
	env := newTestEnv()
	openShortEth(t, env)

	poolBefore := env.vault.PoolAmount(usdcToken)
	reservedBefore := env.vault.ReservedAmount(usdcToken)

	// price rises: the short is under water
	env.oracle.setPrice(ethToken, e30(2100), e30(2100))
	if _, err := env.vault.DecreasePosition(alice, alice, usdcToken, ethToken, big.NewInt(0), e30(500), false, alice); err != nil {
		t.Fatalf("partial short decrease: %v", err)
	}

	// half the reserve releases and the realised loss lands in the pool
	wantReserved := new(big.Int).Div(reservedBefore, bigTwo)
	if got := env.vault.ReservedAmount(usdcToken); got.Cmp(wantReserved) != 0 {
		t.Fatalf("unexpected reserved: got %s want %s", got, wantReserved)
	}
	if got := env.vault.PoolAmount(usdcToken); got.Cmp(poolBefore) <= 0 {
		t.Fatalf("loss did not credit pool: before %s after %s", poolBefore, got)
	}

	position, ok := env.vault.GetPosition(alice, usdcToken, ethToken, false)
	if !ok {
		t.Fatalf("position missing after partial close")
	}
	if position.RealisedPnl.Sign() >= 0 {
		t.Fatalf("expected negative realised pnl, got %s", position.RealisedPnl)
	}
	if got := env.vault.GlobalShortSize(ethToken); got.Cmp(e30(500)) != 0 {
		t.Fatalf("global short size not reduced: %s", got)
	}
}

func TestShortProfitPaidFromPool(t *testing.T) {
	env := newTestEnv()
	openShortEth(t, env)

	poolBefore := env.vault.PoolAmount(usdcToken)

	// price falls: the short is in profit, paid out of the pool
	env.oracle.setPrice(ethToken, e30(1800), e30(1800))
	out, err := env.vault.DecreasePosition(alice, alice, usdcToken, ethToken, big.NewInt(0), e30(1_000), false, alice)
	if err != nil {
		t.Fatalf("close short: %v", err)
	}
	if out.Sign() <= 0 {
		t.Fatalf("expected payout, got %s", out)
	}
	if got := env.vault.PoolAmount(usdcToken); got.Cmp(poolBefore) >= 0 {
		t.Fatalf("profit not paid from pool: before %s after %s", poolBefore, got)
	}
	if _, ok := env.vault.GetPosition(alice, usdcToken, ethToken, false); ok {
		t.Fatalf("position survived full close")
	}
}

func TestGetPositionLeverage(t *testing.T) {
	env := newTestEnv()
	openLongEth(t, env)

	leverage, err := env.vault.GetPositionLeverage(alice, ethToken, ethToken, true)
	if err != nil {
		t.Fatalf("leverage: %v", err)
	}
	// 10000 / 1989 ~= 5.027x in basis points
	want := mulDiv(e30(10_000), bigBasisPointsDivisor, e30(1989))
	if leverage.Cmp(want) != 0 {
		t.Fatalf("unexpected leverage: got %s want %s", leverage, want)
	}
}

func TestNextAveragePriceBlendsProfit(t *testing.T) {
	env := newTestEnv()
	openLongEth(t, env)

	// price moves up, then the position doubles down at the new mark
	env.oracle.setPrice(ethToken, e30(2200), e30(2200))
	env.deposit(ethToken, e18(1))
	if err := env.vault.IncreasePosition(alice, alice, ethToken, ethToken, e30(10_000), true); err != nil {
		t.Fatalf("second increase: %v", err)
	}
	position, _ := env.vault.GetPosition(alice, ethToken, ethToken, true)
	if position.AveragePrice.Cmp(e30(2000)) <= 0 || position.AveragePrice.Cmp(e30(2200)) >= 0 {
		t.Fatalf("average price not blended: %s", position.AveragePrice)
	}
}
