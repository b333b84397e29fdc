package vault

import (
	"math/big"
	"testing"
)

func TestStaticFeeBpsWhenDynamicDisabled(t *testing.T) {
	env := newTestEnv()
	utils := env.vault.utils
	if got := utils.GetFeeBasisPoints(usdcToken, e18(10), 30, 50, true); got != 30 {
		t.Fatalf("expected base fee, got %d", got)
	}
}

func dynamicFeeEnv(t *testing.T) *testEnv {
	t.Helper()
	env := newTestEnv()
	if err := env.vault.SetFees(50, 20, 30, 30, 4, 10, big.NewInt(0), 0, true); err != nil {
		t.Fatalf("enable dynamic fees: %v", err)
	}
	// circulating supply 300 across three equally weighted tokens puts each
	// target at 100
	mustNoErr(env.usdg.Mint(alice, e18(300)))
	return env
}

func TestDynamicFeeTaxesMovesAwayFromTarget(t *testing.T) {
	env := dynamicFeeEnv(t)
	env.vault.mu.Lock()
	env.vault.usdgAmounts[usdcToken] = e18(150)
	env.vault.mu.Unlock()

	// 150 -> 160 moves further from the 100 target
	got := env.vault.utils.GetFeeBasisPoints(usdcToken, e18(10), 30, 50, true)
	// diffs 50 and 60 average to 55, tax = 50 * 55 / 100
	if got != 57 {
		t.Fatalf("unexpected taxed fee: %d", got)
	}
}

func TestDynamicFeeRebatesMovesTowardTarget(t *testing.T) {
	env := dynamicFeeEnv(t)
	env.vault.mu.Lock()
	env.vault.usdgAmounts[usdcToken] = e18(150)
	env.vault.mu.Unlock()

	// 150 -> 140 moves toward the target: rebate = 50 * 50 / 100
	got := env.vault.utils.GetFeeBasisPoints(usdcToken, e18(10), 30, 50, false)
	if got != 5 {
		t.Fatalf("unexpected rebated fee: %d", got)
	}
}

func TestDynamicFeeRebateFloorsAtZero(t *testing.T) {
	env := dynamicFeeEnv(t)
	env.vault.mu.Lock()
	env.vault.usdgAmounts[usdcToken] = e18(200)
	env.vault.mu.Unlock()

	// a full-deviation rebate of 50 exceeds the 30 bps base
	got := env.vault.utils.GetFeeBasisPoints(usdcToken, e18(10), 30, 50, false)
	if got != 0 {
		t.Fatalf("expected zero fee, got %d", got)
	}
}

func TestDynamicFeeDecrementClampsAtZero(t *testing.T) {
	env := dynamicFeeEnv(t)
	env.vault.mu.Lock()
	env.vault.usdgAmounts[usdcToken] = e18(5)
	env.vault.mu.Unlock()

	// removing more than the recorded debt clamps the next amount at zero
	got := env.vault.utils.GetFeeBasisPoints(usdcToken, e18(10), 30, 50, false)
	// diffs 95 and 100 average to 97.5, below the 100 target: tax 48
	if got != 78 {
		t.Fatalf("unexpected clamped fee: %d", got)
	}
}

func TestSwapFeeTakesWorseLeg(t *testing.T) {
	env := dynamicFeeEnv(t)
	env.vault.mu.Lock()
	env.vault.usdgAmounts[ethToken] = e18(150)
	env.vault.usdgAmounts[usdcToken] = e18(150)
	env.vault.mu.Unlock()

	// ETH moves further over target while USDC moves toward it: the taxed
	// incoming leg wins
	got := env.vault.utils.GetSwapFeeBasisPoints(ethToken, usdcToken, e18(10))
	rebated := env.vault.utils.GetFeeBasisPoints(usdcToken, e18(10), 30, 50, false)
	if got <= rebated {
		t.Fatalf("swap fee did not take the worse leg: %d vs %d", got, rebated)
	}
}

func TestStableSwapUsesStableSchedule(t *testing.T) {
	env := newTestEnv()
	mustNoErr(env.vault.SetTokenConfig(btcToken, 8, 10000, 0, big.NewInt(0), true, false))

	// both sides stable and dynamic fees off: flat 4 bps
	if got := env.vault.utils.GetSwapFeeBasisPoints(usdcToken, btcToken, e18(10)); got != 4 {
		t.Fatalf("unexpected stable swap fee: %d", got)
	}
	// mixed pair uses the standard 30 bps
	if got := env.vault.utils.GetSwapFeeBasisPoints(ethToken, usdcToken, e18(10)); got != 30 {
		t.Fatalf("unexpected swap fee: %d", got)
	}
}

func TestGetPositionFee(t *testing.T) {
	env := newTestEnv()
	if got := env.vault.utils.GetPositionFee(e30(10_000)); got.Cmp(e30(10)) != 0 {
		t.Fatalf("unexpected position fee: %s", got)
	}
	if got := env.vault.utils.GetPositionFee(big.NewInt(0)); got.Sign() != 0 {
		t.Fatalf("zero size charged a fee: %s", got)
	}
}

func TestGetFundingFee(t *testing.T) {
	env := newTestEnv()
	env.vault.mu.Lock()
	env.vault.cumulativeFundingRates[usdcToken] = big.NewInt(1000)
	env.vault.mu.Unlock()

	entry := big.NewInt(400)
	got := env.vault.utils.GetFundingFee(usdcToken, e30(100), entry)
	want := mulDiv(e30(100), big.NewInt(600), bigFundingRatePrecision)
	if got.Cmp(want) != 0 {
		t.Fatalf("unexpected funding fee: got %s want %s", got, want)
	}

	// no accrual since entry means no fee
	flat := env.vault.utils.GetFundingFee(usdcToken, e30(100), big.NewInt(1000))
	if flat.Sign() != 0 {
		t.Fatalf("expected zero funding fee, got %s", flat)
	}
}

func TestSetFeesBoundsChecked(t *testing.T) {
	env := newTestEnv()
	if err := env.vault.SetFees(501, 20, 30, 30, 4, 10, big.NewInt(0), 0, false); ErrorCode(err) != errInvalidTaxBps {
		t.Fatalf("expected tax bounds failure, got %v", err)
	}
	tooMuch := new(big.Int).Add(MaxLiquidationFeeUsd, bigOne)
	if err := env.vault.SetFees(50, 20, 30, 30, 4, 10, tooMuch, 0, false); ErrorCode(err) != errInvalidLiquidationFeeUsd {
		t.Fatalf("expected liquidation fee bounds failure, got %v", err)
	}
}

func TestWithdrawFees(t *testing.T) {
	env := newTestEnv()
	env.deposit(usdcToken, e6(100))
	if _, err := env.vault.BuyUSDG(alice, usdcToken, alice); err != nil {
		t.Fatalf("buy usdg: %v", err)
	}

	amount, err := env.vault.WithdrawFees(usdcToken, bob)
	if err != nil {
		t.Fatalf("withdraw fees: %v", err)
	}
	if amount.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("unexpected withdrawal: %s", amount)
	}
	if got := env.vault.FeeReserve(usdcToken); got.Sign() != 0 {
		t.Fatalf("fee reserve not cleared: %s", got)
	}
	if got := env.ledger.BalanceOf(usdcToken, bob); got.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("receiver did not get fees: %s", got)
	}
}
