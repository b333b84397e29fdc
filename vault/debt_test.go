package vault

import (
	"math/big"
	"testing"
)

func TestBuyUSDGStableAsset(t *testing.T) {
	env := newTestEnv()

	// 100 USDC at $1 with a 30 bps mint fee
	env.deposit(usdcToken, e6(100))
	minted, err := env.vault.BuyUSDG(alice, usdcToken, alice)
	if err != nil {
		t.Fatalf("buy usdg: %v", err)
	}

	wantMinted := new(big.Int).Mul(big.NewInt(997), pow10(17)) // 99.7e18
	if minted.Cmp(wantMinted) != 0 {
		t.Fatalf("unexpected mint amount: got %s want %s", minted, wantMinted)
	}
	if got := env.vault.FeeReserve(usdcToken); got.Cmp(big.NewInt(300_000)) != 0 {
		t.Fatalf("unexpected fee reserve: %s", got)
	}
	if got := env.vault.PoolAmount(usdcToken); got.Cmp(big.NewInt(99_700_000)) != 0 {
		t.Fatalf("unexpected pool amount: %s", got)
	}
	if got := env.vault.UsdgAmount(usdcToken); got.Cmp(wantMinted) != 0 {
		t.Fatalf("unexpected usdg amount: %s", got)
	}
	if got := env.usdg.BalanceOf(alice); got.Cmp(wantMinted) != 0 {
		t.Fatalf("unexpected receiver balance: %s", got)
	}
}

func TestBuyUSDGRequiresDeposit(t *testing.T) {
	env := newTestEnv()
	if _, err := env.vault.BuyUSDG(alice, usdcToken, alice); ErrorCode(err) != errInvalidTokenAmount {
		t.Fatalf("expected invalid token amount, got %v", err)
	}
}

func TestBuyUSDGRejectsUnlistedToken(t *testing.T) {
	env := newTestEnv()
	unknown := bob
	if _, err := env.vault.BuyUSDG(alice, unknown, alice); ErrorCode(err) != errTokenNotWhitelisted {
		t.Fatalf("expected whitelist failure, got %v", err)
	}
}

func TestBuySellRoundTripNeverGains(t *testing.T) {
	env := newTestEnv()

	start := e6(100)
	env.deposit(usdcToken, start)
	minted, err := env.vault.BuyUSDG(alice, usdcToken, alice)
	if err != nil {
		t.Fatalf("buy usdg: %v", err)
	}

	// move the minted USDG back into the vault to redeem
	env.ledger.debit(usdgAddr, alice, minted)
	env.ledger.credit(usdgAddr, vaultAddr, minted)
	out, err := env.vault.SellUSDG(alice, usdcToken, alice)
	if err != nil {
		t.Fatalf("sell usdg: %v", err)
	}
	if out.Cmp(start) >= 0 {
		t.Fatalf("round trip gained tokens: in %s out %s", start, out)
	}

	// the shortfall is exactly the two fee legs
	wantOut := big.NewInt(99_400_900)
	if out.Cmp(wantOut) != 0 {
		t.Fatalf("unexpected redemption: got %s want %s", out, wantOut)
	}
	if got := env.vault.UsdgAmount(usdcToken); got.Sign() != 0 {
		t.Fatalf("expected debt cleared, got %s", got)
	}
	if got := env.usdg.TotalSupply(); got.Sign() != 0 {
		t.Fatalf("expected supply burned, got %s", got)
	}
}

func TestSellUSDGFeeChargedOnOutput(t *testing.T) {
	env := newTestEnv()

	env.deposit(usdcToken, e6(1000))
	minted, err := env.vault.BuyUSDG(alice, usdcToken, alice)
	if err != nil {
		t.Fatalf("buy usdg: %v", err)
	}
	feeAfterBuy := env.vault.FeeReserve(usdcToken)

	env.ledger.debit(usdgAddr, alice, minted)
	env.ledger.credit(usdgAddr, vaultAddr, minted)
	if _, err := env.vault.SellUSDG(alice, usdcToken, alice); err != nil {
		t.Fatalf("sell usdg: %v", err)
	}

	if got := env.vault.FeeReserve(usdcToken); got.Cmp(feeAfterBuy) <= 0 {
		t.Fatalf("sell fee not retained: before %s after %s", feeAfterBuy, got)
	}
}

func TestBuyUSDGRespectsDebtCap(t *testing.T) {
	env := newTestEnv()
	mustNoErr(env.vault.SetTokenConfig(usdcToken, 6, 10000, 0, e18(50), true, false))

	env.deposit(usdcToken, e6(100))
	_, err := env.vault.BuyUSDG(alice, usdcToken, alice)
	if ErrorCode(err) != errMaxUsdgExceeded {
		t.Fatalf("expected max usdg failure, got %v", err)
	}
	// the failed operation must leave no bookkeeping behind
	if got := env.vault.PoolAmount(usdcToken); got.Sign() != 0 {
		t.Fatalf("pool mutated by failed buy: %s", got)
	}
	if got := env.vault.UsdgAmount(usdcToken); got.Sign() != 0 {
		t.Fatalf("debt mutated by failed buy: %s", got)
	}
	if got := env.vault.FeeReserve(usdcToken); got.Sign() != 0 {
		t.Fatalf("fees mutated by failed buy: %s", got)
	}
}

func TestGetRedemptionAmount(t *testing.T) {
	env := newTestEnv()
	amount, err := env.vault.GetRedemptionAmount(ethToken, e18(2000))
	if err != nil {
		t.Fatalf("redemption amount: %v", err)
	}
	if amount.Cmp(e18(1)) != 0 {
		t.Fatalf("unexpected redemption amount: %s", amount)
	}
}
