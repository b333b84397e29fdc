package vault

import "math/big"

var (
	bigZero = big.NewInt(0)
	bigOne  = big.NewInt(1)
	bigTwo  = big.NewInt(2)

	bigBasisPointsDivisor   = big.NewInt(BasisPointsDivisor)
	bigFundingRatePrecision = big.NewInt(FundingRatePrecision)
)

// mulDiv computes a * b / c with full big.Int precision, truncating toward
// zero. A zero divisor yields zero rather than panicking; callers guard the
// cases where an empty pool makes the ratio meaningless.
func mulDiv(a, b, c *big.Int) *big.Int {
	if a == nil || b == nil || c == nil || c.Sign() == 0 {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, c)
}

// pow10 returns 10^n.
func pow10(n uint64) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), new(big.Int).SetUint64(n), nil)
}

// adjustForDecimals rescales amount from divDecimals to mulDecimals.
func adjustForDecimals(amount *big.Int, divDecimals, mulDecimals uint64) *big.Int {
	if amount == nil {
		return big.NewInt(0)
	}
	out := new(big.Int).Mul(amount, pow10(mulDecimals))
	return out.Quo(out, pow10(divDecimals))
}

// saturatingSub returns max(a-b, 0).
func saturatingSub(a, b *big.Int) *big.Int {
	if a == nil {
		return big.NewInt(0)
	}
	if b == nil {
		return new(big.Int).Set(a)
	}
	if a.Cmp(b) <= 0 {
		return big.NewInt(0)
	}
	return new(big.Int).Sub(a, b)
}

func absDiff(a, b *big.Int) *big.Int {
	if a.Cmp(b) >= 0 {
		return new(big.Int).Sub(a, b)
	}
	return new(big.Int).Sub(b, a)
}
