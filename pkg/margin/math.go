package margin

import (
	"math/big"
	"math/bits"
)

func u64Big(v uint64) *big.Int {
	return new(big.Int).SetUint64(v)
}

// cmp128 compares the 128-bit products a*b and c*d, returning -1, 0 or 1.
// Exit-order ratio bounds are compared cross-multiplied so no division is
// involved.
func cmp128(a, b, c, d uint64) int {
	hi1, lo1 := bits.Mul64(a, b)
	hi2, lo2 := bits.Mul64(c, d)
	switch {
	case hi1 != hi2:
		if hi1 < hi2 {
			return -1
		}
		return 1
	case lo1 != lo2:
		if lo1 < lo2 {
			return -1
		}
		return 1
	}
	return 0
}

// Checked uint64 arithmetic. Balances and share supplies are u64; intermediate
// products go through a 128-bit mul/div so proportional math cannot silently
// wrap.

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrArithmeticUnderflow
	}
	return diff, nil
}

// mulDiv computes a*b/den with a 128-bit intermediate, flooring the result.
func mulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrArithmeticOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		// Quotient would not fit in 64 bits.
		return 0, ErrArithmeticOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

// mulMulDiv computes a*b*c/den, flooring once over the combined quotient.
// Splitting a*b into q*den+r keeps every intermediate within 128 bits:
// a*b*c/den = q*c + r*c/den exactly, with r < den.
func mulMulDiv(a, b, c, den uint64) (uint64, error) {
	if den == 0 {
		return 0, ErrArithmeticOverflow
	}
	abHi, abLo := bits.Mul64(a, b)
	if abHi >= den {
		return 0, ErrArithmeticOverflow
	}
	q, r := bits.Div64(abHi, abLo, den)
	hi, whole := bits.Mul64(q, c)
	if hi != 0 {
		return 0, ErrArithmeticOverflow
	}
	frac, err := mulDiv(r, c, den)
	if err != nil {
		return 0, err
	}
	return checkedAdd(whole, frac)
}

// mulDivCeil is mulDiv rounding up. The vault-favoring direction for the
// inverse share operations.
func mulDivCeil(a, b, den uint64) (uint64, error) {
	q, err := mulDiv(a, b, den)
	if err != nil {
		return 0, err
	}
	hi, lo := bits.Mul64(a, b)
	_, rem := bits.Div64(hi, lo, den)
	if rem != 0 {
		return checkedAdd(q, 1)
	}
	return q, nil
}

// deduct removes up to deduction from amount, flooring at zero. It returns the
// remainder and the amount actually deducted, so a shortfall shows up as a
// reduced deduction instead of an underflow.
func deduct(amount, deduction uint64) (remaining, deducted uint64) {
	if amount >= deduction {
		return amount - deduction, deduction
	}
	return 0, amount
}
