package margin

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestCheckedAdd(t *testing.T) {
	sum, err := checkedAdd(1, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), sum)

	_, err = checkedAdd(math.MaxUint64, 1)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestCheckedSub(t *testing.T) {
	diff, err := checkedSub(5, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(3), diff)

	_, err = checkedSub(2, 5)
	require.ErrorIs(t, err, ErrArithmeticUnderflow)
}

func TestMulDiv(t *testing.T) {
	// Intermediate product exceeds 64 bits but the quotient fits.
	q, err := mulDiv(math.MaxUint64, 10, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64/2), q)

	q, err = mulDiv(7, 3, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(10), q, "flooring")

	_, err = mulDiv(math.MaxUint64, 3, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = mulDiv(1, 1, 0)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestMulMulDiv(t *testing.T) {
	q, err := mulMulDiv(2, 3, 4, 6)
	require.NoError(t, err)
	require.Equal(t, uint64(4), q)

	// The floor applies once, to the triple product: 150*1*2/100 = 3, while
	// floor(150*1/100)*2 would give 2.
	q, err = mulMulDiv(150, 1, 2, 100)
	require.NoError(t, err)
	require.Equal(t, uint64(3), q)

	// a*b exceeds 64 bits but the quotient fits.
	q, err = mulMulDiv(math.MaxUint64, 10, 1, 20)
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64/2), q)

	_, err = mulMulDiv(math.MaxUint64, 3, 1, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow)

	_, err = mulMulDiv(math.MaxUint64/2, 2, 3, 2)
	require.ErrorIs(t, err, ErrArithmeticOverflow, "quotient times c overflows")

	_, err = mulMulDiv(1, 1, 1, 0)
	require.ErrorIs(t, err, ErrArithmeticOverflow)
}

func TestMulDivCeil(t *testing.T) {
	q, err := mulDivCeil(7, 3, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(11), q)

	q, err = mulDivCeil(6, 3, 2)
	require.NoError(t, err)
	require.Equal(t, uint64(9), q, "exact division does not round up")
}

func TestDeduct(t *testing.T) {
	remaining, deducted := deduct(100, 30)
	require.Equal(t, uint64(70), remaining)
	require.Equal(t, uint64(30), deducted)

	// Shortfall floors at zero instead of underflowing.
	remaining, deducted = deduct(20, 30)
	require.Zero(t, remaining)
	require.Equal(t, uint64(20), deducted)
}

func TestCmp128(t *testing.T) {
	require.Equal(t, 0, cmp128(6, 2, 3, 4))
	require.Equal(t, 1, cmp128(7, 2, 3, 4))
	require.Equal(t, -1, cmp128(5, 2, 3, 4))

	// Products beyond 64 bits still compare correctly.
	require.Equal(t, 1, cmp128(math.MaxUint64, 3, math.MaxUint64, 2))
	require.Equal(t, 0, cmp128(math.MaxUint64, 2, math.MaxUint64, 2))
}
