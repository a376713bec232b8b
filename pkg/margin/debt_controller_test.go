package margin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestComputeMaxInterestFloorsAtOne(t *testing.T) {
	dc := &DebtController{MaxAPY: 300, MaxLeverage: 500, LiquidationFee: 5}

	// One second on a small principal rounds to zero but charges one unit.
	interest, err := dc.ComputeMaxInterest(1000, 0, 1)
	require.NoError(t, err)
	require.Equal(t, uint64(1), interest)

	// Even zero elapsed time, even zero principal.
	interest, err = dc.ComputeMaxInterest(1000, 500, 500)
	require.NoError(t, err)
	require.Equal(t, uint64(1), interest)
	interest, err = dc.ComputeMaxInterest(0, 0, SecondsPerYear)
	require.NoError(t, err)
	require.Equal(t, uint64(1), interest)

	_, err = dc.ComputeMaxInterest(1000, 10, 5)
	require.ErrorIs(t, err, ErrArithmeticUnderflow)
}

func TestComputeMaxInterestFullYear(t *testing.T) {
	dc := &DebtController{MaxAPY: 300}
	interest, err := dc.ComputeMaxInterest(4000, 0, SecondsPerYear)
	require.NoError(t, err)
	require.Equal(t, uint64(12000), interest, "3x APY over a full year")

	interest, err = dc.ComputeMaxInterest(4000, 0, 86400)
	require.NoError(t, err)
	require.Equal(t, uint64(32), interest, "one day, floored")
}

func TestComputeMaxInterestCombinedFloor(t *testing.T) {
	// 150 at 1% for two years is 3 exactly. Flooring the APY scaling before
	// applying the elapsed time would truncate 1.5 to 1 and return 2.
	dc := &DebtController{MaxAPY: 1}
	interest, err := dc.ComputeMaxInterest(150, 0, 2*SecondsPerYear)
	require.NoError(t, err)
	require.Equal(t, uint64(3), interest)

	// 250 at 3% for two years: 15, not 2*floor(7.5).
	dc.MaxAPY = 3
	interest, err = dc.ComputeMaxInterest(250, 0, 2*SecondsPerYear)
	require.NoError(t, err)
	require.Equal(t, uint64(15), interest)
}

func TestComputeMaxPrincipal(t *testing.T) {
	dc := &DebtController{MaxLeverage: 500}
	// 5x leverage: the down payment carries four borrowed parts.
	max, err := dc.ComputeMaxPrincipal(100)
	require.NoError(t, err)
	require.Equal(t, uint64(400), max)

	dc.MaxLeverage = 100
	max, err = dc.ComputeMaxPrincipal(100)
	require.NoError(t, err)
	require.Zero(t, max, "1x leverage permits no borrowing")

	dc.MaxLeverage = 99
	_, err = dc.ComputeMaxPrincipal(100)
	require.ErrorIs(t, err, ErrArithmeticUnderflow)
}

func TestCapInterest(t *testing.T) {
	require.Equal(t, uint64(32), capInterest(0, 32), "zero declaration falls back to the maximum")
	require.Equal(t, uint64(32), capInterest(100, 32), "overshooting declaration is capped")
	require.Equal(t, uint64(20), capInterest(20, 32))
}

func TestDebtControllerAdmin(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	require.NoError(t, e.Execute(NewTransaction(e.SetMaxAPYIx(env.admin, 500))))
	require.NoError(t, e.Execute(NewTransaction(e.SetMaxLeverageIx(env.admin, 1000))))
	require.NoError(t, e.Execute(NewTransaction(e.SetLiquidationFeeIx(env.admin, 10))))
	dc, err := e.GetDebtController()
	require.NoError(t, err)
	require.Equal(t, uint64(500), dc.MaxAPY)
	require.Equal(t, uint64(1000), dc.MaxLeverage)
	require.Equal(t, uint64(10), dc.LiquidationFee)

	// Parameter bounds.
	require.ErrorIs(t, e.Execute(NewTransaction(e.SetMaxAPYIx(env.admin, 0))), ErrInvalidTransaction)
	require.ErrorIs(t, e.Execute(NewTransaction(e.SetMaxLeverageIx(env.admin, 100*LeverageDenominator+1))), ErrInvalidTransaction)
	require.ErrorIs(t, e.Execute(NewTransaction(e.SetLiquidationFeeIx(env.admin, 11))), ErrInvalidTransaction)

	// Only the super admin may tune the controller.
	require.ErrorIs(t, e.Execute(NewTransaction(e.SetMaxAPYIx(env.backend, 200))), ErrInvalidPermissions)
}
