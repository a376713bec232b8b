package margin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestOpenLongPosition(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	traderBefore := env.balance(env.traderUSD)
	position := env.openLong(1, 1000, 4000, 50, 5000, 5000)

	p, err := e.GetPosition(position)
	require.NoError(t, err)
	require.Equal(t, env.trader, p.Trader)
	require.Equal(t, uint64(1000), p.DownPayment)
	require.Equal(t, uint64(4000), p.Principal)
	require.Equal(t, uint64(5000), p.CollateralAmount, "long collateral is the swap output")
	require.Equal(t, uint64(50), p.FeesToBePaid)
	require.Equal(t, env.clock.Unix, p.LastFundingTimestamp)

	// Trader paid down payment plus fee.
	require.Equal(t, traderBefore-1050, env.balance(env.traderUSD))

	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Equal(t, uint64(4000), vault.TotalBorrowed)
	require.Equal(t, uint64(1_000_000), vault.TotalAssets)

	// The bracket record is gone.
	ok, err := e.HasRecord(OpenPositionRequestAddress(position))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestOpenShortPosition(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.donateSOLVault(1_000_000)

	position := env.openShort(1, 1000, 4000, 50, 4000, 900)

	p, err := e.GetPosition(position)
	require.NoError(t, err)
	require.Equal(t, uint64(1900), p.CollateralAmount,
		"short collateral is the quote received plus the down payment")
	require.Equal(t, uint64(4000), p.Principal)

	vault, err := e.GetLpVault(env.solVault)
	require.NoError(t, err)
	require.Equal(t, uint64(4000), vault.TotalBorrowed)
}

func TestOpenPositionLeverageBound(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)

	// Max leverage 5x: a 1000 down payment supports at most 4000 principal.
	args := env.openLongArgs(1, 1000, 4001, 50)
	err = e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(args),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader, Trader: env.trader, Pool: env.longPool, LpVault: env.usdVault, Nonce: 1,
		}),
	))
	require.ErrorIs(t, err, ErrPrincipalTooHigh)

	env.openLong(1, 1000, 4000, 50, 5000, 5000)
}

func TestOpenPositionExpiration(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	args := env.openLongArgs(1, 1000, 4000, 50)
	args.Expiration = env.clock.Unix
	err := e.Execute(NewTransaction(e.OpenLongPositionSetupIx(args)))
	require.ErrorIs(t, err, ErrPositionReqExpired)
}

func TestOpenPositionSpendBound(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)

	// The delegation caps the swap at down payment + principal; the ledger
	// itself rejects a swap trying to take more.
	err = e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
		env.swapIx(pool.CurrencyVault, env.usd, 5001, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader, Trader: env.trader, Pool: env.longPool, LpVault: env.usdVault, Nonce: 1,
		}),
	))
	require.ErrorIs(t, err, ErrInsufficientDelegate)
}

func TestOpenPositionTradingDisabled(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	require.NoError(t, e.Execute(NewTransaction(e.SetTradingStateIx(env.admin, false))))
	err := e.Execute(NewTransaction(e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50))))
	require.ErrorIs(t, err, ErrUnpermittedIx)
}

func TestOpenPositionCosigner(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)

	// A stranger may not open on the trader's behalf.
	args := env.openLongArgs(1, 1000, 4000, 50)
	args.Authority = NamedAddress("stranger")
	err = e.Execute(NewTransaction(e.OpenLongPositionSetupIx(args)))
	require.ErrorIs(t, err, ErrInvalidPermissions)

	// A cosigning backend may, paying from an account it controls.
	backendUSD := NamedAddress("backend-payment-usd")
	ledger, commit := e.GenesisLedger()
	require.NoError(t, ledger.CreateAccount(backendUSD, env.usd, env.backend))
	require.NoError(t, ledger.MintTo(backendUSD, env.usd, env.mintAuthority, 10_000))
	require.NoError(t, commit())

	args = env.openLongArgs(1, 1000, 4000, 50)
	args.Authority = env.backend
	args.PaymentAccount = backendUSD
	require.NoError(t, e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(args),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.backend, Trader: env.trader, Pool: env.longPool, LpVault: env.usdVault, Nonce: 1,
		}),
	)))
	p, err := e.GetPosition(PositionAddress(env.trader, env.longPool, env.usdVault, 1))
	require.NoError(t, err)
	require.Equal(t, env.trader, p.Trader, "the position belongs to the trader, not the cosigner")
}

func TestOpenPositionBracketUniqueness(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	position := PositionAddress(env.trader, env.longPool, env.usdVault, 1)

	// A lingering bracket for the same position key blocks a second setup.
	req := &OpenPositionRequest{Address: OpenPositionRequestAddress(position), PositionKey: position}
	require.NoError(t, e.state.createRecord(req.Address, req))
	require.NoError(t, e.state.Commit())

	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)
	err = e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader, Trader: env.trader, Pool: env.longPool, LpVault: env.usdVault, Nonce: 1,
		}),
	))
	require.ErrorIs(t, err, ErrAccountExists)

	// A different nonce derives a different key and passes.
	env.openLong(2, 1000, 4000, 50, 5000, 5000)
}

func TestOpenPositionSamePositionTwice(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(1_000_000)

	env.openLong(1, 1000, 4000, 50, 5000, 5000)

	// The position record itself collides on a repeated (trader, pool, vault,
	// nonce) tuple.
	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)
	err = e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader, Trader: env.trader, Pool: env.longPool, LpVault: env.usdVault, Nonce: 1,
		}),
	))
	require.ErrorIs(t, err, ErrAccountExists)
}
