package margin

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestTransactionRollbackIsAllOrNothing(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	traderBefore := env.balance(env.traderUSD)

	// The first deposit succeeds, the second overdraws; neither may stick.
	err := e.Execute(NewTransaction(
		e.DepositIx(VaultUserArgs{
			Authority:     env.trader,
			Vault:         env.usdVault,
			AssetAccount:  env.traderUSD,
			SharesAccount: env.lpShares,
			Amount:        1000,
		}),
		e.DepositIx(VaultUserArgs{
			Authority:     env.trader,
			Vault:         env.usdVault,
			AssetAccount:  env.traderUSD,
			SharesAccount: env.lpShares,
			Amount:        1 << 62,
		}),
	))
	require.ErrorIs(t, err, ErrInsufficientBalance)

	require.Equal(t, traderBefore, env.balance(env.traderUSD))
	require.Zero(t, env.balance(env.lpShares))
	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Zero(t, vault.TotalAssets)
}

func TestRollbackCoversExternalInstructions(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(100_000)

	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)
	venueBefore := env.balance(env.venue[env.usd])

	// The swap leg runs, then the cleanup rejects the received amount. The
	// venue's balance change must unwind along with everything else.
	args := env.openLongArgs(1, 1000, 4000, 50)
	args.MinTargetAmount = 1 << 40
	err = e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(args),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader,
			Trader:    env.trader,
			Pool:      env.longPool,
			LpVault:   env.usdVault,
			Nonce:     1,
		}),
	))
	require.ErrorIs(t, err, ErrMinTokensNotMet)

	require.Equal(t, venueBefore, env.balance(env.venue[env.usd]))
	require.Zero(t, env.balance(pool.CurrencyVault))
	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Zero(t, vault.TotalBorrowed)
	ok, err := e.HasRecord(PositionAddress(env.trader, env.longPool, env.usdVault, 1))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestSetupRequiresMatchingCleanup(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(100_000)

	err := e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
	))
	require.ErrorIs(t, err, ErrMissingCleanup)

	// A cleanup of the wrong bracket kind does not satisfy the setup.
	err = e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
		e.OpenShortPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader,
			Trader:    env.trader,
			Pool:      env.shortPool,
			LpVault:   env.solVault,
			Nonce:     1,
		}),
	))
	require.ErrorIs(t, err, ErrMissingCleanup)
}

func TestSetupRejectsPriorProgramInstructions(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(100_000)

	pool, err := e.GetPool(env.longPool)
	require.NoError(t, err)

	// Any non-cleanup program instruction ahead of a setup is rejected.
	err = e.Execute(NewTransaction(
		e.DepositIx(VaultUserArgs{
			Authority:     env.trader,
			Vault:         env.usdVault,
			AssetAccount:  env.traderUSD,
			SharesAccount: env.lpShares,
			Amount:        1,
		}),
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader,
			Trader:    env.trader,
			Pool:      env.longPool,
			LpVault:   env.usdVault,
			Nonce:     1,
		}),
	))
	require.ErrorIs(t, err, ErrUnpermittedIx)

	// Foreign program instructions ahead of the setup are fine.
	require.NoError(t, e.Execute(NewTransaction(
		ExternalIx("oracle", "refresh", func(tc *TxContext) error { return nil }),
		e.OpenLongPositionSetupIx(env.openLongArgs(1, 1000, 4000, 50)),
		env.swapIx(pool.CurrencyVault, env.usd, 5000, pool.CollateralVault, env.sol, 5000),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader,
			Trader:    env.trader,
			Pool:      env.longPool,
			LpVault:   env.usdVault,
			Nonce:     1,
		}),
	)))
}

func TestManualClock(t *testing.T) {
	clock := &ManualClock{Unix: 100}
	require.Equal(t, int64(100), clock.Now())
	clock.Advance(50)
	require.Equal(t, int64(150), clock.Now())
}
