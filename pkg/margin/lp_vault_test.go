package margin

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func (env *testEnv) sharePrice() decimal.Decimal {
	p, err := env.engine.SharePrice(env.usdVault)
	require.NoError(env.t, err)
	return p
}

func TestVaultDepositRedeemRoundTrip(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	env.depositUSD(1000)
	require.Equal(t, uint64(1000), env.balance(env.lpShares), "first deposit mints 1:1")
	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Equal(t, uint64(1000), vault.TotalAssets)

	before := env.balance(env.traderUSD)
	require.NoError(t, e.Execute(NewTransaction(e.RedeemIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        1000,
	}))))
	require.Equal(t, before+1000, env.balance(env.traderUSD))
	require.Zero(t, env.balance(env.lpShares))
}

func TestVaultSharePriceNeverDecreases(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	last := env.sharePrice()
	step := func(name string) {
		price := env.sharePrice()
		require.True(t, price.GreaterThanOrEqual(last), "share price decreased after %s: %s -> %s", name, last, price)
		last = price
	}

	env.depositUSD(1000)
	step("deposit")

	// Donations raise the price without minting shares.
	require.NoError(t, e.Execute(NewTransaction(e.DonateIx(VaultUserArgs{
		Authority:    env.trader,
		Vault:        env.usdVault,
		AssetAccount: env.traderUSD,
		Amount:       100,
	}))))
	step("donate")

	// A second deposit floors the minted shares.
	env.depositUSD(1000)
	require.Equal(t, uint64(1909), env.balance(env.lpShares))
	step("second deposit")

	// Redeem floors the assets paid out.
	require.NoError(t, e.Execute(NewTransaction(e.RedeemIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        909,
	}))))
	step("redeem")

	// Withdraw burns the ceiling-rounded share count.
	require.NoError(t, e.Execute(NewTransaction(e.WithdrawIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        100,
	}))))
	step("withdraw")

	// Mint charges the ceiling-rounded asset amount.
	require.NoError(t, e.Execute(NewTransaction(e.MintIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        100,
	}))))
	step("mint")
}

func TestVaultInverseOperationsRoundAgainstCaller(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	env.depositUSD(1000)
	require.NoError(t, e.Execute(NewTransaction(e.DonateIx(VaultUserArgs{
		Authority:    env.trader,
		Vault:        env.usdVault,
		AssetAccount: env.traderUSD,
		Amount:       100,
	}))))

	// Withdrawing 100 assets at price 1.1 burns ceil(100*1000/1100) = 91 shares;
	// flooring would burn 90 and leak value out of the vault.
	sharesBefore := env.balance(env.lpShares)
	require.NoError(t, e.Execute(NewTransaction(e.WithdrawIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        100,
	}))))
	require.Equal(t, sharesBefore-91, env.balance(env.lpShares))

	// Minting 100 shares at price 1000/909 charges ceil(100*1000/909) = 111.
	usdBefore := env.balance(env.traderUSD)
	require.NoError(t, e.Execute(NewTransaction(e.MintIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        100,
	}))))
	require.Equal(t, usdBefore-111, env.balance(env.traderUSD))
}

func TestVaultAdminBorrowAndRepay(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(10_000)

	dest := NamedAddress("backend-usd")
	ledger, commit := e.GenesisLedger()
	require.NoError(t, ledger.CreateAccount(dest, env.usd, env.backend))
	require.NoError(t, commit())

	require.NoError(t, e.Execute(NewTransaction(e.AdminBorrowIx(AdminBorrowArgs{
		Authority:   env.backend,
		Vault:       env.usdVault,
		Destination: dest,
		Amount:      4000,
	}))))
	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Equal(t, uint64(4000), vault.TotalBorrowed)
	require.Equal(t, uint64(10_000), vault.TotalAssets, "borrowed funds are still owed to the vault")
	require.Equal(t, uint64(4000), env.balance(dest))

	// The trader key has no borrow capability.
	require.ErrorIs(t, e.Execute(NewTransaction(e.AdminBorrowIx(AdminBorrowArgs{
		Authority:   env.trader,
		Vault:       env.usdVault,
		Destination: dest,
		Amount:      1,
	}))), ErrInvalidPermissions)

	require.ErrorIs(t, e.Execute(NewTransaction(e.RepayIx(RepayArgs{
		Authority: env.backend,
		Vault:     env.usdVault,
		Source:    dest,
		Amount:    4001,
	}))), ErrMaxRepayExceeded)

	require.NoError(t, e.Execute(NewTransaction(e.RepayIx(RepayArgs{
		Authority: env.backend,
		Vault:     env.usdVault,
		Source:    dest,
		Amount:    4000,
	}))))
	vault, err = e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Zero(t, vault.TotalBorrowed)
}

func TestVaultMaxBorrowCeiling(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine
	env.depositUSD(10_000)

	dest := NamedAddress("backend-usd")
	ledger, commit := e.GenesisLedger()
	require.NoError(t, ledger.CreateAccount(dest, env.usd, env.backend))
	require.NoError(t, commit())

	// Shrink the ceiling below the requested borrow.
	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	vault.MaxBorrow = 100
	require.NoError(t, e.state.putRecord(vault.Address, vault))
	require.NoError(t, e.state.Commit())

	require.ErrorIs(t, e.Execute(NewTransaction(e.AdminBorrowIx(AdminBorrowArgs{
		Authority:   env.backend,
		Vault:       env.usdVault,
		Destination: dest,
		Amount:      101,
	}))), ErrMaxBorrowExceeded)
}

func TestVaultLpKillSwitch(t *testing.T) {
	env := newTestEnv(t)
	e := env.engine

	require.NoError(t, e.Execute(NewTransaction(e.SetLpStateIx(env.admin, false))))
	err := e.Execute(NewTransaction(e.DepositIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        1000,
	})))
	require.ErrorIs(t, err, ErrUnpermittedIx)

	require.NoError(t, e.Execute(NewTransaction(e.SetLpStateIx(env.admin, true))))
	env.depositUSD(1000)
}
