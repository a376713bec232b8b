package margin

import (
	"testing"

	"github.com/luxfi/log"
	"github.com/stretchr/testify/require"
)

func newTestLogger() log.Logger {
	level, _ := log.ToLevel("error")
	return log.NewTestLogger(level)
}

// testEnv is a fully bootstrapped engine: two asset mints, a vault per asset,
// a long and a short pool, funded trader and venue accounts, and a backend key
// holding every operational capability.
type testEnv struct {
	t      *testing.T
	engine *Engine
	clock  *ManualClock

	mintAuthority Address
	admin         Address
	backend       Address
	trader        Address
	feeOwner      Address
	tipOwner      Address
	swapper       Address
	venueOwner    Address

	usd Address
	sol Address

	usdVault  Address
	solVault  Address
	longPool  Address
	shortPool Address

	traderUSD Address
	traderSOL Address
	lpShares  Address

	feeUSD Address
	feeSOL Address
	tipUSD Address

	// venue custody per mint, used by swapIx
	venue map[Address]Address
}

func newTestEnv(t *testing.T) *testEnv {
	clock := &ManualClock{Unix: 1_700_000_000}
	env := &testEnv{
		t:      t,
		clock:  clock,
		engine: NewEngine(NewMemDB(), newTestLogger(), WithClock(clock)),

		mintAuthority: NamedAddress("mint-authority"),
		admin:         NamedAddress("admin"),
		backend:       NamedAddress("backend"),
		trader:        NamedAddress("trader"),
		feeOwner:      NamedAddress("fee-owner"),
		tipOwner:      NamedAddress("tip-owner"),
		swapper:       NamedAddress("swapper"),
		venueOwner:    NamedAddress("venue-owner"),

		usd: NamedAddress("usd-mint"),
		sol: NamedAddress("sol-mint"),

		traderUSD: NamedAddress("trader-usd"),
		traderSOL: NamedAddress("trader-sol"),
		lpShares:  NamedAddress("trader-usd-shares"),
		feeUSD:    NamedAddress("fee-usd"),
		feeSOL:    NamedAddress("fee-sol"),
		tipUSD:    NamedAddress("tip-usd"),
	}
	venueUSD := NamedAddress("venue-usd")
	venueSOL := NamedAddress("venue-sol")
	env.venue = map[Address]Address{env.usd: venueUSD, env.sol: venueSOL}

	ledger, commit := env.engine.GenesisLedger()
	require.NoError(t, ledger.CreateMint(env.usd, 6, env.mintAuthority))
	require.NoError(t, ledger.CreateMint(env.sol, 9, env.mintAuthority))
	for _, acct := range []struct {
		addr, mint, owner Address
		amount            uint64
	}{
		{env.traderUSD, env.usd, env.trader, 10_000_000},
		{env.traderSOL, env.sol, env.trader, 10_000_000},
		{env.feeUSD, env.usd, env.feeOwner, 0},
		{env.feeSOL, env.sol, env.feeOwner, 0},
		{env.tipUSD, env.usd, env.tipOwner, 0},
		{venueUSD, env.usd, env.venueOwner, 50_000_000},
		{venueSOL, env.sol, env.venueOwner, 50_000_000},
	} {
		require.NoError(t, ledger.CreateAccount(acct.addr, acct.mint, acct.owner))
		if acct.amount > 0 {
			require.NoError(t, ledger.MintTo(acct.addr, acct.mint, env.mintAuthority, acct.amount))
		}
	}
	require.NoError(t, commit())

	e := env.engine
	require.NoError(t, e.Execute(NewTransaction(
		e.InitGlobalSettingsIx(InitGlobalSettingsArgs{
			Authority:  env.admin,
			SuperAdmin: env.admin,
			FeeWallet:  env.feeOwner,
			TipWallet:  env.tipOwner,
		}),
		e.InitOrUpdatePermissionIx(InitOrUpdatePermissionArgs{
			Authority: env.admin,
			Target:    env.backend,
			Status:    PermInitVault | PermLiquidate | PermCosignSwaps | PermBorrowFromVaults | PermManageWallets,
		}),
		e.InitDebtControllerIx(InitDebtControllerArgs{
			Authority:      env.admin,
			MaxAPY:         300,
			MaxLeverage:    500,
			LiquidationFee: 5,
		}),
	)))

	env.usdVault = LpVaultAddress(env.usd)
	env.solVault = LpVaultAddress(env.sol)
	env.longPool = PoolAddress(env.sol, env.usd, true)
	env.shortPool = PoolAddress(env.usd, env.sol, false)
	require.NoError(t, e.Execute(NewTransaction(
		e.InitLpVaultIx(InitLpVaultArgs{Authority: env.backend, AssetMint: env.usd, MaxBorrow: 1 << 40}),
		e.InitLpVaultIx(InitLpVaultArgs{Authority: env.backend, AssetMint: env.sol, MaxBorrow: 1 << 40}),
		e.InitPoolIx(InitPoolArgs{Authority: env.backend, CollateralMint: env.sol, CurrencyMint: env.usd, IsLongPool: true}),
		e.InitPoolIx(InitPoolArgs{Authority: env.backend, CollateralMint: env.usd, CurrencyMint: env.sol, IsLongPool: false}),
	)))

	vault, err := e.GetLpVault(env.usdVault)
	require.NoError(t, err)
	ledger, commit = e.GenesisLedger()
	require.NoError(t, ledger.CreateAccount(env.lpShares, vault.SharesMint, env.trader))
	require.NoError(t, commit())
	return env
}

// swapIx plays the external venue between a setup and its cleanup: it pulls
// amountIn out of the delegated custody account and pushes amountOut into the
// destination custody.
func (env *testEnv) swapIx(from, fromMint Address, amountIn uint64, to, toMint Address, amountOut uint64) Instruction {
	return ExternalIx("dex", "swap", func(tc *TxContext) error {
		fm, err := tc.Ledger.GetMint(fromMint)
		if err != nil {
			return err
		}
		if err := tc.Ledger.TransferChecked(from, env.venue[fromMint], fromMint, env.swapper, amountIn, fm.Decimals); err != nil {
			return err
		}
		tm, err := tc.Ledger.GetMint(toMint)
		if err != nil {
			return err
		}
		return tc.Ledger.TransferChecked(env.venue[toMint], to, toMint, env.venueOwner, amountOut, tm.Decimals)
	})
}

func (env *testEnv) depositUSD(amount uint64) {
	e := env.engine
	require.NoError(env.t, e.Execute(NewTransaction(e.DepositIx(VaultUserArgs{
		Authority:     env.trader,
		Vault:         env.usdVault,
		AssetAccount:  env.traderUSD,
		SharesAccount: env.lpShares,
		Amount:        amount,
	}))))
}

func (env *testEnv) donateSOLVault(amount uint64) {
	e := env.engine
	require.NoError(env.t, e.Execute(NewTransaction(e.DonateIx(VaultUserArgs{
		Authority:    env.trader,
		Vault:        env.solVault,
		AssetAccount: env.traderSOL,
		Amount:       amount,
	}))))
}

func (env *testEnv) openLongArgs(nonce uint64, downPayment, principal, fee uint64) OpenPositionSetupArgs {
	return OpenPositionSetupArgs{
		Authority:      env.trader,
		Trader:         env.trader,
		PaymentAccount: env.traderUSD,
		Pool:           env.longPool,
		LpVault:        env.usdVault,
		Nonce:          nonce,
		DownPayment:    downPayment,
		Principal:      principal,
		Fee:            fee,
		Expiration:     env.clock.Unix + 300,
		SwapAuthority:  env.swapper,
	}
}

// openLong runs a full setup/swap/cleanup bracket and returns the position key.
func (env *testEnv) openLong(nonce uint64, downPayment, principal, fee, swapIn, swapOut uint64) Address {
	e := env.engine
	pool, err := e.GetPool(env.longPool)
	require.NoError(env.t, err)
	require.NoError(env.t, e.Execute(NewTransaction(
		e.OpenLongPositionSetupIx(env.openLongArgs(nonce, downPayment, principal, fee)),
		env.swapIx(pool.CurrencyVault, env.usd, swapIn, pool.CollateralVault, env.sol, swapOut),
		e.OpenLongPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader,
			Trader:    env.trader,
			Pool:      env.longPool,
			LpVault:   env.usdVault,
			Nonce:     nonce,
		}),
	)))
	return PositionAddress(env.trader, env.longPool, env.usdVault, nonce)
}

func (env *testEnv) openShort(nonce uint64, downPayment, principal, fee, swapIn, swapOut uint64) Address {
	e := env.engine
	pool, err := e.GetPool(env.shortPool)
	require.NoError(env.t, err)
	require.NoError(env.t, e.Execute(NewTransaction(
		e.OpenShortPositionSetupIx(OpenPositionSetupArgs{
			Authority:      env.trader,
			Trader:         env.trader,
			PaymentAccount: env.traderUSD,
			Pool:           env.shortPool,
			LpVault:        env.solVault,
			Nonce:          nonce,
			DownPayment:    downPayment,
			Principal:      principal,
			Fee:            fee,
			Expiration:     env.clock.Unix + 300,
			SwapAuthority:  env.swapper,
		}),
		env.swapIx(pool.CurrencyVault, env.sol, swapIn, pool.CollateralVault, env.usd, swapOut),
		e.OpenShortPositionCleanupIx(OpenPositionCleanupArgs{
			Authority: env.trader,
			Trader:    env.trader,
			Pool:      env.shortPool,
			LpVault:   env.solVault,
			Nonce:     nonce,
		}),
	)))
	return PositionAddress(env.trader, env.shortPool, env.solVault, nonce)
}

func (env *testEnv) balance(acct Address) uint64 {
	b, err := env.engine.Balance(acct)
	require.NoError(env.t, err)
	return b
}

func TestEngineBootstrap(t *testing.T) {
	env := newTestEnv(t)

	gs, err := env.engine.GetGlobalSettings()
	require.NoError(t, err)
	require.Equal(t, env.admin, gs.SuperAdmin)
	require.True(t, gs.TradingEnabled)
	require.True(t, gs.LpEnabled)

	dc, err := env.engine.GetDebtController()
	require.NoError(t, err)
	require.Equal(t, uint64(300), dc.MaxAPY)
	require.Equal(t, uint64(500), dc.MaxLeverage)

	vault, err := env.engine.GetLpVault(env.usdVault)
	require.NoError(t, err)
	require.Equal(t, env.usd, vault.AssetMint)
	require.Zero(t, vault.TotalAssets)

	pool, err := env.engine.GetPool(env.longPool)
	require.NoError(t, err)
	require.True(t, pool.IsLongPool)
	require.Equal(t, env.usd, pool.CurrencyMint)
	require.Equal(t, env.sol, pool.CollateralMint)
}
