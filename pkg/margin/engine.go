package margin

import (
	"github.com/luxfi/database"
	"github.com/luxfi/log"
	"github.com/prometheus/client_golang/prometheus"
)

// Engine is the margin program: a transaction runtime over a journaled state
// plus the instruction set operating on it. One engine per database; the
// runtime serializes transactions, so Execute is not safe for concurrent use.
type Engine struct {
	db      database.Database
	log     log.Logger
	state   *State
	runtime *Runtime
	clock   Clock
	sink    EventSink
	metrics *engineMetrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithClock replaces the wall clock, used by tests and simulations.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithEventSink attaches an event consumer.
func WithEventSink(sink EventSink) Option {
	return func(e *Engine) { e.sink = sink }
}

// WithMetrics registers the engine counters on reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(e *Engine) { e.metrics = newEngineMetrics(reg) }
}

// NewEngine creates an engine over db.
func NewEngine(db database.Database, logger log.Logger, opts ...Option) *Engine {
	e := &Engine{
		db:    db,
		log:   logger,
		clock: SystemClock{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.metrics == nil {
		e.metrics = newEngineMetrics(nil)
	}
	e.state = NewState(db)
	e.runtime = NewRuntime(e.state, e.clock)
	return e
}

// Execute runs tx atomically: the first failing instruction rolls back every
// write the transaction made, including writes of instructions that already
// succeeded.
func (e *Engine) Execute(tx *Transaction) error {
	if err := e.runtime.Execute(tx); err != nil {
		e.metrics.txFailed.Inc()
		e.log.Debug("transaction rejected", "instructions", len(tx.Instructions), "err", err)
		return err
	}
	e.metrics.txExecuted.Inc()
	return nil
}

// Clock returns the engine's clock.
func (e *Engine) Clock() Clock { return e.clock }

func (e *Engine) emit(typ string, data map[string]interface{}) {
	if e.sink != nil {
		e.sink.Publish(newEvent(typ, data))
	}
	e.log.Debug("event", "type", typ)
}

func (e *Engine) ix(name string, exec func(tc *TxContext) error) Instruction {
	return Instruction{Program: ProgramID, Name: name, Exec: exec}
}

// ExternalIx builds an instruction of a foreign program, the shape a swap
// venue occupies between a setup and its cleanup.
func ExternalIx(program, name string, exec func(tc *TxContext) error) Instruction {
	return Instruction{Program: program, Name: name, Exec: exec}
}

// Bootstrap and administration.

func (e *Engine) InitGlobalSettingsIx(args InitGlobalSettingsArgs) Instruction {
	return e.ix("init_global_settings", func(tc *TxContext) error { return e.initGlobalSettings(tc, args) })
}

func (e *Engine) InitOrUpdatePermissionIx(args InitOrUpdatePermissionArgs) Instruction {
	return e.ix("init_or_update_permission", func(tc *TxContext) error { return e.initOrUpdatePermission(tc, args) })
}

func (e *Engine) InitDebtControllerIx(args InitDebtControllerArgs) Instruction {
	return e.ix("init_debt_controller", func(tc *TxContext) error { return e.initDebtController(tc, args) })
}

func (e *Engine) SetMaxAPYIx(authority Address, maxAPY uint64) Instruction {
	return e.ix("set_max_apy", func(tc *TxContext) error { return e.setMaxAPY(tc, authority, maxAPY) })
}

func (e *Engine) SetMaxLeverageIx(authority Address, maxLeverage uint64) Instruction {
	return e.ix("set_max_leverage", func(tc *TxContext) error { return e.setMaxLeverage(tc, authority, maxLeverage) })
}

func (e *Engine) SetLiquidationFeeIx(authority Address, fee uint64) Instruction {
	return e.ix("set_liquidation_fee", func(tc *TxContext) error { return e.setLiquidationFee(tc, authority, fee) })
}

func (e *Engine) SetFeeWalletIx(authority, wallet Address) Instruction {
	return e.ix("set_fee_wallet", func(tc *TxContext) error { return e.setFeeWallet(tc, authority, wallet) })
}

func (e *Engine) SetTradingStateIx(authority Address, enabled bool) Instruction {
	return e.ix("set_trading_state", func(tc *TxContext) error { return e.setTradingState(tc, authority, enabled) })
}

func (e *Engine) SetLpStateIx(authority Address, enabled bool) Instruction {
	return e.ix("set_lp_state", func(tc *TxContext) error { return e.setLpState(tc, authority, enabled) })
}

func (e *Engine) SetSuperAdminIx(authority, newAdmin Address) Instruction {
	return e.ix("set_super_admin", func(tc *TxContext) error { return e.setSuperAdmin(tc, authority, newAdmin) })
}

// Vault lifecycle and LP operations.

func (e *Engine) InitLpVaultIx(args InitLpVaultArgs) Instruction {
	return e.ix("init_lp_vault", func(tc *TxContext) error { return e.initLpVault(tc, args) })
}

func (e *Engine) DepositIx(args VaultUserArgs) Instruction {
	return e.ix("deposit", func(tc *TxContext) error { return e.deposit(tc, args) })
}

func (e *Engine) MintIx(args VaultUserArgs) Instruction {
	return e.ix("mint", func(tc *TxContext) error { return e.mint(tc, args) })
}

func (e *Engine) RedeemIx(args VaultUserArgs) Instruction {
	return e.ix("redeem", func(tc *TxContext) error { return e.redeem(tc, args) })
}

func (e *Engine) WithdrawIx(args VaultUserArgs) Instruction {
	return e.ix("withdraw", func(tc *TxContext) error { return e.withdraw(tc, args) })
}

func (e *Engine) DonateIx(args VaultUserArgs) Instruction {
	return e.ix("donate", func(tc *TxContext) error { return e.donate(tc, args) })
}

func (e *Engine) AdminBorrowIx(args AdminBorrowArgs) Instruction {
	return e.ix("admin_borrow", func(tc *TxContext) error { return e.adminBorrow(tc, args) })
}

func (e *Engine) RepayIx(args RepayArgs) Instruction {
	return e.ix("repay", func(tc *TxContext) error { return e.repay(tc, args) })
}

// Markets.

func (e *Engine) InitPoolIx(args InitPoolArgs) Instruction {
	return e.ix("init_pool", func(tc *TxContext) error { return e.initPool(tc, args) })
}

// Trading brackets.

func (e *Engine) OpenLongPositionSetupIx(args OpenPositionSetupArgs) Instruction {
	return e.ix(IxOpenLongPositionSetup, func(tc *TxContext) error { return e.openPositionSetup(tc, args, true) })
}

func (e *Engine) OpenLongPositionCleanupIx(args OpenPositionCleanupArgs) Instruction {
	return e.ix(IxOpenLongPositionCleanup, func(tc *TxContext) error { return e.openPositionCleanup(tc, args, true) })
}

func (e *Engine) OpenShortPositionSetupIx(args OpenPositionSetupArgs) Instruction {
	return e.ix(IxOpenShortPositionSetup, func(tc *TxContext) error { return e.openPositionSetup(tc, args, false) })
}

func (e *Engine) OpenShortPositionCleanupIx(args OpenPositionCleanupArgs) Instruction {
	return e.ix(IxOpenShortPositionCleanup, func(tc *TxContext) error { return e.openPositionCleanup(tc, args, false) })
}

func (e *Engine) CloseLongPositionSetupIx(args ClosePositionSetupArgs) Instruction {
	return e.ix(IxCloseLongPositionSetup, func(tc *TxContext) error {
		return e.closePositionSetup(tc, args, CloseModeUser, true)
	})
}

func (e *Engine) CloseLongPositionCleanupIx(args ClosePositionCleanupArgs) Instruction {
	return e.ix(IxCloseLongPositionCleanup, func(tc *TxContext) error {
		return e.closePositionCleanup(tc, args, CloseModeUser, true)
	})
}

func (e *Engine) CloseShortPositionSetupIx(args ClosePositionSetupArgs) Instruction {
	return e.ix(IxCloseShortPositionSetup, func(tc *TxContext) error {
		return e.closePositionSetup(tc, args, CloseModeUser, false)
	})
}

func (e *Engine) CloseShortPositionCleanupIx(args ClosePositionCleanupArgs) Instruction {
	return e.ix(IxCloseShortPositionCleanup, func(tc *TxContext) error {
		return e.closePositionCleanup(tc, args, CloseModeUser, false)
	})
}

func (e *Engine) LiquidatePositionSetupIx(args ClosePositionSetupArgs, isLong bool) Instruction {
	return e.ix(IxLiquidatePositionSetup, func(tc *TxContext) error {
		return e.closePositionSetup(tc, args, CloseModeLiquidation, isLong)
	})
}

func (e *Engine) LiquidatePositionCleanupIx(args ClosePositionCleanupArgs, isLong bool) Instruction {
	return e.ix(IxLiquidatePositionCleanup, func(tc *TxContext) error {
		return e.closePositionCleanup(tc, args, CloseModeLiquidation, isLong)
	})
}

func (e *Engine) StopLossSetupIx(args ClosePositionSetupArgs, isLong bool) Instruction {
	return e.ix(IxStopLossSetup, func(tc *TxContext) error {
		return e.closePositionSetup(tc, args, CloseModeStopLoss, isLong)
	})
}

func (e *Engine) StopLossCleanupIx(args ClosePositionCleanupArgs, isLong bool) Instruction {
	return e.ix(IxStopLossCleanup, func(tc *TxContext) error {
		return e.closePositionCleanup(tc, args, CloseModeStopLoss, isLong)
	})
}

func (e *Engine) TakeProfitSetupIx(args ClosePositionSetupArgs, isLong bool) Instruction {
	return e.ix(IxTakeProfitSetup, func(tc *TxContext) error {
		return e.closePositionSetup(tc, args, CloseModeTakeProfit, isLong)
	})
}

func (e *Engine) TakeProfitCleanupIx(args ClosePositionCleanupArgs, isLong bool) Instruction {
	return e.ix(IxTakeProfitCleanup, func(tc *TxContext) error {
		return e.closePositionCleanup(tc, args, CloseModeTakeProfit, isLong)
	})
}

func (e *Engine) ClaimPositionIx(args ClaimPositionArgs) Instruction {
	return e.ix("claim_position", func(tc *TxContext) error { return e.claimPosition(tc, args) })
}

// Exit orders.

func (e *Engine) InitOrUpdateStopLossOrderIx(args ExitOrderArgs) Instruction {
	return e.ix("init_or_update_stop_loss_order", func(tc *TxContext) error { return e.initOrUpdateStopLossOrder(tc, args) })
}

func (e *Engine) InitOrUpdateTakeProfitOrderIx(args ExitOrderArgs) Instruction {
	return e.ix("init_or_update_take_profit_order", func(tc *TxContext) error { return e.initOrUpdateTakeProfitOrder(tc, args) })
}

func (e *Engine) CloseStopLossOrderIx(authority, position Address) Instruction {
	return e.ix("close_stop_loss_order", func(tc *TxContext) error { return e.closeStopLossOrder(tc, authority, position) })
}

func (e *Engine) CloseTakeProfitOrderIx(authority, position Address) Instruction {
	return e.ix("close_take_profit_order", func(tc *TxContext) error { return e.closeTakeProfitOrder(tc, authority, position) })
}

// Native staking.

func (e *Engine) InitNativeYieldIx(args InitNativeYieldArgs) Instruction {
	return e.ix("init_native_yield", func(tc *TxContext) error { return e.initNativeYield(tc, args) })
}

func (e *Engine) NativeStakeSetupIx(args StakeArgs) Instruction {
	return e.ix(IxNativeStakeSetup, func(tc *TxContext) error { return e.nativeStakeSetup(tc, args) })
}

func (e *Engine) NativeStakeCleanupIx(authority, nativeYield Address) Instruction {
	return e.ix(IxNativeStakeCleanup, func(tc *TxContext) error { return e.nativeStakeCleanup(tc, authority, nativeYield) })
}

func (e *Engine) NativeUnstakeSetupIx(args StakeArgs) Instruction {
	return e.ix(IxNativeUnstakeSetup, func(tc *TxContext) error { return e.nativeUnstakeSetup(tc, args) })
}

func (e *Engine) NativeUnstakeCleanupIx(authority, nativeYield Address) Instruction {
	return e.ix(IxNativeUnstakeCleanup, func(tc *TxContext) error { return e.nativeUnstakeCleanup(tc, authority, nativeYield) })
}

func (e *Engine) ClaimNativeYieldIx(args ClaimYieldArgs) Instruction {
	return e.ix("claim_native_yield", func(tc *TxContext) error { return e.claimNativeYield(tc, args) })
}

// External strategies.

func (e *Engine) InitStrategyIx(args InitStrategyArgs) Instruction {
	return e.ix("init_strategy", func(tc *TxContext) error { return e.initStrategy(tc, args) })
}

func (e *Engine) StrategyDepositSetupIx(args StrategyOpArgs) Instruction {
	return e.ix(IxStrategyDepositSetup, func(tc *TxContext) error { return e.strategyDepositSetup(tc, args) })
}

func (e *Engine) StrategyDepositCleanupIx(authority, strategy Address) Instruction {
	return e.ix(IxStrategyDepositCleanup, func(tc *TxContext) error { return e.strategyDepositCleanup(tc, authority, strategy) })
}

func (e *Engine) StrategyWithdrawSetupIx(args StrategyOpArgs) Instruction {
	return e.ix(IxStrategyWithdrawSetup, func(tc *TxContext) error { return e.strategyWithdrawSetup(tc, args) })
}

func (e *Engine) StrategyWithdrawCleanupIx(authority, strategy Address) Instruction {
	return e.ix(IxStrategyWithdrawCleanup, func(tc *TxContext) error { return e.strategyWithdrawCleanup(tc, authority, strategy) })
}

func (e *Engine) StrategyClaimYieldIx(args ClaimYieldArgs) Instruction {
	return e.ix("strategy_claim_yield", func(tc *TxContext) error { return e.strategyClaimYield(tc, args) })
}

func (e *Engine) CloseStrategyIx(authority, strategy Address) Instruction {
	return e.ix("close_strategy", func(tc *TxContext) error { return e.closeStrategy(tc, authority, strategy) })
}

// Bundles.

func (e *Engine) BundleSetupIx(args BundleSetupArgs) Instruction {
	return e.ix(IxBundleSetup, func(tc *TxContext) error { return e.bundleSetup(tc, args) })
}

func (e *Engine) ValidateBundleIx(authority, payer Address) Instruction {
	return e.ix("validate_bundle", func(tc *TxContext) error { return e.validateBundle(tc, authority, payer) })
}

func (e *Engine) BundleCleanupIx(args BundleCleanupArgs) Instruction {
	return e.ix(IxBundleCleanup, func(tc *TxContext) error { return e.bundleCleanup(tc, args) })
}

// Genesis runs the admin bootstrap outside transaction context: token mints
// and user accounts for tests and local deployments.

// GenesisLedger exposes a ledger over uncommitted state for seeding; Commit
// persists the seeds.
func (e *Engine) GenesisLedger() (*Ledger, func() error) {
	return NewLedger(e.state), e.state.Commit
}
