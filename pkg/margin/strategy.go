package margin

import "fmt"

// Strategy tracks a deployment of idle vault assets into an external
// yield-bearing venue, one record per (vault, venue token mint) pair.
// CollateralAmount counts venue tokens held; TotalBorrowedAmount the deployed
// principal plus realized yield.
type Strategy struct {
	Address             Address `json:"address"`
	LpVault             Address `json:"lp_vault"`
	CollateralMint      Address `json:"collateral_mint"`
	CollateralVault     Address `json:"collateral_vault"`
	CollateralAmount    uint64  `json:"collateral_amount"`
	TotalBorrowedAmount uint64  `json:"total_borrowed_amount"`
	LastUpdated         int64   `json:"last_updated"`
}

func (*Strategy) Discriminator() string { return "strategy" }

// StrategyAddress derives the record address for (vault, venue mint).
func StrategyAddress(lpVault, collateralMint Address) Address {
	return DeriveAddress(seedStrategy, lpVault[:], collateralMint[:])
}

// StrategyRequest brackets a strategy deposit or withdraw, one in flight per
// strategy.
type StrategyRequest struct {
	Address         Address   `json:"address"`
	Strategy        Address   `json:"strategy"`
	LpVault         Address   `json:"lp_vault"`
	MinTargetAmount uint64    `json:"min_target_amount"`
	MaxAmountIn     uint64    `json:"max_amount_in"`
	Withdraw        bool      `json:"withdraw"`
	SwapCache       SwapCache `json:"swap_cache"`
}

func (*StrategyRequest) Discriminator() string { return "strategy_request" }

// StrategyRequestAddress derives the bracket address for a strategy.
func StrategyRequestAddress(strategy Address) Address {
	return DeriveAddress(seedStrategyRequest, strategy[:])
}

// InitStrategyArgs registers an external venue for a vault.
type InitStrategyArgs struct {
	Authority      Address
	LpVault        Address
	CollateralMint Address
}

func (e *Engine) initStrategy(tc *TxContext, args InitStrategyArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermInitVault); err != nil {
		return err
	}
	addr := StrategyAddress(args.LpVault, args.CollateralMint)
	custody := DeriveAddress(addr[:], []byte("strategy_custody"))
	st := &Strategy{
		Address:         addr,
		LpVault:         args.LpVault,
		CollateralMint:  args.CollateralMint,
		CollateralVault: custody,
		LastUpdated:     tc.Now(),
	}
	if err := tc.State.createRecord(addr, st); err != nil {
		return err
	}
	return tc.Ledger.CreateAccount(custody, args.CollateralMint, addr)
}

func (e *Engine) strategy(tc *TxContext, addr Address) (*Strategy, error) {
	var st Strategy
	if err := tc.State.getRecord(addr, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

// StrategyOpArgs covers both deposit and withdraw setups.
type StrategyOpArgs struct {
	Authority       Address
	Strategy        Address
	AmountIn        uint64
	MinTargetAmount uint64
	SwapAuthority   Address
}

func (e *Engine) strategyDepositSetup(tc *TxContext, args StrategyOpArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	if err := validateSetupPlacement(tc, IxStrategyDepositCleanup, allCleanupNames...); err != nil {
		return err
	}
	st, err := e.strategy(tc, args.Strategy)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, st.LpVault)
	if err != nil {
		return err
	}
	newBorrowed, err := checkedAdd(vault.TotalBorrowed, args.AmountIn)
	if err != nil {
		return err
	}
	if newBorrowed > vault.MaxBorrow {
		return fmt.Errorf("%w: %d > %d", ErrMaxBorrowExceeded, newBorrowed, vault.MaxBorrow)
	}
	cache, err := snapshotSwap(tc, vault.VaultAccount, st.CollateralVault)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Approve(vault.VaultAccount, args.SwapAuthority, vault.Address, args.AmountIn); err != nil {
		return err
	}
	req := &StrategyRequest{
		Address:         StrategyRequestAddress(args.Strategy),
		Strategy:        args.Strategy,
		LpVault:         st.LpVault,
		MinTargetAmount: args.MinTargetAmount,
		MaxAmountIn:     args.AmountIn,
		SwapCache:       cache,
	}
	return tc.State.createRecord(req.Address, req)
}

func (e *Engine) strategyDepositCleanup(tc *TxContext, authority, strategyAddr Address) error {
	var req StrategyRequest
	if err := tc.State.getRecord(StrategyRequestAddress(strategyAddr), &req); err != nil {
		return err
	}
	if req.Strategy != strategyAddr || req.Withdraw {
		return fmt.Errorf("%w: bracket does not match strategy deposit", ErrInvalidSwap)
	}
	st, err := e.strategy(tc, strategyAddr)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, st.LpVault)
	if err != nil {
		return err
	}
	sourceDelta, destinationDelta, err := req.SwapCache.swapDeltas(tc, vault.VaultAccount, st.CollateralVault)
	if err != nil {
		return err
	}
	if destinationDelta < req.MinTargetAmount {
		return fmt.Errorf("%w: received %d, need %d", ErrMinTokensNotMet, destinationDelta, req.MinTargetAmount)
	}
	if sourceDelta > req.MaxAmountIn {
		return fmt.Errorf("%w: spent %d, allowed %d", ErrSwapAmountExceeded, sourceDelta, req.MaxAmountIn)
	}
	if err := tc.Ledger.Revoke(vault.VaultAccount, vault.Address); err != nil {
		return err
	}
	st.CollateralAmount, err = checkedAdd(st.CollateralAmount, destinationDelta)
	if err != nil {
		return err
	}
	st.TotalBorrowedAmount, err = checkedAdd(st.TotalBorrowedAmount, sourceDelta)
	if err != nil {
		return err
	}
	st.LastUpdated = tc.Now()
	vault.TotalBorrowed, err = checkedAdd(vault.TotalBorrowed, sourceDelta)
	if err != nil {
		return err
	}
	if err := tc.State.putRecord(vault.Address, vault); err != nil {
		return err
	}
	if err := tc.State.putRecord(st.Address, st); err != nil {
		return err
	}
	tc.State.closeRecord(req.Address)
	e.emit(EventStrategyDeposit, map[string]interface{}{
		"strategy": st.Address.String(),
		"vault":    vault.Address.String(),
		"deployed": sourceDelta,
		"received": destinationDelta,
	})
	return nil
}

func (e *Engine) strategyWithdrawSetup(tc *TxContext, args StrategyOpArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	if err := validateSetupPlacement(tc, IxStrategyWithdrawCleanup, allCleanupNames...); err != nil {
		return err
	}
	st, err := e.strategy(tc, args.Strategy)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, st.LpVault)
	if err != nil {
		return err
	}
	cache, err := snapshotSwap(tc, st.CollateralVault, vault.VaultAccount)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Approve(st.CollateralVault, args.SwapAuthority, st.Address, args.AmountIn); err != nil {
		return err
	}
	req := &StrategyRequest{
		Address:         StrategyRequestAddress(args.Strategy),
		Strategy:        args.Strategy,
		LpVault:         st.LpVault,
		MinTargetAmount: args.MinTargetAmount,
		MaxAmountIn:     args.AmountIn,
		Withdraw:        true,
		SwapCache:       cache,
	}
	return tc.State.createRecord(req.Address, req)
}

func (e *Engine) strategyWithdrawCleanup(tc *TxContext, authority, strategyAddr Address) error {
	var req StrategyRequest
	if err := tc.State.getRecord(StrategyRequestAddress(strategyAddr), &req); err != nil {
		return err
	}
	if req.Strategy != strategyAddr || !req.Withdraw {
		return fmt.Errorf("%w: bracket does not match strategy withdraw", ErrInvalidSwap)
	}
	st, err := e.strategy(tc, strategyAddr)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, st.LpVault)
	if err != nil {
		return err
	}
	sourceDelta, destinationDelta, err := req.SwapCache.swapDeltas(tc, st.CollateralVault, vault.VaultAccount)
	if err != nil {
		return err
	}
	if destinationDelta < req.MinTargetAmount {
		return fmt.Errorf("%w: received %d, need %d", ErrMinTokensNotMet, destinationDelta, req.MinTargetAmount)
	}
	if sourceDelta > req.MaxAmountIn {
		return fmt.Errorf("%w: spent %d, allowed %d", ErrSwapAmountExceeded, sourceDelta, req.MaxAmountIn)
	}
	if err := tc.Ledger.Revoke(st.CollateralVault, st.Address); err != nil {
		return err
	}
	if err := e.applyVenueWithdraw(tc, vault, &st.CollateralAmount, &st.TotalBorrowedAmount, sourceDelta, destinationDelta); err != nil {
		return err
	}
	st.LastUpdated = tc.Now()
	if err := tc.State.putRecord(st.Address, st); err != nil {
		return err
	}
	tc.State.closeRecord(req.Address)
	e.emit(EventStrategyWithdraw, map[string]interface{}{
		"strategy": st.Address.String(),
		"vault":    vault.Address.String(),
		"unwound":  sourceDelta,
		"received": destinationDelta,
	})
	return nil
}

// strategyClaimYield marks external yield to the reported quote, within the
// tolerance band.
func (e *Engine) strategyClaimYield(tc *TxContext, args ClaimYieldArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	st, err := e.strategy(tc, args.Venue)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, st.LpVault)
	if err != nil {
		return err
	}
	if err := validateDifference(st.TotalBorrowedAmount, args.NewQuote); err != nil {
		return err
	}
	if err := e.applyYieldClaim(tc, vault, &st.TotalBorrowedAmount, args.NewQuote); err != nil {
		return err
	}
	st.LastUpdated = tc.Now()
	if err := tc.State.putRecord(st.Address, st); err != nil {
		return err
	}
	e.emit(EventYieldClaimed, map[string]interface{}{
		"venue":     st.Address.String(),
		"vault":     vault.Address.String(),
		"new_quote": args.NewQuote,
	})
	return nil
}

// closeStrategy removes a fully unwound strategy record.
func (e *Engine) closeStrategy(tc *TxContext, authority, strategyAddr Address) error {
	if err := e.requirePermission(tc, authority, PermInitVault); err != nil {
		return err
	}
	st, err := e.strategy(tc, strategyAddr)
	if err != nil {
		return err
	}
	if st.CollateralAmount != 0 || st.TotalBorrowedAmount != 0 {
		return fmt.Errorf("%w: strategy not fully unwound", ErrInvalidTransaction)
	}
	if err := tc.Ledger.CloseAccount(st.CollateralVault, st.Address); err != nil {
		return err
	}
	tc.State.closeRecord(st.Address)
	return nil
}
