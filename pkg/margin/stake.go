package margin

import "fmt"

// NativeYield tracks a deployment of idle vault assets into the chain-native
// staking venue: how many stake tokens the vault holds (CollateralAmount) and
// the principal-plus-accrued value they represent (TotalBorrowedAmount).
type NativeYield struct {
	Address             Address `json:"address"`
	LpVault             Address `json:"lp_vault"`
	StakeMint           Address `json:"stake_mint"`
	StakeAccount        Address `json:"stake_account"`
	CollateralAmount    uint64  `json:"collateral_amount"`
	TotalBorrowedAmount uint64  `json:"total_borrowed_amount"`
	LastUpdated         int64   `json:"last_updated"`
}

func (*NativeYield) Discriminator() string { return "native_yield" }

// NativeYieldAddress derives the record address for (vault, stake mint).
func NativeYieldAddress(lpVault, stakeMint Address) Address {
	return DeriveAddress(seedNativeYield, lpVault[:], stakeMint[:])
}

// StakeRequest brackets a native-stake deposit, one per vault.
type StakeRequest struct {
	Address         Address   `json:"address"`
	NativeYield     Address   `json:"native_yield"`
	LpVault         Address   `json:"lp_vault"`
	MinTargetAmount uint64    `json:"min_target_amount"`
	MaxAmountIn     uint64    `json:"max_amount_in"`
	SwapCache       SwapCache `json:"swap_cache"`
}

func (*StakeRequest) Discriminator() string { return "stake_request" }

// StakeRequestAddress derives the per-vault stake bracket address.
func StakeRequestAddress(lpVault Address) Address {
	return DeriveAddress(seedStakeRequest, lpVault[:])
}

// StakeSwapRequest brackets an instant unstake performed as a DEX swap of
// stake tokens. Its seed carries no vault key, so at most one such operation
// can be in flight system-wide.
type StakeSwapRequest struct {
	Address         Address   `json:"address"`
	NativeYield     Address   `json:"native_yield"`
	LpVault         Address   `json:"lp_vault"`
	MinTargetAmount uint64    `json:"min_target_amount"`
	MaxAmountIn     uint64    `json:"max_amount_in"`
	SwapCache       SwapCache `json:"swap_cache"`
}

func (*StakeSwapRequest) Discriminator() string { return "stake_swap_request" }

// StakeSwapRequestAddress is the global instant-unstake bracket address.
func StakeSwapRequestAddress() Address {
	return DeriveAddress(seedStakeSwapRequest)
}

// InitNativeYieldArgs registers the staking venue for a vault.
type InitNativeYieldArgs struct {
	Authority Address
	LpVault   Address
	StakeMint Address
}

func (e *Engine) initNativeYield(tc *TxContext, args InitNativeYieldArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermInitVault); err != nil {
		return err
	}
	addr := NativeYieldAddress(args.LpVault, args.StakeMint)
	stakeAccount := DeriveAddress(addr[:], []byte("stake_custody"))
	ny := &NativeYield{
		Address:      addr,
		LpVault:      args.LpVault,
		StakeMint:    args.StakeMint,
		StakeAccount: stakeAccount,
		LastUpdated:  tc.Now(),
	}
	if err := tc.State.createRecord(addr, ny); err != nil {
		return err
	}
	return tc.Ledger.CreateAccount(stakeAccount, args.StakeMint, addr)
}

// StakeArgs covers both stake and unstake setups.
type StakeArgs struct {
	Authority       Address
	NativeYield     Address
	AmountIn        uint64
	MinTargetAmount uint64
	SwapAuthority   Address
}

func (e *Engine) nativeYield(tc *TxContext, addr Address) (*NativeYield, error) {
	var ny NativeYield
	if err := tc.State.getRecord(addr, &ny); err != nil {
		return nil, err
	}
	return &ny, nil
}

func (e *Engine) nativeStakeSetup(tc *TxContext, args StakeArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	if err := validateSetupPlacement(tc, IxNativeStakeCleanup, allCleanupNames...); err != nil {
		return err
	}
	ny, err := e.nativeYield(tc, args.NativeYield)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, ny.LpVault)
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
	cache, err := snapshotSwap(tc, vault.VaultAccount, ny.StakeAccount)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Approve(vault.VaultAccount, args.SwapAuthority, vault.Address, args.AmountIn); err != nil {
		return err
	}
	req := &StakeRequest{
		Address:         StakeRequestAddress(ny.LpVault),
		NativeYield:     args.NativeYield,
		LpVault:         ny.LpVault,
		MinTargetAmount: args.MinTargetAmount,
		MaxAmountIn:     args.AmountIn,
		SwapCache:       cache,
	}
	return tc.State.createRecord(req.Address, req)
}

func (e *Engine) nativeStakeCleanup(tc *TxContext, authority, nativeYieldAddr Address) error {
	ny, err := e.nativeYield(tc, nativeYieldAddr)
	if err != nil {
		return err
	}
	var req StakeRequest
	if err := tc.State.getRecord(StakeRequestAddress(ny.LpVault), &req); err != nil {
		return err
	}
	if req.NativeYield != nativeYieldAddr {
		return fmt.Errorf("%w: bracket is for another stake venue", ErrInvalidSwap)
	}
	vault, err := e.lpVault(tc, ny.LpVault)
	if err != nil {
		return err
	}
	sourceDelta, destinationDelta, err := req.SwapCache.swapDeltas(tc, vault.VaultAccount, ny.StakeAccount)
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
	ny.CollateralAmount, err = checkedAdd(ny.CollateralAmount, destinationDelta)
	if err != nil {
		return err
	}
	ny.TotalBorrowedAmount, err = checkedAdd(ny.TotalBorrowedAmount, sourceDelta)
	if err != nil {
		return err
	}
	ny.LastUpdated = tc.Now()
	vault.TotalBorrowed, err = checkedAdd(vault.TotalBorrowed, sourceDelta)
	if err != nil {
		return err
	}
	if err := tc.State.putRecord(vault.Address, vault); err != nil {
		return err
	}
	if err := tc.State.putRecord(ny.Address, ny); err != nil {
		return err
	}
	tc.State.closeRecord(req.Address)
	e.emit(EventNativeStake, map[string]interface{}{
		"native_yield": ny.Address.String(),
		"vault":        vault.Address.String(),
		"staked":       sourceDelta,
		"received":     destinationDelta,
	})
	return nil
}

func (e *Engine) nativeUnstakeSetup(tc *TxContext, args StakeArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	if err := validateSetupPlacement(tc, IxNativeUnstakeCleanup, allCleanupNames...); err != nil {
		return err
	}
	ny, err := e.nativeYield(tc, args.NativeYield)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, ny.LpVault)
	if err != nil {
		return err
	}
	cache, err := snapshotSwap(tc, ny.StakeAccount, vault.VaultAccount)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Approve(ny.StakeAccount, args.SwapAuthority, ny.Address, args.AmountIn); err != nil {
		return err
	}
	req := &StakeSwapRequest{
		Address:         StakeSwapRequestAddress(),
		NativeYield:     args.NativeYield,
		LpVault:         ny.LpVault,
		MinTargetAmount: args.MinTargetAmount,
		MaxAmountIn:     args.AmountIn,
		SwapCache:       cache,
	}
	return tc.State.createRecord(req.Address, req)
}

func (e *Engine) nativeUnstakeCleanup(tc *TxContext, authority, nativeYieldAddr Address) error {
	var req StakeSwapRequest
	if err := tc.State.getRecord(StakeSwapRequestAddress(), &req); err != nil {
		return err
	}
	if req.NativeYield != nativeYieldAddr {
		return fmt.Errorf("%w: bracket is for another stake venue", ErrInvalidSwap)
	}
	ny, err := e.nativeYield(tc, nativeYieldAddr)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, ny.LpVault)
	if err != nil {
		return err
	}
	sourceDelta, destinationDelta, err := req.SwapCache.swapDeltas(tc, ny.StakeAccount, vault.VaultAccount)
	if err != nil {
		return err
	}
	if destinationDelta < req.MinTargetAmount {
		return fmt.Errorf("%w: received %d, need %d", ErrMinTokensNotMet, destinationDelta, req.MinTargetAmount)
	}
	if sourceDelta > req.MaxAmountIn {
		return fmt.Errorf("%w: spent %d, allowed %d", ErrSwapAmountExceeded, sourceDelta, req.MaxAmountIn)
	}
	if err := tc.Ledger.Revoke(ny.StakeAccount, ny.Address); err != nil {
		return err
	}

	if err := e.applyVenueWithdraw(tc, vault, &ny.CollateralAmount, &ny.TotalBorrowedAmount, sourceDelta, destinationDelta); err != nil {
		return err
	}
	ny.LastUpdated = tc.Now()
	if err := tc.State.putRecord(ny.Address, ny); err != nil {
		return err
	}
	tc.State.closeRecord(req.Address)
	e.emit(EventNativeUnstake, map[string]interface{}{
		"native_yield": ny.Address.String(),
		"vault":        vault.Address.String(),
		"unstaked":     sourceDelta,
		"received":     destinationDelta,
	})
	return nil
}

// applyVenueWithdraw unwinds part of an external-yield deployment: the spent
// venue tokens release their proportional share of the deployed principal,
// and anything received beyond that share is realized yield (or, if below, a
// realized loss) on the vault's TotalAssets.
func (e *Engine) applyVenueWithdraw(tc *TxContext, vault *LpVault, collateralAmount, totalBorrowedAmount *uint64, sourceDelta, destinationDelta uint64) error {
	if *collateralAmount == 0 || sourceDelta > *collateralAmount {
		return fmt.Errorf("%w: spending %d of %d venue tokens", ErrInvalidSwap, sourceDelta, *collateralAmount)
	}
	principalPortion, err := mulDiv(*totalBorrowedAmount, sourceDelta, *collateralAmount)
	if err != nil {
		return err
	}
	*collateralAmount -= sourceDelta
	*totalBorrowedAmount, _ = deduct(*totalBorrowedAmount, principalPortion)
	vault.TotalBorrowed, _ = deduct(vault.TotalBorrowed, principalPortion)
	if destinationDelta >= principalPortion {
		vault.TotalAssets, err = checkedAdd(vault.TotalAssets, destinationDelta-principalPortion)
	} else {
		vault.TotalAssets, err = checkedSub(vault.TotalAssets, principalPortion-destinationDelta)
	}
	if err != nil {
		return err
	}
	return tc.State.putRecord(vault.Address, vault)
}

// ClaimYieldArgs reports the current external valuation of a deployment.
type ClaimYieldArgs struct {
	Authority Address
	Venue     Address
	NewQuote  uint64
}

// claimNativeYield realizes accrued staking yield into the vault accounting.
// The reported quote may drift only within the tolerance band.
func (e *Engine) claimNativeYield(tc *TxContext, args ClaimYieldArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	ny, err := e.nativeYield(tc, args.Venue)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, ny.LpVault)
	if err != nil {
		return err
	}
	if err := validateDifference(ny.TotalBorrowedAmount, args.NewQuote); err != nil {
		return err
	}
	if err := e.applyYieldClaim(tc, vault, &ny.TotalBorrowedAmount, args.NewQuote); err != nil {
		return err
	}
	ny.LastUpdated = tc.Now()
	if err := tc.State.putRecord(ny.Address, ny); err != nil {
		return err
	}
	e.emit(EventYieldClaimed, map[string]interface{}{
		"venue":     ny.Address.String(),
		"vault":     vault.Address.String(),
		"new_quote": args.NewQuote,
	})
	return nil
}

// applyYieldClaim moves a deployment's book value to the new quote, crediting
// growth to the vault as realized interest and debiting shrinkage as loss.
func (e *Engine) applyYieldClaim(tc *TxContext, vault *LpVault, totalBorrowedAmount *uint64, newQuote uint64) error {
	old := *totalBorrowedAmount
	var err error
	if newQuote >= old {
		gain := newQuote - old
		vault.TotalAssets, err = checkedAdd(vault.TotalAssets, gain)
		if err != nil {
			return err
		}
		vault.TotalBorrowed, err = checkedAdd(vault.TotalBorrowed, gain)
	} else {
		loss := old - newQuote
		vault.TotalAssets, err = checkedSub(vault.TotalAssets, loss)
		if err != nil {
			return err
		}
		vault.TotalBorrowed, _ = deduct(vault.TotalBorrowed, loss)
	}
	if err != nil {
		return err
	}
	*totalBorrowedAmount = newQuote
	return tc.State.putRecord(vault.Address, vault)
}
