package margin

import "fmt"

// OpenPositionRequest is the ephemeral bracket record between an open setup
// and its cleanup. Its address is seeded on the prospective position key, so a
// second overlapping open of the same position collides at creation.
type OpenPositionRequest struct {
	Address         Address   `json:"address"`
	PositionKey     Address   `json:"position_key"`
	Pool            Address   `json:"pool"`
	LpVault         Address   `json:"lp_vault"`
	Trader          Address   `json:"trader"`
	Nonce           uint64    `json:"nonce"`
	DownPayment     uint64    `json:"down_payment"`
	Principal       uint64    `json:"principal"`
	FeesToBePaid    uint64    `json:"fees_to_be_paid"`
	MinTargetAmount uint64    `json:"min_target_amount"`
	MaxAmountIn     uint64    `json:"max_amount_in"`
	Expiration      int64     `json:"expiration"`
	SwapCache       SwapCache `json:"swap_cache"`
}

func (*OpenPositionRequest) Discriminator() string { return "open_position_request" }

// OpenPositionRequestAddress derives the bracket record address.
func OpenPositionRequestAddress(positionKey Address) Address {
	return DeriveAddress(seedOpenRequest, positionKey[:])
}

// OpenPositionSetupArgs are the caller-declared parameters of an open.
// PaymentAccount is the trader's token account funding the down payment and
// fee: currency mint for a long, collateral mint for a short.
type OpenPositionSetupArgs struct {
	Authority       Address
	Trader          Address
	PaymentAccount  Address
	Pool            Address
	LpVault         Address
	Nonce           uint64
	MinTargetAmount uint64
	DownPayment     uint64
	Principal       uint64
	Fee             uint64
	Expiration      int64
	SwapAuthority   Address
}

// allCleanupNames are the instruction names a setup tolerates ahead of itself
// in the transaction.
var allCleanupNames = []string{
	IxOpenLongPositionCleanup,
	IxOpenShortPositionCleanup,
	IxCloseLongPositionCleanup,
	IxCloseShortPositionCleanup,
	IxLiquidatePositionCleanup,
	IxStopLossCleanup,
	IxTakeProfitCleanup,
	IxNativeStakeCleanup,
	IxNativeUnstakeCleanup,
	IxStrategyDepositCleanup,
	IxStrategyWithdrawCleanup,
}

func (e *Engine) openPositionSetup(tc *TxContext, args OpenPositionSetupArgs, isLong bool) error {
	if err := e.requireTradingEnabled(tc); err != nil {
		return err
	}
	if err := e.requireTraderOrCosigner(tc, args.Authority, args.Trader); err != nil {
		return err
	}
	if args.Expiration <= tc.Now() {
		return fmt.Errorf("%w: expired at %d, now %d", ErrPositionReqExpired, args.Expiration, tc.Now())
	}
	cleanupName := IxOpenShortPositionCleanup
	if isLong {
		cleanupName = IxOpenLongPositionCleanup
	}
	if err := validateSetupPlacement(tc, cleanupName, allCleanupNames...); err != nil {
		return err
	}

	pool, err := e.pool(tc, args.Pool)
	if err != nil {
		return err
	}
	if pool.IsLongPool != isLong {
		return fmt.Errorf("%w: wrong pool side", ErrInvalidPool)
	}
	vault, err := e.lpVault(tc, args.LpVault)
	if err != nil {
		return err
	}
	if vault.AssetMint != pool.CurrencyMint {
		return fmt.Errorf("%w: vault asset does not back pool currency", ErrInvalidPool)
	}
	dc, err := e.debtController(tc)
	if err != nil {
		return err
	}
	maxPrincipal, err := dc.ComputeMaxPrincipal(args.DownPayment)
	if err != nil {
		return err
	}
	if args.Principal > maxPrincipal {
		return fmt.Errorf("%w: %d > %d", ErrPrincipalTooHigh, args.Principal, maxPrincipal)
	}

	// Lend the principal into the pool's currency vault.
	newBorrowed, err := checkedAdd(vault.TotalBorrowed, args.Principal)
	if err != nil {
		return err
	}
	if newBorrowed > vault.MaxBorrow {
		return fmt.Errorf("%w: %d > %d", ErrMaxBorrowExceeded, newBorrowed, vault.MaxBorrow)
	}
	currencyMint, err := tc.Ledger.GetMint(pool.CurrencyMint)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(vault.VaultAccount, pool.CurrencyVault, pool.CurrencyMint, vault.Address, args.Principal, currencyMint.Decimals); err != nil {
		return err
	}
	vault.TotalBorrowed = newBorrowed
	if err := tc.State.putRecord(vault.Address, vault); err != nil {
		return err
	}

	// Down payment plus fee land in the pool before the balances are cached,
	// so the swap deltas only ever reflect the delegated call.
	payment, err := checkedAdd(args.DownPayment, args.Fee)
	if err != nil {
		return err
	}
	maxAmountIn := args.Principal
	if isLong {
		if err := tc.Ledger.TransferChecked(args.PaymentAccount, pool.CurrencyVault, pool.CurrencyMint, args.Authority, payment, currencyMint.Decimals); err != nil {
			return err
		}
		maxAmountIn, err = checkedAdd(args.DownPayment, args.Principal)
		if err != nil {
			return err
		}
	} else {
		collateralMint, err := tc.Ledger.GetMint(pool.CollateralMint)
		if err != nil {
			return err
		}
		if err := tc.Ledger.TransferChecked(args.PaymentAccount, pool.CollateralVault, pool.CollateralMint, args.Authority, payment, collateralMint.Decimals); err != nil {
			return err
		}
	}

	cache, err := snapshotSwap(tc, pool.CurrencyVault, pool.CollateralVault)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Approve(pool.CurrencyVault, args.SwapAuthority, pool.Address, maxAmountIn); err != nil {
		return err
	}

	positionKey := PositionAddress(args.Trader, args.Pool, args.LpVault, args.Nonce)
	req := &OpenPositionRequest{
		Address:         OpenPositionRequestAddress(positionKey),
		PositionKey:     positionKey,
		Pool:            args.Pool,
		LpVault:         args.LpVault,
		Trader:          args.Trader,
		Nonce:           args.Nonce,
		DownPayment:     args.DownPayment,
		Principal:       args.Principal,
		FeesToBePaid:    args.Fee,
		MinTargetAmount: args.MinTargetAmount,
		MaxAmountIn:     maxAmountIn,
		Expiration:      args.Expiration,
		SwapCache:       cache,
	}
	return tc.State.createRecord(req.Address, req)
}

// OpenPositionCleanupArgs names the accounts the cleanup operates on.
type OpenPositionCleanupArgs struct {
	Authority Address
	Trader    Address
	Pool      Address
	LpVault   Address
	Nonce     uint64
}

func (e *Engine) openPositionCleanup(tc *TxContext, args OpenPositionCleanupArgs, isLong bool) error {
	positionKey := PositionAddress(args.Trader, args.Pool, args.LpVault, args.Nonce)
	var req OpenPositionRequest
	if err := tc.State.getRecord(OpenPositionRequestAddress(positionKey), &req); err != nil {
		return err
	}
	if req.Pool != args.Pool || req.LpVault != args.LpVault {
		return fmt.Errorf("%w: bracket record does not match accounts", ErrInvalidSwap)
	}
	pool, err := e.pool(tc, args.Pool)
	if err != nil {
		return err
	}
	if pool.IsLongPool != isLong {
		return fmt.Errorf("%w: wrong pool side", ErrInvalidPool)
	}

	sourceDelta, destinationDelta, err := req.SwapCache.swapDeltas(tc, pool.CurrencyVault, pool.CollateralVault)
	if err != nil {
		return err
	}
	if destinationDelta < req.MinTargetAmount {
		return fmt.Errorf("%w: received %d, need %d", ErrMinTokensNotMet, destinationDelta, req.MinTargetAmount)
	}
	if sourceDelta > req.MaxAmountIn {
		return fmt.Errorf("%w: spent %d, allowed %d", ErrSwapAmountExceeded, sourceDelta, req.MaxAmountIn)
	}
	if err := tc.Ledger.Revoke(pool.CurrencyVault, pool.Address); err != nil {
		return err
	}

	collateralAmount := destinationDelta
	if !isLong {
		// Short collateral is the quote received by the swap plus the down
		// payment already sitting in the collateral vault.
		collateralAmount, err = checkedAdd(destinationDelta, req.DownPayment)
		if err != nil {
			return err
		}
	}
	position := &Position{
		Address:              positionKey,
		Trader:               req.Trader,
		CurrencyMint:         pool.CurrencyMint,
		CollateralMint:       pool.CollateralMint,
		DownPayment:          req.DownPayment,
		Principal:            req.Principal,
		CollateralAmount:     collateralAmount,
		FeesToBePaid:         req.FeesToBePaid,
		CollateralVault:      pool.CollateralVault,
		LpVault:              req.LpVault,
		Pool:                 req.Pool,
		Nonce:                req.Nonce,
		LastFundingTimestamp: tc.Now(),
	}
	if err := tc.State.createRecord(positionKey, position); err != nil {
		return err
	}
	tc.State.closeRecord(req.Address)

	e.metrics.positionsOpened.Inc()
	e.emit(EventPositionOpened, map[string]interface{}{
		"position":          positionKey.String(),
		"trader":            req.Trader.String(),
		"pool":              req.Pool.String(),
		"is_long":           isLong,
		"down_payment":      req.DownPayment,
		"principal":         req.Principal,
		"collateral_amount": collateralAmount,
		"fees_to_be_paid":   req.FeesToBePaid,
	})
	return nil
}
