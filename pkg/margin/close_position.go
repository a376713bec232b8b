package margin

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// CloseMode distinguishes the terminal paths that share the close settlement.
type CloseMode uint8

const (
	CloseModeUser CloseMode = iota
	CloseModeLiquidation
	CloseModeStopLoss
	CloseModeTakeProfit
)

// ClosePositionRequest brackets a close swap. Seeded on the position key, so
// one close operation per position can be in flight.
type ClosePositionRequest struct {
	Address         Address   `json:"address"`
	PositionKey     Address   `json:"position_key"`
	Pool            Address   `json:"pool"`
	Interest        uint64    `json:"interest"`
	MinTargetAmount uint64    `json:"min_target_amount"`
	AmountIn        uint64    `json:"amount_in"`
	ExecutionFee    uint64    `json:"execution_fee"`
	Expiration      int64     `json:"expiration"`
	Mode            CloseMode `json:"mode"`
	SwapCache       SwapCache `json:"swap_cache"`
}

func (*ClosePositionRequest) Discriminator() string { return "close_position_request" }

// ClosePositionRequestAddress derives the bracket record address.
func ClosePositionRequestAddress(positionKey Address) Address {
	return DeriveAddress(seedCloseRequest, positionKey[:])
}

// ClosePositionSetupArgs are the caller-declared parameters of a close.
type ClosePositionSetupArgs struct {
	Authority       Address
	Position        Address
	MinTargetAmount uint64
	Interest        uint64
	ExecutionFee    uint64
	Expiration      int64
	SwapAuthority   Address
}

func closeSetupNames(mode CloseMode, isLong bool) (setup, cleanup string) {
	switch mode {
	case CloseModeLiquidation:
		return IxLiquidatePositionSetup, IxLiquidatePositionCleanup
	case CloseModeStopLoss:
		return IxStopLossSetup, IxStopLossCleanup
	case CloseModeTakeProfit:
		return IxTakeProfitSetup, IxTakeProfitCleanup
	}
	if isLong {
		return IxCloseLongPositionSetup, IxCloseLongPositionCleanup
	}
	return IxCloseShortPositionSetup, IxCloseShortPositionCleanup
}

func (e *Engine) closePositionSetup(tc *TxContext, args ClosePositionSetupArgs, mode CloseMode, isLong bool) error {
	position, err := e.position(tc, args.Position)
	if err != nil {
		return err
	}
	switch mode {
	case CloseModeLiquidation:
		if err := e.requirePermission(tc, args.Authority, PermLiquidate); err != nil {
			return err
		}
	case CloseModeStopLoss, CloseModeTakeProfit:
		if err := e.requirePermission(tc, args.Authority, PermCosignSwaps); err != nil {
			return err
		}
	default:
		if err := e.requireTraderOrCosigner(tc, args.Authority, position.Trader); err != nil {
			return err
		}
	}
	if args.Expiration <= tc.Now() {
		return fmt.Errorf("%w: expired at %d, now %d", ErrPositionReqExpired, args.Expiration, tc.Now())
	}
	_, cleanupName := closeSetupNames(mode, isLong)
	if err := validateSetupPlacement(tc, cleanupName, allCleanupNames...); err != nil {
		return err
	}
	pool, err := e.pool(tc, position.Pool)
	if err != nil {
		return err
	}
	if pool.IsLongPool != isLong {
		return fmt.Errorf("%w: wrong pool side", ErrInvalidPool)
	}

	cache, err := snapshotSwap(tc, pool.CollateralVault, pool.CurrencyVault)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Approve(pool.CollateralVault, args.SwapAuthority, pool.Address, position.CollateralAmount); err != nil {
		return err
	}
	req := &ClosePositionRequest{
		Address:         ClosePositionRequestAddress(args.Position),
		PositionKey:     args.Position,
		Pool:            position.Pool,
		Interest:        args.Interest,
		MinTargetAmount: args.MinTargetAmount,
		AmountIn:        position.CollateralAmount,
		ExecutionFee:    args.ExecutionFee,
		Expiration:      args.Expiration,
		Mode:            mode,
		SwapCache:       cache,
	}
	return tc.State.createRecord(req.Address, req)
}

// closeAmounts is the settlement split computed by the close cleanup.
type closeAmounts struct {
	Payout          uint64
	CloseFee        uint64
	InterestPaid    uint64
	PrincipalRepaid uint64
	CollateralSpent uint64
}

// validateDifference enforces the relative tolerance band between a declared
// figure and the amount actually observed.
func validateDifference(declared, actual uint64) error {
	if declared == actual {
		return nil
	}
	dec := decimal.NewFromBigInt(u64Big(declared), 0)
	act := decimal.NewFromBigInt(u64Big(actual), 0)
	base := dec
	if base.IsZero() {
		base = act
	}
	tolerance := base.Mul(decimal.NewFromInt(interestTolerancePercent)).Div(decimal.NewFromInt(100))
	if dec.Sub(act).Abs().GreaterThan(tolerance) {
		return fmt.Errorf("%w: declared %d, actual %d", ErrValueDeviatedTooMuch, declared, actual)
	}
	return nil
}

// ClosePositionCleanupArgs names the accounts settled by the cleanup.
// PayoutAccount receives the trader's remainder (currency mint on a long,
// collateral mint on a short); FeeWalletAccount must belong to the configured
// fee wallet.
type ClosePositionCleanupArgs struct {
	Authority        Address
	Position         Address
	PayoutAccount    Address
	FeeWalletAccount Address
}

func (e *Engine) closePositionCleanup(tc *TxContext, args ClosePositionCleanupArgs, mode CloseMode, isLong bool) error {
	var req ClosePositionRequest
	if err := tc.State.getRecord(ClosePositionRequestAddress(args.Position), &req); err != nil {
		return err
	}
	if req.PositionKey != args.Position {
		return fmt.Errorf("%w: bracket is for another position", ErrInvalidPosition)
	}
	if req.Mode != mode {
		return fmt.Errorf("%w: bracket opened for a different close path", ErrInvalidSwap)
	}
	position, err := e.position(tc, args.Position)
	if err != nil {
		return err
	}
	pool, err := e.pool(tc, position.Pool)
	if err != nil {
		return err
	}
	if req.Pool != pool.Address {
		return fmt.Errorf("%w: bracket pool mismatch", ErrInvalidPool)
	}
	if pool.IsLongPool != isLong {
		return fmt.Errorf("%w: wrong pool side", ErrInvalidPool)
	}
	vault, err := e.lpVault(tc, position.LpVault)
	if err != nil {
		return err
	}
	gs, err := e.globalSettings(tc)
	if err != nil {
		return err
	}
	feeAcct, err := tc.Ledger.GetAccount(args.FeeWalletAccount)
	if err != nil {
		return err
	}
	if feeAcct.Owner != gs.FeeWallet {
		return fmt.Errorf("%w: owner %s", ErrIncorrectFeeWallet, feeAcct.Owner)
	}
	payoutAcct, err := tc.Ledger.GetAccount(args.PayoutAccount)
	if err != nil {
		return err
	}
	if payoutAcct.Owner != position.Trader {
		return fmt.Errorf("%w: payout account not owned by trader", ErrIncorrectOwner)
	}

	sourceDelta, destinationDelta, err := req.SwapCache.swapDeltas(tc, pool.CollateralVault, pool.CurrencyVault)
	if err != nil {
		return err
	}
	if sourceDelta > req.AmountIn {
		return fmt.Errorf("%w: spent %d, allowed %d", ErrSwapAmountExceeded, sourceDelta, req.AmountIn)
	}
	if mode != CloseModeLiquidation {
		// TODO: equality is currently rejected here; confirm whether the
		// received-amount bound should be inclusive.
		if !(destinationDelta > req.MinTargetAmount) {
			return fmt.Errorf("%w: received %d, need more than %d", ErrMinTokensNotMet, destinationDelta, req.MinTargetAmount)
		}
	}
	if err := tc.Ledger.Revoke(pool.CollateralVault, pool.Address); err != nil {
		return err
	}

	dc, err := e.debtController(tc)
	if err != nil {
		return err
	}
	maxInterest, err := dc.ComputeMaxInterest(position.Principal, position.LastFundingTimestamp, tc.Now())
	if err != nil {
		return err
	}
	interest := capInterest(req.Interest, maxInterest)

	amounts := closeAmounts{CollateralSpent: sourceDelta}
	if isLong {
		payout := destinationDelta
		payout, amounts.PrincipalRepaid = deduct(payout, position.Principal)
		payout, amounts.InterestPaid = deduct(payout, interest)
		amounts.Payout = payout
	} else {
		// The buyback covers the principal first; whatever exceeds it is the
		// interest actually collected, which must stay near the declared figure.
		interestPaid, principalRepaid := deduct(destinationDelta, position.Principal)
		amounts.PrincipalRepaid = principalRepaid
		amounts.InterestPaid = interestPaid
		if err := validateDifference(interest, interestPaid); err != nil {
			return err
		}
		amounts.Payout, _ = deduct(position.CollateralAmount, sourceDelta)
	}
	totalFee, err := checkedAdd(position.FeesToBePaid, req.ExecutionFee)
	if err != nil {
		return err
	}
	amounts.Payout, amounts.CloseFee = deduct(amounts.Payout, totalFee)

	if mode == CloseModeLiquidation {
		collateralValue := position.CollateralAmount
		if isLong {
			collateralValue = destinationDelta
		}
		if err := e.checkLiquidatable(dc, amounts.Payout, collateralValue); err != nil {
			return err
		}
	}

	if err := e.settleClose(tc, position, pool, vault, req, amounts, args, isLong); err != nil {
		return err
	}

	if mode == CloseModeStopLoss || mode == CloseModeTakeProfit {
		if err := e.validateExitOrder(tc, position, amounts, mode, isLong); err != nil {
			return err
		}
	}

	tc.State.closeRecord(req.Address)
	tc.State.closeRecord(position.Address)
	e.closeOrphanedExitOrders(tc, position.Address)

	eventType := EventPositionClosed
	switch mode {
	case CloseModeLiquidation:
		eventType = EventPositionLiquidated
		e.metrics.positionsLiquidated.Inc()
	default:
		e.metrics.positionsClosed.Inc()
	}
	e.emit(eventType, map[string]interface{}{
		"position":         position.Address.String(),
		"trader":           position.Trader.String(),
		"payout":           amounts.Payout,
		"close_fee":        amounts.CloseFee,
		"interest_paid":    amounts.InterestPaid,
		"principal_repaid": amounts.PrincipalRepaid,
		"collateral_spent": amounts.CollateralSpent,
	})
	return nil
}

// checkLiquidatable requires that what remains for the trader has fallen to or
// below the liquidation threshold: a LiquidationFee percentage of the
// position's collateral value, measured in the same units as the payout. For a
// long close that value is the currency the collateral just sold for; for a
// short the collateral balance is already payout-denominated.
func (e *Engine) checkLiquidatable(dc *DebtController, payout, collateralValue uint64) error {
	if cmp128(payout, 100, collateralValue, dc.LiquidationFee) > 0 {
		return fmt.Errorf("%w: payout %d above liquidation threshold", ErrLiquidationThresholdNotReached, payout)
	}
	return nil
}

// settleClose performs the three settlement transfers in their fixed order:
// loan repayment, then protocol fee, then trader payout. Fee and payout are
// derived from the post-repayment remainder, so the order is load-bearing.
func (e *Engine) settleClose(tc *TxContext, position *Position, pool *Pool, vault *LpVault, req ClosePositionRequest, amounts closeAmounts, args ClosePositionCleanupArgs, isLong bool) error {
	currencyMint, err := tc.Ledger.GetMint(pool.CurrencyMint)
	if err != nil {
		return err
	}
	collateralMint, err := tc.Ledger.GetMint(pool.CollateralMint)
	if err != nil {
		return err
	}

	// (a) Repayment: principal plus interest back to the vault custody.
	repayment, err := checkedAdd(amounts.PrincipalRepaid, amounts.InterestPaid)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(pool.CurrencyVault, vault.VaultAccount, pool.CurrencyMint, pool.Address, repayment, currencyMint.Decimals); err != nil {
		return err
	}

	// (b) Close fee to the protocol fee wallet. Longs pay out of the currency
	// proceeds, shorts out of the remaining collateral.
	feeSource, feeMint, feeDecimals := pool.CurrencyVault, pool.CurrencyMint, currencyMint.Decimals
	if !isLong {
		feeSource, feeMint, feeDecimals = pool.CollateralVault, pool.CollateralMint, collateralMint.Decimals
	}
	if amounts.CloseFee > 0 {
		if err := tc.Ledger.TransferChecked(feeSource, args.FeeWalletAccount, feeMint, pool.Address, amounts.CloseFee, feeDecimals); err != nil {
			return err
		}
	}

	// (c) Remainder to the trader.
	if amounts.Payout > 0 {
		if err := tc.Ledger.TransferChecked(feeSource, args.PayoutAccount, feeMint, pool.Address, amounts.Payout, feeDecimals); err != nil {
			return err
		}
	}

	// Vault accounting: the full loan comes off TotalBorrowed; TotalAssets
	// absorbs any shortfall and gains the interest.
	vault.TotalBorrowed, _ = deduct(vault.TotalBorrowed, position.Principal)
	shortfall := position.Principal - amounts.PrincipalRepaid
	assets, err := checkedSub(vault.TotalAssets, shortfall)
	if err != nil {
		return err
	}
	assets, err = checkedAdd(assets, amounts.InterestPaid)
	if err != nil {
		return err
	}
	vault.TotalAssets = assets
	return tc.State.putRecord(vault.Address, vault)
}

// ClaimPositionArgs buys the position's debt back without a swap: the trader
// pays principal plus interest out of pocket and takes the collateral.
type ClaimPositionArgs struct {
	Authority         Address
	Position          Address
	CurrencyAccount   Address
	CollateralAccount Address
	FeeWalletAccount  Address
}

func (e *Engine) claimPosition(tc *TxContext, args ClaimPositionArgs) error {
	position, err := e.position(tc, args.Position)
	if err != nil {
		return err
	}
	if args.Authority != position.Trader {
		return fmt.Errorf("%w: only the trader can claim", ErrIncorrectOwner)
	}
	// An in-flight close bracket locks the position.
	if ok, err := tc.State.hasRecord(ClosePositionRequestAddress(args.Position)); err != nil {
		return err
	} else if ok {
		return fmt.Errorf("%w: close in flight", ErrInvalidPosition)
	}
	pool, err := e.pool(tc, position.Pool)
	if err != nil {
		return err
	}
	vault, err := e.lpVault(tc, position.LpVault)
	if err != nil {
		return err
	}
	gs, err := e.globalSettings(tc)
	if err != nil {
		return err
	}
	feeAcct, err := tc.Ledger.GetAccount(args.FeeWalletAccount)
	if err != nil {
		return err
	}
	if feeAcct.Owner != gs.FeeWallet {
		return fmt.Errorf("%w: owner %s", ErrIncorrectFeeWallet, feeAcct.Owner)
	}
	dc, err := e.debtController(tc)
	if err != nil {
		return err
	}
	interest, err := dc.ComputeMaxInterest(position.Principal, position.LastFundingTimestamp, tc.Now())
	if err != nil {
		return err
	}

	currencyMint, err := tc.Ledger.GetMint(pool.CurrencyMint)
	if err != nil {
		return err
	}
	collateralMint, err := tc.Ledger.GetMint(pool.CollateralMint)
	if err != nil {
		return err
	}
	repayment, err := checkedAdd(position.Principal, interest)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(args.CurrencyAccount, vault.VaultAccount, pool.CurrencyMint, args.Authority, repayment, currencyMint.Decimals); err != nil {
		return err
	}
	collateralOut, claimFee := deduct(position.CollateralAmount, position.FeesToBePaid)
	if claimFee > 0 {
		if err := tc.Ledger.TransferChecked(pool.CollateralVault, args.FeeWalletAccount, pool.CollateralMint, pool.Address, claimFee, collateralMint.Decimals); err != nil {
			return err
		}
	}
	if collateralOut > 0 {
		if err := tc.Ledger.TransferChecked(pool.CollateralVault, args.CollateralAccount, pool.CollateralMint, pool.Address, collateralOut, collateralMint.Decimals); err != nil {
			return err
		}
	}

	vault.TotalBorrowed, _ = deduct(vault.TotalBorrowed, position.Principal)
	vault.TotalAssets, err = checkedAdd(vault.TotalAssets, interest)
	if err != nil {
		return err
	}
	if err := tc.State.putRecord(vault.Address, vault); err != nil {
		return err
	}
	tc.State.closeRecord(position.Address)
	e.closeOrphanedExitOrders(tc, position.Address)

	e.metrics.positionsClosed.Inc()
	e.emit(EventPositionClaimed, map[string]interface{}{
		"position":       position.Address.String(),
		"trader":         position.Trader.String(),
		"repayment":      repayment,
		"interest_paid":  interest,
		"claim_fee":      claimFee,
		"collateral_out": collateralOut,
	})
	return nil
}
