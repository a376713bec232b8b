package margin

import "errors"

// Engine errors. Every error aborts the enclosing transaction; the runtime
// rolls back all state written by earlier instructions in the same transaction.
var (
	// Authorization
	ErrInvalidPermissions = errors.New("invalid permissions")
	ErrIncorrectOwner     = errors.New("incorrect owner")
	ErrIncorrectFeeWallet = errors.New("incorrect fee wallet")

	// Bracket / introspection protocol
	ErrInvalidTransaction = errors.New("invalid transaction")
	ErrUnpermittedIx      = errors.New("unpermitted instruction")
	ErrMissingCleanup     = errors.New("missing cleanup instruction")

	// Checked math
	ErrArithmeticOverflow  = errors.New("arithmetic overflow")
	ErrArithmeticUnderflow = errors.New("arithmetic underflow")

	// Economic bounds on a bracketed swap
	ErrMinTokensNotMet    = errors.New("minimum tokens not met")
	ErrSwapAmountExceeded = errors.New("swap amount exceeded")
	ErrPrincipalTooHigh   = errors.New("principal too high")

	// Exit orders
	ErrPriceTargetNotReached = errors.New("price target not reached")

	// Liquidation
	ErrLiquidationThresholdNotReached = errors.New("liquidation threshold not reached")

	// Interest / quote drift
	ErrValueDeviatedTooMuch = errors.New("value deviated too much")

	// Vault ceilings
	ErrMaxBorrowExceeded = errors.New("max borrow exceeded")
	ErrMaxRepayExceeded  = errors.New("max repay exceeded")

	// Cross-reference mismatches between a bracket record and current accounts
	ErrInvalidPosition = errors.New("invalid position")
	ErrInvalidPool     = errors.New("invalid pool")
	ErrInvalidSwap     = errors.New("invalid swap")

	// Deadlines
	ErrPositionReqExpired = errors.New("position request expired")

	// Account store
	ErrAccountExists   = errors.New("account already exists")
	ErrAccountNotFound = errors.New("account not found")

	// Ledger
	ErrInsufficientBalance  = errors.New("insufficient balance")
	ErrInsufficientDelegate = errors.New("insufficient delegated amount")
	ErrMintMismatch         = errors.New("mint mismatch")
	ErrDecimalsMismatch     = errors.New("decimals mismatch")
	ErrInvalidAuthority     = errors.New("invalid authority")
)
