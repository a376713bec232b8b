package margin

import "fmt"

// BundleRequest counts the instructions of an atomic batch that shares one
// reciprocal account. Setup opens the counter, every bundled instruction
// increments it through validateBundle, and cleanup asserts the batch ran to
// completion before paying the tip.
type BundleRequest struct {
	Address       Address `json:"address"`
	Authority     Address `json:"authority"`
	Payer         Address `json:"payer"`
	Reciprocal    Address `json:"reciprocal"`
	NumExpectedTx uint8   `json:"num_expected_tx"`
	NumExecutedTx uint8   `json:"num_executed_tx"`
}

func (*BundleRequest) Discriminator() string { return "bundle_request" }

// BundleRequestAddress derives the counter address for (authority, payer).
func BundleRequestAddress(authority, payer Address) Address {
	return DeriveAddress(seedBundleRequest, authority[:], payer[:])
}

// BundleSetupArgs opens a bundle of numExpected instructions.
type BundleSetupArgs struct {
	Authority     Address
	Payer         Address
	Reciprocal    Address
	NumExpectedTx uint8
}

func (e *Engine) bundleSetup(tc *TxContext, args BundleSetupArgs) error {
	if err := validateFirstInstruction(tc); err != nil {
		return err
	}
	if ok, err := tc.State.hasRecord(args.Reciprocal); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("%w: reciprocal account missing", ErrInvalidTransaction)
	}
	req := &BundleRequest{
		Address:       BundleRequestAddress(args.Authority, args.Payer),
		Authority:     args.Authority,
		Payer:         args.Payer,
		Reciprocal:    args.Reciprocal,
		NumExpectedTx: args.NumExpectedTx,
	}
	return tc.State.createRecord(req.Address, req)
}

// validateBundle is called by each bundled instruction to account for itself.
func (e *Engine) validateBundle(tc *TxContext, authority, payer Address) error {
	var req BundleRequest
	if err := tc.State.getRecord(BundleRequestAddress(authority, payer), &req); err != nil {
		return err
	}
	if req.NumExecutedTx >= req.NumExpectedTx {
		return fmt.Errorf("%w: bundle already complete (%d of %d)", ErrInvalidTransaction, req.NumExecutedTx, req.NumExpectedTx)
	}
	req.NumExecutedTx++
	return tc.State.putRecord(req.Address, &req)
}

// BundleCleanupArgs closes the bundle and tips the whitelisted collector.
type BundleCleanupArgs struct {
	Authority  Address
	Payer      Address
	TipAccount Address
	TipSource  Address
	TipAmount  uint64
	TipMint    Address
}

func (e *Engine) bundleCleanup(tc *TxContext, args BundleCleanupArgs) error {
	if err := validateLastProgramInstruction(tc); err != nil {
		return err
	}
	var req BundleRequest
	if err := tc.State.getRecord(BundleRequestAddress(args.Authority, args.Payer), &req); err != nil {
		return err
	}
	if req.NumExecutedTx != req.NumExpectedTx {
		return fmt.Errorf("%w: executed %d of %d", ErrInvalidTransaction, req.NumExecutedTx, req.NumExpectedTx)
	}
	if args.TipAmount > 0 {
		gs, err := e.globalSettings(tc)
		if err != nil {
			return err
		}
		tipAcct, err := tc.Ledger.GetAccount(args.TipAccount)
		if err != nil {
			return err
		}
		if tipAcct.Owner != gs.TipWallet {
			return fmt.Errorf("%w: tip account owner %s", ErrIncorrectFeeWallet, tipAcct.Owner)
		}
		m, err := tc.Ledger.GetMint(args.TipMint)
		if err != nil {
			return err
		}
		if err := tc.Ledger.TransferChecked(args.TipSource, args.TipAccount, args.TipMint, args.Authority, args.TipAmount, m.Decimals); err != nil {
			return err
		}
	}
	tc.State.closeRecord(req.Address)
	return nil
}
