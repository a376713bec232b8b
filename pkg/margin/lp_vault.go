package margin

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// LpVault is the liquidity pool record for one underlying asset. TotalAssets
// counts everything the vault is owed, including funds currently lent out;
// TotalBorrowed counts the lent-out portion, capped by MaxBorrow.
type LpVault struct {
	Address       Address `json:"address"`
	AssetMint     Address `json:"asset_mint"`
	VaultAccount  Address `json:"vault_account"`
	SharesMint    Address `json:"shares_mint"`
	TotalAssets   uint64  `json:"total_assets"`
	TotalBorrowed uint64  `json:"total_borrowed"`
	MaxBorrow     uint64  `json:"max_borrow"`
}

func (*LpVault) Discriminator() string { return "lp_vault" }

// LpVaultAddress derives the vault record address for an asset mint.
func LpVaultAddress(assetMint Address) Address {
	return DeriveAddress(seedLpVault, assetMint[:])
}

func (e *Engine) lpVault(tc *TxContext, addr Address) (*LpVault, error) {
	var v LpVault
	if err := tc.State.getRecord(addr, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// SharePrice reports assets per share for monitoring surfaces. Zero supply
// reads as 1.
func (e *Engine) SharePrice(vaultAddr Address) (decimal.Decimal, error) {
	state := NewState(e.db)
	var v LpVault
	if err := state.getRecord(vaultAddr, &v); err != nil {
		return decimal.Zero, err
	}
	supply, err := NewLedger(state).Supply(v.SharesMint)
	if err != nil {
		return decimal.Zero, err
	}
	if supply == 0 {
		return decimal.NewFromInt(1), nil
	}
	assets := decimal.NewFromBigInt(u64Big(v.TotalAssets), 0)
	shares := decimal.NewFromBigInt(u64Big(supply), 0)
	return assets.DivRound(shares, 12), nil
}

// InitLpVaultArgs creates a vault for an asset mint.
type InitLpVaultArgs struct {
	Authority Address
	AssetMint Address
	MaxBorrow uint64
}

func (e *Engine) initLpVault(tc *TxContext, args InitLpVaultArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermInitVault); err != nil {
		return err
	}
	m, err := tc.Ledger.GetMint(args.AssetMint)
	if err != nil {
		return err
	}
	addr := LpVaultAddress(args.AssetMint)
	custody := DeriveAddress(seedLpVault, args.AssetMint[:], []byte("custody"))
	sharesMint := DeriveAddress(seedVaultShares, addr[:])
	vault := &LpVault{
		Address:      addr,
		AssetMint:    args.AssetMint,
		VaultAccount: custody,
		SharesMint:   sharesMint,
		MaxBorrow:    args.MaxBorrow,
	}
	if err := tc.State.createRecord(addr, vault); err != nil {
		return err
	}
	if err := tc.Ledger.CreateMint(sharesMint, m.Decimals, addr); err != nil {
		return err
	}
	if err := tc.Ledger.CreateAccount(custody, args.AssetMint, addr); err != nil {
		return err
	}
	e.emit(EventNewVault, map[string]interface{}{
		"vault":       addr.String(),
		"asset_mint":  args.AssetMint.String(),
		"shares_mint": sharesMint.String(),
	})
	return nil
}

// VaultUserArgs identifies the vault and the depositor's two token accounts.
type VaultUserArgs struct {
	Authority     Address
	Vault         Address
	AssetAccount  Address
	SharesAccount Address
	Amount        uint64
}

// deposit mints shares proportional to the deposit, flooring in the vault's
// favor.
func (e *Engine) deposit(tc *TxContext, args VaultUserArgs) error {
	if err := e.requireLpEnabled(tc); err != nil {
		return err
	}
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	supply, err := tc.Ledger.Supply(v.SharesMint)
	if err != nil {
		return err
	}
	shares := args.Amount
	if supply > 0 {
		if v.TotalAssets == 0 {
			return fmt.Errorf("%w: shares outstanding against empty vault", ErrInvalidTransaction)
		}
		shares, err = mulDiv(supply, args.Amount, v.TotalAssets)
		if err != nil {
			return err
		}
	}
	return e.applyDeposit(tc, v, args, args.Amount, shares)
}

// mint is the inverse-direction deposit: the caller names the share count and
// pays the ceiling-rounded asset amount.
func (e *Engine) mint(tc *TxContext, args VaultUserArgs) error {
	if err := e.requireLpEnabled(tc); err != nil {
		return err
	}
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	supply, err := tc.Ledger.Supply(v.SharesMint)
	if err != nil {
		return err
	}
	shares := args.Amount
	tokensIn := shares
	if supply > 0 {
		tokensIn, err = mulDivCeil(shares, v.TotalAssets, supply)
		if err != nil {
			return err
		}
	}
	return e.applyDeposit(tc, v, args, tokensIn, shares)
}

func (e *Engine) applyDeposit(tc *TxContext, v *LpVault, args VaultUserArgs, tokensIn, shares uint64) error {
	m, err := tc.Ledger.GetMint(v.AssetMint)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(args.AssetAccount, v.VaultAccount, v.AssetMint, args.Authority, tokensIn, m.Decimals); err != nil {
		return err
	}
	if err := tc.Ledger.MintTo(args.SharesAccount, v.SharesMint, v.Address, shares); err != nil {
		return err
	}
	v.TotalAssets, err = checkedAdd(v.TotalAssets, tokensIn)
	if err != nil {
		return err
	}
	if err := tc.State.putRecord(v.Address, v); err != nil {
		return err
	}
	e.metrics.deposits.Inc()
	e.emit(EventDeposit, map[string]interface{}{
		"vault":  v.Address.String(),
		"owner":  args.Authority.String(),
		"amount": tokensIn,
		"shares": shares,
	})
	return nil
}

// redeem burns shares and pays out the floor-rounded proportional assets.
func (e *Engine) redeem(tc *TxContext, args VaultUserArgs) error {
	if err := e.requireLpEnabled(tc); err != nil {
		return err
	}
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	supply, err := tc.Ledger.Supply(v.SharesMint)
	if err != nil {
		return err
	}
	if supply == 0 {
		return fmt.Errorf("%w: no shares outstanding", ErrInvalidTransaction)
	}
	assetOut, err := mulDiv(args.Amount, v.TotalAssets, supply)
	if err != nil {
		return err
	}
	return e.applyWithdraw(tc, v, args, assetOut, args.Amount)
}

// withdraw is the inverse-direction redeem: the caller names the asset amount
// and burns the ceiling-rounded share count.
func (e *Engine) withdraw(tc *TxContext, args VaultUserArgs) error {
	if err := e.requireLpEnabled(tc); err != nil {
		return err
	}
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	supply, err := tc.Ledger.Supply(v.SharesMint)
	if err != nil {
		return err
	}
	if v.TotalAssets == 0 {
		return fmt.Errorf("%w: empty vault", ErrInvalidTransaction)
	}
	sharesToBurn, err := mulDivCeil(args.Amount, supply, v.TotalAssets)
	if err != nil {
		return err
	}
	return e.applyWithdraw(tc, v, args, args.Amount, sharesToBurn)
}

func (e *Engine) applyWithdraw(tc *TxContext, v *LpVault, args VaultUserArgs, assetOut, shares uint64) error {
	m, err := tc.Ledger.GetMint(v.AssetMint)
	if err != nil {
		return err
	}
	if err := tc.Ledger.Burn(args.SharesAccount, v.SharesMint, args.Authority, shares); err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(v.VaultAccount, args.AssetAccount, v.AssetMint, v.Address, assetOut, m.Decimals); err != nil {
		return err
	}
	v.TotalAssets, err = checkedSub(v.TotalAssets, assetOut)
	if err != nil {
		return err
	}
	if err := tc.State.putRecord(v.Address, v); err != nil {
		return err
	}
	e.metrics.withdrawals.Inc()
	e.emit(EventWithdraw, map[string]interface{}{
		"vault":  v.Address.String(),
		"owner":  args.Authority.String(),
		"amount": assetOut,
		"shares": shares,
	})
	return nil
}

// donate adds assets without minting shares, raising the share price.
func (e *Engine) donate(tc *TxContext, args VaultUserArgs) error {
	if err := e.requireLpEnabled(tc); err != nil {
		return err
	}
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	m, err := tc.Ledger.GetMint(v.AssetMint)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(args.AssetAccount, v.VaultAccount, v.AssetMint, args.Authority, args.Amount, m.Decimals); err != nil {
		return err
	}
	v.TotalAssets, err = checkedAdd(v.TotalAssets, args.Amount)
	if err != nil {
		return err
	}
	return tc.State.putRecord(v.Address, v)
}

// AdminBorrowArgs moves vault liquidity to an approved destination without
// touching TotalAssets: the funds are still owed to the vault.
type AdminBorrowArgs struct {
	Authority   Address
	Vault       Address
	Destination Address
	Amount      uint64
}

func (e *Engine) adminBorrow(tc *TxContext, args AdminBorrowArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermBorrowFromVaults); err != nil {
		return err
	}
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	newBorrowed, err := checkedAdd(v.TotalBorrowed, args.Amount)
	if err != nil {
		return err
	}
	if newBorrowed > v.MaxBorrow {
		return fmt.Errorf("%w: %d > %d", ErrMaxBorrowExceeded, newBorrowed, v.MaxBorrow)
	}
	m, err := tc.Ledger.GetMint(v.AssetMint)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(v.VaultAccount, args.Destination, v.AssetMint, v.Address, args.Amount, m.Decimals); err != nil {
		return err
	}
	v.TotalBorrowed = newBorrowed
	return tc.State.putRecord(v.Address, v)
}

// RepayArgs returns borrowed funds to the vault.
type RepayArgs struct {
	Authority Address
	Vault     Address
	Source    Address
	Amount    uint64
}

func (e *Engine) repay(tc *TxContext, args RepayArgs) error {
	v, err := e.lpVault(tc, args.Vault)
	if err != nil {
		return err
	}
	if args.Amount > v.TotalBorrowed {
		return fmt.Errorf("%w: repaying %d of %d", ErrMaxRepayExceeded, args.Amount, v.TotalBorrowed)
	}
	m, err := tc.Ledger.GetMint(v.AssetMint)
	if err != nil {
		return err
	}
	if err := tc.Ledger.TransferChecked(args.Source, v.VaultAccount, v.AssetMint, args.Authority, args.Amount, m.Decimals); err != nil {
		return err
	}
	v.TotalBorrowed -= args.Amount
	return tc.State.putRecord(v.Address, v)
}
