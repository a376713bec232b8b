package margin

import "fmt"

// The asset ledger: mints and token accounts stored as ordinary records, so a
// transaction rollback reverts balances and delegations along with everything
// else.

// Mint describes a fungible asset.
type Mint struct {
	Address  Address `json:"address"`
	Decimals uint8   `json:"decimals"`
	Supply   uint64  `json:"supply"`
	// Authority allowed to mint; zero means fixed supply.
	MintAuthority Address `json:"mint_authority"`
}

func (*Mint) Discriminator() string { return "mint" }

// TokenAccount holds a balance of one mint for one owner. A single delegate
// may be approved to move up to DelegatedAmount out of the account.
type TokenAccount struct {
	Address         Address `json:"address"`
	Mint            Address `json:"mint"`
	Owner           Address `json:"owner"`
	Amount          uint64  `json:"amount"`
	Delegate        Address `json:"delegate"`
	DelegatedAmount uint64  `json:"delegated_amount"`
}

func (*TokenAccount) Discriminator() string { return "token_account" }

// Ledger provides checked transfer/mint/burn/approve primitives over State.
type Ledger struct {
	state *State
}

// NewLedger wraps a state in ledger operations.
func NewLedger(state *State) *Ledger {
	return &Ledger{state: state}
}

// CreateMint registers a new mint.
func (l *Ledger) CreateMint(addr Address, decimals uint8, mintAuthority Address) error {
	return l.state.createRecord(addr, &Mint{
		Address:       addr,
		Decimals:      decimals,
		MintAuthority: mintAuthority,
	})
}

// CreateAccount registers a new token account for mint owned by owner.
func (l *Ledger) CreateAccount(addr, mint, owner Address) error {
	if _, err := l.GetMint(mint); err != nil {
		return err
	}
	return l.state.createRecord(addr, &TokenAccount{
		Address: addr,
		Mint:    mint,
		Owner:   owner,
	})
}

// GetMint loads a mint.
func (l *Ledger) GetMint(addr Address) (*Mint, error) {
	var m Mint
	if err := l.state.getRecord(addr, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// GetAccount loads a token account.
func (l *Ledger) GetAccount(addr Address) (*TokenAccount, error) {
	var a TokenAccount
	if err := l.state.getRecord(addr, &a); err != nil {
		return nil, err
	}
	return &a, nil
}

// Balance returns the current balance of a token account.
func (l *Ledger) Balance(addr Address) (uint64, error) {
	acct, err := l.GetAccount(addr)
	if err != nil {
		return 0, err
	}
	return acct.Amount, nil
}

// TransferChecked moves amount from one account to another, validating the
// mint decimals and the signing authority. The authority must be the source
// owner, or its delegate with enough delegated allowance remaining.
func (l *Ledger) TransferChecked(from, to, mint, authority Address, amount uint64, decimals uint8) error {
	src, err := l.GetAccount(from)
	if err != nil {
		return err
	}
	dst, err := l.GetAccount(to)
	if err != nil {
		return err
	}
	if src.Mint != mint || dst.Mint != mint {
		return ErrMintMismatch
	}
	m, err := l.GetMint(mint)
	if err != nil {
		return err
	}
	if m.Decimals != decimals {
		return ErrDecimalsMismatch
	}
	switch authority {
	case src.Owner:
	case src.Delegate:
		if src.Delegate.IsZero() {
			return ErrInvalidAuthority
		}
		if amount > src.DelegatedAmount {
			return ErrInsufficientDelegate
		}
		src.DelegatedAmount -= amount
	default:
		return ErrInvalidAuthority
	}
	if amount > src.Amount {
		return fmt.Errorf("%w: have %d, need %d", ErrInsufficientBalance, src.Amount, amount)
	}
	src.Amount -= amount
	newDst, err := checkedAdd(dst.Amount, amount)
	if err != nil {
		return err
	}
	dst.Amount = newDst
	if err := l.state.putRecord(from, src); err != nil {
		return err
	}
	return l.state.putRecord(to, dst)
}

// Approve grants delegate transfer authority over up to amount.
func (l *Ledger) Approve(account, delegate, authority Address, amount uint64) error {
	acct, err := l.GetAccount(account)
	if err != nil {
		return err
	}
	if authority != acct.Owner {
		return ErrInvalidAuthority
	}
	acct.Delegate = delegate
	acct.DelegatedAmount = amount
	return l.state.putRecord(account, acct)
}

// Revoke clears any delegation on the account.
func (l *Ledger) Revoke(account, authority Address) error {
	acct, err := l.GetAccount(account)
	if err != nil {
		return err
	}
	if authority != acct.Owner {
		return ErrInvalidAuthority
	}
	acct.Delegate = ZeroAddress
	acct.DelegatedAmount = 0
	return l.state.putRecord(account, acct)
}

// MintTo issues new tokens into an account.
func (l *Ledger) MintTo(account, mint, authority Address, amount uint64) error {
	m, err := l.GetMint(mint)
	if err != nil {
		return err
	}
	if authority != m.MintAuthority || m.MintAuthority.IsZero() {
		return ErrInvalidAuthority
	}
	acct, err := l.GetAccount(account)
	if err != nil {
		return err
	}
	if acct.Mint != mint {
		return ErrMintMismatch
	}
	newSupply, err := checkedAdd(m.Supply, amount)
	if err != nil {
		return err
	}
	newAmount, err := checkedAdd(acct.Amount, amount)
	if err != nil {
		return err
	}
	m.Supply = newSupply
	acct.Amount = newAmount
	if err := l.state.putRecord(mint, m); err != nil {
		return err
	}
	return l.state.putRecord(account, acct)
}

// Burn destroys tokens held by an account. The authority must own the account.
func (l *Ledger) Burn(account, mint, authority Address, amount uint64) error {
	acct, err := l.GetAccount(account)
	if err != nil {
		return err
	}
	if acct.Mint != mint {
		return ErrMintMismatch
	}
	if authority != acct.Owner {
		return ErrInvalidAuthority
	}
	if amount > acct.Amount {
		return fmt.Errorf("%w: have %d, burn %d", ErrInsufficientBalance, acct.Amount, amount)
	}
	m, err := l.GetMint(mint)
	if err != nil {
		return err
	}
	newSupply, err := checkedSub(m.Supply, amount)
	if err != nil {
		return err
	}
	m.Supply = newSupply
	acct.Amount -= amount
	if err := l.state.putRecord(mint, m); err != nil {
		return err
	}
	return l.state.putRecord(account, acct)
}

// Supply returns the outstanding supply of a mint.
func (l *Ledger) Supply(mint Address) (uint64, error) {
	m, err := l.GetMint(mint)
	if err != nil {
		return 0, err
	}
	return m.Supply, nil
}

// CloseAccount removes an empty token account.
func (l *Ledger) CloseAccount(account, authority Address) error {
	acct, err := l.GetAccount(account)
	if err != nil {
		return err
	}
	if authority != acct.Owner {
		return ErrInvalidAuthority
	}
	if acct.Amount != 0 {
		return fmt.Errorf("%w: account not empty", ErrInvalidTransaction)
	}
	l.state.closeRecord(account)
	return nil
}
