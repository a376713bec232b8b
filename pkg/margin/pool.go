package margin

// Pool is a custody pair for one side of a market: a collateral vault and a
// currency vault plus the side flag. For a long pool the currency vault holds
// the quote asset spent to buy collateral; for a short pool the currency vault
// holds the borrowed asset sold for quote collateral. Immutable after creation
// except through the balances it custodies.
type Pool struct {
	Address         Address `json:"address"`
	IsLongPool      bool    `json:"is_long_pool"`
	CollateralMint  Address `json:"collateral_mint"`
	CurrencyMint    Address `json:"currency_mint"`
	CollateralVault Address `json:"collateral_vault"`
	CurrencyVault   Address `json:"currency_vault"`
}

func (*Pool) Discriminator() string { return "pool" }

// PoolAddress derives the pool record address for a market side.
func PoolAddress(collateralMint, currencyMint Address, isLong bool) Address {
	tag := seedShortPool
	if isLong {
		tag = seedLongPool
	}
	return DeriveAddress(tag, collateralMint[:], currencyMint[:])
}

func (e *Engine) pool(tc *TxContext, addr Address) (*Pool, error) {
	var p Pool
	if err := tc.State.getRecord(addr, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// InitPoolArgs creates the custody pair for a (collateral, currency, side)
// triple.
type InitPoolArgs struct {
	Authority      Address
	CollateralMint Address
	CurrencyMint   Address
	IsLongPool     bool
}

func (e *Engine) initPool(tc *TxContext, args InitPoolArgs) error {
	if err := e.requirePermission(tc, args.Authority, PermInitVault); err != nil {
		return err
	}
	addr := PoolAddress(args.CollateralMint, args.CurrencyMint, args.IsLongPool)
	collateralVault := DeriveAddress(addr[:], []byte("collateral"))
	currencyVault := DeriveAddress(addr[:], []byte("currency"))
	pool := &Pool{
		Address:         addr,
		IsLongPool:      args.IsLongPool,
		CollateralMint:  args.CollateralMint,
		CurrencyMint:    args.CurrencyMint,
		CollateralVault: collateralVault,
		CurrencyVault:   currencyVault,
	}
	if err := tc.State.createRecord(addr, pool); err != nil {
		return err
	}
	if err := tc.Ledger.CreateAccount(collateralVault, args.CollateralMint, addr); err != nil {
		return err
	}
	return tc.Ledger.CreateAccount(currencyVault, args.CurrencyMint, addr)
}
