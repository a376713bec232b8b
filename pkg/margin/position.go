package margin

// Position is a trader's leveraged exposure. Interest is not stored; it is
// recomputed on demand from LastFundingTimestamp. Exactly one of the close,
// claim or liquidation paths destroys the record.
type Position struct {
	Address              Address `json:"address"`
	Trader               Address `json:"trader"`
	CurrencyMint         Address `json:"currency_mint"`
	CollateralMint       Address `json:"collateral_mint"`
	DownPayment          uint64  `json:"down_payment"`
	Principal            uint64  `json:"principal"`
	CollateralAmount     uint64  `json:"collateral_amount"`
	FeesToBePaid         uint64  `json:"fees_to_be_paid"`
	CollateralVault      Address `json:"collateral_vault"`
	LpVault              Address `json:"lp_vault"`
	Pool                 Address `json:"pool"`
	Nonce                uint64  `json:"nonce"`
	LastFundingTimestamp int64   `json:"last_funding_timestamp"`
}

func (*Position) Discriminator() string { return "position" }

// PositionAddress derives the record address for (trader, pool, vault, nonce).
func PositionAddress(trader, pool, lpVault Address, nonce uint64) Address {
	return DeriveAddress(seedPosition, trader[:], pool[:], lpVault[:], u64Seed(nonce))
}

func (e *Engine) position(tc *TxContext, addr Address) (*Position, error) {
	var p Position
	if err := tc.State.getRecord(addr, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

// SwapCache snapshots the custody balances on both legs of a bracketed swap
// before the delegated external call runs. Cleanup differencing against these
// is the only view the program has of what the swap did.
type SwapCache struct {
	SourceBalanceBefore      uint64 `json:"source_balance_before"`
	DestinationBalanceBefore uint64 `json:"destination_balance_before"`
}

func snapshotSwap(tc *TxContext, source, destination Address) (SwapCache, error) {
	src, err := tc.Ledger.Balance(source)
	if err != nil {
		return SwapCache{}, err
	}
	dst, err := tc.Ledger.Balance(destination)
	if err != nil {
		return SwapCache{}, err
	}
	return SwapCache{SourceBalanceBefore: src, DestinationBalanceBefore: dst}, nil
}

// swapDeltas recomputes balances and returns how much left the source and how
// much arrived at the destination. A balance that moved the wrong way fails
// with checked-math errors instead of wrapping.
func (c SwapCache) swapDeltas(tc *TxContext, source, destination Address) (sourceDelta, destinationDelta uint64, err error) {
	srcAfter, err := tc.Ledger.Balance(source)
	if err != nil {
		return 0, 0, err
	}
	dstAfter, err := tc.Ledger.Balance(destination)
	if err != nil {
		return 0, 0, err
	}
	sourceDelta, err = checkedSub(c.SourceBalanceBefore, srcAfter)
	if err != nil {
		return 0, 0, err
	}
	destinationDelta, err = checkedSub(dstAfter, c.DestinationBalanceBefore)
	if err != nil {
		return 0, 0, err
	}
	return sourceDelta, destinationDelta, nil
}
