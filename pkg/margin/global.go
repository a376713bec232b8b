package margin

import "fmt"

// GlobalSettings is the singleton configuration record: admin identities, the
// protocol fee wallet, and the trading/LP kill switches.
type GlobalSettings struct {
	Address        Address `json:"address"`
	SuperAdmin     Address `json:"super_admin"`
	FeeWallet      Address `json:"fee_wallet"`
	TipWallet      Address `json:"tip_wallet"`
	TradingEnabled bool    `json:"trading_enabled"`
	LpEnabled      bool    `json:"lp_enabled"`
}

func (*GlobalSettings) Discriminator() string { return "global_settings" }

// GlobalSettingsAddress is where the singleton lives.
func GlobalSettingsAddress() Address {
	return DeriveAddress(seedGlobalSettings)
}

// Permission bit flags.
const (
	PermInitVault uint8 = 1 << iota
	PermLiquidate
	PermCosignSwaps
	PermBorrowFromVaults
	PermManageWallets
	PermSuperAuthority
)

// Permission stores the capability flags granted to one authority key.
type Permission struct {
	Address   Address `json:"address"`
	Authority Address `json:"authority"`
	Status    uint8   `json:"status"`
}

func (*Permission) Discriminator() string { return "permission" }

// Can reports whether the permission carries flag. Super authorities hold
// every capability.
func (p *Permission) Can(flag uint8) bool {
	return p.Status&PermSuperAuthority != 0 || p.Status&flag != 0
}

// PermissionAddress derives the permission record address for an authority.
func PermissionAddress(authority Address) Address {
	return DeriveAddress(seedPermission, authority[:])
}

func (e *Engine) globalSettings(tc *TxContext) (*GlobalSettings, error) {
	var gs GlobalSettings
	if err := tc.State.getRecord(GlobalSettingsAddress(), &gs); err != nil {
		return nil, err
	}
	return &gs, nil
}

// permissionFor loads the permission record of an authority. A missing record
// means no capabilities.
func (e *Engine) permissionFor(tc *TxContext, authority Address) (*Permission, error) {
	var p Permission
	err := tc.State.getRecord(PermissionAddress(authority), &p)
	if err != nil {
		return &Permission{Authority: authority}, nil
	}
	return &p, nil
}

func (e *Engine) requirePermission(tc *TxContext, authority Address, flag uint8) error {
	p, err := e.permissionFor(tc, authority)
	if err != nil {
		return err
	}
	if !p.Can(flag) {
		return fmt.Errorf("%w: authority %s", ErrInvalidPermissions, authority)
	}
	return nil
}

// requireTraderOrCosigner passes when the signing authority is the trader
// themselves or a backend with swap-cosigning capability.
func (e *Engine) requireTraderOrCosigner(tc *TxContext, authority, trader Address) error {
	if authority == trader {
		return nil
	}
	return e.requirePermission(tc, authority, PermCosignSwaps)
}

func (e *Engine) requireSuperAdmin(tc *TxContext, authority Address) (*GlobalSettings, error) {
	gs, err := e.globalSettings(tc)
	if err != nil {
		return nil, err
	}
	if authority != gs.SuperAdmin {
		return nil, fmt.Errorf("%w: not super admin", ErrInvalidPermissions)
	}
	return gs, nil
}

// InitGlobalSettingsArgs configures the one-time settings bootstrap.
type InitGlobalSettingsArgs struct {
	Authority  Address
	SuperAdmin Address
	FeeWallet  Address
	TipWallet  Address
}

func (e *Engine) initGlobalSettings(tc *TxContext, args InitGlobalSettingsArgs) error {
	addr := GlobalSettingsAddress()
	gs := &GlobalSettings{
		Address:        addr,
		SuperAdmin:     args.SuperAdmin,
		FeeWallet:      args.FeeWallet,
		TipWallet:      args.TipWallet,
		TradingEnabled: true,
		LpEnabled:      true,
	}
	if err := tc.State.createRecord(addr, gs); err != nil {
		return err
	}
	perm := &Permission{
		Address:   PermissionAddress(args.SuperAdmin),
		Authority: args.SuperAdmin,
		Status:    PermSuperAuthority,
	}
	return tc.State.createRecord(perm.Address, perm)
}

// InitOrUpdatePermissionArgs grants or replaces capability flags.
type InitOrUpdatePermissionArgs struct {
	Authority Address
	Target    Address
	Status    uint8
}

func (e *Engine) initOrUpdatePermission(tc *TxContext, args InitOrUpdatePermissionArgs) error {
	if _, err := e.requireSuperAdmin(tc, args.Authority); err != nil {
		return err
	}
	perm := &Permission{
		Address:   PermissionAddress(args.Target),
		Authority: args.Target,
		Status:    args.Status,
	}
	return tc.State.putRecord(perm.Address, perm)
}

func (e *Engine) setFeeWallet(tc *TxContext, authority, wallet Address) error {
	p, err := e.permissionFor(tc, authority)
	if err != nil {
		return err
	}
	if !p.Can(PermManageWallets) {
		return fmt.Errorf("%w: cannot manage wallets", ErrInvalidPermissions)
	}
	gs, err := e.globalSettings(tc)
	if err != nil {
		return err
	}
	gs.FeeWallet = wallet
	return tc.State.putRecord(gs.Address, gs)
}

func (e *Engine) setTradingState(tc *TxContext, authority Address, enabled bool) error {
	gs, err := e.requireSuperAdmin(tc, authority)
	if err != nil {
		return err
	}
	gs.TradingEnabled = enabled
	return tc.State.putRecord(gs.Address, gs)
}

func (e *Engine) setLpState(tc *TxContext, authority Address, enabled bool) error {
	gs, err := e.requireSuperAdmin(tc, authority)
	if err != nil {
		return err
	}
	gs.LpEnabled = enabled
	return tc.State.putRecord(gs.Address, gs)
}

func (e *Engine) setSuperAdmin(tc *TxContext, authority, newAdmin Address) error {
	gs, err := e.requireSuperAdmin(tc, authority)
	if err != nil {
		return err
	}
	gs.SuperAdmin = newAdmin
	perm := &Permission{
		Address:   PermissionAddress(newAdmin),
		Authority: newAdmin,
		Status:    PermSuperAuthority,
	}
	if err := tc.State.putRecord(perm.Address, perm); err != nil {
		return err
	}
	return tc.State.putRecord(gs.Address, gs)
}

func (e *Engine) requireTradingEnabled(tc *TxContext) error {
	gs, err := e.globalSettings(tc)
	if err != nil {
		return err
	}
	if !gs.TradingEnabled {
		return fmt.Errorf("%w: trading disabled", ErrUnpermittedIx)
	}
	return nil
}

func (e *Engine) requireLpEnabled(tc *TxContext) error {
	gs, err := e.globalSettings(tc)
	if err != nil {
		return err
	}
	if !gs.LpEnabled {
		return fmt.Errorf("%w: lp disabled", ErrUnpermittedIx)
	}
	return nil
}
