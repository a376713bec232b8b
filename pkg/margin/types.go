package margin

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"

	"golang.org/x/crypto/blake2b"
)

// Address identifies an account in the state store.
type Address [32]byte

// ZeroAddress is the empty address.
var ZeroAddress Address

func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

func (a Address) IsZero() bool {
	return a == ZeroAddress
}

// AddressFromString parses a hex-encoded address. Short input is zero-padded
// on the right, which keeps test fixtures readable.
func AddressFromString(s string) Address {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		copy(a[:], s)
		return a
	}
	copy(a[:], b)
	return a
}

// NamedAddress derives a stable address from a human-readable label.
func NamedAddress(label string) Address {
	return Address(blake2b.Sum256([]byte("addr:" + label)))
}

// DeriveAddress derives a deterministic, collision-free account address from a
// seed tuple (fixed tag plus foreign keys plus nonce). Two records derived from
// the same tuple collide, which is what enforces record uniqueness.
func DeriveAddress(seeds ...[]byte) Address {
	h, _ := blake2b.New256(nil)
	for _, s := range seeds {
		var n [4]byte
		binary.LittleEndian.PutUint32(n[:], uint32(len(s)))
		h.Write(n[:])
		h.Write(s)
	}
	var a Address
	copy(a[:], h.Sum(nil))
	return a
}

func u64Seed(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

// Record seed tags.
var (
	seedGlobalSettings  = []byte("global_settings")
	seedDebtController  = []byte("debt_controller")
	seedPermission      = []byte("admin")
	seedLpVault         = []byte("lp_vault")
	seedVaultShares     = []byte("vault_shares")
	seedLongPool        = []byte("long_pool")
	seedShortPool       = []byte("short_pool")
	seedPosition        = []byte("position")
	seedOpenRequest     = []byte("open_pos")
	seedCloseRequest    = []byte("close_pos")
	seedStopLossOrder   = []byte("stop_loss_order")
	seedTakeProfitOrder = []byte("take_profit_order")
	seedStakeRequest    = []byte("stake_req")
	seedUnstakeRequest  = []byte("unstake_req")
	// Deliberately carries no vault key, so at most one instant-unstake swap
	// can be in flight system-wide. TODO: confirm whether this should be
	// scoped per vault before multiple relayers are deployed.
	seedStakeSwapRequest = []byte("swap_request")
	seedNativeYield      = []byte("native_yield")
	seedStrategy         = []byte("strategy")
	seedStrategyRequest  = []byte("strategy_request")
	seedBundleRequest    = []byte("bundle")
)

// Denominators and time constants for interest and leverage math.
const (
	APYDenominator      = 100
	LeverageDenominator = 100
	SecondsPerYear      = 365 * 24 * 60 * 60

	// Relative tolerance, in percent, between a declared interest figure and
	// the amount actually collected on the currency side of a short close.
	interestTolerancePercent = 3
)

// ProgramID is the identity of this program in a transaction's instruction
// list; introspection distinguishes our instructions from external ones by it.
const ProgramID = "margin"

// Selector returns the 8-byte dispatch selector for an instruction name,
// the leading bytes of sha256 over the namespaced name.
func Selector(name string) [8]byte {
	sum := sha256.Sum256([]byte("global:" + name))
	var sel [8]byte
	copy(sel[:], sum[:8])
	return sel
}

// Instruction names with cleanup selectors that setup handlers scan for.
const (
	IxOpenLongPositionSetup     = "open_long_position_setup"
	IxOpenLongPositionCleanup   = "open_long_position_cleanup"
	IxOpenShortPositionSetup    = "open_short_position_setup"
	IxOpenShortPositionCleanup  = "open_short_position_cleanup"
	IxCloseLongPositionSetup    = "close_long_position_setup"
	IxCloseLongPositionCleanup  = "close_long_position_cleanup"
	IxCloseShortPositionSetup   = "close_short_position_setup"
	IxCloseShortPositionCleanup = "close_short_position_cleanup"
	IxLiquidatePositionSetup    = "liquidate_position_setup"
	IxLiquidatePositionCleanup  = "liquidate_position_cleanup"
	IxStopLossSetup             = "stop_loss_setup"
	IxStopLossCleanup           = "stop_loss_cleanup"
	IxTakeProfitSetup           = "take_profit_setup"
	IxTakeProfitCleanup         = "take_profit_cleanup"
	IxNativeStakeSetup          = "native_stake_setup"
	IxNativeStakeCleanup        = "native_stake_cleanup"
	IxNativeUnstakeSetup        = "native_unstake_setup"
	IxNativeUnstakeCleanup      = "native_unstake_cleanup"
	IxStrategyDepositSetup      = "strategy_deposit_setup"
	IxStrategyDepositCleanup    = "strategy_deposit_cleanup"
	IxStrategyWithdrawSetup     = "strategy_withdraw_setup"
	IxStrategyWithdrawCleanup   = "strategy_withdraw_cleanup"
	IxBundleSetup               = "bundle_setup"
	IxBundleCleanup             = "bundle_cleanup"
)
