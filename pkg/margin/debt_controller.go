package margin

import "fmt"

// DebtController holds the protocol-wide interest and leverage parameters and
// performs the pure debt computations. MaxAPY and MaxLeverage are expressed
// against their denominators: MaxAPY=300 with APYDenominator=100 is 300% APY,
// MaxLeverage=500 with LeverageDenominator=100 is 5x.
type DebtController struct {
	Address        Address `json:"address"`
	MaxAPY         uint64  `json:"max_apy"`
	MaxLeverage    uint64  `json:"max_leverage"`
	LiquidationFee uint64  `json:"liquidation_fee"`
}

func (*DebtController) Discriminator() string { return "debt_controller" }

// DebtControllerAddress is where the singleton lives.
func DebtControllerAddress() Address {
	return DeriveAddress(seedDebtController)
}

// ComputeMaxInterest returns the maximum interest chargeable on principal for
// the elapsed interval, floored to an integer but never zero: short intervals
// still cost one unit, so a loan can never accrue for free.
func (dc *DebtController) ComputeMaxInterest(principal uint64, lastFunding, now int64) (uint64, error) {
	if now < lastFunding {
		return 0, ErrArithmeticUnderflow
	}
	elapsed := uint64(now - lastFunding)
	// One floor over the combined denominator; flooring the APY scaling on its
	// own would undercharge, and the loss grows with the elapsed interval.
	interest, err := mulMulDiv(principal, dc.MaxAPY, elapsed, APYDenominator*SecondsPerYear)
	if err != nil {
		return 0, err
	}
	if interest == 0 {
		interest = 1
	}
	return interest, nil
}

// ComputeMaxPrincipal returns the largest loan a down payment supports:
// downPayment * (maxLeverage - denominator) / denominator.
func (dc *DebtController) ComputeMaxPrincipal(downPayment uint64) (uint64, error) {
	lever, err := checkedSub(dc.MaxLeverage, LeverageDenominator)
	if err != nil {
		return 0, err
	}
	return mulDiv(downPayment, lever, LeverageDenominator)
}

func validMaxLeverage(v uint64) bool {
	return v > 0 && v <= 100*LeverageDenominator
}

func validMaxAPY(v uint64) bool {
	return v > 0 && v < 1000*APYDenominator
}

func validLiquidationFee(v uint64) bool {
	return v > 0 && v <= 10
}

func (e *Engine) debtController(tc *TxContext) (*DebtController, error) {
	var dc DebtController
	if err := tc.State.getRecord(DebtControllerAddress(), &dc); err != nil {
		return nil, err
	}
	return &dc, nil
}

// InitDebtControllerArgs bootstraps the controller parameters.
type InitDebtControllerArgs struct {
	Authority      Address
	MaxAPY         uint64
	MaxLeverage    uint64
	LiquidationFee uint64
}

func (e *Engine) initDebtController(tc *TxContext, args InitDebtControllerArgs) error {
	if _, err := e.requireSuperAdmin(tc, args.Authority); err != nil {
		return err
	}
	if !validMaxAPY(args.MaxAPY) || !validMaxLeverage(args.MaxLeverage) || !validLiquidationFee(args.LiquidationFee) {
		return fmt.Errorf("%w: debt controller parameters out of range", ErrInvalidTransaction)
	}
	dc := &DebtController{
		Address:        DebtControllerAddress(),
		MaxAPY:         args.MaxAPY,
		MaxLeverage:    args.MaxLeverage,
		LiquidationFee: args.LiquidationFee,
	}
	return tc.State.createRecord(dc.Address, dc)
}

func (e *Engine) setMaxAPY(tc *TxContext, authority Address, maxAPY uint64) error {
	if _, err := e.requireSuperAdmin(tc, authority); err != nil {
		return err
	}
	if !validMaxAPY(maxAPY) {
		return fmt.Errorf("%w: max apy out of range", ErrInvalidTransaction)
	}
	dc, err := e.debtController(tc)
	if err != nil {
		return err
	}
	dc.MaxAPY = maxAPY
	return tc.State.putRecord(dc.Address, dc)
}

func (e *Engine) setMaxLeverage(tc *TxContext, authority Address, maxLeverage uint64) error {
	if _, err := e.requireSuperAdmin(tc, authority); err != nil {
		return err
	}
	if !validMaxLeverage(maxLeverage) {
		return fmt.Errorf("%w: max leverage out of range", ErrInvalidTransaction)
	}
	dc, err := e.debtController(tc)
	if err != nil {
		return err
	}
	dc.MaxLeverage = maxLeverage
	return tc.State.putRecord(dc.Address, dc)
}

func (e *Engine) setLiquidationFee(tc *TxContext, authority Address, fee uint64) error {
	if _, err := e.requireSuperAdmin(tc, authority); err != nil {
		return err
	}
	if !validLiquidationFee(fee) {
		return fmt.Errorf("%w: liquidation fee out of range", ErrInvalidTransaction)
	}
	dc, err := e.debtController(tc)
	if err != nil {
		return err
	}
	dc.LiquidationFee = fee
	return tc.State.putRecord(dc.Address, dc)
}

// capInterest applies the declared-interest policy: a zero or overshooting
// declaration falls back to the computed maximum.
func capInterest(declared, maxInterest uint64) uint64 {
	if declared == 0 || declared > maxInterest {
		return maxInterest
	}
	return declared
}
