package margin

import "fmt"

// ExitOrder is the shared shape of stop-loss and take-profit orders: an
// exchange-rate bound expressed as a maker/taker amount pair, one order of
// each kind per position.
type ExitOrder struct {
	Address     Address `json:"address"`
	PositionKey Address `json:"position_key"`
	MakerAmount uint64  `json:"maker_amount"`
	TakerAmount uint64  `json:"taker_amount"`
}

// StopLossOrder closes a position once its executed price falls to the bound.
type StopLossOrder struct {
	ExitOrder
}

func (*StopLossOrder) Discriminator() string { return "stop_loss_order" }

// TakeProfitOrder closes a position once its executed price clears the bound.
type TakeProfitOrder struct {
	ExitOrder
}

func (*TakeProfitOrder) Discriminator() string { return "take_profit_order" }

// StopLossOrderAddress derives the singleton stop-loss address per position.
func StopLossOrderAddress(positionKey Address) Address {
	return DeriveAddress(seedStopLossOrder, positionKey[:])
}

// TakeProfitOrderAddress derives the singleton take-profit address.
func TakeProfitOrderAddress(positionKey Address) Address {
	return DeriveAddress(seedTakeProfitOrder, positionKey[:])
}

// ExitOrderArgs creates or replaces an exit order on a position.
type ExitOrderArgs struct {
	Authority   Address
	Position    Address
	MakerAmount uint64
	TakerAmount uint64
}

func (e *Engine) requirePositionOwner(tc *TxContext, authority, positionAddr Address) (*Position, error) {
	position, err := e.position(tc, positionAddr)
	if err != nil {
		return nil, err
	}
	if authority != position.Trader {
		return nil, fmt.Errorf("%w: not the position trader", ErrIncorrectOwner)
	}
	return position, nil
}

func (e *Engine) initOrUpdateStopLossOrder(tc *TxContext, args ExitOrderArgs) error {
	if _, err := e.requirePositionOwner(tc, args.Authority, args.Position); err != nil {
		return err
	}
	order := &StopLossOrder{ExitOrder{
		Address:     StopLossOrderAddress(args.Position),
		PositionKey: args.Position,
		MakerAmount: args.MakerAmount,
		TakerAmount: args.TakerAmount,
	}}
	return tc.State.putRecord(order.Address, order)
}

func (e *Engine) initOrUpdateTakeProfitOrder(tc *TxContext, args ExitOrderArgs) error {
	if _, err := e.requirePositionOwner(tc, args.Authority, args.Position); err != nil {
		return err
	}
	order := &TakeProfitOrder{ExitOrder{
		Address:     TakeProfitOrderAddress(args.Position),
		PositionKey: args.Position,
		MakerAmount: args.MakerAmount,
		TakerAmount: args.TakerAmount,
	}}
	return tc.State.putRecord(order.Address, order)
}

func (e *Engine) closeStopLossOrder(tc *TxContext, authority, positionAddr Address) error {
	if _, err := e.requirePositionOwner(tc, authority, positionAddr); err != nil {
		return err
	}
	tc.State.closeRecord(StopLossOrderAddress(positionAddr))
	return nil
}

func (e *Engine) closeTakeProfitOrder(tc *TxContext, authority, positionAddr Address) error {
	if _, err := e.requirePositionOwner(tc, authority, positionAddr); err != nil {
		return err
	}
	tc.State.closeRecord(TakeProfitOrderAddress(positionAddr))
	return nil
}

// closeOrphanedExitOrders removes any exit orders left behind by a position
// that just reached a terminal path.
func (e *Engine) closeOrphanedExitOrders(tc *TxContext, positionAddr Address) {
	tc.State.closeRecord(StopLossOrderAddress(positionAddr))
	tc.State.closeRecord(TakeProfitOrderAddress(positionAddr))
}

// validateExitOrder checks the executed price against the triggered order's
// bound, after settlement has fixed the actual amounts. All comparisons are
// strict: landing exactly on the bound rejects.
func (e *Engine) validateExitOrder(tc *TxContext, position *Position, amounts closeAmounts, mode CloseMode, isLong bool) error {
	switch mode {
	case CloseModeStopLoss:
		var order StopLossOrder
		if err := tc.State.getRecord(StopLossOrderAddress(position.Address), &order); err != nil {
			return err
		}
		if isLong {
			actualTaker := amounts.Payout + amounts.CloseFee + amounts.InterestPaid + amounts.PrincipalRepaid
			if !(actualTaker < order.TakerAmount) {
				return fmt.Errorf("%w: stop loss, taker %d vs bound %d", ErrPriceTargetNotReached, actualTaker, order.TakerAmount)
			}
			return nil
		}
		actualTaker := amounts.InterestPaid + amounts.PrincipalRepaid
		if !(cmp128(amounts.CollateralSpent, order.TakerAmount, order.MakerAmount, actualTaker) > 0) {
			return fmt.Errorf("%w: stop loss ratio not crossed", ErrPriceTargetNotReached)
		}
		return nil
	case CloseModeTakeProfit:
		var order TakeProfitOrder
		if err := tc.State.getRecord(TakeProfitOrderAddress(position.Address), &order); err != nil {
			return err
		}
		if isLong {
			actualTaker := amounts.Payout + amounts.CloseFee + amounts.InterestPaid + amounts.PrincipalRepaid
			if !(actualTaker > order.TakerAmount) {
				return fmt.Errorf("%w: take profit, taker %d vs bound %d", ErrPriceTargetNotReached, actualTaker, order.TakerAmount)
			}
			return nil
		}
		actualTaker := amounts.InterestPaid + amounts.PrincipalRepaid
		if !(cmp128(order.MakerAmount, actualTaker, amounts.CollateralSpent, order.TakerAmount) > 0) {
			return fmt.Errorf("%w: take profit ratio not crossed", ErrPriceTargetNotReached)
		}
		return nil
	}
	return nil
}
