package margin

import (
	"time"

	"github.com/google/uuid"
)

// Event types published by the engine.
const (
	EventNewVault           = "new_vault"
	EventDeposit            = "deposit"
	EventWithdraw           = "withdraw"
	EventPositionOpened     = "position_opened"
	EventPositionClosed     = "position_closed"
	EventPositionLiquidated = "position_liquidated"
	EventPositionClaimed    = "position_claimed"
	EventNativeStake        = "native_stake"
	EventNativeUnstake      = "native_unstake"
	EventStrategyDeposit    = "strategy_deposit"
	EventStrategyWithdraw   = "strategy_withdraw"
	EventYieldClaimed       = "yield_claimed"
)

// Event is an engine notification. Data carries the per-type payload.
type Event struct {
	ID        string                 `json:"id"`
	Type      string                 `json:"type"`
	Timestamp int64                  `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// EventSink receives engine events. Publish must not block; slow consumers
// should buffer or drop on their side.
type EventSink interface {
	Publish(Event)
}

// EventSinkFunc adapts a function to an EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Publish(ev Event) { f(ev) }

func newEvent(typ string, data map[string]interface{}) Event {
	return Event{
		ID:        uuid.NewString(),
		Type:      typ,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}
