package margin

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type engineMetrics struct {
	deposits            prometheus.Counter
	withdrawals         prometheus.Counter
	positionsOpened     prometheus.Counter
	positionsClosed     prometheus.Counter
	positionsLiquidated prometheus.Counter
	txExecuted          prometheus.Counter
	txFailed            prometheus.Counter
}

// newEngineMetrics builds the counter set. A nil registerer yields live but
// unregistered counters, which keeps the hot path free of nil checks.
func newEngineMetrics(reg prometheus.Registerer) *engineMetrics {
	factory := promauto.With(reg)
	return &engineMetrics{
		deposits: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "vault_deposits_total",
			Help: "Vault deposit operations applied.",
		}),
		withdrawals: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "vault_withdrawals_total",
			Help: "Vault withdrawal operations applied.",
		}),
		positionsOpened: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "positions_opened_total",
			Help: "Positions created by open cleanups.",
		}),
		positionsClosed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "positions_closed_total",
			Help: "Positions settled by user, exit order or claim.",
		}),
		positionsLiquidated: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "positions_liquidated_total",
			Help: "Positions settled through the liquidation path.",
		}),
		txExecuted: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "transactions_executed_total",
			Help: "Transactions committed by the runtime.",
		}),
		txFailed: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "margin", Name: "transactions_failed_total",
			Help: "Transactions rolled back by the runtime.",
		}),
	}
}
