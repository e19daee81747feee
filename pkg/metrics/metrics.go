package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// OrdersPlaced counts accepted order placements by symbol and side.
var OrdersPlaced = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "permabid_orders_placed_total",
		Help: "Total number of orders accepted by the venue",
	},
	[]string{"symbol", "side"},
)

// OrdersCancelled counts acknowledged order cancellations by symbol.
var OrdersCancelled = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "permabid_orders_cancelled_total",
		Help: "Total number of orders cancelled at the venue",
	},
	[]string{"symbol"},
)

// OrdersRejected counts per-level venue rejections by symbol and reason.
var OrdersRejected = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "permabid_orders_rejected_total",
		Help: "Total number of order placements rejected by the venue",
	},
	[]string{"symbol", "reason"},
)

// CycleLatency records latency distribution for a full quoting cycle.
var CycleLatency = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "permabid_quote_cycle_latency_seconds",
		Help:    "Latency in seconds of one quote/reconcile cycle",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"symbol"},
)

// RiskState exports the runner's risk state (0=active, 1=hedge-only, 2=halted).
var RiskState = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "permabid_risk_state",
		Help: "Current risk state per symbol (0 active, 1 hedge-only, 2 halted)",
	},
	[]string{"symbol"},
)

// ConfigReloads counts detected configuration swaps per symbol.
var ConfigReloads = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "permabid_config_reloads_total",
		Help: "Total number of applied configuration changes",
	},
	[]string{"symbol"},
)

// Position and exposure gauges, fed by the telemetry publisher.
var (
	UnrealizedPnL = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permabid_unrealized_pnl_usd",
			Help: "Unrealized PnL per symbol in USD",
		},
		[]string{"symbol"},
	)

	NotionalExposure = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "permabid_notional_exposure_usd",
			Help: "Absolute notional exposure per symbol in USD",
		},
		[]string{"symbol"},
	)

	VenueErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "permabid_venue_errors_total",
			Help: "Total venue call failures by operation",
		},
		[]string{"op"},
	)
)

func init() {
	prometheus.MustRegister(OrdersPlaced, OrdersCancelled, OrdersRejected)
	prometheus.MustRegister(CycleLatency, RiskState, ConfigReloads)
	prometheus.MustRegister(UnrealizedPnL, NotionalExposure, VenueErrors)
}
