package engine

import (
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the engine's Prometheus collectors. They are created
// unregistered; the metrics server registers them at startup.
type Metrics struct {
	ClicksTotal        *prometheus.CounterVec
	RewardsDistributed prometheus.Counter
	PlayersFlagged     prometheus.Counter
	StorageErrors      prometheus.Counter
}

// NewMetrics creates the engine's collectors.
func NewMetrics() *Metrics {
	return &Metrics{
		ClicksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "flowclicker_clicks_total",
			Help: "Total click events by outcome",
		}, []string{"outcome"}),
		RewardsDistributed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowclicker_rewards_distributed_tokens",
			Help: "Total tokens distributed for accepted clicks",
		}),
		PlayersFlagged: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowclicker_players_flagged_total",
			Help: "Players newly flagged as bots",
		}),
		StorageErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "flowclicker_storage_errors_total",
			Help: "Click handling failures caused by storage",
		}),
	}
}

// Collectors returns all collectors for registration.
func (m *Metrics) Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.ClicksTotal,
		m.RewardsDistributed,
		m.PlayersFlagged,
		m.StorageErrors,
	}
}

// tokensAsFloat converts a fixed-point amount into whole tokens for the
// rewards counter. Precision loss is acceptable for metrics.
func tokensAsFloat(amount *big.Int) float64 {
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(amount), big.NewFloat(1e18)).Float64()
	return f
}
