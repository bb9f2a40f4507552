package metrics

import (
	"math/big"
	"net/http"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/LICODX/rnr-network/pkg/network"
	"github.com/LICODX/rnr-network/pkg/statedb"
	"github.com/LICODX/rnr-network/pkg/utils"
)

const namespace = "rnr"

// NetworkMetrics implements network.Observer on top of client_golang.
type NetworkMetrics struct {
	Operations       *prometheus.CounterVec
	CycleNumber      prometheus.Gauge
	NodesRegistered  prometheus.Gauge
	NetworkState     prometheus.Gauge
	Paused           prometheus.Gauge
	SnapshotNodes    prometheus.Gauge
	SnapshotDuration prometheus.Histogram
	ClaimsTotal      prometheus.Counter
	ClaimedAmount    prometheus.Counter
	APIRequests      *prometheus.CounterVec
	APIRateLimited   prometheus.Counter

	reg prometheus.Registerer
}

func NewNetworkMetrics(reg prometheus.Registerer) *NetworkMetrics {
	m := &NetworkMetrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "operations_total",
			Help:      "State-changing operations by name and result code",
		}, []string{"op", "result"}),
		CycleNumber: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "cycle_current",
			Help:      "Number of the open cycle",
		}),
		NodesRegistered: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "nodes_registered",
			Help:      "Number of registered nodes",
		}),
		NetworkState: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "network_state",
			Help:      "Shared network state counter",
		}),
		Paused: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "paused",
			Help:      "Pause switch (1=paused)",
		}),
		SnapshotNodes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "snapshot_nodes",
			Help:      "Nodes scanned by the last cycle seal",
		}),
		SnapshotDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "snapshot_seconds",
			Help:      "Time taken to snapshot all nodes when sealing a cycle",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0, 5.0, 30.0},
		}),
		ClaimsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claims_total",
			Help:      "Reward claims, including zero payouts",
		}),
		ClaimedAmount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "claimed_amount_total",
			Help:      "Sum of rewards paid out of escrow",
		}),
		APIRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "requests_total",
			Help:      "HTTP API requests by route and status",
		}, []string{"route", "status"}),
		APIRateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "api",
			Name:      "rate_limited_total",
			Help:      "HTTP API requests rejected by the rate limiter",
		}),
		reg: reg,
	}

	reg.MustRegister(
		m.Operations,
		m.CycleNumber,
		m.NodesRegistered,
		m.NetworkState,
		m.Paused,
		m.SnapshotNodes,
		m.SnapshotDuration,
		m.ClaimsTotal,
		m.ClaimedAmount,
		m.APIRequests,
		m.APIRateLimited,
	)
	return m
}

// RegisterStore exports the state db read cache counters.
func (m *NetworkMetrics) RegisterStore(s *statedb.Store) {
	m.reg.MustRegister(
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statedb",
			Name:      "cache_hits_total",
			Help:      "State db read cache hits",
		}, func() float64 {
			hits, _ := s.CacheStats()
			return float64(hits)
		}),
		prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "statedb",
			Name:      "cache_misses_total",
			Help:      "State db read cache misses",
		}, func() float64 {
			_, misses := s.CacheStats()
			return float64(misses)
		}),
	)
}

func (m *NetworkMetrics) ObserveOp(op string, err error) {
	result := "ok"
	if err != nil {
		result = utils.CodeOf(err)
	}
	m.Operations.WithLabelValues(op, result).Inc()
}

func (m *NetworkMetrics) ObserveSnapshot(nodes int, took time.Duration) {
	m.SnapshotNodes.Set(float64(nodes))
	m.SnapshotDuration.Observe(took.Seconds())
}

func (m *NetworkMetrics) ObserveClaim(amount *uint256.Int) {
	m.ClaimsTotal.Inc()
	f, _ := new(big.Float).SetInt(amount.ToBig()).Float64()
	m.ClaimedAmount.Add(f)
}

func (m *NetworkMetrics) SetGauges(s network.Stats) {
	m.CycleNumber.Set(float64(s.Cycle))
	m.NodesRegistered.Set(float64(s.Nodes))
	m.NetworkState.Set(float64(s.NetworkState))
	if s.Paused {
		m.Paused.Set(1)
	} else {
		m.Paused.Set(0)
	}
}

// Handler serves the exposition format for g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

var _ network.Observer = (*NetworkMetrics)(nil)
