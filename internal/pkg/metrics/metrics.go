package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Operations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxd_operations_total",
		Help: "The total number of vault operations processed",
	}, []string{"op", "status"})

	LatencyBucket = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "boxd_latency_bucket",
		Help:    "Request latency in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"endpoint"})

	SlippageRejects = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxd_slippage_rejects_total",
		Help: "Total slippage-budget and shortfall rejections",
	}, []string{"reason"})

	LeverageOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxd_leverage_ops_total",
		Help: "Total wind/unwind/shift compositions",
	}, []string{"op", "status"})

	TimelockActions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "boxd_timelock_actions_total",
		Help: "Total timelock submissions, executions and revocations",
	}, []string{"action"})
)
