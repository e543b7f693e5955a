// internal/pkg/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// 发货流程的核心指标。outcome 的取值和订单的终态保持一致
// (recorded / skipped / failed)，方便直接对照状态机排查。
var (
	FulfillmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codevend",
		Name:      "fulfillments_total",
		Help:      "Number of fulfillment workflow runs by terminal outcome.",
	}, []string{"outcome"})

	CodesIssuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codevend",
		Name:      "codes_issued_total",
		Help:      "Number of codes claimed and delivered, by pool.",
	}, []string{"pool"})

	AllocationDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "codevend",
		Name:      "allocation_duration_seconds",
		Help:      "Time spent scanning and claiming codes in the pool store.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"pool"})

	PoolExhaustedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "codevend",
		Name:      "pool_exhausted_total",
		Help:      "Allocation attempts that failed because a sub-range ran out of codes.",
	}, []string{"pool", "sub_range"})
)
