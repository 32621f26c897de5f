// Package telemetry exposes process-global Prometheus collectors for the
// cycle driver's iteration counts and overload conditions. It is a pure
// recorder: it never decides behavior and the pipeline package never
// imports it — the CLI records into it after each RunCycle.
//
// Grounded on
// etalazz-vsa/internal/ratelimiter/telemetry/churn/prom_counters.go:
// package-level prometheus.NewCounter/NewGauge/NewHistogram vars, no
// registry object threaded through call sites.
package telemetry

import "github.com/prometheus/client_golang/prometheus"

var (
	resolverIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "throttlepipe_resolver_iterations",
		Help:    "Iterations consumed by resolve_overloads per cycle.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	propagatorIterations = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "throttlepipe_propagator_iterations",
		Help:    "Iterations consumed by the flow propagator per cycle.",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64},
	})

	overloadedSlots = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "throttlepipe_overloaded_slots",
		Help: "Count of (service, schema) slots still overloaded after the final pass.",
	})

	nonConvergenceTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "throttlepipe_nonconvergence_total",
		Help: "Times the resolver or propagator hit its iteration cap without converging.",
	})

	backpressureReductionRatio = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "throttlepipe_backpressure_reduction_ratio",
		Help:    "Distribution of accepted backpressure reduction ratios.",
		Buckets: prometheus.LinearBuckets(0, 0.1, 11),
	})

	zeroCapacitySlots = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "throttlepipe_zero_capacity_slots_total",
		Help: "Times a (service, schema) slot was observed pinned at zero capacity with nonzero incoming.",
	})
)

// Collectors returns every collector this package registers, for a caller
// to pass to a prometheus.Registry.
func Collectors() []prometheus.Collector {
	return []prometheus.Collector{
		resolverIterations,
		propagatorIterations,
		overloadedSlots,
		nonConvergenceTotal,
		backpressureReductionRatio,
		zeroCapacitySlots,
	}
}

// ObserveResolver records one cycle's resolver iteration count, whether it
// hit the iteration cap, and how many slots were still overloaded.
func ObserveResolver(iterations int, hitCap bool, stillOverloaded int) {
	resolverIterations.Observe(float64(iterations))
	overloadedSlots.Set(float64(stillOverloaded))
	if hitCap {
		nonConvergenceTotal.Inc()
	}
}

// ObservePropagator records one cycle's flow propagator iteration count
// and whether it hit the iteration cap.
func ObservePropagator(iterations int, hitCap bool) {
	propagatorIterations.Observe(float64(iterations))
	if hitCap {
		nonConvergenceTotal.Inc()
	}
}

// ObserveBackpressureReduction records one accepted ApplyBackpressure ratio.
func ObserveBackpressureReduction(ratio float64) {
	backpressureReductionRatio.Observe(ratio)
}

// ObserveZeroCapacitySlots increments the zero-capacity counter by n.
func ObserveZeroCapacitySlots(n int) {
	if n > 0 {
		zeroCapacitySlots.Add(float64(n))
	}
}
