package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	SweepResultSuccess = "success"
	SweepResultPartial = "partial"
	SweepResultFailure = "failure"
)

// SweeperMetrics captures cooloff sweep health.
type SweeperMetrics struct {
	runs          *prometheus.CounterVec
	duration      prometheus.Observer
	timeouts      prometheus.Counter
	expired       prometheus.Counter
	skipped       prometheus.Counter
	failedBatches *prometheus.CounterVec
	lastSuccess   prometheus.Gauge
	runLoopLag    prometheus.Observer
}

var (
	sweeperMetricsOnce sync.Once
	sweeperMetrics     *SweeperMetrics
)

// Sweeper returns the singleton sweeper metrics registry.
func Sweeper() *SweeperMetrics {
	return SweeperWithConfig(Config{})
}

// SweeperWithConfig returns the singleton sweeper metrics registry using config labels.
func SweeperWithConfig(cfg Config) *SweeperMetrics {
	sweeperMetricsOnce.Do(func() {
		sweeperMetrics = newSweeperMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return sweeperMetrics
}

// ResetSweeperMetricsForTest resets the sweeper metrics singleton for tests.
func ResetSweeperMetricsForTest() {
	sweeperMetricsOnce = sync.Once{}
	sweeperMetrics = nil
}

func newSweeperMetrics(registerer prometheus.Registerer, cfg Config) *SweeperMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()

	runs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "numberpool_cooloff_sweep_runs_total",
		Help:        "Cooloff sweep runs by outcome.",
		ConstLabels: labels,
	}, []string{"result"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "numberpool_cooloff_sweep_duration_seconds",
		Help:        "Cooloff sweep wall time.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 600},
		ConstLabels: labels,
	})
	timeouts := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "numberpool_cooloff_sweep_timeouts_total",
		Help:        "Cooloff sweeps cut short by the job timeout.",
		ConstLabels: labels,
	})
	expired := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "numberpool_cooloff_sweep_expired_total",
		Help:        "Numbers moved from cooloff back to unassigned.",
		ConstLabels: labels,
	})
	skipped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "numberpool_cooloff_sweep_skipped_total",
		Help:        "Candidates that were no longer eligible under lock.",
		ConstLabels: labels,
	})
	failedBatches := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "numberpool_cooloff_sweep_failed_batches_total",
		Help:        "Sweep batches rolled back by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"reason"})
	lastSuccess := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "numberpool_cooloff_sweep_last_success_timestamp_seconds",
		Help:        "Unix time of the last sweep that finished without failed batches.",
		ConstLabels: labels,
	})
	runLoopLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "numberpool_cooloff_sweep_runloop_lag_seconds",
		Help:        "Sweep run loop lag beyond the configured interval.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: labels,
	})

	registerer.MustRegister(runs, duration, timeouts, expired, skipped, failedBatches, lastSuccess, runLoopLag)

	return &SweeperMetrics{
		runs:          runs,
		duration:      duration,
		timeouts:      timeouts,
		expired:       expired,
		skipped:       skipped,
		failedBatches: failedBatches,
		lastSuccess:   lastSuccess,
		runLoopLag:    runLoopLag,
	}
}

// ObserveRun records the outcome of a completed sweep.
func (m *SweeperMetrics) ObserveRun(result string, d time.Duration, finishedAt time.Time) {
	if m == nil {
		return
	}
	m.runs.WithLabelValues(result).Inc()
	m.duration.Observe(d.Seconds())
	if result == SweepResultSuccess {
		m.lastSuccess.Set(float64(finishedAt.Unix()))
	}
}

// IncTimeout counts a sweep that hit its job timeout.
func (m *SweeperMetrics) IncTimeout() {
	if m == nil {
		return
	}
	m.timeouts.Inc()
}

// AddExpired counts numbers released by the sweep.
func (m *SweeperMetrics) AddExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.expired.Add(float64(count))
}

// AddSkipped counts candidates that lost eligibility before they were locked.
func (m *SweeperMetrics) AddSkipped(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.skipped.Add(float64(count))
}

// IncFailedBatch counts a rolled back batch.
func (m *SweeperMetrics) IncFailedBatch(err error) {
	if m == nil || err == nil {
		return
	}
	m.failedBatches.WithLabelValues(ClassifyReason(err)).Inc()
}

// ObserveRunLoopLag records lag between the scheduled tick and actual run start.
func (m *SweeperMetrics) ObserveRunLoopLag(d time.Duration) {
	if m == nil {
		return
	}
	m.runLoopLag.Observe(max(d, 0).Seconds())
}
