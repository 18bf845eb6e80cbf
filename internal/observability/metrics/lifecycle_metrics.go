package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// LifecycleMetrics tracks number state transitions.
type LifecycleMetrics struct {
	transitions *prometheus.CounterVec
	errors      *prometheus.CounterVec
	duration    *prometheus.HistogramVec
}

var (
	lifecycleMetricsOnce sync.Once
	lifecycleMetrics     *LifecycleMetrics
)

// Lifecycle returns the singleton lifecycle metrics registry.
func Lifecycle() *LifecycleMetrics {
	return LifecycleWithConfig(Config{})
}

// LifecycleWithConfig returns the singleton lifecycle metrics registry using config labels.
func LifecycleWithConfig(cfg Config) *LifecycleMetrics {
	lifecycleMetricsOnce.Do(func() {
		lifecycleMetrics = newLifecycleMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return lifecycleMetrics
}

// ResetLifecycleMetricsForTest resets the lifecycle metrics singleton for tests.
func ResetLifecycleMetricsForTest() {
	lifecycleMetricsOnce = sync.Once{}
	lifecycleMetrics = nil
}

func newLifecycleMetrics(registerer prometheus.Registerer, cfg Config) *LifecycleMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	labels := cfg.constLabels()

	transitions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "numberpool_lifecycle_transitions_total",
		Help:        "Committed number lifecycle transitions by event and state pair.",
		ConstLabels: labels,
	}, []string{"event", "from", "to"})
	transitionErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "numberpool_lifecycle_errors_total",
		Help:        "Rejected or failed lifecycle operations by low-cardinality reason.",
		ConstLabels: labels,
	}, []string{"event", "reason"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "numberpool_lifecycle_duration_seconds",
		Help:        "Lifecycle operation latency including lock wait.",
		Buckets:     []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
		ConstLabels: labels,
	}, []string{"event"})

	registerer.MustRegister(transitions, transitionErrors, duration)

	return &LifecycleMetrics{
		transitions: transitions,
		errors:      transitionErrors,
		duration:    duration,
	}
}

// IncTransition counts a committed transition.
func (m *LifecycleMetrics) IncTransition(event, from, to string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(event, from, to).Inc()
}

// AddTransitions counts count committed transitions at once.
func (m *LifecycleMetrics) AddTransitions(event, from, to string, count int) {
	if m == nil || count <= 0 {
		return
	}
	m.transitions.WithLabelValues(event, from, to).Add(float64(count))
}

// IncError counts a failed operation with its classified reason.
func (m *LifecycleMetrics) IncError(event string, err error) {
	if m == nil || err == nil {
		return
	}
	m.errors.WithLabelValues(event, ClassifyReason(err)).Inc()
}

// ObserveDuration records operation latency.
func (m *LifecycleMetrics) ObserveDuration(event string, d time.Duration) {
	if m == nil {
		return
	}
	m.duration.WithLabelValues(event).Observe(d.Seconds())
}
