package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the engine collectors. A nil *Metrics records nothing.
type Metrics struct {
	Checkouts         *prometheus.CounterVec
	Checkins          prometheus.Counter
	LocksSwept        *prometheus.CounterVec
	ConflictsDetected *prometheus.CounterVec
	BulkCheckoutItems *prometheus.CounterVec
	Baselines         prometheus.Counter
	SweepDuration     prometheus.Histogram
}

// New registers the collectors on reg. A nil reg builds unregistered
// collectors.
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		Checkouts: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcstudio_checkouts_total",
			Help: "Checkout attempts by result",
		}, []string{"result"}), // ok, reused, lock_conflict, error
		Checkins: f.NewCounter(prometheus.CounterOpts{
			Name: "arcstudio_checkins_total",
			Help: "Successful checkins",
		}),
		LocksSwept: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcstudio_locks_swept_total",
			Help: "Locks removed by the sweeper by reason",
		}, []string{"reason"}), // expired, inactive_initiative
		ConflictsDetected: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcstudio_conflicts_detected_total",
			Help: "Conflicting fields found by detection by severity",
		}, []string{"severity"}),
		BulkCheckoutItems: f.NewCounterVec(prometheus.CounterOpts{
			Name: "arcstudio_bulk_checkout_items_total",
			Help: "Bulk checkout items by result",
		}, []string{"result"}), // ok, failed
		Baselines: f.NewCounter(prometheus.CounterOpts{
			Name: "arcstudio_baselines_total",
			Help: "Artifacts promoted to baseline",
		}),
		SweepDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "arcstudio_sweep_duration_seconds",
			Help:    "Duration of lock sweep passes",
			Buckets: prometheus.DefBuckets,
		}),
	}
}

func (m *Metrics) Checkout(result string) {
	if m == nil {
		return
	}
	m.Checkouts.WithLabelValues(result).Inc()
}

func (m *Metrics) Checkin() {
	if m == nil {
		return
	}
	m.Checkins.Inc()
}

func (m *Metrics) Swept(reason string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.LocksSwept.WithLabelValues(reason).Add(float64(n))
}

func (m *Metrics) Conflict(severity string) {
	if m == nil {
		return
	}
	m.ConflictsDetected.WithLabelValues(severity).Inc()
}

func (m *Metrics) BulkItem(result string) {
	if m == nil {
		return
	}
	m.BulkCheckoutItems.WithLabelValues(result).Inc()
}

func (m *Metrics) Baselined(n int) {
	if m == nil || n == 0 {
		return
	}
	m.Baselines.Add(float64(n))
}

func (m *Metrics) ObserveSweep(d time.Duration) {
	if m == nil {
		return
	}
	m.SweepDuration.Observe(d.Seconds())
}
