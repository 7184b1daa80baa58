package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the audit engine. Write failures are
// the signal to watch: the tracker swallows them by contract, so this
// counter is the only place they surface besides the operational log.
type Metrics struct {
	EntriesWritten *prometheus.CounterVec
	WriteFailures  prometheus.Counter
	WriteDuration  prometheus.Histogram
}

// New creates a Metrics instance with all audit metrics registered on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		EntriesWritten: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "peopledesk_audit_entries_written_total",
			Help: "Total number of audit entries persisted, by action",
		}, []string{"action"}),
		WriteFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "peopledesk_audit_write_failures_total",
			Help: "Total number of audit writes that failed and were dropped",
		}),
		WriteDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "peopledesk_audit_write_duration_seconds",
			Help:    "Duration of audit entry persistence",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
		}),
	}
}

var (
	defaultOnce sync.Once
	defaultSet  *Metrics
)

// Default returns the process-wide audit metrics, registered once on the
// default prometheus registry. Trackers use this set unless WithMetrics
// supplies another, so every composition reports through /metrics without
// extra wiring.
func Default() *Metrics {
	defaultOnce.Do(func() { defaultSet = New(prometheus.DefaultRegisterer) })
	return defaultSet
}

// IncEntriesWritten records a persisted entry for the given action.
func (m *Metrics) IncEntriesWritten(action string) {
	m.EntriesWritten.WithLabelValues(action).Inc()
}

// IncWriteFailures records a dropped audit write.
func (m *Metrics) IncWriteFailures() {
	m.WriteFailures.Inc()
}

// ObserveWrite records the duration of a persistence attempt.
// Call with time.Now() captured at the start of the write.
func (m *Metrics) ObserveWrite(start time.Time) {
	m.WriteDuration.Observe(time.Since(start).Seconds())
}
