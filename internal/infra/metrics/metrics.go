// Package metrics holds the Prometheus collectors for the reminder scan cycle.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "reminder"

// Recorder implements app.Metrics on top of Prometheus collectors.
type Recorder struct {
	dispatchTotal    *prometheus.CounterVec
	dispatchDuration prometheus.Histogram
	scanCycles       prometheus.Counter
	scanDuration     prometheus.Histogram
}

// NewRecorder registers the collectors on reg. Pass prometheus.DefaultRegisterer in main
// and a fresh prometheus.NewRegistry() in tests.
func NewRecorder(reg prometheus.Registerer) *Recorder {
	factory := promauto.With(reg)
	return &Recorder{
		dispatchTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_total",
				Help:      "Reminder dispatch attempts by outcome.",
			},
			[]string{"outcome"}, // sent, failed, claim_lost, store_error
		),
		dispatchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "dispatch_duration_seconds",
				Help:      "Time spent in the notification provider per reminder.",
				Buckets:   prometheus.DefBuckets,
			},
		),
		scanCycles: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scan_cycles_total",
				Help:      "Completed scheduler scan cycles.",
			},
		),
		scanDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_cycle_duration_seconds",
				Help:      "Duration of a full scan cycle.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
}

func (r *Recorder) ObserveDispatch(outcome string, took time.Duration) {
	r.dispatchTotal.WithLabelValues(outcome).Inc()
	if took > 0 {
		r.dispatchDuration.Observe(took.Seconds())
	}
}

func (r *Recorder) ObserveScanCycle(took time.Duration) {
	r.scanCycles.Inc()
	r.scanDuration.Observe(took.Seconds())
}
