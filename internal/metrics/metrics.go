// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics exposes Prometheus collectors for batch activity.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "unobtrude"

// Metrics reports batch runs, file outcomes and rewritten handlers. A nil
// *Metrics is valid and records nothing.
type Metrics struct {
	batches       *prometheus.CounterVec
	files         *prometheus.CounterVec
	handlers      *prometheus.CounterVec
	batchDuration prometheus.Histogram
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		batches: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "batches_total",
				Help:      "Batches processed, by final status.",
			},
			[]string{"status"},
		),
		files: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_total",
				Help:      "Uploaded files, by outcome (converted or skipped).",
			},
			[]string{"outcome"},
		),
		handlers: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "handlers_rewritten_total",
				Help:      "Inline handler attributes rewritten, by attribute.",
			},
			[]string{"event"},
		),
		batchDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "batch_duration_seconds",
				Help:      "Time from upload receipt to archive assembly.",
				Buckets:   prometheus.DefBuckets,
			},
		),
	}
	for _, c := range []prometheus.Collector{m.batches, m.files, m.handlers, m.batchDuration} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

// ObserveBatch records one finished batch.
func (m *Metrics) ObserveBatch(status string, d time.Duration) {
	if m == nil {
		return
	}
	m.batches.WithLabelValues(status).Inc()
	m.batchDuration.Observe(d.Seconds())
}

// AddFiles records converted and skipped file counts.
func (m *Metrics) AddFiles(converted, skipped int) {
	if m == nil {
		return
	}
	m.files.WithLabelValues("converted").Add(float64(converted))
	m.files.WithLabelValues("skipped").Add(float64(skipped))
}

// IncHandler records one rewritten handler attribute.
func (m *Metrics) IncHandler(event string) {
	if m == nil {
		return
	}
	m.handlers.WithLabelValues(event).Inc()
}
