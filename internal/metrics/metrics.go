// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

// Package metrics holds the Prometheus collectors for one batch run. The
// pipeline is offline, so metrics are written as a node-exporter textfile
// at the end of the batch instead of being served.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "analog_engine"

// Skip reasons used as the "reason" label of SkippedTotal.
const (
	ReasonNoEmbedding   = "no_embedding"
	ReasonFalsePositive = "false_positive"
	ReasonMalformed     = "malformed_record"
	ReasonEmbedFailed   = "embed_failed"
)

// Batch is the collector set for one batch. Each Batch owns a private
// registry so repeated batches in one process (and tests) do not collide.
type Batch struct {
	registry *prometheus.Registry

	Comparisons     prometheus.Counter
	GenericFiltered prometheus.Counter
	Candidates      prometheus.Counter
	Duplicates      prometheus.Counter
	Embedded        prometheus.Counter
	SkippedTotal    *prometheus.CounterVec
	DuplicationRate prometheus.Gauge
	EmbedDuration   prometheus.Histogram
	BatchDuration   prometheus.Gauge
}

// NewBatch registers all batch collectors on a fresh registry.
func NewBatch() *Batch {
	b := &Batch{
		registry: prometheus.NewRegistry(),
		Comparisons: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "pair_comparisons_total",
			Help: "Cross-domain mechanism pairs scored.",
		}),
		GenericFiltered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "generic_overlap_filtered_total",
			Help: "Pairs skipped because their overlap was generic vocabulary only.",
		}),
		Candidates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "candidates_total",
			Help: "Candidate pairs at or above the confidence threshold.",
		}),
		Duplicates: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "duplicates_total",
			Help: "Candidates removed because the paper pair was already discovered.",
		}),
		Embedded: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Name: "mechanisms_embedded_total",
			Help: "Mechanisms that received an embedding in this batch.",
		}),
		SkippedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Name: "items_skipped_total",
			Help: "Items skipped due to missing or defective data.",
		}, []string{"reason"}),
		DuplicationRate: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "duplication_rate",
			Help: "Fraction of candidates already present in the registry.",
		}),
		EmbedDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace, Name: "embed_call_duration_seconds",
			Help:    "Duration of embedding provider calls.",
			Buckets: []float64{.1, .5, 1, 2, 5, 10, 30, 60, 120},
		}),
		BatchDuration: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Name: "batch_duration_seconds",
			Help: "Wall-clock duration of the batch.",
		}),
	}

	b.registry.MustRegister(
		b.Comparisons, b.GenericFiltered, b.Candidates, b.Duplicates,
		b.Embedded, b.SkippedTotal, b.DuplicationRate, b.EmbedDuration,
		b.BatchDuration,
	)
	return b
}

// Skipped adds n to the skipped counter for reason.
func (b *Batch) Skipped(reason string, n int) {
	if n <= 0 {
		return
	}
	b.SkippedTotal.WithLabelValues(reason).Add(float64(n))
}

// Registry exposes the underlying registry for gathering.
func (b *Batch) Registry() *prometheus.Registry {
	return b.registry
}

// WriteTextfile writes all batch metrics to path in the Prometheus text
// exposition format.
func (b *Batch) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, b.registry); err != nil {
		return fmt.Errorf("writing metrics textfile %s: %w", path, err)
	}
	return nil
}
