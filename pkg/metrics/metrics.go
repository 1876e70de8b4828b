// Package metrics exposes Prometheus instruments for materialization and the
// spill machinery.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "setexec"

// Metrics groups the instruments one session updates. All fields are safe to
// use from any goroutine.
type Metrics struct {
	Materializations   *prometheus.CounterVec
	RowsMaterialized   prometheus.Counter
	Spills             prometheus.Counter
	SecondaryOverflows prometheus.Counter
	SingleRowFallbacks prometheus.Counter
	ChunkRowsWritten   prometheus.Counter
	ChunkBytesWritten  prometheus.Counter
	ChunkFilesOpen     prometheus.Gauge
	RowStorePromotions prometheus.Counter
	HashMapBytes       prometheus.Gauge
}

// New builds the instruments and registers them on reg. A nil reg leaves them
// unregistered, which is what tests and one-shot tools usually want.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Materializations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "materializations_total",
			Help:      "Number of materializations run, by operation.",
		}, []string{"operation"}),
		RowsMaterialized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_materialized_total",
			Help:      "Rows written to materialization row stores.",
		}),
		Spills: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "spills_total",
			Help:      "Set operations whose hash map overflowed to chunk files.",
		}),
		SecondaryOverflows: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "secondary_overflows_total",
			Help:      "Spills that overflowed again and fell back to index deduplication.",
		}),
		SingleRowFallbacks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "single_row_fallbacks_total",
			Help:      "Set operations that met a row larger than the whole hash buffer.",
		}),
		ChunkRowsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_rows_written_total",
			Help:      "Rows appended to chunk files.",
		}),
		ChunkBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "chunk_bytes_written_total",
			Help:      "Bytes appended to chunk files.",
		}),
		ChunkFilesOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "chunk_files_open",
			Help:      "Chunk files currently open.",
		}),
		RowStorePromotions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "row_store_promotions_total",
			Help:      "Row stores moved from memory to disk.",
		}),
		HashMapBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "hash_map_bytes",
			Help:      "Arena bytes held by the active hash deduplication map.",
		}),
	}

	if reg != nil {
		reg.MustRegister(m.collectors()...)
	}
	return m
}

func (m *Metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{
		m.Materializations,
		m.RowsMaterialized,
		m.Spills,
		m.SecondaryOverflows,
		m.SingleRowFallbacks,
		m.ChunkRowsWritten,
		m.ChunkBytesWritten,
		m.ChunkFilesOpen,
		m.RowStorePromotions,
		m.HashMapBytes,
	}
}
