package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PageFetchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelight_page_fetches_total",
			Help: "Total observation page fetches against the iNaturalist API",
		},
		[]string{"status"},
	)

	ObservationsUpserted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifelight_observations_upserted_total",
			Help: "Total observations committed to the local store",
		},
	)

	RecordsSkipped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lifelight_records_skipped_total",
			Help: "Total wire records rejected during normalization",
		},
	)

	SyncCyclesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "lifelight_sync_cycles_total",
			Help: "Total sync cycles by outcome",
		},
		[]string{"status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "lifelight_sync_duration_seconds",
			Help:    "Duration of a full sync cycle in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)
)
