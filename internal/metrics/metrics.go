// Package metrics defines the Prometheus collectors exported by the service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Orphan kinds reported by the upload path and the reconciler.
const (
	OrphanStorage = "storage"
	OrphanRow     = "row"
)

var (
	// HTTPRequestsTotal counts every request by method, route pattern and status.
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and route pattern.
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gallery_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// UploadsTotal counts upload attempts by outcome: ok, rejected, storage_error, insert_error.
	UploadsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_uploads_total",
			Help: "Image uploads by outcome",
		},
		[]string{"outcome"},
	)

	// DeletesTotal counts completed deletions.
	DeletesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_deletes_total",
			Help: "Image records deleted",
		},
	)

	// OrphansTotal counts orphans created by failed uploads, by kind.
	OrphansTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_orphans_total",
			Help: "Orphans left behind by failed writes",
		},
		[]string{"kind"},
	)

	// OrphansObserved holds the orphan count found by the latest reconcile sweep.
	OrphansObserved = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "gallery_orphans_observed",
			Help: "Storage objects without a row, or rows without an object, at the last sweep",
		},
		[]string{"kind"},
	)

	// OrphansRemovedTotal counts storage orphans deleted by the reconciler.
	OrphansRemovedTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_orphans_removed_total",
			Help: "Storage orphans removed by reconcile sweeps",
		},
	)

	// StorageRemoveFailuresTotal counts best-effort object removals that failed during delete.
	StorageRemoveFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_storage_remove_failures_total",
			Help: "Object removals that failed while deleting an image",
		},
	)

	// SignedURLFailuresTotal counts listing entries rendered as unavailable.
	SignedURLFailuresTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_signed_url_failures_total",
			Help: "Signed URL requests that failed during a listing fetch",
		},
	)

	// SignedURLCacheTotal counts signed URL cache lookups by result: hit or miss.
	SignedURLCacheTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "gallery_signed_url_cache_total",
			Help: "Signed URL cache lookups",
		},
		[]string{"result"},
	)

	// StaleListingsTotal counts listing results discarded because a newer fetch superseded them.
	StaleListingsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "gallery_stale_listings_total",
			Help: "Listing results discarded as stale",
		},
	)
)
