// Package observability exposes prometheus counters for pipeline progress.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	assetsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacgen_assets_processed_total",
			Help: "Assets processed, by format-check outcome.",
		},
		[]string{"outcome"},
	)

	listPages = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stacgen_list_pages_total",
			Help: "Listing pages fetched from the source bucket.",
		},
	)

	conversions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "stacgen_cog_conversions_total",
			Help: "COG conversions attempted, by result.",
		},
		[]string{"result"},
	)

	sidecarFieldFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stacgen_sidecar_field_failures_total",
			Help: "Sidecar metadata fields that could not be extracted.",
		},
	)

	documentsPublished = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stacgen_documents_published_total",
			Help: "Catalog documents uploaded to the output bucket.",
		},
	)

	lintFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "stacgen_lint_failures_total",
			Help: "Documents that failed schema validation.",
		},
	)

	buildInfo = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "stacgen_build_info",
			Help: "Build information for the binary.",
		},
		[]string{"version"},
	)
)

func ObserveAsset(outcome string) { assetsProcessed.WithLabelValues(outcome).Inc() }

func ObserveListPage() { listPages.Inc() }

func ObserveConversion(result string) { conversions.WithLabelValues(result).Inc() }

func ObserveSidecarFieldFailure() { sidecarFieldFailures.Inc() }

func ObserveDocumentPublished() { documentsPublished.Inc() }

func ObserveLintFailure() { lintFailures.Inc() }

func ExposeBuildInfo(version string) {
	if version == "" {
		version = "dev"
	}
	buildInfo.WithLabelValues(version).Set(1)
}
