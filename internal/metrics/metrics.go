package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors of the link and offer pipeline.
// All Record methods are safe on a nil receiver.
type Metrics struct {
	// Links
	LinksProcessedTotal    *prometheus.CounterVec
	AffiliateFallbackTotal *prometheus.CounterVec
	LinkProcessingDuration prometheus.Histogram

	// Dedup
	DedupChecksTotal *prometheus.CounterVec

	// Publishing
	OffersPublishedTotal *prometheus.CounterVec
	PublishErrorsTotal   *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	defaultOnce    sync.Once
)

// Default returns the collectors registered on the global Prometheus registry
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultMetrics = New(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

// New registers a fresh set of collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		LinksProcessedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promolink_links_processed_total",
				Help: "Links handled by the link processor by merchant and result",
			},
			[]string{"merchant", "result"},
		),

		AffiliateFallbackTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promolink_affiliate_fallbacks_total",
				Help: "Affiliate conversions that used the local fallback URL",
			},
			[]string{"merchant"},
		),

		LinkProcessingDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "promolink_link_processing_duration_seconds",
				Help:    "Time spent resolving all links of one message",
				Buckets: prometheus.ExponentialBuckets(0.05, 2, 10), // 50ms .. ~25s
			},
		),

		DedupChecksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promolink_dedup_checks_total",
				Help: "Duplicate checks by result",
			},
			[]string{"result"},
		),

		OffersPublishedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promolink_offers_published_total",
				Help: "Offers published by destination channel",
			},
			[]string{"channel"},
		),

		PublishErrorsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "promolink_publish_errors_total",
				Help: "Failed publish attempts by destination channel",
			},
			[]string{"channel"},
		),
	}
}

// RecordLink counts one processed link
func (m *Metrics) RecordLink(merchant, result string) {
	if m == nil {
		return
	}
	m.LinksProcessedTotal.WithLabelValues(merchant, result).Inc()
}

// RecordFallback counts a conversion that fell back to a locally built URL
func (m *Metrics) RecordFallback(merchant string) {
	if m == nil {
		return
	}
	m.AffiliateFallbackTotal.WithLabelValues(merchant).Inc()
}

// ObserveLinkProcessing records how long one ProcessAndReplace call took
func (m *Metrics) ObserveLinkProcessing(d time.Duration) {
	if m == nil {
		return
	}
	m.LinkProcessingDuration.Observe(d.Seconds())
}

// RecordDedup counts a duplicate check; result is "duplicate", "fuzzy_duplicate" or "unique"
func (m *Metrics) RecordDedup(result string) {
	if m == nil {
		return
	}
	m.DedupChecksTotal.WithLabelValues(result).Inc()
}

// RecordPublished counts a successful publish
func (m *Metrics) RecordPublished(channel string) {
	if m == nil {
		return
	}
	m.OffersPublishedTotal.WithLabelValues(channel).Inc()
}

// RecordPublishError counts a failed publish
func (m *Metrics) RecordPublishError(channel string) {
	if m == nil {
		return
	}
	m.PublishErrorsTotal.WithLabelValues(channel).Inc()
}
