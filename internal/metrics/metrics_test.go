package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordLink("amazon", "converted")
	m.RecordLink("amazon", "converted")
	m.RecordLink("unknown", "blacklisted")
	m.RecordFallback("shopee")
	m.RecordDedup("duplicate")
	m.RecordPublished("telegram")
	m.ObserveLinkProcessing(120 * time.Millisecond)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.LinksProcessedTotal.WithLabelValues("amazon", "converted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.LinksProcessedTotal.WithLabelValues("unknown", "blacklisted")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.AffiliateFallbackTotal.WithLabelValues("shopee")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DedupChecksTotal.WithLabelValues("duplicate")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OffersPublishedTotal.WithLabelValues("telegram")))
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordLink("amazon", "converted")
		m.RecordFallback("amazon")
		m.RecordDedup("unique")
		m.RecordPublished("telegram")
		m.RecordPublishError("telegram")
		m.ObserveLinkProcessing(time.Second)
	})
}
