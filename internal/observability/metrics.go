package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	FeedEvents = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pakrail_feed_events_total",
		Help: "Live feed events received, by source and kind",
	}, []string{"source", "kind"})
	RecordsApplied = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pakrail_records_applied_total",
		Help: "Normalized train records upserted into the feed store",
	})
	RecordsChanged = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pakrail_records_changed_total",
		Help: "Upserts that changed a stored record",
	})
	ParseFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pakrail_parse_failures_total",
		Help: "Train instances dropped for unparseable coordinates",
	})
	PlaceholdersServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pakrail_placeholders_installed_total",
		Help: "Times the degradation controller filled an empty store",
	})
	SourceSwitches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pakrail_source_fallbacks_total",
		Help: "Switches to the secondary HTTP source",
	})
	StoredRecords = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pakrail_store_records",
		Help: "Records currently held by the feed store",
	})
	CatalogRefreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pakrail_catalog_refreshes_total",
		Help: "Static catalog refresh attempts, by result",
	}, []string{"result"})
	WSClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "pakrail_ws_clients",
		Help: "Connected websocket clients",
	})
	RateLimited = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pakrail_http_rate_limited_total",
		Help: "HTTP requests rejected by the rate limiter",
	})
	BatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "pakrail_batch_apply_seconds",
		Help:    "Time to normalize and apply one feed event",
		Buckets: prometheus.DefBuckets,
	})
)

func ObserveBatchLatency(start time.Time) {
	BatchLatency.Observe(time.Since(start).Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
