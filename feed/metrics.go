package feed

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	mergesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentfeed_feed_merges_total",
		Help: "The total number of pages merged into a feed",
	})
	mergeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentfeed_feed_invalid_timestamps_total",
		Help: "The total number of merges aborted because of an invalid timestamp",
	})
	pagesFetched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "contentfeed_feed_pages_fetched_total",
		Help: "The total number of pages fetched from the document store",
	}, []string{"kind"})
	fetchFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentfeed_feed_fetch_failures_total",
		Help: "The total number of page fetches that failed in the document store",
	})
	staleResults = promauto.NewCounter(prometheus.CounterOpts{
		Name: "contentfeed_feed_stale_results_total",
		Help: "Fetch results discarded because the feed was reset or closed meanwhile",
	})
)
