package stats

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	sourceCache    = "cache"
	sourceUpstream = "upstream"
	sourceConfig   = "config"
)

var (
	snapshotResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wakatime_snapshot_responses_total",
			Help: "Snapshot envelopes served, by status and where the data came from",
		},
		[]string{"status", "source"},
	)

	upstreamFetchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wakatime_upstream_fetch_duration_seconds",
			Help:    "Duration of upstream refreshes in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"result"},
	)

	sharedRefreshes = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "wakatime_shared_refreshes_total",
			Help: "Requests that joined a refresh already in flight instead of starting one",
		},
	)
)
