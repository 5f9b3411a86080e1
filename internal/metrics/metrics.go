package metrics

import (
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDurationSeconds = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	BidsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bids_total",
			Help: "Bid placement attempts by outcome",
		},
		[]string{"outcome"},
	)

	CurrentBidRecomputesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "current_bid_recomputes_total",
			Help: "Number of times the current bid of a round was re-derived",
		},
	)

	AuctionTransitionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_transitions_total",
			Help: "Auction lifecycle transitions by action",
		},
		[]string{"action"},
	)

	ReconciledAuctionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciled_auctions_total",
			Help: "Auctions visited while removing a blocked participant, by outcome",
		},
		[]string{"outcome"},
	)

	EventsPublishedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "auction_events_published_total",
			Help: "Auction events handed to a transport, by result",
		},
		[]string{"transport", "result"},
	)

	WSConnections = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "ws_connections",
			Help: "Current number of active WebSocket subscriptions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDurationSeconds,
		BidsTotal,
		CurrentBidRecomputesTotal,
		AuctionTransitionsTotal,
		ReconciledAuctionsTotal,
		EventsPublishedTotal,
		WSConnections,
	)
}

// ObserveHTTPRequest records metrics for an HTTP request
func ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	code := strconv.Itoa(status)
	HTTPRequestsTotal.WithLabelValues(method, path, code).Inc()
	HTTPRequestDurationSeconds.WithLabelValues(method, path, code).Observe(duration.Seconds())
}
