package wallet

import (
	"errors"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/tarancss/stakewallet/lib/block/types"
)

// metrics holds the collectors of the wallet service.
type metrics struct {
	requests *prometheus.CounterVec
	lookups  *prometheus.CounterVec
	latency  prometheus.Histogram
}

func newMetrics(reg prometheus.Registerer) *metrics {
	m := &metrics{
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakewallet",
			Name:      "http_requests_total",
			Help:      "HTTP requests served by route and status code.",
		}, []string{"route", "method", "status"}),
		lookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "stakewallet",
			Name:      "account_lookups_total",
			Help:      "Account lookups against the indexer by outcome.",
		}, []string{"outcome"}),
		latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "stakewallet",
			Name:      "account_lookup_duration_seconds",
			Help:      "Latency of account lookups against the indexer.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	reg.MustRegister(m.requests, m.lookups, m.latency)

	return m
}

func (m *metrics) request(route, method string, status int) {
	m.requests.WithLabelValues(route, method, strconv.Itoa(status)).Inc()
}

// lookup records the outcome of an account lookup: ok, upstream, parse or error.
func (m *metrics) lookup(err error, d time.Duration) {
	m.latency.Observe(d.Seconds())

	outcome := "ok"

	var le *types.LookupError

	switch {
	case err == nil:
	case errors.As(err, &le):
		outcome = le.Kind.String()
	default:
		outcome = "error"
	}

	m.lookups.WithLabelValues(outcome).Inc()
}
