package poller

import "github.com/prometheus/client_golang/prometheus"

type metrics struct {
	cycles           *prometheus.CounterVec
	duration         prometheus.Histogram
	endpointFailures *prometheus.CounterVec
}

func newMetrics() *metrics {
	return &metrics{
		cycles: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hanbridge",
				Name:      "poll_cycles_total",
				Help:      "Poll cycles by result (success or failure)",
			},
			[]string{"result"},
		),
		duration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "hanbridge",
				Name:      "poll_duration_seconds",
				Help:      "Time taken by a poll cycle",
				Buckets:   []float64{.01, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
		),
		endpointFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "hanbridge",
				Name:      "endpoint_failures_total",
				Help:      "Failed fetches by endpoint",
			},
			[]string{"endpoint"},
		),
	}
}
