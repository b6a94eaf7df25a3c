package network

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	providerInFlight = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "cashtx",
			Subsystem: "network",
			Name:      "requests_in_flight",
			Help:      "Requests currently holding the provider connection open",
		},
	)

	providerConnectsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cashtx",
			Subsystem: "network",
			Name:      "connects_total",
			Help:      "Cluster connect attempts by outcome",
		},
		[]string{"outcome"},
	)

	providerDisconnectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "cashtx",
			Subsystem: "network",
			Name:      "disconnects_total",
			Help:      "Cluster disconnects",
		},
	)

	providerRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "cashtx",
			Subsystem: "network",
			Name:      "requests_total",
			Help:      "Requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)
)

// RegisterMetrics registers the provider collectors with reg. Collectors
// that are already registered are skipped.
func RegisterMetrics(reg prometheus.Registerer) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	for _, c := range []prometheus.Collector{
		providerInFlight, providerConnectsTotal, providerDisconnectsTotal, providerRequestsTotal,
	} {
		if err := reg.Register(c); err != nil {
			var already prometheus.AlreadyRegisteredError
			if !errors.As(err, &already) {
				return err
			}
		}
	}
	return nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
