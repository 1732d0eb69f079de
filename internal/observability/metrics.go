package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "timereports"

// Metrics holds the Prometheus counters and gauges for the alarm pipeline.
type Metrics struct {
	// labels: trigger={poller,platform,manual}, kind={sound,notification}
	Dispatched *prometheus.CounterVec
	// labels: trigger
	DispatchNoop *prometheus.CounterVec
	// labels: kind
	DeliveryFailures *prometheus.CounterVec
	// labels: outcome={scheduled,cancelled,error}
	Registrations *prometheus.CounterVec
	// labels: outcome={scheduled,skipped,failed}
	Recovered *prometheus.CounterVec

	PollerTicks   prometheus.Counter
	PollerRunning prometheus.Gauge
	ActiveAlarms  prometheus.Gauge
}

func newMetrics() *Metrics {
	return &Metrics{
		Dispatched: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_dispatched_total",
			Help:      "Alarms delivered, by trigger path and kind.",
		}, []string{"trigger", "kind"}),
		DispatchNoop: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_dispatch_noop_total",
			Help:      "Dispatch attempts absorbed because the alarm was gone or already fired.",
		}, []string{"trigger"}),
		DeliveryFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_delivery_failures_total",
			Help:      "Sound or notification deliveries that returned an error.",
		}, []string{"kind"}),
		Registrations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_registrations_total",
			Help:      "Platform wake registrations by outcome.",
		}, []string{"outcome"}),
		Recovered: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_recovered_total",
			Help:      "Records processed by boot recovery, by outcome.",
		}, []string{"outcome"}),
		PollerTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "alarms_poller_ticks_total",
			Help:      "Minute-boundary ticks handled by the clock poller.",
		}),
		PollerRunning: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "poller_running",
			Help:      "1 while the clock poller loop is active, 0 otherwise.",
		}),
		ActiveAlarms: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "alarms_active",
			Help:      "Alarms currently armed in the store.",
		}),
	}
}

// NewMetrics creates and registers all metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := newMetrics()
	prometheus.MustRegister(
		m.Dispatched,
		m.DispatchNoop,
		m.DeliveryFailures,
		m.Registrations,
		m.Recovered,
		m.PollerTicks,
		m.PollerRunning,
		m.ActiveAlarms,
	)
	return m
}

// NewMetricsForTesting creates Metrics that are not registered anywhere, so
// tests can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return newMetrics()
}
