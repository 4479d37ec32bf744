// Package metrics exposes the last canonical reading per meter device as
// Prometheus gauges, updated once per poll cycle.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/solarmeter/solarmeter/pkg/types"
)

// Metrics holds the registry and instruments for one process.
type Metrics struct {
	registry *prometheus.Registry

	watts       *prometheus.GaugeVec
	energyKWH   *prometheus.GaugeVec
	lastRefresh *prometheus.GaugeVec
	httpCode    *prometheus.GaugeVec
	failures    *prometheus.CounterVec
}

// Configured sets up the metrics registry.
func Configured() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		watts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarmeter_watts",
			Help: "Current production power in watts",
		}, []string{"device"}),
		energyKWH: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarmeter_energy_kwh",
			Help: "Produced energy in kWh by period",
		}, []string{"device", "period"}),
		lastRefresh: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarmeter_last_refresh_seconds",
			Help: "Unix time of the last accepted reading",
		}, []string{"device"}),
		httpCode: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "solarmeter_vendor_http_code",
			Help: "HTTP status of the last vendor request (0 when it never completed)",
		}, []string{"device"}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "solarmeter_refresh_failures_total",
			Help: "Failed poll cycles by error kind",
		}, []string{"device", "kind"}),
	}
	m.registry.MustRegister(m.watts, m.energyKWH, m.lastRefresh, m.httpCode, m.failures)
	return m
}

// Observe records an accepted reading. Absent fields leave the previous
// gauge value in place.
func (m *Metrics) Observe(device string, r types.Reading) {
	if v, ok := r.Watts.Value(); ok {
		m.watts.WithLabelValues(device).Set(v)
	}
	periods := []struct {
		name  string
		value types.OptFloat
	}{
		{"day", r.DayKWH},
		{"week", r.WeekKWH},
		{"month", r.MonthKWH},
		{"year", r.YearKWH},
		{"life", r.LifeKWH},
	}
	for _, p := range periods {
		if v, ok := p.value.Value(); ok {
			m.energyKWH.WithLabelValues(device, p.name).Set(v)
		}
	}
	m.lastRefresh.WithLabelValues(device).Set(float64(r.Timestamp))
}

// ObserveHTTPCode records the status of the last vendor request.
func (m *Metrics) ObserveHTTPCode(device string, code int) {
	m.httpCode.WithLabelValues(device).Set(float64(code))
}

// RecordFailure counts a failed cycle by error kind.
func (m *Metrics) RecordFailure(device, kind string) {
	m.failures.WithLabelValues(device, kind).Inc()
}

// Handler returns the scrape endpoint for this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
