// Package prometheus bridges the engine's counters into a Prometheus
// registry. The engine stays free of any scraping dependency; this package
// adapts its snapshot API to the collector model.
package prometheus

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/altavault/authcore"
)

// Source is anything that can produce a counter snapshot. *authcore.Engine
// satisfies it.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
}

// Collector exposes engine counters as Prometheus counter metrics named
// authcore_<counter>_total. Register it with any prometheus.Registerer:
//
//	reg.MustRegister(authprom.NewCollector(engine))
type Collector struct {
	source Source
	descs  map[authcore.MetricID]*prometheus.Desc
}

var _ prometheus.Collector = (*Collector)(nil)

// NewCollector builds a collector over the given source.
func NewCollector(source Source) *Collector {
	ids := authcore.MetricIDs()
	descs := make(map[authcore.MetricID]*prometheus.Desc, len(ids))
	for _, id := range ids {
		descs[id] = prometheus.NewDesc(
			"authcore_"+id.String()+"_total",
			"Total "+id.String()+" events.",
			nil, nil,
		)
	}
	return &Collector{source: source, descs: descs}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range c.descs {
		ch <- d
	}
}

// Collect implements prometheus.Collector. Counters only ever increase, so
// the point-in-time snapshot values are safe to report as counter samples.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot := c.source.MetricsSnapshot()
	for id, d := range c.descs {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(snapshot[id]))
	}
}
