package metric

import "github.com/prometheus/client_golang/prometheus"

// StatsSource supplies values that are read at scrape time.
type StatsSource interface {
	KeyCount() int
	AOFOffset() int64
}

// Collector reports keyspace and log gauges straight from the engine so
// they never go stale between commands.
type Collector struct {
	src       StatsSource
	keys      *prometheus.Desc
	aofOffset *prometheus.Desc
}

// NewCollector creates a collector reading from src.
func NewCollector(src StatsSource) *Collector {
	return &Collector{
		src: src,
		keys: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "keys"),
			"Keys currently holding an entry.", nil, nil),
		aofOffset: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "aof_offset_bytes"),
			"Size of the append-only log including buffered bytes.", nil, nil),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.keys
	ch <- c.aofOffset
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ch <- prometheus.MustNewConstMetric(c.keys, prometheus.GaugeValue, float64(c.src.KeyCount()))
	ch <- prometheus.MustNewConstMetric(c.aofOffset, prometheus.GaugeValue, float64(c.src.AOFOffset()))
}
