// Package metrics exposes a stats.Collector's counters as Prometheus
// metrics, for processes that keep a mapbuffer.Reader or Builder open for
// a long time and want it scraped rather than logged.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mapbufr/mapbuffer/pkg/mapbuffer/stats"
)

// operations lists every stats.Operation a Recorder reports a series for,
// even ones that have never been tracked, so a scrape always returns a
// stable set of label values.
var operations = []stats.Operation{stats.OpBuild, stats.OpGet, stats.OpContains, stats.OpIterate, stats.OpValidate}

// Recorder registers a Prometheus collector that reads a stats.Collector
// on every scrape. It implements prometheus.Collector directly rather than
// pushing values eagerly, since a Collector's counters are cheap to read
// and this avoids a duplicate bookkeeping layer.
type Recorder struct {
	stats *stats.Collector

	opDuration *prometheus.Desc
	opCount    *prometheus.Desc
	hitRatio   *prometheus.Desc
	bytesRead  *prometheus.Desc
	bytesBuilt *prometheus.Desc
	errorCount *prometheus.Desc
}

// NewRecorder wraps s. A nil s is valid; every collected metric reports
// zero.
func NewRecorder(s *stats.Collector) *Recorder {
	return &Recorder{
		stats: s,
		opDuration: prometheus.NewDesc(
			"mapbuffer_operation_latency_seconds",
			"Average observed latency of a mapbuffer operation.",
			[]string{"op"}, nil,
		),
		opCount: prometheus.NewDesc(
			"mapbuffer_operation_total",
			"Number of times a mapbuffer operation has been invoked.",
			[]string{"op"}, nil,
		),
		hitRatio: prometheus.NewDesc(
			"mapbuffer_lookup_hit_ratio",
			"Fraction of Get/Contains calls that found their key.",
			nil, nil,
		),
		bytesRead: prometheus.NewDesc(
			"mapbuffer_bytes_read_total",
			"Cumulative bytes read from data regions by Get and iteration.",
			nil, nil,
		),
		bytesBuilt: prometheus.NewDesc(
			"mapbuffer_bytes_built_total",
			"Cumulative bytes produced by Build.",
			nil, nil,
		),
		errorCount: prometheus.NewDesc(
			"mapbuffer_errors_total",
			"Number of operations that failed, by error kind.",
			[]string{"kind"}, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (r *Recorder) Describe(ch chan<- *prometheus.Desc) {
	ch <- r.opDuration
	ch <- r.opCount
	ch <- r.hitRatio
	ch <- r.bytesRead
	ch <- r.bytesBuilt
	ch <- r.errorCount
}

// Collect implements prometheus.Collector.
func (r *Recorder) Collect(ch chan<- prometheus.Metric) {
	for _, op := range operations {
		snap := r.stats.Snapshot(op)
		ch <- prometheus.MustNewConstMetric(r.opCount, prometheus.CounterValue, float64(snap.Count), string(op))
		if snap.Count > 0 {
			avgSeconds := float64(snap.AvgNs) / 1e9
			ch <- prometheus.MustNewConstMetric(r.opDuration, prometheus.GaugeValue, avgSeconds, string(op))
		}
	}

	hits, misses := r.stats.HitsMisses()
	if total := hits + misses; total > 0 {
		ch <- prometheus.MustNewConstMetric(r.hitRatio, prometheus.GaugeValue, float64(hits)/float64(total))
	}

	read, built := r.stats.BytesReadBuilt()
	ch <- prometheus.MustNewConstMetric(r.bytesRead, prometheus.CounterValue, float64(read))
	ch <- prometheus.MustNewConstMetric(r.bytesBuilt, prometheus.CounterValue, float64(built))

	for kind, count := range r.stats.Errors() {
		ch <- prometheus.MustNewConstMetric(r.errorCount, prometheus.CounterValue, float64(count), kind)
	}
}
