// Package metrics records scan-run metrics on a private Prometheus registry.
// A nil *Recorder is valid and records nothing.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "semcheck"

// Recorder holds the collectors for one process.
type Recorder struct {
	registry *prometheus.Registry

	rules       *prometheus.CounterVec
	violations  *prometheus.CounterVec
	files       *prometheus.CounterVec
	parseErrors prometheus.Counter
	ruleSeconds *prometheus.HistogramVec
	cache       *prometheus.CounterVec
	comparisons prometheus.Counter
}

// NewRecorder creates a recorder with its own registry.
func NewRecorder() *Recorder {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)

	return &Recorder{
		registry: reg,
		rules: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rules_total",
			Help:      "Rules processed, by outcome status.",
		}, []string{"status"}),
		violations: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violations reported, by rule and severity.",
		}, []string{"rule", "severity"}),
		files: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "files_scanned_total",
			Help:      "Files handed to file-by-file scanners, by family.",
		}, []string{"family"}),
		parseErrors: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "parse_errors_total",
			Help:      "Files skipped because they failed to parse.",
		}),
		ruleSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "rule_duration_seconds",
			Help:      "Wall time spent executing one rule.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 4, 8),
		}, []string{"rule"}),
		cache: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "block_cache_lookups_total",
			Help:      "Duplicate block cache lookups, by result.",
		}, []string{"result"}),
		comparisons: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cross_file_comparisons_total",
			Help:      "Block pairs compared during cross-file passes.",
		}),
	}
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// RuleFinished records one rule outcome.
func (r *Recorder) RuleFinished(rule, status string, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.rules.WithLabelValues(status).Inc()
	r.ruleSeconds.WithLabelValues(rule).Observe(elapsed.Seconds())
}

// Violations adds n violations for rule at severity.
func (r *Recorder) Violations(rule, severity string, n int) {
	if r == nil || n == 0 {
		return
	}
	r.violations.WithLabelValues(rule, severity).Add(float64(n))
}

// FileScanned counts one file handed to a scanner of family.
func (r *Recorder) FileScanned(family string) {
	if r == nil {
		return
	}
	r.files.WithLabelValues(family).Inc()
}

// ParseError counts one skipped file.
func (r *Recorder) ParseError() {
	if r == nil {
		return
	}
	r.parseErrors.Inc()
}

// CacheLookup counts a block cache hit or miss.
func (r *Recorder) CacheLookup(hit bool) {
	if r == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	r.cache.WithLabelValues(result).Inc()
}

// Comparisons adds n cross-file block comparisons.
func (r *Recorder) Comparisons(n int) {
	if r == nil || n == 0 {
		return
	}
	r.comparisons.Add(float64(n))
}

// WriteTextfile writes every collected metric in the text exposition format,
// suitable for the node_exporter textfile collector.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil {
		return nil
	}
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
