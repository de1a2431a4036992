// Package metrics provides Prometheus metrics for scans and repairs.
package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "sieve"

var (
	globalMetrics *Metrics
	metricsOnce   sync.Once
)

// Metrics holds Prometheus metrics for the detection and repair engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	ScansTotal        *prometheus.CounterVec
	ScanDuration      *prometheus.HistogramVec
	FilesScannedTotal prometheus.Counter
	FileErrorsTotal   prometheus.Counter
	FindingsTotal     *prometheus.CounterVec
	SuppressedTotal   *prometheus.CounterVec
	RepairsTotal      *prometheus.CounterVec
	BaselineEntries   prometheus.Gauge
}

// Default returns the metrics registered with the default registry.
//
// sync.Once guards registration so repeated calls never panic with
// "duplicate metrics collector registration".
func Default() *Metrics {
	metricsOnce.Do(func() {
		globalMetrics = New(prometheus.DefaultRegisterer)
	})
	return globalMetrics
}

// New creates metrics registered with reg.
//
// Metrics:
//   - sieve_scans_total{mode,result} - scan passes by mode (tree, diff, text)
//   - sieve_scan_duration_seconds{mode} - scan pass duration
//   - sieve_files_scanned_total - files read and scanned
//   - sieve_file_errors_total - per-file read or parse errors
//   - sieve_findings_total{rule,severity} - surfaced findings
//   - sieve_findings_suppressed_total{reason} - findings hidden from output
//   - sieve_repairs_total{result} - repair outcomes per finding
//   - sieve_baseline_entries - entries in the loaded baseline
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		ScansTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "scans_total",
				Help:      "Total number of scan passes",
			},
			[]string{"mode", "result"},
		),
		ScanDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "scan_duration_seconds",
				Help:      "Duration of scan passes in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14), // 1ms to ~8s
			},
			[]string{"mode"},
		),
		FilesScannedTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "files_scanned_total",
				Help:      "Total number of files scanned",
			},
		),
		FileErrorsTotal: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "file_errors_total",
				Help:      "Total number of per-file scan errors",
			},
		),
		FindingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_total",
				Help:      "Total number of surfaced findings",
			},
			[]string{"rule", "severity"},
		),
		SuppressedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "findings_suppressed_total",
				Help:      "Total number of findings suppressed from output",
			},
			[]string{"reason"},
		),
		RepairsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "repairs_total",
				Help:      "Total number of repair outcomes per finding",
			},
			[]string{"result"}, // "repaired", "stale", "overlap", "error"
		),
		BaselineEntries: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "baseline_entries",
				Help:      "Number of entries in the loaded baseline",
			},
		),
	}
}

// RecordScan records a finished scan pass.
func (m *Metrics) RecordScan(mode string, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	result := "success"
	if err != nil {
		result = "error"
	}
	m.ScansTotal.WithLabelValues(mode, result).Inc()
	m.ScanDuration.WithLabelValues(mode).Observe(elapsed.Seconds())
}

// RecordFiles records n scanned files.
func (m *Metrics) RecordFiles(n int) {
	if m == nil {
		return
	}
	m.FilesScannedTotal.Add(float64(n))
}

// RecordFileErrors records n per-file errors.
func (m *Metrics) RecordFileErrors(n int) {
	if m == nil {
		return
	}
	m.FileErrorsTotal.Add(float64(n))
}

// RecordFinding records one surfaced finding.
func (m *Metrics) RecordFinding(rule, severity string) {
	if m == nil {
		return
	}
	m.FindingsTotal.WithLabelValues(rule, severity).Inc()
}

// RecordSuppressed records one suppressed finding.
func (m *Metrics) RecordSuppressed(reason string) {
	if m == nil {
		return
	}
	m.SuppressedTotal.WithLabelValues(reason).Inc()
}

// RecordRepair records n repair outcomes with the given result.
func (m *Metrics) RecordRepair(result string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.RepairsTotal.WithLabelValues(result).Add(float64(n))
}

// SetBaselineEntries updates the baseline size gauge.
func (m *Metrics) SetBaselineEntries(n int) {
	if m == nil {
		return
	}
	m.BaselineEntries.Set(float64(n))
}

// WriteTextfile writes every metric in g to path in the text exposition
// format, for node_exporter's textfile collector in CI.
func WriteTextfile(path string, g prometheus.Gatherer) error {
	if err := prometheus.WriteToTextfile(path, g); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
