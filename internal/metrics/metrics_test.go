package metrics

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Record(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.RecordScan("tree", 10*time.Millisecond, nil)
	m.RecordScan("tree", time.Millisecond, errors.New("boom"))
	m.RecordFiles(2)
	m.RecordFileErrors(1)
	m.RecordFinding("aws-access-key", "high")
	m.RecordSuppressed("baseline")
	m.RecordRepair("repaired", 2)
	m.RecordRepair("stale", 0)
	m.SetBaselineEntries(5)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("tree", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ScansTotal.WithLabelValues("tree", "error")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FilesScannedTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FileErrorsTotal))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FindingsTotal.WithLabelValues("aws-access-key", "high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SuppressedTotal.WithLabelValues("baseline")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RepairsTotal.WithLabelValues("repaired")))
	// A zero-count outcome creates no series.
	assert.Equal(t, 1, testutil.CollectAndCount(m.RepairsTotal))
	assert.Equal(t, 5.0, testutil.ToFloat64(m.BaselineEntries))
	assert.Equal(t, 1, testutil.CollectAndCount(m.ScanDuration))
}

func TestMetrics_Nil(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordScan("diff", time.Second, nil)
		m.RecordFiles(1)
		m.RecordFileErrors(1)
		m.RecordFinding("jwt", "low")
		m.RecordSuppressed("placeholder")
		m.RecordRepair("error", 1)
		m.SetBaselineEntries(1)
	})
}

func TestDefault_Once(t *testing.T) {
	assert.Same(t, Default(), Default())
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.RecordFiles(1)

	path := filepath.Join(t.TempDir(), "sieve.prom")
	require.NoError(t, WriteTextfile(path, reg))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "sieve_files_scanned_total 1")
}
