package jobmetrics

import (
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTrackerRecordsOutcome(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())

	require.NoError(t, m.Track("backup_create").End(nil))
	boom := errors.New("boom")
	assert.ErrorIs(t, m.Track("backup_create").End(boom), boom)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("backup_create", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.runs.WithLabelValues("backup_create", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.failures.WithLabelValues("backup_create")))
}

func TestBackupSizeGauge(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	m.SetLastBackupSize(2048)
	m.SetLastBackupSize(-1)
	assert.Equal(t, 2048.0, testutil.ToFloat64(m.backupBytes))
}

func TestNilMetricsTracker(t *testing.T) {
	var m *Metrics
	err := errors.New("x")
	assert.Equal(t, err, m.Track("noop").End(err))
	m.SetLastBackupSize(10)
}
