package perf

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	jobmetrics "github.com/logiflow/logiflow/internal/jobs"
	"github.com/logiflow/logiflow/jobs"
)

func TestBackupJobThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)

	for i := 0; i < 40; i++ {
		tracker := metrics.Track(jobs.TaskBackupCreate)
		time.Sleep(2 * time.Millisecond)
		if err := tracker.End(nil); err != nil {
			t.Fatalf("unexpected error ending backup tracker: %v", err)
		}
	}
	metrics.SetLastBackupSize(8 << 20)

	// A couple of failed snapshots must still surface as failures.
	for i := 0; i < 2; i++ {
		tracker := metrics.Track(jobs.TaskBackupCreate)
		if err := tracker.End(errors.New("snapshot timeout")); err == nil {
			t.Fatal("expected error to propagate")
		}
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	success := metricValue(t, families, "logiflow_jobs_total", map[string]string{"job": jobs.TaskBackupCreate, "status": "success"})
	failure := metricValue(t, families, "logiflow_jobs_total", map[string]string{"job": jobs.TaskBackupCreate, "status": "failure"})
	if success+failure == 0 {
		t.Fatal("no backup executions recorded")
	}
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("backup success ratio too low: %f", ratio)
	}
	if failed := metricValue(t, families, "logiflow_jobs_failures_total", map[string]string{"job": jobs.TaskBackupCreate}); failed != 2 {
		t.Fatalf("expected 2 failures, got %f", failed)
	}
	if size := metricValue(t, families, "logiflow_backup_last_size_bytes", nil); size != 8<<20 {
		t.Fatalf("unexpected last backup size %f", size)
	}

	if mean := histogramMean(t, families, "logiflow_job_duration_seconds", map[string]string{"job": jobs.TaskBackupCreate}); mean > 0.5 {
		t.Fatalf("backup duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for _, lp := range metric.GetLabel() {
		if val, ok := labels[lp.GetName()]; ok {
			if lp.GetValue() != val {
				return false
			}
		}
	}
	for key := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
