package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsPerJobSeries(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewCronJobMetrics(reg)

	m.ObserveDuration("settlement", 250*time.Millisecond)
	m.IncSuccess("settlement")
	m.IncSuccess("settlement")
	m.IncFailure("outbox-retention")
	m.IncSkipped("settlement")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}

	counters := []struct {
		name string
		job  string
		want float64
	}{
		{"marketledger_cron_job_success_total", "settlement", 2},
		{"marketledger_cron_job_failure_total", "outbox-retention", 1},
		{"marketledger_cron_job_skipped_total", "settlement", 1},
	}
	for _, c := range counters {
		got, err := fetchCounterValue(mfs, c.name, "job", c.job)
		if err != nil {
			t.Fatalf("%s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s{job=%s} = %v, want %v", c.name, c.job, got, c.want)
		}
	}

	sum, err := fetchHistogramSum(mfs, "marketledger_cron_job_duration_seconds", "job", "settlement")
	if err != nil {
		t.Fatalf("duration: %v", err)
	}
	if sum != 0.25 {
		t.Fatalf("duration sum = %v, want 0.25", sum)
	}
}

func TestCronJobMetricsNilSafe(t *testing.T) {
	var m *CronJobMetrics
	m.IncSuccess("settlement")
	m.IncFailure("settlement")
	m.IncSkipped("settlement")
	m.ObserveDuration("settlement", time.Second)

	NewCronJobMetrics(nil).IncSuccess("settlement")
}

func fetchCounterValue(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetCounter().GetValue(), nil
}

func fetchHistogramSum(mfs []*dto.MetricFamily, name, label, value string) (float64, error) {
	metric, err := findSeries(mfs, name, label, value)
	if err != nil {
		return 0, err
	}
	return metric.GetHistogram().GetSampleSum(), nil
}

// findSeries returns the series of family name carrying label=value.
func findSeries(mfs []*dto.MetricFamily, name, label, value string) (*dto.Metric, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if pair.GetName() == label && pair.GetValue() == value {
					return metric, nil
				}
			}
		}
		return nil, fmt.Errorf("%s has no series with %s=%s", name, label, value)
	}
	return nil, fmt.Errorf("metric %s not gathered", name)
}
