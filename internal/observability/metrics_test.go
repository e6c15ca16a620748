package observability

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"

	"github.com/signalsfoundry/hew-outdoor/core"
	"github.com/signalsfoundry/hew-outdoor/model"
)

func TestObserveBuildRecordsResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("NewScenarioCollector: %v", err)
	}

	collector.ObserveBuild(3*time.Millisecond, nil)
	collector.ObserveBuild(time.Millisecond, fmt.Errorf("cell 300: %w", core.ErrCapacityExceeded))
	collector.ObserveBuild(time.Millisecond, fmt.Errorf("layers: %w", core.ErrInvalidArgument))

	for label, want := range map[string]float64{
		ResultOK:               1,
		ResultCapacityExceeded: 1,
		ResultInvalidArgument:  1,
		ResultError:            0,
	} {
		if got := testutil.ToFloat64(collector.Builds.WithLabelValues(label)); got != want {
			t.Fatalf("scenario_builds_total{result=%q} = %v, want %v", label, got, want)
		}
	}

	if count := histogramSampleCount(t, reg, "scenario_build_duration_seconds", nil); count != 3 {
		t.Fatalf("scenario_build_duration_seconds sample_count = %d, want 3", count)
	}
}

func TestSetScenarioCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("NewScenarioCollector: %v", err)
	}
	collector.SetScenarioCounts(19, 95, map[model.TrafficClass]int{model.TrafficConstantRate: 95})

	if got := testutil.ToFloat64(collector.Cells); got != 19 {
		t.Fatalf("scenario_cells = %v, want 19", got)
	}
	if got := testutil.ToFloat64(collector.Stations); got != 95 {
		t.Fatalf("scenario_stations = %v, want 95", got)
	}
	if got := testutil.ToFloat64(collector.Flows.WithLabelValues("constant_rate")); got != 95 {
		t.Fatalf("scenario_flows{class=constant_rate} = %v, want 95", got)
	}
	if got := testutil.ToFloat64(collector.Flows.WithLabelValues("bulk")); got != 0 {
		t.Fatalf("scenario_flows{class=bulk} = %v, want 0", got)
	}
}

func TestNewScenarioCollectorReusesRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	a, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("first NewScenarioCollector: %v", err)
	}
	b, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("second NewScenarioCollector: %v", err)
	}
	a.ObserveBuild(time.Millisecond, nil)
	if got := testutil.ToFloat64(b.Builds.WithLabelValues(ResultOK)); got != 1 {
		t.Fatalf("shared counter = %v, want 1", got)
	}
}

func TestWriteTextfile(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector, err := NewScenarioCollector(reg)
	if err != nil {
		t.Fatalf("NewScenarioCollector: %v", err)
	}
	collector.SetScenarioCounts(7, 14, nil)

	path := filepath.Join(t.TempDir(), "scenario.prom")
	if err := collector.WriteTextfile(path); err != nil {
		t.Fatalf("WriteTextfile: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	body := string(data)
	for _, metric := range []string{"scenario_cells 7", "scenario_stations 14", "scenario_flows"} {
		if !strings.Contains(body, metric) {
			t.Fatalf("expected %q in textfile output:\n%s", metric, body)
		}
	}
}

func TestResultLabel(t *testing.T) {
	if got := ResultLabel(errors.New("engine down")); got != ResultError {
		t.Fatalf("ResultLabel(other) = %q, want %q", got, ResultError)
	}
}

func TestNilCollectorIsSafe(t *testing.T) {
	var c *ScenarioCollector
	c.ObserveBuild(time.Second, nil)
	c.SetScenarioCounts(1, 1, nil)
	if c.Gatherer() != nil {
		t.Fatalf("nil collector returned a gatherer")
	}
}

func histogramSampleCount(t *testing.T, gatherer prometheus.Gatherer, name string, labels map[string]string) uint64 {
	t.Helper()

	metrics, err := gatherer.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	for _, mf := range metrics {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.Metric {
			if matchLabels(m.GetLabel(), labels) && m.GetHistogram() != nil {
				return m.GetHistogram().GetSampleCount()
			}
		}
	}
	return 0
}

func matchLabels(got []*dto.LabelPair, want map[string]string) bool {
	if len(got) < len(want) {
		return false
	}
	matched := 0
	for _, lp := range got {
		if val, ok := want[lp.GetName()]; ok && val == lp.GetValue() {
			matched++
		}
	}
	return matched == len(want)
}
