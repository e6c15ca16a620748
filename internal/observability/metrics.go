package observability

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/signalsfoundry/hew-outdoor/core"
	"github.com/signalsfoundry/hew-outdoor/model"
)

// Build result labels.
const (
	ResultOK               = "ok"
	ResultInvalidArgument  = "invalid_argument"
	ResultCapacityExceeded = "capacity_exceeded"
	ResultError            = "error"
)

// ScenarioCollector bundles Prometheus metrics describing scenario builds.
type ScenarioCollector struct {
	gatherer prometheus.Gatherer

	Builds        *prometheus.CounterVec
	BuildDuration prometheus.Histogram

	Cells    prometheus.Gauge
	Stations prometheus.Gauge
	Flows    *prometheus.GaugeVec
}

// NewScenarioCollector registers scenario metrics against reg, defaulting to
// the global Prometheus registry when nil.
func NewScenarioCollector(reg prometheus.Registerer) (*ScenarioCollector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gatherer := prometheus.DefaultGatherer
	if g, ok := reg.(prometheus.Gatherer); ok {
		gatherer = g
	}

	builds, err := registerCounterVec(reg, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "scenario_builds_total",
		Help: "Scenario builds attempted, labeled by result.",
	}, []string{"result"}), "scenario_builds_total")
	if err != nil {
		return nil, err
	}

	duration, err := registerHistogram(reg, prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "scenario_build_duration_seconds",
		Help:    "Wall-clock time spent generating topology and traffic for one scenario.",
		Buckets: []float64{0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1},
	}), "scenario_build_duration_seconds")
	if err != nil {
		return nil, err
	}

	cells, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_cells",
		Help: "Access points in the last built scenario.",
	}), "scenario_cells")
	if err != nil {
		return nil, err
	}
	stations, err := registerGauge(reg, prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "scenario_stations",
		Help: "Client stations in the last built scenario.",
	}), "scenario_stations")
	if err != nil {
		return nil, err
	}
	flows, err := registerGaugeVec(reg, prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "scenario_flows",
		Help: "Scheduled flows in the last built scenario, labeled by traffic class.",
	}, []string{"class"}), "scenario_flows")
	if err != nil {
		return nil, err
	}

	return &ScenarioCollector{
		gatherer:      gatherer,
		Builds:        builds,
		BuildDuration: duration,
		Cells:         cells,
		Stations:      stations,
		Flows:         flows,
	}, nil
}

// Gatherer returns the Prometheus gatherer associated with the collector.
func (c *ScenarioCollector) Gatherer() prometheus.Gatherer {
	if c == nil {
		return nil
	}
	return c.gatherer
}

// SetScenarioCounts publishes the size of a finished build.
func (c *ScenarioCollector) SetScenarioCounts(cells, stations int, flows map[model.TrafficClass]int) {
	if c == nil {
		return
	}
	c.Cells.Set(float64(cells))
	c.Stations.Set(float64(stations))
	for _, class := range []model.TrafficClass{model.TrafficBulk, model.TrafficConstantRate} {
		c.Flows.WithLabelValues(class.String()).Set(float64(flows[class]))
	}
}

// ObserveBuild records one build attempt.
func (c *ScenarioCollector) ObserveBuild(d time.Duration, err error) {
	if c == nil {
		return
	}
	c.Builds.WithLabelValues(ResultLabel(err)).Inc()
	c.BuildDuration.Observe(d.Seconds())
}

// WriteTextfile writes the current metric values in the text exposition
// format, for node_exporter's textfile collector or offline inspection.
func (c *ScenarioCollector) WriteTextfile(path string) error {
	return prometheus.WriteToTextfile(path, c.Gatherer())
}

// ResultLabel maps a build error onto a bounded label value.
func ResultLabel(err error) string {
	switch {
	case err == nil:
		return ResultOK
	case errors.Is(err, core.ErrInvalidArgument):
		return ResultInvalidArgument
	case errors.Is(err, core.ErrCapacityExceeded):
		return ResultCapacityExceeded
	default:
		return ResultError
	}
}
