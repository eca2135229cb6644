// Package telemetry counts run outcomes and stage durations in a Prometheus
// registry that is written out as a node_exporter textfile.
package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/signalnine/expandbench/internal/runner"
)

const (
	StageExpand  = "loop_expander"
	StageAnalyze = "spectector"
	StageTotal   = "total"
)

type Collector struct {
	registry *prometheus.Registry
	runs     *prometheus.CounterVec
	stages   *prometheus.HistogramVec
}

func New() *Collector {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		registry: reg,
		runs: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "expandbench_runs_total",
			Help: "Processed runs by variant and outcome",
		}, []string{"variant", "outcome"}),
		stages: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "expandbench_stage_seconds",
			Help:    "Wall-clock time spent per pipeline stage",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 14), // 10ms to ~80s
		}, []string{"stage"}),
	}
}

// Record implements runner.Recorder.
func (c *Collector) Record(_ context.Context, p runner.Processed) error {
	c.runs.WithLabelValues(string(p.Variant), string(p.Outcome)).Inc()
	if p.Metrics.LoopExpanderTime > 0 {
		c.stages.WithLabelValues(StageExpand).Observe(p.Metrics.LoopExpanderTime)
	}
	if p.Metrics.SpectectorTime > 0 {
		c.stages.WithLabelValues(StageAnalyze).Observe(p.Metrics.SpectectorTime)
	}
	c.stages.WithLabelValues(StageTotal).Observe(p.Metrics.ExecutionTime)
	return nil
}

func (c *Collector) Registry() *prometheus.Registry { return c.registry }

func (c *Collector) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, c.registry); err != nil {
		return fmt.Errorf("writing metrics textfile: %w", err)
	}
	return nil
}
