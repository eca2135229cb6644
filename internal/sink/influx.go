// Package sink pushes per-run metrics to external time-series stores.
package sink

import (
	"context"
	"fmt"
	"strconv"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/signalnine/expandbench/internal/config"
	"github.com/signalnine/expandbench/internal/logging"
	"github.com/signalnine/expandbench/internal/result"
)

const Measurement = "expandbench_metrics"

type Influx struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
}

// NewInflux connects to the configured server and checks its health before
// returning.
func NewInflux(ctx context.Context, cfg config.Influx) (*Influx, error) {
	logger := logging.GetLogger()
	client := influxdb2.NewClient(cfg.Host, cfg.Token)

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	health, err := client.Health(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("connecting to InfluxDB at %s: %w", cfg.Host, err)
	}
	if health.Status != "pass" {
		client.Close()
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB at %s is unhealthy: %s %s", cfg.Host, health.Status, msg)
	}

	logger.WithFields(logrus.Fields{
		"host":   cfg.Host,
		"bucket": cfg.Bucket,
		"org":    cfg.Org,
	}).Info("Connected to InfluxDB")
	return &Influx{client: client, writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket)}, nil
}

// Point builds the point stored for one processed run.
func Point(runID, file string, variant result.Variant, limit int, m result.Metrics, ts time.Time) *write.Point {
	return influxdb2.NewPoint(Measurement,
		map[string]string{
			"run_id":          runID,
			"test_file":       file,
			"variant":         string(variant),
			"expansion_limit": strconv.Itoa(limit),
		},
		map[string]interface{}{
			result.KeyExecutionTime:    m.ExecutionTime,
			result.KeyLoopExpanderTime: m.LoopExpanderTime,
			result.KeySpectectorTime:   m.SpectectorTime,
			result.KeyLeak:             m.Leak,
			result.KeySuccessful:       m.Successful,
			result.KeyTimeout:          m.Timeout,
		},
		ts)
}

func (s *Influx) WriteMetrics(ctx context.Context, runID, file string, variant result.Variant, limit int, m result.Metrics) error {
	if err := s.writeAPI.WritePoint(ctx, Point(runID, file, variant, limit, m, time.Now())); err != nil {
		return fmt.Errorf("writing point for %s: %w", file, err)
	}
	return nil
}

func (s *Influx) Close() {
	s.client.Close()
}
