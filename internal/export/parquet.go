// Package export writes run summaries to columnar files for offline analysis.
package export

import (
	"fmt"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/signalnine/expandbench/internal/compare"
	"github.com/signalnine/expandbench/internal/result"
	"github.com/signalnine/expandbench/internal/runner"
)

// SummaryRow is one compared test file at one expansion limit. Time deltas
// are null when the cell was not numeric, for instance missing from the
// baseline.
type SummaryRow struct {
	RunID                 string   `parquet:"run_id,snappy"`
	TestFile              string   `parquet:"test_file,snappy"`
	ExpansionLimit        int32    `parquet:"expansion_limit,snappy"`
	ExecutionTimeDelta    *float64 `parquet:"execution_time_delta,optional,snappy"`
	LoopExpanderTimeDelta *float64 `parquet:"loop_expander_time_delta,optional,snappy"`
	SpectectorTimeDelta   *float64 `parquet:"spectector_time_delta,optional,snappy"`
	Leak                  string   `parquet:"leak,snappy"`
	Successful            string   `parquet:"successful,snappy"`
	Timeout               string   `parquet:"timeout,snappy"`
}

// Rows flattens every table of s, in limit order.
func Rows(runID string, s *runner.Summary) []SummaryRow {
	var rows []SummaryRow
	for _, limit := range s.Limits {
		for _, r := range s.Table(limit).Rows() {
			rows = append(rows, SummaryRow{
				RunID:                 runID,
				TestFile:              r.TestFile,
				ExpansionLimit:        int32(limit),
				ExecutionTimeDelta:    delta(r, result.KeyExecutionTime),
				LoopExpanderTimeDelta: delta(r, result.KeyLoopExpanderTime),
				SpectectorTimeDelta:   delta(r, result.KeySpectectorTime),
				Leak:                  text(r, result.KeyLeak),
				Successful:            text(r, result.KeySuccessful),
				Timeout:               text(r, result.KeyTimeout),
			})
		}
	}
	return rows
}

func delta(r compare.Row, key string) *float64 {
	c, ok := r.Cell(key)
	if !ok || !c.Numeric {
		return nil
	}
	v := c.Delta
	return &v
}

func text(r compare.Row, key string) string {
	c, ok := r.Cell(key)
	if !ok {
		return ""
	}
	return c.String()
}

func WriteParquet(path string, rows []SummaryRow) error {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	writer := parquet.NewGenericWriter[SummaryRow](file)
	if _, err := writer.Write(rows); err != nil {
		_ = writer.Close()
		return fmt.Errorf("writing parquet rows: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("closing parquet writer: %w", err)
	}
	return file.Close()
}
