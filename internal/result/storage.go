package result

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// ExpandedSuffix is appended to an input path to name its loop-expanded copy.
const ExpandedSuffix = ".loop_expanded.muasm"

var metricsHeader = []string{"metric", "value"}

// Tag names a run's artifacts: "proposed.<limit>" or "baseline".
func Tag(variant Variant, limit int) string {
	if variant == Proposed {
		return fmt.Sprintf("%s.%d", variant, limit)
	}
	return string(variant)
}

func stem(input string) string {
	return strings.TrimSuffix(input, filepath.Ext(input))
}

// MetricsPath is the sibling file holding the metrics of input for variant.
// The expansion limit only appears in proposed paths.
func MetricsPath(input string, variant Variant, limit int) string {
	return stem(input) + "." + Tag(variant, limit) + ".metrics"
}

// ReportPath is the sibling file holding the raw analyzer output.
func ReportPath(input string, variant Variant, limit int) string {
	return stem(input) + "." + Tag(variant, limit) + ".out"
}

func ExpandedPath(input string) string {
	return input + ExpandedSuffix
}

// SaveMetrics writes m next to input for variant and returns the path.
func SaveMetrics(m Metrics, input string, variant Variant, limit int) (string, error) {
	path := MetricsPath(input, variant, limit)
	if err := WriteRecord(path, m.Record()); err != nil {
		return "", err
	}
	return path, nil
}

// LoadMetrics reads back the record SaveMetrics wrote for the same arguments.
func LoadMetrics(input string, variant Variant, limit int) (Record, error) {
	return ReadRecord(MetricsPath(input, variant, limit))
}

// WriteRecord writes rec to path as a metric,value csv, replacing any
// previous contents atomically.
func WriteRecord(path string, rec Record) error {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(metricsHeader); err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	for _, e := range rec {
		if err := w.Write([]string{e.Key, e.Value}); err != nil {
			return fmt.Errorf("encoding metrics: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("encoding metrics: %w", err)
	}
	return AtomicWrite(path, buf.Bytes())
}

func ReadRecord(path string) (Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metrics: %w", err)
	}
	defer f.Close()
	rec, err := DecodeRecord(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return rec, nil
}

func DecodeRecord(r io.Reader) (Record, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 2
	header, err := cr.Read()
	if err == io.EOF {
		return nil, fmt.Errorf("empty metrics file")
	}
	if err != nil {
		return nil, fmt.Errorf("reading metrics header: %w", err)
	}
	if header[0] != metricsHeader[0] || header[1] != metricsHeader[1] {
		return nil, fmt.Errorf("unexpected metrics header %q", strings.Join(header, ","))
	}
	var rec Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading metrics: %w", err)
		}
		rec.Set(row[0], row[1])
	}
	return rec, nil
}

// AtomicWrite writes data through a temp file in the target directory and
// renames it into place, so readers never observe a partial file.
func AtomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating %s: %w", dir, err)
	}
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if tmp != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()
	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("renaming to %s: %w", path, err)
	}
	tmp = nil
	return nil
}

// RunMeta describes one invocation of the benchmark.
type RunMeta struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	CorpusRoot string         `json:"corpus_root"`
	Limits     []int          `json:"limits"`
	Files      int            `json:"files"`
	Outcomes   map[string]int `json:"outcomes,omitempty"`
}

func CreateRunDir(baseDir string) (string, error) {
	runsDir := filepath.Join(baseDir, "runs")
	stamp := time.Now().UTC().Format("2006-01-02T15-04-05")
	runDir, err := filepath.Abs(filepath.Join(runsDir, stamp))
	if err != nil {
		return "", fmt.Errorf("resolving run dir: %w", err)
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("creating run dir: %w", err)
	}
	latest := filepath.Join(baseDir, "latest")
	os.Remove(latest)
	if err := os.Symlink(runDir, latest); err != nil {
		return "", fmt.Errorf("creating latest symlink: %w", err)
	}
	return runDir, nil
}

// SummaryPath names the per-limit summary table inside a run directory.
func SummaryPath(runDir string, limit int, ext string) string {
	return filepath.Join(runDir, "summary."+strconv.Itoa(limit)+"."+ext)
}

func WriteRunMeta(runDir string, meta *RunMeta) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling meta: %w", err)
	}
	return AtomicWrite(filepath.Join(runDir, "meta.json"), data)
}

func ReadRunMeta(path string) (*RunMeta, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading meta: %w", err)
	}
	var meta RunMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parsing meta: %w", err)
	}
	return &meta, nil
}
