package runner_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/signalnine/expandbench/internal/analyzer"
	"github.com/signalnine/expandbench/internal/expander"
	"github.com/signalnine/expandbench/internal/invoker"
	"github.com/signalnine/expandbench/internal/invoker/invokertest"
	"github.com/signalnine/expandbench/internal/result"
	"github.com/signalnine/expandbench/internal/runner"
)

const (
	expanderBin = "loop_expander"
	analyzerBin = "spectector"
	safeOutput  = "Analyzing program...\n[program is safe]\n"
	leakOutput  = "Analyzing program...\n[program is unsafe]\n"
)

// expands emulates a successful expander run that writes its output file.
func expands() invokertest.Response {
	r := invokertest.Completed("")
	r.Effect = func(args []string) error {
		return os.WriteFile(args[3], []byte("expanded\n"), 0o644)
	}
	return r
}

func newPipeline(t *testing.T, fake *invokertest.Fake, opts runner.Options) *runner.Pipeline {
	t.Helper()
	return runner.New(
		expander.New(expanderBin, time.Minute, fake),
		analyzer.New(analyzerBin, fake),
		opts,
	)
}

func writeInput(t *testing.T, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte("skip\n"), 0o644))
	return path
}

func loadMetrics(t *testing.T, path string) result.Metrics {
	t.Helper()
	rec, err := result.ReadRecord(path)
	require.NoError(t, err)
	assert.Equal(t, result.Keys, rec.Keys())
	m, err := rec.Metrics()
	require.NoError(t, err)
	return m
}

func TestOutcomeFromResult(t *testing.T) {
	tests := []struct {
		res  invoker.Result
		want runner.Outcome
	}{
		{invoker.Result{ReturnCode: 0}, runner.Completed},
		{invoker.Result{ReturnCode: 1}, runner.Crashed},
		{invoker.Result{ReturnCode: 42}, runner.Crashed},
		{invoker.Result{TimedOut: true}, runner.Timeout},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, runner.OutcomeFromResult(&tt.res))
	}
}

func TestProposedTimeout(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "sample1.muasm")
	fake := invokertest.New().
		On(expanderBin, expands()).
		On(analyzerBin, invokertest.TimedOut(2*time.Second))
	p := newPipeline(t, fake, runner.Options{Root: dir, AnalyzerTimeout: 2 * time.Second})

	proc, err := p.ProcessFile(context.Background(), in, result.Proposed, 3)
	require.NoError(t, err)
	assert.Equal(t, runner.Timeout, proc.Outcome)
	assert.Equal(t, filepath.Join(dir, "sample1.proposed.3.metrics"), proc.MetricsPath)

	m := loadMetrics(t, proc.MetricsPath)
	assert.True(t, m.Timeout)
	assert.False(t, m.Leak)
	assert.False(t, m.Successful)
	assert.InDelta(t, 2.0, m.SpectectorTime, 0.01)
	assert.GreaterOrEqual(t, m.LoopExpanderTime, 0.0)

	calls := fake.CallsTo(analyzerBin)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{result.ExpandedPath(in)}, calls[0].Args)
	assert.Equal(t, 2*time.Second, calls[0].Timeout)

	assert.NoFileExists(t, result.ExpandedPath(in))
	out, err := os.ReadFile(result.ReportPath(in, result.Proposed, 3))
	require.NoError(t, err)
	assert.Contains(t, string(out), "Return Code: None")
	assert.Contains(t, string(out), "Timeout: True")
}

func TestBaselineSafe(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "sample1.muasm")
	fake := invokertest.New().On(analyzerBin, invokertest.Completed(safeOutput))
	p := newPipeline(t, fake, runner.Options{Root: dir, AnalyzerOptions: []string{"-n", "-a", "reach"}})

	proc, err := p.ProcessFile(context.Background(), in, result.Baseline, 3)
	require.NoError(t, err)
	assert.Equal(t, runner.Safe, proc.Outcome)
	assert.Equal(t, filepath.Join(dir, "sample1.baseline.metrics"), proc.MetricsPath)
	assert.Zero(t, proc.Limit)

	m := loadMetrics(t, proc.MetricsPath)
	assert.False(t, m.Leak)
	assert.True(t, m.Successful)
	assert.False(t, m.Timeout)
	assert.Zero(t, m.LoopExpanderTime)

	assert.Empty(t, fake.CallsTo(expanderBin))
	calls := fake.CallsTo(analyzerBin)
	require.Len(t, calls, 1)
	assert.Equal(t, []string{in, "-n", "-a", "reach"}, calls[0].Args)

	out, err := os.ReadFile(filepath.Join(dir, "sample1.baseline.out"))
	require.NoError(t, err)
	for _, section := range []string{"Stdout:", "Stderr:", "Return Code: 0", "Execution Time:", "Timeout: False"} {
		assert.Contains(t, string(out), section)
	}
}

func TestProcessFileFailures(t *testing.T) {
	tests := []struct {
		name       string
		variant    result.Variant
		expander   []invokertest.Response
		analyzer   []invokertest.Response
		want       runner.Outcome
		leak       bool
		successful bool
		report     bool
	}{
		{
			name:     "expander exits non-zero",
			variant:  result.Proposed,
			expander: []invokertest.Response{invokertest.Exited(1, "bad loop")},
			want:     runner.ExpandFailed,
		},
		{
			name:     "expander missing",
			variant:  result.Proposed,
			expander: []invokertest.Response{invokertest.SpawnFailure(expanderBin)},
			want:     runner.ExpandFailed,
		},
		{
			name:     "expander times out",
			variant:  result.Proposed,
			expander: []invokertest.Response{invokertest.TimedOut(time.Minute)},
			want:     runner.ExpandFailed,
		},
		{
			name:     "analyzer missing",
			variant:  result.Baseline,
			analyzer: []invokertest.Response{invokertest.SpawnFailure(analyzerBin)},
			want:     runner.SpawnFailed,
		},
		{
			name:     "analyzer exits non-zero",
			variant:  result.Baseline,
			analyzer: []invokertest.Response{invokertest.Exited(1, "syntax error")},
			want:     runner.Crashed,
			report:   true,
		},
		{
			name:     "analyzer prints nothing",
			variant:  result.Baseline,
			analyzer: []invokertest.Response{invokertest.Completed("")},
			want:     runner.NoVerdict,
			report:   true,
		},
		{
			name:       "leak found",
			variant:    result.Proposed,
			expander:   []invokertest.Response{expands()},
			analyzer:   []invokertest.Response{invokertest.Completed(leakOutput)},
			want:       runner.Leak,
			leak:       true,
			successful: true,
			report:     true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			in := writeInput(t, dir, "prog.muasm")
			fake := invokertest.New()
			if len(tt.expander) > 0 {
				fake.On(expanderBin, tt.expander...)
			}
			if len(tt.analyzer) > 0 {
				fake.On(analyzerBin, tt.analyzer...)
			}
			p := newPipeline(t, fake, runner.Options{Root: dir})

			proc, err := p.ProcessFile(context.Background(), in, tt.variant, 3)
			require.NoError(t, err)
			assert.Equal(t, tt.want, proc.Outcome)
			require.NotEmpty(t, proc.MetricsPath)

			m := loadMetrics(t, proc.MetricsPath)
			assert.Equal(t, tt.leak, m.Leak)
			assert.Equal(t, tt.successful, m.Successful)
			assert.False(t, m.Timeout)
			assert.Greater(t, m.ExecutionTime, 0.0)

			reportPath := result.ReportPath(in, tt.variant, 3)
			if tt.report {
				assert.FileExists(t, reportPath)
			} else {
				assert.NoFileExists(t, reportPath)
			}
			if tt.want == runner.ExpandFailed {
				assert.Empty(t, fake.CallsTo(analyzerBin))
			}
		})
	}
}

func TestKeepExpanded(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "prog.muasm")
	fake := invokertest.New().
		On(expanderBin, expands()).
		On(analyzerBin, invokertest.Completed(safeOutput))
	p := newPipeline(t, fake, runner.Options{Root: dir, KeepExpanded: true})

	_, err := p.ProcessFile(context.Background(), in, result.Proposed, 4)
	require.NoError(t, err)
	assert.FileExists(t, result.ExpandedPath(in))

	calls := fake.CallsTo(expanderBin)
	require.Len(t, calls, 1)
	assert.Equal(t, "4", calls[0].Args[5])
}

func TestProcessFileCancelled(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "prog.muasm")
	fake := invokertest.New().On(analyzerBin, invokertest.Completed(safeOutput))
	p := newPipeline(t, fake, runner.Options{Root: dir})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := p.ProcessFile(ctx, in, result.Baseline, 0)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, result.MetricsPath(in, result.Baseline, 0))
}

func TestRecorders(t *testing.T) {
	dir := t.TempDir()
	in := writeInput(t, dir, "prog.muasm")
	fake := invokertest.New().On(analyzerBin, invokertest.Completed(leakOutput))
	p := newPipeline(t, fake, runner.Options{Root: dir})

	var seen []runner.Processed
	p.AddRecorder(runner.RecorderFunc(func(_ context.Context, proc runner.Processed) error {
		seen = append(seen, proc)
		return nil
	}))
	p.AddRecorder(runner.RecorderFunc(func(context.Context, runner.Processed) error {
		return assert.AnError
	}))

	_, err := p.ProcessFile(context.Background(), in, result.Baseline, 0)
	require.NoError(t, err)
	require.Len(t, seen, 1)
	assert.Equal(t, runner.Leak, seen[0].Outcome)
	assert.Equal(t, result.Baseline, seen[0].Variant)
}

func TestRunBuildsTablePerLimit(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.muasm")
	b := writeInput(t, dir, filepath.Join("sub", "b.muasm"))

	fake := invokertest.New().
		On(expanderBin, expands()).
		On(analyzerBin,
			invokertest.Completed(leakOutput),                   // a proposed 3
			invokertest.TimedOut(2*time.Second),                 // a proposed 5
			invokertest.Completed(safeOutput),                   // a baseline
			invokertest.Completed(safeOutput),                   // b proposed 3
			invokertest.Exited(1, "crash"),                      // b proposed 5
			invokertest.Response{Err: context.DeadlineExceeded}, // b baseline
		)
	p := newPipeline(t, fake, runner.Options{Root: dir, Limits: []int{3, 5}})

	summary, err := p.Run(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, []int{3, 5}, summary.Limits)

	t3 := summary.Table(3)
	require.Equal(t, 2, t3.Len())
	assert.Equal(t, "a.muasm", t3.Rows()[0].TestFile)
	assert.Equal(t, filepath.Join("sub", "b.muasm"), t3.Rows()[1].TestFile)
	leak, _ := t3.Rows()[0].Cell(result.KeyLeak)
	assert.Equal(t, "True", leak.Text)
	assert.Equal(t, result.Keys, t3.Columns())

	t5 := summary.Table(5)
	require.Equal(t, 2, t5.Len())
	timeout, _ := t5.Rows()[0].Cell(result.KeyTimeout)
	assert.Equal(t, "True", timeout.Text)

	assert.Equal(t, 1, summary.Outcomes[runner.Leak])
	assert.Equal(t, 2, summary.Outcomes[runner.Safe])
	assert.Equal(t, 1, summary.Outcomes[runner.Timeout])
	assert.Equal(t, 2, summary.Outcomes[runner.Crashed])
	assert.Len(t, fake.CallsTo(expanderBin), 4)
}

func TestCollectFromDisk(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.muasm")
	b := writeInput(t, dir, "b.muasm")

	_, err := result.SaveMetrics(result.Metrics{ExecutionTime: 3, Successful: true}, a, result.Proposed, 3)
	require.NoError(t, err)
	_, err = result.SaveMetrics(result.Metrics{ExecutionTime: 1, Successful: true}, a, result.Baseline, 0)
	require.NoError(t, err)
	// b has no baseline and is skipped
	_, err = result.SaveMetrics(result.Metrics{}, b, result.Proposed, 3)
	require.NoError(t, err)

	summary := runner.Collect(dir, []string{a, b}, []int{3})
	assert.Equal(t, 1, summary.Files)
	table := summary.Table(3)
	require.Equal(t, 1, table.Len())
	means := table.Means()
	require.NotEmpty(t, means)
	assert.Equal(t, result.KeyExecutionTime, means[0].Column)
	assert.InDelta(t, 2.0, means[0].Value, 1e-9)
}

func TestRunStopsOnCancel(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.muasm")
	fake := invokertest.New().
		On(expanderBin, expands()).
		On(analyzerBin, invokertest.Completed(safeOutput))
	p := newPipeline(t, fake, runner.Options{Root: dir})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	summary, err := p.Run(ctx, []string{a})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, summary.Files)
}

// blockMetrics turns a metrics path into a non-empty directory so saving over
// it fails.
func blockMetrics(t *testing.T, path string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(path, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(path, "keep"), nil, 0o644))
}

func TestRunSkipsUnsavedMetrics(t *testing.T) {
	dir := t.TempDir()
	a := writeInput(t, dir, "a.muasm")
	b := writeInput(t, dir, "b.muasm")
	blockMetrics(t, result.MetricsPath(a, result.Proposed, 3))
	blockMetrics(t, result.MetricsPath(b, result.Baseline, 0))

	fake := invokertest.New().
		On(expanderBin, expands()).
		On(analyzerBin, invokertest.Completed(leakOutput))
	p := newPipeline(t, fake, runner.Options{Root: dir, Limits: []int{3, 5}})

	summary, err := p.Run(context.Background(), []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.Files)
	assert.Equal(t, 6, summary.Outcomes[runner.Leak])

	assert.Equal(t, 0, summary.Table(3).Len())
	t5 := summary.Table(5)
	require.Equal(t, 1, t5.Len())
	assert.Equal(t, "a.muasm", t5.Rows()[0].TestFile)
}
