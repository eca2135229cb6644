package runner

import (
	"context"
	"errors"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/signalnine/expandbench/internal/analyzer"
	"github.com/signalnine/expandbench/internal/expander"
	"github.com/signalnine/expandbench/internal/invoker"
	"github.com/signalnine/expandbench/internal/logging"
	"github.com/signalnine/expandbench/internal/result"
)

const DefaultAnalyzerTimeout = 2 * time.Second

type Options struct {
	// Root is the corpus root; test files are reported relative to it.
	Root            string
	Limits          []int
	AnalyzerTimeout time.Duration
	AnalyzerOptions []string
	KeepExpanded    bool
}

// Processed is the outcome of one ProcessFile call.
type Processed struct {
	File    string
	Variant result.Variant
	Limit   int
	Metrics result.Metrics
	Outcome Outcome
	// MetricsPath is empty when the metrics file could not be written.
	MetricsPath string
}

// Recorder receives every processed run, for history, sinks and telemetry.
type Recorder interface {
	Record(ctx context.Context, p Processed) error
}

type RecorderFunc func(ctx context.Context, p Processed) error

func (f RecorderFunc) Record(ctx context.Context, p Processed) error { return f(ctx, p) }

type Pipeline struct {
	Expander  *expander.Expander
	Analyzer  *analyzer.Analyzer
	Options   Options
	Recorders []Recorder
}

func New(exp *expander.Expander, an *analyzer.Analyzer, opts Options) *Pipeline {
	if len(opts.Limits) == 0 {
		opts.Limits = []int{expander.DefaultLimit}
	}
	if opts.AnalyzerTimeout <= 0 {
		opts.AnalyzerTimeout = DefaultAnalyzerTimeout
	}
	return &Pipeline{Expander: exp, Analyzer: an, Options: opts}
}

func (p *Pipeline) AddRecorder(r Recorder) {
	p.Recorders = append(p.Recorders, r)
}

// ProcessFile runs one variant on file and saves its metrics next to it,
// whatever stage the run stopped at. Stage failures end up in the metrics and
// the outcome; the only error returned is cancellation of ctx.
func (p *Pipeline) ProcessFile(ctx context.Context, file string, variant result.Variant, limit int) (Processed, error) {
	logger := logging.GetLogger().WithFields(logrus.Fields{
		"file":    file,
		"variant": variant,
	})
	if variant == result.Proposed {
		logger = logger.WithField("limit", limit)
	} else {
		limit = 0
	}

	start := time.Now()
	m, outcome, err := p.runStages(ctx, logger, file, variant, limit)
	m.ExecutionTime = time.Since(start).Seconds()
	if err != nil {
		return Processed{}, err
	}

	out := Processed{File: file, Variant: variant, Limit: limit, Metrics: m, Outcome: outcome}
	path, err := result.SaveMetrics(m, file, variant, limit)
	if err != nil {
		logger.WithError(err).Error("Saving metrics")
	} else {
		out.MetricsPath = path
	}
	logger.WithFields(logrus.Fields{
		"outcome":        outcome,
		"execution_time": m.ExecutionTime,
	}).Info("Processed")

	for _, r := range p.Recorders {
		if err := r.Record(ctx, out); err != nil {
			logger.WithError(err).Warn("Recording run")
		}
	}
	return out, nil
}

func (p *Pipeline) runStages(ctx context.Context, logger *logrus.Entry, file string, variant result.Variant, limit int) (result.Metrics, Outcome, error) {
	var m result.Metrics
	target := file

	if variant == result.Proposed {
		expanded := result.ExpandedPath(file)
		if !p.Options.KeepExpanded {
			defer removeExpanded(logger, expanded)
		}
		t0 := time.Now()
		ok := p.Expander.Expand(ctx, file, expanded, limit)
		m.LoopExpanderTime = time.Since(t0).Seconds()
		if err := ctx.Err(); err != nil {
			return m, "", err
		}
		if !ok {
			return m, ExpandFailed, nil
		}
		target = expanded
	}

	res, err := p.Analyzer.Analyze(ctx, target, p.Options.AnalyzerTimeout, p.Options.AnalyzerOptions)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return m, "", ctxErr
		}
		logger.WithError(err).Error("Error running spectector")
		if errors.Is(err, invoker.ErrSpawn) {
			return m, SpawnFailed, nil
		}
		return m, Crashed, nil
	}
	m.SpectectorTime = res.Elapsed.Seconds()

	if err := result.WriteReport(result.ReportPath(file, variant, limit), res); err != nil {
		logger.WithError(err).Warn("Writing spectector output")
	}

	outcome := OutcomeFromResult(res)
	switch outcome {
	case Timeout:
		m.Timeout = true
		logger.WithField("timeout", p.Options.AnalyzerTimeout).Warn("spectector timed out")
		return m, Timeout, nil
	case Crashed:
		logger.WithFields(logrus.Fields{
			"return_code": res.ReturnCode,
			"stderr":      res.Stderr,
		}).Error("Error running spectector")
		return m, Crashed, nil
	}

	if res.Stdout == "" {
		logger.Warn("spectector produced no output, leaving verdict unset")
		return m, NoVerdict, nil
	}
	v := analyzer.Classify(res.Stdout)
	m.Leak = v.Leak
	m.Successful = v.Successful
	if v.Leak {
		return m, Leak, nil
	}
	return m, Safe, nil
}

func removeExpanded(logger *logrus.Entry, path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.WithError(err).WithField("path", path).Warn("Removing expanded file")
	}
}
