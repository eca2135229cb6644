package cmd

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/signalnine/expandbench/internal/analyzer"
	"github.com/signalnine/expandbench/internal/config"
	"github.com/signalnine/expandbench/internal/corpus"
	"github.com/signalnine/expandbench/internal/expander"
	"github.com/signalnine/expandbench/internal/export"
	"github.com/signalnine/expandbench/internal/history"
	"github.com/signalnine/expandbench/internal/invoker"
	"github.com/signalnine/expandbench/internal/logging"
	"github.com/signalnine/expandbench/internal/report"
	"github.com/signalnine/expandbench/internal/result"
	"github.com/signalnine/expandbench/internal/runner"
	"github.com/signalnine/expandbench/internal/sink"
	"github.com/signalnine/expandbench/internal/telemetry"
)

var (
	flagCorpus       string
	flagLimits       []int
	flagTimeout      time.Duration
	flagOptions      string
	flagFormat       string
	flagKeepExpanded bool
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run both variants over the corpus and compare them",
		RunE:  runBenchmark,
	}
	cmd.Flags().StringVar(&flagCorpus, "corpus", "", "override corpus.root")
	cmd.Flags().IntSliceVar(&flagLimits, "limit", nil, "expansion limit, repeatable (overrides tools.loop_expander.limits)")
	cmd.Flags().DurationVar(&flagTimeout, "timeout", 0, "spectector timeout (overrides tools.spectector.timeout)")
	cmd.Flags().StringVar(&flagOptions, "options", "", `extra spectector options, e.g. "-n -a reach"`)
	cmd.Flags().StringVar(&flagFormat, "format", "", "output format (table, markdown, json, csv)")
	cmd.Flags().BoolVar(&flagKeepExpanded, "keep-expanded", false, "keep the loop-expanded programs next to their inputs")
	return cmd
}

// applyRunFlags overrides cfg with the flags set on cmd and validates the
// result again.
func applyRunFlags(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()
	if flags.Changed("corpus") {
		cfg.Corpus.Root = flagCorpus
	}
	if flags.Changed("limit") {
		cfg.Tools.LoopExpander.Limits = flagLimits
	}
	if flags.Changed("timeout") {
		cfg.Tools.Spectector.Timeout = flagTimeout
	}
	if flags.Changed("options") {
		cfg.Tools.Spectector.Options = analyzer.SplitOptions(flagOptions)
	}
	if flags.Changed("format") {
		cfg.Results.Format = flagFormat
	}
	if flags.Changed("keep-expanded") {
		cfg.Tools.LoopExpander.KeepExpanded = flagKeepExpanded
	}
	return config.Validate(cfg)
}

// newInvoker runs the tools locally, or inside the configured image with the
// corpus and any extra directories mounted.
func newInvoker(cfg *config.Config) (invoker.Invoker, error) {
	if cfg.Tools.Docker.Image == "" {
		return &invoker.Exec{}, nil
	}
	root, err := filepath.Abs(cfg.Corpus.Root)
	if err != nil {
		return nil, fmt.Errorf("resolving corpus root: %w", err)
	}
	return &invoker.Docker{
		Image:   cfg.Tools.Docker.Image,
		Mounts:  append([]string{root}, cfg.Tools.Docker.Mounts...),
		WorkDir: root,
		UserID:  fmt.Sprintf("%d:%d", os.Getuid(), os.Getgid()),
	}, nil
}

func historyDSN(cfg *config.Config) string {
	if cfg.History.Backend == string(history.SQLite) && cfg.History.DSN == "" {
		return filepath.Join(cfg.Results.Dir, "history.db")
	}
	return cfg.History.DSN
}

func useColors(format string) bool {
	return format == report.FormatTable && isatty.IsTerminal(os.Stdout.Fd())
}

func newPipeline(cfg *config.Config, inv invoker.Invoker) *runner.Pipeline {
	le := cfg.Tools.LoopExpander
	sp := cfg.Tools.Spectector
	return runner.New(
		expander.New(le.Path, le.ExpanderTimeout(), inv),
		analyzer.New(sp.Path, inv),
		runner.Options{
			Root:            cfg.Corpus.Root,
			Limits:          le.Limits,
			AnalyzerTimeout: sp.Timeout,
			AnalyzerOptions: sp.Options,
			KeepExpanded:    le.KeepExpanded,
		},
	)
}

func runBenchmark(cmd *cobra.Command, args []string) error {
	logger := logging.GetLogger()
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if err := applyRunFlags(cmd, cfg); err != nil {
		return err
	}

	files, err := corpus.Discover(cfg.Corpus.Root, cfg.Corpus.Extension)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		fmt.Printf("No %s files under %s\n", cfg.Corpus.Extension, cfg.Corpus.Root)
		return nil
	}

	lock, err := result.AcquireRunLock(cfg.Corpus.Root)
	if err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.WithError(err).Warn("Releasing run lock")
		}
	}()

	inv, err := newInvoker(cfg)
	if err != nil {
		return err
	}
	p := newPipeline(cfg, inv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runID := uuid.NewString()
	runDir, err := result.CreateRunDir(cfg.Results.Dir)
	if err != nil {
		return err
	}
	fmt.Printf("Run %s: %d files, limits %v\n", runID, len(files), cfg.Tools.LoopExpander.Limits)
	fmt.Printf("Run directory: %s\n", runDir)

	store, err := history.Open(history.Backend(cfg.History.Backend), historyDSN(cfg))
	if err != nil {
		return err
	}
	defer store.Close()

	started := time.Now()
	if err := store.RecordRun(ctx, runID, started, cfg.Corpus.Root); err != nil {
		logger.WithError(err).Warn("Recording run in history")
	}
	p.AddRecorder(runner.RecorderFunc(func(ctx context.Context, proc runner.Processed) error {
		return store.RecordMetrics(ctx, runID, corpus.Rel(cfg.Corpus.Root, proc.File), proc.Variant, proc.Limit, proc.Metrics)
	}))

	if cfg.Influx.Enabled() {
		influx, err := sink.NewInflux(ctx, cfg.Influx)
		if err != nil {
			logger.WithError(err).Warn("InfluxDB unavailable, not pushing metrics")
		} else {
			defer influx.Close()
			p.AddRecorder(runner.RecorderFunc(func(ctx context.Context, proc runner.Processed) error {
				return influx.WriteMetrics(ctx, runID, corpus.Rel(cfg.Corpus.Root, proc.File), proc.Variant, proc.Limit, proc.Metrics)
			}))
		}
	}

	var collector *telemetry.Collector
	if cfg.Telemetry.Textfile != "" {
		collector = telemetry.New()
		p.AddRecorder(collector)
	}

	p.AddRecorder(runner.RecorderFunc(func(_ context.Context, proc runner.Processed) error {
		fmt.Printf("  %-12s %-13s (%.2fs)\n", result.Tag(proc.Variant, proc.Limit), proc.Outcome, proc.Metrics.ExecutionTime)
		return nil
	}))

	summary, runErr := p.Run(ctx, files)
	finished := time.Now()

	if err := writeRunArtifacts(runDir, runID, cfg, summary, started, finished); err != nil {
		logger.WithError(err).Warn("Writing run artifacts")
	}
	if err := store.FinishRun(context.Background(), runID, finished, summary.Files); err != nil {
		logger.WithError(err).Warn("Finishing run in history")
	}
	if collector != nil {
		if err := collector.WriteTextfile(cfg.Telemetry.Textfile); err != nil {
			logger.WithError(err).Warn("Writing telemetry")
		}
	}

	fmt.Println("\n--- Results ---")
	if err := report.Write(os.Stdout, summary, report.Options{
		Format:    cfg.Results.Format,
		UseColors: useColors(cfg.Results.Format),
	}); err != nil {
		return err
	}
	return runErr
}

// writeRunArtifacts stores the per-limit summary tables and run metadata in
// the run directory.
func writeRunArtifacts(runDir, runID string, cfg *config.Config, summary *runner.Summary, started, finished time.Time) error {
	for _, limit := range summary.Limits {
		var buf bytes.Buffer
		if err := report.WriteCSV(&buf, summary.Table(limit)); err != nil {
			return err
		}
		if err := result.AtomicWrite(result.SummaryPath(runDir, limit, "csv"), buf.Bytes()); err != nil {
			return err
		}
	}
	if cfg.Export.Parquet {
		if err := export.WriteParquet(filepath.Join(runDir, "summary.parquet"), export.Rows(runID, summary)); err != nil {
			return err
		}
	}
	root, err := filepath.Abs(cfg.Corpus.Root)
	if err != nil {
		root = cfg.Corpus.Root
	}
	return result.WriteRunMeta(runDir, &result.RunMeta{
		RunID:      runID,
		StartedAt:  started,
		FinishedAt: finished,
		CorpusRoot: root,
		Limits:     summary.Limits,
		Files:      summary.Files,
		Outcomes:   summary.OutcomeCounts(),
	})
}
