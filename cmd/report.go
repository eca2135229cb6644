package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/signalnine/expandbench/internal/corpus"
	"github.com/signalnine/expandbench/internal/report"
	"github.com/signalnine/expandbench/internal/result"
	"github.com/signalnine/expandbench/internal/runner"
)

var flagReportFormat string

func newReportCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "report [run-dir]",
		Short: "Rebuild the summary from metrics files already on disk",
		Long: "Compare the stored proposed and baseline metrics of every corpus file without running any tool. " +
			"With a run directory, the corpus root and limits recorded for that run are used instead of the config.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			root := cfg.Corpus.Root
			limits := cfg.Tools.LoopExpander.Limits
			if len(args) > 0 {
				runDir, err := filepath.EvalSymlinks(args[0])
				if err != nil {
					return fmt.Errorf("resolving run dir: %w", err)
				}
				meta, err := result.ReadRunMeta(filepath.Join(runDir, "meta.json"))
				if err != nil {
					return err
				}
				root, limits = meta.CorpusRoot, meta.Limits
			}

			files, err := corpus.Discover(root, cfg.Corpus.Extension)
			if err != nil {
				return err
			}
			format := cfg.Results.Format
			if cmd.Flags().Changed("format") {
				format = flagReportFormat
			}
			summary := runner.Collect(root, files, limits)
			return report.Write(os.Stdout, summary, report.Options{
				Format:    format,
				UseColors: useColors(format),
			})
		},
	}
	cmd.Flags().StringVar(&flagReportFormat, "format", "table", "output format (table, markdown, json, csv)")
	return cmd
}
