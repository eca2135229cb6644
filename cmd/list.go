package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/signalnine/expandbench/internal/corpus"
	"github.com/signalnine/expandbench/internal/result"
)

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the corpus files and which metrics exist for them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			files, err := corpus.Discover(cfg.Corpus.Root, cfg.Corpus.Extension)
			if err != nil {
				return err
			}
			fmt.Printf("Corpus %s (%d files):\n", cfg.Corpus.Root, len(files))
			for _, f := range files {
				fmt.Printf("  - %s%s\n", corpus.Rel(cfg.Corpus.Root, f), storedTags(f, cfg.Tools.LoopExpander.Limits))
			}
			return nil
		},
	}
}

// storedTags lists the variants that already have a metrics file for f.
func storedTags(f string, limits []int) string {
	var tags []string
	for _, l := range limits {
		if _, err := os.Stat(result.MetricsPath(f, result.Proposed, l)); err == nil {
			tags = append(tags, result.Tag(result.Proposed, l))
		}
	}
	if _, err := os.Stat(result.MetricsPath(f, result.Baseline, 0)); err == nil {
		tags = append(tags, string(result.Baseline))
	}
	if len(tags) == 0 {
		return ""
	}
	return fmt.Sprintf(" %v", tags)
}
